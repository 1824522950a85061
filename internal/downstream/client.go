// Package downstream talks to the telemetry platform records are forwarded
// to. Delivery uses per-device access tokens; administrative reads (device
// lookup, latest telemetry) use a tenant bearer token.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/fault"
)

const (
	telemetryPath  = "/api/v1/%s/telemetry"
	attributesPath = "/api/v1/%s/attributes"
)

// TelemetryKeys are the measurement keys polled back when reading a
// device's latest telemetry.
var TelemetryKeys = []string{
	"temperature_c", "humidity_pct", "pm1_ugm3", "pm25_ugm3", "pm4_ugm3",
	"pm10_ugm3", "sound_dba", "voc_index", "nox_index",
}

// Client is an HTTP client for the downstream platform.
type Client struct {
	baseURL string
	jwt     string
	http    *http.Client
	timeout time.Duration
}

// New creates a Client. timeout bounds every individual request.
func New(baseURL, jwt string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		jwt:     jwt,
		http:    &http.Client{},
		timeout: timeout,
	}
}

// PostTelemetry delivers one timestamped telemetry frame using the device
// access token.
func (c *Client) PostTelemetry(ctx context.Context, token string, ts int64, values map[string]float64) error {
	payload := map[string]any{"ts": ts, "values": values}
	url := c.baseURL + fmt.Sprintf(telemetryPath, token)
	return c.post(ctx, url, payload, nil)
}

// PostAttributes delivers device attributes using the device access token.
// Independent of PostTelemetry: no combined rollback.
func (c *Client) PostAttributes(ctx context.Context, token string, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	url := c.baseURL + fmt.Sprintf(attributesPath, token)
	return c.post(ctx, url, attrs, nil)
}

// LookupDeviceID resolves a device name to the platform's device id using
// the tenant JWT. Returns empty id when the device does not exist.
func (c *Client) LookupDeviceID(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s/api/tenant/devices?deviceName=%s", c.baseURL, url.QueryEscape(name))

	var body struct {
		ID struct {
			ID string `json:"id"`
		} `json:"id"`
	}
	if err := c.get(ctx, u, &body); err != nil {
		var te *fault.TerminalUpstreamError
		if errors.As(err, &te) && te.Status == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return body.ID.ID, nil
}

// LastTelemetry returns the newest telemetry timestamp across TelemetryKeys
// for a device, or nil when the platform holds no data.
func (c *Client) LastTelemetry(ctx context.Context, deviceID string) (*time.Time, error) {
	u := fmt.Sprintf("%s/api/plugins/telemetry/DEVICE/%s/values/timeseries?keys=%s&limit=1",
		c.baseURL, url.PathEscape(deviceID), strings.Join(TelemetryKeys, ","))

	var body map[string][]struct {
		TS int64 `json:"ts"`
	}
	if err := c.get(ctx, u, &body); err != nil {
		return nil, err
	}

	var last *time.Time
	for _, series := range body {
		if len(series) == 0 {
			continue
		}
		ts := time.UnixMilli(series[0].TS).UTC()
		if last == nil || ts.After(*last) {
			last = &ts
		}
	}
	return last, nil
}

// ValidateToken probes a device access token by reading the device's client
// attributes. A 2xx answer means the platform accepts the token; any 4xx
// means it does not.
func (c *Client) ValidateToken(ctx context.Context, token string) (bool, error) {
	u := c.baseURL + fmt.Sprintf(attributesPath, token) + "?clientKeys=ping"
	err := c.do(ctx, http.MethodGet, u, nil, nil, false)
	if err == nil {
		return true, nil
	}
	var te *fault.TerminalUpstreamError
	if errors.As(err, &te) {
		return false, nil
	}
	return false, err
}

func (c *Client) post(ctx context.Context, url string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, bytes.NewReader(data), out, false)
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out, true)
}

// do performs one request and classifies the outcome: connection failures
// and 5xx responses are transient, 4xx responses are terminal.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader, out any, authed bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-Authorization", "Bearer "+c.jwt)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &fault.TransientUpstreamError{Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	case res.StatusCode >= 500:
		io.Copy(io.Discard, res.Body)
		return &fault.TransientUpstreamError{Status: res.StatusCode}
	default:
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &fault.TerminalUpstreamError{Status: res.StatusCode, Body: string(raw)}
	}
}
