// Package normalizer turns the heterogeneous inbound payload shapes into
// one canonical envelope consumed by every later pipeline stage.
//
// Two shapes are accepted. The current shape carries uuid, measurements and
// meta at the top level. The legacy shape carries only a meta object (with
// the uuid inside) plus a separate values object; it is rewritten to the
// current shape. When a payload carries both measurements and values, the
// measurements are applied first and values overlay them, so values wins on
// key conflict.
package normalizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/fault"
	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// Epoch values below this are interpreted as seconds and scaled to millis.
const msThreshold = int64(100_000_000_000)

// Normalize decodes a raw payload object into an IngestEnvelope.
// receivedAt supplies the timestamp when the payload carries none.
func Normalize(raw map[string]any, receivedAt time.Time) (env model.IngestEnvelope, err error) {
	defer func() {
		// A malformed payload must never take down the request: recover
		// into a passthrough envelope that carries the payload unmodified.
		if r := recover(); r != nil {
			env, err = passthrough(raw, receivedAt, fmt.Errorf("normalize panic: %v", r))
		}
	}()

	id, err := resolveIdentifier(raw)
	if err != nil {
		return model.IngestEnvelope{}, err
	}

	meta := objectField(raw, "meta")
	if meta == nil {
		meta = map[string]any{}
	}

	measurements, dropped := mergeMeasurements(objectField(raw, "measurements"), objectField(raw, "values"))

	return model.IngestEnvelope{
		RawID:        id,
		Measurements: measurements,
		Meta:         meta,
		TimestampMS:  resolveTimestamp(raw["ts"], receivedAt),
		DroppedKeys:  dropped,
	}, nil
}

// passthrough builds the best envelope it can from an unprocessed payload.
// The identifier is still required; everything else is carried as-is.
func passthrough(raw map[string]any, receivedAt time.Time, cause error) (model.IngestEnvelope, error) {
	id, idErr := resolveIdentifier(raw)
	if idErr != nil {
		return model.IngestEnvelope{}, idErr
	}

	meta := objectField(raw, "meta")
	if meta == nil {
		meta = map[string]any{}
	}
	measurements, dropped := mergeMeasurements(nil, rawValues(raw))

	_ = cause // logged by the caller through the Passthrough flag
	return model.IngestEnvelope{
		RawID:        id,
		Measurements: measurements,
		Meta:         meta,
		TimestampMS:  receivedAt.UnixMilli(),
		DroppedKeys:  dropped,
		Passthrough:  true,
	}, nil
}

func rawValues(raw map[string]any) map[string]any {
	if m := objectField(raw, "measurements"); m != nil {
		return m
	}
	return objectField(raw, "values")
}

// resolveIdentifier finds the device identifier: top-level uuid first, then
// meta.uuid (meta.UUID accepted for old firmware).
func resolveIdentifier(raw map[string]any) (string, error) {
	if id := stringish(raw["uuid"]); id != "" {
		return id, nil
	}
	if meta := objectField(raw, "meta"); meta != nil {
		if id := stringish(meta["uuid"]); id != "" {
			return id, nil
		}
		if id := stringish(meta["UUID"]); id != "" {
			return id, nil
		}
	}
	return "", fault.Validation("uuid required (top-level or meta.uuid)")
}

// mergeMeasurements applies measurements then overlays values, keeping only
// numeric leaves. Keys lost along the way are reported for the keys audit.
func mergeMeasurements(measurements, values map[string]any) (map[string]float64, []string) {
	out := make(map[string]float64)
	var dropped []string

	apply := func(src map[string]any) {
		for k, v := range src {
			if n, ok := numeric(v); ok {
				out[k] = n
			} else {
				dropped = append(dropped, k)
			}
		}
	}
	apply(measurements)
	apply(values)

	// A key dropped from measurements but overlaid numerically by values
	// did survive.
	kept := dropped[:0]
	for _, k := range dropped {
		if _, ok := out[k]; !ok {
			kept = append(kept, k)
		}
	}
	dropped = kept
	sort.Strings(dropped)
	return out, dropped
}

// resolveTimestamp scales second-resolution epochs to millis and falls back
// to the receipt time for absent or unusable values.
func resolveTimestamp(v any, receivedAt time.Time) int64 {
	n, ok := integer(v)
	if !ok || n <= 0 {
		return receivedAt.UnixMilli()
	}
	if n < msThreshold {
		return n * 1000
	}
	return n
}

func objectField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	obj, _ := m[key].(map[string]any)
	return obj
}

func stringish(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		// JSON numbers decode as float64; device ids are integral.
		return fmt.Sprintf("%.0f", s)
	case int:
		return fmt.Sprintf("%d", s)
	case int64:
		return fmt.Sprintf("%d", s)
	default:
		return ""
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
