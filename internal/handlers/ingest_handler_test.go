package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xerxes-systems/xerxes-bridge/internal/queue"
	"github.com/xerxes-systems/xerxes-bridge/internal/service"
	"github.com/xerxes-systems/xerxes-bridge/internal/store"
)

func newTestHandler(apiKey string) (*BridgeHandler, *store.Memory) {
	mem := store.NewMemory()
	bridge := service.NewBridge(mem, nil, queue.NewChannel(64), service.Options{AllowMetaOnly: true}, nil)
	return NewBridgeHandler(bridge, mem, apiKey, 0, "test", nil), mem
}

func postIngest(t *testing.T, h *BridgeHandler, body, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/bridge/ingest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	h.HandleIngest(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) ingestResponse {
	t.Helper()
	var res ingestResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res
}

func TestHandleIngest_StoresRealPayload(t *testing.T) {
	h, _ := newTestHandler("secret")

	body := `{"uuid":"sensor-42","measurements":{"temp":21.5},"ts":1700000000000}`
	w := postIngest(t, h, body, "secret")

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	res := decodeResponse(t, w)
	if res.Status != "stored" {
		t.Errorf("status = %q, want %q", res.Status, "stored")
	}
	if res.CanonicalID != "42" {
		t.Errorf("uuid = %q, want %q", res.CanonicalID, "42")
	}
	if res.TS != 1700000000000 {
		t.Errorf("ts = %d, want 1700000000000", res.TS)
	}
}

func TestHandleIngest_LegacyShape(t *testing.T) {
	h, _ := newTestHandler("secret")

	body := `{"meta":{"uuid":"sensor-7"},"values":{"temp":18.2},"ts":1700000000}`
	w := postIngest(t, h, body, "secret")

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	res := decodeResponse(t, w)
	if res.CanonicalID != "7" {
		t.Errorf("uuid = %q, want %q", res.CanonicalID, "7")
	}
	if res.TS != 1700000000000 {
		t.Errorf("ts = %d, want millis-scaled 1700000000000", res.TS)
	}
}

func TestHandleIngest_DuplicateAccepted(t *testing.T) {
	h, _ := newTestHandler("secret")
	body := `{"uuid":"42","measurements":{"temp":21.5},"ts":1700000000000}`

	if w := postIngest(t, h, body, "secret"); w.Code != http.StatusCreated {
		t.Fatalf("first write status = %d, want 201", w.Code)
	}
	w := postIngest(t, h, body, "secret")
	if w.Code != http.StatusAccepted {
		t.Fatalf("duplicate status = %d, want 202", w.Code)
	}
	if res := decodeResponse(t, w); res.Status != "duplicate" {
		t.Errorf("status = %q, want %q", res.Status, "duplicate")
	}
}

func TestHandleIngest_MetaOnlyAccepted(t *testing.T) {
	h, _ := newTestHandler("secret")

	w := postIngest(t, h, `{"uuid":"42","meta":{"version":"1.0"}}`, "secret")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", w.Code, w.Body.String())
	}
	if res := decodeResponse(t, w); res.Status != "accepted_meta" {
		t.Errorf("status = %q, want %q", res.Status, "accepted_meta")
	}
}

func TestHandleIngest_MissingAPIKey(t *testing.T) {
	h, _ := newTestHandler("secret")

	w := postIngest(t, h, `{"uuid":"42"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandleIngest_WrongAPIKey(t *testing.T) {
	h, _ := newTestHandler("secret")

	w := postIngest(t, h, `{"uuid":"42"}`, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandleIngest_AltHeaderSpelling(t *testing.T) {
	h, _ := newTestHandler("secret")

	req := httptest.NewRequest(http.MethodPost, "/bridge/ingest",
		strings.NewReader(`{"uuid":"42","measurements":{"temp":1}}`))
	req.Header.Set("Api-Key", "secret")
	w := httptest.NewRecorder()
	h.HandleIngest(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 with Api-Key spelling", w.Code)
	}
}

func TestHandleIngest_MissingIdentifier(t *testing.T) {
	h, _ := newTestHandler("secret")

	w := postIngest(t, h, `{"measurements":{"temp":1}}`, "secret")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body: %s", w.Code, w.Body.String())
	}
}

func TestHandleIngest_MalformedBody(t *testing.T) {
	h, _ := newTestHandler("secret")

	w := postIngest(t, h, `not json`, "secret")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestHandleIngest_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler("secret")

	req := httptest.NewRequest(http.MethodGet, "/bridge/ingest", nil)
	w := httptest.NewRecorder()
	h.HandleIngest(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestHandleIngest_ClientIPFromForwardedFor(t *testing.T) {
	h, mem := newTestHandler("")

	req := httptest.NewRequest(http.MethodPost, "/bridge/ingest",
		strings.NewReader(`{"uuid":"42","measurements":{"temp":1}}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	h.HandleIngest(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	dev, err := mem.GetDevice(req.Context(), "42")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if dev.LastSeenIP != "203.0.113.9" {
		t.Errorf("LastSeenIP = %q, want first X-Forwarded-For entry", dev.LastSeenIP)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler("")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var res map[string]string
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", res["status"])
	}
}

func TestHandleDevices(t *testing.T) {
	h, _ := newTestHandler("secret")

	postIngest(t, h, `{"uuid":"sensor-42","measurements":{"temp":1}}`, "secret")

	req := httptest.NewRequest(http.MethodGet, "/bridge/devices", nil)
	req.Header.Set("API-Key", "secret")
	w := httptest.NewRecorder()
	h.HandleDevices(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var res struct {
		Devices []struct {
			UUID string `json:"uuid"`
		} `json:"devices"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res.Devices) != 1 || res.Devices[0].UUID != "42" {
		t.Errorf("devices = %+v, want one device with uuid 42", res.Devices)
	}
}
