package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/fault"
	"github.com/xerxes-systems/xerxes-bridge/internal/logging"
	"github.com/xerxes-systems/xerxes-bridge/internal/metrics"
	"github.com/xerxes-systems/xerxes-bridge/internal/model"
	"github.com/xerxes-systems/xerxes-bridge/internal/service"
	"github.com/xerxes-systems/xerxes-bridge/internal/store"
)

// DefaultMaxBodySize caps ingest request bodies at 1 MiB.
const DefaultMaxBodySize = 1 << 20

type BridgeHandler struct {
	bridge      *service.Bridge
	store       store.Store
	apiKey      string
	maxBodySize int64
	logger      *logging.Logger
	version     string
}

func NewBridgeHandler(bridge *service.Bridge, st store.Store, apiKey string, maxBodySize int64, version string, logger *logging.Logger) *BridgeHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BridgeHandler{
		bridge:      bridge,
		store:       st,
		apiKey:      apiKey,
		maxBodySize: maxBodySize,
		logger:      logger,
		version:     version,
	}
}

type ingestResponse struct {
	Status      string `json:"status"`
	CanonicalID string `json:"uuid,omitempty"`
	TS          int64  `json:"ts,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *BridgeHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		metrics.IngestRequestsTotal.WithLabelValues("401").Inc()
		h.sendError(w, "invalid or missing API key", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	defer r.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.IngestRequestsTotal.WithLabelValues("422").Inc()
		h.sendError(w, "request body must be a JSON object", http.StatusUnprocessableEntity)
		return
	}

	prov := model.Provenance{
		SourceIP:   getClientIP(r),
		Origin:     getOrigin(r),
		ReceivedAt: time.Now().UTC(),
	}

	result, err := h.bridge.Ingest(r.Context(), payload, prov)
	if err != nil {
		switch {
		case fault.IsValidation(err):
			metrics.IngestRequestsTotal.WithLabelValues("422").Inc()
			h.sendError(w, err.Error(), http.StatusUnprocessableEntity)
		case fault.IsStorage(err):
			metrics.IngestRequestsTotal.WithLabelValues("500").Inc()
			h.logger.ErrorContext(r.Context(), "Ingest storage failure",
				logging.IP(prov.SourceIP),
				logging.Error(err),
			)
			h.sendError(w, "storage unavailable", http.StatusInternalServerError)
		default:
			metrics.IngestRequestsTotal.WithLabelValues("500").Inc()
			h.logger.ErrorContext(r.Context(), "Ingest failure",
				logging.IP(prov.SourceIP),
				logging.Error(err),
			)
			h.sendError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	status := http.StatusAccepted
	if result.Outcome == service.OutcomeStored {
		status = http.StatusCreated
	}
	metrics.IngestRequestsTotal.WithLabelValues(statusLabel(status)).Inc()
	h.sendJSON(w, status, ingestResponse{
		Status:      string(result.Outcome),
		CanonicalID: result.CanonicalID,
		TS:          result.TS.UnixMilli(),
	})
}

// HandleDevices lists all known devices.
func (h *BridgeHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.sendError(w, "invalid or missing API key", http.StatusUnauthorized)
		return
	}
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		h.sendError(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *BridgeHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.sendJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "degraded",
			"storage": err.Error(),
			"version": h.version,
		})
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

func (h *BridgeHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *BridgeHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// authorized compares the API key header against the configured key. Both
// header spellings are accepted; old firmware sends Api-Key.
func (h *BridgeHandler) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return true
	}
	key := r.Header.Get("API-Key")
	if key == "" {
		key = r.Header.Get("Api-Key")
	}
	return key == h.apiKey
}

func (h *BridgeHandler) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *BridgeHandler) sendError(w http.ResponseWriter, msg string, status int) {
	h.sendJSON(w, status, errorResponse{Error: msg})
}

func statusLabel(status int) string {
	switch status {
	case http.StatusCreated:
		return "201"
	case http.StatusAccepted:
		return "202"
	default:
		return "200"
	}
}

func getOrigin(r *http.Request) string {
	if o := r.Header.Get("X-Bridge-Origin"); o != "" {
		return o
	}
	if o := r.URL.Query().Get("origin"); o != "" {
		return o
	}
	return "device"
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
