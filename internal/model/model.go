// Package model defines the data types shared by the bridge pipeline stages.
package model

import "time"

// IngestEnvelope is the immutable output of the decoding/normalization stage.
// Every downstream stage consumes this envelope instead of re-reading the
// request body.
type IngestEnvelope struct {
	// RawID is the identifier exactly as the device sent it.
	RawID string

	// Measurements holds numeric measurement values keyed by name.
	// Never nil.
	Measurements map[string]float64

	// Meta holds the device metadata object. Never nil.
	Meta map[string]any

	// TimestampMS is the measurement timestamp in epoch milliseconds.
	TimestampMS int64

	// DroppedKeys lists measurement keys present in the raw payload that
	// did not survive normalization (non-numeric leaves).
	DroppedKeys []string

	// Passthrough is set when normalization recovered from an internal
	// fault and the payload was carried through unmodified.
	Passthrough bool
}

// Provenance describes where an ingested payload came from.
type Provenance struct {
	SourceIP   string    `json:"source_ip"`
	Origin     string    `json:"origin"`
	ReceivedAt time.Time `json:"received_at"`
}

// CanonicalRecord is one accepted measurement document. Append-only, keyed
// by (CanonicalID, TS).
type CanonicalRecord struct {
	CanonicalID  string             `json:"uuid"`
	TS           time.Time          `json:"ts"`
	Measurements map[string]float64 `json:"measurements"`
	Meta         map[string]any     `json:"meta"`
	Synthetic    bool               `json:"synthetic"`
	Provenance   Provenance         `json:"provenance"`
}

// DeviceState is the long-lived per-device document. The canonical id is
// immutable after creation and the alias set only ever grows.
type DeviceState struct {
	CanonicalID string     `json:"uuid"`
	Aliases     []string   `json:"aliases"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeenTS  time.Time  `json:"last_seen_ts"`
	LastSeenIP  string     `json:"last_seen_ip"`
	LastRealTS  *time.Time `json:"last_real_ts,omitempty"`

	// Cached health attributes flattened out of the latest real meta.
	BatteryV  *float64 `json:"battery_v,omitempty"`
	FWVersion string   `json:"fw_version,omitempty"`
	CSQ       *int     `json:"csq,omitempty"`
}

// DeviceUpdate is the per-ingest delta applied to DeviceState by the store
// writer. The store executes it as a single atomic upsert per canonical id.
type DeviceUpdate struct {
	CanonicalID string
	Alias       string
	SeenTS      time.Time
	SeenIP      string

	// Real marks a REAL-classified ingest; only real updates may advance
	// LastRealTS and the cached health attributes.
	Real bool

	// RealTS is set when a measurement row was persisted for this ingest.
	RealTS *time.Time

	BatteryV  *float64
	FWVersion string
	CSQ       *int
}

// KeysAudit compares the measurement keys offered by a raw payload with the
// keys actually persisted. Written for every real write, even when nothing
// was dropped, so "no drops" and "audit not run" stay distinguishable.
type KeysAudit struct {
	CanonicalID string    `json:"uuid"`
	TS          time.Time `json:"ts"`
	RawKeys     []string  `json:"raw_keys"`
	StoredKeys  []string  `json:"stored_keys"`
	DroppedKeys []string  `json:"dropped_keys"`
}

// DeviceLink is one identity-map entry: canonical id to downstream device
// id and delivery token. Populated out of band; read-only for the pipeline.
type DeviceLink struct {
	CanonicalID string    `json:"uuid"`
	DeviceID    string    `json:"device_id"`
	AccessToken string    `json:"access_token"`
	UpdatedAt   time.Time `json:"updated_at"`
}
