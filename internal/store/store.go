// Package store persists canonical measurement records and per-device state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

var ErrDeviceNotFound = errors.New("device not found")

// Store is the canonical storage port of the ingest pipeline. Implementations
// must make UpsertDevice atomic per canonical id: two concurrent ingests for
// the same device never lose an update.
type Store interface {
	// AppendRecord appends one canonical record. Records are keyed by
	// (canonical id, ts); re-appending the same key is a no-op and
	// reports inserted=false.
	AppendRecord(ctx context.Context, rec *model.CanonicalRecord) (inserted bool, err error)

	// UpsertDevice applies one per-ingest delta: create-on-first-sight,
	// last-writer-wins scalars, set-union aliases. Non-real updates must
	// not advance last_real_ts or the cached health attributes.
	UpsertDevice(ctx context.Context, upd model.DeviceUpdate) error

	// RecordKeysAudit stores the raw-vs-persisted key comparison for one
	// real write. Called unconditionally, even with no dropped keys.
	RecordKeysAudit(ctx context.Context, audit model.KeysAudit) error

	// GetDevice returns the state for one canonical id.
	GetDevice(ctx context.Context, canonicalID string) (*model.DeviceState, error)

	// ListDevices returns all known device states.
	ListDevices(ctx context.Context) ([]*model.DeviceState, error)

	// LastCanonical returns, per canonical id, the newest record timestamp
	// at or after since. Read-only; used by reconciliation.
	LastCanonical(ctx context.Context, since time.Time) (map[string]time.Time, error)

	// CountRecords counts records for a device, optionally bounded below.
	CountRecords(ctx context.Context, canonicalID string, since *time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close()
}
