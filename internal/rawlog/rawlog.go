// Package rawlog keeps the raw inbound request audit trail. Appends are
// best-effort: a raw log failure never blocks or fails the ingest path.
// Reconciliation reads it back as the "what reached the bridge" source.
package rawlog

import (
	"context"
	"time"
)

// Doc is one raw inbound request as received, before normalization.
type Doc struct {
	CanonicalID string            `json:"uuid"`
	RawID       string            `json:"raw_uuid"`
	TS          time.Time         `json:"ts"`
	SourceIP    string            `json:"ip"`
	Origin      string            `json:"origin"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        map[string]any    `json:"body,omitempty"`
}

// Log is the raw-log port.
type Log interface {
	// Append stores one raw request document.
	Append(ctx context.Context, doc Doc) error

	// LastSeen returns, per canonical id, the newest raw document
	// timestamp at or after since.
	LastSeen(ctx context.Context, since time.Time) (map[string]time.Time, error)
}

// Nop is used when the raw log is disabled; reconciliation then sees an
// empty raw source.
type Nop struct{}

func (Nop) Append(ctx context.Context, doc Doc) error { return nil }

func (Nop) LastSeen(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	return map[string]time.Time{}, nil
}
