// Package tokens resolves canonical device ids to downstream delivery
// credentials. The map itself is maintained out of band (bridgectl tokens);
// the ingest pipeline only ever reads it.
package tokens

import (
	"context"
	"errors"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// ErrNoMapping reports a device with no downstream linkage. Not an ingest
// failure: forwarding is skipped and the outcome reported.
var ErrNoMapping = errors.New("no downstream mapping for device")

// Lookup resolves canonical id to downstream linkage.
type Lookup interface {
	Resolve(ctx context.Context, canonicalID string) (*model.DeviceLink, error)
}
