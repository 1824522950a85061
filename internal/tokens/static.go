package tokens

import (
	"context"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// Static is a fixed identity map. Used with the memory store and in tests;
// an empty Static resolves nothing.
type Static map[string]model.DeviceLink

func (s Static) Resolve(ctx context.Context, canonicalID string) (*model.DeviceLink, error) {
	link, ok := s[canonicalID]
	if !ok {
		return nil, ErrNoMapping
	}
	return &link, nil
}
