package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

type recordKey struct {
	canonicalID string
	ts          int64
}

// Memory is an in-process Store for tests and development. It mirrors the
// postgres implementation's semantics, including idempotent append and
// per-device atomic upsert.
type Memory struct {
	mu      sync.RWMutex
	records map[recordKey]*model.CanonicalRecord
	devices map[string]*model.DeviceState
	audits  []model.KeysAudit
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[recordKey]*model.CanonicalRecord),
		devices: make(map[string]*model.DeviceState),
	}
}

func (m *Memory) AppendRecord(ctx context.Context, rec *model.CanonicalRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{rec.CanonicalID, rec.TS.UnixMilli()}
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	clone := *rec
	m.records[key] = &clone
	return true, nil
}

func (m *Memory) UpsertDevice(ctx context.Context, upd model.DeviceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, exists := m.devices[upd.CanonicalID]
	if !exists {
		dev = &model.DeviceState{
			CanonicalID: upd.CanonicalID,
			FirstSeen:   upd.SeenTS,
		}
		m.devices[upd.CanonicalID] = dev
	}

	dev.LastSeenTS = upd.SeenTS
	if upd.SeenIP != "" {
		dev.LastSeenIP = upd.SeenIP
	}
	if upd.Alias != "" && !contains(dev.Aliases, upd.Alias) {
		dev.Aliases = append(dev.Aliases, upd.Alias)
		sort.Strings(dev.Aliases)
	}

	if upd.Real {
		if upd.RealTS != nil {
			ts := *upd.RealTS
			dev.LastRealTS = &ts
		}
		if upd.BatteryV != nil {
			v := *upd.BatteryV
			dev.BatteryV = &v
		}
		if upd.FWVersion != "" {
			dev.FWVersion = upd.FWVersion
		}
		if upd.CSQ != nil {
			c := *upd.CSQ
			dev.CSQ = &c
		}
	}
	return nil
}

func (m *Memory) RecordKeysAudit(ctx context.Context, audit model.KeysAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, audit)
	return nil
}

func (m *Memory) GetDevice(ctx context.Context, canonicalID string) (*model.DeviceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dev, exists := m.devices[canonicalID]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	clone := *dev
	clone.Aliases = append([]string(nil), dev.Aliases...)
	return &clone, nil
}

func (m *Memory) ListDevices(ctx context.Context) ([]*model.DeviceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.DeviceState, 0, len(m.devices))
	for _, dev := range m.devices {
		clone := *dev
		clone.Aliases = append([]string(nil), dev.Aliases...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalID < out[j].CanonicalID })
	return out, nil
}

func (m *Memory) LastCanonical(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time)
	for key, rec := range m.records {
		if rec.TS.Before(since) {
			continue
		}
		if cur, ok := out[key.canonicalID]; !ok || rec.TS.After(cur) {
			out[key.canonicalID] = rec.TS
		}
	}
	return out, nil
}

func (m *Memory) CountRecords(ctx context.Context, canonicalID string, since *time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for key, rec := range m.records {
		if key.canonicalID != canonicalID {
			continue
		}
		if since != nil && rec.TS.Before(*since) {
			continue
		}
		n++
	}
	return n, nil
}

// Audits returns a copy of the recorded key audits, oldest first.
func (m *Memory) Audits() []model.KeysAudit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.KeysAudit(nil), m.audits...)
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
