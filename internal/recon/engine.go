package recon

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/logging"
	"github.com/xerxes-systems/xerxes-bridge/internal/metrics"
)

// RawSource reports, per canonical id, the newest raw payload seen since
// the given cutoff.
type RawSource interface {
	LastSeen(ctx context.Context, since time.Time) (map[string]time.Time, error)
}

// CanonicalSource reports, per canonical id, the newest committed record
// since the given cutoff.
type CanonicalSource interface {
	LastCanonical(ctx context.Context, since time.Time) (map[string]time.Time, error)
}

// Platform is the downstream view: device name resolution plus the newest
// telemetry timestamp the platform holds.
type Platform interface {
	LookupDeviceID(ctx context.Context, name string) (string, error)
	LastTelemetry(ctx context.Context, deviceID string) (*time.Time, error)
}

// Config bounds a reconciliation run.
type Config struct {
	// Lookback is how far back the raw and canonical sources are scanned.
	Lookback time.Duration

	// Workers caps concurrent downstream lookups.
	Workers int

	Thresholds Thresholds
}

// Entry is one device's line in a reconciliation report.
type Entry struct {
	CanonicalID  string     `json:"uuid"`
	State        State      `json:"-"`
	StateName    string     `json:"state"`
	RawTS        *time.Time `json:"raw_ts,omitempty"`
	CanonicalTS  *time.Time `json:"canonical_ts,omitempty"`
	DownstreamTS *time.Time `json:"downstream_ts,omitempty"`
	DeviceID     string     `json:"device_id,omitempty"`

	// Detail carries the source error for UNKNOWN entries.
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of one reconciliation run, worst devices first.
type Report struct {
	RanAt    time.Time     `json:"ran_at"`
	Lookback time.Duration `json:"lookback"`
	Entries  []Entry       `json:"entries"`
	Counts   map[string]int `json:"counts"`
}

// Engine joins the three sources into per-device verdicts.
type Engine struct {
	raw       RawSource
	canonical CanonicalSource
	platform  Platform
	cfg       Config
	logger    *logging.Logger
}

func NewEngine(raw RawSource, canonical CanonicalSource, platform Platform, cfg Config, logger *logging.Logger) *Engine {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 3 * time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Thresholds.OKWindow <= 0 || cfg.Thresholds.DelayedAfter <= 0 {
		cfg.Thresholds = DefaultThresholds()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{raw: raw, canonical: canonical, platform: platform, cfg: cfg, logger: logger}
}

// Run scans all three sources and classifies every device seen by any of
// them. A per-device downstream failure degrades that device to UNKNOWN;
// only a failure of the raw or canonical scan aborts the run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	since := start.Add(-e.cfg.Lookback)

	rawSeen, err := e.raw.LastSeen(ctx, since)
	if err != nil {
		return nil, err
	}
	canonicalSeen, err := e.canonical.LastCanonical(ctx, since)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rawSeen)+len(canonicalSeen))
	seen := make(map[string]struct{}, len(rawSeen)+len(canonicalSeen))
	for id := range rawSeen {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range canonicalSeen {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	entries := make([]Entry, len(ids))
	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			entries[i] = e.inspect(ctx, id, rawSeen, canonicalSeen)
		}(i, id)
	}
	wg.Wait()

	sort.Slice(entries, func(a, b int) bool {
		sa, sb := entries[a].State.Severity(), entries[b].State.Severity()
		if sa != sb {
			return sa > sb
		}
		return entries[a].CanonicalID < entries[b].CanonicalID
	})

	counts := make(map[string]int)
	for _, entry := range entries {
		counts[entry.StateName]++
		metrics.ReconDevices.WithLabelValues(entry.StateName).Inc()
	}
	metrics.ReconRunDuration.Observe(time.Since(start).Seconds())

	return &Report{
		RanAt:    start,
		Lookback: e.cfg.Lookback,
		Entries:  entries,
		Counts:   counts,
	}, nil
}

func (e *Engine) inspect(ctx context.Context, id string, rawSeen, canonicalSeen map[string]time.Time) Entry {
	entry := Entry{CanonicalID: id}
	if ts, ok := rawSeen[id]; ok {
		t := ts
		entry.RawTS = &t
	}
	if ts, ok := canonicalSeen[id]; ok {
		t := ts
		entry.CanonicalTS = &t
	}

	// The downstream platform is only consulted for devices the bridge
	// committed data for; without a canonical trace its answer cannot
	// change the verdict.
	if entry.CanonicalTS != nil {
		deviceID, err := e.platform.LookupDeviceID(ctx, id)
		if err != nil {
			return e.unknown(ctx, entry, err)
		}
		if deviceID != "" {
			entry.DeviceID = deviceID
			last, err := e.platform.LastTelemetry(ctx, deviceID)
			if err != nil {
				return e.unknown(ctx, entry, err)
			}
			entry.DownstreamTS = last
		}
	}

	entry.State = Classify(entry.RawTS, entry.CanonicalTS, entry.DownstreamTS, e.cfg.Thresholds)
	entry.StateName = entry.State.String()
	return entry
}

func (e *Engine) unknown(ctx context.Context, entry Entry, err error) Entry {
	entry.State = StateUnknown
	entry.StateName = entry.State.String()
	entry.Detail = err.Error()
	e.logger.WarnContext(ctx, "Downstream lookup failed during reconciliation",
		logging.CanonicalID(entry.CanonicalID),
		logging.DeviceID(entry.DeviceID),
		logging.State(entry.StateName),
		logging.Error(err),
	)
	return entry
}
