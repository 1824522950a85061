// Package service orchestrates the ingest pipeline: normalize, canonicalize,
// classify, audit, persist, enqueue for forwarding. Handlers stay thin; all
// pipeline decisions live here.
package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/classifier"
	"github.com/xerxes-systems/xerxes-bridge/internal/fault"
	"github.com/xerxes-systems/xerxes-bridge/internal/identity"
	"github.com/xerxes-systems/xerxes-bridge/internal/logging"
	"github.com/xerxes-systems/xerxes-bridge/internal/metrics"
	"github.com/xerxes-systems/xerxes-bridge/internal/model"
	"github.com/xerxes-systems/xerxes-bridge/internal/normalizer"
	"github.com/xerxes-systems/xerxes-bridge/internal/queue"
	"github.com/xerxes-systems/xerxes-bridge/internal/rawlog"
	"github.com/xerxes-systems/xerxes-bridge/internal/store"
)

// Outcome is how an accepted payload was handled.
type Outcome string

const (
	// OutcomeStored means a new canonical record was committed.
	OutcomeStored Outcome = "stored"
	// OutcomeDuplicate means the (uuid, ts) record already existed; the
	// write was a no-op and nothing was re-forwarded.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeAcceptedMeta means a meta-only payload updated device
	// bookkeeping without producing a measurement record.
	OutcomeAcceptedMeta Outcome = "accepted_meta"
	// OutcomeAcceptedSynthetic means an empty payload was acknowledged
	// with coarse bookkeeping only.
	OutcomeAcceptedSynthetic Outcome = "accepted_synthetic"
)

// Result reports what the pipeline did with one payload.
type Result struct {
	Outcome     Outcome
	CanonicalID string
	RawID       string
	TS          time.Time
	Class       classifier.Class
}

// Options are the ingest policy switches.
type Options struct {
	// AllowMetaOnly accepts payloads carrying metadata but no
	// measurements. When false they are rejected as unprocessable.
	AllowMetaOnly bool

	// RejectSynthetic rejects empty payloads instead of acknowledging
	// them. Rejected payloads leave no trace beyond the raw log.
	RejectSynthetic bool
}

// Bridge is the ingest pipeline.
type Bridge struct {
	store  store.Store
	raw    rawlog.Log
	queue  queue.Queue
	opts   Options
	logger *logging.Logger
}

func NewBridge(st store.Store, raw rawlog.Log, q queue.Queue, opts Options, logger *logging.Logger) *Bridge {
	if raw == nil {
		raw = rawlog.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{store: st, raw: raw, queue: q, opts: opts, logger: logger}
}

// Ingest runs one payload through the pipeline. Validation failures return
// a fault.ValidationError; storage failures a fault.StorageError. Everything
// accepted is committed before Ingest returns; forwarding happens later.
func (b *Bridge) Ingest(ctx context.Context, payload map[string]any, prov model.Provenance) (*Result, error) {
	if prov.ReceivedAt.IsZero() {
		prov.ReceivedAt = time.Now().UTC()
	}

	env, err := normalizer.Normalize(payload, prov.ReceivedAt)
	if err != nil {
		return nil, err
	}
	if env.Passthrough {
		metrics.NormalizationFallbacks.Inc()
		b.logger.WarnContext(ctx, "Normalization fell back to passthrough",
			logging.RawID(env.RawID),
			logging.IP(prov.SourceIP),
			logging.Origin(prov.Origin),
		)
	}

	canonicalID := identity.Canonicalize(env.RawID)
	class := classifier.Classify(env)
	ts := time.UnixMilli(env.TimestampMS).UTC()

	b.appendRawLog(ctx, canonicalID, env.RawID, ts, prov, payload)

	result := &Result{
		CanonicalID: canonicalID,
		RawID:       env.RawID,
		TS:          ts,
		Class:       class,
	}

	switch class {
	case classifier.Synthetic:
		if b.opts.RejectSynthetic {
			return nil, fault.Validation("payload carries neither measurements nor metadata")
		}
		if err := b.upsertDevice(ctx, canonicalID, env, prov, false, nil); err != nil {
			return nil, err
		}
		metrics.RecordsTotal.WithLabelValues(class.String()).Inc()
		result.Outcome = OutcomeAcceptedSynthetic
		return result, nil

	case classifier.MetaOnly:
		if !b.opts.AllowMetaOnly {
			return nil, fault.Validation("payload carries no measurements")
		}
		if err := b.upsertDevice(ctx, canonicalID, env, prov, true, nil); err != nil {
			return nil, err
		}
		metrics.RecordsTotal.WithLabelValues(class.String()).Inc()
		result.Outcome = OutcomeAcceptedMeta
		return result, nil
	}

	rec := &model.CanonicalRecord{
		CanonicalID:  canonicalID,
		TS:           ts,
		Measurements: env.Measurements,
		Meta:         env.Meta,
		Provenance:   prov,
	}

	start := time.Now()
	inserted, err := b.store.AppendRecord(ctx, rec)
	metrics.StorageDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.Inc()
		return nil, &fault.StorageError{Op: "append record", Err: err}
	}

	if err := b.recordAudit(ctx, canonicalID, ts, env); err != nil {
		// The audit trail is diagnostic; a failed audit write must not
		// unwind a committed record.
		b.logger.ErrorContext(ctx, "Keys audit write failed",
			logging.CanonicalID(canonicalID),
			logging.Error(err),
		)
	}

	if err := b.upsertDevice(ctx, canonicalID, env, prov, true, &ts); err != nil {
		return nil, err
	}

	metrics.RecordsTotal.WithLabelValues(class.String()).Inc()

	if inserted {
		result.Outcome = OutcomeStored
		if err := b.queue.Publish(ctx, rec); err != nil {
			if errors.Is(err, queue.ErrQueueFull) {
				b.logger.WarnContext(ctx, "Forward queue full, record committed but not forwarded",
					logging.CanonicalID(canonicalID),
				)
			} else {
				b.logger.ErrorContext(ctx, "Forward enqueue failed",
					logging.CanonicalID(canonicalID),
					logging.Error(err),
				)
			}
		}
	} else {
		result.Outcome = OutcomeDuplicate
	}
	return result, nil
}

func (b *Bridge) appendRawLog(ctx context.Context, canonicalID, rawID string, ts time.Time, prov model.Provenance, payload map[string]any) {
	doc := rawlog.Doc{
		CanonicalID: canonicalID,
		RawID:       rawID,
		TS:          ts,
		SourceIP:    prov.SourceIP,
		Origin:      prov.Origin,
		Body:        payload,
	}
	if err := b.raw.Append(ctx, doc); err != nil {
		metrics.RawLogErrors.Inc()
		b.logger.WarnContext(ctx, "Raw log append failed",
			logging.CanonicalID(canonicalID),
			logging.Error(err),
		)
	}
}

func (b *Bridge) upsertDevice(ctx context.Context, canonicalID string, env model.IngestEnvelope, prov model.Provenance, real bool, realTS *time.Time) error {
	upd := model.DeviceUpdate{
		CanonicalID: canonicalID,
		Alias:       env.RawID,
		SeenTS:      prov.ReceivedAt,
		SeenIP:      prov.SourceIP,
		Real:        real,
		RealTS:      realTS,
	}
	if real {
		health := model.HealthFromMeta(env.Meta)
		upd.BatteryV = health.BatteryV
		upd.FWVersion = health.FWVersion
		upd.CSQ = health.CSQ
	}
	if err := b.store.UpsertDevice(ctx, upd); err != nil {
		metrics.StorageErrors.Inc()
		return &fault.StorageError{Op: "upsert device", Err: err}
	}
	return nil
}

func (b *Bridge) recordAudit(ctx context.Context, canonicalID string, ts time.Time, env model.IngestEnvelope) error {
	stored := make([]string, 0, len(env.Measurements))
	for k := range env.Measurements {
		stored = append(stored, k)
	}
	sort.Strings(stored)

	rawKeys := append(append([]string(nil), stored...), env.DroppedKeys...)
	sort.Strings(rawKeys)

	return b.store.RecordKeysAudit(ctx, model.KeysAudit{
		CanonicalID: canonicalID,
		TS:          ts,
		RawKeys:     rawKeys,
		StoredKeys:  stored,
		DroppedKeys: env.DroppedKeys,
	})
}
