// Package forwarder delivers committed canonical records to the downstream
// platform with bounded retry. It consumes the forward queue, so delivery
// pacing never touches the ingest request cycle.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xerxes-systems/xerxes-bridge/internal/fault"
	"github.com/xerxes-systems/xerxes-bridge/internal/logging"
	"github.com/xerxes-systems/xerxes-bridge/internal/metrics"
	"github.com/xerxes-systems/xerxes-bridge/internal/model"
	"github.com/xerxes-systems/xerxes-bridge/internal/tokens"
)

// Target is the delivery side of the downstream platform.
type Target interface {
	PostTelemetry(ctx context.Context, token string, ts int64, values map[string]float64) error
	PostAttributes(ctx context.Context, token string, attrs map[string]any) error
}

// Config bounds the retry loop.
type Config struct {
	// MaxAttempts is the total attempt budget per operation.
	MaxAttempts int
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration
}

// Forwarder pushes records at the downstream platform.
type Forwarder struct {
	target Target
	lookup tokens.Lookup
	cfg    Config
	logger *logging.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// sleepContext waits out one backoff delay, cut short by cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func New(target Target, lookup tokens.Lookup, cfg Config, logger *logging.Logger) *Forwarder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Forwarder{
		target: target,
		lookup: lookup,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Handle is the queue callback: forwards one record and records the outcome.
func (f *Forwarder) Handle(ctx context.Context, rec *model.CanonicalRecord) {
	start := time.Now()
	if err := f.Forward(ctx, rec); err != nil {
		f.logger.ErrorContext(ctx, "Forwarding failed",
			logging.CanonicalID(rec.CanonicalID),
			logging.Error(err),
		)
	}
	metrics.ForwardDuration.Observe(time.Since(start).Seconds())
}

// Forward delivers one record: telemetry first, then attributes. The two
// pushes are independent; a failed attribute push never invalidates a
// delivered telemetry frame.
func (f *Forwarder) Forward(ctx context.Context, rec *model.CanonicalRecord) error {
	link, err := f.lookup.Resolve(ctx, rec.CanonicalID)
	if err != nil {
		if errors.Is(err, tokens.ErrNoMapping) {
			metrics.ForwardOutcomes.WithLabelValues("skipped_no_token").Inc()
			f.logger.InfoContext(ctx, "No downstream mapping, skipping forward",
				logging.CanonicalID(rec.CanonicalID),
			)
			return nil
		}
		return fmt.Errorf("resolve downstream link: %w", err)
	}

	telemetry := Telemetry(rec)
	if len(telemetry) > 0 {
		err := f.deliver(ctx, func(ctx context.Context) error {
			return f.target.PostTelemetry(ctx, link.AccessToken, rec.TS.UnixMilli(), telemetry)
		})
		if err != nil {
			f.countFailure(err)
			return fmt.Errorf("push telemetry: %w", err)
		}
	}

	if attrs := Attributes(rec); len(attrs) > 0 {
		err := f.deliver(ctx, func(ctx context.Context) error {
			return f.target.PostAttributes(ctx, link.AccessToken, attrs)
		})
		if err != nil {
			f.countFailure(err)
			return fmt.Errorf("push attributes: %w", err)
		}
	}

	metrics.ForwardOutcomes.WithLabelValues("delivered").Inc()
	return nil
}

// deliver runs one operation under the retry policy: transient failures
// back off exponentially up to the attempt budget, terminal failures return
// immediately, and the final error is always surfaced.
func (f *Forwarder) deliver(ctx context.Context, op func(ctx context.Context) error) error {
	delay := f.cfg.RetryBase

	for attempt := 1; ; attempt++ {
		metrics.ForwardAttempts.Inc()
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !fault.IsTransient(err) {
			return err
		}
		if attempt >= f.cfg.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		f.logger.WarnContext(ctx, "Transient downstream failure, retrying",
			logging.Attempt(attempt),
			slog.Duration("backoff", delay),
			logging.Error(err),
		)

		if err := f.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
}

func (f *Forwarder) countFailure(err error) {
	if fault.IsTransient(err) {
		metrics.ForwardOutcomes.WithLabelValues("exhausted").Inc()
	} else {
		metrics.ForwardOutcomes.WithLabelValues("terminal").Inc()
	}
}
