// Package queue decouples the ingest commit from downstream forwarding.
// The ingest side publishes committed records; forward workers consume them
// with their own pacing and retry budget, so slow deliveries never delay an
// ingest acknowledgment.
package queue

import (
	"context"
	"errors"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// Subject and queue-group names, pattern: {domain}.{action}.{resource}.
const (
	// SubjectRecordsForward carries committed canonical records awaiting
	// downstream delivery.
	SubjectRecordsForward = "bridge.records.forward"

	// QueueForwardWorkers load-balances forward workers; each record is
	// processed by one worker.
	QueueForwardWorkers = "forward-workers"
)

// ErrQueueFull reports a full in-process queue; the record is dropped from
// forwarding (reconciliation will surface it as NO_DOWNSTREAM).
var ErrQueueFull = errors.New("forward queue full")

// Handler processes one dequeued record.
type Handler func(ctx context.Context, rec *model.CanonicalRecord)

// Queue is the forwarding transport port.
type Queue interface {
	// Publish enqueues a committed record for forwarding. Must not block.
	Publish(ctx context.Context, rec *model.CanonicalRecord) error

	// Subscribe registers the worker callback. Returns after the
	// subscription is active; delivery happens on background goroutines.
	Subscribe(handler Handler) error

	Close()
}
