package queue

import (
	"context"
	"sync"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// Channel is the single-process Queue backend: a buffered channel drained
// by one worker goroutine. Used in development and tests, and whenever NATS
// is not configured.
type Channel struct {
	records chan *model.CanonicalRecord
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewChannel(depth int) *Channel {
	if depth <= 0 {
		depth = 10000
	}
	return &Channel{
		records: make(chan *model.CanonicalRecord, depth),
		done:    make(chan struct{}),
	}
}

func (c *Channel) Publish(ctx context.Context, rec *model.CanonicalRecord) error {
	select {
	case c.records <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Channel) Subscribe(handler Handler) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case rec := <-c.records:
				handler(context.Background(), rec)
			case <-c.done:
				// Drain what is already queued before stopping.
				for {
					select {
					case rec := <-c.records:
						handler(context.Background(), rec)
					default:
						return
					}
				}
			}
		}
	}()
	return nil
}

func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.wg.Wait()
}
