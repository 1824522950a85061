package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns a Config with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "bridge-forward",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATS implements Queue on a NATS connection with a queue-group consumer,
// so multiple bridge instances share the forwarding load.
type NATS struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		cfg = DefaultNATSConfig()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATS{conn: conn}, nil
}

func (n *NATS) Publish(ctx context.Context, rec *model.CanonicalRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := n.conn.Publish(SubjectRecordsForward, data); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

func (n *NATS) Subscribe(handler Handler) error {
	sub, err := n.conn.QueueSubscribe(SubjectRecordsForward, QueueForwardWorkers, func(msg *nats.Msg) {
		var rec model.CanonicalRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			slog.Warn("Dropping undecodable forward message", slog.String("error", err.Error()))
			return
		}
		handler(context.Background(), &rec)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectRecordsForward, err)
	}
	n.sub = sub
	return nil
}

func (n *NATS) Close() {
	if n.sub != nil {
		n.sub.Unsubscribe()
	}
	if n.conn != nil {
		n.conn.Drain()
	}
}
