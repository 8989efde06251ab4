package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/ports"
)

var _ ports.EventSubscriber = (*Subscriber)(nil)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeSegmentSaved delivers each saved segment to handler. Handler
// errors are redelivered up to three times; undecodable messages are dropped.
func (s *Subscriber) SubscribeSegmentSaved(ctx context.Context, handler func(ctx context.Context, seg *domain.Segment) error) error {
	sub, err := s.js.Subscribe(SubjectSegmentSaved, func(msg *nats.Msg) {
		var seg domain.Segment
		if err := json.Unmarshal(msg.Data, &seg); err != nil {
			slog.Warn("drop undecodable segment event", "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &seg); err != nil {
			slog.Warn("segment event handler failed", "segment", seg.ID, "error", err)
			_ = msg.NakWithDelay(5 * time.Second)
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("segment-enricher"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
