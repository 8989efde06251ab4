package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

const (
	SubjectSegmentSaved    = "atlas.segments.saved"
	SubjectSegmentEnriched = "atlas.segments.enriched"
	SubjectSegmentsAll     = "atlas.segments.>"
	SubjectDrawAll         = "atlas.draw.>"
)

// DrawSubject is the core-NATS subject carrying render messages of one session.
func DrawSubject(session string) string {
	return "atlas.draw." + session + ".line"
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "ATLAS_SEGMENTS",
			Subjects:  []string{SubjectSegmentsAll},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishSegmentSaved(ctx context.Context, seg *domain.Segment) error {
	data, err := json.Marshal(seg)
	if err != nil {
		return err
	}
	// Msg ID lets JetStream drop duplicate publishes of the same save.
	_, err = p.js.Publish(SubjectSegmentSaved, data, nats.Context(ctx), nats.MsgId("saved-"+seg.ID))
	return err
}

func (p *Publisher) PublishSegmentEnriched(ctx context.Context, dp *domain.DenseProfile) error {
	data, err := json.Marshal(dp)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSegmentEnriched, data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for core-NATS publishers.
func (p *Publisher) Conn() *nats.Conn { return p.conn }

// Ping reports whether the connection is up.
func (p *Publisher) Ping() error {
	if p.conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats status %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection (publishers, WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
