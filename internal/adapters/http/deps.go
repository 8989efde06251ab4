package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/gravelatlas/atlas/internal/core/usecases"
)

// Pinger is a backing service that can report its connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Draw     *usecases.DrawService
	Segments *usecases.SegmentService
	NATS     *nats.Conn
	DB       Pinger
	Cache    Pinger

	// OpenAPIPath locates the document served at /docs (default api/openapi.yaml).
	OpenAPIPath string
}
