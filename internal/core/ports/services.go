package ports

import (
	"context"
	"errors"
	"image"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// TileSource fetches decoded terrain raster tiles.
type TileSource interface {
	Tile(ctx context.Context, addr domain.TileAddress) (image.Image, error)
}

// ElevationSource resolves elevations for an ordered batch of points.
// The result has the same length and order as points; failed samples are 0.
type ElevationSource interface {
	SampleElevations(ctx context.Context, points []domain.GeoPoint) []domain.ElevationSample
}

// RoadSnapper moves a point onto the nearest known road.
type RoadSnapper interface {
	Snap(ctx context.Context, p domain.GeoPoint) (domain.GeoPoint, error)
}

// LineRenderer draws and removes line layers on the client map.
type LineRenderer interface {
	RenderLine(ctx context.Context, layerID string, coords []domain.GeoPoint) error
	RemoveLine(ctx context.Context, layerID string) error
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishSegmentSaved(ctx context.Context, seg *domain.Segment) error
	PublishSegmentEnriched(ctx context.Context, p *domain.DenseProfile) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeSegmentSaved(ctx context.Context, handler func(ctx context.Context, seg *domain.Segment) error) error
}

// ErrCacheMiss is returned by CacheService.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// EnrichmentStarter kicks off background enrichment of a stored segment.
type EnrichmentStarter interface {
	StartEnrichment(ctx context.Context, segmentID string) error
}
