package ports

import (
	"context"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// SegmentRepository persists segments.
type SegmentRepository interface {
	// Create stores seg and fills in its ID and timestamps.
	Create(ctx context.Context, seg *domain.Segment) error
	GetByID(ctx context.Context, id string) (*domain.Segment, error)
	// List returns one page of segments intersecting bounds (nil = everywhere) and the total count.
	List(ctx context.Context, bounds *domain.Bounds, offset, limit int) ([]domain.Segment, int, error)
	// SaveDenseProfile stores the refined profile and marks the segment enriched.
	SaveDenseProfile(ctx context.Context, p *domain.DenseProfile) error
}
