package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/usecases"
)

// EnrichmentActivities holds the activity implementations for the enrichment workflow.
type EnrichmentActivities struct {
	Enrichment *usecases.EnrichmentService
}

// LoadSegment returns the stored segment. Unknown segments are not retried.
func (a *EnrichmentActivities) LoadSegment(ctx context.Context, segmentID string) (*domain.Segment, error) {
	seg, err := a.Enrichment.Load(ctx, segmentID)
	if errors.Is(err, domain.ErrSegmentNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "SegmentNotFound", err)
	}
	return seg, err
}

// DensifyAndSample builds the dense elevation profile of a segment.
func (a *EnrichmentActivities) DensifyAndSample(ctx context.Context, seg domain.Segment, spacingMeters float64) (*domain.DenseProfile, error) {
	activity.GetLogger(ctx).Info("Densifying segment", "segment", seg.ID, "points", len(seg.Coordinates), "spacing", spacingMeters)
	p, err := a.Enrichment.DensifyAndSample(ctx, &seg, spacingMeters)
	if errors.Is(err, domain.ErrInsufficientPoints) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InsufficientPoints", err)
	}
	return p, err
}

// StoreDenseProfile persists the dense profile and marks the segment enriched.
func (a *EnrichmentActivities) StoreDenseProfile(ctx context.Context, p domain.DenseProfile) error {
	err := a.Enrichment.Store(ctx, &p)
	if errors.Is(err, domain.ErrSegmentNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "SegmentNotFound", err)
	}
	return err
}
