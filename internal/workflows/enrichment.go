package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// EnrichmentInput is the input for the segment enrichment workflow.
type EnrichmentInput struct {
	SegmentID     string
	SpacingMeters float64
}

// EnrichmentResult summarises a finished enrichment run.
type EnrichmentResult struct {
	SegmentID           string
	Points              int
	ElevationGainMeters float64
	ElevationLossMeters float64
	Skipped             bool // segment was already enriched
}

// SegmentEnrichmentWorkflow loads a saved segment, resamples it densely,
// samples elevations for every new point and stores the refined profile.
// Segments that are already enriched are skipped so redelivered events are
// harmless.
func SegmentEnrichmentWorkflow(ctx workflow.Context, input EnrichmentInput) (*EnrichmentResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting segment enrichment", "segment", input.SegmentID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var seg domain.Segment
	if err := workflow.ExecuteActivity(ctx, "LoadSegment", input.SegmentID).Get(ctx, &seg); err != nil {
		return nil, err
	}
	if seg.Enriched {
		logger.Info("Segment already enriched", "segment", seg.ID)
		return &EnrichmentResult{SegmentID: seg.ID, Skipped: true}, nil
	}

	// Sampling hits the terrain tile source once per new tile.
	sampleCtx := workflow.WithStartToCloseTimeout(ctx, 5*time.Minute)
	var dense domain.DenseProfile
	if err := workflow.ExecuteActivity(sampleCtx, "DensifyAndSample", seg, input.SpacingMeters).Get(ctx, &dense); err != nil {
		return nil, err
	}

	if err := workflow.ExecuteActivity(ctx, "StoreDenseProfile", dense).Get(ctx, nil); err != nil {
		return nil, err
	}

	logger.Info("Segment enriched", "segment", seg.ID, "points", len(dense.Profile))
	return &EnrichmentResult{
		SegmentID:           seg.ID,
		Points:              len(dense.Profile),
		ElevationGainMeters: dense.ElevationGainMeters,
		ElevationLossMeters: dense.ElevationLossMeters,
	}, nil
}
