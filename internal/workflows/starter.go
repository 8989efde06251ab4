package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/ports"
)

// EnrichmentWorkflowID is the workflow ID used for a segment. One ID per
// segment makes redelivered saved events attach to the running workflow.
func EnrichmentWorkflowID(segmentID string) string {
	return "enrich-" + segmentID
}

var _ ports.EnrichmentStarter = (*Starter)(nil)

// Starter implements ports.EnrichmentStarter on a Temporal client.
type Starter struct {
	client        client.Client
	taskQueue     string
	spacingMeters float64
	logger        *slog.Logger
}

// NewStarter creates a Starter that schedules work on taskQueue.
func NewStarter(c client.Client, taskQueue string, spacingMeters float64, logger *slog.Logger) *Starter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Starter{client: c, taskQueue: taskQueue, spacingMeters: spacingMeters, logger: logger}
}

// StartEnrichment schedules SegmentEnrichmentWorkflow for a segment.
func (s *Starter) StartEnrichment(ctx context.Context, segmentID string) error {
	opts := client.StartWorkflowOptions{
		ID:        EnrichmentWorkflowID(segmentID),
		TaskQueue: s.taskQueue,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, SegmentEnrichmentWorkflow, EnrichmentInput{
		SegmentID:     segmentID,
		SpacingMeters: s.spacingMeters,
	})
	if err != nil {
		return fmt.Errorf("start enrichment %s: %w", segmentID, err)
	}
	s.logger.Info("enrichment scheduled", "segment", segmentID, "workflow", run.GetID(), "run", run.GetRunID())
	return nil
}

// EnrichOnSave starts an enrichment for every saved-segment event. A failed
// start is returned to the subscriber so the event is redelivered.
func EnrichOnSave(ctx context.Context, events ports.EventSubscriber, starter ports.EnrichmentStarter) error {
	return events.SubscribeSegmentSaved(ctx, func(ctx context.Context, seg *domain.Segment) error {
		if seg.Enriched {
			return nil
		}
		return starter.StartEnrichment(ctx, seg.ID)
	})
}
