package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/core/profile"
	"github.com/gravelatlas/atlas/internal/pkg/geospatial"
	"github.com/gravelatlas/atlas/internal/pkg/metrics"
)

// maxDensePoints caps resampling of very long segments.
const maxDensePoints = 20000

// EnrichmentService refines stored segments with a densely resampled profile.
type EnrichmentService struct {
	segments   ports.SegmentRepository
	elevations ports.ElevationSource
	events     ports.EventPublisher
	logger     *slog.Logger
}

// NewEnrichmentService creates a new EnrichmentService. events may be nil.
func NewEnrichmentService(segments ports.SegmentRepository, elevations ports.ElevationSource, events ports.EventPublisher, logger *slog.Logger) *EnrichmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichmentService{segments: segments, elevations: elevations, events: events, logger: logger}
}

// Load returns the segment to enrich.
func (s *EnrichmentService) Load(ctx context.Context, id string) (*domain.Segment, error) {
	seg, err := s.segments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load segment %s: %w", id, err)
	}
	return seg, nil
}

// DensifyAndSample resamples the line every spacingMeters and samples each
// new point. Spacing is widened when the result would exceed maxDensePoints.
func (s *EnrichmentService) DensifyAndSample(ctx context.Context, seg *domain.Segment, spacingMeters float64) (*domain.DenseProfile, error) {
	if len(seg.Coordinates) < 2 {
		return nil, fmt.Errorf("densify segment %s: %w", seg.ID, domain.ErrInsufficientPoints)
	}
	if spacingMeters <= 0 {
		return nil, fmt.Errorf("densify segment %s: spacing must be positive, got %v", seg.ID, spacingMeters)
	}
	if length := geospatial.PathLength(seg.Coordinates); length/spacingMeters > maxDensePoints {
		spacingMeters = length / maxDensePoints
	}

	dense := geospatial.Densify(seg.Coordinates, spacingMeters)
	prof := profile.FromSamples(s.elevations.SampleElevations(ctx, dense))
	gain, loss := profile.GainLoss(prof)

	return &domain.DenseProfile{
		SegmentID:           seg.ID,
		SpacingMeters:       spacingMeters,
		ElevationGainMeters: gain,
		ElevationLossMeters: loss,
		Profile:             prof,
	}, nil
}

// Store persists a dense profile and announces it.
func (s *EnrichmentService) Store(ctx context.Context, p *domain.DenseProfile) error {
	if err := s.segments.SaveDenseProfile(ctx, p); err != nil {
		return &domain.PersistenceError{Op: "save dense profile", Err: err}
	}
	metrics.SegmentsEnriched.Inc()

	if s.events != nil {
		if err := s.events.PublishSegmentEnriched(ctx, p); err != nil {
			s.logger.Warn("publish segment enriched", "segment", p.SegmentID, "error", err)
		}
	}
	return nil
}
