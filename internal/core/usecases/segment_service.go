package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/core/profile"
	"github.com/gravelatlas/atlas/internal/pkg/geospatial"
	"github.com/gravelatlas/atlas/internal/pkg/metrics"
	"github.com/gravelatlas/atlas/internal/pkg/telemetry"
)

const (
	defaultSegmentPageSize = 20
	maxSegmentPageSize     = 100
	maxTitleLength         = 200
)

// SegmentService handles segment persistence and derived profiles.
type SegmentService struct {
	segments   ports.SegmentRepository
	elevations ports.ElevationSource
	events     ports.EventPublisher
	logger     *slog.Logger
}

// NewSegmentService creates a new SegmentService. events may be nil.
func NewSegmentService(segments ports.SegmentRepository, elevations ports.ElevationSource, events ports.EventPublisher, logger *slog.Logger) *SegmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SegmentService{segments: segments, elevations: elevations, events: events, logger: logger}
}

// ProfileResult is the stateless elevation analysis of a coordinate list.
type ProfileResult struct {
	Samples             []domain.ElevationSample `json:"samples"`
	Profile             []domain.ProfilePoint    `json:"profile"`
	Grades              []float64                `json:"grades"`
	GradeSegments       []domain.GradeSegment    `json:"grade_segments"`
	DistanceMeters      float64                  `json:"distance_meters"`
	ElevationGainMeters float64                  `json:"elevation_gain_meters"`
	ElevationLossMeters float64                  `json:"elevation_loss_meters"`
}

// Save samples elevations for a submitted line and persists the segment.
func (s *SegmentService) Save(ctx context.Context, in domain.SegmentInput) (*domain.Segment, error) {
	if err := in.GeoJSON.Validate(); err != nil {
		return nil, err
	}
	points := in.GeoJSON.Coordinates
	samples := s.elevations.SampleElevations(ctx, points)

	elevations := make([]float64, len(samples))
	for i, smp := range samples {
		elevations[i] = float64(smp.ElevationMeters)
	}
	finished, err := profile.Assemble(points, elevations, in.Metadata.Title)
	if err != nil {
		return nil, err
	}
	return s.SaveFinished(ctx, finished)
}

// SaveFinished persists an assembled segment. Storage failures are returned as
// *domain.PersistenceError and are not retried.
func (s *SegmentService) SaveFinished(ctx context.Context, fs domain.FinishedSegment) (*domain.Segment, error) {
	ctx, span := telemetry.Tracer("segments").Start(ctx, "SegmentService.SaveFinished")
	defer span.End()

	if len(fs.Coordinates) < 2 {
		return nil, fmt.Errorf("save segment: %w", domain.ErrInsufficientPoints)
	}
	title, err := normalizeTitle(fs.Title)
	if err != nil {
		return nil, err
	}

	seg := &domain.Segment{
		Title:               title,
		Coordinates:         fs.Coordinates,
		Polyline:            geospatial.EncodePolyline(fs.Coordinates),
		DistanceMeters:      fs.DistanceMeters,
		ElevationGainMeters: fs.ElevationGainMeters,
		ElevationLossMeters: fs.ElevationLossMeters,
		ElevationProfile:    fs.ElevationProfile,
	}
	if err := s.segments.Create(ctx, seg); err != nil {
		metrics.SegmentSaveErrors.Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.PersistenceError{Op: "create segment", Err: err}
	}
	metrics.SegmentsSaved.Inc()
	span.SetAttributes(attribute.String("segment.id", seg.ID), attribute.Int("points", len(seg.Coordinates)))

	if s.events != nil {
		if err := s.events.PublishSegmentSaved(ctx, seg); err != nil {
			s.logger.Warn("publish segment saved", "segment", seg.ID, "error", err)
		}
	}
	return seg, nil
}

// GetByID returns a stored segment.
func (s *SegmentService) GetByID(ctx context.Context, id string) (*domain.Segment, error) {
	return s.segments.GetByID(ctx, id)
}

// List returns a page of segments, optionally limited to bounds.
func (s *SegmentService) List(ctx context.Context, bounds *domain.Bounds, offset, limit int) ([]domain.Segment, int, error) {
	if limit <= 0 {
		limit = defaultSegmentPageSize
	}
	if limit > maxSegmentPageSize {
		limit = maxSegmentPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.segments.List(ctx, bounds, offset, limit)
}

// GradeSegments recomputes the colored grade runs of a stored segment.
func (s *SegmentService) GradeSegments(ctx context.Context, id string) ([]domain.GradeSegment, error) {
	seg, err := s.segments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return profile.Segments(seg.ElevationProfile), nil
}

// Profile samples and analyses an unsaved coordinate list.
func (s *SegmentService) Profile(ctx context.Context, points []domain.GeoPoint) (*ProfileResult, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("elevation profile: %w", domain.ErrInsufficientPoints)
	}
	for i, p := range points {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: point %d", domain.ErrInvalidCoordinate, i)
		}
	}

	samples := s.elevations.SampleElevations(ctx, points)
	prof := profile.FromSamples(samples)
	grades := profile.ComputeGrades(prof)
	gain, loss := profile.GainLoss(prof)

	return &ProfileResult{
		Samples:             samples,
		Profile:             prof,
		Grades:              grades,
		GradeSegments:       profile.GroupSegments(prof, grades),
		DistanceMeters:      prof[len(prof)-1].DistanceKm * 1000,
		ElevationGainMeters: gain,
		ElevationLossMeters: loss,
	}, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if len(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title longer than %d characters", domain.ErrInvalidTitle, maxTitleLength)
	}
	return title, nil
}
