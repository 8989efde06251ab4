package usecases_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	polyline "github.com/twpayne/go-polyline"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/usecases"
)

var artxanda = []domain.GeoPoint{
	{Lat: 43.2600, Lon: -2.9300},
	{Lat: 43.2610, Lon: -2.9300},
	{Lat: 43.2620, Lon: -2.9300},
}

func segmentInput(t *testing.T, title string, pts []domain.GeoPoint) domain.SegmentInput {
	t.Helper()
	f, err := domain.NewLineStringFeature(pts)
	if err != nil {
		t.Fatalf("feature: %v", err)
	}
	return domain.SegmentInput{GeoJSON: f, Metadata: domain.SegmentMetadata{Title: title}}
}

func TestSegmentService_Save(t *testing.T) {
	var stored *domain.Segment
	repo := &mockSegmentRepo{
		createFn: func(ctx context.Context, seg *domain.Segment) error {
			seg.ID = "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"
			stored = seg
			return nil
		},
	}
	pub := &mockPublisher{}
	svc := usecases.NewSegmentService(repo, constElevation{meters: 100}, pub, nil)

	seg, err := svc.Save(context.Background(), segmentInput(t, " Artxanda ", artxanda))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil || stored != seg {
		t.Fatal("segment was not passed to the repository")
	}
	if seg.Title != "Artxanda" {
		t.Errorf("expected trimmed title, got %q", seg.Title)
	}
	if seg.ElevationGainMeters != 2 || seg.ElevationLossMeters != 0 {
		t.Errorf("gain/loss = %v/%v, want 2/0", seg.ElevationGainMeters, seg.ElevationLossMeters)
	}
	if len(seg.ElevationProfile) != 3 {
		t.Errorf("expected 3 profile points, got %d", len(seg.ElevationProfile))
	}
	if len(pub.saved) != 1 || pub.saved[0].ID != seg.ID {
		t.Errorf("expected one saved event, got %d", len(pub.saved))
	}

	coords, _, err := polyline.DecodeCoords([]byte(seg.Polyline))
	if err != nil {
		t.Fatalf("decode polyline: %v", err)
	}
	if len(coords) != 3 || math.Abs(coords[0][0]-43.26) > 1e-9 || math.Abs(coords[0][1]+2.93) > 1e-9 {
		t.Errorf("unexpected polyline coords %v", coords)
	}
}

func TestSegmentService_Save_PersistenceErrorSurfaced(t *testing.T) {
	calls := 0
	repo := &mockSegmentRepo{
		createFn: func(ctx context.Context, seg *domain.Segment) error {
			calls++
			return errors.New("connection refused")
		},
	}
	pub := &mockPublisher{}
	svc := usecases.NewSegmentService(repo, constElevation{}, pub, nil)

	_, err := svc.Save(context.Background(), segmentInput(t, "x", artxanda))
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls)
	}
	if len(pub.saved) != 0 {
		t.Error("no event must be published for a failed save")
	}
}

func TestSegmentService_Save_PublishFailureIsNotFatal(t *testing.T) {
	svc := usecases.NewSegmentService(&mockSegmentRepo{}, constElevation{}, &mockPublisher{err: errors.New("nats down")}, nil)

	if _, err := svc.Save(context.Background(), segmentInput(t, "x", artxanda)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSegmentService_Save_InvalidInput(t *testing.T) {
	svc := usecases.NewSegmentService(&mockSegmentRepo{}, constElevation{}, nil, nil)

	bad := domain.SegmentInput{GeoJSON: domain.LineStringFeature{Coordinates: artxanda[:1]}}
	if _, err := svc.Save(context.Background(), bad); !errors.Is(err, domain.ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry, got %v", err)
	}

	long := segmentInput(t, strings.Repeat("a", 201), artxanda)
	if _, err := svc.Save(context.Background(), long); !errors.Is(err, domain.ErrInvalidTitle) {
		t.Errorf("expected ErrInvalidTitle, got %v", err)
	}
}

func TestSegmentService_List_ClampsPage(t *testing.T) {
	repo := &mockSegmentRepo{
		listFn: func(ctx context.Context, bounds *domain.Bounds, offset, limit int) ([]domain.Segment, int, error) {
			if limit != 100 {
				t.Errorf("expected limit clamped to 100, got %d", limit)
			}
			if offset != 0 {
				t.Errorf("expected offset clamped to 0, got %d", offset)
			}
			return nil, 0, nil
		},
	}
	svc := usecases.NewSegmentService(repo, constElevation{}, nil, nil)
	_, _, _ = svc.List(context.Background(), nil, -5, 1000)
}

func TestSegmentService_GradeSegments(t *testing.T) {
	repo := &mockSegmentRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Segment, error) {
			return &domain.Segment{ID: id, ElevationProfile: []domain.ProfilePoint{
				{DistanceKm: 0, ElevationMeters: 0},
				{DistanceKm: 0.05, ElevationMeters: 5},
				{DistanceKm: 0.12, ElevationMeters: 15},
				{DistanceKm: 0.2, ElevationMeters: 15},
			}}, nil
		},
	}
	svc := usecases.NewSegmentService(repo, constElevation{}, nil, nil)

	segs, err := svc.GradeSegments(context.Background(), "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 grade segments, got %d", len(segs))
	}
	if segs[0].Bucket != domain.Bucket5 || segs[0].EndIndex != 2 {
		t.Errorf("unexpected first segment %+v", segs[0])
	}
	if segs[1].Bucket != domain.Bucket0 {
		t.Errorf("unexpected second segment %+v", segs[1])
	}
}

func TestSegmentService_GradeSegments_NotFound(t *testing.T) {
	svc := usecases.NewSegmentService(&mockSegmentRepo{}, constElevation{}, nil, nil)
	if _, err := svc.GradeSegments(context.Background(), "missing"); !errors.Is(err, domain.ErrSegmentNotFound) {
		t.Errorf("expected ErrSegmentNotFound, got %v", err)
	}
}

func TestSegmentService_Profile(t *testing.T) {
	svc := usecases.NewSegmentService(&mockSegmentRepo{}, constElevation{meters: 10}, nil, nil)

	res, err := svc.Profile(context.Background(), artxanda)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Samples) != 3 || len(res.Grades) != 3 {
		t.Fatalf("unexpected lengths: %d samples, %d grades", len(res.Samples), len(res.Grades))
	}
	if res.DistanceMeters < 200 || res.DistanceMeters > 250 {
		t.Errorf("distance = %v, want ~222", res.DistanceMeters)
	}
	if res.ElevationGainMeters != 2 {
		t.Errorf("gain = %v, want 2", res.ElevationGainMeters)
	}

	if _, err := svc.Profile(context.Background(), artxanda[:1]); !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Errorf("expected ErrInsufficientPoints, got %v", err)
	}
	if _, err := svc.Profile(context.Background(), []domain.GeoPoint{{Lat: 91}, {Lat: 0}}); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}
