package usecases_test

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/gravelatlas/atlas/internal/core/domain"
)

// --- Mock TileSource ---

type mockTileSource struct {
	tileFn func(ctx context.Context, addr domain.TileAddress) (image.Image, error)

	mu    sync.Mutex
	calls map[domain.TileAddress]int
}

func (m *mockTileSource) Tile(ctx context.Context, addr domain.TileAddress) (image.Image, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[domain.TileAddress]int)
	}
	m.calls[addr]++
	m.mu.Unlock()

	if m.tileFn != nil {
		return m.tileFn(ctx, addr)
	}
	return terrainTile(0), nil
}

func (m *mockTileSource) callCount(addr domain.TileAddress) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[addr]
}

// terrainTile returns a 256px tile whose every pixel encodes meters.
func terrainTile(meters float64) image.Image {
	v := int((meters + 10000) * 10)
	c := color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// --- Mock SegmentRepository ---

type mockSegmentRepo struct {
	createFn           func(ctx context.Context, seg *domain.Segment) error
	getByIDFn          func(ctx context.Context, id string) (*domain.Segment, error)
	listFn             func(ctx context.Context, bounds *domain.Bounds, offset, limit int) ([]domain.Segment, int, error)
	saveDenseProfileFn func(ctx context.Context, p *domain.DenseProfile) error
}

func (m *mockSegmentRepo) Create(ctx context.Context, seg *domain.Segment) error {
	if m.createFn != nil {
		return m.createFn(ctx, seg)
	}
	seg.ID = "seg-1"
	return nil
}

func (m *mockSegmentRepo) GetByID(ctx context.Context, id string) (*domain.Segment, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrSegmentNotFound
}

func (m *mockSegmentRepo) List(ctx context.Context, bounds *domain.Bounds, offset, limit int) ([]domain.Segment, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, bounds, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockSegmentRepo) SaveDenseProfile(ctx context.Context, p *domain.DenseProfile) error {
	if m.saveDenseProfileFn != nil {
		return m.saveDenseProfileFn(ctx, p)
	}
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	saved    []*domain.Segment
	enriched []*domain.DenseProfile
	err      error
}

func (m *mockPublisher) PublishSegmentSaved(ctx context.Context, seg *domain.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, seg)
	return m.err
}

func (m *mockPublisher) PublishSegmentEnriched(ctx context.Context, p *domain.DenseProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enriched = append(m.enriched, p)
	return m.err
}

// --- Stub ElevationSource ---

type constElevation struct{ meters int }

func (c constElevation) SampleElevations(ctx context.Context, points []domain.GeoPoint) []domain.ElevationSample {
	out := make([]domain.ElevationSample, len(points))
	for i, p := range points {
		out[i] = domain.ElevationSample{Point: p, ElevationMeters: c.meters + i}
	}
	return out
}
