package usecases

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/pkg/metrics"
	"github.com/gravelatlas/atlas/internal/pkg/telemetry"
	"github.com/gravelatlas/atlas/internal/pkg/tilemath"
)

var errPixelOutOfBounds = errors.New("pixel outside tile image")

// ElevationSampler resolves point elevations from terrain-RGB tiles.
type ElevationSampler struct {
	tiles       ports.TileSource
	zoom        int
	concurrency int
	logger      *slog.Logger
}

// NewElevationSampler creates a sampler reading tiles at zoom with at most
// concurrency fetches in flight per batch.
func NewElevationSampler(tiles ports.TileSource, zoom, concurrency int, logger *slog.Logger) *ElevationSampler {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevationSampler{tiles: tiles, zoom: zoom, concurrency: concurrency, logger: logger}
}

// SampleElevations samples every point concurrently. The result has the same
// length and order as points. A failed point gets elevation 0 and never
// affects the others.
func (s *ElevationSampler) SampleElevations(ctx context.Context, points []domain.GeoPoint) []domain.ElevationSample {
	ctx, span := telemetry.Tracer("elevation").Start(ctx, "ElevationSampler.SampleElevations")
	defer span.End()
	span.SetAttributes(attribute.Int("points", len(points)))

	out := make([]domain.ElevationSample, len(points))
	memo := newTileMemo(s.tiles)

	var (
		mu     sync.Mutex
		failed int
		g      errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for i, p := range points {
		i, p := i, p
		out[i].Point = p
		g.Go(func() error {
			ele, err := s.sample(ctx, memo, p)
			if err != nil {
				sampleErr := &domain.ElevationSampleError{Index: i, Point: p, Err: err}
				s.logger.Warn("elevation sample failed", "error", sampleErr)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			out[i].ElevationMeters = ele
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d samples failed", failed, len(points)))
	}
	span.SetAttributes(attribute.Int("failed", failed))
	return out
}

// Sample resolves a single point. Unlike SampleElevations it reports failures.
func (s *ElevationSampler) Sample(ctx context.Context, p domain.GeoPoint) (int, error) {
	return s.sample(ctx, newTileMemo(s.tiles), p)
}

func (s *ElevationSampler) sample(ctx context.Context, memo *tileMemo, p domain.GeoPoint) (ele int, err error) {
	start := time.Now()
	defer func() {
		metrics.ElevationSampleDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ElevationSamples.WithLabelValues("failed").Inc()
			return
		}
		metrics.ElevationSamples.WithLabelValues("ok").Inc()
	}()

	if !p.Valid() {
		return 0, domain.ErrInvalidCoordinate
	}

	addr := tilemath.PointToTile(p, s.zoom)
	img, err := memo.get(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("tile %d/%d/%d: %w", addr.Z, addr.X, addr.Y, err)
	}

	r, g, b, err := pixelAt(img, tilemath.PointToPixel(p, s.zoom))
	if err != nil {
		return 0, err
	}
	meters := tilemath.DecodeElevation(r, g, b)
	if math.IsNaN(meters) || math.IsInf(meters, 0) {
		return 0, fmt.Errorf("decoded elevation %v", meters)
	}
	return int(math.Round(meters)), nil
}

// pixelAt reads the 8-bit RGB triple at off. Tiles rendered at a higher
// density than tilemath.TileSize (e.g. 512px retina tiles) are scaled.
func pixelAt(img image.Image, off domain.PixelOffset) (r, g, b uint8, err error) {
	bounds := img.Bounds()
	x := bounds.Min.X + off.X*bounds.Dx()/tilemath.TileSize
	y := bounds.Min.Y + off.Y*bounds.Dy()/tilemath.TileSize
	if !(image.Point{X: x, Y: y}).In(bounds) {
		return 0, 0, 0, fmt.Errorf("%w: (%d,%d) not in %v", errPixelOutOfBounds, x, y, bounds)
	}
	r32, g32, b32, _ := img.At(x, y).RGBA()
	return uint8(r32 >> 8), uint8(g32 >> 8), uint8(b32 >> 8), nil
}

// tileMemo deduplicates tile fetches within one batch; neighbouring points at
// terrain zoom usually share a tile.
type tileMemo struct {
	src ports.TileSource

	mu      sync.Mutex
	entries map[domain.TileAddress]*tileEntry
}

type tileEntry struct {
	once sync.Once
	img  image.Image
	err  error
}

func newTileMemo(src ports.TileSource) *tileMemo {
	return &tileMemo{src: src, entries: make(map[domain.TileAddress]*tileEntry)}
}

func (m *tileMemo) get(ctx context.Context, addr domain.TileAddress) (image.Image, error) {
	m.mu.Lock()
	e, ok := m.entries[addr]
	if !ok {
		e = &tileEntry{}
		m.entries[addr] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.img, e.err = m.src.Tile(ctx, addr)
	})
	return e.img, e.err
}
