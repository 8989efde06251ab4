package drawing_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/drawing"
	"github.com/gravelatlas/atlas/internal/core/profile"
)

// --- test doubles ---

type elevationFunc func(ctx context.Context, p domain.GeoPoint) int

func (f elevationFunc) SampleElevations(ctx context.Context, points []domain.GeoPoint) []domain.ElevationSample {
	out := make([]domain.ElevationSample, len(points))
	for i, p := range points {
		out[i] = domain.ElevationSample{Point: p, ElevationMeters: f(ctx, p)}
	}
	return out
}

func latElevation(ctx context.Context, p domain.GeoPoint) int {
	return int(math.Round(p.Lat*1000)) % 700
}

type snapFunc func(ctx context.Context, p domain.GeoPoint) (domain.GeoPoint, error)

func (f snapFunc) Snap(ctx context.Context, p domain.GeoPoint) (domain.GeoPoint, error) {
	return f(ctx, p)
}

type renderEvent struct {
	op     string
	layer  string
	points int
}

type recordingRenderer struct {
	mu     sync.Mutex
	events []renderEvent
}

func (r *recordingRenderer) RenderLine(ctx context.Context, layerID string, coords []domain.GeoPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, renderEvent{op: "render", layer: layerID, points: len(coords)})
	return nil
}

func (r *recordingRenderer) RemoveLine(ctx context.Context, layerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, renderEvent{op: "remove", layer: layerID})
	return nil
}

func (r *recordingRenderer) all() []renderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderEvent(nil), r.events...)
}

var (
	ptA = domain.GeoPoint{Lat: 43.2600, Lon: -2.9300}
	ptB = domain.GeoPoint{Lat: 43.2610, Lon: -2.9300}
	ptC = domain.GeoPoint{Lat: 43.2620, Lon: -2.9300}
)

func newSession(t *testing.T, opts drawing.Options) *drawing.Session {
	t.Helper()
	if opts.ID == "" {
		opts.ID = "s1"
	}
	if opts.Elevations == nil {
		opts.Elevations = elevationFunc(latElevation)
	}
	s := drawing.New(opts)
	t.Cleanup(s.Close)
	require.NoError(t, s.Start())
	return s
}

func settle(t *testing.T, s *drawing.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Settle(ctx))
}

// --- tests ---

func TestSession_FinishWithOnePointClears(t *testing.T) {
	r := &recordingRenderer{}
	s := newSession(t, drawing.Options{Renderer: r})

	_, err := s.Click(context.Background(), ptA)
	require.NoError(t, err)

	seg, err := s.Finish("lonely")
	assert.Nil(t, seg)
	assert.True(t, errors.Is(err, domain.ErrInsufficientPoints))

	snap := s.Snapshot()
	assert.Equal(t, "idle", snap.State)
	assert.Empty(t, snap.Points)
	assert.Empty(t, snap.LayerID)

	events := r.all()
	require.NotEmpty(t, events)
	assert.Equal(t, "remove", events[len(events)-1].op)
}

func TestSession_UndoThenFinish(t *testing.T) {
	s := newSession(t, drawing.Options{})
	ctx := context.Background()

	for _, p := range []domain.GeoPoint{ptA, ptB, ptC} {
		_, err := s.Click(ctx, p)
		require.NoError(t, err)
	}
	require.NoError(t, s.UndoLastPoint())
	settle(t, s)

	seg, err := s.Finish("  Artxanda  ")
	require.NoError(t, err)
	require.NotNil(t, seg)
	assert.Equal(t, []domain.GeoPoint{ptA, ptB}, seg.Coordinates)
	assert.Equal(t, "Artxanda", seg.Title)
	assert.Greater(t, seg.DistanceMeters, 100.0)
	assert.Equal(t, drawing.Idle, s.State())
}

func TestSession_FinishUsesResolvedElevations(t *testing.T) {
	s := newSession(t, drawing.Options{})
	for _, p := range []domain.GeoPoint{ptA, ptB, ptC} {
		_, err := s.Click(context.Background(), p)
		require.NoError(t, err)
	}
	settle(t, s)

	seg, err := s.Finish("climb")
	require.NoError(t, err)
	// 43260 % 700 = 560, 43261 % 700 = 561, 43262 % 700 = 562
	assert.Equal(t, 2.0, seg.ElevationGainMeters)
	assert.Equal(t, 0.0, seg.ElevationLossMeters)
	assert.Equal(t, 560.0, seg.ElevationProfile[0].ElevationMeters)
}

func TestSession_CancellationOnClear(t *testing.T) {
	gate := make(chan struct{})
	source := elevationFunc(func(ctx context.Context, p domain.GeoPoint) int {
		if p == ptA {
			<-gate
			return 999
		}
		return 100
	})
	s := newSession(t, drawing.Options{Elevations: source})
	ctx := context.Background()

	_, err := s.Click(ctx, ptA)
	require.NoError(t, err)
	genBefore := s.Generation()

	s.Clear()
	assert.Greater(t, s.Generation(), genBefore)

	require.NoError(t, s.Start())
	_, err = s.Click(ctx, ptB)
	require.NoError(t, err)

	close(gate)
	settle(t, s)

	snap := s.Snapshot()
	require.Equal(t, []domain.GeoPoint{ptB}, snap.Points)
	assert.Equal(t, []int{100}, snap.Elevations, "stale sample for the cleared point must be dropped")
	assert.Zero(t, snap.Unresolved)
}

func TestSession_UndoDropsInFlightSample(t *testing.T) {
	gate := make(chan struct{})
	source := elevationFunc(func(ctx context.Context, p domain.GeoPoint) int {
		<-gate
		return 42
	})
	s := newSession(t, drawing.Options{Elevations: source})

	_, err := s.Click(context.Background(), ptA)
	require.NoError(t, err)
	require.NoError(t, s.UndoLastPoint())
	_, err = s.Click(context.Background(), ptB)
	require.NoError(t, err)

	close(gate)
	settle(t, s)

	snap := s.Snapshot()
	assert.Equal(t, []domain.GeoPoint{ptB}, snap.Points)
	assert.Equal(t, []int{42}, snap.Elevations)
}

func TestSession_ClickDoesNotBlockOnSampling(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	source := elevationFunc(func(ctx context.Context, p domain.GeoPoint) int {
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return 0
	})
	s := newSession(t, drawing.Options{Elevations: source})

	for _, p := range []domain.GeoPoint{ptA, ptB, ptC} {
		_, err := s.Click(context.Background(), p)
		require.NoError(t, err)
	}
	require.NoError(t, s.UndoLastPoint())

	snap := s.Snapshot()
	assert.Len(t, snap.Points, 2)
	assert.Equal(t, 2, snap.Unresolved)
	assert.Equal(t, 3, snap.Pending)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Settle(ctx), context.DeadlineExceeded)
}

func TestSession_SnapToRoad(t *testing.T) {
	road := domain.GeoPoint{Lat: 43.2605, Lon: -2.9310}
	var fail bool
	snapper := snapFunc(func(ctx context.Context, p domain.GeoPoint) (domain.GeoPoint, error) {
		if fail {
			return domain.GeoPoint{}, domain.ErrSnapUnavailable
		}
		return road, nil
	})
	s := newSession(t, drawing.Options{Snapper: snapper, SnapToRoad: true})
	ctx := context.Background()

	got, err := s.Click(ctx, ptA)
	require.NoError(t, err)
	assert.Equal(t, road, got)

	fail = true
	got, err = s.Click(ctx, ptB)
	require.NoError(t, err)
	assert.Equal(t, ptB, got, "snap failure falls back to the raw point")

	s.ToggleSnapToRoad(false)
	fail = false
	got, err = s.Click(ctx, ptC)
	require.NoError(t, err)
	assert.Equal(t, ptC, got)

	assert.Equal(t, []domain.GeoPoint{road, ptB, ptC}, s.Snapshot().Points)
}

func TestSession_SnapSettingSurvivesStart(t *testing.T) {
	s := newSession(t, drawing.Options{})
	s.ToggleSnapToRoad(true)
	s.Clear()
	require.NoError(t, s.Start())
	assert.True(t, s.Snapshot().SnapToRoad)
}

func TestSession_RejectsWhenIdleOrInvalid(t *testing.T) {
	s := drawing.New(drawing.Options{ID: "idle", Elevations: elevationFunc(latElevation)})
	defer s.Close()

	_, err := s.Click(context.Background(), ptA)
	assert.ErrorIs(t, err, domain.ErrNotDrawing)
	assert.ErrorIs(t, s.UndoLastPoint(), domain.ErrNotDrawing)
	_, err = s.Finish("x")
	assert.ErrorIs(t, err, domain.ErrNotDrawing)

	require.NoError(t, s.Start())
	_, err = s.Click(context.Background(), domain.GeoPoint{Lat: 95, Lon: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	assert.NoError(t, s.UndoLastPoint(), "undo on empty session is a no-op")
}

func TestSession_RenderLifecycle(t *testing.T) {
	r := &recordingRenderer{}
	s := newSession(t, drawing.Options{ID: "abc", Renderer: r})
	ctx := context.Background()

	_, _ = s.Click(ctx, ptA)
	_, _ = s.Click(ctx, ptB)
	require.NoError(t, s.UndoLastPoint())
	s.Clear()
	s.Clear()

	assert.Equal(t, []renderEvent{
		{op: "render", layer: "draw-abc-0", points: 1},
		{op: "render", layer: "draw-abc-0", points: 2},
		{op: "render", layer: "draw-abc-0", points: 1},
		{op: "remove", layer: "draw-abc-0"},
	}, r.all())

	require.NoError(t, s.Start())
	_, _ = s.Click(ctx, ptC)
	assert.Equal(t, "draw-abc-1", s.Snapshot().LayerID)
}

func TestSession_UndoLastPointRemovesLine(t *testing.T) {
	r := &recordingRenderer{}
	s := newSession(t, drawing.Options{Renderer: r})

	_, _ = s.Click(context.Background(), ptA)
	require.NoError(t, s.UndoLastPoint())

	events := r.all()
	require.Len(t, events, 2)
	assert.Equal(t, "remove", events[1].op)
	assert.Empty(t, s.Snapshot().LayerID)
}

func TestSession_Close(t *testing.T) {
	r := &recordingRenderer{}
	s := drawing.New(drawing.Options{ID: "c", Elevations: elevationFunc(latElevation), Renderer: r})
	require.NoError(t, s.Start())
	_, _ = s.Click(context.Background(), ptA)

	s.Close()

	assert.ErrorIs(t, s.Start(), drawing.ErrClosed)
	events := r.all()
	assert.Equal(t, "remove", events[len(events)-1].op)
}

func TestSession_ProfileMatchesFullRecompute(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := drawing.New(drawing.Options{ID: "p", Elevations: elevationFunc(latElevation)})
		defer s.Close()
		if err := s.Start(); err != nil {
			rt.Fatalf("start: %v", err)
		}

		ops := rapid.SliceOfN(rapid.IntRange(0, 4), 1, 30).Draw(rt, "ops")
		for _, op := range ops {
			if op == 0 {
				_ = s.UndoLastPoint()
				continue
			}
			p := domain.GeoPoint{
				Lat: rapid.Float64Range(43.0, 43.5).Draw(rt, "lat"),
				Lon: rapid.Float64Range(-3.0, -2.5).Draw(rt, "lon"),
			}
			if _, err := s.Click(context.Background(), p); err != nil {
				rt.Fatalf("click: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Settle(ctx); err != nil {
			rt.Fatalf("settle: %v", err)
		}

		snap := s.Snapshot()
		elevations := make([]float64, len(snap.Points))
		for i, p := range snap.Points {
			elevations[i] = float64(latElevation(ctx, p))
		}
		want := profile.Build(snap.Points, elevations)
		if len(want) != len(snap.Profile) {
			rt.Fatalf("profile length %d, want %d", len(snap.Profile), len(want))
		}
		for i := range want {
			if want[i] != snap.Profile[i] {
				rt.Fatalf("profile[%d] = %+v, want %+v", i, snap.Profile[i], want[i])
			}
		}
	})
}

func TestParseLayerID(t *testing.T) {
	id := "4f3c2a9e-1b7d-4c8e-9a0b-5d6e7f8a9b0c"
	session, gen, ok := drawing.ParseLayerID(drawing.LayerID(id, 17))
	require.True(t, ok)
	assert.Equal(t, id, session)
	assert.Equal(t, uint64(17), gen)

	for _, bad := range []string{"", "draw-", "line-abc-1", "draw-abc-x", "draw--3"} {
		_, _, ok := drawing.ParseLayerID(bad)
		assert.False(t, ok, bad)
	}
}

func TestSession_PrepareKeepsPointsUntilComplete(t *testing.T) {
	s := newSession(t, drawing.Options{})
	ctx := context.Background()
	_, _ = s.Click(ctx, ptA)
	_, _ = s.Click(ctx, ptB)

	seg, gen, err := s.Prepare("Pagasarri")
	require.NoError(t, err)
	assert.Len(t, seg.Coordinates, 2)
	assert.Equal(t, drawing.Drawing, s.State())
	assert.Len(t, s.Snapshot().Points, 2, "a prepared session keeps its points")

	s.Complete(gen)
	assert.Equal(t, drawing.Idle, s.State())
	assert.Empty(t, s.Snapshot().Points)
	assert.Equal(t, gen+1, s.Generation())
}

func TestSession_CompleteIgnoresStaleGeneration(t *testing.T) {
	s := newSession(t, drawing.Options{})
	ctx := context.Background()
	_, _ = s.Click(ctx, ptA)
	_, _ = s.Click(ctx, ptB)

	_, gen, err := s.Prepare("")
	require.NoError(t, err)

	require.NoError(t, s.Start())
	_, _ = s.Click(ctx, ptC)
	s.Complete(gen)

	assert.Equal(t, drawing.Drawing, s.State())
	assert.Len(t, s.Snapshot().Points, 1, "restarted drawing must survive a late completion")
}
