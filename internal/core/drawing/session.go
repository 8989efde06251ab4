// Package drawing implements the interactive draw-mode state machine.
//
// A Session accumulates clicked points, resolves their elevations in the
// background and keeps a rendered line in sync through a ports.LineRenderer.
// Every exit from Drawing (finish, clear, close) bumps the session generation;
// background results tagged with an older generation are dropped on arrival.
package drawing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/core/profile"
	"github.com/gravelatlas/atlas/internal/pkg/metrics"
)

// State is the draw-mode state.
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("draw session closed")

// Options configures a Session. Snapper and Renderer may be nil.
type Options struct {
	ID         string
	SnapToRoad bool
	Elevations ports.ElevationSource
	Snapper    ports.RoadSnapper
	Renderer   ports.LineRenderer
	Logger     *slog.Logger
}

type placedPoint struct {
	id        uint64
	point     domain.GeoPoint
	elevation int
	resolved  bool
}

// Session is a single drawing session. All methods are safe for concurrent use.
type Session struct {
	id         string
	elevations ports.ElevationSource
	snapper    ports.RoadSnapper
	renderer   ports.LineRenderer
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	snapToRoad bool
	points     []placedPoint
	nextID     uint64
	layerID    string // empty when no line is rendered
	closed     bool

	// genCtx is cancelled whenever the generation moves on.
	genCtx    context.Context
	genCancel context.CancelFunc

	pending int
	idle    chan struct{} // closed when pending drops to 0
}

// New creates an idle session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:         opts.ID,
		elevations: opts.Elevations,
		snapper:    opts.Snapper,
		renderer:   opts.Renderer,
		logger:     logger.With("session", opts.ID),
		snapToRoad: opts.SnapToRoad,
		idle:       closedChan(),
	}
	s.genCtx, s.genCancel = context.WithCancel(context.Background())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start enters Drawing with an empty point list. Starting an already drawing
// session discards its points first. The snap setting is kept.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state == Drawing {
		s.resetLocked()
	}
	s.state = Drawing
	return nil
}

// Click appends p, snapped to the nearest road when snapping is on. Snap
// failures fall back to the raw point. Elevation sampling for the new point
// runs in the background.
func (s *Session) Click(ctx context.Context, p domain.GeoPoint) (domain.GeoPoint, error) {
	if !p.Valid() {
		return domain.GeoPoint{}, fmt.Errorf("%w: lat %v lon %v", domain.ErrInvalidCoordinate, p.Lat, p.Lon)
	}

	s.mu.Lock()
	if err := s.drawingLocked(); err != nil {
		s.mu.Unlock()
		return domain.GeoPoint{}, err
	}
	gen, snap := s.generation, s.snapToRoad
	s.mu.Unlock()

	placed := p
	if snap {
		placed = s.snap(ctx, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drawingLocked(); err != nil {
		return domain.GeoPoint{}, err
	}
	if s.generation != gen {
		return domain.GeoPoint{}, fmt.Errorf("%w: session restarted during click", domain.ErrNotDrawing)
	}

	s.nextID++
	pt := placedPoint{id: s.nextID, point: placed}
	s.points = append(s.points, pt)
	s.renderLocked()
	s.sampleLocked(pt)
	return placed, nil
}

func (s *Session) snap(ctx context.Context, p domain.GeoPoint) domain.GeoPoint {
	if s.snapper == nil {
		metrics.SnapResults.WithLabelValues("fallback").Inc()
		return p
	}
	snapped, err := s.snapper.Snap(ctx, p)
	if err != nil || !snapped.Valid() {
		metrics.SnapResults.WithLabelValues("fallback").Inc()
		s.logger.Debug("snap unavailable, using raw point", "error", err)
		return p
	}
	metrics.SnapResults.WithLabelValues("snapped").Inc()
	return snapped
}

// sampleLocked starts background sampling for pt. The result is applied only
// if the generation is unchanged and pt has not been undone.
func (s *Session) sampleLocked(pt placedPoint) {
	if s.elevations == nil {
		return
	}
	gen, ctx := s.generation, s.genCtx
	s.addPendingLocked()

	go func() {
		samples := s.elevations.SampleElevations(ctx, []domain.GeoPoint{pt.point})

		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.donePendingLocked()

		if gen != s.generation || len(samples) != 1 {
			return
		}
		for i := range s.points {
			if s.points[i].id == pt.id {
				s.points[i].elevation = samples[0].ElevationMeters
				s.points[i].resolved = true
				return
			}
		}
	}()
}

func (s *Session) addPendingLocked() {
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
}

func (s *Session) donePendingLocked() {
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
}

// UndoLastPoint removes the most recent point. It is a no-op on an empty session.
func (s *Session) UndoLastPoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drawingLocked(); err != nil {
		return err
	}
	if len(s.points) == 0 {
		return nil
	}
	s.points = s.points[:len(s.points)-1]
	if len(s.points) == 0 {
		s.removeLineLocked()
		return nil
	}
	s.renderLocked()
	return nil
}

// ToggleSnapToRoad changes the snap setting for future clicks. Placed points
// are not modified.
func (s *Session) ToggleSnapToRoad(enabled bool) {
	s.mu.Lock()
	s.snapToRoad = enabled
	s.mu.Unlock()
}

// Finish assembles the drawn path and clears the session. With fewer than two
// points it behaves as Clear and returns domain.ErrInsufficientPoints.
// Points whose elevation is still in flight count as 0; call Settle first to
// wait for them.
func (s *Session) Finish(title string) (*domain.FinishedSegment, error) {
	seg, gen, err := s.Prepare(title)
	if err != nil {
		return nil, err
	}
	s.Complete(gen)
	return &seg, nil
}

// Prepare assembles the drawn path without leaving Drawing, so a failed save
// can be retried. It returns the generation to pass to Complete. With fewer
// than two points the session is cleared and domain.ErrInsufficientPoints
// returned.
func (s *Session) Prepare(title string) (domain.FinishedSegment, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drawingLocked(); err != nil {
		return domain.FinishedSegment{}, 0, err
	}

	points, elevations := s.pathLocked()
	seg, err := profile.Assemble(points, elevations, title)
	if errors.Is(err, domain.ErrInsufficientPoints) {
		s.resetLocked()
		s.state = Idle
	}
	if err != nil {
		return domain.FinishedSegment{}, 0, err
	}
	return seg, s.generation, nil
}

// Complete clears the session after a prepared segment was saved. It does
// nothing when the session has moved past generation in the meantime.
func (s *Session) Complete(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Drawing || s.generation != generation {
		return
	}
	s.resetLocked()
	s.state = Idle
}

// Clear removes the rendered line, drops all points and returns to Idle.
// It is idempotent.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return
	}
	s.resetLocked()
	s.state = Idle
}

// Close clears the session and rejects further use.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.state = Idle
	s.closed = true
	s.genCancel()
}

// Settle blocks until every in-flight elevation sample has completed or ctx is done.
func (s *Session) Settle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resetLocked moves to a new generation, releases the rendered line and drops
// all points. In-flight samples of the old generation are cancelled.
func (s *Session) resetLocked() {
	s.removeLineLocked()
	s.points = nil
	s.generation++
	s.genCancel()
	if !s.closed {
		s.genCtx, s.genCancel = context.WithCancel(context.Background())
	}
}

func (s *Session) drawingLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.state != Drawing {
		return domain.ErrNotDrawing
	}
	return nil
}

func (s *Session) pathLocked() ([]domain.GeoPoint, []float64) {
	points := make([]domain.GeoPoint, len(s.points))
	elevations := make([]float64, len(s.points))
	for i, p := range s.points {
		points[i] = p.point
		elevations[i] = float64(p.elevation)
	}
	return points, elevations
}

func (s *Session) layerName() string {
	return LayerID(s.id, s.generation)
}

// LayerID names the rendered line of a session generation.
func LayerID(session string, generation uint64) string {
	return fmt.Sprintf("draw-%s-%d", session, generation)
}

// ParseLayerID splits a LayerID back into session and generation.
func ParseLayerID(layer string) (session string, generation uint64, ok bool) {
	rest, found := strings.CutPrefix(layer, "draw-")
	if !found {
		return "", 0, false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", 0, false
	}
	generation, err := strconv.ParseUint(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return rest[:i], generation, true
}

func (s *Session) renderLocked() {
	s.layerID = s.layerName()
	if s.renderer == nil {
		return
	}
	coords, _ := s.pathLocked()
	if err := s.renderer.RenderLine(context.Background(), s.layerID, coords); err != nil {
		s.logger.Warn("render line", "layer", s.layerID, "error", err)
	}
}

func (s *Session) removeLineLocked() {
	if s.layerID == "" {
		return
	}
	layer := s.layerID
	s.layerID = ""
	if s.renderer == nil {
		return
	}
	if err := s.renderer.RemoveLine(context.Background(), layer); err != nil {
		s.logger.Warn("remove line", "layer", layer, "error", err)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
