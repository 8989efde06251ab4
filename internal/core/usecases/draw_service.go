package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/drawing"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/pkg/metrics"
)

// DrawService hosts drawing sessions for thin clients. Sessions idle for
// longer than the TTL are closed by Sweep.
type DrawService struct {
	elevations    ports.ElevationSource
	snapper       ports.RoadSnapper
	renderer      ports.LineRenderer
	segments      *SegmentService
	ttl           time.Duration
	settleTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*drawEntry
}

type drawEntry struct {
	session  *drawing.Session
	lastUsed time.Time
}

// DrawServiceConfig groups the collaborators of a DrawService.
type DrawServiceConfig struct {
	Elevations    ports.ElevationSource
	Snapper       ports.RoadSnapper
	Renderer      ports.LineRenderer
	Segments      *SegmentService
	TTL           time.Duration
	SettleTimeout time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

// NewDrawService creates a new DrawService.
func NewDrawService(cfg DrawServiceConfig) *DrawService {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DrawService{
		elevations:    cfg.Elevations,
		snapper:       cfg.Snapper,
		renderer:      cfg.Renderer,
		segments:      cfg.Segments,
		ttl:           cfg.TTL,
		settleTimeout: cfg.SettleTimeout,
		logger:        cfg.Logger,
		now:           cfg.Now,
		sessions:      make(map[string]*drawEntry),
	}
}

// Create registers a new session and starts drawing.
func (s *DrawService) Create(snapToRoad bool) (drawing.Snapshot, error) {
	id := uuid.NewString()
	sess := drawing.New(drawing.Options{
		ID:         id,
		SnapToRoad: snapToRoad,
		Elevations: s.elevations,
		Snapper:    s.snapper,
		Renderer:   s.renderer,
		Logger:     s.logger,
	})
	if err := sess.Start(); err != nil {
		return drawing.Snapshot{}, err
	}

	s.mu.Lock()
	s.sessions[id] = &drawEntry{session: sess, lastUsed: s.now()}
	metrics.DrawSessionsActive.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	s.logger.Debug("draw session created", "session", id)
	return sess.Snapshot(), nil
}

func (s *DrawService) get(id string) (*drawing.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	e.lastUsed = s.now()
	return e.session, nil
}

// Snapshot returns the current view of a session.
func (s *DrawService) Snapshot(id string) (drawing.Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return drawing.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Start (re)enters drawing mode.
func (s *DrawService) Start(id string) (drawing.Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return drawing.Snapshot{}, err
	}
	if err := sess.Start(); err != nil {
		return drawing.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Click adds a point to a session.
func (s *DrawService) Click(ctx context.Context, id string, p domain.GeoPoint) (drawing.Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return drawing.Snapshot{}, err
	}
	if _, err := sess.Click(ctx, p); err != nil {
		return drawing.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Undo removes the last point of a session.
func (s *DrawService) Undo(id string) (drawing.Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return drawing.Snapshot{}, err
	}
	if err := sess.UndoLastPoint(); err != nil {
		return drawing.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// SetSnapToRoad changes the snap setting of a session.
func (s *DrawService) SetSnapToRoad(id string, enabled bool) (drawing.Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return drawing.Snapshot{}, err
	}
	sess.ToggleSnapToRoad(enabled)
	return sess.Snapshot(), nil
}

// Finish persists the drawn path and ends drawing. When wait is set, in-flight
// elevation samples get up to the settle timeout to land first. A session with
// fewer than two points is cleared and domain.ErrInsufficientPoints returned.
// On an invalid title or a failed save the session keeps drawing with all its
// points so the caller can finish again.
func (s *DrawService) Finish(ctx context.Context, id, title string, wait bool) (*domain.Segment, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if _, err := normalizeTitle(title); err != nil {
		return nil, err
	}
	if wait {
		sctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
		err := sess.Settle(sctx)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if err != nil {
			s.logger.Warn("finishing with unresolved elevations", "session", id)
		}
	}

	finished, gen, err := sess.Prepare(title)
	if err != nil {
		return nil, err
	}
	seg, err := s.segments.SaveFinished(ctx, finished)
	if err != nil {
		return nil, err
	}
	sess.Complete(gen)
	return seg, nil
}

// Delete clears a session, releases its line and forgets it.
func (s *DrawService) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		metrics.DrawSessionsActive.Set(float64(len(s.sessions)))
	}
	s.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	e.session.Close()
	return nil
}

// Sweep closes sessions idle for longer than the TTL and returns how many were removed.
func (s *DrawService) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*drawing.Session
	for id, e := range s.sessions {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e.session)
			delete(s.sessions, id)
		}
	}
	metrics.DrawSessionsActive.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("expired draw sessions", "count", len(expired))
	}
	return len(expired)
}

// RunJanitor sweeps expired sessions every interval until ctx is done, then
// closes every remaining session.
func (s *DrawService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// CloseAll closes every session.
func (s *DrawService) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*drawEntry)
	metrics.DrawSessionsActive.Set(0)
	s.mu.Unlock()

	for _, e := range all {
		e.session.Close()
	}
}

// Len returns the number of live sessions.
func (s *DrawService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
