package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/metrics"
	"golang.org/x/sync/semaphore"
)

const DefaultPollInterval = 1500 * time.Millisecond

var (
	ErrRefreshInFlight = errors.New("refresh already in flight")
	ErrNotRunning      = errors.New("poller is not running")
	ErrSessionChanged  = errors.New("session changed during refresh")
)

type iRoomService interface {
	GetRoomState(ctx context.Context, roomCode string) (*domain.RoomSnapshot, error)
}

type iSessionStore interface {
	Clear(ctx context.Context, expected domain.Session) bool
}

// SnapshotListener receives every published snapshot. The snapshot is shared
// and must not be modified.
type SnapshotListener func(ctx context.Context, snap *domain.RoomSnapshot)

type Config struct {
	PollInterval time.Duration
}

type run struct {
	session domain.Session
	cancel  context.CancelFunc
}

type service struct {
	roomService iRoomService
	store       iSessionStore
	interval    time.Duration
	logger      *slog.Logger

	inFlight *semaphore.Weighted
	snapshot atomic.Pointer[domain.RoomSnapshot]
	// order of issued requests; stale responses never replace newer ones
	requestSeq atomic.Uint64

	mu           sync.Mutex
	active       *run
	publishedSeq uint64

	listenersMu sync.RWMutex
	listeners   []SnapshotListener
}

func NewService(roomService iRoomService, store iSessionStore, cfg *Config, logger *slog.Logger) *service {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &service{
		roomService: roomService,
		store:       store,
		interval:    interval,
		logger:      logger,
		inFlight:    semaphore.NewWeighted(1),
	}
}

func (s *service) Subscribe(l SnapshotListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.listeners = append(s.listeners, l)
}

// Start begins polling the room of sess, replacing any previous run.
func (s *service) Start(ctx context.Context, sess domain.Session) {
	funcName := "poller.Start"
	s.logger.DebugContext(ctx, funcName, "room_code", sess.RoomCode)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{session: sess, cancel: cancel}
	s.active = r

	go s.loop(runCtx, r)
}

// Stop cancels polling and drops the published snapshot. It does not wait for
// an in-flight request; its result is discarded.
func (s *service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

func (s *service) stopLocked() {
	if s.active == nil {
		return
	}

	s.active.cancel()
	s.active = nil
	s.snapshot.Store(nil)
}

func (s *service) stopRun(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == r {
		s.stopLocked()
	}
}

func (s *service) current() (*run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active, s.active != nil
}

func (s *service) isCurrent(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active == r
}

func (s *service) Running() bool {
	_, ok := s.current()
	return ok
}

// Snapshot returns a copy of the latest published snapshot, or nil before the
// first successful refresh of the current session.
func (s *service) Snapshot() *domain.RoomSnapshot {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil
	}

	return snap.Clone()
}

func (s *service) loop(ctx context.Context, r *run) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, r)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, r)
		}
	}
}

func (s *service) tick(ctx context.Context, r *run) {
	_, err := s.refresh(ctx, r, false)
	if err != nil && !errors.Is(err, ErrRefreshInFlight) && ctx.Err() == nil {
		s.logger.DebugContext(ctx, "poll failed", "room_code", r.session.RoomCode, "error", err)
	}
}

// Refresh fetches the room state now. A non-forced refresh while another is in
// flight is dropped with ErrRefreshInFlight; a forced one always runs.
func (s *service) Refresh(ctx context.Context, force bool) (*domain.RoomSnapshot, error) {
	r, ok := s.current()
	if !ok {
		return nil, ErrNotRunning
	}

	return s.refresh(ctx, r, force)
}

func (s *service) refresh(ctx context.Context, r *run, force bool) (*domain.RoomSnapshot, error) {
	if !force {
		if !s.inFlight.TryAcquire(1) {
			metrics.PollsTotal.WithLabelValues(metrics.ResultDropped).Inc()
			return nil, ErrRefreshInFlight
		}
		defer s.inFlight.Release(1)
	}

	seq := s.requestSeq.Add(1)
	start := time.Now()
	snap, err := s.roomService.GetRoomState(ctx, r.session.RoomCode)
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	if !s.isCurrent(r) {
		metrics.PollsTotal.WithLabelValues(metrics.ResultDiscarded).Inc()
		return nil, ErrSessionChanged
	}

	if err != nil {
		return nil, s.handleFailure(ctx, r, err)
	}

	published, ok := s.publish(ctx, r, seq, snap)
	if !ok {
		metrics.PollsTotal.WithLabelValues(metrics.ResultDiscarded).Inc()
		return nil, ErrSessionChanged
	}
	metrics.PollsTotal.WithLabelValues(metrics.ResultOK).Inc()

	return published.Clone(), nil
}

func (s *service) handleFailure(ctx context.Context, r *run, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		metrics.PollsTotal.WithLabelValues(metrics.ResultNotFound).Inc()
		s.logger.InfoContext(ctx, "room no longer exists, ending session", "room_code", r.session.RoomCode)
		s.stopRun(r)
		// ctx belongs to the run stopped above
		s.store.Clear(context.WithoutCancel(ctx), r.session)
		return fmt.Errorf("failed to get room state: %w", err)
	}

	if errors.Is(err, domain.ErrTransient) {
		metrics.PollsTotal.WithLabelValues(metrics.ResultTransient).Inc()
		s.logger.WarnContext(ctx, "room state unavailable, keeping last snapshot", "room_code", r.session.RoomCode, "error", err)
	} else {
		metrics.PollsTotal.WithLabelValues(metrics.ResultError).Inc()
		s.logger.WarnContext(ctx, "room state rejected", "room_code", r.session.RoomCode, "error", err)
	}

	return fmt.Errorf("failed to get room state: %w", err)
}

// publish replaces the snapshot unless the run ended or a response to a later
// request was already published, and returns the snapshot that is current
// afterwards. Listeners run outside the lock.
func (s *service) publish(ctx context.Context, r *run, seq uint64, snap *domain.RoomSnapshot) (*domain.RoomSnapshot, bool) {
	s.mu.Lock()
	if s.active != r {
		s.mu.Unlock()
		return nil, false
	}
	if seq < s.publishedSeq {
		newer := s.snapshot.Load()
		s.mu.Unlock()
		return newer, true
	}
	s.publishedSeq = seq
	s.snapshot.Store(snap)
	s.mu.Unlock()

	s.listenersMu.RLock()
	listeners := append([]SnapshotListener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ctx, snap)
	}

	return snap, true
}
