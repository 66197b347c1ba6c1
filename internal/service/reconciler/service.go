package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/metrics"
	"github.com/sharetube/client/internal/transport"
)

const (
	DefaultMinPassInterval = 800 * time.Millisecond
	DefaultDriftThreshold  = 2 * time.Second
	DefaultLoadGracePeriod = 800 * time.Millisecond

	nextVideoTimeout = 5 * time.Second
)

const (
	stateIdle int32 = iota
	stateReconciling
)

// pass outcomes
const (
	outcomeIdle        = "idle"
	outcomeLoaded      = "loaded"
	outcomeSynced      = "synced"
	outcomeCorrected   = "corrected"
	outcomeSuperseded  = "superseded"
	outcomeUnavailable = "unavailable"
	outcomeBusy        = "busy"
	outcomeDebounced   = "debounced"
)

type iTransport interface {
	Load(ctx context.Context, videoID string, at float64, autoplay bool) error
	Observe() (domain.LocalObservation, error)
	Seek(at float64, allowAhead bool) error
	Play() error
	Pause() error
	Schedule(delay time.Duration, fn func(p transport.Player) error) (cancel func())
	Active() bool
	Destroy()
	OnStateChange(l transport.StateListener)
}

type iRoomService interface {
	NextVideo(ctx context.Context, roomCode string) error
}

type Config struct {
	MinPassInterval time.Duration
	DriftThreshold  time.Duration
	LoadGracePeriod time.Duration
}

type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	session domain.Session
}

type service struct {
	transport   iTransport
	roomService iRoomService
	limiter     *Limiter
	drift       float64
	grace       time.Duration
	logger      *slog.Logger

	state  atomic.Int32
	active atomic.Pointer[run]
	latest atomic.Pointer[domain.RoomSnapshot]

	// held while issuing transport commands so Stop cannot interleave
	mu           sync.Mutex
	localVideoID string
}

func NewService(t iTransport, roomService iRoomService, cfg *Config, logger *slog.Logger) *service {
	c := *cfg
	if c.MinPassInterval <= 0 {
		c.MinPassInterval = DefaultMinPassInterval
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = DefaultDriftThreshold
	}
	if c.LoadGracePeriod <= 0 {
		c.LoadGracePeriod = DefaultLoadGracePeriod
	}

	s := &service{
		transport:   t,
		roomService: roomService,
		limiter:     NewLimiter(c.MinPassInterval, nil),
		drift:       c.DriftThreshold.Seconds(),
		grace:       c.LoadGracePeriod,
		logger:      logger,
	}
	t.OnStateChange(s.onStateChange)

	return s
}

// Start begins reconciling snapshots of sess's room.
func (s *service) Start(ctx context.Context, sess domain.Session) {
	funcName := "reconciler.Start"
	s.logger.DebugContext(ctx, funcName, "room_code", sess.RoomCode)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.active.Store(&run{ctx: runCtx, cancel: cancel, session: sess})
	s.limiter.Reset()
}

// Stop cancels reconciliation, destroys the transport instance and forgets
// the local video.
func (s *service) Stop() {
	if r := s.active.Load(); r != nil {
		// unblocks a pass waiting on the transport library
		r.cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

func (s *service) stopLocked() {
	if r := s.active.Swap(nil); r != nil {
		r.cancel()
	}
	s.latest.Store(nil)
	s.localVideoID = ""
	s.transport.Destroy()
}

// OnSnapshot is the poller listener. A notification that arrives while a pass
// runs, or within the minimum pass interval, is skipped, not queued.
func (s *service) OnSnapshot(_ context.Context, snap *domain.RoomSnapshot) {
	r := s.active.Load()
	if r == nil || snap == nil || snap.RoomCode != r.session.RoomCode {
		return
	}
	s.latest.Store(snap)

	if !s.state.CompareAndSwap(stateIdle, stateReconciling) {
		metrics.ReconcilePassesTotal.WithLabelValues(outcomeBusy).Inc()
		return
	}
	if !s.limiter.Allow() {
		s.state.Store(stateIdle)
		metrics.ReconcilePassesTotal.WithLabelValues(outcomeDebounced).Inc()
		return
	}

	go func() {
		defer s.state.Store(stateIdle)
		defer s.limiter.Mark()

		outcome := s.reconcile(r, snap)
		metrics.ReconcilePassesTotal.WithLabelValues(outcome).Inc()
	}()
}

// Busy reports whether a pass is running.
func (s *service) Busy() bool {
	return s.state.Load() == stateReconciling
}

// issue runs cmd unless the run stopped or a newer snapshot superseded snap.
func (s *service) issue(r *run, snap *domain.RoomSnapshot, kind string, cmd func() error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() != r || r.ctx.Err() != nil || s.latest.Load() != snap {
		return false, nil
	}

	if err := cmd(); err != nil {
		return true, err
	}
	metrics.CorrectionsTotal.WithLabelValues(kind).Inc()

	return true, nil
}

func (s *service) localVideo() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.localVideoID
}

// reconcile runs one pass for snap and returns its outcome.
func (s *service) reconcile(r *run, snap *domain.RoomSnapshot) string {
	funcName := "reconciler.reconcile"
	s.logger.DebugContext(r.ctx, funcName, "room_code", snap.RoomCode, "video_id", snap.CurrentVideoID())

	if snap.CurrentVideo == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.active.Load() == r && s.transport.Active() {
			s.transport.Destroy()
			s.localVideoID = ""
		}
		return outcomeIdle
	}

	videoID := snap.CurrentVideo.VideoID
	// a transport that dropped its instance needs the video loaded again
	if videoID != s.localVideo() || !s.transport.Active() {
		return s.load(r, snap, videoID)
	}

	obs, err := s.transport.Observe()
	if err != nil {
		return s.failed(r, "observe", err)
	}

	outcome := outcomeSynced

	drift := math.Abs(obs.LocalTime - snap.CurrentTime)
	metrics.Drift.Observe(drift)
	if drift > s.drift {
		issued, err := s.issue(r, snap, "seek", func() error {
			return s.transport.Seek(snap.CurrentTime, true)
		})
		if err != nil {
			return s.failed(r, "seek", err)
		}
		if !issued {
			return outcomeSuperseded
		}
		s.logger.DebugContext(r.ctx, "corrected drift", "drift", drift, "target", snap.CurrentTime)
		outcome = outcomeCorrected
	}

	var kind string
	var cmd func() error
	switch {
	case snap.IsPlaying && !obs.State.IsPlayingLike():
		kind, cmd = "play", s.transport.Play
	case !snap.IsPlaying && obs.State.IsPlayingLike():
		kind, cmd = "pause", s.transport.Pause
	default:
		return outcome
	}

	issued, err := s.issue(r, snap, kind, cmd)
	if err != nil {
		return s.failed(r, kind, err)
	}
	if !issued {
		return outcomeSuperseded
	}

	return outcomeCorrected
}

func (s *service) load(r *run, snap *domain.RoomSnapshot, videoID string) string {
	issued, err := s.issue(r, snap, "load", func() error {
		if err := s.transport.Load(r.ctx, videoID, snap.CurrentTime, snap.IsPlaying); err != nil {
			return err
		}
		s.localVideoID = videoID
		if !snap.IsPlaying {
			// the transport starts playing on load; pause once it settled
			s.transport.Schedule(s.grace, func(p transport.Player) error {
				return p.Pause()
			})
		}
		return nil
	})
	if err != nil {
		return s.failed(r, "load", err)
	}
	if !issued {
		return outcomeSuperseded
	}

	s.logger.InfoContext(r.ctx, "video loaded", "video_id", videoID, "at", snap.CurrentTime, "is_playing", snap.IsPlaying)
	return outcomeLoaded
}

// failed drops the command; the next pass retries.
func (s *service) failed(r *run, op string, err error) string {
	level := slog.LevelWarn
	if errors.Is(err, domain.ErrTransportUnavailable) || errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	s.logger.Log(r.ctx, level, "transport command dropped", "op", op, "error", err)

	return outcomeUnavailable
}

// onStateChange advances the room when the local media ends. Each ended event
// submits one request; its failure is ignored.
func (s *service) onStateChange(videoID string, state domain.PlayerState) {
	if state != domain.PlayerStateEnded {
		return
	}

	r := s.active.Load()
	if r == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, nextVideoTimeout)
		defer cancel()

		if err := s.roomService.NextVideo(ctx, r.session.RoomCode); err != nil {
			s.logger.DebugContext(ctx, "next video after end failed", "video_id", videoID, "error", err)
			return
		}
		s.logger.DebugContext(ctx, "advanced after end", "video_id", videoID)
	}()
}
