package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sharetube/client/internal/domain"
)

const DefaultVolume = 80

// StateListener is called for every state change of the active instance.
type StateListener func(videoID string, state domain.PlayerState)

type Config struct {
	// ReuseInstances loads a new video into a ready instance in place instead
	// of destroying and recreating it.
	ReuseInstances bool
	Volume         int
}

// Adapter owns at most one live transport instance and guards every call into
// it. Calls made before the instance signalled ready fail with
// domain.ErrTransportUnavailable.
type Adapter struct {
	factory Factory
	library *Library
	reuse   bool
	logger  *slog.Logger

	mu   sync.Mutex
	inst *instance

	volume atomic.Int32
	muted  atomic.Bool

	listenersMu sync.RWMutex
	listeners   []StateListener
}

type instance struct {
	id       string
	startAt  float64
	autoplay bool

	// guards player assignment and timers
	mu      sync.Mutex
	player  Player
	videoID string
	timers  []*time.Timer

	ready     atomic.Bool
	destroyed atomic.Bool
}

func NewAdapter(factory Factory, library *Library, cfg *Config, logger *slog.Logger) *Adapter {
	a := &Adapter{
		factory: factory,
		library: library,
		reuse:   cfg.ReuseInstances,
		logger:  logger,
	}
	a.volume.Store(int32(clampVolume(cfg.Volume)))

	return a
}

func clampVolume(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// OnStateChange registers l for state changes of any instance the adapter
// creates.
func (a *Adapter) OnStateChange(l StateListener) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()

	a.listeners = append(a.listeners, l)
}

func (a *Adapter) current() *instance {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inst
}

// Load makes videoID the active media starting at at. Without instance reuse
// the previous instance is destroyed, cancelling its scheduled tasks, and a
// new one is created.
func (a *Adapter) Load(ctx context.Context, videoID string, at float64, autoplay bool) error {
	if err := a.library.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransportUnavailable, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reuse && a.inst != nil && a.inst.ready.Load() {
		inst := a.inst
		inst.cancelTimers()
		// in-place loads start playing regardless of autoplay
		err := guard(func() error { return inst.player.LoadVideo(videoID, at) })
		if err == nil {
			inst.mu.Lock()
			inst.videoID = videoID
			inst.mu.Unlock()
			a.logger.DebugContext(ctx, "video loaded in place", "video_id", videoID, "instance_id", inst.id)
			return nil
		}
		a.logger.WarnContext(ctx, "in-place load failed, recreating transport", "error", err)
	}

	a.destroyLocked()

	inst := &instance{
		id:       uuid.NewString(),
		videoID:  videoID,
		startAt:  at,
		autoplay: autoplay,
	}

	// OnReady waits on inst.mu until the player is assigned
	inst.mu.Lock()
	player, err := a.factory.NewPlayer(ctx, Options{
		InstanceID: inst.id,
		VideoID:    videoID,
		StartAt:    at,
		Autoplay:   autoplay,
	}, &instanceEvents{adapter: a, inst: inst})
	if err != nil {
		inst.mu.Unlock()
		return fmt.Errorf("%w: failed to create transport instance: %w", domain.ErrTransportUnavailable, err)
	}
	inst.player = player
	inst.mu.Unlock()

	a.inst = inst
	a.logger.DebugContext(ctx, "transport instance created", "video_id", videoID, "instance_id", inst.id)

	return nil
}

// Destroy tears down the active instance and leaves the transport idle.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.destroyLocked()
}

func (a *Adapter) destroyLocked() {
	inst := a.inst
	if inst == nil {
		return
	}
	a.inst = nil

	inst.destroyed.Store(true)
	inst.cancelTimers()

	inst.mu.Lock()
	player := inst.player
	inst.mu.Unlock()
	if player == nil {
		return
	}
	if err := guard(player.Destroy); err != nil {
		a.logger.Debug("transport destroy failed", "instance_id", inst.id, "error", err)
	}
}

func (inst *instance) cancelTimers() {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	for _, t := range inst.timers {
		t.Stop()
	}
	inst.timers = nil
}

// Active reports whether an instance exists, ready or not.
func (a *Adapter) Active() bool {
	return a.current() != nil
}

// Ready reports whether the active instance signalled ready.
func (a *Adapter) Ready() bool {
	inst := a.current()
	return inst != nil && inst.ready.Load()
}

// VideoID returns the video the active instance was loaded with.
func (a *Adapter) VideoID() string {
	inst := a.current()
	if inst == nil {
		return ""
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	return inst.videoID
}

// guard runs fn, converting errors and panics of the wrapped transport into
// domain.ErrTransportUnavailable.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: transport panicked: %v", domain.ErrTransportUnavailable, r)
		}
	}()

	if err := fn(); err != nil {
		if errors.Is(err, domain.ErrTransportUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrTransportUnavailable, err)
	}

	return nil
}

func (a *Adapter) readyInstance() (*instance, error) {
	inst := a.current()
	if inst == nil || !inst.ready.Load() || inst.destroyed.Load() {
		return nil, domain.ErrTransportUnavailable
	}

	return inst, nil
}

func (a *Adapter) call(fn func(p Player) error) error {
	inst, err := a.readyInstance()
	if err != nil {
		return err
	}

	err = guard(func() error { return fn(inst.player) })
	a.dropIfLost(inst, err)

	return err
}

// dropIfLost destroys inst when err reports that its backing instance is
// gone, leaving the adapter idle until the next Load.
func (a *Adapter) dropIfLost(inst *instance, err error) {
	if !errors.Is(err, ErrInstanceLost) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inst != inst {
		return
	}
	a.logger.Warn("transport instance lost", "instance_id", inst.id)
	a.destroyLocked()
}

func (a *Adapter) Play() error {
	return a.call(func(p Player) error { return p.Play() })
}

func (a *Adapter) Pause() error {
	return a.call(func(p Player) error { return p.Pause() })
}

func (a *Adapter) Seek(at float64, allowAhead bool) error {
	return a.call(func(p Player) error { return p.Seek(at, allowAhead) })
}

func (a *Adapter) CurrentTime() (float64, error) {
	var t float64
	err := a.call(func(p Player) error {
		var err error
		t, err = p.CurrentTime()
		return err
	})

	return t, err
}

func (a *Adapter) Duration() (float64, error) {
	var d float64
	err := a.call(func(p Player) error {
		var err error
		d, err = p.Duration()
		return err
	})

	return d, err
}

func (a *Adapter) State() (domain.PlayerState, error) {
	state := domain.PlayerStateUnstarted
	err := a.call(func(p Player) error {
		var err error
		state, err = p.State()
		return err
	})

	return state, err
}

// Observe reads the local playhead and state of the active instance.
func (a *Adapter) Observe() (domain.LocalObservation, error) {
	inst, err := a.readyInstance()
	if err != nil {
		return domain.LocalObservation{}, err
	}

	obs := domain.LocalObservation{}
	err = guard(func() error {
		var err error
		if obs.LocalTime, err = inst.player.CurrentTime(); err != nil {
			return err
		}
		obs.State, err = inst.player.State()
		return err
	})
	if err != nil {
		a.dropIfLost(inst, err)
		return domain.LocalObservation{}, err
	}

	inst.mu.Lock()
	obs.VideoID = inst.videoID
	inst.mu.Unlock()

	return obs, nil
}

// SetVolume remembers volume and applies it to the active instance when it is
// ready. New instances get the remembered volume once ready.
func (a *Adapter) SetVolume(volume int) error {
	a.volume.Store(int32(clampVolume(volume)))
	return a.applyVolume()
}

func (a *Adapter) SetMuted(muted bool) error {
	a.muted.Store(muted)
	return a.applyVolume()
}

// Volume returns the remembered volume and mute flag.
func (a *Adapter) Volume() (int, bool) {
	return int(a.volume.Load()), a.muted.Load()
}

func (a *Adapter) effectiveVolume() int {
	if a.muted.Load() {
		return 0
	}

	return int(a.volume.Load())
}

func (a *Adapter) applyVolume() error {
	err := a.call(func(p Player) error { return p.SetVolume(a.effectiveVolume()) })
	if errors.Is(err, domain.ErrTransportUnavailable) && !a.Ready() {
		return nil
	}

	return err
}

// Schedule runs fn against the active instance after delay unless that
// instance is destroyed, or replaced in place, first. The returned function
// cancels the task.
func (a *Adapter) Schedule(delay time.Duration, fn func(p Player) error) (cancel func()) {
	inst := a.current()
	if inst == nil {
		return func() {}
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		if inst.destroyed.Load() || a.current() != inst || !inst.ready.Load() {
			return
		}
		if err := guard(func() error { return fn(inst.player) }); err != nil {
			a.logger.Debug("scheduled transport task failed", "instance_id", inst.id, "error", err)
			a.dropIfLost(inst, err)
		}
	})

	inst.mu.Lock()
	inst.timers = append(inst.timers, t)
	inst.mu.Unlock()

	return func() { t.Stop() }
}

type instanceEvents struct {
	adapter *Adapter
	inst    *instance
}

func (e *instanceEvents) OnReady() {
	inst := e.inst
	if inst.destroyed.Load() || inst.ready.Load() {
		return
	}

	inst.mu.Lock()
	player := inst.player
	inst.mu.Unlock()
	if player == nil {
		return
	}

	if err := guard(func() error { return player.Seek(inst.startAt, true) }); err != nil {
		e.adapter.logger.Debug("initial seek failed", "instance_id", inst.id, "error", err)
	}
	if inst.autoplay {
		if err := guard(player.Play); err != nil {
			e.adapter.logger.Debug("autoplay failed", "instance_id", inst.id, "error", err)
		}
	}
	if err := guard(func() error { return player.SetVolume(e.adapter.effectiveVolume()) }); err != nil {
		e.adapter.logger.Debug("initial volume failed", "instance_id", inst.id, "error", err)
	}

	inst.ready.Store(true)
	e.adapter.logger.Debug("transport ready", "instance_id", inst.id)
}

func (e *instanceEvents) OnStateChange(state domain.PlayerState) {
	inst := e.inst
	if inst.destroyed.Load() {
		return
	}

	inst.mu.Lock()
	videoID := inst.videoID
	inst.mu.Unlock()

	e.adapter.listenersMu.RLock()
	listeners := append([]StateListener(nil), e.adapter.listeners...)
	e.adapter.listenersMu.RUnlock()

	for _, l := range listeners {
		l(videoID, state)
	}
}
