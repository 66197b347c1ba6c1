// Package simplayer is a headless transport that advances a virtual playhead
// with the wall clock.
package simplayer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/transport"
)

const DefaultVideoDuration = 240 * time.Second

var ErrDestroyed = errors.New("player destroyed")

type Config struct {
	ReadyDelay    time.Duration
	VideoDuration time.Duration
	// DurationFor overrides VideoDuration per video when set.
	DurationFor func(videoID string) time.Duration
}

type factory struct {
	cfg Config
	now func() time.Time
}

func NewFactory(cfg *Config) *factory {
	c := *cfg
	if c.VideoDuration <= 0 {
		c.VideoDuration = DefaultVideoDuration
	}

	return &factory{cfg: c, now: time.Now}
}

func (f *factory) duration(videoID string) time.Duration {
	if f.cfg.DurationFor != nil {
		if d := f.cfg.DurationFor(videoID); d > 0 {
			return d
		}
	}

	return f.cfg.VideoDuration
}

func (f *factory) NewPlayer(_ context.Context, opts transport.Options, events transport.Events) (transport.Player, error) {
	p := &player{
		factory:  f,
		events:   events,
		videoID:  opts.VideoID,
		duration: f.duration(opts.VideoID),
		state:    domain.PlayerStateUnstarted,
		volume:   100,
	}

	p.readyTimer = time.AfterFunc(f.cfg.ReadyDelay, p.becomeReady)

	return p, nil
}

type player struct {
	factory *factory
	events  transport.Events

	mu         sync.Mutex
	videoID    string
	duration   time.Duration
	state      domain.PlayerState
	position   time.Duration
	anchoredAt time.Time
	volume     int
	destroyed  bool
	readyTimer *time.Timer
	endTimer   *time.Timer
}

func (p *player) becomeReady() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.state = domain.PlayerStateCued
	p.mu.Unlock()

	p.events.OnReady()
}

// positionLocked returns the playhead, advancing it while playing.
func (p *player) positionLocked() time.Duration {
	if p.state != domain.PlayerStatePlaying {
		return p.position
	}

	pos := p.position + p.factory.now().Sub(p.anchoredAt)
	if pos > p.duration {
		pos = p.duration
	}

	return pos
}

func (p *player) stopEndTimerLocked() {
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
}

func (p *player) armEndTimerLocked() {
	p.stopEndTimerLocked()

	remaining := p.duration - p.position
	if remaining < 0 {
		remaining = 0
	}
	p.endTimer = time.AfterFunc(remaining, p.end)
}

func (p *player) end() {
	p.mu.Lock()
	if p.destroyed || p.state != domain.PlayerStatePlaying {
		p.mu.Unlock()
		return
	}
	p.position = p.duration
	p.state = domain.PlayerStateEnded
	p.endTimer = nil
	p.mu.Unlock()

	p.events.OnStateChange(domain.PlayerStateEnded)
}

// transition applies fn under the lock and emits a state change when the
// state differs afterwards.
func (p *player) transition(fn func()) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	before := p.state
	fn()
	after := p.state
	p.mu.Unlock()

	if before != after {
		p.events.OnStateChange(after)
	}

	return nil
}

func (p *player) LoadVideo(videoID string, at float64) error {
	return p.transition(func() {
		p.videoID = videoID
		p.duration = p.factory.duration(videoID)
		p.position = clampPosition(seconds(at), p.duration)
		p.anchoredAt = p.factory.now()
		p.state = domain.PlayerStatePlaying
		p.armEndTimerLocked()
	})
}

func (p *player) Play() error {
	return p.transition(func() {
		if p.state == domain.PlayerStatePlaying {
			return
		}
		if p.state == domain.PlayerStateEnded {
			p.position = 0
		}
		p.anchoredAt = p.factory.now()
		p.state = domain.PlayerStatePlaying
		p.armEndTimerLocked()
	})
}

func (p *player) Pause() error {
	return p.transition(func() {
		if p.state == domain.PlayerStatePaused {
			return
		}
		p.position = p.positionLocked()
		p.state = domain.PlayerStatePaused
		p.stopEndTimerLocked()
	})
}

func (p *player) Seek(at float64, _ bool) error {
	return p.transition(func() {
		p.position = clampPosition(seconds(at), p.duration)
		p.anchoredAt = p.factory.now()
		if p.state == domain.PlayerStatePlaying {
			p.armEndTimerLocked()
		}
	})
}

func (p *player) CurrentTime() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return 0, ErrDestroyed
	}

	return p.positionLocked().Seconds(), nil
}

func (p *player) Duration() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return 0, ErrDestroyed
	}

	return p.duration.Seconds(), nil
}

func (p *player) State() (domain.PlayerState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return domain.PlayerStateUnstarted, ErrDestroyed
	}

	return p.state, nil
}

func (p *player) SetVolume(volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrDestroyed
	}
	p.volume = volume

	return nil
}

// VolumeLevel returns the last volume applied.
func (p *player) VolumeLevel() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.volume
}

func (p *player) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil
	}
	p.destroyed = true
	p.readyTimer.Stop()
	p.stopEndTimerLocked()

	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func clampPosition(pos, duration time.Duration) time.Duration {
	switch {
	case pos < 0:
		return 0
	case pos > duration:
		return duration
	}
	return pos
}
