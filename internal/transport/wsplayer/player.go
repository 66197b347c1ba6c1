package wsplayer

import (
	"fmt"
	"sync"
	"time"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/transport"
)

type player struct {
	bridge *Bridge
	id     string
	events transport.Events

	mu         sync.Mutex
	videoID    string
	status     statusPayload
	receivedAt time.Time
	destroyed  bool
	lost       bool
}

// markLost flags the player as gone with its connection.
func (p *player) markLost() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lost = true
}

// unusableLocked reports why the player can no longer serve calls.
func (p *player) unusableLocked() error {
	switch {
	case p.destroyed:
		return ErrNotConnected
	case p.lost:
		return fmt.Errorf("instance %s: %w", p.id, transport.ErrInstanceLost)
	}

	return nil
}

func (p *player) setStatus(status statusPayload, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = status
	p.receivedAt = at
}

func (p *player) setState(state domain.PlayerState, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.CurrentTime = p.currentTimeLocked(at)
	p.status.State = state
	p.receivedAt = at
}

// currentTimeLocked extrapolates the last reported playhead while playing.
func (p *player) currentTimeLocked(now time.Time) float64 {
	t := p.status.CurrentTime
	if p.status.State == domain.PlayerStatePlaying && !p.receivedAt.IsZero() {
		t += now.Sub(p.receivedAt).Seconds()
	}
	if p.status.Duration > 0 && t > p.status.Duration {
		t = p.status.Duration
	}

	return t
}

func (p *player) command(msgType string, payload any) error {
	p.mu.Lock()
	err := p.unusableLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	return p.bridge.send(msgType, payload)
}

func (p *player) LoadVideo(videoID string, at float64) error {
	if err := p.command(typeLoad, loadPayload{InstanceID: p.id, VideoID: videoID, At: at}); err != nil {
		return err
	}

	p.mu.Lock()
	p.videoID = videoID
	p.status.CurrentTime = at
	p.receivedAt = p.bridge.now()
	p.mu.Unlock()

	return nil
}

func (p *player) Play() error {
	return p.command(typePlay, instancePayload{InstanceID: p.id})
}

func (p *player) Pause() error {
	return p.command(typePause, instancePayload{InstanceID: p.id})
}

func (p *player) Seek(at float64, allowAhead bool) error {
	if err := p.command(typeSeek, seekPayload{InstanceID: p.id, At: at, AllowAhead: allowAhead}); err != nil {
		return err
	}

	p.mu.Lock()
	p.status.CurrentTime = at
	p.receivedAt = p.bridge.now()
	p.mu.Unlock()

	return nil
}

func (p *player) CurrentTime() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.unusableLocked(); err != nil {
		return 0, err
	}

	return p.currentTimeLocked(p.bridge.now()), nil
}

func (p *player) Duration() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.unusableLocked(); err != nil {
		return 0, err
	}

	return p.status.Duration, nil
}

func (p *player) State() (domain.PlayerState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.unusableLocked(); err != nil {
		return domain.PlayerStateUnstarted, err
	}

	return p.status.State, nil
}

func (p *player) SetVolume(volume int) error {
	return p.command(typeVolume, volumePayload{InstanceID: p.id, Volume: volume})
}

func (p *player) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	lost := p.lost
	p.mu.Unlock()

	// a lost instance no longer exists on the bridge
	if lost {
		return nil
	}
	p.bridge.forget(p.id)

	return p.bridge.send(typeDestroy, instancePayload{InstanceID: p.id})
}
