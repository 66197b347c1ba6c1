package transport

import (
	"context"
	"errors"

	"github.com/sharetube/client/internal/domain"
)

// ErrInstanceLost is returned by a Player whose backing instance went away
// without being destroyed, e.g. when its connection dropped.
var ErrInstanceLost = errors.New("transport instance lost")

// Player is the capability set of one external media transport instance.
type Player interface {
	LoadVideo(videoID string, at float64) error
	Play() error
	Pause() error
	Seek(at float64, allowAhead bool) error
	CurrentTime() (float64, error)
	Duration() (float64, error)
	State() (domain.PlayerState, error)
	SetVolume(volume int) error
	Destroy() error
}

// Events receives notifications from a Player instance. Implementations must
// deliver events asynchronously, never from inside NewPlayer.
type Events interface {
	OnReady()
	OnStateChange(state domain.PlayerState)
}

type Options struct {
	InstanceID string
	VideoID    string
	StartAt    float64
	Autoplay   bool
}

type Factory interface {
	NewPlayer(ctx context.Context, opts Options, events Events) (Player, error)
}
