package domain

import "fmt"

type PlayerState int

const (
	PlayerStateUnstarted PlayerState = -1
	PlayerStateEnded     PlayerState = 0
	PlayerStatePlaying   PlayerState = 1
	PlayerStatePaused    PlayerState = 2
	PlayerStateBuffering PlayerState = 3
	PlayerStateCued      PlayerState = 5
)

// IsPlayingLike reports whether the transport is playing or about to.
func (s PlayerState) IsPlayingLike() bool {
	return s == PlayerStatePlaying || s == PlayerStateBuffering
}

func (s PlayerState) String() string {
	switch s {
	case PlayerStateUnstarted:
		return "unstarted"
	case PlayerStateEnded:
		return "ended"
	case PlayerStatePlaying:
		return "playing"
	case PlayerStatePaused:
		return "paused"
	case PlayerStateBuffering:
		return "buffering"
	case PlayerStateCued:
		return "cued"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// LocalObservation is what the local transport reports during one
// reconciliation pass.
type LocalObservation struct {
	VideoID   string
	LocalTime float64
	State     PlayerState
}

type ActionCategory string

const (
	ActionPlayState ActionCategory = "play_state"
	ActionSkip      ActionCategory = "skip"
	ActionSeek      ActionCategory = "seek"
	ActionChat      ActionCategory = "chat"
	ActionQueueAdd  ActionCategory = "queue_add"
)

var ActionCategories = []ActionCategory{
	ActionPlayState,
	ActionSkip,
	ActionSeek,
	ActionChat,
	ActionQueueAdd,
}
