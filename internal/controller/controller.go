package controller

import (
	"context"
	"log/slog"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/service/gate"
	"github.com/sharetube/client/pkg/validator"
)

type iSessionService interface {
	Current() (domain.Session, bool)
	Create(ctx context.Context, nickname string) (domain.Session, error)
	Join(ctx context.Context, roomCode, nickname string) (domain.Session, error)
	Leave(ctx context.Context)
}

type iGate interface {
	SetPlayState(ctx context.Context, isPlaying bool, at float64) error
	TogglePlayState(ctx context.Context) (bool, error)
	SkipNext(ctx context.Context) error
	SkipPrevious(ctx context.Context) error
	Seek(ctx context.Context, at float64) error
	SendChat(ctx context.Context) error
	AddToQueue(ctx context.Context, video domain.Video) (domain.Video, error)
	Members(ctx context.Context) ([]domain.User, error)
	Draft() *gate.Draft
}

type iPoller interface {
	Snapshot() *domain.RoomSnapshot
}

type iPlayer interface {
	SetVolume(volume int) error
	SetMuted(muted bool) error
	Volume() (int, bool)
}

type Params struct {
	Session iSessionService
	Gate    iGate
	Poller  iPoller
	Player  iPlayer
	Logger  *slog.Logger
}

type controller struct {
	session  iSessionService
	gate     iGate
	poller   iPoller
	player   iPlayer
	validate *validator.Validator
	logger   *slog.Logger
}

func NewController(params *Params) *controller {
	return &controller{
		session:  params.Session,
		gate:     params.Gate,
		poller:   params.Poller,
		player:   params.Player,
		validate: validator.NewValidator(),
		logger:   params.Logger,
	}
}
