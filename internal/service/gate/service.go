package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/metrics"
	"github.com/sharetube/client/internal/roomservice"
	"github.com/sharetube/client/pkg/validator"
	"github.com/sharetube/client/pkg/ytvideodata"
	"golang.org/x/sync/semaphore"
)

var (
	ErrActionInFlight = errors.New("action already in flight")
	ErrNoSession      = errors.New("no active session")
)

type iSessionStore interface {
	Current() (domain.Session, bool)
}

type iPoller interface {
	Snapshot() *domain.RoomSnapshot
	Refresh(ctx context.Context, force bool) (*domain.RoomSnapshot, error)
}

type iRoomService interface {
	SetPlayState(ctx context.Context, params *roomservice.SetPlayStateParams) error
	NextVideo(ctx context.Context, roomCode string) error
	PreviousVideo(ctx context.Context, roomCode string) error
	SendChat(ctx context.Context, params *roomservice.SendChatParams) error
	AddToQueue(ctx context.Context, params *roomservice.AddToQueueParams) error
	GetConnectedUsers(ctx context.Context, roomCode string) ([]domain.User, error)
}

type iTransport interface {
	Seek(at float64, allowAhead bool) error
	CurrentTime() (float64, error)
}

type iVideoData interface {
	Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error)
}

type service struct {
	store       iSessionStore
	poller      iPoller
	roomService iRoomService
	transport   iTransport
	videoData   iVideoData
	validate    *validator.Validator
	logger      *slog.Logger

	locks map[domain.ActionCategory]*semaphore.Weighted
	draft *Draft
}

type Params struct {
	Store       iSessionStore
	Poller      iPoller
	RoomService iRoomService
	Transport   iTransport
	VideoData   iVideoData
	Logger      *slog.Logger
}

func NewService(params *Params) *service {
	locks := make(map[domain.ActionCategory]*semaphore.Weighted, len(domain.ActionCategories))
	for _, c := range domain.ActionCategories {
		locks[c] = semaphore.NewWeighted(1)
	}

	return &service{
		store:       params.Store,
		poller:      params.Poller,
		roomService: params.RoomService,
		transport:   params.Transport,
		videoData:   params.VideoData,
		validate:    validator.NewValidator(),
		logger:      params.Logger,
		locks:       locks,
		draft:       &Draft{},
	}
}

func (s *service) Draft() *Draft {
	return s.draft
}

// do runs fn under the category lock and forces a refresh on success. A held
// lock rejects the action before it reaches the network.
func (s *service) do(ctx context.Context, category domain.ActionCategory, fn func(ctx context.Context, sess domain.Session) error) error {
	sess, ok := s.store.Current()
	if !ok {
		return ErrNoSession
	}

	lock := s.locks[category]
	if !lock.TryAcquire(1) {
		metrics.ActionsTotal.WithLabelValues(string(category), metrics.ResultRejected).Inc()
		return ErrActionInFlight
	}
	defer lock.Release(1)

	if err := fn(ctx, sess); err != nil {
		metrics.ActionsTotal.WithLabelValues(string(category), metrics.ResultError).Inc()
		s.logger.DebugContext(ctx, "action failed", "category", category, "error", err)
		return err
	}
	metrics.ActionsTotal.WithLabelValues(string(category), metrics.ResultOK).Inc()

	if _, err := s.poller.Refresh(ctx, true); err != nil {
		s.logger.DebugContext(ctx, "refresh after action failed", "category", category, "error", err)
	}

	return nil
}

func (s *service) setPlayState(ctx context.Context, sess domain.Session, isPlaying bool, at float64) error {
	if err := s.roomService.SetPlayState(ctx, &roomservice.SetPlayStateParams{
		RoomCode:    sess.RoomCode,
		IsPlaying:   isPlaying,
		CurrentTime: at,
	}); err != nil {
		return fmt.Errorf("failed to set play state: %w", err)
	}

	return nil
}

func checkTime(at float64) error {
	if at < 0 {
		return domain.NewValidationError("current_time", "GTE", "current_time is out of range")
	}

	return nil
}

func (s *service) SetPlayState(ctx context.Context, isPlaying bool, at float64) error {
	funcName := "gate.SetPlayState"
	s.logger.DebugContext(ctx, funcName, "is_playing", isPlaying, "at", at)

	if err := checkTime(at); err != nil {
		return err
	}

	return s.do(ctx, domain.ActionPlayState, func(ctx context.Context, sess domain.Session) error {
		return s.setPlayState(ctx, sess, isPlaying, at)
	})
}

// TogglePlayState flips the room's play state at the local playhead, or at
// the room's playhead when the transport cannot report one.
func (s *service) TogglePlayState(ctx context.Context) (bool, error) {
	funcName := "gate.TogglePlayState"
	s.logger.DebugContext(ctx, funcName)

	var isPlaying bool
	err := s.do(ctx, domain.ActionPlayState, func(ctx context.Context, sess domain.Session) error {
		snap := s.poller.Snapshot()
		if snap == nil || snap.CurrentVideo == nil {
			return fmt.Errorf("failed to toggle play state: %w", domain.NewValidationError("current_video", "REQUIRED", "nothing is playing"))
		}

		at, err := s.transport.CurrentTime()
		if err != nil {
			at = snap.CurrentTime
		}
		isPlaying = !snap.IsPlaying

		return s.setPlayState(ctx, sess, isPlaying, at)
	})

	return isPlaying, err
}

func (s *service) SkipNext(ctx context.Context) error {
	funcName := "gate.SkipNext"
	s.logger.DebugContext(ctx, funcName)

	return s.do(ctx, domain.ActionSkip, func(ctx context.Context, sess domain.Session) error {
		if err := s.roomService.NextVideo(ctx, sess.RoomCode); err != nil {
			return fmt.Errorf("failed to skip to next video: %w", err)
		}
		return nil
	})
}

func (s *service) SkipPrevious(ctx context.Context) error {
	funcName := "gate.SkipPrevious"
	s.logger.DebugContext(ctx, funcName)

	return s.do(ctx, domain.ActionSkip, func(ctx context.Context, sess domain.Session) error {
		if err := s.roomService.PreviousVideo(ctx, sess.RoomCode); err != nil {
			return fmt.Errorf("failed to skip to previous video: %w", err)
		}
		return nil
	})
}

// Seek moves the local playhead at once, then submits the new position with
// the room's current play state.
func (s *service) Seek(ctx context.Context, at float64) error {
	funcName := "gate.Seek"
	s.logger.DebugContext(ctx, funcName, "at", at)

	if err := checkTime(at); err != nil {
		return err
	}

	return s.do(ctx, domain.ActionSeek, func(ctx context.Context, sess domain.Session) error {
		if err := s.transport.Seek(at, true); err != nil {
			s.logger.DebugContext(ctx, "local seek skipped", "error", err)
		}

		isPlaying := false
		if snap := s.poller.Snapshot(); snap != nil {
			isPlaying = snap.IsPlaying
		}

		return s.setPlayState(ctx, sess, isPlaying, at)
	})
}

// SendChat sends the draft. The draft is emptied before the request and
// restored verbatim when it fails.
func (s *service) SendChat(ctx context.Context) error {
	funcName := "gate.SendChat"
	s.logger.DebugContext(ctx, funcName)

	if strings.TrimSpace(s.draft.Text()) == "" {
		return domain.NewValidationError("message", "REQUIRED", "message is required")
	}

	return s.do(ctx, domain.ActionChat, func(ctx context.Context, sess domain.Session) error {
		raw := s.draft.take()
		message := strings.TrimSpace(raw)
		if message == "" {
			s.draft.Set(raw)
			return domain.NewValidationError("message", "REQUIRED", "message is required")
		}

		if err := s.roomService.SendChat(ctx, &roomservice.SendChatParams{
			RoomCode: sess.RoomCode,
			UserID:   sess.UserID,
			Message:  message,
		}); err != nil {
			s.draft.Set(raw)
			return fmt.Errorf("failed to send chat message: %w", err)
		}

		return nil
	})
}

type queueInput struct {
	VideoID string `json:"video_id" validate:"required,max=64"`
}

// AddToQueue submits video, resolving a missing title or thumbnail first.
func (s *service) AddToQueue(ctx context.Context, video domain.Video) (domain.Video, error) {
	funcName := "gate.AddToQueue"
	s.logger.DebugContext(ctx, funcName, "video_id", video.VideoID)

	video.VideoID = strings.TrimSpace(video.VideoID)
	if fields, ok := s.validate.Validate(&queueInput{VideoID: video.VideoID}); !ok {
		return domain.Video{}, &domain.ValidationError{Fields: fields}
	}

	err := s.do(ctx, domain.ActionQueueAdd, func(ctx context.Context, sess domain.Session) error {
		video = s.resolve(ctx, video)
		video.AddedBy = sess.Nickname

		if err := s.roomService.AddToQueue(ctx, &roomservice.AddToQueueParams{
			RoomCode:  sess.RoomCode,
			UserID:    sess.UserID,
			VideoID:   video.VideoID,
			Title:     video.Title,
			Thumbnail: video.Thumbnail,
		}); err != nil {
			return fmt.Errorf("failed to add video to queue: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Video{}, err
	}

	return video, nil
}

func (s *service) resolve(ctx context.Context, video domain.Video) domain.Video {
	if video.Title != "" && video.Thumbnail != "" {
		return video
	}

	data, err := s.videoData.Get(ctx, video.VideoID)
	if err != nil {
		s.logger.WarnContext(ctx, "video metadata unavailable", "video_id", video.VideoID, "error", err)
		data = &ytvideodata.VideoData{}
	}

	if video.Title == "" {
		video.Title = data.Title
	}
	if video.Title == "" {
		video.Title = video.VideoID
	}
	if video.Thumbnail == "" {
		video.Thumbnail = data.ThumbnailUrl
	}
	if video.Thumbnail == "" {
		video.Thumbnail = ytvideodata.ThumbnailURL(video.VideoID)
	}

	return video
}

// Members lists the users connected to the current room.
func (s *service) Members(ctx context.Context) ([]domain.User, error) {
	sess, ok := s.store.Current()
	if !ok {
		return nil, ErrNoSession
	}

	users, err := s.roomService.GetConnectedUsers(ctx, sess.RoomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}

	return users, nil
}
