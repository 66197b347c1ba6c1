package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/repository/session"
	"github.com/sharetube/client/internal/roomservice"
	"github.com/sharetube/client/pkg/validator"
)

const (
	RoomCodeLength    = 6
	NicknameMaxLength = 32
)

type iSessionRepo interface {
	Save(context.Context, *session.Record) error
	Load(context.Context) (session.Record, error)
	Clear(context.Context) error
}

type iRoomService interface {
	CreateRoom(ctx context.Context, nickname string) (roomservice.CreateRoomResponse, error)
	JoinRoom(ctx context.Context, roomCode, nickname string) (roomservice.JoinRoomResponse, error)
	LeaveRoom(ctx context.Context, roomCode, userID string) error
}

// Listener is notified whenever the active session starts or ends. It is the
// only trigger for starting and stopping synchronization.
type Listener interface {
	OnSessionStarted(ctx context.Context, s domain.Session)
	OnSessionEnded(ctx context.Context, s domain.Session)
}

type service struct {
	repo        iSessionRepo
	roomService iRoomService
	validate    *validator.Validator
	logger      *slog.Logger

	// serializes session transitions
	mu        sync.Mutex
	current   atomic.Pointer[domain.Session]
	listeners []Listener
}

func NewService(repo iSessionRepo, roomService iRoomService, logger *slog.Logger) *service {
	return &service{
		repo:        repo,
		roomService: roomService,
		validate:    validator.NewValidator(),
		logger:      logger,
	}
}

// Subscribe must be called before the first session transition.
func (s *service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
}

func (s *service) Current() (domain.Session, bool) {
	cur := s.current.Load()
	if cur == nil {
		return domain.Session{}, false
	}

	return *cur, true
}

type createInput struct {
	Nickname string `json:"nickname" validate:"required,max=32"`
}

type joinInput struct {
	RoomCode string `json:"room_code" validate:"required,len=6,alphanum"`
	Nickname string `json:"nickname" validate:"required,max=32"`
}

func (s *service) check(input any) error {
	if fields, ok := s.validate.Validate(input); !ok {
		return &domain.ValidationError{Fields: fields}
	}

	return nil
}

// NormalizeRoomCode trims and upper-cases a user supplied room code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Create(ctx context.Context, nickname string) (domain.Session, error) {
	input := createInput{Nickname: strings.TrimSpace(nickname)}
	if err := s.check(&input); err != nil {
		return domain.Session{}, err
	}

	resp, err := s.roomService.CreateRoom(ctx, input.Nickname)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to create room: %w", err)
	}

	sess := domain.Session{
		Nickname: input.Nickname,
		UserID:   resp.UserID,
		RoomCode: resp.RoomCode,
	}
	s.activate(ctx, sess)
	s.logger.InfoContext(ctx, "room created", "room_code", sess.RoomCode)

	return sess, nil
}

func (s *service) Join(ctx context.Context, roomCode, nickname string) (domain.Session, error) {
	input := joinInput{
		RoomCode: NormalizeRoomCode(roomCode),
		Nickname: strings.TrimSpace(nickname),
	}
	if err := s.check(&input); err != nil {
		return domain.Session{}, err
	}

	resp, err := s.roomService.JoinRoom(ctx, input.RoomCode, input.Nickname)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to join room: %w", err)
	}

	code := resp.RoomCode
	if code == "" {
		code = input.RoomCode
	}
	sess := domain.Session{
		Nickname: input.Nickname,
		UserID:   resp.UserID,
		RoomCode: code,
	}
	s.activate(ctx, sess)
	s.logger.InfoContext(ctx, "room joined", "room_code", sess.RoomCode)

	return sess, nil
}

// activate persists sess and makes it the single active session, ending any
// previous one.
func (s *service) activate(ctx context.Context, sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, &session.Record{
		Nickname: sess.Nickname,
		UserID:   sess.UserID,
		RoomCode: sess.RoomCode,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to persist session", "error", err)
	}

	prev := s.current.Swap(&sess)
	if prev != nil {
		s.notifyEnded(ctx, *prev)
	}
	s.notifyStarted(ctx, sess)
}

// Leave notifies the Room Service best-effort and clears local state
// regardless of the outcome.
func (s *service) Leave(ctx context.Context) {
	cur, ok := s.Current()
	if !ok {
		return
	}

	if err := s.roomService.LeaveRoom(ctx, cur.RoomCode, cur.UserID); err != nil {
		s.logger.WarnContext(ctx, "failed to notify room service about leave", "room_code", cur.RoomCode, "error", err)
	}

	s.Clear(ctx, cur)
	s.logger.InfoContext(ctx, "room left", "room_code", cur.RoomCode)
}

// Clear tears the session down locally without contacting the Room Service.
// It is a no-op when expected is no longer the active session.
func (s *service) Clear(ctx context.Context, expected domain.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur == nil || *cur != expected {
		return false
	}

	if err := s.repo.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to clear persisted session", "error", err)
	}
	s.current.Store(nil)
	s.notifyEnded(ctx, expected)

	return true
}

// Restore activates the persisted session, if a complete one exists. An
// incomplete record is discarded.
func (s *service) Restore(ctx context.Context) (domain.Session, bool, error) {
	record, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, fmt.Errorf("failed to load session: %w", err)
	}

	sess := domain.Session{
		Nickname: record.Nickname,
		UserID:   record.UserID,
		RoomCode: record.RoomCode,
	}
	if !sess.Valid() {
		s.logger.InfoContext(ctx, "discarding incomplete persisted session")
		if err := s.repo.Clear(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to clear persisted session", "error", err)
		}
		return domain.Session{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Swap(&sess)
	if prev != nil {
		s.notifyEnded(ctx, *prev)
	}
	s.notifyStarted(ctx, sess)
	s.logger.InfoContext(ctx, "session restored", "room_code", sess.RoomCode)

	return sess, true, nil
}

// Shutdown handles process teardown: the Room Service is told best-effort
// that the user left when leave is set, listeners are stopped, and the
// persisted record is kept so the session can be restored on next start.
func (s *service) Shutdown(ctx context.Context, leave bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Swap(nil)
	if cur == nil {
		return
	}

	if leave {
		if err := s.roomService.LeaveRoom(ctx, cur.RoomCode, cur.UserID); err != nil {
			s.logger.WarnContext(ctx, "failed to notify room service on shutdown", "error", err)
		}
	}
	s.notifyEnded(ctx, *cur)
}

func (s *service) notifyStarted(ctx context.Context, sess domain.Session) {
	for _, l := range s.listeners {
		l.OnSessionStarted(ctx, sess)
	}
}

func (s *service) notifyEnded(ctx context.Context, sess domain.Session) {
	for _, l := range s.listeners {
		l.OnSessionEnded(ctx, sess)
	}
}
