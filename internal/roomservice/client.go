package roomservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sharetube/client/internal/domain"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the authoritative Room Service over HTTP/JSON.
type Client struct {
	httpClient *resty.Client
	logger     *slog.Logger
}

func NewClient(cfg *Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		httpClient: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
}

func roomPath(roomCode string, rest string) string {
	return "/rooms/" + url.PathEscape(roomCode) + rest
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.httpClient.R().
		SetContext(ctx).
		SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrTransient, method, path, err)
	}

	if resp.IsError() {
		msg := ""
		if eb, ok := resp.Error().(*errorBody); ok {
			msg = eb.Error
		}

		c.logger.DebugContext(ctx, "room service error response",
			"method", method,
			"path", path,
			"status", resp.StatusCode(),
			"message", msg,
		)

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
		case resp.StatusCode() >= http.StatusInternalServerError,
			resp.StatusCode() == http.StatusRequestTimeout,
			resp.StatusCode() == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d: %s", domain.ErrTransient, resp.StatusCode(), msg)
		default:
			return &ServiceError{Status: resp.StatusCode(), Message: msg}
		}
	}

	return nil
}

func (c *Client) CreateRoom(ctx context.Context, nickname string) (CreateRoomResponse, error) {
	var resp CreateRoomResponse
	if err := c.do(ctx, http.MethodPost, "/rooms", &nicknameBody{Nickname: nickname}, &resp); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
	}

	return resp, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomCode, nickname string) (JoinRoomResponse, error) {
	var resp JoinRoomResponse
	if err := c.do(ctx, http.MethodPost, roomPath(roomCode, "/members"), &nicknameBody{Nickname: nickname}, &resp); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to join room: %w", err)
	}

	return resp, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomCode, userID string) error {
	if err := c.do(ctx, http.MethodDelete, roomPath(roomCode, "/members/"+url.PathEscape(userID)), nil, nil); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

func (c *Client) GetRoomState(ctx context.Context, roomCode string) (*domain.RoomSnapshot, error) {
	var resp roomStateResponse
	if err := c.do(ctx, http.MethodGet, roomPath(roomCode, "/state"), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get room state: %w", err)
	}

	return &domain.RoomSnapshot{
		RoomCode:     roomCode,
		Queue:        resp.Queue,
		History:      resp.History,
		CurrentVideo: resp.CurrentVideo,
		CurrentTime:  resp.CurrentTime,
		IsPlaying:    resp.IsPlaying,
		Users:        resp.Users,
		ChatHistory:  resp.ChatHistory,
		FetchedAt:    time.Now(),
	}, nil
}

func (c *Client) AddToQueue(ctx context.Context, params *AddToQueueParams) error {
	if err := c.do(ctx, http.MethodPost, roomPath(params.RoomCode, "/queue"), params, nil); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

func (c *Client) NextVideo(ctx context.Context, roomCode string) error {
	if err := c.do(ctx, http.MethodPost, roomPath(roomCode, "/player/next"), nil, nil); err != nil {
		return fmt.Errorf("failed to skip to next video: %w", err)
	}

	return nil
}

func (c *Client) PreviousVideo(ctx context.Context, roomCode string) error {
	if err := c.do(ctx, http.MethodPost, roomPath(roomCode, "/player/previous"), nil, nil); err != nil {
		return fmt.Errorf("failed to skip to previous video: %w", err)
	}

	return nil
}

func (c *Client) SendChat(ctx context.Context, params *SendChatParams) error {
	if err := c.do(ctx, http.MethodPost, roomPath(params.RoomCode, "/chat"), params, nil); err != nil {
		return fmt.Errorf("failed to send chat: %w", err)
	}

	return nil
}

func (c *Client) SetPlayState(ctx context.Context, params *SetPlayStateParams) error {
	if err := c.do(ctx, http.MethodPut, roomPath(params.RoomCode, "/player"), params, nil); err != nil {
		return fmt.Errorf("failed to set play state: %w", err)
	}

	return nil
}

func (c *Client) GetConnectedUsers(ctx context.Context, roomCode string) ([]domain.User, error) {
	var users []domain.User
	if err := c.do(ctx, http.MethodGet, roomPath(roomCode, "/members"), nil, &users); err != nil {
		return nil, fmt.Errorf("failed to get connected users: %w", err)
	}

	return users, nil
}
