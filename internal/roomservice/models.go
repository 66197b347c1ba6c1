package roomservice

import "github.com/sharetube/client/internal/domain"

type CreateRoomResponse struct {
	UserID   string `json:"user_id"`
	RoomCode string `json:"room_code"`
}

type JoinRoomResponse struct {
	UserID   string `json:"user_id"`
	RoomCode string `json:"room_code"`
}

type AddToQueueParams struct {
	RoomCode  string `json:"-"`
	UserID    string `json:"user_id"`
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

type SetPlayStateParams struct {
	RoomCode    string  `json:"-"`
	IsPlaying   bool    `json:"is_playing"`
	CurrentTime float64 `json:"current_time"`
}

type SendChatParams struct {
	RoomCode string `json:"-"`
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
}

type nicknameBody struct {
	Nickname string `json:"nickname"`
}

type roomStateResponse struct {
	Queue        []domain.Video       `json:"queue"`
	History      []domain.Video       `json:"history"`
	CurrentVideo *domain.Video        `json:"current_video,omitempty"`
	CurrentTime  float64              `json:"current_time"`
	IsPlaying    bool                 `json:"is_playing"`
	Users        []domain.User        `json:"users"`
	ChatHistory  []domain.ChatMessage `json:"chat_history"`
}
