package domain

import (
	"slices"
	"time"
)

type Video struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	AddedBy   string `json:"added_by"`
}

type User struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

type ChatMessage struct {
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
	// nanoseconds since epoch
	Timestamp int64 `json:"timestamp"`
}

// RoomSnapshot is one complete read of authoritative room state. A published
// snapshot is never mutated; readers get copies via Clone.
type RoomSnapshot struct {
	RoomCode     string        `json:"room_code"`
	Queue        []Video       `json:"queue"`
	History      []Video       `json:"history"`
	CurrentVideo *Video        `json:"current_video,omitempty"`
	CurrentTime  float64       `json:"current_time"`
	IsPlaying    bool          `json:"is_playing"`
	Users        []User        `json:"users"`
	ChatHistory  []ChatMessage `json:"chat_history"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

func (s *RoomSnapshot) Clone() *RoomSnapshot {
	if s == nil {
		return nil
	}

	c := *s
	c.Queue = slices.Clone(s.Queue)
	c.History = slices.Clone(s.History)
	c.Users = slices.Clone(s.Users)
	c.ChatHistory = slices.Clone(s.ChatHistory)
	if s.CurrentVideo != nil {
		v := *s.CurrentVideo
		c.CurrentVideo = &v
	}

	return &c
}

// CurrentVideoID returns the id of the current video or "" when idle.
func (s *RoomSnapshot) CurrentVideoID() string {
	if s == nil || s.CurrentVideo == nil {
		return ""
	}

	return s.CurrentVideo.VideoID
}

// SortedChat returns the chat log ordered by timestamp, oldest first.
func (s *RoomSnapshot) SortedChat() []ChatMessage {
	msgs := slices.Clone(s.ChatHistory)
	slices.SortStableFunc(msgs, func(a, b ChatMessage) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})

	return msgs
}
