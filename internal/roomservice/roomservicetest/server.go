// Package roomservicetest provides an in-memory Room Service speaking the
// same HTTP/JSON contract as the real one. It backs integration tests and
// local development.
package roomservicetest

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sharetube/client/internal/domain"
)

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type room struct {
	code         string
	queue        []domain.Video
	history      []domain.Video
	currentVideo *domain.Video
	isPlaying    bool
	// playhead at anchorAt
	anchorTime float64
	anchorAt   time.Time
	users      []domain.User
	chat       []domain.ChatMessage
}

type Server struct {
	mu          sync.Mutex
	rooms       map[string]*room
	hits        map[string]*atomic.Int64
	now         func() time.Time
	unavailable atomic.Bool
	latency     atomic.Int64
	// route -> forced status/message
	failures map[string]failure
}

type failure struct {
	status  int
	message string
}

func NewServer() *Server {
	return &Server{
		rooms:    make(map[string]*room),
		hits:     make(map[string]*atomic.Int64),
		now:      time.Now,
		failures: make(map[string]failure),
	}
}

// Start serves the handler on a local httptest server.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s.Handler())
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.faultMw)

	r.Post("/rooms", s.route("create_room", s.handleCreateRoom))
	r.Route("/rooms/{roomCode}", func(r chi.Router) {
		r.Post("/members", s.route("join_room", s.handleJoinRoom))
		r.Get("/members", s.route("get_members", s.handleGetMembers))
		r.Delete("/members/{userID}", s.route("leave_room", s.handleLeaveRoom))
		r.Get("/state", s.route("get_room_state", s.handleGetRoomState))
		r.Post("/queue", s.route("add_to_queue", s.handleAddToQueue))
		r.Post("/chat", s.route("send_chat", s.handleSendChat))
		r.Put("/player", s.route("set_play_state", s.handleSetPlayState))
		r.Post("/player/next", s.route("next_video", s.handleNextVideo))
		r.Post("/player/previous", s.route("previous_video", s.handlePreviousVideo))
	})

	return r
}

// SetClock replaces the time source used for playhead advancement.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
}

// SetUnavailable makes every request fail with 503.
func (s *Server) SetUnavailable(v bool) {
	s.unavailable.Store(v)
}

// SetLatency delays every response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.latency.Store(int64(d))
}

// FailRoute makes route answer with status and message until cleared with
// status 0.
func (s *Server) FailRoute(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = failure{status: status, message: message}
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	c, ok := s.hits[route]
	s.mu.Unlock()
	if !ok {
		return 0
	}

	return int(c.Load())
}

// DeleteRoom drops the room so further requests get 404.
func (s *Server) DeleteRoom(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, code)
}

// Snapshot returns the current authoritative state of a room.
func (s *Server) Snapshot(code string) (*domain.RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[code]
	if !ok {
		return nil, false
	}

	return s.snapshotLocked(rm), true
}

// SetPlayhead forces the authoritative playhead of a room.
func (s *Server) SetPlayhead(code string, at float64, isPlaying bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rm, ok := s.rooms[code]; ok {
		rm.anchorTime = at
		rm.anchorAt = s.now()
		rm.isPlaying = isPlaying
	}
}

func (s *Server) faultMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := time.Duration(s.latency.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if s.unavailable.Load() {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		c, ok := s.hits[name]
		if !ok {
			c = &atomic.Int64{}
			s.hits[name] = c
		}
		f, failing := s.failures[name]
		s.mu.Unlock()
		c.Add(1)

		if failing {
			writeError(w, f.status, f.message)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) newRoomCodeLocked() string {
	for {
		var b strings.Builder
		for range 6 {
			b.WriteByte(roomCodeAlphabet[rand.IntN(len(roomCodeAlphabet))])
		}
		if _, exists := s.rooms[b.String()]; !exists {
			return b.String()
		}
	}
}

func (s *Server) playheadLocked(rm *room) float64 {
	if !rm.isPlaying {
		return rm.anchorTime
	}

	return rm.anchorTime + s.now().Sub(rm.anchorAt).Seconds()
}

func (s *Server) setVideoLocked(rm *room, v *domain.Video) {
	rm.currentVideo = v
	rm.anchorTime = 0
	rm.anchorAt = s.now()
	rm.isPlaying = v != nil
}

func (s *Server) snapshotLocked(rm *room) *domain.RoomSnapshot {
	snap := &domain.RoomSnapshot{
		RoomCode:     rm.code,
		Queue:        append([]domain.Video{}, rm.queue...),
		History:      append([]domain.Video{}, rm.history...),
		CurrentVideo: rm.currentVideo,
		CurrentTime:  s.playheadLocked(rm),
		IsPlaying:    rm.isPlaying,
		Users:        append([]domain.User{}, rm.users...),
		ChatHistory:  append([]domain.ChatMessage{}, rm.chat...),
	}

	return snap.Clone()
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*room, bool) {
	rm, ok := s.rooms[chi.URLParam(r, "roomCode")]
	if !ok {
		writeError(w, http.StatusNotFound, "Room not found")
		return nil, false
	}

	return rm, true
}

func (s *Server) userNickname(rm *room, userID string) (string, bool) {
	for _, u := range rm.users {
		if u.ID == userID {
			return u.Nickname, true
		}
	}

	return "", false
}

type nicknameInput struct {
	Nickname string `json:"nickname"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var input nicknameInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || strings.TrimSpace(input.Nickname) == "" {
		writeError(w, http.StatusBadRequest, "nickname is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := domain.User{ID: uuid.NewString(), Nickname: input.Nickname}
	rm := &room{
		code:     s.newRoomCodeLocked(),
		users:    []domain.User{user},
		anchorAt: s.now(),
	}
	s.rooms[rm.code] = rm

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": user.ID, "room_code": rm.code})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var input nicknameInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || strings.TrimSpace(input.Nickname) == "" {
		writeError(w, http.StatusBadRequest, "nickname is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	user := domain.User{ID: uuid.NewString(), Nickname: input.Nickname}
	rm.users = append(rm.users, user)

	writeJSON(w, http.StatusOK, map[string]string{"user_id": user.ID, "room_code": rm.code})
}

func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, rm.users)
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "userID")
	for i, u := range rm.users {
		if u.ID == userID {
			rm.users = append(rm.users[:i], rm.users[i+1:]...)
			break
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRoomState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.snapshotLocked(rm))
}

type addToQueueInput struct {
	UserID    string `json:"user_id"`
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

func (s *Server) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	var input addToQueueInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.VideoID == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	nickname, ok := s.userNickname(rm, input.UserID)
	if !ok {
		writeError(w, http.StatusForbidden, "User not in room")
		return
	}

	video := domain.Video{
		VideoID:   input.VideoID,
		Title:     input.Title,
		Thumbnail: input.Thumbnail,
		AddedBy:   nickname,
	}
	if rm.currentVideo == nil {
		s.setVideoLocked(rm, &video)
	} else {
		rm.queue = append(rm.queue, video)
	}

	w.WriteHeader(http.StatusNoContent)
}

type sendChatInput struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) handleSendChat(w http.ResponseWriter, r *http.Request) {
	var input sendChatInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || strings.TrimSpace(input.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	nickname, ok := s.userNickname(rm, input.UserID)
	if !ok {
		writeError(w, http.StatusForbidden, "User not in room")
		return
	}

	rm.chat = append(rm.chat, domain.ChatMessage{
		Nickname:  nickname,
		Message:   input.Message,
		Timestamp: s.now().UnixNano(),
	})

	w.WriteHeader(http.StatusNoContent)
}

type setPlayStateInput struct {
	IsPlaying   bool    `json:"is_playing"`
	CurrentTime float64 `json:"current_time"`
}

func (s *Server) handleSetPlayState(w http.ResponseWriter, r *http.Request) {
	var input setPlayStateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if rm.currentVideo == nil {
		writeError(w, http.StatusConflict, "Nothing playing")
		return
	}

	rm.isPlaying = input.IsPlaying
	rm.anchorTime = input.CurrentTime
	rm.anchorAt = s.now()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNextVideo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if len(rm.queue) == 0 {
		if rm.currentVideo != nil {
			rm.history = append(rm.history, *rm.currentVideo)
			s.setVideoLocked(rm, nil)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusConflict, "No next video")
		return
	}

	if rm.currentVideo != nil {
		rm.history = append(rm.history, *rm.currentVideo)
	}
	next := rm.queue[0]
	rm.queue = rm.queue[1:]
	s.setVideoLocked(rm, &next)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreviousVideo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if len(rm.history) == 0 {
		writeError(w, http.StatusConflict, "No previous video")
		return
	}

	if rm.currentVideo != nil {
		rm.queue = append([]domain.Video{*rm.currentVideo}, rm.queue...)
	}
	prev := rm.history[len(rm.history)-1]
	rm.history = rm.history[:len(rm.history)-1]
	s.setVideoLocked(rm, &prev)

	w.WriteHeader(http.StatusNoContent)
}
