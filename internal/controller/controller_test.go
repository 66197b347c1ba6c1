package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/roomservice"
	"github.com/sharetube/client/internal/service/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	sess    *domain.Session
	err     error
	left    bool
	lastNew string
}

func (f *fakeSession) Current() (domain.Session, bool) {
	if f.sess == nil {
		return domain.Session{}, false
	}
	return *f.sess, true
}

func (f *fakeSession) Create(_ context.Context, nickname string) (domain.Session, error) {
	if f.err != nil {
		return domain.Session{}, f.err
	}
	f.lastNew = nickname
	f.sess = &domain.Session{Nickname: nickname, UserID: "u1", RoomCode: "ABC123"}
	return *f.sess, nil
}

func (f *fakeSession) Join(_ context.Context, roomCode, nickname string) (domain.Session, error) {
	if f.err != nil {
		return domain.Session{}, f.err
	}
	f.sess = &domain.Session{Nickname: nickname, UserID: "u2", RoomCode: roomCode}
	return *f.sess, nil
}

func (f *fakeSession) Leave(context.Context) {
	f.left = true
	f.sess = nil
}

type fakeGate struct {
	err       error
	draft     gate.Draft
	playState []bool
	seeks     []float64
	queued    []domain.Video
}

func (f *fakeGate) SetPlayState(_ context.Context, isPlaying bool, _ float64) error {
	f.playState = append(f.playState, isPlaying)
	return f.err
}

func (f *fakeGate) TogglePlayState(context.Context) (bool, error) {
	return true, f.err
}

func (f *fakeGate) SkipNext(context.Context) error { return f.err }

func (f *fakeGate) SkipPrevious(context.Context) error { return f.err }

func (f *fakeGate) Seek(_ context.Context, at float64) error {
	f.seeks = append(f.seeks, at)
	return f.err
}

func (f *fakeGate) SendChat(context.Context) error { return f.err }

func (f *fakeGate) AddToQueue(_ context.Context, video domain.Video) (domain.Video, error) {
	if f.err != nil {
		return domain.Video{}, f.err
	}
	video.AddedBy = "alice"
	f.queued = append(f.queued, video)
	return video, nil
}

func (f *fakeGate) Members(context.Context) ([]domain.User, error) {
	return []domain.User{{ID: "u1", Nickname: "alice"}}, f.err
}

func (f *fakeGate) Draft() *gate.Draft { return &f.draft }

type fakePoller struct {
	snap *domain.RoomSnapshot
}

func (f *fakePoller) Snapshot() *domain.RoomSnapshot { return f.snap }

type fakePlayer struct {
	volume int
	muted  bool
}

func (f *fakePlayer) SetVolume(v int) error {
	f.volume = v
	return nil
}

func (f *fakePlayer) SetMuted(m bool) error {
	f.muted = m
	return nil
}

func (f *fakePlayer) Volume() (int, bool) { return f.volume, f.muted }

type testEnv struct {
	mux     http.Handler
	session *fakeSession
	gate    *fakeGate
	poller  *fakePoller
	player  *fakePlayer
}

func newTestEnv() *testEnv {
	env := &testEnv{
		session: &fakeSession{sess: &domain.Session{Nickname: "alice", UserID: "u1", RoomCode: "ABC123"}},
		gate:    &fakeGate{},
		poller:  &fakePoller{snap: &domain.RoomSnapshot{RoomCode: "ABC123", CurrentTime: 4}},
		player:  &fakePlayer{volume: 80},
	}
	env.mux = NewController(&Params{
		Session: env.session,
		Gate:    env.gate,
		Poller:  env.poller,
		Player:  env.player,
		Logger:  slog.Default(),
	}).GetMux()

	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()

	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetState(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "ABC123", data["session"].(map[string]any)["room_code"])
	assert.NotNil(t, data["snapshot"])
}

func TestGetStateWithoutSession(t *testing.T) {
	env := newTestEnv()
	env.session.sess = nil

	assert.Equal(t, http.StatusConflict, env.do(http.MethodGet, "/state", "").Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodGet, "/session", "").Code)
}

func TestCreateAndLeaveSession(t *testing.T) {
	env := newTestEnv()
	env.session.sess = nil

	rec := env.do(http.MethodPost, "/session", `{"nickname":"bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "bob", env.session.lastNew)

	rec = env.do(http.MethodDelete, "/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, env.session.left)
}

func TestJoinSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: domain.NewValidationError("room_code", "LEN", "room_code must be exactly 6 characters long"), status: http.StatusBadRequest},
		{name: "not found", err: domain.ErrNotFound, status: http.StatusNotFound},
		{name: "rejected", err: &roomservice.ServiceError{Status: 403, Message: "Room is full"}, status: http.StatusUnprocessableEntity},
		{name: "transient", err: domain.ErrTransient, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.session.err = tt.err

			rec := env.do(http.MethodPost, "/session/join", `{"room_code":"abc123","nickname":"bob"}`)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv()

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/session", `{"nick":`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/session", `{"unknown":1}`).Code)
}

func TestChatDraft(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPut, "/chat/draft", `{"text":"hello"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "hello", env.gate.draft.Text())

	rec = env.do(http.MethodGet, "/chat/draft", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", decode(t, rec)["data"].(map[string]any)["text"])

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/chat/send", "").Code)
}

func TestPlayerRoutes(t *testing.T) {
	env := newTestEnv()

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPut, "/player", `{"is_playing":false,"current_time":12}`).Code)
	assert.Equal(t, []bool{false}, env.gate.playState)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/player", `{"current_time":12}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/player/seek", `{"at":-5}`).Code)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/player/seek", `{"at":75}`).Code)
	assert.Equal(t, []float64{75}, env.gate.seeks)

	rec := env.do(http.MethodPost, "/player/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["data"].(map[string]any)["is_playing"])

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/player/next", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/player/previous", "").Code)
}

func TestActionErrors(t *testing.T) {
	env := newTestEnv()

	env.gate.err = gate.ErrActionInFlight
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/player/next", "").Code)

	env.gate.err = gate.ErrNoSession
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/chat/send", "").Code)

	env.gate.err = &roomservice.ServiceError{Status: 409, Message: "No next video"}
	rec := env.do(http.MethodPost, "/player/next", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "No next video", decode(t, rec)["error"])
}

func TestVolume(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPut, "/player/volume", `{"volume":35,"muted":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 35, data["volume"])
	assert.Equal(t, true, data["muted"])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/player/volume", `{"volume":101}`).Code)
}

func TestAddToQueue(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/queue", `{"video_id":"abc","title":"Song"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "abc", data["video_id"])
	assert.Equal(t, "alice", data["added_by"])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/queue", `{"video_id":"abc","thumbnail":"not a url"}`).Code)
}

func TestGetMembers(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/members", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)
}
