package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sharetube/client/internal/roomservice/roomservicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	rooms *roomservicetest.Server
	redis *miniredis.Miniredis
	cfg   *AppConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rooms := roomservicetest.NewServer()
	ts := rooms.Start()
	t.Cleanup(ts.Close)

	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Server().Addr().Port

	return &testEnv{
		rooms: rooms,
		redis: mr,
		cfg: &AppConfig{
			LogLevel:         "DEBUG",
			RoomServiceURL:   ts.URL,
			RequestTimeout:   time.Second,
			PollInterval:     50 * time.Millisecond,
			MinPassInterval:  20 * time.Millisecond,
			DriftThreshold:   2 * time.Second,
			LoadGracePeriod:  50 * time.Millisecond,
			SessionBackend:   SessionBackendRedis,
			RedisHost:        host,
			RedisPort:        port,
			RedisKeyPrefix:   "test:",
			Transport:        TransportSim,
			SimVideoDuration: time.Minute,
			SimReadyDelay:    10 * time.Millisecond,
			Volume:           80,
			Nickname:         "alice",
		},
	}
}

func (e *testEnv) start(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	require.NoError(t, e.cfg.Validate())

	ctx := context.Background()
	a, err := New(ctx, e.cfg, slog.Default())
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close(context.Background())
	})

	return a, srv
}

func request(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}

	return resp.StatusCode, out
}

func TestConfigValidate(t *testing.T) {
	cfg := newTestEnv(t).cfg
	require.NoError(t, cfg.Validate())

	cfg.Transport = TransportWS
	assert.Error(t, cfg.Validate())

	cfg.Transport = TransportSim
	cfg.SessionBackend = "file"
	assert.Error(t, cfg.Validate())

	cfg.SessionBackend = SessionBackendMemory
	cfg.PollInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestSyncFlow(t *testing.T) {
	env := newTestEnv(t)
	a, srv := env.start(t)

	sess, ok := a.session.Current()
	require.True(t, ok)
	assert.Equal(t, "alice", sess.Nickname)
	assert.Equal(t, 1, env.rooms.Hits("create_room"))

	status, _ := request(t, srv, http.MethodPost, "/queue",
		`{"video_id":"abc","title":"first","thumbnail":"https://example.com/abc.jpg"}`)
	require.Equal(t, http.StatusCreated, status)

	require.Eventually(t, func() bool {
		return a.player.VideoID() == "abc" && a.player.Ready()
	}, 2*time.Second, 10*time.Millisecond, "transport never loaded the room video")

	status, body := request(t, srv, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	snapshot := data["snapshot"].(map[string]any)
	current := snapshot["current_video"].(map[string]any)
	assert.Equal(t, "abc", current["video_id"])

	env.rooms.SetPlayhead(sess.RoomCode, 30, true)
	require.Eventually(t, func() bool {
		obs, err := a.player.Observe()
		return err == nil && obs.LocalTime >= 30
	}, 2*time.Second, 10*time.Millisecond, "drift was never corrected")
}

func TestRoomDeletedEndsSession(t *testing.T) {
	env := newTestEnv(t)
	a, srv := env.start(t)

	sess, ok := a.session.Current()
	require.True(t, ok)
	assert.True(t, env.redis.Exists("test:room_code"))

	env.rooms.DeleteRoom(sess.RoomCode)

	require.Eventually(t, func() bool {
		_, ok := a.session.Current()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, env.redis.Exists("test:room_code"))
	assert.False(t, a.player.Active())

	status, _ := request(t, srv, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusConflict, status)
}

func TestSessionRestoredAfterRestart(t *testing.T) {
	env := newTestEnv(t)

	ctx := context.Background()
	first, err := New(ctx, env.cfg, slog.Default())
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	created, ok := first.session.Current()
	require.True(t, ok)
	first.Close(ctx)

	second, _ := env.start(t)
	restored, ok := second.session.Current()
	require.True(t, ok)
	assert.Equal(t, created, restored)
	assert.Equal(t, 1, env.rooms.Hits("create_room"))
}

func TestLeaveAndJoinThroughControlAPI(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.SessionBackend = SessionBackendMemory
	env.cfg.Nickname = ""
	_, srv := env.start(t)

	status, _ := request(t, srv, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusConflict, status)

	status, body := request(t, srv, http.MethodPost, "/session", `{"nickname":"bob"}`)
	require.Equal(t, http.StatusCreated, status)
	code := body["data"].(map[string]any)["room_code"].(string)

	status, _ = request(t, srv, http.MethodDelete, "/session", "")
	require.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, 1, env.rooms.Hits("leave_room"))

	status, body = request(t, srv, http.MethodPost, "/session/join",
		`{"room_code":"`+strings.ToLower(code)+`","nickname":"carol"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, code, body["data"].(map[string]any)["room_code"])

	status, body = request(t, srv, http.MethodGet, "/members", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
}
