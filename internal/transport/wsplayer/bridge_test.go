package wsplayer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// fakeBridge answers create with ready and a status, and records commands.
type fakeBridge struct {
	mu       sync.Mutex
	commands []command
	conn     *websocket.Conn
	received chan command
}

func (f *fakeBridge) serve(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()

		for {
			var cmd command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			f.mu.Lock()
			f.commands = append(f.commands, cmd)
			f.mu.Unlock()
			f.received <- cmd

			if cmd.Type == typeCreate {
				var body createPayload
				_ = json.Unmarshal(cmd.Payload, &body)
				f.push(t, typeStatus, statusPayload{
					InstanceID:  body.InstanceID,
					CurrentTime: body.StartAt,
					Duration:    300,
					State:       domain.PlayerStateCued,
				})
				f.push(t, typeReady, instancePayload{InstanceID: body.InstanceID})
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func (f *fakeBridge) push(t *testing.T, msgType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, f.conn.WriteJSON(command{Type: msgType, Payload: data}))
}

// drop closes the current server side of the connection.
func (f *fakeBridge) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	_ = f.conn.Close()
}

func (f *fakeBridge) expect(t *testing.T, msgType string) command {
	t.Helper()

	for {
		select {
		case cmd := <-f.received:
			if cmd.Type == msgType {
				return cmd
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s command received", msgType)
		}
	}
}

func newTestBridge(t *testing.T) (*Bridge, *fakeBridge) {
	t.Helper()

	fake := &fakeBridge{received: make(chan command, 64)}
	srv := fake.serve(t)

	b := NewBridge(&Config{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		DialTimeout:    time.Second,
		WriteTimeout:   time.Second,
		RedialMinDelay: 10 * time.Millisecond,
		RedialMaxDelay: 50 * time.Millisecond,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, b.Connect(ctx))
	t.Cleanup(func() { _ = b.Close() })

	return b, fake
}

type recordingEvents struct {
	ready  chan struct{}
	states chan domain.PlayerState
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{ready: make(chan struct{}, 1), states: make(chan domain.PlayerState, 8)}
}

func (e *recordingEvents) OnReady() { e.ready <- struct{}{} }

func (e *recordingEvents) OnStateChange(state domain.PlayerState) { e.states <- state }

func TestBridge_CreateAndReady(t *testing.T) {
	b, fake := newTestBridge(t)
	ev := newRecordingEvents()

	p, err := b.NewPlayer(context.Background(), transport.Options{
		InstanceID: "i-1",
		VideoID:    "v1",
		StartAt:    12,
		Autoplay:   true,
	}, ev)
	require.NoError(t, err)

	cmd := fake.expect(t, typeCreate)
	var body createPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &body))
	assert.Equal(t, createPayload{InstanceID: "i-1", VideoID: "v1", StartAt: 12, Autoplay: true}, body)

	select {
	case <-ev.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ready not delivered")
	}

	d, err := p.Duration()
	require.NoError(t, err)
	assert.InDelta(t, 300, d, 0.001)
	state, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStateCued, state)
}

func TestBridge_CommandsCarryInstanceID(t *testing.T) {
	b, fake := newTestBridge(t)
	p, err := b.NewPlayer(context.Background(), transport.Options{InstanceID: "i-2", VideoID: "v1"}, newRecordingEvents())
	require.NoError(t, err)
	fake.expect(t, typeCreate)

	require.NoError(t, p.Seek(40, true))
	cmd := fake.expect(t, typeSeek)
	var seek seekPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &seek))
	assert.Equal(t, seekPayload{InstanceID: "i-2", At: 40, AllowAhead: true}, seek)

	at, err := p.CurrentTime()
	require.NoError(t, err)
	assert.InDelta(t, 40, at, 0.001)

	require.NoError(t, p.Pause())
	cmd = fake.expect(t, typePause)
	var inst instancePayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &inst))
	assert.Equal(t, "i-2", inst.InstanceID)

	require.NoError(t, p.SetVolume(25))
	fake.expect(t, typeVolume)

	require.NoError(t, p.LoadVideo("v2", 3))
	cmd = fake.expect(t, typeLoad)
	var load loadPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &load))
	assert.Equal(t, "v2", load.VideoID)
}

func TestBridge_StateChangedRouted(t *testing.T) {
	b, fake := newTestBridge(t)
	ev := newRecordingEvents()
	p, err := b.NewPlayer(context.Background(), transport.Options{InstanceID: "i-3", VideoID: "v1"}, ev)
	require.NoError(t, err)
	fake.expect(t, typeCreate)

	fake.push(t, typeStateChanged, stateChangedPayload{InstanceID: "other", State: domain.PlayerStatePlaying})
	fake.push(t, typeStateChanged, stateChangedPayload{InstanceID: "i-3", State: domain.PlayerStateEnded})

	select {
	case state := <-ev.states:
		assert.Equal(t, domain.PlayerStateEnded, state)
	case <-time.After(2 * time.Second):
		t.Fatal("state change not delivered")
	}

	state, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStateEnded, state)
}

func TestBridge_DestroyForgetsInstance(t *testing.T) {
	b, fake := newTestBridge(t)
	p, err := b.NewPlayer(context.Background(), transport.Options{InstanceID: "i-4", VideoID: "v1"}, newRecordingEvents())
	require.NoError(t, err)
	fake.expect(t, typeCreate)

	require.NoError(t, p.Destroy())
	fake.expect(t, typeDestroy)

	assert.Nil(t, b.lookup("i-4"))
	assert.ErrorIs(t, p.Play(), ErrNotConnected)
	require.NoError(t, p.Destroy())
}

func TestBridge_NotConnected(t *testing.T) {
	b := NewBridge(&Config{URL: "ws://127.0.0.1:1"}, slog.Default())

	_, err := b.NewPlayer(context.Background(), transport.Options{InstanceID: "i-5"}, newRecordingEvents())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Nil(t, b.lookup("i-5"))
}

func TestBridge_WithAdapter(t *testing.T) {
	b, fake := newTestBridge(t)
	a := transport.NewAdapter(b, transport.NewLibrary(nil), &transport.Config{Volume: 60}, slog.Default())

	require.NoError(t, a.Load(context.Background(), "v1", 5, false))
	fake.expect(t, typeCreate)
	require.Eventually(t, a.Ready, 2*time.Second, 5*time.Millisecond)

	// ready handling seeks to the start and applies the volume
	fake.expect(t, typeSeek)
	cmd := fake.expect(t, typeVolume)
	var vol volumePayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &vol))
	assert.Equal(t, 60, vol.Volume)

	a.Destroy()
	fake.expect(t, typeDestroy)
}

func TestBridge_RedialsAfterDisconnect(t *testing.T) {
	b, fake := newTestBridge(t)
	old, err := b.NewPlayer(context.Background(), transport.Options{InstanceID: "i-6", VideoID: "v1"}, newRecordingEvents())
	require.NoError(t, err)
	fake.expect(t, typeCreate)

	fake.drop()

	require.Eventually(t, func() bool {
		return errors.Is(old.Play(), transport.ErrInstanceLost)
	}, 2*time.Second, 5*time.Millisecond)
	_, err = old.CurrentTime()
	assert.ErrorIs(t, err, transport.ErrInstanceLost)
	assert.Nil(t, b.lookup("i-6"))
	require.NoError(t, old.Destroy())

	ev := newRecordingEvents()
	var p transport.Player
	require.Eventually(t, func() bool {
		p, err = b.NewPlayer(context.Background(), transport.Options{InstanceID: "i-7", VideoID: "v1"}, ev)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	fake.expect(t, typeCreate)

	select {
	case <-ev.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ready not delivered after reconnect")
	}
	require.NoError(t, p.Pause())
	fake.expect(t, typePause)
}

func TestBridge_CloseStopsRedial(t *testing.T) {
	b, fake := newTestBridge(t)
	require.NoError(t, b.Close())
	fake.drop()

	time.Sleep(50 * time.Millisecond)
	_, err := b.NewPlayer(context.Background(), transport.Options{InstanceID: "i-8"}, newRecordingEvents())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, b.Connect(context.Background()), ErrClosed)
}

func TestBridge_WithAdapterRecoversAfterDisconnect(t *testing.T) {
	b, fake := newTestBridge(t)
	a := transport.NewAdapter(b, transport.NewLibrary(nil), &transport.Config{Volume: 60}, slog.Default())

	require.NoError(t, a.Load(context.Background(), "v1", 5, false))
	fake.expect(t, typeCreate)
	require.Eventually(t, a.Ready, 2*time.Second, 5*time.Millisecond)

	fake.drop()

	// the lost instance is dropped on first use
	require.Eventually(t, func() bool {
		_ = a.Pause()
		return !a.Active()
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return a.Load(context.Background(), "v1", 8, false) == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, a.Ready, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "v1", a.VideoID())
}
