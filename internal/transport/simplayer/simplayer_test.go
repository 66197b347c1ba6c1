package simplayer

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type events struct {
	mu     sync.Mutex
	ready  chan struct{}
	states []domain.PlayerState
	ended  chan struct{}
}

func newEvents() *events {
	return &events{ready: make(chan struct{}, 1), ended: make(chan struct{}, 1)}
}

func (e *events) OnReady() { e.ready <- struct{}{} }

func (e *events) OnStateChange(state domain.PlayerState) {
	e.mu.Lock()
	e.states = append(e.states, state)
	e.mu.Unlock()
	if state == domain.PlayerStateEnded {
		e.ended <- struct{}{}
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func newTestPlayer(t *testing.T, cfg *Config) (*player, *factory, *events) {
	t.Helper()

	f := NewFactory(cfg)
	ev := newEvents()
	p, err := f.NewPlayer(context.Background(), transport.Options{VideoID: "v1"}, ev)
	require.NoError(t, err)

	return p.(*player), f, ev
}

func TestPlayer_ReadyAfterDelay(t *testing.T) {
	p, _, ev := newTestPlayer(t, &Config{ReadyDelay: 10 * time.Millisecond})
	waitFor(t, ev.ready)

	state, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStateCued, state)

	d, err := p.Duration()
	require.NoError(t, err)
	assert.InDelta(t, DefaultVideoDuration.Seconds(), d, 0.001)
}

func TestPlayer_PlayAdvancesAndPauseFreezes(t *testing.T) {
	p, f, ev := newTestPlayer(t, &Config{})
	waitFor(t, ev.ready)

	now := time.Unix(1000, 0)
	f.now = func() time.Time { return now }

	require.NoError(t, p.Seek(10, true))
	require.NoError(t, p.Play())

	now = now.Add(3 * time.Second)
	at, err := p.CurrentTime()
	require.NoError(t, err)
	assert.InDelta(t, 13, at, 0.001)

	require.NoError(t, p.Pause())
	now = now.Add(5 * time.Second)
	at, err = p.CurrentTime()
	require.NoError(t, err)
	assert.InDelta(t, 13, at, 0.001)

	ev.mu.Lock()
	assert.Equal(t, []domain.PlayerState{domain.PlayerStatePlaying, domain.PlayerStatePaused}, ev.states)
	ev.mu.Unlock()
}

func TestPlayer_EmitsEndedAtDuration(t *testing.T) {
	p, _, ev := newTestPlayer(t, &Config{
		DurationFor: func(string) time.Duration { return 30 * time.Millisecond },
	})
	waitFor(t, ev.ready)

	require.NoError(t, p.Play())
	waitFor(t, ev.ended)

	state, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStateEnded, state)
}

func TestPlayer_LoadVideoStartsPlaying(t *testing.T) {
	p, _, ev := newTestPlayer(t, &Config{})
	waitFor(t, ev.ready)

	require.NoError(t, p.LoadVideo("v2", 42))

	state, err := p.State()
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStatePlaying, state)
	at, err := p.CurrentTime()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, at, 42.0)
}

func TestPlayer_SeekClampsToDuration(t *testing.T) {
	p, _, ev := newTestPlayer(t, &Config{VideoDuration: 20 * time.Second})
	waitFor(t, ev.ready)

	require.NoError(t, p.Seek(500, true))
	at, err := p.CurrentTime()
	require.NoError(t, err)
	assert.InDelta(t, 20, at, 0.001)

	require.NoError(t, p.Seek(-3, true))
	at, err = p.CurrentTime()
	require.NoError(t, err)
	assert.Zero(t, at)
}

func TestPlayer_DestroyedRejectsCalls(t *testing.T) {
	p, _, _ := newTestPlayer(t, &Config{ReadyDelay: time.Hour})

	require.NoError(t, p.Destroy())
	require.NoError(t, p.Destroy())

	assert.ErrorIs(t, p.Play(), ErrDestroyed)
	_, err := p.CurrentTime()
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.ErrorIs(t, p.SetVolume(10), ErrDestroyed)
}

func TestPlayer_DrivenByAdapter(t *testing.T) {
	a := transport.NewAdapter(
		NewFactory(&Config{ReadyDelay: 5 * time.Millisecond}),
		transport.NewLibrary(nil),
		&transport.Config{Volume: 40},
		slog.Default(),
	)
	defer a.Destroy()

	require.NoError(t, a.Load(context.Background(), "v1", 7, true))
	require.Eventually(t, a.Ready, time.Second, 5*time.Millisecond)

	obs, err := a.Observe()
	require.NoError(t, err)
	assert.Equal(t, "v1", obs.VideoID)
	assert.Equal(t, domain.PlayerStatePlaying, obs.State)
	assert.GreaterOrEqual(t, obs.LocalTime, 7.0)

	require.NoError(t, a.Pause())
	state, err := a.State()
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStatePaused, state)
}
