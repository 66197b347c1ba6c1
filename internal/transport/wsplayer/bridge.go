// Package wsplayer drives an external player bridge over a WebSocket.
package wsplayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/transport"
	"github.com/sharetube/client/pkg/wsrouter"
)

var (
	ErrNotConnected = errors.New("player bridge not connected")
	ErrClosed       = errors.New("player bridge closed")
)

const (
	DefaultRedialMinDelay = 500 * time.Millisecond
	DefaultRedialMaxDelay = 30 * time.Second
)

type Config struct {
	URL          string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// RedialMinDelay and RedialMaxDelay bound the exponential backoff used to
	// reconnect after the bridge connection drops.
	RedialMinDelay time.Duration
	RedialMaxDelay time.Duration
}

// Bridge is a transport.Factory backed by one WebSocket connection shared by
// all player instances.
type Bridge struct {
	cfg    Config
	logger *slog.Logger
	router *wsrouter.WSRouter
	now    func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	conn    *websocket.Conn
	players map[string]*player

	closeOnce sync.Once
	closed    chan struct{}
}

func NewBridge(cfg *Config, logger *slog.Logger) *Bridge {
	b := &Bridge{
		cfg:     *cfg,
		logger:  logger,
		router:  wsrouter.New(),
		now:     time.Now,
		players: make(map[string]*player),
		closed:  make(chan struct{}),
	}
	if b.cfg.RedialMinDelay <= 0 {
		b.cfg.RedialMinDelay = DefaultRedialMinDelay
	}
	if b.cfg.RedialMaxDelay < b.cfg.RedialMinDelay {
		b.cfg.RedialMaxDelay = max(DefaultRedialMaxDelay, b.cfg.RedialMinDelay)
	}

	b.router.Handle(typeReady, b.handleReady)
	b.router.Handle(typeStateChanged, b.handleStateChanged)
	b.router.Handle(typeStatus, b.handleStatus)
	b.router.NotFound(func(ctx context.Context, _ *websocket.Conn, _ json.RawMessage) {
		b.logger.DebugContext(ctx, "unknown bridge message", "type", wsrouter.GetMessageTypeFromCtx(ctx))
	})

	return b
}

// Connect dials the bridge and starts routing its messages in the background.
// A dropped connection is redialed until Close. It is meant to be the
// transport.Library initializer.
func (b *Bridge) Connect(ctx context.Context) error {
	funcName := "wsplayer.Bridge.Connect"
	b.logger.DebugContext(ctx, funcName, "url", b.cfg.URL)

	conn, err := b.dial(ctx)
	if err != nil {
		return err
	}
	if !b.attach(conn) {
		return ErrClosed
	}

	go b.serve(ctx, conn)

	b.logger.InfoContext(ctx, "player bridge connected", "url", b.cfg.URL)
	return nil
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx := ctx
	if b.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, b.cfg.DialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, b.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial player bridge: %w", err)
	}

	return conn, nil
}

// attach makes conn the current connection unless the bridge is closed.
func (b *Bridge) attach(conn *websocket.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.closed:
		conn.Close()
		return false
	default:
	}
	b.conn = conn

	return true
}

// detach clears conn if it is still current and hands back the players that
// lived on it.
func (b *Bridge) detach(conn *websocket.Conn) []*player {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != conn {
		return nil
	}
	b.conn = nil

	lost := make([]*player, 0, len(b.players))
	for _, p := range b.players {
		lost = append(lost, p)
	}
	b.players = make(map[string]*player)

	return lost
}

func (b *Bridge) serve(ctx context.Context, conn *websocket.Conn) {
	for conn != nil {
		err := b.router.ServeConn(ctx, conn)

		lost := b.detach(conn)
		for _, p := range lost {
			p.markLost()
		}
		b.logger.WarnContext(ctx, "player bridge disconnected", "error", err, "lost_instances", len(lost))

		conn = b.redial(ctx)
	}
}

// redial reconnects with exponential backoff. It returns nil once the bridge
// is closed or ctx is done.
func (b *Bridge) redial(ctx context.Context) *websocket.Conn {
	delay := b.cfg.RedialMinDelay
	for {
		timer := time.NewTimer(delay)
		select {
		case <-b.closed:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := b.dial(ctx)
		if err == nil {
			if !b.attach(conn) {
				return nil
			}
			b.logger.InfoContext(ctx, "player bridge reconnected", "url", b.cfg.URL)
			return conn
		}

		b.logger.DebugContext(ctx, "player bridge redial failed", "error", err, "retry_in", delay)
		delay = min(delay*2, b.cfg.RedialMaxDelay)
	}
}

// Close drops the connection and stops reconnecting.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })

	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

func (b *Bridge) send(msgType string, payload any) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if b.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(b.now().Add(b.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	return wsrouter.Write(conn, msgType, payload)
}

func (b *Bridge) NewPlayer(ctx context.Context, opts transport.Options, events transport.Events) (transport.Player, error) {
	p := &player{
		bridge:  b,
		id:      opts.InstanceID,
		events:  events,
		videoID: opts.VideoID,
		status: statusPayload{
			InstanceID:  opts.InstanceID,
			CurrentTime: opts.StartAt,
			State:       domain.PlayerStateUnstarted,
		},
	}

	b.mu.Lock()
	b.players[p.id] = p
	b.mu.Unlock()

	if err := b.send(typeCreate, createPayload{
		InstanceID: opts.InstanceID,
		VideoID:    opts.VideoID,
		StartAt:    opts.StartAt,
		Autoplay:   opts.Autoplay,
	}); err != nil {
		b.forget(p.id)
		return nil, fmt.Errorf("failed to create bridge player: %w", err)
	}

	b.logger.DebugContext(ctx, "bridge player created", "instance_id", p.id, "video_id", opts.VideoID)
	return p, nil
}

func (b *Bridge) lookup(id string) *player {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.players[id]
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.players, id)
}

func (b *Bridge) handleReady(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) {
	var body instancePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		b.logger.WarnContext(ctx, "invalid ready message", "error", err)
		return
	}

	p := b.lookup(body.InstanceID)
	if p == nil {
		return
	}
	p.events.OnReady()
}

func (b *Bridge) handleStateChanged(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) {
	var body stateChangedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		b.logger.WarnContext(ctx, "invalid state_changed message", "error", err)
		return
	}

	p := b.lookup(body.InstanceID)
	if p == nil {
		return
	}
	p.setState(body.State, b.now())
	p.events.OnStateChange(body.State)
}

func (b *Bridge) handleStatus(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) {
	var body statusPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		b.logger.WarnContext(ctx, "invalid status message", "error", err)
		return
	}

	p := b.lookup(body.InstanceID)
	if p == nil {
		return
	}
	p.setStatus(body, b.now())
}
