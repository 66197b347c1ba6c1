package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sharetube/client/internal/controller"
	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/metrics"
	sessionRepo "github.com/sharetube/client/internal/repository/session"
	"github.com/sharetube/client/internal/repository/session/inmemory"
	sessionRedis "github.com/sharetube/client/internal/repository/session/redis"
	"github.com/sharetube/client/internal/roomservice"
	"github.com/sharetube/client/internal/service/gate"
	"github.com/sharetube/client/internal/service/poller"
	"github.com/sharetube/client/internal/service/reconciler"
	"github.com/sharetube/client/internal/service/session"
	"github.com/sharetube/client/internal/transport"
	"github.com/sharetube/client/internal/transport/simplayer"
	"github.com/sharetube/client/internal/transport/wsplayer"
	"github.com/sharetube/client/pkg/ctxlogger"
	"github.com/sharetube/client/pkg/redisclient"
	"github.com/sharetube/client/pkg/ytvideodata"
	"golang.org/x/sync/errgroup"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"

	TransportSim = "sim"
	TransportWS  = "ws"

	shutdownTimeout = 30 * time.Second
)

type AppConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`

	RoomServiceURL  string        `json:"room_service_url"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	PollInterval    time.Duration `json:"poll_interval"`
	MinPassInterval time.Duration `json:"min_pass_interval"`
	DriftThreshold  time.Duration `json:"drift_threshold"`
	LoadGracePeriod time.Duration `json:"load_grace_period"`

	SessionBackend string        `json:"session_backend"`
	SessionTTL     time.Duration `json:"session_ttl"`
	RedisHost      string        `json:"redis_host"`
	RedisPort      int           `json:"redis_port"`
	RedisPassword  string        `json:"-"`
	RedisDB        int           `json:"redis_db"`
	RedisKeyPrefix string        `json:"redis_key_prefix"`

	Transport        string        `json:"transport"`
	BridgeURL        string        `json:"bridge_url"`
	SimVideoDuration time.Duration `json:"sim_video_duration"`
	SimReadyDelay    time.Duration `json:"sim_ready_delay"`
	ReuseInstances   bool          `json:"reuse_instances"`
	Volume           int           `json:"volume"`

	Nickname    string `json:"nickname"`
	RoomCode    string `json:"room_code"`
	LeaveOnExit bool   `json:"leave_on_exit"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.RoomServiceURL == "" {
		return errors.New("room service url must be set")
	}
	for name, d := range map[string]time.Duration{
		"request timeout":   cfg.RequestTimeout,
		"poll interval":     cfg.PollInterval,
		"min pass interval": cfg.MinPassInterval,
		"drift threshold":   cfg.DriftThreshold,
		"load grace period": cfg.LoadGracePeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be greater than 0", name)
		}
	}
	switch cfg.SessionBackend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
	switch cfg.Transport {
	case TransportSim:
	case TransportWS:
		if cfg.BridgeURL == "" {
			return errors.New("bridge url must be set for the ws transport")
		}
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.Volume < 0 || cfg.Volume > 100 {
		return errors.New("volume must be between 0 and 100")
	}
	if cfg.RoomCode != "" && cfg.Nickname == "" {
		return errors.New("nickname must be set to join a room")
	}

	return nil
}

type iSessionService interface {
	Current() (domain.Session, bool)
	Create(ctx context.Context, nickname string) (domain.Session, error)
	Join(ctx context.Context, roomCode, nickname string) (domain.Session, error)
	Restore(ctx context.Context) (domain.Session, bool, error)
	Shutdown(ctx context.Context, leave bool)
}

type iSessionRepo interface {
	Save(context.Context, *sessionRepo.Record) error
	Load(context.Context) (sessionRepo.Record, error)
	Clear(context.Context) error
}

type iSyncService interface {
	Start(ctx context.Context, sess domain.Session)
	Stop()
}

// syncListener starts and stops synchronization with the session.
type syncListener struct {
	poller     iSyncService
	reconciler iSyncService
	logger     *slog.Logger
}

func (l *syncListener) OnSessionStarted(ctx context.Context, sess domain.Session) {
	l.logger.InfoContext(ctx, "sync started", "room_code", sess.RoomCode)
	metrics.ActiveSession.Set(1)
	// reconciler first so the initial snapshot is not missed
	l.reconciler.Start(ctx, sess)
	l.poller.Start(ctx, sess)
}

func (l *syncListener) OnSessionEnded(ctx context.Context, sess domain.Session) {
	l.logger.InfoContext(ctx, "sync stopped", "room_code", sess.RoomCode)
	l.poller.Stop()
	l.reconciler.Stop()
	metrics.ActiveSession.Set(0)
}

type App struct {
	cfg     *AppConfig
	logger  *slog.Logger
	handler http.Handler
	session iSessionService
	player  *transport.Adapter
	library *transport.Library
	closers []func() error
}

// New wires every component without starting synchronization.
func New(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	repo, err := a.newSessionRepo()
	if err != nil {
		return nil, err
	}

	roomClient := roomservice.NewClient(&roomservice.Config{
		BaseURL: cfg.RoomServiceURL,
		Timeout: cfg.RequestTimeout,
	}, logger)

	factory, library := a.newTransport()
	adapter := transport.NewAdapter(factory, library, &transport.Config{
		ReuseInstances: cfg.ReuseInstances,
		Volume:         cfg.Volume,
	}, logger)
	a.player = adapter
	a.library = library

	sessionService := session.NewService(repo, roomClient, logger)
	pollerService := poller.NewService(roomClient, sessionService, &poller.Config{
		PollInterval: cfg.PollInterval,
	}, logger)
	reconcilerService := reconciler.NewService(adapter, roomClient, &reconciler.Config{
		MinPassInterval: cfg.MinPassInterval,
		DriftThreshold:  cfg.DriftThreshold,
		LoadGracePeriod: cfg.LoadGracePeriod,
	}, logger)
	pollerService.Subscribe(reconcilerService.OnSnapshot)
	sessionService.Subscribe(&syncListener{
		poller:     pollerService,
		reconciler: reconcilerService,
		logger:     logger,
	})
	a.session = sessionService

	gateService := gate.NewService(&gate.Params{
		Store:       sessionService,
		Poller:      pollerService,
		RoomService: roomClient,
		Transport:   adapter,
		VideoData:   ytvideodata.NewClient(&ytvideodata.Config{Timeout: cfg.RequestTimeout}),
		Logger:      logger,
	})

	a.handler = controller.NewController(&controller.Params{
		Session: sessionService,
		Gate:    gateService,
		Poller:  pollerService,
		Player:  adapter,
		Logger:  logger,
	}).GetMux()

	logger.DebugContext(ctx, "app wired", "transport", cfg.Transport, "session_backend", cfg.SessionBackend)
	return a, nil
}

func (a *App) newSessionRepo() (iSessionRepo, error) {
	if a.cfg.SessionBackend != SessionBackendRedis {
		return inmemory.NewRepo(a.logger), nil
	}

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	a.closers = append(a.closers, rc.Close)

	return sessionRedis.NewRepo(rc, a.cfg.RedisKeyPrefix, a.cfg.SessionTTL, a.logger), nil
}

func (a *App) newTransport() (transport.Factory, *transport.Library) {
	if a.cfg.Transport == TransportWS {
		bridge := wsplayer.NewBridge(&wsplayer.Config{
			URL:          a.cfg.BridgeURL,
			DialTimeout:  a.cfg.RequestTimeout,
			WriteTimeout: a.cfg.RequestTimeout,
		}, a.logger)
		a.closers = append(a.closers, bridge.Close)

		return bridge, transport.NewLibrary(bridge.Connect)
	}

	return simplayer.NewFactory(&simplayer.Config{
		ReadyDelay:    a.cfg.SimReadyDelay,
		VideoDuration: a.cfg.SimVideoDuration,
	}), transport.NewLibrary(nil)
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Start loads the transport library in the background and activates a
// session: the persisted one if present, otherwise the configured room to
// join or create.
func (a *App) Start(ctx context.Context) error {
	a.library.Load(ctx)

	sess, ok, err := a.session.Restore(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to restore session", "error", err)
	}
	if ok {
		a.logger.InfoContext(ctx, "resumed session", "room_code", sess.RoomCode)
		return nil
	}

	switch {
	case a.cfg.RoomCode != "":
		sess, err = a.session.Join(ctx, a.cfg.RoomCode, a.cfg.Nickname)
		if err != nil {
			return fmt.Errorf("failed to join room: %w", err)
		}
	case a.cfg.Nickname != "":
		sess, err = a.session.Create(ctx, a.cfg.Nickname)
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
	default:
		return nil
	}
	a.logger.InfoContext(ctx, "session started", "room_code", sess.RoomCode)

	return nil
}

// Close stops synchronization and releases connections. The persisted
// session is kept for the next start.
func (a *App) Close(ctx context.Context) {
	a.session.Shutdown(ctx, a.cfg.LeaveOnExit)
	a.player.Destroy()

	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.WarnContext(ctx, "failed to close resource", "error", err)
		}
	}
}

func NewLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to start session", "error", err)
	}

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: a.Handler()}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gCtx, "starting control server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		a.Close(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
