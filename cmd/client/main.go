package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/client/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

func (v configVar[T]) bind() {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

var (
	port = configVar[int]{
		envKey:       "CLIENT_PORT",
		flagKey:      "port",
		defaultValue: 8090,
		usage:        "Control API port",
	}
	host = configVar[string]{
		envKey:       "CLIENT_HOST",
		flagKey:      "host",
		defaultValue: "127.0.0.1",
		usage:        "Control API host",
	}
	logLevel = configVar[string]{
		envKey:       "CLIENT_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	roomServiceURL = configVar[string]{
		envKey:       "CLIENT_ROOM_SERVICE_URL",
		flagKey:      "room-service-url",
		defaultValue: "http://localhost:8080/api/v1",
		usage:        "Room Service base url",
	}
	requestTimeout = configVar[time.Duration]{
		envKey:       "CLIENT_REQUEST_TIMEOUT",
		flagKey:      "request-timeout",
		defaultValue: 5 * time.Second,
		usage:        "Timeout of a single Room Service request",
	}
	pollInterval = configVar[time.Duration]{
		envKey:       "CLIENT_POLL_INTERVAL",
		flagKey:      "poll-interval",
		defaultValue: 1500 * time.Millisecond,
		usage:        "Room state polling interval",
	}
	minPassInterval = configVar[time.Duration]{
		envKey:       "CLIENT_MIN_PASS_INTERVAL",
		flagKey:      "min-pass-interval",
		defaultValue: 800 * time.Millisecond,
		usage:        "Minimum interval between reconciliation passes",
	}
	driftThreshold = configVar[time.Duration]{
		envKey:       "CLIENT_DRIFT_THRESHOLD",
		flagKey:      "drift-threshold",
		defaultValue: 2 * time.Second,
		usage:        "Playhead drift tolerated before seeking",
	}
	loadGracePeriod = configVar[time.Duration]{
		envKey:       "CLIENT_LOAD_GRACE_PERIOD",
		flagKey:      "load-grace-period",
		defaultValue: 800 * time.Millisecond,
		usage:        "Delay before pausing a freshly loaded video",
	}
	sessionBackend = configVar[string]{
		envKey:       "CLIENT_SESSION_BACKEND",
		flagKey:      "session-backend",
		defaultValue: app.SessionBackendMemory,
		usage:        "Session persistence backend (memory, redis)",
	}
	sessionTTL = configVar[time.Duration]{
		envKey:       "CLIENT_SESSION_TTL",
		flagKey:      "session-ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Expiration of the persisted session, 0 disables it",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	redisDB = configVar[int]{
		envKey:       "REDIS_DB",
		flagKey:      "redis-db",
		defaultValue: 0,
		usage:        "Redis database",
	}
	redisKeyPrefix = configVar[string]{
		envKey:       "REDIS_KEY_PREFIX",
		flagKey:      "redis-key-prefix",
		defaultValue: "jamroom:",
		usage:        "Prefix of the session keys",
	}
	transportKind = configVar[string]{
		envKey:       "CLIENT_TRANSPORT",
		flagKey:      "transport",
		defaultValue: app.TransportSim,
		usage:        "Media transport (sim, ws)",
	}
	bridgeURL = configVar[string]{
		envKey:       "CLIENT_BRIDGE_URL",
		flagKey:      "bridge-url",
		defaultValue: "",
		usage:        "Websocket url of the player bridge",
	}
	simVideoDuration = configVar[time.Duration]{
		envKey:       "CLIENT_SIM_VIDEO_DURATION",
		flagKey:      "sim-video-duration",
		defaultValue: 4 * time.Minute,
		usage:        "Length of every simulated video",
	}
	simReadyDelay = configVar[time.Duration]{
		envKey:       "CLIENT_SIM_READY_DELAY",
		flagKey:      "sim-ready-delay",
		defaultValue: 300 * time.Millisecond,
		usage:        "Delay before a simulated player is ready",
	}
	reuseInstances = configVar[bool]{
		envKey:       "CLIENT_REUSE_INSTANCES",
		flagKey:      "reuse-instances",
		defaultValue: false,
		usage:        "Load new videos into the ready player instead of recreating it",
	}
	volume = configVar[int]{
		envKey:       "CLIENT_VOLUME",
		flagKey:      "volume",
		defaultValue: 80,
		usage:        "Initial volume (0-100)",
	}
	nickname = configVar[string]{
		envKey:       "CLIENT_NICKNAME",
		flagKey:      "nickname",
		defaultValue: "",
		usage:        "Nickname used to create or join a room at startup",
	}
	roomCode = configVar[string]{
		envKey:       "CLIENT_ROOM_CODE",
		flagKey:      "room-code",
		defaultValue: "",
		usage:        "Room to join at startup",
	}
	leaveOnExit = configVar[bool]{
		envKey:       "CLIENT_LEAVE_ON_EXIT",
		flagKey:      "leave-on-exit",
		defaultValue: false,
		usage:        "Leave the room on shutdown",
	}
)

func loadAppConfig() *app.AppConfig {
	for _, v := range []configVar[string]{host, logLevel, roomServiceURL, sessionBackend, redisHost, redisPassword, redisKeyPrefix, transportKind, bridgeURL, nickname, roomCode} {
		pflag.String(v.flagKey, v.defaultValue, v.usage)
		v.bind()
	}
	for _, v := range []configVar[int]{port, redisPort, redisDB, volume} {
		pflag.Int(v.flagKey, v.defaultValue, v.usage)
		v.bind()
	}
	for _, v := range []configVar[time.Duration]{requestTimeout, pollInterval, minPassInterval, driftThreshold, loadGracePeriod, sessionTTL, simVideoDuration, simReadyDelay} {
		pflag.Duration(v.flagKey, v.defaultValue, v.usage)
		v.bind()
	}
	for _, v := range []configVar[bool]{reuseInstances, leaveOnExit} {
		pflag.Bool(v.flagKey, v.defaultValue, v.usage)
		v.bind()
	}
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	return &app.AppConfig{
		Host:             viper.GetString(host.flagKey),
		Port:             viper.GetInt(port.flagKey),
		LogLevel:         viper.GetString(logLevel.flagKey),
		RoomServiceURL:   viper.GetString(roomServiceURL.flagKey),
		RequestTimeout:   viper.GetDuration(requestTimeout.flagKey),
		PollInterval:     viper.GetDuration(pollInterval.flagKey),
		MinPassInterval:  viper.GetDuration(minPassInterval.flagKey),
		DriftThreshold:   viper.GetDuration(driftThreshold.flagKey),
		LoadGracePeriod:  viper.GetDuration(loadGracePeriod.flagKey),
		SessionBackend:   viper.GetString(sessionBackend.flagKey),
		SessionTTL:       viper.GetDuration(sessionTTL.flagKey),
		RedisHost:        viper.GetString(redisHost.flagKey),
		RedisPort:        viper.GetInt(redisPort.flagKey),
		RedisPassword:    viper.GetString(redisPassword.flagKey),
		RedisDB:          viper.GetInt(redisDB.flagKey),
		RedisKeyPrefix:   viper.GetString(redisKeyPrefix.flagKey),
		Transport:        viper.GetString(transportKind.flagKey),
		BridgeURL:        viper.GetString(bridgeURL.flagKey),
		SimVideoDuration: viper.GetDuration(simVideoDuration.flagKey),
		SimReadyDelay:    viper.GetDuration(simReadyDelay.flagKey),
		ReuseInstances:   viper.GetBool(reuseInstances.flagKey),
		Volume:           viper.GetInt(volume.flagKey),
		Nickname:         viper.GetString(nickname.flagKey),
		RoomCode:         viper.GetString(roomCode.flagKey),
		LeaveOnExit:      viper.GetBool(leaveOnExit.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
