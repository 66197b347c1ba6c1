package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/client/internal/repository/session"
)

const (
	nicknameKey = "nickname"
	userIDKey   = "user_id"
	roomCodeKey = "room_code"
)

type repo struct {
	rc             *redis.Client
	keyPrefix      string
	expireDuration time.Duration
	logger         *slog.Logger
}

// NewRepo stores the session as three plain string keys under keyPrefix. A
// zero expireDuration keeps the keys forever.
func NewRepo(rc *redis.Client, keyPrefix string, expireDuration time.Duration, logger *slog.Logger) *repo {
	return &repo{
		rc:             rc,
		keyPrefix:      keyPrefix,
		expireDuration: expireDuration,
		logger:         logger,
	}
}

func (r repo) key(name string) string {
	return r.keyPrefix + name
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

func (r repo) Save(ctx context.Context, record *session.Record) error {
	funcName := "session.redis.Save"
	r.logger.DebugContext(ctx, funcName, "room_code", record.RoomCode)

	pipe := r.rc.TxPipeline()
	pipe.Set(ctx, r.key(nicknameKey), record.Nickname, r.expireDuration)
	pipe.Set(ctx, r.key(userIDKey), record.UserID, r.expireDuration)
	pipe.Set(ctx, r.key(roomCodeKey), record.RoomCode, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func (r repo) Load(ctx context.Context) (session.Record, error) {
	funcName := "session.redis.Load"

	vals, err := r.rc.MGet(ctx, r.key(nicknameKey), r.key(userIDKey), r.key(roomCodeKey)).Result()
	if err != nil {
		return session.Record{}, fmt.Errorf("failed to load session: %w", err)
	}

	field := func(v any) string {
		s, _ := v.(string)
		return s
	}
	record := session.Record{
		Nickname: field(vals[0]),
		UserID:   field(vals[1]),
		RoomCode: field(vals[2]),
	}

	if record.Nickname == "" && record.UserID == "" && record.RoomCode == "" {
		r.logger.DebugContext(ctx, funcName, "error", session.ErrSessionNotFound)
		return session.Record{}, session.ErrSessionNotFound
	}

	r.logger.DebugContext(ctx, funcName, "room_code", record.RoomCode)
	return record, nil
}

func (r repo) Clear(ctx context.Context) error {
	funcName := "session.redis.Clear"
	r.logger.DebugContext(ctx, funcName)

	if err := r.rc.Del(ctx, r.key(nicknameKey), r.key(userIDKey), r.key(roomCodeKey)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	return nil
}
