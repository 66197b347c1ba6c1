package inmemory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sharetube/client/internal/repository/session"
)

type repo struct {
	record *session.Record
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{logger: logger}
}

func (r *repo) Save(ctx context.Context, record *session.Record) error {
	funcName := "session.inmemory.Save"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, funcName, "room_code", record.RoomCode)
	rec := *record
	r.record = &rec

	return nil
}

func (r *repo) Load(ctx context.Context) (session.Record, error) {
	funcName := "session.inmemory.Load"
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.record == nil {
		r.logger.DebugContext(ctx, funcName, "error", session.ErrSessionNotFound)
		return session.Record{}, session.ErrSessionNotFound
	}

	return *r.record, nil
}

func (r *repo) Clear(ctx context.Context) error {
	funcName := "session.inmemory.Clear"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, funcName)
	r.record = nil

	return nil
}
