package transport

import (
	"context"
	"fmt"
	"sync"
)

// Library is the process-wide initializer of the external transport library.
// The init function runs exactly once; every caller awaits the same result.
type Library struct {
	init func(context.Context) error
	once sync.Once
	done chan struct{}
	err  error
}

func NewLibrary(init func(context.Context) error) *Library {
	if init == nil {
		init = func(context.Context) error { return nil }
	}

	return &Library{
		init: init,
		done: make(chan struct{}),
	}
}

// Load starts initialization if it has not started yet and returns at once.
func (l *Library) Load(ctx context.Context) {
	l.once.Do(func() {
		initCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(l.done)
			defer func() {
				if r := recover(); r != nil {
					l.err = fmt.Errorf("transport library init panicked: %v", r)
				}
			}()
			l.err = l.init(initCtx)
		}()
	})
}

// Wait starts initialization if needed and blocks until it finished or ctx is
// done.
func (l *Library) Wait(ctx context.Context) error {
	l.Load(ctx)

	select {
	case <-l.done:
		if l.err != nil {
			return fmt.Errorf("failed to init transport library: %w", l.err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready returns a channel closed once initialization finished.
func (l *Library) Ready() <-chan struct{} {
	return l.done
}
