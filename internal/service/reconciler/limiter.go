package reconciler

import (
	"sync"
	"time"
)

// Limiter rejects reconciliation passes that start within interval of the
// previous completed pass.
type Limiter struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewLimiter(interval time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}

	return &Limiter{interval: interval, now: now}
}

func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.last.IsZero() || l.now().Sub(l.last) >= l.interval
}

// Mark records the completion of a pass.
func (l *Limiter) Mark() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.last = l.now()
}

func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.last = time.Time{}
}
