package flight

import (
	"sync"
	"time"
)

// Limiter admits at most max calls per rolling window. Rejected calls
// do not consume budget.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

// NewLimiter builds a limiter admitting max calls per window.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed now, and consumes budget if
// so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.calls[:0]
	for _, t := range l.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls = kept

	if len(l.calls) >= l.max {
		return false
	}
	l.calls = append(l.calls, now)
	return true
}
