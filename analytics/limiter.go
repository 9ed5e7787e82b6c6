package analytics

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxIdleKeys bounds the key map before idle entries are swept.
const maxIdleKeys = 4096

// Limiter is a per-key token bucket: each key may spend events tokens, and
// tokens refill evenly over per.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter allows events per key per duration.
func NewLimiter(events int, per time.Duration) *Limiter {
	events = max(events, 1)
	return &Limiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Every(per / time.Duration(events)),
		burst:   events,
		idle:    per,
		now:     time.Now,
	}
}

// WithClock replaces the limiter's clock. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) entry(key string, now time.Time) *rate.Limiter {
	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= maxIdleKeys {
			l.sweep(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.seen = now
	return e.lim
}

// sweep drops keys idle long enough to have refilled completely.
func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.seen) > l.idle {
			delete(l.entries, k)
		}
	}
}

// Allow spends one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	return l.entry(key, now).AllowN(now, 1)
}

// Check reports whether key has a token left without spending it.
func (l *Limiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	return l.entry(key, now).TokensAt(now) >= 1
}
