package source

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles calls per source name.
type Limiter struct {
	mu           sync.RWMutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter. rps <= 0 means unlimited unless a source has
// its own rate.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.Inf
	if rps > 0 {
		lim = rate.Limit(rps)
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  lim,
		defaultBurst: burst,
	}
}

// SetRate overrides the rate for one source.
func (l *Limiter) SetRate(name string, rps float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.Inf
	if rps > 0 {
		lim = rate.Limit(rps)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[name] = rate.NewLimiter(lim, burst)
}

// Wait blocks until name may be called or ctx is done.
func (l *Limiter) Wait(ctx context.Context, name string) error {
	return l.get(name).Wait(ctx)
}

func (l *Limiter) get(name string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[name]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[name]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[name] = lim
	return lim
}
