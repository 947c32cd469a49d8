package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/ppiankov/veriscope/internal/util"
)

// Limiter paces requests per host and adds a fixed politeness pause after
// each granted request
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
	politeness   time.Duration
}

// NewLimiter creates a per-host limiter
func NewLimiter(requestsPerSecond float64, burst int, politeness time.Duration) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
		politeness:   politeness,
	}
}

// Wait blocks until a request to rawURL may be sent
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := util.DomainOf(rawURL)
	if host == "" {
		return eris.Errorf("limiter: no host in %q", rawURL)
	}
	if err := l.get(host).Wait(ctx); err != nil {
		return err
	}
	if l.politeness <= 0 {
		return nil
	}

	t := time.NewTimer(l.politeness)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Allow reports whether a request may be sent now, consuming a token if so
func (l *Limiter) Allow(rawURL string) bool {
	host := util.DomainOf(rawURL)
	if host == "" {
		return false
	}
	return l.get(host).Allow()
}

// Throttle slows a host down to one request per delay, as requested by a
// robots.txt Crawl-delay. It never speeds a host up.
func (l *Limiter) Throttle(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	lim := l.get(host)
	want := rate.Every(delay)
	if want < lim.Limit() {
		lim.SetLimit(want)
	}
}

func (l *Limiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = lim
	return lim
}
