package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// DefaultMaxHosts bounds how many per-host buckets a Limiter keeps
const DefaultMaxHosts = 10000

// Limiter rate limits requests per host. Report servers, detection file hosts
// and the detector service each get their own token bucket.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	pinned       map[string]bool // Hosts with a configured rate; never evicted
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
	maxHosts     int
}

// NewLimiter creates a limiter; a non-positive rate means unlimited
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		pinned:       make(map[string]bool),
		defaultRate:  limitFor(requestsPerSecond),
		defaultBurst: burst,
		maxHosts:     DefaultMaxHosts,
	}
}

// WithMaxHosts changes the bucket cap; non-positive keeps the default
func (l *Limiter) WithMaxHosts(n int) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > 0 {
		l.maxHosts = n
	}
	return l
}

// NewLimiterFromConfig creates a limiter with the configured default and per-host rates
func NewLimiterFromConfig(cfg model.RateLimitingConfig) *Limiter {
	l := NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
	for host, rps := range cfg.PerHost {
		l.SetHostRate(host, rps, 0)
	}
	return l
}

func limitFor(requestsPerSecond float64) rate.Limit {
	if requestsPerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(requestsPerSecond)
}

// Wait blocks until a request to rawURL's host is allowed
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	return l.limiterFor(host).Wait(ctx)
}

// WaitWithDelay waits for the host's token, then for additionalDelay (a robots.txt crawl delay)
func (l *Limiter) WaitWithDelay(ctx context.Context, rawURL string, additionalDelay time.Duration) error {
	if err := l.Wait(ctx, rawURL); err != nil {
		return err
	}

	if additionalDelay > 0 {
		timer := time.NewTimer(additionalDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}

// AllowHost reports whether a request keyed by host may proceed now, consuming a token
func (l *Limiter) AllowHost(host string) bool {
	return l.limiterFor(strings.ToLower(host)).Allow()
}

// SetHostRate overrides the rate for one host
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	host = strings.ToLower(host)
	l.limiters[host] = rate.NewLimiter(limitFor(requestsPerSecond), burst)
	l.pinned[host] = true
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}

	if len(l.limiters) >= l.maxHosts {
		l.evictLocked()
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter
	return limiter
}

// evictLocked drops every bucket that has refilled, since a fresh bucket
// behaves the same. When every client is active, the fullest bucket goes.
func (l *Limiter) evictLocked() {
	fullest, most := "", -1.0
	for host, limiter := range l.limiters {
		if l.pinned[host] {
			continue
		}
		if limiter.Limit() == rate.Inf {
			delete(l.limiters, host)
			continue
		}
		tokens := limiter.Tokens()
		if tokens >= float64(limiter.Burst()) {
			delete(l.limiters, host)
			continue
		}
		if tokens > most {
			fullest, most = host, tokens
		}
	}
	if len(l.limiters) >= l.maxHosts && fullest != "" {
		delete(l.limiters, fullest)
	}
}

// hostOf returns the lower-cased host (with port) of rawURL
func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	return strings.ToLower(parsed.Host), nil
}
