package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ppiankov/evidencecheck/internal/cache"
	"github.com/ppiankov/evidencecheck/internal/logging"
	"github.com/ppiankov/evidencecheck/internal/util"
)

const fetchMaxRetries = 3

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// ErrRobotsDisallowed is returned when robots.txt forbids fetching a URL
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// RateLimiter throttles requests per remote host
type RateLimiter interface {
	WaitWithDelay(ctx context.Context, rawURL string, additionalDelay time.Duration) error
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Fetcher retrieves remote reports and detection files
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    RateLimiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, respectRobots bool, httpProxy, httpsProxy, noProxy string) *Fetcher {
	client := util.NewHTTPClient(timeout, httpProxy, httpsProxy, noProxy)

	f := &Fetcher{
		httpClient: client,
		userAgent:  userAgent,
		maxBytes:   maxBytes,
		cache:      cache.Nop{},
		logger:     logging.New("fetcher"),
	}
	if respectRobots {
		f.robots = util.NewRobotsChecker(userAgent, client)
	}
	return f
}

// WithLimiter throttles fetches per host
func (f *Fetcher) WithLimiter(l RateLimiter) *Fetcher {
	f.limiter = l
	return f
}

// WithCache caches successful fetches for ttl (0 = cache default)
func (f *Fetcher) WithCache(c cache.Cache, ttl time.Duration) *Fetcher {
	if c != nil {
		f.cache = c
	}
	f.cacheTTL = ttl
	return f
}

// Client returns the underlying HTTP client
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// FetchResult contains a fetched body and its metadata
type FetchResult struct {
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	StatusCode  int    `json:"status_code"`
	FinalURL    string `json:"final_url"`
	Name        string `json:"name"` // Last path segment, used for format detection
	FromCache   bool   `json:"-"`
}

// Fetch retrieves the URL once, consulting the cache, robots.txt and the rate limiter
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	key := cache.Key("fetch", rawURL)

	var cached FetchResult
	if cache.GetJSON(f.cache, key, &cached) {
		cached.FromCache = true
		f.logger.Debug("cache hit", "url", rawURL)
		return &cached, nil
	}

	var crawlDelay time.Duration
	if f.robots != nil {
		verdict, err := f.robots.Check(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("check robots: %w", err)
		}
		if !verdict.Allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrRobotsDisallowed)
		}
		crawlDelay = verdict.CrawlDelay
	}

	if f.limiter != nil {
		if err := f.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	result, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(f.cache, key, result, f.cacheTTL); err != nil {
		f.logger.Warn("cache write failed", "url", rawURL, "error", err)
	}
	return result, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/json,application/x-ndjson,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := resp.Request.URL.String()
	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    finalURL,
		Name:        nameFromURL(finalURL),
	}, nil
}

// FetchWithRetry retries transient failures with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < fetchMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			f.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt+1, "backoff", backoff, "error", err)
			fetchSleepFunc(backoff)
		}
	}
	return nil, lastErr
}

// isRetryableFetchError returns true for 5xx, 429 and transient network failures
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}

	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// nameFromURL returns the last path segment, or the host for bare URLs
func nameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	trimmed := strings.Trim(parsed.Path, "/")
	if trimmed == "" {
		return parsed.Host
	}
	return path.Base(trimmed)
}
