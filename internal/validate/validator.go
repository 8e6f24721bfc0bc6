package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/evidencecheck/internal/util"
)

const validateMaxRetries = 3

// validateSleepFunc is the sleep function used between retries (injectable for tests)
var validateSleepFunc = time.Sleep

// SourceStatus is the preflight result for one remote report or detection file
type SourceStatus struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code,omitempty"`
	Accessible  bool   `json:"accessible"`
	ContentType string `json:"content_type,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SourceChecker checks that remote inputs are reachable before a batch run spends
// time analysing them
type SourceChecker struct {
	httpClient *http.Client
	maxWorkers int
	userAgent  string
}

// NewSourceChecker creates a new preflight checker
func NewSourceChecker(timeout time.Duration, maxWorkers int, userAgent, httpProxy, httpsProxy, noProxy string) *SourceChecker {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	return &SourceChecker{
		httpClient: util.NewHTTPClient(timeout, httpProxy, httpsProxy, noProxy),
		maxWorkers: maxWorkers,
		userAgent:  userAgent,
	}
}

// Check probes every URL concurrently. Results are in input order.
func (v *SourceChecker) Check(ctx context.Context, urls []string) []SourceStatus {
	results := make([]SourceStatus, len(urls))
	if len(urls) == 0 {
		return results
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, u := range urls {
		wg.Add(1)
		go func(idx int, rawURL string) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = SourceStatus{URL: rawURL, Error: "context cancelled"}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = v.checkWithRetry(ctx, rawURL)
		}(i, u)
	}

	wg.Wait()
	return results
}

// checkSingle issues a HEAD request, falling back to GET for servers that reject HEAD
func (v *SourceChecker) checkSingle(ctx context.Context, rawURL string) SourceStatus {
	status := SourceStatus{URL: rawURL}

	resp, err := v.do(ctx, http.MethodHead, rawURL)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		_ = resp.Body.Close()
		resp, err = v.do(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	status.StatusCode = resp.StatusCode
	status.ContentType = resp.Header.Get("Content-Type")
	status.Accessible = resp.StatusCode >= 200 && resp.StatusCode < 400

	if final := resp.Request.URL.String(); final != rawURL {
		status.RedirectURL = final
	}

	return status
}

func (v *SourceChecker) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// checkWithRetry retries transient failures with exponential backoff
func (v *SourceChecker) checkWithRetry(ctx context.Context, rawURL string) SourceStatus {
	var status SourceStatus
	for attempt := 0; attempt < validateMaxRetries; attempt++ {
		status = v.checkSingle(ctx, rawURL)
		if !isRetryableStatus(status) || ctx.Err() != nil {
			return status
		}
		if attempt < validateMaxRetries-1 {
			validateSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	return status
}

// isRetryableStatus returns true for results that indicate transient failures
func isRetryableStatus(status SourceStatus) bool {
	if status.StatusCode >= 500 && status.StatusCode < 600 {
		return true
	}
	if status.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return status.Error != "" && isRetryableNetworkError(status.Error)
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// Unreachable filters statuses down to the inaccessible ones
func Unreachable(statuses []SourceStatus) []SourceStatus {
	var out []SourceStatus
	for _, s := range statuses {
		if !s.Accessible {
			out = append(out, s)
		}
	}
	return out
}
