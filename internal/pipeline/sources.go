package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/evidencecheck/internal/cache"
	"github.com/ppiankov/evidencecheck/internal/extract/adapters"
	"github.com/ppiankov/evidencecheck/internal/model"
)

// TextSource yields the incident narrative
type TextSource interface {
	Text(ctx context.Context) (string, error)
}

// FrameSource yields per-frame detector output in clip order
type FrameSource interface {
	Frames(ctx context.Context) ([]model.FrameDetection, error)
}

// LiteralText is narrative text supplied directly
type LiteralText string

// Text returns the literal
func (t LiteralText) Text(context.Context) (string, error) {
	return string(t), nil
}

// FileText reads a report from disk and normalises it through the format adapters
type FileText struct {
	Path     string
	Adapters *adapters.Registry
}

// Text reads and normalises the file
func (s FileText) Text(context.Context) (string, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}

	name := filepath.Base(s.Path)
	text, err := registryOrDefault(s.Adapters).Text(name, mime.TypeByExtension(filepath.Ext(name)), content)
	if err != nil {
		return "", fmt.Errorf("normalise %s: %w", name, err)
	}
	return text, nil
}

// URLText fetches a remote report
type URLText struct {
	URL      string
	Fetcher  *Fetcher
	Adapters *adapters.Registry
}

// Text fetches and normalises the report
func (s URLText) Text(ctx context.Context) (string, error) {
	result, err := s.Fetcher.FetchWithRetry(ctx, s.URL)
	if err != nil {
		return "", fmt.Errorf("fetch report: %w", err)
	}

	text, err := registryOrDefault(s.Adapters).Text(result.Name, result.ContentType, result.Body)
	if err != nil {
		return "", fmt.Errorf("normalise %s: %w", result.Name, err)
	}
	return text, nil
}

func registryOrDefault(r *adapters.Registry) *adapters.Registry {
	if r == nil {
		return adapters.NewRegistry()
	}
	return r
}

// StaticFrames serves detections already in memory
type StaticFrames []model.FrameDetection

// Frames returns the slice
func (s StaticFrames) Frames(context.Context) ([]model.FrameDetection, error) {
	return s, nil
}

// FileFrames reads a JSON or JSONL detection file
type FileFrames struct {
	Path     string
	Sampling model.SamplingConfig
}

// Frames reads, decodes and samples the file
func (s FileFrames) Frames(context.Context) ([]model.FrameDetection, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	defer func() { _ = f.Close() }()

	frames, err := DecodeDetections(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(s.Path), err)
	}
	return Sample(frames, s.Sampling), nil
}

// URLFrames fetches a detection file over HTTP
type URLFrames struct {
	URL      string
	Fetcher  *Fetcher
	Sampling model.SamplingConfig
}

// Frames fetches, decodes and samples the remote file
func (s URLFrames) Frames(ctx context.Context) ([]model.FrameDetection, error) {
	result, err := s.Fetcher.FetchWithRetry(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch detections: %w", err)
	}

	frames, err := DecodeDetections(bytes.NewReader(result.Body))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", result.Name, err)
	}
	return Sample(frames, s.Sampling), nil
}

// detectionEnvelope is the object form of a detection file
type detectionEnvelope struct {
	FPS    float64                `json:"fps,omitempty"`
	Frames []model.FrameDetection `json:"frames"`
}

// DecodeDetections accepts a JSON array of frames, an object with a "frames"
// array (and optional "fps" used to derive missing timestamps), or JSONL with
// one frame per line.
func DecodeDetections(r io.Reader) ([]model.FrameDetection, error) {
	dec := json.NewDecoder(r)

	var values []json.RawMessage
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode value %d: %w", len(values)+1, err)
		}
		values = append(values, raw)
	}

	if len(values) == 0 {
		return []model.FrameDetection{}, nil
	}

	if len(values) == 1 {
		first := bytes.TrimSpace(values[0])
		switch {
		case len(first) > 0 && first[0] == '[':
			var frames []model.FrameDetection
			if err := json.Unmarshal(first, &frames); err != nil {
				return nil, fmt.Errorf("decode frame array: %w", err)
			}
			return frames, nil
		case bytes.Contains(first, []byte(`"frames"`)):
			var env detectionEnvelope
			if err := json.Unmarshal(first, &env); err == nil && env.Frames != nil {
				return env.withTimestamps(), nil
			}
		}
	}

	frames := make([]model.FrameDetection, 0, len(values))
	for i, raw := range values {
		var frame model.FrameDetection
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i+1, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (e detectionEnvelope) withTimestamps() []model.FrameDetection {
	if e.FPS <= 0 {
		return e.Frames
	}
	for i := range e.Frames {
		if e.Frames[i].Timestamp == 0 && e.Frames[i].FrameNumber > 0 {
			e.Frames[i].Timestamp = float64(e.Frames[i].FrameNumber) / e.FPS
		}
	}
	return e.Frames
}

// Sample keeps every Nth frame and enforces a minimum spacing between kept frames
func Sample(frames []model.FrameDetection, cfg model.SamplingConfig) []model.FrameDetection {
	if cfg.EveryNthFrame <= 1 && cfg.MinSpacing <= 0 {
		return frames
	}

	every := max(cfg.EveryNthFrame, 1)
	out := make([]model.FrameDetection, 0, len(frames)/every+1)
	var lastKept *float64
	for i, f := range frames {
		if i%every != 0 {
			continue
		}
		if lastKept != nil && f.Timestamp-*lastKept < cfg.MinSpacing {
			continue
		}
		ts := f.Timestamp
		lastKept = &ts
		out = append(out, f)
	}
	return out
}

// DetectorClient submits clips to a remote detection service. It owns its HTTP
// client, limiter and cache; nothing is shared through package state.
type DetectorClient struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	limiter    RateLimiter
	cache      cache.Cache
	cacheTTL   time.Duration
}

// NewDetectorClient creates a client for the detection service at endpoint
func NewDetectorClient(endpoint string, httpClient *http.Client, userAgent string, limiter RateLimiter, c cache.Cache, ttl time.Duration) *DetectorClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &DetectorClient{
		endpoint:   endpoint,
		httpClient: httpClient,
		userAgent:  userAgent,
		limiter:    limiter,
		cache:      c,
		cacheTTL:   ttl,
	}
}

type detectRequest struct {
	ClipURL       string `json:"clip_url"`
	EveryNthFrame int    `json:"every_nth_frame,omitempty"`
}

// Detect asks the service for per-frame detections of clipURL
func (c *DetectorClient) Detect(ctx context.Context, clipURL string, sampling model.SamplingConfig) ([]model.FrameDetection, error) {
	key := cache.Key("detect", c.endpoint, clipURL, fmt.Sprint(sampling.EveryNthFrame))

	var cached []model.FrameDetection
	if cache.GetJSON(c.cache, key, &cached) {
		return Sample(cached, model.SamplingConfig{MinSpacing: sampling.MinSpacing}), nil
	}

	payload, err := json.Marshal(detectRequest{ClipURL: clipURL, EveryNthFrame: sampling.EveryNthFrame})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var frames []model.FrameDetection
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		frames, err = c.post(ctx, payload)
		if err == nil || !isRetryableFetchError(err) || ctx.Err() != nil {
			break
		}
		if attempt < fetchMaxRetries-1 {
			fetchSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	if err != nil {
		return nil, err
	}

	_ = cache.SetJSON(c.cache, key, frames, c.cacheTTL)
	// The service already applied the keyframe interval
	return Sample(frames, model.SamplingConfig{MinSpacing: sampling.MinSpacing}), nil
}

func (c *DetectorClient) post(ctx context.Context, payload []byte) ([]model.FrameDetection, error) {
	if c.limiter != nil {
		if err := c.limiter.WaitWithDelay(ctx, c.endpoint, 0); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/x-ndjson")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	frames, err := DecodeDetections(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}
	return frames, nil
}

// ClipFrames runs a clip through a remote detector
type ClipFrames struct {
	Client   *DetectorClient
	ClipURL  string
	Sampling model.SamplingConfig
}

// Frames calls the detector
func (s ClipFrames) Frames(ctx context.Context) ([]model.FrameDetection, error) {
	return s.Client.Detect(ctx, s.ClipURL, s.Sampling)
}

// isRemote reports whether ref is an http(s) URL
func isRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
