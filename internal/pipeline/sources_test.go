package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/evidencecheck/internal/cache"
	"github.com/ppiankov/evidencecheck/internal/extract/adapters"
	"github.com/ppiankov/evidencecheck/internal/model"
)

func timestamps(frames []model.FrameDetection) []float64 {
	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = f.Timestamp
	}
	return out
}

func frameNumbers(frames []model.FrameDetection) []int {
	out := make([]int, len(frames))
	for i, f := range frames {
		out[i] = f.FrameNumber
	}
	return out
}

func TestDecodeDetections(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []float64
	}{
		{
			name:  "array",
			input: `[{"frame_number":0,"timestamp":0},{"frame_number":1,"timestamp":0.5}]`,
			want:  []float64{0, 0.5},
		},
		{
			name:  "envelope with fps",
			input: `{"fps":10,"frames":[{"frame_number":0},{"frame_number":5},{"frame_number":10,"timestamp":1.2}]}`,
			want:  []float64{0, 0.5, 1.2},
		},
		{
			name:  "jsonl",
			input: "{\"frame_number\":0,\"timestamp\":0}\n{\"frame_number\":1,\"timestamp\":0.25}\n",
			want:  []float64{0, 0.25},
		},
		{
			name:  "single object",
			input: `{"frame_number":3,"timestamp":1.5,"counts":{"car":2}}`,
			want:  []float64{1.5},
		},
		{
			name:  "empty",
			input: "  \n",
			want:  []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := DecodeDetections(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if diff := cmp.Diff(tt.want, timestamps(frames)); diff != "" {
				t.Errorf("Timestamps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeDetections_Malformed(t *testing.T) {
	if _, err := DecodeDetections(strings.NewReader(`[{"frame_number":`)); err == nil {
		t.Error("Expected error for truncated JSON")
	}
	if _, err := DecodeDetections(strings.NewReader(`{"frame_number":0}` + "\n" + `"not a frame"`)); err == nil {
		t.Error("Expected error for a non-object JSONL line")
	}
}

func TestSample(t *testing.T) {
	frames := make([]model.FrameDetection, 10)
	for i := range frames {
		frames[i] = model.FrameDetection{FrameNumber: i, Timestamp: float64(i) * 0.1}
	}

	if got := Sample(frames, model.SamplingConfig{EveryNthFrame: 1}); len(got) != 10 {
		t.Errorf("Expected all frames kept, got %d", len(got))
	}

	got := Sample(frames, model.SamplingConfig{EveryNthFrame: 3})
	if diff := cmp.Diff([]int{0, 3, 6, 9}, frameNumbers(got)); diff != "" {
		t.Errorf("Every 3rd frame mismatch (-want +got):\n%s", diff)
	}

	got = Sample(frames, model.SamplingConfig{EveryNthFrame: 1, MinSpacing: 0.25})
	if diff := cmp.Diff([]int{0, 3, 6, 9}, frameNumbers(got)); diff != "" {
		t.Errorf("Min spacing mismatch (-want +got):\n%s", diff)
	}
}

func TestFileText_HTMLReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.html")
	content := `<html><head><script>var x = 9;</script></head><body><p>Two cars collided at the junction.</p></body></html>`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := FileText{Path: path}.Text(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(text, "Two cars collided at the junction.") {
		t.Errorf("Expected visible text, got %q", text)
	}
	if strings.Contains(text, "var x") {
		t.Errorf("Expected script content to be dropped, got %q", text)
	}
}

func TestFileText_Errors(t *testing.T) {
	if _, err := (FileText{Path: filepath.Join(t.TempDir(), "missing.txt")}).Text(context.Background()); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := FileText{Path: path}.Text(context.Background())
	if !errors.Is(err, adapters.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestURLText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprint(w, "Three people were seen.\r\nNo weapons.")
	}))
	defer server.Close()

	fetcher := NewFetcher(5*time.Second, "test-agent", 1<<20, false, "", "", "")
	text, err := URLText{URL: server.URL + "/statement.txt", Fetcher: fetcher}.Text(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(text, "Three people were seen.") || strings.Contains(text, "\r") {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestFileFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.jsonl")
	var lines []string
	for i := 0; i < 6; i++ {
		lines = append(lines, fmt.Sprintf(`{"frame_number":%d,"timestamp":%d,"counts":{"car":2}}`, i, i))
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}

	frames, err := FileFrames{Path: path, Sampling: model.SamplingConfig{EveryNthFrame: 2}}.Frames(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if diff := cmp.Diff([]float64{0, 2, 4}, timestamps(frames)); diff != "" {
		t.Errorf("Sampled timestamps mismatch (-want +got):\n%s", diff)
	}

	if _, err := (FileFrames{Path: filepath.Join(t.TempDir(), "none.json")}).Frames(context.Background()); err == nil {
		t.Error("Expected error for missing detections file")
	}
}

func TestURLFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"frames":[{"frame_number":0,"timestamp":0},{"frame_number":1,"timestamp":1}]}`)
	}))
	defer server.Close()

	fetcher := NewFetcher(5*time.Second, "test-agent", 1<<20, false, "", "", "")
	frames, err := URLFrames{URL: server.URL + "/clip.json", Fetcher: fetcher}.Frames(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(frames) != 2 {
		t.Errorf("Expected 2 frames, got %d", len(frames))
	}
}

func TestDetectorClient_Detect(t *testing.T) {
	var calls atomic.Int32
	var got detectRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("Expected User-Agent test-agent, got %s", r.Header.Get("User-Agent"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = fmt.Fprint(w, `[{"frame_number":0,"timestamp":0},{"frame_number":5,"timestamp":0.1},{"frame_number":10,"timestamp":0.5}]`)
	}))
	defer server.Close()

	limiter := &recordingLimiter{}
	client := NewDetectorClient(server.URL, nil, "test-agent", limiter, cache.NewMemoryCache(time.Minute, time.Minute), 0)
	sampling := model.SamplingConfig{EveryNthFrame: 5, MinSpacing: 0.2}

	frames, err := client.Detect(context.Background(), "https://cams.example.org/clip.mp4", sampling)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.ClipURL != "https://cams.example.org/clip.mp4" || got.EveryNthFrame != 5 {
		t.Errorf("Unexpected request body %+v", got)
	}
	// The service applied the interval; only the spacing is enforced locally
	if diff := cmp.Diff([]float64{0, 0.5}, timestamps(frames)); diff != "" {
		t.Errorf("Timestamps mismatch (-want +got):\n%s", diff)
	}

	again, err := ClipFrames{Client: client, ClipURL: "https://cams.example.org/clip.mp4", Sampling: sampling}.Frames(context.Background())
	if err != nil {
		t.Fatalf("Expected cached detections, got %v", err)
	}
	if len(again) != 2 {
		t.Errorf("Expected 2 cached frames, got %d", len(again))
	}
	if calls.Load() != 1 {
		t.Errorf("Expected the second call to be served from cache, got %d calls", calls.Load())
	}
	if limiter.calls.Load() != 1 {
		t.Errorf("Expected limiter to be consulted once, got %d", limiter.calls.Load())
	}
}

func TestDetectorClient_RetriesServerErrors(t *testing.T) {
	noSleep(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewDetectorClient(server.URL, nil, "", nil, nil, 0)
	_, err := client.Detect(context.Background(), "clip.mp4", model.SamplingConfig{})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Errorf("Expected StatusError 502, got %v", err)
	}
	if calls.Load() != int32(fetchMaxRetries) {
		t.Errorf("Expected %d attempts, got %d", fetchMaxRetries, calls.Load())
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://example.org/report.html": true,
		"HTTP://example.org":              true,
		"reports/incident.txt":            false,
		"/tmp/detections.json":            false,
	}
	for ref, want := range tests {
		if got := isRemote(ref); got != want {
			t.Errorf("isRemote(%q): expected %v, got %v", ref, want, got)
		}
	}
}
