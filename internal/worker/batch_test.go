package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/evidencecheck/internal/model"
	"github.com/ppiankov/evidencecheck/internal/pipeline"
)

// mockEngine implements Engine without touching the filesystem
type mockEngine struct {
	mu       sync.Mutex
	requests []pipeline.Request
	fail     map[string]bool // Subjects that fail
	delay    time.Duration
}

func (m *mockEngine) Analyze(ctx context.Context, req pipeline.Request) (*model.Analysis, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.fail[req.Subject] {
		return nil, errors.New("analysis error")
	}
	return &model.Analysis{Subject: req.Subject, Report: model.ConsistencyReport{OverallScore: 100}}, nil
}

func (m *mockEngine) TextSource(ref string) pipeline.TextSource {
	return pipeline.LiteralText(ref)
}

func (m *mockEngine) FrameSource(ref string) pipeline.FrameSource {
	if ref == "" {
		return nil
	}
	return pipeline.StaticFrames{}
}

func (m *mockEngine) ClipSource(clipURL string) (pipeline.FrameSource, error) {
	return nil, pipeline.ErrNoDetector
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessIncidents(t *testing.T) {
	engine := &mockEngine{delay: 10 * time.Millisecond, fail: map[string]bool{"b": true}}
	processor := NewBatchProcessor(engine, 2, 0)

	incidents := []Incident{
		{Name: "a", Report: "a.txt"},
		{Name: "b", Report: "b.txt"},
		{Name: "c", Report: "c.txt", Detections: "c.jsonl"},
	}

	results := processor.ProcessIncidents(context.Background(), incidents)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Incident.Name != incidents[i].Name {
			t.Errorf("expected result %d for %s, got %s", i, incidents[i].Name, res.Incident.Name)
		}
	}
	if results[0].Error != nil || results[0].Analysis == nil {
		t.Errorf("expected success for a, got %v", results[0].Error)
	}
	if results[1].Error == nil || results[1].Analysis != nil {
		t.Errorf("expected failure for b, got %+v", results[1])
	}

	succeeded, failed := Tally(results)
	if succeeded != 2 || failed != 1 {
		t.Errorf("expected 2 succeeded / 1 failed, got %d / %d", succeeded, failed)
	}
}

func TestBatchProcessor_ProcessIncidents_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockEngine{}, 2, 0)

	results := processor.ProcessIncidents(context.Background(), []Incident{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessIncidents_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &mockEngine{}
	results := NewBatchProcessor(engine, 2, 0).ProcessIncidents(ctx, []Incident{{Name: "a", Report: "a.txt"}, {Name: "b", Report: "b.txt"}})

	for _, res := range results {
		if !errors.Is(res.Error, context.Canceled) {
			t.Errorf("expected cancelled result for %s, got %v", res.Incident.Name, res.Error)
		}
	}
	if len(engine.requests) != 0 {
		t.Errorf("expected no analyses to run, got %d", len(engine.requests))
	}
}

func TestAnalysisJob_BuildsRequest(t *testing.T) {
	engine := &mockEngine{}

	job := &AnalysisJob{
		Incident: Incident{Name: "elm", Report: "elm.txt", Detections: "elm.jsonl", ClipStart: "10:29:55"},
		Engine:   engine,
	}
	if err := job.Execute(context.Background()).GetError(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	req := engine.requests[0]
	if req.Subject != "elm" || req.Frames == nil {
		t.Errorf("unexpected request %+v", req)
	}
	if req.ClipStart == nil || *req.ClipStart != 10*3600+29*60+55 {
		t.Errorf("expected clip start 37795, got %v", req.ClipStart)
	}
}

func TestAnalysisJob_ClipWithoutDetector(t *testing.T) {
	job := &AnalysisJob{
		Incident: Incident{Name: "clip", Report: "r.txt", Clip: "https://cams.example.org/1.mp4"},
		Engine:   &mockEngine{},
	}
	err := job.Execute(context.Background()).GetError()
	if !errors.Is(err, pipeline.ErrNoDetector) {
		t.Errorf("expected ErrNoDetector, got %v", err)
	}
}

func TestParseClipStart(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"10:29:55", 37795, false},
		{"07:05", 25500, false},
		{"3600", 3600, false},
		{" 45.5 ", 45.5, false},
		{"90000", 0, true},
		{"-1", 0, true},
		{"noon", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseClipStart(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClipStart(%q): unexpected error state %v", tt.input, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClipStart(%q): expected %v, got %v", tt.input, tt.want, got)
		}
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "batch.yaml", `incidents:
  - name: elm-st
    report: reports/elm.html
    detections: detections/elm.jsonl
    clip_start: "10:29:55"
  - report: https://example.org/incidents/7
    clip: https://cams.example.org/7.mp4
`)

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	want := []Incident{
		{
			Name:       "elm-st",
			Report:     filepath.Join(dir, "reports", "elm.html"),
			Detections: filepath.Join(dir, "detections", "elm.jsonl"),
			ClipStart:  "10:29:55",
		},
		{
			Name:   "incident-2",
			Report: "https://example.org/incidents/7",
			Clip:   "https://cams.example.org/7.mp4",
		},
	}
	if diff := cmp.Diff(want, manifest.Incidents); diff != "" {
		t.Errorf("Manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadManifest(writeFile(t, dir, "bad.yaml", "incidents: [")); err == nil {
		t.Error("expected parse error")
	}

	_, err := LoadManifest(writeFile(t, dir, "missing.yaml", "incidents:\n  - name: nothing\n"))
	if err == nil || !strings.Contains(err.Error(), "report is required") {
		t.Errorf("expected missing report error, got %v", err)
	}

	if _, err := LoadManifest(filepath.Join(dir, "none.yaml")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestReadListFile(t *testing.T) {
	content := `reports/a.txt detections/a.jsonl
# comment
https://example.org/incidents/2

reports/a.txt   detections/a.jsonl
reports/c.txt   `

	incidents, err := ReadListFile(writeFile(t, t.TempDir(), "list.txt", content))
	if err != nil {
		t.Fatalf("ReadListFile failed: %v", err)
	}

	want := []Incident{
		{Name: "reports/a.txt", Report: "reports/a.txt", Detections: "detections/a.jsonl"},
		{Name: "https://example.org/incidents/2", Report: "https://example.org/incidents/2"},
		{Name: "reports/c.txt", Report: "reports/c.txt"},
	}
	if diff := cmp.Diff(want, incidents); diff != "" {
		t.Errorf("Incidents mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadListFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestAnalysisResult_GetError(t *testing.T) {
	r1 := &AnalysisResult{Incident: Incident{Name: "a"}}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("analysis failed")
	r2 := &AnalysisResult{Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}

func TestBatchProcessor_ProcessFile_WithPipeline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "elm.txt", "Three people and two cars, no weapons")
	writeFile(t, dir, "elm.jsonl", strings.Join([]string{
		`{"frame_number":0,"timestamp":0,"counts":{"person":2,"car":2}}`,
		`{"frame_number":1,"timestamp":0.5,"counts":{"person":2,"car":2}}`,
		`{"frame_number":2,"timestamp":1,"counts":{"person":2,"car":2}}`,
	}, "\n"))
	writeFile(t, dir, "quiet.txt", "It was a sunny afternoon on the boulevard.")
	manifest := writeFile(t, dir, "batch.yml", `incidents:
  - name: elm
    report: elm.txt
    detections: elm.jsonl
  - name: quiet
    report: quiet.txt
  - name: missing
    report: missing.txt
`)

	processor := NewBatchProcessor(pipeline.New(model.DefaultConfig()), 2, 5*time.Second)
	results, err := processor.ProcessFile(context.Background(), manifest)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].Error != nil || results[0].Analysis.Report.OverallScore != 90 {
		t.Errorf("expected elm to score 90, got %+v", results[0])
	}
	if results[1].Error != nil || results[1].Analysis.Report.OverallScore != 100 {
		t.Errorf("expected quiet to score 100, got %+v", results[1])
	}
	if results[2].Error == nil {
		t.Error("expected an error for the missing report")
	}
}
