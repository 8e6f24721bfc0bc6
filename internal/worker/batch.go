package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/evidencecheck/internal/logging"
	"github.com/ppiankov/evidencecheck/internal/model"
	"github.com/ppiankov/evidencecheck/internal/pipeline"
)

// Engine runs analyses and resolves source references. *pipeline.Pipeline implements it.
type Engine interface {
	Analyze(ctx context.Context, req pipeline.Request) (*model.Analysis, error)
	TextSource(ref string) pipeline.TextSource
	FrameSource(ref string) pipeline.FrameSource
	ClipSource(clipURL string) (pipeline.FrameSource, error)
}

// Incident is one manifest entry: a report plus its video evidence
type Incident struct {
	Name       string `yaml:"name"`
	Report     string `yaml:"report"`               // File path or URL
	Detections string `yaml:"detections,omitempty"` // Detection file path or URL
	Clip       string `yaml:"clip,omitempty"`       // Clip URL for the detector service
	ClipStart  string `yaml:"clip_start,omitempty"` // "HH:MM:SS" or seconds of day
}

// Manifest lists the incidents of a batch
type Manifest struct {
	Incidents []Incident `yaml:"incidents"`
}

// AnalysisJob analyses one incident
type AnalysisJob struct {
	Incident Incident
	Engine   Engine
	Timeout  time.Duration
}

// Execute builds the request and runs the analysis
func (j *AnalysisJob) Execute(ctx context.Context) Result {
	result := &AnalysisResult{Incident: j.Incident}

	req, err := buildRequest(j.Engine, j.Incident)
	if err != nil {
		result.Error = err
		return result
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	result.Analysis, result.Error = j.Engine.Analyze(ctx, req)
	return result
}

func buildRequest(engine Engine, inc Incident) (pipeline.Request, error) {
	if inc.Report == "" {
		return pipeline.Request{}, fmt.Errorf("incident %q: report is required", inc.Name)
	}

	req := pipeline.Request{
		Subject: firstNonEmpty(inc.Name, inc.Report),
		Text:    engine.TextSource(inc.Report),
		Frames:  engine.FrameSource(inc.Detections),
	}

	if req.Frames == nil && inc.Clip != "" {
		source, err := engine.ClipSource(inc.Clip)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("incident %q: %w", inc.Name, err)
		}
		req.Frames = source
	}

	if inc.ClipStart != "" {
		seconds, err := ParseClipStart(inc.ClipStart)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("incident %q: %w", inc.Name, err)
		}
		req.ClipStart = &seconds
	}

	return req, nil
}

// ParseClipStart parses a wall-clock time ("10:29:55", "10:29") or plain seconds of day
func ParseClipStart(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 || seconds >= 24*3600 {
			return 0, fmt.Errorf("clip start %q out of range", value)
		}
		return seconds, nil
	}

	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return float64(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("parse clip start %q: expected HH:MM[:SS] or seconds", value)
}

// AnalysisResult is the outcome of one incident
type AnalysisResult struct {
	Incident Incident
	Analysis *model.Analysis
	Error    error
}

// GetError returns the error from the analysis
func (r *AnalysisResult) GetError() error {
	return r.Error
}

// BatchProcessor analyses many incidents on a bounded worker pool
type BatchProcessor struct {
	engine      Engine
	concurrency int
	timeout     time.Duration
}

// NewBatchProcessor creates a new batch processor; timeout bounds each incident (0 = none)
func NewBatchProcessor(engine Engine, concurrency int, timeout time.Duration) *BatchProcessor {
	return &BatchProcessor{
		engine:      engine,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// ProcessIncidents analyses incidents concurrently; results follow input order
func (b *BatchProcessor) ProcessIncidents(ctx context.Context, incidents []Incident) []*AnalysisResult {
	if len(incidents) == 0 {
		return []*AnalysisResult{}
	}

	logger := logging.New("batch")
	logger.Info("batch started", "incidents", len(incidents), "workers", b.concurrency)

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, inc := range incidents {
		pool.Submit(&AnalysisJob{
			Incident: inc,
			Engine:   b.engine,
			Timeout:  b.timeout,
		})
	}

	results := pool.Wait()

	out := make([]*AnalysisResult, len(results))
	for i, result := range results {
		if r, ok := result.(*AnalysisResult); ok {
			out[i] = r
			continue
		}
		// Skipped by cancellation
		out[i] = &AnalysisResult{Incident: incidents[i], Error: result.GetError()}
	}

	ok, failed := Tally(out)
	logger.Info("batch finished", "succeeded", ok, "failed", failed)
	return out
}

// ProcessFile reads a YAML manifest (.yaml/.yml) or a plain list file and analyses every incident
func (b *BatchProcessor) ProcessFile(ctx context.Context, path string) ([]*AnalysisResult, error) {
	incidents, err := ReadIncidents(path)
	if err != nil {
		return nil, err
	}
	return b.ProcessIncidents(ctx, incidents), nil
}

// ReadIncidents loads incidents from a manifest or list file
func ReadIncidents(path string) ([]Incident, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		manifest, err := LoadManifest(path)
		if err != nil {
			return nil, err
		}
		return manifest.Incidents, nil
	default:
		return ReadListFile(path)
	}
}

// LoadManifest reads a YAML manifest. Relative paths resolve against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	var problems []error
	base := filepath.Dir(path)
	for i := range manifest.Incidents {
		inc := &manifest.Incidents[i]
		if inc.Report == "" {
			problems = append(problems, fmt.Errorf("incident %d (%s): report is required", i+1, inc.Name))
			continue
		}
		inc.Report = resolveRef(base, inc.Report)
		inc.Detections = resolveRef(base, inc.Detections)
		if inc.Name == "" {
			inc.Name = fmt.Sprintf("incident-%d", i+1)
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid manifest: %w", errors.Join(problems...))
	}

	return &manifest, nil
}

func resolveRef(base, ref string) string {
	if ref == "" || filepath.IsAbs(ref) || strings.Contains(ref, "://") {
		return ref
	}
	return filepath.Join(base, ref)
}

// ReadListFile reads one incident per line: "<report> [detections]".
// Blank lines and # comments are skipped; duplicate lines are dropped.
func ReadListFile(path string) ([]Incident, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var incidents []Incident
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		key := strings.Join(fields, " ")
		if seen[key] {
			continue
		}
		seen[key] = true

		inc := Incident{Name: fields[0], Report: fields[0]}
		if len(fields) > 1 {
			inc.Detections = fields[1]
		}
		incidents = append(incidents, inc)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return incidents, nil
}

// Tally counts successful and failed results
func Tally(results []*AnalysisResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Error != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
