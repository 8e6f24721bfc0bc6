package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/evidencecheck/internal/cache"
	"github.com/ppiankov/evidencecheck/internal/extract"
	"github.com/ppiankov/evidencecheck/internal/extract/adapters"
	"github.com/ppiankov/evidencecheck/internal/llm"
	"github.com/ppiankov/evidencecheck/internal/logging"
	"github.com/ppiankov/evidencecheck/internal/model"
	"github.com/ppiankov/evidencecheck/internal/scene"
	"github.com/ppiankov/evidencecheck/internal/score"
	"github.com/ppiankov/evidencecheck/internal/util"
	"github.com/ppiankov/evidencecheck/internal/validate"
)

// ErrNoDetector is returned when a clip is given but no detection service is configured
var ErrNoDetector = errors.New("no detector endpoint configured")

// Publisher receives every finished analysis
type Publisher interface {
	Publish(ctx context.Context, analysis *model.Analysis) error
}

// Pipeline orchestrates loading, extraction, scene analysis and reconciliation
type Pipeline struct {
	cfg        *model.Config
	extractor  *extract.ClaimExtractor
	aggregator *scene.Aggregator
	collisions *scene.CollisionDetector
	classifier *scene.SeverityClassifier
	renderer   *Renderer
	fetcher    *Fetcher
	adapters   *adapters.Registry
	detector   *DetectorClient
	limiter    RateLimiter
	summarizer *llm.Summarizer // nil if disabled
	publisher  Publisher       // nil if disabled
	cache      cache.Cache
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSummarizer attaches an LLM summarizer
func WithSummarizer(s *llm.Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithPublisher attaches a sink for finished analyses
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithCache caches fetched sources, detector output and analyses
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithLimiter rate limits remote fetches and detector calls
func WithLimiter(l RateLimiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithLogger replaces the pipeline logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithDetector replaces the detector client built from config
func WithDetector(d *DetectorClient) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithClock fixes the analysis timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline with the given configuration
func New(cfg *model.Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}

	collisions := scene.NewCollisionDetector(cfg.Collision)
	if labels := cfg.Aggregation.ClassAliases[model.SceneClassCars]; len(labels) > 0 {
		collisions = collisions.WithVehicleLabels(labels)
	}

	p := &Pipeline{
		cfg:        cfg,
		extractor:  extract.NewClaimExtractor(),
		aggregator: scene.NewAggregator(cfg.Aggregation),
		collisions: collisions,
		classifier: scene.NewSeverityClassifier(cfg.Severity),
		renderer:   NewRenderer(cfg.Output.IncludeFooter),
		adapters:   adapters.NewRegistry(),
		cache:      cache.Nop{},
		logger:     logging.New("pipeline"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.fetcher = NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes, cfg.HTTP.RespectRobots,
		cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy).
		WithCache(p.cache, cfg.Cache.DiskTTL)
	if p.limiter != nil {
		p.fetcher.WithLimiter(p.limiter)
	}

	if p.detector == nil && cfg.Detector.Endpoint != "" {
		client := util.NewHTTPClient(cfg.Detector.Timeout, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
		p.detector = NewDetectorClient(cfg.Detector.Endpoint, client, cfg.HTTP.UserAgent, p.limiter, p.cache, cfg.Cache.DiskTTL)
	}

	// LLM summaries are created from config unless one was supplied
	if p.summarizer == nil && cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
		if err != nil {
			p.logger.Warn("failed to initialize LLM provider", "error", err)
		} else {
			p.summarizer = s
		}
	}

	return p
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() *model.Config {
	return p.cfg
}

// Renderer returns the pipeline's output renderer
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

// Fetcher returns the fetcher used for remote sources
func (p *Pipeline) Fetcher() *Fetcher {
	return p.fetcher
}

// Request describes one analysis
type Request struct {
	Subject   string
	Text      TextSource
	Frames    FrameSource // nil when no video evidence is available
	ClipStart *float64    // Wall-clock seconds of day at clip second 0; overrides config
}

// Analyze loads both sources concurrently and runs the full analysis.
// A text failure aborts; a detection failure degrades to unknown video evidence.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*model.Analysis, error) {
	if req.Text == nil {
		return nil, fmt.Errorf("analyze: text source is required")
	}

	var (
		text     string
		frames   []model.FrameDetection
		frameErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := req.Text.Text(gctx)
		if err != nil {
			return fmt.Errorf("load text: %w", err)
		}
		text = t
		return nil
	})
	if req.Frames != nil {
		g.Go(func() error {
			frames, frameErr = req.Frames.Frames(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var warnings []string
	switch {
	case req.Frames == nil:
		p.logger.Warn("no detections supplied", "subject", req.Subject)
	case frameErr != nil:
		p.logger.Warn("detections unavailable", "subject", req.Subject, "error", frameErr)
		warnings = append(warnings, fmt.Sprintf("detections unavailable: %v", frameErr))
		frames = nil
	}

	analysis := p.analyzeCached(text, frames, req.ClipStart)
	analysis.Subject = req.Subject
	analysis.Warnings = append(warnings, analysis.Warnings...)

	// LLM summary runs after scoring and never touches the report
	if p.summarizer.IsEnabled() {
		summary, err := p.summarizer.GenerateSummary(ctx, *analysis)
		if err != nil {
			p.logger.Warn("LLM summary generation failed", "error", err)
		} else if summary != nil {
			analysis.LLM = summary
		}
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, analysis); err != nil {
			p.logger.Warn("publish analysis failed", "id", analysis.ID, "error", err)
		}
	}

	p.logger.Info("analysis complete",
		"id", analysis.ID,
		"subject", analysis.Subject,
		"score", analysis.Report.OverallScore,
		"claims", len(analysis.Report.Details),
		"frames", analysis.VideoAnalysis.FramesAnalyzed)

	return analysis, nil
}

// analysisKey identifies every input that determines an analysis
type analysisKey struct {
	Text        string                  `json:"text"`
	Frames      []model.FrameDetection  `json:"frames"`
	ClipStart   *float64                `json:"clip_start"`
	Aggregation model.AggregationConfig `json:"aggregation"`
	Collision   model.CollisionConfig   `json:"collision"`
	Severity    model.SeverityConfig    `json:"severity"`
	Scoring     model.ScoringPolicy     `json:"scoring"`
}

func (p *Pipeline) analyzeCached(text string, frames []model.FrameDetection, clipStart *float64) *model.Analysis {
	raw, err := json.Marshal(analysisKey{
		Text:        text,
		Frames:      frames,
		ClipStart:   clipStart,
		Aggregation: p.cfg.Aggregation,
		Collision:   p.cfg.Collision,
		Severity:    p.cfg.Severity,
		Scoring:     p.cfg.Scoring,
	})
	if err != nil {
		// NaN timestamps are not JSON; validation will drop them
		return p.AnalyzeInputs(text, frames, clipStart)
	}
	key := cache.Key("analysis", string(raw))

	var cached model.Analysis
	if cache.GetJSON(p.cache, key, &cached) {
		p.logger.Debug("analysis cache hit")
		cached.ID = p.newID()
		cached.AnalyzedAt = p.now().UTC()
		return &cached
	}

	analysis := p.AnalyzeInputs(text, frames, clipStart)
	if err := cache.SetJSON(p.cache, key, analysis, p.cfg.Cache.MemoryTTL); err != nil {
		p.logger.Debug("cache analysis failed", "error", err)
	}
	return analysis
}

// AnalyzeInputs runs the synchronous core: validate frames, extract claims,
// aggregate the scene, detect the collision, classify severity and reconcile.
func (p *Pipeline) AnalyzeInputs(text string, frames []model.FrameDetection, clipStart *float64) *model.Analysis {
	var warnings []string

	valid, issues := validate.Frames(frames)
	if len(issues) > 0 {
		p.logger.Warn("invalid frames in detections", "issues", len(issues), "kept", len(valid))
		for _, issue := range issues {
			warnings = append(warnings, issue.String())
		}
	}
	if len(valid) == 0 {
		p.logger.Warn("no usable frames, video evidence is unknown")
		warnings = append(warnings, "no usable detection frames: video evidence is unknown")
	}

	claims := p.extractor.Extract(text)
	summary := p.aggregator.Aggregate(valid)
	collision := p.collisions.Run(valid)
	severity := p.classifier.Classify(collision, collision.MotionMagnitude)

	policy := p.cfg.Scoring
	if clipStart != nil {
		policy.ClipStartSecondsOfDay = *clipStart
	}
	report := score.NewReconciler(policy).Reconcile(claims, summary, collision, severity)

	p.logger.Debug("reconciled",
		"claims", claims.Len(),
		"collision", collision.Detected,
		"severity", severity.Severity.String(),
		"score", report.OverallScore)

	return &model.Analysis{
		ID:            p.newID(),
		AnalyzedAt:    p.now().UTC(),
		Report:        report,
		VideoAnalysis: model.NewVideoAnalysis(summary, collision, severity),
		TextClaims:    model.NewTextClaims(claims, text),
		Warnings:      warnings,
	}
}

// ExtractClaims runs only the text side
func (p *Pipeline) ExtractClaims(text string) model.ClaimSet {
	return p.extractor.Extract(text)
}

// TextSource resolves a report reference: an http(s) URL or a file path
func (p *Pipeline) TextSource(ref string) TextSource {
	if isRemote(ref) {
		return URLText{URL: ref, Fetcher: p.fetcher, Adapters: p.adapters}
	}
	return FileText{Path: ref, Adapters: p.adapters}
}

// FrameSource resolves a detection file reference; "" means no detections
func (p *Pipeline) FrameSource(ref string) FrameSource {
	switch {
	case ref == "":
		return nil
	case isRemote(ref):
		return URLFrames{URL: ref, Fetcher: p.fetcher, Sampling: p.cfg.Sampling}
	default:
		return FileFrames{Path: ref, Sampling: p.cfg.Sampling}
	}
}

// DiscoverAttachments lists clip and detection links in an HTML report.
// Non-HTML reports have none.
func (p *Pipeline) DiscoverAttachments(ctx context.Context, ref string) ([]extract.Attachment, error) {
	var (
		content     []byte
		contentType string
		base        string
	)

	if isRemote(ref) {
		result, err := p.fetcher.FetchWithRetry(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("fetch report: %w", err)
		}
		content, contentType, base = result.Body, result.ContentType, ref
		if result.FinalURL != "" {
			base = result.FinalURL
		}
	} else {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		content, contentType = data, mime.TypeByExtension(filepath.Ext(ref))
	}

	if !strings.Contains(strings.ToLower(contentType), "html") {
		return nil, nil
	}

	attachments, err := extract.ExtractAttachments(string(content), base)
	if err != nil {
		return nil, fmt.Errorf("extract attachments: %w", err)
	}
	p.logger.Debug("attachments discovered", "report", ref, "count", len(attachments))
	return attachments, nil
}

// ClipSource runs a clip URL through the configured detection service
func (p *Pipeline) ClipSource(clipURL string) (FrameSource, error) {
	if p.detector == nil {
		return nil, ErrNoDetector
	}
	return ClipFrames{Client: p.detector, ClipURL: clipURL, Sampling: p.cfg.Sampling}, nil
}

// Render writes the analysis to the requested outputs. Empty paths are skipped.
// A present LLM summary goes to a separate <name>.llm.md next to the Markdown report.
func (p *Pipeline) Render(analysis *model.Analysis, jsonPath, mdPath string) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(analysis, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		p.logger.Debug("wrote JSON", "path", jsonPath)
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(analysis, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		p.logger.Debug("wrote Markdown", "path", mdPath)
	}

	if analysis.LLM != nil && analysis.LLM.Enabled && mdPath != "" {
		llmPath := strings.TrimSuffix(mdPath, ".md") + ".llm.md"
		if err := p.renderer.RenderLLMMarkdown(llm.RenderSeparateMarkdown(analysis.LLM), llmPath); err != nil {
			p.logger.Warn("failed to write LLM summary", "path", llmPath, "error", err)
		} else {
			p.logger.Debug("wrote LLM summary", "path", llmPath)
		}
	}

	return nil
}
