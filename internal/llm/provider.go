package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize writes a narrative explanation of a finished analysis
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	// Analysis is the scored analysis to explain. The score is final.
	Analysis model.Analysis

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	Summary    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "" (disabled)
	Provider string

	Model   string
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint override
	Timeout int    // seconds

	// StrictScore rejects summaries that quote a score other than the computed one
	StrictScore bool

	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:     30,
		StrictScore: true,
		MaxTokens:   600,
	}
}

// BuildPrompt constructs the default prompt. The model may only restate the
// computed results; it is told the score and every claim row verbatim.
func BuildPrompt(analysis model.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are explaining an incident consistency report. The report compares a written
incident narrative against object-detection results from a video of the same incident.

RULES:
1. The consistency score is %d/100. Do not recompute, round or restate it differently.
2. Only discuss the claim rows listed below. Do not infer intent, fault or identity.
3. If the video could not confirm a claim (result "unknown"), say the video was inconclusive.
4. Do not speculate about what "really" happened.

Subject: %s
Consistency score: %d/100

Claim rows:
`, analysis.Report.OverallScore, subjectOrDefault(analysis.Subject), analysis.Report.OverallScore)

	if len(analysis.Report.Details) == 0 {
		b.WriteString("- (no checkable claims in the narrative)\n")
	}
	for _, d := range analysis.Report.Details {
		fmt.Fprintf(&b, "- %s: text=%s video=%s result=%s deduction=%d (%s)\n",
			d.ClaimType.Label(), d.ClaimValue, d.DetectedValue, d.Result, d.Deduction, d.Note)
	}

	v := analysis.VideoAnalysis
	fmt.Fprintf(&b, "\nVideo: %d frames analysed, collision detected: %v", v.FramesAnalyzed, v.CollisionDetected)
	if v.Severity != nil {
		fmt.Fprintf(&b, ", severity %s", *v.Severity)
	}
	b.WriteString("\n")

	for _, w := range analysis.Warnings {
		fmt.Fprintf(&b, "Input warning: %s\n", w)
	}

	b.WriteString("\nWrite 3-4 sentences summarising where the narrative and the video agree and disagree.")
	return b.String()
}

func subjectOrDefault(subject string) string {
	if subject == "" {
		return "(unnamed incident)"
	}
	return subject
}
