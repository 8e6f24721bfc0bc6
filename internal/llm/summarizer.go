package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/evidencecheck/internal/model"
)

var (
	scoreOutOf100 = regexp.MustCompile(`\b(\d{1,3})\s*(?:/|out of)\s*100\b`)
	scoreOfN      = regexp.MustCompile(`(?i)\bscore(?:\s+(?:of|is|was))?\s*:?\s*(\d{1,3})\b`)
)

// Summarizer produces the optional narrative for an analysis. It runs after
// scoring and never changes the report.
type Summarizer struct {
	provider Provider
	config   Config
}

// NewSummarizer creates a summarizer; an empty provider name disables it
func NewSummarizer(config Config) (*Summarizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	return &Summarizer{provider: provider, config: config}, nil
}

// NewSummarizerWithProvider wraps an existing provider
func NewSummarizerWithProvider(provider Provider, config Config) *Summarizer {
	return &Summarizer{provider: provider, config: config}
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// GenerateSummary asks the provider to explain the analysis. Provider failures
// are reported as warnings on the returned summary, not as errors.
func (s *Summarizer) GenerateSummary(ctx context.Context, analysis model.Analysis) (*model.LLMSummary, error) {
	if !s.IsEnabled() {
		return nil, nil
	}

	summary := &model.LLMSummary{
		Provider: s.provider.Name(),
		Model:    s.config.Model,
	}

	if !s.provider.IsAvailable(ctx) {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("LLM provider %s is not available", s.provider.Name()))
		return summary, nil
	}
	summary.Enabled = true

	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Analysis:  analysis,
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
	})
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("LLM summary generation failed: %v", err))
		return summary, nil
	}

	if s.config.StrictScore {
		if quoted, ok := misquotedScore(resp.Summary, analysis.Report.OverallScore); ok {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("LLM summary rejected: quoted score %d, computed score is %d", quoted, analysis.Report.OverallScore))
			return summary, nil
		}
	}

	summary.Model = firstNonEmpty(resp.Model, s.config.Model)
	summary.SummaryMD = resp.Summary
	if resp.TokensUsed > 0 {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("Tokens used: %d", resp.TokensUsed))
	}
	return summary, nil
}

// misquotedScore returns the first score quoted in text that differs from want
func misquotedScore(text string, want int) (int, bool) {
	for _, pattern := range []*regexp.Regexp{scoreOutOf100, scoreOfN} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n > 100 {
				continue
			}
			if n != want {
				return n, true
			}
		}
	}
	return 0, false
}

// RenderSeparateMarkdown renders the summary as its own Markdown file
func RenderSeparateMarkdown(summary *model.LLMSummary) string {
	if summary == nil || !summary.Enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString("# LLM Summary\n\n")
	b.WriteString("> **GENERATED CONTENT.** The consistency score and claim breakdown were determined independently of this text.\n\n")
	fmt.Fprintf(&b, "- **Provider:** %s\n", summary.Provider)
	if summary.Model != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", summary.Model)
	}
	b.WriteString("\n")

	if summary.SummaryMD == "" {
		b.WriteString("*No summary generated.*\n")
	} else {
		b.WriteString(summary.SummaryMD)
		b.WriteString("\n")
	}

	if len(summary.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range summary.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
