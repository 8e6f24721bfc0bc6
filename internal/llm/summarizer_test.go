package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  *SummarizeResponse
	err       error
	lastReq   SummarizeRequest
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

func scoredAnalysis(score int) model.Analysis {
	return model.Analysis{
		Subject: "Crash on Elm St",
		Report: model.ConsistencyReport{
			OverallScore: score,
			Details: []model.ClaimResult{{
				ClaimType:     model.ClaimPeople,
				ClaimValue:    "3",
				DetectedValue: "2",
				Result:        model.ResultPartial,
				Deduction:     -10,
				Note:          "Text says 3, video shows 2 (off by 1)",
			}},
		},
	}
}

func TestNewSummarizer_DisabledProvider(t *testing.T) {
	summarizer, err := NewSummarizer(Config{Provider: ""})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summarizer.IsEnabled() {
		t.Error("Expected summarizer to be disabled")
	}
	if summarizer.ProviderName() != "" {
		t.Error("Expected empty provider name when disabled")
	}

	summary, err := summarizer.GenerateSummary(context.Background(), scoredAnalysis(90))
	if err != nil || summary != nil {
		t.Errorf("Expected nil summary and no error when disabled, got %v, %v", summary, err)
	}
}

func TestNewSummarizer_UnknownProvider(t *testing.T) {
	if _, err := NewSummarizer(Config{Provider: "mystery"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestSummarizer_NilIsDisabled(t *testing.T) {
	var summarizer *Summarizer
	if summarizer.IsEnabled() {
		t.Error("Expected nil summarizer to be disabled")
	}
}

func TestSummarizer_GenerateSummary_ProviderUnavailable(t *testing.T) {
	summarizer := NewSummarizerWithProvider(&MockProvider{name: "test-provider"}, Config{StrictScore: true})

	summary, err := summarizer.GenerateSummary(context.Background(), scoredAnalysis(90))
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if summary == nil {
		t.Fatal("Expected summary object with warnings")
	}
	if summary.Enabled {
		t.Error("Expected summary to be marked as disabled")
	}
	if len(summary.Warnings) == 0 || !strings.Contains(summary.Warnings[0], "not available") {
		t.Errorf("Expected warning about provider unavailability, got %v", summary.Warnings)
	}
}

func TestSummarizer_GenerateSummary_Success(t *testing.T) {
	provider := &MockProvider{
		name:      "test-provider",
		available: true,
		response: &SummarizeResponse{
			Summary:    "The consistency score is 90/100: the video shows one fewer person than reported.",
			Model:      "test-model",
			TokensUsed: 150,
		},
	}
	summarizer := NewSummarizerWithProvider(provider, Config{Model: "test-model", StrictScore: true, MaxTokens: 200})

	summary, err := summarizer.GenerateSummary(context.Background(), scoredAnalysis(90))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !summary.Enabled {
		t.Error("Expected summary to be enabled")
	}
	if summary.Provider != "test-provider" || summary.Model != "test-model" {
		t.Errorf("Unexpected provider/model %s/%s", summary.Provider, summary.Model)
	}
	if summary.SummaryMD != provider.response.Summary {
		t.Errorf("Expected summary text to match, got %q", summary.SummaryMD)
	}
	if len(summary.Warnings) != 1 || summary.Warnings[0] != "Tokens used: 150" {
		t.Errorf("Expected token usage note, got %v", summary.Warnings)
	}
	if provider.lastReq.MaxTokens != 200 || provider.lastReq.Analysis.Report.OverallScore != 90 {
		t.Errorf("Expected request to carry config and analysis, got %+v", provider.lastReq)
	}
}

func TestSummarizer_GenerateSummary_ProviderError(t *testing.T) {
	summarizer := NewSummarizerWithProvider(&MockProvider{
		name:      "test-provider",
		available: true,
		err:       errors.New("API rate limit exceeded"),
	}, Config{StrictScore: true})

	summary, err := summarizer.GenerateSummary(context.Background(), scoredAnalysis(90))
	if err != nil {
		t.Errorf("Expected no error (graceful degradation), got %v", err)
	}
	if summary == nil || !summary.Enabled {
		t.Fatalf("Expected enabled summary with warnings, got %+v", summary)
	}

	found := false
	for _, warning := range summary.Warnings {
		if strings.Contains(warning, "failed") && strings.Contains(warning, "rate limit") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected warning to mention error: %v", summary.Warnings)
	}
}

func TestSummarizer_RejectsMisquotedScore(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		strict   bool
		rejected bool
	}{
		{"correct", "Overall the score is 90 out of 100.", true, false},
		{"out of 100", "The report scores 75/100.", true, true},
		{"score of", "It earned a score of 60 because the weapon claim failed.", true, true},
		{"no score", "The video shows one fewer person than the narrative.", true, false},
		{"lenient", "The report scores 75/100.", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summarizer := NewSummarizerWithProvider(&MockProvider{
				name:      "test-provider",
				available: true,
				response:  &SummarizeResponse{Summary: tt.text},
			}, Config{StrictScore: tt.strict})

			summary, _ := summarizer.GenerateSummary(context.Background(), scoredAnalysis(90))

			if rejected := summary.SummaryMD == ""; rejected != tt.rejected {
				t.Errorf("Expected rejected=%v, got summary %q warnings %v", tt.rejected, summary.SummaryMD, summary.Warnings)
			}
		})
	}
}

func TestRenderSeparateMarkdown(t *testing.T) {
	if md := RenderSeparateMarkdown(nil); md != "" {
		t.Error("Expected empty markdown when nil")
	}
	if md := RenderSeparateMarkdown(&model.LLMSummary{Enabled: false}); md != "" {
		t.Error("Expected empty markdown when disabled")
	}

	md := RenderSeparateMarkdown(&model.LLMSummary{
		Enabled:   true,
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		SummaryMD: "This is the generated summary content.",
		Warnings:  []string{"Tokens used: 150"},
	})

	for _, section := range []string{
		"# LLM Summary",
		"GENERATED CONTENT",
		"determined independently",
		"openai",
		"gpt-4o-mini",
		"This is the generated summary content.",
		"## Notes",
		"Tokens used: 150",
	} {
		if !strings.Contains(md, section) {
			t.Errorf("Expected markdown to contain %q", section)
		}
	}

	empty := RenderSeparateMarkdown(&model.LLMSummary{Enabled: true, Provider: "openai"})
	if !strings.Contains(empty, "No summary generated") {
		t.Error("Expected message about no summary")
	}
}

func TestBuildPrompt(t *testing.T) {
	severity := "Moderate"
	analysis := scoredAnalysis(90)
	analysis.VideoAnalysis = model.VideoAnalysis{FramesAnalyzed: 24, CollisionDetected: true, Severity: &severity}
	analysis.Warnings = []string{"2 frames dropped"}

	prompt := BuildPrompt(analysis)

	for _, want := range []string{
		"The consistency score is 90/100",
		"Subject: Crash on Elm St",
		"People Count: text=3 video=2 result=partial deduction=-10",
		"24 frames analysed, collision detected: true, severity Moderate",
		"Input warning: 2 frames dropped",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q\n%s", want, prompt)
		}
	}

	empty := BuildPrompt(model.Analysis{})
	if !strings.Contains(empty, "(no checkable claims in the narrative)") || !strings.Contains(empty, "(unnamed incident)") {
		t.Errorf("Unexpected prompt for empty analysis:\n%s", empty)
	}
}
