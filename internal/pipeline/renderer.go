package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// Renderer writes analyses as JSON, Markdown and terminal tables
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a new renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the analysis as indented JSON
func (r *Renderer) RenderJSON(analysis *model.Analysis, path string) error {
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the analysis as a Markdown report
func (r *Renderer) RenderMarkdown(analysis *model.Analysis, path string) error {
	return writeFile(path, []byte(r.Markdown(analysis)))
}

// RenderLLMMarkdown writes the separate LLM summary file
func (r *Renderer) RenderLLMMarkdown(content, path string) error {
	return writeFile(path, []byte(content))
}

// RenderSummary prints the score and breakdown table to w
func (r *Renderer) RenderSummary(w io.Writer, analysis *model.Analysis) {
	fmt.Fprintf(w, "\nConsistency score: %d/100 (%s)\n", analysis.Report.OverallScore, Verdict(analysis.Report.OverallScore))
	if analysis.Subject != "" {
		fmt.Fprintf(w, "Subject: %s\n", analysis.Subject)
	}
	fmt.Fprintln(w)

	if len(analysis.Report.Details) == 0 {
		fmt.Fprintln(w, "No checkable claims found in the text.")
	} else {
		fmt.Fprintln(w, breakdownTable(analysis.Report, false))
	}

	for _, warning := range analysis.Warnings {
		fmt.Fprintf(w, "! %s\n", warning)
	}
}

// Markdown renders the full report
func (r *Renderer) Markdown(analysis *model.Analysis) string {
	var b strings.Builder

	title := "Incident Consistency Report"
	if analysis.Subject != "" {
		title += ": " + analysis.Subject
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Consistency score:** %d/100 (%s)\n\n", analysis.Report.OverallScore, Verdict(analysis.Report.OverallScore))
	fmt.Fprintf(&b, "- Analysis ID: `%s`\n", analysis.ID)
	fmt.Fprintf(&b, "- Analyzed at: %s\n\n", analysis.AnalyzedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Claim Breakdown\n\n")
	if len(analysis.Report.Details) == 0 {
		b.WriteString("No checkable claims found in the text.\n\n")
	} else {
		b.WriteString(breakdownTable(analysis.Report, true))
		b.WriteString("\n\n")
	}

	b.WriteString("## Video Analysis\n\n")
	b.WriteString(videoTable(analysis.VideoAnalysis))
	b.WriteString("\n\n")

	b.WriteString("## Text Claims\n\n")
	b.WriteString(claimsTable(analysis.TextClaims))
	b.WriteString("\n\n")
	if analysis.TextClaims.RawTextSnippet != "" {
		fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(analysis.TextClaims.RawTextSnippet, "\n", " "))
	}

	if len(analysis.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range analysis.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("*Generated by evidencecheck. The score measures agreement between the narrative and the detector output; it does not establish fault or intent.*\n")
	}

	return b.String()
}

// Verdict names the score band
func Verdict(score int) string {
	switch {
	case score >= 90:
		return "consistent"
	case score >= 60:
		return "partially consistent"
	default:
		return "inconsistent"
	}
}

func breakdownTable(report model.ConsistencyReport, markdown bool) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Claim", "Text", "Video", "Result", "Deduction", "Note"})
	for _, d := range report.Details {
		t.AppendRow(table.Row{d.ClaimType.Label(), d.ClaimValue, d.DetectedValue, d.Result, d.Deduction, d.Note})
	}
	t.AppendFooter(table.Row{"", "", "", "Score", report.OverallScore, ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 6, WidthMax: 60},
	})
	return render(t, markdown)
}

func videoTable(v model.VideoAnalysis) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"People", optionalInt(v.People)},
		{"Vehicles", optionalInt(v.Cars)},
		{"Weapon", optionalBool(v.WeaponPresent)},
		{"Collision", collisionCell(v)},
		{"Severity", severityCell(v)},
		{"Frames analyzed", v.FramesAnalyzed},
	})
	return render(t, true)
}

func claimsTable(c model.TextClaims) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	timeCell := "Unknown"
	if c.TimeSeconds != nil {
		timeCell = model.FormatClock(*c.TimeSeconds)
	}
	severity := "Unknown"
	if c.SeverityReport != nil {
		severity = *c.SeverityReport
	}
	t.AppendRows([]table.Row{
		{"People", optionalInt(c.People)},
		{"Vehicles", optionalInt(c.Cars)},
		{"Weapon", optionalBool(c.WeaponPresent)},
		{"Time", timeCell},
		{"Severity", severity},
	})
	return render(t, true)
}

func render(t table.Writer, markdown bool) string {
	if markdown {
		return t.RenderMarkdown()
	}
	t.SetStyle(table.StyleLight)
	return t.Render()
}

func optionalInt(v *int) string {
	if v == nil {
		return "Unknown"
	}
	return fmt.Sprint(*v)
}

func optionalBool(v *bool) string {
	if v == nil {
		return "Unknown"
	}
	if *v {
		return "Present"
	}
	return "Absent"
}

func collisionCell(v model.VideoAnalysis) string {
	if !v.CollisionDetected || v.CollisionTimestamp == nil {
		return "Not detected"
	}
	return fmt.Sprintf("At %.2fs (confidence %.2f)", *v.CollisionTimestamp, v.CollisionConfidence)
}

func severityCell(v model.VideoAnalysis) string {
	if v.Severity == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%s (confidence %.2f)", *v.Severity, v.SeverityConfidence)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
