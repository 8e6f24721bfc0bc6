package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/evidencecheck/internal/extract"
	"github.com/ppiankov/evidencecheck/internal/pipeline"
	"github.com/ppiankov/evidencecheck/internal/worker"
)

var (
	outJSON    string
	outMD      string
	detections string
	clipURL    string
	clipStart  string
	subject    string
	failUnder  int
	discover   bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <report>",
	Short: "Score one incident report against its video detections",
	Long: `Analyze extracts claims from an incident report, summarises the
detector output for the matching clip, and reconciles the two into a
0-100 consistency score with a per-claim breakdown.

The report may be a .txt, .md or .html file, or an http(s) URL.
Detections are JSON, JSON Lines, or a {"fps": N, "frames": [...]} envelope.

Example:
  evidencecheck analyze report.txt --detections clip.jsonl
  evidencecheck analyze report.html --detections clip.json --clip-start 10:29:55 --md report.md
  evidencecheck analyze https://example.org/incidents/7 --clip https://cams.example.org/7.mp4 --detector http://localhost:9000/detect`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&detections, "detections", "d", "", "detection file path or URL")
	analyzeCmd.Flags().StringVar(&clipURL, "clip", "", "clip URL to send to the detection service")
	analyzeCmd.Flags().StringVar(&clipStart, "clip-start", "", "wall-clock time of the first frame (HH:MM[:SS] or seconds of day)")
	analyzeCmd.Flags().StringVar(&subject, "subject", "", "name shown in reports (default: the report reference)")
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path")
	analyzeCmd.Flags().BoolVar(&discover, "discover", false, "take detections or clip links from an HTML report when not given")
	analyzeCmd.Flags().IntVar(&failUnder, "fail-under", 0, "exit non-zero when the score is below this value")
	addEngineFlags(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyEngineFlags(cmd, cfg)

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	incident := worker.Incident{
		Name:       subject,
		Report:     args[0],
		Detections: detections,
		Clip:       clipURL,
		ClipStart:  clipStart,
	}
	if incident.Name == "" {
		incident.Name = filepath.Base(args[0])
	}
	ctx := commandContext(cmd)
	if discover && incident.Detections == "" && incident.Clip == "" {
		discoverAttachments(ctx, p, &incident)
	}

	job := &worker.AnalysisJob{Incident: incident, Engine: p, Timeout: timeout}
	result := job.Execute(ctx).(*worker.AnalysisResult)
	if result.Error != nil {
		return fmt.Errorf("analysis failed: %w", result.Error)
	}

	analysis := result.Analysis
	if err := p.Render(analysis, outJSON, outMD); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	p.Renderer().RenderSummary(os.Stdout, analysis)

	if verbose {
		if outJSON != "" {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outJSON)
		}
		if outMD != "" {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outMD)
		}
		if analysis.LLM != nil && analysis.LLM.Enabled {
			fmt.Fprintf(os.Stderr, "✓ Generated LLM summary using %s/%s\n", analysis.LLM.Provider, analysis.LLM.Model)
		}
	}

	if failUnder > 0 && analysis.Report.OverallScore < failUnder {
		return fmt.Errorf("consistency score %d is below %d", analysis.Report.OverallScore, failUnder)
	}
	return nil
}

// discoverAttachments fills in detections or a clip linked from the report page
func discoverAttachments(ctx context.Context, p *pipeline.Pipeline, incident *worker.Incident) {
	attachments, err := p.DiscoverAttachments(ctx, incident.Report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "! attachment discovery failed: %v\n", err)
		return
	}

	if a, ok := extract.FirstOfKind(attachments, extract.AttachmentDetections); ok {
		incident.Detections = a.URL
	} else if a, ok := extract.FirstOfKind(attachments, extract.AttachmentClip); ok {
		incident.Clip = a.URL
	}
	if verbose && (incident.Detections != "" || incident.Clip != "") {
		fmt.Fprintf(os.Stderr, "✓ Discovered evidence: %s%s\n", incident.Detections, incident.Clip)
	}
}
