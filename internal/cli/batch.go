package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/evidencecheck/internal/validate"
	"github.com/ppiankov/evidencecheck/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	preflight    bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <manifest>",
	Short: "Analyse many incidents in parallel",
	Long: `Batch analyses every incident listed in a manifest:
- A YAML manifest (.yaml/.yml) with name, report, detections, clip and clip_start
- Or a plain list file with "<report> [detections]" per line
- Incidents run concurrently on a bounded worker pool
- Each incident gets its own JSON and Markdown report

Example:
  evidencecheck batch incidents.yaml
  evidencecheck batch incidents.yaml --concurrency 8 --output-dir ./reports
  evidencecheck batch incidents.txt --preflight --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./evidencecheck-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "batch-timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&preflight, "preflight", false, "check that remote reports and detections are reachable first")
	addEngineFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	cfg := appConfig
	applyEngineFlags(cmd, cfg)
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), batchTimeout)
	defer cancel()

	incidents, err := worker.ReadIncidents(file)
	if err != nil {
		return fmt.Errorf("read incidents: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  EvidenceCheck Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Incidents:    %d\n", len(incidents))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if preflight {
		if err := runPreflight(ctx, incidents); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Workers, timeout)
	results := processor.ProcessIncidents(ctx, incidents)

	used := make(map[string]int)
	for _, result := range results {
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Incident.Name, result.Error)
			continue
		}

		slug := uniqueSlug(sanitizeFilename(result.Incident.Name), used)
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")
		if err := p.Render(result.Analysis, jsonPath, mdPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Incident.Name, err)
			continue
		}

		fmt.Fprintf(os.Stderr, "✓ %s (score: %d/100)\n", result.Incident.Name, result.Analysis.Report.OverallScore)
	}

	succeeded, failed := worker.Tally(results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d incidents\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failed)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// runPreflight checks every remote input and fails if any is unreachable
func runPreflight(ctx context.Context, incidents []worker.Incident) error {
	urls := remoteRefs(incidents)
	if len(urls) == 0 {
		return nil
	}

	cfg := appConfig
	checker := validate.NewSourceChecker(cfg.HTTP.Timeout, cfg.Concurrency.Workers, cfg.HTTP.UserAgent,
		cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)

	fmt.Fprintf(os.Stderr, "⚙️  Checking %d remote sources...\n", len(urls))
	unreachable := validate.Unreachable(checker.Check(ctx, urls))
	if len(unreachable) == 0 {
		fmt.Fprintf(os.Stderr, "✓ All remote sources reachable\n\n")
		return nil
	}

	for _, s := range unreachable {
		reason := s.Error
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", s.StatusCode)
		}
		fmt.Fprintf(os.Stderr, "✗ %s: %s\n", s.URL, reason)
	}
	return fmt.Errorf("%d remote sources unreachable", len(unreachable))
}

// remoteRefs lists the distinct http(s) reports and detection files
func remoteRefs(incidents []worker.Incident) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, inc := range incidents {
		for _, ref := range []string{inc.Report, inc.Detections} {
			if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
				continue
			}
			if !seen[ref] {
				seen[ref] = true
				urls = append(urls, ref)
			}
		}
	}
	return urls
}

// sanitizeFilename turns an incident name into a safe file name
func sanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimSuffix(s, filepath.Ext(s))

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), "._-")
	if len(out) > 100 {
		out = out[:100]
	}
	if out == "" {
		out = "incident"
	}
	return out
}

func uniqueSlug(slug string, used map[string]int) string {
	used[slug]++
	if n := used[slug]; n > 1 {
		return fmt.Sprintf("%s-%d", slug, n)
	}
	return slug
}
