package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/evidencecheck/internal/model"
	"github.com/ppiankov/evidencecheck/internal/pipeline"
)

var (
	claimsFile string
	claimsJSON bool
)

// claimsCmd represents the claims command
var claimsCmd = &cobra.Command{
	Use:   "claims [text...]",
	Short: "Extract checkable claims from incident text without video",
	Long: `Claims runs only the text extractor and prints the claim set:
people and vehicle counts, weapon presence, time of day and reported severity.

Text comes from the arguments, from --file (path or URL), or from stdin when
the only argument is "-".

Example:
  evidencecheck claims "Two cars collided at 10:30 pm, no weapons."
  evidencecheck claims --file report.html --json
  cat report.txt | evidencecheck claims -`,
	RunE: runClaims,
}

func init() {
	rootCmd.AddCommand(claimsCmd)

	claimsCmd.Flags().StringVarP(&claimsFile, "file", "f", "", "report file path or URL")
	claimsCmd.Flags().BoolVar(&claimsJSON, "json", false, "print claims as JSON")
}

func runClaims(cmd *cobra.Command, args []string) error {
	p := pipeline.New(appConfig)

	text, err := claimsText(cmd.Context(), p, cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to analyse")
	}

	claims := p.ExtractClaims(text)
	if claimsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Claims model.TextClaims `json:"claims"`
			Spans  []model.Claim    `json:"spans"`
		}{model.NewTextClaims(claims, text), claims.Claims()})
	}

	printClaims(cmd.OutOrStdout(), claims)
	return nil
}

func claimsText(ctx context.Context, p *pipeline.Pipeline, stdin io.Reader, args []string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case claimsFile != "":
		return p.TextSource(claimsFile).Text(ctx)
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		return strings.Join(args, " "), nil
	}
}

func printClaims(w io.Writer, claims model.ClaimSet) {
	if claims.Len() == 0 {
		fmt.Fprintln(w, "No checkable claims found in the text.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Claim", "Value", "Confidence", "Span"})
	for _, c := range claims.Claims() {
		t.AppendRow(table.Row{c.Kind.Label(), c.Display(), fmt.Sprintf("%.2f", c.Confidence), c.RawSpan})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
