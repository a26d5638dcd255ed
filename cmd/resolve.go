package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sectionloader/internal/orchestrator"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve",
	Aliases: []string{"r"},
	Short:   "Load every section once and print the resolved page",
	Long: `Load every configured section from the content store, resolve the
table shortcodes in each one and print the finished page.

Examples:
  sectionloader resolve                      # HTML page on stdout
  sectionloader resolve -f markdown          # Markdown instead of HTML
  sectionloader resolve --mode sequential    # One section at a time
  sectionloader resolve --report             # Per-section summary on stderr
  sectionloader resolve --out page.html      # Write the page to a file`,
	RunE: runResolve,
}

var (
	resolveFormat = newEnum("html", "html", "markdown")
	resolveMode   = newEnum(string(orchestrator.ModeParallel),
		string(orchestrator.ModeParallel), string(orchestrator.ModeSequential))
	resolveReport bool
	resolveOut    string
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().VarP(resolveFormat, "format", "f", "Page format (html, markdown)")
	resolveCmd.Flags().Var(resolveMode, "mode", "Run sections in parallel or sequentially")
	resolveCmd.Flags().Duration("timeout", time.Second, "How long to wait for each section's content")
	resolveCmd.Flags().BoolVar(&resolveReport, "report", false, "Print a per-section summary to stderr")
	resolveCmd.Flags().StringVar(&resolveOut, "out", "", "Write the page to this file instead of stdout")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx, cmd, map[string]string{
		"mode":    "run.mode",
		"timeout": "watch.timeout",
	})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Run(ctx)
	if err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	if resolveReport {
		if err := writeRunReport(cmd.ErrOrStderr(), report); err != nil {
			return err
		}
	}

	var page string
	switch resolveFormat.String() {
	case "markdown":
		page, err = a.RenderMarkdown()
	default:
		page, err = a.RenderHTML(ctx, false)
	}
	if err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}

	if resolveOut != "" {
		if err := os.WriteFile(resolveOut, []byte(page), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", resolveOut, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", resolveOut)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), page)
	}

	if failed := report.Count(orchestrator.OutcomeFailed); failed > 0 {
		return fmt.Errorf("%d section(s) failed", failed)
	}
	return nil
}

// writeRunReport prints one line per section followed by the totals.
func writeRunReport(out io.Writer, report *orchestrator.RunReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SECTION\tOUTCOME\tREASON\tBUILT\tMISSING\tDURATION\tERROR")
	for _, s := range report.Sections {
		built, missing := 0, 0
		if s.Resolve != nil {
			built, missing = len(s.Resolve.Built), len(s.Resolve.Missing)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			s.RegionID, s.Outcome, s.Reason, built, missing,
			s.Duration.Round(time.Millisecond), s.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nrun %s (%s): %d resolved, %d skipped, %d failed in %s\n",
		report.RunID, report.Mode,
		report.Count(orchestrator.OutcomeResolved),
		report.Count(orchestrator.OutcomeSkipped),
		report.Count(orchestrator.OutcomeFailed),
		report.Duration.Round(time.Millisecond))
	return nil
}

func encodeJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
