package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sectionloader/internal/registry"
	"github.com/conneroisu/sectionloader/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan [file...]",
	Short: "Print the table shortcodes found in markup",
	Long: `Scan markup files (or stdin when no file or "-" is given) for table
shortcodes in every bracket encoding and report whether each id is
registered.

Examples:
  sectionloader scan page.html
  cat page.html | sectionloader scan -o json
  sectionloader scan --rewrite page.html     # Print markup with mount points`,
	RunE: runScan,
}

var (
	scanOutput  *enumValue
	scanRewrite bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanOutput = addOutputFlag(scanCmd)
	scanCmd.Flags().BoolVar(&scanRewrite, "rewrite", false, "Print the markup with shortcodes replaced by mount points")
}

type scanItem struct {
	File       string `json:"file" yaml:"file"`
	Encoding   string `json:"encoding" yaml:"encoding"`
	ID         string `json:"id" yaml:"id"`
	Offset     int    `json:"offset" yaml:"offset"`
	Text       string `json:"text" yaml:"text"`
	Registered bool   `json:"registered" yaml:"registered"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	specs, err := cfg.TokenSpecs()
	if err != nil {
		return err
	}
	reg, err := registry.New(specs...)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{"-"}
	}

	sc := scanner.New()
	out := cmd.OutOrStdout()
	items := []scanItem{}
	for _, name := range args {
		markup, err := readMarkup(cmd.InOrStdin(), name)
		if err != nil {
			return err
		}

		if scanRewrite {
			fmt.Fprintln(out, sc.ExtractAndRewrite(markup).Markup)
			continue
		}
		for _, occ := range sc.Scan(markup) {
			_, ok := reg.Get(occ.ID)
			items = append(items, scanItem{
				File:       name,
				Encoding:   occ.Encoding,
				ID:         occ.ID,
				Offset:     occ.Start,
				Text:       occ.Text,
				Registered: ok,
			})
		}
	}
	if scanRewrite {
		return nil
	}

	switch scanOutput.String() {
	case formatJSON:
		return encodeJSON(out, items)
	case formatYAML:
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(items)
	default:
		return outputScanTable(out, items)
	}
}

func readMarkup(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

func outputScanTable(out io.Writer, items []scanItem) error {
	if len(items) == 0 {
		fmt.Fprintln(out, "No shortcodes found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tOFFSET\tENCODING\tID\tREGISTERED")
	for _, it := range items {
		registered := "no"
		if it.Registered {
			registered = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", it.File, it.Offset, it.Encoding, it.ID, registered)
	}
	return w.Flush()
}
