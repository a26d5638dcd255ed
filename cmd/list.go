package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sectionloader/internal/config"
	"github.com/conneroisu/sectionloader/internal/registry"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List registered tables and page sections",
	Long: `List every table id the shortcodes may reference, with the list it is
built from and its filters, followed by the page sections.

Examples:
  sectionloader list              # Table format
  sectionloader list -o json      # JSON
  sectionloader list -o yaml      # YAML`,
	RunE: runList,
}

var listOutput *enumValue

func init() {
	rootCmd.AddCommand(listCmd)
	listOutput = addOutputFlag(listCmd)
}

type tableItem struct {
	ID      string   `json:"id" yaml:"id"`
	Source  string   `json:"source" yaml:"source"`
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Filters []string `json:"filters" yaml:"filters"`
}

type sectionItem struct {
	Key    string `json:"key" yaml:"key"`
	Region string `json:"region" yaml:"region"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

type listing struct {
	Tables   []tableItem   `json:"tables" yaml:"tables"`
	Sections []sectionItem `json:"sections" yaml:"sections"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	out, err := buildListing(cfg)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch listOutput.String() {
	case formatJSON:
		return encodeJSON(w, out)
	case formatYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(out)
	default:
		return outputListTable(w, out)
	}
}

func buildListing(cfg *config.Config) (listing, error) {
	specs, err := cfg.TokenSpecs()
	if err != nil {
		return listing{}, err
	}
	reg, err := registry.New(specs...)
	if err != nil {
		return listing{}, err
	}

	var out listing
	for _, spec := range reg.All() {
		item := tableItem{ID: spec.ID, Source: spec.SourceName, Filters: []string{}}
		for _, c := range spec.Columns {
			item.Columns = append(item.Columns, c.Name)
		}
		for _, f := range spec.Filters {
			item.Filters = append(item.Filters, f.String())
		}
		out.Tables = append(out.Tables, item)
	}

	labels := cfg.Labels()
	for _, s := range cfg.Sections {
		out.Sections = append(out.Sections, sectionItem{Key: s.Key, Region: s.RegionID, Label: labels[s.RegionID]})
	}
	return out, nil
}

func outputListTable(out io.Writer, l listing) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "TABLE\tSOURCE\tFILTER")
	for _, t := range l.Tables {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Source, strings.Join(t.Filters, " and "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SECTION\tREGION\tLABEL")
	for _, s := range l.Sections {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.Region, s.Label)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal: %d tables, %d sections\n", len(l.Tables), len(l.Sections))
	return nil
}
