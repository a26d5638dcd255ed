package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sectionloader/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the sectionloader configuration",
	Long: `Inspect the effective configuration after defaults, the config file,
environment variables and flags have been applied.

Examples:
  sectionloader config show                 # Effective configuration as YAML
  sectionloader config show -o json         # ... as JSON
  sectionloader config validate             # Report errors and warnings
  sectionloader config validate --config prod.yml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration and print every error and warning with
hints for fixing it. Exits non-zero when there are errors.`,
	RunE: runConfigValidate,
}

var configShowFormat = newEnum(formatYAML, formatYAML, formatJSON)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd)

	configShowCmd.Flags().VarP(configShowFormat, "output", "o", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if configShowFormat.String() == formatJSON {
		return encodeJSON(out, cfg)
	}
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if err := readConfig(cmd, nil); err != nil {
		return err
	}
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	result := config.ValidateWithDetails(cfg)
	out := cmd.OutOrStdout()
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}
	fmt.Fprint(out, result.String())
	if result.HasErrors() {
		return errors.New("configuration is invalid")
	}
	return nil
}
