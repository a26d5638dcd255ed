// Package cmd provides the command-line interface for sectionloader.
//
// Configuration System:
//
//	Settings are read from several sources, highest precedence first:
//	1. Command-line flags (--config, --log-level, --port, ...)
//	2. SECTIONLOADER_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (SECTIONLOADER_WATCH_TIMEOUT, ...)
//	4. Configuration files (.sectionloader.yml)
//
// Environment Variables:
//
//	SECTIONLOADER_CONFIG_FILE: Path to custom configuration file
//	SECTIONLOADER_RUN_MODE: parallel or sequential
//	SECTIONLOADER_SOURCE_FIXTURES: Fixture file backing the content store
//	And every other key following the SECTIONLOADER_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sectionloader/internal/app"
	"github.com/conneroisu/sectionloader/internal/config"
	"github.com/conneroisu/sectionloader/internal/logging"
)

const (
	envPrefix      = "SECTIONLOADER"
	configFileEnv  = envPrefix + "_CONFIG_FILE"
	configFileName = ".sectionloader"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sectionloader",
	Short: "Resolve table shortcodes in remotely loaded page sections",
	Long: `sectionloader fetches the content of every page section from a list
store, waits for the markup to arrive, replaces [table id='...'] shortcodes
with mount points and builds the registered table into each one.

Quick Start:
  sectionloader resolve               Run every section once and print the page
  sectionloader serve --watch         Serve the page with live reload
  sectionloader list                  Show registered tables and sections
  sectionloader scan page.html        Print the shortcodes in a file
  sectionloader config validate       Check the configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .sectionloader.yml, can also use "+configFileEnv+" env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Var(newEnum("text", "text", "json"), "log-format", "log format (text, json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "shorthand for --log-level debug")
}

// initConfig points viper at the configuration file.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. SECTIONLOADER_CONFIG_FILE environment variable
//  3. .sectionloader.yml in the current directory
//
// A missing default file is not an error; the built-in defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(configFileEnv); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(configFileName)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// loadConfig reads the configuration file, binds the root flags and any
// command-specific bindings, and returns the validated configuration.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	if err := readConfig(cmd, bindings); err != nil {
		return nil, err
	}
	return config.Load()
}

// readConfig binds flags and reads the configuration file into viper.
func readConfig(cmd *cobra.Command, bindings map[string]string) error {
	all := map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
		"verbose":    "log.verbose",
	}
	for flag, key := range bindings {
		all[flag] = key
	}
	if err := SetViperBindings(cmd, all); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" || os.Getenv(configFileEnv) != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// newLogger builds the structured logger described by cfg. Logs go to
// stderr so stdout carries only command output.
func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    out,
		Component: "sectionloader",
	}), nil
}

// setup loads the configuration and assembles the App for a command.
func setup(ctx context.Context, cmd *cobra.Command, bindings map[string]string) (*app.App, error) {
	cfg, err := loadConfig(cmd, bindings)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(ctx, "Using config file", "path", used)
	}
	return app.New(ctx, cfg, logger)
}
