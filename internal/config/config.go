// Package config provides configuration management for sectionloader using
// Viper for loading from files, environment variables and command-line
// flags.
//
// The configuration covers the convergence watch, the run mode, the section
// list and table registry, the content store the sections are fetched from,
// and the preview server. Environment overrides use the SECTIONLOADER_
// prefix. Configuration is read once at startup and never changes while the
// pipeline runs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/sectionloader/internal/orchestrator"
	"github.com/conneroisu/sectionloader/internal/registry"
	"github.com/conneroisu/sectionloader/internal/source"
	"github.com/conneroisu/sectionloader/internal/tabs"
	"github.com/conneroisu/sectionloader/internal/types"
)

type Config struct {
	Title        string                 `mapstructure:"title" yaml:"title"`
	Watch        WatchConfig            `mapstructure:"watch" yaml:"watch"`
	Run          RunConfig              `mapstructure:"run" yaml:"run"`
	Log          LogConfig              `mapstructure:"log" yaml:"log"`
	Content      ContentConfig          `mapstructure:"content" yaml:"content"`
	Columns      []types.Column         `mapstructure:"columns" yaml:"columns"`
	Sections     []orchestrator.Section `mapstructure:"sections" yaml:"sections"`
	Tables       []registry.TokenSpec   `mapstructure:"tables" yaml:"tables"`
	RegistryFile string                 `mapstructure:"registry_file" yaml:"registry_file,omitempty"`
	Tabs         []tabs.GroupConfig     `mapstructure:"tabs" yaml:"tabs"`
	Source       SourceConfig           `mapstructure:"source" yaml:"source"`
	Server       ServerConfig           `mapstructure:"server" yaml:"server"`
}

type WatchConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ImmediateCheck bool          `mapstructure:"immediate_check" yaml:"immediate_check"`
}

type RunConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose"`
}

type ContentConfig struct {
	List          string `mapstructure:"list" yaml:"list"`
	Column        string `mapstructure:"column" yaml:"column"`
	SectionColumn string `mapstructure:"section_column" yaml:"section_column"`
}

// ContentList converts the content settings for the section loader.
func (c ContentConfig) ContentList() source.ContentList {
	return source.ContentList{List: c.List, Column: c.Column, SectionColumn: c.SectionColumn}
}

type SourceConfig struct {
	Kind        string            `mapstructure:"kind" yaml:"kind"`
	Fixtures    string            `mapstructure:"fixtures" yaml:"fixtures,omitempty"`
	URL         string            `mapstructure:"url" yaml:"url,omitempty"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	DSN         string            `mapstructure:"dsn" yaml:"dsn,omitempty"`
	InjectDelay time.Duration     `mapstructure:"inject_delay" yaml:"inject_delay"`
	Timeout     time.Duration     `mapstructure:"timeout" yaml:"timeout"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SetDefaults registers every scalar default on v. Registering them also
// makes each key visible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("title", "Operations Guide")
	v.SetDefault("watch.timeout", time.Second)
	v.SetDefault("watch.immediate_check", true)
	v.SetDefault("run.mode", string(orchestrator.ModeParallel))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.verbose", false)

	content := source.DefaultContentList()
	v.SetDefault("content.list", content.List)
	v.SetDefault("content.column", content.Column)
	v.SetDefault("content.section_column", content.SectionColumn)

	v.SetDefault("registry_file", "")
	v.SetDefault("source.kind", source.KindFixture)
	v.SetDefault("source.fixtures", "")
	v.SetDefault("source.url", "")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.inject_delay", time.Duration(0))
	v.SetDefault("source.timeout", 10*time.Second)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, fills in list defaults and
// validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Decode reads the configuration from v and fills in list defaults without
// validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	// A verbose toggle is shorthand for debug logging.
	if config.Log.Verbose {
		config.Log.Level = "debug"
	}

	applyListDefaults(&config)
	return &config, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	v := viper.New()
	cfg, err := LoadFrom(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

func applyListDefaults(config *Config) {
	if len(config.Columns) == 0 {
		config.Columns = registry.DefaultColumns()
	}
	if len(config.Sections) == 0 {
		config.Sections = orchestrator.DefaultSections()
	}
	if len(config.Tables) == 0 && config.RegistryFile == "" {
		config.Tables = registry.Defaults()
	}
	if len(config.Tabs) == 0 {
		config.Tabs = tabs.DefaultGroups()
	}
}

// TokenSpecs returns the registry entries: the inline tables followed by
// the ones read from the registry file.
func (c *Config) TokenSpecs() ([]registry.TokenSpec, error) {
	specs := append([]registry.TokenSpec(nil), c.Tables...)
	if c.RegistryFile == "" {
		return specs, nil
	}
	fromFile, err := registry.LoadFile(c.RegistryFile)
	if err != nil {
		return nil, err
	}
	return append(specs, fromFile...), nil
}

// Labels returns the configured section labels keyed by region id.
func (c *Config) Labels() map[string]string {
	labels := make(map[string]string)
	for _, s := range c.Sections {
		if s.Label != "" {
			labels[s.RegionID] = s.Label
		}
	}
	return labels
}

// RegionIDs returns the target region of every section in order.
func (c *Config) RegionIDs() []string {
	ids := make([]string, len(c.Sections))
	for i, s := range c.Sections {
		ids[i] = s.RegionID
	}
	return ids
}
