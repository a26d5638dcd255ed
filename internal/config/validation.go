package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	reserrors "github.com/conneroisu/sectionloader/internal/errors"
	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/orchestrator"
	"github.com/conneroisu/sectionloader/internal/source"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// Validate returns a config error describing the first validation error,
// or nil.
func (c *Config) Validate() error {
	result := ValidateWithDetails(c)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	return reserrors.NewConfigError("INVALID_"+strings.ToUpper(strings.ReplaceAll(first.Field, ".", "_")), first.Error())
}

// ValidateWithDetails checks every setting and collects all errors and
// warnings.
func ValidateWithDetails(c *Config) *ValidationResult {
	result := &ValidationResult{}

	validateWatch(c.Watch, result)
	validateRun(c.Run, result)
	validateLog(c.Log, result)
	validateContent(c.Content, result)
	validateSections(c, result)
	validateTables(c, result)
	validateSource(c.Source, result)
	validateServer(c.Server, result)

	return result
}

func validateWatch(w WatchConfig, result *ValidationResult) {
	if w.Timeout <= 0 {
		result.addError("watch.timeout", w.Timeout, "timeout must be positive",
			"Use a duration such as 1s or 500ms")
		return
	}
	if w.Timeout > time.Minute {
		result.addWarning("watch.timeout", w.Timeout, "a section with no tokens waits this long before resolving")
	}
}

func validateRun(r RunConfig, result *ValidationResult) {
	if _, err := orchestrator.ParseMode(r.Mode); err != nil {
		result.addError("run.mode", r.Mode, err.Error(), "Use parallel or sequential")
	}
}

func validateLog(l LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		result.addError("log.level", l.Level, err.Error(), "Use debug, info, warn or error")
	}
	switch l.Format {
	case "", "text", "json":
	default:
		result.addError("log.format", l.Format, "unknown log format", "Use text or json")
	}
}

func validateContent(c ContentConfig, result *ValidationResult) {
	if c.List == "" {
		result.addError("content.list", c.List, "content list name is required")
	}
	if c.Column == "" {
		result.addError("content.column", c.Column, "content column is required")
	}
	if c.SectionColumn == "" {
		result.addError("content.section_column", c.SectionColumn, "section column is required")
	}
}

func validateSections(c *Config, result *ValidationResult) {
	regions := make(map[string]bool, len(c.Sections))
	for i, s := range c.Sections {
		field := fmt.Sprintf("sections[%d]", i)
		if s.Key == "" {
			result.addError(field+".key", s.Key, "section key is required")
		}
		if s.RegionID == "" {
			result.addError(field+".region", s.RegionID, "section region is required")
			continue
		}
		if regions[s.RegionID] {
			result.addError(field+".region", s.RegionID,
				fmt.Sprintf("region %q is used by more than one section", s.RegionID),
				"Every section must load into its own region")
		}
		regions[s.RegionID] = true
	}

	panels := make(map[string]bool)
	for i, g := range c.Tabs {
		field := fmt.Sprintf("tabs[%d]", i)
		if g.Container == "" {
			result.addError(field+".container", g.Container, "tab container id is required")
		}
		for _, p := range g.Panels {
			if panels[p] {
				result.addError(field+".panels", p, fmt.Sprintf("panel %q appears in more than one tab group", p))
			}
			panels[p] = true
			if !regions[p] {
				result.addWarning(field+".panels", p,
					fmt.Sprintf("panel %q has no section and will be left out", p))
			}
		}
	}
}

func validateTables(c *Config, result *ValidationResult) {
	ids := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		field := fmt.Sprintf("tables[%d]", i)
		if t.ID == "" {
			result.addError(field+".id", t.ID, "table id is required")
		} else if ids[t.ID] {
			result.addError(field+".id", t.ID, fmt.Sprintf("duplicate table id %q", t.ID))
		}
		ids[t.ID] = true

		if t.SourceName == "" {
			result.addError(field+".source", t.SourceName, "table source is required")
		}
		for j, f := range t.Filters {
			if f.Column == "" {
				result.addError(fmt.Sprintf("%s.filters[%d].column", field, j), f.Column, "filter column is required")
			}
			if !f.Operator.Valid() {
				result.addError(fmt.Sprintf("%s.filters[%d].operator", field, j), f.Operator,
					fmt.Sprintf("unknown filter operator %q", f.Operator),
					"Use eq, ne, gt, ge, lt or le")
			}
		}
	}
	for i, col := range c.Columns {
		if col.Name == "" {
			result.addError(fmt.Sprintf("columns[%d].column", i), col.Name, "column name is required")
		}
	}
}

func validateSource(s SourceConfig, result *ValidationResult) {
	if !slices.Contains(source.Kinds, s.Kind) {
		result.addError("source.kind", s.Kind, fmt.Sprintf("unknown source kind %q", s.Kind),
			"Use one of: "+strings.Join(source.Kinds, ", "))
		return
	}

	switch s.Kind {
	case source.KindFixture:
		if s.Fixtures == "" {
			result.addWarning("source.fixtures", s.Fixtures, "no fixtures file; every section will be empty")
		}
	case source.KindHTTP:
		u, err := url.Parse(s.URL)
		if s.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			result.addError("source.url", s.URL, "an http or https site URL is required for the http source")
		}
	case source.KindSQLite:
		if s.DSN == "" {
			result.addError("source.dsn", s.DSN, "a DSN is required for the sqlite source",
				"Use a file path or :memory:")
		}
	}

	if s.InjectDelay < 0 {
		result.addError("source.inject_delay", s.InjectDelay, "inject delay cannot be negative")
	}
	if s.Timeout < 0 {
		result.addError("source.timeout", s.Timeout, "timeout cannot be negative")
	}
}

func validateServer(s ServerConfig, result *ValidationResult) {
	if s.Port < 0 || s.Port > 65535 {
		result.addError("server.port", s.Port, fmt.Sprintf("port %d is not in valid range 0-65535", s.Port))
	}
	if strings.ContainsAny(s.Host, ";&|$`()<>\"'\\ ") {
		result.addError("server.host", s.Host, "host contains invalid characters")
	}
}
