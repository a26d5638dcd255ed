package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the categories of failure the resolution pipeline can
// produce. Every type except ErrorTypeConfig is contained at the section
// boundary.
type ErrorType string

const (
	ErrorTypeMissingEntry       ErrorType = "missing_registry_entry"
	ErrorTypeRewrite            ErrorType = "rewrite_failure"
	ErrorTypeBuilderUnavailable ErrorType = "builder_unavailable"
	ErrorTypeBuild              ErrorType = "build_failure"
	ErrorTypeFetch              ErrorType = "fetch_failure"
	ErrorTypeRegionNotFound     ErrorType = "region_not_found"
	ErrorTypeConfig             ErrorType = "config"
)

// ResolveError is a structured error carrying the section and token it
// belongs to.
type ResolveError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Section     string
	TokenID     string
	Recoverable bool
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Section != "" {
		parts = append(parts, "section:"+e.Section)
	}

	if e.TokenID != "" {
		parts = append(parts, "token:"+e.TokenID)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so callers can compare against a template
// error without caring about section or token.
func (e *ResolveError) Is(target error) bool {
	var t *ResolveError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithSection records the section the error belongs to.
func (e *ResolveError) WithSection(section string) *ResolveError {
	e.Section = section

	return e
}

// WithToken records the token id the error belongs to.
func (e *ResolveError) WithToken(id string) *ResolveError {
	e.TokenID = id

	return e
}

// Error creation functions

// NewMissingEntryError reports a token id with no registry entry. The mount
// element stays empty; this is a warning, not a failure.
func NewMissingEntryError(id string) *ResolveError {
	return &ResolveError{
		Type:        ErrorTypeMissingEntry,
		Code:        "MISSING_ENTRY",
		Message:     "no registry entry, placeholder left empty",
		TokenID:     id,
		Recoverable: true,
	}
}

// NewRewriteError reports that the rewritten markup could not be written back
// into its region.
func NewRewriteError(region string, cause error) *ResolveError {
	return &ResolveError{
		Type:        ErrorTypeRewrite,
		Code:        "REWRITE_FAILED",
		Message:     fmt.Sprintf("failed to write markup into region %q", region),
		Cause:       cause,
		Recoverable: false,
	}
}

// NewBuilderUnavailableError reports that no component builder is wired.
func NewBuilderUnavailableError() *ResolveError {
	return &ResolveError{
		Type:        ErrorTypeBuilderUnavailable,
		Code:        "BUILDER_UNAVAILABLE",
		Message:     "component builder not available",
		Recoverable: false,
	}
}

// NewBuildError reports a failed builder invocation for one token.
func NewBuildError(id string, cause error) *ResolveError {
	return &ResolveError{
		Type:        ErrorTypeBuild,
		Code:        "BUILD_FAILED",
		Message:     "component build failed",
		Cause:       cause,
		TokenID:     id,
		Recoverable: true,
	}
}

// NewFetchError reports that the content source failed to populate a region.
func NewFetchError(section string, cause error) *ResolveError {
	return &ResolveError{
		Type:        ErrorTypeFetch,
		Code:        "FETCH_FAILED",
		Message:     "content source failed",
		Cause:       cause,
		Section:     section,
		Recoverable: false,
	}
}

// NewRegionNotFoundError reports a target region that does not exist.
func NewRegionNotFoundError(region string) *ResolveError {
	return &ResolveError{
		Type:        ErrorTypeRegionNotFound,
		Code:        "REGION_NOT_FOUND",
		Message:     fmt.Sprintf("region %q not found", region),
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ResolveError {
	return &ResolveError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewPanicError wraps a recovered panic value as an error.
func NewPanicError(value interface{}) error {
	if err, ok := value.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", value)
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Recoverable
	}

	return false
}

// TypeOf returns the ErrorType of err, or "" when err is not a ResolveError.
func TypeOf(err error) ErrorType {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Type
	}

	return ""
}

// IsType reports whether err is a ResolveError of the given type.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}
