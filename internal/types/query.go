// Package types provides common type definitions shared by the registry,
// the content stores, the resolver and the renderer. It exists to avoid
// circular dependencies between those packages.
package types

import (
	"fmt"
	"strings"
)

// Operator is a filter comparison operator in OData notation.
type Operator string

const (
	OperatorEq Operator = "eq"
	OperatorNe Operator = "ne"
	OperatorGt Operator = "gt"
	OperatorGe Operator = "ge"
	OperatorLt Operator = "lt"
	OperatorLe Operator = "le"
)

// ParseOperator converts a textual operator into an Operator. Matching is
// case-insensitive.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown filter operator %q", s)
	}
	return op, nil
}

// Valid reports whether the operator is one of the supported operators.
func (o Operator) Valid() bool {
	switch o {
	case OperatorEq, OperatorNe, OperatorGt, OperatorGe, OperatorLt, OperatorLe:
		return true
	default:
		return false
	}
}

// SQL returns the SQL comparison symbol for the operator.
func (o Operator) SQL() string {
	switch o {
	case OperatorNe:
		return "<>"
	case OperatorGt:
		return ">"
	case OperatorGe:
		return ">="
	case OperatorLt:
		return "<"
	case OperatorLe:
		return "<="
	default:
		return "="
	}
}

// Filter is a single predicate applied to a data source. Value is
// pre-formatted by whoever declared the filter: string literals carry their
// own single quotes ('Validation'), numbers do not.
type Filter struct {
	Column   string   `json:"column" yaml:"column" mapstructure:"column"`
	Operator Operator `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value    string   `json:"value" yaml:"value" mapstructure:"value"`
}

// String renders the filter in OData syntax, e.g. Title eq 'Feedback'.
func (f Filter) String() string {
	return fmt.Sprintf("%s %s %s", f.Column, f.Operator, f.Value)
}

// Literal returns the filter value with its quoting removed. A value wrapped
// in single quotes is unwrapped and doubled quotes inside it are collapsed.
// Any other value is returned trimmed.
func (f Filter) Literal() string {
	v := strings.TrimSpace(f.Value)
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}

// Quoted reports whether the value is a quoted string literal.
func (f Filter) Quoted() bool {
	v := strings.TrimSpace(f.Value)
	return len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\''
}

// Column is one entry of a column projection.
type Column struct {
	Name        string `json:"column" yaml:"column" mapstructure:"column"`
	DisplayName string `json:"display_name" yaml:"display_name" mapstructure:"display_name"`
}

// Label returns the display name, falling back to the column name.
func (c Column) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// Query describes a read against a named data source: which columns to
// project and which filters to apply. Filters are combined with AND.
type Query struct {
	SourceName string
	Columns    []Column
	Filters    []Filter
}

// ColumnNames returns the projected column names in order.
func (q Query) ColumnNames() []string {
	names := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		names[i] = c.Name
	}
	return names
}

// FilterExpression joins the filters in OData syntax.
func (q Query) FilterExpression() string {
	parts := make([]string, len(q.Filters))
	for i, f := range q.Filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, " and ")
}

// Row is a single record returned by a data source, keyed by column name.
type Row map[string]string
