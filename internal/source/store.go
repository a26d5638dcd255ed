// Package source supplies the remote content that populates page regions and
// the rows that builders render into tables.
//
// Three Store implementations share one query model (types.Query): a YAML
// fixture file, a SharePoint-style REST endpoint, and a SQLite database.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/sectionloader/internal/types"
)

// ErrListNotFound is returned when a query names a list the store does not
// have.
var ErrListNotFound = errors.New("list not found")

// Store answers queries against named lists.
type Store interface {
	// Query returns the rows of q.SourceName matching every filter, projected
	// onto q.Columns. An empty projection returns every column.
	Query(ctx context.Context, q types.Query) ([]types.Row, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	// Kind names the implementation, e.g. "fixture".
	Kind() string
}

// Store kinds.
const (
	KindFixture = "fixture"
	KindHTTP    = "http"
	KindSQLite  = "sqlite"
)

// Kinds lists the supported store kinds.
var Kinds = []string{KindFixture, KindHTTP, KindSQLite}

// matches reports whether row satisfies every filter.
func matches(row types.Row, filters []types.Filter) bool {
	for _, f := range filters {
		if !compare(row[f.Column], f.Operator, f.Literal()) {
			return false
		}
	}
	return true
}

// compare applies op to a and b, numerically when both parse as numbers.
func compare(a string, op types.Operator, b string) bool {
	var c int
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case fa < fb:
			c = -1
		case fa > fb:
			c = 1
		}
	default:
		c = strings.Compare(a, b)
	}

	switch op {
	case types.OperatorEq:
		return c == 0
	case types.OperatorNe:
		return c != 0
	case types.OperatorGt:
		return c > 0
	case types.OperatorGe:
		return c >= 0
	case types.OperatorLt:
		return c < 0
	case types.OperatorLe:
		return c <= 0
	default:
		return false
	}
}

// project keeps only the requested columns. Missing columns come back empty.
func project(row types.Row, columns []types.Column) types.Row {
	out := make(types.Row, len(columns))
	if len(columns) == 0 {
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	for _, c := range columns {
		out[c.Name] = row[c.Name]
	}
	return out
}

func validateQuery(q types.Query) error {
	if strings.TrimSpace(q.SourceName) == "" {
		return fmt.Errorf("query has no source name")
	}
	for _, f := range q.Filters {
		if !f.Operator.Valid() {
			return fmt.Errorf("filter %q: unknown operator %q", f.Column, f.Operator)
		}
		if f.Column == "" {
			return fmt.Errorf("filter with empty column")
		}
	}
	return nil
}
