// Package renderer builds the components mounted in place of table
// shortcodes, and renders resolved pages as HTML or Markdown.
//
// Components are plain templ components. Cell content comes from remote
// lists and is sanitized with a bluemonday policy before it is written into
// the page.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"

	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/source"
	"github.com/conneroisu/sectionloader/internal/types"
)

// MountWriter replaces the content of a mount element.
type MountWriter interface {
	SetMountHTML(mountID, fragment string) error
}

// TableBuilder queries a store and renders the rows as a table into a mount
// element.
type TableBuilder struct {
	store  source.Store
	mounts MountWriter
	policy *bluemonday.Policy
	logger logging.Logger
}

// NewTableBuilder creates a TableBuilder. A nil policy means
// bluemonday.UGCPolicy.
func NewTableBuilder(store source.Store, mounts MountWriter, policy *bluemonday.Policy, logger logging.Logger) *TableBuilder {
	if policy == nil {
		policy = defaultPolicy()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TableBuilder{
		store:  store,
		mounts: mounts,
		policy: policy,
		logger: logger.WithComponent("table_builder"),
	}
}

// Build implements resolver.Builder.
func (b *TableBuilder) Build(ctx context.Context, q types.Query, mountID string) error {
	start := time.Now()

	rows, err := b.store.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("querying %s: %w", q.SourceName, err)
	}

	html, err := RenderString(ctx, Table(TableData{
		ID:      mountID + "-grid",
		Source:  q.SourceName,
		Columns: q.Columns,
		Rows:    rows,
	}, b.policy))
	if err != nil {
		return fmt.Errorf("rendering table %s: %w", mountID, err)
	}

	if err := b.mounts.SetMountHTML(mountID, html); err != nil {
		return err
	}

	b.logger.Debug(ctx, "table built",
		"id", mountID,
		"source", q.SourceName,
		"filter", q.FilterExpression(),
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// RenderString renders a component into a string.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
