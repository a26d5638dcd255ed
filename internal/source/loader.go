package source

import (
	"context"
	"strings"
	"sync"
	"time"

	reserrors "github.com/conneroisu/sectionloader/internal/errors"
	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/page"
	"github.com/conneroisu/sectionloader/internal/types"
)

// ContentList names the list holding section markup and its columns.
type ContentList struct {
	List          string
	Column        string
	SectionColumn string
}

// DefaultContentList is the list the page sections are stored in.
func DefaultContentList() ContentList {
	return ContentList{List: "Dynamic HTML", Column: "Content", SectionColumn: "Section"}
}

// SectionQuery returns the query that fetches the markup of one section.
func (c ContentList) SectionQuery(sectionKey string) types.Query {
	return types.Query{
		SourceName: c.List,
		Columns:    []types.Column{{Name: c.Column, DisplayName: c.Column}},
		Filters: []types.Filter{{
			Column:   c.SectionColumn,
			Operator: types.OperatorEq,
			Value:    "'" + strings.ReplaceAll(sectionKey, "'", "''") + "'",
		}},
	}
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Store    Store
	Document *page.Document
	Content  ContentList
	// InjectDelay defers the region write until after Load returns, the way
	// a remote renderer fills a container some time after the request
	// completes.
	InjectDelay time.Duration
	// Timeout bounds each store query. Zero means no limit.
	Timeout time.Duration
	Logger  logging.Logger
}

// Loader populates page regions from a Store.
type Loader struct {
	store   Store
	doc     *page.Document
	content ContentList
	delay   time.Duration
	timeout time.Duration
	logger  logging.Logger

	mu      sync.Mutex
	pending map[uint64]*time.Timer
	nextID  uint64
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	content := cfg.Content
	if content.List == "" {
		content = DefaultContentList()
	}
	return &Loader{
		store:   cfg.Store,
		doc:     cfg.Document,
		content: content,
		delay:   cfg.InjectDelay,
		timeout: cfg.Timeout,
		logger:  logger.WithComponent("loader"),
		pending: make(map[uint64]*time.Timer),
	}
}

// Content returns the content list configuration.
func (l *Loader) Content() ContentList {
	return l.content
}

// LoadSection fetches the markup of sectionKey into the region regionID.
func (l *Loader) LoadSection(ctx context.Context, sectionKey, regionID string) error {
	err := l.Load(ctx, l.content.SectionQuery(sectionKey), regionID)
	if re, ok := err.(*reserrors.ResolveError); ok {
		re.WithSection(sectionKey)
	}
	return err
}

// Load runs q and writes the joined content column of the matching rows into
// the region regionID. Rows are joined with newlines.
func (l *Loader) Load(ctx context.Context, q types.Query, regionID string) error {
	op := logging.StartOperation(l.logger, "display_html")
	logger := l.logger.With("region", regionID, "list", q.SourceName)

	region, ok := l.doc.Region(regionID)
	if !ok {
		err := reserrors.NewRegionNotFoundError(regionID)
		op.EndWithError(ctx, err)
		return err
	}

	qctx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	rows, err := l.store.Query(qctx, q)
	if err != nil {
		ferr := reserrors.NewFetchError(regionID, err)
		op.EndWithError(ctx, ferr)
		return ferr
	}

	column := l.content.Column
	if len(q.Columns) > 0 {
		column = q.Columns[0].Name
	}
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, row[column])
	}
	markup := strings.Join(parts, "\n")

	if l.delay > 0 {
		l.deferWrite(ctx, region, markup, logger)
		op.End(ctx, "rows", len(rows), "deferred", true)
		return nil
	}

	if err := region.SetHTML(markup); err != nil {
		rerr := reserrors.NewRewriteError(regionID, err)
		op.EndWithError(ctx, rerr)
		return rerr
	}
	op.End(ctx, "rows", len(rows))
	logger.Debug(ctx, "HTML loaded", "rows", len(rows), "bytes", len(markup))
	return nil
}

// deferWrite writes markup into region after the inject delay. The write is
// dropped if ctx has ended by then or CancelPending ran first.
func (l *Loader) deferWrite(ctx context.Context, region *page.Region, markup string, logger logging.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.pending[id] = time.AfterFunc(l.delay, func() {
		// Held across the write so CancelPending returns only once no
		// deferred write can still land.
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, live := l.pending[id]; !live {
			return
		}
		delete(l.pending, id)
		if ctx.Err() != nil {
			logger.Debug(ctx, "deferred region write dropped", "reason", ctx.Err().Error())
			return
		}
		if err := region.SetHTML(markup); err != nil {
			logger.Warn(ctx, err, "deferred region write failed")
		}
	})
}

// Pending returns the number of deferred region writes still waiting.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// CancelPending drops every deferred region write that has not landed yet
// and returns how many were dropped.
func (l *Loader) CancelPending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, t := range l.pending {
		t.Stop()
		delete(l.pending, id)
		n++
	}
	return n
}
