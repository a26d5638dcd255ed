// Package resolver turns the tokens in a region into mount elements and
// builds a component into each of them.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	reserrors "github.com/conneroisu/sectionloader/internal/errors"
	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/monitoring"
	"github.com/conneroisu/sectionloader/internal/registry"
	"github.com/conneroisu/sectionloader/internal/scanner"
	"github.com/conneroisu/sectionloader/internal/types"
)

// Region is the writable markup container being resolved.
type Region interface {
	ID() string
	HTML() string
	SetHTML(markup string) error
}

// Builder renders a component into the mount element identified by mountID.
type Builder interface {
	Build(ctx context.Context, q types.Query, mountID string) error
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context, q types.Query, mountID string) error

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, q types.Query, mountID string) error {
	return f(ctx, q, mountID)
}

// Rewriter replaces tokens with mount elements.
type Rewriter interface {
	ExtractAndRewrite(markup string) scanner.Result
}

// Config wires a Resolver.
type Config struct {
	Registry *registry.Registry
	Rewriter Rewriter
	// Builder may be nil, in which case every rewrite that discovers ids
	// fails with a builder_unavailable error.
	Builder Builder
	// Columns is the projection used for registry entries that do not set
	// their own.
	Columns []types.Column
	Logger  logging.Logger
	Metrics *monitoring.Metrics
}

// BuildFailure records one failed builder invocation.
type BuildFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Report summarises one Resolve call.
type Report struct {
	RegionID string         `json:"region"`
	IDs      []string       `json:"ids"`
	Built    []string       `json:"built,omitempty"`
	Missing  []string       `json:"missing,omitempty"`
	Failed   []BuildFailure `json:"failed,omitempty"`
	Changed  bool           `json:"changed"`
	Duration time.Duration  `json:"duration"`
}

// Resolver rewrites regions and dispatches builds. It is safe for concurrent
// use; all state lives in the Registry and Rewriter, both read-only.
type Resolver struct {
	registry *registry.Registry
	rewriter Rewriter
	builder  Builder
	columns  []types.Column
	logger   logging.Logger
	metrics  *monitoring.Metrics
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("resolver: registry is required")
	}
	if cfg.Rewriter == nil {
		cfg.Rewriter = scanner.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	columns := cfg.Columns
	if len(columns) == 0 {
		columns = registry.DefaultColumns()
	}
	return &Resolver{
		registry: cfg.Registry,
		rewriter: cfg.Rewriter,
		builder:  cfg.Builder,
		columns:  columns,
		logger:   logger.WithComponent("resolver"),
		metrics:  cfg.Metrics,
	}, nil
}

// Resolve rewrites the tokens in region and builds every mapped id.
//
// A failed region write or a missing builder aborts the call with an error.
// Individual build failures do not: every build runs to completion and the
// failures are listed in the report.
func (r *Resolver) Resolve(ctx context.Context, region Region) (*Report, error) {
	start := time.Now()
	report := &Report{RegionID: region.ID()}
	logger := r.logger.With("region", region.ID())

	res := r.rewriter.ExtractAndRewrite(region.HTML())
	if !res.Changed {
		logger.Debug(ctx, "no shortcodes found")
		report.Duration = time.Since(start)
		return report, nil
	}
	report.IDs = res.IDs
	report.Changed = true
	r.metrics.TokensDiscovered(len(res.IDs))

	logger.Debug(ctx, "shortcodes rewritten", "ids", res.IDs)

	if err := region.SetHTML(res.Markup); err != nil {
		rerr := reserrors.NewRewriteError(region.ID(), err)
		logger.Error(ctx, rerr, "failed to set region markup")
		return report, rerr
	}

	if r.builder == nil {
		rerr := reserrors.NewBuilderUnavailableError().WithSection(region.ID())
		logger.Error(ctx, rerr, "builder not available")
		return report, rerr
	}

	type result struct {
		id  string
		err error
	}
	results := make(chan result, len(res.IDs))
	var wg sync.WaitGroup

	for _, id := range res.IDs {
		spec, ok := r.registry.Get(id)
		if !ok {
			logger.Warn(ctx, reserrors.NewMissingEntryError(id),
				"missing mapping, placeholder left", "id", id)
			report.Missing = append(report.Missing, id)
			r.metrics.MissingEntry()
			continue
		}

		wg.Add(1)
		go func(id string, q types.Query) {
			defer wg.Done()
			results <- result{id: id, err: r.build(ctx, logger, id, q)}
		}(id, spec.Query(r.columns))
	}

	wg.Wait()
	close(results)

	for out := range results {
		if out.err != nil {
			report.Failed = append(report.Failed, BuildFailure{ID: out.id, Error: out.err.Error()})
			continue
		}
		report.Built = append(report.Built, out.id)
	}
	sortByDiscovery(report.Built, report.IDs)
	sort.SliceStable(report.Failed, func(i, j int) bool {
		return indexOf(report.IDs, report.Failed[i].ID) < indexOf(report.IDs, report.Failed[j].ID)
	})

	report.Duration = time.Since(start)
	logger.Debug(ctx, "region resolved",
		"built", len(report.Built),
		"missing", len(report.Missing),
		"failed", len(report.Failed))

	return report, nil
}

// build runs one builder invocation, converting a panic into a build error.
func (r *Resolver) build(ctx context.Context, logger logging.Logger, id string, q types.Query) (err error) {
	op := logging.StartOperation(logger, "build_table")
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = reserrors.NewBuildError(id, reserrors.NewPanicError(p))
		}
		r.metrics.BuildCompleted(err, time.Since(start))
		if err != nil {
			logger.Error(ctx, err, "build failed", "id", id)
			op.EndWithError(ctx, err, "id", id)
			return
		}
		op.End(ctx, "id", id)
	}()

	if berr := r.builder.Build(ctx, q, id); berr != nil {
		return reserrors.NewBuildError(id, berr)
	}
	return nil
}

func sortByDiscovery(ids, order []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return indexOf(order, ids[i]) < indexOf(order, ids[j])
	})
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return len(list)
}
