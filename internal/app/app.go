// Package app assembles the pipeline once at startup: the registry, the
// scanner, the page document, the content store and every collaborator the
// orchestrator drives. Nothing in the pipeline reads global state; each
// command builds one App and works through it.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/sectionloader/internal/config"
	reserrors "github.com/conneroisu/sectionloader/internal/errors"
	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/monitoring"
	"github.com/conneroisu/sectionloader/internal/orchestrator"
	"github.com/conneroisu/sectionloader/internal/page"
	"github.com/conneroisu/sectionloader/internal/registry"
	"github.com/conneroisu/sectionloader/internal/renderer"
	"github.com/conneroisu/sectionloader/internal/resolver"
	"github.com/conneroisu/sectionloader/internal/scanner"
	"github.com/conneroisu/sectionloader/internal/source"
	"github.com/conneroisu/sectionloader/internal/tabs"
	"github.com/conneroisu/sectionloader/internal/version"
)

// App holds every long-lived component.
type App struct {
	Config       *config.Config
	Logger       logging.Logger
	Registry     *registry.Registry
	Scanner      *scanner.Scanner
	Document     *page.Document
	Store        source.Store
	Loader       *source.Loader
	Tables       *renderer.TableBuilder
	Resolver     *resolver.Resolver
	Tabs         *tabs.Navigator
	Orchestrator *orchestrator.Orchestrator
	Metrics      *monitoring.Metrics
	Health       *monitoring.HealthMonitor

	runMu     sync.Mutex
	mu        sync.RWMutex
	last      *orchestrator.RunReport
	listeners map[int]func(*orchestrator.RunReport)
	nextID    int
}

// New builds an App from a validated configuration.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	specs, err := cfg.TokenSpecs()
	if err != nil {
		return nil, reserrors.NewConfigError("REGISTRY_FILE", err.Error())
	}
	reg, err := registry.New(specs...)
	if err != nil {
		return nil, reserrors.NewConfigError("REGISTRY", err.Error())
	}

	store, err := OpenStore(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Scanner:   scanner.New(),
		Document:  page.NewDocument(cfg.RegionIDs()...),
		Store:     store,
		Metrics:   monitoring.NewMetrics(),
		listeners: make(map[int]func(*orchestrator.RunReport)),
	}

	a.Loader = source.NewLoader(source.LoaderConfig{
		Store:       store,
		Document:    a.Document,
		Content:     cfg.Content.ContentList(),
		InjectDelay: cfg.Source.InjectDelay,
		Timeout:     cfg.Source.Timeout,
		Logger:      logger,
	})
	a.Tables = renderer.NewTableBuilder(store, a.Document, nil, logger)

	a.Resolver, err = resolver.New(resolver.Config{
		Registry: reg,
		Rewriter: a.Scanner,
		Builder:  a.Tables,
		Columns:  cfg.Columns,
		Logger:   logger,
		Metrics:  a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Tabs = tabs.NewNavigator(cfg.Tabs, cfg.Labels(), func(id string) bool {
		_, ok := a.Document.Region(id)
		return ok
	}, logger)

	mode, err := orchestrator.ParseMode(cfg.Run.Mode)
	if err != nil {
		a.Close()
		return nil, reserrors.NewConfigError("INVALID_MODE", err.Error())
	}
	a.Orchestrator, err = orchestrator.New(orchestrator.Config{
		Sections:       cfg.Sections,
		Mode:           mode,
		Document:       a.Document,
		Source:         a.Loader,
		Resolver:       a.Resolver,
		Detector:       a.Scanner,
		Timeout:        cfg.Watch.Timeout,
		ImmediateCheck: cfg.Watch.ImmediateCheck,
		Navigator:      a.Tabs,
		Logger:         logger,
		Metrics:        a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Health = monitoring.NewHealthMonitor(logger, version.Get().Short())
	a.Health.RegisterCheck(monitoring.ErrorCheck("store", true, store.Ping))
	a.Health.RegisterCheck(monitoring.NewHealthCheckFunc("last_run", false, a.lastRunCheck))
	a.Health.RegisterCheck(monitoring.GoroutineHealthChecker())

	logger.Info(ctx, "Pipeline ready",
		"sections", len(cfg.Sections),
		"tables", reg.Len(),
		"store", store.Kind(),
		"mode", string(mode))

	return a, nil
}

// OpenStore opens the content store described by cfg. A sqlite store with
// a fixtures file is seeded from it.
func OpenStore(ctx context.Context, cfg config.SourceConfig) (source.Store, error) {
	switch cfg.Kind {
	case source.KindFixture, "":
		if cfg.Fixtures == "" {
			return source.NewMemoryStore(nil), nil
		}
		s, err := source.NewFixtureStore(cfg.Fixtures)
		if err != nil {
			return nil, reserrors.NewConfigError("FIXTURES", err.Error())
		}
		return s, nil

	case source.KindHTTP:
		opts := make([]source.HTTPOption, 0, len(cfg.Headers))
		for k, v := range cfg.Headers {
			opts = append(opts, source.WithHeader(k, v))
		}
		s, err := source.NewHTTPStore(cfg.URL, opts...)
		if err != nil {
			return nil, reserrors.NewConfigError("SOURCE_URL", err.Error())
		}
		return s, nil

	case source.KindSQLite:
		s, err := source.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, reserrors.NewConfigError("SOURCE_DSN", err.Error())
		}
		if cfg.Fixtures != "" {
			if err := seedSQLite(ctx, s, cfg.Fixtures); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil

	default:
		return nil, reserrors.NewConfigError("SOURCE_KIND", fmt.Sprintf("unknown source kind %q", cfg.Kind))
	}
}

func seedSQLite(ctx context.Context, s *source.SQLiteStore, path string) error {
	lists, err := source.ReadFixtureFile(path)
	if err != nil {
		return reserrors.NewConfigError("FIXTURES", err.Error())
	}
	if err := s.Import(ctx, lists); err != nil {
		return fmt.Errorf("seeding sqlite from %s: %w", path, err)
	}
	return nil
}

// Run clears the page and runs every section. Region writes still deferred
// from an earlier run are dropped first. Run listeners are told about the
// report afterwards. Runs are serialised.
func (a *App) Run(ctx context.Context) (*orchestrator.RunReport, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if n := a.Loader.CancelPending(); n > 0 {
		a.Logger.Debug(ctx, "dropped deferred region writes from the previous run", "count", n)
	}
	if err := a.Document.Reset(); err != nil {
		return nil, err
	}

	report, err := a.Orchestrator.Run(ctx)

	a.mu.Lock()
	a.last = report
	listeners := make([]func(*orchestrator.RunReport), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(report)
	}
	return report, err
}

// Reload rereads the fixtures file, if the store has one.
func (a *App) Reload(ctx context.Context) error {
	switch s := a.Store.(type) {
	case *source.FixtureStore:
		if s.Path() == "" {
			return nil
		}
		return s.Reload()
	case *source.SQLiteStore:
		if a.Config.Source.Fixtures == "" {
			return nil
		}
		return seedSQLite(ctx, s, a.Config.Source.Fixtures)
	default:
		return nil
	}
}

// OnRun registers fn to be called after every run. The returned function
// removes it.
func (a *App) OnRun(fn func(*orchestrator.RunReport)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// LastReport returns the report of the most recent run, or nil.
func (a *App) LastReport() *orchestrator.RunReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

func (a *App) lastRunCheck(context.Context) monitoring.HealthCheck {
	check := monitoring.HealthCheck{Name: "last_run", Status: monitoring.HealthStatusHealthy}

	report := a.LastReport()
	if report == nil {
		check.Message = "no run yet"
		return check
	}

	failed := report.Count(orchestrator.OutcomeFailed)
	check.Metadata = map[string]interface{}{
		"run_id":   report.RunID,
		"resolved": report.Count(orchestrator.OutcomeResolved),
		"skipped":  report.Count(orchestrator.OutcomeSkipped),
		"failed":   failed,
		"age":      time.Since(report.StartedAt).Round(time.Second).String(),
	}
	if failed > 0 {
		check.Status = monitoring.HealthStatusDegraded
		check.Message = fmt.Sprintf("%d section(s) failed", failed)
	}
	return check
}

// PageData assembles the current page for rendering. Regions that belong
// to an initialised tab group are shown as tabs; the rest follow them.
func (a *App) PageData(liveReload bool) renderer.PageData {
	data := renderer.PageData{Title: a.Config.Title, LiveReload: liveReload}

	for _, g := range a.Tabs.Groups() {
		group := renderer.PanelGroup{ID: g.ID}
		for _, p := range g.Panels {
			region, ok := a.Document.Region(p.ID)
			if !ok {
				continue
			}
			group.Panels = append(group.Panels, renderer.Panel{
				ID:     p.ID,
				Label:  p.Label,
				HTML:   region.HTML(),
				Active: p.Active,
			})
		}
		data.Groups = append(data.Groups, group)
	}

	for _, r := range a.Document.Regions() {
		if a.Tabs.Grouped(r.ID()) {
			continue
		}
		data.Loose = append(data.Loose, renderer.Panel{
			ID:    r.ID(),
			Label: a.Tabs.Label(r.ID()),
			HTML:  r.HTML(),
		})
	}
	return data
}

// RenderHTML renders the whole page.
func (a *App) RenderHTML(ctx context.Context, liveReload bool) (string, error) {
	return renderer.RenderString(ctx, renderer.Page(a.PageData(liveReload)))
}

// RenderMarkdown renders every region under a heading with its label.
func (a *App) RenderMarkdown() (string, error) {
	data := a.PageData(false)

	var b strings.Builder
	b.WriteString("<h1>" + templ.EscapeString(data.Title) + "</h1>")
	write := func(p renderer.Panel) {
		b.WriteString("<h2>" + templ.EscapeString(p.Label) + "</h2>")
		b.WriteString(p.HTML)
	}
	for _, g := range data.Groups {
		for _, p := range g.Panels {
			write(p)
		}
	}
	for _, p := range data.Loose {
		write(p)
	}
	return renderer.ToMarkdown(b.String())
}

// Close drops deferred region writes and releases the store.
func (a *App) Close() error {
	if a.Loader != nil {
		a.Loader.CancelPending()
	}
	if c, ok := a.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
