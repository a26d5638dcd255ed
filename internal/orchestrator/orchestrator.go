// Package orchestrator runs the fetch, watch, rewrite and build pipeline for
// every configured section of a page.
//
// Each section owns its region and its watcher. Sections run either all at
// once or one after another; in both modes every section settles before the
// run ends, and a failing section never affects its siblings.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	reserrors "github.com/conneroisu/sectionloader/internal/errors"
	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/monitoring"
	"github.com/conneroisu/sectionloader/internal/page"
	"github.com/conneroisu/sectionloader/internal/resolver"
	"github.com/conneroisu/sectionloader/internal/watcher"
)

// Mode selects how sections are scheduled.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// ParseMode parses a mode name. The empty string means parallel.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeParallel:
		return ModeParallel, nil
	case ModeSequential:
		return ModeSequential, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want parallel or sequential)", s)
	}
}

// Section pairs a content key with the region its markup is loaded into.
type Section struct {
	Key      string `mapstructure:"key" yaml:"key" json:"key"`
	RegionID string `mapstructure:"region" yaml:"region" json:"region"`
	Label    string `mapstructure:"label" yaml:"label,omitempty" json:"label,omitempty"`
}

// DefaultSections returns the sections of the operations page, keyed by the
// section names used in the content list.
func DefaultSections() []Section {
	return []Section{
		{Key: "Request pick up tab intro-new", RegionID: "pick-content"},
		{Key: "Feedback tab content", RegionID: "feed-content"},
		{Key: "Optimization tab intro", RegionID: "optimize-content"},
		{Key: "Sanitization tab content", RegionID: "sani-content"},
		{Key: "Publishing tab intro", RegionID: "autopublish-content"},
		{Key: "Validation - CID Intro", RegionID: "validation-cid-content"},
		{Key: "Validation - Credentials Intro", RegionID: "validation-cred-content"},
	}
}

// ContentSource fills a region with the markup stored under a section key.
type ContentSource interface {
	LoadSection(ctx context.Context, sectionKey, regionID string) error
}

// RegionResolver rewrites and builds the tokens of a region.
type RegionResolver interface {
	Resolve(ctx context.Context, region resolver.Region) (*resolver.Report, error)
}

// Navigator is initialised once every section has settled.
type Navigator interface {
	Init(ctx context.Context) error
}

// Config wires an Orchestrator.
type Config struct {
	Sections []Section
	Mode     Mode
	Document *page.Document
	Source   ContentSource
	Resolver RegionResolver
	Detector watcher.TokenDetector
	// Timeout bounds each section's convergence watch. It must be positive.
	Timeout        time.Duration
	ImmediateCheck bool
	// Navigator is optional.
	Navigator Navigator
	Logger    logging.Logger
	Metrics   *monitoring.Metrics
}

// Outcome is the terminal state of one section.
type Outcome string

const (
	// OutcomeResolved means the section was fetched, watched and resolved.
	// Missing registry entries and individual build failures still count as
	// resolved; they are listed in the section's resolve report.
	OutcomeResolved Outcome = "resolved"
	// OutcomeSkipped means the section's region does not exist.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the fetch, the region write or the builder lookup
	// failed, or the section was cancelled.
	OutcomeFailed Outcome = "failed"
)

// SectionReport describes how one section ended.
type SectionReport struct {
	Key      string           `json:"key"`
	RegionID string           `json:"region"`
	Outcome  Outcome          `json:"outcome"`
	Reason   watcher.Reason   `json:"reason,omitempty"`
	Resolve  *resolver.Report `json:"resolve,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`

	err error
}

// Err returns the error that failed the section, if any.
func (s SectionReport) Err() error {
	return s.err
}

// RunReport describes one run over every section.
type RunReport struct {
	RunID     string          `json:"run_id"`
	Mode      Mode            `json:"mode"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Sections  []SectionReport `json:"sections"`
	TabsReady bool            `json:"tabs_ready"`
}

// Count returns the number of sections with the given outcome.
func (r *RunReport) Count(o Outcome) int {
	n := 0
	for _, s := range r.Sections {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// Section returns the report of the section loaded into regionID.
func (r *RunReport) Section(regionID string) (SectionReport, bool) {
	for _, s := range r.Sections {
		if s.RegionID == regionID {
			return s, true
		}
	}
	return SectionReport{}, false
}

// Orchestrator drives sections through the pipeline. Runs are serialised.
type Orchestrator struct {
	cfg    Config
	logger logging.Logger
	runMu  sync.Mutex
}

// New validates cfg and creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Document == nil {
		return nil, reserrors.NewConfigError("NO_DOCUMENT", "orchestrator: document is required")
	}
	if cfg.Source == nil {
		return nil, reserrors.NewConfigError("NO_SOURCE", "orchestrator: content source is required")
	}
	if cfg.Resolver == nil {
		return nil, reserrors.NewConfigError("NO_RESOLVER", "orchestrator: resolver is required")
	}
	if cfg.Detector == nil {
		return nil, reserrors.NewConfigError("NO_DETECTOR", "orchestrator: token detector is required")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, reserrors.NewConfigError("INVALID_MODE", err.Error())
	}
	cfg.Mode = mode
	if cfg.Timeout <= 0 {
		return nil, reserrors.NewConfigError("INVALID_TIMEOUT",
			fmt.Sprintf("orchestrator: watch timeout must be positive, got %s", cfg.Timeout))
	}

	seen := make(map[string]bool, len(cfg.Sections))
	for _, s := range cfg.Sections {
		if s.Key == "" || s.RegionID == "" {
			return nil, reserrors.NewConfigError("INVALID_SECTION",
				fmt.Sprintf("section %+v needs both a key and a region", s))
		}
		if seen[s.RegionID] {
			return nil, reserrors.NewConfigError("DUPLICATE_REGION",
				fmt.Sprintf("region %q is used by more than one section", s.RegionID))
		}
		seen[s.RegionID] = true
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Orchestrator{cfg: cfg, logger: logger.WithComponent("orchestrator")}, nil
}

// Sections returns the configured sections.
func (o *Orchestrator) Sections() []Section {
	return append([]Section(nil), o.cfg.Sections...)
}

// Mode returns the scheduling mode.
func (o *Orchestrator) Mode() Mode {
	return o.cfg.Mode
}

// Run loads every section and waits for all of them to settle, then
// initialises the navigator. Section failures are reported, not returned;
// the only error is ctx.Err() when the run was cancelled.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	report := &RunReport{
		RunID:     uuid.NewString(),
		Mode:      o.cfg.Mode,
		StartedAt: time.Now(),
		Sections:  make([]SectionReport, len(o.cfg.Sections)),
	}
	logger := o.logger.With("run_id", report.RunID)
	op := logging.StartOperation(logger, "run")
	o.cfg.Metrics.RunStarted()

	logger.Info(ctx, "Loading sections", "count", len(o.cfg.Sections), "mode", string(o.cfg.Mode))

	switch o.cfg.Mode {
	case ModeSequential:
		for i, s := range o.cfg.Sections {
			report.Sections[i] = o.loadSection(ctx, logger, s)
		}
	default:
		var wg sync.WaitGroup
		for i, s := range o.cfg.Sections {
			wg.Add(1)
			go func(i int, s Section) {
				defer wg.Done()
				report.Sections[i] = o.loadSection(ctx, logger, s)
			}(i, s)
		}
		wg.Wait()
	}

	errs := reserrors.NewCollector()
	for _, s := range report.Sections {
		errs.Add(s.err)
	}
	if errs.HasErrors() {
		logger.Warn(ctx, errs.Join(), "some sections failed", "failed", errs.Len())
	}

	if o.cfg.Navigator != nil && ctx.Err() == nil {
		if err := o.cfg.Navigator.Init(ctx); err != nil {
			logger.Error(ctx, err, "tab initialisation failed")
		} else {
			report.TabsReady = true
		}
	}

	report.Duration = time.Since(report.StartedAt)
	op.End(ctx,
		"resolved", report.Count(OutcomeResolved),
		"skipped", report.Count(OutcomeSkipped),
		"failed", report.Count(OutcomeFailed))

	return report, ctx.Err()
}

// LoadSection runs the pipeline for one section outside of a run.
func (o *Orchestrator) LoadSection(ctx context.Context, s Section) SectionReport {
	return o.loadSection(ctx, o.logger, s)
}

func (o *Orchestrator) loadSection(ctx context.Context, logger logging.Logger, s Section) (rep SectionReport) {
	start := time.Now()
	rep = SectionReport{Key: s.Key, RegionID: s.RegionID}
	logger = logger.With("section", s.Key, "region", s.RegionID)

	defer func() {
		if v := recover(); v != nil {
			rep.err = reserrors.NewPanicError(v)
			rep.Outcome = OutcomeFailed
			logger.Error(ctx, rep.err, "section pipeline panicked")
		}
		if rep.err != nil {
			rep.Error = rep.err.Error()
		}
		rep.Duration = time.Since(start)
		o.cfg.Metrics.SectionCompleted(string(rep.Outcome), rep.Duration)
	}()

	region, ok := o.cfg.Document.Region(s.RegionID)
	if !ok {
		logger.Debug(ctx, "region not on page, skipping")
		rep.Outcome = OutcomeSkipped
		return rep
	}

	if err := o.cfg.Source.LoadSection(ctx, s.Key, s.RegionID); err != nil {
		logger.Error(ctx, err, "failed to load section content")
		rep.Outcome, rep.err = OutcomeFailed, err
		return rep
	}

	w, err := watcher.NewConvergenceWatcher(watcher.ConvergenceConfig{
		Region:         region,
		Detector:       o.cfg.Detector,
		Timeout:        o.cfg.Timeout,
		ImmediateCheck: o.cfg.ImmediateCheck,
		Logger:         logger,
		OnComplete: func(ctx context.Context, _ watcher.Reason) error {
			res, err := o.cfg.Resolver.Resolve(ctx, region)
			rep.Resolve = res
			return err
		},
	})
	if err != nil {
		rep.Outcome, rep.err = OutcomeFailed, err
		return rep
	}

	out, err := w.Wait(ctx)
	rep.Reason = out.Reason
	if out.Reason != "" {
		o.cfg.Metrics.WatchCompleted(string(out.Reason))
	}
	if err != nil {
		logger.Error(ctx, err, "section did not resolve", "reason", string(out.Reason))
		rep.Outcome, rep.err = OutcomeFailed, err
		return rep
	}

	rep.Outcome = OutcomeResolved
	return rep
}
