package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/sectionloader/internal/logging"
	"github.com/conneroisu/sectionloader/internal/page"
)

// Reason names the signal that completed a watch.
type Reason string

const (
	// ReasonImmediate means tokens were already present when the watch began.
	ReasonImmediate Reason = "immediate"
	// ReasonMutation means a change notification revealed tokens.
	ReasonMutation Reason = "mutation"
	// ReasonTimeout means no tokens appeared before the deadline. This is a
	// normal terminal state, not an error.
	ReasonTimeout Reason = "timeout"

	reasonCancelled Reason = "cancelled"
)

// ErrAlreadyStarted is returned by Wait on a watcher that has already been
// waited on.
var ErrAlreadyStarted = errors.New("convergence watcher already started")

// Observable is a region of markup that reports its own changes.
type Observable interface {
	HTML() string
	Subscribe(fn func(page.Mutation)) page.Subscription
}

// TokenDetector reports whether markup contains any tokens.
type TokenDetector interface {
	HasTokens(markup string) bool
}

// CompletionFunc is run exactly once when a watch completes.
type CompletionFunc func(ctx context.Context, reason Reason) error

// ConvergenceConfig configures a ConvergenceWatcher.
type ConvergenceConfig struct {
	Region   Observable
	Detector TokenDetector
	// Timeout bounds the watch. Zero or negative means no timeout.
	Timeout time.Duration
	// ImmediateCheck inspects the region once before waiting for changes.
	ImmediateCheck bool
	OnComplete     CompletionFunc
	Logger         logging.Logger
}

// Outcome describes how a watch ended.
type Outcome struct {
	Reason  Reason        `json:"reason"`
	Elapsed time.Duration `json:"elapsed"`
}

// ConvergenceWatcher waits until a region contains tokens, or until a
// timeout, and then runs its completion action once.
//
// Three producers race to complete the watch: an immediate check at start,
// change notifications from the region, and a timer. The first one to win
// the compare-and-set on fired is the only one that counts; every later
// signal is dropped. The completion action always runs on the goroutine
// that called Wait.
type ConvergenceWatcher struct {
	cfg    ConvergenceConfig
	logger logging.Logger

	started atomic.Bool
	fired   atomic.Bool
	reason  Reason
	done    chan struct{}

	mu  sync.Mutex
	sub page.Subscription
	tmr *time.Timer
}

// NewConvergenceWatcher creates a watcher. It does nothing until Wait.
func NewConvergenceWatcher(cfg ConvergenceConfig) (*ConvergenceWatcher, error) {
	if cfg.Region == nil {
		return nil, fmt.Errorf("convergence watcher: region is required")
	}
	if cfg.Detector == nil {
		return nil, fmt.Errorf("convergence watcher: detector is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ConvergenceWatcher{
		cfg:    cfg,
		logger: logger.WithComponent("convergence"),
		done:   make(chan struct{}),
	}, nil
}

// Wait starts watching and blocks until the watch completes and its
// completion action has returned. The returned error is the completion
// action's error, or ctx.Err() if the context ended first. A cancelled watch
// never runs the completion action.
func (w *ConvergenceWatcher) Wait(ctx context.Context) (Outcome, error) {
	if !w.started.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyStarted
	}

	op := logging.StartOperation(w.logger, "observe")
	start := time.Now()

	// Subscribe before the immediate check so a write landing between the two
	// is still seen.
	sub := w.cfg.Region.Subscribe(func(page.Mutation) {
		if w.fired.Load() {
			return
		}
		if w.cfg.Detector.HasTokens(w.cfg.Region.HTML()) {
			w.fire(ReasonMutation)
		}
	})
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()

	if w.cfg.ImmediateCheck && w.cfg.Detector.HasTokens(w.cfg.Region.HTML()) {
		w.fire(ReasonImmediate)
	}

	if w.cfg.Timeout > 0 && !w.fired.Load() {
		t := time.AfterFunc(w.cfg.Timeout, func() { w.fire(ReasonTimeout) })
		w.mu.Lock()
		w.tmr = t
		w.mu.Unlock()
	}

	select {
	case <-w.done:
	case <-ctx.Done():
		if w.fire(reasonCancelled) {
			w.disconnect()
			op.EndWithError(ctx, ctx.Err())
			return Outcome{Reason: reasonCancelled, Elapsed: time.Since(start)}, ctx.Err()
		}
		<-w.done
	}

	w.disconnect()
	out := Outcome{Reason: w.reason, Elapsed: time.Since(start)}

	w.logger.Debug(ctx, "watch converged", "reason", string(out.Reason))

	var err error
	if w.cfg.OnComplete != nil {
		err = w.cfg.OnComplete(ctx, out.Reason)
	}
	if err != nil {
		op.EndWithError(ctx, err, "reason", string(out.Reason))
	} else {
		op.End(ctx, "reason", string(out.Reason))
	}
	return out, err
}

// Done is closed once a signal has won the race.
func (w *ConvergenceWatcher) Done() <-chan struct{} {
	return w.done
}

// Fired reports whether the watch has been claimed by a signal.
func (w *ConvergenceWatcher) Fired() bool {
	return w.fired.Load()
}

// fire claims the single transition for reason. It reports whether this call
// won.
func (w *ConvergenceWatcher) fire(reason Reason) bool {
	if !w.fired.CompareAndSwap(false, true) {
		return false
	}
	w.reason = reason
	close(w.done)
	return true
}

func (w *ConvergenceWatcher) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub != nil {
		w.sub.Unsubscribe()
		w.sub = nil
	}
	if w.tmr != nil {
		w.tmr.Stop()
		w.tmr = nil
	}
}
