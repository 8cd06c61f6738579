package dataloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/pdgonzalez872/dataloader/dlevent"
)

// runSources dispatches every (name, source) pair that currently reports
// pending work, one goroutine per source, coordinated by an errgroup so
// that the caller observes Run as a single synchronisation barrier: it
// returns only once every spawned task has produced an outcome (success,
// timeout, or exception). This mirrors the errgroup-per-logical-task shape
// armadaproject-armada's ingester and scheduler packages use to coordinate
// heterogeneous concurrent work under one barrier.
//
// Ordering between sources is unspecified, matching spec §4.6: the
// errgroup fans out with no ordering guarantee among its goroutines.
//
// A source that panics during its own Run is contained here: the panic is
// recovered, reported as a RunException event, and folded into the
// aggregate error returned to the caller, but it never aborts sibling
// sources (each runs in its own goroutine and its own recover).
// outcomeReporter is an optional capability a Source may implement to
// report the ok/not_found/error split its most recent Run call produced;
// both built-in sources implement it. A source that doesn't is reported
// with zero counts — Source's required contract carries no such method,
// so a user-supplied source stays fully compatible without it.
type outcomeReporter interface {
	LastRunOutcomes() dlevent.OutcomeCounts
}

func (l *Loader) runSources(ctx context.Context) error {
	type target struct {
		name   string
		source Source
	}

	l.mu.Lock()
	var targets []target
	for name, src := range l.sources {
		if src.PendingBatches() {
			targets = append(targets, target{name: name, source: src})
		}
	}
	l.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var errsMu sync.Mutex
	var errs *multierror.Error

	for _, t := range targets {
		t := t
		g.Go(func() (err error) {
			timeout := t.source.Timeout()
			if timeout <= 0 {
				timeout = l.options.Timeout
			}
			runCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			start := time.Now()
			l.events.RunStart(dlevent.RunStart{Source: t.name})

			defer func() {
				if r := recover(); r != nil {
					panicErr := fmt.Errorf("panic in source %q: %v", t.name, r)
					l.events.RunException(dlevent.RunException{Source: t.name, Cause: panicErr})
					l.events.RunStop(dlevent.RunStop{Source: t.name, Duration: time.Since(start), Outcomes: runOutcomes(t.source)})
					errsMu.Lock()
					errs = multierror.Append(errs, panicErr)
					errsMu.Unlock()
				}
			}()

			runErr := t.source.Run(runCtx)
			l.events.RunStop(dlevent.RunStop{Source: t.name, Duration: time.Since(start), Outcomes: runOutcomes(t.source)})
			if runErr != nil {
				l.events.RunException(dlevent.RunException{Source: t.name, Cause: runErr})
				errsMu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("source %q: %w", t.name, runErr))
				errsMu.Unlock()
			}
			return nil
		})
	}

	// g.Wait() itself never returns a non-nil error here: each goroutine
	// swallows its own error into errs so that one source's failure never
	// cancels gctx and aborts its siblings mid-dispatch.
	_ = g.Wait()

	return errs.ErrorOrNil()
}

func runOutcomes(src Source) dlevent.OutcomeCounts {
	if reporter, ok := src.(outcomeReporter); ok {
		return reporter.LastRunOutcomes()
	}
	return dlevent.OutcomeCounts{}
}
