// Package dataloader implements a request-scoped batching and caching
// coordinator: callers declaratively enqueue individual data requests
// against named sources, the coordinator defers execution, groups
// compatible requests into batches, dispatches batches concurrently on
// Run, and memoises results so identical subsequent requests cost
// nothing.
package dataloader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdgonzalez872/dataloader/dlevent"
)

// Options configures a Loader. The zero value is not valid; use New,
// which fills in defaults and validates.
type Options struct {
	// GetPolicy governs the shape Get returns. Default RaiseOnError.
	GetPolicy GetPolicy

	// Timeout is the deadline Run places on each source's whole Run call
	// for sources that don't declare their own (source.Timeout() <= 0).
	// Default 15s.
	Timeout time.Duration

	// Async is recorded on the loader (a nil value means the default,
	// true; the pointer form distinguishes "not specified" from
	// "explicitly false"). Neither the run engine nor the built-in
	// sources consult it: the run engine always dispatches every source
	// with pending work in parallel, and each built-in source's own
	// setting (kv.WithAsync, relational.Options.Async) decides whether
	// its batches run sequentially.
	Async *bool

	// Events subscribes hooks to run.start/run.stop/run.exception.
	Events []dlevent.Hook

	// Logger is used for the ReturnNilOnError policy's once-per-pair
	// error log. Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

func defaultOptions() Options {
	async := true
	return Options{
		GetPolicy: RaiseOnError,
		Timeout:   15 * time.Second,
		Async:     &async,
	}
}

// Loader is the request-scoped coordinator: a mapping from source name to
// source instance, plus a global options block. Create one Loader per
// logical unit of work (e.g. one incoming request); two loaders never
// share state.
type Loader struct {
	mu      sync.Mutex
	sources map[string]Source
	options Options
	events  *dlevent.Recorder
	once    *loggedOnce
}

// New creates an empty Loader. Recognised options are validated
// immediately; an invalid GetPolicy or a negative Timeout returns a
// *ConfigError.
func New(opts Options) (*Loader, error) {
	merged := defaultOptions()
	merged.GetPolicy = opts.GetPolicy
	if !merged.GetPolicy.valid() {
		return nil, newConfigError("get_policy", "must be one of RaiseOnError, ReturnNilOnError, Tuples")
	}
	if opts.Timeout != 0 {
		merged.Timeout = opts.Timeout
	}
	if merged.Timeout < 0 {
		return nil, newConfigError("timeout", "must not be negative")
	}
	if opts.Async != nil {
		merged.Async = opts.Async
	}
	if opts.Logger != nil {
		merged.Logger = opts.Logger
	} else {
		merged.Logger = logrus.StandardLogger()
	}
	merged.Events = opts.Events

	return &Loader{
		sources: make(map[string]Source),
		options: merged,
		events:  dlevent.NewRecorder(opts.Events...),
		once:    newLoggedOnce(),
	}, nil
}

// AddSource binds name to source, replacing any prior binding. The next
// Run uses the latest binding for name.
func (l *Loader) AddSource(name string, source Source) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[name] = source
	return l
}

func (l *Loader) sourceFor(name string) (Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.sources[name]
	if !ok {
		return nil, newUnknownSourceError(name)
	}
	return src, nil
}

// Load records intent to fetch itemKey under batchKey from the named
// source. It is a no-op if (batchKey, itemKey) is already resolved for
// that source. It fails with *UnknownSourceError if name is not bound.
func (l *Loader) Load(name string, batchKey BatchKey, itemKey ItemKey) error {
	src, err := l.sourceFor(name)
	if err != nil {
		return err
	}
	return src.Load(batchKey, itemKey)
}

// LoadMany is Load folded over itemKeys, preserving caller-visible
// ordering (ordering only matters for GetMany's return; Load itself has
// no ordering effect on the pending table).
func (l *Loader) LoadMany(name string, batchKey BatchKey, itemKeys []ItemKey) error {
	src, err := l.sourceFor(name)
	if err != nil {
		return err
	}
	for _, ik := range itemKeys {
		if err := src.Load(batchKey, ik); err != nil {
			return err
		}
	}
	return nil
}

// Run dispatches every source whose pending table is non-empty. It is
// idempotent when no source has pending work. Run is the loader's only
// suspension point.
func (l *Loader) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return l.runSources(ctx)
}

// Get returns the caller-visible outcome for (batchKey, itemKey) from the
// named source, shaped according to the loader's GetPolicy. It fails with
// *UnknownSourceError if name is not bound, or *UnrunBatchError if the
// pair was never loaded or was loaded after the most recent Run,
// regardless of policy (this is a programming error, not a backend
// outcome).
func (l *Loader) Get(name string, batchKey BatchKey, itemKey ItemKey) (interface{}, error) {
	src, err := l.sourceFor(name)
	if err != nil {
		return nil, err
	}
	outcome, ok := src.Fetch(batchKey, itemKey)
	if !ok {
		return nil, newUnrunBatchError(name, batchKey, itemKey)
	}
	pk := newPairKey(batchKey, itemKey)
	return applyPolicy(l.options.GetPolicy, name, pk, outcome, l.once, l.options.Logger)
}

// GetMany returns outcomes for itemKeys, in the caller's order, from the
// named source. It is equivalent to calling Get for each key in turn:
// GetMany(name, bk, ks)[i] == Get(name, bk, ks[i]).
func (l *Loader) GetMany(name string, batchKey BatchKey, itemKeys []ItemKey) ([]interface{}, error) {
	results := make([]interface{}, len(itemKeys))
	for i, ik := range itemKeys {
		v, err := l.Get(name, batchKey, ik)
		if err != nil {
			return nil, err
		}
		results[i] = v
	}
	return results, nil
}

// PendingBatches reports whether any bound source has pending work.
func (l *Loader) PendingBatches() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, src := range l.sources {
		if src.PendingBatches() {
			return true
		}
	}
	return false
}
