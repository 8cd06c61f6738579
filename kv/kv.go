// Package kv wraps an arbitrary user-supplied fetch callback as a
// dataloader.Source: one HTTP call, cache client, or other keyed-lookup
// backend behind a single batching boundary.
package kv

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	dataloader "github.com/pdgonzalez872/dataloader"
	"github.com/pdgonzalez872/dataloader/dlevent"
)

// FetchFunc is the user-supplied callback: given a batch key and the set
// of item keys accumulated under it, return a mapping from item key to
// value. Item keys absent from the returned map become not_found
// outcomes; item keys present in the map but never requested are
// discarded (spec's open question 2 chooses "discard").
type FetchFunc func(ctx context.Context, batchKey interface{}, itemKeys []interface{}) (map[interface{}]interface{}, error)

// Option configures a Source.
type Option func(*options)

type options struct {
	maxConcurrency int
	timeout        time.Duration
	async          bool
}

// WithMaxConcurrency bounds how many batches may execute concurrently.
// Default 2x runtime.GOMAXPROCS(0).
func WithMaxConcurrency(n int) Option {
	return func(o *options) { o.maxConcurrency = n }
}

// WithTimeout sets the per-batch timeout. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithAsync forces sequential (false) or concurrent (true, the default)
// dispatch of this source's batches within a Run.
func WithAsync(async bool) Option {
	return func(o *options) { o.async = async }
}

// batch accumulates the item keys pending under one batch key, keyed by
// item digest so that an item key whose raw value isn't itself
// comparable (a map, a slice) can still be accumulated safely.
type batch struct {
	bk    dataloader.BatchKey
	items map[string]dataloader.ItemKey
}

// Source is a dataloader.Source backed by a FetchFunc.
type Source struct {
	fetch FetchFunc
	opts  options

	mu      sync.Mutex
	pending map[string]*batch
	results map[string]map[string]dataloader.Outcome

	lastCounts dlevent.OutcomeCounts
}

// New builds a Source around fetch.
func New(fetch FetchFunc, opts ...Option) *Source {
	o := options{
		maxConcurrency: 2 * runtime.GOMAXPROCS(0),
		timeout:        30 * time.Second,
		async:          true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Source{
		fetch:   fetch,
		opts:    o,
		pending: make(map[string]*batch),
		results: make(map[string]map[string]dataloader.Outcome),
	}
}

// Load implements dataloader.Source. batchKey and itemKey carry their
// original values through via Raw, so the generic coordinator path is
// sufficient on its own; LoadValue below is sugar over the same logic for
// callers working with a *Source directly.
func (s *Source) Load(batchKey dataloader.BatchKey, itemKey dataloader.ItemKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bd, id := batchKey.Digest(), itemKey.Digest()
	if perBatch, ok := s.results[bd]; ok {
		if _, resolved := perBatch[id]; resolved {
			return nil // Invariant 3: already-resolved pair, no-op.
		}
	}

	b, ok := s.pending[bd]
	if !ok {
		b = &batch{bk: batchKey, items: make(map[string]dataloader.ItemKey)}
		s.pending[bd] = b
	}
	b.items[id] = itemKey
	return nil
}

// LoadValue is a convenience wrapper for callers working with a *Source
// directly: it canonicalises batchKeyValue/itemKeyValue and calls Load.
func (s *Source) LoadValue(batchKeyValue interface{}, itemKeyValue interface{}) error {
	return s.Load(dataloader.NewBatchKey(batchKeyValue), dataloader.NewItemKey(itemKeyValue))
}

// Run implements dataloader.Source.
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*batch)
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	counts := &runCounts{}

	if !s.opts.async {
		for bd, b := range pending {
			s.runOne(ctx, bd, b, counts)
		}
		s.storeCounts(counts)
		return nil
	}

	sem := make(chan struct{}, s.opts.maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for bd, b := range pending {
		bd, b := bd, b
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()
			s.runOne(gctx, bd, b, counts)
			return nil
		})
	}
	err := g.Wait()
	s.storeCounts(counts)
	return err
}

func (s *Source) runOne(ctx context.Context, bd string, b *batch, counts *runCounts) {
	itemKeys := make([]dataloader.ItemKey, 0, len(b.items))
	itemVals := make([]interface{}, 0, len(b.items))
	for _, ik := range b.items {
		itemKeys = append(itemKeys, ik)
		itemVals = append(itemVals, ik.Raw())
	}

	outcomes := s.callFetch(ctx, b.bk.Raw(), itemKeys, itemVals)

	s.mu.Lock()
	perBatch, ok := s.results[bd]
	if !ok {
		perBatch = make(map[string]dataloader.Outcome)
		s.results[bd] = perBatch
	}
	for id, outcome := range outcomes {
		perBatch[id] = outcome
	}
	s.mu.Unlock()

	for _, outcome := range outcomes {
		counts.add(outcome)
	}
}

// callFetch invokes the user callback, converting a panic, a returned
// error, or a context deadline into error(cause)/error(timeout) for every
// item key in the batch, per spec §4.3 and §4.6. Outcomes are keyed by
// item digest, not by the ItemKey value itself, since an item key's raw
// value need not be comparable.
func (s *Source) callFetch(ctx context.Context, bv interface{}, itemKeys []dataloader.ItemKey, itemVals []interface{}) (outcomes map[string]dataloader.Outcome) {
	outcomes = make(map[string]dataloader.Outcome, len(itemKeys))

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("kv fetch panic: %v", r)
			for _, ik := range itemKeys {
				outcomes[ik.Digest()] = dataloader.Err(dataloader.NewBackendError(cause))
			}
		}
	}()

	if s.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.timeout)
		defer cancel()
	}

	values, err := s.fetch(ctx, bv, itemVals)
	if ctx.Err() == context.DeadlineExceeded {
		for _, ik := range itemKeys {
			outcomes[ik.Digest()] = dataloader.Err(&dataloader.TimeoutError{BatchKey: bv})
		}
		return outcomes
	}
	if err != nil {
		cause := dataloader.NewBackendError(err)
		for _, ik := range itemKeys {
			outcomes[ik.Digest()] = dataloader.Err(cause)
		}
		return outcomes
	}

	for i, ik := range itemKeys {
		v, found := values[itemVals[i]]
		if !found {
			outcomes[ik.Digest()] = dataloader.NotFound()
			continue
		}
		outcomes[ik.Digest()] = dataloader.OK(v)
	}
	return outcomes
}

// Fetch implements dataloader.Source.
func (s *Source) Fetch(batchKey dataloader.BatchKey, itemKey dataloader.ItemKey) (dataloader.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perBatch, ok := s.results[batchKey.Digest()]
	if !ok {
		return dataloader.Outcome{}, false
	}
	outcome, ok := perBatch[itemKey.Digest()]
	return outcome, ok
}

// PendingBatches implements dataloader.Source.
func (s *Source) PendingBatches() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Timeout implements dataloader.Source.
func (s *Source) Timeout() time.Duration {
	return s.opts.timeout
}

// Async implements dataloader.Source.
func (s *Source) Async() bool {
	return s.opts.async
}

// LastRunOutcomes implements the optional capability the root package's
// run engine looks for via type assertion, reporting the ok/not_found/
// error split the most recent Run call produced.
func (s *Source) LastRunOutcomes() dlevent.OutcomeCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCounts
}

func (s *Source) storeCounts(c *runCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCounts = dlevent.OutcomeCounts{
		OK:       int(atomic.LoadInt32(&c.ok)),
		NotFound: int(atomic.LoadInt32(&c.notFound)),
		Error:    int(atomic.LoadInt32(&c.errorCount)),
	}
}

// runCounts tallies outcomes across the possibly-concurrent batches one
// Run call dispatches.
type runCounts struct {
	ok, notFound, errorCount int32
}

func (c *runCounts) add(outcome dataloader.Outcome) {
	switch {
	case outcome.IsNotFound():
		atomic.AddInt32(&c.notFound, 1)
	case outcome.Error() != nil:
		atomic.AddInt32(&c.errorCount, 1)
	default:
		atomic.AddInt32(&c.ok, 1)
	}
}
