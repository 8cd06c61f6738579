package relational

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	dataloader "github.com/pdgonzalez872/dataloader"
	"github.com/pdgonzalez872/dataloader/dlevent"
)

// Cardinality selects the arity contract for a column or association
// load: one row expected, or an ordered (possibly empty) sequence.
type Cardinality int

const (
	One Cardinality = iota
	Many
)

type loadMode int

const (
	modePK loadMode = iota
	modeColumn
	modeAssociation
)

// PKLoad is the batch-key payload for a primary-key load: NewBatchKey(PKLoad{...})
// builds the BatchKey LoadByPK returns, and Source.Load decodes it back
// into a pending request, so the two are interchangeable entry points.
type PKLoad struct {
	Entity *Entity
	Params map[string]interface{}
}

// ColumnLoad is the batch-key payload for a column load.
type ColumnLoad struct {
	Cardinality Cardinality
	Entity      *Entity
	Params      map[string]interface{}
	Column      string
}

// AssociationLoad is the batch-key payload for an association load.
type AssociationLoad struct {
	ParentEntity    *Entity
	AssociationName string
	Params          map[string]interface{}
}

// request accumulates the pending item keys for one batch key, plus the
// typed metadata (entity, params, column/association) the batch key's
// payload decoded into.
type request struct {
	mode            loadMode
	entity          *Entity
	params          map[string]interface{}
	column          string
	cardinality     Cardinality
	associationName string

	order  []dataloader.ItemKey
	values map[string]interface{}
}

// Options configures a relational Source. Repo is the only required
// field; every other field has the default spec.md §4.4 names.
type Options struct {
	Repo          Repo
	Query         QueryFunc
	RunBatch      RunBatchFunc
	DefaultParams map[string]interface{}
	RepoOpts      interface{}
	Timeout       time.Duration
	Async         *bool
}

// identityQuery is the Query value the default QueryFunc produces: it
// carries exactly what was passed in and nothing more, matching the
// "identity" default spec.md §4.4 names for the `query` option.
type identityQuery struct {
	Entity *Entity
	Params map[string]interface{}
}

func identityQueryFunc(entity *Entity, params map[string]interface{}) (Query, error) {
	return identityQuery{Entity: entity, Params: params}, nil
}

// Source is the relational dataloader.Source: primary-key, column and
// association load modes over a Repo, per spec.md §4.4/§4.5.
type Source struct {
	repo          Repo
	query         QueryFunc
	runBatch      RunBatchFunc
	defaultParams map[string]interface{}
	repoOpts      interface{}
	timeout       time.Duration
	async         bool

	mu      sync.Mutex
	pending map[string]*request
	order   []string
	results map[string]map[string]dataloader.Outcome

	lastCounts dlevent.OutcomeCounts
}

// New builds a Source. It fails with *dataloader.ConfigError if Repo is
// nil or Timeout is negative.
func New(opts Options) (*Source, error) {
	if opts.Repo == nil {
		return nil, &dataloader.ConfigError{Option: "repo", Reason: "required"}
	}
	if opts.Timeout < 0 {
		return nil, &dataloader.ConfigError{Option: "timeout", Reason: "must not be negative"}
	}

	query := opts.Query
	if query == nil {
		query = identityQueryFunc
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	async := true
	if opts.Async != nil {
		async = *opts.Async
	}

	return &Source{
		repo:          opts.Repo,
		query:         query,
		runBatch:      opts.RunBatch,
		defaultParams: opts.DefaultParams,
		repoOpts:      opts.RepoOpts,
		timeout:       timeout,
		async:         async,
		pending:       make(map[string]*request),
		results:       make(map[string]map[string]dataloader.Outcome),
	}, nil
}

func (s *Source) mergeParams(params map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(s.defaultParams)+len(params))
	for k, v := range s.defaultParams {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

func (s *Source) alreadyResolved(bd, id string) bool {
	perBatch, ok := s.results[bd]
	if !ok {
		return false
	}
	_, resolved := perBatch[id]
	return resolved
}

// enqueue registers (bk, ik) under the pending request for bk's digest,
// building a fresh request via build the first time bk is seen. value is
// the item key's raw lookup value (an id, a column value, a parent id).
func (s *Source) enqueue(bk dataloader.BatchKey, ik dataloader.ItemKey, value interface{}, build func() *request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bd, id := bk.Digest(), ik.Digest()
	if s.alreadyResolved(bd, id) {
		return // Invariant 3.
	}
	req, ok := s.pending[bd]
	if !ok {
		req = build()
		req.values = make(map[string]interface{})
		s.pending[bd] = req
		s.order = append(s.order, bd)
	}
	if _, seen := req.values[id]; !seen {
		req.order = append(req.order, ik)
	}
	req.values[id] = value
}

// LoadByPK registers a primary-key load: id is coerced to entity's
// declared IDKind at Run time, not here, so a bad id fails only that item.
func (s *Source) LoadByPK(entity *Entity, params map[string]interface{}, id interface{}) (dataloader.BatchKey, dataloader.ItemKey, error) {
	bk := dataloader.NewBatchKey(PKLoad{Entity: entity, Params: params})
	ik := dataloader.NewItemKey(id)
	if err := s.Load(bk, ik); err != nil {
		return dataloader.BatchKey{}, dataloader.ItemKey{}, err
	}
	return bk, ik, nil
}

// LoadByColumn registers a column load: value is the single-field lookup
// value, e.g. the role name for a `role = ?` lookup.
func (s *Source) LoadByColumn(cardinality Cardinality, entity *Entity, params map[string]interface{}, column string, value interface{}) (dataloader.BatchKey, dataloader.ItemKey, error) {
	bk := dataloader.NewBatchKey(ColumnLoad{Cardinality: cardinality, Entity: entity, Params: params, Column: column})
	ik := dataloader.NewItemKey(value)
	if err := s.Load(bk, ik); err != nil {
		return dataloader.BatchKey{}, dataloader.ItemKey{}, err
	}
	return bk, ik, nil
}

// LoadAssociation registers an association load: parentID is the
// parent's primary-key value, identifying the parent record that owns
// the association (spec.md §3: "the parent record itself (its identity
// is its primary-key value under the parent entity's schema)").
func (s *Source) LoadAssociation(parentEntity *Entity, associationName string, params map[string]interface{}, parentID interface{}) (dataloader.BatchKey, dataloader.ItemKey, error) {
	if _, ok := parentEntity.Association(associationName); !ok {
		return dataloader.BatchKey{}, dataloader.ItemKey{}, fmt.Errorf("relational: entity %q has no association %q", parentEntity.Name, associationName)
	}
	bk := dataloader.NewBatchKey(AssociationLoad{ParentEntity: parentEntity, AssociationName: associationName, Params: params})
	ik := dataloader.NewItemKey(parentID)
	if err := s.Load(bk, ik); err != nil {
		return dataloader.BatchKey{}, dataloader.ItemKey{}, err
	}
	return bk, ik, nil
}

// Load implements dataloader.Source: it decodes batchKey's raw payload — a
// PKLoad, ColumnLoad or AssociationLoad, whichever of LoadByPK/LoadByColumn/
// LoadAssociation built it from — back into a pending request. This makes
// the generic coordinator-level Loader.Load/LoadMany path sufficient on its
// own; LoadByPK and friends are convenience constructors for the same
// BatchKey/ItemKey shapes that call straight through to this method, not a
// parallel enqueue path.
func (s *Source) Load(batchKey dataloader.BatchKey, itemKey dataloader.ItemKey) error {
	switch payload := batchKey.Raw().(type) {
	case PKLoad:
		s.enqueue(batchKey, itemKey, itemKey.Raw(), func() *request {
			return &request{mode: modePK, entity: payload.Entity, params: payload.Params}
		})
	case ColumnLoad:
		s.enqueue(batchKey, itemKey, itemKey.Raw(), func() *request {
			return &request{mode: modeColumn, entity: payload.Entity, params: payload.Params, column: payload.Column, cardinality: payload.Cardinality}
		})
	case AssociationLoad:
		if _, ok := payload.ParentEntity.Association(payload.AssociationName); !ok {
			return fmt.Errorf("relational: entity %q has no association %q", payload.ParentEntity.Name, payload.AssociationName)
		}
		s.enqueue(batchKey, itemKey, itemKey.Raw(), func() *request {
			return &request{mode: modeAssociation, entity: payload.ParentEntity, params: payload.Params, associationName: payload.AssociationName}
		})
	default:
		return fmt.Errorf("relational: batch key was not built by LoadByPK, LoadByColumn or LoadAssociation (got %T)", payload)
	}
	return nil
}

// Run implements dataloader.Source.
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	order := s.order
	s.pending = make(map[string]*request)
	s.order = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	counts := &runCounts{}
	dispatch := func(ctx context.Context, bd string) {
		s.runOne(ctx, bd, pending[bd], counts)
	}

	var err error
	if !s.async {
		for _, bd := range order {
			dispatch(ctx, bd)
		}
	} else {
		err = runConcurrently(ctx, order, dispatch)
	}

	s.mu.Lock()
	s.lastCounts = dlevent.OutcomeCounts{
		OK:       int(atomic.LoadInt32(&counts.ok)),
		NotFound: int(atomic.LoadInt32(&counts.notFound)),
		Error:    int(atomic.LoadInt32(&counts.errorCount)),
	}
	s.mu.Unlock()

	return err
}

func (s *Source) runOne(ctx context.Context, bd string, req *request, counts *runCounts) {
	runCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	outcomes := s.dispatchBatch(runCtx, req)

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
func (s *Source) Timeout() time.Duration { return s.timeout }

// Async implements dataloader.Source.
func (s *Source) Async() bool { return s.async }

// LastRunOutcomes implements the optional capability the root package's
// run engine looks for via type assertion, reporting the ok/not_found/
// error split the most recent Run call produced.
func (s *Source) LastRunOutcomes() dlevent.OutcomeCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCounts
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
