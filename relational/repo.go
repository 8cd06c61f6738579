package relational

import "context"

// Query is an opaque, store-specific query value produced by a QueryFunc.
// The engine never inspects or executes it; it only ever hands it back to
// Repo.RunBatch alongside the batching Predicate.
type Query interface{}

// Row is a single result row, addressed by column name. Repo
// implementations translate whatever native row shape their driver
// returns (sqlx.MapScan, a hand-rolled struct, …) into this form so the
// engine's partitioning logic can stay store-agnostic.
type Row map[string]interface{}

// Get returns the value stored under column, and whether it was present.
func (r Row) Get(column string) (interface{}, bool) {
	v, ok := r[column]
	return v, ok
}

// Predicate is the batching condition the engine layers onto the base
// query: "column IN (values)", translated by the Repo into whatever its
// store's query language expresses that as.
type Predicate struct {
	Column string
	Values []interface{}
}

// QueryFunc builds the base, unfiltered query for an entity given the
// call site's merged params. It must not execute; the engine always
// layers a Predicate on top before asking the Repo to run it.
type QueryFunc func(entity *Entity, params map[string]interface{}) (Query, error)

// RunBatchFunc is the `run_batch` customisation hook from spec.md §4.4: it
// replaces the engine's default "execute, then partition" steps entirely.
// It receives the pending items in a fixed order and must return exactly
// one outcome per item, in that same order. A result of any other length
// is a *dataloader.ProtocolViolationError; results are bound to items by
// position, so an out-of-order result is not detected.
type RunBatchFunc func(ctx context.Context, entity *Entity, baseQuery Query, column string, items []interface{}, repoOpts interface{}) ([]ItemOutcome, error)

// ItemOutcome pairs a raw outcome classification with the value to carry
// for the "ok" case, letting a RunBatchFunc report not_found/error without
// importing the root dataloader package's Outcome constructors directly
// (kept deliberately minimal: Kind + Value + Cause).
type ItemOutcome struct {
	Kind  OutcomeKind
	Value interface{}
	Cause error
}

// OutcomeKind discriminates an ItemOutcome.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeNotFound
	OutcomeError
)

// Repo is the entire surface the engine requires of the underlying store
// (spec.md §6.2): run one predicated query and return its rows. SQL text
// construction, connection pooling, and result scanning are the caller's
// responsibility, per spec.md §1's Non-goals.
type Repo interface {
	RunBatch(ctx context.Context, query Query, predicate Predicate, repoOpts interface{}) ([]Row, error)
}
