package dataloader

import (
	"context"
	"time"
)

// Source is the contract any backend plug-in must satisfy. The built-in
// variants are dataloader/kv.Source and dataloader/relational.Source;
// user code may supply its own.
//
// Implementations are free in how they group batches within a single Run,
// as long as an outcome for every pending item is present in the result
// table once Run returns.
type Source interface {
	// Load adds an item to the pending table under batchKey. It must be
	// a no-op if (batchKey, itemKey) is already present in the result
	// table (Invariant 3: a load for an already-resolved pair never
	// re-enqueues it).
	Load(batchKey BatchKey, itemKey ItemKey) error

	// Run drains the pending table, producing outcomes, and appends them
	// to the result table. Run is the source's only suspension point.
	Run(ctx context.Context) error

	// Fetch is a pure lookup over the result table. It returns
	// (outcome, true) if the pair is present, or (zero, false) if it has
	// never been loaded or was loaded after the most recent Run.
	Fetch(batchKey BatchKey, itemKey ItemKey) (Outcome, bool)

	// PendingBatches reports whether the source has any batch keys
	// awaiting a Run.
	PendingBatches() bool

	// Timeout is the deadline this source wants for its dispatch. The run
	// engine bounds the source's whole Run call by it, or by the loader's
	// Options.Timeout when this returns zero; the built-in sources also
	// apply it to each batch they dispatch.
	Timeout() time.Duration

	// Async reports whether the source dispatches its own batches
	// concurrently (true) or sequentially on the calling task (false).
	Async() bool
}
