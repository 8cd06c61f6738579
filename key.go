package dataloader

import (
	"github.com/pdgonzalez872/dataloader/internal/canon"
)

// BatchKey identifies what kind of load an item belongs to: two batch
// keys coalesce into a single batch iff they are value-equal, regardless
// of how each was constructed. Raw (promoted from canon.Key) returns the
// original value passed to NewBatchKey/NewCompoundBatchKey, letting a
// Source decode whatever structure it needs straight back out of the key
// the coordinator carried through unchanged.
type BatchKey struct {
	canon.Key
}

// NewBatchKey canonicalises an arbitrary value (a scalar tag, a struct, a
// map of params, or a fixed-shape tuple) into a BatchKey.
func NewBatchKey(v interface{}) BatchKey {
	return BatchKey{canon.Of(v)}
}

// NewCompoundBatchKey canonicalises an ordered tuple of components, such
// as (entity, params) or (cardinality, entity, params, column), into a
// single BatchKey. Component order is fixed by the caller; it is not
// derived from map iteration order, which is why compound components are
// passed positionally rather than as a single map.
func NewCompoundBatchKey(parts ...interface{}) BatchKey {
	return BatchKey{canon.Compound(parts...)}
}

// ItemKey identifies the specific datum within a batch.
type ItemKey struct {
	canon.Key
}

// NewItemKey canonicalises an arbitrary value into an ItemKey.
func NewItemKey(v interface{}) ItemKey {
	return ItemKey{canon.Of(v)}
}

// pairKey identifies a single (batchKey, itemKey) cell for the
// coordinator's own once-per-pair bookkeeping (policy.go's loggedOnce). It
// is built from digests rather than the BatchKey/ItemKey values themselves
// because a key's Raw value may not be comparable (a relational batch key's
// raw payload carries a params map), which would panic if used as, or
// embedded in, a Go map key.
type pairKey struct {
	batch string
	item  string
}

func newPairKey(bk BatchKey, ik ItemKey) pairKey {
	return pairKey{batch: bk.Digest(), item: ik.Digest()}
}
