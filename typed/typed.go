// Package typed wraps a single (source name, batch key) pair against the
// root dataloader.Loader in a generic, single-entity convenience API,
// matching the shape of UnAfraid/dataloaden's generated
// DataLoader[K, V] interface. Call sites that only ever load one kind of
// entity off one source/batch key don't need to thread dataloader.BatchKey
// and dataloader.ItemKey values by hand; Load/LoadAll/Prime/Clear give
// them the usual GraphQL-resolver-friendly shape.
//
// This is additive sugar over the core engine, not a replacement for it:
// every operation ultimately delegates to the underlying
// dataloader.Loader's Load/Run/Get.
package typed

import (
	"context"
	"sync"

	dataloader "github.com/pdgonzalez872/dataloader"
)

// Loader is a generic, single-entity view over one (source, batchKey)
// pair. K must be comparable so it can key both dataloader.ItemKey
// construction and this package's own Prime/Clear memo.
type Loader[K comparable, V any] struct {
	l        *dataloader.Loader
	source   string
	batchKey dataloader.BatchKey

	mu     sync.Mutex
	cache  map[K]result[V]
	primed map[K]bool
}

type result[V any] struct {
	value V
	err   error
}

// New builds a Loader that routes every Load/LoadAll call at source/batchKey
// through l.
func New[K comparable, V any](l *dataloader.Loader, source string, batchKey dataloader.BatchKey) *Loader[K, V] {
	return &Loader[K, V]{
		l:        l,
		source:   source,
		batchKey: batchKey,
		cache:    make(map[K]result[V]),
		primed:   make(map[K]bool),
	}
}

// Load fetches key, batching and caching transparently. Equivalent to
// calling LoadThunk(ctx, key) and immediately invoking the returned
// thunk.
func (t *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	return t.LoadThunk(ctx, key)()
}

// LoadThunk registers key against the underlying source without waiting.
// The returned function, when called, drains every batch key pending on
// the underlying loader (not just this key) and returns this key's
// result — so a caller that registers several keys via LoadThunk before
// invoking any of the returned thunks gets them batched into a single
// Run, the same trick the teacher pack's generated dataloaders use a
// timer for, except here the caller itself decides when to flush by
// calling a thunk.
func (t *Loader[K, V]) LoadThunk(ctx context.Context, key K) func() (V, error) {
	t.mu.Lock()
	if r, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return func() (V, error) { return r.value, r.err }
	}
	t.mu.Unlock()

	ik := dataloader.NewItemKey(key)
	if err := t.l.Load(t.source, t.batchKey, ik); err != nil {
		return func() (V, error) { var zero V; return zero, err }
	}

	return func() (V, error) {
		return t.resolve(ctx, key, ik)
	}
}

func (t *Loader[K, V]) resolve(ctx context.Context, key K, ik dataloader.ItemKey) (V, error) {
	t.mu.Lock()
	if r, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return r.value, r.err
	}
	t.mu.Unlock()

	var zero V
	if err := t.l.Run(ctx); err != nil {
		return zero, err
	}

	raw, err := t.l.Get(t.source, t.batchKey, ik)
	if err != nil {
		return zero, err
	}

	v, err := coerce[V](raw)

	t.mu.Lock()
	t.cache[key] = result[V]{value: v, err: err}
	t.mu.Unlock()

	return v, err
}

// LoadAll fetches keys in one batch, in the caller's order. Equivalent to
// calling LoadAllThunk(ctx, keys) and invoking the returned thunk.
func (t *Loader[K, V]) LoadAll(ctx context.Context, keys []K) ([]V, []error) {
	return t.LoadAllThunk(ctx, keys)()
}

// LoadAllThunk registers every key in keys, then returns a function that
// drains the underlying loader once and returns values/errors aligned to
// keys.
func (t *Loader[K, V]) LoadAllThunk(ctx context.Context, keys []K) func() ([]V, []error) {
	itemKeys := make([]dataloader.ItemKey, len(keys))
	toLoad := make([]K, 0, len(keys))
	toLoadItemKeys := make([]dataloader.ItemKey, 0, len(keys))

	for i, k := range keys {
		itemKeys[i] = dataloader.NewItemKey(k)
		t.mu.Lock()
		_, cached := t.cache[k]
		t.mu.Unlock()
		if !cached {
			toLoad = append(toLoad, k)
			toLoadItemKeys = append(toLoadItemKeys, itemKeys[i])
		}
	}

	if len(toLoad) > 0 {
		if err := t.l.LoadMany(t.source, t.batchKey, toLoadItemKeys); err != nil {
			return func() ([]V, []error) {
				values := make([]V, len(keys))
				errs := make([]error, len(keys))
				for i := range keys {
					errs[i] = err
				}
				return values, errs
			}
		}
	}

	return func() ([]V, []error) {
		values := make([]V, len(keys))
		errs := make([]error, len(keys))
		if err := t.l.Run(ctx); err != nil {
			for i := range keys {
				errs[i] = err
			}
			return values, errs
		}
		for i, k := range keys {
			v, err := t.resolve(ctx, k, itemKeys[i])
			values[i] = v
			errs[i] = err
		}
		return values, errs
	}
}

// Prime seeds the cache with value for key if key has no cached value
// yet, returning true. If key is already cached (resolved via Load, or
// previously primed), Prime makes no change and returns false: per
// spec's Invariant 3, an already-resolved pair's outcome is never
// overwritten, and this convenience layer mirrors that discipline rather
// than fighting it.
func (t *Loader[K, V]) Prime(key K, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cache[key]; ok {
		return false
	}
	t.cache[key] = result[V]{value: value}
	t.primed[key] = true
	return true
}

// Clear evicts key from this wrapper's own memo. It does not, and cannot,
// retract an outcome already recorded in the underlying loader's result
// table (Invariant 3 is engine-level and append-only for the lifetime of
// the loader) — Clear only lets a subsequent Load re-derive the typed
// value from whatever the engine already holds, which is useful after a
// Prime that turns out to be wrong but has no effect once the underlying
// pair has genuinely been resolved by a real Run.
func (t *Loader[K, V]) Clear(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cache, key)
	delete(t.primed, key)
}

// coerce adapts the untyped value dataloader.Loader.Get returns (shaped
// by its GetPolicy) to V. Under GetPolicy.Tuples the raw value is a
// dataloader.Tuple, which is unwrapped: its Err is returned as the error,
// and its Value is coerced to V.
func coerce[V any](raw interface{}) (V, error) {
	var zero V
	if raw == nil {
		return zero, nil
	}
	if tuple, ok := raw.(dataloader.Tuple); ok {
		if tuple.Err != nil {
			return zero, tuple.Err
		}
		raw = tuple.Value
		if raw == nil {
			return zero, nil
		}
	}
	v, ok := raw.(V)
	if !ok {
		return zero, &typeMismatchError{want: zero, got: raw}
	}
	return v, nil
}

type typeMismatchError struct {
	want interface{}
	got  interface{}
}

func (e *typeMismatchError) Error() string {
	return "typed: source returned a value of the wrong type for this loader"
}
