// Package canon canonicalises the arbitrary user-supplied values that make
// up batch keys and item keys so that two independently constructed but
// value-equal compositions coalesce into a single map entry, while still
// giving a Source back the original value it canonicalised, unchanged —
// the coordinator carries batch/item keys through without ever needing to
// understand their shape.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Key is a canonical representation of an arbitrary value. Two values
// that are "value-equal" per the spec produce Keys with the same Digest.
// Key itself is not meant to be used as a Go map key directly — its raw
// field may hold something unhashable (a map, a slice) — callers that need
// a map key should use Digest.
type Key struct {
	digest string
	// repr is retained for diagnostics (error messages, event fields); it
	// is not part of the equality contract, digest is.
	repr string
	raw  interface{}
}

// String returns a human-readable representation, suitable for error
// messages and structured log fields.
func (k Key) String() string {
	return k.repr
}

// Digest is the canonical identity string two Keys share iff they were
// built from value-equal inputs. It is always safe to use as a map key.
func (k Key) Digest() string {
	return k.digest
}

// Raw returns the original, uncanonicalised value Of or Compound was
// called with. A Source decodes this to recover whatever structure it
// needs (entity metadata, load mode, column name, ...) without the
// coordinator needing to know anything about it.
func (k Key) Raw() interface{} {
	return k.raw
}

// Of canonicalises v into a Key. Maps are sorted by key before hashing so
// that construction order never affects identity; nested maps, slices and
// structs are handled recursively. Pointers contribute their address, not
// their pointee's contents, so two distinct-but-equal pointee values do
// not coalesce — callers that want structural sharing to drive coalescing
// should pass the same pointer (e.g. a single *Entity built once and
// reused), which is also the idiomatic way to use this package.
func Of(v interface{}) Key {
	repr := canonicalString(v)
	sum := sha256.Sum256([]byte(repr))
	return Key{digest: hex.EncodeToString(sum[:]), repr: repr, raw: v}
}

// Compound canonicalises a fixed, ordered tuple of components into a
// single Key. Used to build batch keys such as (entity, params) or
// (cardinality, entity, params, column) where component order is fixed by
// the caller (the shape), not by iteration order (which would be
// nondeterministic for maps). Raw returns the parts slice unchanged.
func Compound(parts ...interface{}) Key {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = canonicalString(p)
	}
	repr := fmt.Sprintf("(%v)", strs)
	sum := sha256.Sum256([]byte(repr))
	return Key{digest: hex.EncodeToString(sum[:]), repr: repr, raw: parts}
}

func canonicalString(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return canonicalValue(reflect.ValueOf(v))
}

// canonicalValue builds a deterministic, value-equality-preserving string
// for rv, recursing through maps, slices, structs and boxed interfaces.
// Pointers and other scalar kinds fall through to fmt, which is stable for
// everything this package is ever asked to canonicalise (strings, numbers,
// bools, and pointer addresses).
func canonicalValue(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Invalid:
		return "<nil>"
	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return canonicalValue(rv.Elem())
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return fmt.Sprintf("%p", rv.Interface())
	case reflect.Map:
		type entry struct{ k, v string }
		entries := make([]entry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries = append(entries, entry{canonicalValue(iter.Key()), canonicalValue(iter.Value())})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].k < entries[j].k })
		parts := make([]string, len(entries))
		for i, e := range entries {
			parts[i] = e.k + ":" + e.v
		}
		return "{" + strings.Join(parts, ",") + "}"
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = canonicalValue(rv.Index(i))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case reflect.Struct:
		t := rv.Type()
		parts := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue // unexported; reflect can't read it anyway.
			}
			parts = append(parts, f.Name+":"+canonicalValue(rv.Field(i)))
		}
		return t.Name() + "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%#v", rv.Interface())
	}
}

// Equal reports whether two Keys were derived from value-equal inputs.
func Equal(a, b Key) bool {
	return a.digest == b.digest
}
