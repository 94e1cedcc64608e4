// Package meshid resolves geographic mesh keys to dense array indices and
// back, using a minimal perfect hash built once over the store's fixed mesh
// universe.
package meshid

import (
	"errors"
	"fmt"
)

// NotFound is the sentinel index returned by Resolve when a key is outside
// the universe or fails the post-hash verification.
const NotFound = ^uint32(0)

// ExceptionKey is the single documented 10-digit mesh key that does not fit
// the normal 9-digit decimal range. It is wired to the last dense index of
// the universe rather than rejected. Callers that build a universe for a
// withException=true resolver (see NewResolver) must place this key at the
// final index themselves; Verify checks that they did.
const ExceptionKey uint32 = 684827214

// digitLow and digitHigh bound the legal 9-digit decimal key range
// [10^8, 10^9).
const (
	digitLow  uint32 = 100000000
	digitHigh uint32 = 999999999
)

var (
	// ErrEmptyUniverse is returned when a resolver is built over zero keys.
	ErrEmptyUniverse = errors.New("meshid: universe must contain at least one key")
	// ErrIntegrityCheck is returned when the hash table and universe list
	// disagree after construction or after being loaded from a store.
	ErrIntegrityCheck = errors.New("meshid: universe/hash integrity check failed")
)

// Resolver maps a fixed universe of mesh keys to dense indices in [0, N)
// using a minimal perfect hash, and back via a plain array lookup.
//
// A Resolver is built once per opened store and is safe for concurrent
// Resolve/Reverse calls; it holds no mutable state after construction.
type Resolver struct {
	universe []uint32
	table    *Table
	// exceptionIndex is the dense index the exceptional 10-digit key
	// resolves to; it is always len(universe)-1 for the full-universe
	// resolver, but local subset resolvers may not carry the exception
	// at all, hence the separate hasException flag.
	exceptionIndex uint32
	hasException   bool
}

// NewResolver builds a Resolver over universe, constructing a minimal
// perfect hash and then verifying it (invariant I3: U[resolve(k)] == k for
// every k in universe) before returning.
//
// withException controls whether the documented 10-digit key exception is
// wired to the final index of universe; the full mesh-universe resolver
// passes true, local subset resolvers pass false.
func NewResolver(universe []uint32, withException bool) (*Resolver, error) {
	if len(universe) == 0 {
		return nil, ErrEmptyUniverse
	}

	table, err := BuildTable(universe)
	if err != nil {
		return nil, fmt.Errorf("meshid: build minimal perfect hash: %w", err)
	}

	r := &Resolver{universe: universe, table: table}
	if withException {
		r.exceptionIndex = uint32(len(universe) - 1)
		r.hasException = true
	}

	if err := r.Verify(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadResolver reconstructs a Resolver from a previously persisted table
// (see Table.Marshal) and the universe list read back from the store. It
// re-runs the same integrity check NewResolver does, since a corrupted
// store file is exactly the condition I3 exists to catch.
func LoadResolver(universe []uint32, tableBytes []byte, withException bool) (*Resolver, error) {
	if len(universe) == 0 {
		return nil, ErrEmptyUniverse
	}
	table, err := UnmarshalTable(tableBytes)
	if err != nil {
		return nil, fmt.Errorf("meshid: load minimal perfect hash: %w", err)
	}
	r := &Resolver{universe: universe, table: table}
	if withException {
		r.exceptionIndex = uint32(len(universe) - 1)
		r.hasException = true
	}
	if err := r.Verify(); err != nil {
		return nil, err
	}
	return r, nil
}

// Len returns the size of the universe, N.
func (r *Resolver) Len() int { return len(r.universe) }

// TableBytes returns the serialized minimal perfect hash parameters, the
// opaque blob that the store façade persists as cmph_data.
func (r *Resolver) TableBytes() []byte { return r.table.Marshal() }

// Resolve maps key to its dense index, or NotFound.
//
// Inputs outside the legal 9-digit decimal range are rejected immediately,
// except for the single hard-coded 10-digit exception. Everything that
// survives that filter is run through the minimal perfect hash and then
// verified against the universe list; a hash collision with a key outside
// the universe is caught here and turned into NotFound rather than a wrong
// answer.
func (r *Resolver) Resolve(key uint32) uint32 {
	if r.hasException && key == ExceptionKey {
		return r.exceptionIndex
	}
	if key < digitLow || key > digitHigh {
		return NotFound
	}

	idx := r.table.Index(key)
	if idx >= uint32(len(r.universe)) || r.universe[idx] != key {
		return NotFound
	}
	return idx
}

// Reverse maps a dense index back to its mesh key via direct array lookup.
// The second return value is false if index is out of bounds.
func (r *Resolver) Reverse(index uint32) (uint32, bool) {
	if index >= uint32(len(r.universe)) {
		return 0, false
	}
	return r.universe[index], true
}

// Verify checks invariant I3 for every key in the universe: the hash must
// route each key back to the slot that actually holds it. When the resolver
// carries the exceptional key, it also checks that the universe actually
// places ExceptionKey at exceptionIndex — Resolve trusts that placement
// unconditionally, so a universe that doesn't honor it would make
// Reverse(Resolve(ExceptionKey)) silently return the wrong key instead of
// ExceptionKey. Verify is run once at construction/load time, not on every
// Resolve call.
func (r *Resolver) Verify() error {
	for want, key := range r.universe {
		got := r.table.Index(key)
		if int(got) != want {
			return fmt.Errorf("%w: key %d hashes to %d, expected %d", ErrIntegrityCheck, key, got, want)
		}
	}
	if r.hasException {
		if r.exceptionIndex >= uint32(len(r.universe)) || r.universe[r.exceptionIndex] != ExceptionKey {
			return fmt.Errorf("%w: exception index %d does not hold key %d", ErrIntegrityCheck, r.exceptionIndex, ExceptionKey)
		}
	}
	return nil
}
