// Package validators implements the stake ledger and active-set
// membership described in spec.md §3/§4.D: a mapping from NodeID to
// RegistryEntry, mutated by staking/unstaking and by the slashing paths
// in components F and H.
//
// Adapted from luxfi-consensus/validators/validators.go's Manager/Set
// shape: a narrow interface in front of a map, with weight mutation
// helpers like validators/new.go's SetWeight/RemoveWeight.
package validators

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/robertrobercik2000-sudo/pqtrust/nodeid"
)

// NodeID re-exports the shared 32-byte identifier type.
type NodeID = nodeid.ID

// Entry mirrors spec.md's RegistryEntry: {who, stake, active}.
type Entry struct {
	Who    NodeID
	Stake  uint64
	Active bool
}

// Qualifies reports whether e is active and meets the minimum bond.
func (e Entry) Qualifies(minBond uint64) bool {
	return e.Active && e.Stake >= minBond
}

// Registry is a mapping NodeID -> Entry, safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[NodeID]*Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[NodeID]*Entry)}
}

// Insert adds or replaces the entry for who.
func (r *Registry) Insert(who NodeID, stake uint64, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[who] = &Entry{Who: who, Stake: stake, Active: active}
}

// Get returns a copy of the entry for who, if present.
func (r *Registry) Get(who NodeID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[who]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetActive flips the active flag for who.
func (r *Registry) SetActive(who NodeID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[who]
	if !ok {
		return fmt.Errorf("validators: %s not found", who)
	}
	e.Active = active
	return nil
}

// Stake returns the current stake for who, or 0 if absent.
func (r *Registry) Stake(who NodeID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[who]
	if !ok {
		return 0
	}
	return e.Stake
}

// StakeMut applies fn to who's current stake and stores the result.
// fn receives 0 if who is not yet present, which creates them inactive;
// call Insert first if a caller wants a new validator to start active.
func (r *Registry) StakeMut(who NodeID, fn func(current uint64) uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[who]
	if !ok {
		e = &Entry{Who: who}
		r.entries[who] = e
	}
	e.Stake = fn(e.Stake)
}

// SlashBasisPoints reduces who's stake by floor(stake*bps/10000),
// saturating at zero. Returns the amount actually cut. Idempotent in the
// sense that slashing an already-zero stake is a safe no-op.
func (r *Registry) SlashBasisPoints(who NodeID, bps uint32) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[who]
	if !ok {
		return 0
	}
	hi, lo := bits.Mul64(e.Stake, uint64(bps))
	cut, _ := bits.Div64(hi, lo, 10000)
	if cut > e.Stake {
		cut = e.Stake
	}
	e.Stake -= cut
	return cut
}

// QualifyingSet returns every entry that is active and meets minBond, in
// arbitrary order; callers that need a canonical order (e.g. snapshot
// building) must sort the result themselves.
func (r *Registry) QualifyingSet(minBond uint64) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Qualifies(minBond) {
			out = append(out, *e)
		}
	}
	return out
}

// All returns every entry in the registry, qualifying or not.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of validators tracked, active or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
