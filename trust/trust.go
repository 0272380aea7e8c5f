// Package trust implements per-validator trust scoring: the Q32.32 trust
// state map, its block-reward/decay/slash-reset update rules, and the
// lazy first-seen initialization spec.md §3/§4.C describe.
package trust

import (
	"sync"

	"github.com/robertrobercik2000-sudo/pqtrust/fixedpoint"
	"github.com/robertrobercik2000-sudo/pqtrust/nodeid"
)

// Params configures the trust update rule for one chain/epoch set.
type Params struct {
	Alpha fixedpoint.Q
	Beta  fixedpoint.Q
	Init  fixedpoint.Q
}

// NodeID is the 32-byte validator identifier used as the trust map key.
type NodeID = nodeid.ID

// State is a mapping NodeID -> Q, mutated only through BlockReward, Decay
// and SlashReset. Entries are created lazily at Params.Init and never
// removed. Safe for concurrent use; per spec.md §5 the owning consensus
// actor should still serialize writes across an epoch boundary.
type State struct {
	mu     sync.Mutex
	params Params
	scores map[NodeID]fixedpoint.Q
}

// NewState creates an empty trust state under the given params.
func NewState(params Params) *State {
	return &State{
		params: params,
		scores: make(map[NodeID]fixedpoint.Q),
	}
}

// Get returns the current trust for who. Unlike the update methods, Get
// is a pure read: per spec.md §3, a TrustState entry is only created
// lazily "the first time the validator is referenced in a trust-update
// call" — a plain read of an unseen validator returns params.Init without
// inserting it.
func (s *State) Get(who NodeID) fixedpoint.Q {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.scores[who]; ok {
		return v
	}
	return s.params.Init
}

func (s *State) getOrInitLocked(who NodeID) fixedpoint.Q {
	if v, ok := s.scores[who]; ok {
		return v
	}
	s.scores[who] = s.params.Init
	return s.params.Init
}

// BlockReward applies t' = qclamp01(qmul(alpha, t) + beta).
func (s *State) BlockReward(who NodeID) fixedpoint.Q {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.getOrInitLocked(who)
	t2 := fixedpoint.Clamp01(fixedpoint.Add(fixedpoint.Mul(s.params.Alpha, t), s.params.Beta))
	s.scores[who] = t2
	return t2
}

// Decay applies t' = qmul(alpha, t), used once per epoch for validators
// that did not propose or reveal.
func (s *State) Decay(who NodeID) fixedpoint.Q {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.getOrInitLocked(who)
	t2 := fixedpoint.Mul(s.params.Alpha, t)
	s.scores[who] = t2
	return t2
}

// SlashReset resets trust to params.Init, used on equivocation or
// non-reveal. Idempotent: slashing twice in the same epoch is a no-op on
// the second call.
func (s *State) SlashReset(who NodeID) fixedpoint.Q {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[who] = s.params.Init
	return s.params.Init
}

// Snapshot returns a point-in-time copy of the full trust map, for
// components (like snapshot.Build) that need a read-only view without
// holding the State's lock for the duration of their own work.
func (s *State) Snapshot() map[NodeID]fixedpoint.Q {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[NodeID]fixedpoint.Q, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out
}

// Params returns the configured update parameters.
func (s *State) Params() Params {
	return s.params
}
