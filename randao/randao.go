// Package randao implements the per-epoch commit-reveal randomness
// beacon of spec.md §3/§4.F: validators commit to a hidden 32-byte
// preimage, reveal it once the commit window closes, and the revealed
// values are folded into a beacon seed that chains across epochs.
//
// Grounded on luxfi-consensus/ringtail/certificate.go's round-keyed map
// pattern (a mutex-guarded map[uint64]*state, one entry finalized per
// round) and ringtail/interfaces.go's QuantumFinalizer contract, adapted
// here from threshold-signature rounds to RANDAO epochs.
package randao

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robertrobercik2000-sudo/pqtrust/nodeid"
	"github.com/robertrobercik2000-sudo/pqtrust/trust"
	"github.com/robertrobercik2000-sudo/pqtrust/validators"
	"github.com/robertrobercik2000-sudo/pqtrust/xhash"
)

// NodeID re-exports the shared identifier type.
type NodeID = nodeid.ID

var (
	// ErrEpochFinalized is returned by commit/reveal once the epoch is frozen.
	ErrEpochFinalized = errors.New("randao: epoch already finalized")
	// ErrAlreadyCommitted is returned by commit for a repeat committer.
	ErrAlreadyCommitted = errors.New("randao: validator already committed")
	// ErrAlreadyRevealed is returned by reveal for a repeat revealer.
	ErrAlreadyRevealed = errors.New("randao: validator already revealed")
	// ErrNoCommitment is returned by reveal when who never committed.
	ErrNoCommitment = errors.New("randao: no prior commitment")
	// ErrCommitmentMismatch is returned when the revealed preimage does not
	// hash to the stored commitment.
	ErrCommitmentMismatch = errors.New("randao: revealed preimage does not match commitment")
	// ErrAlreadyFinalized is returned by FinalizeEpoch on a double-finalize.
	ErrAlreadyFinalized = errors.New("randao: epoch already finalized")
)

// Commit computes H_commit(epoch, who, preimage) per spec.md §4.B.
func Commit(epoch uint64, who NodeID, preimage [32]byte) [32]byte {
	return xhash.Commit(epoch, who, preimage)
}

// epochState is spec.md's BeaconEpochState.
type epochState struct {
	base        [32]byte // prev_beacon captured at this epoch's creation
	commitments map[NodeID][32]byte
	reveals     map[NodeID][32]byte
	order       []NodeID // commit order, preserved for deterministic missing-set iteration
	seed        [32]byte
	finalized   bool
}

// Beacon is spec.md's RandaoBeacon: a chained sequence of per-epoch
// commit-reveal rounds.
type Beacon struct {
	mu               sync.Mutex
	epochs           map[uint64]*epochState
	prevBeacon       [32]byte
	slashNoRevealBps uint32
}

// New returns a beacon with the zero seed as the genesis prev_beacon.
func New(slashNoRevealBps uint32) *Beacon {
	return &Beacon{
		epochs:           make(map[uint64]*epochState),
		slashNoRevealBps: slashNoRevealBps,
	}
}

func (b *Beacon) epochLocked(e uint64) *epochState {
	st, ok := b.epochs[e]
	if !ok {
		st = &epochState{
			base:        b.prevBeacon,
			commitments: make(map[NodeID][32]byte),
			reveals:     make(map[NodeID][32]byte),
		}
		b.epochs[e] = st
	}
	return st
}

// CommitReveal stores c for who in epoch e. Fails if e is finalized or who
// already committed this epoch.
func (b *Beacon) CommitReveal(e uint64, who NodeID, c [32]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.epochLocked(e)
	if st.finalized {
		return fmt.Errorf("%w: epoch %d", ErrEpochFinalized, e)
	}
	if _, ok := st.commitments[who]; ok {
		return fmt.Errorf("%w: %s in epoch %d", ErrAlreadyCommitted, who, e)
	}
	st.commitments[who] = c
	st.order = append(st.order, who)
	return nil
}

// Reveal stores the preimage r for who in epoch e, verifying it against
// who's stored commitment.
func (b *Beacon) Reveal(e uint64, who NodeID, r [32]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.epochLocked(e)
	if st.finalized {
		return fmt.Errorf("%w: epoch %d", ErrEpochFinalized, e)
	}
	c, ok := st.commitments[who]
	if !ok {
		return fmt.Errorf("%w: %s in epoch %d", ErrNoCommitment, who, e)
	}
	if _, ok := st.reveals[who]; ok {
		return fmt.Errorf("%w: %s in epoch %d", ErrAlreadyRevealed, who, e)
	}
	if Commit(e, who, r) != c {
		return fmt.Errorf("%w: %s in epoch %d", ErrCommitmentMismatch, who, e)
	}
	st.reveals[who] = r
	return nil
}

// FinalizeEpoch folds every reveal for e (in NodeId order) into the
// chained beacon seed, freezes the epoch, and returns the committers who
// never revealed.
func (b *Beacon) FinalizeEpoch(e uint64) (missing []NodeID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.epochLocked(e)
	if st.finalized {
		return nil, fmt.Errorf("%w: epoch %d", ErrAlreadyFinalized, e)
	}

	revealers := make([]NodeID, 0, len(st.reveals))
	for who := range st.reveals {
		revealers = append(revealers, who)
	}
	nodeid.Sort(revealers)

	acc := st.base
	for _, who := range revealers {
		acc = xhash.Mix(acc, who, st.reveals[who])
	}

	for _, who := range st.order {
		if _, revealed := st.reveals[who]; !revealed {
			missing = append(missing, who)
		}
	}
	nodeid.Sort(missing)

	st.seed = acc
	st.finalized = true
	b.prevBeacon = acc

	return missing, nil
}

// FinalizeEpochAndSlash finalizes e and applies slash_noreveal_bps to
// every missing committer's stake, resetting their trust to params.Init.
func (b *Beacon) FinalizeEpochAndSlash(e uint64, reg *validators.Registry, tr *trust.State) ([]NodeID, error) {
	missing, err := b.FinalizeEpoch(e)
	if err != nil {
		return nil, err
	}
	for _, who := range missing {
		reg.SlashBasisPoints(who, b.slashNoRevealBps)
		tr.SlashReset(who)
	}
	return missing, nil
}

// Value returns the per-slot eligibility seed for (e, slot), always derived
// from the base captured when e was first touched (prev_beacon at that
// time). This is what keeps Value(e, slot) stable across e's own
// finalization: epoch e+1 picks up the newly finalized seed on its own
// first touch, via prevBeacon inside epochLocked, but e itself never
// switches bases mid-flight.
func (b *Beacon) Value(e uint64, slot uint64) [32]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.epochLocked(e)
	return xhash.EligSeed(st.base, slot)
}

// PrevBeacon returns the most recently finalized chained seed.
func (b *Beacon) PrevBeacon() [32]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prevBeacon
}
