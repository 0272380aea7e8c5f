// Package snapshot builds the immutable, Merkle-committed per-epoch
// weight distribution described in spec.md §3/§4.E, and the compact
// inclusion witnesses verifiers replay against its root.
//
// Grounded on luxfi-consensus/ringtail/certificate.go's Certificate: an
// immutable-once-built struct guarded by a mutex, with a fixed-offset
// Serialize() method — generalized here to a Merkle-committed validator
// weight table instead of a threshold-signature share bundle.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/robertrobercik2000-sudo/pqtrust/fixedpoint"
	"github.com/robertrobercik2000-sudo/pqtrust/nodeid"
	"github.com/robertrobercik2000-sudo/pqtrust/trust"
	"github.com/robertrobercik2000-sudo/pqtrust/validators"
	"github.com/robertrobercik2000-sudo/pqtrust/xhash"
)

// NodeID re-exports the shared identifier type.
type NodeID = nodeid.ID

var (
	// ErrNotPresent is returned by BuildWitness for an unknown validator.
	ErrNotPresent = errors.New("snapshot: validator not present")
	// ErrMerkleVerifyFailed is returned by VerifyWitness when the sibling
	// path does not reproduce the snapshot's weights_root, or the
	// witness's stored (stake_q, trust_q) do not match the snapshot.
	ErrMerkleVerifyFailed = errors.New("snapshot: merkle verification failed")
)

// Snapshot is the immutable artifact built once per epoch (spec.md §3
// EpochSnapshot).
type Snapshot struct {
	Epoch            uint64
	Order            []NodeID
	StakeQAtSnapshot map[NodeID]fixedpoint.Q
	TrustQAtSnapshot map[NodeID]fixedpoint.Q
	SumWeightsQ      fixedpoint.Q
	Leaves           [][xhash.Size]byte
	WeightsRoot      [xhash.Size]byte

	index map[NodeID]int
}

// Build constructs the snapshot for epoch from the current registry and
// trust state. Trust is read only (never written) here, per spec.md
// §4.E step 1. Non-qualifying validators are silently excluded.
func Build(epoch uint64, reg *validators.Registry, tr *trust.State, params trust.Params, minBond uint64) *Snapshot {
	qualifying := reg.QualifyingSet(minBond)

	order := make([]NodeID, 0, len(qualifying))
	stakeOf := make(map[NodeID]uint64, len(qualifying))
	for _, e := range qualifying {
		order = append(order, e.Who)
		stakeOf[e.Who] = e.Stake
	}
	nodeid.Sort(order)

	var rawSum uint64
	for _, who := range order {
		rawSum += stakeOf[who]
	}

	stakeQ := make(map[NodeID]fixedpoint.Q, len(order))
	trustQ := make(map[NodeID]fixedpoint.Q, len(order))
	leaves := make([][xhash.Size]byte, len(order))
	var sumWeights fixedpoint.Q

	_ = params // trust.Get already knows params.Init internally via tr
	for i, who := range order {
		sq := fixedpoint.FromRatio(stakeOf[who], rawSum)
		tq := tr.Get(who)
		stakeQ[who] = sq
		trustQ[who] = tq
		leaves[i] = xhash.Leaf(who, uint64(sq), uint64(tq))
		sumWeights = fixedpoint.Add(sumWeights, fixedpoint.Mul(sq, tq))
	}

	root, _ := buildTree(leaves)

	index := make(map[NodeID]int, len(order))
	for i, who := range order {
		index[who] = i
	}

	return &Snapshot{
		Epoch:            epoch,
		Order:            order,
		StakeQAtSnapshot: stakeQ,
		TrustQAtSnapshot: trustQ,
		SumWeightsQ:      sumWeights,
		Leaves:           leaves,
		WeightsRoot:      root,
		index:            index,
	}
}

// buildTree builds the binary Merkle tree bottom-up, duplicating the last
// node of an odd layer, and returns (root, all layers including leaves).
func buildTree(leaves [][xhash.Size]byte) ([xhash.Size]byte, [][][xhash.Size]byte) {
	if len(leaves) == 0 {
		return xhash.EmptyLeaves(), nil
	}
	layers := [][][xhash.Size]byte{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([][xhash.Size]byte, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, xhash.Node(cur[i], cur[i+1]))
			} else {
				next = append(next, xhash.Node(cur[i], cur[i]))
			}
		}
		layers = append(layers, next)
		cur = next
	}
	return cur[0], layers
}

// Witness is spec.md's MerkleWitness / WeightWitnessV1.
type Witness struct {
	Who        NodeID
	StakeQ     fixedpoint.Q
	TrustQ     fixedpoint.Q
	LeafIndex  int
	Siblings   [][xhash.Size]byte
}

// BuildWitness returns the inclusion proof for who against s.
func (s *Snapshot) BuildWitness(who NodeID) (*Witness, error) {
	idx, ok := s.index[who]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPresent, who)
	}
	_, layers := buildTree(s.Leaves)

	siblings := make([][xhash.Size]byte, 0, len(layers)-1)
	pos := idx
	for layer := 0; layer < len(layers)-1; layer++ {
		level := layers[layer]
		var siblingPos int
		if pos%2 == 0 {
			siblingPos = pos + 1
			if siblingPos >= len(level) {
				siblingPos = pos // odd layer duplicates itself
			}
		} else {
			siblingPos = pos - 1
		}
		siblings = append(siblings, level[siblingPos])
		pos /= 2
	}

	return &Witness{
		Who:       who,
		StakeQ:    s.StakeQAtSnapshot[who],
		TrustQ:    s.TrustQAtSnapshot[who],
		LeafIndex: idx,
		Siblings:  siblings,
	}, nil
}

// VerifyWitness checks w against s: replays the sibling path from
// H_leaf(...) and confirms it reproduces s.WeightsRoot, and that the
// witness's (stake_q, trust_q) match the snapshot's stored values.
func (s *Snapshot) VerifyWitness(w *Witness) error {
	storedStake, ok := s.StakeQAtSnapshot[w.Who]
	if !ok || storedStake != w.StakeQ {
		return ErrMerkleVerifyFailed
	}
	storedTrust, ok := s.TrustQAtSnapshot[w.Who]
	if !ok || storedTrust != w.TrustQ {
		return ErrMerkleVerifyFailed
	}

	cur := xhash.Leaf(w.Who, uint64(w.StakeQ), uint64(w.TrustQ))
	pos := w.LeafIndex
	for _, sib := range w.Siblings {
		if pos%2 == 0 {
			cur = xhash.Node(cur, sib)
		} else {
			cur = xhash.Node(sib, cur)
		}
		pos /= 2
	}
	if cur != s.WeightsRoot {
		return ErrMerkleVerifyFailed
	}
	return nil
}

// VerifyWitnessAgainstRoot verifies w independent of a locally held
// Snapshot object (e.g. a remote verifier that only has the root and the
// witness, not the full validator set).
func VerifyWitnessAgainstRoot(root [xhash.Size]byte, w *Witness) error {
	cur := xhash.Leaf(w.Who, uint64(w.StakeQ), uint64(w.TrustQ))
	pos := w.LeafIndex
	for _, sib := range w.Siblings {
		if pos%2 == 0 {
			cur = xhash.Node(cur, sib)
		} else {
			cur = xhash.Node(sib, cur)
		}
		pos /= 2
	}
	if cur != root {
		return ErrMerkleVerifyFailed
	}
	return nil
}
