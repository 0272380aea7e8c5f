// Package slashing implements equivocation detection and the stake/trust
// penalty applied to equivocating proposers, per spec.md §3/§4.H.
//
// Grounded on luxfi-consensus/validators/new.go's weight-mutation style
// (direct, narrow helpers over the registry) generalized here to a
// misbehavior-detection-and-penalty pair.
package slashing

import (
	"github.com/robertrobercik2000-sudo/pqtrust/nodeid"
	"github.com/robertrobercik2000-sudo/pqtrust/trust"
	"github.com/robertrobercik2000-sudo/pqtrust/validators"
)

// NodeID re-exports the shared identifier type.
type NodeID = nodeid.ID

// Proposal is spec.md's Proposal: a claim by Who to have produced the
// block at Slot with the given header hash.
type Proposal struct {
	Who        NodeID
	Slot       uint64
	HeaderHash [32]byte
}

// slotWho is the partition key detect_equivocation groups proposals by.
type slotWho struct {
	Slot uint64
	Who  NodeID
}

// DetectEquivocation partitions proposals by (slot, who) and returns every
// NodeID for which some slot saw 2 or more distinct header hashes, along
// with a bool reporting whether any equivocation was found at all.
func DetectEquivocation(proposals []Proposal) (equivocators []NodeID, found bool) {
	seen := make(map[slotWho]map[[32]byte]bool)
	for _, p := range proposals {
		key := slotWho{Slot: p.Slot, Who: p.Who}
		if seen[key] == nil {
			seen[key] = make(map[[32]byte]bool)
		}
		seen[key][p.HeaderHash] = true
	}

	flagged := make(map[NodeID]bool)
	for key, hashes := range seen {
		if len(hashes) >= 2 {
			flagged[key.Who] = true
		}
	}

	equivocators = make([]NodeID, 0, len(flagged))
	for who := range flagged {
		equivocators = append(equivocators, who)
	}
	nodeid.Sort(equivocators)
	return equivocators, len(equivocators) > 0
}

// SlashEquivocation applies penaltyBps to who's stake (saturating at
// zero) and resets who's trust to params.Init. Idempotent: slashing an
// already-zeroed stake in the same epoch is a safe no-op.
func SlashEquivocation(reg *validators.Registry, tr *trust.State, who NodeID, params trust.Params, penaltyBps uint32) uint64 {
	_ = params // trust.SlashReset reads params.Init internally via tr
	cut := reg.SlashBasisPoints(who, penaltyBps)
	tr.SlashReset(who)
	return cut
}
