// Package leader implements the two block-proposer selection variants of
// spec.md §4.G: probabilistic sortition (variant 1) and deterministic
// weighted rotation (variant 2, frozen as this protocol's canonical
// `SelectLeader`/`VerifyLeader`, see SPEC_FULL.md's Open Question
// decision).
//
// Grounded on luxfi-consensus/utils/sampler's weighted-sampling helpers,
// generalized from stake-weighted committee sampling to a single
// per-slot leader pick.
package leader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/robertrobercik2000-sudo/pqtrust/fixedpoint"
	"github.com/robertrobercik2000-sudo/pqtrust/nodeid"
	"github.com/robertrobercik2000-sudo/pqtrust/randao"
	"github.com/robertrobercik2000-sudo/pqtrust/snapshot"
	"github.com/robertrobercik2000-sudo/pqtrust/trust"
	"github.com/robertrobercik2000-sudo/pqtrust/validators"
	"github.com/robertrobercik2000-sudo/pqtrust/xhash"
)

// NodeID re-exports the shared identifier type.
type NodeID = nodeid.ID

// Variant selects which leader-selection algorithm a deployment runs.
type Variant int

const (
	// VariantDeterministic is variant 2, the frozen protocol default.
	VariantDeterministic Variant = iota
	// VariantSortition is variant 1, fully implemented and tested but not
	// the default.
	VariantSortition
)

var (
	// ErrNotQualified is returned when a witness's owner does not qualify
	// against min_bond in the registry.
	ErrNotQualified = errors.New("leader: validator does not qualify")
	// ErrWitnessInvalid is returned when the Merkle witness fails to verify.
	ErrWitnessInvalid = errors.New("leader: witness verification failed")
	// ErrNotEligible is returned when a candidate's eligibility check fails
	// (sortition threshold, or not the rotation's chosen index).
	ErrNotEligible = errors.New("leader: not eligible for this slot")
)

// Candidate is one qualifying validator's snapshot-derived weight inputs.
type Candidate struct {
	Who    NodeID
	StakeQ fixedpoint.Q
	TrustQ fixedpoint.Q
}

// eligibilityY computes y_v = H(tag=ELIG ‖ beacon ‖ slot(LE8) ‖ who) as a
// big-endian unsigned 256-bit integer.
func eligibilityY(beacon [32]byte, slot uint64, who NodeID) *big.Int {
	digest := xhash.Eligibility(beacon, slot, who)
	return new(big.Int).SetBytes(digest[:])
}

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// sortitionBound maps threshold T (a Q32.32 value in [0, ONE]) linearly
// onto [0, 2^256).
func sortitionBound(t fixedpoint.Q) *big.Int {
	num := new(big.Int).Mul(big.NewInt(int64(t)), twoTo256)
	return num.Rsh(num, 32) // divide by 2^32 (ONE), since t is already /2^32 scaled
}

// BlockWeight computes 2^64 / (low64(y_v) + 1), used for variant-1
// fork-choice tie-breaking.
func BlockWeight(y *big.Int) uint64 {
	low64 := new(big.Int).And(y, new(big.Int).SetUint64(^uint64(0)))
	denom := new(big.Int).Add(low64, big.NewInt(1))
	weight := new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), 64), denom)
	if !weight.IsUint64() {
		return ^uint64(0)
	}
	return weight.Uint64()
}

func sortitionThreshold(lambda, stakeQ, trustQ, sumWeightsQ fixedpoint.Q) fixedpoint.Q {
	denom := sumWeightsQ
	if denom == 0 {
		denom = 1
	}
	ratio := fixedpoint.Div(fixedpoint.Mul(stakeQ, trustQ), denom)
	return fixedpoint.Clamp01(fixedpoint.Mul(lambda, ratio))
}

// SelectSortition evaluates variant 1 over candidates for (epoch, slot)
// and returns the eligible candidates ordered by descending block weight
// (ties broken by ascending NodeId), per spec.md §4.G's fork-choice rule.
func SelectSortition(beacon [32]byte, epoch, slot uint64, lambda fixedpoint.Q, sumWeightsQ fixedpoint.Q, candidates []Candidate) []NodeID {
	type scored struct {
		who    NodeID
		weight uint64
	}
	var eligible []scored
	for _, c := range candidates {
		y := eligibilityY(beacon, slot, c.Who)
		t := sortitionThreshold(lambda, c.StakeQ, c.TrustQ, sumWeightsQ)
		if y.Cmp(sortitionBound(t)) <= 0 {
			eligible = append(eligible, scored{c.Who, BlockWeight(y)})
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].weight != eligible[j].weight {
			return eligible[i].weight > eligible[j].weight
		}
		return eligible[i].who.Less(eligible[j].who)
	})
	out := make([]NodeID, len(eligible))
	for i, e := range eligible {
		out[i] = e.who
	}
	return out
}

// VerifySortition reports whether who is eligible under variant 1 for
// (epoch, slot), given the candidate's own stake/trust inputs.
func VerifySortition(beacon [32]byte, epoch, slot uint64, lambda fixedpoint.Q, sumWeightsQ fixedpoint.Q, who NodeID, stakeQ, trustQ fixedpoint.Q) bool {
	y := eligibilityY(beacon, slot, who)
	t := sortitionThreshold(lambda, stakeQ, trustQ, sumWeightsQ)
	return y.Cmp(sortitionBound(t)) <= 0
}

// rotationWeight computes W_v = (2*trust_q + stake_q) / 3.
func rotationWeight(stakeQ, trustQ fixedpoint.Q) fixedpoint.Q {
	num := fixedpoint.Add(fixedpoint.Add(trustQ, trustQ), stakeQ)
	return fixedpoint.Div(num, 3*fixedpoint.ONE)
}

// SelectDeterministic implements variant 2: sort candidates descending by
// W_v (ties by ascending NodeId), then pick index
// (low64(beacon) + slot) mod len.
func SelectDeterministic(beacon [32]byte, slot uint64, candidates []Candidate) (NodeID, error) {
	if len(candidates) == 0 {
		return NodeID{}, fmt.Errorf("leader: %w: empty candidate set", ErrNotEligible)
	}
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		wi := rotationWeight(ordered[i].StakeQ, ordered[i].TrustQ)
		wj := rotationWeight(ordered[j].StakeQ, ordered[j].TrustQ)
		if wi != wj {
			return wi > wj
		}
		return ordered[i].Who.Less(ordered[j].Who)
	})
	low64 := binary.BigEndian.Uint64(beacon[24:32])
	idx := (low64 + slot) % uint64(len(ordered))
	return ordered[idx].Who, nil
}

// SelectLeader is the frozen protocol default (variant 2).
func SelectLeader(beacon [32]byte, slot uint64, candidates []Candidate) (NodeID, error) {
	return SelectDeterministic(beacon, slot, candidates)
}

// VerifyDeterministic reports whether who is the variant-2 rotation
// winner for (beacon, slot) among candidates.
func VerifyDeterministic(beacon [32]byte, slot uint64, candidates []Candidate, who NodeID) (bool, error) {
	winner, err := SelectDeterministic(beacon, slot, candidates)
	if err != nil {
		return false, err
	}
	return winner == who, nil
}

// VerifyLeader is the frozen protocol default (variant 2).
func VerifyLeader(beacon [32]byte, slot uint64, candidates []Candidate, who NodeID) (bool, error) {
	return VerifyDeterministic(beacon, slot, candidates, who)
}

// VerifyLeaderWithWitness implements spec.md §4.G's
// verify_leader_with_witness: validates who against the registry and the
// snapshot's Merkle witness, recomputes eligibility for the configured
// variant, and — only on success — applies the trust block-reward update
// and returns the resulting block weight (0 for variant 2, which has no
// weight concept).
func VerifyLeaderWithWitness(
	reg *validators.Registry,
	snap *snapshot.Snapshot,
	beac *randao.Beacon,
	tr *trust.State,
	minBond uint64,
	lambda fixedpoint.Q,
	variant Variant,
	epoch, slot uint64,
	witness *snapshot.Witness,
) (uint64, error) {
	entry, ok := reg.Get(witness.Who)
	if !ok || !entry.Qualifies(minBond) {
		return 0, fmt.Errorf("%w: %s", ErrNotQualified, witness.Who)
	}
	if err := snap.VerifyWitness(witness); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWitnessInvalid, err)
	}

	beaconVal := beac.Value(epoch, slot)

	switch variant {
	case VariantSortition:
		if !VerifySortition(beaconVal, epoch, slot, lambda, snap.SumWeightsQ, witness.Who, witness.StakeQ, witness.TrustQ) {
			return 0, fmt.Errorf("%w: %s", ErrNotEligible, witness.Who)
		}
		y := eligibilityY(beaconVal, slot, witness.Who)
		tr.BlockReward(witness.Who)
		return BlockWeight(y), nil
	default:
		candidates := make([]Candidate, 0, len(snap.Order))
		for _, id := range snap.Order {
			candidates = append(candidates, Candidate{
				Who:    id,
				StakeQ: snap.StakeQAtSnapshot[id],
				TrustQ: snap.TrustQAtSnapshot[id],
			})
		}
		ok, err := VerifyDeterministic(beaconVal, slot, candidates, witness.Who)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrNotEligible, witness.Who)
		}
		tr.BlockReward(witness.Who)
		return 0, nil
	}
}
