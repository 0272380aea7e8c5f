package leader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robertrobercik2000-sudo/pqtrust/fixedpoint"
	"github.com/robertrobercik2000-sudo/pqtrust/randao"
	"github.com/robertrobercik2000-sudo/pqtrust/snapshot"
	"github.com/robertrobercik2000-sudo/pqtrust/trust"
	"github.com/robertrobercik2000-sudo/pqtrust/validators"
)

func snapshotOf(t *testing.T, reg *validators.Registry, tr *trust.State, tp trust.Params) *snapshot.Snapshot {
	t.Helper()
	return snapshot.Build(0, reg, tr, tp, 1)
}

func candidatesOf(snap *snapshot.Snapshot) []Candidate {
	out := make([]Candidate, 0, len(snap.Order))
	for _, id := range snap.Order {
		out = append(out, Candidate{
			Who:    id,
			StakeQ: snap.StakeQAtSnapshot[id],
			TrustQ: snap.TrustQAtSnapshot[id],
		})
	}
	return out
}

func mkID(b byte) NodeID {
	var id NodeID
	id[0] = b
	return id
}

func trustParams() trust.Params {
	return trust.Params{
		Alpha: fixedpoint.FromRatio(99, 100),
		Beta:  fixedpoint.FromRatio(1, 100),
		Init:  fixedpoint.FromRatio(1, 10),
	}
}

func TestSelectDeterministicPicksSameLeaderEveryTime(t *testing.T) {
	candidates := []Candidate{
		{Who: mkID(1), StakeQ: fixedpoint.FromRatio(1, 2), TrustQ: fixedpoint.FromRatio(1, 2)},
		{Who: mkID(2), StakeQ: fixedpoint.FromRatio(1, 3), TrustQ: fixedpoint.FromRatio(2, 3)},
		{Who: mkID(3), StakeQ: fixedpoint.FromRatio(1, 6), TrustQ: fixedpoint.FromRatio(1, 6)},
	}
	var beacon [32]byte
	beacon[31] = 7

	l1, err := SelectLeader(beacon, 5, candidates)
	require.NoError(t, err)
	l2, err := SelectLeader(beacon, 5, candidates)
	require.NoError(t, err)
	require.Equal(t, l1, l2)
}

func TestSelectDeterministicVariesBySlot(t *testing.T) {
	candidates := []Candidate{
		{Who: mkID(1), StakeQ: fixedpoint.FromRatio(1, 3), TrustQ: fixedpoint.FromRatio(1, 3)},
		{Who: mkID(2), StakeQ: fixedpoint.FromRatio(1, 3), TrustQ: fixedpoint.FromRatio(1, 3)},
		{Who: mkID(3), StakeQ: fixedpoint.FromRatio(1, 3), TrustQ: fixedpoint.FromRatio(1, 3)},
	}
	var beacon [32]byte
	beacon[31] = 1

	seen := map[NodeID]bool{}
	for slot := uint64(0); slot < 3; slot++ {
		leader, err := SelectLeader(beacon, slot, candidates)
		require.NoError(t, err)
		seen[leader] = true
	}
	// with 3 equally weighted candidates and consecutive slots, rotation
	// should visit more than one distinct leader.
	require.Greater(t, len(seen), 1)
}

func TestSelectDeterministicEmptyCandidatesErrors(t *testing.T) {
	var beacon [32]byte
	_, err := SelectLeader(beacon, 0, nil)
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestVerifyDeterministicAgreesWithSelect(t *testing.T) {
	candidates := []Candidate{
		{Who: mkID(1), StakeQ: fixedpoint.FromRatio(2, 3), TrustQ: fixedpoint.FromRatio(2, 3)},
		{Who: mkID(2), StakeQ: fixedpoint.FromRatio(1, 3), TrustQ: fixedpoint.FromRatio(1, 3)},
	}
	var beacon [32]byte
	beacon[31] = 42

	winner, err := SelectLeader(beacon, 3, candidates)
	require.NoError(t, err)

	ok, err := VerifyLeader(beacon, 3, candidates, winner)
	require.NoError(t, err)
	require.True(t, ok)

	loser := mkID(1)
	if winner == loser {
		loser = mkID(2)
	}
	ok, err = VerifyLeader(beacon, 3, candidates, loser)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifySortitionDeterministic(t *testing.T) {
	var beacon [32]byte
	beacon[0] = 0xAB
	lambda := fixedpoint.ONE
	sumWeights := fixedpoint.FromRatio(1, 1)
	who := mkID(1)
	stakeQ := fixedpoint.ONE
	trustQ := fixedpoint.ONE

	r1 := VerifySortition(beacon, 0, 1, lambda, sumWeights, who, stakeQ, trustQ)
	r2 := VerifySortition(beacon, 0, 1, lambda, sumWeights, who, stakeQ, trustQ)
	require.Equal(t, r1, r2)
}

func TestSortitionZeroLambdaNeverEligible(t *testing.T) {
	var beacon [32]byte
	who := mkID(1)
	ok := VerifySortition(beacon, 0, 1, 0, fixedpoint.ONE, who, fixedpoint.ONE, fixedpoint.ONE)
	require.False(t, ok)
}

func TestSortitionFullLambdaFullWeightAlwaysEligible(t *testing.T) {
	var beacon [32]byte
	who := mkID(1)
	// lambda=1, stake=1, trust=1, sum_weights=1 => T=1 => bound=2^256, every y qualifies
	ok := VerifySortition(beacon, 0, 1, fixedpoint.ONE, fixedpoint.ONE, who, fixedpoint.ONE, fixedpoint.ONE)
	require.True(t, ok)
}

func TestBlockWeightWellDefined(t *testing.T) {
	lowY := eligibilityY([32]byte{0: 1}, 1, mkID(1))
	highY := eligibilityY([32]byte{0: 2}, 1, mkID(1))
	// not strictly ordered by construction, but weight must be well-defined
	require.NotPanics(t, func() {
		_ = BlockWeight(lowY)
		_ = BlockWeight(highY)
	})
}

func TestVerifyLeaderWithWitnessAppliesTrustOnSuccess(t *testing.T) {
	reg := validators.New()
	a, b := mkID(1), mkID(2)
	reg.Insert(a, 500_000, true)
	reg.Insert(b, 500_000, true)

	tp := trustParams()
	tr := trust.NewState(tp)

	snap := snapshotOf(t, reg, tr, tp)
	beac := randao.New(2000)

	winner, err := SelectLeader(beac.Value(0, 0), 0, candidatesOf(snap))
	require.NoError(t, err)

	witness, err := snap.BuildWitness(winner)
	require.NoError(t, err)

	before := tr.Get(winner)
	weight, err := VerifyLeaderWithWitness(reg, snap, beac, tr, 1, fixedpoint.ONE, VariantDeterministic, 0, 0, witness)
	require.NoError(t, err)
	require.Equal(t, uint64(0), weight)

	after := tr.Get(winner)
	require.NotEqual(t, before, after)
}

func TestVerifyLeaderWithWitnessRejectsNonLeaderWithoutMutatingTrust(t *testing.T) {
	reg := validators.New()
	a, b := mkID(1), mkID(2)
	reg.Insert(a, 500_000, true)
	reg.Insert(b, 500_000, true)

	tp := trustParams()
	tr := trust.NewState(tp)

	snap := snapshotOf(t, reg, tr, tp)
	beac := randao.New(2000)

	winner, err := SelectLeader(beac.Value(0, 0), 0, candidatesOf(snap))
	require.NoError(t, err)
	loser := a
	if winner == a {
		loser = b
	}

	witness, err := snap.BuildWitness(loser)
	require.NoError(t, err)

	before := tr.Get(loser)
	_, err = VerifyLeaderWithWitness(reg, snap, beac, tr, 1, fixedpoint.ONE, VariantDeterministic, 0, 0, witness)
	require.ErrorIs(t, err, ErrNotEligible)
	require.Equal(t, before, tr.Get(loser))
}

func TestVerifyLeaderWithWitnessRejectsNonQualifying(t *testing.T) {
	reg := validators.New()
	a := mkID(1)
	reg.Insert(a, 1_000_000, true)

	tp := trustParams()
	tr := trust.NewState(tp)
	// build the snapshot with a low min_bond so a is included...
	snap := snapshotOf(t, reg, tr, tp)
	beac := randao.New(2000)

	witness, err := snap.BuildWitness(a)
	require.NoError(t, err)

	// ...but verify against a much higher min_bond so a no longer qualifies.
	_, err = VerifyLeaderWithWitness(reg, snap, beac, tr, 10_000_000, fixedpoint.ONE, VariantDeterministic, 0, 0, witness)
	require.ErrorIs(t, err, ErrNotQualified)
}
