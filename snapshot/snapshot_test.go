package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robertrobercik2000-sudo/pqtrust/fixedpoint"
	"github.com/robertrobercik2000-sudo/pqtrust/trust"
	"github.com/robertrobercik2000-sudo/pqtrust/validators"
)

func mkID(b byte) NodeID {
	var id NodeID
	id[0] = b
	return id
}

func params() trust.Params {
	return trust.Params{
		Alpha: fixedpoint.FromRatio(99, 100),
		Beta:  fixedpoint.FromRatio(1, 100),
		Init:  fixedpoint.FromRatio(1, 10),
	}
}

func TestBuildExcludesNonQualifying(t *testing.T) {
	reg := validators.New()
	a, b, c := mkID(1), mkID(2), mkID(3)
	reg.Insert(a, 1_000_000, true)
	reg.Insert(b, 10, true)     // below min bond
	reg.Insert(c, 2_000_000, false) // inactive

	tr := trust.NewState(params())
	snap := Build(7, reg, tr, params(), 1_000)

	require.Equal(t, uint64(7), snap.Epoch)
	require.Len(t, snap.Order, 1)
	require.Equal(t, a, snap.Order[0])
}

func TestBuildDeterministicOrdering(t *testing.T) {
	reg := validators.New()
	a, b, c := mkID(3), mkID(1), mkID(2)
	reg.Insert(a, 100, true)
	reg.Insert(b, 100, true)
	reg.Insert(c, 100, true)

	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	require.Equal(t, []NodeID{mkID(1), mkID(2), mkID(3)}, snap.Order)
}

func TestWeightsRootChangesWithStake(t *testing.T) {
	regA := validators.New()
	a := mkID(1)
	regA.Insert(a, 100, true)
	trA := trust.NewState(params())
	snapA := Build(1, regA, trA, params(), 1)

	regB := validators.New()
	regB.Insert(a, 200, true)
	trB := trust.NewState(params())
	snapB := Build(1, regB, trB, params(), 1)

	require.NotEqual(t, snapA.WeightsRoot, snapB.WeightsRoot)
}

func TestWitnessRoundTripSingleValidator(t *testing.T) {
	reg := validators.New()
	a := mkID(1)
	reg.Insert(a, 500, true)
	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	w, err := snap.BuildWitness(a)
	require.NoError(t, err)
	require.NoError(t, snap.VerifyWitness(w))
	require.NoError(t, VerifyWitnessAgainstRoot(snap.WeightsRoot, w))
}

func TestWitnessRoundTripMultipleValidators(t *testing.T) {
	reg := validators.New()
	ids := []NodeID{mkID(1), mkID(2), mkID(3), mkID(4), mkID(5)}
	for i, id := range ids {
		reg.Insert(id, uint64(100*(i+1)), true)
	}
	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	for _, id := range ids {
		w, err := snap.BuildWitness(id)
		require.NoError(t, err)
		require.NoError(t, snap.VerifyWitness(w))
		require.NoError(t, VerifyWitnessAgainstRoot(snap.WeightsRoot, w))
	}
}

func TestWitnessRejectsUnknownValidator(t *testing.T) {
	reg := validators.New()
	a := mkID(1)
	reg.Insert(a, 500, true)
	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	_, err := snap.BuildWitness(mkID(9))
	require.ErrorIs(t, err, ErrNotPresent)
}

func TestWitnessRejectsTamperedStake(t *testing.T) {
	reg := validators.New()
	ids := []NodeID{mkID(1), mkID(2), mkID(3)}
	for i, id := range ids {
		reg.Insert(id, uint64(100*(i+1)), true)
	}
	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	w, err := snap.BuildWitness(ids[0])
	require.NoError(t, err)

	w.StakeQ = w.StakeQ + 1
	require.ErrorIs(t, snap.VerifyWitness(w), ErrMerkleVerifyFailed)
	require.ErrorIs(t, VerifyWitnessAgainstRoot(snap.WeightsRoot, w), ErrMerkleVerifyFailed)
}

func TestWitnessRejectsTamperedSibling(t *testing.T) {
	reg := validators.New()
	ids := []NodeID{mkID(1), mkID(2), mkID(3), mkID(4)}
	for i, id := range ids {
		reg.Insert(id, uint64(100*(i+1)), true)
	}
	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	w, err := snap.BuildWitness(ids[0])
	require.NoError(t, err)
	require.NotEmpty(t, w.Siblings)

	w.Siblings[0][0] ^= 0xFF
	require.ErrorIs(t, snap.VerifyWitness(w), ErrMerkleVerifyFailed)
}

func TestSumWeightsQMatchesManualSum(t *testing.T) {
	reg := validators.New()
	ids := []NodeID{mkID(1), mkID(2)}
	reg.Insert(ids[0], 300, true)
	reg.Insert(ids[1], 700, true)
	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	var manual fixedpoint.Q
	for _, id := range ids {
		manual = fixedpoint.Add(manual, fixedpoint.Mul(snap.StakeQAtSnapshot[id], snap.TrustQAtSnapshot[id]))
	}
	require.Equal(t, manual, snap.SumWeightsQ)
}

func TestEmptySnapshotHasEmptyRoot(t *testing.T) {
	reg := validators.New()
	tr := trust.NewState(params())
	snap := Build(1, reg, tr, params(), 1)

	require.Empty(t, snap.Order)
	require.NotEqual(t, [32]byte{}, snap.WeightsRoot)
}
