package slashing

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

func mkHash(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

func trustParams() trust.Params {
	return trust.Params{
		Alpha: fixedpoint.FromRatio(99, 100),
		Beta:  fixedpoint.FromRatio(1, 100),
		Init:  fixedpoint.FromRatio(1, 10),
	}
}

func TestDetectEquivocation_S4(t *testing.T) {
	a := mkID(1)
	proposals := []Proposal{
		{Who: a, Slot: 10, HeaderHash: mkHash(1)},
		{Who: a, Slot: 10, HeaderHash: mkHash(2)},
	}
	equivocators, found := DetectEquivocation(proposals)
	require.True(t, found)
	require.Equal(t, []NodeID{a}, equivocators)
}

func TestDetectEquivocationNoneForHonestProposals(t *testing.T) {
	a, b := mkID(1), mkID(2)
	proposals := []Proposal{
		{Who: a, Slot: 10, HeaderHash: mkHash(1)},
		{Who: b, Slot: 11, HeaderHash: mkHash(2)},
	}
	equivocators, found := DetectEquivocation(proposals)
	require.False(t, found)
	require.Empty(t, equivocators)
}

func TestDetectEquivocationSameHashTwiceIsNotEquivocation(t *testing.T) {
	a := mkID(1)
	proposals := []Proposal{
		{Who: a, Slot: 10, HeaderHash: mkHash(1)},
		{Who: a, Slot: 10, HeaderHash: mkHash(1)},
	}
	_, found := DetectEquivocation(proposals)
	require.False(t, found)
}

func TestDetectEquivocationScopedPerSlot(t *testing.T) {
	a := mkID(1)
	proposals := []Proposal{
		{Who: a, Slot: 10, HeaderHash: mkHash(1)},
		{Who: a, Slot: 11, HeaderHash: mkHash(2)},
	}
	_, found := DetectEquivocation(proposals)
	require.False(t, found, "different slots from the same proposer are not equivocation")
}

func TestDetectEquivocationMultipleEquivocatorsSortedOrder(t *testing.T) {
	a, b := mkID(2), mkID(1)
	proposals := []Proposal{
		{Who: a, Slot: 1, HeaderHash: mkHash(1)},
		{Who: a, Slot: 1, HeaderHash: mkHash(2)},
		{Who: b, Slot: 2, HeaderHash: mkHash(1)},
		{Who: b, Slot: 2, HeaderHash: mkHash(2)},
	}
	equivocators, found := DetectEquivocation(proposals)
	require.True(t, found)
	require.Equal(t, []NodeID{b, a}, equivocators) // b=mkID(1) sorts before a=mkID(2)
}

func TestSlashEquivocationAppliesPenaltyAndResetsTrust(t *testing.T) {
	reg := validators.New()
	tr := trust.NewState(trustParams())
	a := mkID(1)
	reg.Insert(a, 1_000_000, true)
	tr.BlockReward(a)
	require.NotEqual(t, trustParams().Init, tr.Get(a))

	cut := SlashEquivocation(reg, tr, a, trustParams(), 3000)
	require.Equal(t, uint64(300_000), cut)
	require.Equal(t, uint64(700_000), reg.Stake(a))
	require.Equal(t, trustParams().Init, tr.Get(a))
}

func TestSlashEquivocationIdempotentInSameEpoch(t *testing.T) {
	reg := validators.New()
	tr := trust.NewState(trustParams())
	a := mkID(1)
	reg.Insert(a, 10, true)

	SlashEquivocation(reg, tr, a, trustParams(), 10000)
	require.Equal(t, uint64(0), reg.Stake(a))

	cut := SlashEquivocation(reg, tr, a, trustParams(), 10000)
	require.Equal(t, uint64(0), cut)
	require.Equal(t, uint64(0), reg.Stake(a))
}
