package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClamp01(t *testing.T) {
	require.Equal(t, ONE, Clamp01(ONE+1))
	require.Equal(t, Q(0), Clamp01(0))
	require.Equal(t, Q(ONE/2), Clamp01(ONE/2))
}

func TestAddSaturates(t *testing.T) {
	require.Equal(t, MaxQ, Add(MaxQ, 1))
	require.Equal(t, Q(3), Add(Q(1), Q(2)))
}

func TestSubSaturates(t *testing.T) {
	require.Equal(t, Q(0), Sub(Q(1), Q(2)))
	require.Equal(t, Q(1), Sub(Q(3), Q(2)))
}

func TestMulBasic(t *testing.T) {
	half := ONE / 2
	require.Equal(t, Q(ONE/4), Mul(half, half))
	require.Equal(t, Q(0), Mul(0, ONE))
	require.Equal(t, ONE, Mul(ONE, ONE))
}

func TestMulDeterministic(t *testing.T) {
	a, b := Q(0x1_8000_0000), Q(0x2_4000_0000)
	got1 := Mul(a, b)
	got2 := Mul(a, b)
	require.Equal(t, got1, got2)
}

func TestDivBasic(t *testing.T) {
	require.Equal(t, ONE, Div(ONE, ONE))
	require.Equal(t, Q(ONE/2), Div(ONE, Q(2)*ONE))
}

func TestDivByZeroClampsToOne(t *testing.T) {
	// the divisor is raised to 1, so (ONE<<32)/1 = 2^64 overflows and saturates.
	require.Equal(t, MaxQ, Div(ONE, 0))
}

func TestFromRatio(t *testing.T) {
	require.Equal(t, ONE/3, FromRatio(1_000_000, 3_000_000))
	require.Equal(t, ONE, FromRatio(5, 5))
	require.Equal(t, Q(0), FromRatio(0, 5))
	require.Equal(t, Q(0), FromRatio(5, 0))
}

func TestFromRatioLargeDenominator(t *testing.T) {
	// raw_stake_sum can exceed 2^32; this must not overflow.
	const den = uint64(1) << 40
	got := FromRatio(den/4, den)
	require.InDelta(t, 0.25, got.ToFloat64(), 1e-6)
}

func TestFromBasisPoints(t *testing.T) {
	require.Equal(t, ONE, FromBasisPoints(10000))
	require.Equal(t, Q(0), FromBasisPoints(0))
	require.InDelta(t, 0.5, FromBasisPoints(5000).ToFloat64(), 1e-9)
}
