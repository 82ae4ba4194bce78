package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseWindowsSumToCycleLength(t *testing.T) {
	var total uint32
	for i := 0; i < NumPhases; i++ {
		total += At(i).Window
	}
	assert.Equal(t, CycleLength, total)
}

func TestHalfCycleMatchesFirstSixPhases(t *testing.T) {
	var total uint32
	for i := 0; i < secondHalfStart; i++ {
		total += At(i).Window
	}
	assert.Equal(t, HalfCycleLength, total)
	assert.Equal(t, HalfCycleLength, Len(Single60Hz))
}

func TestPhaseStartCumulative(t *testing.T) {
	require.Equal(t, uint32(0), PhaseStart(0))
	for i := 1; i < NumPhases; i++ {
		assert.Equal(t, PhaseStart(i-1)+At(i-1).Window, PhaseStart(i))
	}
}

func TestNextPhaseWrapsWithinModeHalf(t *testing.T) {
	assert.Equal(t, 0, NextPhase(5, Single60Hz), "60Hz mode wraps phase 5 back to phase 0, not into lh1's half")
	assert.Equal(t, 6, NextPhase(5, Dual))
	assert.Equal(t, 0, NextPhase(11, Dual))
}

func TestAllowsSecondHalf(t *testing.T) {
	assert.True(t, AllowsSecondHalf(0))
	assert.True(t, AllowsSecondHalf(5))
	assert.False(t, AllowsSecondHalf(6))
	assert.False(t, AllowsSecondHalf(11))
}

func TestFindPhaseByOffsetExactStarts(t *testing.T) {
	for i := 0; i < NumPhases; i++ {
		idx, errTicks := FindPhaseByOffset(PhaseStart(i), Dual)
		assert.Equal(t, i, idx, "offset at phase %d's own start should resolve to phase %d", i, i)
		assert.Equal(t, uint32(0), errTicks)
	}
}

func TestFindPhaseByOffsetMidSweepStaysInSweep(t *testing.T) {
	// Phase 1 is lh0's X sweep: starts at 20000, window 360000.
	idx, _ := FindPhaseByOffset(PhaseStart(1)+100, Dual)
	assert.Equal(t, 1, idx)
}

func TestFindPhaseByOffsetPastSweepEndSnapsForward(t *testing.T) {
	// Well past phase 1's end (380000) should prefer phase 2, not linger in the sweep.
	end := PhaseStart(1) + At(1).Window
	idx, _ := FindPhaseByOffset(end+5000, Dual)
	assert.Equal(t, 2, idx)
}

func TestFindPhaseByOffset60HzOnlyUsesFirstHalf(t *testing.T) {
	for off := uint32(0); off < HalfCycleLength; off += 37000 {
		idx, _ := FindPhaseByOffset(off, Single60Hz)
		assert.Less(t, idx, secondHalfStart)
	}
}
