package tickmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyModOffsetRollover(t *testing.T) {
	// Literal rollover case: anchor 0xFFFFFF00 predates the wrap seen by
	// timestamp 0x00000100, and should land in the same place as anchor 0
	// against timestamp 0x200.
	got := ApplyModOffset(0x00000100, 0xFFFFFF00, 1600000)
	want := ApplyModOffset(0x200, 0, 1600000)
	assert.Equal(t, want, got)
	assert.Equal(t, uint32(512), got)
}

func TestApplyModOffsetIdempotentAcrossCycles(t *testing.T) {
	const cycle = uint32(1600000)
	base := ApplyModOffset(12345, 100, cycle)
	for k := uint32(1); k < 5; k++ {
		got := ApplyModOffset(12345+k*cycle, 100, cycle)
		assert.Equal(t, base, got, "k=%d", k)
	}
}

func TestApplyModOffsetNoWrapSimple(t *testing.T) {
	got := ApplyModOffset(1000, 400, 1600000)
	assert.Equal(t, uint32(600), got)
}

func TestApplyModOffsetNegativeWrapsIntoCycle(t *testing.T) {
	got := ApplyModOffset(100, 500, 1600000)
	assert.Equal(t, uint32(1600000-400), got)
}

func TestTickDiffHandlesRollover(t *testing.T) {
	d := TickDiff(0xFFFFFFF0, 0x00000010)
	assert.Equal(t, int64(32), d)

	d2 := TickDiff(0x00000010, 0xFFFFFFF0)
	assert.Equal(t, int64(-32), d2)
}

func TestTickDiffNoWrap(t *testing.T) {
	assert.Equal(t, int64(500), TickDiff(1000, 1500))
	assert.Equal(t, int64(-500), TickDiff(1500, 1000))
}

func TestModDeltaSmallDrift(t *testing.T) {
	const cycle = uint32(1600000)
	assert.Equal(t, int64(50), ModDelta(100000, 100050, cycle))
	assert.Equal(t, int64(-50), ModDelta(100050, 100000, cycle))
}

func TestModDeltaIgnoresFullCycleAdvance(t *testing.T) {
	// A per-base-station anchor re-derived every cycle climbs by ~cycle
	// ticks on every revisit; that alone must not read as drift.
	const cycle = uint32(1600000)
	assert.Equal(t, int64(0), ModDelta(100000, 100000+cycle, cycle))
	assert.Equal(t, int64(50), ModDelta(100000, 100050+cycle, cycle))
}

func TestModDeltaWrapsNearCycleBoundary(t *testing.T) {
	// A delta just under a full cycle is really a small negative drift.
	const cycle = uint32(1600000)
	assert.Equal(t, int64(-50), ModDelta(100000, 100000+cycle-50, cycle))
}
