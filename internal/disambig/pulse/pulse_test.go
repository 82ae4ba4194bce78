package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBand(t *testing.T) {
	assert.Equal(t, Sync, Classify(2250))
	assert.Equal(t, Sync, Classify(6750))
	assert.Equal(t, Sync, Classify(4000))
	assert.Equal(t, Sweep, Classify(2249))
	assert.Equal(t, Sweep, Classify(6751))
	assert.Equal(t, Sweep, Classify(400))
}

func TestAcodeRoundTrip(t *testing.T) {
	for a := 0; a < numAcodes; a++ {
		length := ExpectedLength(a)
		got := FindAcode(uint16(length))
		assert.Contains(t, []int{a, a ^ DataBit}, got, "acode %d expected length %d", a, length)
	}
}

func TestFindAcodeOutOfBand(t *testing.T) {
	assert.Equal(t, -1, FindAcode(100))
	assert.Equal(t, -1, FindAcode(65000))
}

func TestLengthErrorPrefersCloserDataBitVariant(t *testing.T) {
	base := ExpectedLength(0)
	withData := ExpectedLength(DataBit)
	assert.Equal(t, 0, LengthError(0, uint16(base)))
	assert.Equal(t, 0, LengthError(0, uint16(withData)))
	assert.Equal(t, 0, LengthError(DataBit, uint16(withData)))
}

func TestOverlapsRequiresMoreThanHalfTheEarlierPulse(t *testing.T) {
	a := Event{Timestamp: 1000, Length: 1000} // spans [1000,2000)
	// Overlaps by 600 ticks (>500, more than half of 1000): should overlap.
	b := Event{Timestamp: 1400, Length: 1000}
	assert.True(t, Overlaps(a, b))
	assert.True(t, Overlaps(b, a), "overlap test is symmetric")

	// Overlaps by only 400 ticks (<=500): should not count as the same pulse.
	c := Event{Timestamp: 1600, Length: 1000}
	assert.False(t, Overlaps(a, c))

	// Disjoint entirely.
	d := Event{Timestamp: 5000, Length: 100}
	assert.False(t, Overlaps(a, d))
}
