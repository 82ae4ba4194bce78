// Package schedule describes the fixed 12-phase cycle a lighthouse base
// station pair sweeps through: which phases carry sync pulses, which carry
// sweeps, and which base station and axis each belongs to.
package schedule

// Mode selects how much of the schedule is active. In Dual mode both base
// stations are transmitting and all 12 phases occur once per cycle. In
// Single60Hz mode only one base station is present and the second half of
// the table (phases 6-11, base station 1) never fires; the cycle is
// effectively phases 0-5 repeated at twice the rate.
type Mode int

const (
	Dual Mode = iota
	Single60Hz
)

func (m Mode) String() string {
	if m == Single60Hz {
		return "60hz"
	}
	return "dual"
}

// DataBit is the acode bit that carries the decoded OOTX data bit. It is
// never set in the static schedule table below — the table only fixes the
// skip and axis bits, the data bit is recovered per-observation from the
// pulse length.
const DataBit = 1 << 1

// SyncWindow and SweepWindow are the duration, in ticks, a sync or sweep
// phase occupies before the next phase begins.
const (
	SyncWindow  uint32 = 20000
	SweepWindow uint32 = 360000
)

// CycleLength is the duration of a full dual-base-station cycle in ticks.
// HalfCycleLength is the duration of a single base station's half (used
// when only one base station is visible, i.e. Single60Hz mode).
const (
	CycleLength     uint32 = 1600000
	HalfCycleLength uint32 = 800000
)

// secondHalfStart is the index of the first phase belonging to base
// station 1. Single60Hz mode never advances past phase secondHalfStart-1.
const secondHalfStart = 6

// NumPhases is the number of entries in the schedule table.
const NumPhases = 12

// None marks the absence of a locked phase (the tracker is UNKNOWN).
const None = -1

// Phase describes one slot of the cycle.
type Phase struct {
	Acode   int    // 3-bit (skip<<2 | data<<1 | axis); data is always 0 here
	LH      uint8  // which base station (0 or 1) this phase belongs to
	Axis    uint8  // 0 = X, 1 = Y
	Window  uint32 // duration of this phase in ticks
	IsSweep bool
}

// table is the fixed schedule. Each base station contributes 6 phases: for
// each axis, a "fresh" sync (skip=0), the sweep, and a "skip" sync (skip=1)
// that the rotor emits but that carries no new sweep this turn. 2 base
// stations * 2 axes * (2 syncs + 1 sweep) = 12 phases; 8 sync phases of
// 20000 ticks plus 4 sweep phases of 360000 ticks sum to 1,600,000.
var table = [NumPhases]Phase{
	{Acode: 0b000, LH: 0, Axis: 0, Window: SyncWindow, IsSweep: false},  // 0: lh0 X sync (fresh)
	{Acode: 0b000, LH: 0, Axis: 0, Window: SweepWindow, IsSweep: true},  // 1: lh0 X sweep
	{Acode: 0b100, LH: 0, Axis: 0, Window: SyncWindow, IsSweep: false},  // 2: lh0 X sync (skip)
	{Acode: 0b001, LH: 0, Axis: 1, Window: SyncWindow, IsSweep: false},  // 3: lh0 Y sync (fresh)
	{Acode: 0b001, LH: 0, Axis: 1, Window: SweepWindow, IsSweep: true},  // 4: lh0 Y sweep
	{Acode: 0b101, LH: 0, Axis: 1, Window: SyncWindow, IsSweep: false},  // 5: lh0 Y sync (skip)
	{Acode: 0b000, LH: 1, Axis: 0, Window: SyncWindow, IsSweep: false},  // 6: lh1 X sync (fresh)
	{Acode: 0b000, LH: 1, Axis: 0, Window: SweepWindow, IsSweep: true},  // 7: lh1 X sweep
	{Acode: 0b100, LH: 1, Axis: 0, Window: SyncWindow, IsSweep: false},  // 8: lh1 X sync (skip)
	{Acode: 0b001, LH: 1, Axis: 1, Window: SyncWindow, IsSweep: false},  // 9: lh1 Y sync (fresh)
	{Acode: 0b001, LH: 1, Axis: 1, Window: SweepWindow, IsSweep: true},  // 10: lh1 Y sweep
	{Acode: 0b101, LH: 1, Axis: 1, Window: SyncWindow, IsSweep: false},  // 11: lh1 Y sync (skip)
}

// starts[i] is the cumulative tick offset at which phase i begins.
var starts [NumPhases]uint32

func init() {
	var acc uint32
	for i, p := range table {
		starts[i] = acc
		acc += p.Window
	}
	if acc != CycleLength {
		panic("schedule: phase windows do not sum to CycleLength")
	}
}

// At returns the schedule entry for phase index i.
func At(i int) Phase {
	return table[i]
}

// PhaseStart returns the cumulative tick offset at which phase i begins.
func PhaseStart(i int) uint32 {
	return starts[i]
}

// phaseEnd returns the tick offset one past the end of phase i.
func phaseEnd(i int) uint32 {
	return starts[i] + table[i].Window
}

// NumActivePhases returns how many leading phases of the table are active
// for the given mode.
func NumActivePhases(mode Mode) int {
	if mode == Single60Hz {
		return secondHalfStart
	}
	return NumPhases
}

// Len returns the active cycle length (in ticks) for the given mode.
func Len(mode Mode) uint32 {
	if mode == Single60Hz {
		return HalfCycleLength
	}
	return CycleLength
}

// AllowsSecondHalf reports whether phase index g can be reached under
// Single60Hz mode. Used by the lock-finder to skip 60Hz candidates whose
// guessed phase lies in the second (base-station-1) half of the table.
func AllowsSecondHalf(g int) bool {
	return g < secondHalfStart
}

// NextPhase returns the phase that follows i, wrapping at the end of the
// active schedule for the given mode. In Single60Hz mode phase 5 wraps back
// to phase 0 rather than falling through to phase 6.
func NextPhase(i int, mode Mode) int {
	n := NumActivePhases(mode)
	next := i + 1
	if next >= n {
		return 0
	}
	return next
}

// circularDist returns the shorter distance between two tick offsets on a
// cycle of the given length.
func circularDist(a, b, cycleLen uint32) uint32 {
	var d uint32
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	if rest := cycleLen - d; rest < d {
		return rest
	}
	return d
}

// FindPhaseByOffset locates the phase whose window contains offsetInCycle.
// The schedule partitions [0, cycleLen) contiguously, so in normal
// operation exactly one phase contains the offset and it is returned with
// errTicks 0. If offsetInCycle falls outside every window — possible only
// from accumulated rounding once mod_offset has drifted — the search falls
// back to the phase with the nearest start and reports the tick distance.
// Tie-break: if that fallback phase is a sweep and offsetInCycle lies more
// than 1000 ticks past the sweep's end, the following phase is preferred
// instead, since a sweep window is never a better explanation for an offset
// that far beyond it than its structural successor.
func FindPhaseByOffset(offsetInCycle uint32, mode Mode) (phaseIdx int, errTicks uint32) {
	n := NumActivePhases(mode)
	cycleLen := Len(mode)

	for i := 0; i < n; i++ {
		s := starts[i]
		e := s + table[i].Window
		if i == n-1 {
			e = cycleLen
		}
		if offsetInCycle >= s && offsetInCycle < e {
			return i, 0
		}
	}

	best := 0
	bestDist := cycleLen
	for i := 0; i < n; i++ {
		d := circularDist(offsetInCycle, starts[i], cycleLen)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	if table[best].IsSweep {
		end := phaseEnd(best)
		if offsetInCycle >= end && offsetInCycle-end > 1000 {
			alt := NextPhase(best, mode)
			return alt, circularDist(offsetInCycle, starts[alt], cycleLen)
		}
	}

	return best, bestDist
}
