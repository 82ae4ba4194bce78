// Package tracker drives the per-tracked-object state machine described
// in the schedule package: once locked, it maps incoming pulses to
// cycle phases, accumulates sync and sweep statistics, and emits
// decoded lightproc records on phase transitions. Before lock it
// aggregates raw sync pulses and feeds completed bursts to the
// lock-finder.
package tracker

import (
	"github.com/asymingt/libsurvive/internal/config"
	"github.com/asymingt/libsurvive/internal/disambig/lock"
	"github.com/asymingt/libsurvive/internal/disambig/pulse"
	"github.com/asymingt/libsurvive/internal/disambig/schedule"
	"github.com/asymingt/libsurvive/internal/disambig/tickmath"
	"github.com/asymingt/libsurvive/internal/lightproc"
	"github.com/asymingt/libsurvive/internal/monitoring"
)

// syncAggregator accumulates the running burst of overlapping sync
// pulses seen for one phase (or, before lock, one undifferentiated
// burst), so the tracker can emit a single synthesised sample instead of
// one per sensor that happened to see the same physical flash.
type syncAggregator struct {
	firstTimestamp uint32
	longestLength  uint16
	count          int
}

func (a *syncAggregator) reset() { *a = syncAggregator{} }

func (a *syncAggregator) empty() bool { return a.count == 0 }

func (a *syncAggregator) add(e pulse.Event) {
	if a.count == 0 || e.Timestamp < a.firstTimestamp {
		a.firstTimestamp = e.Timestamp
	}
	if e.Length > a.longestLength {
		a.longestLength = e.Length
	}
	a.count++
}

// synthesize returns the aggregated pulse representing the whole burst:
// the earliest timestamp and the longest length seen, paired with the
// negative sensor count used to mark the sample as an aggregate.
func (a *syncAggregator) synthesize() (pulse.Event, int32) {
	return pulse.Event{Timestamp: a.firstTimestamp, Length: a.longestLength}, int32(-a.count)
}

// sweepSlot holds the longest pulse observed for one sensor during the
// current sweep phase.
type sweepSlot struct {
	timestamp uint32
	length    uint16
	set       bool
}

// Tracker is the state machine for a single tracked object: current
// schedule phase (or UNKNOWN), per-base-station modular anchors,
// confidence, and the buffers used to decode the phase currently in
// progress.
type Tracker struct {
	ObjectID string

	cfg  *config.TuningConfig
	sink lightproc.Sink

	sensorCount int
	sweep       []sweepSlot

	Phase         int // schedule.None when UNKNOWN
	ModOffset     [2]uint32
	Confidence    int
	LastTimestamp uint32
	WarmupCounter int
	FailureCount  int

	lastWasSync bool
	sync        syncAggregator
	history     lock.History
}

// New creates a tracker for a tracked object with sensorCount sensors,
// starting in the UNKNOWN state.
func New(objectID string, sensorCount int, cfg *config.TuningConfig, sink lightproc.Sink) *Tracker {
	if sink == nil {
		sink = lightproc.Discard
	}
	return &Tracker{
		ObjectID:    objectID,
		cfg:         cfg,
		sink:        sink,
		sensorCount: sensorCount,
		sweep:       make([]sweepSlot, sensorCount),
		Phase:       schedule.None,
	}
}

// Locked reports whether the tracker currently has a schedule lock.
func (t *Tracker) Locked() bool {
	return t.Phase != schedule.None
}

// Reset reverts the tracker entirely to its startup state, used on a
// full disambiguator reset.
func (t *Tracker) Reset() {
	t.setPhase(schedule.None)
	t.Confidence = 0
	t.FailureCount = 0
	t.WarmupCounter = 0
	t.lastWasSync = false
	t.ModOffset = [2]uint32{}
	t.history.Reset()
}

// ForceUnknown drops the current lock, e.g. on loss-of-lock or prolonged
// silence, without touching the warm-up or failure counters.
func (t *Tracker) ForceUnknown() {
	t.setPhase(schedule.None)
}

// setPhase transitions to newPhase, clearing the per-phase buffers.
// History is only cleared when returning to UNKNOWN: it has no other use
// once locked, and a fresh search should not be biased by stale samples
// from before the previous lock.
func (t *Tracker) setPhase(newPhase int) {
	t.Phase = newPhase
	t.sync.reset()
	for i := range t.sweep {
		t.sweep[i] = sweepSlot{}
	}
	if newPhase == schedule.None {
		t.history.Reset()
	}
}

// Lock transitions from UNKNOWN into a phase found by the lock-finder,
// anchoring both base stations' mod_offset at the same value: they
// diverge independently only as later phase-exits re-anchor each one.
func (t *Tracker) Lock(res lock.Result) {
	t.ModOffset[0] = res.ModOffset
	t.ModOffset[1] = res.ModOffset
	t.Confidence = 0
	t.FailureCount = 0
	t.setPhase(res.Phase)
}

// AttemptLock feeds one classified event through the pre-lock burst
// aggregation. A burst ends — and the lock-finder runs against the
// accumulated history — when a sweep follows syncs, or when a new sync
// arrives that doesn't overlap the burst in progress. allowedModes
// restricts the search to a base-station configuration already
// established by a peer tracked object; pass nil to try both.
func (t *Tracker) AttemptLock(e pulse.Event, allowedModes []schedule.Mode) (lock.Result, bool) {
	classification := pulse.Classify(e.Length)

	if classification == pulse.Sync {
		current, _ := t.sync.synthesize()
		isNewBurst := !t.lastWasSync || !pulse.Overlaps(current, e)
		if isNewBurst {
			if t.lastWasSync {
				if res, ok := t.endBurst(allowedModes); ok {
					return res, true
				}
			}
			t.sync.reset()
		}
		t.sync.add(e)
		t.lastWasSync = true
		return lock.Result{}, false
	}

	if t.lastWasSync {
		if res, ok := t.endBurst(allowedModes); ok {
			return res, true
		}
	}
	t.lastWasSync = false
	return lock.Result{}, false
}

// endBurst finalises the in-progress sync aggregate into the history
// ring (when there is one) and asks the lock-finder whether the ring now
// explains a schedule position.
func (t *Tracker) endBurst(allowedModes []schedule.Mode) (lock.Result, bool) {
	if !t.sync.empty() {
		ev, _ := t.sync.synthesize()
		t.history.Push(lock.Sample{Timestamp: ev.Timestamp, Length: ev.Length})
	}
	return lock.Find(&t.history, allowedModes)
}

// Propagate is the per-event entry point once locked: it maps the
// event's midpoint to a cycle phase, runs phase-exit processing on any
// transition, and then feeds the event to the sync or sweep capture for
// whichever phase is now current.
func (t *Tracker) Propagate(mode schedule.Mode, e pulse.Event, sensorID int) {
	if sensorID < 0 || sensorID >= t.sensorCount {
		monitoring.Logf("disambig: tracker %s saw invalid sensor %d, skipping event", t.ObjectID, sensorID)
		return
	}

	lh := schedule.At(t.Phase).LH
	cycle := schedule.Len(mode)
	midpoint := e.Timestamp + uint32(e.Length)/2
	leOffset := tickmath.ApplyModOffset(midpoint, t.ModOffset[lh], cycle)
	newPhase, _ := schedule.FindPhaseByOffset(leOffset, mode)

	if newPhase != t.Phase {
		t.phaseExit(mode, newPhase)
	}

	phase := schedule.At(t.Phase)
	if phase.IsSweep {
		t.runSweepCapture(phase, e, sensorID)
	} else {
		t.runACodeCapture(phase, e)
	}
}

// phaseExit implements phase-exit processing: it finalises whatever the
// just-ended phase accumulated (a sync burst or a sweep buffer), emits a
// lightproc record for it when confidence allows, then enters newPhase.
func (t *Tracker) phaseExit(mode schedule.Mode, newPhase int) {
	oldPhase := schedule.At(t.Phase)

	if !oldPhase.IsSweep {
		t.exitSyncPhase(mode, oldPhase)
	} else {
		t.exitSweepPhase(mode, oldPhase)
	}

	t.setPhase(newPhase)
}

func (t *Tracker) exitSyncPhase(mode schedule.Mode, oldPhase schedule.Phase) {
	if t.sync.empty() {
		return
	}

	ev, _ := t.sync.synthesize()
	t.history.Push(lock.Sample{Timestamp: ev.Timestamp, Length: ev.Length})

	newOffset := ev.Timestamp - schedule.PhaseStart(t.Phase)
	cycle := schedule.Len(mode)
	delta := tickmath.ModDelta(t.ModOffset[oldPhase.LH], newOffset, cycle)
	if abs64(delta) > int64(t.cfg.GetDriftWarnThreshold()) {
		monitoring.Logf("disambig: tracker %s drift %d ticks re-anchoring lh %d", t.ObjectID, delta, oldPhase.LH)
	}
	t.ModOffset[oldPhase.LH] = newOffset

	acode := oldPhase.Acode
	noData := abs(expectedLength(acode) - int(ev.Length))
	withData := abs(expectedLength(acode|pulse.DataBit) - int(ev.Length))
	if withData < noData {
		acode |= pulse.DataBit
	}

	sensorID := int32(lightproc.SensorIDPreSync)
	if schedule.At(schedule.NextPhase(t.Phase, mode)).IsSweep {
		sensorID = lightproc.SensorIDPreSweep
	}

	if t.Confidence > t.cfg.GetEmitConfidenceThreshold() {
		t.sink.Emit(lightproc.Record{
			Object:        t.ObjectID,
			SensorID:      sensorID,
			Acode:         int32(acode),
			OffsetInPhase: 0,
			Timestamp:     ev.Timestamp,
			Length:        uint32(ev.Length),
			LH:            oldPhase.LH,
		})
	}
}

func (t *Tracker) exitSweepPhase(mode schedule.Mode, oldPhase schedule.Phase) {
	var sum, count int
	for _, s := range t.sweep {
		if s.set {
			sum += int(s.length)
			count++
		}
	}
	if count == 0 {
		return
	}

	avg := divRoundClosest(sum, count)
	const minLength = 10
	maxLength := 3 * avg
	cycle := schedule.Len(mode)

	for sensorID, s := range t.sweep {
		if !s.set {
			continue
		}
		if int(s.length) < minLength || int(s.length) > maxLength {
			continue
		}

		midpoint := s.timestamp + uint32(s.length)/2
		leOffset := tickmath.ApplyModOffset(midpoint, t.ModOffset[oldPhase.LH], cycle)
		offsetInPhase := int64(leOffset) - int64(schedule.PhaseStart(t.Phase)) + int64(schedule.SyncWindow)
		if offsetInPhase <= 0 {
			monitoring.Logf("disambig: tracker %s computed non-positive sweep offset for sensor %d, dropping", t.ObjectID, sensorID)
			continue
		}

		if t.Confidence > t.cfg.GetEmitConfidenceThreshold() {
			t.sink.Emit(lightproc.Record{
				Object:        t.ObjectID,
				SensorID:      int32(sensorID),
				Acode:         int32(oldPhase.Acode),
				OffsetInPhase: int32(offsetInPhase),
				Timestamp:     s.timestamp,
				Length:        uint32(s.length),
				LH:            oldPhase.LH,
			})
		}
	}
}

// runACodeCapture validates an event against the sync phase currently
// active and either folds it into the phase's aggregate or charges
// confidence for an inconsistent length.
func (t *Tracker) runACodeCapture(phase schedule.Phase, e pulse.Event) {
	if e.Length < pulse.NoiseFloor {
		return
	}

	lengthErr := pulse.LengthError(phase.Acode, e.Length)
	if lengthErr > t.cfg.GetLengthErrorThreshold() {
		penalty := t.cfg.GetLengthErrorConfidencePenalty()
		if t.Confidence < t.cfg.GetLossOfLockFloor() {
			t.setPhase(schedule.None)
			monitoring.Logf("disambig: tracker %s lost lock at tick %d (acode length error %d)", t.ObjectID, e.Timestamp, lengthErr)
		}
		t.Confidence -= penalty
		return
	}

	if t.Confidence < t.cfg.GetConfidenceCap() {
		t.Confidence++
	}
	t.sync.add(e)
}

// runSweepCapture keeps, per sensor, only the longest plausible sweep
// pulse seen this phase, and penalises confidence for implausibly long
// ones (sweeps should be brief compared to a sync flash).
func (t *Tracker) runSweepCapture(phase schedule.Phase, e pulse.Event, sensorID int) {
	if int(e.Length) > t.cfg.GetSweepConfidencePenaltyLength() {
		t.Confidence -= t.cfg.GetSweepConfidencePenalty()
	}

	cur := t.sweep[sensorID]
	if e.Length > pulse.NoiseFloor && e.Length < pulse.SweepUpperBound && (!cur.set || e.Length > cur.length) {
		t.sweep[sensorID] = sweepSlot{timestamp: e.Timestamp, length: e.Length, set: true}
	}
}

func expectedLength(acode int) int {
	return pulse.ExpectedLength(acode)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// divRoundClosest divides n by d, rounding to the nearest integer rather
// than truncating, matching the averaging the original hardware firmware
// used to size its sweep-length outlier band.
func divRoundClosest(n, d int) int {
	if d == 0 {
		return 0
	}
	return (n + d/2) / d
}
