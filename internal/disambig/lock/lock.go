// Package lock searches a short history of recent sync pulses for the
// cycle-phase offset and base-station configuration that best explains
// them, so the state tracker can acquire (or re-acquire) lock without any
// prior knowledge of where in the cycle the hardware currently is.
package lock

import (
	"github.com/asymingt/libsurvive/internal/disambig/pulse"
	"github.com/asymingt/libsurvive/internal/disambig/schedule"
	"github.com/asymingt/libsurvive/internal/disambig/tickmath"
)

// HistoryLen is the number of recent sync samples the ring buffer retains
// and the number the search tries to explain.
const HistoryLen = 12

// minInliers is the inlier count a candidate must exceed to be accepted.
// With a 12-slot history this requires every sample to agree.
const minInliers = 11

// inlierLengthErrorMax and inlierOffsetErrorMax bound how far a history
// sample's decoded length and phase offset may be from the candidate's
// prediction and still count as an inlier.
const (
	inlierLengthErrorMax = 500
	inlierOffsetErrorMax = 500
)

// Sample is one recent sync observation: its arrival tick and pulse
// length.
type Sample struct {
	Timestamp uint32
	Length    uint16
}

// History is a fixed-size ring buffer of the most recently observed sync
// pulses for one tracked object, consumed only by the lock-finder.
type History struct {
	buf   [HistoryLen]Sample
	count int
	head  int // index of the next slot to write
}

// Push appends a sync sample, overwriting the oldest entry once full.
func (h *History) Push(s Sample) {
	h.buf[h.head] = s
	h.head = (h.head + 1) % HistoryLen
	if h.count < HistoryLen {
		h.count++
	}
}

// Reset clears the history, used on full disambiguator reset.
func (h *History) Reset() {
	*h = History{}
}

// Len reports how many samples are currently stored.
func (h *History) Len() int {
	return h.count
}

// Newest returns the most recently pushed sample and true, or the zero
// value and false if the history is empty.
func (h *History) Newest() (Sample, bool) {
	if h.count == 0 {
		return Sample{}, false
	}
	idx := (h.head - 1 + HistoryLen) % HistoryLen
	return h.buf[idx], true
}

// Samples returns the stored samples in no particular order; callers only
// need to iterate, not replay them in time order.
func (h *History) Samples() []Sample {
	out := make([]Sample, h.count)
	copy(out, h.buf[:h.count])
	return out
}

// Result is a successful lock: the schedule phase the most recent sync
// belongs to, the modular offset that anchors the cycle to the tick
// counter, and which base-station configuration explains the history.
type Result struct {
	Phase     int
	ModOffset uint32
	Mode      schedule.Mode
}

// Find searches history for a (phase, mod_offset, mode) triple under which
// more than minInliers of the stored samples are consistent non-sweep
// observations. allowedModes restricts which base-station configurations
// may be tried — pass nil to try both; pass a single mode when a peer
// tracked object in the same context has already locked, since only one
// configuration is valid per context.
func Find(h *History, allowedModes []schedule.Mode) (Result, bool) {
	recent, ok := h.Newest()
	if !ok {
		return Result{}, false
	}
	rawAcode := pulse.FindAcode(recent.Length)
	if rawAcode < 0 {
		// The most recent sample doesn't decode to any known acode, so
		// there is nothing to search against.
		return Result{}, false
	}
	acodeHint := rawAcode & 0b101

	modes := allowedModes
	if modes == nil {
		modes = []schedule.Mode{schedule.Dual, schedule.Single60Hz}
	}

	samples := h.Samples()

	for g := 0; g < schedule.NumPhases; g++ {
		phase := schedule.At(g)
		if phase.IsSweep {
			continue
		}
		if phase.Acode&0b101 != acodeHint {
			continue
		}

		guessMod := recent.Timestamp - schedule.PhaseStart(g)

		for _, mode := range modes {
			if mode == schedule.Single60Hz && !schedule.AllowsSecondHalf(g) {
				continue
			}

			cycle := schedule.Len(mode)
			inliers := 0
			for _, e := range samples {
				offset := tickmath.ApplyModOffset(e.Timestamp, guessMod, cycle)
				idx, offErr := schedule.FindPhaseByOffset(offset, mode)
				cand := schedule.At(idx)
				if cand.IsSweep {
					continue
				}
				if mode == schedule.Single60Hz && cand.LH != 0 {
					continue
				}
				if pulse.LengthError(cand.Acode, e.Length) >= inlierLengthErrorMax {
					continue
				}
				if offErr >= inlierOffsetErrorMax {
					continue
				}
				inliers++
			}

			if inliers > minInliers {
				return Result{Phase: g, ModOffset: guessMod, Mode: mode}, true
			}
		}
	}

	return Result{}, false
}
