// Package lightproc defines the decoded record shape the disambiguator
// emits downstream and the sink interface that consumes it. Nothing in
// this package decodes pulses itself; it is the narrow boundary between
// the tracker and whatever pose solver or recorder is listening.
package lightproc

// Pre-sweep and pre-sync sentinel sensor IDs, carried on sync records to
// tell the recipient what kind of phase produced them.
const (
	SensorIDPreSweep = -1
	SensorIDPreSync  = -2
)

// Record is one decoded observation, either a synthesised sync (the
// aggregated burst for a sync phase) or a single sweep crossing.
type Record struct {
	Object        string // tracked object handle/id this record belongs to
	SensorID      int32  // 0..N for sweeps; SensorIDPreSweep/SensorIDPreSync for syncs
	Acode         int32  // 3-bit acode with the decoded data bit set in bit 1
	OffsetInPhase int32  // sweep: ticks from phase anchor + 20000; 0 for syncs
	Timestamp     uint32
	Length        uint32
	LH            uint8
}

// Sink receives decoded records. Implementations must not block the
// calling goroutine for long: the tracker calls Emit synchronously from
// the same thread that processes capture events.
type Sink interface {
	Emit(Record)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Record)

// Emit implements Sink.
func (f SinkFunc) Emit(r Record) { f(r) }

// Discard is a Sink that drops every record; useful as a default before a
// real sink is wired, or in tests that only care about side effects other
// than emission.
var Discard Sink = SinkFunc(func(Record) {})

// Collector is a Sink that appends every record to a slice, for tests and
// offline replay tooling that need to inspect emitted records afterward.
type Collector struct {
	Records []Record
}

// Emit implements Sink.
func (c *Collector) Emit(r Record) {
	c.Records = append(c.Records, r)
}
