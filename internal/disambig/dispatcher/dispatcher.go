// Package dispatcher is the per-event entry point for the disambiguator:
// it owns the set of tracked objects and the context-wide base-station
// configuration they must agree on, applies warm-up and silence
// handling, and routes each event to the lock-finder or the state
// tracker as appropriate.
package dispatcher

import (
	"sync"

	"github.com/asymingt/libsurvive/internal/config"
	"github.com/asymingt/libsurvive/internal/disambig/pulse"
	"github.com/asymingt/libsurvive/internal/disambig/schedule"
	"github.com/asymingt/libsurvive/internal/disambig/tickmath"
	"github.com/asymingt/libsurvive/internal/disambig/tracker"
	"github.com/asymingt/libsurvive/internal/lightproc"
	"github.com/asymingt/libsurvive/internal/monitoring"
)

// LockRecorder is an optional capability a sink may implement to be told
// about lock acquisitions, not just decoded records. sqlite.Store
// implements this so a capture session's lock history survives the
// process; sinks that don't care about it (lightproc.Discard, a plain
// SinkFunc) simply aren't asked.
type LockRecorder interface {
	RecordLock(object, mode string, phase int, modOffset uint32) error
}

// Event is one raw capture event handed to the dispatcher by the
// upstream reader.
type Event struct {
	Object      string // tracked-object handle this event belongs to
	SensorID    int
	SensorCount int // 0 means the object's hardware config hasn't loaded yet
	Timestamp   uint32
	Length      uint16
}

// Context owns every tracked object in one disambiguation session plus
// the base-station configuration (dual vs 60Hz single-LH) they all
// share. The configuration is established by whichever object locks
// first and holds until every tracked object has lost lock or Reset is
// called: mixing configurations within one
// context isn't physically possible, since there's only one pair of
// base stations.
type Context struct {
	cfg  *config.TuningConfig
	sink lightproc.Sink

	mu              sync.Mutex
	modeEstablished bool
	mode            schedule.Mode
	objects         map[string]*tracker.Tracker
}

// New creates an empty dispatch context. cfg may be nil to use all spec
// defaults; sink may be nil to discard every decoded record.
func New(cfg *config.TuningConfig, sink lightproc.Sink) *Context {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if sink == nil {
		sink = lightproc.Discard
	}
	return &Context{
		cfg:     cfg,
		sink:    sink,
		objects: make(map[string]*tracker.Tracker),
	}
}

// Mode returns the base-station configuration currently in effect. It is
// only meaningful once at least one object has locked.
func (c *Context) Mode() schedule.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Reset clears the established mode and every tracked object, as if the
// context had just been created. Intended for host-driven recovery from
// a detected hardware reconnect, not called internally.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modeEstablished = false
	c.mode = schedule.Dual
	c.objects = make(map[string]*tracker.Tracker)
}

// Locked reports whether the named tracked object currently holds a
// schedule lock. Used by reporting and debug tooling; the dispatcher
// itself never needs to ask this of anything but the object it is
// currently processing.
func (c *Context) Locked(object string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.objects[object]
	return ok && t.Locked()
}

// Snapshot returns the named object's current phase (schedule.None if
// unlocked) and confidence. ok is false if the object has never been
// seen.
func (c *Context) Snapshot(object string) (phase int, confidence int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, exists := c.objects[object]
	if !exists {
		return 0, 0, false
	}
	return t.Phase, t.Confidence, true
}

func (c *Context) trackerFor(object string, sensorCount int) *tracker.Tracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.objects[object]
	if !ok {
		t = tracker.New(object, sensorCount, c.cfg, c.sink)
		c.objects[object] = t
	}
	return t
}

// allowedModes restricts a lock attempt to the context's established
// configuration, or leaves it open to either when no object has locked
// yet.
func (c *Context) allowedModes() []schedule.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.modeEstablished {
		return nil
	}
	return []schedule.Mode{c.mode}
}

// establishMode records the first successful lock's base-station
// configuration. Later locks, even under a different mode, never
// override it while it is established — it is cleared only by
// releaseModeIfUnused (no object locked) or Reset, not "most recent wins".
func (c *Context) establishMode(mode schedule.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.modeEstablished {
		c.modeEstablished = true
		c.mode = mode
	}
}

// releaseModeIfUnused clears the established mode once no tracked object
// remains locked, so the next object to lock is free to pick either
// configuration again.
func (c *Context) releaseModeIfUnused() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.objects {
		if t.Locked() {
			return
		}
	}
	c.modeEstablished = false
}

// Dispatch processes one capture event for its tracked object: warm-up,
// lock acquisition, silence-driven confidence decay, and routing into
// the state tracker.
func (c *Context) Dispatch(e Event) {
	if e.SensorCount <= 0 {
		return
	}

	t := c.trackerFor(e.Object, e.SensorCount)

	if t.WarmupCounter < c.cfg.GetWarmupEvents() {
		t.WarmupCounter++
		return
	}

	pe := pulse.Event{Timestamp: e.Timestamp, Length: e.Length}

	if !t.Locked() {
		c.attemptLock(t, e.Object, pe)
		t.LastTimestamp = e.Timestamp
		return
	}

	timebase := c.cfg.GetTimebaseHz()
	timediff := tickmath.TickDiff(t.LastTimestamp, e.Timestamp)
	if timediff > timebase {
		penalty := int(timediff/timebase) * c.cfg.GetSilencePenaltyPerSecond()
		if t.Confidence < penalty {
			t.ForceUnknown()
			monitoring.Logf("disambig: %s lost lock after %d ticks of silence", e.Object, timediff)
			c.releaseModeIfUnused()
			return
		}
		t.Confidence -= penalty
	}

	t.Propagate(c.Mode(), pe, e.SensorID)
	if !t.Locked() {
		c.releaseModeIfUnused()
	}
	t.LastTimestamp = e.Timestamp
}

func (c *Context) attemptLock(t *tracker.Tracker, object string, pe pulse.Event) {
	res, ok := t.AttemptLock(pe, c.allowedModes())
	if !ok {
		t.FailureCount++
		if t.FailureCount > c.cfg.GetFailureWarnEvery() {
			monitoring.Logf("disambig: %s failed to lock after %d attempts, resetting counter", object, t.FailureCount)
			t.FailureCount = 0
		}
		return
	}

	t.Lock(res)
	c.establishMode(res.Mode)
	monitoring.Logf("disambig: %s locked phase=%d mode=%s", object, res.Phase, res.Mode)

	if recorder, ok := c.sink.(LockRecorder); ok {
		if err := recorder.RecordLock(object, res.Mode.String(), res.Phase, res.ModOffset); err != nil {
			monitoring.Logf("disambig: %s failed to record lock event: %v", object, err)
		}
	}
}
