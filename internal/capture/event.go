// Package capture defines the boundary between a raw event source
// (serial hardware, a pcap replay, a test fixture) and the dispatcher:
// every source implementation, regardless of transport, produces the
// same RawEvent shape.
package capture

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoMoreEvents is an end-of-stream sentinel for sources. The sources
// in this repository (serial, pcap replay, NDJSON fixture) do not return
// it: they signal exhaustion with io.EOF.
var ErrNoMoreEvents = errors.New("capture: no more events")

// RawEvent is one photodiode pulse event as reported by the firmware,
// before any sync/sweep classification happens.
type RawEvent struct {
	Object      string `json:"object"`
	SensorID    int    `json:"sensor_id"`
	SensorCount int    `json:"sensor_count"`
	Timestamp   uint32 `json:"timestamp"`
	Length      uint16 `json:"length"`
}

// Source produces a stream of RawEvents. Next blocks until an event is
// available, the source is exhausted (io.EOF), or an error occurs.
type Source interface {
	Next() (RawEvent, error)
	Close() error
}

// ParseLine decodes one newline-delimited JSON record emitted by the
// firmware's event stream into a RawEvent.
func ParseLine(line []byte) (RawEvent, error) {
	var e RawEvent
	if err := json.Unmarshal(line, &e); err != nil {
		return RawEvent{}, fmt.Errorf("capture: decode event line: %w", err)
	}
	return e, nil
}
