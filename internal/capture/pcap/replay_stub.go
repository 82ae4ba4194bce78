//go:build !pcap
// +build !pcap

package pcap

import (
	"fmt"

	"github.com/asymingt/libsurvive/internal/capture"
)

// Replay is the disabled stand-in used when built without -tags=pcap.
type Replay struct{}

var _ capture.Source = (*Replay)(nil)

// Open always fails: rebuild with -tags=pcap to enable pcap replay.
func Open(pcapFile string, udpPort int) (*Replay, error) {
	return nil, fmt.Errorf("pcap replay not enabled: rebuild with -tags=pcap")
}

func (r *Replay) Next() (capture.RawEvent, error) { return capture.RawEvent{}, fmt.Errorf("pcap replay not enabled") }

func (r *Replay) Close() error { return nil }
