//go:build pcap
// +build pcap

// Package pcap replays photodiode pulse events recorded from a UDP
// capture, for offline testing of the disambiguator against a fixed
// dataset. Only available when built with -tags=pcap.
package pcap

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/asymingt/libsurvive/internal/capture"
)

// Replay is a capture.Source that reads UDP payloads out of a pcap file,
// one RawEvent per JSON-encoded UDP datagram.
type Replay struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

var _ capture.Source = (*Replay)(nil)

// Open opens pcapFile and filters to UDP traffic on udpPort.
func Open(pcapFile string, udpPort int) (*Replay, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("open pcap file %s: %w", pcapFile, err)
	}

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set BPF filter %q: %w", filter, err)
	}

	return &Replay{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
	}, nil
}

// Next returns the next decoded event, skipping non-UDP packets and
// packets with an empty payload. Returns io.EOF once the file is
// exhausted.
func (r *Replay) Next() (capture.RawEvent, error) {
	for packet := range r.source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		return capture.ParseLine(udp.Payload)
	}
	return capture.RawEvent{}, io.EOF
}

// Close releases the pcap handle.
func (r *Replay) Close() error {
	r.handle.Close()
	return nil
}
