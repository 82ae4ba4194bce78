// Package serial reads photodiode pulse events from a real serial port,
// one JSON line per event, the same way the rest of the stack talks to
// line-oriented sensor firmware.
package serial

import (
	"bufio"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/asymingt/libsurvive/internal/capture"
)

// PortOptions describes the serial connection parameters used to open
// the hardware link.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Normalize validates the options and fills in defaults for unset
// fields.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}
	if opts.Parity == "" {
		opts.Parity = "N"
	}
	return opts, nil
}

func (o PortOptions) serialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.StopBits(opts.StopBits - 1),
	}
	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}
	return mode, nil
}

// Reader is a capture.Source backed by a real serial port.
type Reader struct {
	port    serial.Port
	scanner *bufio.Scanner
}

var _ capture.Source = (*Reader)(nil)

// Open opens path at the given settings and returns a Reader ready for
// Next().
func Open(path string, opts PortOptions) (*Reader, error) {
	mode, err := opts.serialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return &Reader{
		port:    port,
		scanner: bufio.NewScanner(port),
	}, nil
}

// Next reads and decodes the next event line from the port.
func (r *Reader) Next() (capture.RawEvent, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return capture.RawEvent{}, err
		}
		return capture.RawEvent{}, io.EOF
	}
	return capture.ParseLine(r.scanner.Bytes())
}

// Close closes the underlying port.
func (r *Reader) Close() error {
	return r.port.Close()
}
