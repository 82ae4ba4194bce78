// Command replay feeds a pcap capture (requires -tags=pcap) or an
// NDJSON fixture file through the disambiguator offline, printing every
// decoded lightproc record and a final lock summary per object.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/asymingt/libsurvive/internal/capture"
	capturepcap "github.com/asymingt/libsurvive/internal/capture/pcap"
	"github.com/asymingt/libsurvive/internal/config"
	"github.com/asymingt/libsurvive/internal/disambig/dispatcher"
	"github.com/asymingt/libsurvive/internal/lightproc"
)

var (
	pcapFile   = flag.String("pcap", "", "pcap file to replay (requires -tags=pcap)")
	fixture    = flag.String("fixture", "", "NDJSON fixture file of capture.RawEvent lines to replay")
	udpPort    = flag.Int("udp-port", 2369, "UDP port the pcap capture used")
	configFile = flag.String("config", "config/tuning.defaults.json", "path to JSON tuning configuration file")
	quiet      = flag.Bool("quiet", false, "suppress per-record output, print only the final summary")
)

// fixtureSource replays RawEvents from a plain NDJSON file, for
// environments without libpcap or a recorded capture handy.
type fixtureSource struct {
	scanner *bufio.Scanner
	file    *os.File
}

func openFixture(path string) (*fixtureSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &fixtureSource{scanner: bufio.NewScanner(f), file: f}, nil
}

func (s *fixtureSource) Next() (capture.RawEvent, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return capture.RawEvent{}, err
		}
		return capture.RawEvent{}, io.EOF
	}
	return capture.ParseLine(s.scanner.Bytes())
}

func (s *fixtureSource) Close() error { return s.file.Close() }

func main() {
	flag.Parse()

	if *pcapFile == "" && *fixture == "" {
		log.Fatal("one of -pcap or -fixture is required")
	}

	tuningCfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load tuning config from %s: %v", *configFile, err)
	}

	runID := uuid.New().String()
	log.Printf("replay run=%s", runID)

	var source capture.Source
	if *pcapFile != "" {
		source, err = capturepcap.Open(*pcapFile, *udpPort)
	} else {
		source, err = openFixture(*fixture)
	}
	if err != nil {
		log.Fatalf("failed to open capture source: %v", err)
	}
	defer source.Close()

	count := 0
	sink := lightproc.SinkFunc(func(r lightproc.Record) {
		count++
		if !*quiet {
			fmt.Printf("%s sensor=%d acode=%d offset=%d ts=%d len=%d lh=%d\n",
				r.Object, r.SensorID, r.Acode, r.OffsetInPhase, r.Timestamp, r.Length, r.LH)
		}
	})

	ctx := dispatcher.New(tuningCfg, sink)
	objects := map[string]bool{}

	for {
		e, err := source.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Fatalf("capture source error: %v", err)
		}
		objects[e.Object] = true
		ctx.Dispatch(dispatcher.Event{
			Object:      e.Object,
			SensorID:    e.SensorID,
			SensorCount: e.SensorCount,
			Timestamp:   e.Timestamp,
			Length:      e.Length,
		})
	}

	fmt.Printf("\nreplay complete: %d records emitted across %d objects\n", count, len(objects))
	for object := range objects {
		phase, confidence, _ := ctx.Snapshot(object)
		fmt.Printf("  %s: locked=%v mode=%s phase=%d confidence=%d\n",
			object, ctx.Locked(object), ctx.Mode(), phase, confidence)
	}
}
