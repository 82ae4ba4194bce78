// Command lighthoused runs the disambiguator against a live serial
// capture source, persists decoded records, and serves debug charts and
// a SQL console over HTTP. It has no pcap input; recorded captures are
// replayed with cmd/tools/replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/asymingt/libsurvive/internal/capture"
	captureserial "github.com/asymingt/libsurvive/internal/capture/serial"
	"github.com/asymingt/libsurvive/internal/config"
	"github.com/asymingt/libsurvive/internal/disambig/dispatcher"
	"github.com/asymingt/libsurvive/internal/lightproc"
	"github.com/asymingt/libsurvive/internal/report"
	"github.com/asymingt/libsurvive/internal/storage/sqlite"
	"github.com/asymingt/libsurvive/internal/version"
)

// storeSink adapts an optional *sqlite.Store to lightproc.Sink, returning
// nil (dispatcher.New's cue to discard) when storage is disabled.
func storeSink(store *sqlite.Store) lightproc.Sink {
	if store == nil {
		return nil
	}
	return store
}

var (
	listen       = flag.String("listen", ":8090", "HTTP listen address for debug charts and SQL console")
	port         = flag.String("port", "/dev/ttyACM0", "Serial port the capture source is attached to")
	baudRate     = flag.Int("baud", 115200, "Serial baud rate")
	dbPathFlag   = flag.String("db-path", "lighthouse.db", "Path to the sqlite database file")
	configFile   = flag.String("config", "config/tuning.defaults.json", "Path to JSON tuning configuration file")
	disableStore = flag.Bool("disable-store", false, "Run without persisting decoded records (debug charts still work from live state)")
	versionFlag  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *versionFlag {
		fmt.Printf("lighthoused v%s (git SHA: %s)\n", version.Version, version.GitSHA)
		os.Exit(0)
	}

	sessionID := uuid.New().String()
	log.Printf("lighthoused v%s starting, session=%s", version.Version, sessionID)

	tuningCfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load tuning config from %s: %v", *configFile, err)
	}
	log.Printf("loaded tuning configuration from %s", *configFile)

	var store *sqlite.Store
	if !*disableStore {
		store, err = sqlite.Open(*dbPathFlag)
		if err != nil {
			log.Fatalf("failed to open database %s: %v", *dbPathFlag, err)
		}
		defer store.Close()
	}

	ctx := dispatcher.New(tuningCfg, storeSink(store))

	source, err := captureserial.Open(*port, captureserial.PortOptions{BaudRate: *baudRate})
	if err != nil {
		log.Fatalf("failed to open capture source %s: %v", *port, err)
	}
	defer source.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runCaptureLoop(runCtx, source, ctx)
	}()

	reportServer := report.New(ctx, store)
	mux := http.NewServeMux()
	reportServer.RegisterRoutes(mux)
	if store != nil {
		store.AttachAdminRoutes(mux)
	}

	httpServer := &http.Server{Addr: *listen, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("debug HTTP server listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	<-runCtx.Done()
	log.Printf("shutting down")
	_ = httpServer.Close()
	wg.Wait()
	log.Printf("graceful shutdown complete")
}

// runCaptureLoop reads events from source until it's exhausted or the
// context is cancelled, dispatching each one into the disambiguator.
func runCaptureLoop(ctx context.Context, source capture.Source, dispatch *dispatcher.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e, err := source.Next()
		if err != nil {
			if err == io.EOF {
				log.Printf("capture source exhausted")
				return
			}
			log.Printf("capture source error: %v", err)
			return
		}

		dispatch.Dispatch(dispatcher.Event{
			Object:      e.Object,
			SensorID:    e.SensorID,
			SensorCount: e.SensorCount,
			Timestamp:   e.Timestamp,
			Length:      e.Length,
		})
	}
}
