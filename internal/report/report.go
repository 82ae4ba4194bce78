// Package report serves debug-only HTML charts of disambiguator state,
// built with go-echarts the same way the rest of the stack renders its
// ad-hoc visualisations: no auth, no Svelte build step, just a server
// rendering a chart to a buffer and writing it straight to the response.
package report

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/asymingt/libsurvive/internal/disambig/dispatcher"
	"github.com/asymingt/libsurvive/internal/storage/sqlite"
)

// echartsAssetsPrefix points the rendered pages at the go-echarts CDN
// build of the echarts.js assets.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Server renders debug charts from live dispatcher state and, if a store
// is wired, historical lightproc records.
type Server struct {
	ctx   *dispatcher.Context
	store *sqlite.Store // optional; nil disables the history endpoint
}

// New creates a report server over a dispatch context. store may be nil
// if no historical record endpoint is needed.
func New(ctx *dispatcher.Context, store *sqlite.Store) *Server {
	return &Server{ctx: ctx, store: store}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// RegisterRoutes mounts the debug chart handlers under the given mux,
// matching the teacher's convention of plain unauthenticated debug
// endpoints rather than a dedicated admin router.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/disambig/history", s.handleHistoryChart)
	mux.HandleFunc("/debug/disambig/snapshot", s.handleSnapshotChart)
}

// handleHistoryChart renders a line chart of offset_in_phase over time for
// a tracked object's recent persisted lightproc records. Sync records are
// not filtered out; they plot at offset 0.
// Query params: object (required), max_points (optional, default 2000).
func (s *Server) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "no storage wired for history")
		return
	}

	object := r.URL.Query().Get("object")
	if object == "" {
		s.writeError(w, http.StatusBadRequest, "object query param required")
		return
	}

	maxPoints := 2000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 10 && v <= 50000 {
			maxPoints = v
		}
	}

	records, err := s.store.RecentRecords(object, maxPoints)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load records: %v", err))
		return
	}
	if len(records) == 0 {
		s.writeError(w, http.StatusNotFound, "no records for object")
		return
	}

	// RecentRecords returns newest first; the timeline reads left to right.
	xAxis := make([]string, len(records))
	offsets := make([]opts.LineData, len(records))
	maxOffset := 0.0
	for i := range records {
		r := records[len(records)-1-i]
		xAxis[i] = strconv.FormatUint(uint64(r.Timestamp), 10)
		v := float64(r.OffsetInPhase)
		offsets[i] = opts.LineData{Value: v}
		if math.Abs(v) > maxOffset {
			maxOffset = math.Abs(v)
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Disambiguator History", Theme: "dark", Width: "1100px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Decoded Offset In Phase", Subtitle: fmt.Sprintf("object=%s points=%d", object, len(records))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "offset (ticks)", Min: -maxOffset * 1.05, Max: maxOffset * 1.05}),
	)
	line.SetXAxis(xAxis).AddSeries("offset_in_phase", offsets, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSnapshotChart renders a bar chart of the current phase and
// confidence for a single tracked object, straight from live dispatcher
// state rather than storage.
func (s *Server) handleSnapshotChart(w http.ResponseWriter, r *http.Request) {
	object := r.URL.Query().Get("object")
	if object == "" {
		s.writeError(w, http.StatusBadRequest, "object query param required")
		return
	}

	phase, confidence, ok := s.ctx.Snapshot(object)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown object")
		return
	}
	locked := s.ctx.Locked(object)

	x := []string{"phase", "confidence", "locked"}
	lockedVal := 0
	if locked {
		lockedVal = 1
	}
	y := []opts.BarData{
		{Value: phase},
		{Value: confidence},
		{Value: lockedVal},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Tracker Snapshot", Subtitle: fmt.Sprintf("object=%s mode=%s", object, s.ctx.Mode())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("snapshot", y, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
