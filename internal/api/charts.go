package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
)

// renderTrendChart renders a quick line chart (HTML) of a zone's occupancy
// history with its smoothed overlay using go-echarts. Debugging-only view;
// the production UI reads the JSON endpoints.
// Query params:
//   - zone (required)
//   - hours (optional; default 24)
func (s *Server) renderTrendChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	zone := r.URL.Query().Get("zone")
	if zone == "" {
		httputil.BadRequest(w, "missing 'zone' parameter")
		return
	}
	zs, ok := s.store.Peek(zone)
	if !ok {
		httputil.NotFound(w, "no history for zone: "+zone)
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 24*14 {
			hours = parsed
		}
	}

	snaps := zs.Since(time.Now().UTC().Add(-time.Duration(hours) * time.Hour))
	if len(snaps) == 0 {
		httputil.NotFound(w, "no snapshots in window for zone: "+zone)
		return
	}

	labels := make([]string, len(snaps))
	raw := make([]opts.LineData, len(snaps))
	rates := make([]float64, len(snaps))
	for i, snap := range snaps {
		labels[i] = snap.Timestamp.Format("15:04")
		raw[i] = opts.LineData{Value: snap.OccupancyRate}
		rates[i] = snap.OccupancyRate
	}

	smoothedValues := series.SMA(rates, s.store.Params().SMAWindow)
	smoothed := make([]opts.LineData, len(smoothedValues))
	for i, v := range smoothedValues {
		smoothed[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy Trend", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Zone " + zone + " occupancy", Subtitle: fmt.Sprintf("last %dh, %d snapshots", hours, len(snaps))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "occupancy %"}),
	)

	line.SetXAxis(labels).
		AddSeries("raw", raw).
		AddSeries("smoothed", smoothed, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
