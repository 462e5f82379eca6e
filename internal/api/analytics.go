package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
)

// dashboardEntry is one zone's live summary on the facility dashboard.
type dashboardEntry struct {
	ZoneCode       string    `json:"zone_code"`
	Name           string    `json:"name"`
	ZoneType       string    `json:"zone_type"`
	OccupiedSpots  int       `json:"occupied_spots"`
	TotalSpots     int       `json:"total_spots"`
	AvailableSpots int       `json:"available_spots"`
	OccupancyRate  float64   `json:"occupancy_rate"`
	LastEventTime  time.Time `json:"last_event_timestamp"`
	SmoothedRate   *float64  `json:"smoothed_rate,omitempty"`
}

type dashboardResponse struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	TotalSpots     int              `json:"total_spots"`
	TotalOccupied  int              `json:"total_occupied"`
	TotalAvailable int              `json:"total_available"`
	FacilityRate   float64          `json:"facility_rate"`
	Zones          []dashboardEntry `json:"zones"`
}

func (s *Server) showDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := dashboardResponse{
		GeneratedAt: time.Now().UTC(),
		Zones:       []dashboardEntry{},
	}

	for _, zone := range s.registry.List(true) {
		state, err := s.states.Get(zone.ZoneCode)
		if err != nil {
			continue
		}
		entry := dashboardEntry{
			ZoneCode:       zone.ZoneCode,
			Name:           zone.Name,
			ZoneType:       string(zone.ZoneType),
			OccupiedSpots:  state.OccupiedSpots,
			TotalSpots:     state.TotalSpots,
			AvailableSpots: state.AvailableSpots(),
			OccupancyRate:  state.OccupancyRate(),
			LastEventTime:  state.LastEventTime,
		}
		if zs, ok := s.store.Peek(zone.ZoneCode); ok {
			if level, _, _, _, ready := zs.SmoothState(); ready {
				entry.SmoothedRate = &level
			}
		}
		resp.TotalSpots += state.TotalSpots
		resp.TotalOccupied += state.OccupiedSpots
		resp.TotalAvailable += state.AvailableSpots()
		resp.Zones = append(resp.Zones, entry)
	}
	if resp.TotalSpots > 0 {
		resp.FacilityRate = float64(resp.TotalOccupied) / float64(resp.TotalSpots) * 100
	}

	httputil.WriteJSONOK(w, resp)
}

// trendPoint pairs a raw snapshot with its smoothed values.
type trendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       float64   `json:"raw"`
	Smoothed  float64   `json:"smoothed"`
}

type trendResponse struct {
	ZoneCode  string            `json:"zone_code"`
	Method    string            `json:"method"`
	Points    []trendPoint      `json:"points"`
	Anomalies []parking.Anomaly `json:"anomalies"`
}

// showTrend returns a zone's occupancy history smoothed on demand with the
// requested method (sma, ema, or the standing holt decomposition), plus
// any readings in the window the anomaly detector flags.
func (s *Server) showTrend(w http.ResponseWriter, r *http.Request) {
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

	method := r.URL.Query().Get("method")
	if method == "" {
		method = "sma"
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'hours' parameter")
			return
		}
		hours = parsed
	}

	snaps := zs.Since(time.Now().UTC().Add(-time.Duration(hours) * time.Hour))
	rates := make([]float64, len(snaps))
	for i, snap := range snaps {
		rates[i] = snap.OccupancyRate
	}

	params := s.store.Params()
	var smoothed []float64
	switch method {
	case "sma":
		window := params.SMAWindow
		if v := r.URL.Query().Get("window"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				httputil.BadRequest(w, "invalid 'window' parameter")
				return
			}
			window = parsed
		}
		smoothed = series.SMA(rates, window)
	case "ema":
		alpha := params.EMAAlpha
		if v := r.URL.Query().Get("alpha"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || parsed <= 0 || parsed > 1 {
				httputil.BadRequest(w, "invalid 'alpha' parameter")
				return
			}
			alpha = parsed
		}
		smoothed = series.EMA(rates, alpha)
	case "holt":
		// Replay the history through a fresh decomposition so the
		// smoothed series lines up with the returned window.
		hw := series.NewHoltWinters(params.Alpha, params.Beta, params.Gamma, params.Period)
		smoothed = make([]float64, len(rates))
		for i, rate := range rates {
			level, _, seasonal, _ := hw.Update(rate)
			smoothed[i] = level + seasonal
		}
	default:
		httputil.BadRequest(w, "unknown smoothing method: "+method)
		return
	}

	points := make([]trendPoint, len(snaps))
	for i, snap := range snaps {
		points[i] = trendPoint{
			Timestamp: snap.Timestamp,
			Raw:       snap.OccupancyRate,
			Smoothed:  smoothed[i],
		}
	}

	// Re-check each point in the window against the zone's full stored
	// history so outliers are flagged on the chart.
	anomalies := []parking.Anomaly{}
	if s.anomaly != nil {
		history := zs.Snapshots()
		for _, snap := range snaps {
			if a := s.anomaly.Check(history, snap); a != nil {
				anomalies = append(anomalies, *a)
			}
		}
	}

	httputil.WriteJSONOK(w, trendResponse{
		ZoneCode:  zone,
		Method:    method,
		Points:    points,
		Anomalies: anomalies,
	})
}

func (s *Server) showForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	zone := r.URL.Query().Get("zone")
	if zone == "" {
		httputil.BadRequest(w, "missing 'zone' parameter")
		return
	}

	horizon := 4 * time.Hour
	if v := r.URL.Query().Get("horizon"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "invalid 'horizon' parameter, want a duration like 4h")
			return
		}
		horizon = parsed
	}

	points, err := s.forecast.Forecast(zone, horizon)
	if err != nil {
		if errors.Is(err, parking.ErrInsufficientHistory) {
			// Not enough history is an empty forecast, not a failure.
			httputil.WriteJSONOK(w, forecastResponse{ZoneCode: zone, Points: []parking.ForecastPoint{}})
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}

	httputil.WriteJSONOK(w, forecastResponse{ZoneCode: zone, Points: points})
}

type forecastResponse struct {
	ZoneCode string                  `json:"zone_code"`
	Points   []parking.ForecastPoint `json:"points"`
}

// peakHour is the mean occupancy for one hour of the day.
type peakHour struct {
	Hour     int     `json:"hour"`
	MeanRate float64 `json:"mean_rate"`
	Samples  int     `json:"samples"`
}

type peakHoursResponse struct {
	ZoneCode string     `json:"zone_code"`
	Days     int        `json:"days"`
	Hours    []peakHour `json:"hours"`
}

// showPeakHours buckets a zone's snapshot history by UTC hour of day and
// returns the hourly means sorted busiest first.
func (s *Server) showPeakHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	zone := r.URL.Query().Get("zone")
	if zone == "" {
		httputil.BadRequest(w, "missing 'zone' parameter")
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'days' parameter")
			return
		}
		days = parsed
	}

	zs, ok := s.store.Peek(zone)
	if !ok {
		httputil.NotFound(w, "no history for zone: "+zone)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	var sums [24]float64
	var counts [24]int
	for _, snap := range zs.Since(since) {
		h := snap.Timestamp.UTC().Hour()
		sums[h] += snap.OccupancyRate
		counts[h]++
	}

	hours := []peakHour{}
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		hours = append(hours, peakHour{
			Hour:     h,
			MeanRate: sums[h] / float64(counts[h]),
			Samples:  counts[h],
		})
	}
	sort.Slice(hours, func(i, j int) bool {
		if hours[i].MeanRate != hours[j].MeanRate {
			return hours[i].MeanRate > hours[j].MeanRate
		}
		return hours[i].Hour < hours[j].Hour
	})

	httputil.WriteJSONOK(w, peakHoursResponse{ZoneCode: zone, Days: days, Hours: hours})
}

type arrivalRateResponse struct {
	ZoneCode string `json:"zone_code"`
	Window   string `json:"window"`
	parking.ArrivalStats
}

// showArrivalRate fits a Poisson rate to the entry events seen for a zone
// within the lookback window.
func (s *Server) showArrivalRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	zone := r.URL.Query().Get("zone")
	if zone == "" {
		httputil.BadRequest(w, "missing 'zone' parameter")
		return
	}
	if _, ok := s.registry.Get(zone); !ok {
		httputil.NotFound(w, "unknown zone: "+zone)
		return
	}

	window := time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "invalid 'window' parameter, want a duration like 1h")
			return
		}
		window = parsed
	}

	now := time.Now().UTC()
	timestamps, err := s.db.EntryTimestamps(zone, now.Add(-window), now)
	if err != nil {
		httputil.InternalServerError(w, "failed to load entry events: "+err.Error())
		return
	}

	httputil.WriteJSONOK(w, arrivalRateResponse{
		ZoneCode:     zone,
		Window:       window.String(),
		ArrivalStats: parking.EstimateArrivalRate(timestamps),
	})
}
