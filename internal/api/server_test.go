package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/parking/anomaly"
	"github.com/banshee-data/occupancy.report/internal/parking/forecast"
	"github.com/banshee-data/occupancy.report/internal/parking/hub"
	"github.com/banshee-data/occupancy.report/internal/parking/ingest"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
)

type testEnv struct {
	server   *Server
	mux      *http.ServeMux
	registry *parking.Registry
	states   *parking.StateManager
	pipeline *ingest.Pipeline
	store    *series.Store
	db       *db.DB
	dbPath   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := t.Name() + ".db"
	_ = os.Remove(dbPath)
	database, err := db.NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
		_ = os.Remove(dbPath)
		_ = os.Remove(dbPath + "-shm")
		_ = os.Remove(dbPath + "-wal")
	})

	registry := parking.NewRegistry()
	h := hub.NewHub(hub.DefaultBufferDepth)
	t.Cleanup(h.Close)
	states := parking.NewStateManager(registry, func(change parking.StateChange) {
		h.Publish(hub.Notification{
			Type:      hub.TypeStateUpdate,
			ZoneCode:  change.ZoneCode,
			Payload:   change,
			Timestamp: change.Timestamp,
		})
	})

	cfg := ingest.DefaultConfig()
	cfg.ReorderWindow = 0 // apply immediately in tests
	pipeline := ingest.NewPipeline(registry, states, cfg, nil)

	store := series.NewStore(series.DefaultParams())
	engine := forecast.NewEngine(store, 0, 0)

	server := NewServer(ServerConfig{
		Registry: registry,
		States:   states,
		Pipeline: pipeline,
		Store:    store,
		Forecast: engine,
		Anomaly:  anomaly.NewDetector(),
		Hub:      h,
		DB:       database,
	})

	return &testEnv{
		server:   server,
		mux:      server.ServeMux(),
		registry: registry,
		states:   states,
		pipeline: pipeline,
		store:    store,
		db:       database,
		dbPath:   dbPath,
	}
}

func (env *testEnv) addZone(t *testing.T, code string, totalSpots int) {
	t.Helper()
	zone := parking.Zone{
		ZoneCode:   code,
		Name:       "Zone " + code,
		TotalSpots: totalSpots,
		IsActive:   true,
	}
	if err := env.registry.Upsert(zone); err != nil {
		t.Fatalf("failed to add zone %s: %v", code, err)
	}
}

func (env *testEnv) postEvent(t *testing.T, event parking.Event) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestEvent_Accepted(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	rec := env.postEvent(t, parking.Event{
		EventID:    "evt-1",
		ZoneCode:   "A1",
		EventType:  parking.EventEntry,
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for accepted event, got %d: %s", rec.Code, rec.Body.String())
	}

	var result ingest.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Status != ingest.StatusAccepted {
		t.Errorf("expected accepted status, got %s", result.Status)
	}

	state, err := env.states.Get("A1")
	if err != nil {
		t.Fatalf("failed to get state: %v", err)
	}
	if state.OccupiedSpots != 1 {
		t.Errorf("expected 1 occupied after entry, got %d", state.OccupiedSpots)
	}
}

func TestIngestEvent_DuplicateIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	event := parking.Event{
		EventID:    "evt-dup",
		ZoneCode:   "A1",
		EventType:  parking.EventEntry,
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	}

	first := env.postEvent(t, event)
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for first event, got %d", first.Code)
	}
	second := env.postEvent(t, event)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate event, got %d", second.Code)
	}

	var result ingest.Result
	if err := json.NewDecoder(second.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Status != ingest.StatusDuplicate {
		t.Errorf("expected duplicate status, got %s", result.Status)
	}

	state, _ := env.states.Get("A1")
	if state.OccupiedSpots != 1 {
		t.Errorf("expected 1 occupied after duplicate replay, got %d", state.OccupiedSpots)
	}
}

func TestIngestEvent_RejectedUnknownZone(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postEvent(t, parking.Event{
		EventID:    "evt-x",
		ZoneCode:   "nope",
		EventType:  parking.EventEntry,
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown zone, got %d", rec.Code)
	}

	var result ingest.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Status != ingest.StatusRejected {
		t.Errorf("expected rejected status, got %s", result.Status)
	}
}

func TestIngestEvent_BadPayload(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad payload, got %d", rec.Code)
	}
}

func TestEntriesAndExitsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	now := time.Now().UTC()
	for i := 0; i < 80; i++ {
		rec := env.postEvent(t, parking.Event{
			EventID:    fmt.Sprintf("entry-%d", i),
			ZoneCode:   "A1",
			EventType:  parking.EventEntry,
			Confidence: 0.9,
			Timestamp:  now.Add(time.Duration(i) * time.Millisecond),
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("entry %d: expected 202, got %d", i, rec.Code)
		}
	}
	for i := 0; i < 5; i++ {
		rec := env.postEvent(t, parking.Event{
			EventID:    fmt.Sprintf("exit-%d", i),
			ZoneCode:   "A1",
			EventType:  parking.EventExit,
			Confidence: 0.9,
			Timestamp:  now.Add(time.Second + time.Duration(i)*time.Millisecond),
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("exit %d: expected 202, got %d", i, rec.Code)
		}
	}

	rec := env.get(t, "/api/zones/A1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from zone detail, got %d", rec.Code)
	}
	var detail zoneDetail
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatalf("failed to decode zone detail: %v", err)
	}
	if detail.OccupiedSpots != 75 {
		t.Errorf("expected 75 occupied, got %d", detail.OccupiedSpots)
	}
	if detail.OccupancyRate != 75.0 {
		t.Errorf("expected 75.0%% occupancy, got %.2f", detail.OccupancyRate)
	}
	if detail.AvailableSpots != 25 {
		t.Errorf("expected 25 available, got %d", detail.AvailableSpots)
	}
}

func TestZonesCRUD(t *testing.T) {
	env := newTestEnv(t)

	zone := parking.Zone{
		ZoneCode:   "B2",
		Name:       "Level B compact",
		ZoneType:   parking.ZoneCompact,
		TotalSpots: 40,
		IsActive:   true,
	}
	body, _ := json.Marshal(zone)
	req := httptest.NewRequest(http.MethodPost, "/api/zones", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating zone, got %d: %s", rec.Code, rec.Body.String())
	}

	// Zone must round-trip to the durable store too.
	stored, err := env.db.GetZone("B2")
	if err != nil {
		t.Fatalf("zone not persisted: %v", err)
	}
	if stored.TotalSpots != 40 {
		t.Errorf("expected 40 persisted spots, got %d", stored.TotalSpots)
	}

	list := env.get(t, "/api/zones?active=true")
	var zones []parking.Zone
	if err := json.NewDecoder(list.Body).Decode(&zones); err != nil {
		t.Fatalf("failed to decode zones: %v", err)
	}
	if len(zones) != 1 || zones[0].ZoneCode != "B2" {
		t.Errorf("expected single active zone B2, got %+v", zones)
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/zones/B2", nil)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, del)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deactivating zone, got %d", rec.Code)
	}

	list = env.get(t, "/api/zones?active=true")
	zones = nil
	if err := json.NewDecoder(list.Body).Decode(&zones); err != nil {
		t.Fatalf("failed to decode zones: %v", err)
	}
	if len(zones) != 0 {
		t.Errorf("expected no active zones after deactivation, got %d", len(zones))
	}
}

func TestZoneDetail_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/zones/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown zone, got %d", rec.Code)
	}
}

func TestForecast_EmptyWithInsufficientHistory(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	// One snapshot is not enough history to forecast from.
	env.store.Zone("A1").Append(parking.OccupancySnapshot{
		ZoneCode:      "A1",
		Timestamp:     time.Now().UTC(),
		OccupiedSpots: 10,
		TotalSpots:    100,
		OccupancyRate: 10,
	})

	rec := env.get(t, "/api/analytics/forecast?zone=A1&horizon=2h")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for insufficient history, got %d", rec.Code)
	}

	var resp forecastResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode forecast: %v", err)
	}
	if len(resp.Points) != 0 {
		t.Errorf("expected empty forecast, got %d points", len(resp.Points))
	}
}

func TestForecast_BoundsWithinRange(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	zs := env.store.Zone("A1")
	base := time.Now().UTC().Add(-10 * time.Hour)
	for i := 0; i < 120; i++ {
		rate := 40 + 20*float64(i%12)/12
		zs.Append(parking.OccupancySnapshot{
			ZoneCode:      "A1",
			Timestamp:     base.Add(time.Duration(i) * 5 * time.Minute),
			OccupiedSpots: int(rate),
			TotalSpots:    100,
			OccupancyRate: rate,
		})
	}

	rec := env.get(t, "/api/analytics/forecast?zone=A1&horizon=1h")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp forecastResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode forecast: %v", err)
	}
	if len(resp.Points) == 0 {
		t.Fatal("expected forecast points")
	}
	for _, p := range resp.Points {
		if p.PredictedRate < 0 || p.PredictedRate > 100 {
			t.Errorf("predicted rate out of range: %.2f", p.PredictedRate)
		}
		if p.LowerBound > p.PredictedRate || p.UpperBound < p.PredictedRate {
			t.Errorf("bounds do not bracket prediction: [%.2f, %.2f] around %.2f",
				p.LowerBound, p.UpperBound, p.PredictedRate)
		}
	}
}

func TestTrend_Methods(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	zs := env.store.Zone("A1")
	base := time.Now().UTC().Add(-2 * time.Hour)
	for i := 0; i < 24; i++ {
		zs.Append(parking.OccupancySnapshot{
			ZoneCode:      "A1",
			Timestamp:     base.Add(time.Duration(i) * 5 * time.Minute),
			OccupancyRate: float64(30 + i),
			OccupiedSpots: 30 + i,
			TotalSpots:    100,
		})
	}

	for _, method := range []string{"sma", "ema", "holt"} {
		rec := env.get(t, "/api/analytics/trend?zone=A1&method="+method)
		if rec.Code != http.StatusOK {
			t.Fatalf("method %s: expected 200, got %d: %s", method, rec.Code, rec.Body.String())
		}
		var resp trendResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("method %s: failed to decode: %v", method, err)
		}
		if len(resp.Points) != 24 {
			t.Errorf("method %s: expected 24 points, got %d", method, len(resp.Points))
		}
	}

	rec := env.get(t, "/api/analytics/trend?zone=A1&method=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown method, got %d", rec.Code)
	}
}

func TestTrend_FlagsAnomalies(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	// A week of unremarkable readings at the current hour of day, then an
	// outlier just now. The detector baseline needs at least 20 comparable
	// points, so plant four per hour.
	zs := env.store.Zone("A1")
	now := time.Now().UTC()
	for day := 7; day >= 1; day-- {
		base := now.AddDate(0, 0, -day)
		for q := 0; q < 4; q++ {
			ts := time.Date(base.Year(), base.Month(), base.Day(), base.Hour(), q*15, 0, 0, time.UTC)
			rate := 38 + float64((day+q)%5)
			zs.Append(parking.OccupancySnapshot{
				ZoneCode: "A1", Timestamp: ts,
				OccupancyRate: rate, OccupiedSpots: int(rate), TotalSpots: 100,
			})
		}
	}
	zs.Append(parking.OccupancySnapshot{
		ZoneCode: "A1", Timestamp: now,
		OccupancyRate: 95, OccupiedSpots: 95, TotalSpots: 100,
	})

	rec := env.get(t, "/api/analytics/trend?zone=A1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp trendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode trend: %v", err)
	}
	if len(resp.Anomalies) != 1 {
		t.Fatalf("expected 1 flagged anomaly, got %d (%+v)", len(resp.Anomalies), resp.Anomalies)
	}
	a := resp.Anomalies[0]
	if a.ObservedRate != 95 {
		t.Errorf("flagged observed rate %.1f, want 95", a.ObservedRate)
	}
	if a.Severity != parking.SeverityHigh {
		t.Errorf("severity = %q, want %q (z = %.1f)", a.Severity, parking.SeverityHigh, a.ZScore)
	}
	if a.ExpectedRate < 35 || a.ExpectedRate > 45 {
		t.Errorf("expected rate %.1f, want near 40", a.ExpectedRate)
	}
}

func TestPeakHours(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	zs := env.store.Zone("A1")
	now := time.Now().UTC()
	// Busy at hour 9, quiet at hour 3, across the past 3 days.
	for day := 1; day <= 3; day++ {
		base := now.AddDate(0, 0, -day)
		busy := time.Date(base.Year(), base.Month(), base.Day(), 9, 0, 0, 0, time.UTC)
		quiet := time.Date(base.Year(), base.Month(), base.Day(), 3, 0, 0, 0, time.UTC)
		zs.Append(parking.OccupancySnapshot{ZoneCode: "A1", Timestamp: busy, OccupancyRate: 90, OccupiedSpots: 90, TotalSpots: 100})
		zs.Append(parking.OccupancySnapshot{ZoneCode: "A1", Timestamp: quiet, OccupancyRate: 10, OccupiedSpots: 10, TotalSpots: 100})
	}

	rec := env.get(t, "/api/analytics/peak-hours?zone=A1&days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp peakHoursResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode peak hours: %v", err)
	}
	if len(resp.Hours) != 2 {
		t.Fatalf("expected 2 hour buckets, got %d", len(resp.Hours))
	}
	if resp.Hours[0].Hour != 9 {
		t.Errorf("expected hour 9 busiest, got hour %d", resp.Hours[0].Hour)
	}
	if resp.Hours[0].MeanRate != 90 {
		t.Errorf("expected mean 90 for hour 9, got %.2f", resp.Hours[0].MeanRate)
	}
}

func TestArrivalRate(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	// 6 entries over 30 minutes -> about 12/hour.
	now := time.Now().UTC()
	for i := 0; i < 6; i++ {
		rec := env.postEvent(t, parking.Event{
			EventID:    fmt.Sprintf("arr-%d", i),
			ZoneCode:   "A1",
			EventType:  parking.EventEntry,
			Confidence: 0.9,
			Timestamp:  now.Add(-30*time.Minute + time.Duration(i)*6*time.Minute),
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("entry %d: expected 202, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := env.get(t, "/api/analytics/arrival-rate?zone=A1&window=1h")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp arrivalRateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode arrival rate: %v", err)
	}
	if resp.TotalArrivals != 6 {
		t.Errorf("expected 6 arrivals, got %d", resp.TotalArrivals)
	}
	if resp.ExpectedPerHour < 10 || resp.ExpectedPerHour > 14 {
		t.Errorf("expected roughly 12 arrivals/hour, got %.2f", resp.ExpectedPerHour)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)
	env.addZone(t, "B2", 50)

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		env.postEvent(t, parking.Event{
			EventID:    fmt.Sprintf("dash-%d", i),
			ZoneCode:   "A1",
			EventType:  parking.EventEntry,
			Confidence: 0.9,
			Timestamp:  now,
		})
	}

	rec := env.get(t, "/api/analytics/dashboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dashboardResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode dashboard: %v", err)
	}
	if len(resp.Zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(resp.Zones))
	}
	if resp.TotalSpots != 150 {
		t.Errorf("expected 150 total spots, got %d", resp.TotalSpots)
	}
	if resp.TotalOccupied != 10 {
		t.Errorf("expected 10 occupied, got %d", resp.TotalOccupied)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	env.postEvent(t, parking.Event{
		EventID:    "log-1",
		ZoneCode:   "A1",
		EventType:  parking.EventEntry,
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	})

	rec := env.get(t, "/api/events?zone=A1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var events []parking.Event
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("failed to decode events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 logged event, got %d", len(events))
	}

	rec = env.get(t, "/api/events?since=notatime")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad since, got %d", rec.Code)
	}
}

func TestIngestStats(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	env.postEvent(t, parking.Event{
		EventID:    "stat-1",
		ZoneCode:   "A1",
		EventType:  parking.EventEntry,
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	})
	env.postEvent(t, parking.Event{
		EventID:    "stat-1",
		ZoneCode:   "A1",
		EventType:  parking.EventEntry,
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	})

	rec := env.get(t, "/api/ingest/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats ingest.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Accepted != 1 || stats.Duplicates != 1 {
		t.Errorf("expected 1 accepted and 1 duplicate, got %+v", stats)
	}
}

func TestTrendChart_RendersHTML(t *testing.T) {
	env := newTestEnv(t)
	env.addZone(t, "A1", 100)

	zs := env.store.Zone("A1")
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		zs.Append(parking.OccupancySnapshot{
			ZoneCode:      "A1",
			Timestamp:     base.Add(time.Duration(i) * 5 * time.Minute),
			OccupancyRate: float64(40 + i),
			OccupiedSpots: 40 + i,
			TotalSpots:    100,
		})
	}

	rec := env.get(t, "/api/charts/trend?zone=A1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html content type, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("expected rendered chart to reference echarts")
	}
}
