package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
)

// hourlyParams gives a 24-snapshot day so the forecast step is one hour.
func hourlyParams() series.Params {
	return series.Params{
		Capacity:  1000,
		Period:    24,
		Alpha:     0.3,
		Beta:      0.1,
		Gamma:     0.2,
		EMAAlpha:  0.3,
		SMAWindow: 4,
	}
}

func appendFlat(zs *series.ZoneSeries, start time.Time, step time.Duration, n int, rate float64) {
	for i := 0; i < n; i++ {
		zs.Append(parking.OccupancySnapshot{
			ZoneCode:      "A1",
			Timestamp:     start.Add(time.Duration(i) * step),
			OccupancyRate: rate,
		})
	}
}

func TestForecastInsufficientHistory(t *testing.T) {
	store := series.NewStore(hourlyParams())
	engine := NewEngine(store, 0, 0)

	if _, err := engine.Forecast("A1", time.Hour); !errors.Is(err, parking.ErrInsufficientHistory) {
		t.Errorf("unknown zone: got %v, want ErrInsufficientHistory", err)
	}

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendFlat(store.Zone("A1"), start, time.Hour, 1, 50)
	if _, err := engine.Forecast("A1", time.Hour); !errors.Is(err, parking.ErrInsufficientHistory) {
		t.Errorf("one snapshot: got %v, want ErrInsufficientHistory", err)
	}

	appendFlat(store.Zone("A1"), start.Add(time.Hour), time.Hour, 1, 50)
	if _, err := engine.Forecast("A1", time.Hour); err != nil {
		t.Errorf("two snapshots: unexpected error %v", err)
	}
}

func TestForecastRejectsNonPositiveHorizon(t *testing.T) {
	store := series.NewStore(hourlyParams())
	engine := NewEngine(store, 0, 0)
	if _, err := engine.Forecast("A1", 0); err == nil {
		t.Error("expected error for zero horizon")
	}
	if _, err := engine.Forecast("A1", -time.Hour); err == nil {
		t.Error("expected error for negative horizon")
	}
}

func TestForecastStepAndTimestamps(t *testing.T) {
	store := series.NewStore(hourlyParams())
	engine := NewEngine(store, 0, 0)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendFlat(store.Zone("A1"), start, time.Hour, 3, 50)
	latest := start.Add(2 * time.Hour)

	points, err := engine.Forecast("A1", 4*time.Hour)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("got %d points, want 4", len(points))
	}
	for i, p := range points {
		want := latest.Add(time.Duration(i+1) * time.Hour)
		if !p.Timestamp.Equal(want) {
			t.Errorf("point %d timestamp %v, want %v", i, p.Timestamp, want)
		}
	}
}

func TestForecastClampsHorizonToMax(t *testing.T) {
	store := series.NewStore(hourlyParams())
	engine := NewEngine(store, 2*time.Hour, 0)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendFlat(store.Zone("A1"), start, time.Hour, 3, 50)

	points, err := engine.Forecast("A1", 10*time.Hour)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("got %d points, want 2 after clamping to the max horizon", len(points))
	}
}

func TestForecastBoundsWidenWithHorizon(t *testing.T) {
	store := series.NewStore(hourlyParams())
	engine := NewEngine(store, 0, 0)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendFlat(store.Zone("A1"), start, time.Hour, 5, 50)

	points, err := engine.Forecast("A1", 4*time.Hour)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	prev := 0.0
	for i, p := range points {
		width := p.UpperBound - p.LowerBound
		if width <= prev {
			t.Errorf("point %d: interval width %.2f did not grow past %.2f", i, width, prev)
		}
		prev = width
		if p.LowerBound > p.PredictedRate || p.PredictedRate > p.UpperBound {
			t.Errorf("point %d: predicted %.2f outside [%.2f, %.2f]",
				i, p.PredictedRate, p.LowerBound, p.UpperBound)
		}
	}

	// Flat history leaves no residuals, so the fallback deviation drives
	// the interval: z * 10 * sqrt(h) either side of the level.
	wantWidth := 2 * 1.959964 * 10.0
	if got := points[0].UpperBound - points[0].LowerBound; math.Abs(got-wantWidth) > 0.01 {
		t.Errorf("first interval width %.3f, want %.3f", got, wantWidth)
	}
}

func TestForecastBoundsClampedToValidRate(t *testing.T) {
	store := series.NewStore(hourlyParams())
	engine := NewEngine(store, 0, 0)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendFlat(store.Zone("A1"), start, time.Hour, 5, 97)

	points, err := engine.Forecast("A1", 8*time.Hour)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	clamped := false
	for i, p := range points {
		if p.LowerBound < 0 || p.UpperBound > 100 {
			t.Errorf("point %d: bounds [%.2f, %.2f] escape [0, 100]", i, p.LowerBound, p.UpperBound)
		}
		if p.UpperBound == 100 {
			clamped = true
		}
	}
	if !clamped {
		t.Error("expected at least one upper bound clamped at 100 near full occupancy")
	}
}

func TestForecastTracksSeasonalPattern(t *testing.T) {
	params := hourlyParams()
	params.Period = 4
	store := series.NewStore(params)
	engine := NewEngine(store, 0, 0)

	pattern := []float64{20, 40, 60, 40}
	zs := store.Zone("A1")
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	step := 6 * time.Hour // 24h / period 4
	for i := 0; i < 3*len(pattern); i++ {
		zs.Append(parking.OccupancySnapshot{
			ZoneCode:      "A1",
			Timestamp:     start.Add(time.Duration(i) * step),
			OccupancyRate: pattern[i%len(pattern)],
		})
	}

	points, err := engine.Forecast("A1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("got %d points, want 4", len(points))
	}
	lo, hi := points[0].PredictedRate, points[0].PredictedRate
	for _, p := range points[1:] {
		lo = math.Min(lo, p.PredictedRate)
		hi = math.Max(hi, p.PredictedRate)
	}
	if hi-lo < 20 {
		t.Errorf("predictions span %.2f, want the seasonal swing to survive (>= 20)", hi-lo)
	}
}
