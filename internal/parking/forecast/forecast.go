// Package forecast projects zone occupancy forward from the Holt-Winters
// state maintained by the series aggregator.
package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
)

// Engine produces bounded-horizon occupancy forecasts with confidence
// bounds that widen with distance.
type Engine struct {
	store *series.Store

	// maxHorizon caps requested horizons.
	maxHorizon time.Duration

	// z is the normal quantile for the configured confidence level
	// (1.96 for 95%).
	z float64

	// fallbackSigma stands in for the residual deviation while too few
	// one-step errors have accumulated to estimate one.
	fallbackSigma float64
}

// NewEngine creates a forecasting engine over the series store. Non-positive
// maxHorizon defaults to 48 hours; non-positive z defaults to the 95%
// quantile.
func NewEngine(store *series.Store, maxHorizon time.Duration, z float64) *Engine {
	if maxHorizon <= 0 {
		maxHorizon = 48 * time.Hour
	}
	if z <= 0 {
		z = 1.959964
	}
	return &Engine{
		store:         store,
		maxHorizon:    maxHorizon,
		z:             z,
		fallbackSigma: 10.0,
	}
}

// Forecast projects occupancy for a zone over the given horizon, one point
// per snapshot cadence step. Horizons beyond the configured maximum are
// clamped. With fewer than two history points it returns
// ErrInsufficientHistory rather than extrapolating from noise.
func (e *Engine) Forecast(zoneCode string, horizon time.Duration) ([]parking.ForecastPoint, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("forecast %s: non-positive horizon %s", zoneCode, horizon)
	}
	if horizon > e.maxHorizon {
		horizon = e.maxHorizon
	}

	zs, ok := e.store.Peek(zoneCode)
	if !ok || zs.Len() < 2 {
		return nil, fmt.Errorf("forecast %s: %w", zoneCode, parking.ErrInsufficientHistory)
	}

	latest, _ := zs.Latest()
	level, trend, sigma, seasonalAt, _ := zs.SmoothState()
	if sigma == 0 {
		sigma = e.fallbackSigma
	}

	params := e.store.Params()
	step := 24 * time.Hour / time.Duration(params.Period)
	steps := int(horizon / step)
	if steps < 1 {
		steps = 1
	}

	points := make([]parking.ForecastPoint, 0, steps)
	for h := 1; h <= steps; h++ {
		predicted := level + float64(h)*trend + seasonalAt(h)
		predicted = clampRate(predicted)

		// Uncertainty grows with the square root of the horizon.
		width := e.z * sigma * math.Sqrt(float64(h))
		points = append(points, parking.ForecastPoint{
			Timestamp:     latest.Timestamp.Add(time.Duration(h) * step),
			PredictedRate: predicted,
			LowerBound:    clampRate(predicted - width),
			UpperBound:    clampRate(predicted + width),
		})
	}
	return points, nil
}

func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
