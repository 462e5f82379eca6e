package series

import (
	"gonum.org/v1/gonum/stat"
)

// SMA computes the simple moving average over the trailing window of k
// values. Entries before a full window average whatever is available.
func SMA(values []float64, k int) []float64 {
	if len(values) == 0 || k <= 0 {
		return nil
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		n := k
		if i+1 < k {
			n = i + 1
		} else if i >= k {
			sum -= values[i-k]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// EMA computes the exponential moving average, seeded with the first value:
//
//	EMA_t = alpha*x_t + (1-alpha)*EMA_{t-1}
func EMA(values []float64, alpha float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// maxResiduals bounds the one-step forecast error window used for
// confidence intervals (one day at the default 5-minute cadence).
const maxResiduals = 288

// HoltWinters is an additive triple-exponential smoother: level, trend, and
// a seasonal component indexed by position within the period. Additive
// seasonality is used throughout because occupancy rates are bounded to
// [0,100] and multiplicative factors misbehave near zero.
//
// Seasonal indices are initialized from the first full cycle observed;
// until then updates run level-only and report low confidence.
type HoltWinters struct {
	Alpha float64 // level smoothing
	Beta  float64 // trend smoothing
	Gamma float64 // seasonal smoothing

	period    int
	level     float64
	trend     float64
	seasonal  []float64
	seen      int
	firstPass []float64 // raw values of the initial cycle

	residuals []float64 // recent one-step forecast errors
}

// NewHoltWinters creates a smoother with the given parameters and seasonal
// period (snapshots per day for hour-of-day seasonality).
func NewHoltWinters(alpha, beta, gamma float64, period int) *HoltWinters {
	if period < 1 {
		period = 1
	}
	return &HoltWinters{
		Alpha:  alpha,
		Beta:   beta,
		Gamma:  gamma,
		period: period,
	}
}

// Period returns the seasonal period length.
func (hw *HoltWinters) Period() int { return hw.period }

// Ready reports whether a full seasonal cycle has been observed.
func (hw *HoltWinters) Ready() bool { return hw.seasonal != nil }

// Level returns the current smoothed level.
func (hw *HoltWinters) Level() float64 { return hw.level }

// Trend returns the current per-step trend.
func (hw *HoltWinters) Trend() float64 { return hw.trend }

// SeasonalAt returns the seasonal index h steps ahead of the next
// observation. Neutral (0) until a full cycle has been seen.
func (hw *HoltWinters) SeasonalAt(h int) float64 {
	if hw.seasonal == nil {
		return 0
	}
	return hw.seasonal[(hw.seen+h)%hw.period]
}

// Sigma returns the standard deviation of recent one-step forecast errors,
// or 0 if no residuals have accumulated.
func (hw *HoltWinters) Sigma() float64 {
	if len(hw.residuals) < 2 {
		return 0
	}
	return stat.StdDev(hw.residuals, nil)
}

// Observations returns the number of values observed so far.
func (hw *HoltWinters) Observations() int { return hw.seen }

// Update folds one observation into the smoother and returns the updated
// components. lowConfidence is set until seasonal indices exist.
func (hw *HoltWinters) Update(x float64) (level, trend, seasonal float64, lowConfidence bool) {
	idx := hw.seen % hw.period

	if hw.seasonal == nil {
		// Cold start: level-only smoothing while the first cycle accumulates.
		if hw.seen == 0 {
			hw.level = x
		} else {
			hw.level = hw.Alpha*x + (1-hw.Alpha)*hw.level
		}
		hw.firstPass = append(hw.firstPass, x)
		hw.seen++
		if len(hw.firstPass) == hw.period {
			hw.initSeasonal()
		}
		return hw.level, hw.trend, 0, true
	}

	// Record the one-step error before the state moves.
	predicted := hw.level + hw.trend + hw.seasonal[idx]
	hw.residuals = append(hw.residuals, x-predicted)
	if len(hw.residuals) > maxResiduals {
		hw.residuals = hw.residuals[len(hw.residuals)-maxResiduals:]
	}

	lastLevel := hw.level
	hw.level = hw.Alpha*(x-hw.seasonal[idx]) + (1-hw.Alpha)*(lastLevel+hw.trend)
	hw.trend = hw.Beta*(hw.level-lastLevel) + (1-hw.Beta)*hw.trend
	hw.seasonal[idx] = hw.Gamma*(x-hw.level) + (1-hw.Gamma)*hw.seasonal[idx]
	hw.seen++

	return hw.level, hw.trend, hw.seasonal[idx], false
}

// initSeasonal derives the initial indices from the first complete cycle:
// each slot's deviation from the cycle mean.
func (hw *HoltWinters) initSeasonal() {
	mean := stat.Mean(hw.firstPass, nil)
	hw.seasonal = make([]float64, hw.period)
	for i, v := range hw.firstPass {
		hw.seasonal[i] = v - mean
	}
	hw.level = mean
	hw.trend = 0
	hw.firstPass = nil
}
