package parking

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ArrivalStats summarises vehicle arrivals under a Poisson process model.
// Lambda is the maximum-likelihood rate estimate: observed count over
// observed span.
type ArrivalStats struct {
	Lambda              float64 `json:"lambda"`
	ExpectedPerHour     float64 `json:"expected_per_hour"`
	StdDev              float64 `json:"std_dev"`
	MeanInterArrivalMin float64 `json:"mean_inter_arrival_min"`
	TotalArrivals       int     `json:"total_arrivals"`
}

// EstimateArrivalRate fits a Poisson arrival rate to a set of entry-event
// timestamps. Fewer than two arrivals yields a zero-rate result.
func EstimateArrivalRate(timestamps []time.Time) ArrivalStats {
	if len(timestamps) < 2 {
		return ArrivalStats{TotalArrivals: len(timestamps)}
	}

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	interArrivalsMin := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		interArrivalsMin = append(interArrivalsMin, sorted[i].Sub(sorted[i-1]).Minutes())
	}

	// Spans shorter than a minute blow up the rate estimate; floor it.
	spanHours := sorted[len(sorted)-1].Sub(sorted[0]).Hours()
	if spanHours < 1.0/60 {
		spanHours = 1.0 / 60
	}

	lambda := float64(len(sorted)) / spanHours
	return ArrivalStats{
		Lambda:              lambda,
		ExpectedPerHour:     lambda,
		StdDev:              math.Sqrt(lambda),
		MeanInterArrivalMin: stat.Mean(interArrivalsMin, nil),
		TotalArrivals:       len(sorted),
	}
}
