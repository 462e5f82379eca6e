// Package anomaly flags statistically unusual occupancy readings by
// z-scoring the latest rate against the zone's own recent history at the
// matching hour of day, so a busy Monday 9am is judged against other
// mornings rather than the overnight lull.
package anomaly

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// Detector configuration defaults.
const (
	DefaultLookbackDays = 7
	DefaultThreshold    = 3.0
	DefaultMinPoints    = 20

	// highSeverityZ is the |z| above which an anomaly grades high rather
	// than moderate.
	highSeverityZ = 4.0

	// minStdDev floors the deviation to avoid dividing by zero on flat
	// history.
	minStdDev = 1e-6
)

// Detector evaluates snapshots against rolling per-zone baselines.
type Detector struct {
	// LookbackDays bounds how far back comparable history reaches.
	LookbackDays int
	// Threshold is the |z| above which a reading is anomalous.
	Threshold float64
	// MinPoints is the minimum number of comparable history points
	// required before evaluating. Below it Check returns nil: cold start
	// is expected, not an error.
	MinPoints int
	// WeeklyBaseline restricts the baseline to the same weekday as well
	// as the same hour, for weekly seasonality. It needs a LookbackDays
	// several weeks long to reach MinPoints.
	WeeklyBaseline bool
}

// NewDetector returns a detector with the stock thresholds.
func NewDetector() *Detector {
	return &Detector{
		LookbackDays: DefaultLookbackDays,
		Threshold:    DefaultThreshold,
		MinPoints:    DefaultMinPoints,
	}
}

// Check z-scores the snapshot against history points at the same hour of
// day within the lookback window. history is the zone's stored snapshots
// oldest-first; the snapshot under test is excluded from its own baseline.
// Returns nil when the reading is normal or history is too thin.
func (d *Detector) Check(history []parking.OccupancySnapshot, snap parking.OccupancySnapshot) *parking.Anomaly {
	cutoff := snap.Timestamp.AddDate(0, 0, -d.LookbackDays)
	hour := snap.Timestamp.UTC().Hour()
	weekday := snap.Timestamp.UTC().Weekday()

	var baseline []float64
	for _, h := range history {
		if h.Timestamp.Before(cutoff) || !h.Timestamp.Before(snap.Timestamp) {
			continue
		}
		if h.Timestamp.UTC().Hour() != hour {
			continue
		}
		if d.WeeklyBaseline && h.Timestamp.UTC().Weekday() != weekday {
			continue
		}
		baseline = append(baseline, h.OccupancyRate)
	}
	if len(baseline) < d.MinPoints {
		return nil
	}

	mean, std := stat.MeanStdDev(baseline, nil)
	if std < minStdDev {
		std = minStdDev
	}

	z := (snap.OccupancyRate - mean) / std
	if math.Abs(z) <= d.Threshold {
		return nil
	}

	severity := parking.SeverityModerate
	if math.Abs(z) > highSeverityZ {
		severity = parking.SeverityHigh
	}
	return &parking.Anomaly{
		ZoneCode:     snap.ZoneCode,
		Timestamp:    snap.Timestamp,
		ObservedRate: snap.OccupancyRate,
		ExpectedRate: mean,
		ZScore:       z,
		Severity:     severity,
	}
}
