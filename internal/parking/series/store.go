package series

import (
	"sync"
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// Params configures the per-zone history and smoothing models.
type Params struct {
	// Capacity is the ring buffer size per zone (retention window in
	// snapshots, e.g. 30 days at 5-minute cadence = 8640).
	Capacity int
	// Period is the Holt-Winters seasonal period in snapshots (snapshots
	// per day).
	Period int
	// Alpha/Beta/Gamma are the Holt-Winters smoothing parameters.
	Alpha, Beta, Gamma float64
	// EMAAlpha is the smoothing factor for the trend-chart EMA.
	EMAAlpha float64
	// SMAWindow is the window length for the simple moving average.
	SMAWindow int
}

// DefaultParams returns the stock configuration: 30 days of 5-minute
// snapshots, hour-of-day seasonality.
func DefaultParams() Params {
	return Params{
		Capacity:  8640,
		Period:    288,
		Alpha:     0.3,
		Beta:      0.1,
		Gamma:     0.2,
		EMAAlpha:  0.3,
		SMAWindow: 12,
	}
}

// ZoneSeries holds one zone's rolling history and smoothing state. Each
// zone has its own lock so aggregation and analytics reads run in parallel
// across zones.
type ZoneSeries struct {
	mu   sync.Mutex
	ring *Ring
	hw   *HoltWinters
}

// Append folds a snapshot into the history and smoothing models, returning
// the resulting smoothed point.
func (zs *ZoneSeries) Append(snap parking.OccupancySnapshot) parking.SmoothedPoint {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	zs.ring.Append(snap)
	level, trend, seasonal, lowConfidence := zs.hw.Update(snap.OccupancyRate)
	return parking.SmoothedPoint{
		Timestamp:     snap.Timestamp,
		Smoothed:      level + seasonal,
		Level:         level,
		Trend:         trend,
		Seasonal:      seasonal,
		LowConfidence: lowConfidence,
	}
}

// Len returns the number of stored snapshots.
func (zs *ZoneSeries) Len() int {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	return zs.ring.Len()
}

// Latest returns the most recent snapshot.
func (zs *ZoneSeries) Latest() (parking.OccupancySnapshot, bool) {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	return zs.ring.Latest()
}

// Snapshots returns the full stored history, oldest-first.
func (zs *ZoneSeries) Snapshots() []parking.OccupancySnapshot {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	return zs.ring.Snapshots()
}

// Since returns stored snapshots at or after t.
func (zs *ZoneSeries) Since(t time.Time) []parking.OccupancySnapshot {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	return zs.ring.Since(t)
}

// SmoothState exposes the Holt-Winters components for forecasting: current
// level, per-step trend, seasonal lookup, one-step residual deviation, and
// whether a full seasonal cycle has been observed.
func (zs *ZoneSeries) SmoothState() (level, trend, sigma float64, seasonalAt func(h int) float64, ready bool) {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	hw := zs.hw
	// Snapshot the seasonal view so the closure does not race later updates.
	seasonal := make([]float64, 0, hw.Period())
	for h := 0; h < hw.Period(); h++ {
		seasonal = append(seasonal, hw.SeasonalAt(h))
	}
	at := func(h int) float64 {
		if h < 0 {
			h = 0
		}
		return seasonal[h%len(seasonal)]
	}
	return hw.Level(), hw.Trend(), hw.Sigma(), at, hw.Ready()
}

// Store keeps a ZoneSeries per zone.
type Store struct {
	mu     sync.RWMutex
	params Params
	zones  map[string]*ZoneSeries
}

// NewStore creates a series store with the given parameters.
func NewStore(params Params) *Store {
	if params.Capacity <= 0 {
		params = DefaultParams()
	}
	return &Store{
		params: params,
		zones:  make(map[string]*ZoneSeries),
	}
}

// Params returns the store's configuration.
func (s *Store) Params() Params { return s.params }

// Zone returns the series for a zone, creating it on first use.
func (s *Store) Zone(code string) *ZoneSeries {
	s.mu.RLock()
	zs, ok := s.zones[code]
	s.mu.RUnlock()
	if ok {
		return zs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if zs, ok = s.zones[code]; ok {
		return zs
	}
	zs = &ZoneSeries{
		ring: NewRing(s.params.Capacity),
		hw:   NewHoltWinters(s.params.Alpha, s.params.Beta, s.params.Gamma, s.params.Period),
	}
	s.zones[code] = zs
	return zs
}

// Peek returns the series for a zone without creating one.
func (s *Store) Peek(code string) (*ZoneSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zs, ok := s.zones[code]
	return zs, ok
}
