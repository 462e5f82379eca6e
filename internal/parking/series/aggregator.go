package series

import (
	"context"
	"time"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// Aggregator periodically snapshots live zone state into the rolling
// history and updates the smoothed series. Each cycle reads one consistent
// OccupancyState per zone; a failure for one zone never blocks the others.
type Aggregator struct {
	registry *parking.Registry
	states   *parking.StateManager
	store    *Store
	cadence  time.Duration
	clock    timeutil.Clock

	// persist, when set, writes each snapshot through to durable storage.
	persist func(parking.OccupancySnapshot) error

	// onSnapshot, when set, receives each appended snapshot and its
	// smoothed point (anomaly detection hangs off this).
	onSnapshot func(parking.OccupancySnapshot, parking.SmoothedPoint)
}

// NewAggregator builds an aggregator over the given state and history. A
// nil clock uses the real one.
func NewAggregator(
	registry *parking.Registry,
	states *parking.StateManager,
	store *Store,
	cadence time.Duration,
	clock timeutil.Clock,
) *Aggregator {
	if cadence <= 0 {
		cadence = 5 * time.Minute
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Aggregator{
		registry: registry,
		states:   states,
		store:    store,
		cadence:  cadence,
		clock:    clock,
	}
}

// SetPersist installs a write-through sink for snapshots.
func (a *Aggregator) SetPersist(persist func(parking.OccupancySnapshot) error) {
	a.persist = persist
}

// SetOnSnapshot installs a per-snapshot callback.
func (a *Aggregator) SetOnSnapshot(fn func(parking.OccupancySnapshot, parking.SmoothedPoint)) {
	a.onSnapshot = fn
}

// Cadence returns the snapshot interval.
func (a *Aggregator) Cadence() time.Duration { return a.cadence }

// Run executes snapshot cycles on the configured cadence until the context
// is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.cadence)
	defer ticker.Stop()
	monitoring.Logf("aggregator: running every %s", a.cadence)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("aggregator: stopped")
			return ctx.Err()
		case now := <-ticker.C():
			a.RunOnce(now)
		}
	}
}

// RunOnce takes one snapshot per active zone, aligned to the cadence.
func (a *Aggregator) RunOnce(now time.Time) {
	aligned := now.UTC().Truncate(a.cadence)

	for _, zone := range a.registry.List(true) {
		state, err := a.states.Get(zone.ZoneCode)
		if err != nil {
			monitoring.Logf("aggregator: skipping zone %s: %v", zone.ZoneCode, err)
			continue
		}

		snap := parking.OccupancySnapshot{
			ZoneCode:      zone.ZoneCode,
			Timestamp:     aligned,
			OccupiedSpots: state.OccupiedSpots,
			TotalSpots:    state.TotalSpots,
			OccupancyRate: state.OccupancyRate(),
		}

		// A zone deactivated mid-cycle has its output discarded.
		if current, ok := a.registry.Get(zone.ZoneCode); !ok || !current.IsActive {
			monitoring.Logf("aggregator: discarding snapshot for deactivated zone %s", zone.ZoneCode)
			continue
		}

		smoothed := a.store.Zone(zone.ZoneCode).Append(snap)

		if a.persist != nil {
			if err := a.persist(snap); err != nil {
				monitoring.Logf("aggregator: failed to persist snapshot for zone %s: %v", zone.ZoneCode, err)
			}
		}
		if a.onSnapshot != nil {
			a.onSnapshot(snap, smoothed)
		}
	}
}
