package parking

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
)

// StateChange describes one successful apply, in the shape published to the
// broadcast hub and to live-view subscribers.
type StateChange struct {
	ZoneCode      string    `json:"zone_code"`
	OccupiedSpots int       `json:"occupied_spots"`
	TotalSpots    int       `json:"total_spots"`
	OccupancyRate float64   `json:"occupancy_rate"`
	Timestamp     time.Time `json:"timestamp"`
	Clamped       bool      `json:"clamped,omitempty"`
}

// stateCell is the serialization domain for a single zone. Applies for the
// same zone take the cell mutex; applies for different zones never contend.
type stateCell struct {
	mu    sync.Mutex
	state OccupancyState
}

// StateManager owns the mutable per-zone occupancy counters. All mutation
// goes through Apply; reads get a copy.
type StateManager struct {
	registry *Registry

	cellMu sync.Mutex
	cells  map[string]*stateCell

	// notify receives a StateChange after every successful apply. May be
	// nil (e.g. in tests that only care about counters).
	notify func(StateChange)
}

// NewStateManager creates a state manager over the given registry.
func NewStateManager(registry *Registry, notify func(StateChange)) *StateManager {
	return &StateManager{
		registry: registry,
		cells:    make(map[string]*stateCell),
		notify:   notify,
	}
}

// cell returns the state cell for a zone, creating it on first use.
func (m *StateManager) cell(zone Zone) *stateCell {
	m.cellMu.Lock()
	defer m.cellMu.Unlock()
	c, ok := m.cells[zone.ZoneCode]
	if !ok {
		c = &stateCell{state: OccupancyState{
			ZoneCode:   zone.ZoneCode,
			TotalSpots: zone.TotalSpots,
		}}
		m.cells[zone.ZoneCode] = c
	}
	return c
}

// Apply applies one accepted event and returns the new state. Entries
// increment, exits decrement; the counter is clamped to [0, TotalSpots] and
// a clamp is logged as a correction rather than dropped.
func (m *StateManager) Apply(event Event) (OccupancyState, error) {
	zone, ok := m.registry.Get(event.ZoneCode)
	if !ok {
		return OccupancyState{}, fmt.Errorf("apply %s: %w", event.ZoneCode, ErrUnknownZone)
	}
	if !zone.IsActive {
		return OccupancyState{}, fmt.Errorf("apply %s: %w", event.ZoneCode, ErrZoneInactive)
	}

	c := m.cell(zone)
	c.mu.Lock()
	defer c.mu.Unlock()

	// Registry capacity changes take effect on the next apply.
	c.state.TotalSpots = zone.TotalSpots

	clamped := false
	switch event.EventType {
	case EventEntry:
		if c.state.OccupiedSpots >= zone.TotalSpots {
			clamped = true
			monitoring.Logf("state: clamped entry for zone %s at capacity %d (event %s)",
				zone.ZoneCode, zone.TotalSpots, event.EventID)
		} else {
			c.state.OccupiedSpots++
		}
	case EventExit:
		if c.state.OccupiedSpots <= 0 {
			clamped = true
			monitoring.Logf("state: clamped exit for empty zone %s (event %s)",
				zone.ZoneCode, event.EventID)
		} else {
			c.state.OccupiedSpots--
		}
	default:
		return OccupancyState{}, fmt.Errorf("apply %s: unknown event type %q", event.ZoneCode, event.EventType)
	}

	c.state.LastEventID = event.EventID
	c.state.LastEventTime = event.Timestamp
	state := c.state

	if m.notify != nil {
		m.notify(StateChange{
			ZoneCode:      state.ZoneCode,
			OccupiedSpots: state.OccupiedSpots,
			TotalSpots:    state.TotalSpots,
			OccupancyRate: state.OccupancyRate(),
			Timestamp:     event.Timestamp,
			Clamped:       clamped,
		})
	}
	return state, nil
}

// Get returns a copy of the current state for a zone. Zones with no applied
// events yet report zero occupancy.
func (m *StateManager) Get(code string) (OccupancyState, error) {
	zone, ok := m.registry.Get(code)
	if !ok {
		return OccupancyState{}, fmt.Errorf("get %s: %w", code, ErrUnknownZone)
	}
	c := m.cell(zone)
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.state
	state.TotalSpots = zone.TotalSpots
	return state, nil
}

// Reset zeroes the counter for a zone, e.g. after a physical audit. The
// reset shows up to subscribers as a normal state change.
func (m *StateManager) Reset(code string, at time.Time) (OccupancyState, error) {
	zone, ok := m.registry.Get(code)
	if !ok {
		return OccupancyState{}, fmt.Errorf("reset %s: %w", code, ErrUnknownZone)
	}
	c := m.cell(zone)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.OccupiedSpots = 0
	c.state.LastEventTime = at
	state := c.state
	monitoring.Logf("state: reset zone %s occupancy to 0", code)

	if m.notify != nil {
		m.notify(StateChange{
			ZoneCode:      state.ZoneCode,
			OccupiedSpots: 0,
			TotalSpots:    state.TotalSpots,
			OccupancyRate: 0,
			Timestamp:     at,
		})
	}
	return state, nil
}
