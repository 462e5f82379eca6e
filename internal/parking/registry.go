package parking

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
)

// Registry holds zone configuration. It is read-mostly: lookups vastly
// outnumber updates from the configuration feed. Changes take effect for
// subsequent applies and aggregation cycles, never retroactively.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]Zone
}

// NewRegistry creates an empty zone registry.
func NewRegistry() *Registry {
	return &Registry{zones: make(map[string]Zone)}
}

// Upsert validates and stores a zone configuration, replacing any previous
// configuration for the same code.
func (r *Registry) Upsert(z Zone) error {
	if z.ZoneCode == "" {
		return fmt.Errorf("zone code is required")
	}
	if z.TotalSpots <= 0 {
		return fmt.Errorf("zone %s: total_spots must be positive, got %d", z.ZoneCode, z.TotalSpots)
	}
	if z.ZoneType == "" {
		z.ZoneType = ZoneStandard
	}
	if !z.ZoneType.IsValid() {
		return fmt.Errorf("zone %s: invalid zone_type %q", z.ZoneCode, z.ZoneType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.zones[z.ZoneCode]; !exists {
		monitoring.Logf("registry: added zone %s (%d spots, %s)", z.ZoneCode, z.TotalSpots, z.ZoneType)
	}
	r.zones[z.ZoneCode] = z
	return nil
}

// Get returns the zone configuration for code.
func (r *Registry) Get(code string) (Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[code]
	return z, ok
}

// Deactivate marks a zone inactive. In-flight aggregation cycles for the
// zone run to completion but their output is discarded.
func (r *Registry) Deactivate(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[code]
	if !ok {
		return fmt.Errorf("deactivate %s: %w", code, ErrUnknownZone)
	}
	z.IsActive = false
	r.zones[code] = z
	monitoring.Logf("registry: deactivated zone %s", code)
	return nil
}

// List returns zones sorted by code. With activeOnly set, deactivated zones
// are omitted.
func (r *Registry) List(activeOnly bool) []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zones := make([]Zone, 0, len(r.zones))
	for _, z := range r.zones {
		if activeOnly && !z.IsActive {
			continue
		}
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ZoneCode < zones[j].ZoneCode })
	return zones
}
