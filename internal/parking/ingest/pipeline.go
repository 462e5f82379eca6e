// Package ingest validates, deduplicates, and orders incoming entry/exit
// events before handing them to the occupancy state manager.
//
// Ordering is best-effort by design: events for the same zone are held in a
// small reorder buffer and applied in timestamp order, but an event arriving
// after the buffer has already closed for its timestamp slot is applied
// immediately in arrival order. That is a deliberate precision/latency
// trade-off, not a correctness guarantee.
package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// Status is the ingestion outcome reported to the caller.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// Result reports the outcome of one Ingest call. Reason carries the
// rejection reason code for rejected and duplicate events.
type Result struct {
	Status  Status `json:"status"`
	EventID string `json:"event_id"`
	Reason  string `json:"reason,omitempty"`
}

// Config tunes the ingestion pipeline.
type Config struct {
	// MaxSkew is how far ahead of the pipeline clock an event timestamp
	// may sit before rejection.
	MaxSkew time.Duration
	// MinConfidence is the detector confidence floor.
	MinConfidence float64
	// ReorderWindow is how long events are held for timestamp ordering.
	// Zero disables buffering: every event applies immediately.
	ReorderWindow time.Duration
	// DedupCapacity and DedupTTL bound the recent-event-id set.
	DedupCapacity int
	DedupTTL      time.Duration
}

// DefaultConfig returns the stock pipeline tuning.
func DefaultConfig() Config {
	return Config{
		MaxSkew:       5 * time.Minute,
		MinConfidence: 0.5,
		ReorderWindow: 2 * time.Second,
		DedupCapacity: 10000,
		DedupTTL:      10 * time.Minute,
	}
}

// Stats are cumulative ingestion counters.
type Stats struct {
	Accepted   int64 `json:"accepted"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
	Applied    int64 `json:"applied"`
}

// Pipeline is the event ingestion front door. Rejections are local and
// non-fatal; no event can corrupt state for other zones.
type Pipeline struct {
	registry *parking.Registry
	states   *parking.StateManager
	cfg      Config
	clock    timeutil.Clock

	mu          sync.Mutex
	dedup       *dedupSet
	pending     map[string][]heldEvent // per-zone reorder buffers
	lastApplied map[string]time.Time   // high-water mark per zone
	stats       Stats
}

// heldEvent is one buffered event with the time it entered the buffer. The
// hold time runs from arrival, not the event's own timestamp, so a
// future-skewed timestamp cannot extend the wait past the reorder window.
type heldEvent struct {
	event   parking.Event
	arrived time.Time
}

// NewPipeline creates an ingestion pipeline. A nil clock uses the real one.
func NewPipeline(registry *parking.Registry, states *parking.StateManager, cfg Config, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		registry:    registry,
		states:      states,
		cfg:         cfg,
		clock:       clock,
		dedup:       newDedupSet(cfg.DedupCapacity, cfg.DedupTTL),
		pending:     make(map[string][]heldEvent),
		lastApplied: make(map[string]time.Time),
	}
}

// Ingest validates and admits one event. Accepted events are handed to the
// state manager exactly once, either immediately or after the reorder
// window for their zone drains.
func (p *Pipeline) Ingest(event parking.Event) Result {
	now := p.clock.Now()
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if event.VehicleType == "" {
		event.VehicleType = parking.VehicleUnknown
	}

	if reason := p.validate(event, now); reason != nil {
		p.mu.Lock()
		p.stats.Rejected++
		p.mu.Unlock()
		return Result{Status: StatusRejected, EventID: event.EventID, Reason: reason.Error()}
	}

	p.mu.Lock()
	if p.dedup.seen(event.EventID, now) {
		p.stats.Duplicates++
		p.mu.Unlock()
		return Result{Status: StatusDuplicate, EventID: event.EventID, Reason: parking.ErrDuplicateEvent.Error()}
	}
	p.stats.Accepted++

	// If the reorder window for this timestamp slot already closed, the
	// event is applied straight away in arrival order.
	if p.cfg.ReorderWindow <= 0 || !event.Timestamp.After(p.lastApplied[event.ZoneCode]) {
		p.mu.Unlock()
		p.apply(event)
		return Result{Status: StatusAccepted, EventID: event.EventID}
	}

	p.pending[event.ZoneCode] = append(p.pending[event.ZoneCode], heldEvent{event: event, arrived: now})
	p.mu.Unlock()
	return Result{Status: StatusAccepted, EventID: event.EventID}
}

// validate checks the event against the registry and the pipeline limits.
func (p *Pipeline) validate(event parking.Event, now time.Time) error {
	switch event.EventType {
	case parking.EventEntry, parking.EventExit:
	default:
		return errors.New("invalid event type")
	}
	if event.Confidence < p.cfg.MinConfidence {
		return parking.ErrLowConfidence
	}
	if event.Timestamp.After(now.Add(p.cfg.MaxSkew)) {
		return parking.ErrStaleOrFutureEvent
	}
	zone, ok := p.registry.Get(event.ZoneCode)
	if !ok {
		return parking.ErrUnknownZone
	}
	if !zone.IsActive {
		return parking.ErrZoneInactive
	}
	return nil
}

// apply hands one event to the state manager. Failures here (e.g. a zone
// deactivated between admission and apply) are logged, not propagated.
func (p *Pipeline) apply(event parking.Event) {
	if _, err := p.states.Apply(event); err != nil {
		monitoring.Logf("ingest: apply failed for event %s: %v", event.EventID, err)
		return
	}
	p.mu.Lock()
	p.stats.Applied++
	if event.Timestamp.After(p.lastApplied[event.ZoneCode]) {
		p.lastApplied[event.ZoneCode] = event.Timestamp
	}
	p.mu.Unlock()
}

// Flush drains every buffered event that has sat in the buffer for at
// least the reorder window, applying them in timestamp order per zone.
// Returns the number applied.
func (p *Pipeline) Flush(now time.Time) int {
	deadline := now.Add(-p.cfg.ReorderWindow)

	p.mu.Lock()
	var due []parking.Event
	for zone, events := range p.pending {
		var held []heldEvent
		for _, h := range events {
			if h.arrived.After(deadline) {
				held = append(held, h)
			} else {
				due = append(due, h.event)
			}
		}
		if len(held) == 0 {
			delete(p.pending, zone)
		} else {
			p.pending[zone] = held
		}
	}
	p.mu.Unlock()

	// Zone grouping is preserved by the stable sort on (zone, timestamp).
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].ZoneCode != due[j].ZoneCode {
			return due[i].ZoneCode < due[j].ZoneCode
		}
		return due[i].Timestamp.Before(due[j].Timestamp)
	})
	for _, e := range due {
		p.apply(e)
	}
	return len(due)
}

// FlushAll drains all buffers regardless of hold time, for shutdown. No
// arrival time can exceed now, so now plus the window covers everything.
func (p *Pipeline) FlushAll() int {
	return p.Flush(p.clock.Now().Add(p.cfg.ReorderWindow))
}

// Run drives the reorder buffer until the context is cancelled, flushing at
// half the reorder window so no event waits much past its hold time.
func (p *Pipeline) Run(ctx context.Context) error {
	interval := p.cfg.ReorderWindow / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := p.FlushAll(); n > 0 {
				monitoring.Logf("ingest: drained %d buffered events on shutdown", n)
			}
			return ctx.Err()
		case now := <-ticker.C():
			p.Flush(now)
		}
	}
}

// Stats returns a copy of the cumulative counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
