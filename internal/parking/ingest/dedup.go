package ingest

import "time"

// dedupSet is a bounded recent-event-id set. IDs age out after a TTL and
// the oldest are evicted when the set exceeds capacity, sized to cover the
// maximum expected out-of-order window.
type dedupSet struct {
	capacity int
	ttl      time.Duration
	ids      map[string]time.Time
	order    []string // insertion order, oldest first
}

func newDedupSet(capacity int, ttl time.Duration) *dedupSet {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &dedupSet{
		capacity: capacity,
		ttl:      ttl,
		ids:      make(map[string]time.Time),
	}
}

// seen reports whether id was recorded before, recording it if not.
func (d *dedupSet) seen(id string, now time.Time) bool {
	d.evict(now)
	if _, ok := d.ids[id]; ok {
		return true
	}
	d.ids[id] = now
	d.order = append(d.order, id)
	return false
}

// evict drops expired entries and, if still over capacity, the oldest.
func (d *dedupSet) evict(now time.Time) {
	cutoff := now.Add(-d.ttl)
	for len(d.order) > 0 {
		oldest := d.order[0]
		if d.ids[oldest].After(cutoff) && len(d.order) <= d.capacity {
			break
		}
		delete(d.ids, oldest)
		d.order = d.order[1:]
	}
}

func (d *dedupSet) len() int { return len(d.ids) }
