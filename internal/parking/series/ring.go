// Package series maintains the rolling per-zone occupancy history and the
// smoothed views derived from it: simple and exponential moving averages
// for trend charts, and an additive Holt-Winters decomposition feeding the
// forecasting engine.
package series

import (
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// Ring is a fixed-capacity ring buffer of occupancy snapshots. Appending
// past capacity evicts the oldest entry.
type Ring struct {
	buf  []parking.OccupancySnapshot
	head int // index of the oldest entry
	size int
}

// NewRing creates a ring buffer with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]parking.OccupancySnapshot, capacity)}
}

// Append adds a snapshot, evicting the oldest when full.
func (r *Ring) Append(snap parking.OccupancySnapshot) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = snap
		r.size++
		return
	}
	r.buf[r.head] = snap
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of stored snapshots.
func (r *Ring) Len() int { return r.size }

// Capacity returns the fixed buffer capacity.
func (r *Ring) Capacity() int { return len(r.buf) }

// At returns the i-th snapshot in chronological order (0 = oldest).
func (r *Ring) At(i int) parking.OccupancySnapshot {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Latest returns the most recent snapshot, if any.
func (r *Ring) Latest() (parking.OccupancySnapshot, bool) {
	if r.size == 0 {
		return parking.OccupancySnapshot{}, false
	}
	return r.At(r.size - 1), true
}

// Snapshots returns all stored snapshots oldest-first.
func (r *Ring) Snapshots() []parking.OccupancySnapshot {
	out := make([]parking.OccupancySnapshot, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.At(i))
	}
	return out
}

// Since returns snapshots with timestamps at or after t, oldest-first.
func (r *Ring) Since(t time.Time) []parking.OccupancySnapshot {
	var out []parking.OccupancySnapshot
	for i := 0; i < r.size; i++ {
		if s := r.At(i); !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	return out
}
