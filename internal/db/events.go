package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// RecordEvent appends one accepted event to the durable event log.
// The event_id primary key makes replays of an already-recorded event a
// constraint error; callers that have already deduplicated can treat that
// as success.
func (db *DB) RecordEvent(event parking.Event) error {
	query := `
		INSERT INTO events (
			event_id, zone_code, event_type, vehicle_type,
			confidence, license_plate, camera_id, event_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`

	_, err := db.DB.Exec(
		query,
		event.EventID,
		event.ZoneCode,
		string(event.EventType),
		string(event.VehicleType),
		event.Confidence,
		nullIfEmpty(event.LicensePlate),
		nullIfEmpty(event.CameraID),
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", event.EventID, err)
	}
	return nil
}

// RecentEvents returns events for a zone in the given window, newest first,
// capped at limit. A zero zoneCode returns events across all zones.
func (db *DB) RecentEvents(zoneCode string, since time.Time, limit int) ([]parking.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT event_id, zone_code, event_type, vehicle_type,
		       confidence, COALESCE(license_plate, ''), COALESCE(camera_id, ''), event_time
		FROM events
		WHERE event_time >= ?
	`
	args := []any{since.UTC()}
	if zoneCode != "" {
		query += " AND zone_code = ?"
		args = append(args, zoneCode)
	}
	query += " ORDER BY event_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []parking.Event
	for rows.Next() {
		var e parking.Event
		var eventType, vehicleType string
		if err := rows.Scan(
			&e.EventID,
			&e.ZoneCode,
			&eventType,
			&vehicleType,
			&e.Confidence,
			&e.LicensePlate,
			&e.CameraID,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.EventType = parking.EventType(eventType)
		e.VehicleType = parking.VehicleType(vehicleType)
		events = append(events, e)
	}
	return events, rows.Err()
}

// EntryTimestamps returns the event times of entries into a zone within the
// window, oldest first. Used by the arrival-rate estimator.
func (db *DB) EntryTimestamps(zoneCode string, since, until time.Time) ([]time.Time, error) {
	query := `
		SELECT event_time
		FROM events
		WHERE zone_code = ? AND event_type = 'entry'
		  AND event_time >= ? AND event_time < ?
		ORDER BY event_time ASC
	`

	rows, err := db.DB.Query(query, zoneCode, since.UTC(), until.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query entry timestamps: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan entry timestamp: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// PruneEvents deletes events older than the cutoff and returns the number
// of rows removed.
func (db *DB) PruneEvents(cutoff time.Time) (int64, error) {
	result, err := db.DB.Exec("DELETE FROM events WHERE event_time < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return result.RowsAffected()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
