package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// RecordSnapshot writes one aggregated occupancy point. Re-running an
// aggregation cycle overwrites the previous row for the same zone and
// instant rather than duplicating it.
func (db *DB) RecordSnapshot(snap parking.OccupancySnapshot) error {
	query := `
		INSERT INTO occupancy_snapshots (
			zone_code, snapshot_time, occupied_spots, total_spots, occupancy_rate
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(zone_code, snapshot_time) DO UPDATE SET
			occupied_spots = excluded.occupied_spots,
			total_spots = excluded.total_spots,
			occupancy_rate = excluded.occupancy_rate
	`

	_, err := db.DB.Exec(
		query,
		snap.ZoneCode,
		snap.Timestamp.UTC(),
		snap.OccupiedSpots,
		snap.TotalSpots,
		snap.OccupancyRate,
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot for zone %s: %w", snap.ZoneCode, err)
	}
	return nil
}

// SnapshotsSince returns a zone's snapshots at or after the given time,
// oldest first.
func (db *DB) SnapshotsSince(zoneCode string, since time.Time) ([]parking.OccupancySnapshot, error) {
	query := `
		SELECT zone_code, snapshot_time, occupied_spots, total_spots, occupancy_rate
		FROM occupancy_snapshots
		WHERE zone_code = ? AND snapshot_time >= ?
		ORDER BY snapshot_time ASC
	`

	rows, err := db.DB.Query(query, zoneCode, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []parking.OccupancySnapshot
	for rows.Next() {
		var s parking.OccupancySnapshot
		if err := rows.Scan(
			&s.ZoneCode,
			&s.Timestamp,
			&s.OccupiedSpots,
			&s.TotalSpots,
			&s.OccupancyRate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// PruneSnapshots deletes snapshots older than the cutoff and returns the
// number of rows removed.
func (db *DB) PruneSnapshots(cutoff time.Time) (int64, error) {
	result, err := db.DB.Exec("DELETE FROM occupancy_snapshots WHERE snapshot_time < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return result.RowsAffected()
}
