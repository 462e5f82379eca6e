package db

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// UpsertZone inserts or updates a zone row keyed by zone_code.
func (db *DB) UpsertZone(zone parking.Zone) error {
	query := `
		INSERT INTO zones (
			zone_code, name, zone_type, total_spots, floor_level, hourly_rate, active
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zone_code) DO UPDATE SET
			name = excluded.name,
			zone_type = excluded.zone_type,
			total_spots = excluded.total_spots,
			floor_level = excluded.floor_level,
			hourly_rate = excluded.hourly_rate,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
	`

	activeInt := 0
	if zone.IsActive {
		activeInt = 1
	}

	_, err := db.DB.Exec(
		query,
		zone.ZoneCode,
		zone.Name,
		string(zone.ZoneType),
		zone.TotalSpots,
		zone.FloorLevel,
		zone.HourlyRate,
		activeInt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert zone %s: %w", zone.ZoneCode, err)
	}
	return nil
}

// GetZone retrieves a zone by code. Returns sql.ErrNoRows when absent.
func (db *DB) GetZone(zoneCode string) (*parking.Zone, error) {
	query := `
		SELECT zone_code, name, zone_type, total_spots, floor_level, hourly_rate, active
		FROM zones
		WHERE zone_code = ?
	`

	var zone parking.Zone
	var zoneType string
	var activeInt int
	err := db.DB.QueryRow(query, zoneCode).Scan(
		&zone.ZoneCode,
		&zone.Name,
		&zoneType,
		&zone.TotalSpots,
		&zone.FloorLevel,
		&zone.HourlyRate,
		&activeInt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get zone %s: %w", zoneCode, err)
	}

	zone.ZoneType = parking.ZoneType(zoneType)
	zone.IsActive = activeInt != 0
	return &zone, nil
}

// ListZones returns all zones ordered by code. If activeOnly is set,
// deactivated zones are excluded.
func (db *DB) ListZones(activeOnly bool) ([]parking.Zone, error) {
	query := `
		SELECT zone_code, name, zone_type, total_spots, floor_level, hourly_rate, active
		FROM zones
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY zone_code"

	rows, err := db.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	var zones []parking.Zone
	for rows.Next() {
		var zone parking.Zone
		var zoneType string
		var activeInt int
		if err := rows.Scan(
			&zone.ZoneCode,
			&zone.Name,
			&zoneType,
			&zone.TotalSpots,
			&zone.FloorLevel,
			&zone.HourlyRate,
			&activeInt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan zone row: %w", err)
		}
		zone.ZoneType = parking.ZoneType(zoneType)
		zone.IsActive = activeInt != 0
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}

// DeactivateZone marks a zone inactive without deleting its history.
func (db *DB) DeactivateZone(zoneCode string) error {
	result, err := db.DB.Exec(
		"UPDATE zones SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE zone_code = ?",
		zoneCode,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate zone %s: %w", zoneCode, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
