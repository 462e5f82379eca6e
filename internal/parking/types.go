// Package parking holds the core domain model for the occupancy engine:
// zones, entry/exit events, per-zone occupancy state, and the derived
// analytics types (snapshots, forecasts, anomalies).
package parking

import (
	"fmt"
	"time"
)

// ZoneType classifies a parking zone. Matches the zone configuration feed.
type ZoneType string

const (
	ZoneStandard   ZoneType = "standard"
	ZoneCompact    ZoneType = "compact"
	ZoneHandicap   ZoneType = "handicap"
	ZoneEVCharging ZoneType = "ev_charging"
	ZoneVIP        ZoneType = "vip"
	ZoneOversized  ZoneType = "oversized"
)

// ValidZoneTypes contains all accepted zone type values.
var ValidZoneTypes = []ZoneType{
	ZoneStandard, ZoneCompact, ZoneHandicap, ZoneEVCharging, ZoneVIP, ZoneOversized,
}

// IsValid checks if the zone type is one of the accepted values.
func (zt ZoneType) IsValid() bool {
	for _, v := range ValidZoneTypes {
		if zt == v {
			return true
		}
	}
	return false
}

// VehicleType is the detector's classification of the observed vehicle.
type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleTruck      VehicleType = "truck"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBus        VehicleType = "bus"
	VehicleUnknown    VehicleType = "unknown"
)

// EventType distinguishes vehicle entries from exits.
type EventType string

const (
	EventEntry EventType = "entry"
	EventExit  EventType = "exit"
)

// Zone is the static/semi-static configuration for one parking zone.
// Zones are owned by the Registry and referenced by code everywhere else.
type Zone struct {
	ZoneCode   string   `json:"zone_code"`
	Name       string   `json:"name"`
	ZoneType   ZoneType `json:"zone_type"`
	TotalSpots int      `json:"total_spots"`
	FloorLevel int      `json:"floor_level"`
	HourlyRate float64  `json:"hourly_rate"`
	IsActive   bool     `json:"is_active"`
}

// Event is an immutable vehicle crossing observed by the external detector.
// EventID is the idempotency key: the same ID is never applied twice.
type Event struct {
	EventID      string      `json:"event_id"`
	ZoneCode     string      `json:"zone_code"`
	EventType    EventType   `json:"event_type"`
	VehicleType  VehicleType `json:"vehicle_type,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Confidence   float64     `json:"confidence"`
	LicensePlate string      `json:"license_plate,omitempty"`
	CameraID     string      `json:"camera_id,omitempty"`
}

// OccupancyState is the authoritative live counter for one zone.
type OccupancyState struct {
	ZoneCode      string    `json:"zone_code"`
	OccupiedSpots int       `json:"occupied_spots"`
	TotalSpots    int       `json:"total_spots"`
	LastEventID   string    `json:"last_event_id,omitempty"`
	LastEventTime time.Time `json:"last_event_timestamp"`
}

// AvailableSpots returns the number of free spots, never negative.
func (s OccupancyState) AvailableSpots() int {
	if free := s.TotalSpots - s.OccupiedSpots; free > 0 {
		return free
	}
	return 0
}

// OccupancyRate returns occupied/total as a percentage.
func (s OccupancyState) OccupancyRate() float64 {
	if s.TotalSpots == 0 {
		return 0
	}
	return float64(s.OccupiedSpots) / float64(s.TotalSpots) * 100
}

// OccupancySnapshot is one point of the rolling per-zone history, taken at
// the aggregator cadence.
type OccupancySnapshot struct {
	ZoneCode      string    `json:"zone_code"`
	Timestamp     time.Time `json:"timestamp"`
	OccupiedSpots int       `json:"occupied_spots"`
	TotalSpots    int       `json:"total_spots"`
	OccupancyRate float64   `json:"occupancy_rate"`
}

// SmoothedPoint is a Holt-Winters decomposition of the history at one
// snapshot: level, trend and the seasonal index in effect.
type SmoothedPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Smoothed      float64   `json:"smoothed"`
	Level         float64   `json:"level"`
	Trend         float64   `json:"trend"`
	Seasonal      float64   `json:"seasonal"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
}

// ForecastPoint is one step of a bounded-horizon occupancy forecast.
type ForecastPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	PredictedRate float64   `json:"predicted_rate"`
	LowerBound    float64   `json:"lower_bound"`
	UpperBound    float64   `json:"upper_bound"`
}

// Severity grades how far outside the norm an anomalous reading sits.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Anomaly is a statistically unusual occupancy reading. Anomalies are
// forwarded to the broadcast hub as alerts, not stored long-term.
type Anomaly struct {
	ZoneCode     string    `json:"zone_code"`
	Timestamp    time.Time `json:"timestamp"`
	ObservedRate float64   `json:"observed_rate"`
	ExpectedRate float64   `json:"expected_rate"`
	ZScore       float64   `json:"z_score"`
	Severity     Severity  `json:"severity"`
}

func (a *Anomaly) String() string {
	return fmt.Sprintf("zone %s at %s: observed %.1f%% expected %.1f%% (z=%.2f, %s)",
		a.ZoneCode, a.Timestamp.Format(time.RFC3339), a.ObservedRate, a.ExpectedRate, a.ZScore, a.Severity)
}
