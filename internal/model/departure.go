package model

import (
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

// Departure is one dated run of a route.  Phase only moves forward; the
// locked and finalized timestamps record when it did.
//
// Fields:
//  ServiceDate       – local service day, YYYY-MM-DD.
//  DepartsAt         – departure instant (UTC).
//  FallbackVehicleID – vehicle kept in play when the lock found no bookings.
//  Version           – bumped by every write that changes the allocation.
type Departure struct {
	ID                string       // departures.id
	RouteID           string       // departures.route_id
	ServiceDate       string       // departures.service_date
	DepartsAt         time.Time    // departures.departs_at
	Phase             engine.Phase // departures.phase
	LockedAt          *time.Time   // departures.locked_at (nullable)
	FinalizedAt       *time.Time   // departures.finalized_at (nullable)
	FallbackVehicleID string       // departures.fallback_vehicle_id (nullable)
	Version           int64        // departures.version
}

// DepartureVehicle is one vehicle kept in play by the lock step.
type DepartureVehicle struct {
	DepartureID   string // departure_vehicles.departure_id
	VehicleID     string // departure_vehicles.vehicle_id
	ForceDiscount bool   // departure_vehicles.force_discount
}
