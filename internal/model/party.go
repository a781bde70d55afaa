package model

import (
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

// Party statuses.
const (
	PartyConfirmed  = "CONFIRMED"
	PartyCancelled  = "CANCELLED"
	PartyUnassigned = "UNASSIGNED"
)

// Party is one committed booking: a group of seats that always travels on
// a single vehicle.  VehicleID stays empty until the departure is locked or
// the booking was taken while locked.
type Party struct {
	ID             string    // parties.id
	DepartureID    string    // parties.departure_id
	UserID         uint64    // parties.user_id
	Size           int       // parties.size
	VehicleID      string    // parties.vehicle_id (nullable)
	Status         string    // parties.status
	UnitPriceMinor int64     // parties.unit_price_minor
	TotalMinor     int64     // parties.total_minor
	CreatedAt      time.Time // parties.created_at
}

// Engine converts the record into the allocation engine's party.
func (p Party) Engine() engine.Party {
	return engine.Party{ID: p.ID, Size: p.Size, VehicleID: p.VehicleID}
}

// EngineParties converts a slice of records.
func EngineParties(ps []Party) []engine.Party {
	out := make([]engine.Party, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Engine())
	}
	return out
}
