package model

import "github.com/iliyamo/journey-seat-booking/internal/engine"

// Vehicle is a boat or bus that may serve departures of the routes it is
// linked to through route_vehicles.
//
// Fields:
//  MinSeats/MaxSeats – seat bounds; the vehicle runs once MinSeats is met.
//  MinRevenueMinor   – total revenue guaranteed to the operator.
//  DiscountFraction  – price cut once in band or forced.
//  ThresholdFraction – share of MinRevenueMinor that counts as the target;
//                      NULL means the whole of it.
//  Active            – inactive vehicles are never offered.
//  OperatorRating    – joined from operators, not stored on the row.
type Vehicle struct {
	ID                string   // vehicles.id
	OperatorID        string   // vehicles.operator_id
	Name              string   // vehicles.name
	MinSeats          int      // vehicles.min_seats
	MaxSeats          int      // vehicles.max_seats
	MinRevenueMinor   int64    // vehicles.min_revenue_minor
	DiscountFraction  float64  // vehicles.discount_fraction
	ThresholdFraction *float64 // vehicles.threshold_fraction (nullable)
	Preferred         bool     // vehicles.preferred
	Active            bool     // vehicles.active
	OperatorRating    float64  // operators.rating
}

// Engine converts the record into the allocation engine's vehicle.
func (v Vehicle) Engine() engine.Vehicle {
	return engine.Vehicle{
		ID:                v.ID,
		Name:              v.Name,
		MinSeats:          v.MinSeats,
		MaxSeats:          v.MaxSeats,
		MinRevenueTotal:   v.MinRevenueMinor,
		DiscountFraction:  v.DiscountFraction,
		ThresholdFraction: v.ThresholdFraction,
		Preferred:         v.Preferred,
		OperatorID:        v.OperatorID,
		OperatorRating:    v.OperatorRating,
	}
}

// EngineVehicles converts a slice of records.
func EngineVehicles(vs []Vehicle) []engine.Vehicle {
	out := make([]engine.Vehicle, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Engine())
	}
	return out
}
