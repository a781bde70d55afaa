package engine

import "sort"

// Party is an atomic group of seats (one booking).  A party is placed on a
// single vehicle or not at all.  VehicleID pins the party to a vehicle once
// a locked allocation or an operator has decided where it travels.
type Party struct {
	ID        string `json:"id"`
	Size      int    `json:"size"`
	VehicleID string `json:"vehicle_id,omitempty"`
}

// Vehicle is a schedulable transport unit with its capacity bounds and the
// revenue its operator is guaranteed once it runs.
type Vehicle struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	MinSeats          int      `json:"min_seats"`
	MaxSeats          int      `json:"max_seats"`
	MinRevenueTotal   int64    `json:"min_revenue_total_minor"`
	DiscountFraction  float64  `json:"discount_fraction"`
	ThresholdFraction *float64 `json:"threshold_fraction,omitempty"`
	Preferred         bool     `json:"preferred"`
	OperatorID        string   `json:"operator_id"`
	OperatorRating    float64  `json:"operator_rating"`
}

// Threshold returns the fraction of MinRevenueTotal that counts as the
// allowed target.  Unset thresholds default to the full guarantee; an
// explicit zero means any revenue will do.
func (v Vehicle) Threshold() float64 {
	if v.ThresholdFraction == nil {
		return 1
	}
	return clamp01(*v.ThresholdFraction)
}

// MinRevenueTarget is MinRevenueTotal scaled by the threshold fraction.
func (v Vehicle) MinRevenueTarget() int64 {
	return roundHalfUp(float64(v.MinRevenueTotal) * v.Threshold())
}

// VehicleAllocation is the per-vehicle part of an allocation snapshot.
type VehicleAllocation struct {
	VehicleID      string   `json:"vehicle_id"`
	SeatsAssigned  int      `json:"seats_assigned"`
	PartyIDs       []string `json:"party_ids"`
	RevenueAccrued int64    `json:"revenue_accrued_minor"`
	ForceDiscount  bool     `json:"force_discount"`
}

// Snapshot is the allocation state of one departure.  Vehicles absent from
// the map carry no seats.  Snapshots are values: every engine call that
// changes one works on a Clone.
type Snapshot struct {
	Vehicles map[string]*VehicleAllocation `json:"vehicles"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() Snapshot {
	return Snapshot{Vehicles: map[string]*VehicleAllocation{}}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := NewSnapshot()
	for id, va := range s.Vehicles {
		cp := *va
		cp.PartyIDs = append([]string(nil), va.PartyIDs...)
		out.Vehicles[id] = &cp
	}
	return out
}

// Seats returns the seat count currently assigned to vehicleID.
func (s Snapshot) Seats(vehicleID string) int {
	if va, ok := s.Vehicles[vehicleID]; ok {
		return va.SeatsAssigned
	}
	return 0
}

// Forced reports whether the discount is forced on for vehicleID.
func (s Snapshot) Forced(vehicleID string) bool {
	if va, ok := s.Vehicles[vehicleID]; ok {
		return va.ForceDiscount
	}
	return false
}

// VehicleIDs returns the IDs present in the snapshot in sorted order.
func (s Snapshot) VehicleIDs() []string {
	ids := make([]string, 0, len(s.Vehicles))
	for id := range s.Vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// VehicleOf returns the vehicle carrying partyID, or "" when the party is
// not placed.
func (s Snapshot) VehicleOf(partyID string) string {
	for _, id := range s.VehicleIDs() {
		for _, pid := range s.Vehicles[id].PartyIDs {
			if pid == partyID {
				return id
			}
		}
	}
	return ""
}

func (s Snapshot) entry(vehicleID string) *VehicleAllocation {
	va, ok := s.Vehicles[vehicleID]
	if !ok {
		va = &VehicleAllocation{VehicleID: vehicleID, PartyIDs: []string{}}
		s.Vehicles[vehicleID] = va
	}
	return va
}

// Availability is the business outcome of a quote or placement request.
type Availability string

const (
	Available                    Availability = "available"
	SoldOut                      Availability = "sold_out"
	NoJourney                    Availability = "no_journey"
	NoVehicles                   Availability = "no_vehicles"
	InsufficientCapacityForParty Availability = "insufficient_capacity_for_party"
)

func indexVehicles(vehicles []Vehicle) map[string]Vehicle {
	m := make(map[string]Vehicle, len(vehicles))
	for _, v := range vehicles {
		m[v.ID] = v
	}
	return m
}
