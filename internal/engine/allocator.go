package engine

import (
	"math"
	"sort"
)

// TieBreak selects how equally priced vehicles are ordered.
type TieBreak int

const (
	// PreferredThenRating ranks preferred vehicles first, then higher
	// operator rating.
	PreferredThenRating TieBreak = iota
	// RatingThenPreferred ranks higher operator rating first, then
	// preferred vehicles.
	RatingThenPreferred
)

// ReasonNoCapacity marks a party no eligible vehicle could take whole.
const ReasonNoCapacity = "no-capacity"

// ReasonInvalidSize marks a party with a non-positive size.
const ReasonInvalidSize = "invalid-size"

// Policy is the set of constraints the policy phase imposes on one
// allocation run.
type Policy struct {
	Phase                   Phase
	AllowOpeningNewVehicles bool
	// Eligible restricts placement to these vehicle IDs.  A nil map allows
	// every vehicle.  When opening is not allowed, every eligible vehicle
	// counts as in play even with zero seats.
	Eligible map[string]bool
	// PreferExisting tries spare capacity on open vehicles before opening
	// another one and, when opening, favours vehicles whose minimum the
	// pending seats can still reach.
	PreferExisting bool
}

func (p Policy) eligible(id string) bool {
	return p.Eligible == nil || p.Eligible[id]
}

// Unassigned is a party the allocator could not place.
type Unassigned struct {
	Party  Party  `json:"party"`
	Reason string `json:"reason"`
}

// Result is the outcome of one allocation run.
type Result struct {
	Snapshot    Snapshot          `json:"snapshot"`
	Assignments map[string]string `json:"assignments"`
	Unassigned  []Unassigned      `json:"unassigned"`
}

// Allocator packs parties onto vehicles greedily, largest party first.
type Allocator struct {
	Rates    Rates
	TieBreak TieBreak
}

// Allocate places parties on top of seed and returns the new snapshot.  The
// seed is never modified.  Parties pinned to an eligible vehicle with room
// are placed there first; everything else follows the fill-toward-minimum,
// open-new, fill-spare order.
func (a Allocator) Allocate(seed Snapshot, parties []Party, vehicles []Vehicle, p Policy) Result {
	state := seed.Clone()
	res := Result{Snapshot: state, Assignments: map[string]string{}, Unassigned: []Unassigned{}}
	byID := indexVehicles(vehicles)

	ordered := make([]Party, len(parties))
	copy(ordered, parties)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Size > ordered[j].Size })

	pending := 0
	for _, pt := range ordered {
		if pt.Size > 0 {
			pending += pt.Size
		}
	}

	rest := make([]Party, 0, len(ordered))
	for _, pt := range ordered {
		if pt.Size <= 0 {
			res.Unassigned = append(res.Unassigned, Unassigned{Party: pt, Reason: ReasonInvalidSize})
			continue
		}
		if pt.VehicleID == "" {
			rest = append(rest, pt)
			continue
		}
		v, ok := byID[pt.VehicleID]
		if !ok || !p.eligible(v.ID) || free(v, state) < pt.Size {
			rest = append(rest, pt)
			continue
		}
		a.place(state, v, pt)
		res.Assignments[pt.ID] = v.ID
		pending -= pt.Size
	}

	for _, pt := range rest {
		v, ok := a.choose(state, vehicles, pt.Size, pending, p)
		pending -= pt.Size
		if !ok {
			res.Unassigned = append(res.Unassigned, Unassigned{Party: pt, Reason: ReasonNoCapacity})
			continue
		}
		a.place(state, v, pt)
		res.Assignments[pt.ID] = v.ID
	}
	return res
}

// choose runs the placement priority for a party of size seats.
func (a Allocator) choose(state Snapshot, vehicles []Vehicle, size, pending int, p Policy) (Vehicle, bool) {
	var open, belowMin, empty []Vehicle
	for _, v := range vehicles {
		if !p.eligible(v.ID) || free(v, state) < size {
			continue
		}
		seats := state.Seats(v.ID)
		switch {
		case seats > 0 || (!p.AllowOpeningNewVehicles && p.Eligible != nil):
			open = append(open, v)
			if seats < v.MinSeats {
				belowMin = append(belowMin, v)
			}
		case p.AllowOpeningNewVehicles:
			empty = append(empty, v)
		}
	}

	if v, ok := a.cheapest(state, belowMin); ok {
		return v, true
	}
	if p.PreferExisting {
		if v, ok := a.cheapest(state, open); ok {
			return v, true
		}
		return a.openNew(state, empty, size, pending, true)
	}
	if v, ok := a.openNew(state, empty, size, pending, false); ok {
		return v, true
	}
	return a.cheapest(state, open)
}

// openNew picks an empty vehicle to open.  Vehicles whose projected revenue
// after taking the party reaches the allowed target win over the rest.
func (a Allocator) openNew(state Snapshot, empty []Vehicle, size, pending int, reachableMin bool) (Vehicle, bool) {
	if len(empty) == 0 {
		return Vehicle{}, false
	}
	pool := empty
	if reachableMin {
		var reach []Vehicle
		for _, v := range empty {
			if v.MinSeats <= pending {
				reach = append(reach, v)
			}
		}
		if len(reach) > 0 {
			pool = reach
		}
	}
	var onTarget []Vehicle
	for _, v := range pool {
		projected, _ := seatRun(v, 0, size, state.Forced(v.ID), a.Rates)
		if projected >= v.MinRevenueTarget() {
			onTarget = append(onTarget, v)
		}
	}
	if v, ok := a.cheapest(state, onTarget); ok {
		return v, true
	}
	return a.cheapest(state, pool)
}

// cheapest returns the candidate with the lowest next-seat price, broken by
// the allocator's tie-break order, then name and ID.
func (a Allocator) cheapest(state Snapshot, cands []Vehicle) (Vehicle, bool) {
	if len(cands) == 0 {
		return Vehicle{}, false
	}
	best := cands[0]
	bestPrice := a.rankPrice(state, best)
	for _, v := range cands[1:] {
		price := a.rankPrice(state, v)
		if price < bestPrice || (price == bestPrice && a.before(v, best)) {
			best, bestPrice = v, price
		}
	}
	return best, true
}

func (a Allocator) rankPrice(state Snapshot, v Vehicle) int64 {
	p, ok := NextSeatPrice(v, state.Seats(v.ID), state.Forced(v.ID), a.Rates)
	if !ok {
		return math.MaxInt64
	}
	return p.Unit
}

// before reports whether x ranks ahead of y among equally priced vehicles.
func (a Allocator) before(x, y Vehicle) bool {
	if a.TieBreak == RatingThenPreferred {
		if x.OperatorRating != y.OperatorRating {
			return x.OperatorRating > y.OperatorRating
		}
		if x.Preferred != y.Preferred {
			return x.Preferred
		}
	} else {
		if x.Preferred != y.Preferred {
			return x.Preferred
		}
		if x.OperatorRating != y.OperatorRating {
			return x.OperatorRating > y.OperatorRating
		}
	}
	if x.Name != y.Name {
		return x.Name < y.Name
	}
	return x.ID < y.ID
}

func (a Allocator) place(state Snapshot, v Vehicle, pt Party) {
	va := state.entry(v.ID)
	revenue, _ := seatRun(v, va.SeatsAssigned, pt.Size, va.ForceDiscount, a.Rates)
	va.SeatsAssigned += pt.Size
	va.RevenueAccrued += revenue
	va.PartyIDs = append(va.PartyIDs, pt.ID)
}

func free(v Vehicle, state Snapshot) int {
	return v.MaxSeats - state.Seats(v.ID)
}
