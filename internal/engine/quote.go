package engine

// Quote is an advisory price for a batch of seats.  It is never persisted;
// the caller binds it to a token and re-validates it before committing.
type Quote struct {
	Qty                  int       `json:"qty"`
	UnitPriceMinor       int64     `json:"unit_price_minor"`
	Currency             string    `json:"currency"`
	VehicleID            string    `json:"vehicle_id"`
	MaxQtyAtCurrentPrice int       `json:"max_qty_at_price"`
	Breakdown            SeatPrice `json:"breakdown"`
	Token                string    `json:"token,omitempty"`
}

// Matches reports whether q and other promise the same seats at the same
// price on the same vehicle.
func (q Quote) Matches(other Quote) bool {
	return q.Qty == other.Qty &&
		q.VehicleID == other.VehicleID &&
		q.UnitPriceMinor == other.UnitPriceMinor &&
		q.Currency == other.Currency
}

// QuoteOutcome pairs the availability verdict with the quote it produced.
// Quote is only meaningful when Availability is Available.
type QuoteOutcome struct {
	Availability Availability `json:"availability"`
	Quote        Quote        `json:"quote"`
}

// QuoteService answers what the next qty seats would cost right now.
type QuoteService struct {
	Allocator Allocator
	Currency  string
}

// Quote simulates one party of qty seats on top of state without changing
// it.  pinned keeps a shopping session on the vehicle it was first quoted
// on while that vehicle can still take the whole party.  qty below one is
// treated as one.
func (s QuoteService) Quote(state Snapshot, vehicles []Vehicle, p Policy, qty int, pinned string) QuoteOutcome {
	if len(vehicles) == 0 {
		return QuoteOutcome{Availability: NoVehicles}
	}
	if qty < 1 {
		qty = 1
	}
	usable := s.usable(state, vehicles, p)
	total, largest := 0, 0
	for _, v := range usable {
		f := free(v, state)
		if f <= 0 {
			continue
		}
		total += f
		if f > largest {
			largest = f
		}
	}
	if total == 0 {
		return QuoteOutcome{Availability: SoldOut}
	}
	if largest < qty {
		return QuoteOutcome{Availability: InsufficientCapacityForParty}
	}

	var chosen Vehicle
	found := false
	if pinned != "" {
		for _, v := range usable {
			if v.ID == pinned && free(v, state) >= qty {
				chosen, found = v, true
				break
			}
		}
	}
	if !found {
		chosen, found = s.Allocator.choose(state, vehicles, qty, qty, p)
	}
	if !found {
		return QuoteOutcome{Availability: InsufficientCapacityForParty}
	}

	seats := state.Seats(chosen.ID)
	forced := state.Forced(chosen.ID)
	_, last := seatRun(chosen, seats, qty, forced, s.Allocator.Rates)
	return QuoteOutcome{
		Availability: Available,
		Quote: Quote{
			Qty:                  qty,
			UnitPriceMinor:       last.Unit,
			Currency:             s.Currency,
			VehicleID:            chosen.ID,
			MaxQtyAtCurrentPrice: maxAtPrice(chosen, seats, forced),
			Breakdown:            last,
		},
	}
}

// Place commits one party of qty seats onto the vehicle of an accepted
// quote and returns the new snapshot.  It re-quotes first and refuses with
// the fresh outcome when the promise no longer holds.  While locked, a
// vehicle the party takes to its minimum is forced onto the discount.
func (s QuoteService) Place(state Snapshot, vehicles []Vehicle, p Policy, party Party, promised Quote) (Snapshot, QuoteOutcome, bool) {
	out := s.Quote(state, vehicles, p, party.Size, promised.VehicleID)
	if out.Availability != Available || !out.Quote.Matches(promised) {
		return state, out, false
	}
	next := state.Clone()
	v := indexVehicles(vehicles)[out.Quote.VehicleID]
	s.Allocator.place(next, v, party)
	if p.Phase == PhaseLocked {
		forceAtMinimum(next, v, s.Allocator.Rates)
	}
	return next, out, true
}

// usable lists the vehicles a new party could land on under p.
func (s QuoteService) usable(state Snapshot, vehicles []Vehicle, p Policy) []Vehicle {
	var out []Vehicle
	for _, v := range vehicles {
		if !p.eligible(v.ID) {
			continue
		}
		if state.Seats(v.ID) > 0 || p.AllowOpeningNewVehicles || p.Eligible != nil {
			out = append(out, v)
		}
	}
	return out
}

// maxAtPrice counts the seats purchasable before the price tier changes:
// the distance to the minimum while below it, otherwise the room left.
func maxAtPrice(v Vehicle, seats int, forced bool) int {
	room := v.MaxSeats - seats
	if room < 0 {
		room = 0
	}
	if !forced && seats < v.MinSeats {
		if toMin := v.MinSeats - seats; toMin < room {
			return toMin
		}
	}
	return room
}
