package engine

import (
	"sort"
	"time"
)

// Phase is the allocation policy phase of a departure.
type Phase string

const (
	PhaseForming   Phase = "forming"
	PhaseLocked    Phase = "locked"
	PhaseFinalized Phase = "finalized"
)

// Phase boundaries measured as time left before departure.
const (
	LockWindow     = 72 * time.Hour
	FinalizeWindow = 24 * time.Hour
)

func (p Phase) rank() int {
	switch p {
	case PhaseLocked:
		return 1
	case PhaseFinalized:
		return 2
	}
	return 0
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p == PhaseForming || p == PhaseLocked || p == PhaseFinalized
}

// PhaseAt derives the phase from the time left until departure: more than
// 72h is forming, 24h to 72h inclusive is locked, under 24h is finalized.
func PhaseAt(now, departsAt time.Time) Phase {
	left := departsAt.Sub(now)
	switch {
	case left > LockWindow:
		return PhaseForming
	case left >= FinalizeWindow:
		return PhaseLocked
	}
	return PhaseFinalized
}

// DepartureState is everything the policy machine remembers about one
// departure between calls.  While forming only Phase matters; from the lock
// onwards Snapshot and InPlay are authoritative.
type DepartureState struct {
	Phase       Phase     `json:"phase"`
	Snapshot    Snapshot  `json:"snapshot"`
	InPlay      []string  `json:"in_play"`
	Fallback    string    `json:"fallback_vehicle_id,omitempty"`
	LockedAt    time.Time `json:"locked_at,omitempty"`
	FinalizedAt time.Time `json:"finalized_at,omitempty"`
}

// Inputs are the committed parties and candidate vehicles of a departure.
type Inputs struct {
	Parties  []Party
	Vehicles []Vehicle
}

// Transition describes what one Advance call did.  Assignments holds the
// party placements decided by the lock step so the caller can persist them
// as pins; Report is set when the departure was finalized.
type Transition struct {
	From        Phase             `json:"from"`
	To          Phase             `json:"to"`
	Changed     bool              `json:"changed"`
	Assignments map[string]string `json:"assignments,omitempty"`
	Unassigned  []Unassigned      `json:"unassigned,omitempty"`
	Report      *Report           `json:"report,omitempty"`
}

// Machine drives the forming → locked → finalized lifecycle.
type Machine struct {
	Allocator  Allocator
	Commission CommissionRates
}

// Policy returns the allocation constraints for the state's phase.
func (m Machine) Policy(st DepartureState) Policy {
	switch st.Phase {
	case PhaseLocked:
		eligible := make(map[string]bool, len(st.InPlay))
		for _, id := range st.InPlay {
			eligible[id] = true
		}
		return Policy{Phase: PhaseLocked, Eligible: eligible}
	case PhaseFinalized:
		return Policy{Phase: PhaseFinalized, Eligible: map[string]bool{}}
	}
	return Policy{Phase: PhaseForming, AllowOpeningNewVehicles: true}
}

// Current returns the allocation in force for st.  While forming it is a
// fresh preview of every committed party; afterwards it is the stored
// snapshot.
func (m Machine) Current(st DepartureState, in Inputs) Result {
	if st.Phase == PhaseForming || st.Phase == "" {
		return m.Allocator.Allocate(NewSnapshot(), in.Parties, in.Vehicles, m.Policy(DepartureState{Phase: PhaseForming}))
	}
	snap := st.Snapshot
	if snap.Vehicles == nil {
		snap = NewSnapshot()
	}
	return Result{Snapshot: snap.Clone(), Assignments: map[string]string{}, Unassigned: []Unassigned{}}
}

// Advance moves st to the phase the clock demands.  Phases only move
// forward: a clock that maps to an earlier phase leaves st untouched.  A
// departure that skipped the locked window is locked and finalized in the
// same call.
func (m Machine) Advance(st DepartureState, departsAt, now time.Time, in Inputs) (DepartureState, Transition) {
	if !st.Phase.Valid() {
		st.Phase = PhaseForming
	}
	target := PhaseAt(now, departsAt)
	tr := Transition{From: st.Phase, To: st.Phase}
	if target.rank() <= st.Phase.rank() {
		return st, tr
	}

	next := st
	if next.Phase == PhaseForming {
		var res Result
		next, res = m.lock(in, now)
		tr.Assignments = res.Assignments
		tr.Unassigned = res.Unassigned
	}
	if target == PhaseFinalized {
		next = m.finalize(next, now)
		report := BuildReport(next.Snapshot, in.Vehicles, m.Allocator.Rates, m.Commission)
		tr.Report = &report
	}
	tr.To = next.Phase
	tr.Changed = true
	return next, tr
}

// Seed rebuilds a snapshot from parties pinned to vehicles.  Vehicles in
// inPlay get an entry even without seats and forced vehicles price every
// seat at the discount.  Parties without a usable pin are returned for
// placement.
func (m Machine) Seed(parties []Party, vehicles []Vehicle, inPlay []string, forced map[string]bool) (Snapshot, []Party) {
	snap := NewSnapshot()
	byID := indexVehicles(vehicles)
	for _, id := range inPlay {
		if _, ok := byID[id]; ok {
			snap.entry(id)
		}
	}
	for id, on := range forced {
		if _, ok := byID[id]; ok && on {
			snap.entry(id).ForceDiscount = true
		}
	}
	var rest []Party
	for _, pt := range parties {
		v, ok := byID[pt.VehicleID]
		if pt.VehicleID == "" || !ok || pt.Size <= 0 || free(v, snap) < pt.Size {
			rest = append(rest, pt)
			continue
		}
		m.Allocator.place(snap, v, pt)
	}
	return snap, rest
}

// lock seeds the snapshot from pinned parties, repacks the rest while
// opening as few vehicles as possible and forces the discount on every
// vehicle that reached its minimum.
func (m Machine) lock(in Inputs, now time.Time) (DepartureState, Result) {
	seed, pending := m.Seed(in.Parties, in.Vehicles, nil, nil)
	res := m.Allocator.Allocate(seed, pending, in.Vehicles, Policy{
		Phase:                   PhaseLocked,
		AllowOpeningNewVehicles: true,
		PreferExisting:          true,
	})
	for _, p := range in.Parties {
		if p.VehicleID == "" {
			continue
		}
		if _, placed := res.Assignments[p.ID]; !placed && seed.VehicleOf(p.ID) == p.VehicleID {
			res.Assignments[p.ID] = p.VehicleID
		}
	}

	snap := res.Snapshot
	byID := indexVehicles(in.Vehicles)
	var inPlay []string
	for _, id := range snap.VehicleIDs() {
		va := snap.Vehicles[id]
		if va.SeatsAssigned == 0 {
			delete(snap.Vehicles, id)
			continue
		}
		inPlay = append(inPlay, id)
		forceAtMinimum(snap, byID[id], m.Allocator.Rates)
	}

	st := DepartureState{Phase: PhaseLocked, Snapshot: snap, LockedAt: now}
	if len(inPlay) == 0 {
		if v, ok := m.Allocator.cheapest(snap, in.Vehicles); ok {
			snap.entry(v.ID)
			inPlay = []string{v.ID}
			st.Fallback = v.ID
		}
	}
	sort.Strings(inPlay)
	st.InPlay = inPlay
	return st, res
}

// forceAtMinimum flags v for the discount once it carries MinSeats seats
// and reprices every seat on it.
func forceAtMinimum(snap Snapshot, v Vehicle, r Rates) {
	va, ok := snap.Vehicles[v.ID]
	if !ok || va.ForceDiscount || v.MinSeats <= 0 || va.SeatsAssigned < v.MinSeats {
		return
	}
	va.ForceDiscount = true
	va.RevenueAccrued, _ = seatRun(v, 0, va.SeatsAssigned, true, r)
}

func (m Machine) finalize(st DepartureState, now time.Time) DepartureState {
	st.Phase = PhaseFinalized
	st.FinalizedAt = now
	if st.Snapshot.Vehicles == nil {
		st.Snapshot = NewSnapshot()
	}
	st.Snapshot = st.Snapshot.Clone()
	return st
}
