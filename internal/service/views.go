package service

import (
	"context"
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

// AllocationView is the allocation in force for a departure.  While
// forming it is a preview of how the committed parties would be packed.
type AllocationView struct {
	DepartureID string              `json:"departure_id"`
	RouteID     string              `json:"route_id"`
	ServiceDate string              `json:"service_date"`
	DepartsAt   time.Time           `json:"departs_at"`
	Phase       engine.Phase        `json:"phase"`
	InPlay      []string            `json:"in_play"`
	Fallback    string              `json:"fallback_vehicle_id,omitempty"`
	Snapshot    engine.Snapshot     `json:"snapshot"`
	Unassigned  []engine.Unassigned `json:"unassigned"`
}

// Allocation returns the current allocation of a departure.  A non-empty
// operatorID restricts the view to that operator's vehicles.
func (s *BookingService) Allocation(ctx context.Context, departureID, operatorID string) (AllocationView, error) {
	dep, err := s.Departures.GetByID(ctx, nil, departureID)
	if err != nil {
		return AllocationView{}, err
	}
	if dep, err = s.catchUp(ctx, dep); err != nil {
		return AllocationView{}, err
	}
	m, err := s.machine(ctx)
	if err != nil {
		return AllocationView{}, err
	}
	st, in, err := s.loadState(ctx, nil, m, dep)
	if err != nil {
		return AllocationView{}, err
	}
	cur := m.Current(st, in)

	snap := cur.Snapshot
	inPlay := st.InPlay
	if inPlay == nil {
		inPlay = []string{}
	}
	if operatorID != "" {
		owned := map[string]bool{}
		for _, v := range in.Vehicles {
			if v.OperatorID == operatorID {
				owned[v.ID] = true
			}
		}
		for id := range snap.Vehicles {
			if !owned[id] {
				delete(snap.Vehicles, id)
			}
		}
		var mine []string
		for _, id := range inPlay {
			if owned[id] {
				mine = append(mine, id)
			}
		}
		inPlay = append([]string{}, mine...)
		cur.Unassigned = []engine.Unassigned{}
	}
	return AllocationView{
		DepartureID: dep.ID,
		RouteID:     dep.RouteID,
		ServiceDate: dep.ServiceDate,
		DepartsAt:   dep.DepartsAt,
		Phase:       st.Phase,
		InPlay:      inPlay,
		Fallback:    st.Fallback,
		Snapshot:    snap,
		Unassigned:  cur.Unassigned,
	}, nil
}

// Report returns the stored finalization ledger of a departure.  A
// non-empty operatorID keeps only that operator's rows.
func (s *BookingService) Report(ctx context.Context, departureID, operatorID string) (engine.Report, error) {
	dep, err := s.Departures.GetByID(ctx, nil, departureID)
	if err != nil {
		return engine.Report{}, err
	}
	if dep, err = s.catchUp(ctx, dep); err != nil {
		return engine.Report{}, err
	}
	if dep.Phase != engine.PhaseFinalized {
		return engine.Report{}, ErrNotFinalized
	}
	rows, err := s.Ledger.ListByDeparture(ctx, departureID)
	if err != nil {
		return engine.Report{}, err
	}
	rep := engine.Rebuild(rows)
	if operatorID != "" {
		rep = rep.ForOperator(operatorID)
	}
	return rep, nil
}
