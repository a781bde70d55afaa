package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
	"github.com/iliyamo/journey-seat-booking/internal/model"
	"github.com/iliyamo/journey-seat-booking/internal/queue"
)

// Advance evaluates the policy clock for one departure and persists the
// transition it produces.  The lock pins every placed party to its vehicle,
// marks the parties it could not place as unassigned and stores the in-play
// set.  Finalization stores the ledger and publishes it.
func (s *BookingService) Advance(ctx context.Context, departureID string) (engine.Transition, error) {
	m, err := s.machine(ctx)
	if err != nil {
		return engine.Transition{}, err
	}
	now := s.Now()

	var (
		tr  engine.Transition
		dep *model.Departure
	)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.Departures.Bump(ctx, tx, departureID); err != nil {
			return err
		}
		var err error
		dep, err = s.Departures.GetByID(ctx, tx, departureID)
		if err != nil {
			return err
		}
		st, in, err := s.loadState(ctx, tx, m, dep)
		if err != nil {
			return err
		}
		var next engine.DepartureState
		next, tr = m.Advance(st, dep.DepartsAt, now, in)
		if !tr.Changed {
			return errRollback
		}

		if tr.From == engine.PhaseForming {
			if err := s.persistLock(ctx, tx, dep.ID, next, tr); err != nil {
				return err
			}
		}
		if next.Phase == engine.PhaseFinalized {
			if err := s.Departures.SaveFinalized(ctx, tx, dep.ID, next.FinalizedAt); err != nil {
				return err
			}
			if err := s.Ledger.ReplaceTx(ctx, tx, dep.ID, tr.Report.Rows); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return tr, nil
	}
	if err != nil {
		return engine.Transition{}, fmt.Errorf("advance departure %s: %w", departureID, err)
	}

	s.Metrics.ObserveTransition(string(tr.From), string(tr.To), len(tr.Unassigned))
	s.Logger.Info("departure advanced", "departure_id", departureID, "from", tr.From, "to", tr.To,
		"assigned", len(tr.Assignments), "unassigned", len(tr.Unassigned))
	for _, u := range tr.Unassigned {
		s.Logger.Warn("party left unassigned", "departure_id", departureID, "booking_id", u.Party.ID,
			"size", u.Party.Size, "reason", u.Reason)
	}
	if tr.Report != nil {
		s.publish(ctx, queue.DepartureFinalizedQueue, queue.DepartureFinalizedEvent{
			DepartureID: dep.ID,
			RouteID:     dep.RouteID,
			ServiceDate: dep.ServiceDate,
			Report:      *tr.Report,
			FinalizedAt: now.Format(time.RFC3339),
		})
	}
	return tr, nil
}

func (s *BookingService) persistLock(ctx context.Context, tx *sql.Tx, departureID string, next engine.DepartureState, tr engine.Transition) error {
	for partyID, vehicleID := range tr.Assignments {
		if err := s.Parties.PinTx(ctx, tx, partyID, vehicleID); err != nil {
			return err
		}
	}
	for _, u := range tr.Unassigned {
		if err := s.Parties.SetStatusTx(ctx, tx, u.Party.ID, model.PartyUnassigned); err != nil {
			return err
		}
	}
	kept := make([]model.DepartureVehicle, 0, len(next.InPlay))
	for _, id := range next.InPlay {
		kept = append(kept, model.DepartureVehicle{
			DepartureID:   departureID,
			VehicleID:     id,
			ForceDiscount: next.Snapshot.Forced(id),
		})
	}
	return s.Departures.SaveLocked(ctx, tx, departureID, next.LockedAt, next.Fallback, kept)
}

// SweepResult summarises one AdvanceDue run.
type SweepResult struct {
	Checked  int `json:"checked"`
	Advanced int `json:"advanced"`
	Failed   int `json:"failed"`
}

// AdvanceDue advances every departure inside the lock window.  A failing
// departure does not stop the sweep; all errors are returned joined.
func (s *BookingService) AdvanceDue(ctx context.Context) (SweepResult, error) {
	due, err := s.Departures.ListDue(ctx, s.Now())
	if err != nil {
		return SweepResult{}, fmt.Errorf("list due departures: %w", err)
	}
	var res SweepResult
	var errs []error
	for _, d := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res.Checked++
		tr, err := s.Advance(ctx, d.ID)
		if err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		if tr.Changed {
			res.Advanced++
		}
	}
	return res, errors.Join(errs...)
}
