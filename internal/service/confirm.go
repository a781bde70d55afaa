package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
	"github.com/iliyamo/journey-seat-booking/internal/model"
	"github.com/iliyamo/journey-seat-booking/internal/queue"
	"github.com/iliyamo/journey-seat-booking/internal/repository"
)

// ConfirmResult is the outcome of a confirmation.  Booking is set when
// Status is confirmed; Fresh carries the re-quote that broke a stale
// promise.
type ConfirmResult struct {
	Status    ConfirmStatus        `json:"status"`
	Booking   *model.Party         `json:"booking,omitempty"`
	VehicleID string               `json:"vehicle_id,omitempty"`
	Fresh     *engine.QuoteOutcome `json:"fresh,omitempty"`
}

// Confirm commits the quote bound to token as a new party for userID.  The
// quote is re-run inside the transaction that writes the party; any change
// of vehicle, unit price or availability yields stale_price and writes
// nothing.  qty of zero means the quoted quantity.
func (s *BookingService) Confirm(ctx context.Context, userID uint64, token string, qty int) (ConfirmResult, error) {
	res, err := s.confirm(ctx, userID, token, qty)
	if err == nil {
		s.Metrics.ObserveBooking(string(res.Status))
	}
	return res, err
}

func (s *BookingService) confirm(ctx context.Context, userID uint64, token string, qty int) (ConfirmResult, error) {
	claim, err := s.Tokens.Get(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return ConfirmResult{Status: ConfirmTokenExpired}, nil
	}
	if err != nil {
		return ConfirmResult{}, err
	}
	if qty != 0 && qty != claim.Quote.Qty {
		return ConfirmResult{}, ErrQtyMismatch
	}

	dep, err := s.Departures.GetByID(ctx, nil, claim.DepartureID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if dep, err = s.catchUp(ctx, dep); err != nil {
		return ConfirmResult{}, err
	}
	m, err := s.machine(ctx)
	if err != nil {
		return ConfirmResult{}, err
	}
	route, err := s.Routes.GetByID(ctx, dep.RouteID)
	if err != nil {
		return ConfirmResult{}, err
	}

	var res ConfirmResult
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.Departures.Bump(ctx, tx, dep.ID); err != nil {
			return err
		}
		cur, err := s.Departures.GetByID(ctx, tx, dep.ID)
		if err != nil {
			return err
		}
		if cur.Phase == engine.PhaseFinalized {
			res = ConfirmResult{Status: ConfirmBookingClosed}
			return errRollback
		}
		st, in, err := s.loadState(ctx, tx, m, cur)
		if err != nil {
			return err
		}
		party := engine.Party{ID: uuid.NewString(), Size: claim.Quote.Qty}
		before := m.Current(st, in).Snapshot
		next, out, ok := s.quoter(route.Currency).Place(before, in.Vehicles, m.Policy(st), party, claim.Quote)
		if !ok {
			res = ConfirmResult{Status: ConfirmStalePrice, Fresh: &out}
			return errRollback
		}

		rec := &model.Party{
			ID:             party.ID,
			DepartureID:    cur.ID,
			UserID:         userID,
			Size:           party.Size,
			Status:         model.PartyConfirmed,
			UnitPriceMinor: out.Quote.UnitPriceMinor,
			TotalMinor:     out.Quote.UnitPriceMinor * int64(party.Size),
			CreatedAt:      s.Now(),
		}
		// Once locked the snapshot is rebuilt from pins, so the party
		// must remember its vehicle.
		if cur.Phase == engine.PhaseLocked {
			rec.VehicleID = out.Quote.VehicleID
		}
		if err := s.Parties.CreateTx(ctx, tx, rec); err != nil {
			return err
		}
		if vid := out.Quote.VehicleID; next.Forced(vid) && !before.Forced(vid) {
			if err := s.Departures.ForceDiscount(ctx, tx, cur.ID, vid); err != nil {
				return err
			}
			s.Logger.Info("vehicle reached minimum", "departure_id", cur.ID, "vehicle_id", vid)
		}
		res = ConfirmResult{Status: ConfirmOK, Booking: rec, VehicleID: out.Quote.VehicleID}
		return nil
	})
	if errors.Is(err, errRollback) {
		s.Logger.Info("booking refused", "departure_id", dep.ID, "status", res.Status, "token", token)
		return res, nil
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	if err := s.Tokens.Delete(ctx, token); err != nil {
		s.Logger.Warn("quote token not deleted", "error", err)
	}
	b := res.Booking
	s.Logger.Info("booking confirmed", "booking_id", b.ID, "departure_id", b.DepartureID,
		"qty", b.Size, "unit_price_minor", b.UnitPriceMinor, "vehicle_id", claim.Quote.VehicleID)
	s.publish(ctx, queue.BookingConfirmedQueue, queue.BookingConfirmedEvent{
		BookingID:      b.ID,
		DepartureID:    b.DepartureID,
		RouteID:        dep.RouteID,
		UserID:         b.UserID,
		Qty:            b.Size,
		VehicleID:      claim.Quote.VehicleID,
		Phase:          dep.Phase,
		UnitPriceMinor: b.UnitPriceMinor,
		TotalMinor:     b.TotalMinor,
		Currency:       route.Currency,
		ConfirmedAt:    b.CreatedAt.Format(time.RFC3339),
	})
	return res, nil
}

// errRollback aborts a transaction whose outcome is a business refusal
// rather than a failure.
var errRollback = errors.New("rollback")

// Cancel withdraws a confirmed party of userID.  Finalized departures can
// no longer change.
func (s *BookingService) Cancel(ctx context.Context, userID uint64, bookingID string) (*model.Party, error) {
	var p *model.Party
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = s.Parties.GetForUserTx(ctx, tx, bookingID, userID)
		if err != nil {
			return err
		}
		if err := s.Departures.Bump(ctx, tx, p.DepartureID); err != nil {
			return err
		}
		dep, err := s.Departures.GetByID(ctx, tx, p.DepartureID)
		if err != nil {
			return err
		}
		if dep.Phase == engine.PhaseFinalized || !s.Now().Before(dep.DepartsAt.Add(-engine.FinalizeWindow)) {
			return ErrBookingClosed
		}
		if err := s.Parties.SetStatusTx(ctx, tx, p.ID, model.PartyCancelled); err != nil {
			return err
		}
		p.Status = model.PartyCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("booking cancelled", "booking_id", p.ID, "departure_id", p.DepartureID)
	s.publish(ctx, queue.BookingCancelledQueue, queue.BookingCancelledEvent{
		BookingID:   p.ID,
		DepartureID: p.DepartureID,
		UserID:      p.UserID,
		Qty:         p.Size,
		CancelledAt: s.Now().Format(time.RFC3339),
	})
	return p, nil
}

// MyBookings lists every party userID booked.
func (s *BookingService) MyBookings(ctx context.Context, userID uint64) ([]model.Party, error) {
	return s.Parties.ListByUser(ctx, userID)
}

// publish sends an event and only logs failures; the booking is already
// committed.
func (s *BookingService) publish(ctx context.Context, q string, event any) {
	if err := s.Publisher.Publish(ctx, q, event); err != nil {
		s.Logger.Warn("event not published", "queue", q, "error", err)
	}
}
