// Package service runs the allocation engine against stored departures.  It
// loads a departure's inventory and parties, asks the engine for quotes,
// placements and phase transitions, and writes the outcome back inside one
// transaction per departure.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/config"
	"github.com/iliyamo/journey-seat-booking/internal/engine"
	"github.com/iliyamo/journey-seat-booking/internal/metrics"
	"github.com/iliyamo/journey-seat-booking/internal/model"
	"github.com/iliyamo/journey-seat-booking/internal/queue"
	"github.com/iliyamo/journey-seat-booking/internal/repository"
)

var (
	// ErrQtyMismatch is returned when a confirmation asks for a different
	// number of seats than its quote.
	ErrQtyMismatch = errors.New("qty does not match quote")
	// ErrBookingClosed is returned when a finalized departure is changed.
	ErrBookingClosed = errors.New("departure is finalized")
	// ErrNotFinalized is returned when a ledger is requested too early.
	ErrNotFinalized = errors.New("departure is not finalized")
)

// ConfirmStatus is the business outcome of a confirmation.
type ConfirmStatus string

const (
	ConfirmOK            ConfirmStatus = "confirmed"
	ConfirmStalePrice    ConfirmStatus = "stale_price"
	ConfirmTokenExpired  ConfirmStatus = "token_expired"
	ConfirmBookingClosed ConfirmStatus = "booking_closed"
)

// BookingService is the booking use-case layer.  All fields are required
// except Metrics and Publisher.
type BookingService struct {
	DB         *sql.DB
	Routes     *repository.RouteRepo
	Vehicles   *repository.VehicleRepo
	Departures *repository.DepartureRepo
	Parties    *repository.PartyRepo
	Operators  *repository.OperatorRepo
	Ledger     *repository.FinalizationRepo
	Tokens     repository.QuoteTokenStore
	Publisher  queue.Publisher
	Pricing    config.PricingConfig
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// New wires a BookingService over db.  A nil publisher discards events and
// a nil logger uses the default one.
func New(db *sql.DB, tokens repository.QuoteTokenStore, pub queue.Publisher, pricing config.PricingConfig, m *metrics.Metrics, logger *slog.Logger) *BookingService {
	if pub == nil {
		pub = queue.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{
		DB:         db,
		Routes:     repository.NewRouteRepo(db),
		Vehicles:   repository.NewVehicleRepo(db),
		Departures: repository.NewDepartureRepo(db),
		Parties:    repository.NewPartyRepo(db),
		Operators:  repository.NewOperatorRepo(db),
		Ledger:     repository.NewFinalizationRepo(db),
		Tokens:     tokens,
		Publisher:  pub,
		Pricing:    pricing,
		Metrics:    m,
		Logger:     logger.With("component", "booking"),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *BookingService) allocator() engine.Allocator {
	return engine.Allocator{Rates: s.Pricing.Rates(), TieBreak: s.Pricing.Order()}
}

func (s *BookingService) quoter(currency string) engine.QuoteService {
	if currency == "" {
		currency = s.Pricing.Currency
	}
	return engine.QuoteService{Allocator: s.allocator(), Currency: currency}
}

// machine builds the policy machine.  Commission rates stored on operators
// override the configured ones.  It must not run inside a transaction.
func (s *BookingService) machine(ctx context.Context) (engine.Machine, error) {
	commission := s.Pricing.Commission()
	stored, err := s.Operators.CommissionRates(ctx)
	if err != nil {
		return engine.Machine{}, fmt.Errorf("load commission rates: %w", err)
	}
	for op, rate := range stored {
		commission.ByOperator[op] = rate
	}
	return engine.Machine{Allocator: s.allocator(), Commission: commission}, nil
}

// loadState rebuilds the engine view of dep.  From the lock onwards the
// snapshot is reseeded from the pinned parties and the in-play set, using
// the vehicle terms recorded at the lock.  tx may be nil.
func (s *BookingService) loadState(ctx context.Context, tx *sql.Tx, m engine.Machine, dep *model.Departure) (engine.DepartureState, engine.Inputs, error) {
	forming := dep.Phase == engine.PhaseForming || dep.Phase == ""
	var (
		vehicles []model.Vehicle
		err      error
	)
	if forming {
		vehicles, err = s.Vehicles.ListByRoute(ctx, tx, dep.RouteID)
	} else {
		vehicles, err = s.Vehicles.ListInPlay(ctx, tx, dep.ID)
	}
	if err != nil {
		return engine.DepartureState{}, engine.Inputs{}, fmt.Errorf("load vehicles: %w", err)
	}
	parties, err := s.Parties.ListActiveByDeparture(ctx, tx, dep.ID)
	if err != nil {
		return engine.DepartureState{}, engine.Inputs{}, fmt.Errorf("load parties: %w", err)
	}
	in := engine.Inputs{Parties: model.EngineParties(parties), Vehicles: model.EngineVehicles(vehicles)}
	st := engine.DepartureState{Phase: dep.Phase, Fallback: dep.FallbackVehicleID}
	if dep.LockedAt != nil {
		st.LockedAt = *dep.LockedAt
	}
	if dep.FinalizedAt != nil {
		st.FinalizedAt = *dep.FinalizedAt
	}
	if forming {
		return st, in, nil
	}

	kept, err := s.Departures.InPlay(ctx, tx, dep.ID)
	if err != nil {
		return engine.DepartureState{}, engine.Inputs{}, fmt.Errorf("load in-play vehicles: %w", err)
	}
	forced := make(map[string]bool, len(kept))
	for _, dv := range kept {
		st.InPlay = append(st.InPlay, dv.VehicleID)
		forced[dv.VehicleID] = dv.ForceDiscount
	}
	st.Snapshot, _ = m.Seed(in.Parties, in.Vehicles, st.InPlay, forced)
	return st, in, nil
}

// withTx runs fn inside a transaction that is rolled back unless fn
// succeeds and the commit goes through.
func (s *BookingService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// catchUp advances dep when the clock has moved it into a later phase and
// returns the fresh row.
func (s *BookingService) catchUp(ctx context.Context, dep *model.Departure) (*model.Departure, error) {
	if dep.Phase == engine.PhaseFinalized || engine.PhaseAt(s.Now(), dep.DepartsAt) == dep.Phase {
		return dep, nil
	}
	if _, err := s.Advance(ctx, dep.ID); err != nil {
		return nil, err
	}
	return s.Departures.GetByID(ctx, nil, dep.ID)
}
