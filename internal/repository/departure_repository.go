package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
	"github.com/iliyamo/journey-seat-booking/internal/model"
)

// DepartureRepo manages departures and the vehicles their lock kept in
// play.
type DepartureRepo struct {
	db *sql.DB
}

// NewDepartureRepo returns a new DepartureRepo bound to the given database.
func NewDepartureRepo(db *sql.DB) *DepartureRepo { return &DepartureRepo{db: db} }

// DB exposes the underlying sql.DB so services can begin transactions
// spanning several repositories.
func (r *DepartureRepo) DB() *sql.DB { return r.db }

const departureColumns = `id, route_id, service_date, departs_at, phase, locked_at, finalized_at, fallback_vehicle_id, version`

func scanDeparture(row interface{ Scan(...any) error }) (*model.Departure, error) {
	var d model.Departure
	var departsAt int64
	var phase string
	var lockedAt, finalizedAt sql.NullInt64
	var fallback sql.NullString
	if err := row.Scan(&d.ID, &d.RouteID, &d.ServiceDate, &departsAt, &phase,
		&lockedAt, &finalizedAt, &fallback, &d.Version); err != nil {
		return nil, err
	}
	d.DepartsAt = fromUnix(departsAt)
	d.Phase = engine.Phase(phase)
	d.LockedAt = timePtr(lockedAt)
	d.FinalizedAt = timePtr(finalizedAt)
	d.FallbackVehicleID = fallback.String
	return &d, nil
}

// Create inserts a departure in the forming phase.
func (r *DepartureRepo) Create(ctx context.Context, d *model.Departure) error {
	if d.Phase == "" {
		d.Phase = engine.PhaseForming
	}
	const q = `INSERT INTO departures (id, route_id, service_date, departs_at, phase) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, d.ID, d.RouteID, d.ServiceDate, unix(d.DepartsAt), string(d.Phase)); err != nil {
		return fmt.Errorf("insert departure %s: %w", d.ID, err)
	}
	return nil
}

// GetByID returns one departure or ErrNotFound.  tx may be nil.
func (r *DepartureRepo) GetByID(ctx context.Context, tx *sql.Tx, id string) (*model.Departure, error) {
	q := `SELECT ` + departureColumns + ` FROM departures WHERE id = ?`
	d, err := scanDeparture(on(r.db, tx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("departure %s: %w", id, ErrNotFound)
	}
	return d, err
}

// GetByRouteAndDate returns the departure of routeID on the service date
// (YYYY-MM-DD) or ErrNotFound.
func (r *DepartureRepo) GetByRouteAndDate(ctx context.Context, routeID, date string) (*model.Departure, error) {
	q := `SELECT ` + departureColumns + ` FROM departures WHERE route_id = ? AND service_date = ?`
	d, err := scanDeparture(r.db.QueryRowContext(ctx, q, routeID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("departure %s on %s: %w", routeID, date, ErrNotFound)
	}
	return d, err
}

// ListDue returns the departures that are not finalized yet and leave
// within the lock window of now, soonest first.
func (r *DepartureRepo) ListDue(ctx context.Context, now time.Time) ([]model.Departure, error) {
	q := `SELECT ` + departureColumns + ` FROM departures
          WHERE phase <> ? AND departs_at <= ?
          ORDER BY departs_at, id`
	rows, err := r.db.QueryContext(ctx, q, string(engine.PhaseFinalized), unix(now.Add(engine.LockWindow)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Departure{}
	for rows.Next() {
		d, err := scanDeparture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Bump increments the departure version inside tx.  The update takes the
// row lock, so concurrent writers to the same departure queue behind it.
func (r *DepartureRepo) Bump(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE departures SET version = version + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("departure %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveLocked records the lock: the phase, the fallback vehicle and the
// in-play vehicle set, replacing any earlier set.  Each in-play vehicle
// keeps a copy of its capacity and revenue terms as they stand now.
func (r *DepartureRepo) SaveLocked(ctx context.Context, tx *sql.Tx, id string, at time.Time, fallback string, inPlay []model.DepartureVehicle) error {
	const upd = `UPDATE departures SET phase = ?, locked_at = ?, fallback_vehicle_id = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, string(engine.PhaseLocked), unix(at), nullString(fallback), id); err != nil {
		return fmt.Errorf("lock departure %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM departure_vehicles WHERE departure_id = ?`, id); err != nil {
		return err
	}
	const ins = `INSERT INTO departure_vehicles (departure_id, vehicle_id, force_discount, min_seats, max_seats,
                                                 min_revenue_minor, discount_fraction, threshold_fraction)
               SELECT ?, id, ?, min_seats, max_seats, min_revenue_minor, discount_fraction, threshold_fraction
               FROM vehicles WHERE id = ?`
	for _, dv := range inPlay {
		res, err := tx.ExecContext(ctx, ins, id, dv.ForceDiscount, dv.VehicleID)
		if err != nil {
			return fmt.Errorf("keep vehicle %s in play: %w", dv.VehicleID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("keep vehicle %s in play: %w", dv.VehicleID, ErrNotFound)
		}
	}
	return nil
}

// ForceDiscount flags an in-play vehicle so every seat on it is priced at
// the discount.
func (r *DepartureRepo) ForceDiscount(ctx context.Context, tx *sql.Tx, id, vehicleID string) error {
	const q = `UPDATE departure_vehicles SET force_discount = ? WHERE departure_id = ? AND vehicle_id = ?`
	if _, err := tx.ExecContext(ctx, q, true, id, vehicleID); err != nil {
		return fmt.Errorf("force discount on %s: %w", vehicleID, err)
	}
	return nil
}

// SaveFinalized moves the departure to the finalized phase.
func (r *DepartureRepo) SaveFinalized(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	const q = `UPDATE departures SET phase = ?, finalized_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, string(engine.PhaseFinalized), unix(at), id); err != nil {
		return fmt.Errorf("finalize departure %s: %w", id, err)
	}
	return nil
}

// InPlay returns the vehicles the lock kept for the departure, ordered by
// vehicle ID.  tx may be nil.
func (r *DepartureRepo) InPlay(ctx context.Context, tx *sql.Tx, id string) ([]model.DepartureVehicle, error) {
	const q = `SELECT departure_id, vehicle_id, force_discount FROM departure_vehicles
               WHERE departure_id = ? ORDER BY vehicle_id`
	rows, err := on(r.db, tx).QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DepartureVehicle{}
	for rows.Next() {
		var dv model.DepartureVehicle
		if err := rows.Scan(&dv.DepartureID, &dv.VehicleID, &dv.ForceDiscount); err != nil {
			return nil, err
		}
		out = append(out, dv)
	}
	return out, rows.Err()
}
