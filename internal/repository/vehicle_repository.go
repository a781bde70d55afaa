package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/journey-seat-booking/internal/model"
)

// VehicleRepo manages vehicles and their route links.
type VehicleRepo struct {
	db *sql.DB
}

// NewVehicleRepo returns a new VehicleRepo bound to the given database.
func NewVehicleRepo(db *sql.DB) *VehicleRepo { return &VehicleRepo{db: db} }

// Create inserts a vehicle.  Its operator must exist.
func (r *VehicleRepo) Create(ctx context.Context, v *model.Vehicle) error {
	const q = `INSERT INTO vehicles (id, operator_id, name, min_seats, max_seats, min_revenue_minor,
                                     discount_fraction, threshold_fraction, preferred, active)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var threshold sql.NullFloat64
	if v.ThresholdFraction != nil {
		threshold = sql.NullFloat64{Float64: *v.ThresholdFraction, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q, v.ID, v.OperatorID, v.Name, v.MinSeats, v.MaxSeats,
		v.MinRevenueMinor, v.DiscountFraction, threshold, v.Preferred, v.Active)
	if err != nil {
		return fmt.Errorf("insert vehicle %s: %w", v.ID, err)
	}
	return nil
}

// LinkRoute makes the vehicle a candidate for every departure of routeID.
func (r *VehicleRepo) LinkRoute(ctx context.Context, routeID, vehicleID string) error {
	const q = `INSERT INTO route_vehicles (route_id, vehicle_id) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, q, routeID, vehicleID); err != nil {
		return fmt.Errorf("link vehicle %s to route %s: %w", vehicleID, routeID, err)
	}
	return nil
}

// SetActive enables or disables a vehicle.
func (r *VehicleRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE vehicles SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListByRoute returns the active vehicles linked to routeID with their
// operator rating, ordered by ID.  tx may be nil.
func (r *VehicleRepo) ListByRoute(ctx context.Context, tx *sql.Tx, routeID string) ([]model.Vehicle, error) {
	const q = `SELECT v.id, v.operator_id, v.name, v.min_seats, v.max_seats, v.min_revenue_minor,
                      v.discount_fraction, v.threshold_fraction, v.preferred, v.active, o.rating
               FROM route_vehicles rv
               JOIN vehicles v ON v.id = rv.vehicle_id
               JOIN operators o ON o.id = v.operator_id
               WHERE rv.route_id = ? AND v.active = ?
               ORDER BY v.id`
	rows, err := on(r.db, tx).QueryContext(ctx, q, routeID, true)
	if err != nil {
		return nil, err
	}
	return scanVehicles(rows)
}

// ListInPlay returns the vehicles kept in play for a departure with the
// capacity and revenue terms recorded at the lock, whether or not the
// vehicle is still active.  tx may be nil.
func (r *VehicleRepo) ListInPlay(ctx context.Context, tx *sql.Tx, departureID string) ([]model.Vehicle, error) {
	const q = `SELECT v.id, v.operator_id, v.name, dv.min_seats, dv.max_seats, dv.min_revenue_minor,
                      dv.discount_fraction, dv.threshold_fraction, v.preferred, v.active, o.rating
               FROM departure_vehicles dv
               JOIN vehicles v ON v.id = dv.vehicle_id
               JOIN operators o ON o.id = v.operator_id
               WHERE dv.departure_id = ?
               ORDER BY v.id`
	rows, err := on(r.db, tx).QueryContext(ctx, q, departureID)
	if err != nil {
		return nil, err
	}
	return scanVehicles(rows)
}

func scanVehicles(rows *sql.Rows) ([]model.Vehicle, error) {
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		var v model.Vehicle
		var threshold sql.NullFloat64
		if err := rows.Scan(&v.ID, &v.OperatorID, &v.Name, &v.MinSeats, &v.MaxSeats, &v.MinRevenueMinor,
			&v.DiscountFraction, &threshold, &v.Preferred, &v.Active, &v.OperatorRating); err != nil {
			return nil, err
		}
		if threshold.Valid {
			f := threshold.Float64
			v.ThresholdFraction = &f
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
