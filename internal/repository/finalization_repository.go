package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

// FinalizationRepo is the audit store of finalization ledgers.
type FinalizationRepo struct {
	db *sql.DB
}

// NewFinalizationRepo returns a new FinalizationRepo bound to the given
// database.
func NewFinalizationRepo(db *sql.DB) *FinalizationRepo { return &FinalizationRepo{db: db} }

// ReplaceTx stores rows as the ledger of departureID, dropping any earlier
// ledger of the same departure.
func (r *FinalizationRepo) ReplaceTx(ctx context.Context, tx *sql.Tx, departureID string, rows []engine.FinalizationRow) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM finalization_rows WHERE departure_id = ?`, departureID); err != nil {
		return err
	}
	const q = `INSERT INTO finalization_rows (departure_id, vehicle_id, operator_id, seats, unit_price_minor,
                   base_minor, tax_minor, fees_minor, revenue_minor, base_revenue_minor, commission_minor,
                   min_revenue_target_minor, shortfall)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, q, departureID, row.VehicleID, row.OperatorID, row.Seats, row.UnitPrice,
			row.Base, row.Tax, row.Fees, row.Revenue, row.BaseRevenue, row.Commission,
			row.MinRevenueTarget, row.Shortfall); err != nil {
			return fmt.Errorf("insert finalization row %s/%s: %w", departureID, row.VehicleID, err)
		}
	}
	return nil
}

// ListByDeparture returns the stored ledger rows ordered by vehicle ID.
func (r *FinalizationRepo) ListByDeparture(ctx context.Context, departureID string) ([]engine.FinalizationRow, error) {
	const q = `SELECT vehicle_id, operator_id, seats, unit_price_minor, base_minor, tax_minor, fees_minor,
                      revenue_minor, base_revenue_minor, commission_minor, min_revenue_target_minor, shortfall
               FROM finalization_rows WHERE departure_id = ? ORDER BY vehicle_id`
	rows, err := r.db.QueryContext(ctx, q, departureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []engine.FinalizationRow{}
	for rows.Next() {
		var row engine.FinalizationRow
		if err := rows.Scan(&row.VehicleID, &row.OperatorID, &row.Seats, &row.UnitPrice, &row.Base, &row.Tax,
			&row.Fees, &row.Revenue, &row.BaseRevenue, &row.Commission, &row.MinRevenueTarget, &row.Shortfall); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
