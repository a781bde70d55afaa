package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/journey-seat-booking/internal/model"
)

// OperatorRepo manages persistence for operators.
type OperatorRepo struct {
	db *sql.DB
}

// NewOperatorRepo returns a new OperatorRepo bound to the given database.
func NewOperatorRepo(db *sql.DB) *OperatorRepo { return &OperatorRepo{db: db} }

// Create inserts an operator.
func (r *OperatorRepo) Create(ctx context.Context, o *model.Operator) error {
	const q = `INSERT INTO operators (id, name, rating, commission_rate) VALUES (?, ?, ?, ?)`
	var rate sql.NullFloat64
	if o.CommissionRate != nil {
		rate = sql.NullFloat64{Float64: *o.CommissionRate, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, q, o.ID, o.Name, o.Rating, rate); err != nil {
		return fmt.Errorf("insert operator %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns one operator or ErrNotFound.
func (r *OperatorRepo) GetByID(ctx context.Context, id string) (*model.Operator, error) {
	const q = `SELECT id, name, rating, commission_rate FROM operators WHERE id = ?`
	var o model.Operator
	var rate sql.NullFloat64
	err := r.db.QueryRowContext(ctx, q, id).Scan(&o.ID, &o.Name, &o.Rating, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operator %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if rate.Valid {
		v := rate.Float64
		o.CommissionRate = &v
	}
	return &o, nil
}

// CommissionRates returns the operator-specific commission rates.
// Operators without a stored rate are absent from the map.
func (r *OperatorRepo) CommissionRates(ctx context.Context) (map[string]float64, error) {
	const q = `SELECT id, commission_rate FROM operators WHERE commission_rate IS NOT NULL`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var id string
		var rate float64
		if err := rows.Scan(&id, &rate); err != nil {
			return nil, err
		}
		out[id] = rate
	}
	return out, rows.Err()
}
