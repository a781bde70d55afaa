package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/journey-seat-booking/internal/model"
)

// RouteRepo manages persistence for routes.
type RouteRepo struct {
	db *sql.DB
}

// NewRouteRepo returns a new RouteRepo bound to the given database.
func NewRouteRepo(db *sql.DB) *RouteRepo { return &RouteRepo{db: db} }

// Create inserts a route.
func (r *RouteRepo) Create(ctx context.Context, rt *model.Route) error {
	const q = `INSERT INTO routes (id, name, currency) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, rt.ID, rt.Name, rt.Currency); err != nil {
		return fmt.Errorf("insert route %s: %w", rt.ID, err)
	}
	return nil
}

// GetByID returns one route or ErrNotFound.
func (r *RouteRepo) GetByID(ctx context.Context, id string) (*model.Route, error) {
	const q = `SELECT id, name, currency FROM routes WHERE id = ?`
	var rt model.Route
	err := r.db.QueryRowContext(ctx, q, id).Scan(&rt.ID, &rt.Name, &rt.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}
