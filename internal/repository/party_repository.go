package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/journey-seat-booking/internal/model"
)

// PartyRepo manages committed bookings.  A party is created CONFIRMED and
// leaves the active set when it is cancelled or the lock could not place
// it.
type PartyRepo struct {
	db *sql.DB
}

// NewPartyRepo returns a new PartyRepo bound to the given database.
func NewPartyRepo(db *sql.DB) *PartyRepo { return &PartyRepo{db: db} }

const partyColumns = `id, departure_id, user_id, size, vehicle_id, status, unit_price_minor, total_minor, created_at`

func scanParty(row interface{ Scan(...any) error }) (*model.Party, error) {
	var p model.Party
	var vehicleID sql.NullString
	var createdAt int64
	if err := row.Scan(&p.ID, &p.DepartureID, &p.UserID, &p.Size, &vehicleID, &p.Status,
		&p.UnitPriceMinor, &p.TotalMinor, &createdAt); err != nil {
		return nil, err
	}
	p.VehicleID = vehicleID.String
	p.CreatedAt = fromUnix(createdAt)
	return &p, nil
}

func scanParties(rows *sql.Rows) ([]model.Party, error) {
	defer rows.Close()
	out := []model.Party{}
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreateTx inserts a party within the caller's transaction.
func (r *PartyRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Party) error {
	if p.Status == "" {
		p.Status = model.PartyConfirmed
	}
	q := `INSERT INTO parties (` + partyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, p.ID, p.DepartureID, p.UserID, p.Size, nullString(p.VehicleID),
		p.Status, p.UnitPriceMinor, p.TotalMinor, unix(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert party %s: %w", p.ID, err)
	}
	return nil
}

// ListActiveByDeparture returns the confirmed parties of a departure in
// booking order.  tx may be nil.
func (r *PartyRepo) ListActiveByDeparture(ctx context.Context, tx *sql.Tx, departureID string) ([]model.Party, error) {
	q := `SELECT ` + partyColumns + ` FROM parties
          WHERE departure_id = ? AND status = ?
          ORDER BY created_at, id`
	rows, err := on(r.db, tx).QueryContext(ctx, q, departureID, model.PartyConfirmed)
	if err != nil {
		return nil, err
	}
	return scanParties(rows)
}

// ListByUser returns every party booked by userID, newest first.
func (r *PartyRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Party, error) {
	q := `SELECT ` + partyColumns + ` FROM parties WHERE user_id = ? ORDER BY created_at DESC, id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanParties(rows)
}

// GetForUserTx loads a party and checks it belongs to userID.  It returns
// ErrNotFound when the party does not exist and ErrForbidden when it
// belongs to someone else.
func (r *PartyRepo) GetForUserTx(ctx context.Context, tx *sql.Tx, id string, userID uint64) (*model.Party, error) {
	q := `SELECT ` + partyColumns + ` FROM parties WHERE id = ?`
	p, err := scanParty(on(r.db, tx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("party %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("party %s: %w", id, ErrForbidden)
	}
	return p, nil
}

// SetStatusTx moves an active party to status.  It returns ErrConflict when
// the party is no longer confirmed.
func (r *PartyRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	const q = `UPDATE parties SET status = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, status, id, model.PartyConfirmed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("party %s: %w", id, ErrConflict)
	}
	return nil
}

// PinTx stores the vehicle a party travels on.
func (r *PartyRepo) PinTx(ctx context.Context, tx *sql.Tx, id, vehicleID string) error {
	const q = `UPDATE parties SET vehicle_id = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, nullString(vehicleID), id)
	return err
}
