package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are unix seconds so the same statements run on MySQL and
// SQLite.  Money columns hold minor units.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS operators (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    rating DOUBLE NOT NULL DEFAULT 0,
    commission_rate DOUBLE NULL
)`,
	`CREATE TABLE IF NOT EXISTS routes (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    currency VARCHAR(3) NOT NULL DEFAULT 'EUR'
)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    operator_id VARCHAR(64) NOT NULL,
    name VARCHAR(255) NOT NULL,
    min_seats INT NOT NULL,
    max_seats INT NOT NULL,
    min_revenue_minor BIGINT NOT NULL,
    discount_fraction DOUBLE NOT NULL DEFAULT 0,
    threshold_fraction DOUBLE NULL,
    preferred BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    FOREIGN KEY (operator_id) REFERENCES operators(id)
)`,
	`CREATE TABLE IF NOT EXISTS route_vehicles (
    route_id VARCHAR(64) NOT NULL,
    vehicle_id VARCHAR(64) NOT NULL,
    PRIMARY KEY (route_id, vehicle_id),
    FOREIGN KEY (route_id) REFERENCES routes(id),
    FOREIGN KEY (vehicle_id) REFERENCES vehicles(id)
)`,
	`CREATE TABLE IF NOT EXISTS departures (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    route_id VARCHAR(64) NOT NULL,
    service_date VARCHAR(10) NOT NULL,
    departs_at BIGINT NOT NULL,
    phase VARCHAR(16) NOT NULL DEFAULT 'forming',
    locked_at BIGINT NULL,
    finalized_at BIGINT NULL,
    fallback_vehicle_id VARCHAR(64) NULL,
    version BIGINT NOT NULL DEFAULT 0,
    UNIQUE (route_id, service_date),
    FOREIGN KEY (route_id) REFERENCES routes(id)
)`,
	`CREATE TABLE IF NOT EXISTS departure_vehicles (
    departure_id VARCHAR(64) NOT NULL,
    vehicle_id VARCHAR(64) NOT NULL,
    force_discount BOOLEAN NOT NULL DEFAULT FALSE,
    min_seats INT NOT NULL,
    max_seats INT NOT NULL,
    min_revenue_minor BIGINT NOT NULL,
    discount_fraction DOUBLE NOT NULL DEFAULT 0,
    threshold_fraction DOUBLE NULL,
    PRIMARY KEY (departure_id, vehicle_id),
    FOREIGN KEY (departure_id) REFERENCES departures(id),
    FOREIGN KEY (vehicle_id) REFERENCES vehicles(id)
)`,
	`CREATE TABLE IF NOT EXISTS parties (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    departure_id VARCHAR(64) NOT NULL,
    user_id BIGINT NOT NULL,
    size INT NOT NULL,
    vehicle_id VARCHAR(64) NULL,
    status VARCHAR(16) NOT NULL,
    unit_price_minor BIGINT NOT NULL,
    total_minor BIGINT NOT NULL,
    created_at BIGINT NOT NULL,
    FOREIGN KEY (departure_id) REFERENCES departures(id)
)`,
	`CREATE TABLE IF NOT EXISTS finalization_rows (
    departure_id VARCHAR(64) NOT NULL,
    vehicle_id VARCHAR(64) NOT NULL,
    operator_id VARCHAR(64) NOT NULL,
    seats INT NOT NULL,
    unit_price_minor BIGINT NOT NULL,
    base_minor BIGINT NOT NULL,
    tax_minor BIGINT NOT NULL,
    fees_minor BIGINT NOT NULL,
    revenue_minor BIGINT NOT NULL,
    base_revenue_minor BIGINT NOT NULL,
    commission_minor BIGINT NOT NULL,
    min_revenue_target_minor BIGINT NOT NULL,
    shortfall BOOLEAN NOT NULL,
    PRIMARY KEY (departure_id, vehicle_id),
    FOREIGN KEY (departure_id) REFERENCES departures(id)
)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are only created
// there when missing from information_schema.
var indexes = []struct{ table, name, cols string }{
	{"parties", "idx_parties_departure", "departure_id, status"},
	{"parties", "idx_parties_user", "user_id"},
	{"departures", "idx_departures_phase", "phase, departs_at"},
}

// Migrate creates every table and index that does not exist yet.  It is
// safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, ix := range indexes {
		if driver == "sqlite" {
			q := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", ix.name, ix.table, ix.cols)
			if _, err := db.ExecContext(ctx, q); err != nil {
				return err
			}
			continue
		}
		var n int
		const exists = `SELECT COUNT(*) FROM information_schema.statistics
                        WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`
		if err := db.QueryRowContext(ctx, exists, ix.table, ix.name).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		q := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", ix.name, ix.table, ix.cols)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
