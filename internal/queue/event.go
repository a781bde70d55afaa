// Package queue defines the domain events exchanged over RabbitMQ, the
// publisher the booking service uses and the audit consumer.
package queue

import "github.com/iliyamo/journey-seat-booking/internal/engine"

// Queue names.  Both queues are durable.
const (
	BookingConfirmedQueue   = "booking.confirmed"
	BookingCancelledQueue   = "booking.cancelled"
	DepartureFinalizedQueue = "departure.finalized"
)

// BookingConfirmedEvent is published when a party is committed.  It carries
// enough for downstream consumers to log or notify without querying the
// primary database.
type BookingConfirmedEvent struct {
	BookingID      string       `json:"booking_id"`
	DepartureID    string       `json:"departure_id"`
	RouteID        string       `json:"route_id"`
	UserID         uint64       `json:"user_id"`
	Qty            int          `json:"qty"`
	VehicleID      string       `json:"vehicle_id"`
	Phase          engine.Phase `json:"phase"`
	UnitPriceMinor int64        `json:"unit_price_minor"`
	TotalMinor     int64        `json:"total_minor"`
	Currency       string       `json:"currency"`
	ConfirmedAt    string       `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a customer cancels a party.
type BookingCancelledEvent struct {
	BookingID   string `json:"booking_id"`
	DepartureID string `json:"departure_id"`
	UserID      uint64 `json:"user_id"`
	Qty         int    `json:"qty"`
	CancelledAt string `json:"cancelled_at"`
}

// DepartureFinalizedEvent carries the finalization ledger of a departure.
type DepartureFinalizedEvent struct {
	DepartureID string        `json:"departure_id"`
	RouteID     string        `json:"route_id"`
	ServiceDate string        `json:"service_date"`
	Report      engine.Report `json:"report"`
	FinalizedAt string        `json:"finalized_at"`
}
