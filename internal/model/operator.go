package model

// Operator runs one or more vehicles and is paid their revenue minus the
// platform commission.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – display name.
//  Rating         – customer rating used to break price ties.
//  CommissionRate – operator-specific commission rate; nil falls back to
//                   the configured default.
type Operator struct {
	ID             string   // operators.id
	Name           string   // operators.name
	Rating         float64  // operators.rating
	CommissionRate *float64 // operators.commission_rate (nullable)
}
