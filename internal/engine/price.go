// Package engine implements seat allocation and tiered pricing for shared
// departures.  Everything in this package is a pure computation over values
// supplied by the caller: nothing here touches the database, Redis or the
// clock.  The service layer loads a snapshot, calls into the engine and
// persists whatever it decides to keep.
package engine

import "math"

// Rates carries the tax and fee percentages applied on top of the seat
// price.  RoundingUnit is the size of one whole currency unit expressed in
// minor units; the final unit price is rounded up to a multiple of it.  A
// zero RoundingUnit behaves like 1.
type Rates struct {
	TaxRate      float64
	FeeRate      float64
	RoundingUnit int64
}

// SeatPrice is the decomposed price of a single seat in minor units.  Base
// is the seat price after any discount and before tax; Unit is what the
// customer pays.
type SeatPrice struct {
	Base       int64 `json:"base_minor"`
	Tax        int64 `json:"tax_minor"`
	Fees       int64 `json:"fees_minor"`
	Unit       int64 `json:"unit_price_minor"`
	Discounted bool  `json:"discounted"`
}

// BaseSeat returns ceil(MinRevenueTotal / MinSeats).  The second result is
// false when the vehicle has no minimum seat count and therefore no price.
func BaseSeat(v Vehicle) (int64, bool) {
	if v.MinSeats <= 0 {
		return 0, false
	}
	n := int64(v.MinSeats)
	if v.MinRevenueTotal <= 0 {
		return 0, true
	}
	return (v.MinRevenueTotal + n - 1) / n, true
}

// InBand reports whether a vehicle carrying current seats sits inside its
// discount band: the minimum is secured and there is still room.
func InBand(v Vehicle, current int) bool {
	return current >= v.MinSeats && current < v.MaxSeats
}

// NextSeatPrice prices the next seat on v.  current must be the seat count
// before the prospective seat is added.  The discount applies when
// forceDiscount is set or the vehicle is in band.
func NextSeatPrice(v Vehicle, current int, forceDiscount bool, r Rates) (SeatPrice, bool) {
	base, ok := BaseSeat(v)
	if !ok {
		return SeatPrice{}, false
	}
	p := SeatPrice{Base: base}
	if forceDiscount || InBand(v, current) {
		p.Base = roundHalfUp(float64(base) * (1 - clamp01(v.DiscountFraction)))
		p.Discounted = true
	}
	p.Tax = roundHalfUp(float64(p.Base) * r.TaxRate)
	intermediate := p.Base + p.Tax
	p.Fees = roundHalfUp(float64(intermediate) * r.FeeRate)
	p.Unit = ceilToUnit(intermediate+p.Fees, r.RoundingUnit)
	return p, true
}

// seatRun prices count seats added one after another to a vehicle already
// holding current seats.  It returns the accumulated gross revenue and the
// price of the last seat.
func seatRun(v Vehicle, current, count int, forceDiscount bool, r Rates) (total int64, last SeatPrice) {
	for i := 0; i < count; i++ {
		p, ok := NextSeatPrice(v, current+i, forceDiscount, r)
		if !ok {
			return total, last
		}
		total += p.Unit
		last = p
	}
	return total, last
}

func roundHalfUp(x float64) int64 {
	return int64(math.Round(x))
}

func ceilToUnit(amount, unit int64) int64 {
	if unit <= 1 {
		return amount
	}
	if rem := amount % unit; rem != 0 {
		return amount + unit - rem
	}
	return amount
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
