package engine

import "sort"

// CommissionRates maps operators to their commission rate.  Operators
// without an entry pay Default.
type CommissionRates struct {
	Default    float64
	ByOperator map[string]float64
}

// For returns the commission rate for operatorID.
func (c CommissionRates) For(operatorID string) float64 {
	if r, ok := c.ByOperator[operatorID]; ok {
		return r
	}
	return c.Default
}

// FinalizationRow is the revenue ledger line for one vehicle.  Money is in
// minor units; Base, Tax and Fees are per seat.
type FinalizationRow struct {
	VehicleID        string `json:"vehicle_id"`
	OperatorID       string `json:"operator_id"`
	Seats            int    `json:"seats"`
	UnitPrice        int64  `json:"unit_price_minor"`
	Base             int64  `json:"base_minor"`
	Tax              int64  `json:"tax_minor"`
	Fees             int64  `json:"fees_minor"`
	Revenue          int64  `json:"revenue_minor"`
	BaseRevenue      int64  `json:"base_revenue_minor"`
	Commission       int64  `json:"commission_minor"`
	MinRevenueTarget int64  `json:"min_revenue_target_minor"`
	Shortfall        bool   `json:"shortfall"`
}

// ReportTotals sums every row of a report.
type ReportTotals struct {
	Seats            int   `json:"seats"`
	Revenue          int64 `json:"revenue_minor"`
	BaseRevenue      int64 `json:"base_revenue_minor"`
	Tax              int64 `json:"tax_minor"`
	Fees             int64 `json:"fees_minor"`
	Commission       int64 `json:"commission_minor"`
	MinRevenueTarget int64 `json:"min_revenue_target_minor"`
	Shortfalls       int   `json:"shortfalls"`
}

// Report is the finalization ledger of one departure.
type Report struct {
	Rows   []FinalizationRow `json:"rows"`
	Totals ReportTotals      `json:"totals"`
}

// BuildReport derives the ledger from a finalized snapshot.  Rows are
// ordered by vehicle ID so the same snapshot always yields the same report.
// Snapshot entries for vehicles missing from vehicles are skipped.
func BuildReport(snap Snapshot, vehicles []Vehicle, r Rates, c CommissionRates) Report {
	byID := indexVehicles(vehicles)
	rep := Report{Rows: []FinalizationRow{}}
	for _, id := range snap.VehicleIDs() {
		v, ok := byID[id]
		if !ok {
			continue
		}
		va := snap.Vehicles[id]
		price, _ := NextSeatPrice(v, va.SeatsAssigned, va.ForceDiscount, r)
		seats := int64(va.SeatsAssigned)
		row := FinalizationRow{
			VehicleID:        id,
			OperatorID:       v.OperatorID,
			Seats:            va.SeatsAssigned,
			UnitPrice:        price.Unit,
			Base:             price.Base,
			Tax:              price.Tax,
			Fees:             price.Fees,
			Revenue:          price.Unit * seats,
			BaseRevenue:      price.Base * seats,
			MinRevenueTarget: v.MinRevenueTarget(),
		}
		row.Commission = roundHalfUp(float64(row.BaseRevenue) * c.For(v.OperatorID))
		row.Shortfall = row.Revenue < row.MinRevenueTarget
		rep.Rows = append(rep.Rows, row)
	}
	sort.SliceStable(rep.Rows, func(i, j int) bool { return rep.Rows[i].VehicleID < rep.Rows[j].VehicleID })
	for _, row := range rep.Rows {
		rep.Totals.add(row)
	}
	return rep
}

// ForOperator returns a copy of the report restricted to one operator's
// vehicles with totals recomputed.
func (r Report) ForOperator(operatorID string) Report {
	out := Report{Rows: []FinalizationRow{}}
	for _, row := range r.Rows {
		if row.OperatorID == operatorID {
			out.Rows = append(out.Rows, row)
			out.Totals.add(row)
		}
	}
	return out
}

// Rebuild recomputes totals for rows loaded back from storage.
func Rebuild(rows []FinalizationRow) Report {
	out := Report{Rows: append([]FinalizationRow{}, rows...)}
	sort.SliceStable(out.Rows, func(i, j int) bool { return out.Rows[i].VehicleID < out.Rows[j].VehicleID })
	for _, row := range out.Rows {
		out.Totals.add(row)
	}
	return out
}

func (t *ReportTotals) add(row FinalizationRow) {
	seats := int64(row.Seats)
	t.Seats += row.Seats
	t.Revenue += row.Revenue
	t.BaseRevenue += row.BaseRevenue
	t.Tax += row.Tax * seats
	t.Fees += row.Fees * seats
	t.Commission += row.Commission
	t.MinRevenueTarget += row.MinRevenueTarget
	if row.Shortfall {
		t.Shortfalls++
	}
}
