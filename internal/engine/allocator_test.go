package engine

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boatA costs 116 per seat (58 in band), boatB 139.
func boatA() Vehicle {
	return Vehicle{ID: "A", Name: "A", MinSeats: 4, MaxSeats: 6, MinRevenueTotal: 400, DiscountFraction: 0.5, OperatorID: "op-a", OperatorRating: 4}
}

func boatB() Vehicle {
	return Vehicle{ID: "B", Name: "B", MinSeats: 4, MaxSeats: 6, MinRevenueTotal: 480, DiscountFraction: 0.5, OperatorID: "op-b", OperatorRating: 4}
}

var forming = Policy{Phase: PhaseForming, AllowOpeningNewVehicles: true}

func TestAllocate_CheaperBeatsPreferred(t *testing.T) {
	a := boatA()
	b := boatB()
	b.Preferred = true
	alloc := Allocator{Rates: testRates}

	res := alloc.Allocate(NewSnapshot(), []Party{{ID: "p1", Size: 3}}, []Vehicle{b, a}, forming)

	assert.Equal(t, "A", res.Assignments["p1"])
	assert.Empty(t, res.Unassigned)
}

func TestAllocate_FillsTowardMinimumBeforeOpening(t *testing.T) {
	alloc := Allocator{Rates: testRates}
	parties := []Party{{ID: "p1", Size: 2}, {ID: "p2", Size: 2}}

	res := alloc.Allocate(NewSnapshot(), parties, []Vehicle{boatA(), boatB()}, forming)

	assert.Equal(t, "A", res.Assignments["p1"])
	assert.Equal(t, "A", res.Assignments["p2"])
	assert.Equal(t, 4, res.Snapshot.Seats("A"))
	assert.Equal(t, 0, res.Snapshot.Seats("B"))
	assert.Equal(t, int64(4*116), res.Snapshot.Vehicles["A"].RevenueAccrued)
}

func TestAllocate_LargestPartyFirst(t *testing.T) {
	alloc := Allocator{Rates: testRates}
	parties := []Party{{ID: "small", Size: 1}, {ID: "big", Size: 5}, {ID: "mid", Size: 3}}

	res := alloc.Allocate(NewSnapshot(), parties, []Vehicle{boatA(), boatB()}, forming)

	// big opens A, mid no longer fits there and opens B, small tops B up
	assert.Equal(t, []string{"big"}, res.Snapshot.Vehicles["A"].PartyIDs)
	assert.Equal(t, []string{"mid", "small"}, res.Snapshot.Vehicles["B"].PartyIDs)
}

func TestAllocate_StableOrderForEqualSizes(t *testing.T) {
	alloc := Allocator{Rates: testRates}
	parties := []Party{{ID: "x", Size: 2}, {ID: "y", Size: 2}, {ID: "z", Size: 2}}

	res := alloc.Allocate(NewSnapshot(), parties, []Vehicle{boatA(), boatB()}, forming)

	assert.Equal(t, []string{"x", "y"}, res.Snapshot.Vehicles["A"].PartyIDs)
	assert.Equal(t, []string{"z"}, res.Snapshot.Vehicles["B"].PartyIDs)
}

func TestAllocate_PartyNeverSplit(t *testing.T) {
	alloc := Allocator{Rates: testRates}

	res := alloc.Allocate(NewSnapshot(), []Party{{ID: "crowd", Size: 7}}, []Vehicle{boatA(), boatB()}, forming)

	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, ReasonNoCapacity, res.Unassigned[0].Reason)
	assert.Equal(t, 0, res.Snapshot.Seats("A"))
	assert.Equal(t, 0, res.Snapshot.Seats("B"))
}

func TestAllocate_InvalidSize(t *testing.T) {
	alloc := Allocator{Rates: testRates}

	res := alloc.Allocate(NewSnapshot(), []Party{{ID: "ghost", Size: 0}}, []Vehicle{boatA()}, forming)

	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, ReasonInvalidSize, res.Unassigned[0].Reason)
}

func TestAllocate_PrefersVehicleMeetingTarget(t *testing.T) {
	// cheap needs ten seats to pay off, quick pays off with two
	cheap := Vehicle{ID: "cheap", Name: "cheap", MinSeats: 10, MaxSeats: 20, MinRevenueTotal: 1000}
	quick := Vehicle{ID: "quick", Name: "quick", MinSeats: 2, MaxSeats: 10, MinRevenueTotal: 300}
	alloc := Allocator{Rates: testRates}

	res := alloc.Allocate(NewSnapshot(), []Party{{ID: "p", Size: 3}}, []Vehicle{cheap, quick}, forming)

	assert.Equal(t, "quick", res.Assignments["p"])
}

func TestAllocate_ThresholdLowersTarget(t *testing.T) {
	threshold := 0.3
	cheap := Vehicle{ID: "cheap", Name: "cheap", MinSeats: 10, MaxSeats: 20, MinRevenueTotal: 1000, ThresholdFraction: &threshold}
	quick := Vehicle{ID: "quick", Name: "quick", MinSeats: 2, MaxSeats: 10, MinRevenueTotal: 300}
	alloc := Allocator{Rates: testRates}

	// 3 x 116 = 348 clears 30% of 1000, so price decides again
	res := alloc.Allocate(NewSnapshot(), []Party{{ID: "p", Size: 3}}, []Vehicle{cheap, quick}, forming)

	assert.Equal(t, "cheap", res.Assignments["p"])
}

func TestAllocate_TieBreakOrders(t *testing.T) {
	rated := Vehicle{ID: "X", Name: "X", MinSeats: 4, MaxSeats: 8, MinRevenueTotal: 400, OperatorRating: 4.9}
	preferred := Vehicle{ID: "Y", Name: "Y", MinSeats: 4, MaxSeats: 8, MinRevenueTotal: 400, OperatorRating: 3.0, Preferred: true}
	parties := []Party{{ID: "p", Size: 2}}
	vehicles := []Vehicle{rated, preferred}

	tests := []struct {
		name  string
		order TieBreak
		want  string
	}{
		{name: "preferred then rating", order: PreferredThenRating, want: "Y"},
		{name: "rating then preferred", order: RatingThenPreferred, want: "X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := Allocator{Rates: testRates, TieBreak: tt.order}
			res := alloc.Allocate(NewSnapshot(), parties, vehicles, forming)
			assert.Equal(t, tt.want, res.Assignments["p"])
		})
	}
}

func TestAllocate_NameBreaksFullTie(t *testing.T) {
	bravo := Vehicle{ID: "2", Name: "Bravo", MinSeats: 4, MaxSeats: 8, MinRevenueTotal: 400}
	alpha := Vehicle{ID: "1", Name: "Alpha", MinSeats: 4, MaxSeats: 8, MinRevenueTotal: 400}
	alloc := Allocator{Rates: testRates}

	res := alloc.Allocate(NewSnapshot(), []Party{{ID: "p", Size: 2}}, []Vehicle{bravo, alpha}, forming)

	assert.Equal(t, "1", res.Assignments["p"])
}

func TestAllocate_HonoursPins(t *testing.T) {
	alloc := Allocator{Rates: testRates}
	parties := []Party{{ID: "pinned", Size: 2, VehicleID: "B"}, {ID: "free", Size: 2}}

	res := alloc.Allocate(NewSnapshot(), parties, []Vehicle{boatA(), boatB()}, forming)

	assert.Equal(t, "B", res.Assignments["pinned"])
	// B is open and below its minimum, so the next party fills it
	assert.Equal(t, "B", res.Assignments["free"])
}

func TestAllocate_PinToFullVehicleFallsBack(t *testing.T) {
	alloc := Allocator{Rates: testRates}
	parties := []Party{{ID: "big", Size: 6, VehicleID: "A"}, {ID: "late", Size: 2, VehicleID: "A"}}

	res := alloc.Allocate(NewSnapshot(), parties, []Vehicle{boatA(), boatB()}, forming)

	assert.Equal(t, "A", res.Assignments["big"])
	assert.Equal(t, "B", res.Assignments["late"])
}

func TestAllocate_DoesNotMutateSeed(t *testing.T) {
	alloc := Allocator{Rates: testRates}
	seed := alloc.Allocate(NewSnapshot(), []Party{{ID: "p1", Size: 2}}, []Vehicle{boatA()}, forming).Snapshot

	_ = alloc.Allocate(seed, []Party{{ID: "p2", Size: 2}}, []Vehicle{boatA()}, forming)

	assert.Equal(t, 2, seed.Seats("A"))
	assert.Equal(t, []string{"p1"}, seed.Vehicles["A"].PartyIDs)
}

func TestAllocate_ClosedPolicyOnlyUsesEligible(t *testing.T) {
	alloc := Allocator{Rates: testRates}
	p := Policy{Phase: PhaseLocked, Eligible: map[string]bool{"B": true}}

	res := alloc.Allocate(NewSnapshot(), []Party{{ID: "p", Size: 2}, {ID: "q", Size: 7}}, []Vehicle{boatA(), boatB()}, p)

	assert.Equal(t, "B", res.Assignments["p"])
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "q", res.Unassigned[0].Party.ID)
	assert.Equal(t, 0, res.Snapshot.Seats("A"))
}

func TestAllocate_Deterministic(t *testing.T) {
	vehicles, parties := randomDeparture(rand.New(rand.NewSource(7)))
	alloc := Allocator{Rates: testRates}

	first := alloc.Allocate(NewSnapshot(), parties, vehicles, forming)
	second := alloc.Allocate(NewSnapshot(), parties, vehicles, forming)

	assert.Equal(t, first, second)
}

func TestAllocate_CapacityAndWholeParties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alloc := Allocator{Rates: testRates}
	for round := 0; round < 50; round++ {
		vehicles, parties := randomDeparture(rng)
		res := alloc.Allocate(NewSnapshot(), parties, vehicles, forming)

		byID := indexVehicles(vehicles)
		seen := map[string]int{}
		for id, va := range res.Snapshot.Vehicles {
			assert.LessOrEqual(t, va.SeatsAssigned, byID[id].MaxSeats)
			for _, pid := range va.PartyIDs {
				seen[pid]++
			}
		}
		for _, u := range res.Unassigned {
			seen[u.Party.ID]++
		}
		for _, p := range parties {
			assert.Equal(t, 1, seen[p.ID], "round %d party %s", round, p.ID)
		}
	}
}

func randomDeparture(rng *rand.Rand) ([]Vehicle, []Party) {
	var vehicles []Vehicle
	for i := 0; i < 2+rng.Intn(4); i++ {
		minSeats := 2 + rng.Intn(6)
		vehicles = append(vehicles, Vehicle{
			ID:               fmt.Sprintf("v%d", i),
			Name:             fmt.Sprintf("boat-%d", i),
			MinSeats:         minSeats,
			MaxSeats:         minSeats + rng.Intn(8),
			MinRevenueTotal:  int64(200 + rng.Intn(2000)),
			DiscountFraction: rng.Float64() / 2,
			Preferred:        rng.Intn(3) == 0,
			OperatorRating:   float64(rng.Intn(5)),
		})
	}
	var parties []Party
	for i := 0; i < 1+rng.Intn(12); i++ {
		parties = append(parties, Party{ID: fmt.Sprintf("p%d", i), Size: 1 + rng.Intn(6)})
	}
	return vehicles, parties
}
