package strategy

import (
	"math"
	"testing"

	"dca-core/internal/state"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPlanLongLadderReference(t *testing.T) {
	cfg := state.StrategyConfig{
		AmountBase:     100,
		PurchaseStep:   10,
		SizeVar:        10,
		PriceVar:       0,
		TriggerPercent: 2,
	}

	// Hand-walked: 10, then each rung grows by sizeVar percent times the
	// completed-rung index: 10*1.1=11, 11*1.2=13.2, 13.2*1.3=17.16,
	// 17.16*1.4=24.024; the sixth rung 24.024*1.5=36.036 no longer fits
	// the 24.616 left over.
	res := Plan(100, cfg, state.SideLong)
	if res.OrderCount != 5 {
		t.Fatalf("orderCount = %d, want 5", res.OrderCount)
	}
	if !almostEqual(res.CoveragePrice, 100) {
		t.Fatalf("coveragePrice = %v, want 100 with zero priceVar", res.CoveragePrice)
	}
	if !almostEqual(res.TargetPrice, 102) {
		t.Fatalf("targetPrice = %v, want 102", res.TargetPrice)
	}
}

func TestPlanAdversePriceWalk(t *testing.T) {
	cfg := state.StrategyConfig{
		AmountBase:     30,
		PurchaseStep:   10,
		SizeVar:        0,
		PriceVar:       1,
		TriggerPercent: 5,
	}

	// Three equal rungs fit. Price walk: 100, 100*(1-0.01)=99,
	// 99*(1-0.02)=97.02; coverage is the last rung's price.
	long := Plan(100, cfg, state.SideLong)
	if long.OrderCount != 3 {
		t.Fatalf("orderCount = %d, want 3", long.OrderCount)
	}
	if !almostEqual(long.CoveragePrice, 97.02) {
		t.Fatalf("coveragePrice = %v, want 97.02", long.CoveragePrice)
	}

	// Short mirrors upward: 100, 101, 101*1.02=103.02; target below entry.
	short := Plan(100, cfg, state.SideShort)
	if !almostEqual(short.CoveragePrice, 103.02) {
		t.Fatalf("short coveragePrice = %v, want 103.02", short.CoveragePrice)
	}
	if !almostEqual(short.TargetPrice, 95) {
		t.Fatalf("short targetPrice = %v, want 95", short.TargetPrice)
	}
}

func TestPlanDeterministic(t *testing.T) {
	cfg := state.StrategyConfig{AmountBase: 500, PurchaseStep: 25, SizeVar: 7.5, PriceVar: 1.2, TriggerPercent: 1.8}
	a := Plan(431.77, cfg, state.SideShort)
	for i := 0; i < 10; i++ {
		if b := Plan(431.77, cfg, state.SideShort); b != a {
			t.Fatalf("plan not deterministic: %+v vs %+v", a, b)
		}
	}
}

func TestPlanBudgetSmallerThanFirstRung(t *testing.T) {
	cfg := state.StrategyConfig{AmountBase: 5, PurchaseStep: 10, TriggerPercent: 2}
	res := Plan(100, cfg, state.SideLong)
	if res.OrderCount != 0 {
		t.Fatalf("orderCount = %d, want 0", res.OrderCount)
	}
	if !almostEqual(res.CoveragePrice, 100) {
		t.Fatalf("coveragePrice = %v, want initial price", res.CoveragePrice)
	}
}

func TestNextRungMatchesPlanWalk(t *testing.T) {
	cfg := state.StrategyConfig{AmountBase: 1000, PurchaseStep: 10, SizeVar: 10, PriceVar: 2, TriggerPercent: 2}

	price, size := 100.0, 10.0
	// Walk three rungs by hand and compare against NextRung.
	wantPrices := []float64{100 * 0.98, 100 * 0.98 * 0.96, 100 * 0.98 * 0.96 * 0.94}
	wantSizes := []float64{11, 11 * 1.2, 11 * 1.2 * 1.3}
	for i := 0; i < 3; i++ {
		price, size = NextRung(price, size, i+1, cfg, state.SideLong)
		if !almostEqual(price, wantPrices[i]) || !almostEqual(size, wantSizes[i]) {
			t.Fatalf("rung %d: got (%.6f, %.6f), want (%.6f, %.6f)", i+2, price, size, wantPrices[i], wantSizes[i])
		}
	}
}
