package strategy

import "dca-core/internal/state"

// PlanResult is the output of a full-ladder simulation.
type PlanResult struct {
	OrderCount    int     `json:"orderCount"`
	CoveragePrice float64 `json:"coveragePrice"`
	TargetPrice   float64 `json:"targetPrice"`
}

// Plan simulates the whole ladder from initialPrice with the given config.
// Rung sizes grow by sizeVar percent scaled by the completed-rung index, and
// the price walks adversely by priceVar percent per index, compounding off
// the running price. The simulation is side-effect-free: it never places
// orders, only reports how far the budget reaches.
func Plan(initialPrice float64, cfg state.StrategyConfig, side state.Side) PlanResult {
	res := PlanResult{
		CoveragePrice: initialPrice,
		TargetPrice:   TargetPrice(initialPrice, cfg, side),
	}
	if initialPrice <= 0 || cfg.PurchaseStep <= 0 {
		return res
	}

	remaining := cfg.AmountBase
	price := initialPrice
	size := cfg.PurchaseStep
	for size > 0 && remaining >= size {
		remaining -= size
		res.OrderCount++
		res.CoveragePrice = price
		price, size = step(price, size, res.OrderCount, cfg, side)
		if price <= 0 {
			break
		}
	}
	return res
}

// NextRung returns the price trigger and quote size of the rung after
// `completed` filled rungs, walking from the last filled order.
func NextRung(lastPrice, lastSize float64, completed int, cfg state.StrategyConfig, side state.Side) (price, size float64) {
	if completed < 1 {
		return lastPrice, lastSize
	}
	return step(lastPrice, lastSize, completed, cfg, side)
}

// TargetPrice is the take-profit trigger for a cycle entered at basePrice.
func TargetPrice(basePrice float64, cfg state.StrategyConfig, side state.Side) float64 {
	if side == state.SideShort {
		return basePrice * (1 - cfg.TriggerPercent/100)
	}
	return basePrice * (1 + cfg.TriggerPercent/100)
}

// step advances one rung. n is the completed-rung index, so the growth and
// widening factors themselves increase as the ladder deepens.
func step(price, size float64, n int, cfg state.StrategyConfig, side state.Side) (float64, float64) {
	k := float64(n)
	nextSize := size * (1 + cfg.SizeVar/100*k)
	var nextPrice float64
	if side == state.SideShort {
		nextPrice = price * (1 + cfg.PriceVar/100*k)
	} else {
		nextPrice = price * (1 - cfg.PriceVar/100*k)
	}
	return nextPrice, nextSize
}
