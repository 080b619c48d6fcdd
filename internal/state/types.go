package state

import "time"

// Side identifies a strategy ladder direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// PlacingStatus is the status a side shows while an order is working.
func (s Side) PlacingStatus() Status {
	if s == SideShort {
		return StatusSelling
	}
	return StatusBuying
}

// EntryOrderSide is the exchange side used to open or extend the ladder.
func (s Side) EntryOrderSide() string {
	if s == SideShort {
		return "SELL"
	}
	return "BUY"
}

// CloseOrderSide is the exchange side used to close the ladder.
func (s Side) CloseOrderSide() string {
	if s == SideShort {
		return "BUY"
	}
	return "SELL"
}

// Status is the per-side machine state.
type Status string

const (
	StatusStopped    Status = "STOPPED"
	StatusRunning    Status = "RUNNING"
	StatusBuying     Status = "BUYING"
	StatusSelling    Status = "SELLING"
	StatusNoCoverage Status = "NO_COVERAGE"
)

// StrategyConfig holds the per-side ladder parameters. Sizes are in quote
// currency units.
type StrategyConfig struct {
	Enabled        bool    `json:"enabled"`
	AmountBase     float64 `json:"amountBase"`   // total capital allotted to the ladder
	PurchaseStep   float64 `json:"purchaseStep"` // size of the first rung
	PriceVar       float64 `json:"priceVar"`     // percent price move per rung index
	SizeVar        float64 `json:"sizeVar"`      // percent rung-size growth per rung index
	TriggerPercent float64 `json:"triggerPercent"`
	StopAtCycleEnd bool    `json:"stopAtCycleEnd"`
}

// LastOrder references the most recent order a side placed.
type LastOrder struct {
	TrackID         string    `json:"trackId"`
	ExchangeOrderID string    `json:"exchangeOrderId"`
	Side            string    `json:"side"` // BUY or SELL
	Price           float64   `json:"price"`
	Size            float64   `json:"size"`
	PlacedAt        time.Time `json:"placedAt"`
}

// StrategyState is the authoritative per-side state. It is mutated only by
// the owning side machine and persisted after every transition.
type StrategyState struct {
	Status            Status     `json:"status"`
	CycleCount        int        `json:"cycleCount"`
	AveragePrice      float64    `json:"averagePrice"`
	AccumulatedAmount float64    `json:"accumulatedAmount"` // base units held in the open ladder
	LastOrder         *LastOrder `json:"lastOrder,omitempty"`
	CoveragePrice     float64    `json:"coveragePrice"`
	TargetPrice       float64    `json:"targetPrice"`
	OrderCountInCycle int        `json:"orderCountInCycle"`
	LastRungPrice     float64    `json:"lastRungPrice"` // price of the last filled rung
	LastRungSize      float64    `json:"lastRungSize"`  // quote size of the last filled rung
}

// AIState is the sub-strategy operating state.
type AIState string

const (
	AIRunning AIState = "RUNNING"
	AIPaused  AIState = "PAUSED"
)

// AIRiskState is the compounding sub-strategy's pool and gate.
type AIRiskState struct {
	Enabled        bool    `json:"enabled"`
	State          AIState `json:"aistate"`
	VirtualBalance float64 `json:"virtualBalance"`
	MinTradeFloor  float64 `json:"minTradeFloor"`
}

// Balance is a single asset's cached balance.
type Balance struct {
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// BotRootState aggregates everything one bot persists and broadcasts.
type BotRootState struct {
	Name        string             `json:"name"`
	Symbol      string             `json:"symbol"`
	LongConfig  StrategyConfig     `json:"longConfig"`
	ShortConfig StrategyConfig     `json:"shortConfig"`
	Long        StrategyState      `json:"lStateData"`
	Short       StrategyState      `json:"sStateData"`
	AI          AIRiskState        `json:"aiState"`
	Balances    map[string]Balance `json:"balances"`
	Price       float64            `json:"price"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// clone returns a deep copy safe to hand to observers.
func (r BotRootState) clone() BotRootState {
	out := r
	if r.Long.LastOrder != nil {
		lo := *r.Long.LastOrder
		out.Long.LastOrder = &lo
	}
	if r.Short.LastOrder != nil {
		lo := *r.Short.LastOrder
		out.Short.LastOrder = &lo
	}
	out.Balances = make(map[string]Balance, len(r.Balances))
	for k, v := range r.Balances {
		out.Balances[k] = v
	}
	return out
}

// SideState returns the state for the given side.
func (r *BotRootState) SideState(s Side) *StrategyState {
	if s == SideShort {
		return &r.Short
	}
	return &r.Long
}

// SideConfig returns the config for the given side.
func (r *BotRootState) SideConfig(s Side) *StrategyConfig {
	if s == SideShort {
		return &r.ShortConfig
	}
	return &r.LongConfig
}
