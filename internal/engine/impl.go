package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dca-core/internal/balance"
	"dca-core/internal/state"
	"dca-core/internal/strategy"
	"dca-core/pkg/db"
	"dca-core/pkg/i18n"
)

var ErrUnknownSide = errors.New("unknown side")

// Impl wires the two side machines, the AI manager, and the stores into
// the Service interface.
type Impl struct {
	long    *strategy.SideMachine
	short   *strategy.SideMachine
	ai      *strategy.AIManager
	store   *state.Store
	balance *balance.Manager
	db      *db.Database
	prices  strategy.PriceSource
	meta    SystemStatus
}

// Config collects the engine's collaborators.
type Config struct {
	Long    *strategy.SideMachine
	Short   *strategy.SideMachine
	AI      *strategy.AIManager
	Store   *state.Store
	Balance *balance.Manager
	DB      *db.Database
	Prices  strategy.PriceSource
	Meta    SystemStatus
}

func NewImpl(cfg Config) *Impl {
	return &Impl{
		long:    cfg.Long,
		short:   cfg.Short,
		ai:      cfg.AI,
		store:   cfg.Store,
		balance: cfg.Balance,
		db:      cfg.DB,
		prices:  cfg.Prices,
		meta:    cfg.Meta,
	}
}

func (e *Impl) machine(side state.Side) (*strategy.SideMachine, error) {
	switch side {
	case state.SideLong:
		return e.long, nil
	case state.SideShort:
		return e.short, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSide, side)
}

// --- Side commands ---

// StartSide starts a ladder. A nil cfg reuses the persisted side config.
func (e *Impl) StartSide(ctx context.Context, side state.Side, cfg *state.StrategyConfig) error {
	m, err := e.machine(side)
	if err != nil {
		return err
	}
	if cfg == nil {
		snap := e.store.Snapshot()
		cfg = snap.SideConfig(side)
	}
	return m.Start(ctx, *cfg)
}

func (e *Impl) StopSide(ctx context.Context, side state.Side) error {
	m, err := e.machine(side)
	if err != nil {
		return err
	}
	return m.Stop(ctx)
}

func (e *Impl) UpdateSideConfig(ctx context.Context, side state.Side, patch strategy.ConfigPatch) error {
	m, err := e.machine(side)
	if err != nil {
		return err
	}
	return m.UpdateConfig(ctx, patch)
}

func (e *Impl) ResetCycle(ctx context.Context, side state.Side) error {
	m, err := e.machine(side)
	if err != nil {
		return err
	}
	return m.ResetCycle(ctx)
}

// --- AI commands ---

func (e *Impl) ToggleAI(ctx context.Context, enable bool) error {
	err := e.store.UpdateAI(ctx, func(ai *state.AIRiskState) {
		ai.Enabled = enable
	})
	if err != nil {
		return err
	}
	if enable {
		log.Printf("🤖 %s", i18n.M().AIEnabled)
		if e.ai != nil {
			e.ai.Evaluate(ctx)
		}
	} else {
		log.Printf("🤖 %s", i18n.M().AIDisabled)
	}
	return nil
}

func (e *Impl) UpdateAIConfig(ctx context.Context, patch AIConfigPatch) error {
	if patch.VirtualBalance != nil && *patch.VirtualBalance < 0 {
		err := fmt.Errorf("virtualBalance must not be negative")
		log.Printf("⚠️ "+i18n.M().AIConfigRejected, err)
		return err
	}
	if patch.MinTradeFloor != nil && *patch.MinTradeFloor < 0 {
		err := fmt.Errorf("minTradeFloor must not be negative")
		log.Printf("⚠️ "+i18n.M().AIConfigRejected, err)
		return err
	}
	err := e.store.UpdateAI(ctx, func(ai *state.AIRiskState) {
		if patch.VirtualBalance != nil {
			ai.VirtualBalance = *patch.VirtualBalance
		}
		if patch.MinTradeFloor != nil {
			ai.MinTradeFloor = *patch.MinTradeFloor
		}
	})
	if err != nil {
		return err
	}
	log.Printf("🤖 %s", i18n.M().AIConfigUpdated)
	if e.ai != nil {
		e.ai.Evaluate(ctx)
	}
	return nil
}

// --- Queries ---

func (e *Impl) GetState(ctx context.Context) state.BotRootState {
	return e.store.Snapshot()
}

// GetPlan previews the full ladder at the current price without touching
// any state.
func (e *Impl) GetPlan(ctx context.Context, side state.Side) (strategy.PlanResult, error) {
	if side != state.SideLong && side != state.SideShort {
		return strategy.PlanResult{}, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}
	snap := e.store.Snapshot()
	price := snap.Price
	if price <= 0 && e.prices != nil {
		if p, ok := e.prices.Get(snap.Symbol); ok {
			price = p
		}
	}
	if price <= 0 {
		return strategy.PlanResult{}, strategy.ErrNoPrice
	}
	return strategy.Plan(price, *snap.SideConfig(side), side), nil
}

func (e *Impl) GetOpenOrders(ctx context.Context) ([]db.Order, error) {
	return e.db.ListOpenOrders(ctx)
}

func (e *Impl) GetRecentOrders(ctx context.Context, limit int) ([]db.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.db.ListRecentOrders(ctx, limit)
}

func (e *Impl) GetRecentFills(ctx context.Context, limit int) ([]db.Fill, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.db.ListRecentFills(ctx, limit)
}

func (e *Impl) GetBalances(ctx context.Context) map[string]state.Balance {
	out := make(map[string]state.Balance)
	if e.balance != nil {
		for asset, b := range e.balance.Snapshot() {
			out[asset] = state.Balance{Free: b.Free, Locked: b.Locked}
		}
		return out
	}
	return e.store.Snapshot().Balances
}

func (e *Impl) GetSystemStatus(ctx context.Context) *SystemStatus {
	status := e.meta
	status.ServerTime = time.Now()
	return &status
}
