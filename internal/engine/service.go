// Package engine exposes the bot core to the API layer behind one
// interface, keeping transport details out of the trading logic.
package engine

import (
	"context"

	"dca-core/internal/state"
	"dca-core/internal/strategy"
	"dca-core/pkg/db"
)

// Service is the control surface the API layer talks to.
type Service interface {
	// Side commands
	StartSide(ctx context.Context, side state.Side, cfg *state.StrategyConfig) error
	StopSide(ctx context.Context, side state.Side) error
	UpdateSideConfig(ctx context.Context, side state.Side, patch strategy.ConfigPatch) error
	ResetCycle(ctx context.Context, side state.Side) error

	// AI commands
	ToggleAI(ctx context.Context, enable bool) error
	UpdateAIConfig(ctx context.Context, patch AIConfigPatch) error

	// Queries
	GetState(ctx context.Context) state.BotRootState
	GetPlan(ctx context.Context, side state.Side) (strategy.PlanResult, error)
	GetOpenOrders(ctx context.Context) ([]db.Order, error)
	GetRecentOrders(ctx context.Context, limit int) ([]db.Order, error)
	GetRecentFills(ctx context.Context, limit int) ([]db.Fill, error)
	GetBalances(ctx context.Context) map[string]state.Balance
	GetSystemStatus(ctx context.Context) *SystemStatus
}

// AIConfigPatch is a partial update of the risk manager settings.
type AIConfigPatch struct {
	VirtualBalance *float64 `json:"virtualBalance,omitempty"`
	MinTradeFloor  *float64 `json:"minTradeFloor,omitempty"`
}
