package engine

import (
	"context"
	"testing"

	"dca-core/internal/events"
	"dca-core/internal/state"
	"dca-core/pkg/db"
)

type staticPrices struct{ price float64 }

func (s staticPrices) Get(symbol string) (float64, bool) { return s.price, s.price > 0 }

func newTestImpl(t *testing.T) (*Impl, *state.Store) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	store := state.NewStore(database, events.NewBus(), "engine-test", "BTCUSDT")
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	impl := NewImpl(Config{
		Store:  store,
		DB:     database,
		Prices: staticPrices{price: 100},
		Meta:   SystemStatus{BotName: "engine-test", Symbol: "BTCUSDT", DryRun: true},
	})
	return impl, store
}

func TestUnknownSideRejected(t *testing.T) {
	impl, _ := newTestImpl(t)
	if err := impl.StopSide(context.Background(), state.Side("DIAGONAL")); err == nil {
		t.Fatal("expected unknown side error")
	}
	if _, err := impl.GetPlan(context.Background(), state.Side("")); err == nil {
		t.Fatal("expected unknown side error from GetPlan")
	}
}

func TestToggleAIPersists(t *testing.T) {
	impl, store := newTestImpl(t)
	ctx := context.Background()

	if err := impl.ToggleAI(ctx, true); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !store.Snapshot().AI.Enabled {
		t.Fatal("AI not enabled")
	}
	if err := impl.ToggleAI(ctx, false); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if store.Snapshot().AI.Enabled {
		t.Fatal("AI still enabled")
	}
}

func TestUpdateAIConfigValidates(t *testing.T) {
	impl, store := newTestImpl(t)
	ctx := context.Background()

	bad := -1.0
	if err := impl.UpdateAIConfig(ctx, AIConfigPatch{VirtualBalance: &bad}); err == nil {
		t.Fatal("negative virtual balance must be rejected")
	}

	vb, floor := 250.0, 10.0
	if err := impl.UpdateAIConfig(ctx, AIConfigPatch{VirtualBalance: &vb, MinTradeFloor: &floor}); err != nil {
		t.Fatalf("update: %v", err)
	}
	ai := store.Snapshot().AI
	if ai.VirtualBalance != 250 || ai.MinTradeFloor != 10 {
		t.Fatalf("ai config not applied: %+v", ai)
	}
}

func TestGetPlanUsesConfiguredLadder(t *testing.T) {
	impl, store := newTestImpl(t)
	ctx := context.Background()

	err := store.UpdateSide(ctx, state.SideLong, func(st *state.StrategyState, cfg *state.StrategyConfig) {
		cfg.AmountBase = 100
		cfg.PurchaseStep = 10
		cfg.SizeVar = 10
		cfg.TriggerPercent = 2
	})
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}

	plan, err := impl.GetPlan(ctx, state.SideLong)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.OrderCount != 5 {
		t.Fatalf("orderCount = %d, want 5", plan.OrderCount)
	}
	if plan.TargetPrice != 102 {
		t.Fatalf("targetPrice = %v, want 102", plan.TargetPrice)
	}
}

func TestGetSystemStatusStampsTime(t *testing.T) {
	impl, _ := newTestImpl(t)
	status := impl.GetSystemStatus(context.Background())
	if status.BotName != "engine-test" || !status.DryRun {
		t.Fatalf("metadata lost: %+v", status)
	}
	if status.ServerTime.IsZero() {
		t.Fatal("server time not stamped")
	}
}
