package strategy

import (
	"context"
	"testing"

	"dca-core/internal/events"
	"dca-core/internal/state"
	"dca-core/pkg/db"
)

func TestCheckOperatingState(t *testing.T) {
	cases := []struct {
		name    string
		st      state.AIState
		balance float64
		floor   float64
		want    Action
	}{
		{"running below floor pauses", state.AIRunning, 4, 5, ActionPause},
		{"running at floor continues", state.AIRunning, 5, 5, ActionContinue},
		{"paused recovered resumes", state.AIPaused, 5, 5, ActionResume},
		{"paused still below continues", state.AIPaused, 4.99, 5, ActionContinue},
		{"running well funded continues", state.AIRunning, 1000, 5, ActionContinue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckOperatingState(state.AIRiskState{
				Enabled:        true,
				State:          tc.st,
				VirtualBalance: tc.balance,
				MinTradeFloor:  tc.floor,
			})
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalculateInvestmentIsFullPool(t *testing.T) {
	st := state.AIRiskState{VirtualBalance: 123.45}
	if got := CalculateInvestment(st); got != 123.45 {
		t.Fatalf("investment = %v, want full virtual balance", got)
	}
}

func newAITestStore(t *testing.T) *state.Store {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	store := state.NewStore(database, events.NewBus(), "ai-test-bot", "BTCUSDT")
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return store
}

func TestEvaluatePausesAndResumes(t *testing.T) {
	store := newAITestStore(t)
	ctx := context.Background()

	if err := store.UpdateAI(ctx, func(ai *state.AIRiskState) {
		ai.Enabled = true
		ai.VirtualBalance = 3
		ai.MinTradeFloor = 5
	}); err != nil {
		t.Fatalf("seed ai state: %v", err)
	}

	m := NewAIManager(store, events.NewBus())
	if got := m.Evaluate(ctx); got != ActionPause {
		t.Fatalf("got %s, want PAUSE", got)
	}
	if st := store.Snapshot().AI.State; st != state.AIPaused {
		t.Fatalf("state = %s, want PAUSED", st)
	}

	if err := m.SettleCycle(ctx, 10); err != nil {
		t.Fatalf("settle: %v", err)
	}
	snap := store.Snapshot().AI
	if snap.VirtualBalance != 13 {
		t.Fatalf("virtual balance = %v, want 13", snap.VirtualBalance)
	}
	if snap.State != state.AIRunning {
		t.Fatalf("state = %s, want RUNNING after recovery", snap.State)
	}
}
