package strategy

import (
	"context"
	"log"
	"time"

	"dca-core/internal/events"
	"dca-core/internal/state"
	"dca-core/pkg/i18n"
)

// Action is the AI risk manager verdict for one evaluation.
type Action string

const (
	ActionPause    Action = "PAUSE"
	ActionResume   Action = "RESUME"
	ActionContinue Action = "CONTINUE"
)

// CheckOperatingState gates the compounding pool on a balance floor.
// It pauses a running pool that dropped under the floor and resumes a
// paused pool that recovered; anything else is a no-op.
func CheckOperatingState(st state.AIRiskState) Action {
	switch {
	case st.State == state.AIRunning && st.VirtualBalance < st.MinTradeFloor:
		return ActionPause
	case st.State == state.AIPaused && st.VirtualBalance >= st.MinTradeFloor:
		return ActionResume
	default:
		return ActionContinue
	}
}

// CalculateInvestment returns the stake for the next cycle. The pool is
// fully compounding: the entire virtual balance is risked each time.
func CalculateInvestment(st state.AIRiskState) float64 {
	return st.VirtualBalance
}

// AIManager periodically re-evaluates the pool and records transitions.
// It runs its own loop, decoupled from the two ladder machines.
type AIManager struct {
	Store    *state.Store
	Bus      *events.Bus
	Interval time.Duration
}

func NewAIManager(store *state.Store, bus *events.Bus) *AIManager {
	return &AIManager{Store: store, Bus: bus, Interval: 15 * time.Second}
}

// Run evaluates on every balance update and on a slow tick until ctx ends.
func (m *AIManager) Run(ctx context.Context) {
	balCh, unsub := m.Bus.Subscribe(events.EventBalanceUpdate, 8)
	defer unsub()

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-balCh:
			m.Evaluate(ctx)
		case <-ticker.C:
			m.Evaluate(ctx)
		}
	}
}

// Evaluate applies one CheckOperatingState verdict to the persisted state.
func (m *AIManager) Evaluate(ctx context.Context) Action {
	snap := m.Store.Snapshot()
	if !snap.AI.Enabled {
		return ActionContinue
	}
	action := CheckOperatingState(snap.AI)
	if action == ActionContinue {
		return action
	}

	err := m.Store.UpdateAI(ctx, func(ai *state.AIRiskState) {
		if action == ActionPause {
			ai.State = state.AIPaused
		} else {
			ai.State = state.AIRunning
		}
	})
	if err != nil {
		log.Printf("⚠️ ai state update failed: %v", err)
		return ActionContinue
	}

	if action == ActionPause {
		log.Printf("⚠️ "+i18n.M().AIPausedFloor, snap.AI.VirtualBalance, snap.AI.MinTradeFloor)
	} else {
		log.Printf("✓ %s", i18n.M().AIResumed)
	}
	m.Bus.Publish(events.EventAIDecision, events.AIDecision{
		Operate: string(action),
		Reason:  "balance floor check",
		Time:    time.Now(),
	})
	return action
}

// SettleCycle applies a cycle's profit or loss to the virtual pool and
// re-checks the floor.
func (m *AIManager) SettleCycle(ctx context.Context, pnl float64) error {
	err := m.Store.UpdateAI(ctx, func(ai *state.AIRiskState) {
		ai.VirtualBalance += pnl
		if ai.VirtualBalance < 0 {
			ai.VirtualBalance = 0
		}
	})
	if err != nil {
		return err
	}
	m.Evaluate(ctx)
	return nil
}
