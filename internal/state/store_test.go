package state

import (
	"context"
	"reflect"
	"testing"
	"time"

	"dca-core/internal/events"
	"dca-core/pkg/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return NewStore(database, events.NewBus(), "bot-test", "BTCUSDT")
}

func TestStoreFirstBootDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	snap := store.Snapshot()
	if snap.Long.Status != StatusStopped || snap.Short.Status != StatusStopped {
		t.Errorf("expected both sides STOPPED, got %s/%s", snap.Long.Status, snap.Short.Status)
	}
	if snap.AI.State != AIRunning || snap.AI.MinTradeFloor != 5 {
		t.Errorf("unexpected AI defaults: %+v", snap.AI)
	}
	if snap.Long.CycleCount != 0 || snap.Short.CycleCount != 0 {
		t.Errorf("expected zero cycle counters")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	placedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := store.UpdateSide(ctx, SideLong, func(st *StrategyState, cfg *StrategyConfig) {
		st.Status = StatusRunning
		st.CycleCount = 3
		st.AveragePrice = 50123.5
		st.AccumulatedAmount = 0.025
		st.OrderCountInCycle = 2
		st.CoveragePrice = 47000
		st.TargetPrice = 51125
		st.LastRungPrice = 49000
		st.LastRungSize = 11
		st.LastOrder = &LastOrder{
			TrackID:         "trk-9",
			ExchangeOrderID: "123456",
			Side:            "BUY",
			Price:           49000,
			Size:            11,
			PlacedAt:        placedAt,
		}
		cfg.AmountBase = 100
		cfg.PurchaseStep = 10
		cfg.SizeVar = 10
		cfg.PriceVar = 1.5
		cfg.TriggerPercent = 2
	})
	if err != nil {
		t.Fatalf("UpdateSide failed: %v", err)
	}
	err = store.UpdateAI(ctx, func(ai *AIRiskState) {
		ai.Enabled = true
		ai.VirtualBalance = 123.45
	})
	if err != nil {
		t.Fatalf("UpdateAI failed: %v", err)
	}

	want := store.Snapshot()

	// A second store against the same DB must reproduce the document.
	reload := NewStore(store.db, events.NewBus(), "bot-test", "BTCUSDT")
	if err := reload.Load(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	got := reload.Snapshot()

	if !reflect.DeepEqual(want.Long, got.Long) {
		t.Errorf("long state mismatch:\nwant %+v\ngot  %+v", want.Long, got.Long)
	}
	if !reflect.DeepEqual(want.Short, got.Short) {
		t.Errorf("short state mismatch:\nwant %+v\ngot  %+v", want.Short, got.Short)
	}
	if !reflect.DeepEqual(want.AI, got.AI) {
		t.Errorf("ai state mismatch:\nwant %+v\ngot  %+v", want.AI, got.AI)
	}
	if !reflect.DeepEqual(want.LongConfig, got.LongConfig) {
		t.Errorf("long config mismatch")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpdateSide(ctx, SideShort, func(st *StrategyState, cfg *StrategyConfig) {
		st.LastOrder = &LastOrder{TrackID: "trk-1", Price: 100}
	})
	if err != nil {
		t.Fatalf("UpdateSide failed: %v", err)
	}

	snap := store.Snapshot()
	snap.Short.LastOrder.Price = 999
	snap.Balances["USDT"] = Balance{Free: 1}

	again := store.Snapshot()
	if again.Short.LastOrder.Price != 100 {
		t.Errorf("snapshot mutation leaked into store")
	}
	if _, ok := again.Balances["USDT"]; ok {
		t.Errorf("balance map mutation leaked into store")
	}
}

func TestStateUpdatePublished(t *testing.T) {
	bus := events.NewBus()
	store := NewStore(nil, bus, "bot-pub", "BTCUSDT")
	ch, unsub := bus.Subscribe(events.EventStateUpdate, 4)
	defer unsub()

	err := store.UpdateSide(context.Background(), SideLong, func(st *StrategyState, cfg *StrategyConfig) {
		st.Status = StatusRunning
	})
	if err != nil {
		t.Fatalf("UpdateSide failed: %v", err)
	}

	select {
	case msg := <-ch:
		snap, ok := msg.(BotRootState)
		if !ok {
			t.Fatalf("unexpected payload type %T", msg)
		}
		if snap.Long.Status != StatusRunning {
			t.Errorf("expected RUNNING in broadcast, got %s", snap.Long.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no state update published")
	}
}
