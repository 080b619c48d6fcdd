package strategy

import (
	"context"
	"testing"

	"dca-core/internal/events"
	"dca-core/internal/state"
	"dca-core/pkg/db"
)

func defaultsForTest() *FileConfig {
	return &FileConfig{
		Symbol: "BTCUSDT",
		Long: SideDefaults{
			AmountBase:     1000,
			PurchaseStep:   100,
			PriceVar:       1.0,
			SizeVar:        10.0,
			TriggerPercent: 2.0,
		},
		Short: SideDefaults{
			AmountBase:     800,
			PurchaseStep:   80,
			PriceVar:       1.5,
			SizeVar:        5.0,
			TriggerPercent: 2.5,
		},
		AI: AIDefaults{
			Enabled:       true,
			Seed:          500,
			MinTradeFloor: 50,
		},
	}
}

func TestSeedAppliesFileDefaultsOnFirstBoot(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	ctx := context.Background()
	store := state.NewStore(database, events.NewBus(), "bot-test", "BTCUSDT")
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !store.FirstBoot() {
		t.Fatalf("expected first boot with an empty database")
	}

	if err := Seed(ctx, store, defaultsForTest()); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	snap := store.Snapshot()
	if snap.AI.VirtualBalance != 500 {
		t.Errorf("virtualBalance = %v after seeding, want 500", snap.AI.VirtualBalance)
	}
	if snap.AI.MinTradeFloor != 50 {
		t.Errorf("minTradeFloor = %v after seeding, want 50", snap.AI.MinTradeFloor)
	}
	if !snap.AI.Enabled {
		t.Errorf("expected AI enabled after seeding")
	}
	if snap.LongConfig.AmountBase != 1000 || snap.LongConfig.PurchaseStep != 100 {
		t.Errorf("long config not seeded: %+v", snap.LongConfig)
	}
	if snap.ShortConfig.AmountBase != 800 || snap.ShortConfig.TriggerPercent != 2.5 {
		t.Errorf("short config not seeded: %+v", snap.ShortConfig)
	}

	// A restart over the same database is not a first boot, so the
	// persisted values survive and no reseed happens.
	restarted := state.NewStore(database, events.NewBus(), "bot-test", "BTCUSDT")
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load after restart failed: %v", err)
	}
	if restarted.FirstBoot() {
		t.Fatalf("expected restart to load the persisted document")
	}
	if got := restarted.Snapshot().AI.VirtualBalance; got != 500 {
		t.Errorf("virtualBalance = %v after restart, want 500", got)
	}
}

func TestSeedNilConfigIsNoOp(t *testing.T) {
	if err := Seed(context.Background(), nil, nil); err != nil {
		t.Fatalf("Seed(nil) failed: %v", err)
	}
}
