package db

import (
	"context"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestBotStateRoundTrip(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if _, err := database.LoadBotState(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc := `{"name":"bot-1","symbol":"BTCUSDT","cycle":3}`
	if err := database.SaveBotState(ctx, "bot-1", doc); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	row, err := database.LoadBotState(ctx, "bot-1")
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if row.StateData != doc {
		t.Errorf("expected %s, got %s", doc, row.StateData)
	}

	// Upsert replaces the document.
	doc2 := `{"name":"bot-1","symbol":"BTCUSDT","cycle":4}`
	if err := database.SaveBotState(ctx, "bot-1", doc2); err != nil {
		t.Fatalf("Failed to update state: %v", err)
	}
	row, err = database.LoadBotState(ctx, "bot-1")
	if err != nil {
		t.Fatalf("Failed to reload state: %v", err)
	}
	if row.StateData != doc2 {
		t.Errorf("expected updated doc, got %s", row.StateData)
	}
}

func TestOrderLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	o := Order{
		ID:         "trk-1",
		Symbol:     "BTCUSDT",
		Side:       "BUY",
		LadderSide: "LONG",
		Purpose:    "ENTRY",
		Rung:       0,
		Price:      50000,
		Qty:        0.1,
		Status:     "PLACED",
	}
	if err := database.CreateOrder(ctx, o); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}

	open, err := database.ListOpenOrders(ctx)
	if err != nil {
		t.Fatalf("Failed to list open orders: %v", err)
	}
	if len(open) != 1 || open[0].ID != "trk-1" {
		t.Fatalf("expected 1 open order trk-1, got %v", open)
	}

	if err := database.UpdateOrderStatus(ctx, "trk-1", "987654", "CONFIRMING"); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	open, err = database.ListOpenOrders(ctx)
	if err != nil {
		t.Fatalf("Failed to list open orders: %v", err)
	}
	if len(open) != 1 || open[0].ExchangeOrderID != "987654" {
		t.Fatalf("expected exchange id 987654, got %v", open)
	}

	if err := database.UpdateOrderFill(ctx, "trk-1", "FILLED", 0.1); err != nil {
		t.Fatalf("Failed to record fill: %v", err)
	}
	open, err = database.ListOpenOrders(ctx)
	if err != nil {
		t.Fatalf("Failed to list open orders: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected no open orders after fill, got %d", len(open))
	}

	recent, err := database.ListRecentOrders(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list recent orders: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != "FILLED" || recent[0].FilledQty != 0.1 {
		t.Errorf("unexpected recent orders: %v", recent)
	}
}

func TestFillsAndReconReports(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	f := Fill{
		ID:              "fill-1",
		OrderID:         "trk-1",
		ExchangeOrderID: "987654",
		Symbol:          "BTCUSDT",
		Side:            "BUY",
		Price:           49990,
		Qty:             0.1,
		Fee:             0.4999,
		FeeAsset:        "USDT",
		TradeID:         42,
	}
	if err := database.CreateFill(ctx, f); err != nil {
		t.Fatalf("Failed to create fill: %v", err)
	}
	fills, err := database.ListRecentFills(ctx, 5)
	if err != nil {
		t.Fatalf("Failed to list fills: %v", err)
	}
	if len(fills) != 1 || fills[0].TradeID != 42 {
		t.Errorf("unexpected fills: %v", fills)
	}

	r := ReconReport{
		Symbol:          "BTCUSDT",
		LocalOpen:       1,
		ExchangeOpen:    2,
		MissingLocal:    "111",
		MissingExchange: "",
		Details:         "exchange order 111 unknown locally",
	}
	if err := database.CreateReconReport(ctx, r); err != nil {
		t.Fatalf("Failed to create recon report: %v", err)
	}
	reports, err := database.ListReconReports(ctx, 5)
	if err != nil {
		t.Fatalf("Failed to list recon reports: %v", err)
	}
	if len(reports) != 1 || reports[0].MissingLocal != "111" {
		t.Errorf("unexpected reports: %v", reports)
	}
}
