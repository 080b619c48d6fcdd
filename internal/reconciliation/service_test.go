package reconciliation

import (
	"context"
	"testing"
	"time"

	"dca-core/internal/events"
	"dca-core/pkg/db"
	"dca-core/pkg/exchanges/common"
)

type stubGateway struct {
	open []common.OrderDetails
}

func (s *stubGateway) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	return common.OrderResult{}, nil
}
func (s *stubGateway) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (s *stubGateway) GetOrder(ctx context.Context, symbol, orderID string) (common.OrderDetails, error) {
	return common.OrderDetails{}, nil
}
func (s *stubGateway) GetOpenOrders(ctx context.Context, symbol string) ([]common.OrderDetails, error) {
	return s.open, nil
}
func (s *stubGateway) GetBalances(ctx context.Context) ([]common.AssetBalance, error) {
	return nil, nil
}
func (s *stubGateway) GetPrice(ctx context.Context, symbol string) (float64, error) { return 0, nil }

func newReconDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return database
}

func seedOpenOrder(t *testing.T, database *db.Database, id, exchangeID string) {
	t.Helper()
	err := database.CreateOrder(context.Background(), db.Order{
		ID:              id,
		ExchangeOrderID: exchangeID,
		Symbol:          "BTCUSDT",
		Side:            "BUY",
		LadderSide:      "LONG",
		Purpose:         "SAFETY",
		Rung:            2,
		Price:           99,
		Qty:             0.1,
		Status:          "PLACED",
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestReconcileCleanWhenViewsAgree(t *testing.T) {
	database := newReconDB(t)
	seedOpenOrder(t, database, "trk-1", "42")
	gw := &stubGateway{open: []common.OrderDetails{{ExchangeOrderID: "42", Symbol: "BTCUSDT"}}}

	svc := NewService(gw, database, events.NewBus(), "BTCUSDT", time.Minute)
	report, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("expected clean report, got %+v", report)
	}

	reports, err := database.ListReconReports(context.Background(), 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("clean pass must not persist a report, got %d", len(reports))
	}
}

func TestReconcileRecordsMismatchWithoutHealing(t *testing.T) {
	database := newReconDB(t)
	seedOpenOrder(t, database, "trk-1", "42")
	// Exchange shows a different working order.
	gw := &stubGateway{open: []common.OrderDetails{{ExchangeOrderID: "77", Symbol: "BTCUSDT"}}}

	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventRiskAlert, 4)
	defer unsub()

	svc := NewService(gw, database, bus, "BTCUSDT", time.Minute)
	report, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Clean() {
		t.Fatal("expected mismatch")
	}
	if len(report.MissingLocal) != 1 || report.MissingLocal[0] != "77" {
		t.Fatalf("missingLocal = %v, want [77]", report.MissingLocal)
	}
	if len(report.MissingExchange) != 1 || report.MissingExchange[0] != "42" {
		t.Fatalf("missingExchange = %v, want [42]", report.MissingExchange)
	}

	select {
	case msg := <-alerts:
		alert, ok := msg.(events.RiskAlert)
		if !ok || alert.Code != "RECON_MISMATCH" {
			t.Fatalf("unexpected alert payload: %+v", msg)
		}
	default:
		t.Fatal("mismatch must raise a risk alert")
	}

	reports, err := database.ListReconReports(context.Background(), 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one persisted report, got %d", len(reports))
	}

	// No healing: the local order row stays untouched.
	local, err := database.ListOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("list open orders: %v", err)
	}
	if len(local) != 1 || local[0].ID != "trk-1" {
		t.Fatalf("local orders were mutated: %+v", local)
	}
}

func TestReconcileDryRunIsNoop(t *testing.T) {
	database := newReconDB(t)
	svc := NewService(nil, database, events.NewBus(), "BTCUSDT", time.Minute)
	report, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("nil gateway must report clean, got %+v", report)
	}
}
