package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"dca-core/internal/events"
	"dca-core/internal/state"
	"dca-core/pkg/exchanges/common"
)

type fakeGateway struct {
	mu          sync.Mutex
	submitErr   error
	orderStatus common.OrderStatus
	getErr      error
	fillPrice   float64
	fillQty     float64
	cancelled   []string
	getCalls    int
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return common.OrderResult{}, f.submitErr
	}
	return common.OrderResult{ExchangeOrderID: "ex-1", Status: common.StatusNew, ClientID: req.ClientID}, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeGateway) GetOrder(ctx context.Context, symbol, orderID string) (common.OrderDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return common.OrderDetails{}, f.getErr
	}
	return common.OrderDetails{
		ExchangeOrderID: orderID,
		Symbol:          symbol,
		Status:          f.orderStatus,
		AvgFillPrice:    f.fillPrice,
		ExecQty:         f.fillQty,
	}, nil
}

func (f *fakeGateway) GetOpenOrders(ctx context.Context, symbol string) ([]common.OrderDetails, error) {
	return nil, nil
}

func (f *fakeGateway) GetBalances(ctx context.Context) ([]common.AssetBalance, error) {
	return nil, nil
}

func (f *fakeGateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func (f *fakeGateway) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

func testIntent() Intent {
	return Intent{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.001, Purpose: PurposeEntry}
}

func waitEvent(t *testing.T, ch <-chan any, d time.Duration) events.OrderUpdate {
	t.Helper()
	select {
	case msg := <-ch:
		upd, ok := msg.(events.OrderUpdate)
		if !ok {
			t.Fatalf("unexpected payload type %T", msg)
		}
		return upd
	case <-time.After(d):
		t.Fatalf("timed out waiting for order event")
		return events.OrderUpdate{}
	}
}

func TestPlaceRejectsSecondInFlight(t *testing.T) {
	gw := &fakeGateway{orderStatus: common.StatusNew}
	bus := events.NewBus()
	tr := NewTracker(gw, bus, nil, time.Hour, 5)
	tr.Start(context.Background())

	if _, err := tr.Place(context.Background(), state.SideLong, testIntent()); err != nil {
		t.Fatalf("first place: %v", err)
	}
	if _, err := tr.Place(context.Background(), state.SideLong, testIntent()); err != ErrOrderInFlight {
		t.Fatalf("expected ErrOrderInFlight, got %v", err)
	}
	// The other side has its own slot.
	if _, err := tr.Place(context.Background(), state.SideShort, Intent{Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 0.001, Purpose: PurposeEntry}); err != nil {
		t.Fatalf("short place: %v", err)
	}
}

func TestConfirmResolvesFill(t *testing.T) {
	gw := &fakeGateway{orderStatus: common.StatusFilled, fillPrice: 101.5, fillQty: 0.001}
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventOrderFilled, 4)
	defer unsub()

	tr := NewTracker(gw, bus, nil, 10*time.Millisecond, 5)
	tr.Start(context.Background())

	placed, err := tr.Place(context.Background(), state.SideLong, testIntent())
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	upd := waitEvent(t, ch, 2*time.Second)
	if upd.TrackID != placed.ID {
		t.Fatalf("track id mismatch: %s != %s", upd.TrackID, placed.ID)
	}
	if upd.AvgFillPrice != 101.5 || upd.ExecQty != 0.001 {
		t.Fatalf("fill details not propagated: %+v", upd)
	}
	if tr.InFlight(state.SideLong) != nil {
		t.Fatal("slot not released after fill")
	}
}

func TestReleasedOrderFencesLateConfirm(t *testing.T) {
	gw := &fakeGateway{orderStatus: common.StatusFilled, fillPrice: 101, fillQty: 0.001}
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventOrderFilled, 4)
	defer unsub()

	tr := NewTracker(gw, bus, nil, 20*time.Millisecond, 5)
	tr.Start(context.Background())

	if _, err := tr.Place(context.Background(), state.SideLong, testIntent()); err != nil {
		t.Fatalf("place: %v", err)
	}
	tr.Release(state.SideLong)

	select {
	case msg := <-ch:
		t.Fatalf("fenced order still produced event: %+v", msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestConfirmRetryExhaustionFails(t *testing.T) {
	gw := &fakeGateway{orderStatus: common.StatusNew}
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventOrderFailed, 4)
	defer unsub()

	tr := NewTracker(gw, bus, nil, 5*time.Millisecond, 2)
	tr.Start(context.Background())

	placed, err := tr.Place(context.Background(), state.SideLong, testIntent())
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	upd := waitEvent(t, ch, 2*time.Second)
	if upd.TrackID != placed.ID {
		t.Fatalf("track id mismatch")
	}
	if upd.Status != string(StatusFailed) {
		t.Fatalf("expected FAILED, got %s", upd.Status)
	}
	if tr.InFlight(state.SideLong) != nil {
		t.Fatal("slot not released after failure")
	}

	// The resting exchange order gets a best-effort cancel.
	deadline := time.Now().Add(time.Second)
	for gw.cancelCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if gw.cancelCount() == 0 {
		t.Fatal("expected cancel of unconfirmed order")
	}
}

func TestPlacementFailureLeavesNoTracking(t *testing.T) {
	gw := &fakeGateway{submitErr: context.DeadlineExceeded}
	bus := events.NewBus()
	tr := NewTracker(gw, bus, nil, time.Hour, 5)
	tr.Start(context.Background())

	if _, err := tr.Place(context.Background(), state.SideLong, testIntent()); err == nil {
		t.Fatal("expected submit error")
	}
	if tr.InFlight(state.SideLong) != nil {
		t.Fatal("failed placement must not leave a tracked order")
	}
	gw.submitErr = nil
	if _, err := tr.Place(context.Background(), state.SideLong, testIntent()); err != nil {
		t.Fatalf("slot should be free after failed placement: %v", err)
	}
}
