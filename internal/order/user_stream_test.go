package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"dca-core/internal/events"
	"dca-core/internal/persistence"
	"dca-core/pkg/db"
	"dca-core/pkg/exchanges/common"
)

type recordingBalances struct {
	mu      sync.Mutex
	applied []common.AssetBalance
}

func (r *recordingBalances) Apply(b common.AssetBalance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, b)
}

func TestBridgeMaintainsOpenSet(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventOpenOrders, 8)
	defer unsub()

	b := NewStreamBridge(nil, nil, bus, nil, nil)

	newOrder := []byte(`{"e":"executionReport","s":"BTCUSDT","c":"trk-1","S":"BUY","o":"LIMIT","q":"0.10000000","p":"99.00000000","X":"NEW","x":"NEW","i":42,"l":"0","z":"0","L":"0","T":1700000000000}`)
	b.handleMessage(context.Background(), newOrder)

	if got := b.OpenOrders(); len(got) != 1 || got[0].ExchangeOrderID != "42" {
		t.Fatalf("open set = %+v, want order 42", got)
	}
	select {
	case msg := <-ch:
		set, ok := msg.([]common.OrderDetails)
		if !ok || len(set) != 1 {
			t.Fatalf("broadcast payload: %+v", msg)
		}
	default:
		t.Fatal("open set change not broadcast")
	}

	partial := []byte(`{"e":"executionReport","s":"BTCUSDT","c":"trk-1","S":"BUY","o":"LIMIT","q":"0.10000000","p":"99.00000000","X":"PARTIALLY_FILLED","x":"TRADE","i":42,"l":"0.04","z":"0.04","L":"99.00","T":1700000000001}`)
	b.handleMessage(context.Background(), partial)
	if got := b.OpenOrders(); len(got) != 1 || got[0].ExecQty != 0.04 {
		t.Fatalf("partial fill not reflected: %+v", got)
	}

	filled := []byte(`{"e":"executionReport","s":"BTCUSDT","c":"trk-1","S":"BUY","o":"LIMIT","q":"0.10000000","p":"99.00000000","X":"FILLED","x":"TRADE","i":42,"l":"0.06","z":"0.10","L":"99.00","T":1700000000002}`)
	b.handleMessage(context.Background(), filled)
	if got := b.OpenOrders(); len(got) != 0 {
		t.Fatalf("filled order still in open set: %+v", got)
	}
}

func TestBridgeAppliesStreamBalances(t *testing.T) {
	rec := &recordingBalances{}
	b := NewStreamBridge(nil, nil, events.NewBus(), nil, rec)

	msg := []byte(`{"e":"outboundAccountPosition","E":1700000000000,"B":[{"a":"USDT","f":"950.00000000","l":"50.00000000"},{"a":"BTC","f":"0.10000000","l":"0"}]}`)
	b.handleMessage(context.Background(), msg)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.applied) != 2 {
		t.Fatalf("applied %d balances, want 2", len(rec.applied))
	}
	if rec.applied[0].Asset != "USDT" || rec.applied[0].Free != 950 || rec.applied[0].Locked != 50 {
		t.Fatalf("USDT balance wrong: %+v", rec.applied[0])
	}
}

func TestBridgeIgnoresMalformedFrames(t *testing.T) {
	b := NewStreamBridge(nil, nil, events.NewBus(), nil, nil)
	b.handleMessage(context.Background(), []byte(`not json`))
	b.handleMessage(context.Background(), []byte(`{"e":5}`))
	b.handleMessage(context.Background(), []byte(`{"k":"v"}`))
	if got := b.OpenOrders(); len(got) != 0 {
		t.Fatalf("open set polluted: %+v", got)
	}
}

func TestBridgeRecordsTradeFills(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	fw := persistence.NewFillWriter(database, 64, time.Hour)
	t.Cleanup(func() { fw.Close() })

	b := NewStreamBridge(nil, database, events.NewBus(), fw, nil)

	trade := []byte(`{"e":"executionReport","s":"BTCUSDT","c":"trk-7","S":"SELL","o":"LIMIT","q":"0.05000000","p":"101.00000000","X":"FILLED","x":"TRADE","i":99,"t":777,"l":"0.05","z":"0.05","L":"101.00","n":"0.00505000","N":"USDT","T":1700000000000}`)
	b.handleMessage(context.Background(), trade)

	if err := fw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	fills, err := database.ListRecentFills(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecentFills failed: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("recorded %d fills, want 1", len(fills))
	}
	f := fills[0]
	if f.TradeID != 777 {
		t.Errorf("tradeID = %d, want 777", f.TradeID)
	}
	if f.OrderID != "trk-7" || f.ExchangeOrderID != "99" {
		t.Errorf("fill order refs wrong: %+v", f)
	}
	if f.Price != 101 || f.Qty != 0.05 || f.FeeAsset != "USDT" {
		t.Errorf("fill economics wrong: %+v", f)
	}
}
