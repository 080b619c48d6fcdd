package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dca-core/internal/events"
	"dca-core/internal/monitor"
	"dca-core/internal/state"
	"dca-core/pkg/db"
	"dca-core/pkg/exchanges/common"
	"dca-core/pkg/i18n"

	"github.com/google/uuid"
)

// ErrOrderInFlight is returned when a side already has an unsettled order.
var ErrOrderInFlight = errors.New("order already in flight for this side")

// Tracker owns the order lifecycle: it submits intents to the gateway,
// persists every transition, and resolves the final status through
// delayed confirmation polls. At most one order per strategy side is
// tracked at a time.
type Tracker struct {
	Gateway common.Gateway
	Bus     *events.Bus
	DB      *db.Database
	Metrics *monitor.SystemMetrics

	ConfirmDelay time.Duration
	MaxAttempts  int

	ctx context.Context

	mu       sync.Mutex
	inflight map[state.Side]*TrackedOrder
	timers   map[string]*time.Timer
}

func NewTracker(gw common.Gateway, bus *events.Bus, database *db.Database, confirmDelay time.Duration, maxAttempts int) *Tracker {
	if confirmDelay <= 0 {
		confirmDelay = 3 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Tracker{
		Gateway:      gw,
		Bus:          bus,
		DB:           database,
		ConfirmDelay: confirmDelay,
		MaxAttempts:  maxAttempts,
		ctx:          context.Background(),
		inflight:     make(map[state.Side]*TrackedOrder),
		timers:       make(map[string]*time.Timer),
	}
}

// Start binds the tracker to a lifecycle context used by confirmation polls.
func (t *Tracker) Start(ctx context.Context) {
	t.ctx = ctx
}

// InFlight returns a copy of the side's tracked order, or nil.
func (t *Tracker) InFlight(side state.Side) *TrackedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.inflight[side]
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}

// Place submits an intent for a side. It fails with ErrOrderInFlight if the
// side's previous order is still unsettled. On gateway rejection no tracked
// order remains, so the caller's state is unchanged.
func (t *Tracker) Place(ctx context.Context, side state.Side, intent Intent) (TrackedOrder, error) {
	t.mu.Lock()
	if cur := t.inflight[side]; cur != nil && cur.Status.InFlight() {
		t.mu.Unlock()
		return TrackedOrder{}, ErrOrderInFlight
	}
	to := &TrackedOrder{
		ID:           uuid.NewString(),
		StrategySide: side,
		Intent:       intent,
		Status:       StatusPendingPlacement,
		PlacedAt:     time.Now(),
	}
	t.inflight[side] = to
	t.mu.Unlock()

	req := common.OrderRequest{
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Type:     intent.Type,
		Qty:      intent.Qty,
		Price:    intent.Price,
		ClientID: to.ID,
	}
	if intent.Type == common.OrderTypeLimit {
		req.TimeInForce = common.TIFGTC
	}

	var timer *monitor.Timer
	if t.Metrics != nil {
		timer = monitor.NewTimer(t.Metrics.OrderLatency)
	}
	res, err := t.Gateway.SubmitOrder(ctx, req)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		t.mu.Lock()
		if t.inflight[side] == to {
			delete(t.inflight, side)
		}
		t.mu.Unlock()
		log.Printf("❌ "+i18n.M().OrderFailed, to.ID, err)
		return TrackedOrder{}, fmt.Errorf("submit order: %w", err)
	}

	t.mu.Lock()
	to.ExchangeID = res.ExchangeOrderID
	to.Status = StatusPlaced
	cp := *to
	t.armTimerLocked(to.ID, side)
	t.mu.Unlock()

	t.persist(ctx, &cp, string(StatusPlaced))
	log.Printf("📝 "+i18n.M().OrderPlaced, intent.Symbol, intent.Side, intent.Qty, intent.Price)
	t.publish(events.EventOrderPlaced, cp, "")
	return cp, nil
}

// Cancel abandons the side's in-flight order. The exchange cancel is
// best-effort; the tracked order is dropped either way.
func (t *Tracker) Cancel(ctx context.Context, side state.Side) error {
	t.mu.Lock()
	to := t.inflight[side]
	if to == nil {
		t.mu.Unlock()
		return nil
	}
	delete(t.inflight, side)
	t.stopTimerLocked(to.ID)
	to.Status = StatusCancelled
	cp := *to
	t.mu.Unlock()

	var cancelErr error
	if to.ExchangeID != "" {
		if err := t.Gateway.CancelOrder(ctx, to.Intent.Symbol, to.ExchangeID); err != nil {
			cancelErr = err
			log.Printf("⚠️ cancel %s: %v", to.ID, err)
		}
	}
	t.persist(ctx, to, string(StatusCancelled))
	log.Printf("🔄 "+i18n.M().OrderCancelled, to.ID)
	t.publish(events.EventOrderCancelled, cp, "cancelled by strategy")
	return cancelErr
}

// Release drops tracking for a side without touching the exchange. Any
// confirmation still scheduled for the released order becomes a no-op.
func (t *Tracker) Release(side state.Side) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if to := t.inflight[side]; to != nil {
		t.stopTimerLocked(to.ID)
		delete(t.inflight, side)
	}
}

func (t *Tracker) armTimerLocked(trackID string, side state.Side) {
	t.timers[trackID] = time.AfterFunc(t.ConfirmDelay, func() {
		t.confirm(trackID, side)
	})
}

func (t *Tracker) stopTimerLocked(trackID string) {
	if tm, ok := t.timers[trackID]; ok {
		tm.Stop()
		delete(t.timers, trackID)
	}
}

// confirm runs one delayed confirmation attempt. Late confirmations for
// orders that were released or replaced are fenced out by track id.
func (t *Tracker) confirm(trackID string, side state.Side) {
	t.mu.Lock()
	to := t.inflight[side]
	if to == nil || to.ID != trackID {
		t.mu.Unlock()
		log.Printf("🔒 "+i18n.M().LateConfirmIgnored, trackID)
		return
	}
	delete(t.timers, trackID)
	to.Status = StatusConfirming
	to.Attempts++
	attempt := to.Attempts
	symbol, exchangeID := to.Intent.Symbol, to.ExchangeID
	t.mu.Unlock()

	if attempt == 1 {
		t.persist(t.ctx, to, string(StatusConfirming))
	}

	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	details, err := t.Gateway.GetOrder(ctx, symbol, exchangeID)
	cancel()

	t.mu.Lock()
	if cur := t.inflight[side]; cur == nil || cur.ID != trackID {
		t.mu.Unlock()
		log.Printf("🔒 "+i18n.M().LateConfirmIgnored, trackID)
		return
	}

	if err != nil {
		if attempt >= t.MaxAttempts {
			t.failLocked(to, fmt.Sprintf("confirmation failed after %d attempts: %v", attempt, err))
			t.mu.Unlock()
			return
		}
		t.armTimerLocked(trackID, side)
		t.mu.Unlock()
		log.Printf("⚠️ "+i18n.M().OrderConfirming+": %v", trackID, attempt, t.MaxAttempts, err)
		return
	}

	switch details.Status {
	case common.StatusFilled:
		to.Status = StatusFilled
		to.FillPrice = details.AvgFillPrice
		if to.FillPrice == 0 {
			to.FillPrice = details.Price
		}
		to.FillQty = details.ExecQty
		delete(t.inflight, side)
		cp := *to
		t.mu.Unlock()
		if t.Metrics != nil {
			t.Metrics.ConfirmLatency.RecordDuration(time.Since(cp.PlacedAt))
		}
		t.persistFill(&cp)
		log.Printf("✓ "+i18n.M().OrderFilled, cp.ID, cp.FillPrice, cp.FillQty)
		t.publish(events.EventOrderFilled, cp, "")
	case common.StatusCanceled, common.StatusExpired:
		to.Status = StatusCancelled
		delete(t.inflight, side)
		cp := *to
		t.mu.Unlock()
		t.persist(t.ctx, &cp, string(StatusCancelled))
		t.publish(events.EventOrderCancelled, cp, string(details.Status))
	case common.StatusRejected:
		t.failLocked(to, "rejected by exchange")
		t.mu.Unlock()
	default:
		if attempt >= t.MaxAttempts {
			// Still open after every attempt: give up tracking and try to
			// pull the resting order so it cannot fill unobserved.
			id := to.ExchangeID
			t.failLocked(to, fmt.Sprintf("unconfirmed after %d attempts", attempt))
			t.mu.Unlock()
			ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
			if err := t.Gateway.CancelOrder(ctx, symbol, id); err != nil {
				log.Printf("⚠️ cancel %s: %v", id, err)
			}
			cancel()
			return
		}
		t.armTimerLocked(trackID, side)
		t.mu.Unlock()
		log.Printf("🕐 "+i18n.M().OrderConfirming+" status=%s", trackID, attempt, t.MaxAttempts, details.Status)
	}
}

// failLocked finalizes a tracked order as failed. Caller holds t.mu.
func (t *Tracker) failLocked(to *TrackedOrder, reason string) {
	to.Status = StatusFailed
	to.FailReason = reason
	delete(t.inflight, to.StrategySide)
	t.stopTimerLocked(to.ID)
	cp := *to
	go func() {
		t.persist(t.ctx, &cp, string(StatusFailed))
		log.Printf("❌ "+i18n.M().OrderFailed, cp.ID, reason)
		t.publish(events.EventOrderFailed, cp, reason)
	}()
}

func (t *Tracker) persist(ctx context.Context, to *TrackedOrder, status string) {
	if t.DB == nil {
		return
	}
	if status == string(StatusPlaced) {
		row := db.Order{
			ID:              to.ID,
			ExchangeOrderID: to.ExchangeID,
			Symbol:          to.Intent.Symbol,
			Side:            string(to.Intent.Side),
			LadderSide:      string(to.StrategySide),
			Purpose:         to.Intent.Purpose,
			Rung:            to.Intent.Rung,
			Price:           to.Intent.Price,
			Qty:             to.Intent.Qty,
			Status:          status,
			CreatedAt:       to.PlacedAt,
		}
		if err := t.DB.CreateOrder(ctx, row); err != nil {
			log.Printf("💾 order insert failed %s: %v", to.ID, err)
		}
		return
	}
	if err := t.DB.UpdateOrderStatus(ctx, to.ID, to.ExchangeID, status); err != nil {
		log.Printf("💾 order update failed %s: %v", to.ID, err)
	}
}

func (t *Tracker) persistFill(to *TrackedOrder) {
	if t.DB == nil {
		return
	}
	if err := t.DB.UpdateOrderFill(t.ctx, to.ID, string(StatusFilled), to.FillQty); err != nil {
		log.Printf("💾 order fill update failed %s: %v", to.ID, err)
	}
}

func (t *Tracker) publish(e events.Event, to TrackedOrder, reason string) {
	if t.Bus == nil {
		return
	}
	t.Bus.Publish(e, events.OrderUpdate{
		TrackID:         to.ID,
		Side:            string(to.StrategySide),
		Symbol:          to.Intent.Symbol,
		ExchangeOrderID: to.ExchangeID,
		Status:          string(to.Status),
		Price:           to.Intent.Price,
		Qty:             to.Intent.Qty,
		ExecQty:         to.FillQty,
		AvgFillPrice:    to.FillPrice,
		Reason:          reason,
	})
}
