package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dca-core/internal/balance"
	"dca-core/internal/events"
	"dca-core/internal/order"
	"dca-core/internal/state"
	"dca-core/pkg/exchanges/common"
	"dca-core/pkg/i18n"
)

var (
	ErrAlreadyRunning = errors.New("side is already running")
	ErrNotStopped     = errors.New("side must be stopped first")
	ErrNoPrice        = errors.New("no market price available yet")
)

// OrderPlacer is the slice of the order tracker a side machine drives.
type OrderPlacer interface {
	Place(ctx context.Context, side state.Side, intent order.Intent) (order.TrackedOrder, error)
	Cancel(ctx context.Context, side state.Side) error
	Release(side state.Side)
}

// BalanceSource reports spendable funds per asset.
type BalanceSource interface {
	Available(asset string) float64
}

// PriceSource answers the last known price for a symbol.
type PriceSource interface {
	Get(symbol string) (float64, bool)
}

// CycleSettler receives each cycle's realized profit or loss.
type CycleSettler interface {
	SettleCycle(ctx context.Context, pnl float64) error
}

// ConfigPatch is a partial config update; nil fields keep their value.
type ConfigPatch struct {
	AmountBase     *float64 `json:"amountBase,omitempty"`
	PurchaseStep   *float64 `json:"purchaseStep,omitempty"`
	PriceVar       *float64 `json:"priceVar,omitempty"`
	SizeVar        *float64 `json:"sizeVar,omitempty"`
	TriggerPercent *float64 `json:"triggerPercent,omitempty"`
	StopAtCycleEnd *bool    `json:"stopAtCycleEnd,omitempty"`
}

func (p ConfigPatch) apply(cfg state.StrategyConfig) state.StrategyConfig {
	if p.AmountBase != nil {
		cfg.AmountBase = *p.AmountBase
	}
	if p.PurchaseStep != nil {
		cfg.PurchaseStep = *p.PurchaseStep
	}
	if p.PriceVar != nil {
		cfg.PriceVar = *p.PriceVar
	}
	if p.SizeVar != nil {
		cfg.SizeVar = *p.SizeVar
	}
	if p.TriggerPercent != nil {
		cfg.TriggerPercent = *p.TriggerPercent
	}
	if p.StopAtCycleEnd != nil {
		cfg.StopAtCycleEnd = *p.StopAtCycleEnd
	}
	return cfg
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdUpdateConfig
	cmdResetCycle
)

type command struct {
	kind  cmdKind
	cfg   state.StrategyConfig
	patch ConfigPatch
	reply chan error
}

// pendingOrder remembers what the side is waiting on. prev is the status
// restored when the order fails or is cancelled.
type pendingOrder struct {
	trackID string
	purpose string
	rung    int
	prev    state.Status
}

// SideMachine runs one ladder side. All state transitions happen on its
// single Run goroutine; public methods hand commands to that goroutine.
type SideMachine struct {
	Side        state.Side
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	MinNotional float64

	Store    *state.Store
	Orders   OrderPlacer
	Balances BalanceSource
	Bus      *events.Bus
	Prices   PriceSource
	Settler  CycleSettler // optional, credits the sub-strategy pool

	cmds      chan command
	lastPrice float64
	pending   *pendingOrder
}

func NewSideMachine(side state.Side, symbol, baseAsset, quoteAsset string, store *state.Store, orders OrderPlacer, balances BalanceSource, bus *events.Bus, prices PriceSource) *SideMachine {
	return &SideMachine{
		Side:       side,
		Symbol:     symbol,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		Store:      store,
		Orders:     orders,
		Balances:   balances,
		Bus:        bus,
		Prices:     prices,
		cmds:       make(chan command, 8),
	}
}

// Start begins a new session: validates the config, guards the first rung,
// and places the opening market order.
func (m *SideMachine) Start(ctx context.Context, cfg state.StrategyConfig) error {
	return m.send(ctx, command{kind: cmdStart, cfg: cfg})
}

// Stop cancels any working order and parks the side. The open ladder
// position, if any, is left intact.
func (m *SideMachine) Stop(ctx context.Context) error {
	return m.send(ctx, command{kind: cmdStop})
}

// UpdateConfig merges a partial config change and revalidates.
func (m *SideMachine) UpdateConfig(ctx context.Context, patch ConfigPatch) error {
	return m.send(ctx, command{kind: cmdUpdateConfig, patch: patch})
}

// ResetCycle zeroes the cycle counter and ladder bookkeeping. Only allowed
// while the side is stopped.
func (m *SideMachine) ResetCycle(ctx context.Context) error {
	return m.send(ctx, command{kind: cmdResetCycle})
}

func (m *SideMachine) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the side's event loop. Everything that mutates this side's state
// funnels through here, so transitions never race.
func (m *SideMachine) Run(ctx context.Context) {
	tickCh, unsubTick := m.Bus.Subscribe(events.EventPriceTick, 64)
	fillCh, unsubFill := m.Bus.Subscribe(events.EventOrderFilled, 16)
	failCh, unsubFail := m.Bus.Subscribe(events.EventOrderFailed, 16)
	cancelCh, unsubCancel := m.Bus.Subscribe(events.EventOrderCancelled, 16)
	defer unsubTick()
	defer unsubFill()
	defer unsubFail()
	defer unsubCancel()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.cmds:
			cmd.reply <- m.handleCommand(ctx, cmd)
		case msg := <-tickCh:
			if tick, ok := msg.(events.PriceTick); ok && tick.Symbol == m.Symbol {
				m.handleTick(ctx, tick.Price)
			}
		case msg := <-fillCh:
			if upd, ok := msg.(events.OrderUpdate); ok {
				m.handleFilled(ctx, upd)
			}
		case msg := <-failCh:
			if upd, ok := msg.(events.OrderUpdate); ok {
				m.handleAborted(ctx, upd, false)
			}
		case msg := <-cancelCh:
			if upd, ok := msg.(events.OrderUpdate); ok {
				m.handleAborted(ctx, upd, true)
			}
		}
	}
}

func (m *SideMachine) handleCommand(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return m.handleStart(ctx, cmd.cfg)
	case cmdStop:
		return m.handleStop(ctx)
	case cmdUpdateConfig:
		return m.handleUpdateConfig(ctx, cmd.patch)
	case cmdResetCycle:
		return m.handleResetCycle(ctx)
	}
	return nil
}

func (m *SideMachine) handleStart(ctx context.Context, cfg state.StrategyConfig) error {
	snap := m.Store.Snapshot()
	st := snap.SideState(m.Side)

	switch st.Status {
	case state.StatusRunning, state.StatusBuying, state.StatusSelling:
		return ErrAlreadyRunning
	}
	if err := ValidateConfig(cfg); err != nil {
		log.Printf("⚠️ "+i18n.M().ConfigRejected, err)
		return err
	}

	// A halted side restarts into monitoring; its open ladder and cycle
	// counters are untouched. The next rung trigger re-runs the guard.
	if st.Status == state.StatusNoCoverage && st.OrderCountInCycle > 0 {
		return m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
			*c = cfg
			c.Enabled = true
			st.Status = state.StatusRunning
		})
	}

	price := m.price()
	if price <= 0 {
		return ErrNoPrice
	}
	if err := m.guard(cfg.PurchaseStep, price); err != nil {
		return err
	}
	if err := m.placeEntry(ctx, cfg, price, state.StatusStopped); err != nil {
		return err
	}
	log.Printf("🚀 "+i18n.M().SideStarted, m.Side, price)
	return nil
}

// placeEntry opens a cycle with a market order for the first rung.
func (m *SideMachine) placeEntry(ctx context.Context, cfg state.StrategyConfig, price float64, prev state.Status) error {
	placed, err := m.Orders.Place(ctx, m.Side, order.Intent{
		Symbol:  m.Symbol,
		Side:    common.Side(m.Side.EntryOrderSide()),
		Type:    common.OrderTypeMarket,
		Qty:     cfg.PurchaseStep / price,
		Purpose: order.PurposeEntry,
		Rung:    1,
	})
	if err != nil {
		return err
	}
	m.pending = &pendingOrder{trackID: placed.ID, purpose: order.PurposeEntry, rung: 1, prev: prev}
	return m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		*c = cfg
		c.Enabled = true
		st.Status = m.Side.PlacingStatus()
		st.LastOrder = &state.LastOrder{
			TrackID:  placed.ID,
			Side:     m.Side.EntryOrderSide(),
			Price:    price,
			Size:     cfg.PurchaseStep,
			PlacedAt: placed.PlacedAt,
		}
	})
}

func (m *SideMachine) handleStop(ctx context.Context) error {
	if m.pending != nil {
		if err := m.Orders.Cancel(ctx, m.Side); err != nil {
			log.Printf("⚠️ cancel on stop: %v", err)
		}
		m.pending = nil
	} else {
		m.Orders.Release(m.Side)
	}
	err := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		c.Enabled = false
		st.Status = state.StatusStopped
	})
	if err != nil {
		return err
	}
	log.Printf("🛑 "+i18n.M().SideStopped, m.Side)
	m.notify("info", "SideStopped", fmt.Sprintf(i18n.M().SideStopped, m.Side))
	return nil
}

func (m *SideMachine) handleUpdateConfig(ctx context.Context, patch ConfigPatch) error {
	snap := m.Store.Snapshot()
	merged := patch.apply(*snap.SideConfig(m.Side))
	if err := ValidateConfig(merged); err != nil {
		log.Printf("⚠️ "+i18n.M().ConfigRejected, err)
		return err
	}
	side := m.Side
	err := m.Store.UpdateSide(ctx, side, func(st *state.StrategyState, c *state.StrategyConfig) {
		enabled := c.Enabled
		*c = merged
		c.Enabled = enabled
		if st.OrderCountInCycle > 0 {
			st.TargetPrice = TargetPrice(st.AveragePrice, merged, side)
			recomputeCoverage(st, merged, side)
		}
	})
	if err != nil {
		return err
	}
	log.Printf("🔄 "+i18n.M().ConfigUpdated, m.Side)
	return nil
}

func (m *SideMachine) handleResetCycle(ctx context.Context) error {
	snap := m.Store.Snapshot()
	if snap.SideState(m.Side).Status != state.StatusStopped {
		log.Printf("⚠️ %s", i18n.M().CycleResetDenied)
		return ErrNotStopped
	}
	err := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		st.CycleCount = 0
		st.AveragePrice = 0
		st.AccumulatedAmount = 0
		st.OrderCountInCycle = 0
		st.LastRungPrice = 0
		st.LastRungSize = 0
		st.CoveragePrice = 0
		st.TargetPrice = 0
		st.LastOrder = nil
	})
	if err != nil {
		return err
	}
	log.Printf("🔄 "+i18n.M().CycleReset, m.Side)
	return nil
}

func (m *SideMachine) handleTick(ctx context.Context, price float64) {
	m.lastPrice = price
	if m.pending != nil {
		return
	}

	snap := m.Store.Snapshot()
	st := snap.SideState(m.Side)
	cfg := snap.SideConfig(m.Side)

	switch st.Status {
	case state.StatusRunning:
		if st.OrderCountInCycle > 0 && m.targetCrossed(st, price) {
			m.placeClose(ctx, st, price)
			return
		}
		if st.OrderCountInCycle > 0 {
			m.maybeExtend(ctx, st, *cfg, price)
		}
	case state.StatusNoCoverage:
		// A halted ladder can still take profit; it just cannot extend.
		if st.OrderCountInCycle > 0 && m.targetCrossed(st, price) {
			m.placeClose(ctx, st, price)
		}
	}
}

func (m *SideMachine) targetCrossed(st *state.StrategyState, price float64) bool {
	if st.TargetPrice <= 0 {
		return false
	}
	if m.Side == state.SideShort {
		return price <= st.TargetPrice
	}
	return price >= st.TargetPrice
}

// maybeExtend places the next safety rung when the price breaches its
// trigger, or halts the side when the guard rejects the rung.
func (m *SideMachine) maybeExtend(ctx context.Context, st *state.StrategyState, cfg state.StrategyConfig, price float64) {
	rungPrice, rungSize := NextRung(st.LastRungPrice, st.LastRungSize, st.OrderCountInCycle, cfg, m.Side)
	crossed := price <= rungPrice
	if m.Side == state.SideShort {
		crossed = price >= rungPrice
	}
	if !crossed {
		return
	}

	rung := st.OrderCountInCycle + 1
	if err := m.guard(rungSize, price); err != nil {
		uerr := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
			st.Status = state.StatusNoCoverage
		})
		if uerr != nil {
			log.Printf("💾 no-coverage transition failed: %v", uerr)
			return
		}
		log.Printf("❌ "+i18n.M().SideNoCoverage, m.Side, rung, rungSize)
		m.notify("warning", "SideNoCoverage", fmt.Sprintf(i18n.M().SideNoCoverage, m.Side, rung, rungSize))
		m.Bus.Publish(events.EventRiskAlert, events.RiskAlert{
			Severity: "warning",
			Code:     "NO_COVERAGE",
			Message:  fmt.Sprintf(i18n.M().SideNoCoverage, m.Side, rung, rungSize),
			Time:     time.Now(),
		})
		return
	}

	qty := rungSize / price
	placed, err := m.Orders.Place(ctx, m.Side, order.Intent{
		Symbol:  m.Symbol,
		Side:    common.Side(m.Side.EntryOrderSide()),
		Type:    common.OrderTypeMarket,
		Qty:     qty,
		Purpose: order.PurposeSafety,
		Rung:    rung,
	})
	if err != nil {
		if !errors.Is(err, order.ErrOrderInFlight) {
			log.Printf("❌ safety order: %v", err)
		}
		return
	}
	m.pending = &pendingOrder{trackID: placed.ID, purpose: order.PurposeSafety, rung: rung, prev: state.StatusRunning}
	if err := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		st.Status = m.Side.PlacingStatus()
		st.LastOrder = &state.LastOrder{
			TrackID:  placed.ID,
			Side:     m.Side.EntryOrderSide(),
			Price:    price,
			Size:     rungSize,
			PlacedAt: placed.PlacedAt,
		}
	}); err != nil {
		log.Printf("💾 safety transition failed: %v", err)
	}
	log.Printf("📉 "+i18n.M().SafetyOrderSent, m.Side, rung, qty, price)
}

// placeClose liquidates the accumulated position with a market order on
// the opposite side.
func (m *SideMachine) placeClose(ctx context.Context, st *state.StrategyState, price float64) {
	prev := st.Status
	placed, err := m.Orders.Place(ctx, m.Side, order.Intent{
		Symbol:  m.Symbol,
		Side:    common.Side(m.Side.CloseOrderSide()),
		Type:    common.OrderTypeMarket,
		Qty:     st.AccumulatedAmount,
		Purpose: order.PurposeClose,
	})
	if err != nil {
		if !errors.Is(err, order.ErrOrderInFlight) {
			log.Printf("❌ close order: %v", err)
		}
		return
	}
	m.pending = &pendingOrder{trackID: placed.ID, purpose: order.PurposeClose, prev: prev}
	if err := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		st.Status = m.Side.PlacingStatus()
		st.LastOrder = &state.LastOrder{
			TrackID:  placed.ID,
			Side:     m.Side.CloseOrderSide(),
			Price:    price,
			Size:     st.AccumulatedAmount * price,
			PlacedAt: placed.PlacedAt,
		}
	}); err != nil {
		log.Printf("💾 close transition failed: %v", err)
	}
	log.Printf("💰 "+i18n.M().CloseOrderSent, m.Side, st.AccumulatedAmount, price, st.TargetPrice)
}

func (m *SideMachine) handleFilled(ctx context.Context, upd events.OrderUpdate) {
	if upd.Side != string(m.Side) {
		return
	}
	if m.pending == nil || m.pending.trackID != upd.TrackID {
		log.Printf("🔒 "+i18n.M().LateConfirmIgnored, upd.TrackID)
		return
	}
	pending := m.pending
	m.pending = nil

	if pending.purpose == order.PurposeClose {
		m.settleClose(ctx, upd)
		return
	}

	side := m.Side
	err := m.Store.UpdateSide(ctx, side, func(st *state.StrategyState, cfg *state.StrategyConfig) {
		fillPrice := upd.AvgFillPrice
		if fillPrice <= 0 {
			fillPrice = upd.Price
		}
		fillQty := upd.ExecQty
		newAccum := st.AccumulatedAmount + fillQty
		if newAccum > 0 {
			st.AveragePrice = (st.AveragePrice*st.AccumulatedAmount + fillPrice*fillQty) / newAccum
		}
		st.AccumulatedAmount = newAccum
		st.OrderCountInCycle++
		st.LastRungPrice = fillPrice
		st.LastRungSize = fillPrice * fillQty
		st.TargetPrice = TargetPrice(st.AveragePrice, *cfg, side)
		recomputeCoverage(st, *cfg, side)
		if st.LastOrder != nil && st.LastOrder.TrackID == upd.TrackID {
			st.LastOrder.ExchangeOrderID = upd.ExchangeOrderID
			st.LastOrder.Price = fillPrice
		}
		st.Status = state.StatusRunning
	})
	if err != nil {
		log.Printf("💾 fill transition failed: %v", err)
	}
}

// settleClose finalizes a cycle: counts it, clears ladder bookkeeping, and
// either parks the side or rolls straight into the next cycle.
func (m *SideMachine) settleClose(ctx context.Context, upd events.OrderUpdate) {
	snap := m.Store.Snapshot()
	st := snap.SideState(m.Side)
	cfg := *snap.SideConfig(m.Side)

	fillPrice := upd.AvgFillPrice
	if fillPrice <= 0 {
		fillPrice = upd.Price
	}
	pnl := (fillPrice - st.AveragePrice) * upd.ExecQty
	if m.Side == state.SideShort {
		pnl = -pnl
	}

	var cycle int
	err := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		st.CycleCount++
		cycle = st.CycleCount
		st.AveragePrice = 0
		st.AccumulatedAmount = 0
		st.OrderCountInCycle = 0
		st.LastRungPrice = 0
		st.LastRungSize = 0
		st.CoveragePrice = 0
		st.TargetPrice = 0
		if st.LastOrder != nil && st.LastOrder.TrackID == upd.TrackID {
			st.LastOrder.ExchangeOrderID = upd.ExchangeOrderID
		}
		if c.StopAtCycleEnd {
			c.Enabled = false
			st.Status = state.StatusStopped
		} else {
			st.Status = state.StatusRunning
		}
	})
	if err != nil {
		log.Printf("💾 cycle settle failed: %v", err)
		return
	}
	log.Printf("💰 "+i18n.M().CycleCompleted, m.Side, cycle, pnl)
	m.notify("info", "CycleCompleted", fmt.Sprintf(i18n.M().CycleCompleted, m.Side, cycle, pnl))

	if m.Settler != nil {
		if err := m.Settler.SettleCycle(ctx, pnl); err != nil {
			log.Printf("⚠️ cycle settle not applied: %v", err)
		}
	}

	if cfg.StopAtCycleEnd {
		return
	}

	// Roll into the next cycle with a fresh entry. A failed guard parks
	// the side instead of halting it: there is no open ladder to protect.
	price := m.price()
	if price <= 0 {
		price = fillPrice
	}
	if err := m.guard(cfg.PurchaseStep, price); err != nil {
		m.parkAfterClose(ctx, err)
		return
	}
	if err := m.placeEntry(ctx, cfg, price, state.StatusStopped); err != nil {
		m.parkAfterClose(ctx, err)
	}
}

func (m *SideMachine) parkAfterClose(ctx context.Context, cause error) {
	log.Printf("⚠️ next cycle not started: %v", cause)
	m.notify("warning", "SideStopped", fmt.Sprintf(i18n.M().SideStopped, m.Side))
	if err := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		c.Enabled = false
		st.Status = state.StatusStopped
	}); err != nil {
		log.Printf("💾 park transition failed: %v", err)
	}
}

// handleAborted rolls the side back to its pre-placement status when an
// order fails or is cancelled out from under it.
func (m *SideMachine) handleAborted(ctx context.Context, upd events.OrderUpdate, cancelled bool) {
	if upd.Side != string(m.Side) {
		return
	}
	if m.pending == nil || m.pending.trackID != upd.TrackID {
		return
	}
	prev := m.pending.prev
	m.pending = nil

	if err := m.Store.UpdateSide(ctx, m.Side, func(st *state.StrategyState, c *state.StrategyConfig) {
		st.Status = prev
		if prev == state.StatusStopped {
			c.Enabled = false
		}
	}); err != nil {
		log.Printf("💾 abort transition failed: %v", err)
		return
	}
	if !cancelled {
		m.notify("warning", "OrderFailed", fmt.Sprintf(i18n.M().OrderFailed, upd.TrackID, upd.Reason))
	}
}

// guard validates a rung's quote size against the exchange minimum and the
// spendable balance for this side's funding asset.
func (m *SideMachine) guard(quoteSize, price float64) error {
	available := m.Balances.Available(m.QuoteAsset)
	if m.Side == state.SideShort {
		available = m.Balances.Available(m.BaseAsset) * price
	}
	res := balance.Validate(quoteSize, m.MinNotional, available)
	if res.OK {
		return nil
	}
	switch res.Reason {
	case balance.RejectBelowMinimum:
		return fmt.Errorf(i18n.M().BelowMinimumOrder, quoteSize, m.MinNotional)
	default:
		return fmt.Errorf(i18n.M().InsufficientBalance, quoteSize, available)
	}
}

func (m *SideMachine) price() float64 {
	if m.lastPrice > 0 {
		return m.lastPrice
	}
	if m.Prices != nil {
		if p, ok := m.Prices.Get(m.Symbol); ok {
			return p
		}
	}
	return 0
}

func (m *SideMachine) notify(level, key, msg string) {
	if m.Bus == nil {
		return
	}
	m.Bus.Publish(events.EventNotification, events.Notification{
		Level:   level,
		Key:     key,
		Message: msg,
		Time:    time.Now(),
	})
}

// recomputeCoverage re-simulates the remainder of the ladder from the last
// filled rung and the budget not yet spent.
func recomputeCoverage(st *state.StrategyState, cfg state.StrategyConfig, side state.Side) {
	remaining := cfg.AmountBase - st.AveragePrice*st.AccumulatedAmount
	price, size := st.LastRungPrice, st.LastRungSize
	st.CoveragePrice = price
	n := st.OrderCountInCycle
	for n > 0 {
		nextPrice, nextSize := step(price, size, n, cfg, side)
		if nextSize <= 0 || nextPrice <= 0 || remaining < nextSize {
			break
		}
		remaining -= nextSize
		price, size = nextPrice, nextSize
		st.CoveragePrice = price
		n++
	}
}
