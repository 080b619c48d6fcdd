package paper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"dca-core/pkg/exchanges/common"
)

// SimConfig tunes the fill simulation.
type SimConfig struct {
	FeeRate     float64 // decimal, e.g. 0.001 = 10 bps
	SlippageBps float64 // basis points applied against market fills
}

// Gateway simulates a spot exchange in memory. Limit orders rest until a
// price update crosses them; market orders fill at the last seen price.
// It implements common.Gateway so the rest of the engine cannot tell it
// apart from the live client.
type Gateway struct {
	cfg SimConfig
	rng *rand.Rand

	mu       sync.RWMutex
	balances map[string]*common.AssetBalance
	orders   map[string]*paperOrder
	prices   map[string]float64
	seq      int64
}

type paperOrder struct {
	details common.OrderDetails
	created time.Time
}

// New creates a paper gateway seeded with starting balances keyed by asset.
func New(cfg SimConfig, initialBalances map[string]float64) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		balances: make(map[string]*common.AssetBalance),
		orders:   make(map[string]*paperOrder),
		prices:   make(map[string]float64),
	}
	for asset, amount := range initialBalances {
		g.balances[asset] = &common.AssetBalance{Asset: asset, Free: amount}
	}
	return g
}

// SetPrice feeds a market price into the simulation. Resting limit orders
// that the price crosses are filled.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price

	for _, po := range g.orders {
		d := &po.details
		if d.Symbol != symbol || !d.Status.IsOpen() || d.Type != common.OrderTypeLimit {
			continue
		}
		crossed := (d.Side == common.SideBuy && price <= d.Price) ||
			(d.Side == common.SideSell && price >= d.Price)
		if crossed {
			g.fillLocked(d, d.Price)
		}
	}
}

func (g *Gateway) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.Qty <= 0 {
		return common.OrderResult{}, fmt.Errorf("paper: invalid quantity %.8f", req.Qty)
	}

	g.seq++
	id := strconv.FormatInt(g.seq, 10)
	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	d := common.OrderDetails{
		ExchangeOrderID: id,
		ClientOrderID:   clientID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Price:           req.Price,
		OrigQty:         req.Qty,
		Status:          common.StatusNew,
	}

	switch req.Type {
	case common.OrderTypeMarket:
		price, ok := g.prices[req.Symbol]
		if !ok || price <= 0 {
			return common.OrderResult{}, fmt.Errorf("paper: no market price for %s", req.Symbol)
		}
		if g.cfg.SlippageBps > 0 {
			noise := g.rng.Float64() * g.cfg.SlippageBps / 10000.0
			if req.Side == common.SideBuy {
				price *= 1 + noise
			} else {
				price *= 1 - noise
			}
		}
		if err := g.checkFunds(req, price); err != nil {
			return common.OrderResult{}, err
		}
		g.orders[id] = &paperOrder{details: d, created: time.Now()}
		g.fillLocked(&g.orders[id].details, price)
	case common.OrderTypeLimit:
		if req.Price <= 0 {
			return common.OrderResult{}, fmt.Errorf("paper: limit order requires price")
		}
		if err := g.checkFunds(req, req.Price); err != nil {
			return common.OrderResult{}, err
		}
		g.reserveLocked(req)
		g.orders[id] = &paperOrder{details: d, created: time.Now()}
		// Fill immediately if already marketable.
		if last, ok := g.prices[req.Symbol]; ok && last > 0 {
			marketable := (req.Side == common.SideBuy && last <= req.Price) ||
				(req.Side == common.SideSell && last >= req.Price)
			if marketable {
				g.fillLocked(&g.orders[id].details, req.Price)
			}
		}
	default:
		return common.OrderResult{}, fmt.Errorf("paper: unsupported order type %s", req.Type)
	}

	od := g.orders[id].details
	log.Printf("📝 paper order: %s %s %s qty=%.8f price=%.8f status=%s",
		od.Side, od.Type, od.Symbol, od.OrigQty, od.Price, od.Status)

	return common.OrderResult{
		ExchangeOrderID: id,
		Status:          od.Status,
		ClientID:        clientID,
	}, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	po, ok := g.orders[exchangeOrderID]
	if !ok || po.details.Symbol != symbol {
		return fmt.Errorf("paper: order %s not found", exchangeOrderID)
	}
	if !po.details.Status.IsOpen() {
		return fmt.Errorf("paper: order %s is %s", exchangeOrderID, po.details.Status)
	}
	g.releaseLocked(po.details)
	po.details.Status = common.StatusCanceled
	return nil
}

func (g *Gateway) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (common.OrderDetails, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	po, ok := g.orders[exchangeOrderID]
	if !ok || po.details.Symbol != symbol {
		return common.OrderDetails{}, fmt.Errorf("paper: order %s not found", exchangeOrderID)
	}
	return po.details, nil
}

func (g *Gateway) GetOpenOrders(ctx context.Context, symbol string) ([]common.OrderDetails, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []common.OrderDetails
	for _, po := range g.orders {
		if po.details.Status.IsOpen() && (symbol == "" || po.details.Symbol == symbol) {
			out = append(out, po.details)
		}
	}
	return out, nil
}

func (g *Gateway) GetBalances(ctx context.Context) ([]common.AssetBalance, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]common.AssetBalance, 0, len(g.balances))
	for _, b := range g.balances {
		out = append(out, *b)
	}
	return out, nil
}

func (g *Gateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	price, ok := g.prices[symbol]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("paper: no market price for %s", symbol)
	}
	return price, nil
}

// checkFunds verifies the account can cover the order at the given price.
func (g *Gateway) checkFunds(req common.OrderRequest, price float64) error {
	base, quote := splitSymbol(req.Symbol)
	if req.Side == common.SideBuy {
		need := req.Qty * price
		have := g.freeLocked(quote)
		if need > have {
			return fmt.Errorf("paper: insufficient %s: need %.8f, have %.8f", quote, need, have)
		}
		return nil
	}
	have := g.freeLocked(base)
	if req.Qty > have {
		return fmt.Errorf("paper: insufficient %s: need %.8f, have %.8f", base, req.Qty, have)
	}
	return nil
}

// reserveLocked moves funds from free to locked for a resting limit order.
func (g *Gateway) reserveLocked(req common.OrderRequest) {
	base, quote := splitSymbol(req.Symbol)
	if req.Side == common.SideBuy {
		b := g.ensureAsset(quote)
		amount := req.Qty * req.Price
		b.Free -= amount
		b.Locked += amount
		return
	}
	b := g.ensureAsset(base)
	b.Free -= req.Qty
	b.Locked += req.Qty
}

// releaseLocked returns reserved funds on cancel.
func (g *Gateway) releaseLocked(d common.OrderDetails) {
	base, quote := splitSymbol(d.Symbol)
	remaining := d.OrigQty - d.ExecQty
	if d.Side == common.SideBuy {
		b := g.ensureAsset(quote)
		amount := remaining * d.Price
		b.Locked -= amount
		b.Free += amount
		return
	}
	b := g.ensureAsset(base)
	b.Locked -= remaining
	b.Free += remaining
}

// fillLocked settles an order at the given price. Fees are charged on the
// quote leg.
func (g *Gateway) fillLocked(d *common.OrderDetails, price float64) {
	base, quote := splitSymbol(d.Symbol)
	qty := d.OrigQty - d.ExecQty
	value := qty * price
	fee := value * g.cfg.FeeRate

	baseBal := g.ensureAsset(base)
	quoteBal := g.ensureAsset(quote)

	if d.Side == common.SideBuy {
		if d.Type == common.OrderTypeLimit {
			quoteBal.Locked -= qty * d.Price
			// Limit fills at the limit price; refund nothing extra.
		} else {
			quoteBal.Free -= value
		}
		quoteBal.Free -= fee
		baseBal.Free += qty
	} else {
		if d.Type == common.OrderTypeLimit {
			baseBal.Locked -= qty
		} else {
			baseBal.Free -= qty
		}
		quoteBal.Free += value - fee
	}

	d.ExecQty = d.OrigQty
	d.AvgFillPrice = price
	d.Status = common.StatusFilled

	log.Printf("💰 paper fill: %s %s qty=%.8f price=%.8f fee=%.8f",
		d.Side, d.Symbol, qty, price, fee)
}

func (g *Gateway) freeLocked(asset string) float64 {
	if b, ok := g.balances[asset]; ok {
		return b.Free
	}
	return 0
}

func (g *Gateway) ensureAsset(asset string) *common.AssetBalance {
	b, ok := g.balances[asset]
	if !ok {
		b = &common.AssetBalance{Asset: asset}
		g.balances[asset] = b
	}
	return b
}

// splitSymbol breaks a pair like BTCUSDT into base and quote assets.
func splitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "FDUSD", "USDC", "BUSD", "BTC", "ETH", "BNB"} {
		if len(symbol) > len(q) && symbol[len(symbol)-len(q):] == q {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	// Fallback: assume a 4-char quote asset.
	if len(symbol) > 4 {
		return symbol[:len(symbol)-4], symbol[len(symbol)-4:]
	}
	return symbol, ""
}
