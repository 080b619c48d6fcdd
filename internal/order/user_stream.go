package order

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dca-core/internal/events"
	"dca-core/internal/persistence"
	"dca-core/pkg/db"
	exspot "dca-core/pkg/exchanges/binance/spot"
	"dca-core/pkg/exchanges/common"
	"dca-core/pkg/i18n"
)

// BalanceApplier receives single-asset balance deltas from the stream.
type BalanceApplier interface {
	Apply(b common.AssetBalance)
}

// StreamBridge consumes the Binance user data stream and keeps local
// bookkeeping hot: order audit rows, batched fill rows, the live open-order
// set, and stream-pushed balances. Order outcome authority stays with the
// Tracker's confirmation polls; the bridge only mirrors what the venue says.
type StreamBridge struct {
	Client   *exspot.Client
	DB       *db.Database
	Bus      *events.Bus
	Fills    *persistence.FillWriter
	Balances BalanceApplier

	mu   sync.Mutex
	open map[string]common.OrderDetails // exchange order id -> details
	stop chan struct{}
	once sync.Once
}

func NewStreamBridge(client *exspot.Client, database *db.Database, bus *events.Bus, fills *persistence.FillWriter, balances BalanceApplier) *StreamBridge {
	return &StreamBridge{
		Client:   client,
		DB:       database,
		Bus:      bus,
		Fills:    fills,
		Balances: balances,
		open:     make(map[string]common.OrderDetails),
		stop:     make(chan struct{}),
	}
}

// OpenOrders returns the current stream-maintained open set.
func (b *StreamBridge) OpenOrders() []common.OrderDetails {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]common.OrderDetails, 0, len(b.open))
	for _, o := range b.open {
		out = append(out, o)
	}
	return out
}

// Start runs the stream until ctx ends, reconnecting with backoff.
func (b *StreamBridge) Start(ctx context.Context) {
	if b.Client == nil {
		log.Println("stream bridge: no exchange client; skipping")
		return
	}
	go b.run(ctx)
}

func (b *StreamBridge) Stop() {
	b.once.Do(func() { close(b.stop) })
}

func (b *StreamBridge) run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		default:
		}

		if err := b.serve(ctx); err != nil {
			log.Printf("⚠️ "+i18n.M().UserStreamDisconnect, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// serve holds one listen-key session open: dial, keepalive, read loop.
func (b *StreamBridge) serve(ctx context.Context) error {
	listenKey, err := b.Client.CreateListenKey(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.Client.CloseListenKey(closeCtx, listenKey); err != nil {
			log.Printf("stream bridge: close listen key: %v", err)
		}
		cancel()
	}()

	conn, _, err := websocket.DefaultDialer.Dial(b.Client.StreamURL(listenKey), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("✓ %s", i18n.M().UserStreamConnected)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-b.stop:
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := b.Client.KeepAliveListenKey(ctx, listenKey); err != nil {
					log.Printf("stream bridge keepalive: %v", err)
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		b.handleMessage(ctx, msg)
	}
}

func (b *StreamBridge) handleMessage(ctx context.Context, msg []byte) {
	// The event type can arrive with a non-string payload on some frames;
	// decode it separately before committing to a struct.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		log.Printf("stream bridge parse error: %v", err)
		return
	}
	v, ok := raw["e"]
	if !ok {
		return
	}
	var eventType string
	if err := json.Unmarshal(v, &eventType); err != nil {
		return
	}

	switch eventType {
	case "executionReport":
		b.handleExecutionReport(ctx, msg)
	case "outboundAccountPosition":
		b.handleAccountPosition(msg)
	default:
	}
}

func (b *StreamBridge) handleExecutionReport(ctx context.Context, msg []byte) {
	var rep events.ExecutionReport
	if err := json.Unmarshal(msg, &rep); err != nil {
		log.Printf("stream bridge: execution report parse error: %v", err)
		return
	}

	b.updateOpenSet(rep)

	if rep.ExecType != "TRADE" {
		return
	}

	lastQty := parseFloat(rep.LastQty)
	lastPrice := parseFloat(rep.LastPrice)
	cumQty := parseFloat(rep.CumulativeQty)

	if b.DB != nil && rep.ClientOrderID != "" {
		if err := b.DB.UpdateOrderFill(ctx, rep.ClientOrderID, rep.Status, cumQty); err != nil {
			log.Printf("stream bridge: order fill update error: %v", err)
		}
	}
	if b.Fills != nil {
		b.Fills.Add(db.Fill{
			ID:              uuid.NewString(),
			OrderID:         rep.ClientOrderID,
			ExchangeOrderID: strconv.FormatInt(rep.OrderID, 10),
			Symbol:          rep.Symbol,
			Side:            rep.Side,
			Price:           lastPrice,
			Qty:             lastQty,
			Fee:             parseFloat(rep.Commission),
			FeeAsset:        rep.CommissionAsset,
			TradeID:         rep.TradeID,
			CreatedAt:       time.UnixMilli(rep.TransactTime),
		})
	}
}

// updateOpenSet tracks which exchange orders are still working and
// broadcasts the set on every change.
func (b *StreamBridge) updateOpenSet(rep events.ExecutionReport) {
	id := strconv.FormatInt(rep.OrderID, 10)
	status := common.OrderStatus(rep.Status)

	b.mu.Lock()
	if status.IsOpen() {
		b.open[id] = common.OrderDetails{
			ExchangeOrderID: id,
			ClientOrderID:   rep.ClientOrderID,
			Symbol:          rep.Symbol,
			Side:            common.Side(rep.Side),
			Type:            common.OrderType(rep.OrderType),
			Price:           parseFloat(rep.Price),
			OrigQty:         parseFloat(rep.Qty),
			ExecQty:         parseFloat(rep.CumulativeQty),
			Status:          status,
		}
	} else {
		delete(b.open, id)
	}
	snapshot := make([]common.OrderDetails, 0, len(b.open))
	for _, o := range b.open {
		snapshot = append(snapshot, o)
	}
	b.mu.Unlock()

	if b.Bus != nil {
		b.Bus.Publish(events.EventOpenOrders, snapshot)
	}
}

func (b *StreamBridge) handleAccountPosition(msg []byte) {
	var pos events.OutboundAccountPosition
	if err := json.Unmarshal(msg, &pos); err != nil {
		log.Printf("stream bridge: account position parse error: %v", err)
		return
	}
	if b.Balances == nil {
		return
	}
	for _, bal := range pos.Balances {
		b.Balances.Apply(common.AssetBalance{
			Asset:  bal.Asset,
			Free:   parseFloat(bal.Free),
			Locked: parseFloat(bal.Locked),
		})
	}
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
