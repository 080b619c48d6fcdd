package market

import (
	"context"
	"log"
	"time"

	"dca-core/internal/events"
	"dca-core/pkg/cache"
	market "dca-core/pkg/market/binance"
)

// Feed streams best bid/ask from Binance, caches the mid price and
// publishes ticks to the event bus. The stream reconnects with backoff
// and a REST poll covers gaps while disconnected.
type Feed struct {
	Stream *market.StreamClient
	Data   *market.MarketDataClient
	Bus    *events.Bus
	Cache  *cache.ShardedPriceCache
	Symbol string

	PollInterval time.Duration
}

// Start launches the streaming and fallback goroutines and returns.
func (f *Feed) Start(ctx context.Context) {
	if f.Bus == nil || f.Stream == nil || f.Symbol == "" {
		log.Println("⚠️ market feed not fully configured; skipping start")
		return
	}
	if f.PollInterval == 0 {
		f.PollInterval = 30 * time.Second
	}

	go f.runStream(ctx)
	if f.Data != nil {
		go f.pollSnapshots(ctx)
	}
}

func (f *Feed) runStream(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, stop, err := f.Stream.SubscribeBookTicker(ctx, f.Symbol)
		if err != nil {
			log.Printf("⚠️ market feed: subscribe %s: %v (retry in %s)", f.Symbol, err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		log.Printf("✓ market feed connected: %s", f.Symbol)
		for bt := range ch {
			f.publish(bt.Symbol, bt.Mid(), bt.Time)
		}
		stop()
		log.Printf("🔄 market feed disconnected: %s, reconnecting", f.Symbol)
	}
}

// pollSnapshots papers over stream gaps with REST price snapshots.
func (f *Feed) pollSnapshots(ctx context.Context) {
	ticker := time.NewTicker(f.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f.Cache != nil {
				if _, age, ok := f.Cache.GetWithAge(f.Symbol); ok && age < f.PollInterval {
					continue
				}
			}
			price, err := f.Data.TickerPrice(ctx, f.Symbol)
			if err != nil {
				log.Printf("⚠️ market feed snapshot %s: %v", f.Symbol, err)
				continue
			}
			f.publish(f.Symbol, price, time.Now().UnixMilli())
		}
	}
}

func (f *Feed) publish(symbol string, price float64, ts int64) {
	if price <= 0 {
		return
	}
	if f.Cache != nil {
		f.Cache.Set(symbol, price)
	}
	f.Bus.Publish(events.EventPriceTick, events.PriceTick{
		Symbol: symbol,
		Price:  price,
		Time:   ts,
	})
}
