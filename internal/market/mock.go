package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"dca-core/internal/events"
	"dca-core/pkg/cache"
)

// MockFeed generates synthetic ticks for local development and dry runs.
type MockFeed struct {
	Bus        *events.Bus
	Cache      *cache.ShardedPriceCache
	Symbol     string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("⚠️ mock feed: bus not set")
		return
	}
	if m.Symbol == "" {
		m.Symbol = "BTCUSDT"
	}
	price := m.StartPrice
	if price == 0 {
		price = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				// simple random walk
				price += (rand.Float64()*2 - 1) * m.Step
				if price <= 0 {
					price = m.Step
				}
				if m.Cache != nil {
					m.Cache.Set(m.Symbol, price)
				}
				m.Bus.Publish(events.EventPriceTick, events.PriceTick{
					Symbol: m.Symbol,
					Price:  price,
					Time:   time.Now().UnixMilli(),
				})
			}
		}
	}()
}
