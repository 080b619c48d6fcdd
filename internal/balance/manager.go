package balance

import (
	"context"
	"log"
	"sync"
	"time"

	"dca-core/internal/events"
	"dca-core/pkg/exchanges/common"
)

// Manager caches per-asset account balances, refreshed from the gateway on
// an interval and on demand.
type Manager struct {
	gateway      common.Gateway
	bus          *events.Bus
	syncInterval time.Duration

	mu       sync.RWMutex
	balances map[string]common.AssetBalance
	lastSync time.Time
}

// NewManager creates a balance manager.
func NewManager(gateway common.Gateway, bus *events.Bus, syncInterval time.Duration) *Manager {
	if syncInterval <= 0 {
		syncInterval = 30 * time.Second
	}
	return &Manager{
		gateway:      gateway,
		bus:          bus,
		syncInterval: syncInterval,
		balances:     make(map[string]common.AssetBalance),
	}
}

// Start does an initial sync and then refreshes periodically until ctx ends.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		log.Printf("❌ balance sync error: %v", err)
	}

	go func() {
		ticker := time.NewTicker(m.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("❌ balance sync error: %v", err)
				}
			}
		}
	}()
}

// Sync fetches the latest balances from the gateway.
func (m *Manager) Sync(ctx context.Context) error {
	if m.gateway == nil {
		return nil
	}

	balances, err := m.gateway.GetBalances(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.balances = make(map[string]common.AssetBalance, len(balances))
	for _, b := range balances {
		m.balances[b.Asset] = b
	}
	m.lastSync = time.Now()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(events.EventBalanceUpdate, m.Snapshot())
	}
	return nil
}

// Apply overwrites a single asset's cached balance, used by the user data
// stream which pushes balance deltas faster than the poll.
func (m *Manager) Apply(b common.AssetBalance) {
	m.mu.Lock()
	m.balances[b.Asset] = b
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(events.EventBalanceUpdate, m.Snapshot())
	}
}

// Available returns the free balance for an asset.
func (m *Manager) Available(asset string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[asset].Free
}

// Snapshot returns a copy of all cached balances.
func (m *Manager) Snapshot() map[string]common.AssetBalance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]common.AssetBalance, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out
}

// LastSync reports when balances were last refreshed.
func (m *Manager) LastSync() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}
