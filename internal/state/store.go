package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"dca-core/internal/events"
	"dca-core/pkg/db"
)

// Store keeps the in-memory root document while persisting to sqlite for
// durability. Mutations go through Update* so every transition is persisted
// and broadcast.
type Store struct {
	mu        sync.RWMutex
	root      BotRootState
	db        *db.Database
	bus       *events.Bus
	firstBoot bool
}

func NewStore(database *db.Database, bus *events.Bus, name, symbol string) *Store {
	return &Store{
		db:  database,
		bus: bus,
		root: BotRootState{
			Name:     name,
			Symbol:   symbol,
			Long:     StrategyState{Status: StatusStopped},
			Short:    StrategyState{Status: StatusStopped},
			AI:       AIRiskState{State: AIRunning, MinTradeFloor: 5},
			Balances: make(map[string]Balance),
		},
	}
}

// Load seeds the in-memory document from the DB, keeping defaults on first
// boot.
func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	row, err := s.db.LoadBotState(ctx, s.root.Name)
	if err == db.ErrNotFound {
		log.Printf("💾 no persisted state for %s, starting fresh", s.root.Name)
		s.firstBoot = true
		return s.persist(ctx)
	}
	if err != nil {
		return fmt.Errorf("load bot state: %w", err)
	}

	var loaded BotRootState
	if err := json.Unmarshal([]byte(row.StateData), &loaded); err != nil {
		return fmt.Errorf("decode bot state: %w", err)
	}
	if loaded.Balances == nil {
		loaded.Balances = make(map[string]Balance)
	}
	// Name and symbol come from config, not the stored blob.
	loaded.Name = s.root.Name
	if loaded.Symbol == "" {
		loaded.Symbol = s.root.Symbol
	}

	s.mu.Lock()
	s.root = loaded
	s.mu.Unlock()
	log.Printf("💾 state loaded for %s (long=%s short=%s cycle L%d/S%d)",
		loaded.Name, loaded.Long.Status, loaded.Short.Status,
		loaded.Long.CycleCount, loaded.Short.CycleCount)
	return nil
}

// FirstBoot reports whether Load found no persisted row, meaning the
// document still holds built-in defaults that seeding may overwrite.
func (s *Store) FirstBoot() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstBoot
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() BotRootState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root.clone()
}

// UpdateSide mutates one side's state and config subtree, persists and
// broadcasts.
func (s *Store) UpdateSide(ctx context.Context, side Side, fn func(st *StrategyState, cfg *StrategyConfig)) error {
	s.mu.Lock()
	fn(s.root.SideState(side), s.root.SideConfig(side))
	s.root.UpdatedAt = time.Now()
	err := s.persistLocked(ctx)
	snap := s.root.clone()
	s.mu.Unlock()

	s.publish(snap)
	return err
}

// UpdateAI mutates the AI subtree, persists and broadcasts.
func (s *Store) UpdateAI(ctx context.Context, fn func(ai *AIRiskState)) error {
	s.mu.Lock()
	fn(&s.root.AI)
	s.root.UpdatedAt = time.Now()
	err := s.persistLocked(ctx)
	snap := s.root.clone()
	s.mu.Unlock()

	s.publish(snap)
	return err
}

// SetBalances replaces the cached balances, persists and broadcasts.
func (s *Store) SetBalances(ctx context.Context, balances map[string]Balance) error {
	s.mu.Lock()
	s.root.Balances = make(map[string]Balance, len(balances))
	for k, v := range balances {
		s.root.Balances[k] = v
	}
	s.root.UpdatedAt = time.Now()
	err := s.persistLocked(ctx)
	snap := s.root.clone()
	s.mu.Unlock()

	s.publish(snap)
	return err
}

// SetPrice records the latest tick in memory only; ticks are too frequent to
// persist and observers already receive them on the price topic.
func (s *Store) SetPrice(price float64) {
	s.mu.Lock()
	s.root.Price = price
	s.mu.Unlock()
}

// Persist forces a write of the current document, used at shutdown.
func (s *Store) Persist(ctx context.Context) error {
	return s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	data, err := json.Marshal(s.root)
	if err != nil {
		return fmt.Errorf("encode bot state: %w", err)
	}
	if err := s.db.SaveBotState(ctx, s.root.Name, string(data)); err != nil {
		return fmt.Errorf("save bot state: %w", err)
	}
	return nil
}

func (s *Store) publish(snap BotRootState) {
	if s.bus != nil {
		s.bus.Publish(events.EventStateUpdate, snap)
	}
}
