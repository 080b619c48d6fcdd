package reconciliation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"dca-core/internal/events"
	"dca-core/pkg/db"
	"dca-core/pkg/exchanges/common"
	"dca-core/pkg/i18n"
)

// Report is the outcome of one reconciliation pass.
type Report struct {
	Symbol          string    `json:"symbol"`
	Timestamp       time.Time `json:"timestamp"`
	LocalOpen       int       `json:"localOpen"`
	ExchangeOpen    int       `json:"exchangeOpen"`
	MissingLocal    []string  `json:"missingLocal"`    // exchange knows them, we do not
	MissingExchange []string  `json:"missingExchange"` // we track them, exchange does not
}

// Clean reports whether both views agree.
func (r *Report) Clean() bool {
	return len(r.MissingLocal) == 0 && len(r.MissingExchange) == 0
}

// Service compares locally tracked open orders against the exchange's view,
// once at boot and then periodically. Mismatches are recorded and alerted,
// never auto-healed: resolving a divergent order book is an operator call.
type Service struct {
	Gateway  common.Gateway
	Database *db.Database
	Bus      *events.Bus
	Symbol   string
	Interval time.Duration

	mu sync.Mutex
}

func NewService(gw common.Gateway, database *db.Database, bus *events.Bus, symbol string, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{Gateway: gw, Database: database, Bus: bus, Symbol: symbol, Interval: interval}
}

// Start runs the boot pass immediately, then ticks until ctx ends.
func (s *Service) Start(ctx context.Context) {
	go func() {
		if _, err := s.Reconcile(ctx); err != nil {
			log.Printf("❌ reconciliation: %v", err)
		}
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Reconcile(ctx); err != nil {
					log.Printf("❌ reconciliation: %v", err)
				}
			}
		}
	}()
	log.Printf("✓ %s", i18n.M().ReconStarted)
}

// Reconcile performs one pass and persists the report when views diverge.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &Report{Symbol: s.Symbol, Timestamp: time.Now()}
	if s.Gateway == nil {
		return report, nil
	}

	exchangeOrders, err := s.Gateway.GetOpenOrders(ctx, s.Symbol)
	if err != nil {
		return nil, fmt.Errorf("exchange open orders: %w", err)
	}
	localOrders, err := s.Database.ListOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("local open orders: %w", err)
	}

	exchangeIDs := make(map[string]bool, len(exchangeOrders))
	for _, o := range exchangeOrders {
		exchangeIDs[o.ExchangeOrderID] = true
	}
	localIDs := make(map[string]bool, len(localOrders))
	for _, o := range localOrders {
		if o.Symbol != s.Symbol {
			continue
		}
		if o.ExchangeOrderID != "" {
			localIDs[o.ExchangeOrderID] = true
		}
	}

	report.LocalOpen = len(localIDs)
	report.ExchangeOpen = len(exchangeIDs)
	for id := range exchangeIDs {
		if !localIDs[id] {
			report.MissingLocal = append(report.MissingLocal, id)
		}
	}
	for id := range localIDs {
		if !exchangeIDs[id] {
			report.MissingExchange = append(report.MissingExchange, id)
		}
	}

	if report.Clean() {
		log.Printf("📊 "+i18n.M().ReconClean, s.Symbol)
		return report, nil
	}

	msg := fmt.Sprintf(i18n.M().ReconMismatch, s.Symbol, report.LocalOpen, report.ExchangeOpen)
	log.Printf("⚠️ %s (exchange-only: %v, local-only: %v)", msg, report.MissingLocal, report.MissingExchange)

	if err := s.Database.CreateReconReport(ctx, db.ReconReport{
		Symbol:          s.Symbol,
		LocalOpen:       report.LocalOpen,
		ExchangeOpen:    report.ExchangeOpen,
		MissingLocal:    strings.Join(report.MissingLocal, ","),
		MissingExchange: strings.Join(report.MissingExchange, ","),
		Details:         msg,
		CreatedAt:       report.Timestamp,
	}); err != nil {
		log.Printf("💾 recon report insert failed: %v", err)
	}
	if s.Bus != nil {
		s.Bus.Publish(events.EventRiskAlert, events.RiskAlert{
			Severity: "warning",
			Code:     "RECON_MISMATCH",
			Message:  msg,
			Time:     report.Timestamp,
		})
	}
	return report, nil
}
