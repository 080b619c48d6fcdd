package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dca-core/internal/api"
	"dca-core/internal/balance"
	"dca-core/internal/engine"
	"dca-core/internal/events"
	"dca-core/internal/market"
	"dca-core/internal/monitor"
	"dca-core/internal/order"
	"dca-core/internal/persistence"
	"dca-core/internal/reconciliation"
	"dca-core/internal/state"
	"dca-core/internal/strategy"
	"dca-core/pkg/cache"
	"dca-core/pkg/config"
	"dca-core/pkg/db"
	exspot "dca-core/pkg/exchanges/binance/spot"
	"dca-core/pkg/exchanges/common"
	"dca-core/pkg/exchanges/paper"
	"dca-core/pkg/i18n"
	marketdata "dca-core/pkg/market/binance"
)

// quoteAssets lists the quote currencies we know how to split a symbol on,
// longest suffix first.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"}

func splitSymbol(symbol string) (base, quote string) {
	up := strings.ToUpper(symbol)
	for _, q := range quoteAssets {
		if strings.HasSuffix(up, q) && len(up) > len(q) {
			return up[:len(up)-len(q)], q
		}
	}
	if len(up) > 4 {
		return up[:len(up)-4], up[len(up)-4:]
	}
	return up, "USDT"
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.M().ConfigLoadFailed, err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println("🚀 " + i18n.M().Starting)
	log.Printf(i18n.M().ConfigLoaded, cfg.Port)
	log.Printf(i18n.M().UsingDBPath, cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.M().DBInitFailed, err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.M().DBMigrationsFailed, err)
	}

	// Persisted state, seeded from dca.yaml on the first boot.
	store := state.NewStore(database, bus, cfg.BotName, cfg.Symbol)
	if err := store.Load(ctx); err != nil {
		log.Fatalf(i18n.M().StateLoadFailed, err)
	}
	seedDefaults(ctx, store, cfg.StrategyPath)

	baseAsset, quoteAsset := splitSymbol(cfg.Symbol)
	prices := cache.NewShardedPriceCache()
	sysMetrics := monitor.NewSystemMetrics()

	// Exchange gateway: paper simulator in dry-run, Binance spot otherwise.
	var gateway common.Gateway
	var spotClient *exspot.Client
	var paperGW *paper.Gateway
	if cfg.DryRun {
		log.Println("🧪 " + i18n.M().DryRunMode)
		paperGW = paper.New(paper.SimConfig{
			FeeRate:     cfg.DryRunFeeRate,
			SlippageBps: cfg.DryRunSlippageBps,
		}, map[string]float64{
			quoteAsset: cfg.DryRunInitialBalance,
			baseAsset:  cfg.DryRunBaseBalance,
		})
		gateway = paperGW
	} else {
		spotClient = exspot.New(exspot.Config{
			APIKey:    cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret,
			Testnet:   cfg.BinanceTestnet,
		})
		spotClient.StartTimeSync(ctx)
		gateway = spotClient
	}

	// Cached balances, refreshed by poll and by the user data stream.
	balanceMgr := balance.NewManager(gateway, bus, 30*time.Second)
	balanceMgr.Start(ctx)

	fills := persistence.NewFillWriter(database, 50, 500*time.Millisecond)

	tracker := order.NewTracker(gateway, bus, database,
		time.Duration(cfg.ConfirmDelaySec)*time.Second, cfg.MaxConfirmAttempts)
	tracker.Metrics = sysMetrics
	tracker.Start(ctx)

	if !cfg.DryRun {
		bridge := &order.StreamBridge{
			Client:   spotClient,
			DB:       database,
			Bus:      bus,
			Fills:    fills,
			Balances: balanceMgr,
		}
		bridge.Start(ctx)
	}

	// Market data
	minNotional := 5.0
	mdc := marketdata.NewMarketDataClient(cfg.BinanceTestnet)
	if !cfg.UseMockFeed {
		fctx, fcancel := context.WithTimeout(ctx, 10*time.Second)
		if filters, err := mdc.SymbolFilters(fctx, cfg.Symbol); err == nil && filters.MinNotional > 0 {
			minNotional = filters.MinNotional
		} else if err != nil {
			log.Printf("⚠️ symbol filters unavailable, using default min notional: %v", err)
		}
		fcancel()
	}

	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Bus:        bus,
			Cache:      prices,
			Symbol:     cfg.Symbol,
			StartPrice: 100,
			Step:       0.8,
			Interval:   time.Second,
		}
		mock.Start(ctx)
		log.Println("📡 " + i18n.M().MockFeedStarted)
	} else {
		feed := market.Feed{
			Stream: marketdata.NewStreamClient(cfg.BinanceTestnet),
			Data:   mdc,
			Bus:    bus,
			Cache:  prices,
			Symbol: cfg.Symbol,
		}
		feed.Start(ctx)
		log.Println("📡 " + i18n.M().BinanceFeedStarted)
	}

	// Ticks drive the persisted snapshot price and the paper fill engine.
	tickSub, unsubTicks := bus.Subscribe(events.EventPriceTick, 256)
	defer unsubTicks()
	go func() {
		for msg := range tickSub {
			tick, ok := msg.(events.PriceTick)
			if !ok {
				continue
			}
			store.SetPrice(tick.Price)
			if paperGW != nil {
				paperGW.SetPrice(tick.Symbol, tick.Price)
			}
		}
	}()

	// Balance snapshots flow into the persisted state for the UI.
	balSub, unsubBal := bus.Subscribe(events.EventBalanceUpdate, 8)
	defer unsubBal()
	go func() {
		for msg := range balSub {
			snap, ok := msg.(map[string]common.AssetBalance)
			if !ok {
				continue
			}
			out := make(map[string]state.Balance, len(snap))
			for asset, b := range snap {
				out[asset] = state.Balance{Free: b.Free, Locked: b.Locked}
			}
			if err := store.SetBalances(ctx, out); err != nil {
				log.Printf("💾 balance snapshot not persisted: %v", err)
			}
		}
	}()

	// Sub-strategy risk manager
	aiMgr := strategy.NewAIManager(store, bus)
	go aiMgr.Run(ctx)

	// One serialized machine per ladder side.
	newMachine := func(side state.Side) *strategy.SideMachine {
		m := strategy.NewSideMachine(side, cfg.Symbol, baseAsset, quoteAsset,
			store, tracker, balanceMgr, bus, prices)
		m.MinNotional = minNotional
		m.Settler = aiMgr
		go m.Run(ctx)
		return m
	}
	longMachine := newMachine(state.SideLong)
	shortMachine := newMachine(state.SideShort)

	recon := reconciliation.NewService(gateway, database, bus, cfg.Symbol, 5*time.Minute)
	recon.Start(ctx)

	mon := &monitor.Monitor{Bus: bus, Metrics: sysMetrics, AlertFn: func(msg string) {
		_ = monitor.LogSink{}.Send(msg)
	}}
	mon.Start(ctx)

	engService := engine.NewImpl(engine.Config{
		Long:    longMachine,
		Short:   shortMachine,
		AI:      aiMgr,
		Store:   store,
		Balance: balanceMgr,
		DB:      database,
		Prices:  prices,
		Meta: engine.SystemStatus{
			BotName:   cfg.BotName,
			BotID:     cfg.BotID,
			Symbol:    cfg.Symbol,
			DryRun:    cfg.DryRun,
			Testnet:   cfg.BinanceTestnet,
			MockFeed:  cfg.UseMockFeed,
			Version:   version(),
			StartedAt: time.Now(),
		},
	})
	log.Println("⚙️ " + i18n.M().EngineServiceInit)

	server := api.NewServer(bus, database, engService, sysMetrics, cfg.JWTSecret)
	go func() {
		log.Printf(i18n.M().ServerListening, cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf(i18n.M().APIServerError, err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("🛑 " + i18n.M().ShuttingDown)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := store.Persist(shutdownCtx); err != nil {
		log.Printf("💾 final state persist failed: %v", err)
	} else {
		log.Println("💾 " + i18n.M().StateSaveComplete)
	}
	fills.Close()
}

// seedDefaults copies dca.yaml into the persisted state on the first boot
// only. Restarts keep whatever the operator configured through the API.
func seedDefaults(ctx context.Context, store *state.Store, path string) {
	if !store.FirstBoot() {
		return
	}
	fc, err := strategy.LoadDefaults(path)
	if err != nil {
		log.Printf("⚠️ strategy defaults not loaded: %v", err)
		return
	}
	if err := strategy.Seed(ctx, store, fc); err != nil {
		log.Printf("💾 seed defaults failed: %v", err)
	}
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}
