package config

import (
	"os"
	"strconv"

	"github.com/denisbrodbeck/machineid"
	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bot core.
type Config struct {
	Port string

	// Bot identity
	BotName string
	BotID   string

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	Symbol           string
	UseMockFeed      bool

	// Execution
	DryRun bool

	// Dry-run simulation
	DryRunInitialBalance float64
	DryRunBaseBalance    float64
	DryRunFeeRate        float64 // decimal (e.g. 0.001 = 10 bps)
	DryRunSlippageBps    float64 // slippage applied on market fills (bps)

	// Order confirmation
	ConfirmDelaySec    int
	MaxConfirmAttempts int

	// Database
	DBPath string

	// Strategy defaults file
	StrategyPath string

	// Auth
	JWTSecret string

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/dca.db")
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		BotName:              getEnv("BOT_NAME", "dca-bot"),
		BotID:                getEnv("BOT_ID", defaultBotID()),
		BinanceTestnet:       getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:        os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:     os.Getenv("BINANCE_API_SECRET"),
		Symbol:               getEnv("SYMBOL", "BTCUSDT"),
		UseMockFeed:          getEnv("USE_MOCK_FEED", "true") == "true",
		DryRun:               getEnv("DRY_RUN", "true") == "true",
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 10000.0),
		DryRunBaseBalance:    getEnvFloat("DRY_RUN_BASE_BALANCE", 0),
		DryRunFeeRate:        getEnvFloat("DRY_RUN_FEE_RATE", 0.001),
		DryRunSlippageBps:    getEnvFloat("DRY_RUN_SLIPPAGE_BPS", 2),
		ConfirmDelaySec:      getEnvInt("ORDER_CONFIRM_DELAY_SEC", 3),
		MaxConfirmAttempts:   getEnvInt("ORDER_CONFIRM_MAX_ATTEMPTS", 5),
		DBPath:               dbPath,
		StrategyPath:         getEnv("STRATEGY_PATH", "./dca.yaml"),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		Language:             getEnv("LANGUAGE", "en"),
	}, nil
}

// defaultBotID derives a stable per-host id so restarts keep the same
// identity without configuration.
func defaultBotID() string {
	id, err := machineid.ProtectedID("dca-core")
	if err != nil || len(id) < 12 {
		return "dca-local"
	}
	return "dca-" + id[:12]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
