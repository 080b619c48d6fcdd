package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	StateSaveComplete  string
	EngineServiceInit  string
	DryRunMode         string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	StateLoadFailed    string
	APIServerError     string

	// Balance
	BalanceInitialized  string
	BalanceSynced       string
	InsufficientBalance string
	BelowMinimumOrder   string
	BalanceSyncFailed   string

	// Orders
	OrderPlaced          string
	OrderFilled          string
	OrderFailed          string
	OrderCancelled       string
	OrderConfirming      string
	OrderConfirmTimeout  string
	OrderInFlight        string
	LateConfirmIgnored   string
	UserStreamConnected  string
	UserStreamDisconnect string

	// Strategy
	SideStarted      string
	SideStopped      string
	SideNoCoverage   string
	CycleCompleted   string
	CycleReset       string
	CycleResetDenied string
	SafetyOrderSent  string
	CloseOrderSent   string
	ConfigUpdated    string
	ConfigRejected   string

	// AI
	AIEnabled        string
	AIDisabled       string
	AIPausedFloor    string
	AIResumed        string
	AIInvestment     string
	AIConfigUpdated  string
	AIConfigRejected string

	// Services
	ReconStarted       string
	ReconMismatch      string
	ReconClean         string
	BinanceFeedStarted string
	MockFeedStarted    string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting DCA bot core...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	StateSaveComplete:  "Bot state saved.",
	EngineServiceInit:  "Engine service initialized",
	DryRunMode:         "Running in DRY-RUN mode (orders will NOT hit exchange)",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	StateLoadFailed:    "Failed to load state: %v",
	APIServerError:     "API server error: %v",

	// Balance
	BalanceInitialized:  "Paper balance initialized: %.2f %s",
	BalanceSynced:       "Balance synced: %.2f %s free",
	InsufficientBalance: "Insufficient balance: need %.2f, have %.2f",
	BelowMinimumOrder:   "Order below exchange minimum: %.2f < %.2f",
	BalanceSyncFailed:   "Balance sync failed: %v",

	// Orders
	OrderPlaced:          "Order placed: %s %s %.8f @ %.8f",
	OrderFilled:          "Order filled: %s avg %.8f qty %.8f",
	OrderFailed:          "Order failed: %s: %v",
	OrderCancelled:       "Order cancelled: %s",
	OrderConfirming:      "Confirming order %s (attempt %d/%d)",
	OrderConfirmTimeout:  "Order %s unconfirmed after %d attempts",
	OrderInFlight:        "An order is already in flight for this side",
	LateConfirmIgnored:   "Ignoring late confirmation for stale order %s",
	UserStreamConnected:  "User data stream connected",
	UserStreamDisconnect: "User data stream disconnected: %v",

	// Strategy
	SideStarted:      "%s side started at price %.8f",
	SideStopped:      "%s side stopped",
	SideNoCoverage:   "%s side halted: balance cannot cover rung %d (%.2f needed)",
	CycleCompleted:   "%s side completed cycle %d, profit %.4f",
	CycleReset:       "%s side cycle counter reset",
	CycleResetDenied: "Cycle reset requires the side to be stopped",
	SafetyOrderSent:  "%s safety order %d: %.8f @ %.8f",
	CloseOrderSent:   "%s close order: %.8f @ %.8f (trigger %.8f)",
	ConfigUpdated:    "%s side config updated",
	ConfigRejected:   "Config rejected: %s",

	// AI
	AIEnabled:        "AI risk manager enabled",
	AIDisabled:       "AI risk manager disabled",
	AIPausedFloor:    "AI paused trading: virtual balance %.2f below floor %.2f",
	AIResumed:        "AI resumed trading",
	AIInvestment:     "AI investment for cycle: %.2f (multiplier %.2f)",
	AIConfigUpdated:  "AI config updated",
	AIConfigRejected: "AI config rejected: %s",

	// Services
	ReconStarted:       "Reconciliation service started",
	ReconMismatch:      "Reconciliation mismatch on %s: %d local / %d exchange",
	ReconClean:         "Reconciliation clean for %s",
	BinanceFeedStarted: "Binance feed started",
	MockFeedStarted:    "Mock feed started",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動 DCA 機器人核心...",
	ConfigLoaded:       "設定已載入（埠號：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "服務監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	StateSaveComplete:  "機器人狀態已保存。",
	EngineServiceInit:  "引擎服務初始化完成",
	DryRunMode:         "DRY-RUN 模式（不會送出真實委託）",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	StateLoadFailed:    "載入狀態失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",

	// Balance
	BalanceInitialized:  "模擬資金已初始化：%.2f %s",
	BalanceSynced:       "餘額已同步：可用 %.2f %s",
	InsufficientBalance: "餘額不足：需求 %.2f，現有 %.2f",
	BelowMinimumOrder:   "訂單低於交易所最小限額：%.2f < %.2f",
	BalanceSyncFailed:   "同步餘額失敗：%v",

	// Orders
	OrderPlaced:          "已下單：%s %s %.8f @ %.8f",
	OrderFilled:          "訂單成交：%s 均價 %.8f 數量 %.8f",
	OrderFailed:          "訂單失敗：%s：%v",
	OrderCancelled:       "訂單已取消：%s",
	OrderConfirming:      "確認訂單 %s 中（第 %d/%d 次）",
	OrderConfirmTimeout:  "訂單 %s 經 %d 次嘗試仍未確認",
	OrderInFlight:        "此方向已有進行中的訂單",
	LateConfirmIgnored:   "略過過期訂單 %s 的遲到確認",
	UserStreamConnected:  "使用者資料串流已連線",
	UserStreamDisconnect: "使用者資料串流已斷線：%v",

	// Strategy
	SideStarted:      "%s 方向已啟動，價格 %.8f",
	SideStopped:      "%s 方向已停止",
	SideNoCoverage:   "%s 方向已停擺：餘額無法覆蓋第 %d 層（需要 %.2f）",
	CycleCompleted:   "%s 方向完成第 %d 輪，獲利 %.4f",
	CycleReset:       "%s 方向輪次計數已重置",
	CycleResetDenied: "重置輪次前必須先停止該方向",
	SafetyOrderSent:  "%s 安全單 %d：%.8f @ %.8f",
	CloseOrderSent:   "%s 平倉單：%.8f @ %.8f（觸發價 %.8f）",
	ConfigUpdated:    "%s 方向設定已更新",
	ConfigRejected:   "設定被拒絕：%s",

	// AI
	AIEnabled:        "AI 風控已啟用",
	AIDisabled:       "AI 風控已停用",
	AIPausedFloor:    "AI 暫停交易：虛擬餘額 %.2f 低於下限 %.2f",
	AIResumed:        "AI 恢復交易",
	AIInvestment:     "AI 本輪投入：%.2f（倍數 %.2f）",
	AIConfigUpdated:  "AI 設定已更新",
	AIConfigRejected: "AI 設定被拒絕：%s",

	// Services
	ReconStarted:       "對帳服務已啟動",
	ReconMismatch:      "%s 對帳不一致：本地 %d / 交易所 %d",
	ReconClean:         "%s 對帳一致",
	BinanceFeedStarted: "Binance 行情訂閱已啟動",
	MockFeedStarted:    "模擬行情訂閱已啟動",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
