package events

import "time"

// Event enumerates high-level topics inside the bot core.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventStateUpdate    Event = "state.update"
	EventOrderPlaced    Event = "order.placed"
	EventOrderFilled    Event = "order.filled"
	EventOrderFailed    Event = "order.failed"
	EventOrderCancelled Event = "order.cancelled"
	EventOpenOrders     Event = "orders.open_set"
	EventBalanceUpdate  Event = "balance.update"
	EventRiskAlert      Event = "risk.alert"
	EventNotification   Event = "notification"
	EventAIDecision     Event = "ai.decision"
)

// PriceTick is the payload for EventPriceTick.
type PriceTick struct {
	Symbol string
	Price  float64
	Time   int64 // ms
}

// OrderUpdate is the payload for order lifecycle events. TrackID identifies
// the tracked order inside the bot; ExchangeOrderID is the venue's id.
type OrderUpdate struct {
	TrackID         string
	Side            string // LONG or SHORT
	Symbol          string
	ExchangeOrderID string
	Status          string
	Price           float64
	Qty             float64
	ExecQty         float64
	AvgFillPrice    float64
	Reason          string
}

// RiskAlert is the payload for EventRiskAlert.
type RiskAlert struct {
	Severity string // info, warning, critical
	Code     string
	Message  string
	Time     time.Time
}

// Notification is a user-facing message routed to the websocket feed.
type Notification struct {
	Level   string // info, warning, error
	Key     string // i18n message key
	Message string
	Time    time.Time
}

// AIDecision is the payload for EventAIDecision.
type AIDecision struct {
	Operate string // PAUSE, RESUME or CONTINUE
	Reason  string
	Time    time.Time
}
