package order

import (
	"time"

	"dca-core/internal/state"
	"dca-core/pkg/exchanges/common"
)

// Purpose classifies why an order was placed.
const (
	PurposeEntry  = "ENTRY"
	PurposeSafety = "SAFETY"
	PurposeClose  = "CLOSE"
)

// Intent describes a placement request before it hits the exchange.
type Intent struct {
	Symbol  string
	Side    common.Side
	Type    common.OrderType
	Qty     float64 // base units
	Price   float64 // required for LIMIT
	Purpose string
	Rung    int
}

// Status is the tracked-order lifecycle state.
type Status string

const (
	StatusPendingPlacement Status = "PENDING_PLACEMENT"
	StatusPlaced           Status = "PLACED"
	StatusConfirming       Status = "CONFIRMING"
	StatusFilled           Status = "FILLED"
	StatusFailed           Status = "FAILED"
	StatusCancelled        Status = "CANCELLED"
)

// InFlight reports whether the order still occupies its side's slot.
func (s Status) InFlight() bool {
	return s == StatusPendingPlacement || s == StatusPlaced || s == StatusConfirming
}

// TrackedOrder is one logical order from intent to settlement. ID is the
// bot's own identifier; ExchangeID arrives with the venue ack.
type TrackedOrder struct {
	ID           string
	StrategySide state.Side
	ExchangeID   string
	Intent       Intent
	Status       Status
	Attempts     int
	PlacedAt     time.Time
	FillPrice    float64
	FillQty      float64
	FailReason   string
}
