package db

import "time"

// Order represents a tracked order stored in the DB. ID is the bot's own
// track id; ExchangeOrderID is filled in once the venue acks.
type Order struct {
	ID              string
	ExchangeOrderID string
	Symbol          string
	Side            string // BUY or SELL
	LadderSide      string // LONG or SHORT
	Purpose         string // ENTRY, SAFETY or CLOSE
	Rung            int
	Price           float64
	Qty             float64
	FilledQty       float64
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Fill represents a single execution stored in the DB.
type Fill struct {
	ID              string
	OrderID         string
	ExchangeOrderID string
	Symbol          string
	Side            string
	Price           float64
	Qty             float64
	Fee             float64
	FeeAsset        string
	TradeID         int64
	CreatedAt       time.Time
}

// User represents an application user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BotStateRow is the persisted root document for one bot.
type BotStateRow struct {
	Name      string
	StateData string // JSON blob
	UpdatedAt time.Time
}

// ReconReport records one reconciliation pass against the exchange.
type ReconReport struct {
	ID              int64
	Symbol          string
	LocalOpen       int
	ExchangeOpen    int
	MissingLocal    string // exchange-only order ids, comma separated
	MissingExchange string // local-only order ids, comma separated
	Details         string
	CreatedAt       time.Time
}
