package market

// Ticker holds lightweight price info for streaming.
type Ticker struct {
	Symbol string
	Price  float64
	Time   int64
}

// BookTicker holds best bid/ask.
type BookTicker struct {
	Symbol   string
	BidPrice float64
	AskPrice float64
	Time     int64
}

// Mid returns the midpoint of best bid and ask.
func (b BookTicker) Mid() float64 {
	if b.BidPrice <= 0 || b.AskPrice <= 0 {
		if b.BidPrice > 0 {
			return b.BidPrice
		}
		return b.AskPrice
	}
	return (b.BidPrice + b.AskPrice) / 2
}

// SymbolFilters carries the trading rules that matter for order sizing.
type SymbolFilters struct {
	Symbol      string
	MinNotional float64
	MinQty      float64
	StepSize    float64
	TickSize    float64
}
