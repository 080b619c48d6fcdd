package events

// ExecutionReport is the executionReport payload on the user data stream.
type ExecutionReport struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	ClientOrderID   string `json:"c"`
	Side            string `json:"S"`
	OrderType       string `json:"o"`
	Qty             string `json:"q"`
	Price           string `json:"p"`
	Status          string `json:"X"`
	ExecType        string `json:"x"`
	OrderID         int64  `json:"i"`
	LastQty         string `json:"l"`
	CumulativeQty   string `json:"z"`
	LastPrice       string `json:"L"`
	Commission      string `json:"n"`
	CommissionAsset string `json:"N"`
	TradeID         int64  `json:"t"`
	IsMaker         bool   `json:"m"`
	TransactTime    int64  `json:"T"`
}

// OutboundAccountPosition carries the changed balances after an account event.
type OutboundAccountPosition struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Balances  []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

// StreamBalanceUpdate is the balanceUpdate payload (deposits, withdrawals,
// transfers).
type StreamBalanceUpdate struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Asset     string `json:"a"`
	Delta     string `json:"d"`
	Time      int64  `json:"T"`
}
