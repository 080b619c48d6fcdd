package common

import "context"

// Gateway abstracts the spot-exchange operations the engine needs. Both the
// live Binance client and the paper gateway implement it.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetOrder(ctx context.Context, symbol, exchangeOrderID string) (OrderDetails, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OrderDetails, error)
	GetBalances(ctx context.Context) ([]AssetBalance, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
}
