package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dca-core/pkg/exchanges/common"
)

// This file maps the raw Binance payloads onto the common.Gateway contract.

// GetOrder fetches a single order and normalizes it.
func (c *Client) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (common.OrderDetails, error) {
	raw, err := c.fetchOrder(ctx, symbol, exchangeOrderID)
	if err != nil {
		return common.OrderDetails{}, err
	}
	return toDetails(*raw), nil
}

// GetOpenOrders returns the working orders for a symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]common.OrderDetails, error) {
	raws, err := c.fetchOpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]common.OrderDetails, 0, len(raws))
	for _, r := range raws {
		out = append(out, toDetails(r))
	}
	return out, nil
}

// GetBalances returns non-zero asset balances on the account.
func (c *Client) GetBalances(ctx context.Context) ([]common.AssetBalance, error) {
	info, err := c.GetAccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]common.AssetBalance, 0, len(info.Balances))
	for _, b := range info.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		out = append(out, common.AssetBalance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

// GetPrice returns the last ticker price for a symbol. The endpoint is
// unsigned but still counts against the weight budget.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.rateLimiter.WaitN(ctx, 2); err != nil {
		return 0, err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/ticker/price?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return 0, fmt.Errorf("binance ticker price status %d: %s", res.StatusCode, string(body))
	}
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode ticker price: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}

func toDetails(r rawOrder) common.OrderDetails {
	price, _ := strconv.ParseFloat(r.Price, 64)
	orig, _ := strconv.ParseFloat(r.OrigQty, 64)
	exec, _ := strconv.ParseFloat(r.ExecQty, 64)
	quote, _ := strconv.ParseFloat(r.CumQuoteQty, 64)

	avg := 0.0
	if exec > 0 {
		avg = quote / exec
	}
	return common.OrderDetails{
		ExchangeOrderID: strconv.FormatInt(r.OrderID, 10),
		ClientOrderID:   r.ClientOrderID,
		Symbol:          r.Symbol,
		Side:            common.Side(strings.ToUpper(r.Side)),
		Type:            common.OrderType(strings.ToUpper(r.Type)),
		Price:           price,
		OrigQty:         orig,
		ExecQty:         exec,
		AvgFillPrice:    avg,
		Status:          mapStatus(r.Status),
	}
}
