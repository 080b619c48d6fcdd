package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

// SaveBotState upserts the JSON root document for a bot.
func (d *Database) SaveBotState(ctx context.Context, name, stateJSON string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO bot_states (name, state_data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			state_data = excluded.state_data,
			updated_at = CURRENT_TIMESTAMP
	`, name, stateJSON)
	return err
}

// LoadBotState returns the stored root document, or ErrNotFound.
func (d *Database) LoadBotState(ctx context.Context, name string) (BotStateRow, error) {
	var row BotStateRow
	err := d.DB.QueryRowContext(ctx, `
		SELECT name, state_data, updated_at FROM bot_states WHERE name = ?
	`, name).Scan(&row.Name, &row.StateData, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return BotStateRow{}, ErrNotFound
	}
	if err != nil {
		return BotStateRow{}, err
	}
	return row, nil
}

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, exchange_order_id, symbol, side, ladder_side, purpose, rung,
			price, qty, filled_qty, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
	`,
		o.ID, o.ExchangeOrderID, o.Symbol, o.Side, o.LadderSide, o.Purpose, o.Rung,
		o.Price, o.Qty, o.FilledQty, o.Status, nullableTime(o.CreatedAt),
	)
	return err
}

// UpdateOrderStatus sets the status (and exchange id, when known) of an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, exchangeOrderID, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders
		SET status = ?,
		    exchange_order_id = CASE WHEN ? != '' THEN ? ELSE exchange_order_id END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, exchangeOrderID, exchangeOrderID, id)
	return err
}

// UpdateOrderFill sets status and filled quantity.
func (d *Database) UpdateOrderFill(ctx context.Context, id, status string, filledQty float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, filled_qty = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, filledQty, id)
	return err
}

// ListOpenOrders returns orders that are still working.
func (d *Database) ListOpenOrders(ctx context.Context) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(exchange_order_id, ''), symbol, side, ladder_side, purpose, rung,
		       price, qty, filled_qty, status, created_at, updated_at
		FROM orders WHERE status IN ('PLACED','CONFIRMING','NEW','PARTIALLY_FILLED')
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListRecentOrders returns the most recent orders up to limit.
func (d *Database) ListRecentOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(exchange_order_id, ''), symbol, side, ladder_side, purpose, rung,
		       price, qty, filled_qty, status, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]Order, error) {
	var res []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ExchangeOrderID, &o.Symbol, &o.Side, &o.LadderSide,
			&o.Purpose, &o.Rung, &o.Price, &o.Qty, &o.FilledQty, &o.Status,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// CreateFill inserts a new fill row.
func (d *Database) CreateFill(ctx context.Context, f Fill) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO fills (
			id, order_id, exchange_order_id, symbol, side, price, qty, fee, fee_asset, trade_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		f.ID, f.OrderID, f.ExchangeOrderID, f.Symbol, f.Side, f.Price, f.Qty, f.Fee, f.FeeAsset, f.TradeID, nullableTime(f.CreatedAt),
	)
	return err
}

// CreateFills inserts many fills in one transaction. Duplicate ids are
// ignored so replayed stream events stay idempotent.
func (d *Database) CreateFills(fills []Fill) error {
	if len(fills) == 0 {
		return nil
	}
	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO fills (
			id, order_id, exchange_order_id, symbol, side, price, qty, fee, fee_asset, trade_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range fills {
		if _, err := stmt.Exec(f.ID, f.OrderID, f.ExchangeOrderID, f.Symbol, f.Side, f.Price, f.Qty, f.Fee, f.FeeAsset, f.TradeID, nullableTime(f.CreatedAt)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListRecentFills returns the newest fills up to limit.
func (d *Database) ListRecentFills(ctx context.Context, limit int) ([]Fill, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, COALESCE(exchange_order_id, ''), symbol, side, price, qty,
		       COALESCE(fee, 0), COALESCE(fee_asset, ''), COALESCE(trade_id, 0), created_at
		FROM fills
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.ExchangeOrderID, &f.Symbol, &f.Side,
			&f.Price, &f.Qty, &f.Fee, &f.FeeAsset, &f.TradeID, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, nullableTime(u.CreatedAt), nullableTime(u.UpdatedAt))
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CreateReconReport stores one reconciliation pass.
func (d *Database) CreateReconReport(ctx context.Context, r ReconReport) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO recon_reports (symbol, local_open, exchange_open, missing_local, missing_exchange, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, r.Symbol, r.LocalOpen, r.ExchangeOpen, r.MissingLocal, r.MissingExchange, r.Details, nullableTime(r.CreatedAt))
	return err
}

// ListReconReports returns the most recent reconciliation reports.
func (d *Database) ListReconReports(ctx context.Context, limit int) ([]ReconReport, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, local_open, exchange_open,
		       COALESCE(missing_local, ''), COALESCE(missing_exchange, ''), COALESCE(details, ''), created_at
		FROM recon_reports
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ReconReport
	for rows.Next() {
		var r ReconReport
		if err := rows.Scan(&r.ID, &r.Symbol, &r.LocalOpen, &r.ExchangeOpen,
			&r.MissingLocal, &r.MissingExchange, &r.Details, &r.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
