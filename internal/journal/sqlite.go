package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRecorder implements Recorder using SQLite.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens (or creates) the journal database.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		user_id TEXT NOT NULL,
		price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		buy_low REAL NOT NULL,
		buy_high REAL NOT NULL,
		fired_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		account_ref TEXT NOT NULL,
		symbol TEXT NOT NULL,
		user_id TEXT NOT NULL,
		side TEXT NOT NULL,
		price_type TEXT NOT NULL,
		price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		placed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS fills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_tp_order_id TEXT,
		exit_sl_order_id TEXT,
		exit_error TEXT,
		resolved_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_order_id ON orders(order_id);
	CREATE INDEX IF NOT EXISTS idx_fills_order_id ON fills(order_id);
	`
	_, err := r.db.Exec(schema)
	return err
}

// RecordAlert persists a fired alert.
func (r *SQLiteRecorder) RecordAlert(ctx context.Context, e *AlertEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (symbol, user_id, price, quantity, buy_low, buy_high, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Symbol, e.UserID, e.Price, e.Quantity, e.BuyLow, e.BuyHigh, e.At)
	return err
}

// RecordOrder persists an accepted order.
func (r *SQLiteRecorder) RecordOrder(ctx context.Context, e *OrderEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, account_ref, symbol, user_id, side, price_type, price, quantity, placed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OrderID, e.AccountRef, e.Symbol, e.UserID, e.Side, e.PriceType, e.Price, e.Quantity, e.At)
	return err
}

// RecordFill persists a terminal fill resolution.
func (r *SQLiteRecorder) RecordFill(ctx context.Context, e *FillEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fills (order_id, symbol, user_id, status, exit_tp_order_id, exit_sl_order_id, exit_error, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OrderID, e.Symbol, e.UserID, e.Status, e.ExitTP, e.ExitSL, e.ExitError, e.At)
	return err
}

// Close closes the underlying database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
