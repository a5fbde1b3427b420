package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorderRoundTrip(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()
	now := time.Now()

	if err := r.RecordAlert(ctx, &AlertEvent{
		Symbol: "AAPL", UserID: "u1", Price: 171, Quantity: 5,
		BuyLow: 170, BuyHigh: 172, At: now,
	}); err != nil {
		t.Fatal(err)
	}

	if err := r.RecordOrder(ctx, &OrderEvent{
		OrderID: "ord-1", AccountRef: "acct-1", Symbol: "AAPL", UserID: "u1",
		Side: "BUY", PriceType: "LIMIT", Price: 171, Quantity: 5, At: now,
	}); err != nil {
		t.Fatal(err)
	}

	if err := r.RecordFill(ctx, &FillEvent{
		OrderID: "ord-1", Symbol: "AAPL", UserID: "u1", Status: "EXECUTED",
		ExitTP: "ord-2", ExitSL: "ord-3", At: now,
	}); err != nil {
		t.Fatal(err)
	}

	var alerts, orders, fills int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&alerts); err != nil {
		t.Fatal(err)
	}
	if err := r.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&orders); err != nil {
		t.Fatal(err)
	}
	if err := r.db.QueryRow("SELECT COUNT(*) FROM fills").Scan(&fills); err != nil {
		t.Fatal(err)
	}
	if alerts != 1 || orders != 1 || fills != 1 {
		t.Errorf("row counts = %d/%d/%d, want 1/1/1", alerts, orders, fills)
	}

	var status, exitErr string
	if err := r.db.QueryRow("SELECT status, exit_error FROM fills WHERE order_id = ?", "ord-1").Scan(&status, &exitErr); err != nil {
		t.Fatal(err)
	}
	if status != "EXECUTED" || exitErr != "" {
		t.Errorf("fill row = %s/%q", status, exitErr)
	}
}

func TestSQLiteRecorderReopenKeepsSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	r1, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := r1.RecordAlert(context.Background(), &AlertEvent{
		Symbol: "AAPL", UserID: "u1", Price: 171, Quantity: 5,
		BuyLow: 170, BuyHigh: 172, At: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	r1.Close()

	r2, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()

	var n int
	if err := r2.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("alerts after reopen = %d, want 1", n)
	}
}
