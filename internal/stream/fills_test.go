package stream

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
)

// fakeDesk scripts order statuses per order id and records exit placements.
type fakeDesk struct {
	statuses   map[string]models.OrderStatus
	statusErr  map[string]error
	exitErr    error
	exitCalls  []string // symbols, in placement order
	nextExitID int
}

func newFakeDesk() *fakeDesk {
	return &fakeDesk{
		statuses:  make(map[string]models.OrderStatus),
		statusErr: make(map[string]error),
	}
}

func (d *fakeDesk) OrderStatus(ctx context.Context, accountRef, orderID string) (models.OrderStatus, error) {
	if err := d.statusErr[orderID]; err != nil {
		return "", err
	}
	return d.statuses[orderID], nil
}

func (d *fakeDesk) PlaceExitOrders(ctx context.Context, accountRef, symbol string, qty int, tp, sl float64) (string, string, error) {
	d.exitCalls = append(d.exitCalls, symbol)
	if d.exitErr != nil {
		return "", "", d.exitErr
	}
	d.nextExitID += 2
	return fmt.Sprintf("tp-%d", d.nextExitID-1), fmt.Sprintf("sl-%d", d.nextExitID), nil
}

func testFill(symbol, userID, orderID string) models.PendingFill {
	return models.PendingFill{
		Symbol:     symbol,
		UserID:     userID,
		BuyOrderID: orderID,
		AccountRef: "acct-1",
		Qty:        5,
		LimitPrice: 171,
		TakeProfit: 185,
		StopLoss:   165,
		PlacedAt:   time.Now(),
	}
}

func newTestMonitor(book *FillBook, desk *fakeDesk, notif *collector) *FillMonitor {
	return NewFillMonitor(book, desk, notif, zerolog.Nop())
}

func TestFillMonitorExecutedPlacesExits(t *testing.T) {
	book := NewFillBook()
	desk := newFakeDesk()
	notif := &collector{}
	m := newTestMonitor(book, desk, notif)

	book.Add(testFill("AAPL", "u1", "ord-1"))
	desk.statuses["ord-1"] = models.OrderStatusExecuted

	var outcomes []FillOutcome
	m.SetOnResolved(func(o FillOutcome) { outcomes = append(outcomes, o) })

	m.CheckAll(context.Background())

	if book.Count() != 0 {
		t.Error("executed fill must be removed")
	}
	if len(desk.exitCalls) != 1 || desk.exitCalls[0] != "AAPL" {
		t.Errorf("exit placements = %v, want [AAPL]", desk.exitCalls)
	}
	if len(outcomes) != 1 || outcomes[0].Status != models.OrderStatusExecuted {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].ExitTP == "" || outcomes[0].ExitSL == "" || outcomes[0].ExitErr != nil {
		t.Errorf("outcome = %+v, want both exit ids and no error", outcomes[0])
	}

	msgs := notif.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "Exits placed") {
		t.Errorf("expected exit confirmation, got %v", msgs)
	}
}

func TestFillMonitorOpenAndPartialWait(t *testing.T) {
	for _, status := range []models.OrderStatus{models.OrderStatusOpen, models.OrderStatusPartial} {
		book := NewFillBook()
		desk := newFakeDesk()
		m := newTestMonitor(book, desk, &collector{})

		book.Add(testFill("AAPL", "u1", "ord-1"))
		desk.statuses["ord-1"] = status

		m.CheckAll(context.Background())

		if book.Count() != 1 {
			t.Errorf("status %s: fill must stay registered", status)
		}
		if len(desk.exitCalls) != 0 {
			t.Errorf("status %s: no exits expected", status)
		}
	}
}

func TestFillMonitorTerminatedWithoutFill(t *testing.T) {
	for _, status := range []models.OrderStatus{
		models.OrderStatusCancelled, models.OrderStatusExpired, models.OrderStatusRejected,
	} {
		book := NewFillBook()
		desk := newFakeDesk()
		notif := &collector{}
		m := newTestMonitor(book, desk, notif)

		book.Add(testFill("AAPL", "u1", "ord-1"))
		desk.statuses["ord-1"] = status

		m.CheckAll(context.Background())

		if book.Count() != 0 {
			t.Errorf("status %s: fill must be removed", status)
		}
		if len(desk.exitCalls) != 0 {
			t.Errorf("status %s: no exits may be placed", status)
		}
		msgs := notif.messages()
		if len(msgs) != 1 || !strings.Contains(msgs[0].text, "No exit orders placed") {
			t.Errorf("status %s: expected abort notice, got %v", status, msgs)
		}
	}
}

func TestFillMonitorUnreadableStatusRetries(t *testing.T) {
	book := NewFillBook()
	desk := newFakeDesk()
	m := newTestMonitor(book, desk, &collector{})

	book.Add(testFill("AAPL", "u1", "ord-1"))
	desk.statuses["ord-1"] = models.OrderStatus("HALTED") // something new from the broker

	m.CheckAll(context.Background())

	if book.Count() != 1 {
		t.Error("unrecognized status must leave the fill for the next tick")
	}
}

func TestFillMonitorPollFailureIsolated(t *testing.T) {
	book := NewFillBook()
	desk := newFakeDesk()
	m := newTestMonitor(book, desk, &collector{})

	broken := testFill("AAPL", "u1", "ord-1")
	broken.PlacedAt = time.Now().Add(-time.Minute) // polled first
	book.Add(broken)
	book.Add(testFill("MSFT", "u1", "ord-2"))

	desk.statusErr["ord-1"] = fmt.Errorf("api timeout")
	desk.statuses["ord-2"] = models.OrderStatusExecuted

	m.CheckAll(context.Background())

	if _, ok := book.Get("AAPL", "u1"); !ok {
		t.Error("failed poll must keep its fill registered")
	}
	if _, ok := book.Get("MSFT", "u1"); ok {
		t.Error("healthy fill must still resolve")
	}
	if len(desk.exitCalls) != 1 || desk.exitCalls[0] != "MSFT" {
		t.Errorf("exit placements = %v, want [MSFT]", desk.exitCalls)
	}
}

func TestFillMonitorExitFailureSendsManualInstructions(t *testing.T) {
	book := NewFillBook()
	desk := newFakeDesk()
	notif := &collector{}
	m := newTestMonitor(book, desk, notif)

	book.Add(testFill("AAPL", "u1", "ord-1"))
	desk.statuses["ord-1"] = models.OrderStatusExecuted
	desk.exitErr = fmt.Errorf("insufficient buying power")

	var outcomes []FillOutcome
	m.SetOnResolved(func(o FillOutcome) { outcomes = append(outcomes, o) })

	m.CheckAll(context.Background())

	if book.Count() != 0 {
		t.Error("fill resolution does not depend on exit placement")
	}
	if len(outcomes) != 1 || outcomes[0].ExitErr == nil {
		t.Fatalf("outcomes = %+v, want one with ExitErr set", outcomes)
	}

	msgs := notif.messages()
	if len(msgs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(msgs))
	}
	text := msgs[0].text
	for _, want := range []string{"FAILED", "SELL 5 AAPL LIMIT @ 185.00", "SELL 5 AAPL STOP @ 165.00"} {
		if !strings.Contains(text, want) {
			t.Errorf("manual instructions missing %q:\n%s", want, text)
		}
	}
}

func TestFillMonitorForce(t *testing.T) {
	book := NewFillBook()
	desk := newFakeDesk()
	m := newTestMonitor(book, desk, &collector{})

	book.Add(testFill("AAPL", "u1", "ord-1"))

	if err := m.Force(context.Background(), "AAPL", "u1"); err != nil {
		t.Fatal(err)
	}
	if book.Count() != 0 {
		t.Error("forced fill must resolve")
	}
	if len(desk.exitCalls) != 1 {
		t.Errorf("exit placements = %v, want one", desk.exitCalls)
	}

	if err := m.Force(context.Background(), "AAPL", "u1"); !errors.Is(err, errors.ErrFillNotFound) {
		t.Errorf("Force on missing fill = %v, want ErrFillNotFound", err)
	}
}
