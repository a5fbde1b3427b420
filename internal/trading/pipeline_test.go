package trading

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
)

// fakeBroker scripts the preview-then-place protocol and records every call.
type fakeBroker struct {
	accounts    []string
	accountsErr error

	previewErr   error
	emptyPreview bool
	placeErr     error

	previewed []models.OrderSpec
	placed    []placedOrder
	orders    []models.BrokerOrder
	ordersErr error

	nextID int
}

type placedOrder struct {
	spec      models.OrderSpec
	previewID string
	orderID   string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{accounts: []string{"acct-1"}}
}

func (f *fakeBroker) IsAuthenticated() bool { return true }

func (f *fakeBroker) GetAccounts(ctx context.Context) ([]string, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeBroker) PreviewOrder(ctx context.Context, accountRef string, spec models.OrderSpec) (string, error) {
	if f.previewErr != nil {
		return "", f.previewErr
	}
	f.previewed = append(f.previewed, spec)
	if f.emptyPreview {
		return "", nil
	}
	return fmt.Sprintf("prev-%d", len(f.previewed)), nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, accountRef string, spec models.OrderSpec, previewID string) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.nextID++
	orderID := fmt.Sprintf("ord-%d", f.nextID)
	f.placed = append(f.placed, placedOrder{spec: spec, previewID: previewID, orderID: orderID})
	f.orders = append(f.orders, models.BrokerOrder{
		OrderID: orderID,
		Symbol:  spec.Symbol,
		Status:  models.OrderStatusOpen,
	})
	return orderID, nil
}

func (f *fakeBroker) GetOrders(ctx context.Context, accountRef string, count int) ([]models.BrokerOrder, error) {
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.orders, nil
}

func newTestPipeline(b *fakeBroker) *Pipeline {
	return NewPipeline(b, zerolog.Nop(), 25)
}

func TestPlaceBuyPreviewThenPlace(t *testing.T) {
	b := newFakeBroker()
	p := newTestPipeline(b)

	receipt, err := p.PlaceBuy(context.Background(), "AAPL", 5, 171)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.AccountRef != "acct-1" || receipt.OrderID != "ord-1" {
		t.Errorf("receipt = %+v", receipt)
	}

	if len(b.previewed) != 1 || len(b.placed) != 1 {
		t.Fatalf("previewed %d, placed %d, want 1 each", len(b.previewed), len(b.placed))
	}
	if b.placed[0].previewID != "prev-1" {
		t.Errorf("placed with preview %q, want prev-1", b.placed[0].previewID)
	}

	spec := b.placed[0].spec
	if spec.Side != models.OrderSideBuy || spec.Quantity != 5 || spec.Term != models.TermGoodUntilCancel {
		t.Errorf("spec = %+v", spec)
	}
	if spec.Price.Type() != models.PriceTypeLimit || spec.Price.Value() != 171 {
		t.Errorf("price = %s %.2f, want LIMIT 171", spec.Price.Type(), spec.Price.Value())
	}
	if len(spec.ClientOrderID) == 0 || len(spec.ClientOrderID) > 20 {
		t.Errorf("client order id %q must be 1-20 chars", spec.ClientOrderID)
	}
}

func TestPlaceBuyNoAccounts(t *testing.T) {
	b := newFakeBroker()
	b.accounts = nil
	p := newTestPipeline(b)

	if _, err := p.PlaceBuy(context.Background(), "AAPL", 5, 171); !errors.Is(err, errors.ErrNoAccounts) {
		t.Errorf("err = %v, want ErrNoAccounts", err)
	}
}

func TestPlaceBuyEmptyPreviewRejected(t *testing.T) {
	b := newFakeBroker()
	b.emptyPreview = true
	p := newTestPipeline(b)

	_, err := p.PlaceBuy(context.Background(), "AAPL", 5, 171)
	if !errors.Is(err, errors.ErrPreviewRejected) {
		t.Errorf("err = %v, want ErrPreviewRejected", err)
	}
	if len(b.placed) != 0 {
		t.Error("a rejected preview must never reach placement")
	}
}

func TestPlaceBuyBrokerErrorPropagates(t *testing.T) {
	b := newFakeBroker()
	b.previewErr = errors.NewBrokerError(401, "token expired", errors.ErrCredentialExpired)
	p := newTestPipeline(b)

	_, err := p.PlaceBuy(context.Background(), "AAPL", 5, 171)
	if !errors.Is(err, errors.ErrCredentialExpired) {
		t.Errorf("err = %v, want chain containing ErrCredentialExpired", err)
	}
}

func TestPlaceExitOrdersPair(t *testing.T) {
	b := newFakeBroker()
	p := newTestPipeline(b)

	tpID, slID, err := p.PlaceExitOrders(context.Background(), "acct-1", "AAPL", 5, 185, 165)
	if err != nil {
		t.Fatal(err)
	}
	if tpID != "ord-1" || slID != "ord-2" {
		t.Errorf("ids = %s/%s, want ord-1/ord-2", tpID, slID)
	}

	if len(b.placed) != 2 {
		t.Fatalf("placed %d orders, want 2", len(b.placed))
	}
	tp, sl := b.placed[0].spec, b.placed[1].spec
	if tp.Side != models.OrderSideSell || tp.Price.Type() != models.PriceTypeLimit || tp.Price.Value() != 185 {
		t.Errorf("take-profit spec = %+v", tp)
	}
	if sl.Side != models.OrderSideSell || sl.Price.Type() != models.PriceTypeStop || sl.Price.Value() != 165 {
		t.Errorf("stop-loss spec = %+v", sl)
	}
	if tp.ClientOrderID == sl.ClientOrderID {
		t.Error("each leg needs its own client order id")
	}
}

func TestPlaceExitOrdersStopLegFailure(t *testing.T) {
	// First submit (take profit) succeeds, second (stop loss) fails.
	callCount := 0
	failing := &failSecondPlace{fakeBroker: newFakeBroker(), failFrom: 2, count: &callCount}
	p := NewPipeline(failing, zerolog.Nop(), 25)

	tpID, slID, err := p.PlaceExitOrders(context.Background(), "acct-1", "AAPL", 5, 185, 165)
	if err == nil {
		t.Fatal("expected the stop leg to fail")
	}
	if tpID == "" {
		t.Error("the working take-profit id must be reported alongside the failure")
	}
	if slID != "" {
		t.Errorf("slID = %q, want empty", slID)
	}
	var orderErr *errors.OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("err = %v, want *errors.OrderError", err)
	}
	if orderErr.OrderID != tpID {
		t.Errorf("OrderID = %q, want the working take-profit id %q", orderErr.OrderID, tpID)
	}
}

// failSecondPlace delegates to fakeBroker, failing PlaceOrder from the Nth call.
type failSecondPlace struct {
	*fakeBroker
	failFrom int
	count    *int
}

func (f *failSecondPlace) PlaceOrder(ctx context.Context, accountRef string, spec models.OrderSpec, previewID string) (string, error) {
	*f.count++
	if *f.count >= f.failFrom {
		return "", errors.NewBrokerError(500, "exchange unavailable", nil)
	}
	return f.fakeBroker.PlaceOrder(ctx, accountRef, spec, previewID)
}

func TestOrderStatus(t *testing.T) {
	b := newFakeBroker()
	p := newTestPipeline(b)

	if _, err := p.PlaceBuy(context.Background(), "AAPL", 5, 171); err != nil {
		t.Fatal(err)
	}

	status, err := p.OrderStatus(context.Background(), "acct-1", "ord-1")
	if err != nil {
		t.Fatal(err)
	}
	if status != models.OrderStatusOpen {
		t.Errorf("status = %s, want OPEN", status)
	}

	if _, err := p.OrderStatus(context.Background(), "acct-1", "ord-99"); !errors.Is(err, errors.ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestVerifyMismatchCallback(t *testing.T) {
	// Hide the order list so verification cannot see the placed order.
	b := &vanishingList{fakeBroker: newFakeBroker()}
	p := NewPipeline(b, zerolog.Nop(), 25)

	var missing []string
	p.SetOnVerifyMismatch(func(orderID string) { missing = append(missing, orderID) })

	receipt, err := p.PlaceBuy(context.Background(), "AAPL", 5, 171)
	if err != nil {
		t.Fatal("verification is advisory, placement must still succeed:", err)
	}
	if len(missing) != 1 || missing[0] != receipt.OrderID {
		t.Errorf("mismatch callbacks = %v, want [%s]", missing, receipt.OrderID)
	}
}

// vanishingList hides all orders from GetOrders.
type vanishingList struct {
	*fakeBroker
}

func (v *vanishingList) GetOrders(ctx context.Context, accountRef string, count int) ([]models.BrokerOrder, error) {
	return nil, nil
}
