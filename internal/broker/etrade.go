package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
)

// ETradeBroker implements the Broker interface against the E*TRADE REST API.
// OAuth token acquisition is handled outside this process; the broker loads an
// access token persisted by the auth command and surfaces ErrCredentialExpired
// when the API answers 401 so the caller can trigger re-authentication.
type ETradeBroker struct {
	baseURL     string
	client      *http.Client
	sessionPath string

	mu            sync.RWMutex
	accessToken   string
	authenticated bool
}

// ETradeConfig holds configuration for the E*TRADE broker.
type ETradeConfig struct {
	BaseURL     string
	SessionPath string
	Timeout     time.Duration
}

// NewETradeBroker creates a new E*TRADE broker instance.
// It automatically loads any saved session from disk.
func NewETradeBroker(cfg ETradeConfig) *ETradeBroker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	sessionPath := cfg.SessionPath
	if sessionPath == "" {
		homeDir, _ := os.UserHomeDir()
		sessionPath = filepath.Join(homeDir, ".config", "etrade-trader", "session.json")
	}

	b := &ETradeBroker{
		baseURL:     cfg.BaseURL,
		client:      &http.Client{Timeout: timeout},
		sessionPath: sessionPath,
	}
	_ = b.loadSession()
	return b
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	SavedAt     time.Time `json:"saved_at"`
}

// SaveSession persists an access token obtained from the external OAuth flow.
func (b *ETradeBroker) SaveSession(accessToken string) error {
	b.mu.Lock()
	b.accessToken = accessToken
	b.authenticated = accessToken != ""
	b.mu.Unlock()

	data, err := json.MarshalIndent(sessionData{
		AccessToken: accessToken,
		SavedAt:     time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.sessionPath), 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(b.sessionPath, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (b *ETradeBroker) loadSession() error {
	data, err := os.ReadFile(b.sessionPath)
	if err != nil {
		return err
	}
	var s sessionData
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b.mu.Lock()
	b.accessToken = s.AccessToken
	b.authenticated = s.AccessToken != ""
	b.mu.Unlock()
	return nil
}

// ClearSession removes the persisted session.
func (b *ETradeBroker) ClearSession() error {
	b.mu.Lock()
	b.accessToken = ""
	b.authenticated = false
	b.mu.Unlock()
	if err := os.Remove(b.sessionPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsAuthenticated returns whether a session token is loaded.
func (b *ETradeBroker) IsAuthenticated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.authenticated
}

func (b *ETradeBroker) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	b.mu.RLock()
	token := b.accessToken
	authed := b.authenticated
	b.mu.RUnlock()

	if !authed {
		return errors.ErrNotAuthenticated
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.NewBrokerError(0, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewBrokerError(resp.StatusCode, "reading response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		b.mu.Lock()
		b.authenticated = false
		b.mu.Unlock()
		return errors.NewBrokerError(resp.StatusCode, string(respBody), errors.ErrCredentialExpired)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errors.NewBrokerError(resp.StatusCode, string(respBody), nil)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.NewBrokerError(resp.StatusCode, "decoding response", err)
		}
	}
	return nil
}

// accountListResponse mirrors the E*TRADE account list payload.
type accountListResponse struct {
	AccountListResponse struct {
		Accounts struct {
			Account []struct {
				AccountIDKey  string `json:"accountIdKey"`
				AccountStatus string `json:"accountStatus"`
			} `json:"Account"`
		} `json:"Accounts"`
	} `json:"AccountListResponse"`
}

// GetAccounts returns the accountIdKey of each active account.
func (b *ETradeBroker) GetAccounts(ctx context.Context) ([]string, error) {
	var out accountListResponse
	if err := b.doJSON(ctx, http.MethodGet, "/v1/accounts/list.json", nil, &out); err != nil {
		return nil, err
	}

	var refs []string
	for _, a := range out.AccountListResponse.Accounts.Account {
		if a.AccountStatus == "CLOSED" {
			continue
		}
		refs = append(refs, a.AccountIDKey)
	}
	if len(refs) == 0 {
		return nil, errors.ErrNoAccounts
	}
	return refs, nil
}

// orderRequest is the Order element shared by preview and place requests.
type orderRequest struct {
	AllOrNone     bool              `json:"allOrNone"`
	PriceType     string            `json:"priceType"`
	OrderTerm     string            `json:"orderTerm"`
	MarketSession string            `json:"marketSession"`
	LimitPrice    string            `json:"limitPrice,omitempty"`
	StopPrice     string            `json:"stopPrice,omitempty"`
	Instrument    []instrumentEntry `json:"Instrument"`
}

type instrumentEntry struct {
	Product      productEntry `json:"Product"`
	OrderAction  string       `json:"orderAction"`
	QuantityType string       `json:"quantityType"`
	Quantity     int          `json:"quantity"`
}

type productEntry struct {
	SecurityType string `json:"securityType"`
	Symbol       string `json:"symbol"`
}

func buildOrderRequest(spec models.OrderSpec) orderRequest {
	req := orderRequest{
		PriceType:     string(spec.Price.Type()),
		OrderTerm:     string(spec.Term),
		MarketSession: "REGULAR",
		Instrument: []instrumentEntry{{
			Product:      productEntry{SecurityType: "EQ", Symbol: spec.Symbol},
			OrderAction:  string(spec.Side),
			QuantityType: "QUANTITY",
			Quantity:     spec.Quantity,
		}},
	}
	price := strconv.FormatFloat(spec.Price.Value(), 'f', 2, 64)
	switch spec.Price.Type() {
	case models.PriceTypeLimit:
		req.LimitPrice = price
	case models.PriceTypeStop:
		req.StopPrice = price
	}
	return req
}

type previewOrderResponse struct {
	PreviewOrderResponse struct {
		PreviewIDs []struct {
			PreviewID int64 `json:"previewId"`
		} `json:"PreviewIds"`
	} `json:"PreviewOrderResponse"`
}

// PreviewOrder submits an order preview. A response without a preview id is a
// preview rejection.
func (b *ETradeBroker) PreviewOrder(ctx context.Context, accountRef string, spec models.OrderSpec) (string, error) {
	payload := map[string]interface{}{
		"PreviewOrderRequest": map[string]interface{}{
			"orderType":     "EQ",
			"clientOrderId": spec.ClientOrderID,
			"Order":         []orderRequest{buildOrderRequest(spec)},
		},
	}

	var out previewOrderResponse
	path := fmt.Sprintf("/v1/accounts/%s/orders/preview.json", accountRef)
	if err := b.doJSON(ctx, http.MethodPost, path, payload, &out); err != nil {
		return "", err
	}
	if len(out.PreviewOrderResponse.PreviewIDs) == 0 {
		return "", errors.Wrapf(errors.ErrPreviewRejected, "%s %s x%d", spec.Side, spec.Symbol, spec.Quantity)
	}
	return strconv.FormatInt(out.PreviewOrderResponse.PreviewIDs[0].PreviewID, 10), nil
}

type placeOrderResponse struct {
	PlaceOrderResponse struct {
		OrderIDs []struct {
			OrderID int64 `json:"orderId"`
		} `json:"OrderIds"`
	} `json:"PlaceOrderResponse"`
}

// PlaceOrder places a previously previewed order.
func (b *ETradeBroker) PlaceOrder(ctx context.Context, accountRef string, spec models.OrderSpec, previewID string) (string, error) {
	pid, err := strconv.ParseInt(previewID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad preview id %q: %w", previewID, err)
	}
	payload := map[string]interface{}{
		"PlaceOrderRequest": map[string]interface{}{
			"orderType":     "EQ",
			"clientOrderId": spec.ClientOrderID,
			"PreviewIds":    []map[string]int64{{"previewId": pid}},
			"Order":         []orderRequest{buildOrderRequest(spec)},
		},
	}

	var out placeOrderResponse
	path := fmt.Sprintf("/v1/accounts/%s/orders/place.json", accountRef)
	if err := b.doJSON(ctx, http.MethodPost, path, payload, &out); err != nil {
		return "", err
	}
	if len(out.PlaceOrderResponse.OrderIDs) == 0 {
		return "", errors.Wrapf(errors.ErrPlacementFailed, "%s %s x%d", spec.Side, spec.Symbol, spec.Quantity)
	}
	return strconv.FormatInt(out.PlaceOrderResponse.OrderIDs[0].OrderID, 10), nil
}

type ordersResponse struct {
	OrdersResponse struct {
		Order []struct {
			OrderID     int64 `json:"orderId"`
			OrderDetail []struct {
				Status     string  `json:"status"`
				PlacedTime int64   `json:"placedTime"` // epoch millis
				PriceType  string  `json:"priceType"`
				LimitPrice float64 `json:"limitPrice"`
				StopPrice  float64 `json:"stopPrice"`
				Instrument []struct {
					OrderAction     string  `json:"orderAction"`
					OrderedQuantity float64 `json:"orderedQuantity"`
					Product         struct {
						Symbol string `json:"symbol"`
					} `json:"Product"`
				} `json:"Instrument"`
			} `json:"OrderDetail"`
		} `json:"Order"`
	} `json:"OrdersResponse"`
}

// GetOrders returns the account's recent orders, newest first.
func (b *ETradeBroker) GetOrders(ctx context.Context, accountRef string, count int) ([]models.BrokerOrder, error) {
	if count <= 0 {
		count = 25
	}
	var out ordersResponse
	path := fmt.Sprintf("/v1/accounts/%s/orders.json?count=%d", accountRef, count)
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	orders := make([]models.BrokerOrder, 0, len(out.OrdersResponse.Order))
	for _, o := range out.OrdersResponse.Order {
		if len(o.OrderDetail) == 0 {
			continue
		}
		d := o.OrderDetail[0]
		bo := models.BrokerOrder{
			OrderID:    strconv.FormatInt(o.OrderID, 10),
			Status:     mapOrderStatus(d.Status),
			PriceType:  models.PriceType(d.PriceType),
			LimitPrice: d.LimitPrice,
			StopPrice:  d.StopPrice,
			PlacedAt:   time.UnixMilli(d.PlacedTime),
		}
		if len(d.Instrument) > 0 {
			inst := d.Instrument[0]
			bo.Action = models.OrderSide(inst.OrderAction)
			bo.Symbol = inst.Product.Symbol
			bo.Quantity = int(inst.OrderedQuantity)
		}
		orders = append(orders, bo)
	}
	return orders, nil
}

// mapOrderStatus normalizes broker status strings. Working statuses that the
// API spells differently collapse onto OPEN/PARTIAL; unknown strings pass
// through so the fill monitor retries them.
func mapOrderStatus(s string) models.OrderStatus {
	switch s {
	case "OPEN", "PENDING", "CANCEL_REQUESTED":
		return models.OrderStatusOpen
	case "PARTIAL", "INDIVIDUAL_FILLS":
		return models.OrderStatusPartial
	case "EXECUTED":
		return models.OrderStatusExecuted
	case "CANCELLED":
		return models.OrderStatusCancelled
	case "EXPIRED":
		return models.OrderStatusExpired
	case "REJECTED":
		return models.OrderStatusRejected
	default:
		return models.OrderStatus(s)
	}
}
