package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
	"pdv-sorveteria/service"
)

const defaultTimeout = 10 * time.Second

// PointConfig holds the card terminal and Pix point-of-sale credentials
type PointConfig struct {
	BaseURL     string
	AccessToken string
	DeviceID    string
	CollectorID string
	POSID       string
	Timeout     time.Duration
}

// PointClient talks to the card terminal integration API and the in-store
// QR API over HTTPS. Amounts are sent in centavos.
type PointClient struct {
	httpClient *http.Client
	cfg        PointConfig

	mu      sync.Mutex
	lastRef string
}

var _ service.PaymentGatewayInterface = (*PointClient)(nil)

// NewPointClient creates a new PointClient
func NewPointClient(cfg PointConfig) *PointClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PointClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

// flexibleID accepts ids sent either as JSON numbers or strings
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexibleID(s)
	return nil
}

type intentRequest struct {
	Amount         int64                `json:"amount"`
	AdditionalInfo intentAdditionalInfo `json:"additional_info"`
	Payment        *intentPayment       `json:"payment,omitempty"`
}

type intentAdditionalInfo struct {
	ExternalReference string `json:"external_reference"`
	PrintOnTerminal   bool   `json:"print_on_terminal"`
}

type intentPayment struct {
	Type string `json:"type"`
}

type intentResponse struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Payment struct {
		ID flexibleID `json:"id"`
	} `json:"payment"`
	AdditionalInfo struct {
		ExternalReference string `json:"external_reference"`
	} `json:"additional_info"`
}

type qrOrderRequest struct {
	ExternalReference string `json:"external_reference"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	TotalAmount       int64  `json:"total_amount"`
}

type qrOrderResponse struct {
	InStoreOrderID string `json:"in_store_order_id"`
	QRData         string `json:"qr_data"`
}

type posOrderResponse struct {
	ID                flexibleID `json:"id"`
	ExternalReference string     `json:"external_reference"`
	Status            string     `json:"status"`
	PaymentID         flexibleID `json:"payment_id"`
}

type merchantOrderSearch struct {
	Elements []struct {
		ID          flexibleID `json:"id"`
		Status      string     `json:"status"`
		OrderStatus string     `json:"order_status"`
		Payments    []struct {
			ID     flexibleID `json:"id"`
			Status string     `json:"status"`
		} `json:"payments"`
	} `json:"elements"`
}

// NormalizeStatus maps provider status strings onto the intent vocabulary.
// Unknown values are returned upper-cased.
func NormalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "open", "opened", "pending", "created":
		return string(models.IntentOpen)
	case "on_terminal":
		return string(models.IntentOnTerminal)
	case "processing", "in_process":
		return string(models.IntentProcessing)
	case "finished", "closed", "paid", "approved":
		return string(models.IntentFinished)
	case "canceled", "cancelled", "expired":
		return string(models.IntentCanceled)
	case "abandoned":
		return string(models.IntentAbandoned)
	default:
		return strings.ToUpper(status)
	}
}

func (c *PointClient) posOrdersURL() string {
	return fmt.Sprintf("%s/instore/qr/seller/collectors/%s/pos/%s/orders",
		c.cfg.BaseURL, url.PathEscape(c.cfg.CollectorID), url.PathEscape(c.cfg.POSID))
}

// do sends a request and decodes a JSON answer into out. It returns the
// status code so callers can treat 404 specially.
func (c *PointClient) do(ctx context.Context, op, method, endpoint string, body any, out any, okStatus ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, &models.GatewayError{Op: op, Err: fmt.Errorf("error encoding request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, &models.GatewayError{Op: op, Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &models.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &models.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("error reading response: %w", err)}
	}

	if len(okStatus) == 0 {
		okStatus = []int{http.StatusOK, http.StatusCreated}
	}
	accepted := false
	for _, code := range okStatus {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		return resp.StatusCode, &models.GatewayError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, &models.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("error decoding response: %w", err)}
		}
	}
	return resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// CreateCardIntent sends the amount to the card terminal
func (c *PointClient) CreateCardIntent(ctx context.Context, amount int64, correlationID string, kind models.CardKind) (models.IntentHandle, error) {
	endpoint := fmt.Sprintf("%s/point/integration-api/devices/%s/payment-intents", c.cfg.BaseURL, url.PathEscape(c.cfg.DeviceID))
	body := intentRequest{
		Amount: amount,
		AdditionalInfo: intentAdditionalInfo{
			ExternalReference: correlationID,
			PrintOnTerminal:   true,
		},
	}
	if kind != models.CardUnspecified {
		body.Payment = &intentPayment{Type: string(kind)}
	}

	var resp intentResponse
	if _, err := c.do(ctx, "create payment intent", http.MethodPost, endpoint, body, &resp); err != nil {
		return models.IntentHandle{}, err
	}
	if resp.ID == "" {
		return models.IntentHandle{}, &models.GatewayError{Op: "create payment intent", Err: fmt.Errorf("response without intent id")}
	}
	log.WithFields(log.Fields{"intentId": resp.ID, "saleId": correlationID, "amount": amount}).Info("📟 Payment intent created")
	return models.IntentHandle{ID: resp.ID, CorrelationID: correlationID}, nil
}

// PollIntent reads the state of a card intent
func (c *PointClient) PollIntent(ctx context.Context, handle models.IntentHandle) (models.IntentStatus, error) {
	endpoint := fmt.Sprintf("%s/point/integration-api/payment-intents/%s", c.cfg.BaseURL, url.PathEscape(handle.ID))

	var resp intentResponse
	if _, err := c.do(ctx, "poll payment intent", http.MethodGet, endpoint, nil, &resp); err != nil {
		return models.IntentStatus{}, err
	}
	return models.IntentStatus{
		State:     models.IntentState(NormalizeStatus(resp.State)),
		PaymentID: string(resp.Payment.ID),
	}, nil
}

// CreatePixOrder publishes a QR order on the point of sale
func (c *PointClient) CreatePixOrder(ctx context.Context, amount int64, correlationID string) (models.PixOrder, error) {
	endpoint := fmt.Sprintf("%s/instore/orders/qr/seller/collectors/%s/pos/%s/qrs",
		c.cfg.BaseURL, url.PathEscape(c.cfg.CollectorID), url.PathEscape(c.cfg.POSID))
	body := qrOrderRequest{
		ExternalReference: correlationID,
		Title:             "Venda",
		Description:       "Venda " + correlationID,
		TotalAmount:       amount,
	}

	var resp qrOrderResponse
	if _, err := c.do(ctx, "create pix order", http.MethodPost, endpoint, body, &resp); err != nil {
		return models.PixOrder{}, err
	}
	if resp.QRData == "" {
		return models.PixOrder{}, &models.GatewayError{Op: "create pix order", Err: fmt.Errorf("response without QR data")}
	}

	c.mu.Lock()
	c.lastRef = correlationID
	c.mu.Unlock()

	log.WithFields(log.Fields{"orderId": resp.InStoreOrderID, "saleId": correlationID, "amount": amount}).Info("📱 Pix order created")
	return models.PixOrder{Handle: resp.InStoreOrderID, CorrelationID: correlationID, QRPayload: resp.QRData}, nil
}

// PollPixOrder reads the order currently published on the point of sale.
// A paid order leaves the point of sale, so when there is none the last
// created reference is looked up among merchant orders.
func (c *PointClient) PollPixOrder(ctx context.Context) (models.PixOrderStatus, error) {
	var resp posOrderResponse
	code, err := c.do(ctx, "poll pix order", http.MethodGet, c.posOrdersURL(), nil, &resp)
	if code == http.StatusNotFound {
		return c.lastOrderOutcome(ctx)
	}
	if err != nil {
		return models.PixOrderStatus{}, err
	}
	return models.PixOrderStatus{
		OrderID:       string(resp.ID),
		CorrelationID: resp.ExternalReference,
		Status:        NormalizeStatus(resp.Status),
		PaymentID:     string(resp.PaymentID),
	}, nil
}

func (c *PointClient) lastOrderOutcome(ctx context.Context) (models.PixOrderStatus, error) {
	c.mu.Lock()
	ref := c.lastRef
	c.mu.Unlock()
	if ref == "" {
		return models.PixOrderStatus{}, nil
	}

	endpoint := fmt.Sprintf("%s/merchant_orders/search?external_reference=%s", c.cfg.BaseURL, url.QueryEscape(ref))
	var search merchantOrderSearch
	if _, err := c.do(ctx, "search merchant orders", http.MethodGet, endpoint, nil, &search); err != nil {
		return models.PixOrderStatus{}, err
	}
	for _, el := range search.Elements {
		for _, p := range el.Payments {
			if strings.EqualFold(p.Status, "approved") {
				return models.PixOrderStatus{
					CorrelationID: ref,
					Status:        models.PixPaid,
					PaymentID:     string(p.ID),
				}, nil
			}
		}
	}
	return models.PixOrderStatus{}, nil
}

// CancelPixOrder removes the order published on the point of sale. No
// order is not an error.
func (c *PointClient) CancelPixOrder(ctx context.Context) error {
	_, err := c.do(ctx, "cancel pix order", http.MethodDelete, c.posOrdersURL(), nil, nil,
		http.StatusOK, http.StatusNoContent, http.StatusNotFound)
	return err
}
