package razorpay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

const defaultBaseURL = "https://api.razorpay.com"

// Client creates Razorpay orders. The key secret never leaves the server;
// only the key id is handed to the browser widget.
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

func New(keyID, keySecret, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

const maxReceiptLen = 40

// receipt labels the order with the caller's idempotency key so orders can
// be traced back to it in the dashboard. Razorpay does not enforce unique
// receipts; replay is handled by the order cache. Keys too long to fit are
// hashed rather than cut so distinct keys never share a receipt.
func receipt(idempotencyKey string) string {
	switch {
	case idempotencyKey == "":
		return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	case len(idempotencyKey) <= maxReceiptLen:
		return idempotencyKey
	}
	sum := sha256.Sum256([]byte(idempotencyKey))
	return "idem_" + hex.EncodeToString(sum[:])[:maxReceiptLen-len("idem_")]
}

func (c *Client) CreateOrder(ctx context.Context, p checkout.OrderParams) (checkout.GatewayOrder, error) {
	if c.keyID == "" || c.keySecret == "" {
		return checkout.GatewayOrder{}, fmt.Errorf("%w: razorpay keys not set", checkout.ErrConfiguration)
	}

	body, err := json.Marshal(orderRequest{
		Amount:   p.Price.AmountMinor,
		Currency: p.Price.Currency,
		Receipt:  receipt(p.IdempotencyKey),
		Notes:    map[string]string{"country": p.Country},
	})
	if err != nil {
		return checkout.GatewayOrder{}, fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return checkout.GatewayOrder{}, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return checkout.GatewayOrder{}, fmt.Errorf("razorpay request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return checkout.GatewayOrder{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Description != "" {
			return checkout.GatewayOrder{}, fmt.Errorf("razorpay api error (%d): %s", resp.StatusCode, apiErr.Error.Description)
		}
		return checkout.GatewayOrder{}, fmt.Errorf("razorpay api error (%d)", resp.StatusCode)
	}

	var order orderResponse
	if err := json.Unmarshal(respBody, &order); err != nil {
		return checkout.GatewayOrder{}, fmt.Errorf("decode order: %w", err)
	}
	if order.ID == "" {
		return checkout.GatewayOrder{}, fmt.Errorf("razorpay returned order without id")
	}

	return checkout.GatewayOrder{ID: order.ID, PublicKey: c.keyID}, nil
}
