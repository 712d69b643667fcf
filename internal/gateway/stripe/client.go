package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

const defaultBaseURL = "https://api.stripe.com"

type Options struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	SiteURL       string
	ProductName   string
	Timeout       time.Duration
}

// Client talks to Stripe Checkout. It creates hosted sessions, looks them up
// to prove payment, and authenticates webhook deliveries.
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	siteURL       string
	productName   string
	client        *http.Client
	now           func() time.Time
}

func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.ProductName == "" {
		o.ProductName = "Membership"
	}
	return &Client{
		secretKey:     o.SecretKey,
		webhookSecret: o.WebhookSecret,
		baseURL:       strings.TrimRight(o.BaseURL, "/"),
		siteURL:       strings.TrimRight(o.SiteURL, "/"),
		productName:   o.ProductName,
		client:        &http.Client{Timeout: o.Timeout},
		now:           time.Now,
	}
}

type session struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	// PaymentIntent is an id string unless the caller expanded it.
	PaymentIntent json.RawMessage   `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

func (s session) hosted() checkout.HostedSession {
	return checkout.HostedSession{
		ID:              s.ID,
		PaymentStatus:   s.PaymentStatus,
		AmountTotal:     s.AmountTotal,
		Currency:        strings.ToUpper(s.Currency),
		PaymentIntentID: intentID(s.PaymentIntent),
		Country:         s.Metadata["country"],
	}
}

func intentID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if json.Unmarshal(raw, &id) == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.ID
	}
	return ""
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateOrder opens a one-line-item hosted Checkout Session at the fixed price.
func (c *Client) CreateOrder(ctx context.Context, p checkout.OrderParams) (checkout.GatewayOrder, error) {
	if c.secretKey == "" {
		return checkout.GatewayOrder{}, fmt.Errorf("%w: stripe secret key not set", checkout.ErrConfiguration)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(p.Price.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.Price.AmountMinor, 10))
	form.Set("line_items[0][price_data][product_data][name]", c.productName)
	form.Set("metadata[country]", p.Country)
	form.Set("success_url", c.siteURL+"/payment/success?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", c.siteURL+"/payment/cancel")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return checkout.GatewayOrder{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", p.IdempotencyKey)
	}

	var s session
	if err := c.do(req, &s); err != nil {
		return checkout.GatewayOrder{}, err
	}
	if s.ID == "" || s.URL == "" {
		return checkout.GatewayOrder{}, fmt.Errorf("stripe returned session without id or url")
	}
	return checkout.GatewayOrder{ID: s.ID, RedirectURL: s.URL}, nil
}

func (c *Client) LookupSession(ctx context.Context, sessionID string) (checkout.HostedSession, error) {
	if c.secretKey == "" {
		return checkout.HostedSession{}, fmt.Errorf("%w: stripe secret key not set", checkout.ErrConfiguration)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return checkout.HostedSession{}, fmt.Errorf("build request: %w", err)
	}

	var s session
	if err := c.do(req, &s); err != nil {
		return checkout.HostedSession{}, err
	}
	return s.hosted(), nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe api error (%d)", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
