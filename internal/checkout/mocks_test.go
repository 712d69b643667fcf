package checkout

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var errMockUpstream = errors.New("connection reset")

type mockGateway struct {
	mu       sync.Mutex
	calls    []OrderParams
	CreateFn func(ctx context.Context, p OrderParams) (GatewayOrder, error)
}

func (m *mockGateway) CreateOrder(ctx context.Context, p OrderParams) (GatewayOrder, error) {
	m.mu.Lock()
	m.calls = append(m.calls, p)
	m.mu.Unlock()
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	return GatewayOrder{ID: "order_mock", PublicKey: "rzp_test_key"}, nil
}

func (m *mockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockRecorder struct {
	mu       sync.Mutex
	rows     []LedgerRow
	AppendFn func(ctx context.Context, row LedgerRow) error
}

func (m *mockRecorder) Append(ctx context.Context, row LedgerRow) error {
	m.mu.Lock()
	m.rows = append(m.rows, row)
	m.mu.Unlock()
	if m.AppendFn != nil {
		return m.AppendFn(ctx, row)
	}
	return nil
}

func (m *mockRecorder) Rows() []LedgerRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LedgerRow(nil), m.rows...)
}

type mockSessions struct {
	LookupFn func(ctx context.Context, id string) (HostedSession, error)
}

func (m *mockSessions) LookupSession(ctx context.Context, id string) (HostedSession, error) {
	return m.LookupFn(ctx, id)
}

type mockWebhooks struct {
	DecodeFn func(payload []byte, header string) (WebhookEvent, error)
}

func (m *mockWebhooks) DecodeWebhook(payload []byte, header string) (WebhookEvent, error) {
	return m.DecodeFn(payload, header)
}

type publishedEvent struct {
	topic string
	key   string
	env   Envelope
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	budget time.Duration
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, key []byte, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{topic: topic, key: string(key), env: env})
	if dl, ok := ctx.Deadline(); ok {
		m.budget = time.Until(dl)
	}
	return m.err
}

type memCache struct {
	mu     sync.Mutex
	orders map[string]Order
}

func (c *memCache) Get(_ context.Context, gw Gateway, key string) (Order, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[string(gw)+":"+key]
	return o, ok, nil
}

func (c *memCache) Put(_ context.Context, gw Gateway, key string, o Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orders == nil {
		c.orders = map[string]Order{}
	}
	c.orders[string(gw)+":"+key] = o
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	razorpay  *mockGateway
	stripe    *mockGateway
	recorder  *mockRecorder
	publisher *mockPublisher
	logs      *bytes.Buffer
}

func newHarness() *harness {
	logs := &bytes.Buffer{}
	h := &harness{
		razorpay:  &mockGateway{},
		stripe:    &mockGateway{},
		recorder:  &mockRecorder{},
		publisher: &mockPublisher{},
		logs:      logs,
	}
	h.svc = &Service{
		Logger: slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Prices: PriceBook{
			GatewayRazorpay: {AmountMinor: 60000, Currency: "INR"},
			GatewayStripe:   {AmountMinor: 4900, Currency: "USD"},
		},
		Gateways: map[Gateway]OrderGateway{
			GatewayRazorpay: h.razorpay,
			GatewayStripe:   h.stripe,
		},
		RazorpaySecret: "topsecret",
		Recorder:       h.recorder,
		Publisher:      h.publisher,
		ServiceName:    "checkout-api",
		GatewayTimeout: time.Second,
		LedgerTimeout:  time.Second,
		Now:            func() time.Time { return fixedNow },
	}
	return h
}
