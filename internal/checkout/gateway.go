package checkout

import "context"

type OrderParams struct {
	Price          Price
	Country        string
	IdempotencyKey string
}

// GatewayOrder is what a gateway hands back for a new order or session.
type GatewayOrder struct {
	ID          string
	PublicKey   string
	RedirectURL string
}

// OrderGateway creates priced orders. Implementations return
// ErrConfiguration when their credentials are absent.
type OrderGateway interface {
	CreateOrder(ctx context.Context, p OrderParams) (GatewayOrder, error)
}

// HostedSession is the gateway's own view of a hosted checkout.
type HostedSession struct {
	ID              string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	PaymentIntentID string
	Country         string
}

func (h HostedSession) Paid() bool { return h.PaymentStatus == "paid" }

// PaymentID is the natural ledger key: the payment intent when the gateway
// reports one, the session otherwise.
func (h HostedSession) PaymentID() string {
	if h.PaymentIntentID != "" {
		return h.PaymentIntentID
	}
	return h.ID
}

type SessionLookup interface {
	LookupSession(ctx context.Context, sessionID string) (HostedSession, error)
}

type WebhookEvent struct {
	ID      string
	Type    string
	Session HostedSession
}

// WebhookDecoder authenticates and parses an asynchronous gateway
// notification. It returns ErrSignatureMismatch for forged or stale payloads.
type WebhookDecoder interface {
	DecodeWebhook(payload []byte, signatureHeader string) (WebhookEvent, error)
}

// OrderCache replays orders created under the same idempotency key.
type OrderCache interface {
	Get(ctx context.Context, gw Gateway, key string) (Order, bool, error)
	Put(ctx context.Context, gw Gateway, key string, o Order) error
}

type traceKey struct{}

// WithTraceID attaches a request id that ends up on published events.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
