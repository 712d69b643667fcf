package checkout

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventPaymentVerified = "PaymentVerified"

	TopicPaymentVerified = "payment.verified"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // payment id
	Payload       json.RawMessage `json:"payload"`
}

type PaymentVerifiedPayload struct {
	PaymentID   string    `json:"payment_id"`
	OrderID     string    `json:"order_id,omitempty"`
	Gateway     Gateway   `json:"gateway"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Country     string    `json:"country"`
	VerifiedAt  time.Time `json:"verified_at"`
}

func (p PaymentVerifiedPayload) LedgerRow() LedgerRow {
	return LedgerRow{
		Timestamp:   p.VerifiedAt,
		Country:     countryOrUnknown(p.Country),
		Gateway:     p.Gateway,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
		PaymentID:   p.PaymentID,
		Status:      LedgerStatusSuccess,
	}
}

// PartitionKey keeps every event for one payment on the same partition.
func PartitionKey(paymentID string) []byte { return []byte(paymentID) }

// EventPublisher fans verified payments out to other services.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, env Envelope) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, []byte, Envelope) error { return nil }

// NoopPublisher is used when EVENTS_BROKER=none.
var NoopPublisher EventPublisher = noopPublisher{}
