package checkout

import (
	"strconv"
	"time"
)

type Gateway string

const (
	GatewayRazorpay Gateway = "Razorpay"
	GatewayStripe   Gateway = "Stripe"
)

// Order is a gateway-backed purchase intent. The gateway is the system of
// record; the service never persists it.
type Order struct {
	ID          string    `json:"id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Gateway     Gateway   `json:"gateway"`
	PublicKey   string    `json:"public_key,omitempty"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrderRequest has no amount: price always comes from the PriceBook.
type OrderRequest struct {
	CurrencyHint   string
	Country        string
	IdempotencyKey string
}

// PaymentConfirmation is untrusted client input until VerifySignature accepts it.
type PaymentConfirmation struct {
	OrderID   string
	PaymentID string
	Signature string
	Country   string
}

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMissingFields     Reason = "MissingFields"
	ReasonBadSignature      Reason = "BadSignature"
	ReasonConfigError       Reason = "ConfigError"
	ReasonPaymentIncomplete Reason = "PaymentIncomplete"
)

type VerificationResult struct {
	Verified bool
	Reason   Reason
}

type LedgerStatus string

const LedgerStatusSuccess LedgerStatus = "SUCCESS"

type LedgerRow struct {
	Timestamp   time.Time
	Country     string
	Gateway     Gateway
	AmountMinor int64
	Currency    string
	PaymentID   string
	Status      LedgerStatus
}

// Values returns the row in ledger column order:
// Timestamp, Country, Gateway, Amount, Currency, PaymentId, Status.
// Downstream reconciliation depends on this order.
func (r LedgerRow) Values() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Country,
		string(r.Gateway),
		strconv.FormatInt(r.AmountMinor, 10),
		r.Currency,
		r.PaymentID,
		string(r.Status),
	}
}

// Verdict is what the client is told about a completion claim.
type Verdict struct {
	OK        bool
	Reason    Reason
	PaymentID string
	Ledger    RecordOutcome
}

const unknownCountry = "Unknown"

func countryOrUnknown(c string) string {
	if c == "" {
		return unknownCountry
	}
	return c
}
