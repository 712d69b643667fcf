package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfirmation() PaymentConfirmation {
	return PaymentConfirmation{
		OrderID:   "order_AA1",
		PaymentID: "pay_BB2",
		Signature: ExpectedSignature("topsecret", "order_AA1", "pay_BB2"),
		Country:   "IN",
	}
}

func TestCreateOrderUsesServerPrice(t *testing.T) {
	h := newHarness()

	for _, hint := range []string{"", "USD", "inr", "JPY"} {
		order, err := h.svc.CreateOrder(context.Background(), GatewayRazorpay, OrderRequest{CurrencyHint: hint})
		require.NoError(t, err)
		assert.Equal(t, int64(60000), order.AmountMinor)
		assert.Equal(t, "INR", order.Currency)
		assert.Equal(t, "order_mock", order.ID)
		assert.Equal(t, "rzp_test_key", order.PublicKey)
		assert.Equal(t, GatewayRazorpay, order.Gateway)
		assert.Equal(t, fixedNow, order.CreatedAt)
	}

	for _, call := range h.razorpay.calls {
		assert.Equal(t, Price{AmountMinor: 60000, Currency: "INR"}, call.Price)
	}
}

func TestCreateOrderPerGatewayPrices(t *testing.T) {
	h := newHarness()
	h.stripe.CreateFn = func(_ context.Context, p OrderParams) (GatewayOrder, error) {
		return GatewayOrder{ID: "cs_test_1", RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
	}

	order, err := h.svc.CreateOrder(context.Background(), GatewayStripe, OrderRequest{Country: "US"})
	require.NoError(t, err)

	assert.Equal(t, int64(4900), order.AmountMinor)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", order.RedirectURL)
	assert.Equal(t, "US", h.stripe.calls[0].Country)
}

func TestCreateOrderFailsClosed(t *testing.T) {
	t.Run("missing price", func(t *testing.T) {
		h := newHarness()
		delete(h.svc.Prices, GatewayRazorpay)

		_, err := h.svc.CreateOrder(context.Background(), GatewayRazorpay, OrderRequest{})
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Zero(t, h.razorpay.Calls())
	})

	t.Run("gateway credentials missing", func(t *testing.T) {
		h := newHarness()
		h.razorpay.CreateFn = func(context.Context, OrderParams) (GatewayOrder, error) {
			return GatewayOrder{}, ErrConfiguration
		}

		_, err := h.svc.CreateOrder(context.Background(), GatewayRazorpay, OrderRequest{})
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.NotErrorIs(t, err, ErrUpstream)
	})

	t.Run("gateway not wired", func(t *testing.T) {
		h := newHarness()
		delete(h.svc.Gateways, GatewayStripe)

		_, err := h.svc.CreateOrder(context.Background(), GatewayStripe, OrderRequest{})
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestCreateOrderUpstreamError(t *testing.T) {
	h := newHarness()
	h.razorpay.CreateFn = func(context.Context, OrderParams) (GatewayOrder, error) {
		return GatewayOrder{}, errMockUpstream
	}

	_, err := h.svc.CreateOrder(context.Background(), GatewayRazorpay, OrderRequest{})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, errMockUpstream)
	assert.Equal(t, 1, h.razorpay.Calls(), "no retry")
}

func TestCreateOrderTimeoutIsUpstreamError(t *testing.T) {
	h := newHarness()
	h.svc.GatewayTimeout = 20 * time.Millisecond
	h.razorpay.CreateFn = func(ctx context.Context, _ OrderParams) (GatewayOrder, error) {
		<-ctx.Done()
		return GatewayOrder{}, ctx.Err()
	}

	_, err := h.svc.CreateOrder(context.Background(), GatewayRazorpay, OrderRequest{})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateOrderIdempotencyReplay(t *testing.T) {
	h := newHarness()
	h.svc.Cache = &memCache{}

	first, err := h.svc.CreateOrder(context.Background(), GatewayRazorpay, OrderRequest{IdempotencyKey: "idem-1"})
	require.NoError(t, err)
	second, err := h.svc.CreateOrder(context.Background(), GatewayRazorpay, OrderRequest{IdempotencyKey: "idem-1"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.razorpay.Calls())
	assert.Equal(t, "idem-1", h.razorpay.calls[0].IdempotencyKey)

	// same key on the other gateway is a different order
	_, err = h.svc.CreateOrder(context.Background(), GatewayStripe, OrderRequest{IdempotencyKey: "idem-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.stripe.Calls())
}

func TestVerifyPaymentSuccessRecordsAndPublishes(t *testing.T) {
	h := newHarness()

	verdict, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	require.NoError(t, err)

	assert.True(t, verdict.OK)
	assert.Equal(t, "pay_BB2", verdict.PaymentID)
	assert.Equal(t, OutcomeRecorded, verdict.Ledger.Kind)

	rows := h.recorder.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, LedgerRow{
		Timestamp:   fixedNow,
		Country:     "IN",
		Gateway:     GatewayRazorpay,
		AmountMinor: 60000,
		Currency:    "INR",
		PaymentID:   "pay_BB2",
		Status:      LedgerStatusSuccess,
	}, rows[0])

	require.Len(t, h.publisher.events, 1)
	ev := h.publisher.events[0]
	assert.Equal(t, TopicPaymentVerified, ev.topic)
	assert.Equal(t, "pay_BB2", ev.key)
	assert.Equal(t, EventPaymentVerified, ev.env.EventType)
	assert.Equal(t, "checkout-api", ev.env.Producer)

	var payload PaymentVerifiedPayload
	require.NoError(t, json.Unmarshal(ev.env.Payload, &payload))
	assert.Equal(t, rows[0], payload.LedgerRow())
}

func TestVerifyPaymentRejections(t *testing.T) {
	flipped := []byte(validConfirmation().Signature)
	flipped[10] ^= 0x01

	tests := []struct {
		name    string
		secret  string
		mutate  func(c *PaymentConfirmation)
		reason  Reason
		wantErr error
	}{
		{
			name:    "flipped character",
			secret:  "topsecret",
			mutate:  func(c *PaymentConfirmation) { c.Signature = string(flipped) },
			reason:  ReasonBadSignature,
			wantErr: ErrSignatureMismatch,
		},
		{
			name:    "missing payment id",
			secret:  "topsecret",
			mutate:  func(c *PaymentConfirmation) { c.PaymentID = "" },
			reason:  ReasonMissingFields,
			wantErr: ErrValidation,
		},
		{
			name:    "secret unset",
			secret:  "",
			mutate:  func(c *PaymentConfirmation) {},
			reason:  ReasonConfigError,
			wantErr: ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.svc.RazorpaySecret = tt.secret
			c := validConfirmation()
			tt.mutate(&c)

			verdict, err := h.svc.VerifyPayment(context.Background(), c)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, verdict.OK)
			assert.Equal(t, tt.reason, verdict.Reason)
			assert.Empty(t, h.recorder.Rows(), "unverified payment recorded")
			assert.Empty(t, h.publisher.events)
			assert.NotContains(t, h.logs.String(), validConfirmation().Signature)
		})
	}
}

func TestVerifyPaymentMissingPriceFailsClosed(t *testing.T) {
	h := newHarness()
	delete(h.svc.Prices, GatewayRazorpay)

	verdict, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, ReasonConfigError, verdict.Reason)
	assert.Empty(t, h.recorder.Rows())
}

func TestLedgerFailureDoesNotGateVerdict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind OutcomeKind
	}{
		{"write failure", errors.Join(ErrLedgerWrite, errors.New("sheets 503")), OutcomeFailed},
		{"unclassified failure", errors.New("boom"), OutcomeFailed},
		{"credentials missing", ErrLedgerUnconfigured, OutcomeSkipped},
		{"duplicate payment", ErrLedgerDuplicate, OutcomeDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.recorder.AppendFn = func(context.Context, LedgerRow) error { return tt.err }

			verdict, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
			require.NoError(t, err)
			assert.True(t, verdict.OK)
			assert.Equal(t, tt.kind, verdict.Ledger.Kind)
		})
	}
}

func TestLedgerFailureIsLogged(t *testing.T) {
	h := newHarness()
	h.recorder.AppendFn = func(context.Context, LedgerRow) error { return ErrLedgerWrite }

	verdict, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Contains(t, h.logs.String(), "ledger append failed")
}

func TestNilRecorderSkips(t *testing.T) {
	h := newHarness()
	h.svc.Recorder = nil

	verdict, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, OutcomeSkipped, verdict.Ledger.Kind)
}

func TestLedgerAppendSurvivesClientCancel(t *testing.T) {
	h := newHarness()
	var appendErr error
	h.recorder.AppendFn = func(ctx context.Context, _ LedgerRow) error {
		appendErr = ctx.Err()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	verdict, err := h.svc.VerifyPayment(ctx, validConfirmation())
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.NoError(t, appendErr)
}

func TestPublishFailureDoesNotGateVerdict(t *testing.T) {
	h := newHarness()
	h.publisher.err = errors.New("broker down")

	verdict, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, OutcomeRecorded, verdict.Ledger.Kind)
}

func TestPublishHasItsOwnTimeout(t *testing.T) {
	h := newHarness()
	h.svc.LedgerTimeout = 5 * time.Second
	h.svc.PublishTimeout = 300 * time.Millisecond

	_, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	require.NoError(t, err)

	h.publisher.mu.Lock()
	defer h.publisher.mu.Unlock()
	assert.Greater(t, h.publisher.budget, time.Duration(0))
	assert.LessOrEqual(t, h.publisher.budget, 300*time.Millisecond)
}

func TestVerifyPaymentReplayRecomputes(t *testing.T) {
	h := newHarness()
	calls := 0
	h.recorder.AppendFn = func(context.Context, LedgerRow) error {
		calls++
		if calls > 1 {
			return ErrLedgerDuplicate
		}
		return nil
	}

	first, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	require.NoError(t, err)
	second, err := h.svc.VerifyPayment(context.Background(), validConfirmation())
	require.NoError(t, err)

	assert.True(t, first.OK)
	assert.True(t, second.OK)
	assert.Equal(t, OutcomeRecorded, first.Ledger.Kind)
	assert.Equal(t, OutcomeDuplicate, second.Ledger.Kind)
}

func paidSession() HostedSession {
	return HostedSession{
		ID:              "cs_test_1",
		PaymentStatus:   "paid",
		AmountTotal:     4900,
		Currency:        "usd",
		PaymentIntentID: "pi_123",
		Country:         "DE",
	}
}

func TestConfirmSession(t *testing.T) {
	tests := []struct {
		name    string
		session func() HostedSession
		ok      bool
		reason  Reason
	}{
		{"paid", paidSession, true, ReasonNone},
		{"unpaid", func() HostedSession { s := paidSession(); s.PaymentStatus = "unpaid"; return s }, false, ReasonPaymentIncomplete},
		{"wrong amount", func() HostedSession { s := paidSession(); s.AmountTotal = 1; return s }, false, ReasonPaymentIncomplete},
		{"wrong currency", func() HostedSession { s := paidSession(); s.Currency = "eur"; return s }, false, ReasonPaymentIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.svc.Sessions = &mockSessions{LookupFn: func(_ context.Context, id string) (HostedSession, error) {
				require.Equal(t, "cs_test_1", id)
				return tt.session(), nil
			}}

			verdict, err := h.svc.ConfirmSession(context.Background(), "cs_test_1", "US")
			assert.Equal(t, tt.ok, verdict.OK)
			assert.Equal(t, tt.reason, verdict.Reason)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrPaymentIncomplete)
				assert.Empty(t, h.recorder.Rows())
				return
			}
			require.NoError(t, err)
			rows := h.recorder.Rows()
			require.Len(t, rows, 1)
			assert.Equal(t, "pi_123", rows[0].PaymentID)
			assert.Equal(t, "DE", rows[0].Country, "gateway metadata wins over client country")
			assert.Equal(t, int64(4900), rows[0].AmountMinor)
			assert.Equal(t, "USD", rows[0].Currency)
			assert.Equal(t, GatewayStripe, rows[0].Gateway)
		})
	}
}

func TestConfirmSessionFailures(t *testing.T) {
	t.Run("missing session id", func(t *testing.T) {
		h := newHarness()
		_, err := h.svc.ConfirmSession(context.Background(), "", "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("no lookup wired", func(t *testing.T) {
		h := newHarness()
		_, err := h.svc.ConfirmSession(context.Background(), "cs_1", "")
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("gateway key missing", func(t *testing.T) {
		h := newHarness()
		h.svc.Sessions = &mockSessions{LookupFn: func(context.Context, string) (HostedSession, error) {
			return HostedSession{}, ErrConfiguration
		}}
		_, err := h.svc.ConfirmSession(context.Background(), "cs_1", "")
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("upstream failure", func(t *testing.T) {
		h := newHarness()
		h.svc.Sessions = &mockSessions{LookupFn: func(context.Context, string) (HostedSession, error) {
			return HostedSession{}, errMockUpstream
		}}
		verdict, err := h.svc.ConfirmSession(context.Background(), "cs_1", "")
		assert.ErrorIs(t, err, ErrUpstream)
		assert.False(t, verdict.OK)
		assert.Empty(t, h.recorder.Rows())
	})
}

func TestHandleWebhook(t *testing.T) {
	t.Run("completed and paid is recorded", func(t *testing.T) {
		h := newHarness()
		h.svc.Webhooks = &mockWebhooks{DecodeFn: func([]byte, string) (WebhookEvent, error) {
			return WebhookEvent{ID: "evt_1", Type: "checkout.session.completed", Session: paidSession()}, nil
		}}

		require.NoError(t, h.svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc"))
		rows := h.recorder.Rows()
		require.Len(t, rows, 1)
		assert.Equal(t, "pi_123", rows[0].PaymentID)
	})

	t.Run("forged signature is rejected", func(t *testing.T) {
		h := newHarness()
		h.svc.Webhooks = &mockWebhooks{DecodeFn: func([]byte, string) (WebhookEvent, error) {
			return WebhookEvent{}, ErrSignatureMismatch
		}}

		err := h.svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc")
		assert.ErrorIs(t, err, ErrSignatureMismatch)
		assert.Empty(t, h.recorder.Rows())
	})

	t.Run("unpaid completion is acknowledged but not recorded", func(t *testing.T) {
		h := newHarness()
		h.svc.Webhooks = &mockWebhooks{DecodeFn: func([]byte, string) (WebhookEvent, error) {
			s := paidSession()
			s.PaymentStatus = "unpaid"
			return WebhookEvent{ID: "evt_2", Type: "checkout.session.completed", Session: s}, nil
		}}

		assert.NoError(t, h.svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc"))
		assert.Empty(t, h.recorder.Rows())
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		h := newHarness()
		h.svc.Webhooks = &mockWebhooks{DecodeFn: func([]byte, string) (WebhookEvent, error) {
			return WebhookEvent{ID: "evt_3", Type: "customer.created"}, nil
		}}

		assert.NoError(t, h.svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc"))
		assert.Empty(t, h.recorder.Rows())
	})

	t.Run("no decoder wired", func(t *testing.T) {
		h := newHarness()
		err := h.svc.HandleWebhook(context.Background(), []byte(`{}`), "")
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestTraceIDPropagatesToEvents(t *testing.T) {
	h := newHarness()
	ctx := WithTraceID(context.Background(), "req-42")

	_, err := h.svc.VerifyPayment(ctx, validConfirmation())
	require.NoError(t, err)
	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, "req-42", h.publisher.events[0].env.TraceID)
}

func TestLedgerRowValuesColumnOrder(t *testing.T) {
	row := LedgerRow{
		Timestamp:   fixedNow,
		Country:     "IN",
		Gateway:     GatewayRazorpay,
		AmountMinor: 60000,
		Currency:    "INR",
		PaymentID:   "pay_BB2",
		Status:      LedgerStatusSuccess,
	}

	assert.Equal(t, []string{"2026-03-01T12:00:00Z", "IN", "Razorpay", "60000", "INR", "pay_BB2", "SUCCESS"}, row.Values())
}
