package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	defaultLedgerTimeout  = 5 * time.Second
	defaultPublishTimeout = 2 * time.Second
)

// Service sequences order creation, verification, ledger recording and
// event fan-out. It holds no per-request state; every field is read-only
// after construction.
type Service struct {
	Logger   *slog.Logger
	Prices   PriceBook
	Gateways map[Gateway]OrderGateway
	Sessions SessionLookup
	Webhooks WebhookDecoder

	// RazorpaySecret signs Razorpay completions. Empty means fail closed.
	RazorpaySecret string

	Recorder    Recorder
	Publisher   EventPublisher
	Cache       OrderCache
	ServiceName string

	GatewayTimeout time.Duration
	LedgerTimeout  time.Duration
	PublishTimeout time.Duration
	Now            func() time.Time
}

func (s *Service) CreateOrder(ctx context.Context, gw Gateway, req OrderRequest) (Order, error) {
	f := newFlow(s.log(), "gateway", gw)
	f.advance(StateOrderRequested)

	price, err := s.Prices.For(gw)
	if err != nil {
		return s.failOrder(f, err)
	}
	g := s.Gateways[gw]
	if g == nil {
		return s.failOrder(f, fmt.Errorf("%w: gateway %s not wired", ErrConfiguration, gw))
	}
	if req.CurrencyHint != "" && !strings.EqualFold(req.CurrencyHint, price.Currency) {
		f.logger.Debug("currency hint ignored", "hint", req.CurrencyHint, "currency", price.Currency)
	}

	if req.IdempotencyKey != "" && s.Cache != nil {
		cached, found, err := s.Cache.Get(ctx, gw, req.IdempotencyKey)
		switch {
		case err != nil:
			f.logger.Warn("idempotency lookup failed", "err", err)
		case found:
			f.advance(StateOrderCreated)
			f.logger.Info("order replayed", "order_id", cached.ID)
			return cached, nil
		}
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	res, err := g.CreateOrder(gctx, OrderParams{
		Price:          price,
		Country:        countryOrUnknown(req.Country),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if !errors.Is(err, ErrConfiguration) {
			err = fmt.Errorf("%w: %s: %w", ErrUpstream, gw, err)
		}
		return s.failOrder(f, err)
	}

	order := Order{
		ID:          res.ID,
		AmountMinor: price.AmountMinor,
		Currency:    price.Currency,
		Gateway:     gw,
		PublicKey:   res.PublicKey,
		RedirectURL: res.RedirectURL,
		CreatedAt:   s.now(),
	}
	if req.IdempotencyKey != "" && s.Cache != nil {
		if err := s.Cache.Put(ctx, gw, req.IdempotencyKey, order); err != nil {
			f.logger.Warn("idempotency store failed", "order_id", order.ID, "err", err)
		}
	}

	f.advance(StateOrderCreated)
	f.logger.Info("order created", "order_id", order.ID, "amount", order.AmountMinor, "currency", order.Currency)
	return order, nil
}

func (s *Service) failOrder(f *flow, err error) (Order, error) {
	f.advance(StateFailure)
	f.logger.Error("order creation failed", "err", err)
	return Order{}, err
}

// VerifyPayment handles a Razorpay completion claim. A rejected claim is
// never recorded; an accepted one is recorded best-effort.
func (s *Service) VerifyPayment(ctx context.Context, c PaymentConfirmation) (Verdict, error) {
	f := newFlow(s.log(), "gateway", GatewayRazorpay, "order_id", c.OrderID, "payment_id", c.PaymentID)
	f.advance(StateConfirmationReceived)
	f.advance(StateVerifying)

	res := VerifySignature(s.RazorpaySecret, c)
	if res.Reason == ReasonMissingFields || res.Reason == ReasonConfigError {
		return s.reject(f, res.Reason)
	}
	price, err := s.Prices.For(GatewayRazorpay)
	if err != nil {
		return s.reject(f, ReasonConfigError)
	}
	if !res.Verified {
		return s.reject(f, res.Reason)
	}

	return s.accept(ctx, f, PaymentVerifiedPayload{
		PaymentID:   c.PaymentID,
		OrderID:     c.OrderID,
		Gateway:     GatewayRazorpay,
		AmountMinor: price.AmountMinor,
		Currency:    price.Currency,
		Country:     countryOrUnknown(c.Country),
		VerifiedAt:  s.now(),
	}), nil
}

// ConfirmSession proves a hosted Stripe checkout was paid by asking Stripe,
// never by trusting that the browser reached the success page.
func (s *Service) ConfirmSession(ctx context.Context, sessionID, country string) (Verdict, error) {
	f := newFlow(s.log(), "gateway", GatewayStripe, "session_id", sessionID)
	f.advance(StateConfirmationReceived)
	f.advance(StateVerifying)

	if sessionID == "" {
		return s.reject(f, ReasonMissingFields)
	}
	price, err := s.Prices.For(GatewayStripe)
	if err != nil || s.Sessions == nil {
		return s.reject(f, ReasonConfigError)
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()
	sess, err := s.Sessions.LookupSession(gctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return s.reject(f, ReasonConfigError)
		}
		f.advance(StateRejected)
		f.advance(StateFailure)
		f.logger.Error("session lookup failed", "err", err)
		return Verdict{}, fmt.Errorf("%w: %s: %w", ErrUpstream, GatewayStripe, err)
	}

	if !sess.Paid() || !price.Matches(sess.AmountTotal, sess.Currency) {
		f.logger.Warn("session not payable", "payment_status", sess.PaymentStatus, "amount", sess.AmountTotal, "currency", sess.Currency)
		return s.reject(f, ReasonPaymentIncomplete)
	}
	if sess.Country != "" {
		country = sess.Country
	}

	return s.accept(ctx, f, s.sessionPayload(sess, price, country)), nil
}

// HandleWebhook records a checkout completed event from a signed gateway
// notification. Events that are authentic but not payable are acknowledged
// and ignored so the gateway stops retrying them.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if s.Webhooks == nil {
		s.log().Error("webhook received without decoder", "gateway", GatewayStripe)
		return fmt.Errorf("%w: webhook decoder not wired", ErrConfiguration)
	}
	ev, err := s.Webhooks.DecodeWebhook(payload, signatureHeader)
	if err != nil {
		s.log().Warn("webhook rejected", "gateway", GatewayStripe, "err", err)
		return err
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		s.log().Debug("webhook ignored", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	f := newFlow(s.log(), "gateway", GatewayStripe, "event_id", ev.ID, "session_id", ev.Session.ID)
	f.advance(StateConfirmationReceived)
	f.advance(StateVerifying)

	price, err := s.Prices.For(GatewayStripe)
	if err != nil {
		_, err = s.reject(f, ReasonConfigError)
		return err
	}
	if !ev.Session.Paid() || !price.Matches(ev.Session.AmountTotal, ev.Session.Currency) {
		s.reject(f, ReasonPaymentIncomplete)
		return nil
	}

	s.accept(ctx, f, s.sessionPayload(ev.Session, price, ev.Session.Country))
	return nil
}

func (s *Service) sessionPayload(sess HostedSession, price Price, country string) PaymentVerifiedPayload {
	return PaymentVerifiedPayload{
		PaymentID:   sess.PaymentID(),
		OrderID:     sess.ID,
		Gateway:     GatewayStripe,
		AmountMinor: price.AmountMinor,
		Currency:    price.Currency,
		Country:     countryOrUnknown(country),
		VerifiedAt:  s.now(),
	}
}

func (s *Service) reject(f *flow, reason Reason) (Verdict, error) {
	f.advance(StateRejected)
	f.advance(StateFailure)
	if reason == ReasonConfigError {
		f.logger.Error("verification unavailable", "reason", reason)
	} else {
		f.logger.Warn("verification rejected", "reason", reason)
	}
	return Verdict{Reason: reason}, errForReason(reason)
}

func (s *Service) accept(ctx context.Context, f *flow, p PaymentVerifiedPayload) Verdict {
	f.advance(StateVerified)
	outcome := s.record(ctx, f, p.LedgerRow())
	s.publish(ctx, f, p)
	f.advance(StateSuccess)
	f.logger.Info("payment verified", "payment_id", p.PaymentID, "ledger", outcome.Kind)
	return Verdict{OK: true, PaymentID: p.PaymentID, Ledger: outcome}
}

// record never fails the request. The append runs detached from the client
// connection so a dropped response does not abort bookkeeping.
func (s *Service) record(ctx context.Context, f *flow, row LedgerRow) RecordOutcome {
	f.advance(StateRecording)

	var outcome RecordOutcome
	if s.Recorder == nil {
		outcome = RecordOutcome{Kind: OutcomeSkipped, Err: ErrLedgerUnconfigured}
	} else {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ledgerTimeout())
		outcome = outcomeOf(s.Recorder.Append(lctx, row))
		cancel()
	}

	if outcome.Written() {
		f.advance(StateRecorded)
	} else {
		f.advance(StateRecordSkipped)
	}

	switch outcome.Kind {
	case OutcomeDuplicate:
		f.logger.Info("ledger row already present", "payment_id", row.PaymentID)
	case OutcomeSkipped:
		f.logger.Warn("ledger append skipped", "payment_id", row.PaymentID, "err", outcome.Err)
	case OutcomeFailed:
		f.logger.Error("ledger append failed", "payment_id", row.PaymentID, "err", outcome.Err)
	}
	return outcome
}

func (s *Service) publish(ctx context.Context, f *flow, p PaymentVerifiedPayload) {
	if s.Publisher == nil {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		f.logger.Error("marshal event", "err", err)
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventPaymentVerified,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		TraceID:       traceID(ctx),
		CorrelationID: p.PaymentID,
		Payload:       body,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout())
	defer cancel()
	if err := s.Publisher.Publish(pctx, TopicPaymentVerified, PartitionKey(p.PaymentID), env); err != nil {
		f.logger.Warn("publish payment event failed", "payment_id", p.PaymentID, "err", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) gatewayTimeout() time.Duration {
	if s.GatewayTimeout > 0 {
		return s.GatewayTimeout
	}
	return defaultGatewayTimeout
}

func (s *Service) ledgerTimeout() time.Duration {
	if s.LedgerTimeout > 0 {
		return s.LedgerTimeout
	}
	return defaultLedgerTimeout
}

func (s *Service) publishTimeout() time.Duration {
	if s.PublishTimeout > 0 {
		return s.PublishTimeout
	}
	return defaultPublishTimeout
}
