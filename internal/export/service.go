package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tradesignals/checkout-api/internal/checkout"
	kafkax "github.com/tradesignals/checkout-api/internal/kafka"
)

// Service mirrors verified payments into the spreadsheet ledger. Ledger is
// expected to be a ledger.Deduped so each payment lands once however many
// times its event is delivered.
type Service struct {
	Ledger  checkout.Recorder
	Logger  *slog.Logger
	Timeout time.Duration
}

// HandleKafka adapts Handle to the kafka consumer.
func (s *Service) HandleKafka(ctx context.Context, m kafkago.Message) error {
	return s.Handle(ctx, m.Value)
}

// Handle returns an error only when the delivery should be retried.
func (s *Service) Handle(ctx context.Context, body []byte) error {
	var env checkout.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// a malformed message will never decode; drop it
		s.Logger.Error("drop undecodable event", "err", err)
		return nil
	}
	if env.EventType != checkout.EventPaymentVerified {
		return nil
	}

	p, err := kafkax.UnwrapPayload[checkout.PaymentVerifiedPayload](env.Payload)
	if err != nil || p.PaymentID == "" {
		s.Logger.Error("drop event with bad payload", "event_id", env.EventID, "err", err)
		return nil
	}
	log := s.Logger.With("event_id", env.EventID, "payment_id", p.PaymentID)

	actx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	err = s.Ledger.Append(actx, p.LedgerRow())
	switch {
	case err == nil:
		log.Info("payment exported", "gateway", p.Gateway)
		return nil
	case errors.Is(err, checkout.ErrLedgerDuplicate):
		log.Debug("payment already exported")
		return nil
	case errors.Is(err, checkout.ErrLedgerUnconfigured):
		log.Warn("export skipped", "err", err)
		return nil
	}
	return fmt.Errorf("export %s: %w", p.PaymentID, err)
}

func (s *Service) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 5 * time.Second
}
