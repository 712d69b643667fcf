package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

// Tolerance bounds how old a signed delivery may be before it is treated as a replay.
const Tolerance = 5 * time.Minute

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// DecodeWebhook checks the Stripe-Signature header and parses the event.
// Only checkout.session.* payloads carry a session; other events come back
// with an empty one.
func (c *Client) DecodeWebhook(payload []byte, header string) (checkout.WebhookEvent, error) {
	if c.webhookSecret == "" {
		return checkout.WebhookEvent{}, fmt.Errorf("%w: stripe webhook secret not set", checkout.ErrConfiguration)
	}
	if err := verifyHeader(payload, header, c.webhookSecret, c.now()); err != nil {
		return checkout.WebhookEvent{}, err
	}

	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return checkout.WebhookEvent{}, fmt.Errorf("%w: webhook payload: %v", checkout.ErrValidation, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return checkout.WebhookEvent{}, fmt.Errorf("%w: webhook event without id or type", checkout.ErrValidation)
	}

	out := checkout.WebhookEvent{ID: ev.ID, Type: ev.Type}
	if strings.HasPrefix(ev.Type, "checkout.session.") {
		var s session
		if err := json.Unmarshal(ev.Data.Object, &s); err != nil {
			return checkout.WebhookEvent{}, fmt.Errorf("%w: webhook session: %v", checkout.ErrValidation, err)
		}
		out.Session = s.hosted()
	}
	return out, nil
}

// SignPayload builds a Stripe-Signature header value for payload.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + computeSignature(payload, secret, ts)
}

func computeSignature(payload []byte, secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHeader accepts the delivery if any v1 signature matches. Stripe
// sends several during secret rotation.
func verifyHeader(payload []byte, header, secret string, now time.Time) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed signature header", checkout.ErrSignatureMismatch)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", checkout.ErrSignatureMismatch)
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > Tolerance || age < -Tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", checkout.ErrSignatureMismatch)
	}

	expected := []byte(computeSignature(payload, secret, ts))
	for _, s := range sigs {
		if hmac.Equal(expected, []byte(s)) {
			return nil
		}
	}
	return checkout.ErrSignatureMismatch
}
