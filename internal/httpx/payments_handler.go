package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

const (
	maxBodyBytes    = 64 << 10
	maxWebhookBytes = 1 << 20
	maxIdemKeyLen   = 255
)

type PaymentsHandler struct {
	Service *checkout.Service
	Logger  *slog.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/razorpay/create-order", h.createRazorpayOrder)
		r.Post("/razorpay/verify", h.verifyRazorpay)
		r.Post("/stripe/create-intent", h.createStripeSession)
		r.Post("/stripe/confirm", h.confirmStripe)
		r.Post("/stripe/webhook", h.stripeWebhook)
	})
}

// Unknown fields such as "amount" are accepted and ignored.
type CreateOrderReq struct {
	Currency string `json:"currency"`
	Country  string `json:"country"`
}

type CreateOrderResp struct {
	OrderID   string `json:"orderId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PublicKey string `json:"publicKey"`
}

// VerifyReq takes the camelCase fields or the raw fields the Razorpay widget
// hands to its success callback.
type VerifyReq struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Country   string `json:"country"`

	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (v VerifyReq) confirmation() checkout.PaymentConfirmation {
	return checkout.PaymentConfirmation{
		OrderID:   firstNonEmpty(v.OrderID, v.RazorpayOrderID),
		PaymentID: firstNonEmpty(v.PaymentID, v.RazorpayPaymentID),
		Signature: firstNonEmpty(v.Signature, v.RazorpaySignature),
		Country:   v.Country,
	}
}

type VerifyResp struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type CreateIntentReq struct {
	Country string `json:"country"`
}

type CreateIntentResp struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

type ConfirmReq struct {
	SessionID string `json:"sessionId"`
	Country   string `json:"country"`
}

func (h *PaymentsHandler) createRazorpayOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	idem, ok := idempotencyKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	order, err := h.Service.CreateOrder(r.Context(), checkout.GatewayRazorpay, checkout.OrderRequest{
		CurrencyHint:   req.Currency,
		Country:        req.Country,
		IdempotencyKey: idem,
	})
	if err != nil {
		code, msg := classify(err)
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, CreateOrderResp{
		OrderID:   order.ID,
		Amount:    order.AmountMinor,
		Currency:  order.Currency,
		PublicKey: order.PublicKey,
	})
}

func (h *PaymentsHandler) verifyRazorpay(w http.ResponseWriter, r *http.Request) {
	var req VerifyReq
	if err := decode(w, r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, VerifyResp{Error: "invalid request", Reason: string(checkout.ReasonMissingFields)})
		return
	}

	verdict, err := h.Service.VerifyPayment(r.Context(), req.confirmation())
	writeVerdict(w, verdict, err)
}

func (h *PaymentsHandler) createStripeSession(w http.ResponseWriter, r *http.Request) {
	var req CreateIntentReq
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	idem, ok := idempotencyKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	order, err := h.Service.CreateOrder(r.Context(), checkout.GatewayStripe, checkout.OrderRequest{
		Country:        req.Country,
		IdempotencyKey: idem,
	})
	if err != nil {
		// hosted checkout reports every creation failure as a server error
		h.Logger.Debug("create-intent failed", "request_id", middleware.GetReqID(r.Context()), "upstream", errors.Is(err, checkout.ErrUpstream))
		writeError(w, http.StatusInternalServerError, "payment service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, CreateIntentResp{URL: order.RedirectURL, SessionID: order.ID})
}

func (h *PaymentsHandler) confirmStripe(w http.ResponseWriter, r *http.Request) {
	var req ConfirmReq
	if err := decode(w, r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, VerifyResp{Error: "invalid request", Reason: string(checkout.ReasonMissingFields)})
		return
	}

	verdict, err := h.Service.ConfirmSession(r.Context(), req.SessionID, req.Country)
	writeVerdict(w, verdict, err)
}

func (h *PaymentsHandler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.Logger.Warn("webhook body unreadable", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.Service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		code, msg := classify(err)
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeVerdict(w http.ResponseWriter, v checkout.Verdict, err error) {
	if err == nil && v.OK {
		writeJSON(w, http.StatusOK, VerifyResp{OK: true})
		return
	}
	code, msg := classify(err)
	writeJSON(w, code, VerifyResp{Error: msg, Reason: string(v.Reason)})
}

// classify maps service errors to a status and a message that never names
// the missing secret or the expected signature.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrConfiguration):
		return http.StatusInternalServerError, "payment service unavailable"
	case errors.Is(err, checkout.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, checkout.ErrSignatureMismatch):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, checkout.ErrPaymentIncomplete):
		return http.StatusBadRequest, "payment not completed"
	case errors.Is(err, checkout.ErrUpstream):
		return http.StatusBadGateway, "payment gateway unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func decode(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decode(w, r, maxBodyBytes, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func idempotencyKey(r *http.Request) (string, bool) {
	k := r.Header.Get("Idempotency-Key")
	return k, len(k) <= maxIdemKeyLen
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
