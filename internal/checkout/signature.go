package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// ExpectedSignature is hex(HMAC-SHA256(secret, orderID + "|" + paymentID)),
// the scheme Razorpay uses to sign checkout completions.
func ExpectedSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature decides whether a completion claim came from the gateway.
// It depends only on the order id, payment id, signature and secret; no
// other client field is consulted.
func VerifySignature(secret string, c PaymentConfirmation) VerificationResult {
	if c.OrderID == "" || c.PaymentID == "" || c.Signature == "" {
		return VerificationResult{Reason: ReasonMissingFields}
	}
	if secret == "" {
		return VerificationResult{Reason: ReasonConfigError}
	}
	expected := ExpectedSignature(secret, c.OrderID, c.PaymentID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(c.Signature)) != 1 {
		return VerificationResult{Reason: ReasonBadSignature}
	}
	return VerificationResult{Verified: true}
}
