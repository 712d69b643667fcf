package checkout

import "errors"

var (
	// ErrConfiguration: a required secret or price is missing. Surfaced as a
	// generic 500; the message never names the missing value.
	ErrConfiguration     = errors.New("checkout: configuration error")
	ErrValidation        = errors.New("checkout: invalid request")
	ErrSignatureMismatch = errors.New("checkout: signature mismatch")
	ErrPaymentIncomplete = errors.New("checkout: payment not completed")
	ErrUpstream          = errors.New("checkout: upstream gateway error")

	// Ledger errors never reach the client.
	ErrLedgerWrite        = errors.New("ledger: write failed")
	ErrLedgerUnconfigured = errors.New("ledger: credentials missing")
	ErrLedgerDuplicate    = errors.New("ledger: payment already recorded")
)

// errForReason maps a verification failure to the client-visible error class.
func errForReason(r Reason) error {
	switch r {
	case ReasonMissingFields:
		return ErrValidation
	case ReasonBadSignature:
		return ErrSignatureMismatch
	case ReasonConfigError:
		return ErrConfiguration
	case ReasonPaymentIncomplete:
		return ErrPaymentIncomplete
	}
	return nil
}
