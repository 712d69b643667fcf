package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 currencies without a minor unit.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// MajorUnits renders an amount in minor units the way a human reads it,
// e.g. 4900 USD -> "49.00", 500 JPY -> "500".
func MajorUnits(amountMinor int64, currency string) string {
	exp := int32(2)
	if zeroDecimal[strings.ToUpper(currency)] {
		exp = 0
	}
	return decimal.New(amountMinor, -exp).StringFixed(exp)
}
