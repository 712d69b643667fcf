package checkout

import (
	"fmt"
	"strings"
)

type Price struct {
	AmountMinor int64
	Currency    string
}

// PriceBook holds one fixed price per gateway. The two gateways target
// different markets, so their prices are independent.
type PriceBook map[Gateway]Price

func (b PriceBook) For(gw Gateway) (Price, error) {
	p, ok := b[gw]
	if !ok || p.AmountMinor <= 0 || len(p.Currency) != 3 {
		return Price{}, fmt.Errorf("%w: no valid price for %s", ErrConfiguration, gw)
	}
	p.Currency = strings.ToUpper(p.Currency)
	return p, nil
}

// Matches reports whether an amount reported by the gateway is the configured price.
func (p Price) Matches(amountMinor int64, currency string) bool {
	return p.AmountMinor == amountMinor && strings.EqualFold(p.Currency, currency)
}
