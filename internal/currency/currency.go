// Package currency converts monetary amounts in supported currencies to the
// canonical accounting currency (EUR) at fixed exchange rates.
package currency

import (
	"github.com/shopspring/decimal"

	dErrors "expenseflow/pkg/domain-errors"
)

// Canonical is the currency all ledger amounts are normalized to.
const Canonical = "EUR"

// Supported lists the accepted currency codes.
var Supported = []string{"EUR", "LEI", "USD"}

// Fixed conversion rates into EUR.
var eurRates = map[string]decimal.Decimal{
	"EUR": decimal.NewFromInt(1),
	"LEI": decimal.NewFromFloat(0.2),
	"USD": decimal.NewFromFloat(0.92),
}

// IsSupported reports whether code is one of the supported currencies.
func IsSupported(code string) bool {
	_, ok := eurRates[code]
	return ok
}

// ToCanonical converts amount from the given currency into EUR.
// Returns CodeUnsupportedCurrency for codes outside the supported set.
func ToCanonical(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	rate, ok := eurRates[code]
	if !ok {
		return decimal.Zero, dErrors.Newf(dErrors.CodeUnsupportedCurrency, "unsupported currency: %s", code)
	}
	return amount.Mul(rate), nil
}
