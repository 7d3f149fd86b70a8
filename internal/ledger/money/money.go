package money

import (
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/shopspring/decimal"
)

// CostScale is the number of decimal places kept for quantities, balances
// and unit costs. It matches NUMERIC(28, 8) in the schema.
const CostScale = 8

// NonNegative reports ErrInvalidAmount for values below zero. field names the
// offending input in the error message.
func NonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%s: %w", field, ledgerErrors.ErrInvalidAmount)
	}
	return nil
}

// Normalize rounds d to the stored scale.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostScale)
}

// NormalizeCurrency upper-cases code and checks it against the ISO 4217 table.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 || gomoney.GetCurrency(code) == nil {
		return "", fmt.Errorf("%q: %w", code, ledgerErrors.ErrInvalidCurrency)
	}
	return code, nil
}

// RoundToCurrency rounds amount to the minor unit of the given currency,
// e.g. 2 places for EUR and 0 for JPY. Unknown codes fall back to CostScale.
func RoundToCurrency(amount decimal.Decimal, code string) decimal.Decimal {
	currency := gomoney.GetCurrency(strings.ToUpper(code))
	if currency == nil {
		return Normalize(amount)
	}
	return amount.Round(int32(currency.Fraction))
}
