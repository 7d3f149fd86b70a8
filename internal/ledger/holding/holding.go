package holding

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/money"
	"github.com/shopspring/decimal"
)

// Position is the weighted-average state of one holding. AverageCost is
// unset exactly when Quantity is zero.
type Position struct {
	Quantity    decimal.Decimal
	AverageCost decimal.NullDecimal
}

func validateTrade(quantity, unitCost decimal.Decimal) error {
	if money.Normalize(quantity).IsZero() {
		return fmt.Errorf("quantity: %w", ledgerErrors.ErrInvalidAmount)
	}
	return money.NonNegative("unit cost", unitCost)
}

// ApplyTrade folds a trade of quantity units at unitCost into p. A negative
// quantity is a sale. The result keeps the running mean
// sum(Qi*Ci) / sum(Qi), so the final cost does not depend on trade order.
// Inputs are rounded to the cost scale first; a quantity that rounds to zero
// is rejected.
//
// Sales go through the same mean, so selling above the average lowers it and
// can drive it below zero (10@100 then -5@300 leaves 5@-100). A negative
// average means the realised gain exceeded the remaining cost basis.
func ApplyTrade(p Position, quantity, unitCost decimal.Decimal) (Position, error) {
	quantity = money.Normalize(quantity)
	unitCost = money.Normalize(unitCost)
	if err := validateTrade(quantity, unitCost); err != nil {
		return Position{}, err
	}

	q1 := p.Quantity.Add(quantity)
	if q1.IsNegative() {
		return Position{}, ledgerErrors.ErrInsufficientQuantity
	}
	if q1.IsZero() {
		return Position{Quantity: decimal.Zero}, nil
	}

	c0 := decimal.Zero
	if p.AverageCost.Valid {
		c0 = p.AverageCost.Decimal
	}
	total := p.Quantity.Mul(c0).Add(quantity.Mul(unitCost))
	return Position{
		Quantity:    q1,
		AverageCost: decimal.NewNullDecimal(total.DivRound(q1, money.CostScale)),
	}, nil
}

// HoldingPatch overwrites fields directly, bypassing the weighted average.
type HoldingPatch struct {
	Quantity    *decimal.Decimal
	AverageCost *decimal.Decimal
}

func (p HoldingPatch) IsEmpty() bool {
	return p.Quantity == nil && p.AverageCost == nil
}

func (p HoldingPatch) apply(current Position) (Position, error) {
	if p.IsEmpty() {
		return Position{}, ledgerErrors.ErrNoFieldsProvided
	}

	next := current
	if p.Quantity != nil {
		if err := money.NonNegative("quantity", *p.Quantity); err != nil {
			return Position{}, err
		}
		next.Quantity = money.Normalize(*p.Quantity)
	}
	if p.AverageCost != nil {
		if err := money.NonNegative("average cost", *p.AverageCost); err != nil {
			return Position{}, err
		}
		next.AverageCost = decimal.NewNullDecimal(money.Normalize(*p.AverageCost))
	}
	if next.Quantity.IsZero() {
		next.AverageCost = decimal.NullDecimal{}
	}
	return next, nil
}

type StockKey struct {
	Ticker  string
	Country string
}

type CurrencyKey struct {
	Code    string
	Country string
}

func (k CurrencyKey) normalize() (CurrencyKey, error) {
	code, err := money.NormalizeCurrency(k.Code)
	if err != nil {
		return CurrencyKey{}, err
	}
	return CurrencyKey{Code: code, Country: strings.ToUpper(strings.TrimSpace(k.Country))}, nil
}

type StockHolding struct {
	ID           uuid.UUID           `json:"id"`
	AccountID    uuid.UUID           `json:"account_id"`
	StockID      uuid.UUID           `json:"stock_id"`
	TickerSymbol string              `json:"ticker_symbol"`
	CompanyName  string              `json:"company_name"`
	Country      string              `json:"country"`
	Quantity     decimal.Decimal     `json:"quantity"`
	AverageCost  decimal.NullDecimal `json:"average_cost"`
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (h *StockHolding) position() Position {
	return Position{Quantity: h.Quantity, AverageCost: h.AverageCost}
}

func (h *StockHolding) setPosition(p Position) {
	h.Quantity = p.Quantity
	h.AverageCost = p.AverageCost
}

// CurrencyHolding carries CurrentPrice, MarketValue and ValueCurrency only
// when a listing could price the currency.
type CurrencyHolding struct {
	ID            uuid.UUID           `json:"id"`
	AccountID     uuid.UUID           `json:"account_id"`
	Country       string              `json:"country"`
	CurrencyCode  string              `json:"currency_code"`
	Quantity      decimal.Decimal     `json:"quantity"`
	AverageCost   decimal.NullDecimal `json:"average_cost"`
	CurrentPrice  decimal.NullDecimal `json:"current_price"`
	MarketValue   decimal.NullDecimal `json:"market_value"`
	ValueCurrency string              `json:"value_currency,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (h *CurrencyHolding) position() Position {
	return Position{Quantity: h.Quantity, AverageCost: h.AverageCost}
}

func (h *CurrencyHolding) setPosition(p Position) {
	h.Quantity = p.Quantity
	h.AverageCost = p.AverageCost
}
