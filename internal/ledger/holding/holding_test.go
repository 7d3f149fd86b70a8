package holding

import (
	"math/rand"
	"testing"

	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestApplyTrade_WeightedAverage(t *testing.T) {
	p, err := ApplyTrade(Position{}, dec("10"), dec("100.00"))
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec("10")))
	assert.True(t, p.AverageCost.Decimal.Equal(dec("100")))

	p, err = ApplyTrade(p, dec("10"), dec("120.00"))
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec("20")))
	assert.True(t, p.AverageCost.Decimal.Equal(dec("110")))
}

func TestApplyTrade_Sells(t *testing.T) {
	p := Position{Quantity: dec("20"), AverageCost: decimal.NewNullDecimal(dec("110"))}

	partial, err := ApplyTrade(p, dec("-5"), dec("110"))
	require.NoError(t, err)
	assert.True(t, partial.Quantity.Equal(dec("15")))
	assert.True(t, partial.AverageCost.Decimal.Equal(dec("110")), "selling at cost leaves the average unchanged")

	closed, err := ApplyTrade(p, dec("-20"), dec("130"))
	require.NoError(t, err)
	assert.True(t, closed.Quantity.IsZero())
	assert.False(t, closed.AverageCost.Valid, "an empty position has no cost")

	_, err = ApplyTrade(p, dec("-20.00000001"), dec("130"))
	assert.ErrorIs(t, err, ledgerErrors.ErrInsufficientQuantity)

	reopened, err := ApplyTrade(closed, dec("3"), dec("50"))
	require.NoError(t, err)
	assert.True(t, reopened.AverageCost.Decimal.Equal(dec("50")))
}

func TestApplyTrade_Invalid(t *testing.T) {
	_, err := ApplyTrade(Position{}, decimal.Zero, dec("1"))
	assert.ErrorIs(t, err, ledgerErrors.ErrInvalidAmount)

	_, err = ApplyTrade(Position{}, dec("1"), dec("-1"))
	assert.ErrorIs(t, err, ledgerErrors.ErrInvalidAmount)
	assert.True(t, ledgerErrors.IsValidationError(err))

	_, err = ApplyTrade(Position{}, dec("0.000000001"), dec("5"))
	assert.ErrorIs(t, err, ledgerErrors.ErrInvalidAmount, "a quantity below the cost scale rounds to zero")
}

func TestApplyTrade_RoundsInputsToCostScale(t *testing.T) {
	p := Position{Quantity: dec("1"), AverageCost: decimal.NewNullDecimal(dec("10"))}

	closed, err := ApplyTrade(p, dec("-0.999999999999"), dec("10"))
	require.NoError(t, err)
	assert.True(t, closed.Quantity.IsZero())
	assert.False(t, closed.AverageCost.Valid, "average cost is unset exactly when quantity is zero")

	p, err = ApplyTrade(Position{}, dec("0.123456789"), dec("1.000000004"))
	require.NoError(t, err)
	assert.Equal(t, "0.12345679", p.Quantity.String())
	assert.Equal(t, "1", p.AverageCost.Decimal.String())
}

func TestApplyTrade_SellAboveAverageCanGoNegative(t *testing.T) {
	p, err := ApplyTrade(Position{}, dec("10"), dec("100"))
	require.NoError(t, err)

	p, err = ApplyTrade(p, dec("-5"), dec("300"))
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec("5")))
	assert.True(t, p.AverageCost.Decimal.Equal(dec("-100")))
}

func TestApplyTrade_OrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tolerance := dec("0.000001")

	for run := 0; run < 50; run++ {
		n := 2 + r.Intn(8)
		quantities := make([]decimal.Decimal, n)
		costs := make([]decimal.Decimal, n)
		sumQ, sumQC := decimal.Zero, decimal.Zero
		for i := 0; i < n; i++ {
			quantities[i] = decimal.New(int64(1+r.Intn(1000)), -2)
			costs[i] = decimal.New(int64(r.Intn(100000)), -2)
			sumQ = sumQ.Add(quantities[i])
			sumQC = sumQC.Add(quantities[i].Mul(costs[i]))
		}
		want := sumQC.DivRound(sumQ, 8)

		for _, order := range [][]int{r.Perm(n), r.Perm(n)} {
			p := Position{}
			for _, i := range order {
				var err error
				p, err = ApplyTrade(p, quantities[i], costs[i])
				require.NoError(t, err)
			}
			assert.True(t, p.Quantity.Equal(sumQ))
			assert.True(t, p.AverageCost.Decimal.Sub(want).Abs().LessThanOrEqual(tolerance),
				"run %d: got %s want %s", run, p.AverageCost.Decimal, want)
		}
	}
}

func TestHoldingPatch(t *testing.T) {
	current := Position{Quantity: dec("10"), AverageCost: decimal.NewNullDecimal(dec("100"))}

	_, err := HoldingPatch{}.apply(current)
	assert.ErrorIs(t, err, ledgerErrors.ErrNoFieldsProvided)

	next, err := HoldingPatch{AverageCost: decPtr("95.5")}.apply(current)
	require.NoError(t, err)
	assert.True(t, next.Quantity.Equal(dec("10")))
	assert.True(t, next.AverageCost.Decimal.Equal(dec("95.5")))

	next, err = HoldingPatch{Quantity: decPtr("0")}.apply(current)
	require.NoError(t, err)
	assert.False(t, next.AverageCost.Valid)

	_, err = HoldingPatch{Quantity: decPtr("-1")}.apply(current)
	assert.ErrorIs(t, err, ledgerErrors.ErrInvalidAmount)
}

func TestCurrencyKeyNormalize(t *testing.T) {
	key, err := CurrencyKey{Code: " usd ", Country: "us"}.normalize()
	require.NoError(t, err)
	assert.Equal(t, CurrencyKey{Code: "USD", Country: "US"}, key)

	_, err = CurrencyKey{Code: "DOLLARS"}.normalize()
	assert.ErrorIs(t, err, ledgerErrors.ErrInvalidCurrency)
}
