package holding

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/instrument"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/money"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
	"github.com/shopspring/decimal"
)

var ErrHoldingNotFound = ledgerErrors.NewNotFoundError("holding not found")

// StockResolver maps a ticker and country to the catalogue entry.
type StockResolver interface {
	ResolveStock(ctx context.Context, ticker, country string) (*instrument.Stock, error)
}

// rateReadTimeout bounds all rate lookups made by one listing.
const rateReadTimeout = 3 * time.Second

// RateSource prices one unit of a currency in QuoteCurrency. It is only
// consulted on reads.
type RateSource interface {
	Rate(ctx context.Context, code string) (decimal.Decimal, error)
	QuoteCurrency() string
}

type Service interface {
	RecordStockTrade(ctx context.Context, accountID uuid.UUID, key StockKey, quantity, unitCost decimal.Decimal) (*StockHolding, error)
	RecordCurrencyTrade(ctx context.Context, accountID uuid.UUID, key CurrencyKey, quantity, unitCost decimal.Decimal) (*CurrencyHolding, error)
	UpdateStockHolding(ctx context.Context, accountID, holdingID uuid.UUID, patch HoldingPatch) (*StockHolding, error)
	UpdateCurrencyHolding(ctx context.Context, accountID, holdingID uuid.UUID, patch HoldingPatch) (*CurrencyHolding, error)
	DeleteStockHolding(ctx context.Context, accountID, holdingID uuid.UUID) error
	DeleteCurrencyHolding(ctx context.Context, accountID, holdingID uuid.UUID) error
	ListStockHoldings(ctx context.Context, accountID uuid.UUID) ([]StockHolding, error)
	ListCurrencyHoldings(ctx context.Context, accountID uuid.UUID) ([]CurrencyHolding, error)
	HeldCurrencies(ctx context.Context) ([]string, error)
}

type service struct {
	txManager   database.TxManager
	holdingRepo Repository
	stocks      StockResolver
	rates       RateSource
	rateTimeout time.Duration
}

func NewHoldingService(txManager database.TxManager, repo Repository, stocks StockResolver, rates RateSource) Service {
	return &service{txManager: txManager, holdingRepo: repo, stocks: stocks, rates: rates, rateTimeout: rateReadTimeout}
}

// RecordStockTrade folds a trade into the account's holding of the stock,
// creating the holding on the first trade.
func (s *service) RecordStockTrade(ctx context.Context, accountID uuid.UUID, key StockKey, quantity, unitCost decimal.Decimal) (*StockHolding, error) {
	if err := validateTrade(quantity, unitCost); err != nil {
		return nil, err
	}
	stock, err := s.stocks.ResolveStock(ctx, key.Ticker, key.Country)
	if err != nil {
		return nil, err
	}

	var holding *StockHolding
	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.holdingRepo.ensureStock(ctx, accountID, stock.ID); err != nil {
			return err
		}
		h, err := s.holdingRepo.lockStock(ctx, accountID, stock.ID)
		if err != nil {
			return err
		}
		next, err := ApplyTrade(h.position(), quantity, unitCost)
		if err != nil {
			return err
		}
		if h.UpdatedAt, err = s.holdingRepo.saveStock(ctx, h.ID, next); err != nil {
			return err
		}
		h.setPosition(next)
		holding = h
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "record stock trade", err, accountID)
	}

	l := logger.FromContext(ctx)
	l.Debug().Str("holding_id", holding.ID.String()).Str("ticker", holding.TickerSymbol).
		Str("quantity", holding.Quantity.String()).Msg("Stock trade recorded")
	return holding, nil
}

func (s *service) RecordCurrencyTrade(ctx context.Context, accountID uuid.UUID, key CurrencyKey, quantity, unitCost decimal.Decimal) (*CurrencyHolding, error) {
	key, err := key.normalize()
	if err != nil {
		return nil, err
	}
	if err := validateTrade(quantity, unitCost); err != nil {
		return nil, err
	}

	var holding *CurrencyHolding
	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.holdingRepo.ensureCurrency(ctx, accountID, key); err != nil {
			return err
		}
		h, err := s.holdingRepo.lockCurrency(ctx, accountID, key.Code)
		if err != nil {
			return err
		}
		next, err := ApplyTrade(h.position(), quantity, unitCost)
		if err != nil {
			return err
		}
		if h.UpdatedAt, err = s.holdingRepo.saveCurrency(ctx, h.ID, next); err != nil {
			return err
		}
		h.setPosition(next)
		holding = h
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "record currency trade", err, accountID)
	}
	return holding, nil
}

func (s *service) UpdateStockHolding(ctx context.Context, accountID, holdingID uuid.UUID, patch HoldingPatch) (*StockHolding, error) {
	if patch.IsEmpty() {
		return nil, ledgerErrors.ErrNoFieldsProvided
	}

	var holding *StockHolding
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		h, err := s.holdingRepo.getStock(ctx, accountID, holdingID, true)
		if err != nil {
			return notFound(err)
		}
		next, err := patch.apply(h.position())
		if err != nil {
			return err
		}
		if h.UpdatedAt, err = s.holdingRepo.saveStock(ctx, h.ID, next); err != nil {
			return notFound(err)
		}
		h.setPosition(next)
		holding = h
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update stock holding", err, holdingID)
	}
	return holding, nil
}

func (s *service) UpdateCurrencyHolding(ctx context.Context, accountID, holdingID uuid.UUID, patch HoldingPatch) (*CurrencyHolding, error) {
	if patch.IsEmpty() {
		return nil, ledgerErrors.ErrNoFieldsProvided
	}

	var holding *CurrencyHolding
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		h, err := s.holdingRepo.getCurrency(ctx, accountID, holdingID, true)
		if err != nil {
			return notFound(err)
		}
		next, err := patch.apply(h.position())
		if err != nil {
			return err
		}
		if h.UpdatedAt, err = s.holdingRepo.saveCurrency(ctx, h.ID, next); err != nil {
			return notFound(err)
		}
		h.setPosition(next)
		holding = h
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update currency holding", err, holdingID)
	}
	return holding, nil
}

// DeleteStockHolding removes the holding without touching any balance.
// Deleting a missing holding succeeds.
func (s *service) DeleteStockHolding(ctx context.Context, accountID, holdingID uuid.UUID) error {
	if err := s.holdingRepo.deleteStock(ctx, accountID, holdingID); err != nil {
		return s.fail(ctx, "delete stock holding", err, holdingID)
	}
	return nil
}

func (s *service) DeleteCurrencyHolding(ctx context.Context, accountID, holdingID uuid.UUID) error {
	if err := s.holdingRepo.deleteCurrency(ctx, accountID, holdingID); err != nil {
		return s.fail(ctx, "delete currency holding", err, holdingID)
	}
	return nil
}

func (s *service) ListStockHoldings(ctx context.Context, accountID uuid.UUID) ([]StockHolding, error) {
	holdings, err := s.holdingRepo.listStocks(ctx, accountID)
	if err != nil {
		return nil, s.fail(ctx, "list stock holdings", err, accountID)
	}
	return holdings, nil
}

// ListCurrencyHoldings attaches the current rate and the market value to
// every holding. Each distinct currency is looked up once, concurrently, and
// all lookups share one deadline. A failed or late lookup leaves the price
// unset and does not fail the listing.
func (s *service) ListCurrencyHoldings(ctx context.Context, accountID uuid.UUID) ([]CurrencyHolding, error) {
	holdings, err := s.holdingRepo.listCurrencies(ctx, accountID)
	if err != nil {
		return nil, s.fail(ctx, "list currency holdings", err, accountID)
	}
	if len(holdings) == 0 {
		return holdings, nil
	}

	codes := make([]string, 0, len(holdings))
	for _, h := range holdings {
		codes = append(codes, h.CurrencyCode)
	}
	found := s.lookupRates(ctx, codes)

	quote := s.rates.QuoteCurrency()
	for i := range holdings {
		rate, ok := found[holdings[i].CurrencyCode]
		if !ok {
			continue
		}
		holdings[i].CurrentPrice = decimal.NewNullDecimal(rate)
		holdings[i].MarketValue = decimal.NewNullDecimal(money.RoundToCurrency(holdings[i].Quantity.Mul(rate), quote))
		holdings[i].ValueCurrency = quote
	}
	return holdings, nil
}

// lookupRates returns the rates that arrived before the read deadline.
func (s *service) lookupRates(ctx context.Context, codes []string) map[string]decimal.Decimal {
	ctx, cancel := context.WithTimeout(ctx, s.rateTimeout)
	defer cancel()

	l := logger.FromContext(ctx)
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		found = make(map[string]decimal.Decimal, len(codes))
		seen  = make(map[string]bool, len(codes))
	)
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true

		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			rate, err := s.rates.Rate(ctx, code)
			if err == nil {
				mu.Lock()
				found[code] = rate
				mu.Unlock()
				return
			}
			l.Warn().Err(err).Str("currency", code).Msg("Exchange rate unavailable")
		}(code)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		l.Warn().Err(ctx.Err()).Msg("Exchange rate lookups timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	result := make(map[string]decimal.Decimal, len(found))
	for code, rate := range found {
		result[code] = rate
	}
	return result
}

func (s *service) HeldCurrencies(ctx context.Context) ([]string, error) {
	codes, err := s.holdingRepo.heldCurrencyCodes(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list held currencies", err, uuid.Nil)
	}
	return codes, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrHoldingNotFound
	}
	return err
}

func (s *service) fail(ctx context.Context, op string, err error, id uuid.UUID) error {
	wrapped := ledgerErrors.NewStoreError(op, err)
	if ledgerErrors.IsStoreError(wrapped) {
		l := logger.FromContext(ctx)
		l.Error().Err(err).Str("op", op).Str("id", id.String()).Msg("Holding store failure, changes rolled back")
	}
	return wrapped
}
