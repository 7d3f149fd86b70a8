package instrument

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/marketdata"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/money"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
	"github.com/shopspring/decimal"
)

var (
	ErrInstrumentNotFound = ledgerErrors.NewNotFoundError("instrument not found")
	ErrTickerRequired     = ledgerErrors.NewValidationError("ticker and country are required")
	ErrEmptyStockList     = errors.New("error during instruments importing, instrument list is empty")
)

const defaultSearchLimit = 20

type NewStock struct {
	Ticker   string
	Country  string
	Name     string
	Exchange string
	Currency string
	Price    *decimal.Decimal
}

type Service interface {
	ResolveStock(ctx context.Context, ticker, country string) (*Stock, error)
	UpsertStock(ctx context.Context, in NewStock) (*Stock, error)
	SearchStocks(ctx context.Context, query string, limit int) ([]Stock, error)
	ImportStocks(ctx context.Context) error
	NeedsUpdate(ctx context.Context, maxAge time.Duration) (bool, error)
}

type APIService interface {
	FetchAllStocks(ctx context.Context) ([]marketdata.StockDTO, error)
}

type service struct {
	txManager      database.TxManager
	instrumentRepo Repository
	marketDataSvc  APIService
}

func NewInstrumentService(txManager database.TxManager, repo Repository, marketDataSvc APIService) Service {
	return &service{txManager: txManager, instrumentRepo: repo, marketDataSvc: marketDataSvc}
}

func normalizeKey(ticker, country string) (string, string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	country = strings.ToUpper(strings.TrimSpace(country))
	if ticker == "" || country == "" {
		return "", "", ErrTickerRequired
	}
	return ticker, country, nil
}

// ResolveStock looks a stock up by its natural key.
func (s *service) ResolveStock(ctx context.Context, ticker, country string) (*Stock, error) {
	ticker, country, err := normalizeKey(ticker, country)
	if err != nil {
		return nil, err
	}
	stock, err := s.instrumentRepo.getByTickerCountry(ctx, ticker, country)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstrumentNotFound
		}
		return nil, ledgerErrors.NewStoreError("resolve stock", err)
	}
	return stock, nil
}

func (s *service) UpsertStock(ctx context.Context, in NewStock) (*Stock, error) {
	ticker, country, err := normalizeKey(in.Ticker, in.Country)
	if err != nil {
		return nil, err
	}

	stock := &Stock{
		ID:       uuid.New(),
		Ticker:   ticker,
		Country:  country,
		Name:     strings.TrimSpace(in.Name),
		Exchange: strings.TrimSpace(in.Exchange),
	}
	if in.Currency != "" {
		if stock.Currency, err = money.NormalizeCurrency(in.Currency); err != nil {
			return nil, err
		}
	}
	if in.Price != nil {
		if err := money.NonNegative("price", *in.Price); err != nil {
			return nil, err
		}
		stock.Price = decimal.NewNullDecimal(money.Normalize(*in.Price))
	}

	saved, err := s.instrumentRepo.upsert(ctx, stock)
	if err != nil {
		l := logger.FromContext(ctx)
		l.Error().Err(err).Str("ticker", ticker).Str("country", country).Msg("Failed to upsert stock")
		return nil, ledgerErrors.NewStoreError("upsert stock", err)
	}
	return saved, nil
}

func (s *service) SearchStocks(ctx context.Context, query string, limit int) ([]Stock, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	stocks, err := s.instrumentRepo.search(ctx, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, ledgerErrors.NewStoreError("search stocks", err)
	}
	return stocks, nil
}

// ImportStocks refreshes the catalogue from the market data provider. Only
// plain stocks on exchanges with a known country are kept.
func (s *service) ImportStocks(ctx context.Context) error {
	dtos, err := s.marketDataSvc.FetchAllStocks(ctx)
	if err != nil {
		return err
	}
	if len(dtos) == 0 {
		return ErrEmptyStockList
	}

	l := logger.FromContext(ctx)
	stocks := make([]Stock, 0, len(dtos))
	skipped := 0
	for _, dto := range dtos {
		country, ok := marketdata.CountryForExchange(dto.ExchangeShort)
		if dto.Type != "stock" || !ok || dto.Symbol == "" {
			skipped++
			continue
		}
		stock := Stock{
			ID:       uuid.New(),
			Ticker:   strings.ToUpper(dto.Symbol),
			Country:  country,
			Name:     dto.Name,
			Exchange: dto.ExchangeShort,
			Currency: strings.ToUpper(dto.Currency),
		}
		if dto.Price.Valid {
			stock.Price = decimal.NewNullDecimal(money.Normalize(dto.Price.Decimal))
		}
		stocks = append(stocks, stock)
	}

	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		return s.instrumentRepo.bulkUpsert(ctx, stocks)
	})
	if err != nil {
		return fmt.Errorf("failed to import stocks: %w", err)
	}
	l.Info().Int("imported", len(stocks)).Int("skipped", skipped).Msg("Stock catalogue imported")
	return nil
}

func (s *service) NeedsUpdate(ctx context.Context, maxAge time.Duration) (bool, error) {
	lastUpdated, err := s.instrumentRepo.getLastUpdatedAt(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, err
	}
	if lastUpdated.IsZero() {
		return true, nil
	}
	return time.Since(lastUpdated) > maxAge, nil
}
