package holding

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/instrument"
	"github.com/shopspring/decimal"
)

// fakeStore keeps holdings in memory. WithinTx serialises units of work and
// restores the previous state when fn fails.
type fakeStore struct {
	unit sync.Mutex
	mu   sync.Mutex

	stocks     map[uuid.UUID]StockHolding
	currencies map[uuid.UUID]CurrencyHolding
	catalogue  map[StockKey]instrument.Stock

	saveErr   error
	rollbacks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stocks:     make(map[uuid.UUID]StockHolding),
		currencies: make(map[uuid.UUID]CurrencyHolding),
		catalogue:  make(map[StockKey]instrument.Stock),
	}
}

func (f *fakeStore) addStock(ticker, country, name, price string) instrument.Stock {
	stock := instrument.Stock{ID: uuid.New(), Ticker: ticker, Country: country, Name: name}
	if price != "" {
		stock.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	f.catalogue[StockKey{Ticker: ticker, Country: country}] = stock
	return stock
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.unit.Lock()
	defer f.unit.Unlock()

	f.mu.Lock()
	stocks := make(map[uuid.UUID]StockHolding, len(f.stocks))
	for k, v := range f.stocks {
		stocks[k] = v
	}
	currencies := make(map[uuid.UUID]CurrencyHolding, len(f.currencies))
	for k, v := range f.currencies {
		currencies[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.stocks = stocks
		f.currencies = currencies
		f.rollbacks++
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) ResolveStock(_ context.Context, ticker, country string) (*instrument.Stock, error) {
	stock, ok := f.catalogue[StockKey{Ticker: ticker, Country: country}]
	if !ok {
		return nil, instrument.ErrInstrumentNotFound
	}
	return &stock, nil
}

func (f *fakeStore) withStock(h StockHolding) StockHolding {
	for _, stock := range f.catalogue {
		if stock.ID == h.StockID {
			h.TickerSymbol = stock.Ticker
			h.CompanyName = stock.Name
			h.Country = stock.Country
			h.CurrentPrice = stock.Price
		}
	}
	return h
}

func (f *fakeStore) ensureStock(_ context.Context, accountID, stockID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.stocks {
		if h.AccountID == accountID && h.StockID == stockID {
			return nil
		}
	}
	id := uuid.New()
	now := time.Now()
	f.stocks[id] = StockHolding{ID: id, AccountID: accountID, StockID: stockID, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (f *fakeStore) lockStock(_ context.Context, accountID, stockID uuid.UUID) (*StockHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.stocks {
		if h.AccountID == accountID && h.StockID == stockID {
			h = f.withStock(h)
			return &h, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) getStock(_ context.Context, accountID, holdingID uuid.UUID, _ bool) (*StockHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.stocks[holdingID]
	if !ok || h.AccountID != accountID {
		return nil, sql.ErrNoRows
	}
	h = f.withStock(h)
	return &h, nil
}

func (f *fakeStore) saveStock(_ context.Context, holdingID uuid.UUID, p Position) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return time.Time{}, f.saveErr
	}
	h, ok := f.stocks[holdingID]
	if !ok {
		return time.Time{}, sql.ErrNoRows
	}
	h.setPosition(p)
	h.UpdatedAt = time.Now()
	f.stocks[holdingID] = h
	return h.UpdatedAt, nil
}

func (f *fakeStore) deleteStock(_ context.Context, accountID, holdingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.stocks[holdingID]; ok && h.AccountID == accountID {
		delete(f.stocks, holdingID)
	}
	return nil
}

func (f *fakeStore) listStocks(_ context.Context, accountID uuid.UUID) ([]StockHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]StockHolding, 0)
	for _, h := range f.stocks {
		if h.AccountID == accountID {
			out = append(out, f.withStock(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TickerSymbol < out[j].TickerSymbol })
	return out, nil
}

func (f *fakeStore) ensureCurrency(_ context.Context, accountID uuid.UUID, key CurrencyKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.currencies {
		if h.AccountID == accountID && h.CurrencyCode == key.Code {
			return nil
		}
	}
	id := uuid.New()
	now := time.Now()
	f.currencies[id] = CurrencyHolding{ID: id, AccountID: accountID, CurrencyCode: key.Code, Country: key.Country, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (f *fakeStore) lockCurrency(_ context.Context, accountID uuid.UUID, code string) (*CurrencyHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.currencies {
		if h.AccountID == accountID && h.CurrencyCode == code {
			return &h, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) getCurrency(_ context.Context, accountID, holdingID uuid.UUID, _ bool) (*CurrencyHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.currencies[holdingID]
	if !ok || h.AccountID != accountID {
		return nil, sql.ErrNoRows
	}
	return &h, nil
}

func (f *fakeStore) saveCurrency(_ context.Context, holdingID uuid.UUID, p Position) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return time.Time{}, f.saveErr
	}
	h, ok := f.currencies[holdingID]
	if !ok {
		return time.Time{}, sql.ErrNoRows
	}
	h.setPosition(p)
	h.UpdatedAt = time.Now()
	f.currencies[holdingID] = h
	return h.UpdatedAt, nil
}

func (f *fakeStore) deleteCurrency(_ context.Context, accountID, holdingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.currencies[holdingID]; ok && h.AccountID == accountID {
		delete(f.currencies, holdingID)
	}
	return nil
}

func (f *fakeStore) listCurrencies(_ context.Context, accountID uuid.UUID) ([]CurrencyHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CurrencyHolding, 0)
	for _, h := range f.currencies {
		if h.AccountID == accountID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrencyCode < out[j].CurrencyCode })
	return out, nil
}

func (f *fakeStore) heldCurrencyCodes(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var codes []string
	for _, h := range f.currencies {
		if h.Quantity.IsPositive() && !seen[h.CurrencyCode] {
			seen[h.CurrencyCode] = true
			codes = append(codes, h.CurrencyCode)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// fakeRates quotes in EUR. Codes listed in hang block until the caller's
// context is done.
type fakeRates struct {
	rates map[string]decimal.Decimal
	hang  map[string]bool
}

func (f fakeRates) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	if f.hang[code] {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	rate, ok := f.rates[code]
	if !ok {
		return decimal.Zero, sql.ErrConnDone
	}
	return rate, nil
}

func (f fakeRates) QuoteCurrency() string {
	return "EUR"
}
