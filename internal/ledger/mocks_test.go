package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/account"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/holding"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/instrument"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/recurring"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
	"github.com/shopspring/decimal"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errors ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}

	if len(errors) > 0 && len(errors[0]) > 0 {
		payload["errors"] = errors[0]
	}

	respondJSON(w, status, payload)
}

type MockAccountService struct {
	owners map[uuid.UUID]string
	err    error
}

func (m *MockAccountService) CreateAccount(_ context.Context, userID, name string) (*account.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &account.Account{ID: uuid.New(), UserID: userID, Name: name}, nil
}

func (m *MockAccountService) GetAccount(_ context.Context, accountID uuid.UUID, userID string) (*account.Account, error) {
	if m.owners[accountID] != userID {
		return nil, account.ErrAccountNotFound
	}
	return &account.Account{ID: accountID, UserID: userID}, nil
}

func (m *MockAccountService) GetAllAccounts(_ context.Context, userID string) ([]account.Account, error) {
	var out []account.Account
	for id, owner := range m.owners {
		if owner == userID {
			out = append(out, account.Account{ID: id, UserID: owner})
		}
	}
	return out, m.err
}

func (m *MockAccountService) CheckAccountOwnership(_ context.Context, accountID uuid.UUID, userID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.owners[accountID] == userID, nil
}

type MockAssetService struct {
	owners map[uuid.UUID]string
}

func (m *MockAssetService) CreateAsset(_ context.Context, in asset.NewAsset) (*asset.Asset, error) {
	return &asset.Asset{ID: uuid.New(), AccountID: in.AccountID, AssetType: in.AssetType, Balance: in.OpeningBalance}, nil
}

func (m *MockAssetService) GetAssetByID(_ context.Context, assetID uuid.UUID) (*asset.Asset, error) {
	if _, ok := m.owners[assetID]; !ok {
		return nil, asset.ErrAssetNotFound
	}
	return &asset.Asset{ID: assetID}, nil
}

func (m *MockAssetService) ListByAccountID(_ context.Context, _ uuid.UUID) ([]asset.Asset, error) {
	return []asset.Asset{}, nil
}

func (m *MockAssetService) AdjustBalance(_ context.Context, assetID uuid.UUID, delta decimal.Decimal) (*asset.Asset, error) {
	return &asset.Asset{ID: assetID, Balance: delta}, nil
}

func (m *MockAssetService) CheckAssetOwnership(_ context.Context, assetID uuid.UUID, userID string) (bool, error) {
	return m.owners[assetID] == userID, nil
}

type MockTransactionService struct {
	transactions map[uuid.UUID]transaction.Transaction
	err          error
	created      int
	deleted      []uuid.UUID
	lastPatch    *transaction.Patch
}

func (m *MockTransactionService) CreateTransaction(_ context.Context, in transaction.NewTransaction) (*transaction.Transaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	flow, err := transaction.NewFlow(in.Kind, in.FromAssetID, in.ToAssetID)
	if err != nil {
		return nil, err
	}
	m.created++
	fee := decimal.Zero
	if in.Fee != nil {
		fee = *in.Fee
	}
	t := transaction.Transaction{ID: uuid.New(), Flow: flow, Amount: in.Amount, Fee: fee, TransactionTime: time.Now()}
	m.transactions[t.ID] = t
	return &t, nil
}

func (m *MockTransactionService) GetTransaction(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound
	}
	return &t, nil
}

func (m *MockTransactionService) UpdateTransaction(_ context.Context, id uuid.UUID, patch transaction.Patch) (*transaction.Transaction, error) {
	m.lastPatch = &patch
	t, ok := m.transactions[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound
	}
	next, err := patch.Apply(t)
	if err != nil {
		return nil, err
	}
	m.transactions[id] = next
	return &next, nil
}

func (m *MockTransactionService) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	delete(m.transactions, id)
	return nil
}

func (m *MockTransactionService) ListByAccountID(_ context.Context, _ uuid.UUID) ([]transaction.Transaction, error) {
	out := make([]transaction.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		out = append(out, t)
	}
	return out, m.err
}

func (m *MockTransactionService) GetTransactionTypes() []transaction.TypeInfo {
	return transaction.Types()
}

type MockHoldingService struct {
	currencies []holding.CurrencyHolding
	lastKey    holding.StockKey
	err        error
}

func (m *MockHoldingService) RecordStockTrade(_ context.Context, accountID uuid.UUID, key holding.StockKey, quantity, unitCost decimal.Decimal) (*holding.StockHolding, error) {
	m.lastKey = key
	if m.err != nil {
		return nil, m.err
	}
	p, err := holding.ApplyTrade(holding.Position{}, quantity, unitCost)
	if err != nil {
		return nil, err
	}
	return &holding.StockHolding{ID: uuid.New(), AccountID: accountID, TickerSymbol: key.Ticker, Quantity: p.Quantity, AverageCost: p.AverageCost}, nil
}

func (m *MockHoldingService) RecordCurrencyTrade(_ context.Context, accountID uuid.UUID, key holding.CurrencyKey, quantity, unitCost decimal.Decimal) (*holding.CurrencyHolding, error) {
	p, err := holding.ApplyTrade(holding.Position{}, quantity, unitCost)
	if err != nil {
		return nil, err
	}
	return &holding.CurrencyHolding{ID: uuid.New(), AccountID: accountID, CurrencyCode: key.Code, Quantity: p.Quantity, AverageCost: p.AverageCost}, nil
}

func (m *MockHoldingService) UpdateStockHolding(_ context.Context, _, _ uuid.UUID, patch holding.HoldingPatch) (*holding.StockHolding, error) {
	if patch.IsEmpty() {
		return nil, ledgerErrors.ErrNoFieldsProvided
	}
	return &holding.StockHolding{}, m.err
}

func (m *MockHoldingService) UpdateCurrencyHolding(_ context.Context, _, _ uuid.UUID, _ holding.HoldingPatch) (*holding.CurrencyHolding, error) {
	return &holding.CurrencyHolding{}, m.err
}

func (m *MockHoldingService) DeleteStockHolding(_ context.Context, _, _ uuid.UUID) error {
	return m.err
}

func (m *MockHoldingService) DeleteCurrencyHolding(_ context.Context, _, _ uuid.UUID) error {
	return m.err
}

func (m *MockHoldingService) ListStockHoldings(_ context.Context, _ uuid.UUID) ([]holding.StockHolding, error) {
	return []holding.StockHolding{}, m.err
}

func (m *MockHoldingService) ListCurrencyHoldings(_ context.Context, _ uuid.UUID) ([]holding.CurrencyHolding, error) {
	return m.currencies, m.err
}

func (m *MockHoldingService) HeldCurrencies(_ context.Context) ([]string, error) {
	return nil, m.err
}

type MockInstrumentService struct {
	stocks     []instrument.Stock
	lastUpsert *instrument.NewStock
}

func (m *MockInstrumentService) ResolveStock(_ context.Context, _, _ string) (*instrument.Stock, error) {
	return nil, instrument.ErrInstrumentNotFound
}

func (m *MockInstrumentService) UpsertStock(_ context.Context, in instrument.NewStock) (*instrument.Stock, error) {
	m.lastUpsert = &in
	if in.Ticker == "" || in.Country == "" {
		return nil, instrument.ErrTickerRequired
	}
	return &instrument.Stock{ID: uuid.New(), Ticker: in.Ticker, Country: in.Country}, nil
}

func (m *MockInstrumentService) SearchStocks(_ context.Context, _ string, _ int) ([]instrument.Stock, error) {
	return m.stocks, nil
}

func (m *MockInstrumentService) ImportStocks(_ context.Context) error {
	return nil
}

func (m *MockInstrumentService) NeedsUpdate(_ context.Context, _ time.Duration) (bool, error) {
	return false, nil
}

type MockRecurringService struct {
	entries map[uuid.UUID]recurring.Entry
	lastNew *recurring.NewEntry
}

func (m *MockRecurringService) CreateRecurring(_ context.Context, in recurring.NewEntry) (*recurring.Entry, error) {
	m.lastNew = &in
	if in.Kind != transaction.KindIncome && in.Kind != transaction.KindExpense {
		return nil, recurring.ErrInvalidKind
	}
	e := recurring.Entry{ID: uuid.New(), AccountID: in.AccountID, AssetID: in.AssetID, Amount: in.Amount, Interval: recurring.Interval(in.Interval), Kind: in.Kind, IsActive: true}
	m.entries[e.ID] = e
	return &e, nil
}

func (m *MockRecurringService) GetRecurring(_ context.Context, accountID, id uuid.UUID) (*recurring.Entry, error) {
	e, ok := m.entries[id]
	if !ok || e.AccountID != accountID {
		return nil, recurring.ErrRecurringNotFound
	}
	return &e, nil
}

func (m *MockRecurringService) ListRecurring(_ context.Context, accountID uuid.UUID) ([]recurring.Entry, error) {
	entries := make([]recurring.Entry, 0)
	for _, e := range m.entries {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *MockRecurringService) UpdateRecurring(ctx context.Context, accountID, id uuid.UUID, patch recurring.Patch) (*recurring.Entry, error) {
	if patch.IsEmpty() {
		return nil, ledgerErrors.ErrNoFieldsProvided
	}
	e, err := m.GetRecurring(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if patch.IsActive != nil {
		e.IsActive = *patch.IsActive
	}
	m.entries[id] = *e
	return e, nil
}

func (m *MockRecurringService) DeleteRecurring(_ context.Context, accountID, id uuid.UUID) error {
	if e, ok := m.entries[id]; ok && e.AccountID == accountID {
		delete(m.entries, id)
	}
	return nil
}

func (m *MockRecurringService) MaterializeDue(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
