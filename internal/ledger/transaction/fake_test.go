package transaction

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	"github.com/shopspring/decimal"
)

// fakeLedger keeps assets and transactions in memory. WithinTx snapshots
// both maps and restores them when fn fails, standing in for a database
// rollback.
type fakeLedger struct {
	unit sync.Mutex
	mu   sync.Mutex

	balances     map[uuid.UUID]decimal.Decimal
	transactions map[uuid.UUID]Transaction

	adjustErr map[uuid.UUID]error
	adjustLog []Delta
	commits   int
	rollbacks int
}

func newFakeLedger(balances map[uuid.UUID]decimal.Decimal) *fakeLedger {
	f := &fakeLedger{
		balances:     make(map[uuid.UUID]decimal.Decimal),
		transactions: make(map[uuid.UUID]Transaction),
		adjustErr:    make(map[uuid.UUID]error),
	}
	for id, b := range balances {
		f.balances[id] = b
	}
	return f
}

func (f *fakeLedger) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.unit.Lock()
	defer f.unit.Unlock()

	f.mu.Lock()
	balances := make(map[uuid.UUID]decimal.Decimal, len(f.balances))
	for k, v := range f.balances {
		balances[k] = v
	}
	transactions := make(map[uuid.UUID]Transaction, len(f.transactions))
	for k, v := range f.transactions {
		transactions[k] = v
	}
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.balances = balances
		f.transactions = transactions
		f.rollbacks++
		f.mu.Unlock()
		return err
	}
	f.mu.Lock()
	f.commits++
	f.mu.Unlock()
	return nil
}

func (f *fakeLedger) AdjustBalance(_ context.Context, assetID uuid.UUID, delta decimal.Decimal) (*asset.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.adjustErr[assetID]; err != nil {
		return nil, err
	}
	balance, ok := f.balances[assetID]
	if !ok {
		return nil, asset.ErrAssetNotFound
	}
	balance = balance.Add(delta)
	f.balances[assetID] = balance
	f.adjustLog = append(f.adjustLog, Delta{AssetID: assetID, Amount: delta})
	return &asset.Asset{ID: assetID, Balance: balance}, nil
}

func (f *fakeLedger) insertTransaction(_ context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.transactions[t.ID]; exists {
		return errors.New("duplicate key value violates unique constraint")
	}
	f.transactions[t.ID] = *t
	return nil
}

func (f *fakeLedger) getTransaction(_ context.Context, id uuid.UUID, _ bool) (*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transactions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (f *fakeLedger) updateTransaction(_ context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.transactions[t.ID]; !ok {
		return sql.ErrNoRows
	}
	f.transactions[t.ID] = *t
	return nil
}

func (f *fakeLedger) deleteTransaction(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.transactions, id)
	return nil
}

func (f *fakeLedger) findByAccountID(_ context.Context, accountID uuid.UUID) ([]Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Transaction
	for _, t := range f.transactions {
		if (t.FromAccountID.Valid && t.FromAccountID.UUID == accountID) || (t.ToAccountID.Valid && t.ToAccountID.UUID == accountID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) balance(id uuid.UUID) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[id]
}

func (f *fakeLedger) snapshot() map[uuid.UUID]decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]decimal.Decimal, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out
}

func (f *fakeLedger) transactionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transactions)
}
