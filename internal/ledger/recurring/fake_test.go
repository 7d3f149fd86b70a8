package recurring

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
	"github.com/shopspring/decimal"
)

// fakeStore keeps entries, assets and posted transactions in memory.
// WithinTx restores entries and postings when fn fails.
type fakeStore struct {
	unit sync.Mutex
	mu   sync.Mutex

	entries map[uuid.UUID]Entry
	assets  map[uuid.UUID]asset.Asset
	posted  []transaction.NewTransaction

	saveErr   error
	rollbacks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[uuid.UUID]Entry),
		assets:  make(map[uuid.UUID]asset.Asset),
	}
}

func (f *fakeStore) addAsset(accountID uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.assets[id] = asset.Asset{ID: id, AccountID: accountID, AssetType: "cash", Balance: decimal.Zero}
	return id
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.unit.Lock()
	defer f.unit.Unlock()

	f.mu.Lock()
	entries := make(map[uuid.UUID]Entry, len(f.entries))
	for k, v := range f.entries {
		entries[k] = v
	}
	posted := append([]transaction.NewTransaction(nil), f.posted...)
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.entries = entries
		f.posted = posted
		f.rollbacks++
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) GetAssetByID(_ context.Context, assetID uuid.UUID) (*asset.Asset, error) {
	a, ok := f.assets[assetID]
	if !ok {
		return nil, asset.ErrAssetNotFound
	}
	return &a, nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, in transaction.NewTransaction) (*transaction.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, in)
	return &transaction.Transaction{ID: uuid.New(), Amount: in.Amount}, nil
}

func (f *fakeStore) postings() []transaction.NewTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transaction.NewTransaction(nil), f.posted...)
}

func (f *fakeStore) entry(id uuid.UUID) Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id]
}

func (f *fakeStore) insert(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.ID] = *e
	return nil
}

func (f *fakeStore) get(_ context.Context, accountID, id uuid.UUID, _ bool) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.AccountID != accountID {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (f *fakeStore) save(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.entries[e.ID]; !ok {
		return sql.ErrNoRows
	}
	f.entries[e.ID] = *e
	return nil
}

func (f *fakeStore) delete(_ context.Context, accountID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[id]; ok && e.AccountID == accountID {
		delete(f.entries, id)
	}
	return nil
}

func (f *fakeStore) listByAccount(_ context.Context, accountID uuid.UUID) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]Entry, 0)
	for _, e := range f.entries {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].NextExecution.Before(entries[j].NextExecution) })
	return entries, nil
}

func (f *fakeStore) dueIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uuid.UUID, 0)
	for id, e := range f.entries {
		if e.due(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) lockDue(_ context.Context, id uuid.UUID, now time.Time) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || !e.due(now) {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}
