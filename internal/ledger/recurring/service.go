package recurring

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
)

var ErrRecurringNotFound = ledgerErrors.NewNotFoundError("recurring transaction not found")

const (
	// dueBatchSize caps the entries one run picks up.
	dueBatchSize = 500
	// maxCatchUp caps the occurrences posted for one entry in one run. The
	// rest follow on later runs.
	maxCatchUp = 62
)

// AssetLookup resolves the asset an entry posts to.
type AssetLookup interface {
	GetAssetByID(ctx context.Context, assetID uuid.UUID) (*asset.Asset, error)
}

// Poster records one ledger transaction, joining the caller's database
// transaction when ctx carries one.
type Poster interface {
	CreateTransaction(ctx context.Context, in transaction.NewTransaction) (*transaction.Transaction, error)
}

type Service interface {
	CreateRecurring(ctx context.Context, in NewEntry) (*Entry, error)
	GetRecurring(ctx context.Context, accountID, id uuid.UUID) (*Entry, error)
	ListRecurring(ctx context.Context, accountID uuid.UUID) ([]Entry, error)
	UpdateRecurring(ctx context.Context, accountID, id uuid.UUID, patch Patch) (*Entry, error)
	DeleteRecurring(ctx context.Context, accountID, id uuid.UUID) error
	// MaterializeDue posts every occurrence due at now and returns how many
	// were posted.
	MaterializeDue(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	txManager database.TxManager
	repo      Repository
	assets    AssetLookup
	poster    Poster
	now       func() time.Time
}

func NewRecurringService(txManager database.TxManager, repo Repository, assets AssetLookup, poster Poster) Service {
	return &service{
		txManager: txManager,
		repo:      repo,
		assets:    assets,
		poster:    poster,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) CreateRecurring(ctx context.Context, in NewEntry) (*Entry, error) {
	e, err := in.build(s.now())
	if err != nil {
		return nil, err
	}

	target, err := s.assets.GetAssetByID(ctx, in.AssetID)
	if err != nil {
		return nil, s.fail(ctx, "create recurring transaction", err, in.AccountID)
	}
	if target.AccountID != in.AccountID {
		return nil, ErrAssetNotInScope
	}

	if err := s.repo.insert(ctx, e); err != nil {
		return nil, s.fail(ctx, "create recurring transaction", err, e.ID)
	}
	return e, nil
}

func (s *service) GetRecurring(ctx context.Context, accountID, id uuid.UUID) (*Entry, error) {
	e, err := s.repo.get(ctx, accountID, id, false)
	if err != nil {
		return nil, s.fail(ctx, "get recurring transaction", notFound(err), id)
	}
	return e, nil
}

func (s *service) ListRecurring(ctx context.Context, accountID uuid.UUID) ([]Entry, error) {
	entries, err := s.repo.listByAccount(ctx, accountID)
	if err != nil {
		return nil, s.fail(ctx, "list recurring transactions", err, accountID)
	}
	return entries, nil
}

func (s *service) UpdateRecurring(ctx context.Context, accountID, id uuid.UUID, patch Patch) (*Entry, error) {
	if patch.IsEmpty() {
		return nil, ledgerErrors.ErrNoFieldsProvided
	}

	var updated *Entry
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.get(ctx, accountID, id, true)
		if err != nil {
			return notFound(err)
		}
		next, err := patch.apply(*current)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now()
		if err := s.repo.save(ctx, &next); err != nil {
			return notFound(err)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update recurring transaction", err, id)
	}
	return updated, nil
}

// DeleteRecurring stops future occurrences. Posted transactions stay.
// Deleting a missing entry succeeds.
func (s *service) DeleteRecurring(ctx context.Context, accountID, id uuid.UUID) error {
	if err := s.repo.delete(ctx, accountID, id); err != nil {
		return s.fail(ctx, "delete recurring transaction", err, id)
	}
	return nil
}

// MaterializeDue posts each due entry in its own unit: the occurrences and
// the advanced NextExecution commit together, so a crash never posts an
// occurrence twice. An entry the ledger rejects is deactivated. Store
// failures are logged and retried on the next run.
func (s *service) MaterializeDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.dueIDs(ctx, now, dueBatchSize)
	if err != nil {
		return 0, s.fail(ctx, "list due recurring transactions", err, uuid.Nil)
	}

	l := logger.FromContext(ctx)
	posted := 0
	var failures []error
	for _, id := range ids {
		n, err := s.materialize(ctx, id, now)
		if err == nil {
			posted += n
			continue
		}
		if !ledgerErrors.IsValidationError(err) && !ledgerErrors.IsNotFound(err) {
			failures = append(failures, err)
			continue
		}
		l.Warn().Err(err).Str("recurring_id", id.String()).Msg("Recurring transaction rejected by the ledger, deactivating")
		if err := s.deactivate(ctx, id, now); err != nil {
			failures = append(failures, err)
		}
	}
	return posted, errors.Join(failures...)
}

func (s *service) materialize(ctx context.Context, id uuid.UUID, now time.Time) (int, error) {
	posted := 0
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.lockDue(ctx, id, now)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		for posted < maxCatchUp && e.due(now) {
			if _, err := s.poster.CreateTransaction(ctx, e.occurrence()); err != nil {
				return err
			}
			e.NextExecution = e.Interval.After(e.NextExecution)
			posted++
		}
		e.UpdatedAt = s.now()
		return s.repo.save(ctx, e)
	})
	if err != nil {
		return 0, s.fail(ctx, "materialize recurring transaction", err, id)
	}
	if posted > 0 {
		l := logger.FromContext(ctx)
		l.Debug().Str("recurring_id", id.String()).Int("posted", posted).Msg("Recurring transaction posted")
	}
	return posted, nil
}

func (s *service) deactivate(ctx context.Context, id uuid.UUID, now time.Time) error {
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.lockDue(ctx, id, now)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		e.IsActive = false
		e.UpdatedAt = s.now()
		return s.repo.save(ctx, e)
	})
	if err != nil {
		return s.fail(ctx, "deactivate recurring transaction", err, id)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecurringNotFound
	}
	return err
}

func (s *service) fail(ctx context.Context, op string, err error, id uuid.UUID) error {
	wrapped := ledgerErrors.NewStoreError(op, err)
	if ledgerErrors.IsStoreError(wrapped) {
		l := logger.FromContext(ctx)
		l.Error().Err(err).Str("op", op).Str("id", id.String()).Msg("Recurring store failure, changes rolled back")
	}
	return wrapped
}
