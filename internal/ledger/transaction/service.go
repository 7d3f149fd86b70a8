package transaction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = ledgerErrors.NewNotFoundError("transaction not found")
	ErrReferenceNotFound   = ledgerErrors.NewNotFoundError("referenced asset or account not found")
)

// BalanceAdjuster is the asset store primitive the engine writes balances
// through.
type BalanceAdjuster interface {
	AdjustBalance(ctx context.Context, assetID uuid.UUID, delta decimal.Decimal) (*asset.Asset, error)
}

type Service interface {
	CreateTransaction(ctx context.Context, in NewTransaction) (*Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, patch Patch) (*Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)
	GetTransactionTypes() []TypeInfo
}

type service struct {
	txManager database.TxManager
	repo      Repository
	balances  BalanceAdjuster
	now       func() time.Time
}

func NewTransactionService(txManager database.TxManager, repo Repository, balances BalanceAdjuster) Service {
	return &service{
		txManager: txManager,
		repo:      repo,
		balances:  balances,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) GetTransactionTypes() []TypeInfo {
	return Types()
}

// CreateTransaction stores the record and applies its effect in one unit. If
// any balance cannot be adjusted the record is not kept.
func (s *service) CreateTransaction(ctx context.Context, in NewTransaction) (*Transaction, error) {
	t, err := in.build(s.now())
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.insertTransaction(ctx, t); err != nil {
			return err
		}
		return s.applyDeltas(ctx, netDeltas(nil, t))
	})
	if err != nil {
		return nil, s.fail(ctx, "create transaction", err, t.ID)
	}

	l := logger.FromContext(ctx)
	l.Debug().Str("transaction_id", t.ID.String()).Str("type", t.Flow.Kind().String()).Msg("Transaction created")
	return t, nil
}

func (s *service) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := s.repo.getTransaction(ctx, id, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, s.fail(ctx, "get transaction", err, id)
	}
	return t, nil
}

// UpdateTransaction reverts the stored effect, merges patch and applies the
// new effect. The row is locked for the duration so concurrent edits of the
// same transaction serialise.
func (s *service) UpdateTransaction(ctx context.Context, id uuid.UUID, patch Patch) (*Transaction, error) {
	var updated *Transaction
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.getTransaction(ctx, id, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTransactionNotFound
			}
			return err
		}

		next, err := patch.Apply(*current)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now()

		if err := s.repo.updateTransaction(ctx, &next); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTransactionNotFound
			}
			return err
		}
		if err := s.applyDeltas(ctx, netDeltas(current, &next)); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update transaction", err, id)
	}
	return updated, nil
}

// DeleteTransaction reverts the effect and removes the row. Deleting a
// transaction that does not exist succeeds.
func (s *service) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.getTransaction(ctx, id, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if err := s.applyDeltas(ctx, netDeltas(current, nil)); err != nil {
			return err
		}
		return s.repo.deleteTransaction(ctx, id)
	})
	if err != nil {
		return s.fail(ctx, "delete transaction", err, id)
	}
	return nil
}

func (s *service) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]Transaction, error) {
	transactions, err := s.repo.findByAccountID(ctx, accountID)
	if err != nil {
		return nil, s.fail(ctx, "list transactions", err, accountID)
	}
	return transactions, nil
}

func (s *service) applyDeltas(ctx context.Context, deltas []Delta) error {
	for _, d := range deltas {
		if _, err := s.balances.AdjustBalance(ctx, d.AssetID, d.Amount); err != nil {
			return err
		}
	}
	return nil
}

// fail logs persistence failures and wraps them as StoreError. Domain errors
// pass through unchanged.
func (s *service) fail(ctx context.Context, op string, err error, id uuid.UUID) error {
	wrapped := ledgerErrors.NewStoreError(op, err)
	if ledgerErrors.IsStoreError(wrapped) {
		l := logger.FromContext(ctx)
		l.Error().Err(err).Str("op", op).Str("id", id.String()).Msg("Transaction store failure, changes rolled back")
	}
	return wrapped
}
