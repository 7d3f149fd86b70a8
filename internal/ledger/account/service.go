package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
)

var (
	ErrAccountNotFound  = ledgerErrors.NewNotFoundError("account not found")
	ErrAccountNameTaken = ledgerErrors.NewValidationError("account with this name already exists")
	ErrAccountNameEmpty = ledgerErrors.NewValidationError("account name is required")
)

type Service interface {
	CreateAccount(ctx context.Context, userID, name string) (*Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID, userID string) (*Account, error)
	GetAllAccounts(ctx context.Context, userID string) ([]Account, error)
	CheckAccountOwnership(ctx context.Context, accountID uuid.UUID, userID string) (bool, error)
}

type service struct {
	accountRepo Repository
}

func NewAccountService(repo Repository) Service {
	return &service{accountRepo: repo}
}

func (s *service) CreateAccount(ctx context.Context, userID, name string) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrAccountNameEmpty
	}

	exists, err := s.accountRepo.existsByName(ctx, userID, name)
	if err != nil {
		return nil, s.storeError(ctx, "create account", err)
	}
	if exists {
		return nil, ErrAccountNameTaken
	}

	now := time.Now().UTC()
	account := &Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accountRepo.create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountNameTaken) {
			return nil, err
		}
		return nil, s.storeError(ctx, "create account", err)
	}
	return account, nil
}

// GetAccount hides accounts of other users behind ErrAccountNotFound.
func (s *service) GetAccount(ctx context.Context, accountID uuid.UUID, userID string) (*Account, error) {
	account, err := s.accountRepo.findByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, s.storeError(ctx, "get account", err)
	}
	if account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *service) GetAllAccounts(ctx context.Context, userID string) ([]Account, error) {
	accounts, err := s.accountRepo.findByUserID(ctx, userID)
	if err != nil {
		return nil, s.storeError(ctx, "list accounts", err)
	}
	return accounts, nil
}

func (s *service) CheckAccountOwnership(ctx context.Context, accountID uuid.UUID, userID string) (bool, error) {
	_, err := s.GetAccount(ctx, accountID, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *service) storeError(ctx context.Context, op string, err error) error {
	l := logger.FromContext(ctx)
	l.Error().Err(err).Str("op", op).Msg("Account store failure")
	return ledgerErrors.NewStoreError(op, err)
}
