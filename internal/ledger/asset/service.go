package asset

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/money"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
	"github.com/shopspring/decimal"
)

var (
	ErrAssetNotFound     = ledgerErrors.NewNotFoundError("asset not found")
	ErrAssetTypeRequired = ledgerErrors.NewValidationError("asset type is required")
)

type NewAsset struct {
	AccountID      uuid.UUID
	AssetType      string
	Name           string
	OpeningBalance decimal.Decimal
}

type Service interface {
	CreateAsset(ctx context.Context, in NewAsset) (*Asset, error)
	GetAssetByID(ctx context.Context, assetID uuid.UUID) (*Asset, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]Asset, error)
	// AdjustBalance is the only way a balance changes. It joins the
	// caller's database transaction when ctx carries one.
	AdjustBalance(ctx context.Context, assetID uuid.UUID, delta decimal.Decimal) (*Asset, error)
	CheckAssetOwnership(ctx context.Context, assetID uuid.UUID, userID string) (bool, error)
}

type service struct {
	assetRepo Repository
}

func NewAssetService(repo Repository) Service {
	return &service{assetRepo: repo}
}

func (s *service) CreateAsset(ctx context.Context, in NewAsset) (*Asset, error) {
	assetType := strings.ToLower(strings.TrimSpace(in.AssetType))
	if assetType == "" {
		return nil, ErrAssetTypeRequired
	}

	now := time.Now().UTC()
	asset := &Asset{
		ID:        uuid.New(),
		AccountID: in.AccountID,
		AssetType: assetType,
		Name:      strings.TrimSpace(in.Name),
		Balance:   money.Normalize(in.OpeningBalance),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.assetRepo.createAsset(ctx, asset); err != nil {
		return nil, s.storeError(ctx, "create asset", err, asset.ID)
	}
	return asset, nil
}

func (s *service) GetAssetByID(ctx context.Context, assetID uuid.UUID) (*Asset, error) {
	asset, err := s.assetRepo.getAssetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, s.storeError(ctx, "get asset", err, assetID)
	}
	return asset, nil
}

func (s *service) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]Asset, error) {
	assets, err := s.assetRepo.findByAccountID(ctx, accountID)
	if err != nil {
		return nil, s.storeError(ctx, "list assets", err, accountID)
	}
	return assets, nil
}

func (s *service) AdjustBalance(ctx context.Context, assetID uuid.UUID, delta decimal.Decimal) (*Asset, error) {
	asset, err := s.assetRepo.adjustBalance(ctx, assetID, money.Normalize(delta))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, s.storeError(ctx, "adjust balance", err, assetID)
	}
	return asset, nil
}

func (s *service) CheckAssetOwnership(ctx context.Context, assetID uuid.UUID, userID string) (bool, error) {
	owned, err := s.assetRepo.doesAssetBelongToUser(ctx, assetID, userID)
	if err != nil {
		return false, s.storeError(ctx, "check asset ownership", err, assetID)
	}
	return owned, nil
}

func (s *service) storeError(ctx context.Context, op string, err error, id uuid.UUID) error {
	l := logger.FromContext(ctx)
	l.Error().Err(err).Str("op", op).Str("id", id.String()).Msg("Asset store failure")
	return ledgerErrors.NewStoreError(op, err)
}
