package asset

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	"github.com/shopspring/decimal"
)

type Asset struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	AssetType string          `json:"asset_type"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Repository interface {
	createAsset(ctx context.Context, asset *Asset) error
	getAssetByID(ctx context.Context, assetID uuid.UUID) (*Asset, error)
	findByAccountID(ctx context.Context, accountID uuid.UUID) ([]Asset, error)
	adjustBalance(ctx context.Context, assetID uuid.UUID, delta decimal.Decimal) (*Asset, error)
	doesAssetBelongToUser(ctx context.Context, assetID uuid.UUID, userID string) (bool, error)
}

type assetRepository struct {
	db *sql.DB
}

func NewAssetRepository(db *sql.DB) Repository {
	return &assetRepository{db: db}
}

const assetColumns = `id, account_id, asset_type, name, balance, created_at, updated_at`

func scanAsset(row interface{ Scan(dest ...any) error }) (*Asset, error) {
	asset := &Asset{}
	err := row.Scan(&asset.ID, &asset.AccountID, &asset.AssetType, &asset.Name, &asset.Balance, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (a *assetRepository) createAsset(ctx context.Context, asset *Asset) error {
	query := `
        INSERT INTO assets (id, account_id, asset_type, name, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := database.Conn(ctx, a.db).ExecContext(ctx, query,
		asset.ID,
		asset.AccountID,
		asset.AssetType,
		asset.Name,
		asset.Balance,
		asset.CreatedAt,
		asset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

func (a *assetRepository) getAssetByID(ctx context.Context, assetID uuid.UUID) (*Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`
	return scanAsset(database.Conn(ctx, a.db).QueryRowContext(ctx, query, assetID))
}

func (a *assetRepository) findByAccountID(ctx context.Context, accountID uuid.UUID) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE account_id = $1 ORDER BY created_at`
	rows, err := database.Conn(ctx, a.db).QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	assets := make([]Asset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// adjustBalance adds delta in a single statement so concurrent adjustments
// serialise on the row lock instead of overwriting each other.
func (a *assetRepository) adjustBalance(ctx context.Context, assetID uuid.UUID, delta decimal.Decimal) (*Asset, error) {
	query := `
        UPDATE assets
        SET balance = balance + $2::numeric,
            updated_at = NOW()
        WHERE id = $1
        RETURNING ` + assetColumns
	return scanAsset(database.Conn(ctx, a.db).QueryRowContext(ctx, query, assetID, delta))
}

func (a *assetRepository) doesAssetBelongToUser(ctx context.Context, assetID uuid.UUID, userID string) (bool, error) {
	query := `
        SELECT COUNT(1)
        FROM assets a
        JOIN accounts acc ON acc.id = a.account_id
        WHERE a.id = $1 AND acc.user_id = $2
    `
	var count int
	if err := database.Conn(ctx, a.db).QueryRowContext(ctx, query, assetID, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check asset ownership: %w", err)
	}
	return count > 0, nil
}
