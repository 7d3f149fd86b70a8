package holding

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
)

type Repository interface {
	ensureStock(ctx context.Context, accountID, stockID uuid.UUID) error
	lockStock(ctx context.Context, accountID, stockID uuid.UUID) (*StockHolding, error)
	getStock(ctx context.Context, accountID, holdingID uuid.UUID, forUpdate bool) (*StockHolding, error)
	saveStock(ctx context.Context, holdingID uuid.UUID, p Position) (time.Time, error)
	deleteStock(ctx context.Context, accountID, holdingID uuid.UUID) error
	listStocks(ctx context.Context, accountID uuid.UUID) ([]StockHolding, error)

	ensureCurrency(ctx context.Context, accountID uuid.UUID, key CurrencyKey) error
	lockCurrency(ctx context.Context, accountID uuid.UUID, code string) (*CurrencyHolding, error)
	getCurrency(ctx context.Context, accountID, holdingID uuid.UUID, forUpdate bool) (*CurrencyHolding, error)
	saveCurrency(ctx context.Context, holdingID uuid.UUID, p Position) (time.Time, error)
	deleteCurrency(ctx context.Context, accountID, holdingID uuid.UUID) error
	listCurrencies(ctx context.Context, accountID uuid.UUID) ([]CurrencyHolding, error)
	heldCurrencyCodes(ctx context.Context) ([]string, error)
}

type holdingRepository struct {
	db *sql.DB
}

func NewHoldingRepository(db *sql.DB) Repository {
	return &holdingRepository{db: db}
}

const stockHoldingSelect = `
        SELECT h.id, h.account_id, h.stock_id, m.ticker, m.name, m.country, m.price,
               h.quantity, h.average_cost, h.created_at, h.updated_at
        FROM stock_holdings h
        JOIN stock_metadata m ON m.id = h.stock_id`

func scanStockHolding(row interface{ Scan(dest ...any) error }) (*StockHolding, error) {
	h := &StockHolding{}
	err := row.Scan(&h.ID, &h.AccountID, &h.StockID, &h.TickerSymbol, &h.CompanyName, &h.Country, &h.CurrentPrice,
		&h.Quantity, &h.AverageCost, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ensureStock creates an empty holding if none exists yet. The row is then
// locked by lockStock, so the first trade on a key cannot race a second one.
func (r *holdingRepository) ensureStock(ctx context.Context, accountID, stockID uuid.UUID) error {
	query := `
        INSERT INTO stock_holdings (id, account_id, stock_id, quantity, average_cost)
        VALUES ($1, $2, $3, 0, NULL)
        ON CONFLICT (account_id, stock_id) DO NOTHING
    `
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, uuid.New(), accountID, stockID); err != nil {
		return fmt.Errorf("failed to ensure stock holding: %w", err)
	}
	return nil
}

func (r *holdingRepository) lockStock(ctx context.Context, accountID, stockID uuid.UUID) (*StockHolding, error) {
	query := stockHoldingSelect + ` WHERE h.account_id = $1 AND h.stock_id = $2 FOR UPDATE OF h`
	return scanStockHolding(database.Conn(ctx, r.db).QueryRowContext(ctx, query, accountID, stockID))
}

func (r *holdingRepository) getStock(ctx context.Context, accountID, holdingID uuid.UUID, forUpdate bool) (*StockHolding, error) {
	query := stockHoldingSelect + ` WHERE h.id = $1 AND h.account_id = $2`
	if forUpdate {
		query += ` FOR UPDATE OF h`
	}
	return scanStockHolding(database.Conn(ctx, r.db).QueryRowContext(ctx, query, holdingID, accountID))
}

func (r *holdingRepository) saveStock(ctx context.Context, holdingID uuid.UUID, p Position) (time.Time, error) {
	query := `
        UPDATE stock_holdings
        SET quantity = $2, average_cost = $3, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	var updatedAt time.Time
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, holdingID, p.Quantity, p.AverageCost).Scan(&updatedAt)
	return updatedAt, err
}

func (r *holdingRepository) deleteStock(ctx context.Context, accountID, holdingID uuid.UUID) error {
	query := `DELETE FROM stock_holdings WHERE id = $1 AND account_id = $2`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, holdingID, accountID); err != nil {
		return fmt.Errorf("failed to delete stock holding: %w", err)
	}
	return nil
}

func (r *holdingRepository) listStocks(ctx context.Context, accountID uuid.UUID) ([]StockHolding, error) {
	query := stockHoldingSelect + ` WHERE h.account_id = $1 ORDER BY m.ticker`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]StockHolding, 0)
	for rows.Next() {
		h, err := scanStockHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

const currencyHoldingColumns = `id, account_id, country, currency_code, quantity, average_cost, created_at, updated_at`

func scanCurrencyHolding(row interface{ Scan(dest ...any) error }) (*CurrencyHolding, error) {
	h := &CurrencyHolding{}
	err := row.Scan(&h.ID, &h.AccountID, &h.Country, &h.CurrencyCode, &h.Quantity, &h.AverageCost, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *holdingRepository) ensureCurrency(ctx context.Context, accountID uuid.UUID, key CurrencyKey) error {
	query := `
        INSERT INTO currency_holdings (id, account_id, country, currency_code, quantity, average_cost)
        VALUES ($1, $2, $3, $4, 0, NULL)
        ON CONFLICT (account_id, currency_code) DO NOTHING
    `
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, uuid.New(), accountID, key.Country, key.Code); err != nil {
		return fmt.Errorf("failed to ensure currency holding: %w", err)
	}
	return nil
}

func (r *holdingRepository) lockCurrency(ctx context.Context, accountID uuid.UUID, code string) (*CurrencyHolding, error) {
	query := `SELECT ` + currencyHoldingColumns + ` FROM currency_holdings
              WHERE account_id = $1 AND currency_code = $2 FOR UPDATE`
	return scanCurrencyHolding(database.Conn(ctx, r.db).QueryRowContext(ctx, query, accountID, code))
}

func (r *holdingRepository) getCurrency(ctx context.Context, accountID, holdingID uuid.UUID, forUpdate bool) (*CurrencyHolding, error) {
	query := `SELECT ` + currencyHoldingColumns + ` FROM currency_holdings WHERE id = $1 AND account_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanCurrencyHolding(database.Conn(ctx, r.db).QueryRowContext(ctx, query, holdingID, accountID))
}

func (r *holdingRepository) saveCurrency(ctx context.Context, holdingID uuid.UUID, p Position) (time.Time, error) {
	query := `
        UPDATE currency_holdings
        SET quantity = $2, average_cost = $3, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	var updatedAt time.Time
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, holdingID, p.Quantity, p.AverageCost).Scan(&updatedAt)
	return updatedAt, err
}

func (r *holdingRepository) deleteCurrency(ctx context.Context, accountID, holdingID uuid.UUID) error {
	query := `DELETE FROM currency_holdings WHERE id = $1 AND account_id = $2`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, holdingID, accountID); err != nil {
		return fmt.Errorf("failed to delete currency holding: %w", err)
	}
	return nil
}

func (r *holdingRepository) listCurrencies(ctx context.Context, accountID uuid.UUID) ([]CurrencyHolding, error) {
	query := `SELECT ` + currencyHoldingColumns + ` FROM currency_holdings WHERE account_id = $1 ORDER BY currency_code`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list currency holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]CurrencyHolding, 0)
	for rows.Next() {
		h, err := scanCurrencyHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (r *holdingRepository) heldCurrencyCodes(ctx context.Context) ([]string, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `
        SELECT DISTINCT currency_code FROM currency_holdings WHERE quantity > 0 ORDER BY currency_code
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to list held currencies: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
