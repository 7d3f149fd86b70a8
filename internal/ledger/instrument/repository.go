package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	"github.com/shopspring/decimal"
)

// Stock is the catalogue entry a stock holding points at. Tickers are only
// unique within a country.
type Stock struct {
	ID        uuid.UUID           `json:"id"`
	Ticker    string              `json:"ticker"`
	Country   string              `json:"country"`
	Name      string              `json:"name"`
	Exchange  string              `json:"exchange"`
	Currency  string              `json:"currency"`
	Price     decimal.NullDecimal `json:"price"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type Repository interface {
	bulkUpsert(ctx context.Context, stocks []Stock) error
	upsert(ctx context.Context, stock *Stock) (*Stock, error)
	getByTickerCountry(ctx context.Context, ticker, country string) (*Stock, error)
	search(ctx context.Context, query string, limit int) ([]Stock, error)
	getLastUpdatedAt(ctx context.Context) (time.Time, error)
}

type instrumentRepository struct {
	db *sql.DB
}

func NewInstrumentRepository(db *sql.DB) Repository {
	return &instrumentRepository{db: db}
}

const stockColumns = `id, ticker, country, name, exchange, currency, price, updated_at`

const upsertStockQuery = `
        INSERT INTO stock_metadata (id, ticker, country, name, exchange, currency, price, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (ticker, country) DO UPDATE SET
            name = EXCLUDED.name,
            exchange = EXCLUDED.exchange,
            currency = EXCLUDED.currency,
            price = COALESCE(EXCLUDED.price, stock_metadata.price),
            updated_at = NOW()
        RETURNING ` + stockColumns

func scanStock(row interface{ Scan(dest ...any) error }) (*Stock, error) {
	stock := &Stock{}
	err := row.Scan(&stock.ID, &stock.Ticker, &stock.Country, &stock.Name, &stock.Exchange, &stock.Currency, &stock.Price, &stock.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func (r *instrumentRepository) getLastUpdatedAt(ctx context.Context) (time.Time, error) {
	var lastUpdated sql.NullTime
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, `
        SELECT MAX(updated_at) FROM stock_metadata
    `).Scan(&lastUpdated)
	if err != nil {
		return time.Time{}, err
	}

	if !lastUpdated.Valid {
		return time.Time{}, nil
	}
	return lastUpdated.Time, nil
}

// bulkUpsert reuses one prepared statement for the whole batch. It should be
// called inside WithinTx so a failed row discards the batch.
func (r *instrumentRepository) bulkUpsert(ctx context.Context, stocks []Stock) error {
	stmt, err := database.Conn(ctx, r.db).PrepareContext(ctx, upsertStockQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare stock upsert: %w", err)
	}
	defer stmt.Close()

	for _, stock := range stocks {
		_, err := stmt.ExecContext(ctx,
			stock.ID,
			stock.Ticker,
			stock.Country,
			stock.Name,
			stock.Exchange,
			stock.Currency,
			stock.Price,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert stock %s/%s: %w", stock.Ticker, stock.Country, err)
		}
	}
	return nil
}

func (r *instrumentRepository) upsert(ctx context.Context, stock *Stock) (*Stock, error) {
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, upsertStockQuery,
		stock.ID,
		stock.Ticker,
		stock.Country,
		stock.Name,
		stock.Exchange,
		stock.Currency,
		stock.Price,
	)
	return scanStock(row)
}

func (r *instrumentRepository) getByTickerCountry(ctx context.Context, ticker, country string) (*Stock, error) {
	query := `SELECT ` + stockColumns + ` FROM stock_metadata WHERE ticker = $1 AND country = $2`
	return scanStock(database.Conn(ctx, r.db).QueryRowContext(ctx, query, ticker, country))
}

func (r *instrumentRepository) search(ctx context.Context, query string, limit int) ([]Stock, error) {
	q := "%" + query + "%"
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `
        SELECT `+stockColumns+`
        FROM stock_metadata
        WHERE ticker ILIKE $1 OR name ILIKE $1
        ORDER BY ticker, country
        LIMIT $2
    `, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search stocks: %w", err)
	}
	defer rows.Close()

	stocks := make([]Stock, 0)
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, *stock)
	}
	return stocks, rows.Err()
}
