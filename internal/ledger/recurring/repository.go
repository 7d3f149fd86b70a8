package recurring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
)

type Repository interface {
	insert(ctx context.Context, e *Entry) error
	get(ctx context.Context, accountID, id uuid.UUID, forUpdate bool) (*Entry, error)
	save(ctx context.Context, e *Entry) error
	delete(ctx context.Context, accountID, id uuid.UUID) error
	listByAccount(ctx context.Context, accountID uuid.UUID) ([]Entry, error)
	dueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	lockDue(ctx context.Context, id uuid.UUID, now time.Time) (*Entry, error)
}

type recurringRepository struct {
	db *sql.DB
}

func NewRecurringRepository(db *sql.DB) Repository {
	return &recurringRepository{db: db}
}

const entryColumns = `id, account_id, asset_id, amount, interval, transaction_type,
        next_execution, is_active, created_at, updated_at`

func scanEntry(row interface{ Scan(dest ...any) error }) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.AccountID, &e.AssetID, &e.Amount, &e.Interval, &e.Kind,
		&e.NextExecution, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *recurringRepository) insert(ctx context.Context, e *Entry) error {
	query := `
        INSERT INTO recurring_transactions (` + entryColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		e.ID, e.AccountID, e.AssetID, e.Amount, e.Interval, e.Kind,
		e.NextExecution, e.IsActive, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return transaction.ErrReferenceNotFound
		}
		return fmt.Errorf("failed to insert recurring transaction: %w", err)
	}
	return nil
}

// get returns sql.ErrNoRows when the entry does not exist or belongs to
// another account.
func (r *recurringRepository) get(ctx context.Context, accountID, id uuid.UUID, forUpdate bool) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM recurring_transactions WHERE id = $1 AND account_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanEntry(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id, accountID))
}

func (r *recurringRepository) save(ctx context.Context, e *Entry) error {
	query := `
        UPDATE recurring_transactions
        SET amount = $2, interval = $3, next_execution = $4, is_active = $5, updated_at = $6
        WHERE id = $1
    `
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		e.ID, e.Amount, e.Interval, e.NextExecution, e.IsActive, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update recurring transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update recurring transaction: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *recurringRepository) delete(ctx context.Context, accountID, id uuid.UUID) error {
	query := `DELETE FROM recurring_transactions WHERE id = $1 AND account_id = $2`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, accountID); err != nil {
		return fmt.Errorf("failed to delete recurring transaction: %w", err)
	}
	return nil
}

func (r *recurringRepository) listByAccount(ctx context.Context, accountID uuid.UUID) ([]Entry, error) {
	query := `SELECT ` + entryColumns + `
        FROM recurring_transactions
        WHERE account_id = $1
        ORDER BY next_execution, id`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring transactions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *recurringRepository) dueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
        SELECT id FROM recurring_transactions
        WHERE is_active AND next_execution <= $1
        ORDER BY next_execution
        LIMIT $2`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due recurring transactions: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// lockDue locks the entry if it is still due. It returns sql.ErrNoRows when
// another run already advanced it or holds the lock.
func (r *recurringRepository) lockDue(ctx context.Context, id uuid.UUID, now time.Time) (*Entry, error) {
	query := `SELECT ` + entryColumns + `
        FROM recurring_transactions
        WHERE id = $1 AND is_active AND next_execution <= $2
        FOR UPDATE SKIP LOCKED`
	return scanEntry(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id, now))
}
