package transaction

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
)

type Repository interface {
	insertTransaction(ctx context.Context, t *Transaction) error
	getTransaction(ctx context.Context, id uuid.UUID, forUpdate bool) (*Transaction, error)
	updateTransaction(ctx context.Context, t *Transaction) error
	deleteTransaction(ctx context.Context, id uuid.UUID) error
	findByAccountID(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)
}

type transactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) Repository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, transaction_type, from_asset_id, to_asset_id, amount, fee,
        from_account_id, to_account_id, transaction_time, notes, image, created_at, updated_at`

func scanTransaction(row interface{ Scan(dest ...any) error }) (*Transaction, error) {
	var (
		t        Transaction
		kind     Kind
		from, to uuid.NullUUID
		notes    sql.NullString
		image    sql.NullString
	)
	err := row.Scan(&t.ID, &kind, &from, &to, &t.Amount, &t.Fee,
		&t.FromAccountID, &t.ToAccountID, &t.TransactionTime, &notes, &image, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	flow, err := NewFlow(kind, from, to)
	if err != nil {
		return nil, fmt.Errorf("stored transaction %s is inconsistent: %v", t.ID, err)
	}
	t.Flow = flow
	if notes.Valid {
		t.Notes = &notes.String
	}
	if image.Valid {
		t.Image = &image.String
	}
	return &t, nil
}

func (r *transactionRepository) insertTransaction(ctx context.Context, t *Transaction) error {
	query := `
        INSERT INTO transactions (` + transactionColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		t.ID,
		t.Flow.Kind(),
		t.Flow.Source(),
		t.Flow.Destination(),
		t.Amount,
		t.Fee,
		t.FromAccountID,
		t.ToAccountID,
		t.TransactionTime,
		t.Notes,
		t.Image,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrReferenceNotFound
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// getTransaction returns sql.ErrNoRows when the row does not exist. With
// forUpdate the row stays locked until the surrounding transaction ends.
func (r *transactionRepository) getTransaction(ctx context.Context, id uuid.UUID, forUpdate bool) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanTransaction(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *transactionRepository) updateTransaction(ctx context.Context, t *Transaction) error {
	query := `
        UPDATE transactions
        SET transaction_type = $2,
            from_asset_id = $3,
            to_asset_id = $4,
            amount = $5,
            fee = $6,
            from_account_id = $7,
            to_account_id = $8,
            transaction_time = $9,
            notes = $10,
            image = $11,
            updated_at = $12
        WHERE id = $1
    `
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		t.ID,
		t.Flow.Kind(),
		t.Flow.Source(),
		t.Flow.Destination(),
		t.Amount,
		t.Fee,
		t.FromAccountID,
		t.ToAccountID,
		t.TransactionTime,
		t.Notes,
		t.Image,
		t.UpdatedAt,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrReferenceNotFound
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *transactionRepository) deleteTransaction(ctx context.Context, id uuid.UUID) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) findByAccountID(ctx context.Context, accountID uuid.UUID) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + `
        FROM transactions
        WHERE from_account_id = $1 OR to_account_id = $1
        ORDER BY transaction_time DESC`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}
