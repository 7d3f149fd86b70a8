package account

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
)

type Account struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	create(ctx context.Context, account *Account) error
	findByID(ctx context.Context, accountID uuid.UUID) (*Account, error)
	existsByName(ctx context.Context, userID, name string) (bool, error)
	findByUserID(ctx context.Context, userID string) ([]Account, error)
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) Repository {
	return &accountRepository{db: db}
}

func (r *accountRepository) existsByName(ctx context.Context, userID, name string) (bool, error) {
	query := `SELECT COUNT(1) FROM accounts WHERE user_id = $1 AND name = $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check account name: %w", err)
	}
	return count > 0, nil
}

func (r *accountRepository) create(ctx context.Context, account *Account) error {
	query := `INSERT INTO accounts (id, user_id, name, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, account.ID, account.UserID, account.Name, account.CreatedAt, account.UpdatedAt)
	return insertError(err)
}

// insertError reports a lost race on (user_id, name) as ErrAccountNameTaken.
func insertError(err error) error {
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err) {
		return ErrAccountNameTaken
	}
	return fmt.Errorf("failed to insert account: %w", err)
}

func (r *accountRepository) findByID(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	query := `SELECT id, user_id, name, created_at, updated_at FROM accounts WHERE id = $1`

	account := &Account{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID, &account.UserID, &account.Name, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) findByUserID(ctx context.Context, userID string) ([]Account, error) {
	query := `SELECT id, user_id, name, created_at, updated_at FROM accounts WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.ID, &account.UserID, &account.Name, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
