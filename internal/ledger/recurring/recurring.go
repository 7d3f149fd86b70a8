package recurring

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/money"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInterval = ledgerErrors.NewValidationError("interval must be Daily, Weekly or Monthly")
	ErrInvalidKind     = ledgerErrors.NewValidationError("recurring transactions are Income or Expense")
	ErrAssetNotInScope = ledgerErrors.NewValidationError("asset does not belong to the account")
)

type Interval string

const (
	Daily   Interval = "Daily"
	Weekly  Interval = "Weekly"
	Monthly Interval = "Monthly"
)

// ParseInterval accepts the interval names in any case.
func ParseInterval(raw string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	}
	return "", fmt.Errorf("%q: %w", raw, ErrInvalidInterval)
}

// After returns the occurrence following t. Monthly follows time.AddDate, so
// January 31st is followed by March 2nd or 3rd.
func (i Interval) After(t time.Time) time.Time {
	switch i {
	case Daily:
		return t.AddDate(0, 0, 1)
	case Weekly:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// Entry posts Amount to AssetID every Interval, starting at NextExecution.
// Income credits the asset and Expense debits it.
type Entry struct {
	ID            uuid.UUID        `json:"id"`
	AccountID     uuid.UUID        `json:"account_id"`
	AssetID       uuid.UUID        `json:"asset_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Interval      Interval         `json:"interval"`
	Kind          transaction.Kind `json:"transaction_type"`
	NextExecution time.Time        `json:"next_execution"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// due reports whether an occurrence is pending at now.
func (e *Entry) due(now time.Time) bool {
	return e.IsActive && !e.NextExecution.After(now)
}

// occurrence builds the ledger transaction for the occurrence at e.NextExecution.
func (e *Entry) occurrence() transaction.NewTransaction {
	at := e.NextExecution
	in := transaction.NewTransaction{
		Kind:            e.Kind,
		Amount:          e.Amount,
		TransactionTime: &at,
	}
	ref := uuid.NullUUID{UUID: e.AssetID, Valid: true}
	account := uuid.NullUUID{UUID: e.AccountID, Valid: true}
	if e.Kind == transaction.KindIncome {
		in.ToAssetID, in.ToAccountID = ref, account
	} else {
		in.FromAssetID, in.FromAccountID = ref, account
	}
	return in
}

func validateKind(kind transaction.Kind) error {
	if kind != transaction.KindIncome && kind != transaction.KindExpense {
		return fmt.Errorf("%s: %w", kind, ErrInvalidKind)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !money.Normalize(amount).IsPositive() {
		return fmt.Errorf("amount: %w", ledgerErrors.ErrInvalidAmount)
	}
	return nil
}

type NewEntry struct {
	AccountID uuid.UUID
	AssetID   uuid.UUID
	Amount    decimal.Decimal
	Interval  string
	Kind      transaction.Kind
	// FirstExecution defaults to the creation time.
	FirstExecution *time.Time
}

func (in NewEntry) build(now time.Time) (*Entry, error) {
	interval, err := ParseInterval(in.Interval)
	if err != nil {
		return nil, err
	}
	if err := validateKind(in.Kind); err != nil {
		return nil, err
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	next := now
	if in.FirstExecution != nil {
		next = in.FirstExecution.UTC()
	}
	return &Entry{
		ID:            uuid.New(),
		AccountID:     in.AccountID,
		AssetID:       in.AssetID,
		Amount:        money.Normalize(in.Amount),
		Interval:      interval,
		Kind:          in.Kind,
		NextExecution: next,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Patch carries the fields of an update. Nil means "keep the current value".
type Patch struct {
	Amount        *decimal.Decimal
	Interval      *string
	NextExecution *time.Time
	IsActive      *bool
}

func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.Interval == nil && p.NextExecution == nil && p.IsActive == nil
}

func (p Patch) apply(current Entry) (Entry, error) {
	if p.IsEmpty() {
		return Entry{}, ledgerErrors.ErrNoFieldsProvided
	}

	next := current
	if p.Amount != nil {
		if err := validateAmount(*p.Amount); err != nil {
			return Entry{}, err
		}
		next.Amount = money.Normalize(*p.Amount)
	}
	if p.Interval != nil {
		interval, err := ParseInterval(*p.Interval)
		if err != nil {
			return Entry{}, err
		}
		next.Interval = interval
	}
	if p.NextExecution != nil {
		next.NextExecution = p.NextExecution.UTC()
	}
	if p.IsActive != nil {
		next.IsActive = *p.IsActive
	}
	return next, nil
}
