package transaction

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/money"
	"github.com/shopspring/decimal"
)

type Kind int16

const (
	KindIncome           Kind = 1
	KindExpense          Kind = 2
	KindTransfer         Kind = 3
	KindInternalTransfer Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindIncome:
		return "Income"
	case KindExpense:
		return "Expense"
	case KindTransfer:
		return "Transfer"
	case KindInternalTransfer:
		return "InternalTransfer"
	default:
		return fmt.Sprintf("Kind(%d)", int16(k))
	}
}

func (k Kind) Valid() bool {
	return k >= KindIncome && k <= KindInternalTransfer
}

type TypeInfo struct {
	ID   Kind   `json:"id"`
	Name string `json:"name"`
}

func Types() []TypeInfo {
	return []TypeInfo{
		{ID: KindIncome, Name: KindIncome.String()},
		{ID: KindExpense, Name: KindExpense.String()},
		{ID: KindTransfer, Name: KindTransfer.String()},
		{ID: KindInternalTransfer, Name: KindInternalTransfer.String()},
	}
}

// Flow says which assets a transaction moves value between. The concrete
// types are Income, Expense, Transfer and InternalTransfer; no other
// implementation exists.
type Flow interface {
	Kind() Kind
	Source() uuid.NullUUID
	Destination() uuid.NullUUID
	isFlow()
}

type Income struct {
	To uuid.UUID
}

type Expense struct {
	From uuid.UUID
}

type Transfer struct {
	From uuid.UUID
	To   uuid.UUID
}

// InternalTransfer moves value between two assets of the same owner.
type InternalTransfer struct {
	From uuid.UUID
	To   uuid.UUID
}

func (Income) Kind() Kind { return KindIncome }
func (Income) Source() uuid.NullUUID { return uuid.NullUUID{} }
func (f Income) Destination() uuid.NullUUID { return some(f.To) }
func (Income) isFlow() {}

func (Expense) Kind() Kind { return KindExpense }
func (f Expense) Source() uuid.NullUUID { return some(f.From) }
func (Expense) Destination() uuid.NullUUID { return uuid.NullUUID{} }
func (Expense) isFlow() {}

func (Transfer) Kind() Kind { return KindTransfer }
func (f Transfer) Source() uuid.NullUUID { return some(f.From) }
func (f Transfer) Destination() uuid.NullUUID { return some(f.To) }
func (Transfer) isFlow() {}

func (InternalTransfer) Kind() Kind { return KindInternalTransfer }
func (f InternalTransfer) Source() uuid.NullUUID { return some(f.From) }
func (f InternalTransfer) Destination() uuid.NullUUID { return some(f.To) }
func (InternalTransfer) isFlow() {}

func some(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}

// NewFlow builds the variant for kind. Every endpoint the kind uses must be
// present and every endpoint it does not use must be absent.
func NewFlow(kind Kind, from, to uuid.NullUUID) (Flow, error) {
	switch kind {
	case KindIncome:
		if !to.Valid || from.Valid {
			return nil, fmt.Errorf("income needs to_asset_id only: %w", ledgerErrors.ErrInvalidFlow)
		}
		return Income{To: to.UUID}, nil
	case KindExpense:
		if !from.Valid || to.Valid {
			return nil, fmt.Errorf("expense needs from_asset_id only: %w", ledgerErrors.ErrInvalidFlow)
		}
		return Expense{From: from.UUID}, nil
	case KindTransfer, KindInternalTransfer:
		if !from.Valid || !to.Valid {
			return nil, fmt.Errorf("%s needs from_asset_id and to_asset_id: %w", kind, ledgerErrors.ErrInvalidFlow)
		}
		if from.UUID == to.UUID {
			return nil, fmt.Errorf("%s between the same asset: %w", kind, ledgerErrors.ErrInvalidFlow)
		}
		if kind == KindInternalTransfer {
			return InternalTransfer{From: from.UUID, To: to.UUID}, nil
		}
		return Transfer{From: from.UUID, To: to.UUID}, nil
	default:
		return nil, fmt.Errorf("unknown transaction type %d: %w", int16(kind), ledgerErrors.ErrInvalidFlow)
	}
}

type Transaction struct {
	ID              uuid.UUID
	Flow            Flow
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	FromAccountID   uuid.NullUUID
	ToAccountID     uuid.NullUUID
	TransactionTime time.Time
	Notes           *string
	Image           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Delta is a signed change to one asset's balance.
type Delta struct {
	AssetID uuid.UUID
	Amount  decimal.Decimal
}

// Effect returns the balance changes t causes: the destination gains amount
// and the source loses amount plus fee.
func (t *Transaction) Effect() []Delta {
	var deltas []Delta
	if to := t.Flow.Destination(); to.Valid {
		deltas = append(deltas, Delta{AssetID: to.UUID, Amount: t.Amount})
	}
	if from := t.Flow.Source(); from.Valid {
		deltas = append(deltas, Delta{AssetID: from.UUID, Amount: t.Amount.Add(t.Fee).Neg()})
	}
	return deltas
}

// netDeltas combines reverting previous with applying next. Either may be nil.
// The result has one entry per asset with a non-zero change, ordered by asset
// id so concurrent operations lock rows in the same order.
func netDeltas(previous, next *Transaction) []Delta {
	sums := make(map[uuid.UUID]decimal.Decimal)
	if previous != nil {
		for _, d := range previous.Effect() {
			sums[d.AssetID] = sums[d.AssetID].Sub(d.Amount)
		}
	}
	if next != nil {
		for _, d := range next.Effect() {
			sums[d.AssetID] = sums[d.AssetID].Add(d.Amount)
		}
	}

	deltas := make([]Delta, 0, len(sums))
	for id, amount := range sums {
		if amount.IsZero() {
			continue
		}
		deltas = append(deltas, Delta{AssetID: id, Amount: amount})
	}
	sort.Slice(deltas, func(i, j int) bool {
		return bytes.Compare(deltas[i].AssetID[:], deltas[j].AssetID[:]) < 0
	})
	return deltas
}

type NewTransaction struct {
	Kind            Kind
	FromAssetID     uuid.NullUUID
	ToAssetID       uuid.NullUUID
	Amount          decimal.Decimal
	Fee             *decimal.Decimal
	FromAccountID   uuid.NullUUID
	ToAccountID     uuid.NullUUID
	TransactionTime *time.Time
	Notes           *string
	Image           *string
}

func (in NewTransaction) build(now time.Time) (*Transaction, error) {
	flow, err := NewFlow(in.Kind, in.FromAssetID, in.ToAssetID)
	if err != nil {
		return nil, err
	}

	fee := decimal.Zero
	if in.Fee != nil {
		fee = *in.Fee
	}
	txTime := now
	if in.TransactionTime != nil {
		txTime = in.TransactionTime.UTC()
	}

	t := &Transaction{
		ID:              uuid.New(),
		Flow:            flow,
		Amount:          money.Normalize(in.Amount),
		Fee:             money.Normalize(fee),
		FromAccountID:   in.FromAccountID,
		ToAccountID:     in.ToAccountID,
		TransactionTime: txTime,
		Notes:           in.Notes,
		Image:           in.Image,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := t.validateAmounts(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transaction) validateAmounts() error {
	if err := money.NonNegative("amount", t.Amount); err != nil {
		return err
	}
	return money.NonNegative("fee", t.Fee)
}

// Patch carries the fields of an update. Nil means "keep the current value".
type Patch struct {
	Kind            *Kind
	FromAssetID     *uuid.UUID
	ToAssetID       *uuid.UUID
	Amount          *decimal.Decimal
	Fee             *decimal.Decimal
	FromAccountID   *uuid.UUID
	ToAccountID     *uuid.UUID
	TransactionTime *time.Time
	Notes           *string
	Image           *string
}

func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Apply merges p into t and returns the result; t is not modified. When the
// kind changes, endpoints the new kind does not use are dropped unless the
// patch sets them explicitly, in which case the merge fails.
func (p Patch) Apply(t Transaction) (Transaction, error) {
	next := t

	kind := t.Flow.Kind()
	from, to := t.Flow.Source(), t.Flow.Destination()
	if p.Kind != nil && *p.Kind != kind {
		kind = *p.Kind
		if kind == KindIncome {
			from = uuid.NullUUID{}
		}
		if kind == KindExpense {
			to = uuid.NullUUID{}
		}
	}
	if p.FromAssetID != nil {
		from = some(*p.FromAssetID)
	}
	if p.ToAssetID != nil {
		to = some(*p.ToAssetID)
	}
	flow, err := NewFlow(kind, from, to)
	if err != nil {
		return Transaction{}, err
	}
	next.Flow = flow

	if p.Amount != nil {
		next.Amount = money.Normalize(*p.Amount)
	}
	if p.Fee != nil {
		next.Fee = money.Normalize(*p.Fee)
	}
	if err := next.validateAmounts(); err != nil {
		return Transaction{}, err
	}

	if p.FromAccountID != nil {
		next.FromAccountID = some(*p.FromAccountID)
	}
	if p.ToAccountID != nil {
		next.ToAccountID = some(*p.ToAccountID)
	}
	if p.TransactionTime != nil {
		next.TransactionTime = p.TransactionTime.UTC()
	}
	if p.Notes != nil {
		next.Notes = p.Notes
	}
	if p.Image != nil {
		next.Image = p.Image
	}
	return next, nil
}
