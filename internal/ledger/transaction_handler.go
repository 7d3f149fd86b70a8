package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
	"github.com/shopspring/decimal"
)

type createTransactionRequest struct {
	TransactionType int              `json:"transaction_type"`
	FromAssetID     *uuid.UUID       `json:"from_asset_id"`
	ToAssetID       *uuid.UUID       `json:"to_asset_id"`
	Amount          *decimal.Decimal `json:"amount"`
	Fee             *decimal.Decimal `json:"fee"`
	FromAccountID   *uuid.UUID       `json:"from_account_id"`
	ToAccountID     *uuid.UUID       `json:"to_account_id"`
	TransactionTime *time.Time       `json:"transaction_time"`
	Notes           *string          `json:"notes"`
	Image           *string          `json:"image"`
}

type updateTransactionRequest struct {
	TransactionType *int             `json:"transaction_type"`
	FromAssetID     *uuid.UUID       `json:"from_asset_id"`
	ToAssetID       *uuid.UUID       `json:"to_asset_id"`
	Amount          *decimal.Decimal `json:"amount"`
	Fee             *decimal.Decimal `json:"fee"`
	FromAccountID   *uuid.UUID       `json:"from_account_id"`
	ToAccountID     *uuid.UUID       `json:"to_account_id"`
	TransactionTime *time.Time       `json:"transaction_time"`
	Notes           *string          `json:"notes"`
	Image           *string          `json:"image"`
}

type transactionResponse struct {
	ID              uuid.UUID       `json:"id"`
	TransactionType int             `json:"transaction_type"`
	TypeName        string          `json:"transaction_type_name"`
	FromAssetID     *uuid.UUID      `json:"from_asset_id"`
	ToAssetID       *uuid.UUID      `json:"to_asset_id"`
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	FromAccountID   *uuid.UUID      `json:"from_account_id"`
	ToAccountID     *uuid.UUID      `json:"to_account_id"`
	TransactionTime time.Time       `json:"transaction_time"`
	Notes           *string         `json:"notes"`
	Image           *string         `json:"image"`
	timestamps
}

func toTransactionResponse(t *transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		TransactionType: int(t.Flow.Kind()),
		TypeName:        t.Flow.Kind().String(),
		FromAssetID:     optional(t.Flow.Source()),
		ToAssetID:       optional(t.Flow.Destination()),
		Amount:          t.Amount,
		Fee:             t.Fee,
		FromAccountID:   optional(t.FromAccountID),
		ToAccountID:     optional(t.ToAccountID),
		TransactionTime: t.TransactionTime,
		Notes:           t.Notes,
		Image:           t.Image,
		timestamps:      timestamps{CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt},
	}
}

var errInvalidTransactionType = ledgerErrors.NewValidationError("transaction_type must be one of the listed transaction types")

// parseKind range-checks the raw id before narrowing it to a Kind.
func parseKind(raw int) (transaction.Kind, error) {
	if raw < int(transaction.KindIncome) || raw > int(transaction.KindInternalTransfer) {
		return 0, fmt.Errorf("%d: %w", raw, errInvalidTransactionType)
	}
	return transaction.Kind(raw), nil
}

func validateCreateRequest(req createTransactionRequest) (transaction.Kind, error) {
	ve := &ledgerErrors.ValidationErrors{}
	kind, err := parseKind(req.TransactionType)
	if err != nil {
		ve.Add(err)
	}
	if req.Amount == nil {
		ve.Add(ledgerErrors.NewValidationError("amount is required"))
	}
	if req.FromAssetID == nil && req.ToAssetID == nil {
		ve.Add(ledgerErrors.NewValidationError("from_asset_id or to_asset_id is required"))
	}
	return kind, ve.ErrOrNil()
}

func (h *LedgerHandler) GetTransactionTypes(w http.ResponseWriter, _ *http.Request) {
	h.success(w, http.StatusOK, "List of transaction types retrieved successfully.", h.transactionService.GetTransactionTypes())
}

func (h *LedgerHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req createTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind, err := validateCreateRequest(req)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to create transaction")
		return
	}

	in := transaction.NewTransaction{
		Kind:            kind,
		FromAssetID:     nullable(req.FromAssetID),
		ToAssetID:       nullable(req.ToAssetID),
		Amount:          *req.Amount,
		Fee:             req.Fee,
		FromAccountID:   nullable(req.FromAccountID),
		ToAccountID:     nullable(req.ToAccountID),
		TransactionTime: req.TransactionTime,
		Notes:           req.Notes,
		Image:           req.Image,
	}
	if !h.authorizeReferences(w, r, userID, in.FromAssetID, in.ToAssetID, in.FromAccountID, in.ToAccountID) {
		return
	}

	created, err := h.transactionService.CreateTransaction(r.Context(), in)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to create transaction")
		return
	}
	h.success(w, http.StatusCreated, "Transaction successfully created.", toTransactionResponse(created))
}

func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	t, ok := h.loadOwnedTransaction(w, r, userID)
	if !ok {
		return
	}
	h.success(w, http.StatusOK, "Transaction retrieved successfully.", toTransactionResponse(t))
}

func (h *LedgerHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req updateTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	current, ok := h.loadOwnedTransaction(w, r, userID)
	if !ok {
		return
	}

	patch := transaction.Patch{
		FromAssetID:     req.FromAssetID,
		ToAssetID:       req.ToAssetID,
		Amount:          req.Amount,
		Fee:             req.Fee,
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		TransactionTime: req.TransactionTime,
		Notes:           req.Notes,
		Image:           req.Image,
	}
	if req.TransactionType != nil {
		kind, err := parseKind(*req.TransactionType)
		if err != nil {
			h.handleServiceError(w, r, err, "Failed to update transaction")
			return
		}
		patch.Kind = &kind
	}
	if !h.authorizeReferences(w, r, userID, nullable(patch.FromAssetID), nullable(patch.ToAssetID),
		nullable(patch.FromAccountID), nullable(patch.ToAccountID)) {
		return
	}

	updated, err := h.transactionService.UpdateTransaction(r.Context(), current.ID, patch)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to update transaction")
		return
	}
	h.success(w, http.StatusOK, "Transaction successfully updated.", toTransactionResponse(updated))
}

// DeleteTransaction answers 204 for a transaction that no longer exists, so
// a retried delete succeeds.
func (h *LedgerHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}
	transactionID := pathUUID(r, "transactionID")

	t, err := h.transactionService.GetTransaction(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.handleServiceError(w, r, err, "Failed to delete transaction")
		return
	}
	owned, err := h.ownsTransaction(r.Context(), userID, t)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to delete transaction")
		return
	}
	if !owned {
		h.respondError(w, http.StatusNotFound, transaction.ErrTransactionNotFound.Error())
		return
	}

	if err := h.transactionService.DeleteTransaction(r.Context(), transactionID); err != nil {
		h.handleServiceError(w, r, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := pathUUID(r, "accountID")

	transactions, err := h.transactionService.ListByAccountID(r.Context(), accountID)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve transactions list")
		return
	}
	out := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		out = append(out, toTransactionResponse(&transactions[i]))
	}
	h.success(w, http.StatusOK, "List of transactions retrieved successfully.", out)
}

func (h *LedgerHandler) loadOwnedTransaction(w http.ResponseWriter, r *http.Request, userID string) (*transaction.Transaction, bool) {
	t, err := h.transactionService.GetTransaction(r.Context(), pathUUID(r, "transactionID"))
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve transaction")
		return nil, false
	}
	owned, err := h.ownsTransaction(r.Context(), userID, t)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve transaction")
		return nil, false
	}
	if !owned {
		h.respondError(w, http.StatusNotFound, transaction.ErrTransactionNotFound.Error())
		return nil, false
	}
	return t, true
}

func (h *LedgerHandler) ownsTransaction(ctx context.Context, userID string, t *transaction.Transaction) (bool, error) {
	return h.ownsAssets(ctx, userID, t.Flow.Source(), t.Flow.Destination())
}

// authorizeReferences answers 404 when any referenced asset or account
// belongs to someone else.
func (h *LedgerHandler) authorizeReferences(w http.ResponseWriter, r *http.Request, userID string, fromAsset, toAsset, fromAccount, toAccount uuid.NullUUID) bool {
	owned, err := h.ownsAssets(r.Context(), userID, fromAsset, toAsset)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to verify assets")
		return false
	}
	if !owned {
		h.respondError(w, http.StatusNotFound, asset.ErrAssetNotFound.Error())
		return false
	}
	owned, err = h.ownsAccounts(r.Context(), userID, fromAccount, toAccount)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to verify accounts")
		return false
	}
	if !owned {
		h.respondError(w, http.StatusNotFound, "Account not found")
		return false
	}
	return true
}
