package ledger

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/recurring"
	"github.com/shopspring/decimal"
)

type createRecurringRequest struct {
	AssetID         *uuid.UUID       `json:"asset_id"`
	Amount          *decimal.Decimal `json:"amount"`
	Interval        string           `json:"interval"`
	TransactionType int              `json:"transaction_type"`
	NextExecution   *time.Time       `json:"next_execution"`
}

type updateRecurringRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	Interval      *string          `json:"interval"`
	NextExecution *time.Time       `json:"next_execution"`
	IsActive      *bool            `json:"is_active"`
}

func validateRecurringRequest(req createRecurringRequest) error {
	ve := &ledgerErrors.ValidationErrors{}
	if req.AssetID == nil {
		ve.Add(ledgerErrors.NewValidationError("asset_id is required"))
	}
	if req.Amount == nil {
		ve.Add(ledgerErrors.NewValidationError("amount is required"))
	}
	if _, err := parseKind(req.TransactionType); err != nil {
		ve.Add(err)
	}
	return ve.ErrOrNil()
}

func (h *LedgerHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateRecurringRequest(req); err != nil {
		h.handleServiceError(w, r, err, "Failed to create recurring transaction")
		return
	}

	kind, _ := parseKind(req.TransactionType)
	created, err := h.recurringService.CreateRecurring(r.Context(), recurring.NewEntry{
		AccountID:      pathUUID(r, "accountID"),
		AssetID:        *req.AssetID,
		Amount:         *req.Amount,
		Interval:       req.Interval,
		Kind:           kind,
		FirstExecution: req.NextExecution,
	})
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to create recurring transaction")
		return
	}
	h.success(w, http.StatusCreated, "Recurring transaction successfully created.", created)
}

func (h *LedgerHandler) GetAllRecurring(w http.ResponseWriter, r *http.Request) {
	entries, err := h.recurringService.ListRecurring(r.Context(), pathUUID(r, "accountID"))
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve recurring transactions")
		return
	}
	h.success(w, http.StatusOK, "List of recurring transactions retrieved successfully.", entries)
}

func (h *LedgerHandler) GetRecurring(w http.ResponseWriter, r *http.Request) {
	entry, err := h.recurringService.GetRecurring(r.Context(), pathUUID(r, "accountID"), pathUUID(r, "recurringID"))
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve recurring transaction")
		return
	}
	h.success(w, http.StatusOK, "Recurring transaction retrieved successfully.", entry)
}

func (h *LedgerHandler) UpdateRecurring(w http.ResponseWriter, r *http.Request) {
	var req updateRecurringRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := recurring.Patch{
		Amount:        req.Amount,
		Interval:      req.Interval,
		NextExecution: req.NextExecution,
		IsActive:      req.IsActive,
	}
	updated, err := h.recurringService.UpdateRecurring(r.Context(), pathUUID(r, "accountID"), pathUUID(r, "recurringID"), patch)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to update recurring transaction")
		return
	}
	h.success(w, http.StatusOK, "Recurring transaction successfully updated.", updated)
}

func (h *LedgerHandler) DeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := h.recurringService.DeleteRecurring(r.Context(), pathUUID(r, "accountID"), pathUUID(r, "recurringID")); err != nil {
		h.handleServiceError(w, r, err, "Failed to delete recurring transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
