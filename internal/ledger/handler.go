package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/FinanceLedger/internal/auth"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/account"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	ledgerErrors "github.com/sebuszqo/FinanceLedger/internal/ledger/errors"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/holding"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/instrument"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/recurring"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
	"github.com/shopspring/decimal"
)

type LedgerHandler struct {
	accountService     account.Service
	assetService       asset.Service
	transactionService transaction.Service
	holdingService     holding.Service
	instrumentService  instrument.Service
	recurringService   recurring.Service
	respondJSON        func(w http.ResponseWriter, status int, payload interface{})
	respondError       func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewLedgerHandler(
	accountService account.Service,
	assetService asset.Service,
	transactionService transaction.Service,
	holdingService holding.Service,
	instrumentService instrument.Service,
	recurringService recurring.Service,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *LedgerHandler {
	return &LedgerHandler{
		accountService:     accountService,
		assetService:       assetService,
		transactionService: transactionService,
		holdingService:     holdingService,
		instrumentService:  instrumentService,
		recurringService:   recurringService,
		respondJSON:        respondJSON,
		respondError:       respondError,
	}
}

func (h *LedgerHandler) getUserIDReq(w http.ResponseWriter, r *http.Request) string {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return ""
	}
	return userID
}

func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *LedgerHandler) success(w http.ResponseWriter, status int, message string, data interface{}) {
	h.respondJSON(w, status, map[string]interface{}{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

// handleServiceError maps the error taxonomy onto HTTP: validation 400,
// not found 404, anything else 500 with a generic message.
func (h *LedgerHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var validationErrors *ledgerErrors.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		h.respondError(w, http.StatusBadRequest, "Validation failed", validationErrors.Messages())
	case ledgerErrors.IsValidationError(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case ledgerErrors.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		l := logger.FromContext(r.Context())
		l.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

type createAccountRequest struct {
	Name string `json:"name"`
}

func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	var req createAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.accountService.CreateAccount(r.Context(), userID, req.Name)
	if err != nil {
		if errors.Is(err, account.ErrAccountNameTaken) {
			h.respondError(w, http.StatusConflict, err.Error())
			return
		}
		h.handleServiceError(w, r, err, "Failed to create account")
		return
	}
	h.success(w, http.StatusCreated, "Account successfully created.", created)
}

func (h *LedgerHandler) GetAllAccounts(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}

	accounts, err := h.accountService.GetAllAccounts(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve accounts list")
		return
	}
	h.success(w, http.StatusOK, "List of accounts retrieved successfully.", accounts)
}

type createAssetRequest struct {
	AssetType      string           `json:"asset_type"`
	Name           string           `json:"name"`
	OpeningBalance *decimal.Decimal `json:"balance,omitempty"`
}

func (h *LedgerHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	accountID := pathUUID(r, "accountID")

	var req createAssetRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := asset.NewAsset{AccountID: accountID, AssetType: req.AssetType, Name: req.Name}
	if req.OpeningBalance != nil {
		in.OpeningBalance = *req.OpeningBalance
	}
	created, err := h.assetService.CreateAsset(r.Context(), in)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to create asset")
		return
	}
	h.success(w, http.StatusCreated, "Asset successfully created.", created)
}

func (h *LedgerHandler) GetAllAssets(w http.ResponseWriter, r *http.Request) {
	accountID := pathUUID(r, "accountID")

	assets, err := h.assetService.ListByAccountID(r.Context(), accountID)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve assets list")
		return
	}
	h.success(w, http.StatusOK, "List of assets retrieved successfully.", assets)
}

func (h *LedgerHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	userID := h.getUserIDReq(w, r)
	if userID == "" {
		return
	}
	assetID := pathUUID(r, "assetID")

	owned, err := h.ownsAssets(r.Context(), userID, uuid.NullUUID{UUID: assetID, Valid: true})
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve asset")
		return
	}
	if !owned {
		h.respondError(w, http.StatusNotFound, asset.ErrAssetNotFound.Error())
		return
	}

	found, err := h.assetService.GetAssetByID(r.Context(), assetID)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve asset")
		return
	}
	h.success(w, http.StatusOK, "Asset retrieved successfully.", found)
}

// ownsAssets reports whether every valid id names an asset of userID.
func (h *LedgerHandler) ownsAssets(ctx context.Context, userID string, ids ...uuid.NullUUID) (bool, error) {
	for _, id := range ids {
		if !id.Valid {
			continue
		}
		owned, err := h.assetService.CheckAssetOwnership(ctx, id.UUID, userID)
		if err != nil || !owned {
			return false, err
		}
	}
	return true, nil
}

func (h *LedgerHandler) ownsAccounts(ctx context.Context, userID string, ids ...uuid.NullUUID) (bool, error) {
	for _, id := range ids {
		if !id.Valid {
			continue
		}
		owned, err := h.accountService.CheckAccountOwnership(ctx, id.UUID, userID)
		if err != nil || !owned {
			return false, err
		}
	}
	return true, nil
}

func nullable(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func optional(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	return &id.UUID
}

type timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
