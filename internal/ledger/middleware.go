package ledger

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
)

type pathParamKey string

func capitalizeFirstLetter(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(string(s[0])) + s[1:]
}

// pathUUID returns a path parameter parsed by ValidateLedgerPathParamsMiddleware.
func pathUUID(r *http.Request, param string) uuid.UUID {
	id, _ := r.Context().Value(pathParamKey(param)).(uuid.UUID)
	return id
}

func withPathUUID(ctx context.Context, param string, id uuid.UUID) context.Context {
	return context.WithValue(ctx, pathParamKey(param), id)
}

// ValidateLedgerPathParamsMiddleware parses the named path parameters as
// UUIDs. A malformed id cannot name an existing resource, so it answers 404.
func (h *LedgerHandler) ValidateLedgerPathParamsMiddleware(next http.Handler, params ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logger.FromContext(r.Context())
		for _, param := range params {
			paramValue := r.PathValue(param)
			if paramValue == "" {
				l.Debug().Str("param", param).Msg("Path parameter is empty")
				h.respondError(w, http.StatusBadRequest, capitalizeFirstLetter(fmt.Sprintf("%s is required", param)))
				return
			}

			parsedUUID, err := uuid.Parse(paramValue)
			if err != nil {
				l.Debug().Str("param", param).Str("value", paramValue).Msg("Path parameter is not a valid id")
				switch param {
				case "accountID":
					h.respondError(w, http.StatusNotFound, "Account not found")
				case "assetID":
					h.respondError(w, http.StatusNotFound, "Asset not found")
				case "transactionID":
					h.respondError(w, http.StatusNotFound, "Transaction not found")
				case "holdingID":
					h.respondError(w, http.StatusNotFound, "Holding not found")
				case "recurringID":
					h.respondError(w, http.StatusNotFound, "Recurring transaction not found")
				default:
					h.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", param))
				}
				return
			}
			r = r.WithContext(withPathUUID(r.Context(), param, parsedUUID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccountOwnership answers 404 unless the accountID path parameter
// names an account of the authenticated user. It must run after
// ValidateLedgerPathParamsMiddleware.
func (h *LedgerHandler) RequireAccountOwnership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := h.getUserIDReq(w, r)
		if userID == "" {
			return
		}
		owned, err := h.accountService.CheckAccountOwnership(r.Context(), pathUUID(r, "accountID"), userID)
		if err != nil {
			h.handleServiceError(w, r, err, "Failed to verify account")
			return
		}
		if !owned {
			h.respondError(w, http.StatusNotFound, "Account not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccountRoute wraps an account-scoped handler with id parsing and the
// ownership check. Extra params are parsed as well.
func (h *LedgerHandler) AccountRoute(fn http.HandlerFunc, params ...string) http.Handler {
	params = append([]string{"accountID"}, params...)
	return h.ValidateLedgerPathParamsMiddleware(h.RequireAccountOwnership(fn), params...)
}
