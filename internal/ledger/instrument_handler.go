package ledger

import (
	"net/http"
	"strconv"

	"github.com/sebuszqo/FinanceLedger/internal/ledger/instrument"
)

// upsertStockRequest has no price: catalogue prices are shared by every user
// and only the market data import sets them.
type upsertStockRequest struct {
	Ticker   string `json:"ticker"`
	Country  string `json:"country"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

func (h *LedgerHandler) UpsertStock(w http.ResponseWriter, r *http.Request) {
	var req upsertStockRequest
	if !h.decode(w, r, &req) {
		return
	}

	stock, err := h.instrumentService.UpsertStock(r.Context(), instrument.NewStock{
		Ticker:   req.Ticker,
		Country:  req.Country,
		Name:     req.Name,
		Exchange: req.Exchange,
		Currency: req.Currency,
	})
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to save stock")
		return
	}
	h.success(w, http.StatusOK, "Stock saved successfully.", stock)
}

func (h *LedgerHandler) SearchStocks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		h.respondError(w, http.StatusBadRequest, "Query parameter 'query' is required")
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	stocks, err := h.instrumentService.SearchStocks(r.Context(), query, limit)
	if err != nil {
		h.handleServiceError(w, r, err, "Error searching instruments")
		return
	}
	h.success(w, http.StatusOK, "List of instruments retrieved successfully.", stocks)
}
