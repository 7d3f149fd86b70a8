package ledger

import (
	"net/http"

	"github.com/sebuszqo/FinanceLedger/internal/ledger/holding"
	"github.com/shopspring/decimal"
)

type tradeRequest struct {
	Ticker       string           `json:"ticker"`
	CurrencyCode string           `json:"currency_code"`
	Country      string           `json:"country"`
	Quantity     *decimal.Decimal `json:"quantity"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
}

type holdingPatchRequest struct {
	Quantity    *decimal.Decimal `json:"quantity"`
	AverageCost *decimal.Decimal `json:"average_cost"`
}

func (h *LedgerHandler) decodeTrade(w http.ResponseWriter, r *http.Request) (tradeRequest, bool) {
	var req tradeRequest
	if !h.decode(w, r, &req) {
		return req, false
	}
	if req.Quantity == nil || req.UnitCost == nil {
		h.respondError(w, http.StatusBadRequest, "Quantity and unit cost are required")
		return req, false
	}
	return req, true
}

func (h *LedgerHandler) RecordStockTrade(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTrade(w, r)
	if !ok {
		return
	}

	key := holding.StockKey{Ticker: req.Ticker, Country: req.Country}
	result, err := h.holdingService.RecordStockTrade(r.Context(), pathUUID(r, "accountID"), key, *req.Quantity, *req.UnitCost)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to record stock trade")
		return
	}
	h.success(w, http.StatusOK, "Stock trade recorded successfully.", result)
}

func (h *LedgerHandler) RecordCurrencyTrade(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTrade(w, r)
	if !ok {
		return
	}

	key := holding.CurrencyKey{Code: req.CurrencyCode, Country: req.Country}
	result, err := h.holdingService.RecordCurrencyTrade(r.Context(), pathUUID(r, "accountID"), key, *req.Quantity, *req.UnitCost)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to record currency trade")
		return
	}
	h.success(w, http.StatusOK, "Currency trade recorded successfully.", result)
}

func (h *LedgerHandler) decodeHoldingPatch(w http.ResponseWriter, r *http.Request) (holding.HoldingPatch, bool) {
	var req holdingPatchRequest
	if !h.decode(w, r, &req) {
		return holding.HoldingPatch{}, false
	}
	return holding.HoldingPatch{Quantity: req.Quantity, AverageCost: req.AverageCost}, true
}

func (h *LedgerHandler) UpdateStockHolding(w http.ResponseWriter, r *http.Request) {
	patch, ok := h.decodeHoldingPatch(w, r)
	if !ok {
		return
	}
	result, err := h.holdingService.UpdateStockHolding(r.Context(), pathUUID(r, "accountID"), pathUUID(r, "holdingID"), patch)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to update stock holding")
		return
	}
	h.success(w, http.StatusOK, "Stock holding successfully updated.", result)
}

func (h *LedgerHandler) UpdateCurrencyHolding(w http.ResponseWriter, r *http.Request) {
	patch, ok := h.decodeHoldingPatch(w, r)
	if !ok {
		return
	}
	result, err := h.holdingService.UpdateCurrencyHolding(r.Context(), pathUUID(r, "accountID"), pathUUID(r, "holdingID"), patch)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to update currency holding")
		return
	}
	h.success(w, http.StatusOK, "Currency holding successfully updated.", result)
}

func (h *LedgerHandler) DeleteStockHolding(w http.ResponseWriter, r *http.Request) {
	if err := h.holdingService.DeleteStockHolding(r.Context(), pathUUID(r, "accountID"), pathUUID(r, "holdingID")); err != nil {
		h.handleServiceError(w, r, err, "Failed to delete stock holding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) DeleteCurrencyHolding(w http.ResponseWriter, r *http.Request) {
	if err := h.holdingService.DeleteCurrencyHolding(r.Context(), pathUUID(r, "accountID"), pathUUID(r, "holdingID")); err != nil {
		h.handleServiceError(w, r, err, "Failed to delete currency holding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) GetStockHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.holdingService.ListStockHoldings(r.Context(), pathUUID(r, "accountID"))
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve stock holdings")
		return
	}
	h.success(w, http.StatusOK, "List of stock holdings retrieved successfully.", holdings)
}

func (h *LedgerHandler) GetCurrencyHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.holdingService.ListCurrencyHoldings(r.Context(), pathUUID(r, "accountID"))
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to retrieve currency holdings")
		return
	}
	h.success(w, http.StatusOK, "List of currency holdings retrieved successfully.", holdings)
}
