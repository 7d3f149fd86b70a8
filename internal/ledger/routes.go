package ledger

import "net/http"

// RegisterRoutes mounts the ledger API on mux. protect authenticates the
// request and must put the user id into the context.
func (h *LedgerHandler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	// ACCOUNTS
	mux.Handle("POST /api/protected/accounts", protect(http.HandlerFunc(h.CreateAccount)))
	mux.Handle("GET /api/protected/accounts", protect(http.HandlerFunc(h.GetAllAccounts)))

	// ASSETS
	mux.Handle("POST /api/protected/accounts/{accountID}/assets", protect(h.AccountRoute(h.CreateAsset)))
	mux.Handle("GET /api/protected/accounts/{accountID}/assets", protect(h.AccountRoute(h.GetAllAssets)))
	mux.Handle("GET /api/protected/assets/{assetID}",
		protect(h.ValidateLedgerPathParamsMiddleware(http.HandlerFunc(h.GetAsset), "assetID")))

	// TRANSACTIONS
	mux.Handle("GET /api/protected/transaction_types", protect(http.HandlerFunc(h.GetTransactionTypes)))
	mux.Handle("POST /api/protected/transactions", protect(http.HandlerFunc(h.CreateTransaction)))
	mux.Handle("GET /api/protected/transactions/{transactionID}",
		protect(h.ValidateLedgerPathParamsMiddleware(http.HandlerFunc(h.GetTransaction), "transactionID")))
	mux.Handle("PATCH /api/protected/transactions/{transactionID}",
		protect(h.ValidateLedgerPathParamsMiddleware(http.HandlerFunc(h.UpdateTransaction), "transactionID")))
	mux.Handle("DELETE /api/protected/transactions/{transactionID}",
		protect(h.ValidateLedgerPathParamsMiddleware(http.HandlerFunc(h.DeleteTransaction), "transactionID")))
	mux.Handle("GET /api/protected/accounts/{accountID}/transactions", protect(h.AccountRoute(h.GetAccountTransactions)))

	// HOLDINGS
	mux.Handle("GET /api/protected/accounts/{accountID}/holdings/stocks", protect(h.AccountRoute(h.GetStockHoldings)))
	mux.Handle("POST /api/protected/accounts/{accountID}/holdings/stocks/trades", protect(h.AccountRoute(h.RecordStockTrade)))
	mux.Handle("PATCH /api/protected/accounts/{accountID}/holdings/stocks/{holdingID}",
		protect(h.AccountRoute(h.UpdateStockHolding, "holdingID")))
	mux.Handle("DELETE /api/protected/accounts/{accountID}/holdings/stocks/{holdingID}",
		protect(h.AccountRoute(h.DeleteStockHolding, "holdingID")))

	mux.Handle("GET /api/protected/accounts/{accountID}/holdings/currencies", protect(h.AccountRoute(h.GetCurrencyHoldings)))
	mux.Handle("POST /api/protected/accounts/{accountID}/holdings/currencies/trades", protect(h.AccountRoute(h.RecordCurrencyTrade)))
	mux.Handle("PATCH /api/protected/accounts/{accountID}/holdings/currencies/{holdingID}",
		protect(h.AccountRoute(h.UpdateCurrencyHolding, "holdingID")))
	mux.Handle("DELETE /api/protected/accounts/{accountID}/holdings/currencies/{holdingID}",
		protect(h.AccountRoute(h.DeleteCurrencyHolding, "holdingID")))

	// RECURRING TRANSACTIONS
	mux.Handle("POST /api/protected/accounts/{accountID}/recurring_transactions", protect(h.AccountRoute(h.CreateRecurring)))
	mux.Handle("GET /api/protected/accounts/{accountID}/recurring_transactions", protect(h.AccountRoute(h.GetAllRecurring)))
	mux.Handle("GET /api/protected/accounts/{accountID}/recurring_transactions/{recurringID}",
		protect(h.AccountRoute(h.GetRecurring, "recurringID")))
	mux.Handle("PATCH /api/protected/accounts/{accountID}/recurring_transactions/{recurringID}",
		protect(h.AccountRoute(h.UpdateRecurring, "recurringID")))
	mux.Handle("DELETE /api/protected/accounts/{accountID}/recurring_transactions/{recurringID}",
		protect(h.AccountRoute(h.DeleteRecurring, "recurringID")))

	// INSTRUMENTS
	mux.Handle("POST /api/protected/instruments/stocks", protect(http.HandlerFunc(h.UpsertStock)))
	mux.Handle("GET /api/protected/instruments/stocks/search", protect(http.HandlerFunc(h.SearchStocks)))
}
