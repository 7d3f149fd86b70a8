package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sebuszqo/FinanceLedger/internal/auth"
	"github.com/sebuszqo/FinanceLedger/internal/config"
	database "github.com/sebuszqo/FinanceLedger/internal/db"
	"github.com/sebuszqo/FinanceLedger/internal/ledger"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/account"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/asset"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/holding"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/instrument"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/marketdata"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/rates"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/recurring"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/transaction"
	"github.com/sebuszqo/FinanceLedger/internal/logger"
	"golang.org/x/time/rate"
)

// instrumentMaxAge is how old the stock catalogue may get before startup
// triggers an import.
const instrumentMaxAge = 24 * time.Hour

type Response struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, details ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}
	if len(details) > 0 && len(details[0]) > 0 {
		payload["errors"] = details[0]
	}
	respondJSON(w, status, payload)
}

type Server struct {
	router        *http.ServeMux
	dbService     *database.DBService
	ledgerHandler *ledger.LedgerHandler
	jwtManager    auth.JWTManagerInterface
}

func NewServer(dbService *database.DBService, ledgerHandler *ledger.LedgerHandler, jwtManager auth.JWTManagerInterface) *Server {
	return &Server{
		dbService:     dbService,
		ledgerHandler: ledgerHandler,
		jwtManager:    jwtManager,
		router:        http.NewServeMux(),
	}
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusNotFound, Response{Message: "Path not found"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := s.dbService.Health(ctx)
	if health["status"] != "up" {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "database": health})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ready", "database": health})
}

func (s *Server) RegisterRoutes() {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("GET /api/ready", http.HandlerFunc(s.handleReady))

	// Protected routes (using JWT Access Token Middleware)
	s.ledgerHandler.RegisterRoutes(mainRouter, auth.JWTAccessTokenMiddleware(s.jwtManager))

	mainRouter.Handle("/", http.HandlerFunc(notFoundHandler))
	s.router = mainRouter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Missing configuration, update to start server")
	}
	logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbService, err := database.NewDBService(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not initialize database")
	}
	defer dbService.Close()

	if err := database.RunMigrations(dbService.DB); err != nil {
		log.Fatal().Err(err).Msg("Could not apply database migrations")
	}

	txManager := database.NewTxManager(dbService.DB)
	marketDataService := marketdata.NewFMPClient(cfg.MarketDataAPIKey)
	rateSource := rates.NewECBSource(cfg.RatesBaseURL, cfg.RatesQuoteCurrency, cfg.RatesCacheTTL)

	accountService := account.NewAccountService(account.NewAccountRepository(dbService.DB))
	assetService := asset.NewAssetService(asset.NewAssetRepository(dbService.DB))
	transactionService := transaction.NewTransactionService(txManager, transaction.NewTransactionRepository(dbService.DB), assetService)
	instrumentService := instrument.NewInstrumentService(txManager, instrument.NewInstrumentRepository(dbService.DB), marketDataService)
	holdingService := holding.NewHoldingService(txManager, holding.NewHoldingRepository(dbService.DB), instrumentService, rateSource)
	recurringService := recurring.NewRecurringService(txManager, recurring.NewRecurringRepository(dbService.DB), assetService, transactionService)

	ledgerHandler := ledger.NewLedgerHandler(
		accountService,
		assetService,
		transactionService,
		holdingService,
		instrumentService,
		recurringService,
		respondJSON,
		respondError,
	)
	server := NewServer(dbService, ledgerHandler, auth.NewJWTManager(cfg.JWTSecret))
	server.RegisterRoutes()

	importInstrumentsIfStale(ctx, instrumentService)

	instrumentCron, err := StartInstrumentScheduler(instrumentService, cfg.InstrumentImportSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Instrument scheduler didn't start, stopping the app ...")
	}
	defer instrumentCron.Stop()

	ratesCron, err := StartRatesScheduler(holdingService, rateSource, cfg.RatesRefreshSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Rates scheduler didn't start, stopping the app ...")
	}
	defer ratesCron.Stop()

	recurringCron, err := StartRecurringScheduler(recurringService, cfg.RecurringSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Recurring transactions scheduler didn't start, stopping the app ...")
	}
	defer recurringCron.Stop()

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	handler := requestLoggingMiddleware(rateLimitMiddleware(limiter)(server.router))

	log.Info().Str("addr", cfg.PprofAddr).Msg("Starting pprof...")
	go func() {
		if err := http.ListenAndServe(cfg.PprofAddr, nil); err != nil {
			log.Error().Err(err).Msg("pprof server stopped")
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("Server starting...")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
	log.Info().Msg("Server stopped")
}

func importInstrumentsIfStale(ctx context.Context, instrumentService instrument.Service) {
	needsUpdate, err := instrumentService.NeedsUpdate(ctx, instrumentMaxAge)
	if err != nil {
		log.Error().Err(err).Msg("Error checking if instrument update is needed")
		return
	}
	if !needsUpdate {
		log.Info().Msg("Instrument data is valid, skipping initial data import")
		return
	}

	log.Info().Msg("Instrument data is outdated or missing. Starting initial data import...")
	if err := instrumentService.ImportStocks(ctx); err != nil {
		// Not fatal: trades on unknown tickers fail until the next scheduled import.
		log.Error().Err(err).Msg("Initial instrument import failed")
		return
	}
	log.Info().Msg("Initial data import completed.")
}
