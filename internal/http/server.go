// Package http exposes the ledger as a JSON API.
//
// Requests pass through the request logger, tracing, security headers,
// suspicious-request detection and per-client rate limiting before they
// reach a handler. Report responses are cached per ledger revision.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"pocketledger/internal/cache"
	"pocketledger/internal/cloudsync"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
	"pocketledger/internal/middleware/ratelimit"
	"pocketledger/internal/middleware/security"
	"pocketledger/internal/middleware/trace"
	appsec "pocketledger/internal/security"
)

// SyncService is the cloud sync surface used by the API.
type SyncService interface {
	Provider() string
	SyncToCloud(ctx context.Context) (cloudsync.State, error)
	State(ctx context.Context) (cloudsync.State, error)
}

// PINService guards the app lock. It is optional.
type PINService interface {
	HasPIN(ctx context.Context) (bool, error)
	SetPIN(ctx context.Context, pin string) error
	CheckPIN(ctx context.Context, pin string) (bool, error)
	ClearPIN(ctx context.Context) error
}

// Config tunes the server. Zero values fall back to defaults.
type Config struct {
	Addr            string
	RateLimitRPM    int
	ReportCacheSize int
	ReportCacheTTL  time.Duration
	// Location is used to parse plain dates; defaults to time.Local.
	Location *time.Location
}

// Deps are the collaborators a Server needs. Ledger and Logger are
// required.
type Deps struct {
	Ledger    *ledger.Store
	Logger    *applog.Logger
	Sync      SyncService
	PINs      PINService
	Transform appsec.Transform
}

type appMetrics struct {
	started   time.Time
	mutations atomic.Int64
}

type Server struct {
	http.Server

	store     *ledger.Store
	sync      SyncService
	pins      PINService
	transform appsec.Transform
	loc       *time.Location

	logger      *applog.Logger
	mutationLog *applog.StructuredLogger

	reports      *cache.LRUCache[any]
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to release its background goroutines.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.ReportCacheSize <= 0 {
		cfg.ReportCacheSize = 128
	}
	if cfg.ReportCacheTTL <= 0 {
		cfg.ReportCacheTTL = 5 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if deps.Transform == nil {
		deps.Transform = appsec.Passthrough{}
	}
	logger := deps.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		store:            deps.Ledger,
		sync:             deps.Sync,
		pins:             deps.PINs,
		transform:        deps.Transform,
		loc:              cfg.Location,
		logger:           logger,
		mutationLog:      applog.NewStructuredLogger(deps.Logger),
		reports:          cache.NewLRUCache[any](cfg.ReportCacheSize, cfg.ReportCacheTTL),
		cacheManager:     cache.NewManager(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitRPM}),
		securityDetector: security.NewDetector(),
	}
	s.appMetrics.started = time.Now()
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	s.cacheManager.Register(s.reports)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	api := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})(mux)

	var handler http.Handler = api
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = applog.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/wallets", s.handleListWallets)
	mux.HandleFunc("POST /api/wallets", s.handleCreateWallet)
	mux.HandleFunc("GET /api/wallets/{id}", s.handleGetWallet)
	mux.HandleFunc("GET /api/balance", s.handleTotalBalance)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions/income", s.handleAddIncome)
	mux.HandleFunc("POST /api/transactions/expense", s.handleAddExpense)
	mux.HandleFunc("POST /api/transactions/transfer", s.handleAddTransfer)
	mux.HandleFunc("POST /api/transactions/undo", s.handleUndoDelete)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("PUT /api/budgets", s.handleSetBudget)
	mux.HandleFunc("GET /api/budgets/usage", s.handleBudgetUsage)
	mux.HandleFunc("DELETE /api/budgets/{category}", s.handleRemoveBudget)

	mux.HandleFunc("GET /api/liabilities", s.handleListLiabilities)
	mux.HandleFunc("POST /api/liabilities", s.handleAddLiability)
	mux.HandleFunc("PATCH /api/liabilities/{id}", s.handleUpdateLiability)
	mux.HandleFunc("DELETE /api/liabilities/{id}", s.handleDeleteLiability)

	mux.HandleFunc("GET /api/reports/{report}", s.handleReport)
	mux.HandleFunc("GET /api/presets", s.handlePresets)
	mux.HandleFunc("GET /api/reconcile", s.handleReconcile)

	mux.HandleFunc("GET /api/backup", s.handleExportBackup)
	mux.HandleFunc("POST /api/backup", s.handleImportBackup)
	mux.HandleFunc("GET /api/export/csv", s.handleExportCSV)
	mux.HandleFunc("POST /api/import/csv", s.handleImportCSV)
	mux.HandleFunc("GET /api/export/xlsx", s.handleExportXLSX)

	mux.HandleFunc("GET /api/sync", s.handleSyncState)
	mux.HandleFunc("POST /api/sync", s.handleSync)

	mux.HandleFunc("GET /api/pin", s.handlePINStatus)
	mux.HandleFunc("PUT /api/pin", s.handleSetPIN)
	mux.HandleFunc("POST /api/pin/verify", s.handleVerifyPIN)
	mux.HandleFunc("DELETE /api/pin", s.handleClearPIN)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// mutated records a successful ledger write.
func (s *Server) mutated(r *http.Request, op string, fields applog.LogFields) {
	s.appMetrics.mutations.Add(1)
	s.mutationLog.LogLedgerMutation(r.Context(), op, s.store.Revision(), fields)
}
