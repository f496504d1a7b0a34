package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"payslip/internal/domain/accounts"
	"payslip/internal/domain/audit"
	"payslip/internal/domain/payroll"
	"payslip/internal/platform/config"
	"payslip/internal/platform/crypto"
	"payslip/internal/platform/jobs"
	"payslip/internal/platform/kv"
	"payslip/internal/platform/logging"
	"payslip/internal/platform/metrics"
	"payslip/internal/transport/http/api"
	accountshandler "payslip/internal/transport/http/handlers/accounts"
	payslipshandler "payslip/internal/transport/http/handlers/payslips"
	"payslip/internal/transport/http/middleware"
)

const (
	fallbackAdminEmail = "admin@localhost"
	limiterIdleTTL     = 10 * time.Minute
	shutdownTimeout    = 15 * time.Second
)

type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      kv.Store
	Accounts   *accounts.Service
	Archive    *payroll.Archive
	Metrics    *metrics.Collector
	Limiter    *middleware.RateLimiter
	KeyLimiter *middleware.RateLimiter
	Jobs       *jobs.Service
	DefaultKey string
	Router     http.Handler
}

// New wires the application graph. The caller owns the returned App and must
// Close it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := kv.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret = randomHex(32)
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Accounts: accounts.NewService(store, secret, accounts.WithSessionTTL(cfg.SessionTTL)),
		Archive:  payroll.NewArchive(store, sealer),
		Limiter:  middleware.NewRateLimiter(cfg.RateLimitPerMinute, middleware.IPKey),
		Jobs:     jobs.New(logger.Named("jobs")),
	}
	app.KeyLimiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, middleware.ValidatedAPIKey)
	if cfg.MetricsEnabled {
		app.Metrics = metrics.New()
	}

	adminEmail, adminPassword := cfg.AdminEmail, cfg.AdminPassword
	if strings.TrimSpace(adminEmail) == "" {
		adminEmail = fallbackAdminEmail
		adminPassword = randomHex(16)
		logger.Warn("ADMIN_EMAIL not set; using a local admin account with a random password", zap.String("email", adminEmail))
	}
	key, err := app.Accounts.EnsureDefaultKey(ctx, cfg.AdminName, adminEmail, adminPassword)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure default api key: %w", err)
	}
	app.DefaultKey = key
	app.Config.AdminEmail = adminEmail

	app.Router = app.routes()
	return app, nil
}

func (a *App) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureHeaders(a.Config.IsProduction()))
	router.Use(a.Metrics.Instrument)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Store.Ping(ctx); err != nil {
			a.Logger.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if a.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", a.Metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.BodyLimit(a.Config.MaxBodyBytes))
		r.Use(a.Limiter.Handler)

		secure := a.Config.IsProduction()
		idem := middleware.NewIdempotencyStore(a.Store)

		payslips := payslipshandler.NewHandler(a.Archive, a.Accounts, a.Accounts, idem, a.Metrics)
		payslips.KeyLimiter = a.KeyLimiter
		payslips.SecureCookies = secure
		payslips.RegisterRoutes(r)

		accts := accountshandler.NewHandler(a.Accounts, audit.New(a.Store), a.Archive, a.Metrics, a.DefaultKey, a.Config.AdminEmail)
		accts.KeyLimiter = a.KeyLimiter
		accts.SecureCookies = secure
		accts.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusNotFound, api.CodeNotFound, "route not found", middleware.GetRequestID(r.Context()))
	})
	return router
}

// StartJobs runs the background worker and registers the periodic jobs.
func (a *App) StartJobs(ctx context.Context) {
	a.Jobs.Start(ctx)
	a.Jobs.Schedule(ctx, jobs.JobSessionSweep, a.Config.SessionSweepInterval, func(ctx context.Context) (any, error) {
		removed, err := a.Accounts.SweepExpiredSessions(ctx)
		if err != nil {
			return nil, err
		}
		if removed > 0 {
			a.Logger.Info("expired sessions removed", zap.Int("count", removed))
		}
		return map[string]int{"removed": removed}, nil
	})
	a.Jobs.Schedule(ctx, jobs.JobRateLimitPrune, limiterIdleTTL, func(context.Context) (any, error) {
		removed := a.Limiter.Prune(limiterIdleTTL) + a.KeyLimiter.Prune(limiterIdleTTL)
		return map[string]int{"removed": removed}, nil
	})
}

func (a *App) Close() error {
	a.Jobs.Wait()
	return a.Store.Close()
}

func Run() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	app.StartJobs(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payslip server listening", zap.String("addr", cfg.Addr), zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	if err := app.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
	logger.Info("payslip server stopped")
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
