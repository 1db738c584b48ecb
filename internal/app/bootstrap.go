package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"sourcehub/internal/auth"
	"sourcehub/internal/config"
	"sourcehub/internal/db"
	"sourcehub/internal/maintenance"
	"sourcehub/internal/observability"
	"sourcehub/internal/user"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Close   func() error
}

// Build wires the whole application: config, logging, sentry, database,
// migrations, services and routes.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	store := auth.NewRepository(database)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, cfg.TokenIssuer, cfg.TokenAudience)
	authService := auth.NewService(store, hasher, tokens, auth.ServiceConfig{
		Lockout: auth.LockoutPolicy{
			MaxAttempts:  cfg.LoginMaxAttempts,
			LockDuration: cfg.LoginLockDuration,
		},
		ResetTokenTTL: cfg.ResetTokenTTL,
	})

	if err := authService.EnsureAdmin(context.Background(), cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	authHandler := auth.NewHandler(authService, logger, cfg.Development())
	guard := auth.NewMiddleware(tokens, logger)
	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)

	userHandler := user.NewHandler(user.NewRepository(database), logger)
	cleanupHandler := maintenance.NewCleanupHandler(store, logger, cfg.CronSecret, cfg.CleanupBatchSize)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/forgot-password", authHandler.ForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", authHandler.ResetPassword)
	mux.Handle("POST /auth/refresh", guard.Require()(http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("POST /auth/logout", guard.Require()(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /auth/me", guard.Require()(http.HandlerFunc(authHandler.Me)))

	mux.Handle("GET /users", guard.Require(auth.RoleAdmin)(http.HandlerFunc(userHandler.List)))
	mux.Handle("PATCH /users/{id}/status", guard.Require(auth.RoleAdmin, auth.RoleManager)(http.HandlerFunc(userHandler.SetActive)))
	mux.Handle("PUT /users/me", guard.Require()(http.HandlerFunc(userHandler.UpdateProfile)))
	mux.Handle("GET /users/{id}", guard.Optional(http.HandlerFunc(userHandler.Get)))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
