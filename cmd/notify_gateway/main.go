package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eduon/notify-gateway/internal/distribution_service/app"
	"github.com/eduon/notify-gateway/internal/distribution_service/provider"
	"github.com/eduon/notify-gateway/internal/distribution_service/repository"
	reportRepoPg "github.com/eduon/notify-gateway/internal/distribution_service/repository/postgres"
	"github.com/eduon/notify-gateway/internal/distribution_service/token"
	"github.com/eduon/notify-gateway/internal/platform/config"
	"github.com/eduon/notify-gateway/internal/platform/database"
	"github.com/eduon/notify-gateway/internal/platform/logger"
	"github.com/eduon/notify-gateway/internal/platform/messagebroker"
	"github.com/eduon/notify-gateway/internal/public_api_service/middleware"
	httptransport "github.com/eduon/notify-gateway/internal/public_api_service/transport/http"
	"github.com/eduon/notify-gateway/internal/ratelimit"
)

const serviceName = "notify_gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Notify gateway starting...", "port", cfg.ServerPort)

	// Optional dependencies: the gateway runs without Postgres (no report
	// persistence, retry disabled) and without NATS (no lifecycle events).
	var dbPool *pgxpool.Pool
	var reports repository.ReportRepository
	if cfg.PostgresDSN != "" {
		dbPool, err = database.NewDBPool(context.Background(), cfg.PostgresDSN)
		if err != nil {
			appLogger.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		reports = reportRepoPg.NewPgReportRepository(dbPool)
		appLogger.Info("Connected to PostgreSQL; report persistence enabled")
	} else {
		appLogger.Warn("APP_POSTGRES_DSN not set; reports are not persisted and retry is disabled")
	}

	var publisher app.Publisher
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = natsClient
		appLogger.Info("Connected to NATS; campaign events enabled")
	} else {
		appLogger.Warn("APP_NATS_URL not set; campaign lifecycle events are disabled")
	}

	providers, defaultProvider := provider.Build(appLogger, provider.Settings{
		Default:         cfg.SMSProvider,
		SolapiAPIKey:    cfg.SolapiAPIKey,
		SolapiAPISecret: cfg.SolapiAPISecret,
		SolapiSender:    cfg.SolapiSender,
		AligoAPIKey:     cfg.AligoAPIKey,
		AligoUserID:     cfg.AligoUserID,
		AligoSender:     cfg.AligoSender,
		MockFailRate:    cfg.MockFailRate,
	}, &http.Client{Timeout: 15 * time.Second})

	gateway, err := provider.NewGateway(appLogger, providers, defaultProvider)
	if err != nil {
		appLogger.Error("Failed to build provider gateway", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Provider gateway ready", "default_provider", defaultProvider)

	if cfg.TokenSalt == config.InsecureTokenSalt {
		appLogger.Warn("APP_TOKEN_SALT is unset; access tokens use the built-in development salt and are guessable")
	}
	tokens := token.NewGenerator(cfg.TokenSalt)

	engine := app.NewEngine(gateway, tokens, reports, publisher, appLogger, app.Options{
		LinkBaseURL:  cfg.LinkBaseURL,
		LinkResource: cfg.LinkResource,
		SendTimeout:  cfg.SendTimeout,
		Concurrency:  cfg.DispatchConcurrency,
	})

	limitStore := ratelimit.NewStore()
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case now := <-ticker.C:
				removed := limitStore.Sweep(now)
				appLogger.Debug("Rate limiter sweep complete", "removed", removed, "tracked", limitStore.Len())
			}
		}
	}()

	dispatchHandler := httptransport.NewDispatchHandler(engine, reports, tokens, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(httptransport.PrometheusMetricsMiddleware)
	r.Use(middleware.IdentityMiddleware(cfg.JWTAccessSecret, appLogger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(middleware.RateLimitMiddleware(limitStore, "default", ratelimit.DefaultConfig))

		v1.Group(func(dispatch chi.Router) {
			dispatch.Use(middleware.RateLimitMiddleware(limitStore, "dispatch", ratelimit.DispatchConfig))
			dispatchHandler.RegisterRoutes(dispatch)
		})

		v1.Group(func(verify chi.Router) {
			verify.Use(middleware.RateLimitMiddleware(limitStore, "verify", ratelimit.VerifyConfig))
			dispatchHandler.RegisterAccessRoutes(verify)
		})
	})

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ServerPort), Handler: r}
	appLogger.Info(fmt.Sprintf("Notify gateway listening on port %d", cfg.ServerPort))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed to serve", "error", err)
		}
	}()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
	<-quitChan
	appLogger.Info("Shutdown signal received, shutting down HTTP server...")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("HTTP server shutdown failed", "error", err)
	} else {
		appLogger.Info("HTTP server shut down gracefully.")
	}
	appLogger.Info("Notify gateway shut down.")
}
