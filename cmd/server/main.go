// Server is the identity-sync HTTP API: bearer-token verification and user sync behind gin.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"identity-sync/internal/config"
	"identity-sync/internal/db"
	"identity-sync/internal/db/migrate"
	healthhandler "identity-sync/internal/health/handler"
	"identity-sync/internal/identity/userinfo"
	"identity-sync/internal/logging"
	"identity-sync/internal/security"
	"identity-sync/internal/server"
	"identity-sync/internal/telemetry"
	telemetryotel "identity-sync/internal/telemetry/otel"
	"identity-sync/internal/telemetry/producer"
	"identity-sync/internal/user/repository"
	"identity-sync/internal/user/service"
)

const (
	serviceName     = "identity-sync"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.IsProduction())
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		logger.Error("telemetry", "error", err)
		os.Exit(1)
	}
	providers.SetGlobal()
	instruments, err := telemetryotel.NewInstruments(providers.MeterProvider)
	if err != nil {
		logger.Error("telemetry instruments", "error", err)
		os.Exit(1)
	}

	var events telemetry.EventEmitter
	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.EventsKafkaTopic)
	if kafkaProducer != nil {
		events = kafkaProducer
		logger.Info("identity events go to kafka", "topic", cfg.EventsKafkaTopic)
	} else {
		events = telemetryotel.NewEventEmitter(providers.LoggerProvider)
	}

	var (
		users  repository.Repository
		pinger healthhandler.Pinger
	)
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil {
				logger.Error("migrate", "error", err)
				os.Exit(1)
			}
		}
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database", "error", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		users = repository.NewPostgresRepository(sqlDB)
		pinger = sqlDB
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory user store")
		users = repository.NewMemoryRepository()
	}

	keys := security.NewKeyCache(
		security.NewJWKSFetcher(cfg.JWKSURL(), &http.Client{Timeout: 10 * time.Second}),
		security.KeyCacheOptions{
			MinRefreshInterval: cfg.MinRefreshInterval(),
			RequestsPerMinute:  cfg.JWKSRequestsPerMinute,
			Logger:             logger,
		},
	)
	verifier := security.NewVerifier(keys, cfg.IssuerURL(), cfg.Auth0Audience, security.WithClockSkew(cfg.ClockSkew()))
	profiles := userinfo.NewClient(cfg.UserInfoURL(), cfg.UserInfoTimeoutDuration())

	syncSvc := service.NewSyncService(users, profiles,
		service.WithEvents(events),
		service.WithInstruments(instruments),
		service.WithTracer(telemetryotel.Tracer()),
		service.WithLogger(logger),
	)

	deps := server.Deps{
		Verifier:     verifier,
		Sync:         syncSvc,
		Users:        service.NewUserService(users, events),
		HealthPinger: pinger,
		Events:       events,
		Instruments:  instruments,
		Logger:       logger,
		FrontendURL:  cfg.FrontendURL,
		StaticDir:    cfg.StaticDir,
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "issuer", cfg.IssuerURL(), "audience", cfg.Auth0Audience)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down http server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	// Let in-flight async emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := kafkaProducer.Close(); err != nil {
		logger.Warn("kafka producer close", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}
	logger.Info("http server stopped")
}
