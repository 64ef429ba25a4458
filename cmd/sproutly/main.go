package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sproutly/sproutly/internal/app"
	"github.com/sproutly/sproutly/internal/assignment"
	"github.com/sproutly/sproutly/internal/catalog"
	"github.com/sproutly/sproutly/internal/gatekeeper"
	"github.com/sproutly/sproutly/internal/observability"
	"github.com/sproutly/sproutly/internal/permissions"
	"github.com/sproutly/sproutly/internal/platform/cache"
	"github.com/sproutly/sproutly/internal/platform/db"
	"github.com/sproutly/sproutly/internal/resolver"
	"github.com/sproutly/sproutly/internal/roles"
	"github.com/sproutly/sproutly/internal/snapshot"
	"github.com/sproutly/sproutly/internal/tenant"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	tenantRegistry := tenant.NewRegistry(dbpool)
	tenantResolver := tenant.NewResolver(tenantRegistry, cfg.TenantCacheTTL)

	catalogRepo := catalog.NewRepository(dbpool)
	assignmentRepo := assignment.NewRepository(dbpool)
	assignmentService := assignment.NewService(assignmentRepo)

	snapshotStore := snapshot.NewStore(catalogRepo, snapshot.Options{
		TTL:        cfg.SnapshotTTL,
		StaleGrace: cfg.SnapshotStaleGrace,
		Redis:      redisClient,
		Logger:     logger,
		Metrics:    snapshot.NewMetrics(metrics.Registerer()),
	})
	go func() {
		if err := snapshotStore.Listen(ctx); err != nil && err != context.Canceled {
			logger.Warn("snapshot invalidation listener", slog.Any("error", err))
		}
	}()

	permResolver := resolver.New(snapshotStore, catalogRepo, assignmentRepo, logger)

	verifier := gatekeeper.NewVerifier(cfg.GatewaySecret, cfg.AdminRoles)
	tokens := gatekeeper.NewTokenStore(dbpool)

	permissionsHandler := permissions.NewHandler(logger, permResolver, catalogRepo, assignmentService, snapshotStore)
	rolesHandler := roles.NewHandler(logger, roles.NewService(roles.NewRepository(dbpool)), assignmentService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		TenantResolver:     tenantResolver,
		IdentityVerifier:   verifier,
		ServiceTokens:      tokens,
		PermissionsHandler: permissionsHandler,
		RolesHandler:       rolesHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
