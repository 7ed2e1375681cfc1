// Package main запускает HTTP-сервер сервиса счетов.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/invoicer/internal/account"
	"github.com/mmeshcher/invoicer/internal/appwrite"
	"github.com/mmeshcher/invoicer/internal/cache"
	"github.com/mmeshcher/invoicer/internal/config"
	"github.com/mmeshcher/invoicer/internal/handler"
	"github.com/mmeshcher/invoicer/internal/invoice"
	"github.com/mmeshcher/invoicer/internal/middleware"
	"github.com/mmeshcher/invoicer/internal/repository"
	"github.com/mmeshcher/invoicer/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	backend, err := cfg.Backend()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var (
		store    invoice.DocumentStore
		accounts handler.Accounts
		local    *account.Local
	)

	switch backend {
	case config.BackendHosted:
		client := appwrite.NewClient(appwrite.Config{
			Endpoint: cfg.BackendEndpoint,
			Project:  cfg.BackendProject,
			APIKey:   cfg.BackendAPIKey,
			Database: cfg.BackendDatabase,
		})
		store, accounts = client, client
		sugar.Infow("using hosted backend", "endpoint", cfg.BackendEndpoint)
	case config.BackendPostgres:
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer repo.Close()

		local = account.NewLocal(repo, cfg.SessionTTL, logger)
		store, accounts = repo, local
		sugar.Info("using postgres backend")
	}

	var statsCache service.StatsCache
	if cfg.RedisAddr != "" {
		c, err := cache.NewStatsCache(cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			sugar.Warnw("redis unavailable, stats cache disabled", "error", err.Error())
		} else {
			defer c.Close()
			statsCache = c
		}
	}

	invoices := invoice.NewRepository(store, cfg.InvoicesCollection)
	svc := service.NewService(invoices, statsCache, service.WithLocation(loc))

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret, accounts, logger)
	authMiddleware.SetSecure(cfg.CookieSecure)
	if cfg.SessionSecret == "" {
		sugar.Warn("SESSION_SECRET is not set, session cookies will not survive a restart")
	}

	h := handler.NewHandler(svc, accounts, logger, authMiddleware)
	r := h.SetupRouter(cfg.CORSOrigins)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Очистка истёкших сессий нужна только для собственной БД
	if local != nil {
		g.Go(func() error {
			local.StartSessionCleanup(ctx, cfg.SessionCleanupInterval)
			return nil
		})
	}

	g.Go(func() error {
		sugar.Infow("starting invoicer server", "addr", cfg.RunAddress, "backend", backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
