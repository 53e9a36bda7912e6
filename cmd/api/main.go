package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/josh-kwaku/livepay/internal/broadcast"
	"github.com/josh-kwaku/livepay/internal/config"
	"github.com/josh-kwaku/livepay/internal/logging"
	"github.com/josh-kwaku/livepay/internal/repository"
	"github.com/josh-kwaku/livepay/internal/service"
	"github.com/josh-kwaku/livepay/internal/service/payment"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("livepay-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger := repository.NewLedger(cfg.LedgerMaxLimit)
	broadcaster := broadcast.New(
		broadcast.WithKeepAlive(cfg.SSEKeepAliveInterval),
		broadcast.WithBufferSize(cfg.SSEBufferSize),
		broadcast.WithLogger(logger),
	)
	payments := payment.NewService(ledger, broadcaster, cfg.PaymentMaxAmount)
	validator := service.NewMerchantValidator(service.MerchantConfig{
		Enabled:         cfg.ApplePay.Enabled,
		MerchantID:      cfg.ApplePay.MerchantID,
		MerchantDomain:  cfg.ApplePay.MerchantDomain,
		DisplayName:     cfg.ApplePay.DisplayName,
		CertPath:        cfg.ApplePay.CertPath,
		Timeout:         cfg.ApplePay.Timeout,
		ValidationHosts: cfg.ApplePay.ValidationHosts,
	})
	if state := validator.State(); state == service.ValidatorMisconfigured {
		slog.Warn("apple pay enabled but merchant settings are incomplete", "state", state)
	}

	idempotencyRepo := repository.NewIdempotencyRepository()
	go idempotencyRepo.RunCleanup(ctx, time.Hour)

	limiter := newRateLimiter(cfg)
	go limiter.RunEviction(ctx)

	app := &application{
		cfg:         cfg,
		ledger:      ledger,
		broadcaster: broadcaster,
		payments:    payments,
		validator:   validator,
		idempotency: idempotencyRepo,
		limiter:     limiter,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.routes(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Streams never finish on their own; end them so Shutdown can drain.
	srv.RegisterOnShutdown(broadcaster.Close)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", addr, "apple_pay", validator.State())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	slog.Info("shutting down server", "subscribers", broadcaster.Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
