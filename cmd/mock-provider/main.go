package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/josh-kwaku/livepay/internal/logging"
)

type config struct {
	Addr     string `env:"MOCK_PROVIDER_ADDR" envDefault:":8443"`
	CertFile string `env:"MOCK_PROVIDER_TLS_CERT"`
	KeyFile  string `env:"MOCK_PROVIDER_TLS_KEY"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	// FailRate makes the given fraction of sessions fail with a 500.
	FailRate float64 `env:"MOCK_PROVIDER_FAIL_RATE" envDefault:"0"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	serverCert, err := loadOrGenerateCert(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		slog.Error("failed to prepare server certificate", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newProvider(cfg.FailRate).routes(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{serverCert},
			ClientAuth:   tls.RequireAnyClientCert,
			MinVersion:   tls.VersionTLS12,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock provider started", "addr", cfg.Addr)
		if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("mock provider forced to shutdown", "error", err)
	}
}
