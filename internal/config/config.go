package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	PaymentMaxAmount   int64 `env:"PAYMENT_MAX_AMOUNT" envDefault:"5000"`
	LedgerMaxLimit     int   `env:"LEDGER_MAX_LIMIT" envDefault:"200"`
	LedgerDefaultLimit int   `env:"LEDGER_DEFAULT_LIMIT" envDefault:"50"`

	SSEKeepAliveInterval time.Duration `env:"SSE_KEEPALIVE_INTERVAL" envDefault:"25s"`
	SSEBufferSize        int           `env:"SSE_BUFFER_SIZE" envDefault:"64"`

	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	ApplePay ApplePayConfig `envPrefix:"APPLE_PAY_"`
}

type ApplePayConfig struct {
	Enabled         bool          `env:"ENABLED" envDefault:"false"`
	MerchantID      string        `env:"MERCHANT_ID"`
	MerchantDomain  string        `env:"MERCHANT_DOMAIN"`
	DisplayName     string        `env:"DISPLAY_NAME"`
	CertPath        string        `env:"CERT_PATH"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"10s"`
	ValidationHosts []string      `env:"VALIDATION_HOSTS" envDefault:"apple.com" envSeparator:","`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.LedgerMaxLimit <= 0 {
		return nil, fmt.Errorf("config.Load: LEDGER_MAX_LIMIT must be positive, got %d", cfg.LedgerMaxLimit)
	}
	if cfg.SSEBufferSize <= 0 {
		return nil, fmt.Errorf("config.Load: SSE_BUFFER_SIZE must be positive, got %d", cfg.SSEBufferSize)
	}
	if cfg.SSEKeepAliveInterval <= 0 {
		return nil, fmt.Errorf("config.Load: SSE_KEEPALIVE_INTERVAL must be positive, got %s", cfg.SSEKeepAliveInterval)
	}
	if cfg.RateLimitRPS <= 0 {
		return nil, fmt.Errorf("config.Load: RATE_LIMIT_RPS must be positive, got %g", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("config.Load: RATE_LIMIT_BURST must be positive, got %d", cfg.RateLimitBurst)
	}
	return &cfg, nil
}
