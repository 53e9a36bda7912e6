package main

import (
	"net/http"
	"time"

	"github.com/josh-kwaku/livepay/api"
	"github.com/josh-kwaku/livepay/internal/broadcast"
	"github.com/josh-kwaku/livepay/internal/config"
	"github.com/josh-kwaku/livepay/internal/handler"
	"github.com/josh-kwaku/livepay/internal/middleware"
	"github.com/josh-kwaku/livepay/internal/repository"
	"github.com/josh-kwaku/livepay/internal/service"
	"github.com/josh-kwaku/livepay/internal/service/payment"
)

const rateLimiterTTL = 10 * time.Minute

type application struct {
	cfg         *config.Config
	ledger      *repository.Ledger
	broadcaster *broadcast.Broadcaster
	payments    *payment.Service
	validator   *service.MerchantValidator
	idempotency *repository.IdempotencyRepository
	limiter     *middleware.RateLimiter
}

func newRateLimiter(cfg *config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimiterTTL)
}

func (app *application) routes() http.Handler {
	paymentHandler := handler.NewPaymentHandler(app.payments, app.cfg.LedgerDefaultLimit, app.cfg.LedgerMaxLimit)
	streamHandler := handler.NewStreamHandler(app.broadcaster)
	applePayHandler := handler.NewApplePayHandler(app.validator)
	healthHandler := handler.NewHealthHandler(app.ledger, app.broadcaster, func() string {
		return string(app.validator.State())
	})

	limited := app.limiter.Middleware
	idempotent := middleware.Idempotency(app.idempotency, app.cfg.IdempotencyTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /api/payments", limited(idempotent(http.HandlerFunc(paymentHandler.Create))))
	mux.HandleFunc("GET /api/payments", paymentHandler.List)
	mux.HandleFunc("GET /api/payments/stream", streamHandler.Stream)
	mux.Handle("POST /api/apple-pay/validate-session", limited(http.HandlerFunc(applePayHandler.ValidateSession)))

	mux.HandleFunc("GET /docs", handler.ServeDocs("/docs/openapi.yaml"))
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.OpenAPI))

	var h http.Handler = mux
	h = middleware.Recovery(h)
	h = middleware.Logging(h)
	h = middleware.Tracing(h)
	return h
}
