package handler

import (
	"net/http"
	"time"
)

const version = "1.0.0"

type counter interface {
	Count() int
}

type subscriberCounter interface {
	Len() int
}

type HealthHandler struct {
	payments    counter
	subscribers subscriberCounter
	applePay    func() string
}

func NewHealthHandler(payments counter, subscribers subscriberCounter, applePayState func() string) *HealthHandler {
	return &HealthHandler{payments: payments, subscribers: subscribers, applePay: applePayState}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]any{
			"ledger":      h.payments.Count(),
			"subscribers": h.subscribers.Len(),
			"apple_pay":   h.applePay(),
		},
	})
}
