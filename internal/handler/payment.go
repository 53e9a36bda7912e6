package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/livepay/internal/domain"
	"github.com/josh-kwaku/livepay/internal/logging"
)

const maxPaymentBody = 64 << 10

type paymentService interface {
	Submit(ctx context.Context, req domain.NewPayment) (domain.Payment, error)
	Recent(ctx context.Context, limit int) []domain.Payment
	MaxAmount() decimal.Decimal
}

type PaymentHandler struct {
	payments     paymentService
	defaultLimit int
	maxLimit     int
}

func NewPaymentHandler(payments paymentService, defaultLimit, maxLimit int) *PaymentHandler {
	if maxLimit <= 0 {
		maxLimit = 200
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &PaymentHandler{payments: payments, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

type createPaymentRequest struct {
	FullName string           `json:"fullName" validate:"required,max=120"`
	Method   string           `json:"method" validate:"required,oneof='QR' 'Apple Pay' 'Bank Transfer'"`
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
}

func (r createPaymentRequest) Validate(maxAmount decimal.Decimal) []FieldError {
	errs := validateStruct(r)

	if r.Amount != nil {
		if r.Amount.LessThan(decimal.NewFromInt(1)) || r.Amount.GreaterThan(maxAmount) {
			errs = append(errs, FieldError{
				Field:   "amount",
				Message: fmt.Sprintf("must be between 1 and %s", maxAmount),
			})
		}
	}

	return errs
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createPaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPaymentBody)).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest)
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)

	if fields := req.Validate(h.payments.MaxAmount()); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.payments.Submit(r.Context(), domain.NewPayment{
		FullName: req.FullName,
		Method:   domain.PaymentMethod(req.Method),
		Amount:   *req.Amount,
	})
	if err != nil {
		log.Warn("payment submission failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, "payment", p.View())
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be a positive integer"}})
			return
		}
		limit = min(n, h.maxLimit)
	}

	records := h.payments.Recent(r.Context(), limit)
	views := make([]domain.PaymentView, len(records))
	for i, p := range records {
		views[i] = p.View()
	}

	RespondSuccess(w, http.StatusOK, "payments", views)
}
