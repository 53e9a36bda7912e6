package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/livepay/internal/domain"
)

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type validationResponse struct {
	OK     bool         `json:"ok"`
	Errors []FieldError `json:"errors"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// RespondSuccess writes {"ok":true,"<key>":data}.
func RespondSuccess(w http.ResponseWriter, status int, key string, data any) {
	RespondJSON(w, status, map[string]any{
		"ok": true,
		key:  data,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError) {
	RespondJSON(w, appErr.Status, errorResponse{
		OK:    false,
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondJSON(w, ErrValidationFailed.Status, validationResponse{
		OK:     false,
		Errors: fields,
	})
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidMethod):
		appErr = ErrInvalidMethod
	case errors.Is(err, domain.ErrApplePayDisabled):
		appErr = ErrApplePayDisabled
	case errors.Is(err, domain.ErrMerchantMisconfigured):
		appErr = ErrApplePayConfig
	case errors.Is(err, domain.ErrMissingValidationURL):
		appErr = ErrMissingValidation
	case errors.Is(err, domain.ErrInvalidValidationURL):
		appErr = ErrInvalidValidation
	case errors.Is(err, domain.ErrSessionValidationFailed):
		appErr = ErrSessionValidation
	case errors.Is(err, domain.ErrBroadcasterClosed):
		appErr = ErrStreamUnavailable
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr)
}
