package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest    = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed  = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound  = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError     = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
	ErrRateLimited       = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down"}
	ErrStreamUnavailable = &AppError{http.StatusServiceUnavailable, "STREAM_UNAVAILABLE", "Live updates are shutting down"}

	ErrInvalidAmount     = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount is out of range"}
	ErrInvalidMethod     = &AppError{http.StatusBadRequest, "INVALID_METHOD", "Unsupported payment method"}
	ErrApplePayDisabled  = &AppError{http.StatusNotImplemented, "APPLE_PAY_DISABLED", "Apple Pay is not enabled"}
	ErrApplePayConfig    = &AppError{http.StatusInternalServerError, "APPLE_PAY_MISCONFIGURED", "Apple Pay is not configured"}
	ErrMissingValidation = &AppError{http.StatusBadRequest, "MISSING_VALIDATION_URL", "validationURL is required"}
	ErrInvalidValidation = &AppError{http.StatusBadRequest, "INVALID_VALIDATION_URL", "validationURL is not allowed"}
	ErrSessionValidation = &AppError{http.StatusInternalServerError, "MERCHANT_VALIDATION_FAILED", "Merchant validation failed"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is empty"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInProgress = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "A request with this idempotency key is still in progress"}
)
