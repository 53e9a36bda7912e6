package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidAmount           = errors.New("amount out of range")
	ErrInvalidMethod           = errors.New("unsupported payment method")
	ErrApplePayDisabled        = errors.New("apple pay is disabled")
	ErrMerchantMisconfigured   = errors.New("merchant configuration incomplete")
	ErrMissingValidationURL    = errors.New("validation url is required")
	ErrInvalidValidationURL    = errors.New("validation url is not allowed")
	ErrSessionValidationFailed = errors.New("merchant session validation failed")
	ErrBroadcasterClosed       = errors.New("broadcaster closed")
)

// UpstreamError is a non-success answer from the payment network. Its status
// and body are relayed to the caller as received.
type UpstreamError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}
