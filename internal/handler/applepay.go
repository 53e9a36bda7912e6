package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/livepay/internal/domain"
	"github.com/josh-kwaku/livepay/internal/logging"
)

const maxValidateBody = 16 << 10

type sessionValidator interface {
	ValidateSession(ctx context.Context, validationURL string) ([]byte, error)
}

type ApplePayHandler struct {
	validator sessionValidator
}

func NewApplePayHandler(v sessionValidator) *ApplePayHandler {
	return &ApplePayHandler{validator: v}
}

type validateSessionRequest struct {
	ValidationURL string `json:"validationURL"`
}

func (h *ApplePayHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req validateSessionRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxValidateBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		RespondAppError(w, ErrInvalidRequest)
		return
	}

	session, err := h.validator.ValidateSession(r.Context(), req.ValidationURL)
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) {
			log.Warn("merchant validation rejected upstream", "status", upErr.StatusCode)
			relayUpstream(w, upErr, log)
			return
		}
		if errors.Is(err, domain.ErrSessionValidationFailed) || errors.Is(err, domain.ErrMerchantMisconfigured) {
			log.Error("merchant validation failed", "error", err)
		}
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(session); err != nil {
		log.Error("failed to write merchant session", "error", err)
	}
}

func relayUpstream(w http.ResponseWriter, upErr *domain.UpstreamError, log *slog.Logger) {
	contentType := upErr.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(upErr.StatusCode)
	if _, err := w.Write(upErr.Body); err != nil {
		log.Error("failed to relay upstream response", "error", err, "status", upErr.StatusCode)
	}
}
