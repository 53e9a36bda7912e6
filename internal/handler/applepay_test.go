package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/josh-kwaku/livepay/internal/domain"
	"github.com/josh-kwaku/livepay/internal/logging"
)

type mockValidator struct {
	session []byte
	err     error
	gotURL  string
	calls   int
}

func (m *mockValidator) ValidateSession(_ context.Context, validationURL string) ([]byte, error) {
	m.calls++
	m.gotURL = validationURL
	return m.session, m.err
}

func TestValidateSessionHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		session    []byte
		err        error
		wantStatus int
		wantBody   string
		wantCode   string
		wantCalled bool
		wantCT     string
	}{
		{
			name:       "success returns session verbatim",
			body:       `{"validationURL":"https://apple-pay-gateway.apple.com/paymentservices/startSession"}`,
			session:    []byte(`{"epochTimestamp":1700000000000,"merchantSessionIdentifier":"SSH1"}`),
			wantStatus: http.StatusOK,
			wantBody:   `{"epochTimestamp":1700000000000,"merchantSessionIdentifier":"SSH1"}`,
			wantCalled: true,
			wantCT:     "application/json",
		},
		{
			name:       "malformed body",
			body:       `{"validationURL":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "empty body reaches validator",
			body:       ``,
			err:        fmt.Errorf("ValidateSession: %w", domain.ErrMissingValidationURL),
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_VALIDATION_URL",
			wantCalled: true,
		},
		{
			name:       "disabled",
			body:       `{"validationURL":"https://apple-pay-gateway.apple.com/x"}`,
			err:        fmt.Errorf("ValidateSession: %w", domain.ErrApplePayDisabled),
			wantStatus: http.StatusNotImplemented,
			wantCode:   "APPLE_PAY_DISABLED",
			wantCalled: true,
		},
		{
			name:       "misconfigured",
			body:       `{"validationURL":"https://apple-pay-gateway.apple.com/x"}`,
			err:        fmt.Errorf("ValidateSession: %w", domain.ErrMerchantMisconfigured),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "APPLE_PAY_MISCONFIGURED",
			wantCalled: true,
		},
		{
			name:       "url not allowed",
			body:       `{"validationURL":"https://attacker.example/x"}`,
			err:        fmt.Errorf("ValidateSession: %w", domain.ErrInvalidValidationURL),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_VALIDATION_URL",
			wantCalled: true,
		},
		{
			name:       "upstream rejection is relayed",
			body:       `{"validationURL":"https://apple-pay-gateway.apple.com/x"}`,
			err:        fmt.Errorf("ValidateSession: %w", &domain.UpstreamError{StatusCode: http.StatusForbidden, ContentType: "application/json", Body: []byte(`{"statusCode":"403"}`)}),
			wantStatus: http.StatusForbidden,
			wantBody:   `{"statusCode":"403"}`,
			wantCalled: true,
			wantCT:     "application/json",
		},
		{
			name:       "exchange failure hides the cause",
			body:       `{"validationURL":"https://apple-pay-gateway.apple.com/x"}`,
			err:        fmt.Errorf("ValidateSession: send: %w: %w", domain.ErrSessionValidationFailed, errors.New("dial tcp 17.0.0.1:443: i/o timeout")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "MERCHANT_VALIDATION_FAILED",
			wantCalled: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := &mockValidator{session: tc.session, err: tc.err}
			h := NewApplePayHandler(v)

			req := httptest.NewRequest(http.MethodPost, "/api/apple-pay/validate-session", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ValidateSession(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCalled, v.calls == 1)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, rec.Body.String())
			}
			if tc.wantCT != "" {
				assert.Equal(t, tc.wantCT, rec.Header().Get("Content-Type"))
			}
			if tc.wantCode != "" {
				assert.JSONEq(t, `{"ok":false,"code":"`+tc.wantCode+`","error":"`+mustAppErrorMessage(tc.wantCode)+`"}`, rec.Body.String())
				assert.NotContains(t, rec.Body.String(), "i/o timeout")
			}
		})
	}
}

func mustAppErrorMessage(code string) string {
	for _, e := range []*AppError{
		ErrInvalidRequest, ErrMissingValidation, ErrApplePayDisabled,
		ErrApplePayConfig, ErrInvalidValidation, ErrSessionValidation,
	} {
		if e.Code == code {
			return e.Message
		}
	}
	panic("unknown code " + code)
}

func TestValidateSessionHandlerPassesURL(t *testing.T) {
	v := &mockValidator{session: []byte(`{}`)}
	h := NewApplePayHandler(v)

	req := httptest.NewRequest(http.MethodPost, "/api/apple-pay/validate-session",
		strings.NewReader(`{"validationURL":"https://apple-pay-gateway.apple.com/paymentservices/startSession"}`))
	h.ValidateSession(httptest.NewRecorder(), req)

	assert.Equal(t, "https://apple-pay-gateway.apple.com/paymentservices/startSession", v.gotURL)
}

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestValidateSessionHandlerLogsRelayWriteFailure(t *testing.T) {
	v := &mockValidator{err: &domain.UpstreamError{
		StatusCode:  http.StatusBadRequest,
		ContentType: "application/json",
		Body:        []byte(`{"statusMessage":"bad merchant"}`),
	}}
	h := NewApplePayHandler(v)

	var logs bytes.Buffer
	logger := logging.New(&logs, "test", "debug", "production")

	req := httptest.NewRequest(http.MethodPost, "/api/apple-pay/validate-session",
		strings.NewReader(`{"validationURL":"https://apple-pay-gateway.apple.com/paymentservices/startSession"}`))
	req = req.WithContext(logging.WithLogger(req.Context(), logger))
	w := brokenWriter{httptest.NewRecorder()}
	h.ValidateSession(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, logs.String(), "failed to relay upstream response")
	assert.Contains(t, logs.String(), "connection reset")
}
