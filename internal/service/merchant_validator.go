package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/josh-kwaku/livepay/internal/domain"
	"github.com/josh-kwaku/livepay/internal/logging"
)

const (
	defaultValidationTimeout = 10 * time.Second
	maxSessionBytes          = 1 << 20
	initiativeWeb            = "web"
)

type MerchantConfig struct {
	Enabled         bool
	MerchantID      string
	MerchantDomain  string
	DisplayName     string
	CertPath        string
	Timeout         time.Duration
	ValidationHosts []string
}

func (c MerchantConfig) complete() bool {
	return c.MerchantID != "" && c.MerchantDomain != "" && c.DisplayName != "" && c.CertPath != ""
}

type ValidatorState string

const (
	ValidatorDisabled      ValidatorState = "disabled"
	ValidatorMisconfigured ValidatorState = "misconfigured"
	ValidatorReady         ValidatorState = "enabled"
)

// MerchantValidator exchanges a payment-network validation URL for a signed
// merchant session, authenticating with the merchant identity certificate.
// The certificate is read from disk on every call so it can be rotated
// without a restart.
type MerchantValidator struct {
	cfg      MerchantConfig
	rootCAs  *x509.CertPool
	readFile func(string) ([]byte, error)
}

type ValidatorOption func(*MerchantValidator)

// WithRootCAs overrides the system roots used to verify the upstream.
func WithRootCAs(pool *x509.CertPool) ValidatorOption {
	return func(v *MerchantValidator) { v.rootCAs = pool }
}

func NewMerchantValidator(cfg MerchantConfig, opts ...ValidatorOption) *MerchantValidator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultValidationTimeout
	}
	v := &MerchantValidator{cfg: cfg, readFile: os.ReadFile}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *MerchantValidator) State() ValidatorState {
	switch {
	case !v.cfg.Enabled:
		return ValidatorDisabled
	case !v.cfg.complete():
		return ValidatorMisconfigured
	default:
		return ValidatorReady
	}
}

type sessionRequest struct {
	MerchantIdentifier string `json:"merchantIdentifier"`
	DisplayName        string `json:"displayName"`
	Initiative         string `json:"initiative"`
	InitiativeContext  string `json:"initiativeContext"`
}

// ValidateSession returns the upstream body verbatim on success. A
// non-success upstream answer is returned as *domain.UpstreamError; any
// failure to complete the exchange is domain.ErrSessionValidationFailed.
func (v *MerchantValidator) ValidateSession(ctx context.Context, validationURL string) ([]byte, error) {
	log := logging.FromContext(ctx)

	switch v.State() {
	case ValidatorDisabled:
		return nil, fmt.Errorf("ValidateSession: %w", domain.ErrApplePayDisabled)
	case ValidatorMisconfigured:
		log.Error("apple pay enabled but merchant configuration is incomplete")
		return nil, fmt.Errorf("ValidateSession: %w", domain.ErrMerchantMisconfigured)
	}

	validationURL = strings.TrimSpace(validationURL)
	if validationURL == "" {
		return nil, fmt.Errorf("ValidateSession: %w", domain.ErrMissingValidationURL)
	}
	target, err := v.checkURL(validationURL)
	if err != nil {
		log.Warn("rejected merchant validation url", "validation_url", validationURL, "error", err)
		return nil, fmt.Errorf("ValidateSession: %w", domain.ErrInvalidValidationURL)
	}

	client, closeIdle, err := v.newClient()
	if err != nil {
		log.Error("failed to load merchant identity certificate", "cert_path", v.cfg.CertPath, "error", err)
		return nil, fmt.Errorf("ValidateSession: %w: %w", domain.ErrSessionValidationFailed, err)
	}
	defer closeIdle()

	body, err := json.Marshal(sessionRequest{
		MerchantIdentifier: v.cfg.MerchantID,
		DisplayName:        v.cfg.DisplayName,
		Initiative:         initiativeWeb,
		InitiativeContext:  v.cfg.MerchantDomain,
	})
	if err != nil {
		return nil, fmt.Errorf("ValidateSession: marshal: %w: %w", domain.ErrSessionValidationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ValidateSession: build request: %w: %w", domain.ErrSessionValidationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	log.Info("merchant validation request sent", "host", target.Host)

	resp, err := client.Do(req)
	if err != nil {
		log.Error("merchant validation request failed", "host", target.Host, "error", err)
		return nil, fmt.Errorf("ValidateSession: send: %w: %w", domain.ErrSessionValidationFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionBytes))
	if err != nil {
		log.Error("failed to read merchant session", "error", err)
		return nil, fmt.Errorf("ValidateSession: read: %w: %w", domain.ErrSessionValidationFailed, err)
	}

	log.Info("merchant validation response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ValidateSession: %w", &domain.UpstreamError{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        respBody,
		})
	}

	return respBody, nil
}

func (v *MerchantValidator) checkURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q is not https", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if len(v.cfg.ValidationHosts) == 0 {
		return u, nil
	}
	for _, suffix := range v.cfg.ValidationHosts {
		suffix = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(suffix)), ".")
		if suffix == "" {
			continue
		}
		h := strings.ToLower(host)
		if h == suffix || strings.HasSuffix(h, "."+suffix) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("host %q is not in the allow-list", host)
}

// newClient builds a single-use client presenting the merchant certificate.
// The PEM file holds both the certificate chain and the private key.
func (v *MerchantValidator) newClient() (*http.Client, func(), error) {
	material, err := v.readFile(v.cfg.CertPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read credential: %w", err)
	}
	cert, err := tls.X509KeyPair(material, material)
	if err != nil {
		return nil, nil, fmt.Errorf("parse credential: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      v.rootCAs,
		MinVersion:   tls.VersionTLS12,
	}

	client := &http.Client{
		Timeout:   v.cfg.Timeout,
		Transport: transport,
	}
	return client, transport.CloseIdleConnections, nil
}
