package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	mrand "math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionTTL = 5 * time.Minute

type startSessionRequest struct {
	MerchantIdentifier string `json:"merchantIdentifier"`
	DisplayName        string `json:"displayName"`
	Initiative         string `json:"initiative"`
	InitiativeContext  string `json:"initiativeContext"`
}

type merchantSession struct {
	EpochTimestamp            int64  `json:"epochTimestamp"`
	ExpiresAt                 int64  `json:"expiresAt"`
	MerchantSessionIdentifier string `json:"merchantSessionIdentifier"`
	Nonce                     string `json:"nonce"`
	MerchantIdentifier        string `json:"merchantIdentifier"`
	DomainName                string `json:"domainName"`
	DisplayName               string `json:"displayName"`
	Signature                 string `json:"signature"`
}

type provider struct {
	failRate float64
	now      func() time.Time
}

func newProvider(failRate float64) *provider {
	return &provider{failRate: failRate, now: time.Now}
}

func (p *provider) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /paymentservices/startSession", p.startSession)
	return mux
}

func (p *provider) startSession(w http.ResponseWriter, r *http.Request) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"statusMessage": "client certificate required"})
		return
	}
	merchant := r.TLS.PeerCertificates[0].Subject.CommonName

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"statusMessage": "invalid payload"})
		return
	}

	var missing []string
	if req.MerchantIdentifier == "" {
		missing = append(missing, "merchantIdentifier")
	}
	if req.DisplayName == "" {
		missing = append(missing, "displayName")
	}
	if req.InitiativeContext == "" {
		missing = append(missing, "initiativeContext")
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"statusMessage": "missing " + strings.Join(missing, ", "),
		})
		return
	}

	if p.failRate > 0 && mrand.Float64() < p.failRate {
		slog.Warn("simulated session failure", "merchant", req.MerchantIdentifier)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"statusMessage": "simulated failure"})
		return
	}

	now := p.now()
	session := merchantSession{
		EpochTimestamp:            now.UnixMilli(),
		ExpiresAt:                 now.Add(sessionTTL).UnixMilli(),
		MerchantSessionIdentifier: "SSH" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")),
		Nonce:                     uuid.NewString()[:8],
		MerchantIdentifier:        req.MerchantIdentifier,
		DomainName:                req.InitiativeContext,
		DisplayName:               req.DisplayName,
		Signature:                 base64.StdEncoding.EncodeToString([]byte("mock-signature:" + merchant)),
	}

	slog.Info("merchant session issued",
		"merchant", req.MerchantIdentifier,
		"client_cn", merchant,
		"domain", req.InitiativeContext,
	)
	writeJSON(w, http.StatusOK, session)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// loadOrGenerateCert uses the configured key pair, or a throwaway
// self-signed certificate for localhost when none is set.
func loadOrGenerateCert(certFile, keyFile string) (tls.Certificate, error) {
	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("loadOrGenerateCert: %w", err)
		}
		return cert, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("loadOrGenerateCert: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("loadOrGenerateCert: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
