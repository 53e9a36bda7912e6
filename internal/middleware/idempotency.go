package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/livepay/internal/handler"
	"github.com/josh-kwaku/livepay/internal/logging"
	"github.com/josh-kwaku/livepay/internal/repository"
)

const idempotencyHeader = "Idempotency-Key"

type idempotencyRepository interface {
	Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (*repository.IdempotencyCacheEntry, bool, error)
	Release(ctx context.Context, key string) error
	Set(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
}

// Idempotency replays the recorded response when a request is retried with
// the same Idempotency-Key and body. Requests without the header pass
// through. The key is reserved before the handler runs, so a duplicate that
// arrives while the first request is in flight gets 409 instead of running
// twice. Only 2xx responses are recorded so failed attempts can be retried.
func Idempotency(repo idempotencyRepository, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			values, present := r.Header[http.CanonicalHeaderKey(idempotencyHeader)]
			if !present {
				next.ServeHTTP(w, r)
				return
			}
			key := ""
			if len(values) > 0 {
				key = values[0]
			}
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey)
				return
			}

			log := logging.FromContext(r.Context())

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)
			scopedKey := r.Method + " " + r.URL.Path + " " + key

			held, reserved, err := repo.Reserve(r.Context(), scopedKey, reqHash, ttl)
			if err != nil {
				log.Error("idempotency reservation failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError)
				return
			}

			if !reserved {
				switch {
				case held.RequestHash != reqHash:
					handler.RespondAppError(w, handler.ErrIdempotencyConflict)
				case held.Pending:
					handler.RespondAppError(w, handler.ErrIdempotencyInProgress)
				default:
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Idempotent-Replayed", "true")
					w.WriteHeader(held.StatusCode)
					if _, err := w.Write(held.ResponseBody); err != nil {
						log.Error("failed to write idempotent replay", "error", err, "idempotency_key", key)
					}
				}
				return
			}

			completed := false
			defer func() {
				if completed {
					return
				}
				if err := repo.Release(context.WithoutCancel(r.Context()), scopedKey); err != nil {
					log.Error("idempotency release failed", "error", err, "idempotency_key", key)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				return
			}

			now := time.Now().UTC()
			entry := &repository.IdempotencyCacheEntry{
				Key:          scopedKey,
				RequestHash:  reqHash,
				StatusCode:   rec.statusCode,
				ResponseBody: rec.body.Bytes(),
				CreatedAt:    now,
				ExpiresAt:    now.Add(ttl),
			}
			if err := repo.Set(r.Context(), entry); err != nil {
				log.Error("idempotency cache store failed", "error", err, "idempotency_key", key)
				return
			}
			completed = true
		})
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
