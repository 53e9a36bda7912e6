package repository

import (
	"context"
	"sync"
	"time"
)

type IdempotencyCacheEntry struct {
	Key          string
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
	// Pending marks a key whose first request is still running.
	Pending bool
}

// IdempotencyRepository keeps recorded responses in memory until they expire.
type IdempotencyRepository struct {
	mu      sync.Mutex
	entries map[string]*IdempotencyCacheEntry
	now     func() time.Time
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		entries: make(map[string]*IdempotencyCacheEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *IdempotencyRepository) Get(_ context.Context, key string) (*IdempotencyCacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.ExpiresAt.After(r.now()) {
		delete(r.entries, key)
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// Reserve claims key for a request with the given hash. When the key is
// already held, by a finished or a running request, the existing entry is
// returned and reserved is false.
func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, ttl time.Duration) (*IdempotencyCacheEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.entries[key]; ok && e.ExpiresAt.After(now) {
		cp := *e
		return &cp, false, nil
	}
	r.entries[key] = &IdempotencyCacheEntry{
		Key:         key,
		RequestHash: requestHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Pending:     true,
	}
	return nil, true, nil
}

// Release drops a pending reservation so the key can be retried.
// Completed entries are left alone.
func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok && e.Pending {
		delete(r.entries, key)
	}
	return nil
}

// Set keeps the first completed entry stored under a key and replaces a
// pending reservation.
func (r *IdempotencyRepository) Set(_ context.Context, entry *IdempotencyCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[entry.Key]; ok && !e.Pending && e.ExpiresAt.After(r.now()) {
		return nil
	}
	cp := *entry
	cp.Pending = false
	r.entries[entry.Key] = &cp
	return nil
}

func (r *IdempotencyRepository) CleanExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var n int64
	for k, e := range r.entries {
		if !e.ExpiresAt.After(now) {
			delete(r.entries, k)
			n++
		}
	}
	return n, nil
}

// RunCleanup purges expired entries every interval until ctx is done.
func (r *IdempotencyRepository) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CleanExpired(ctx)
		}
	}
}
