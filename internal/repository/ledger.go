package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/livepay/internal/domain"
)

const DefaultMaxLimit = 200

// Ledger is the append-only, in-process payment store. Records are kept in
// insertion order with non-decreasing CreatedAt, so reading the slice
// backwards yields newest first with ties broken by later insertion.
type Ledger struct {
	mu       sync.RWMutex
	records  []domain.Payment
	lastAt   time.Time
	maxLimit int
	now      func() time.Time
}

func NewLedger(maxLimit int) *Ledger {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Ledger{
		maxLimit: maxLimit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Append assigns ID, CreatedAt and Seq and returns the stored copy.
func (l *Ledger) Append(p domain.NewPayment) domain.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := l.now()
	if at.Before(l.lastAt) {
		at = l.lastAt
	}
	l.lastAt = at

	rec := domain.Payment{
		ID:        uuid.New(),
		FullName:  p.FullName,
		Method:    p.Method,
		Amount:    p.Amount,
		CreatedAt: at,
		Seq:       uint64(len(l.records)) + 1,
	}
	l.records = append(l.records, rec)
	return rec
}

// Recent returns up to limit records, newest first. limit is clamped to
// [0, maxLimit]; the result is a copy.
func (l *Ledger) Recent(limit int) []domain.Payment {
	if limit > l.maxLimit {
		limit = l.maxLimit
	}
	if limit < 0 {
		limit = 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit > len(l.records) {
		limit = len(l.records)
	}
	out := make([]domain.Payment, 0, limit)
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.records[i])
	}
	return out
}

func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Ledger) MaxLimit() int { return l.maxLimit }
