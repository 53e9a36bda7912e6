package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/livepay/internal/domain"
	"github.com/josh-kwaku/livepay/internal/logging"
)

const EventPayment = "payment"

var minAmount = decimal.NewFromInt(1)

type ledger interface {
	Append(p domain.NewPayment) domain.Payment
	Recent(limit int) []domain.Payment
}

type publisher interface {
	Publish(name string, payload any) error
}

type Service struct {
	ledger    ledger
	publisher publisher
	maxAmount decimal.Decimal
}

func NewService(l ledger, p publisher, maxAmount int64) *Service {
	return &Service{
		ledger:    l,
		publisher: p,
		maxAmount: decimal.NewFromInt(maxAmount),
	}
}

func (s *Service) MaxAmount() decimal.Decimal { return s.maxAmount }

// Submit stores the payment and announces it to live subscribers. A failed
// announcement is logged; the payment stays recorded.
func (s *Service) Submit(ctx context.Context, req domain.NewPayment) (domain.Payment, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validate(req); err != nil {
		return domain.Payment{}, fmt.Errorf("Submit: %w", err)
	}

	p := s.ledger.Append(req)

	log := logging.FromContext(ctx)
	log.Info("payment recorded", "payment_id", p.ID, "method", p.Method, "amount", p.Amount.String())

	if err := s.publisher.Publish(EventPayment, p.View()); err != nil {
		log.Error("failed to broadcast payment", "payment_id", p.ID, "error", err)
	}

	return p, nil
}

func (s *Service) Recent(_ context.Context, limit int) []domain.Payment {
	return s.ledger.Recent(limit)
}

func (s *Service) validate(req domain.NewPayment) error {
	if req.FullName == "" {
		return fmt.Errorf("full name required: %w", domain.ErrInvalidRequest)
	}
	if !req.Method.IsValid() {
		return fmt.Errorf("method %q: %w", req.Method, domain.ErrInvalidMethod)
	}
	if req.Amount.LessThan(minAmount) || req.Amount.GreaterThan(s.maxAmount) {
		return fmt.Errorf("amount %s not in [%s, %s]: %w", req.Amount, minAmount, s.maxAmount, domain.ErrInvalidAmount)
	}
	return nil
}
