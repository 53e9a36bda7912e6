package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodQR           PaymentMethod = "QR"
	PaymentMethodApplePay     PaymentMethod = "Apple Pay"
	PaymentMethodBankTransfer PaymentMethod = "Bank Transfer"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodQR, PaymentMethodApplePay, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// Payment is immutable once appended to the ledger. Seq is the ledger's
// insertion counter and breaks CreatedAt ties.
type Payment struct {
	ID        uuid.UUID
	FullName  string
	Method    PaymentMethod
	Amount    decimal.Decimal
	CreatedAt time.Time
	Seq       uint64
}

type NewPayment struct {
	FullName string
	Method   PaymentMethod
	Amount   decimal.Decimal
}

// PaymentView is the wire form shared by the REST API and the live stream.
type PaymentView struct {
	ID        uuid.UUID   `json:"id"`
	FullName  string      `json:"fullName"`
	Method    string      `json:"method"`
	Amount    json.Number `json:"amount"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (p Payment) View() PaymentView {
	return PaymentView{
		ID:        p.ID,
		FullName:  p.FullName,
		Method:    string(p.Method),
		Amount:    json.Number(p.Amount.String()),
		CreatedAt: p.CreatedAt,
	}
}
