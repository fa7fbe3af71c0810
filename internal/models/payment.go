package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle of a single payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCard   PaymentMethod = "card"
)

// ParsePaymentMethod validates a client supplied method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodWallet, PaymentMethodUPI, PaymentMethodCard:
		return m, nil
	}
	return "", ErrInvalidMethod.Withf("%q", s)
}

// Payment records one attempt to pay (part of) an order through a gateway.
//
// The ID is a random UUID: it is handed to the gateway as the reference and must not be
// guessable.
type Payment struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID           string          `json:"order_id" gorm:"type:varchar(36);index;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency          string          `json:"currency" gorm:"type:varchar(3);not null;default:INR"`
	Status            PaymentStatus   `json:"status" gorm:"type:varchar(20);index;not null;default:pending"`
	Method            PaymentMethod   `json:"method" gorm:"type:varchar(20);not null"`
	GatewayReference  *string         `json:"gateway_reference" gorm:"type:varchar(255);uniqueIndex"`
	GatewayName       string          `json:"gateway" gorm:"type:varchar(50);not null"`
	PaymentLink       string          `json:"payment_link,omitempty" gorm:"type:varchar(1024)"`
	RawGatewayPayload string          `json:"-" gorm:"type:text"`
	ExpiresAt         time.Time       `json:"expires_at"`
	FinalizedAt       *time.Time      `json:"finalized_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewPayment creates a pending payment.
func NewPayment(orderID string, amount decimal.Decimal, currency string, method PaymentMethod, gatewayName string, expiresAt time.Time) *Payment {
	return &Payment{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		Amount:      amount,
		Currency:    currency,
		Status:      PaymentStatusPending,
		Method:      method,
		GatewayName: gatewayName,
		ExpiresAt:   expiresAt,
	}
}

// IsFinal reports whether the payment has left pending.
func (p *Payment) IsFinal() bool {
	return p.Status != PaymentStatusPending
}

// Reserves reports whether the payment still holds part of the order balance at now.
func (p *Payment) Reserves(now time.Time) bool {
	return p.Status == PaymentStatusPending && now.Before(p.ExpiresAt)
}

// AttachGatewayRequest stores what the gateway returned when the request was created.
func (p *Payment) AttachGatewayRequest(reference, link, raw string) {
	p.GatewayReference = &reference
	p.PaymentLink = link
	p.RawGatewayPayload = raw
}

// Reference returns the gateway reference or "".
func (p *Payment) Reference() string {
	if p.GatewayReference == nil {
		return ""
	}
	return *p.GatewayReference
}

// Finalize moves a pending payment to successful or failed. It happens once.
func (p *Payment) Finalize(captured bool, rawCallback string, now time.Time) error {
	if p.IsFinal() {
		return ErrPaymentFinalized.Withf("payment %s is %s", p.ID, p.Status)
	}
	if captured {
		p.Status = PaymentStatusSuccessful
	} else {
		p.Status = PaymentStatusFailed
	}
	p.RawGatewayPayload = rawCallback
	stamp := now
	p.FinalizedAt = &stamp
	return nil
}
