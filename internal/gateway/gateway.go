// Package gateway talks to external payment providers. The payment service only sees the
// Gateway interface; adapters translate to each provider's wire format.
package gateway

import (
	"context"
	"fmt"
	"time"

	"tokopay/internal/apperr"
	"tokopay/internal/config"
	"tokopay/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCallback    = apperr.New(apperr.KindValidation, "invalid_callback", "callback is missing the payment reference")
	ErrVerificationFailed = apperr.New(apperr.KindVerification, "verification_failed", "callback signature verification failed")
)

// PaymentRequest is what a gateway needs to create a hosted payment page.
type PaymentRequest struct {
	PaymentID     string
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Method        models.PaymentMethod
	CustomerName  string
	CustomerEmail string
	ExpiresAt     time.Time
}

// PaymentLink is the gateway's answer to a PaymentRequest.
type PaymentLink struct {
	Reference string
	URL       string
	Status    string
	Raw       string
}

// Callback is a parsed provider redirect or webhook.
type Callback struct {
	Reference        string // provider id of the payment request
	PaymentID        string // our payment id echoed back by the provider
	GatewayPaymentID string
	Status           string
	Signature        string
	Raw              string
}

// RemoteStatus is the provider's authoritative view of a payment request.
type RemoteStatus struct {
	Reference  string
	Status     string
	AmountPaid decimal.Decimal
	Raw        string
}

// Captured reports whether the provider considers the money collected.
func (s *RemoteStatus) Captured() bool {
	return s.Status == "paid" || s.Status == "captured"
}

// Gateway is a payment provider.
type Gateway interface {
	Name() string
	CreatePaymentRequest(ctx context.Context, req PaymentRequest) (*PaymentLink, error)
	// ParseCallback extracts a Callback from the flattened callback fields. It fails with
	// ErrInvalidCallback when the reference is missing.
	ParseCallback(fields map[string]string) (*Callback, error)
	// VerifyCallback returns ErrVerificationFailed when the callback was not signed by the provider.
	VerifyCallback(cb *Callback) error
	FetchStatus(ctx context.Context, reference string) (*RemoteStatus, error)
}

// New builds the adapter named by cfg.Name.
func New(cfg config.GatewayConfig) (Gateway, error) {
	switch cfg.Name {
	case "razorpay":
		return NewRazorpay(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.Name)
	}
}
