package repositories

import (
	"context"
	"time"

	"tokopay/internal/models"

	"github.com/shopspring/decimal"
)

// PaymentRepository defines the interface for payment data access.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	Save(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, id string) error
	DeleteByOrder(ctx context.Context, orderID string) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetForUpdate(ctx context.Context, id string) (*models.Payment, error)
	GetByGatewayReference(ctx context.Context, reference string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error)
	// ReservedAmount sums pending payments of the order that have not expired at now.
	ReservedAmount(ctx context.Context, orderID string, now time.Time) (decimal.Decimal, error)
}
