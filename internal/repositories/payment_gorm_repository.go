package repositories

import (
	"context"
	"fmt"
	"time"

	"tokopay/internal/models"
	"tokopay/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{
		db: db,
	}
}

func (r *GORMPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return translate(err, models.ErrPaymentNotFound, "failed to create payment")
	}
	return nil
}

func (r *GORMPaymentRepository) Save(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Save(payment).Error; err != nil {
		return translate(err, models.ErrPaymentNotFound, "failed to save payment %s", payment.ID)
	}
	return nil
}

func (r *GORMPaymentRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Payment{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete payment %s: %w", id, err)
	}
	return nil
}

func (r *GORMPaymentRepository) DeleteByOrder(ctx context.Context, orderID string) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.Payment{}).Error; err != nil {
		return fmt.Errorf("failed to delete payments of order %s: %w", orderID, err)
	}
	return nil
}

func (r *GORMPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, translate(err, models.ErrPaymentNotFound, "failed to get payment by ID %s", id)
	}
	return &payment, nil
}

// GetForUpdate loads the payment under a row lock held until the transaction ends.
func (r *GORMPaymentRepository) GetForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, models.ErrPaymentNotFound, "failed to lock payment %s", id)
	}
	return &payment, nil
}

func (r *GORMPaymentRepository) GetByGatewayReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "gateway_reference = ?", reference).Error; err != nil {
		return nil, translate(err, models.ErrPaymentNotFound, "failed to get payment by reference %s", reference)
	}
	return &payment, nil
}

func (r *GORMPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments of order %s: %w", orderID, err)
	}
	return payments, nil
}

// ReservedAmount implements PaymentRepository. Expiry is checked in Go so the
// comparison does not depend on how the driver stores timestamps.
func (r *GORMPaymentRepository) ReservedAmount(ctx context.Context, orderID string, now time.Time) (decimal.Decimal, error) {
	var pending []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusPending).
		Find(&pending).Error
	if err != nil {
		return money.Zero, fmt.Errorf("failed to load pending payments of order %s: %w", orderID, err)
	}
	held := make([]decimal.Decimal, 0, len(pending))
	for i := range pending {
		if pending[i].Reserves(now) {
			held = append(held, pending[i].Amount)
		}
	}
	return money.Round(money.Sum(held...)), nil
}
