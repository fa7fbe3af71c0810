package repositories

import (
	"context"

	"tokopay/internal/models"
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	List(ctx context.Context) ([]models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// GetForUpdate loads the order and holds a row lock until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	// Save writes the order and reconciles its line items with the stored ones.
	Save(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
}
