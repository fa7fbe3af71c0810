package repositories

import (
	"context"
	"fmt"

	"tokopay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

func itemsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

// List returns all orders, newest first.
func (r *GORMOrderRepository) List(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).Preload("Items", itemsInOrder).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetByID returns an order with its line items.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items", itemsInOrder).First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, models.ErrOrderNotFound, "failed to get order by ID %s", id)
	}
	return &order, nil
}

// GetForUpdate implements OrderRepository. SQLite has no row locks and ignores the clause;
// its writers are serialized by the database lock instead.
func (r *GORMOrderRepository) GetForUpdate(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", itemsInOrder).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, models.ErrOrderNotFound, "failed to lock order %s", id)
	}
	return &order, nil
}

// Create inserts the order together with its line items.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return translate(err, models.ErrOrderNotFound, "failed to create order")
	}
	return nil
}

// Save implements OrderRepository.
func (r *GORMOrderRepository) Save(ctx context.Context, order *models.Order) error {
	db := r.db.WithContext(ctx)

	keep := make([]string, 0, len(order.Items))
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		keep = append(keep, order.Items[i].ID)
	}

	stale := db.Where("order_id = ?", order.ID)
	if len(keep) > 0 {
		stale = stale.Where("id NOT IN ?", keep)
	}
	if err := stale.Delete(&models.LineItem{}).Error; err != nil {
		return fmt.Errorf("failed to remove line items of order %s: %w", order.ID, err)
	}

	if len(order.Items) > 0 {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "subtotal", "updated_at"}),
		}).Create(&order.Items).Error
		if err != nil {
			return translate(err, models.ErrOrderNotFound, "failed to save line items of order %s", order.ID)
		}
	}

	res := db.Omit(clause.Associations).Save(order)
	if res.Error != nil {
		return translate(res.Error, models.ErrOrderNotFound, "failed to update order %s", order.ID)
	}
	return nil
}

// Delete removes the order and its line items.
func (r *GORMOrderRepository) Delete(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
		return fmt.Errorf("failed to delete line items of order %s: %w", id, err)
	}
	res := db.Delete(&models.Order{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}
