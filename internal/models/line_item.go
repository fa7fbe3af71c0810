package models

import (
	"time"

	"tokopay/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one product, quantity and frozen price inside an order.
type LineItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"-" gorm:"type:varchar(36);not null;uniqueIndex:idx_line_items_order_product"`
	ProductID   string          `json:"product_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_line_items_order_product"`
	ProductName string          `json:"product_name" gorm:"type:varchar(100)"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	PriceAtTime decimal.Decimal `json:"price_at_time" gorm:"type:decimal(12,2);not null"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func newLineItem(orderID string, p *Product, quantity int) LineItem {
	item := LineItem{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		ProductID:   p.ID,
		ProductName: p.Name,
		PriceAtTime: money.Round(p.Price),
	}
	item.setQuantity(quantity)
	return item
}

// setQuantity keeps Subtotal in step with Quantity. PriceAtTime never changes after creation.
func (li *LineItem) setQuantity(quantity int) {
	li.Quantity = quantity
	li.Subtotal = money.LineTotal(li.PriceAtTime, quantity)
}
