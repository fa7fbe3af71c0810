package models

import (
	"time"

	"tokopay/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is a step of the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
)

var orderStatuses = map[OrderStatus]bool{
	OrderStatusPending:   false,
	OrderStatusConfirmed: false,
	OrderStatusPartial:   false,
	OrderStatusPaid:      false,
	OrderStatusDelivered: true,
	OrderStatusCancelled: true,
	OrderStatusReturned:  true,
}

// ParseOrderStatus validates a client supplied status.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", ErrInvalidStatus.Withf("%q", s)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	_, ok := orderStatuses[s]
	return ok
}

// IsTerminal reports whether s accepts no further transition.
func (s OrderStatus) IsTerminal() bool {
	return orderStatuses[s]
}

// Payable reports whether new payments may be started in s.
func (s OrderStatus) Payable() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPartial:
		return true
	}
	return false
}

// Adjustments are the order level financial inputs next to the line items.
type Adjustments struct {
	Discount     decimal.Decimal
	TaxRate      decimal.Decimal
	ShippingCost decimal.Decimal
}

// Order is the order aggregate. All mutation methods work in memory; persistence is the
// repository's job.
type Order struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string          `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Items        []LineItem      `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Subtotal     decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null;default:0"`
	Discount     decimal.Decimal `json:"discount" gorm:"type:decimal(12,2);not null;default:0"`
	TaxRate      decimal.Decimal `json:"tax_rate" gorm:"type:decimal(5,2);not null;default:0"`
	ShippingCost decimal.Decimal `json:"shipping_cost" gorm:"type:decimal(12,2);not null;default:0"`
	Total        decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null;default:0"`
	PaidAmount   decimal.Decimal `json:"paid_amount" gorm:"type:decimal(12,2);not null;default:0"`
	Status       OrderStatus     `json:"status" gorm:"type:varchar(20);index;not null;default:pending"`
	CompletedAt  *time.Time      `json:"completed_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewOrder starts an empty pending order for userID.
func NewOrder(userID string) *Order {
	return &Order{
		ID:           uuid.NewString(),
		UserID:       userID,
		Subtotal:     money.Zero,
		Discount:     money.Zero,
		TaxRate:      money.Zero,
		ShippingCost: money.Zero,
		Total:        money.Zero,
		PaidAmount:   money.Zero,
		Status:       OrderStatusPending,
	}
}

// persisted reports whether the order has been stored before.
func (o *Order) persisted() bool {
	return !o.CreatedAt.IsZero()
}

// editable guards item and adjustment changes.
func (o *Order) editable() error {
	if o.Status.IsTerminal() {
		return ErrOrderLocked.Withf("order is %s", o.Status)
	}
	return nil
}

func (o *Order) lineFor(productID string) (int, bool) {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// AddOrUpdateLineItem adds quantity units of p. An existing line for p is incremented and the
// stock check runs against the combined quantity.
func (o *Order) AddOrUpdateLineItem(p *Product, quantity int) error {
	if err := o.editable(); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity.Withf("got %d for product %s", quantity, p.ID)
	}

	if i, ok := o.lineFor(p.ID); ok {
		newQty := o.Items[i].Quantity + quantity
		if newQty > p.Stock {
			return ErrInsufficientStock.Withf("product %s (requested: %d, available: %d)", p.Name, newQty, p.Stock)
		}
		o.Items[i].setQuantity(newQty)
	} else {
		if quantity > p.Stock {
			return ErrInsufficientStock.Withf("product %s (requested: %d, available: %d)", p.Name, quantity, p.Stock)
		}
		o.Items = append(o.Items, newLineItem(o.ID, p, quantity))
	}

	o.RecalculateTotals()
	return nil
}

// SetLineItemQuantity sets the absolute quantity for p; zero removes the line.
func (o *Order) SetLineItemQuantity(p *Product, quantity int) error {
	if err := o.editable(); err != nil {
		return err
	}
	if quantity < 0 {
		return ErrInvalidQuantity.Withf("got %d for product %s", quantity, p.ID)
	}

	i, ok := o.lineFor(p.ID)
	switch {
	case quantity == 0 && ok:
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
	case quantity == 0:
		// nothing to remove
	case quantity > p.Stock:
		return ErrInsufficientStock.Withf("product %s (requested: %d, available: %d)", p.Name, quantity, p.Stock)
	case ok:
		o.Items[i].setQuantity(quantity)
	default:
		o.Items = append(o.Items, newLineItem(o.ID, p, quantity))
	}

	o.RecalculateTotals()
	return nil
}

// SetAdjustments replaces discount, tax rate and shipping cost.
func (o *Order) SetAdjustments(adj Adjustments) error {
	if err := o.editable(); err != nil {
		return err
	}
	if adj.Discount.IsNegative() || adj.TaxRate.IsNegative() || adj.ShippingCost.IsNegative() {
		return ErrInvalidAdjustment.Withf("amounts must not be negative")
	}
	if adj.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidAdjustment.Withf("tax rate must not exceed 100")
	}
	o.Discount = money.Round(adj.Discount)
	o.TaxRate = money.Round(adj.TaxRate)
	o.ShippingCost = money.Round(adj.ShippingCost)
	o.RecalculateTotals()
	return nil
}

// TaxAmount is the tax on the discounted subtotal.
func (o *Order) TaxAmount() decimal.Decimal {
	taxable := money.NonNegative(o.Subtotal.Sub(o.Discount))
	return money.Percent(taxable, o.TaxRate)
}

// RecalculateTotals derives subtotal and total from the line items and adjustments.
// PaidAmount is never touched.
func (o *Order) RecalculateTotals() {
	lines := make([]decimal.Decimal, len(o.Items))
	for i := range o.Items {
		lines[i] = o.Items[i].Subtotal
	}
	o.Subtotal = money.Round(money.Sum(lines...))
	total := o.Subtotal.Sub(o.Discount).Add(o.ShippingCost).Add(o.TaxAmount())
	o.Total = money.Round(money.NonNegative(total))

	// An edit on a paid or partially paid order moves it between the two.
	switch {
	case o.Status == OrderStatusPaid && o.PaidAmount.LessThan(o.Total):
		o.Status = OrderStatusPartial
	case o.Status == OrderStatusPartial && o.PaidAmount.Equal(o.Total):
		o.Status = OrderStatusPaid
	}
}

// OutstandingBalance is what is still owed on the order.
func (o *Order) OutstandingBalance() decimal.Decimal {
	return o.Total.Sub(o.PaidAmount)
}

// TransitionStatus moves the order to next. Terminal statuses are absorbing, delivery needs
// a fully paid order and no terminal status is reachable without line items.
func (o *Order) TransitionStatus(next OrderStatus, now time.Time) error {
	if !next.Valid() {
		return ErrInvalidStatus.Withf("%q", next)
	}
	if o.Status.IsTerminal() {
		if next != o.Status {
			return ErrInvalidTransition.Withf("%s is terminal", o.Status)
		}
		return nil
	}
	if next.IsTerminal() && len(o.Items) == 0 {
		return ErrEmptyOrderTerminal
	}
	if next == OrderStatusDelivered && o.Status != OrderStatusPaid {
		return ErrInvalidTransition.Withf("%s -> %s", o.Status, next)
	}

	if next.IsTerminal() {
		stamp := now
		o.CompletedAt = &stamp
	} else {
		o.CompletedAt = nil
	}
	o.Status = next
	return nil
}

// Validate checks the aggregate before it is persisted.
func (o *Order) Validate() error {
	if o.persisted() && len(o.Items) == 0 {
		return ErrNoLineItems
	}
	if o.Discount.GreaterThan(o.Subtotal) {
		return ErrDiscountExceedsSubtotal.Withf("discount %s, subtotal %s", o.Discount.StringFixed(2), o.Subtotal.StringFixed(2))
	}
	if o.Total.LessThan(o.PaidAmount) {
		return ErrTotalBelowPaidAmount.Withf("total %s, paid %s", o.Total.StringFixed(2), o.PaidAmount.StringFixed(2))
	}
	return nil
}

// ApplyPayment books a successful payment and moves the order to paid or partial.
func (o *Order) ApplyPayment(amount decimal.Decimal) error {
	if o.Status.IsTerminal() {
		return ErrOrderClosed.Withf("order is %s", o.Status)
	}
	paid := o.PaidAmount.Add(amount)
	if paid.GreaterThan(o.Total) {
		return ErrOverpayment.Withf("paid %s + %s exceeds total %s", o.PaidAmount.StringFixed(2), amount.StringFixed(2), o.Total.StringFixed(2))
	}
	o.PaidAmount = paid
	if o.PaidAmount.Equal(o.Total) {
		o.Status = OrderStatusPaid
	} else {
		o.Status = OrderStatusPartial
	}
	return nil
}
