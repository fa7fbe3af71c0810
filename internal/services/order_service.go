package services

import (
	"context"
	"errors"
	"time"

	"tokopay/internal/events"
	"tokopay/internal/models"
	"tokopay/internal/repositories"

	"github.com/shopspring/decimal"
)

// ItemRequest names a product and a quantity.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// AdjustmentsInput carries optional order level amounts; nil leaves the current value.
type AdjustmentsInput struct {
	Discount     *decimal.Decimal
	TaxRate      *decimal.Decimal
	ShippingCost *decimal.Decimal
}

func (a AdjustmentsInput) empty() bool {
	return a.Discount == nil && a.TaxRate == nil && a.ShippingCost == nil
}

func (a AdjustmentsInput) over(o *models.Order) models.Adjustments {
	adj := models.Adjustments{Discount: o.Discount, TaxRate: o.TaxRate, ShippingCost: o.ShippingCost}
	if a.Discount != nil {
		adj.Discount = *a.Discount
	}
	if a.TaxRate != nil {
		adj.TaxRate = *a.TaxRate
	}
	if a.ShippingCost != nil {
		adj.ShippingCost = *a.ShippingCost
	}
	return adj
}

// CreateOrderInput is a new order request.
type CreateOrderInput struct {
	UserID      string
	Items       []ItemRequest
	Adjustments AdjustmentsInput
}

// UpdateOrderInput is a partial update. Item quantities are absolute; zero removes the line.
type UpdateOrderInput struct {
	Items       []ItemRequest
	Adjustments AdjustmentsInput
	Status      *string
}

// OrderService handles business logic related to orders.
type OrderService struct {
	store  repositories.Store
	events *events.Emitter
	now    func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store repositories.Store, emitter *events.Emitter) *OrderService {
	if emitter == nil {
		emitter = events.NewEmitter(nil, nil)
	}
	return &OrderService{
		store:  store,
		events: emitter,
		now:    time.Now,
	}
}

// ListOrders retrieves all orders.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.Orders().List(ctx)
}

// GetOrder retrieves a single order by its ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.store.Orders().GetByID(ctx, id)
}

// CreateOrder builds the whole order in memory and persists it once.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrderCreation
	}

	var order *models.Order
	err := s.store.WithinTransaction(ctx, func(tx repositories.Store) error {
		if _, err := tx.Users().GetByID(ctx, in.UserID); err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				return ErrUnknownUser.Withf("id %s", in.UserID)
			}
			return err
		}

		order = models.NewOrder(in.UserID)
		if err := addItems(ctx, tx, order, in.Items); err != nil {
			return err
		}
		if !in.Adjustments.empty() {
			if err := order.SetAdjustments(in.Adjustments.over(order)); err != nil {
				return err
			}
		}
		order.RecalculateTotals()
		if err := order.Validate(); err != nil {
			return err
		}
		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.OrderCreated, order)
	return order, nil
}

// AddProducts adds items to an existing order under its row lock.
func (s *OrderService) AddProducts(ctx context.Context, orderID string, items []ItemRequest) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItemsGiven
	}
	order, err := s.mutate(ctx, orderID, func(tx repositories.Store, order *models.Order) error {
		return addItems(ctx, tx, order, items)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.OrderUpdated, order)
	return order, nil
}

// UpdateOrder applies item quantities, adjustments and an optional status change in one
// transaction.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID string, in UpdateOrderInput) (*models.Order, error) {
	var statusChanged bool
	order, err := s.mutate(ctx, orderID, func(tx repositories.Store, order *models.Order) error {
		for _, item := range in.Items {
			product, err := lookupProduct(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}
			if err := order.SetLineItemQuantity(product, item.Quantity); err != nil {
				return err
			}
		}
		if !in.Adjustments.empty() {
			if err := order.SetAdjustments(in.Adjustments.over(order)); err != nil {
				return err
			}
		}
		if in.Status != nil {
			next, err := models.ParseOrderStatus(*in.Status)
			if err != nil {
				return err
			}
			statusChanged = next != order.Status
			return order.TransitionStatus(next, s.now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.OrderUpdated, order)
	if statusChanged {
		s.emit(ctx, events.OrderStatusChanged, order)
	}
	return order, nil
}

// ChangeStatus moves the order through its state machine.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID, status string) (*models.Order, error) {
	next, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	var changed bool
	order, err := s.mutate(ctx, orderID, func(_ repositories.Store, order *models.Order) error {
		changed = next != order.Status
		return order.TransitionStatus(next, s.now())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.emit(ctx, events.OrderStatusChanged, order)
	}
	return order, nil
}

// DeleteOrder removes an order that has no applied payments, together with its pending ones.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	err := s.store.WithinTransaction(ctx, func(tx repositories.Store) error {
		order, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaidAmount.IsPositive() {
			return models.ErrOrderLocked.Withf("payments have already been applied")
		}
		if err := tx.Payments().DeleteByOrder(ctx, orderID); err != nil {
			return err
		}
		return tx.Orders().Delete(ctx, orderID)
	})
	if err != nil {
		return err
	}
	s.events.Emit(ctx, events.Event{Type: events.OrderDeleted, OrderID: orderID})
	return nil
}

// mutate locks the order, runs fn, then recalculates, validates and saves.
func (s *OrderService) mutate(ctx context.Context, orderID string, fn func(tx repositories.Store, order *models.Order) error) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithinTransaction(ctx, func(tx repositories.Store) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(tx, order); err != nil {
			return err
		}
		order.RecalculateTotals()
		if err := order.Validate(); err != nil {
			return err
		}
		reserved, err := tx.Payments().ReservedAmount(ctx, order.ID, s.now())
		if err != nil {
			return err
		}
		if order.OutstandingBalance().LessThan(reserved) && !order.Status.IsTerminal() {
			return ErrTotalBelowReserved.Withf("total %s, paid %s, reserved %s",
				order.Total.StringFixed(2), order.PaidAmount.StringFixed(2), reserved.StringFixed(2))
		}
		return tx.Orders().Save(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) emit(ctx context.Context, eventType string, order *models.Order) {
	s.events.Emit(ctx, events.Event{Type: eventType, OrderID: order.ID, Status: string(order.Status)})
}

func addItems(ctx context.Context, tx repositories.Store, order *models.Order, items []ItemRequest) error {
	for _, item := range items {
		product, err := lookupProduct(ctx, tx, item.ProductID)
		if err != nil {
			return err
		}
		if err := order.AddOrUpdateLineItem(product, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func lookupProduct(ctx context.Context, tx repositories.Store, id string) (*models.Product, error) {
	product, err := tx.Products().GetByID(ctx, id)
	if errors.Is(err, models.ErrProductNotFound) {
		return nil, ErrUnknownProduct.Withf("id %s", id)
	}
	return product, err
}
