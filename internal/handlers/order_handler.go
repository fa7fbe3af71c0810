package handlers

import (
	"tokopay/internal/middleware"
	"tokopay/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
	}
}

type itemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// AdjustmentsRequest carries the optional order level amounts shared by create and update.
type AdjustmentsRequest struct {
	Discount     *decimal.Decimal `json:"discount" validate:"omitempty,gte=0"`
	TaxRate      *decimal.Decimal `json:"tax_rate" validate:"omitempty,gte=0"`
	ShippingCost *decimal.Decimal `json:"shipping_cost" validate:"omitempty,gte=0"`
}

func (r AdjustmentsRequest) input() services.AdjustmentsInput {
	return services.AdjustmentsInput{
		Discount:     r.Discount,
		TaxRate:      r.TaxRate,
		ShippingCost: r.ShippingCost,
	}
}

type createOrderRequest struct {
	UserID string        `json:"user_id"`
	Items  []itemRequest `json:"items" validate:"dive"`
	AdjustmentsRequest
}

type updateOrderRequest struct {
	Items  []itemRequest `json:"items" validate:"dive"`
	Status *string       `json:"status"`
	AdjustmentsRequest
}

type addItemsRequest struct {
	Items []itemRequest `json:"items" validate:"dive"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func itemInputs(items []itemRequest) []services.ItemRequest {
	out := make([]services.ItemRequest, 0, len(items))
	for _, it := range items {
		out = append(out, services.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// RegisterRoutes registers the order routes behind auth.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	orderRoutes := router.Group("/orders", auth)
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Patch("/:id", h.HandleUpdateOrder)
	orderRoutes.Post("/:id/items", h.HandleAddItems)
	orderRoutes.Patch("/:id/status", h.HandleUpdateOrderStatus)
	orderRoutes.Delete("/:id", h.HandleDeleteOrder)
}

// HandleGetOrders retrieves all orders.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListOrders(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newOrderViews(orders))
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newOrderView(order))
}

// HandleCreateOrder creates a new order. Without user_id the order belongs to the caller.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	if req.UserID == "" {
		req.UserID = middleware.UserID(c)
	}

	order, err := h.service.CreateOrder(c.UserContext(), services.CreateOrderInput{
		UserID:      req.UserID,
		Items:       itemInputs(req.Items),
		Adjustments: req.input(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newOrderView(order))
}

// HandleUpdateOrder changes quantities, adjustments and optionally the status in one step.
func (h *OrderHandler) HandleUpdateOrder(c *fiber.Ctx) error {
	var req updateOrderRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	order, err := h.service.UpdateOrder(c.UserContext(), c.Params("id"), services.UpdateOrderInput{
		Items:       itemInputs(req.Items),
		Adjustments: req.input(),
		Status:      req.Status,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newOrderView(order))
}

// HandleAddItems adds products to an existing order.
func (h *OrderHandler) HandleAddItems(c *fiber.Ctx) error {
	var req addItemsRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	order, err := h.service.AddProducts(c.UserContext(), c.Params("id"), itemInputs(req.Items))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newOrderView(order))
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	order, err := h.service.ChangeStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newOrderView(order))
}

// HandleDeleteOrder deletes an order that has not received any payment.
func (h *OrderHandler) HandleDeleteOrder(c *fiber.Ctx) error {
	if err := h.service.DeleteOrder(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
