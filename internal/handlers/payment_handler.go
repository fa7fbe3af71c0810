package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"tokopay/internal/apperr"
	"tokopay/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment creation and gateway callbacks.
type PaymentHandler struct {
	service  *services.PaymentService
	validate *validator.Validate
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: newValidator(),
	}
}

type createPaymentRequest struct {
	OrderID  string           `json:"order_id" validate:"required"`
	Amount   *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	Method   string           `json:"method" validate:"required"`
	Currency string           `json:"currency" validate:"omitempty,len=3"`
	Gateway  string           `json:"gateway"`
}

// RegisterRoutes registers the payment routes. The callback is public because the gateway
// redirects the customer's browser to it; limit throttles it together with creation.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router, auth, limit fiber.Handler) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/create", limit, auth, h.HandleCreatePayment)
	paymentRoutes.Post("/callback", limit, h.HandleCallback)
	paymentRoutes.Get("/callback", limit, h.HandleCallback)
	paymentRoutes.Get("/order/:orderID", auth, h.HandleListOrderPayments)
	paymentRoutes.Get("/:id", auth, h.HandleGetPayment)
}

// HandleCreatePayment initiates a payment and returns the gateway link.
func (h *PaymentHandler) HandleCreatePayment(c *fiber.Ctx) error {
	var req createPaymentRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	payment, err := h.service.Initiate(c.UserContext(), services.InitiateInput{
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Method:   req.Method,
		Currency: req.Currency,
		Gateway:  req.Gateway,
	})
	if err != nil {
		status := statusFor(apperr.KindOf(err))
		if apperr.KindOf(err) == apperr.KindGateway {
			status = fiber.StatusBadRequest
		}
		return writeError(c, err, status)
	}
	return c.Status(fiber.StatusCreated).JSON(newPaymentView(payment))
}

// HandleGetPayment retrieves a payment by its ID.
func (h *PaymentHandler) HandleGetPayment(c *fiber.Ctx) error {
	payment, err := h.service.GetPayment(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPaymentView(payment))
}

// HandleListOrderPayments lists the payments recorded against an order.
func (h *PaymentHandler) HandleListOrderPayments(c *fiber.Ctx) error {
	payments, err := h.service.ListOrderPayments(c.UserContext(), c.Params("orderID"))
	if err != nil {
		return respondError(c, err)
	}
	views := make([]paymentView, 0, len(payments))
	for i := range payments {
		views = append(views, newPaymentView(&payments[i]))
	}
	return c.JSON(views)
}

// HandleCallback finalizes a payment from the gateway's callback. The fields arrive as a
// query string on the redirect and as a JSON or form body when posted.
func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	fields, err := callbackFields(c)
	if err != nil {
		return respondError(c, err)
	}

	payment, err := h.service.Finalize(c.UserContext(), fields)
	if err != nil {
		status := statusFor(apperr.KindOf(err))
		if apperr.KindOf(err) == apperr.KindNotFound {
			status = fiber.StatusBadRequest
		}
		return writeError(c, err, status)
	}
	return c.JSON(fiber.Map{
		"status":     payment.Status,
		"payment_id": payment.ID,
		"order_id":   payment.OrderID,
	})
}

func callbackFields(c *fiber.Ctx) (map[string]string, error) {
	if c.Method() == fiber.MethodGet {
		return c.Queries(), nil
	}

	fields := make(map[string]string)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var raw map[string]interface{}
		if err := json.Unmarshal(c.Body(), &raw); err != nil {
			return nil, &bodyError{err: err}
		}
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else if v != nil {
				fields[k] = fmt.Sprint(v)
			}
		}
		return fields, nil
	}

	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		fields[string(key)] = string(value)
	})
	return fields, nil
}
