package handlers

import (
	"time"

	"tokopay/internal/models"
)

// Money leaves the API as strings with exactly two decimals.

type lineItemView struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	PriceAtTime string `json:"price_at_time"`
	Subtotal    string `json:"subtotal"`
}

type orderView struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	Items              []lineItemView `json:"items"`
	Subtotal           string         `json:"subtotal"`
	Discount           string         `json:"discount"`
	TaxRate            string         `json:"tax_rate"`
	TaxAmount          string         `json:"tax_amount"`
	ShippingCost       string         `json:"shipping_cost"`
	Total              string         `json:"total"`
	PaidAmount         string         `json:"paid_amount"`
	OutstandingBalance string         `json:"outstanding_balance"`
	Status             string         `json:"status"`
	CompletedAt        *time.Time     `json:"completed_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func newOrderView(o *models.Order) orderView {
	items := make([]lineItemView, 0, len(o.Items))
	for _, li := range o.Items {
		items = append(items, lineItemView{
			ID:          li.ID,
			ProductID:   li.ProductID,
			ProductName: li.ProductName,
			Quantity:    li.Quantity,
			PriceAtTime: li.PriceAtTime.StringFixed(2),
			Subtotal:    li.Subtotal.StringFixed(2),
		})
	}
	return orderView{
		ID:                 o.ID,
		UserID:             o.UserID,
		Items:              items,
		Subtotal:           o.Subtotal.StringFixed(2),
		Discount:           o.Discount.StringFixed(2),
		TaxRate:            o.TaxRate.StringFixed(2),
		TaxAmount:          o.TaxAmount().StringFixed(2),
		ShippingCost:       o.ShippingCost.StringFixed(2),
		Total:              o.Total.StringFixed(2),
		PaidAmount:         o.PaidAmount.StringFixed(2),
		OutstandingBalance: o.OutstandingBalance().StringFixed(2),
		Status:             string(o.Status),
		CompletedAt:        o.CompletedAt,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func newOrderViews(orders []models.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for i := range orders {
		views = append(views, newOrderView(&orders[i]))
	}
	return views
}

type paymentView struct {
	PaymentID        string     `json:"payment_id"`
	OrderID          string     `json:"order_id"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	Method           string     `json:"method"`
	Gateway          string     `json:"gateway"`
	GatewayReference string     `json:"gateway_reference"`
	PaymentLink      string     `json:"payment_link"`
	ExpiresAt        time.Time  `json:"expires_at"`
	FinalizedAt      *time.Time `json:"finalized_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newPaymentView(p *models.Payment) paymentView {
	return paymentView{
		PaymentID:        p.ID,
		OrderID:          p.OrderID,
		Amount:           p.Amount.StringFixed(2),
		Currency:         p.Currency,
		Status:           string(p.Status),
		Method:           string(p.Method),
		Gateway:          p.GatewayName,
		GatewayReference: p.Reference(),
		PaymentLink:      p.PaymentLink,
		ExpiresAt:        p.ExpiresAt,
		FinalizedAt:      p.FinalizedAt,
		CreatedAt:        p.CreatedAt,
	}
}

type productView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newProductView(p *models.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
