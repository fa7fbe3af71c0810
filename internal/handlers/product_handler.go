package handlers

import (
	"tokopay/internal/models"
	"tokopay/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service  *services.ProductService
	validate *validator.Validate
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService) *ProductHandler {
	return &ProductHandler{
		service:  service,
		validate: newValidator(),
	}
}

type productRequest struct {
	Name        string          `json:"name" validate:"required,min=3,max=100"`
	Description string          `json:"description" validate:"omitempty,max=500"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

func (r productRequest) apply(p *models.Product) {
	p.Name = r.Name
	p.Description = r.Description
	p.Price = r.Price
	p.Stock = r.Stock
}

// RegisterRoutes registers the product routes behind auth.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	productRoutes := router.Group("/products", auth)
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Post("/", h.HandleCreateProduct)
	productRoutes.Put("/:id", h.HandleUpdateProduct)
	productRoutes.Delete("/:id", h.HandleDeleteProduct)
}

// HandleGetProducts retrieves all products.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.service.GetAllProducts(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	views := make([]productView, 0, len(products))
	for i := range products {
		views = append(views, newProductView(&products[i]))
	}
	return c.JSON(views)
}

// HandleGetProductByID retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	product, err := h.service.GetProductByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newProductView(product))
}

// HandleCreateProduct creates a new product.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	var product models.Product
	req.apply(&product)
	if err := h.service.CreateProduct(c.UserContext(), &product); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newProductView(&product))
}

// HandleUpdateProduct replaces the editable fields of a product.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	product, err := h.service.GetProductByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	req.apply(product)
	if err := h.service.UpdateProduct(c.UserContext(), product); err != nil {
		return respondError(c, err)
	}
	return c.JSON(newProductView(product))
}

// HandleDeleteProduct deletes a product. Existing orders keep their line items.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteProduct(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Product " + id + " deleted successfully",
	})
}
