package services

import (
	"context"

	"tokopay/internal/models"
	"tokopay/internal/money"
	"tokopay/internal/repositories"
)

// ProductService handles business logic related to products.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.GetAll(ctx)
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateProduct creates a new product. Prices are stored with two decimal places.
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	product.Price = money.Round(product.Price)
	return s.repo.Create(ctx, product)
}

// UpdateProduct updates an existing product. Orders keep the price they were created with.
func (s *ProductService) UpdateProduct(ctx context.Context, product *models.Product) error {
	product.Price = money.Round(product.Price)
	return s.repo.Update(ctx, product)
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
