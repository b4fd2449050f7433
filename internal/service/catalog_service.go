package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"parts-shop/internal/domain"
	"parts-shop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxProductPrice is the largest price the products table can hold
const MaxProductPrice = 9_999_999_999.99

// CatalogService exposes the catalog to shoppers and admins
type CatalogService interface {
	AddProduct(ctx context.Context, actor *domain.Principal, product *domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, actor *domain.Principal, product *domain.Product) (*domain.Product, error)
	RemoveProduct(ctx context.Context, actor *domain.Principal, category domain.Category, id uuid.UUID) error
	ListProducts(ctx context.Context, category *domain.Category) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
}

type catalogService struct {
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(products repository.ProductRepository, logger *zap.Logger) CatalogService {
	return &catalogService{products: products, logger: logger}
}

func requireAdmin(actor *domain.Principal) error {
	if actor == nil || actor.ID == "" {
		return ErrUnauthenticated
	}
	if !actor.IsAdmin {
		return ErrForbidden
	}
	return nil
}

func validateProduct(product *domain.Product) error {
	product.Name = strings.TrimSpace(product.Name)
	switch {
	case product.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case !product.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidProduct, product.Category)
	case product.Price < 0 || math.IsNaN(product.Price) || math.IsInf(product.Price, 0):
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case product.Price > MaxProductPrice:
		return fmt.Errorf("%w: price is too large", ErrInvalidProduct)
	case product.QuantityAvailable < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidProduct)
	case product.QuantityAvailable > MaxLineQuantity:
		return fmt.Errorf("%w: quantity is too large", ErrInvalidProduct)
	}
	return nil
}

// AddProduct creates a catalog line with a fresh id
func (s *catalogService) AddProduct(ctx context.Context, actor *domain.Principal, product *domain.Product) (*domain.Product, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product.ID = uuid.New()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add product: %w", err)
	}

	s.logger.Info("Product added",
		zap.String("admin", actor.Username),
		zap.String("product_id", product.ID.String()),
		zap.String("category", string(product.Category)),
		zap.String("name", product.Name),
	)
	return product, nil
}

// UpdateProduct overwrites an existing line. The quantity is set, not added.
func (s *catalogService) UpdateProduct(ctx context.Context, actor *domain.Principal, product *domain.Product) (*domain.Product, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	existing, err := s.products.FindByID(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	if err := s.products.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrProductAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("Product updated",
		zap.String("admin", actor.Username),
		zap.String("product_id", product.ID.String()),
		zap.Int("quantity_available", product.QuantityAvailable),
	)
	return product, nil
}

func (s *catalogService) RemoveProduct(ctx context.Context, actor *domain.Principal, category domain.Category, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	existing, err := s.products.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Category != category {
		return repository.ErrProductNotFound
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Product removed",
		zap.String("admin", actor.Username),
		zap.String("product_id", id.String()),
	)
	return nil
}

func (s *catalogService) ListProducts(ctx context.Context, category *domain.Category) ([]*domain.Product, error) {
	if category != nil && !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidProduct, *category)
	}
	products, err := s.products.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}
