package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parts-shop/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductAlreadyExists = errors.New("product with this name already exists in category")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
)

// ProductRepository is the catalog store.
//
// Reserve is the only path that decrements stock during checkout. It must
// perform the availability check and the decrement as one atomic step so two
// concurrent reservations can never both succeed on stock that only covers one.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	// FindByName looks a product up by name. A nil category probes every
	// category in domain.Categories order.
	FindByName(ctx context.Context, category *domain.Category, name string) (*domain.Product, error)
	List(ctx context.Context, category *domain.Category) ([]*domain.Product, error)
	LowStock(ctx context.Context, threshold int) ([]*domain.Product, error)
	Reserve(ctx context.Context, id uuid.UUID, quantity int) error
	Release(ctx context.Context, id uuid.UUID, quantity int) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a Postgres-backed ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, category, name, description, price, quantity_available, image_ref, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Category,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.QuantityAvailable,
		&product.ImageRef,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	return product, err
}

// Create inserts a new product
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Category,
		product.Name,
		product.Description,
		product.Price,
		product.QuantityAvailable,
		product.ImageRef,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "products_category_name_key") {
			return ErrProductAlreadyExists
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update overwrites the editable attributes of an existing product
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET category = $2, name = $3, description = $4, price = $5,
		    quantity_available = $6, image_ref = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Category,
		product.Name,
		product.Description,
		product.Price,
		product.QuantityAvailable,
		product.ImageRef,
		product.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "products_category_name_key") {
			return ErrProductAlreadyExists
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	return expectOneRow(result, ErrProductNotFound)
}

// Delete removes a product from the catalog
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	return expectOneRow(result, ErrProductNotFound)
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// FindByName retrieves a product by name within one category, or across all
// categories with parts taking precedence over services
func (r *productRepository) FindByName(ctx context.Context, category *domain.Category, name string) (*domain.Product, error) {
	var row *sql.Row
	if category != nil {
		query := `SELECT ` + productColumns + ` FROM products WHERE category = $1 AND name = $2`
		row = r.db.QueryRowContext(ctx, query, *category, name)
	} else {
		query := `
			SELECT ` + productColumns + `
			FROM products
			WHERE name = $1
			ORDER BY CASE category WHEN 'part' THEN 0 ELSE 1 END
			LIMIT 1
		`
		row = r.db.QueryRowContext(ctx, query, name)
	}

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by name: %w", err)
	}

	return product, nil
}

// List retrieves products ordered by name, optionally filtered by category
func (r *productRepository) List(ctx context.Context, category *domain.Category) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	args := []interface{}{}

	if category != nil {
		query += ` WHERE category = $1`
		args = append(args, *category)
	}
	query += ` ORDER BY category ASC, name ASC`

	return r.queryProducts(ctx, query, args...)
}

// LowStock lists products whose available quantity is at or below threshold
func (r *productRepository) LowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE quantity_available <= $1
		ORDER BY quantity_available ASC, name ASC
	`
	return r.queryProducts(ctx, query, threshold)
}

// Reserve decrements stock with a single conditional UPDATE. The WHERE clause
// carries the availability check, so Postgres row locking makes the check and
// the decrement one atomic step.
func (r *productRepository) Reserve(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	query := `
		UPDATE products
		SET quantity_available = quantity_available - $2, updated_at = NOW()
		WHERE id = $1 AND quantity_available >= $2
	`

	result, err := r.db.ExecContext(ctx, query, id, quantity)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientStock
		}
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check product existence: %w", err)
	}
	if !exists {
		return ErrProductNotFound
	}

	return ErrInsufficientStock
}

// Release re-increments stock taken by Reserve
func (r *productRepository) Release(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	query := `
		UPDATE products
		SET quantity_available = quantity_available + $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	return expectOneRow(result, ErrProductNotFound)
}

func (r *productRepository) queryProducts(ctx context.Context, query string, args ...interface{}) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}
