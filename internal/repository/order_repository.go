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
	ErrOrderNotFound             = errors.New("order not found")
	ErrDuplicateIdempotencyToken = errors.New("order with this idempotency token already exists")
)

// OrderRepository is the append-only order ledger. Orders are never updated
// or deleted once appended.
type OrderRepository interface {
	Append(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByIdempotencyToken(ctx context.Context, principal, token string) (*domain.Order, error)
	ListByPrincipal(ctx context.Context, principal string) ([]*domain.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a Postgres-backed OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Append writes the order header and its line items in one transaction. The
// order is durable once Append returns nil.
func (r *orderRepository) Append(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO orders (id, principal, idempotency_token, total, created_at) VALUES ($1, $2, $3, $4, $5)`,
		order.ID,
		order.Principal,
		nullString(order.IdempotencyToken),
		order.Total,
		order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_principal_idempotency_token_key") {
			return ErrDuplicateIdempotencyToken
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, position, product_id, name, category, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare order item insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range order.LineItems {
		_, err := stmt.ExecContext(ctx, order.ID, i, item.ProductID, item.Name, item.Category, item.UnitPrice, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	return nil
}

// FindByID retrieves an order with its line items
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	orders, err := r.queryOrders(ctx, `WHERE o.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

// FindByIdempotencyToken retrieves the order committed for (principal, token)
func (r *orderRepository) FindByIdempotencyToken(ctx context.Context, principal, token string) (*domain.Order, error) {
	if token == "" {
		return nil, ErrOrderNotFound
	}

	orders, err := r.queryOrders(ctx, `WHERE o.principal = $1 AND o.idempotency_token = $2`, principal, token)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

// ListByPrincipal retrieves the principal's orders, oldest first
func (r *orderRepository) ListByPrincipal(ctx context.Context, principal string) ([]*domain.Order, error) {
	return r.queryOrders(ctx, `WHERE o.principal = $1`, principal)
}

func (r *orderRepository) queryOrders(ctx context.Context, where string, args ...interface{}) ([]*domain.Order, error) {
	query := `
		SELECT o.id, o.principal, COALESCE(o.idempotency_token, ''), o.total, o.created_at,
		       i.product_id, i.name, i.category, i.unit_price, i.quantity
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		` + where + `
		ORDER BY o.created_at ASC, o.id ASC, i.position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	var current *domain.Order
	for rows.Next() {
		var (
			header domain.Order
			item   domain.LineItem
		)
		err := rows.Scan(
			&header.ID,
			&header.Principal,
			&header.IdempotencyToken,
			&header.Total,
			&header.CreatedAt,
			&item.ProductID,
			&item.Name,
			&item.Category,
			&item.UnitPrice,
			&item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		if current == nil || current.ID != header.ID {
			current = &header
			orders = append(orders, current)
		}
		current.LineItems = append(current.LineItems, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}
