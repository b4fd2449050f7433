package repository

import (
	"context"
	"sync"

	"parts-shop/internal/domain"

	"github.com/google/uuid"
)

type tokenKey struct {
	principal string
	token     string
}

type memoryOrderRepository struct {
	mu          sync.RWMutex
	orders      map[uuid.UUID]*domain.Order
	byPrincipal map[string][]uuid.UUID
	byToken     map[tokenKey]uuid.UUID
}

// NewMemoryOrderRepository creates an in-process OrderRepository. Orders live
// only as long as the process.
func NewMemoryOrderRepository() OrderRepository {
	return &memoryOrderRepository{
		orders:      make(map[uuid.UUID]*domain.Order),
		byPrincipal: make(map[string][]uuid.UUID),
		byToken:     make(map[tokenKey]uuid.UUID),
	}
}

func (r *memoryOrderRepository) Append(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if order.IdempotencyToken != "" {
		key := tokenKey{order.Principal, order.IdempotencyToken}
		if _, exists := r.byToken[key]; exists {
			return ErrDuplicateIdempotencyToken
		}
		r.byToken[key] = order.ID
	}

	r.orders[order.ID] = cloneOrder(order)
	r.byPrincipal[order.Principal] = append(r.byPrincipal[order.Principal], order.ID)
	return nil
}

func (r *memoryOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *memoryOrderRepository) FindByIdempotencyToken(ctx context.Context, principal, token string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[tokenKey{principal, token}]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

// ListByPrincipal returns orders in append order, which is creation order
func (r *memoryOrderRepository) ListByPrincipal(ctx context.Context, principal string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byPrincipal[principal]
	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, cloneOrder(r.orders[id]))
	}
	return orders, nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	c := *order
	c.LineItems = append([]domain.LineItem(nil), order.LineItems...)
	return &c
}
