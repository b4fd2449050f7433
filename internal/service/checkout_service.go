package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"parts-shop/internal/domain"
	"parts-shop/internal/idempotency"
	"parts-shop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Limits of the persisted order columns. Carts beyond them are rejected as
// invalid before any stock is reserved.
const (
	MaxLineQuantity        = math.MaxInt32
	MaxIdempotencyTokenLen = 255
	MaxOrderTotal          = 999_999_999_999.99
)

// CheckoutRequest is an untrusted cart plus an optional idempotency token
type CheckoutRequest struct {
	Cart             []domain.CartItem
	IdempotencyToken string
}

// CheckoutService converts carts into committed orders
type CheckoutService interface {
	Checkout(ctx context.Context, principal *domain.Principal, req CheckoutRequest) (*domain.Order, error)
	ListOrders(ctx context.Context, principal *domain.Principal) ([]*domain.Order, error)
	GetOrder(ctx context.Context, principal *domain.Principal, id uuid.UUID) (*domain.Order, error)
}

type checkoutService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	guard    idempotency.Guard
	logger   *zap.Logger
	now      func() time.Time
}

// NewCheckoutService creates the order fulfillment engine
func NewCheckoutService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	guard idempotency.Guard,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		products: products,
		orders:   orders,
		guard:    guard,
		logger:   logger,
		now:      time.Now,
	}
}

// resolvedLine is a cart line priced from the catalog
type resolvedLine struct {
	product  *domain.Product
	quantity int
}

func (s *checkoutService) Checkout(ctx context.Context, principal *domain.Principal, req CheckoutRequest) (*domain.Order, error) {
	if principal == nil || principal.ID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateCart(req.Cart); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(req.IdempotencyToken)
	if len(token) > MaxIdempotencyTokenLen {
		return nil, ErrInvalidIdempotencyToken
	}
	if token != "" {
		release, err := s.guard.Acquire(ctx, idempotency.Key(principal.ID, token))
		switch {
		case errors.Is(err, idempotency.ErrLockTimeout):
			return nil, ErrCheckoutInProgress
		case err != nil:
			// The ledger's unique token index still rejects a duplicate commit
			s.logger.Warn("Idempotency guard unavailable, continuing without it",
				zap.String("principal", principal.ID),
				zap.Error(err),
			)
		default:
			defer release()
		}

		existing, err := s.orders.FindByIdempotencyToken(ctx, principal.ID, token)
		switch {
		case err == nil:
			s.logger.Info("Replaying committed order",
				zap.String("principal", principal.ID),
				zap.String("order_id", existing.ID.String()),
			)
			return existing, nil
		case !errors.Is(err, repository.ErrOrderNotFound):
			s.logger.Error("Failed to look up idempotency token", zap.Error(err))
			return nil, ErrLedgerUnavailable
		}
	}

	lines, err := s.resolve(ctx, req.Cart)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, line := range lines {
		total += line.product.Price * float64(line.quantity)
	}
	total = roundCents(total)
	if total > MaxOrderTotal {
		return nil, ErrOrderTooLarge
	}

	if err := s.reserve(ctx, lines); err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:               uuid.New(),
		Principal:        principal.ID,
		IdempotencyToken: token,
		LineItems:        make([]domain.LineItem, 0, len(lines)),
		Total:            total,
		CreatedAt:        s.now().UTC(),
	}
	for _, line := range lines {
		order.LineItems = append(order.LineItems, domain.LineItem{
			ProductID: line.product.ID,
			Name:      line.product.Name,
			Category:  line.product.Category,
			UnitPrice: line.product.Price,
			Quantity:  line.quantity,
		})
	}

	if err := s.orders.Append(ctx, order); err != nil {
		s.compensate(ctx, lines)

		if errors.Is(err, repository.ErrDuplicateIdempotencyToken) {
			winner, findErr := s.orders.FindByIdempotencyToken(context.WithoutCancel(ctx), principal.ID, token)
			if findErr == nil {
				return winner, nil
			}
			s.logger.Error("Failed to load order for duplicate token", zap.Error(findErr))
		} else {
			s.logger.Error("Failed to append order, reservations released",
				zap.String("principal", principal.ID),
				zap.Error(err),
			)
		}
		return nil, ErrLedgerUnavailable
	}

	s.logger.Info("Order committed",
		zap.String("order_id", order.ID.String()),
		zap.String("principal", principal.ID),
		zap.Int("lines", len(order.LineItems)),
		zap.Float64("total", order.Total),
	)
	return order, nil
}

func validateCart(cart []domain.CartItem) error {
	if len(cart) == 0 {
		return ErrEmptyCart
	}
	for _, item := range cart {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return itemError(item.Name, ErrInvalidItem)
		}
		if item.Quantity <= 0 || item.Quantity > MaxLineQuantity {
			return itemError(name, ErrInvalidItem)
		}
		if item.UnitPrice < 0 || math.IsNaN(item.UnitPrice) || math.IsInf(item.UnitPrice, 0) {
			return itemError(name, ErrInvalidItem)
		}
		if item.Category != "" && !item.Category.Valid() {
			return itemError(name, ErrInvalidItem)
		}
	}
	return nil
}

// resolve prices every line from the catalog and merges repeated products.
// Line order follows the first occurrence in the cart.
func (s *checkoutService) resolve(ctx context.Context, cart []domain.CartItem) ([]resolvedLine, error) {
	lines := make([]resolvedLine, 0, len(cart))
	index := make(map[uuid.UUID]int, len(cart))

	for _, item := range cart {
		name := strings.TrimSpace(item.Name)
		var category *domain.Category
		if item.Category != "" {
			c := item.Category
			category = &c
		}

		product, err := s.products.FindByName(ctx, category, name)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, itemError(name, ErrUnknownProduct)
			}
			s.logger.Error("Failed to resolve cart item", zap.String("name", name), zap.Error(err))
			return nil, ErrLedgerUnavailable
		}

		if i, ok := index[product.ID]; ok {
			if lines[i].quantity > MaxLineQuantity-item.Quantity {
				return nil, itemError(name, ErrInvalidItem)
			}
			lines[i].quantity += item.Quantity
			continue
		}
		index[product.ID] = len(lines)
		lines = append(lines, resolvedLine{product: product, quantity: item.Quantity})
	}
	return lines, nil
}

// reserve takes stock for every line in ascending product id order. On any
// failure the reservations already taken are released before returning.
func (s *checkoutService) reserve(ctx context.Context, lines []resolvedLine) error {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		x, y := lines[order[a]].product.ID, lines[order[b]].product.ID
		return bytes.Compare(x[:], y[:]) < 0
	})

	taken := make([]resolvedLine, 0, len(lines))
	for _, i := range order {
		line := lines[i]
		err := s.products.Reserve(ctx, line.product.ID, line.quantity)
		if err == nil {
			taken = append(taken, line)
			continue
		}

		s.compensate(ctx, taken)
		if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrProductNotFound) {
			s.logger.Debug("Reservation rejected",
				zap.String("product", line.product.Name),
				zap.Int("quantity", line.quantity),
				zap.Error(err),
			)
			return itemError(line.product.Name, ErrInsufficientStock)
		}
		s.logger.Error("Failed to reserve stock", zap.String("product", line.product.Name), zap.Error(err))
		return ErrLedgerUnavailable
	}
	return nil
}

// compensate releases the reservations of lines. It must finish even when the
// request context is cancelled.
func (s *checkoutService) compensate(ctx context.Context, lines []resolvedLine) {
	ctx = context.WithoutCancel(ctx)
	for _, line := range lines {
		if err := s.products.Release(ctx, line.product.ID, line.quantity); err != nil {
			s.logger.Error("CRITICAL: failed to release reserved stock",
				zap.String("product_id", line.product.ID.String()),
				zap.Int("quantity", line.quantity),
				zap.Error(err),
			)
		}
	}
}

func (s *checkoutService) ListOrders(ctx context.Context, principal *domain.Principal) ([]*domain.Order, error) {
	if principal == nil || principal.ID == "" {
		return nil, ErrUnauthenticated
	}
	orders, err := s.orders.ListByPrincipal(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder only returns orders owned by principal
func (s *checkoutService) GetOrder(ctx context.Context, principal *domain.Principal, id uuid.UUID) (*domain.Order, error) {
	if principal == nil || principal.ID == "" {
		return nil, ErrUnauthenticated
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order.Principal != principal.ID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
