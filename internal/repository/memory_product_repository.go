package repository

import (
	"context"
	"sort"
	"sync"

	"parts-shop/internal/domain"

	"github.com/google/uuid"
)

type catalogKey struct {
	category domain.Category
	name     string
}

// productEntry guards one product. Reserve and Release hold only this lock,
// so checkouts on different products never contend.
type productEntry struct {
	mu      sync.Mutex
	product domain.Product
	removed bool
}

type memoryProductRepository struct {
	// mu guards the maps. Lock order is mu, then entry.mu.
	mu      sync.RWMutex
	entries map[uuid.UUID]*productEntry
	byName  map[catalogKey]uuid.UUID
}

// NewMemoryProductRepository creates an in-process ProductRepository
func NewMemoryProductRepository() ProductRepository {
	return &memoryProductRepository{
		entries: make(map[uuid.UUID]*productEntry),
		byName:  make(map[catalogKey]uuid.UUID),
	}
}

func (r *memoryProductRepository) Create(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := catalogKey{product.Category, product.Name}
	if _, exists := r.byName[key]; exists {
		return ErrProductAlreadyExists
	}
	if _, exists := r.entries[product.ID]; exists {
		return ErrProductAlreadyExists
	}

	r.entries[product.ID] = &productEntry{product: *product}
	r.byName[key] = product.ID
	return nil
}

func (r *memoryProductRepository) Update(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[product.ID]
	if !ok {
		return ErrProductNotFound
	}

	newKey := catalogKey{product.Category, product.Name}
	if id, exists := r.byName[newKey]; exists && id != product.ID {
		return ErrProductAlreadyExists
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	delete(r.byName, catalogKey{entry.product.Category, entry.product.Name})
	r.byName[newKey] = product.ID

	createdAt := entry.product.CreatedAt
	entry.product = *product
	entry.product.CreatedAt = createdAt
	return nil
}

func (r *memoryProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return ErrProductNotFound
	}

	entry.mu.Lock()
	entry.removed = true
	delete(r.byName, catalogKey{entry.product.Category, entry.product.Name})
	entry.mu.Unlock()

	delete(r.entries, id)
	return nil
}

func (r *memoryProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	entry := r.entry(id)
	if entry == nil {
		return nil, ErrProductNotFound
	}
	return entry.snapshot()
}

func (r *memoryProductRepository) FindByName(ctx context.Context, category *domain.Category, name string) (*domain.Product, error) {
	categories := domain.Categories
	if category != nil {
		categories = []domain.Category{*category}
	}

	r.mu.RLock()
	var entry *productEntry
	for _, c := range categories {
		if id, ok := r.byName[catalogKey{c, name}]; ok {
			entry = r.entries[id]
			break
		}
	}
	r.mu.RUnlock()

	if entry == nil {
		return nil, ErrProductNotFound
	}
	return entry.snapshot()
}

func (r *memoryProductRepository) List(ctx context.Context, category *domain.Category) ([]*domain.Product, error) {
	return r.filter(func(p *domain.Product) bool {
		return category == nil || p.Category == *category
	}, func(a, b *domain.Product) bool {
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Name < b.Name
	}), nil
}

func (r *memoryProductRepository) LowStock(ctx context.Context, threshold int) ([]*domain.Product, error) {
	return r.filter(func(p *domain.Product) bool {
		return p.QuantityAvailable <= threshold
	}, func(a, b *domain.Product) bool {
		if a.QuantityAvailable != b.QuantityAvailable {
			return a.QuantityAvailable < b.QuantityAvailable
		}
		return a.Name < b.Name
	}), nil
}

func (r *memoryProductRepository) Reserve(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := r.entry(id)
	if entry == nil {
		return ErrProductNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return ErrProductNotFound
	}
	if entry.product.QuantityAvailable < quantity {
		return ErrInsufficientStock
	}
	entry.product.QuantityAvailable -= quantity
	return nil
}

func (r *memoryProductRepository) Release(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := r.entry(id)
	if entry == nil {
		return ErrProductNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return ErrProductNotFound
	}
	entry.product.QuantityAvailable += quantity
	return nil
}

func (r *memoryProductRepository) entry(id uuid.UUID) *productEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

func (r *memoryProductRepository) filter(keep func(*domain.Product) bool, less func(a, b *domain.Product) bool) []*domain.Product {
	r.mu.RLock()
	entries := make([]*productEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	products := []*domain.Product{}
	for _, entry := range entries {
		p, err := entry.snapshot()
		if err != nil {
			continue
		}
		if keep(p) {
			products = append(products, p)
		}
	}

	sort.Slice(products, func(i, j int) bool { return less(products[i], products[j]) })
	return products
}

func (e *productEntry) snapshot() (*domain.Product, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, ErrProductNotFound
	}
	p := e.product
	return &p, nil
}
