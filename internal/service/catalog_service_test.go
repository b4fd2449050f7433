package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"parts-shop/internal/domain"
	"parts-shop/internal/logger"
	"parts-shop/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var admin = &domain.Principal{ID: uuid.NewString(), Username: "admin", IsAdmin: true}

func newCatalog() (CatalogService, repository.ProductRepository) {
	products := repository.NewMemoryProductRepository()
	return NewCatalogService(products, zap.NewNop()), products
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	catalog, _ := newCatalog()
	ctx := context.Background()
	product := &domain.Product{Category: domain.CategoryPart, Name: "wiper", Price: 12, QuantityAvailable: 5}

	_, err := catalog.AddProduct(ctx, alice, product)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = catalog.AddProduct(ctx, nil, product)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = catalog.UpdateProduct(ctx, alice, product)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, catalog.RemoveProduct(ctx, alice, domain.CategoryPart, uuid.New()), ErrForbidden)

	products, err := catalog.ListProducts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestAddProductValidates(t *testing.T) {
	catalog, _ := newCatalog()
	ctx := context.Background()

	tests := []struct {
		name    string
		product domain.Product
	}{
		{"blank name", domain.Product{Category: domain.CategoryPart, Name: " ", Price: 1}},
		{"unknown category", domain.Product{Category: "tyre", Name: "winter", Price: 1}},
		{"negative price", domain.Product{Category: domain.CategoryPart, Name: "wiper", Price: -0.5}},
		{"negative stock", domain.Product{Category: domain.CategoryPart, Name: "wiper", Price: 1, QuantityAvailable: -1}},
		{"price beyond storage range", domain.Product{Category: domain.CategoryPart, Name: "wiper", Price: MaxProductPrice + 1}},
		{"stock beyond storage range", domain.Product{Category: domain.CategoryPart, Name: "wiper", Price: 1, QuantityAvailable: MaxLineQuantity + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product := tt.product
			_, err := catalog.AddProduct(ctx, admin, &product)
			assert.ErrorIs(t, err, ErrInvalidProduct)
		})
	}
}

func TestCatalogLifecycle(t *testing.T) {
	catalog, _ := newCatalog()
	ctx := context.Background()

	created, err := catalog.AddProduct(ctx, admin, &domain.Product{
		Category:          domain.CategoryService,
		Name:              " alignment ",
		Price:             60,
		QuantityAvailable: 4,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "alignment", created.Name)

	_, err = catalog.AddProduct(ctx, admin, &domain.Product{Category: domain.CategoryService, Name: "alignment", Price: 1})
	assert.ErrorIs(t, err, repository.ErrProductAlreadyExists)

	// Same name in the other category is a different line
	_, err = catalog.AddProduct(ctx, admin, &domain.Product{Category: domain.CategoryPart, Name: "alignment", Price: 1})
	require.NoError(t, err)

	update := *created
	update.Price = 65
	update.QuantityAvailable = 10
	updated, err := catalog.UpdateProduct(ctx, admin, &update)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	got, err := catalog.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.InDelta(t, 65.0, got.Price, 0.001)
	assert.Equal(t, 10, got.QuantityAvailable)

	services := domain.CategoryService
	listed, err := catalog.ListProducts(ctx, &services)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	assert.ErrorIs(t, catalog.RemoveProduct(ctx, admin, domain.CategoryPart, created.ID), repository.ErrProductNotFound)
	require.NoError(t, catalog.RemoveProduct(ctx, admin, domain.CategoryService, created.ID))

	_, err = catalog.GetProduct(ctx, created.ID)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	missing := update
	missing.ID = uuid.New()
	_, err = catalog.UpdateProduct(ctx, admin, &missing)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	bad := domain.Category("tyre")
	_, err = catalog.ListProducts(ctx, &bad)
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestRestockedProductCanBeBought(t *testing.T) {
	s := newShop(t)
	catalog := NewCatalogService(s.products, zap.NewNop())
	ctx := context.Background()

	wiper, err := catalog.AddProduct(ctx, admin, &domain.Product{Category: domain.CategoryPart, Name: "wiper", Price: 12})
	require.NoError(t, err)

	_, err = s.checkout.Checkout(ctx, alice, cart(item("wiper", 12, 1)))
	assert.ErrorIs(t, err, ErrInsufficientStock)

	wiper.QuantityAvailable = 3
	_, err = catalog.UpdateProduct(ctx, admin, wiper)
	require.NoError(t, err)

	_, err = s.checkout.Checkout(ctx, alice, cart(item("wiper", 12, 3)))
	require.NoError(t, err)
}

func TestInventoryMonitorScan(t *testing.T) {
	s := newShop(t)
	s.stock(t, domain.CategoryPart, "wiper", 12, 2)
	s.stock(t, domain.CategoryPart, "oil-filter", 8, 50)
	s.stock(t, domain.CategoryService, "alignment", 60, 0)

	var buf bytes.Buffer
	monitor := NewInventoryMonitor(s.products, 5, "@every 1h", logger.NewWithWriter(&buf, zapcore.InfoLevel))

	low, err := monitor.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 2)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Low stock"))
	assert.Contains(t, out, "wiper")
	assert.Contains(t, out, "alignment")
	assert.NotContains(t, out, "oil-filter")
}

func TestInventoryMonitorStartStop(t *testing.T) {
	monitor := NewInventoryMonitor(repository.NewMemoryProductRepository(), 5, "*/1 * * * * *", zap.NewNop())
	require.NoError(t, monitor.Start())
	monitor.Stop()

	bad := NewInventoryMonitor(repository.NewMemoryProductRepository(), 5, "not a schedule", zap.NewNop())
	assert.Error(t, bad.Start())
}
