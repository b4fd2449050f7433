package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"parts-shop/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestProduct(category domain.Category, name string, price float64, quantity int) *domain.Product {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Product{
		ID:                uuid.New(),
		Category:          category,
		Name:              name,
		Description:       "test " + name,
		Price:             price,
		QuantityAvailable: quantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// catalogStores runs fn against every ProductRepository implementation
func catalogStores(t *testing.T, fn func(t *testing.T, repo ProductRepository)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryProductRepository())
	})
	t.Run("postgres", func(t *testing.T) {
		db := requireDB(t)
		_, err := db.Exec(`DELETE FROM products`)
		require.NoError(t, err)
		fn(t, NewProductRepository(db))
	})
}

func TestReserveNeverOversells(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		ctx := context.Background()
		product := newTestProduct(domain.CategoryPart, "brake-pad", 25, 50)
		require.NoError(t, repo.Create(ctx, product))

		var reserved int64
		var g errgroup.Group
		for i := 0; i < 40; i++ {
			quantity := i%3 + 1
			g.Go(func() error {
				err := repo.Reserve(ctx, product.ID, quantity)
				switch {
				case err == nil:
					atomic.AddInt64(&reserved, int64(quantity))
					return nil
				case errors.Is(err, ErrInsufficientStock):
					return nil
				default:
					return err
				}
			})
		}
		require.NoError(t, g.Wait())

		stored, err := repo.FindByID(ctx, product.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stored.QuantityAvailable, 0)
		assert.LessOrEqual(t, reserved, int64(50))
		assert.Equal(t, 50-int(reserved), stored.QuantityAvailable)
	})
}

func TestReserveTwoBuyersOneWins(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		ctx := context.Background()
		product := newTestProduct(domain.CategoryPart, "brake-pad", 25, 5)
		require.NoError(t, repo.Create(ctx, product))

		results := make([]error, 2)
		var g errgroup.Group
		for i := range results {
			g.Go(func() error {
				results[i] = repo.Reserve(ctx, product.ID, 3)
				return nil
			})
		}
		require.NoError(t, g.Wait())

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, ErrInsufficientStock)
			}
		}
		assert.Equal(t, 1, succeeded)

		stored, err := repo.FindByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.QuantityAvailable)
	})
}

func TestReserveAndRelease(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		ctx := context.Background()
		product := newTestProduct(domain.CategoryService, "oil-change", 40, 3)
		require.NoError(t, repo.Create(ctx, product))

		assert.ErrorIs(t, repo.Reserve(ctx, product.ID, 4), ErrInsufficientStock)
		assert.ErrorIs(t, repo.Reserve(ctx, product.ID, 0), ErrInvalidQuantity)
		assert.ErrorIs(t, repo.Reserve(ctx, uuid.New(), 1), ErrProductNotFound)
		assert.ErrorIs(t, repo.Release(ctx, uuid.New(), 1), ErrProductNotFound)

		require.NoError(t, repo.Reserve(ctx, product.ID, 3))
		stored, err := repo.FindByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.QuantityAvailable)

		require.NoError(t, repo.Release(ctx, product.ID, 2))
		stored, err = repo.FindByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.QuantityAvailable)
	})
}

func TestReserveAfterDelete(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		ctx := context.Background()
		product := newTestProduct(domain.CategoryPart, "wiper", 9.5, 5)
		require.NoError(t, repo.Create(ctx, product))
		require.NoError(t, repo.Delete(ctx, product.ID))

		assert.ErrorIs(t, repo.Reserve(ctx, product.ID, 1), ErrProductNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, product.ID), ErrProductNotFound)
		_, err := repo.FindByID(ctx, product.ID)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestFindByNamePrefersParts(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		ctx := context.Background()
		service := newTestProduct(domain.CategoryService, "alignment", 60, 10)
		part := newTestProduct(domain.CategoryPart, "alignment", 15, 10)
		require.NoError(t, repo.Create(ctx, service))
		require.NoError(t, repo.Create(ctx, part))

		found, err := repo.FindByName(ctx, nil, "alignment")
		require.NoError(t, err)
		assert.Equal(t, part.ID, found.ID)

		category := domain.CategoryService
		found, err = repo.FindByName(ctx, &category, "alignment")
		require.NoError(t, err)
		assert.Equal(t, service.ID, found.ID)

		_, err = repo.FindByName(ctx, nil, "missing")
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestNameIsUniqueWithinCategory(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		ctx := context.Background()
		first := newTestProduct(domain.CategoryPart, "spark-plug", 4, 10)
		require.NoError(t, repo.Create(ctx, first))

		dup := newTestProduct(domain.CategoryPart, "spark-plug", 5, 1)
		assert.ErrorIs(t, repo.Create(ctx, dup), ErrProductAlreadyExists)

		other := newTestProduct(domain.CategoryPart, "air-filter", 12, 3)
		require.NoError(t, repo.Create(ctx, other))
		other.Name = "spark-plug"
		assert.ErrorIs(t, repo.Update(ctx, other), ErrProductAlreadyExists)
	})
}

func TestListAndLowStock(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newTestProduct(domain.CategoryPart, "b-part", 1, 2)))
		require.NoError(t, repo.Create(ctx, newTestProduct(domain.CategoryPart, "a-part", 1, 20)))
		require.NoError(t, repo.Create(ctx, newTestProduct(domain.CategoryService, "a-service", 1, 0)))

		category := domain.CategoryPart
		parts, err := repo.List(ctx, &category)
		require.NoError(t, err)
		require.Len(t, parts, 2)
		assert.Equal(t, "a-part", parts[0].Name)
		assert.Equal(t, "b-part", parts[1].Name)

		all, err := repo.List(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		low, err := repo.LowStock(ctx, 5)
		require.NoError(t, err)
		require.Len(t, low, 2)
		assert.Equal(t, "a-service", low[0].Name)
		assert.Equal(t, "b-part", low[1].Name)
	})
}

func TestProperty_ProductUpdatesAreReflected(t *testing.T) {
	catalogStores(t, func(t *testing.T, repo ProductRepository) {
		properties := gopter.NewProperties(nil)

		properties.Property("update then find returns the new attributes", prop.ForAll(
			func(name1, name2 string, price float64, stock int) bool {
				ctx := context.Background()
				product := newTestProduct(domain.CategoryPart, name1+uuid.NewString(), 1, 1)
				if err := repo.Create(ctx, product); err != nil {
					t.Logf("FAIL: create: %v", err)
					return false
				}
				defer repo.Delete(ctx, product.ID)

				product.Name = name2 + uuid.NewString()
				product.Price = price
				product.QuantityAvailable = stock
				product.UpdatedAt = time.Now().UTC()
				if err := repo.Update(ctx, product); err != nil {
					t.Logf("FAIL: update: %v", err)
					return false
				}

				stored, err := repo.FindByID(ctx, product.ID)
				if err != nil {
					t.Logf("FAIL: find: %v", err)
					return false
				}

				return stored.Name == product.Name &&
					stored.Price > price-0.01 && stored.Price < price+0.01 &&
					stored.QuantityAvailable == stock
			},
			gen.RegexMatch(`[A-Za-z0-9 ]{3,30}`),
			gen.RegexMatch(`[A-Za-z0-9 ]{3,30}`),
			gen.Float64Range(0, 9999.99),
			gen.IntRange(0, 1000),
		))

		properties.TestingRun(t, gopter.ConsoleReporter(false))
	})
}
