package transport

import (
	"net/http"
	"testing"

	"parts-shop/internal/domain"
	"parts-shop/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productBody(category, name string, price float64, quantity int) map[string]interface{} {
	return map[string]interface{}{
		"category":           category,
		"name":               name,
		"description":        "workshop stock",
		"price":              price,
		"quantity_available": quantity,
	}
}

func TestAdminProductLifecycle(t *testing.T) {
	api := newTestAPI(t)
	admin := api.loginAdmin(t)
	shopper := api.login(t, "alice")

	w := api.do(t, http.MethodPost, "/api/admin/products", shopper, productBody("part", "wiper", 12, 5))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodPost, "/api/admin/products", "", productBody("part", "wiper", 12, 5))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/admin/products", admin, productBody("part", "wiper", 12, 5))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.Product
	decodeBody(t, w, &created)
	assert.Equal(t, "wiper", created.Name)

	w = api.do(t, http.MethodPost, "/api/admin/products", admin, productBody("part", "wiper", 13, 1))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPut, "/api/admin/products/"+created.ID.String(), admin, productBody("part", "wiper", 14, 20))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/api/products/"+created.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched domain.Product
	decodeBody(t, w, &fetched)
	assert.InDelta(t, 14.0, fetched.Price, 0.001)
	assert.Equal(t, 20, fetched.QuantityAvailable)

	w = api.do(t, http.MethodDelete, "/api/admin/products/service/"+created.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(t, http.MethodDelete, "/api/admin/products/tyre/"+created.ID.String(), admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(t, http.MethodDelete, "/api/admin/products/part/"+created.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodGet, "/api/products/"+created.ID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminProductValidation(t *testing.T) {
	api := newTestAPI(t)
	admin := api.loginAdmin(t)

	w := api.do(t, http.MethodPost, "/api/admin/products", admin, productBody("tyre", "", -1, -5))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp middleware.ErrorResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "validation failed", resp.Error.Message)
	assert.Contains(t, resp.Error.Details, "validation_errors")

	w = api.do(t, http.MethodPost, "/api/admin/products", admin, `{"category":"part","name":"wiper","discount":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProductsByCategory(t *testing.T) {
	api := newTestAPI(t)
	stockProduct(t, api.repos, domain.CategoryPart, "wiper", 12, 5)
	stockProduct(t, api.repos, domain.CategoryPart, "brake-pad", 30, 5)
	stockProduct(t, api.repos, domain.CategoryService, "alignment", 60, 5)

	w := api.do(t, http.MethodGet, "/api/products?category=part", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var parts []domain.Product
	decodeBody(t, w, &parts)
	require.Len(t, parts, 2)
	assert.Equal(t, "brake-pad", parts[0].Name)

	w = api.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []domain.Product
	decodeBody(t, w, &all)
	assert.Len(t, all, 3)

	w = api.do(t, http.MethodGet, "/api/products?category=tyre", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
