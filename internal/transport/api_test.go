package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"parts-shop/internal/config"
	"parts-shop/internal/idempotency"
	"parts-shop/internal/middleware"
	"parts-shop/internal/repository"
	"parts-shop/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testJWT = config.JWTConfig{Secret: "test-secret", AccessExpiry: 15, RefreshExpiry: 7}

// testAPI wires the handlers on memory repositories the same way the server does
type testAPI struct {
	router   http.Handler
	repos    *repository.Repositories
	users    service.UserService
	checkout service.CheckoutService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithRepos(t, repository.NewMemoryRepositories())
}

func newTestAPIWithRepos(t *testing.T, repos *repository.Repositories) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	users := service.NewUserService(repos.Users, repos.RefreshTokens, testJWT)
	checkout := service.NewCheckoutService(repos.Products, repos.Orders, idempotency.NewLocalGuard(), logger)
	catalog := service.NewCatalogService(repos.Products, logger)

	requireAuth := middleware.AuthMiddleware(testJWT.Secret, logger)
	optionalAuth := middleware.OptionalAuthMiddleware(testJWT.Secret, logger)

	r := chi.NewRouter()
	r.Use(middleware.ErrorHandlingMiddleware(logger))
	userHandler := NewUserHandler(users, checkout, logger)
	userHandler.RegisterRoutes(r, requireAuth)
	userHandler.RegisterAdminRoutes(r, requireAuth, middleware.RequireAdmin(logger))
	NewCheckoutHandler(checkout, logger).RegisterRoutes(r, optionalAuth, requireAuth, nil)
	NewProductHandler(catalog, logger).RegisterRoutes(r, requireAuth, middleware.RequireAdmin(logger))

	return &testAPI{router: r, repos: repos, users: users, checkout: checkout}
}

// login registers a shopper and returns an access token
func (a *testAPI) login(t *testing.T, username string) string {
	t.Helper()
	ctx := context.Background()
	_, err := a.users.Register(ctx, username, "", "password123")
	require.NoError(t, err)
	token, _, _, err := a.users.Login(ctx, username, "password123")
	require.NoError(t, err)
	return token
}

func (a *testAPI) loginAdmin(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := a.users.EnsureAdmin(ctx, "admin", "admin@localhost", "admin-password")
	require.NoError(t, err)
	token, _, _, err := a.users.Login(ctx, "admin", "admin-password")
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
