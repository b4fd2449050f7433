package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parts-shop/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newLimiter(t *testing.T, limit int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Minute,
		KeyPrefix:         "rate_limit:checkout",
	}
	return RateLimitMiddleware(client, config, zap.NewNop())(okHandler()), mr
}

func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("excessive requests are blocked with 429", prop.ForAll(
		func(requestsPerWindow int, excessRequests int) bool {
			handler, _ := newLimiter(t, requestsPerWindow)

			successCount, blockedCount := 0, 0
			for i := 0; i < requestsPerWindow+excessRequests; i++ {
				req := httptest.NewRequest("POST", "/api/checkout", nil)
				req.RemoteAddr = "192.168.1.100"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					successCount++
				case http.StatusTooManyRequests:
					blockedCount++
					if w.Header().Get("Retry-After") == "" {
						return false
					}
				}
			}

			return successCount == requestsPerWindow && blockedCount == excessRequests
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitKeysByPrincipal(t *testing.T) {
	handler, mr := newLimiter(t, 1)

	send := func(principal *domain.Principal) int {
		req := httptest.NewRequest("POST", "/api/checkout", nil)
		req.RemoteAddr = "10.0.0.1"
		if principal != nil {
			req = req.WithContext(WithPrincipal(req.Context(), principal))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	alice := &domain.Principal{ID: "alice"}
	bob := &domain.Principal{ID: "bob"}

	assert.Equal(t, http.StatusOK, send(alice))
	assert.Equal(t, http.StatusTooManyRequests, send(alice))
	// Same address, different principal
	assert.Equal(t, http.StatusOK, send(bob))
	assert.Equal(t, http.StatusOK, send(nil))

	assert.True(t, mr.Exists("rate_limit:checkout:user:alice"))
	assert.Greater(t, mr.TTL("rate_limit:checkout:user:alice"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, send(alice))
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	handler, mr := newLimiter(t, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/checkout", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
