package transport

import (
	"errors"
	"net/http"
	"strings"

	"parts-shop/internal/domain"
	"parts-shop/internal/middleware"
	"parts-shop/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutRequest is the checkout payload
type CheckoutRequest struct {
	Cart             []domain.CartItem `json:"cart"`
	IdempotencyToken string            `json:"idempotency_token,omitempty"`
}

// CheckoutResponse is returned for every checkout outcome. OrderID and Total
// are only set on success, Reason only on failure.
type CheckoutResponse struct {
	Status  string   `json:"status"`
	OrderID string   `json:"order_id,omitempty"`
	Total   *float64 `json:"total,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// CheckoutHandler serves checkout and order history
type CheckoutHandler struct {
	checkoutService service.CheckoutService
	logger          *zap.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(checkoutService service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		logger:          logger,
	}
}

// RegisterRoutes registers checkout and order routes. Checkout runs behind
// optional auth so an anonymous caller gets the checkout error shape.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router, optionalAuth, requireAuth func(http.Handler) http.Handler, limiter func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth)
		if limiter != nil {
			r.Use(limiter)
		}
		r.Post("/api/checkout", h.Checkout)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
	})
}

// Checkout handles cart submission
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.respondCheckoutError(w, service.ErrUnauthenticated)
		return
	}

	var req CheckoutRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		h.logger.Debug("Checkout decode failed", zap.Error(err))
		middleware.RespondWithJSON(w, http.StatusBadRequest, CheckoutResponse{
			Status: "error",
			Reason: "invalid request body",
		})
		return
	}

	token := req.IdempotencyToken
	if header := strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader)); header != "" {
		token = header
	}

	order, err := h.checkoutService.Checkout(r.Context(), principal, service.CheckoutRequest{
		Cart:             req.Cart,
		IdempotencyToken: token,
	})
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}

	total := order.Total
	middleware.RespondWithJSON(w, http.StatusOK, CheckoutResponse{
		Status:  "success",
		OrderID: order.ID.String(),
		Total:   &total,
	})
}

func (h *CheckoutHandler) respondCheckoutError(w http.ResponseWriter, err error) {
	status, reason := checkoutFailure(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Checkout failed", zap.Error(err))
	} else {
		h.logger.Debug("Checkout rejected", zap.Error(err))
	}
	middleware.RespondWithJSON(w, status, CheckoutResponse{Status: "error", Reason: reason})
}

// checkoutFailure maps an engine error to a status code and a message that
// is safe to show to the client
func checkoutFailure(err error) (int, string) {
	var itemErr *service.ItemError
	item := ""
	if errors.As(err, &itemErr) {
		item = itemErr.Name
	}

	withItem := func(msg string) string {
		if item == "" {
			return msg
		}
		return msg + ": " + item
	}

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest, "cart is empty"
	case errors.Is(err, service.ErrInvalidItem):
		return http.StatusBadRequest, withItem("invalid cart item")
	case errors.Is(err, service.ErrUnknownProduct):
		return http.StatusBadRequest, withItem("unknown product")
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusBadRequest, withItem("insufficient stock")
	case errors.Is(err, service.ErrOrderTooLarge):
		return http.StatusBadRequest, "order total is too large"
	case errors.Is(err, service.ErrInvalidIdempotencyToken):
		return http.StatusBadRequest, "idempotency token is too long"
	case errors.Is(err, service.ErrCheckoutInProgress):
		return http.StatusConflict, "a checkout with this idempotency token is already in progress"
	default:
		return http.StatusServiceUnavailable, "order could not be recorded, please retry"
	}
}

// ListOrders returns the caller's orders, oldest first
func (h *CheckoutHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())

	orders, err := h.checkoutService.ListOrders(r.Context(), principal)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "failed to list orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// GetOrder returns one of the caller's orders
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.checkoutService.GetOrder(r.Context(), principal, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, service.ErrOrderNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		default:
			h.logger.Error("Failed to get order", zap.Error(err))
			middleware.RespondWithError(w, http.StatusServiceUnavailable, "failed to get order")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}
