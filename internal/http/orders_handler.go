package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout, log: log}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	order, err := h.orders.CreateOrder(ctx, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListOrders(ctx, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNil(orders))
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/orders/{order_id}/items
func (h *OrdersHandler) GetOrderItems(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	items := order.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	respondJSON(w, http.StatusOK, items)
}

// GET /api/v1/orders/{order_id}/history
func (h *OrdersHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	history, err := h.orders.GetOrderHistory(ctx, order.ID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if history == nil {
		history = []domain.StatusChange{}
	}

	respondJSON(w, http.StatusOK, history)
}

// visibleOrder loads the order named in the path. Customers only see their
// own orders; someone else's order is reported as not found.
func (h *OrdersHandler) visibleOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return nil, false
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return nil, false
	}

	var order *domain.Order
	var err error
	if user.IsAdmin() {
		order, err = h.orders.GetOrder(ctx, orderID)
	} else {
		order, err = h.orders.GetUserOrder(ctx, orderID, user.ID)
	}
	if errors.Is(err, service.ErrOrderAccessDenied) {
		err = repository.ErrOrderNotFound
	}
	if err != nil {
		handleError(w, h.log, err)
		return nil, false
	}
	return order, true
}

// POST /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, orderID, userID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/admin/orders?status=
func (h *OrdersHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrdersByStatus(ctx, r.URL.Query().Get("status"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNil(orders))
}

// PUT /api/v1/admin/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, orderID, req.Status)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return orderID, true
}

func nonNil(orders []*domain.Order) []*domain.Order {
	if orders == nil {
		return []*domain.Order{}
	}
	return orders
}
