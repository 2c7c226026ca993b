package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/platform/httpx"
	"github.com/roastline/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusPaid:       {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusCompleted:  {},
	domain.OrderStatusCancelled:  {},
}

type createOrderRequest struct {
	OrderID      string `json:"order_id"`
	CustomerName string `json:"customer_name"`
	Items        []struct {
		Type      string  `json:"type"`
		ProductID string  `json:"product_id"`
		ServiceID string  `json:"service_id"`
		Quantity  int     `json:"quantity"`
		WeightKg  float64 `json:"weight_kg"`
	} `json:"items"`
	Shipping *struct {
		Address    string `json:"address"`
		Coordinate *struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"coordinate"`
		DistanceKm float64 `json:"distance_km"`
		Cost       int64   `json:"cost"`
		Service    string  `json:"service"`
		Mode       string  `json:"mode"`
	} `json:"shipping"`
	Status   string         `json:"status"`
	Notes    string         `json:"notes"`
	Metadata map[string]any `json:"metadata"`
}

type cancelOrderRequest struct {
	Reason         string `json:"reason"`
	ExpectedStatus string `json:"expected_status"`
}

// OrderHandlers exposes order endpoints for authenticated customers.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService

	// createMiddleware guards order creation against duplicate submissions.
	createMiddleware func(http.Handler) http.Handler
}

// OrderHandlersOption customises order handler construction.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderCreateMiddleware wraps the order creation endpoint, typically with
// the idempotency guard.
func WithOrderCreateMiddleware(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.createMiddleware = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth)
	}
	if h.createMiddleware != nil {
		r.With(h.createMiddleware).Post("/", h.createOrder)
	} else {
		r.Post("/", h.createOrder)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			Type:      domain.LineItemType(strings.TrimSpace(strings.ToLower(item.Type))),
			ProductID: strings.TrimSpace(item.ProductID),
			ServiceID: strings.TrimSpace(item.ServiceID),
			Quantity:  item.Quantity,
			WeightKg:  item.WeightKg,
		})
	}

	cmd := services.CreateOrderCommand{
		OrderID:      strings.TrimSpace(req.OrderID),
		UserID:       identity.UserID,
		CustomerName: strings.TrimSpace(req.CustomerName),
		Items:        items,
		Status:       domain.OrderStatus(strings.TrimSpace(strings.ToLower(req.Status))),
		Notes:        strings.TrimSpace(req.Notes),
		Metadata:     cloneMap(req.Metadata),
		ActorID:      identity.UserID,
	}
	if req.Shipping != nil {
		shipping := services.OrderShippingInput{
			Address:    strings.TrimSpace(req.Shipping.Address),
			DistanceKm: req.Shipping.DistanceKm,
			Cost:       req.Shipping.Cost,
			Service:    domain.ShippingServiceLevel(strings.TrimSpace(strings.ToLower(req.Shipping.Service))),
			Mode:       domain.ShipmentMode(strings.TrimSpace(strings.ToLower(req.Shipping.Mode))),
		}
		if req.Shipping.Coordinate != nil {
			shipping.Coordinate = &domain.Coordinate{
				Lat: req.Shipping.Coordinate.Lat,
				Lng: req.Shipping.Coordinate.Lng,
			}
		}
		cmd.Shipping = &shipping
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	filter, err := buildOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.UserID = identity.UserID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	// Customers only ever see their own orders; a foreign id reads as absent.
	if !identity.IsAdmin() && !strings.EqualFold(strings.TrimSpace(order.UserID), identity.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !identity.IsAdmin() && !strings.EqualFold(strings.TrimSpace(order.UserID), identity.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	cmd := services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: identity.UserID,
		Reason:  strings.TrimSpace(req.Reason),
	}
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}

	cancelled, err := h.orders.Cancel(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Currency     string `json:"currency"`
	Subtotal     int64  `json:"subtotal"`
	ShippingCost int64  `json:"shipping_cost"`
	Total        int64  `json:"total"`
	ItemCount    int    `json:"item_count"`
	CreatedAt    string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	CustomerName  string                `json:"customer_name,omitempty"`
	Status        string                `json:"status"`
	Items         []orderItemPayload    `json:"items"`
	Subtotal      int64                 `json:"subtotal"`
	ShippingCost  int64                 `json:"shipping_cost"`
	Total         int64                 `json:"total"`
	Currency      string                `json:"currency"`
	Shipping      *orderShippingPayload `json:"shipping,omitempty"`
	StatusHistory []statusEntryPayload  `json:"status_history,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	Metadata      map[string]any        `json:"metadata,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	ProductID string  `json:"product_id,omitempty"`
	ServiceID string  `json:"service_id,omitempty"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	WeightKg  float64 `json:"weight_kg,omitempty"`
	UnitPrice int64   `json:"unit_price"`
	Subtotal  int64   `json:"subtotal"`
}

type orderShippingPayload struct {
	Address     string             `json:"address"`
	Coordinate  *coordinatePayload `json:"coordinate,omitempty"`
	DistanceKm  float64            `json:"distance_km"`
	Cost        int64              `json:"cost"`
	Service     string             `json:"service"`
	Mode        string             `json:"mode"`
	Degraded    bool               `json:"degraded,omitempty"`
	EstimatedAt string             `json:"estimated_at,omitempty"`
}

type statusEntryPayload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	ActorID    string `json:"actor_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

type coordinatePayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:           strings.TrimSpace(order.ID),
		Status:       strings.TrimSpace(string(order.Status)),
		Currency:     strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:     order.Subtotal,
		ShippingCost: order.ShippingCost,
		Total:        order.Total,
		ItemCount:    len(order.Items),
		CreatedAt:    formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           strings.TrimSpace(order.ID),
		UserID:       strings.TrimSpace(order.UserID),
		CustomerName: strings.TrimSpace(order.CustomerName),
		Status:       strings.TrimSpace(string(order.Status)),
		Items:        make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:     order.Subtotal,
		ShippingCost: order.ShippingCost,
		Total:        order.Total,
		Currency:     strings.ToUpper(strings.TrimSpace(order.Currency)),
		Notes:        strings.TrimSpace(order.Notes),
		Metadata:     cloneMap(order.Metadata),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:        strings.TrimSpace(item.ID),
			Type:      string(item.Type),
			ProductID: strings.TrimSpace(item.ProductID),
			ServiceID: strings.TrimSpace(item.ServiceID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			WeightKg:  item.WeightKg,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}

	if order.Shipping != nil {
		shipping := orderShippingPayload{
			Address:     strings.TrimSpace(order.Shipping.Address),
			DistanceKm:  order.Shipping.DistanceKm,
			Cost:        order.Shipping.Cost,
			Service:     string(order.Shipping.Service),
			Mode:        string(order.Shipping.Mode),
			Degraded:    order.Shipping.Degraded,
			EstimatedAt: formatTime(order.Shipping.EstimatedAt),
		}
		if order.Shipping.Coordinate != nil {
			shipping.Coordinate = &coordinatePayload{
				Lat: order.Shipping.Coordinate.Lat,
				Lng: order.Shipping.Coordinate.Lng,
			}
		}
		payload.Shipping = &shipping
	}

	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusEntryPayload{
			From:       string(entry.From),
			To:         string(entry.To),
			ActorID:    strings.TrimSpace(entry.ActorID),
			Reason:     strings.TrimSpace(entry.Reason),
			OccurredAt: formatTime(entry.OccurredAt),
		})
	}

	return payload
}

func buildOrderListFilter(r *http.Request) (services.OrderListFilter, error) {
	query := r.URL.Query()

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		return services.OrderListFilter{}, err
	}

	filter := services.OrderListFilter{
		Status: parseFilterValues(query["status"]),
		Query:  strings.TrimSpace(query.Get("q")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		dateRange.To = &ts
	}
	filter.DateRange = dateRange

	return filter, nil
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func parseOrderStatus(raw string) (services.OrderStatus, bool) {
	status := domain.OrderStatus(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := validOrderStatuses[status]; !ok {
		return "", false
	}
	return status, true
}
