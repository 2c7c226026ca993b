package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/services"
)

type stubOrderService struct {
	createFn     func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	listFn       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	getFn        func(ctx context.Context, orderID string) (services.Order, error)
	transitionFn func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	cancelFn     func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn == nil {
		return services.Order{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, nil
	}
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn == nil {
		return services.Order{}, nil
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn == nil {
		return services.Order{}, nil
	}
	return s.cancelFn(ctx, cmd)
}

func newAuthedRequest(method, target, body string, identity *auth.Identity) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func routerFor(registrar RouteRegistrar) chi.Router {
	r := chi.NewRouter()
	registrar(r)
	return r
}

func sampleOrder() services.Order {
	created := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	return services.Order{
		ID:     "order-1",
		UserID: "user-1",
		Status: domain.OrderStatusPending,
		Items: []services.OrderLineItem{{
			ID:        "line-1",
			Type:      domain.LineItemTypeProduct,
			ProductID: "prod-1",
			Name:      "Gayo Arabika",
			Quantity:  2,
			UnitPrice: 95000,
			Subtotal:  190000,
		}},
		Subtotal:     190000,
		ShippingCost: 24000,
		Total:        214000,
		Currency:     "IDR",
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestCreateOrderReturnsCreated(t *testing.T) {
	var captured services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(nil, orders)

	body := `{"order_id":"order-1","customer_name":"Rina Wijaya","items":[{"type":"product","product_id":"prod-1","quantity":2}],"shipping":{"address":"Jl. Braga No. 1, Bandung","coordinate":{"lat":-6.9175,"lng":107.6098},"distance_km":3.2,"cost":24000,"service":"regular","mode":"one_way"}}`
	req := newAuthedRequest(http.MethodPost, "/", body, &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected command user user-1, got %q", captured.UserID)
	}
	if captured.OrderID != "order-1" || captured.CustomerName != "Rina Wijaya" {
		t.Fatalf("expected checkout id and customer name forwarded, got %+v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prod-1" {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}
	if captured.Shipping == nil || captured.Shipping.Cost != 24000 || captured.Shipping.Service != domain.ShippingServiceRegular {
		t.Fatalf("unexpected shipping input: %+v", captured.Shipping)
	}
	if captured.Shipping.Coordinate == nil || captured.Shipping.Coordinate.Lat != -6.9175 {
		t.Fatalf("expected coordinate forwarded, got %+v", captured.Shipping.Coordinate)
	}

	var payload struct {
		Order struct {
			ID    string `json:"id"`
			Total int64  `json:"total"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Order.ID != "order-1" || payload.Order.Total != 214000 {
		t.Fatalf("unexpected payload: %+v", payload.Order)
	}
}

func TestCreateOrderRequiresIdentity(t *testing.T) {
	h := NewOrderHandlers(nil, &stubOrderService{})

	req := newAuthedRequest(http.MethodPost, "/", `{}`, nil)
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestListOrdersScopesToCaller(t *testing.T) {
	var captured services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
		},
	}
	h := NewOrderHandlers(nil, orders)

	req := newAuthedRequest(http.MethodGet, "/?status=pending,paid&page_size=5", "", &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected filter scoped to user-1, got %q", captured.UserID)
	}
	if len(captured.Status) != 2 {
		t.Fatalf("expected two status filters, got %v", captured.Status)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", captured.Pagination.PageSize)
	}
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			order := sampleOrder()
			order.UserID = "someone-else"
			return order, nil
		},
	}
	h := NewOrderHandlers(nil, orders)

	req := newAuthedRequest(http.MethodGet, "/order-1", "", &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestGetOrderAllowsAdmin(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			order := sampleOrder()
			order.UserID = "someone-else"
			return order, nil
		},
	}
	h := NewOrderHandlers(nil, orders)

	req := newAuthedRequest(http.MethodGet, "/order-1", "", &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestCancelOrderMapsTransitionConflict(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			order := sampleOrder()
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}
	h := NewOrderHandlers(nil, orders)

	req := newAuthedRequest(http.MethodPost, "/order-1:cancel", `{"reason":"changed my mind"}`, &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "order_invalid_transition" {
		t.Fatalf("unexpected error code: %v", payload["error"])
	}
}

func TestCancelOrderRejectsUnknownExpectedStatus(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(nil, orders)

	req := newAuthedRequest(http.MethodPost, "/order-1:cancel", `{"expected_status":"refunded"}`, &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
