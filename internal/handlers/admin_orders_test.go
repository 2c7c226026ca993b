package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/services"
)

type stubAuditService struct {
	recorded []services.RecordAuditCommand
	recordFn func(ctx context.Context, cmd services.RecordAuditCommand) error
	listFn   func(ctx context.Context, filter services.AuditLogListFilter) (domain.CursorPage[services.AuditLogEntry], error)
}

func (s *stubAuditService) Record(ctx context.Context, cmd services.RecordAuditCommand) error {
	s.recorded = append(s.recorded, cmd)
	if s.recordFn == nil {
		return nil
	}
	return s.recordFn(ctx, cmd)
}

func (s *stubAuditService) List(ctx context.Context, filter services.AuditLogListFilter) (domain.CursorPage[services.AuditLogEntry], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.AuditLogEntry]{}, nil
	}
	return s.listFn(ctx, filter)
}

func TestAdminListOrdersUsesQueryUserID(t *testing.T) {
	var captured services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{}, nil
		},
	}
	h := NewAdminOrderHandlers(nil, orders, nil)

	req := newAuthedRequest(http.MethodGet, "/orders/?user_id=user-9", "", &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-9" {
		t.Fatalf("expected user filter user-9, got %q", captured.UserID)
	}
}

func TestAdminTransitionStatusRecordsAudit(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = cmd.TargetStatus
			return order, nil
		},
	}
	audit := &stubAuditService{}
	h := NewAdminOrderHandlers(nil, orders, audit)

	body := `{"status":"paid","reason":"bank transfer confirmed","expected_status":"pending"}`
	req := newAuthedRequest(http.MethodPost, "/orders/order-1/status", body, &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.TargetStatus != domain.OrderStatusPaid {
		t.Fatalf("expected target paid, got %q", captured.TargetStatus)
	}
	if captured.ExpectedStatus == nil || *captured.ExpectedStatus != domain.OrderStatusPending {
		t.Fatalf("expected expected_status pending, got %v", captured.ExpectedStatus)
	}
	if len(audit.recorded) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit.recorded))
	}
	if audit.recorded[0].Action != "order.status.paid" || audit.recorded[0].TargetRef != "orders/order-1" {
		t.Fatalf("unexpected audit entry: %+v", audit.recorded[0])
	}

	var payload struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Order.Status != "paid" {
		t.Fatalf("unexpected order status: %q", payload.Order.Status)
	}
}

func TestAdminTransitionStatusMapsInsufficientStock(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInsufficientStock
		},
	}
	h := NewAdminOrderHandlers(nil, orders, nil)

	req := newAuthedRequest(http.MethodPost, "/orders/order-1/status", `{"status":"paid"}`, &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "insufficient_stock" {
		t.Fatalf("unexpected error code: %v", payload["error"])
	}
}

func TestAdminTransitionStatusRejectsUnknownStatus(t *testing.T) {
	h := NewAdminOrderHandlers(nil, &stubOrderService{}, nil)

	req := newAuthedRequest(http.MethodPost, "/orders/order-1/status", `{"status":"archived"}`, &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
