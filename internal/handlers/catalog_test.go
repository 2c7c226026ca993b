package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/services"
)

type stubCatalogService struct {
	listProductsFn  func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
	getProductFn    func(ctx context.Context, productID string) (services.Product, error)
	saveProductFn   func(ctx context.Context, cmd services.SaveProductCommand) (services.Product, error)
	deleteProductFn func(ctx context.Context, cmd services.DeleteCatalogItemCommand) error
	listServicesFn  func(ctx context.Context, filter services.RoastServiceListFilter) (domain.CursorPage[services.RoastService], error)
	getServiceFn    func(ctx context.Context, serviceID string) (services.RoastService, error)
	saveServiceFn   func(ctx context.Context, cmd services.SaveRoastServiceCommand) (services.RoastService, error)
	deleteServiceFn func(ctx context.Context, cmd services.DeleteCatalogItemCommand) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFn == nil {
		return domain.CursorPage[services.Product]{}, nil
	}
	return s.listProductsFn(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFn == nil {
		return services.Product{}, nil
	}
	return s.getProductFn(ctx, productID)
}

func (s *stubCatalogService) SaveProduct(ctx context.Context, cmd services.SaveProductCommand) (services.Product, error) {
	if s.saveProductFn == nil {
		return services.Product{}, nil
	}
	return s.saveProductFn(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteCatalogItemCommand) error {
	if s.deleteProductFn == nil {
		return nil
	}
	return s.deleteProductFn(ctx, cmd)
}

func (s *stubCatalogService) ListRoastServices(ctx context.Context, filter services.RoastServiceListFilter) (domain.CursorPage[services.RoastService], error) {
	if s.listServicesFn == nil {
		return domain.CursorPage[services.RoastService]{}, nil
	}
	return s.listServicesFn(ctx, filter)
}

func (s *stubCatalogService) GetRoastService(ctx context.Context, serviceID string) (services.RoastService, error) {
	if s.getServiceFn == nil {
		return services.RoastService{}, nil
	}
	return s.getServiceFn(ctx, serviceID)
}

func (s *stubCatalogService) SaveRoastService(ctx context.Context, cmd services.SaveRoastServiceCommand) (services.RoastService, error) {
	if s.saveServiceFn == nil {
		return services.RoastService{}, nil
	}
	return s.saveServiceFn(ctx, cmd)
}

func (s *stubCatalogService) DeleteRoastService(ctx context.Context, cmd services.DeleteCatalogItemCommand) error {
	if s.deleteServiceFn == nil {
		return nil
	}
	return s.deleteServiceFn(ctx, cmd)
}

func sampleProduct() services.Product {
	created := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	return services.Product{
		ID:           "prod-1",
		Name:         "Gayo Arabika",
		Slug:         "gayo-arabika",
		BeanType:     domain.BeanTypeArabika,
		Process:      domain.ProcessNatural,
		RoastProfile: domain.RoastProfileMedium,
		Origin:       "Aceh",
		Price:        95000,
		Currency:     "IDR",
		Stock:        40,
		WeightKg:     0.25,
		Status:       domain.ProductStatusActive,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestListProductsParsesFilters(t *testing.T) {
	var captured services.ProductListFilter
	catalog := &stubCatalogService{
		listProductsFn: func(_ context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{Items: []services.Product{sampleProduct()}}, nil
		},
	}
	h := NewCatalogHandlers(catalog)

	req := httptest.NewRequest(http.MethodGet, "/products?bean_type=arabika&process=natural&status=active&q=gayo", nil)
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.BeanType == nil || *captured.BeanType != domain.BeanTypeArabika {
		t.Fatalf("expected arabika bean filter, got %v", captured.BeanType)
	}
	if captured.Process == nil || *captured.Process != domain.ProcessNatural {
		t.Fatalf("expected natural process filter, got %v", captured.Process)
	}
	if len(captured.Status) != 1 || captured.Status[0] != "active" {
		t.Fatalf("unexpected status filter: %v", captured.Status)
	}
	if captured.Query != "gayo" {
		t.Fatalf("expected query %q, got %q", "gayo", captured.Query)
	}
}

func TestGetProductNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		getProductFn: func(_ context.Context, productID string) (services.Product, error) {
			return services.Product{}, services.ErrCatalogNotFound
		},
	}
	h := NewCatalogHandlers(catalog)

	req := httptest.NewRequest(http.MethodGet, "/products/missing", nil)
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestListRoastServicesParsesProfile(t *testing.T) {
	var captured services.RoastServiceListFilter
	catalog := &stubCatalogService{
		listServicesFn: func(_ context.Context, filter services.RoastServiceListFilter) (domain.CursorPage[services.RoastService], error) {
			captured = filter
			return domain.CursorPage[services.RoastService]{}, nil
		},
	}
	h := NewCatalogHandlers(catalog)

	req := httptest.NewRequest(http.MethodGet, "/roast-services?profile=dark", nil)
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if captured.Profile == nil || *captured.Profile != domain.RoastProfileDark {
		t.Fatalf("expected dark profile filter, got %v", captured.Profile)
	}
}

func TestAdminSaveProductRecordsAudit(t *testing.T) {
	var savedCmd services.SaveProductCommand
	catalog := &stubCatalogService{
		saveProductFn: func(_ context.Context, cmd services.SaveProductCommand) (services.Product, error) {
			savedCmd = cmd
			product := sampleProduct()
			product.Name = cmd.Name
			return product, nil
		},
	}
	audit := &stubAuditService{}
	h := NewAdminCatalogHandlers(nil, catalog, audit)

	body := `{"name":"Gayo Arabika","bean_type":"arabika","process":"natural","roast_profile":"medium","price":95000,"status":"active"}`
	req := newAuthedRequest(http.MethodPost, "/catalog/products", body, &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if savedCmd.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %q", savedCmd.ActorID)
	}
	if len(audit.recorded) != 1 || audit.recorded[0].Action != "product.create" {
		t.Fatalf("expected product.create audit entry, got %+v", audit.recorded)
	}

	var payload struct {
		Product struct {
			BeanType string `json:"bean_type"`
		} `json:"product"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Product.BeanType != "arabika" {
		t.Fatalf("unexpected bean type: %q", payload.Product.BeanType)
	}
}

func TestAdminDeleteRoastServiceReturnsNoContent(t *testing.T) {
	var deleted services.DeleteCatalogItemCommand
	catalog := &stubCatalogService{
		deleteServiceFn: func(_ context.Context, cmd services.DeleteCatalogItemCommand) error {
			deleted = cmd
			return nil
		},
	}
	h := NewAdminCatalogHandlers(nil, catalog, nil)

	req := newAuthedRequest(http.MethodDelete, "/catalog/roast-services/svc-1", "", &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if deleted.ID != "svc-1" {
		t.Fatalf("expected svc-1 delete, got %q", deleted.ID)
	}
}
