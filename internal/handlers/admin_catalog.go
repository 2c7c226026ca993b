package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/platform/httpx"
	"github.com/roastline/api/internal/services"
)

const maxCatalogRequestBody = 256 * 1024

type saveProductRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	BeanType     string   `json:"bean_type"`
	Process      string   `json:"process"`
	RoastProfile string   `json:"roast_profile"`
	Origin       string   `json:"origin"`
	Price        int64    `json:"price"`
	Stock        *int     `json:"stock"`
	WeightKg     float64  `json:"weight_kg"`
	Status       string   `json:"status"`
	Images       []string `json:"images"`
}

type saveRoastServiceRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Profile     string  `json:"profile"`
	PricePerKg  int64   `json:"price_per_kg"`
	MinWeightKg float64 `json:"min_weight_kg"`
	Status      string  `json:"status"`
}

// AdminCatalogHandlers exposes admin catalog CRUD endpoints.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	audit   services.AuditLogService
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, audit services.AuditLogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog, audit: audit}
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/catalog", func(rt chi.Router) {
		rt.Post("/products", h.createProduct)
		rt.Put("/products/{productID}", h.updateProduct)
		rt.Delete("/products/{productID}", h.deleteProduct)
		rt.Post("/roast-services", h.createRoastService)
		rt.Put("/roast-services/{serviceID}", h.updateRoastService)
		rt.Delete("/roast-services/{serviceID}", h.deleteRoastService)
	})
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "productID"))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req saveProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.SaveProductCommand{
		ProductID:    strings.TrimSpace(productID),
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		BeanType:     domain.BeanType(strings.TrimSpace(strings.ToLower(req.BeanType))),
		Process:      domain.ProcessMethod(strings.TrimSpace(strings.ToLower(req.Process))),
		RoastProfile: domain.RoastProfile(strings.TrimSpace(strings.ToLower(req.RoastProfile))),
		Origin:       strings.TrimSpace(req.Origin),
		Price:        req.Price,
		Stock:        req.Stock,
		WeightKg:     req.WeightKg,
		Status:       domain.ProductStatus(strings.TrimSpace(strings.ToLower(req.Status))),
		Images:       req.Images,
		ActorID:      identity.UserID,
	}

	product, err := h.catalog.SaveProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}

	action := "product.update"
	status := http.StatusOK
	if r.Method == http.MethodPost {
		action = "product.create"
		status = http.StatusCreated
	}
	recordAdminAudit(r, h.audit, identity, action, "products/"+product.ID, map[string]any{
		"name": product.Name,
	})

	writeJSONResponse(w, status, map[string]any{"product": buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, services.DeleteCatalogItemCommand{ID: productID, ActorID: identity.UserID}); err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}

	recordAdminAudit(r, h.audit, identity, "product.delete", "products/"+productID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) createRoastService(w http.ResponseWriter, r *http.Request) {
	h.saveRoastService(w, r, "")
}

func (h *AdminCatalogHandlers) updateRoastService(w http.ResponseWriter, r *http.Request) {
	h.saveRoastService(w, r, chi.URLParam(r, "serviceID"))
}

func (h *AdminCatalogHandlers) saveRoastService(w http.ResponseWriter, r *http.Request, serviceID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req saveRoastServiceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.SaveRoastServiceCommand{
		ServiceID:   strings.TrimSpace(serviceID),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Profile:     domain.RoastProfile(strings.TrimSpace(strings.ToLower(req.Profile))),
		PricePerKg:  req.PricePerKg,
		MinWeightKg: req.MinWeightKg,
		Status:      domain.ProductStatus(strings.TrimSpace(strings.ToLower(req.Status))),
		ActorID:     identity.UserID,
	}

	service, err := h.catalog.SaveRoastService(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err, "roast service")
		return
	}

	action := "roast_service.update"
	status := http.StatusOK
	if r.Method == http.MethodPost {
		action = "roast_service.create"
		status = http.StatusCreated
	}
	recordAdminAudit(r, h.audit, identity, action, "roastServices/"+service.ID, map[string]any{
		"name": service.Name,
	})

	writeJSONResponse(w, status, map[string]any{"roast_service": buildRoastServicePayload(service)})
}

func (h *AdminCatalogHandlers) deleteRoastService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	serviceID := strings.TrimSpace(chi.URLParam(r, "serviceID"))
	if serviceID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "service id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteRoastService(ctx, services.DeleteCatalogItemCommand{ID: serviceID, ActorID: identity.UserID}); err != nil {
		writeCatalogError(ctx, w, err, "roast service")
		return
	}

	recordAdminAudit(r, h.audit, identity, "roast_service.delete", "roastServices/"+serviceID, nil)
	w.WriteHeader(http.StatusNoContent)
}
