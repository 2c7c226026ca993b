package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/httpx"
	"github.com/roastline/api/internal/services"
)

const (
	defaultCatalogPageSize = 20
	maxCatalogPageSize     = 100
)

// CatalogHandlers exposes the public product and roast service listings.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/roast-services", h.listRoastServices)
	r.Get("/roast-services/{serviceID}", h.getRoastService)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultCatalogPageSize, maxCatalogPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ProductListFilter{
		Status: parseFilterValues(query["status"]),
		Query:  strings.TrimSpace(query.Get("q")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("bean_type")); raw != "" {
		beanType := domain.BeanType(strings.ToLower(raw))
		filter.BeanType = &beanType
	}
	if raw := strings.TrimSpace(query.Get("process")); raw != "" {
		process := domain.ProcessMethod(strings.ToLower(raw))
		filter.Process = &process
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *CatalogHandlers) listRoastServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultCatalogPageSize, maxCatalogPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.RoastServiceListFilter{
		Status: parseFilterValues(query["status"]),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("profile")); raw != "" {
		profile := domain.RoastProfile(strings.ToLower(raw))
		filter.Profile = &profile
	}

	page, err := h.catalog.ListRoastServices(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err, "roast service")
		return
	}

	items := make([]roastServicePayload, 0, len(page.Items))
	for _, service := range page.Items {
		items = append(items, buildRoastServicePayload(service))
	}
	writeJSONResponse(w, http.StatusOK, roastServiceListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) getRoastService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	serviceID := strings.TrimSpace(chi.URLParam(r, "serviceID"))
	if serviceID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "service id is required", http.StatusBadRequest))
		return
	}

	service, err := h.catalog.GetRoastService(ctx, serviceID)
	if err != nil {
		writeCatalogError(ctx, w, err, "roast service")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"roast_service": buildRoastServicePayload(service)})
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Slug         string   `json:"slug,omitempty"`
	Description  string   `json:"description,omitempty"`
	BeanType     string   `json:"bean_type"`
	Process      string   `json:"process"`
	RoastProfile string   `json:"roast_profile"`
	Origin       string   `json:"origin,omitempty"`
	Price        int64    `json:"price"`
	Currency     string   `json:"currency"`
	Stock        int      `json:"stock"`
	WeightKg     float64  `json:"weight_kg,omitempty"`
	Status       string   `json:"status"`
	Images       []string `json:"images,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

type roastServiceListResponse struct {
	Items         []roastServicePayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type roastServicePayload struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Profile     string  `json:"profile"`
	PricePerKg  int64   `json:"price_per_kg"`
	Currency    string  `json:"currency"`
	MinWeightKg float64 `json:"min_weight_kg"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:           strings.TrimSpace(product.ID),
		Name:         strings.TrimSpace(product.Name),
		Slug:         strings.TrimSpace(product.Slug),
		Description:  strings.TrimSpace(product.Description),
		BeanType:     string(product.BeanType),
		Process:      string(product.Process),
		RoastProfile: string(product.RoastProfile),
		Origin:       strings.TrimSpace(product.Origin),
		Price:        product.Price,
		Currency:     strings.ToUpper(strings.TrimSpace(product.Currency)),
		Stock:        product.Stock,
		WeightKg:     product.WeightKg,
		Status:       string(product.Status),
		Images:       append([]string(nil), product.Images...),
		CreatedAt:    formatTime(product.CreatedAt),
		UpdatedAt:    formatTime(product.UpdatedAt),
	}
}

func buildRoastServicePayload(service services.RoastService) roastServicePayload {
	return roastServicePayload{
		ID:          strings.TrimSpace(service.ID),
		Name:        strings.TrimSpace(service.Name),
		Description: strings.TrimSpace(service.Description),
		Profile:     string(service.Profile),
		PricePerKg:  service.PricePerKg,
		Currency:    strings.ToUpper(strings.TrimSpace(service.Currency)),
		MinWeightKg: service.MinWeightKg,
		Status:      string(service.Status),
		CreatedAt:   formatTime(service.CreatedAt),
		UpdatedAt:   formatTime(service.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error, noun string) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", noun+" not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
