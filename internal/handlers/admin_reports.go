package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/platform/httpx"
	"github.com/roastline/api/internal/services"
)

// AdminReportHandlers exposes the sales overview endpoint.
type AdminReportHandlers struct {
	authn   *auth.Authenticator
	reports services.ReportService
}

// NewAdminReportHandlers constructs report handlers.
func NewAdminReportHandlers(authn *auth.Authenticator, reports services.ReportService) *AdminReportHandlers {
	return &AdminReportHandlers{authn: authn, reports: reports}
}

// Routes registers the admin report endpoints.
func (h *AdminReportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/reports/overview", h.overview)
}

func (h *AdminReportHandlers) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("report_service_unavailable", "report service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	overview, err := h.reports.Overview(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("report_error", "failed to build sales overview", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOverviewPayload(overview))
}

type overviewPayload struct {
	TodayRevenue   int64                 `json:"today_revenue"`
	MonthRevenue   int64                 `json:"month_revenue"`
	TotalOrders    int                   `json:"total_orders"`
	OrdersByStatus map[string]int        `json:"orders_by_status"`
	LowStock       []stockAlertPayload   `json:"low_stock"`
	TopProducts    []productSalesPayload `json:"top_products"`
	GeneratedAt    string                `json:"generated_at"`
}

type stockAlertPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

type productSalesPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

func buildOverviewPayload(overview services.SalesOverview) overviewPayload {
	payload := overviewPayload{
		TodayRevenue:   overview.TodayRevenue,
		MonthRevenue:   overview.MonthRevenue,
		TotalOrders:    overview.TotalOrders,
		OrdersByStatus: make(map[string]int, len(overview.OrdersByStatus)),
		LowStock:       make([]stockAlertPayload, 0, len(overview.LowStock)),
		TopProducts:    make([]productSalesPayload, 0, len(overview.TopProducts)),
		GeneratedAt:    formatTime(overview.GeneratedAt),
	}
	for status, count := range overview.OrdersByStatus {
		payload.OrdersByStatus[string(status)] = count
	}
	for _, alert := range overview.LowStock {
		payload.LowStock = append(payload.LowStock, stockAlertPayload{
			ProductID: strings.TrimSpace(alert.ProductID),
			Name:      strings.TrimSpace(alert.Name),
			Stock:     alert.Stock,
		})
	}
	for _, sales := range overview.TopProducts {
		payload.TopProducts = append(payload.TopProducts, productSalesPayload{
			ProductID: strings.TrimSpace(sales.ProductID),
			Name:      strings.TrimSpace(sales.Name),
			Quantity:  sales.Quantity,
		})
	}
	return payload
}
