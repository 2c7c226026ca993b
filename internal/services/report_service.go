package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/repositories"
)

const (
	reportPageSize       = 200
	reportTopProductsCap = 5
)

// revenueStatuses are the order statuses counted as realised revenue.
var revenueStatuses = []domain.OrderStatus{
	domain.OrderStatusPaid,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusCompleted,
}

// ReportServiceDeps bundles collaborators required to construct the report service.
type ReportServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Settings SettingsService
	Clock    func() time.Time
}

type reportService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	settings SettingsService
	clock    func() time.Time
}

// NewReportService wires dependencies into a concrete ReportService implementation.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("report service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("report service: product repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("report service: settings service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &reportService{
		orders:   deps.Orders,
		products: deps.Products,
		settings: deps.Settings,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Overview aggregates the current month's orders plus stock alerts. The order
// walk, the low-stock scan, and the settings read run concurrently.
func (s *reportService) Overview(ctx context.Context) (SalesOverview, error) {
	now := s.clock()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var (
		monthOrders []Order
		lowStock    []StockAlert
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		orders, err := s.collectOrdersSince(groupCtx, monthStart)
		if err != nil {
			return fmt.Errorf("collect month orders: %w", err)
		}
		monthOrders = orders
		return nil
	})

	group.Go(func() error {
		settings, err := s.settings.GetSettings(groupCtx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		products, err := s.products.ListLowStock(groupCtx, settings.LowStockLevel)
		if err != nil {
			return fmt.Errorf("list low stock: %w", err)
		}
		alerts := make([]StockAlert, 0, len(products))
		for _, product := range products {
			if product.Status != domain.ProductStatusActive {
				continue
			}
			alerts = append(alerts, StockAlert{
				ProductID: product.ID,
				Name:      product.Name,
				Stock:     product.Stock,
			})
		}
		lowStock = alerts
		return nil
	})

	if err := group.Wait(); err != nil {
		return SalesOverview{}, err
	}

	overview := SalesOverview{
		OrdersByStatus: make(map[domain.OrderStatus]int),
		LowStock:       lowStock,
		GeneratedAt:    now,
	}

	sold := make(map[string]*ProductSales)
	for _, order := range monthOrders {
		overview.TotalOrders++
		overview.OrdersByStatus[order.Status]++

		if !slices.Contains(revenueStatuses, order.Status) {
			continue
		}
		overview.MonthRevenue += order.Total
		if !order.CreatedAt.Before(dayStart) {
			overview.TodayRevenue += order.Total
		}
		for _, item := range order.Items {
			if item.Type != domain.LineItemTypeProduct {
				continue
			}
			entry, ok := sold[item.ProductID]
			if !ok {
				entry = &ProductSales{ProductID: item.ProductID, Name: item.Name}
				sold[item.ProductID] = entry
			}
			entry.Quantity += item.Quantity
		}
	}

	overview.TopProducts = topProducts(sold, reportTopProductsCap)

	return overview, nil
}

func (s *reportService) collectOrdersSince(ctx context.Context, since time.Time) ([]Order, error) {
	var collected []Order
	token := ""
	for {
		page, err := s.orders.List(ctx, OrderListFilter{
			DateRange: domain.RangeQuery[time.Time]{From: &since},
			Pagination: Pagination{
				PageSize:  reportPageSize,
				PageToken: token,
			},
		})
		if err != nil {
			return nil, err
		}
		collected = append(collected, page.Items...)
		if page.NextPageToken == "" {
			return collected, nil
		}
		token = page.NextPageToken
	}
}

func topProducts(sold map[string]*ProductSales, limit int) []ProductSales {
	ranked := make([]ProductSales, 0, len(sold))
	for _, entry := range sold {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
