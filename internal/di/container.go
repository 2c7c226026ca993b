package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roastline/api/internal/geo"
	"github.com/roastline/api/internal/platform/config"
	"github.com/roastline/api/internal/repositories"
	"github.com/roastline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Shipping services.ShippingService
	Catalog  services.CatalogService
	Settings services.SettingsService
	Reports  services.ReportService
	Users    services.UserService
	Audit    services.AuditLogService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOptions carries collaborators the registry cannot provide itself.
type ContainerOptions struct {
	// Geocoder resolves destination addresses for shipping estimates. When
	// nil, estimates fall back to degraded pricing from the store origin.
	Geocoder geo.Geocoder

	// Build describes the running binary for health reporting.
	Build services.BuildInfo
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ContainerOptions) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients and any background resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, opts ContainerOptions) (Services, error) {
	var svc Services

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil {
		userSvc, err := services.NewUserService(services.UserServiceDeps{
			Users: usersRepo,
			Clock: time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build user service: %w", err)
		}
		svc.Users = userSvc
	}

	if settingsRepo := reg.Settings(); settingsRepo != nil {
		settingsSvc, err := services.NewSettingsService(services.SettingsServiceDeps{
			Settings: settingsRepo,
			Clock:    time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build settings service: %w", err)
		}
		svc.Settings = settingsSvc
	}

	productsRepo := reg.Products()
	servicesRepo := reg.RoastServices()
	if productsRepo != nil && servicesRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Products: productsRepo,
			Services: servicesRepo,
			Audit:    svc.Audit,
			Clock:    time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && productsRepo != nil && servicesRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:     ordersRepo,
			Products:   productsRepo,
			Services:   servicesRepo,
			UnitOfWork: reg,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if shipmentsRepo := reg.Shipments(); shipmentsRepo != nil && ordersRepo != nil {
		shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
			Orders:     ordersRepo,
			Shipments:  shipmentsRepo,
			Users:      reg.Users(),
			Settings:   reg.Settings(),
			Geocoder:   opts.Geocoder,
			UnitOfWork: reg,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build shipping service: %w", err)
		}
		svc.Shipping = shippingSvc
	}

	if ordersRepo != nil && productsRepo != nil && svc.Settings != nil {
		reportSvc, err := services.NewReportService(services.ReportServiceDeps{
			Orders:   ordersRepo,
			Products: productsRepo,
			Settings: svc.Settings,
			Clock:    time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build report service: %w", err)
		}
		svc.Reports = reportSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.Build
		if build.StartedAt.IsZero() {
			build.StartedAt = time.Now().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
