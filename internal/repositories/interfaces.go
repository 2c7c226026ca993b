package repositories

import (
	"context"
	"time"

	domain "github.com/roastline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Shipments() ShipmentRepository
	Products() ProductRepository
	RoastServices() RoastServiceRepository
	Settings() SettingsRepository
	Users() UserRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// CommitStockAdjustment atomically marks the order stock-adjusted and applies the
	// product stock deltas inside one transaction. It must fail with a conflict when
	// the order is already flagged, so concurrent transitions decrement stock once.
	CommitStockAdjustment(ctx context.Context, orderID string, deltas map[string]int, now time.Time) (domain.Order, error)
}

// ShipmentRepository stores shipment legs keyed by order.
type ShipmentRepository interface {
	Upsert(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error)
	FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error)
	DeleteByOrderAndType(ctx context.Context, orderID string, shipmentType domain.ShipmentType) error
	UpdateStatus(ctx context.Context, shipmentID string, status domain.ShipmentStatus, event domain.ShipmentEvent) (domain.Shipment, error)
}

// ProductRepository stores the coffee catalog and stock counts.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error)
}

// RoastServiceRepository stores toll-roasting service definitions.
type RoastServiceRepository interface {
	Insert(ctx context.Context, service domain.RoastService) error
	Update(ctx context.Context, service domain.RoastService) error
	Delete(ctx context.Context, serviceID string) error
	FindByID(ctx context.Context, serviceID string) (domain.RoastService, error)
	List(ctx context.Context, filter RoastServiceListFilter) (domain.CursorPage[domain.RoastService], error)
}

// SettingsRepository stores the singleton back-office settings document.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.StoreSettings, error)
	Save(ctx context.Context, settings domain.StoreSettings) (domain.StoreSettings, error)
}

// UserRepository stores user profiles.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID string
	Status []string
	// Query is a case-insensitive substring match over the order id, the
	// customer name, the user id, and the shipping address.
	Query      string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ProductListFilter struct {
	Status   []string
	BeanType *domain.BeanType
	Process  *domain.ProcessMethod
	// Query is a case-insensitive substring match over name, origin, and
	// description.
	Query      string
	Pagination domain.Pagination
}

type RoastServiceListFilter struct {
	Status     []string
	Profile    *domain.RoastProfile
	Pagination domain.Pagination
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
