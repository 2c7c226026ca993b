package services

import (
	"context"
	"time"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Coordinate           = domain.Coordinate
	Order                = domain.Order
	OrderLineItem        = domain.OrderLineItem
	OrderStatus          = domain.OrderStatus
	LineItemType         = domain.LineItemType
	ShippingSnapshot     = domain.ShippingSnapshot
	StatusHistoryEntry   = domain.StatusHistoryEntry
	Shipment             = domain.Shipment
	ShipmentEvent        = domain.ShipmentEvent
	ShipmentEndpoint     = domain.ShipmentEndpoint
	ShipmentType         = domain.ShipmentType
	ShipmentStatus       = domain.ShipmentStatus
	ShipmentMode         = domain.ShipmentMode
	ShippingServiceLevel = domain.ShippingServiceLevel
	ShippingEstimate     = domain.ShippingEstimate
	ShipmentLegQuote     = domain.ShipmentLegQuote
	ShipmentTracking     = domain.ShipmentTracking
	Product              = domain.Product
	RoastService         = domain.RoastService
	StoreSettings        = domain.StoreSettings
	ShippingRates        = domain.ShippingRates
	UserProfile          = domain.UserProfile
	SalesOverview        = domain.SalesOverview
	ProductSales         = domain.ProductSales
	StockAlert           = domain.StockAlert
	SystemHealthReport   = domain.SystemHealthReport
	AuditLogEntry        = domain.AuditLogEntry
)

// OrderService encapsulates order placement, reads, and status transitions
// with their coupled stock adjustments.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// ShippingService prices shipments, persists their legs, and exposes tracking.
type ShippingService interface {
	Estimate(ctx context.Context, cmd EstimateShippingCommand) (ShippingEstimate, error)
	Track(ctx context.Context, query TrackShipmentQuery) (ShipmentTracking, error)
	UpdateLegStatus(ctx context.Context, cmd UpdateShipmentStatusCommand) (Shipment, error)
}

// CatalogService manages coffee products and toll-roasting services.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	SaveProduct(ctx context.Context, cmd SaveProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteCatalogItemCommand) error
	ListRoastServices(ctx context.Context, filter RoastServiceListFilter) (domain.CursorPage[RoastService], error)
	GetRoastService(ctx context.Context, serviceID string) (RoastService, error)
	SaveRoastService(ctx context.Context, cmd SaveRoastServiceCommand) (RoastService, error)
	DeleteRoastService(ctx context.Context, cmd DeleteCatalogItemCommand) error
}

// SettingsService reads and updates the singleton store settings document.
type SettingsService interface {
	GetSettings(ctx context.Context) (StoreSettings, error)
	UpdateSettings(ctx context.Context, cmd UpdateSettingsCommand) (StoreSettings, error)
}

// ReportService aggregates the admin sales overview.
type ReportService interface {
	Overview(ctx context.Context) (SalesOverview, error)
}

// UserService exposes the profile fields the back office reads and writes.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
}

// AuditLogService records admin actions for later review.
type AuditLogService interface {
	Record(ctx context.Context, cmd RecordAuditCommand) error
	List(ctx context.Context, filter AuditLogListFilter) (domain.CursorPage[AuditLogEntry], error)
}

// SystemService surfaces operational status for health endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
	Readiness(ctx context.Context) error
}

// Command and filter DTOs ----------------------------------------------------

// OrderItemInput references a catalog product or roast service on a new order.
type OrderItemInput struct {
	Type      LineItemType
	ProductID string
	ServiceID string
	Quantity  int
	WeightKg  float64
}

// OrderShippingInput carries a previously quoted shipping plan into checkout.
// Its cost folds into the order total.
type OrderShippingInput struct {
	Address    string
	Coordinate *Coordinate
	DistanceKm float64
	Cost       int64
	Service    ShippingServiceLevel
	Mode       ShipmentMode
}

// CreateOrderCommand captures everything needed to place an order. OrderID is
// the caller-supplied checkout id; when empty, the service generates one.
type CreateOrderCommand struct {
	OrderID      string
	UserID       string
	CustomerName string
	Items        []OrderItemInput
	Shipping     *OrderShippingInput
	Status       OrderStatus
	Notes        string
	Metadata     map[string]any
	ActorID      string
}

// OrderStatusTransitionCommand requests moving an order to a target status.
type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
	Metadata       map[string]any
}

// CancelOrderCommand cancels an order with an optional reason.
type CancelOrderCommand struct {
	OrderID        string
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

// OrderListFilter mirrors the repository filter for service consumers.
type OrderListFilter = repositories.OrderListFilter

// AddressSource selects where the estimate resolves the customer address from.
type AddressSource string

const (
	// AddressSourcePayload uses the address supplied in the request.
	AddressSourcePayload AddressSource = "payload"
	// AddressSourceProfile uses the address stored on the customer profile.
	AddressSourceProfile AddressSource = "profile"
)

// EstimateShippingCommand prices and persists the shipment legs for an order.
type EstimateShippingCommand struct {
	OrderID       string
	Address       string
	Coordinate    string
	AddressSource AddressSource
	Mode          ShipmentMode
	Service       ShippingServiceLevel
	WeightKg      float64
	ActorID       string
}

// TrackShipmentQuery fetches the shipment legs for an order.
type TrackShipmentQuery struct {
	OrderID string
	ActorID string
	IsAdmin bool
}

// UpdateShipmentStatusCommand moves a shipment leg to a new status.
type UpdateShipmentStatusCommand struct {
	ShipmentID string
	Status     ShipmentStatus
	Detail     string
	ActorID    string
}

// SaveProductCommand creates or updates a catalog product.
type SaveProductCommand struct {
	ProductID    string
	Name         string
	Description  string
	BeanType     domain.BeanType
	Process      domain.ProcessMethod
	RoastProfile domain.RoastProfile
	Origin       string
	Price        int64
	Stock        *int
	WeightKg     float64
	Status       domain.ProductStatus
	Images       []string
	ActorID      string
}

// SaveRoastServiceCommand creates or updates a toll-roasting service.
type SaveRoastServiceCommand struct {
	ServiceID   string
	Name        string
	Description string
	Profile     domain.RoastProfile
	PricePerKg  int64
	MinWeightKg float64
	Status      domain.ProductStatus
	ActorID     string
}

// DeleteCatalogItemCommand removes a product or roast service.
type DeleteCatalogItemCommand struct {
	ID      string
	ActorID string
}

// ProductListFilter mirrors the repository filter for service consumers.
type ProductListFilter = repositories.ProductListFilter

// RoastServiceListFilter mirrors the repository filter for service consumers.
type RoastServiceListFilter = repositories.RoastServiceListFilter

// UpdateSettingsCommand mutates the store settings document.
type UpdateSettingsCommand struct {
	OriginAddress    *string
	OriginCoordinate *Coordinate
	Rates            *ShippingRates
	Currency         *string
	LowStockLevel    *int
	ActorID          string
}

// UpdateProfileCommand updates mutable profile fields.
type UpdateProfileCommand struct {
	UserID      string
	DisplayName *string
	Phone       *string
	Address     *string
	Coordinate  *string
	Language    *string
}

// RecordAuditCommand appends one audit entry.
type RecordAuditCommand struct {
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Severity  string
	RequestID string
	IPHash    string
	UserAgent string
}

// AuditLogListFilter mirrors the repository filter for service consumers.
type AuditLogListFilter struct {
	TargetRef  string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}
