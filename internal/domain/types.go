package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lng float64
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed but not yet paid.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment has been confirmed.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing indicates the roastery is preparing or roasting the order.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the outbound shipment has been handed to the courier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCompleted indicates the order has been delivered and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// LineItemType distinguishes catalog products from roasting services on an order line.
type LineItemType string

const (
	// LineItemTypeProduct marks a line referencing a coffee product.
	LineItemTypeProduct LineItemType = "product"
	// LineItemTypeService marks a line referencing a roasting service.
	LineItemTypeService LineItemType = "service"
)

// Order aggregates the purchase, its lines, and the shipping snapshot.
type Order struct {
	ID            string
	UserID        string
	CustomerName  string
	Status        OrderStatus
	Items         []OrderLineItem
	Subtotal      int64
	ShippingCost  int64
	Total         int64
	Currency      string
	StockAdjusted bool
	Shipping      *ShippingSnapshot
	StatusHistory []StatusHistoryEntry
	Notes         string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderLineItem is an immutable snapshot of a purchased product or service.
// Name, unit price, and weight are copied at order time so later catalog
// edits never alter a placed order.
type OrderLineItem struct {
	ID        string
	Type      LineItemType
	ProductID string
	ServiceID string
	Name      string
	Quantity  int
	WeightKg  float64
	UnitPrice int64
	Subtotal  int64
}

// ShippingSnapshot records the shipping decision captured on the order.
type ShippingSnapshot struct {
	Address     string
	Coordinate  *Coordinate
	DistanceKm  float64
	Cost        int64
	Service     ShippingServiceLevel
	Mode        ShipmentMode
	Degraded    bool
	EstimatedAt time.Time
}

// StatusHistoryEntry records one applied order status transition.
type StatusHistoryEntry struct {
	From       OrderStatus
	To         OrderStatus
	ActorID    string
	Reason     string
	OccurredAt time.Time
}

// ShipmentType identifies the direction of a shipment leg.
type ShipmentType string

const (
	// ShipmentTypeInbound moves green beans from the customer to the roastery.
	ShipmentTypeInbound ShipmentType = "customer_to_roastery"
	// ShipmentTypeOutbound moves the finished order from the roastery to the customer.
	ShipmentTypeOutbound ShipmentType = "roastery_to_customer"
)

// ShipmentStatus enumerates lifecycle states for a shipment leg.
type ShipmentStatus string

const (
	// ShipmentStatusPending indicates the leg is created but not yet scheduled.
	ShipmentStatusPending ShipmentStatus = "pending"
	// ShipmentStatusPickupScheduled indicates a courier pickup has been booked.
	ShipmentStatusPickupScheduled ShipmentStatus = "pickup_scheduled"
	// ShipmentStatusInTransit indicates the leg is moving.
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	// ShipmentStatusDelivered indicates the leg arrived at its destination.
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	// ShipmentStatusCancelled indicates the leg was cancelled.
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
)

// ShipmentMode selects whether beans travel one way or round trip.
type ShipmentMode string

const (
	// ShipmentModeOneWay ships only from the roastery to the customer.
	ShipmentModeOneWay ShipmentMode = "one_way"
	// ShipmentModeTwoWay ships customer beans in for roasting and back out again.
	ShipmentModeTwoWay ShipmentMode = "two_way"
)

// ShippingServiceLevel selects the courier product used for a shipment.
type ShippingServiceLevel string

const (
	// ShippingServiceCargo is the bulk cargo tier for heavy consignments.
	ShippingServiceCargo ShippingServiceLevel = "cargo"
	// ShippingServiceRegular is the standard parcel tier.
	ShippingServiceRegular ShippingServiceLevel = "regular"
)

// ShipmentEndpoint is one end of a shipment leg.
type ShipmentEndpoint struct {
	Address    string
	Coordinate Coordinate
}

// Shipment represents a single physical leg tied to an order.
type Shipment struct {
	ID          string
	OrderID     string
	UserID      string
	Type        ShipmentType
	Status      ShipmentStatus
	Origin      ShipmentEndpoint
	Destination ShipmentEndpoint
	DistanceKm  float64
	WeightKg    float64
	Service     ShippingServiceLevel
	Cost        int64
	ScheduledAt *time.Time
	Events      []ShipmentEvent
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShipmentEvent stores timestamped updates for a shipment leg.
type ShipmentEvent struct {
	Status     ShipmentStatus
	Detail     string
	OccurredAt time.Time
}

// ShippingEstimate is the priced plan for moving an order, one leg per direction.
type ShippingEstimate struct {
	OrderID         string
	Mode            ShipmentMode
	Service         ShippingServiceLevel
	WeightKg        float64
	TotalDistanceKm float64
	TotalCost       int64
	Legs            []ShipmentLegQuote
	Degraded        bool
	GeneratedAt     time.Time
}

// ShipmentLegQuote prices a single direction within an estimate.
type ShipmentLegQuote struct {
	Type        ShipmentType
	Origin      ShipmentEndpoint
	Destination ShipmentEndpoint
	DistanceKm  float64
	Cost        int64
}

// ShipmentTracking summarises the shipment legs visible to a customer or admin.
type ShipmentTracking struct {
	OrderID         string
	Mode            ShipmentMode
	TotalDistanceKm float64
	Legs            []Shipment
}

// BeanType enumerates supported coffee bean species.
type BeanType string

const (
	// BeanTypeArabika is the arabica species.
	BeanTypeArabika BeanType = "arabika"
	// BeanTypeRobusta is the robusta species.
	BeanTypeRobusta BeanType = "robusta"
)

// ProcessMethod enumerates post-harvest processing methods.
type ProcessMethod string

const (
	// ProcessNatural is dry processing.
	ProcessNatural ProcessMethod = "natural"
	// ProcessFullwash is fully washed processing.
	ProcessFullwash ProcessMethod = "fullwash"
	// ProcessHoney is honey (pulped natural) processing.
	ProcessHoney ProcessMethod = "honey"
	// ProcessExperimental covers anaerobic and other experimental lots.
	ProcessExperimental ProcessMethod = "eksperimental"
)

// RoastProfile enumerates roast levels offered by the roastery.
type RoastProfile string

const (
	// RoastProfileLite is a light roast.
	RoastProfileLite RoastProfile = "lite"
	// RoastProfileMedium is a medium roast.
	RoastProfileMedium RoastProfile = "medium"
	// RoastProfileDark is a dark roast.
	RoastProfileDark RoastProfile = "dark"
)

// ProductStatus flags catalog visibility.
type ProductStatus string

const (
	// ProductStatusActive lists the product for sale.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive hides the product from the storefront.
	ProductStatusInactive ProductStatus = "inactive"
)

// Product is a roasted coffee product sold from the catalog.
type Product struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	BeanType     BeanType
	Process      ProcessMethod
	RoastProfile RoastProfile
	Origin       string
	Price        int64
	Currency     string
	Stock        int
	WeightKg     float64
	Status       ProductStatus
	Images       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoastService is a toll-roasting service applied to customer-supplied beans.
type RoastService struct {
	ID          string
	Name        string
	Description string
	Profile     RoastProfile
	PricePerKg  int64
	Currency    string
	MinWeightKg float64
	Status      ProductStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShippingRates configures the per-kilometre tariff table.
type ShippingRates struct {
	CargoPerKm      int64
	RegularPerKm    int64
	CargoMinKg      float64
	WeightDivisorKg float64
}

// StoreSettings is the singleton back-office settings document.
type StoreSettings struct {
	OriginAddress    string
	OriginCoordinate Coordinate
	Rates            ShippingRates
	Currency         string
	LowStockLevel    int
	UpdatedAt        time.Time
	UpdatedBy        string
}

// UserProfile holds the account fields the back office needs.
type UserProfile struct {
	ID          string
	Email       string
	DisplayName string
	Phone       string
	Address     string
	Coordinate  *Coordinate
	Language    string
	Roles       []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductSales ranks a product by units sold.
type ProductSales struct {
	ProductID string
	Name      string
	Quantity  int
}

// StockAlert flags an active product at or below the low stock level.
type StockAlert struct {
	ProductID string
	Name      string
	Stock     int
}

// SalesOverview aggregates the admin dashboard report.
type SalesOverview struct {
	TodayRevenue   int64
	MonthRevenue   int64
	TotalOrders    int
	OrdersByStatus map[OrderStatus]int
	LowStock       []StockAlert
	TopProducts    []ProductSales
	GeneratedAt    time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
