package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/repositories"
)

const (
	orderIDPrefix    = "ord_"
	lineItemIDPrefix = "oli_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInvalidStatus indicates an unrecognised status value.
	ErrOrderInvalidStatus = errors.New("order: invalid status")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested status change is not allowed
	// from the order's current status.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderInsufficientStock indicates a line requests more units than are available.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
)

// orderStateTransitions is the single source of truth for the order lifecycle.
// Terminal statuses (completed, cancelled) have no outgoing edges.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusPaid, domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:       {domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

// stockAdjustingStatuses are the statuses whose entry decrements product stock.
var stockAdjustingStatuses = []domain.OrderStatus{
	domain.OrderStatusPaid,
	domain.OrderStatusProcessing,
}

var knownOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusPaid,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusCompleted,
	domain.OrderStatusCancelled,
}

// ParseOrderStatus normalises and validates a raw status value at the boundary.
func ParseOrderStatus(raw string) (domain.OrderStatus, error) {
	candidate := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(knownOrderStatuses, candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrOrderInvalidStatus, raw)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Services    repositories.RoastServiceRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	services   repositories.RoastServiceRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		services:   deps.Services,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	status := domain.OrderStatusPending
	if cmd.Status != "" {
		parsed, err := ParseOrderStatus(string(cmd.Status))
		if err != nil {
			return Order{}, err
		}
		status = parsed
	}

	now := s.now()

	items, subtotal, currency, err := s.buildLineItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	// Checkout supplies the order id so retries collide on the same
	// document instead of placing a second order.
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		orderID = s.nextOrderID()
	}

	order := Order{
		ID:           orderID,
		UserID:       userID,
		CustomerName: strings.TrimSpace(cmd.CustomerName),
		Status:       status,
		Items:        items,
		Subtotal:     subtotal,
		Total:        subtotal,
		Currency:     currency,
		Notes:        strings.TrimSpace(cmd.Notes),
		Metadata:     cloneMap(cmd.Metadata),
		StatusHistory: []StatusHistoryEntry{{
			To:         status,
			ActorID:    strings.TrimSpace(cmd.ActorID),
			Reason:     "order placed",
			OccurredAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if snap := cmd.Shipping; snap != nil {
		if snap.Cost < 0 {
			return Order{}, fmt.Errorf("%w: shipping cost must not be negative", ErrOrderInvalidInput)
		}
		shipping := ShippingSnapshot{
			Address:     strings.TrimSpace(snap.Address),
			DistanceKm:  snap.DistanceKm,
			Cost:        snap.Cost,
			Service:     snap.Service,
			Mode:        snap.Mode,
			EstimatedAt: now,
		}
		if snap.Coordinate != nil {
			shipping.Coordinate = valuePtr(*snap.Coordinate)
		}
		order.Shipping = &shipping
		order.ShippingCost = snap.Cost
		order.Total = subtotal + snap.Cost
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.created", map[string]any{
		"order":  order.ID,
		"user":   order.UserID,
		"lines":  len(order.Items),
		"amount": order.Total,
	})

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if !slices.Contains(knownOrderStatuses, target) {
		return Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, string(target))
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, order.Status)
	}

	// Repeating the current status is a no-op rather than an error.
	if order.Status == target {
		return order, nil
	}

	if !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, order.Status, target)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	now := s.now()
	prevStatus := order.Status

	if slices.Contains(stockAdjustingStatuses, target) && !order.StockAdjusted {
		adjusted, err := s.adjustStock(ctx, order, now)
		if err != nil {
			return Order{}, err
		}
		order = adjusted
	}

	applyStatusChange(&order, target, actor, strings.TrimSpace(cmd.Reason), now)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"order": order.ID,
		"from":  string(prevStatus),
		"to":    string(order.Status),
		"actor": actor,
	})

	// The caller sees the persisted document, including any fields a
	// repository trigger or concurrent writer touched during the update.
	fresh, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return fresh, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "cancelled"
	}
	return s.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusCancelled,
		ActorID:        cmd.ActorID,
		Reason:         reason,
		ExpectedStatus: cmd.ExpectedStatus,
	})
}

// adjustStock decrements product stock for the order's product lines exactly once.
// The repository commit is a compare-and-set on the stockAdjusted flag; when a
// concurrent transition already claimed it, the fresh order is used as-is.
func (s *orderService) adjustStock(ctx context.Context, order Order, now time.Time) (Order, error) {
	deltas := stockDeltas(order.Items)
	if len(deltas) == 0 {
		order.StockAdjusted = true
		return order, nil
	}

	updated, err := s.orders.CommitStockAdjustment(ctx, order.ID, deltas, now)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			fresh, findErr := s.orders.FindByID(ctx, order.ID)
			if findErr != nil {
				return Order{}, s.mapRepositoryError(findErr)
			}
			if fresh.StockAdjusted {
				return fresh, nil
			}
			return Order{}, fmt.Errorf("%w: concurrent stock adjustment", ErrOrderConflict)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *orderService) buildLineItems(ctx context.Context, inputs []OrderItemInput) ([]OrderLineItem, int64, string, error) {
	items := make([]OrderLineItem, 0, len(inputs))
	var subtotal int64
	currency := ""

	for i, input := range inputs {
		if input.Quantity <= 0 {
			return nil, 0, "", fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}

		switch input.Type {
		case domain.LineItemTypeProduct:
			productID := strings.TrimSpace(input.ProductID)
			if productID == "" {
				return nil, 0, "", fmt.Errorf("%w: item %d product id is required", ErrOrderInvalidInput, i)
			}
			product, err := s.products.FindByID(ctx, productID)
			if err != nil {
				return nil, 0, "", s.mapRepositoryError(err)
			}
			if product.Status != domain.ProductStatusActive {
				return nil, 0, "", fmt.Errorf("%w: product %s is not available", ErrOrderInvalidInput, productID)
			}
			if product.Stock < input.Quantity {
				return nil, 0, "", fmt.Errorf("%w: product %s has %d left", ErrOrderInsufficientStock, productID, product.Stock)
			}
			line := OrderLineItem{
				ID:        s.nextLineItemID(),
				Type:      domain.LineItemTypeProduct,
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  input.Quantity,
				WeightKg:  product.WeightKg * float64(input.Quantity),
				UnitPrice: product.Price,
				Subtotal:  product.Price * int64(input.Quantity),
			}
			items = append(items, line)
			subtotal += line.Subtotal
			if currency == "" {
				currency = product.Currency
			}
		case domain.LineItemTypeService:
			if s.services == nil {
				return nil, 0, "", fmt.Errorf("%w: roast services are not available", ErrOrderInvalidInput)
			}
			serviceID := strings.TrimSpace(input.ServiceID)
			if serviceID == "" {
				return nil, 0, "", fmt.Errorf("%w: item %d service id is required", ErrOrderInvalidInput, i)
			}
			svc, err := s.services.FindByID(ctx, serviceID)
			if err != nil {
				return nil, 0, "", s.mapRepositoryError(err)
			}
			if svc.Status != domain.ProductStatusActive {
				return nil, 0, "", fmt.Errorf("%w: service %s is not available", ErrOrderInvalidInput, serviceID)
			}
			if input.WeightKg <= 0 {
				return nil, 0, "", fmt.Errorf("%w: item %d weight must be positive", ErrOrderInvalidInput, i)
			}
			if svc.MinWeightKg > 0 && input.WeightKg < svc.MinWeightKg {
				return nil, 0, "", fmt.Errorf("%w: item %d weight below service minimum %.1fkg", ErrOrderInvalidInput, i, svc.MinWeightKg)
			}
			price := int64(float64(svc.PricePerKg) * input.WeightKg)
			line := OrderLineItem{
				ID:        s.nextLineItemID(),
				Type:      domain.LineItemTypeService,
				ServiceID: svc.ID,
				Name:      svc.Name,
				Quantity:  input.Quantity,
				WeightKg:  input.WeightKg * float64(input.Quantity),
				UnitPrice: price,
				Subtotal:  price * int64(input.Quantity),
			}
			items = append(items, line)
			subtotal += line.Subtotal
			if currency == "" {
				currency = svc.Currency
			}
		default:
			return nil, 0, "", fmt.Errorf("%w: item %d has unknown type %q", ErrOrderInvalidInput, i, input.Type)
		}
	}

	if currency == "" {
		currency = "IDR"
	}

	return items, subtotal, currency, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) nextLineItemID() string {
	return lineItemIDPrefix + s.newID()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func applyStatusChange(order *Order, target domain.OrderStatus, actor, reason string, now time.Time) {
	entry := StatusHistoryEntry{
		From:       order.Status,
		To:         target,
		ActorID:    actor,
		Reason:     reason,
		OccurredAt: now,
	}
	order.Status = target
	order.StatusHistory = append(order.StatusHistory, entry)
	order.UpdatedAt = now
}

// stockDeltas aggregates the units to remove per product, grouping duplicate
// lines so each product is decremented once.
func stockDeltas(items []OrderLineItem) map[string]int {
	deltas := make(map[string]int)
	for _, item := range items {
		if item.Type != domain.LineItemTypeProduct {
			continue
		}
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			continue
		}
		deltas[id] += item.Quantity
	}
	return deltas
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func ensureMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}

func valuePtr[T any](v T) *T {
	return &v
}
