package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/geo"
	"github.com/roastline/api/internal/repositories"
)

const shipmentIDPrefix = "shp_"

var (
	// ErrShippingInvalidInput signals the caller provided invalid data.
	ErrShippingInvalidInput = errors.New("shipping: invalid input")
	// ErrShippingMissingOrderID indicates the order reference was absent.
	ErrShippingMissingOrderID = errors.New("shipping: order id is required")
	// ErrShippingMissingAddress indicates no destination address could be resolved.
	ErrShippingMissingAddress = errors.New("shipping: destination address is required")
	// ErrShippingInvalidWeight indicates the shippable weight is zero or negative.
	ErrShippingInvalidWeight = errors.New("shipping: invalid weight")
	// ErrShippingBelowCargoMinimum indicates cargo service was requested under the minimum weight.
	ErrShippingBelowCargoMinimum = errors.New("shipping: weight below cargo minimum")
	// ErrShippingOrderNotFound indicates the referenced order does not exist.
	ErrShippingOrderNotFound = errors.New("shipping: order not found")
	// ErrShippingForbidden indicates the actor may not view the requested shipments.
	ErrShippingForbidden = errors.New("shipping: forbidden")
	// ErrShippingNoData indicates no shipment legs exist for the order.
	ErrShippingNoData = errors.New("shipping: no shipment data")
	// ErrShippingConflict indicates a leg is already past the point of re-pricing.
	ErrShippingConflict = errors.New("shipping: conflict")
	// ErrShipmentNotFound indicates the shipment leg does not exist.
	ErrShipmentNotFound = errors.New("shipping: shipment not found")
)

// mutableShipmentStatuses are the leg statuses an estimate may overwrite or remove.
var mutableShipmentStatuses = []domain.ShipmentStatus{
	domain.ShipmentStatusPending,
	domain.ShipmentStatusPickupScheduled,
}

var shipmentStatusTransitions = map[domain.ShipmentStatus][]domain.ShipmentStatus{
	domain.ShipmentStatusPending:         {domain.ShipmentStatusPickupScheduled, domain.ShipmentStatusInTransit, domain.ShipmentStatusCancelled},
	domain.ShipmentStatusPickupScheduled: {domain.ShipmentStatusInTransit, domain.ShipmentStatusCancelled},
	domain.ShipmentStatusInTransit:       {domain.ShipmentStatusDelivered},
}

var knownShipmentStatuses = []domain.ShipmentStatus{
	domain.ShipmentStatusPending,
	domain.ShipmentStatusPickupScheduled,
	domain.ShipmentStatusInTransit,
	domain.ShipmentStatusDelivered,
	domain.ShipmentStatusCancelled,
}

// ShippingServiceDeps bundles collaborators required to construct the shipping service.
type ShippingServiceDeps struct {
	Orders      repositories.OrderRepository
	Shipments   repositories.ShipmentRepository
	Users       repositories.UserRepository
	Settings    repositories.SettingsRepository
	Geocoder    geo.Geocoder
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shippingService struct {
	orders     repositories.OrderRepository
	shipments  repositories.ShipmentRepository
	users      repositories.UserRepository
	settings   repositories.SettingsRepository
	geocoder   geo.Geocoder
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewShippingService wires dependencies into a concrete ShippingService implementation.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Orders == nil {
		return nil, errors.New("shipping service: order repository is required")
	}
	if deps.Shipments == nil {
		return nil, errors.New("shipping service: shipment repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("shipping service: settings repository is required")
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
		idGen = uuid.NewString
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shippingService{
		orders:     deps.Orders,
		shipments:  deps.Shipments,
		users:      deps.Users,
		settings:   deps.Settings,
		geocoder:   deps.Geocoder,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *shippingService) Estimate(ctx context.Context, cmd EstimateShippingCommand) (ShippingEstimate, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return ShippingEstimate{}, ErrShippingMissingOrderID
	}

	// An estimate may run before checkout creates the order document. A
	// missing order prices and persists the legs without touching an order.
	order, orderFound, err := s.findOrder(ctx, orderID)
	if err != nil {
		return ShippingEstimate{}, err
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return ShippingEstimate{}, err
	}

	weight, err := resolveWeight(cmd.WeightKg, order)
	if err != nil {
		return ShippingEstimate{}, err
	}

	mode := cmd.Mode
	if mode == "" {
		mode = domain.ShipmentModeOneWay
	}
	if mode != domain.ShipmentModeOneWay && mode != domain.ShipmentModeTwoWay {
		return ShippingEstimate{}, fmt.Errorf("%w: unknown mode %q", ErrShippingInvalidInput, string(cmd.Mode))
	}

	service, err := resolveServiceLevel(cmd.Service, weight, settings.Rates)
	if err != nil {
		return ShippingEstimate{}, err
	}

	destination, degraded, err := s.resolveDestination(ctx, cmd, order, orderFound, settings)
	if err != nil {
		return ShippingEstimate{}, err
	}

	origin := domain.ShipmentEndpoint{
		Address:    settings.OriginAddress,
		Coordinate: settings.OriginCoordinate,
	}

	// Pricing works on raw haversine distances; per-kilometre figures are
	// rounded for display only, so the total never drifts from the tariff.
	legDistance := geo.Distance(
		geo.Point{Lat: origin.Coordinate.Lat, Lng: origin.Coordinate.Lng},
		geo.Point{Lat: destination.Coordinate.Lat, Lng: destination.Coordinate.Lng},
	)

	now := s.now()

	quotes := []ShipmentLegQuote{{
		Type:        domain.ShipmentTypeOutbound,
		Origin:      origin,
		Destination: destination,
		DistanceKm:  geo.RoundKm(legDistance),
		Cost:        legPrice(service, legDistance, weight, settings.Rates),
	}}
	if mode == domain.ShipmentModeTwoWay {
		// Two-way trips price the inbound leg first so couriers collect the
		// customer's beans before the roast.
		quotes = append([]ShipmentLegQuote{{
			Type:        domain.ShipmentTypeInbound,
			Origin:      destination,
			Destination: origin,
			DistanceKm:  geo.RoundKm(legDistance),
			Cost:        legPrice(service, legDistance, weight, settings.Rates),
		}}, quotes...)
	}

	totalDistance := legDistance * float64(len(quotes))
	estimate := ShippingEstimate{
		OrderID:         orderID,
		Mode:            mode,
		Service:         service,
		WeightKg:        weight,
		TotalDistanceKm: geo.RoundKm(totalDistance),
		TotalCost:       legPrice(service, totalDistance, weight, settings.Rates),
		Legs:            quotes,
		Degraded:        degraded,
		GeneratedAt:     now,
	}

	ownerID := strings.TrimSpace(order.UserID)
	if ownerID == "" {
		ownerID = strings.TrimSpace(cmd.ActorID)
	}

	persisted, err := s.persistEstimate(ctx, &order, orderFound, ownerID, estimate, now)
	if err != nil {
		return ShippingEstimate{}, err
	}

	// The returned legs reflect what is actually stored: an advanced leg
	// keeps its existing record instead of the fresh quote.
	estimate.Legs = estimate.Legs[:0]
	for _, leg := range persisted {
		estimate.Legs = append(estimate.Legs, ShipmentLegQuote{
			Type:        leg.Type,
			Origin:      leg.Origin,
			Destination: leg.Destination,
			DistanceKm:  leg.DistanceKm,
			Cost:        leg.Cost,
		})
	}

	s.logger(ctx, "shipping.estimated", map[string]any{
		"order":    orderID,
		"mode":     string(mode),
		"service":  string(service),
		"distance": estimate.TotalDistanceKm,
		"cost":     estimate.TotalCost,
		"degraded": degraded,
	})

	return estimate, nil
}

func (s *shippingService) Track(ctx context.Context, query TrackShipmentQuery) (ShipmentTracking, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return ShipmentTracking{}, ErrShippingMissingOrderID
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ShipmentTracking{}, s.mapOrderError(err)
	}

	if !query.IsAdmin && order.UserID != strings.TrimSpace(query.ActorID) {
		return ShipmentTracking{}, fmt.Errorf("%w: order %s", ErrShippingForbidden, orderID)
	}

	legs, err := s.shipments.ListByOrder(ctx, orderID)
	if err != nil {
		return ShipmentTracking{}, s.mapShipmentError(err)
	}
	if len(legs) == 0 {
		return ShipmentTracking{}, fmt.Errorf("%w: order %s", ErrShippingNoData, orderID)
	}

	tracking := ShipmentTracking{
		OrderID: orderID,
		Mode:    domain.ShipmentModeOneWay,
		Legs:    legs,
	}
	for _, leg := range legs {
		tracking.TotalDistanceKm += leg.DistanceKm
		if leg.Type == domain.ShipmentTypeInbound {
			tracking.Mode = domain.ShipmentModeTwoWay
		}
	}
	tracking.TotalDistanceKm = geo.RoundKm(tracking.TotalDistanceKm)

	return tracking, nil
}

func (s *shippingService) UpdateLegStatus(ctx context.Context, cmd UpdateShipmentStatusCommand) (Shipment, error) {
	shipmentID := strings.TrimSpace(cmd.ShipmentID)
	if shipmentID == "" {
		return Shipment{}, fmt.Errorf("%w: shipment id is required", ErrShippingInvalidInput)
	}
	if !slices.Contains(knownShipmentStatuses, cmd.Status) {
		return Shipment{}, fmt.Errorf("%w: unknown status %q", ErrShippingInvalidInput, string(cmd.Status))
	}

	current, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return Shipment{}, s.mapShipmentError(err)
	}

	if current.Status == cmd.Status {
		return current, nil
	}
	if !slices.Contains(shipmentStatusTransitions[current.Status], cmd.Status) {
		return Shipment{}, fmt.Errorf("%w: %s to %s", ErrShippingConflict, current.Status, cmd.Status)
	}

	now := s.now()
	event := ShipmentEvent{
		Status:     cmd.Status,
		Detail:     strings.TrimSpace(cmd.Detail),
		OccurredAt: now,
	}

	updated, err := s.shipments.UpdateStatus(ctx, shipmentID, cmd.Status, event)
	if err != nil {
		return Shipment{}, s.mapShipmentError(err)
	}

	s.logger(ctx, "shipping.leg.status.changed", map[string]any{
		"shipment": shipmentID,
		"order":    updated.OrderID,
		"from":     string(current.Status),
		"to":       string(cmd.Status),
		"actor":    strings.TrimSpace(cmd.ActorID),
	})

	return updated, nil
}

// resolveDestination picks the destination endpoint from, in priority order,
// an explicit coordinate, the payload address, or the customer profile. A
// geocoder miss falls back to the roastery origin and flags the estimate as
// degraded instead of failing the request.
func (s *shippingService) resolveDestination(ctx context.Context, cmd EstimateShippingCommand, order Order, orderFound bool, settings StoreSettings) (domain.ShipmentEndpoint, bool, error) {
	if raw := strings.TrimSpace(cmd.Coordinate); raw != "" {
		point, err := geo.ParsePoint(raw)
		if err != nil {
			return domain.ShipmentEndpoint{}, false, fmt.Errorf("%w: %v", ErrShippingInvalidInput, err)
		}
		return domain.ShipmentEndpoint{
			Address:    strings.TrimSpace(cmd.Address),
			Coordinate: domain.Coordinate{Lat: point.Lat, Lng: point.Lng},
		}, false, nil
	}

	address := strings.TrimSpace(cmd.Address)
	if cmd.AddressSource == AddressSourceProfile || address == "" {
		profileUserID := strings.TrimSpace(order.UserID)
		if !orderFound || profileUserID == "" {
			profileUserID = strings.TrimSpace(cmd.ActorID)
		}
		profileAddress, err := s.profileAddress(ctx, profileUserID)
		if err != nil {
			return domain.ShipmentEndpoint{}, false, err
		}
		if profileAddress != "" {
			address = profileAddress
		}
	}
	if address == "" {
		return domain.ShipmentEndpoint{}, false, ErrShippingMissingAddress
	}

	// An address pasted as "lat,lng" is a coordinate, not a geocoder query.
	if point, err := geo.ParsePoint(address); err == nil {
		return domain.ShipmentEndpoint{
			Address:    address,
			Coordinate: domain.Coordinate{Lat: point.Lat, Lng: point.Lng},
		}, false, nil
	}

	if s.geocoder != nil {
		point, err := s.geocoder.Geocode(ctx, address)
		if err == nil {
			return domain.ShipmentEndpoint{
				Address:    address,
				Coordinate: domain.Coordinate{Lat: point.Lat, Lng: point.Lng},
			}, false, nil
		}
		s.logger(ctx, "shipping.geocode.fallback", map[string]any{
			"order": strings.TrimSpace(cmd.OrderID),
			"error": err.Error(),
		})
	}

	return domain.ShipmentEndpoint{
		Address:    address,
		Coordinate: settings.OriginCoordinate,
	}, true, nil
}

// findOrder reports whether the order exists; only unexpected repository
// failures are returned as errors.
func (s *shippingService) findOrder(ctx context.Context, orderID string) (Order, bool, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, false, nil
		}
		return Order{}, false, s.mapOrderError(err)
	}
	return order, true, nil
}

func (s *shippingService) profileAddress(ctx context.Context, userID string) (string, error) {
	if s.users == nil || strings.TrimSpace(userID) == "" {
		return "", nil
	}
	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(profile.Address), nil
}

// persistEstimate upserts the shipment legs and, when the order exists,
// refreshes its shipping snapshot in the same transaction. A leg already past
// a mutable status is left exactly as stored; switching to one-way removes a
// still-mutable inbound leg. The returned slice is the stored state per leg.
func (s *shippingService) persistEstimate(ctx context.Context, order *Order, orderFound bool, ownerID string, estimate ShippingEstimate, now time.Time) ([]Shipment, error) {
	existing, err := s.shipments.ListByOrder(ctx, estimate.OrderID)
	if err != nil {
		return nil, s.mapShipmentError(err)
	}

	byType := make(map[domain.ShipmentType]Shipment, len(existing))
	for _, leg := range existing {
		byType[leg.Type] = leg
	}

	var final []Shipment
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		final = final[:0]
		for _, quote := range estimate.Legs {
			prev, hasPrev := byType[quote.Type]
			if hasPrev && !slices.Contains(mutableShipmentStatuses, prev.Status) {
				// The leg is already moving; keep its record untouched.
				final = append(final, prev)
				continue
			}

			leg := Shipment{
				ID:          shipmentIDPrefix + s.newID(),
				OrderID:     estimate.OrderID,
				UserID:      ownerID,
				Type:        quote.Type,
				Status:      initialLegStatus(quote.Type),
				Origin:      quote.Origin,
				Destination: quote.Destination,
				DistanceKm:  quote.DistanceKm,
				WeightKg:    estimate.WeightKg,
				Service:     estimate.Service,
				Cost:        quote.Cost,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if hasPrev {
				leg.ID = prev.ID
				leg.Status = prev.Status
				leg.Events = prev.Events
				leg.CreatedAt = prev.CreatedAt
			}
			saved, err := s.shipments.Upsert(txCtx, leg)
			if err != nil {
				return s.mapShipmentError(err)
			}
			final = append(final, saved)
		}

		if estimate.Mode == domain.ShipmentModeOneWay {
			if prev, ok := byType[domain.ShipmentTypeInbound]; ok && slices.Contains(mutableShipmentStatuses, prev.Status) {
				if err := s.shipments.DeleteByOrderAndType(txCtx, estimate.OrderID, domain.ShipmentTypeInbound); err != nil {
					return s.mapShipmentError(err)
				}
			}
		}

		if !orderFound {
			return nil
		}

		destination := estimate.Legs[len(estimate.Legs)-1].Destination
		order.Shipping = &ShippingSnapshot{
			Address:     destination.Address,
			Coordinate:  valuePtr(destination.Coordinate),
			DistanceKm:  estimate.TotalDistanceKm,
			Cost:        estimate.TotalCost,
			Service:     estimate.Service,
			Mode:        estimate.Mode,
			Degraded:    estimate.Degraded,
			EstimatedAt: now,
		}
		order.ShippingCost = estimate.TotalCost
		order.Total = order.Subtotal + order.ShippingCost
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, *order); err != nil {
			return s.mapOrderError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

func (s *shippingService) loadSettings(ctx context.Context) (StoreSettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return DefaultStoreSettings(), nil
		}
		return StoreSettings{}, err
	}
	return applySettingsDefaults(settings), nil
}

func (s *shippingService) mapOrderError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShippingOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrShippingConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shipping: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *shippingService) mapShipmentError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShipmentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrShippingConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shipping: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *shippingService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *shippingService) now() time.Time {
	return s.clock()
}

func initialLegStatus(legType domain.ShipmentType) domain.ShipmentStatus {
	if legType == domain.ShipmentTypeInbound {
		return domain.ShipmentStatusPickupScheduled
	}
	return domain.ShipmentStatusPending
}

// resolveServiceLevel validates the requested courier tier against the weight,
// or picks one from the cargo threshold when the caller did not choose.
func resolveServiceLevel(requested ShippingServiceLevel, weightKg float64, rates ShippingRates) (ShippingServiceLevel, error) {
	switch requested {
	case "":
		if weightKg >= rates.CargoMinKg {
			return domain.ShippingServiceCargo, nil
		}
		return domain.ShippingServiceRegular, nil
	case domain.ShippingServiceCargo:
		if weightKg < rates.CargoMinKg {
			return "", fmt.Errorf("%w: %.2fkg < %.2fkg", ErrShippingBelowCargoMinimum, weightKg, rates.CargoMinKg)
		}
		return domain.ShippingServiceCargo, nil
	case domain.ShippingServiceRegular:
		return domain.ShippingServiceRegular, nil
	default:
		return "", fmt.Errorf("%w: unknown service %q", ErrShippingInvalidInput, string(requested))
	}
}

// legPrice computes round(perKm * distance * weight / divisor) in the store currency.
func legPrice(service ShippingServiceLevel, distanceKm, weightKg float64, rates ShippingRates) int64 {
	perKm := rates.RegularPerKm
	if service == domain.ShippingServiceCargo {
		perKm = rates.CargoPerKm
	}
	divisor := rates.WeightDivisorKg
	if divisor <= 0 {
		divisor = 10
	}
	return int64(math.Round(float64(perKm) * distanceKm * (weightKg / divisor)))
}

// resolveWeight validates the consignment weight. Zero means "use the combined
// weight of the order's items"; anything else must be a positive finite number.
func resolveWeight(requested float64, order Order) (float64, error) {
	if math.IsNaN(requested) || math.IsInf(requested, 0) || requested < 0 {
		return 0, fmt.Errorf("%w: %v", ErrShippingInvalidWeight, requested)
	}
	weight := requested
	if weight == 0 {
		weight = orderWeightKg(order)
	}
	if weight <= 0 {
		return 0, fmt.Errorf("%w: %.2fkg", ErrShippingInvalidWeight, weight)
	}
	return weight, nil
}

func orderWeightKg(order Order) float64 {
	var total float64
	for _, item := range order.Items {
		total += item.WeightKg
	}
	return total
}
