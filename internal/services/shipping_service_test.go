package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/geo"
)

type stubShipmentRepo struct {
	upsertFn       func(context.Context, domain.Shipment) (domain.Shipment, error)
	findFn         func(context.Context, string) (domain.Shipment, error)
	listByOrderFn  func(context.Context, string) ([]domain.Shipment, error)
	deleteFn       func(context.Context, string, domain.ShipmentType) error
	updateStatusFn func(context.Context, string, domain.ShipmentStatus, domain.ShipmentEvent) (domain.Shipment, error)
}

func (s *stubShipmentRepo) Upsert(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, shipment)
	}
	return shipment, nil
}

func (s *stubShipmentRepo) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	if s.findFn != nil {
		return s.findFn(ctx, shipmentID)
	}
	return domain.Shipment{}, repoError{notFound: true}
}

func (s *stubShipmentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	if s.listByOrderFn != nil {
		return s.listByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubShipmentRepo) DeleteByOrderAndType(ctx context.Context, orderID string, shipmentType domain.ShipmentType) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID, shipmentType)
	}
	return nil
}

func (s *stubShipmentRepo) UpdateStatus(ctx context.Context, shipmentID string, status domain.ShipmentStatus, event domain.ShipmentEvent) (domain.Shipment, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, shipmentID, status, event)
	}
	return domain.Shipment{}, errors.New("not implemented")
}

type stubSettingsRepo struct {
	getFn  func(context.Context) (domain.StoreSettings, error)
	saveFn func(context.Context, domain.StoreSettings) (domain.StoreSettings, error)
}

func (s *stubSettingsRepo) Get(ctx context.Context) (domain.StoreSettings, error) {
	if s.getFn != nil {
		return s.getFn(ctx)
	}
	return domain.StoreSettings{}, repoError{notFound: true}
}

func (s *stubSettingsRepo) Save(ctx context.Context, settings domain.StoreSettings) (domain.StoreSettings, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, settings)
	}
	return settings, nil
}

type stubUserRepo struct {
	findFn   func(context.Context, string) (domain.UserProfile, error)
	updateFn func(context.Context, domain.UserProfile) (domain.UserProfile, error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.UserProfile{}, repoError{notFound: true}
}

func (s *stubUserRepo) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, profile)
	}
	return profile, nil
}

type shippingFixture struct {
	orders    *stubOrderRepo
	shipments *stubShipmentRepo
	settings  *stubSettingsRepo
	users     *stubUserRepo
	geocoder  geo.Geocoder
}

func newTestShippingService(t *testing.T, fx shippingFixture) ShippingService {
	t.Helper()
	if fx.orders == nil {
		fx.orders = &stubOrderRepo{}
	}
	if fx.shipments == nil {
		fx.shipments = &stubShipmentRepo{}
	}
	if fx.settings == nil {
		fx.settings = &stubSettingsRepo{}
	}

	counter := 0
	deps := ShippingServiceDeps{
		Orders:    fx.orders,
		Shipments: fx.shipments,
		Settings:  fx.settings,
		Geocoder:  fx.geocoder,
		Clock:     func() time.Time { return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC) },
		IDGenerator: func() string {
			counter++
			return string(rune('a'+counter-1)) + "-leg"
		},
	}
	// Assigning a nil *stubUserRepo would give Deps.Users a non-nil
	// interface wrapping a nil pointer, so only set it when present.
	if fx.users != nil {
		deps.Users = fx.users
	}
	svc, err := NewShippingService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}
	return svc
}

func shippableOrder() domain.Order {
	return domain.Order{
		ID:       "ord_1",
		UserID:   "user-1",
		Status:   domain.OrderStatusPaid,
		Subtotal: 480000,
		Total:    480000,
		Currency: "IDR",
		Items: []domain.OrderLineItem{
			{Type: domain.LineItemTypeProduct, ProductID: "prd_A", Quantity: 4, WeightKg: 2},
		},
	}
}

// jakartaCoordinate is roughly 120km from the default roastery origin.
const jakartaCoordinate = "-6.175392, 106.827153"

// rawJakartaLegKm is the unrounded haversine distance the engine prices with.
func rawJakartaLegKm() float64 {
	origin := DefaultStoreSettings().OriginCoordinate
	return geo.Distance(
		geo.Point{Lat: origin.Lat, Lng: origin.Lng},
		geo.Point{Lat: -6.175392, Lng: 106.827153},
	)
}

func TestShippingServiceEstimateOneWayRegular(t *testing.T) {
	order := shippableOrder()
	var updatedOrder domain.Order
	var upserted []domain.Shipment

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return order, nil },
			updateFn: func(_ context.Context, o domain.Order) error {
				updatedOrder = o
				return nil
			},
		},
		shipments: &stubShipmentRepo{
			upsertFn: func(_ context.Context, leg domain.Shipment) (domain.Shipment, error) {
				upserted = append(upserted, leg)
				return leg, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	estimate, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_1",
		Address:    "Jl. Sudirman No.1, Jakarta",
		Coordinate: jakartaCoordinate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if estimate.Mode != domain.ShipmentModeOneWay {
		t.Fatalf("expected one_way mode, got %q", estimate.Mode)
	}
	if estimate.Service != domain.ShippingServiceRegular {
		t.Fatalf("expected regular service for 2kg, got %q", estimate.Service)
	}
	if estimate.Degraded {
		t.Fatalf("explicit coordinate must not degrade the estimate")
	}
	if len(estimate.Legs) != 1 || estimate.Legs[0].Type != domain.ShipmentTypeOutbound {
		t.Fatalf("expected a single outbound leg, got %+v", estimate.Legs)
	}
	if estimate.Legs[0].DistanceKm < 80 || estimate.Legs[0].DistanceKm > 160 {
		t.Fatalf("implausible Bandung to Jakarta distance %.2fkm", estimate.Legs[0].DistanceKm)
	}

	wantCost := int64(math.Round(4000 * rawJakartaLegKm() * (2.0 / 10)))
	if estimate.TotalCost != wantCost {
		t.Fatalf("expected cost %d, got %d", wantCost, estimate.TotalCost)
	}
	if estimate.Legs[0].DistanceKm != geo.RoundKm(rawJakartaLegKm()) {
		t.Fatalf("leg distance must be rounded for display, got %v", estimate.Legs[0].DistanceKm)
	}

	if len(upserted) != 1 || upserted[0].Status != domain.ShipmentStatusPending {
		t.Fatalf("expected one pending leg persisted, got %+v", upserted)
	}
	if updatedOrder.ShippingCost != wantCost || updatedOrder.Total != order.Subtotal+wantCost {
		t.Fatalf("expected order totals refreshed, got cost=%d total=%d", updatedOrder.ShippingCost, updatedOrder.Total)
	}
	if updatedOrder.Shipping == nil || updatedOrder.Shipping.Mode != domain.ShipmentModeOneWay {
		t.Fatalf("expected shipping snapshot on order, got %+v", updatedOrder.Shipping)
	}
}

func TestShippingServiceEstimateTwoWayCargo(t *testing.T) {
	var upserted []domain.Shipment

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
			updateFn: func(context.Context, domain.Order) error {
				return nil
			},
		},
		shipments: &stubShipmentRepo{
			upsertFn: func(_ context.Context, leg domain.Shipment) (domain.Shipment, error) {
				upserted = append(upserted, leg)
				return leg, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	estimate, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_1",
		Address:    "Jl. Sudirman No.1, Jakarta",
		Coordinate: jakartaCoordinate,
		Mode:       domain.ShipmentModeTwoWay,
		WeightKg:   12,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if estimate.Service != domain.ShippingServiceCargo {
		t.Fatalf("expected cargo auto-selected for 12kg, got %q", estimate.Service)
	}
	if len(estimate.Legs) != 2 {
		t.Fatalf("expected two legs, got %d", len(estimate.Legs))
	}
	if estimate.Legs[0].Type != domain.ShipmentTypeInbound || estimate.Legs[1].Type != domain.ShipmentTypeOutbound {
		t.Fatalf("expected inbound leg first, got %+v", estimate.Legs)
	}

	// The total is priced over the full unrounded round-trip distance, not
	// by summing individually rounded legs.
	rawLeg := rawJakartaLegKm()
	wantTotal := int64(math.Round(2500 * (2 * rawLeg) * (12.0 / 10)))
	if estimate.TotalCost != wantTotal {
		t.Fatalf("expected total %d, got %d", wantTotal, estimate.TotalCost)
	}
	if estimate.TotalDistanceKm != geo.RoundKm(2*rawLeg) {
		t.Fatalf("expected total distance %.2f, got %.2f", geo.RoundKm(2*rawLeg), estimate.TotalDistanceKm)
	}

	if len(upserted) != 2 {
		t.Fatalf("expected both legs persisted, got %d", len(upserted))
	}
	if upserted[0].Status != domain.ShipmentStatusPickupScheduled {
		t.Fatalf("inbound leg must start pickup_scheduled, got %q", upserted[0].Status)
	}
	if upserted[1].Status != domain.ShipmentStatusPending {
		t.Fatalf("outbound leg must start pending, got %q", upserted[1].Status)
	}
}

func TestShippingServiceEstimateCargoBelowMinimum(t *testing.T) {
	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
		},
	}

	svc := newTestShippingService(t, fx)

	_, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_1",
		Coordinate: jakartaCoordinate,
		Service:    domain.ShippingServiceCargo,
	})
	if !errors.Is(err, ErrShippingBelowCargoMinimum) {
		t.Fatalf("expected ErrShippingBelowCargoMinimum for 2kg cargo, got %v", err)
	}
}

func TestShippingServiceEstimateGeocodeFallback(t *testing.T) {
	var updatedOrder domain.Order

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
			updateFn: func(_ context.Context, o domain.Order) error {
				updatedOrder = o
				return nil
			},
		},
		geocoder: geo.GeocoderFunc(func(context.Context, string) (geo.Point, error) {
			return geo.Point{}, geo.ErrNoResults
		}),
	}

	svc := newTestShippingService(t, fx)

	estimate, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID: "ord_1",
		Address: "somewhere unresolvable",
	})
	if err != nil {
		t.Fatalf("geocoder miss must not fail the estimate, got %v", err)
	}
	if !estimate.Degraded {
		t.Fatalf("expected degraded estimate")
	}
	if estimate.TotalDistanceKm != 0 || estimate.TotalCost != 0 {
		t.Fatalf("origin fallback should price a zero-distance trip, got %.2fkm %d", estimate.TotalDistanceKm, estimate.TotalCost)
	}
	if updatedOrder.Shipping == nil || !updatedOrder.Shipping.Degraded {
		t.Fatalf("expected degraded flag on order snapshot, got %+v", updatedOrder.Shipping)
	}
}

func TestShippingServiceEstimateUsesProfileAddress(t *testing.T) {
	geocoded := ""

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn:   func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
			updateFn: func(context.Context, domain.Order) error { return nil },
		},
		users: &stubUserRepo{
			findFn: func(context.Context, string) (domain.UserProfile, error) {
				return domain.UserProfile{ID: "user-1", Address: "Jl. Asia Afrika No.8, Bandung"}, nil
			},
		},
		geocoder: geo.GeocoderFunc(func(_ context.Context, address string) (geo.Point, error) {
			geocoded = address
			return geo.Point{Lat: -6.921, Lng: 107.607}, nil
		}),
	}

	svc := newTestShippingService(t, fx)

	estimate, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:       "ord_1",
		AddressSource: AddressSourceProfile,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geocoded != "Jl. Asia Afrika No.8, Bandung" {
		t.Fatalf("expected profile address geocoded, got %q", geocoded)
	}
	if estimate.Degraded {
		t.Fatalf("successful geocode must not degrade the estimate")
	}
}

func TestShippingServiceEstimateMissingAddress(t *testing.T) {
	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
		},
	}

	svc := newTestShippingService(t, fx)

	if _, err := svc.Estimate(context.Background(), EstimateShippingCommand{OrderID: "ord_1"}); !errors.Is(err, ErrShippingMissingAddress) {
		t.Fatalf("expected ErrShippingMissingAddress, got %v", err)
	}
	if _, err := svc.Estimate(context.Background(), EstimateShippingCommand{}); !errors.Is(err, ErrShippingMissingOrderID) {
		t.Fatalf("expected ErrShippingMissingOrderID, got %v", err)
	}
}

func TestShippingServiceEstimateBeforeOrderExists(t *testing.T) {
	orderUpdates := 0
	var upserted []domain.Shipment

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) {
				return domain.Order{}, repoError{notFound: true}
			},
			updateFn: func(context.Context, domain.Order) error {
				orderUpdates++
				return nil
			},
		},
		shipments: &stubShipmentRepo{
			upsertFn: func(_ context.Context, leg domain.Shipment) (domain.Shipment, error) {
				upserted = append(upserted, leg)
				return leg, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	estimate, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_new",
		Coordinate: jakartaCoordinate,
		WeightKg:   3,
		ActorID:    "user-9",
	})
	if err != nil {
		t.Fatalf("estimating before checkout must succeed, got %v", err)
	}
	if estimate.OrderID != "ord_new" {
		t.Fatalf("expected order id echoed, got %q", estimate.OrderID)
	}
	if orderUpdates != 0 {
		t.Fatalf("no order document exists yet, got %d updates", orderUpdates)
	}
	if len(upserted) != 1 || upserted[0].UserID != "user-9" {
		t.Fatalf("expected the leg persisted for the requester, got %+v", upserted)
	}
}

func TestShippingServiceEstimateRejectsNegativeWeight(t *testing.T) {
	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
		},
	}

	svc := newTestShippingService(t, fx)

	// A negative weight must not silently fall back to the order's weight.
	for _, weight := range []float64{-5, math.NaN(), math.Inf(1)} {
		_, err := svc.Estimate(context.Background(), EstimateShippingCommand{
			OrderID:    "ord_1",
			Coordinate: jakartaCoordinate,
			WeightKg:   weight,
		})
		if !errors.Is(err, ErrShippingInvalidWeight) {
			t.Fatalf("expected ErrShippingInvalidWeight for %v, got %v", weight, err)
		}
	}

	// Zero still means "use the order's item weight".
	if _, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_1",
		Coordinate: jakartaCoordinate,
	}); err != nil {
		t.Fatalf("omitted weight must default to the order weight, got %v", err)
	}
}

func TestShippingServiceEstimateParsesCoordinateShapedAddress(t *testing.T) {
	geocoderCalls := 0

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn:   func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
			updateFn: func(context.Context, domain.Order) error { return nil },
		},
		geocoder: geo.GeocoderFunc(func(context.Context, string) (geo.Point, error) {
			geocoderCalls++
			return geo.Point{}, geo.ErrNoResults
		}),
	}

	svc := newTestShippingService(t, fx)

	estimate, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID: "ord_1",
		Address: jakartaCoordinate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geocoderCalls != 0 {
		t.Fatalf("a lat,lng address must bypass the geocoder, got %d calls", geocoderCalls)
	}
	if estimate.Degraded {
		t.Fatalf("parsed coordinate must not degrade the estimate")
	}
	if estimate.Legs[0].Destination.Coordinate.Lat != -6.175392 {
		t.Fatalf("expected parsed latitude, got %v", estimate.Legs[0].Destination.Coordinate)
	}
}

func TestShippingServiceEstimatePreservesMutableLeg(t *testing.T) {
	existing := domain.Shipment{
		ID:        "shp_keep",
		OrderID:   "ord_1",
		Type:      domain.ShipmentTypeOutbound,
		Status:    domain.ShipmentStatusPickupScheduled,
		CreatedAt: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
		Events:    []domain.ShipmentEvent{{Status: domain.ShipmentStatusPickupScheduled}},
	}
	var upserted domain.Shipment

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn:   func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
			updateFn: func(context.Context, domain.Order) error { return nil },
		},
		shipments: &stubShipmentRepo{
			listByOrderFn: func(context.Context, string) ([]domain.Shipment, error) {
				return []domain.Shipment{existing}, nil
			},
			upsertFn: func(_ context.Context, leg domain.Shipment) (domain.Shipment, error) {
				upserted = leg
				return leg, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	if _, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_1",
		Coordinate: jakartaCoordinate,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if upserted.ID != "shp_keep" {
		t.Fatalf("expected existing leg id kept, got %q", upserted.ID)
	}
	if upserted.Status != domain.ShipmentStatusPickupScheduled {
		t.Fatalf("expected existing leg status kept, got %q", upserted.Status)
	}
	if !upserted.CreatedAt.Equal(existing.CreatedAt) || len(upserted.Events) != 1 {
		t.Fatalf("expected leg history kept, got %+v", upserted)
	}
}

func TestShippingServiceEstimateLeavesAdvancedLegUntouched(t *testing.T) {
	live := domain.Shipment{
		ID:         "shp_live",
		OrderID:    "ord_1",
		Type:       domain.ShipmentTypeOutbound,
		Status:     domain.ShipmentStatusInTransit,
		DistanceKm: 99.99,
		Cost:       123456,
	}
	upserts := 0

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn:   func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
			updateFn: func(context.Context, domain.Order) error { return nil },
		},
		shipments: &stubShipmentRepo{
			listByOrderFn: func(context.Context, string) ([]domain.Shipment, error) {
				return []domain.Shipment{live}, nil
			},
			upsertFn: func(_ context.Context, leg domain.Shipment) (domain.Shipment, error) {
				upserts++
				return leg, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	estimate, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_1",
		Coordinate: jakartaCoordinate,
	})
	if err != nil {
		t.Fatalf("an in-transit leg must not fail the estimate, got %v", err)
	}
	if upserts != 0 {
		t.Fatalf("in-transit leg must not be re-written, got %d upserts", upserts)
	}
	if len(estimate.Legs) != 1 {
		t.Fatalf("expected one leg in the result, got %d", len(estimate.Legs))
	}
	if estimate.Legs[0].DistanceKm != 99.99 || estimate.Legs[0].Cost != 123456 {
		t.Fatalf("expected the stored leg returned as-is, got %+v", estimate.Legs[0])
	}
}

func TestShippingServiceEstimateOneWayRemovesInboundLeg(t *testing.T) {
	deletedType := domain.ShipmentType("")

	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn:   func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
			updateFn: func(context.Context, domain.Order) error { return nil },
		},
		shipments: &stubShipmentRepo{
			listByOrderFn: func(context.Context, string) ([]domain.Shipment, error) {
				return []domain.Shipment{{
					ID:      "shp_in",
					OrderID: "ord_1",
					Type:    domain.ShipmentTypeInbound,
					Status:  domain.ShipmentStatusPickupScheduled,
				}}, nil
			},
			deleteFn: func(_ context.Context, _ string, shipmentType domain.ShipmentType) error {
				deletedType = shipmentType
				return nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	if _, err := svc.Estimate(context.Background(), EstimateShippingCommand{
		OrderID:    "ord_1",
		Coordinate: jakartaCoordinate,
		Mode:       domain.ShipmentModeOneWay,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deletedType != domain.ShipmentTypeInbound {
		t.Fatalf("expected inbound leg removed, got %q", deletedType)
	}
}

func TestShippingServiceTrackAuthorisation(t *testing.T) {
	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
		},
		shipments: &stubShipmentRepo{
			listByOrderFn: func(context.Context, string) ([]domain.Shipment, error) {
				return []domain.Shipment{
					{ID: "shp_in", Type: domain.ShipmentTypeInbound, DistanceKm: 10.5},
					{ID: "shp_out", Type: domain.ShipmentTypeOutbound, DistanceKm: 10.5},
				}, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	if _, err := svc.Track(context.Background(), TrackShipmentQuery{OrderID: "ord_1", ActorID: "someone-else"}); !errors.Is(err, ErrShippingForbidden) {
		t.Fatalf("expected ErrShippingForbidden, got %v", err)
	}

	tracking, err := svc.Track(context.Background(), TrackShipmentQuery{OrderID: "ord_1", ActorID: "intruder", IsAdmin: true})
	if err != nil {
		t.Fatalf("admin must bypass ownership, got %v", err)
	}
	if tracking.Mode != domain.ShipmentModeTwoWay {
		t.Fatalf("expected two_way inferred from inbound leg, got %q", tracking.Mode)
	}
	if tracking.TotalDistanceKm != 21 {
		t.Fatalf("expected 21km total, got %.2f", tracking.TotalDistanceKm)
	}

	if _, err := svc.Track(context.Background(), TrackShipmentQuery{OrderID: "ord_1", ActorID: "user-1"}); err != nil {
		t.Fatalf("owner must read their shipments, got %v", err)
	}
}

func TestShippingServiceTrackNoData(t *testing.T) {
	fx := shippingFixture{
		orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return shippableOrder(), nil },
		},
	}

	svc := newTestShippingService(t, fx)

	if _, err := svc.Track(context.Background(), TrackShipmentQuery{OrderID: "ord_1", ActorID: "user-1"}); !errors.Is(err, ErrShippingNoData) {
		t.Fatalf("expected ErrShippingNoData, got %v", err)
	}
}

func TestShippingServiceUpdateLegStatus(t *testing.T) {
	current := domain.Shipment{ID: "shp_1", OrderID: "ord_1", Status: domain.ShipmentStatusPending}
	var recordedEvent domain.ShipmentEvent

	fx := shippingFixture{
		shipments: &stubShipmentRepo{
			findFn: func(context.Context, string) (domain.Shipment, error) { return current, nil },
			updateStatusFn: func(_ context.Context, _ string, status domain.ShipmentStatus, event domain.ShipmentEvent) (domain.Shipment, error) {
				recordedEvent = event
				updated := current
				updated.Status = status
				updated.Events = append(updated.Events, event)
				return updated, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	leg, err := svc.UpdateLegStatus(context.Background(), UpdateShipmentStatusCommand{
		ShipmentID: "shp_1",
		Status:     domain.ShipmentStatusInTransit,
		Detail:     "handed to courier",
		ActorID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leg.Status != domain.ShipmentStatusInTransit {
		t.Fatalf("expected in_transit, got %q", leg.Status)
	}
	if recordedEvent.Detail != "handed to courier" || recordedEvent.Status != domain.ShipmentStatusInTransit {
		t.Fatalf("unexpected event %+v", recordedEvent)
	}
}

func TestShippingServiceUpdateLegStatusRejectsInvalid(t *testing.T) {
	fx := shippingFixture{
		shipments: &stubShipmentRepo{
			findFn: func(context.Context, string) (domain.Shipment, error) {
				return domain.Shipment{ID: "shp_1", Status: domain.ShipmentStatusDelivered}, nil
			},
		},
	}

	svc := newTestShippingService(t, fx)

	if _, err := svc.UpdateLegStatus(context.Background(), UpdateShipmentStatusCommand{
		ShipmentID: "shp_1",
		Status:     domain.ShipmentStatusPending,
	}); !errors.Is(err, ErrShippingConflict) {
		t.Fatalf("expected ErrShippingConflict from delivered leg, got %v", err)
	}

	if _, err := svc.UpdateLegStatus(context.Background(), UpdateShipmentStatusCommand{
		ShipmentID: "shp_1",
		Status:     domain.ShipmentStatus("teleported"),
	}); !errors.Is(err, ErrShippingInvalidInput) {
		t.Fatalf("expected ErrShippingInvalidInput, got %v", err)
	}
}

func TestResolveServiceLevel(t *testing.T) {
	rates := DefaultStoreSettings().Rates

	level, err := resolveServiceLevel("", 15, rates)
	if err != nil || level != domain.ShippingServiceCargo {
		t.Fatalf("expected cargo for 15kg, got %q (%v)", level, err)
	}
	level, err = resolveServiceLevel("", 3, rates)
	if err != nil || level != domain.ShippingServiceRegular {
		t.Fatalf("expected regular for 3kg, got %q (%v)", level, err)
	}
	if _, err := resolveServiceLevel(domain.ShippingServiceCargo, 3, rates); !errors.Is(err, ErrShippingBelowCargoMinimum) {
		t.Fatalf("expected ErrShippingBelowCargoMinimum, got %v", err)
	}
	if _, err := resolveServiceLevel(domain.ShippingServiceLevel("drone"), 3, rates); !errors.Is(err, ErrShippingInvalidInput) {
		t.Fatalf("expected ErrShippingInvalidInput, got %v", err)
	}
}

func TestLegPriceRounding(t *testing.T) {
	rates := DefaultStoreSettings().Rates

	// 4000 per km * 12.34km * 0.25 weight factor = 12340.
	if got := legPrice(domain.ShippingServiceRegular, 12.34, 2.5, rates); got != 12340 {
		t.Fatalf("expected 12340, got %d", got)
	}
	// 2500 per km * 100km * 1.2 weight factor = 300000.
	if got := legPrice(domain.ShippingServiceCargo, 100, 12, rates); got != 300000 {
		t.Fatalf("expected 300000, got %d", got)
	}
}
