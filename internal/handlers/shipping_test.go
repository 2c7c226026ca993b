package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/services"
)

type stubShippingService struct {
	estimateFn func(ctx context.Context, cmd services.EstimateShippingCommand) (services.ShippingEstimate, error)
	trackFn    func(ctx context.Context, query services.TrackShipmentQuery) (services.ShipmentTracking, error)
	updateFn   func(ctx context.Context, cmd services.UpdateShipmentStatusCommand) (services.Shipment, error)
}

func (s *stubShippingService) Estimate(ctx context.Context, cmd services.EstimateShippingCommand) (services.ShippingEstimate, error) {
	if s.estimateFn == nil {
		return services.ShippingEstimate{}, nil
	}
	return s.estimateFn(ctx, cmd)
}

func (s *stubShippingService) Track(ctx context.Context, query services.TrackShipmentQuery) (services.ShipmentTracking, error) {
	if s.trackFn == nil {
		return services.ShipmentTracking{}, nil
	}
	return s.trackFn(ctx, query)
}

func (s *stubShippingService) UpdateLegStatus(ctx context.Context, cmd services.UpdateShipmentStatusCommand) (services.Shipment, error) {
	if s.updateFn == nil {
		return services.Shipment{}, nil
	}
	return s.updateFn(ctx, cmd)
}

func sampleEstimate() services.ShippingEstimate {
	origin := services.ShipmentEndpoint{
		Address:    "Jl. Nata Endah No.11B, Bandung",
		Coordinate: domain.Coordinate{Lat: -6.974097, Lng: 107.597262},
	}
	destination := services.ShipmentEndpoint{
		Address:    "Jl. Braga No. 1, Bandung",
		Coordinate: domain.Coordinate{Lat: -6.9175, Lng: 107.6098},
	}
	return services.ShippingEstimate{
		OrderID:         "order-1",
		Mode:            domain.ShipmentModeOneWay,
		Service:         domain.ShippingServiceRegular,
		WeightKg:        2.5,
		TotalDistanceKm: 6.4,
		TotalCost:       6400,
		Legs: []services.ShipmentLegQuote{{
			Type:        domain.ShipmentTypeOutbound,
			Origin:      origin,
			Destination: destination,
			DistanceKm:  6.4,
			Cost:        6400,
		}},
		GeneratedAt: time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestEstimateBuildsCommand(t *testing.T) {
	var captured services.EstimateShippingCommand
	shipping := &stubShippingService{
		estimateFn: func(_ context.Context, cmd services.EstimateShippingCommand) (services.ShippingEstimate, error) {
			captured = cmd
			return sampleEstimate(), nil
		},
	}
	h := NewShippingHandlers(nil, shipping)

	body := `{"order_id":"order-1","address":"Jl. Braga No. 1, Bandung","mode":"one_way","service":"regular","weight_kg":2.5}`
	req := newAuthedRequest(http.MethodPost, "/estimate", body, &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "order-1" || captured.Mode != domain.ShipmentModeOneWay {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.ActorID != "user-1" {
		t.Fatalf("expected actor user-1, got %q", captured.ActorID)
	}

	var payload struct {
		TotalCost int64 `json:"total_cost"`
		Legs      []struct {
			Type string `json:"type"`
		} `json:"legs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.TotalCost != 6400 || len(payload.Legs) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEstimateRejectsOverweightConsignment(t *testing.T) {
	called := false
	shipping := &stubShippingService{
		estimateFn: func(_ context.Context, cmd services.EstimateShippingCommand) (services.ShippingEstimate, error) {
			called = true
			return services.ShippingEstimate{}, nil
		},
	}
	h := NewShippingHandlers(nil, shipping, WithMaxShippingWeight(1000))

	body := `{"order_id":"order-1","address":"somewhere","weight_kg":1500}`
	req := newAuthedRequest(http.MethodPost, "/estimate", body, &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if called {
		t.Fatalf("expected service not to be invoked")
	}
}

func TestEstimateMapsCargoMinimum(t *testing.T) {
	shipping := &stubShippingService{
		estimateFn: func(_ context.Context, cmd services.EstimateShippingCommand) (services.ShippingEstimate, error) {
			return services.ShippingEstimate{}, services.ErrShippingBelowCargoMinimum
		},
	}
	h := NewShippingHandlers(nil, shipping)

	body := `{"order_id":"order-1","address":"somewhere","service":"cargo","weight_kg":3}`
	req := newAuthedRequest(http.MethodPost, "/estimate", body, &auth.Identity{UserID: "user-1", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestTrackForwardsAdminFlag(t *testing.T) {
	var captured services.TrackShipmentQuery
	shipping := &stubShippingService{
		trackFn: func(_ context.Context, query services.TrackShipmentQuery) (services.ShipmentTracking, error) {
			captured = query
			return services.ShipmentTracking{OrderID: query.OrderID, Mode: domain.ShipmentModeTwoWay}, nil
		},
	}
	h := NewShippingHandlers(nil, shipping)

	req := newAuthedRequest(http.MethodGet, "/orders/order-1/tracking", "", &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !captured.IsAdmin {
		t.Fatalf("expected admin flag to be forwarded")
	}
}

func TestTrackMapsForbidden(t *testing.T) {
	shipping := &stubShippingService{
		trackFn: func(_ context.Context, query services.TrackShipmentQuery) (services.ShipmentTracking, error) {
			return services.ShipmentTracking{}, services.ErrShippingForbidden
		},
	}
	h := NewShippingHandlers(nil, shipping)

	req := newAuthedRequest(http.MethodGet, "/orders/order-1/tracking", "", &auth.Identity{UserID: "user-2", Role: auth.RoleUser})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestUpdateLegStatusReturnsShipment(t *testing.T) {
	shipping := &stubShippingService{
		updateFn: func(_ context.Context, cmd services.UpdateShipmentStatusCommand) (services.Shipment, error) {
			return services.Shipment{
				ID:      cmd.ShipmentID,
				OrderID: "order-1",
				Status:  cmd.Status,
			}, nil
		},
	}
	h := NewAdminShippingHandlers(nil, shipping, nil)

	req := newAuthedRequest(http.MethodPut, "/shipments/ship-1/status", `{"status":"in_transit","detail":"picked up"}`, &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload struct {
		Shipment struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"shipment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Shipment.ID != "ship-1" || payload.Shipment.Status != "in_transit" {
		t.Fatalf("unexpected payload: %+v", payload.Shipment)
	}
}
