package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/platform/httpx"
	"github.com/roastline/api/internal/services"
)

const maxShippingBodySize = 16 * 1024

type estimateShippingRequest struct {
	OrderID       string  `json:"order_id"`
	Address       string  `json:"address"`
	Coordinate    string  `json:"coordinate"`
	AddressSource string  `json:"address_source"`
	Mode          string  `json:"mode"`
	Service       string  `json:"service"`
	WeightKg      float64 `json:"weight_kg"`
}

// ShippingHandlers exposes shipping estimates and tracking for customers.
type ShippingHandlers struct {
	authn    *auth.Authenticator
	shipping services.ShippingService

	// maxWeightKg rejects estimates beyond what couriers will carry.
	maxWeightKg float64

	// estimateMiddleware guards the estimate endpoint, typically with the
	// idempotency guard.
	estimateMiddleware func(http.Handler) http.Handler
}

// ShippingHandlersOption customises shipping handler construction.
type ShippingHandlersOption func(*ShippingHandlers)

// WithMaxShippingWeight bounds the accepted consignment weight in kilograms.
func WithMaxShippingWeight(maxKg float64) ShippingHandlersOption {
	return func(h *ShippingHandlers) {
		if maxKg > 0 {
			h.maxWeightKg = maxKg
		}
	}
}

// WithEstimateMiddleware wraps the estimate endpoint.
func WithEstimateMiddleware(mw func(http.Handler) http.Handler) ShippingHandlersOption {
	return func(h *ShippingHandlers) {
		h.estimateMiddleware = mw
	}
}

// NewShippingHandlers constructs shipping handlers.
func NewShippingHandlers(authn *auth.Authenticator, shipping services.ShippingService, opts ...ShippingHandlersOption) *ShippingHandlers {
	h := &ShippingHandlers{
		authn:    authn,
		shipping: shipping,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth)
	}
	if h.estimateMiddleware != nil {
		r.With(h.estimateMiddleware).Post("/estimate", h.estimate)
	} else {
		r.Post("/estimate", h.estimate)
	}
	r.Get("/orders/{orderID}/tracking", h.track)
}

func (h *ShippingHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxShippingBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req estimateShippingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	if h.maxWeightKg > 0 && req.WeightKg > h.maxWeightKg {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "weight exceeds the maximum shippable consignment", http.StatusBadRequest))
		return
	}

	cmd := services.EstimateShippingCommand{
		OrderID:       strings.TrimSpace(req.OrderID),
		Address:       strings.TrimSpace(req.Address),
		Coordinate:    strings.TrimSpace(req.Coordinate),
		AddressSource: services.AddressSource(strings.TrimSpace(strings.ToLower(req.AddressSource))),
		Mode:          domain.ShipmentMode(strings.TrimSpace(strings.ToLower(req.Mode))),
		Service:       domain.ShippingServiceLevel(strings.TrimSpace(strings.ToLower(req.Service))),
		WeightKg:      req.WeightKg,
		ActorID:       identity.UserID,
	}

	estimate, err := h.shipping.Estimate(ctx, cmd)
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildEstimatePayload(estimate))
}

func (h *ShippingHandlers) track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	tracking, err := h.shipping.Track(ctx, services.TrackShipmentQuery{
		OrderID: orderID,
		ActorID: identity.UserID,
		IsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(tracking))
}

type updateShipmentStatusRequest struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// AdminShippingHandlers exposes shipment leg management for the back office.
type AdminShippingHandlers struct {
	authn    *auth.Authenticator
	shipping services.ShippingService
	audit    services.AuditLogService
}

// NewAdminShippingHandlers constructs admin shipping handlers.
func NewAdminShippingHandlers(authn *auth.Authenticator, shipping services.ShippingService, audit services.AuditLogService) *AdminShippingHandlers {
	return &AdminShippingHandlers{authn: authn, shipping: shipping, audit: audit}
}

// Routes registers the admin shipment endpoints.
func (h *AdminShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Put("/shipments/{shipmentID}/status", h.updateStatus)
}

func (h *AdminShippingHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	shipmentID := strings.TrimSpace(chi.URLParam(r, "shipmentID"))
	if shipmentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shipment id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxShippingBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateShipmentStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	shipment, err := h.shipping.UpdateLegStatus(ctx, services.UpdateShipmentStatusCommand{
		ShipmentID: shipmentID,
		Status:     domain.ShipmentStatus(strings.TrimSpace(strings.ToLower(req.Status))),
		Detail:     strings.TrimSpace(req.Detail),
		ActorID:    identity.UserID,
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	recordAdminAudit(r, h.audit, identity, "shipment.status."+string(shipment.Status), "shipments/"+shipmentID, map[string]any{
		"order_id": shipment.OrderID,
		"status":   string(shipment.Status),
	})

	writeJSONResponse(w, http.StatusOK, map[string]any{"shipment": buildShipmentPayload(shipment)})
}

type shipmentEndpointPayload struct {
	Address    string            `json:"address"`
	Coordinate coordinatePayload `json:"coordinate"`
}

type shipmentLegQuotePayload struct {
	Type        string                  `json:"type"`
	Origin      shipmentEndpointPayload `json:"origin"`
	Destination shipmentEndpointPayload `json:"destination"`
	DistanceKm  float64                 `json:"distance_km"`
	Cost        int64                   `json:"cost"`
}

type estimatePayload struct {
	OrderID         string                    `json:"order_id"`
	Mode            string                    `json:"mode"`
	Service         string                    `json:"service"`
	WeightKg        float64                   `json:"weight_kg"`
	TotalDistanceKm float64                   `json:"total_distance_km"`
	TotalCost       int64                     `json:"total_cost"`
	Legs            []shipmentLegQuotePayload `json:"legs"`
	Degraded        bool                      `json:"degraded,omitempty"`
	GeneratedAt     string                    `json:"generated_at"`
}

type shipmentEventPayload struct {
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

type shipmentPayload struct {
	ID          string                  `json:"id"`
	OrderID     string                  `json:"order_id"`
	Type        string                  `json:"type"`
	Status      string                  `json:"status"`
	Origin      shipmentEndpointPayload `json:"origin"`
	Destination shipmentEndpointPayload `json:"destination"`
	DistanceKm  float64                 `json:"distance_km"`
	WeightKg    float64                 `json:"weight_kg"`
	Service     string                  `json:"service"`
	Cost        int64                   `json:"cost"`
	ScheduledAt string                  `json:"scheduled_at,omitempty"`
	Events      []shipmentEventPayload  `json:"events,omitempty"`
	CreatedAt   string                  `json:"created_at"`
	UpdatedAt   string                  `json:"updated_at,omitempty"`
}

type trackingPayload struct {
	OrderID         string            `json:"order_id"`
	Mode            string            `json:"mode"`
	TotalDistanceKm float64           `json:"total_distance_km"`
	Legs            []shipmentPayload `json:"legs"`
}

func buildEstimatePayload(estimate services.ShippingEstimate) estimatePayload {
	payload := estimatePayload{
		OrderID:         strings.TrimSpace(estimate.OrderID),
		Mode:            string(estimate.Mode),
		Service:         string(estimate.Service),
		WeightKg:        estimate.WeightKg,
		TotalDistanceKm: estimate.TotalDistanceKm,
		TotalCost:       estimate.TotalCost,
		Legs:            make([]shipmentLegQuotePayload, 0, len(estimate.Legs)),
		Degraded:        estimate.Degraded,
		GeneratedAt:     formatTime(estimate.GeneratedAt),
	}
	for _, leg := range estimate.Legs {
		payload.Legs = append(payload.Legs, shipmentLegQuotePayload{
			Type:        string(leg.Type),
			Origin:      buildEndpointPayload(leg.Origin),
			Destination: buildEndpointPayload(leg.Destination),
			DistanceKm:  leg.DistanceKm,
			Cost:        leg.Cost,
		})
	}
	return payload
}

func buildTrackingPayload(tracking services.ShipmentTracking) trackingPayload {
	payload := trackingPayload{
		OrderID:         strings.TrimSpace(tracking.OrderID),
		Mode:            string(tracking.Mode),
		TotalDistanceKm: tracking.TotalDistanceKm,
		Legs:            make([]shipmentPayload, 0, len(tracking.Legs)),
	}
	for _, leg := range tracking.Legs {
		payload.Legs = append(payload.Legs, buildShipmentPayload(leg))
	}
	return payload
}

func buildShipmentPayload(shipment services.Shipment) shipmentPayload {
	payload := shipmentPayload{
		ID:          strings.TrimSpace(shipment.ID),
		OrderID:     strings.TrimSpace(shipment.OrderID),
		Type:        string(shipment.Type),
		Status:      string(shipment.Status),
		Origin:      buildEndpointPayload(shipment.Origin),
		Destination: buildEndpointPayload(shipment.Destination),
		DistanceKm:  shipment.DistanceKm,
		WeightKg:    shipment.WeightKg,
		Service:     string(shipment.Service),
		Cost:        shipment.Cost,
		CreatedAt:   formatTime(shipment.CreatedAt),
		UpdatedAt:   formatTime(shipment.UpdatedAt),
	}
	if shipment.ScheduledAt != nil {
		payload.ScheduledAt = formatTime(*shipment.ScheduledAt)
	}
	for _, event := range shipment.Events {
		payload.Events = append(payload.Events, shipmentEventPayload{
			Status:     string(event.Status),
			Detail:     strings.TrimSpace(event.Detail),
			OccurredAt: formatTime(event.OccurredAt),
		})
	}
	return payload
}

func buildEndpointPayload(endpoint services.ShipmentEndpoint) shipmentEndpointPayload {
	return shipmentEndpointPayload{
		Address: strings.TrimSpace(endpoint.Address),
		Coordinate: coordinatePayload{
			Lat: endpoint.Coordinate.Lat,
			Lng: endpoint.Coordinate.Lng,
		},
	}
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrShippingMissingOrderID),
		errors.Is(err, services.ErrShippingMissingAddress),
		errors.Is(err, services.ErrShippingInvalidWeight),
		errors.Is(err, services.ErrShippingBelowCargoMinimum),
		errors.Is(err, services.ErrShippingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to view this shipment", http.StatusForbidden))
	case errors.Is(err, services.ErrShippingOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrShipmentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("shipment_not_found", "shipment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrShippingNoData):
		httpx.WriteError(ctx, w, httpx.NewError("shipment_not_found", "no shipment data for order", http.StatusNotFound))
	case errors.Is(err, services.ErrShippingConflict):
		httpx.WriteError(ctx, w, httpx.NewError("shipment_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "failed to process shipping request", http.StatusInternalServerError))
	}
}
