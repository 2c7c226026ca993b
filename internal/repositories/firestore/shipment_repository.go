package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/roastline/api/internal/domain"
	pfirestore "github.com/roastline/api/internal/platform/firestore"
)

const shipmentsCollection = "shipments"

// ShipmentRepository stores shipment legs keyed by their own document id, with
// an orderRef field linking them back to the order.
type ShipmentRepository struct {
	provider  *pfirestore.Provider
	shipments *pfirestore.Collection[shipmentDocument]
}

func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository requires firestore provider")
	}
	return &ShipmentRepository{
		provider:  provider,
		shipments: pfirestore.NewCollection[shipmentDocument](provider, shipmentsCollection, nil, nil),
	}, nil
}

func (r *ShipmentRepository) Upsert(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error) {
	if r == nil || r.provider == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	if strings.TrimSpace(shipment.ID) == "" {
		return domain.Shipment{}, errors.New("shipment upsert: id is required")
	}

	if _, err := r.shipments.Set(ctx, shipment.ID, newShipmentDocument(shipment)); err != nil {
		return domain.Shipment{}, err
	}
	return shipment, nil
}

func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	if r == nil || r.shipments == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return domain.Shipment{}, errors.New("shipment find: id is required")
	}

	doc, err := r.shipments.Get(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ShipmentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	if r == nil || r.shipments == nil {
		return nil, errors.New("shipment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("shipment list: order id is required")
	}

	docs, err := r.shipments.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderRef", "==", orderID)
	})
	if err != nil {
		return nil, err
	}

	legs := make([]domain.Shipment, 0, len(docs))
	for _, doc := range docs {
		legs = append(legs, doc.Data.toDomain(doc.ID))
	}
	// Inbound first so trackers read the legs in travel order.
	sort.Slice(legs, func(i, j int) bool {
		if legs[i].Type != legs[j].Type {
			return legs[i].Type == domain.ShipmentTypeInbound
		}
		return legs[i].CreatedAt.Before(legs[j].CreatedAt)
	})
	return legs, nil
}

func (r *ShipmentRepository) DeleteByOrderAndType(ctx context.Context, orderID string, shipmentType domain.ShipmentType) error {
	if r == nil || r.shipments == nil {
		return errors.New("shipment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("shipment delete: order id is required")
	}

	docs, err := r.shipments.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderRef", "==", orderID).Where("type", "==", string(shipmentType))
	})
	if err != nil {
		return err
	}

	for _, doc := range docs {
		ref, err := r.shipments.DocumentRef(ctx, doc.ID)
		if err != nil {
			return err
		}
		if _, err := ref.Delete(ctx); err != nil {
			return pfirestore.WrapError("shipments.delete", err)
		}
	}
	return nil
}

func (r *ShipmentRepository) UpdateStatus(ctx context.Context, shipmentID string, newStatus domain.ShipmentStatus, event domain.ShipmentEvent) (domain.Shipment, error) {
	if r == nil || r.provider == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return domain.Shipment{}, errors.New("shipment update: id is required")
	}

	var updated domain.Shipment
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.shipments.DocumentRef(ctx, shipmentID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return status.Errorf(codes.NotFound, "shipment %s not found", shipmentID)
			}
			return err
		}
		var doc shipmentDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode shipment %s: %w", shipmentID, err)
		}

		doc.Status = string(newStatus)
		doc.Events = append(doc.Events, shipmentEventDocument{
			Status:     string(event.Status),
			Detail:     event.Detail,
			OccurredAt: event.OccurredAt.UTC(),
		})
		doc.UpdatedAt = event.OccurredAt.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}

		updated = doc.toDomain(shipmentID)
		return nil
	})
	if err != nil {
		return domain.Shipment{}, pfirestore.WrapError("shipments.updateStatus", err)
	}
	return updated, nil
}

// Document structures --------------------------------------------------------

type shipmentDocument struct {
	OrderRef    string                  `firestore:"orderRef"`
	UserRef     string                  `firestore:"userRef"`
	Type        string                  `firestore:"type"`
	Status      string                  `firestore:"status"`
	Origin      endpointDocument        `firestore:"origin"`
	Destination endpointDocument        `firestore:"destination"`
	DistanceKm  float64                 `firestore:"distanceKm"`
	WeightKg    float64                 `firestore:"weightKg"`
	Service     string                  `firestore:"service"`
	Cost        int64                   `firestore:"cost"`
	ScheduledAt *time.Time              `firestore:"scheduledAt,omitempty"`
	Events      []shipmentEventDocument `firestore:"events"`
	CreatedAt   time.Time               `firestore:"createdAt"`
	UpdatedAt   time.Time               `firestore:"updatedAt"`
}

type endpointDocument struct {
	Address    string             `firestore:"address"`
	Coordinate coordinateDocument `firestore:"coordinate"`
}

type shipmentEventDocument struct {
	Status     string    `firestore:"status"`
	Detail     string    `firestore:"detail,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

func newShipmentDocument(shipment domain.Shipment) shipmentDocument {
	events := make([]shipmentEventDocument, len(shipment.Events))
	for i, event := range shipment.Events {
		events[i] = shipmentEventDocument{
			Status:     string(event.Status),
			Detail:     event.Detail,
			OccurredAt: event.OccurredAt.UTC(),
		}
	}
	return shipmentDocument{
		OrderRef:    strings.TrimSpace(shipment.OrderID),
		UserRef:     strings.TrimSpace(shipment.UserID),
		Type:        string(shipment.Type),
		Status:      string(shipment.Status),
		Origin:      newEndpointDocument(shipment.Origin),
		Destination: newEndpointDocument(shipment.Destination),
		DistanceKm:  shipment.DistanceKm,
		WeightKg:    shipment.WeightKg,
		Service:     string(shipment.Service),
		Cost:        shipment.Cost,
		ScheduledAt: shipment.ScheduledAt,
		Events:      events,
		CreatedAt:   shipment.CreatedAt.UTC(),
		UpdatedAt:   shipment.UpdatedAt.UTC(),
	}
}

func newEndpointDocument(endpoint domain.ShipmentEndpoint) endpointDocument {
	return endpointDocument{
		Address: endpoint.Address,
		Coordinate: coordinateDocument{
			Lat: endpoint.Coordinate.Lat,
			Lng: endpoint.Coordinate.Lng,
		},
	}
}

func (d endpointDocument) toDomain() domain.ShipmentEndpoint {
	return domain.ShipmentEndpoint{
		Address: d.Address,
		Coordinate: domain.Coordinate{
			Lat: d.Coordinate.Lat,
			Lng: d.Coordinate.Lng,
		},
	}
}

func (d shipmentDocument) toDomain(id string) domain.Shipment {
	events := make([]domain.ShipmentEvent, len(d.Events))
	for i, event := range d.Events {
		events[i] = domain.ShipmentEvent{
			Status:     domain.ShipmentStatus(event.Status),
			Detail:     event.Detail,
			OccurredAt: event.OccurredAt,
		}
	}
	return domain.Shipment{
		ID:          id,
		OrderID:     d.OrderRef,
		UserID:      d.UserRef,
		Type:        domain.ShipmentType(d.Type),
		Status:      domain.ShipmentStatus(d.Status),
		Origin:      d.Origin.toDomain(),
		Destination: d.Destination.toDomain(),
		DistanceKm:  d.DistanceKm,
		WeightKg:    d.WeightKg,
		Service:     domain.ShippingServiceLevel(d.Service),
		Cost:        d.Cost,
		ScheduledAt: d.ScheduledAt,
		Events:      events,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
