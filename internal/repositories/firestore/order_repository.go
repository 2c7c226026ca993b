package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/roastline/api/internal/domain"
	pfirestore "github.com/roastline/api/internal/platform/firestore"
	"github.com/roastline/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 200
)

// OrderRepository persists orders in the orders collection. Stock adjustment
// commits touch the products collection inside the same transaction.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}

	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order update: id is required")
	}

	if _, err := r.orders.Set(ctx, order.ID, newOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userRef", "==", userID)
	}
	if statuses := trimStrings(filter.Status); len(statuses) > 0 {
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var (
		orders  []domain.Order
		fetched int
		last    orderPageToken
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		order := doc.toDomain(snap.Ref.ID)
		fetched++
		// Firestore has no substring operator, so the free-text query
		// matches against the fetched window. Pages may run short; the
		// cursor still advances past non-matching documents.
		if !matchesOrderQuery(order, filter.Query) {
			last = orderPageToken{ID: order.ID, CreatedAt: order.CreatedAt}
			continue
		}
		if len(orders) < pageSize {
			orders = append(orders, order)
			last = orderPageToken{ID: order.ID, CreatedAt: order.CreatedAt}
		}
	}

	hasMore := fetched > pageSize
	var nextToken string
	if hasMore && last.ID != "" {
		encoded, err := encodeOrderPageToken(last)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// CommitStockAdjustment flags the order stock-adjusted and applies the product
// deltas in one transaction. An already-flagged order aborts with a conflict so
// concurrent transitions decrement each product exactly once.
func (r *OrderRepository) CommitStockAdjustment(ctx context.Context, orderID string, deltas map[string]int, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order stock commit: id is required")
	}

	now = now.UTC()
	productIDs := make([]string, 0, len(deltas))
	for id := range deltas {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			productIDs = append(productIDs, trimmed)
		}
	}
	sort.Strings(productIDs)

	var committed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if orderDoc.StockAdjusted {
			return status.Errorf(codes.FailedPrecondition, "order %s stock already adjusted", orderID)
		}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		// Firestore transactions require all reads before the first write.
		type productUpdate struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		updates := make([]productUpdate, 0, len(productIDs))
		for _, productID := range productIDs {
			ref := client.Collection(productsCollection).Doc(productID)
			snap, err := tx.Get(ref)
			if err != nil {
				// A line whose product has since been removed adjusts
				// nothing; the flag below still flips.
				if status.Code(err) == codes.NotFound {
					continue
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			doc.Stock -= deltas[productID]
			if doc.Stock < 0 {
				doc.Stock = 0
			}
			doc.UpdatedAt = now
			updates = append(updates, productUpdate{ref: ref, doc: doc})
		}

		for _, update := range updates {
			if err := tx.Set(update.ref, update.doc); err != nil {
				return err
			}
		}

		orderDoc.StockAdjusted = true
		orderDoc.UpdatedAt = now
		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}

		committed = orderDoc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.commitStock", err)
	}
	return committed, nil
}

// Document structures --------------------------------------------------------

type orderDocument struct {
	UserRef       string                  `firestore:"userRef"`
	CustomerName  string                  `firestore:"customerName,omitempty"`
	Status        string                  `firestore:"status"`
	Items         []orderLineDocument     `firestore:"items"`
	Subtotal      int64                   `firestore:"subtotal"`
	ShippingCost  int64                   `firestore:"shippingCost"`
	Total         int64                   `firestore:"total"`
	Currency      string                  `firestore:"currency"`
	StockAdjusted bool                    `firestore:"stockAdjusted"`
	Shipping      *shippingInfoDocument   `firestore:"shipping,omitempty"`
	StatusHistory []statusHistoryDocument `firestore:"statusHistory"`
	Notes         string                  `firestore:"notes,omitempty"`
	Metadata      map[string]any          `firestore:"metadata,omitempty"`
	CreatedAt     time.Time               `firestore:"createdAt"`
	UpdatedAt     time.Time               `firestore:"updatedAt"`
}

type orderLineDocument struct {
	ID         string  `firestore:"id"`
	Type       string  `firestore:"type"`
	ProductRef string  `firestore:"productRef,omitempty"`
	ServiceRef string  `firestore:"serviceRef,omitempty"`
	Name       string  `firestore:"name"`
	Quantity   int     `firestore:"qty"`
	WeightKg   float64 `firestore:"weightKg"`
	UnitPrice  int64   `firestore:"unitPrice"`
	Subtotal   int64   `firestore:"subtotal"`
}

type shippingInfoDocument struct {
	Address     string              `firestore:"address"`
	Coordinate  *coordinateDocument `firestore:"coordinate,omitempty"`
	DistanceKm  float64             `firestore:"distanceKm"`
	Cost        int64               `firestore:"cost"`
	Service     string              `firestore:"service"`
	Mode        string              `firestore:"mode"`
	Degraded    bool                `firestore:"degraded"`
	EstimatedAt time.Time           `firestore:"estimatedAt"`
}

type statusHistoryDocument struct {
	From       string    `firestore:"from,omitempty"`
	To         string    `firestore:"to"`
	ActorRef   string    `firestore:"actorRef,omitempty"`
	Reason     string    `firestore:"reason,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

type coordinateDocument struct {
	Lat float64 `firestore:"lat"`
	Lng float64 `firestore:"lng"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderLineDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderLineDocument{
			ID:         item.ID,
			Type:       string(item.Type),
			ProductRef: strings.TrimSpace(item.ProductID),
			ServiceRef: strings.TrimSpace(item.ServiceID),
			Name:       item.Name,
			Quantity:   item.Quantity,
			WeightKg:   item.WeightKg,
			UnitPrice:  item.UnitPrice,
			Subtotal:   item.Subtotal,
		}
	}

	history := make([]statusHistoryDocument, len(order.StatusHistory))
	for i, entry := range order.StatusHistory {
		history[i] = statusHistoryDocument{
			From:       string(entry.From),
			To:         string(entry.To),
			ActorRef:   entry.ActorID,
			Reason:     entry.Reason,
			OccurredAt: entry.OccurredAt.UTC(),
		}
	}

	doc := orderDocument{
		UserRef:       strings.TrimSpace(order.UserID),
		CustomerName:  strings.TrimSpace(order.CustomerName),
		Status:        string(order.Status),
		Items:         items,
		Subtotal:      order.Subtotal,
		ShippingCost:  order.ShippingCost,
		Total:         order.Total,
		Currency:      order.Currency,
		StockAdjusted: order.StockAdjusted,
		StatusHistory: history,
		Notes:         order.Notes,
		Metadata:      order.Metadata,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
	if order.Shipping != nil {
		doc.Shipping = &shippingInfoDocument{
			Address:     order.Shipping.Address,
			Coordinate:  newCoordinateDocument(order.Shipping.Coordinate),
			DistanceKm:  order.Shipping.DistanceKm,
			Cost:        order.Shipping.Cost,
			Service:     string(order.Shipping.Service),
			Mode:        string(order.Shipping.Mode),
			Degraded:    order.Shipping.Degraded,
			EstimatedAt: order.Shipping.EstimatedAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderLineItem{
			ID:        item.ID,
			Type:      domain.LineItemType(item.Type),
			ProductID: item.ProductRef,
			ServiceID: item.ServiceRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			WeightKg:  item.WeightKg,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		}
	}

	history := make([]domain.StatusHistoryEntry, len(d.StatusHistory))
	for i, entry := range d.StatusHistory {
		history[i] = domain.StatusHistoryEntry{
			From:       domain.OrderStatus(entry.From),
			To:         domain.OrderStatus(entry.To),
			ActorID:    entry.ActorRef,
			Reason:     entry.Reason,
			OccurredAt: entry.OccurredAt,
		}
	}

	order := domain.Order{
		ID:            id,
		UserID:        d.UserRef,
		CustomerName:  d.CustomerName,
		Status:        domain.OrderStatus(d.Status),
		Items:         items,
		Subtotal:      d.Subtotal,
		ShippingCost:  d.ShippingCost,
		Total:         d.Total,
		Currency:      d.Currency,
		StockAdjusted: d.StockAdjusted,
		StatusHistory: history,
		Notes:         d.Notes,
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Shipping != nil {
		order.Shipping = &domain.ShippingSnapshot{
			Address:     d.Shipping.Address,
			Coordinate:  d.Shipping.Coordinate.toDomain(),
			DistanceKm:  d.Shipping.DistanceKm,
			Cost:        d.Shipping.Cost,
			Service:     domain.ShippingServiceLevel(d.Shipping.Service),
			Mode:        domain.ShipmentMode(d.Shipping.Mode),
			Degraded:    d.Shipping.Degraded,
			EstimatedAt: d.Shipping.EstimatedAt,
		}
	}
	return order
}

func newCoordinateDocument(coord *domain.Coordinate) *coordinateDocument {
	if coord == nil {
		return nil
	}
	return &coordinateDocument{Lat: coord.Lat, Lng: coord.Lng}
}

func (d *coordinateDocument) toDomain() *domain.Coordinate {
	if d == nil {
		return nil
	}
	return &domain.Coordinate{Lat: d.Lat, Lng: d.Lng}
}

type orderPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func matchesOrderQuery(order domain.Order, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(order.ID), query) {
		return true
	}
	if strings.Contains(strings.ToLower(order.CustomerName), query) {
		return true
	}
	if strings.Contains(strings.ToLower(order.UserID), query) {
		return true
	}
	if order.Shipping != nil && strings.Contains(strings.ToLower(order.Shipping.Address), query) {
		return true
	}
	return false
}

func decodeOrderPageToken(encoded string) (orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return orderPageToken{}, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return orderPageToken{}, fmt.Errorf("decode order page token json: %w", err)
	}
	return token, nil
}

func trimStrings(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			trimmed = append(trimmed, v)
		}
	}
	return trimmed
}
