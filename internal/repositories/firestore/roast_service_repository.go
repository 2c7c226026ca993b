package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/roastline/api/internal/domain"
	pfirestore "github.com/roastline/api/internal/platform/firestore"
	"github.com/roastline/api/internal/repositories"
)

const roastServicesCollection = "roastServices"

// RoastServiceRepository stores toll-roasting service definitions.
type RoastServiceRepository struct {
	provider *pfirestore.Provider
	services *pfirestore.Collection[roastServiceDocument]
}

func NewRoastServiceRepository(provider *pfirestore.Provider) (*RoastServiceRepository, error) {
	if provider == nil {
		return nil, errors.New("roast service repository requires firestore provider")
	}
	return &RoastServiceRepository{
		provider: provider,
		services: pfirestore.NewCollection[roastServiceDocument](provider, roastServicesCollection, nil, nil),
	}, nil
}

func (r *RoastServiceRepository) Insert(ctx context.Context, service domain.RoastService) error {
	if r == nil || r.provider == nil {
		return errors.New("roast service repository not initialised")
	}
	if strings.TrimSpace(service.ID) == "" {
		return errors.New("roast service insert: id is required")
	}

	ref, err := r.services.DocumentRef(ctx, service.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newRoastServiceDocument(service)); err != nil {
		return pfirestore.WrapError("roastServices.insert", err)
	}
	return nil
}

func (r *RoastServiceRepository) Update(ctx context.Context, service domain.RoastService) error {
	if r == nil || r.provider == nil {
		return errors.New("roast service repository not initialised")
	}
	if strings.TrimSpace(service.ID) == "" {
		return errors.New("roast service update: id is required")
	}

	if _, err := r.services.Set(ctx, service.ID, newRoastServiceDocument(service)); err != nil {
		return err
	}
	return nil
}

func (r *RoastServiceRepository) Delete(ctx context.Context, serviceID string) error {
	if r == nil || r.provider == nil {
		return errors.New("roast service repository not initialised")
	}
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return errors.New("roast service delete: id is required")
	}

	ref, err := r.services.DocumentRef(ctx, serviceID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("roastServices.delete", err)
	}
	return nil
}

func (r *RoastServiceRepository) FindByID(ctx context.Context, serviceID string) (domain.RoastService, error) {
	if r == nil || r.services == nil {
		return domain.RoastService{}, errors.New("roast service repository not initialised")
	}
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return domain.RoastService{}, errors.New("roast service find: id is required")
	}

	doc, err := r.services.Get(ctx, serviceID)
	if err != nil {
		return domain.RoastService{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *RoastServiceRepository) List(ctx context.Context, filter repositories.RoastServiceListFilter) (domain.CursorPage[domain.RoastService], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.RoastService]{}, errors.New("roast service repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultProductPageSize
	}
	if pageSize > maxProductPageSize {
		pageSize = maxProductPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.RoastService]{}, pfirestore.WrapError("roastServices.list", err)
	}

	query := client.Collection(roastServicesCollection).Query
	if statuses := trimStrings(filter.Status); len(statuses) > 0 {
		query = query.Where("status", "in", statuses)
	}
	if filter.Profile != nil {
		query = query.Where("profile", "==", string(*filter.Profile))
	}
	query = query.
		OrderBy("name", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeCatalogPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.RoastService]{}, pfirestore.WrapError("roastServices.list", err)
		}
		query = query.StartAfter(cursor.Name, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var services []domain.RoastService
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.RoastService]{}, pfirestore.WrapError("roastServices.list", err)
		}
		var doc roastServiceDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.RoastService]{}, fmt.Errorf("decode roast service %s: %w", snap.Ref.ID, err)
		}
		services = append(services, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(services) > pageSize
	if hasMore {
		services = services[:pageSize]
	}
	var nextToken string
	if hasMore && len(services) > 0 {
		last := services[len(services)-1]
		encoded, err := encodeCatalogPageToken(catalogPageToken{ID: last.ID, Name: last.Name})
		if err != nil {
			return domain.CursorPage[domain.RoastService]{}, pfirestore.WrapError("roastServices.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.RoastService]{
		Items:         services,
		NextPageToken: nextToken,
	}, nil
}

type roastServiceDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Profile     string    `firestore:"profile"`
	PricePerKg  int64     `firestore:"pricePerKg"`
	Currency    string    `firestore:"currency"`
	MinWeightKg float64   `firestore:"minWeightKg"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newRoastServiceDocument(service domain.RoastService) roastServiceDocument {
	return roastServiceDocument{
		Name:        service.Name,
		Description: service.Description,
		Profile:     string(service.Profile),
		PricePerKg:  service.PricePerKg,
		Currency:    service.Currency,
		MinWeightKg: service.MinWeightKg,
		Status:      string(service.Status),
		CreatedAt:   service.CreatedAt.UTC(),
		UpdatedAt:   service.UpdatedAt.UTC(),
	}
}

func (d roastServiceDocument) toDomain(id string) domain.RoastService {
	return domain.RoastService{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Profile:     domain.RoastProfile(d.Profile),
		PricePerKg:  d.PricePerKg,
		Currency:    d.Currency,
		MinWeightKg: d.MinWeightKg,
		Status:      domain.ProductStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
