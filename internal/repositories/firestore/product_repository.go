package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
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

const (
	productsCollection = "products"

	defaultProductPageSize = 20
	maxProductPageSize     = 100
	lowStockScanLimit      = 100
)

// ProductRepository stores the coffee catalog in the products collection.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product insert: id is required")
	}

	ref, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product update: id is required")
	}

	if _, err := r.products.Set(ctx, product.ID, newProductDocument(product)); err != nil {
		return err
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product delete: id is required")
	}

	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
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
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	query := client.Collection(productsCollection).Query
	if statuses := trimStrings(filter.Status); len(statuses) > 0 {
		query = query.Where("status", "in", statuses)
	}
	if filter.BeanType != nil {
		query = query.Where("beanType", "==", string(*filter.BeanType))
	}
	if filter.Process != nil {
		query = query.Where("process", "==", string(*filter.Process))
	}
	query = query.
		OrderBy("name", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeCatalogPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		query = query.StartAfter(cursor.Name, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var (
		products []domain.Product
		fetched  int
		last     catalogPageToken
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		product := doc.toDomain(snap.Ref.ID)
		fetched++
		// Substring matching happens on the fetched window since Firestore
		// cannot express it server-side.
		if !matchesProductQuery(product, filter.Query) {
			last = catalogPageToken{ID: product.ID, Name: product.Name}
			continue
		}
		if len(products) < pageSize {
			products = append(products, product)
			last = catalogPageToken{ID: product.ID, Name: product.Name}
		}
	}

	hasMore := fetched > pageSize
	var nextToken string
	if hasMore && last.ID != "" {
		encoded, err := encodeCatalogPageToken(last)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{
		Items:         products,
		NextPageToken: nextToken,
	}, nil
}

func (r *ProductRepository) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	if threshold < 0 {
		threshold = 0
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("products.lowStock", err)
	}

	query := client.Collection(productsCollection).Query.
		Where("stock", "<=", threshold).
		OrderBy("stock", firestore.Asc).
		Limit(lowStockScanLimit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("products.lowStock", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}
	return products, nil
}

// Document structures --------------------------------------------------------

type productDocument struct {
	Name         string    `firestore:"name"`
	Slug         string    `firestore:"slug"`
	Description  string    `firestore:"description,omitempty"`
	BeanType     string    `firestore:"beanType"`
	Process      string    `firestore:"process"`
	RoastProfile string    `firestore:"roastProfile"`
	Origin       string    `firestore:"origin,omitempty"`
	Price        int64     `firestore:"price"`
	Currency     string    `firestore:"currency"`
	Stock        int       `firestore:"stock"`
	WeightKg     float64   `firestore:"weightKg"`
	Status       string    `firestore:"status"`
	Images       []string  `firestore:"images,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:         product.Name,
		Slug:         product.Slug,
		Description:  product.Description,
		BeanType:     string(product.BeanType),
		Process:      string(product.Process),
		RoastProfile: string(product.RoastProfile),
		Origin:       product.Origin,
		Price:        product.Price,
		Currency:     product.Currency,
		Stock:        product.Stock,
		WeightKg:     product.WeightKg,
		Status:       string(product.Status),
		Images:       product.Images,
		CreatedAt:    product.CreatedAt.UTC(),
		UpdatedAt:    product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         d.Name,
		Slug:         d.Slug,
		Description:  d.Description,
		BeanType:     domain.BeanType(d.BeanType),
		Process:      domain.ProcessMethod(d.Process),
		RoastProfile: domain.RoastProfile(d.RoastProfile),
		Origin:       d.Origin,
		Price:        d.Price,
		Currency:     d.Currency,
		Stock:        d.Stock,
		WeightKg:     d.WeightKg,
		Status:       domain.ProductStatus(d.Status),
		Images:       d.Images,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type catalogPageToken struct {
	ID   string
	Name string
}

func matchesProductQuery(product domain.Product, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, field := range []string{product.Name, product.Origin, product.Description} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func encodeCatalogPageToken(token catalogPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode catalog page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeCatalogPageToken(encoded string) (catalogPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return catalogPageToken{}, fmt.Errorf("decode catalog page token: %w", err)
	}
	var token catalogPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return catalogPageToken{}, fmt.Errorf("decode catalog page token json: %w", err)
	}
	return token, nil
}
