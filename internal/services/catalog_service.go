package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/repositories"
)

const (
	productIDPrefix      = "prd_"
	roastServiceIDPrefix = "svc_"
)

var (
	// ErrCatalogInvalidInput signals the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product or service could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates duplicate slugs or concurrent updates.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

var knownBeanTypes = []domain.BeanType{domain.BeanTypeArabika, domain.BeanTypeRobusta}

var knownProcesses = []domain.ProcessMethod{
	domain.ProcessNatural,
	domain.ProcessFullwash,
	domain.ProcessHoney,
	domain.ProcessExperimental,
}

var knownRoastProfiles = []domain.RoastProfile{
	domain.RoastProfileLite,
	domain.RoastProfileMedium,
	domain.RoastProfileDark,
}

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Services    repositories.RoastServiceRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	services   repositories.RoastServiceRepository
	audit      AuditLogService
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
	namePolicy *bluemonday.Policy
	descPolicy *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Services == nil {
		return nil, errors.New("catalog service: roast service repository is required")
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

	return &catalogService{
		products: deps.Products,
		services: deps.Services,
		audit:    deps.Audit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:      idGen,
		logger:     logger,
		namePolicy: bluemonday.StrictPolicy(),
		descPolicy: bluemonday.UGCPolicy(),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) SaveProduct(ctx context.Context, cmd SaveProductCommand) (Product, error) {
	name := strings.TrimSpace(s.namePolicy.Sanitize(cmd.Name))
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
	}
	if cmd.WeightKg < 0 {
		return Product{}, fmt.Errorf("%w: weight cannot be negative", ErrCatalogInvalidInput)
	}
	if cmd.Stock != nil && *cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
	}
	beanType, err := parseBeanType(string(cmd.BeanType))
	if err != nil {
		return Product{}, err
	}
	process, err := parseProcess(string(cmd.Process))
	if err != nil {
		return Product{}, err
	}
	profile, err := parseRoastProfile(string(cmd.RoastProfile))
	if err != nil {
		return Product{}, err
	}
	status, err := parseCatalogStatus(string(cmd.Status))
	if err != nil {
		return Product{}, err
	}

	now := s.now()

	product := Product{
		ID:           strings.TrimSpace(cmd.ProductID),
		Name:         name,
		Slug:         slugify(name),
		Description:  s.descPolicy.Sanitize(strings.TrimSpace(cmd.Description)),
		BeanType:     beanType,
		Process:      process,
		RoastProfile: profile,
		Origin:       strings.TrimSpace(s.namePolicy.Sanitize(cmd.Origin)),
		Price:        cmd.Price,
		Currency:     defaultCurrency,
		WeightKg:     cmd.WeightKg,
		Status:       status,
		Images:       cmd.Images,
		UpdatedAt:    now,
	}

	created := product.ID == ""
	if created {
		product.ID = productIDPrefix + s.newID()
		product.CreatedAt = now
		if cmd.Stock != nil {
			product.Stock = *cmd.Stock
		}
		if err := s.products.Insert(ctx, product); err != nil {
			return Product{}, s.mapRepositoryError(err)
		}
	} else {
		existing, err := s.products.FindByID(ctx, product.ID)
		if err != nil {
			return Product{}, s.mapRepositoryError(err)
		}
		product.CreatedAt = existing.CreatedAt
		product.Stock = existing.Stock
		if cmd.Stock != nil {
			product.Stock = *cmd.Stock
		}
		if err := s.products.Update(ctx, product); err != nil {
			return Product{}, s.mapRepositoryError(err)
		}
	}

	s.recordAudit(ctx, cmd.ActorID, auditAction(created, "catalog.product"), "products/"+product.ID)
	s.logger(ctx, "catalog.product.saved", map[string]any{
		"product": product.ID,
		"actor":   strings.TrimSpace(cmd.ActorID),
	})

	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteCatalogItemCommand) error {
	productID := strings.TrimSpace(cmd.ID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "catalog.product.deleted", "products/"+productID)
	return nil
}

func (s *catalogService) ListRoastServices(ctx context.Context, filter RoastServiceListFilter) (domain.CursorPage[RoastService], error) {
	page, err := s.services.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[RoastService]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetRoastService(ctx context.Context, serviceID string) (RoastService, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return RoastService{}, fmt.Errorf("%w: service id is required", ErrCatalogInvalidInput)
	}
	service, err := s.services.FindByID(ctx, serviceID)
	if err != nil {
		return RoastService{}, s.mapRepositoryError(err)
	}
	return service, nil
}

func (s *catalogService) SaveRoastService(ctx context.Context, cmd SaveRoastServiceCommand) (RoastService, error) {
	name := strings.TrimSpace(s.namePolicy.Sanitize(cmd.Name))
	if name == "" {
		return RoastService{}, fmt.Errorf("%w: service name is required", ErrCatalogInvalidInput)
	}
	if cmd.PricePerKg < 0 {
		return RoastService{}, fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
	}
	if cmd.MinWeightKg < 0 {
		return RoastService{}, fmt.Errorf("%w: minimum weight cannot be negative", ErrCatalogInvalidInput)
	}
	profile, err := parseRoastProfile(string(cmd.Profile))
	if err != nil {
		return RoastService{}, err
	}
	status, err := parseCatalogStatus(string(cmd.Status))
	if err != nil {
		return RoastService{}, err
	}

	now := s.now()

	service := RoastService{
		ID:          strings.TrimSpace(cmd.ServiceID),
		Name:        name,
		Description: s.descPolicy.Sanitize(strings.TrimSpace(cmd.Description)),
		Profile:     profile,
		PricePerKg:  cmd.PricePerKg,
		Currency:    defaultCurrency,
		MinWeightKg: cmd.MinWeightKg,
		Status:      status,
		UpdatedAt:   now,
	}

	created := service.ID == ""
	if created {
		service.ID = roastServiceIDPrefix + s.newID()
		service.CreatedAt = now
		if err := s.services.Insert(ctx, service); err != nil {
			return RoastService{}, s.mapRepositoryError(err)
		}
	} else {
		existing, err := s.services.FindByID(ctx, service.ID)
		if err != nil {
			return RoastService{}, s.mapRepositoryError(err)
		}
		service.CreatedAt = existing.CreatedAt
		if err := s.services.Update(ctx, service); err != nil {
			return RoastService{}, s.mapRepositoryError(err)
		}
	}

	s.recordAudit(ctx, cmd.ActorID, auditAction(created, "catalog.service"), "roastServices/"+service.ID)
	s.logger(ctx, "catalog.service.saved", map[string]any{
		"service": service.ID,
		"actor":   strings.TrimSpace(cmd.ActorID),
	})

	return service, nil
}

func (s *catalogService) DeleteRoastService(ctx context.Context, cmd DeleteCatalogItemCommand) error {
	serviceID := strings.TrimSpace(cmd.ID)
	if serviceID == "" {
		return fmt.Errorf("%w: service id is required", ErrCatalogInvalidInput)
	}
	if err := s.services.Delete(ctx, serviceID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "catalog.service.deleted", "roastServices/"+serviceID)
	return nil
}

func (s *catalogService) recordAudit(ctx context.Context, actor, action, targetRef string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, RecordAuditCommand{
		Actor:     strings.TrimSpace(actor),
		ActorType: "admin",
		Action:    action,
		TargetRef: targetRef,
	}); err != nil {
		s.logger(ctx, "catalog.audit.failed", map[string]any{
			"action": action,
			"target": targetRef,
			"error":  err.Error(),
		})
	}
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *catalogService) now() time.Time {
	return s.clock()
}

func auditAction(created bool, prefix string) string {
	if created {
		return prefix + ".created"
	}
	return prefix + ".updated"
}

func parseBeanType(raw string) (domain.BeanType, error) {
	candidate := domain.BeanType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range knownBeanTypes {
		if candidate == known {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: unknown bean type %q", ErrCatalogInvalidInput, raw)
}

func parseProcess(raw string) (domain.ProcessMethod, error) {
	candidate := domain.ProcessMethod(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range knownProcesses {
		if candidate == known {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: unknown process %q", ErrCatalogInvalidInput, raw)
}

func parseRoastProfile(raw string) (domain.RoastProfile, error) {
	candidate := domain.RoastProfile(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range knownRoastProfiles {
		if candidate == known {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: unknown roast profile %q", ErrCatalogInvalidInput, raw)
}

func parseCatalogStatus(raw string) (domain.ProductStatus, error) {
	candidate := domain.ProductStatus(strings.ToLower(strings.TrimSpace(raw)))
	if candidate == "" {
		return domain.ProductStatusActive, nil
	}
	if candidate == domain.ProductStatusActive || candidate == domain.ProductStatusInactive {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrCatalogInvalidInput, raw)
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
