package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/roastline/api/internal/platform/firestore"
	"github.com/roastline/api/internal/repositories"
)

// Registry wires the Firestore repositories behind the repositories.Registry
// interface. One provider backs every repository so they share a client.
type Registry struct {
	provider *pfirestore.Provider

	orders        *OrderRepository
	shipments     *ShipmentRepository
	products      *ProductRepository
	roastServices *RoastServiceRepository
	settings      *SettingsRepository
	users         *UserRepository
	auditLogs     *AuditLogRepository
	health        repositories.HealthRepository
}

// RegistryOption customises the registry after the repositories are built.
type RegistryOption func(*Registry)

// WithHealthRepository overrides the dependency health source, mainly for tests.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		if health != nil {
			r.health = health
		}
	}
}

func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	shipments, err := NewShipmentRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	roastServices, err := NewRoastServiceRepository(provider)
	if err != nil {
		return nil, err
	}
	settings, err := NewSettingsRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, err
	}

	registry := &Registry{
		provider:      provider,
		orders:        orders,
		shipments:     shipments,
		products:      products,
		roastServices: roastServices,
		settings:      settings,
		users:         users,
		auditLogs:     auditLogs,
		health:        health,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}
	return registry, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx runs fn inside a Firestore transaction. Callers compose repository
// calls in fn; the transaction handle stays internal to this package.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Shipments() repositories.ShipmentRepository         { return r.shipments }
func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) RoastServices() repositories.RoastServiceRepository { return r.roastServices }
func (r *Registry) Settings() repositories.SettingsRepository          { return r.settings }
func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) AuditLogs() repositories.AuditLogRepository         { return r.auditLogs }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

var _ repositories.Registry = (*Registry)(nil)
