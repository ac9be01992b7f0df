package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/sellery/api/internal/platform/firestore"
	"github.com/sellery/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the repositories.Registry
// contract. The health repository is injected because its probe set spans more
// than Firestore (Pub/Sub, Secret Manager).
type Registry struct {
	provider *pfirestore.Provider

	products *ProductRepository
	carts    *CartRepository
	orders   *OrderRepository
	lines    *OrderLineRepository
	ledger   *SalesLedgerRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all Firestore repositories on the shared provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	lines, err := NewOrderLineRepository(provider)
	if err != nil {
		return nil, err
	}
	ledger, err := NewSalesLedgerRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		products: products,
		carts:    carts,
		orders:   orders,
		lines:    lines,
		ledger:   ledger,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository {
	return r.products
}

func (r *Registry) Carts() repositories.CartRepository {
	return r.carts
}

func (r *Registry) Orders() repositories.OrderRepository {
	return r.orders
}

func (r *Registry) OrderLines() repositories.OrderLineRepository {
	return r.lines
}

func (r *Registry) SalesLedger() repositories.SalesLedgerRepository {
	return r.ledger
}

func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

// RunInTx executes fn as one logical unit. The repositories already guard
// their critical sections with Firestore transactions (header insert, status
// mutation, download counter), so the registry only provides the grouping
// seam here.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore registry: transaction function is required")
	}
	return fn(ctx)
}
