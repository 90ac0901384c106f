package catalog

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breaker guards a Catalog with a circuit breaker. Domain errors such as
// ErrProductNotFound count as successful calls.
type Breaker struct {
	next Catalog
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Catalog = (*Breaker)(nil)

func NewBreaker(next Catalog, cfg circuitbreaker.Config, log *zap.Logger) *Breaker {
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = isSuccessful
	}
	return &Breaker{next: next, cb: circuitbreaker.New[any](cfg, log)}
}

func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInvalidProduct) ||
		errors.Is(err, context.Canceled)
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrCatalogUnavailable, err)
	}
	return res, err
}

func (b *Breaker) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Product), nil
}

func (b *Breaker) ListProducts(ctx context.Context, skip, limit int) ([]*domain.Product, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.ListProducts(ctx, skip, limit)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*domain.Product), nil
}

func (b *Breaker) CreateProduct(ctx context.Context, p *domain.Product) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.CreateProduct(ctx, p)
	})
	return err
}

func (b *Breaker) DeleteProduct(ctx context.Context, id int64) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.DeleteProduct(ctx, id)
	})
	return err
}
