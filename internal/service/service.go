package service

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// Catalog is the product lookup the services depend on. It must return
// catalog.ErrProductNotFound for unknown products.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// Recorder receives order lifecycle counts; *metrics.Metrics implements it.
type Recorder interface {
	OrderCreated()
	StatusChanged(status string)
}

type nopRecorder struct{}

func (nopRecorder) OrderCreated()        {}
func (nopRecorder) StatusChanged(string) {}
