package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// CartCache caches carts by user. Every Delete bumps the user's generation;
// Set only writes when the generation still matches the one read before the
// cart was loaded, so a slow refill cannot resurrect an invalidated cart.
type CartCache interface {
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	Generation(ctx context.Context, userID int64) (int64, error)
	Set(ctx context.Context, userID, generation int64, cart *domain.Cart) error
	Delete(ctx context.Context, userID int64) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleGeneration is returned by Set when the cart was invalidated
	// after its generation was read. Nothing is written.
	ErrStaleGeneration = errors.New("cart cache generation changed")
)
