package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MaxItemQuantity is the largest quantity a cart line can hold (a Postgres INTEGER).
const MaxItemQuantity = math.MaxInt32

type CartService struct {
	store   repository.Store
	catalog Catalog
	cache   cache.CartCache
	log     *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(store repository.Store, catalog Catalog, cache cache.CartCache, log *zap.Logger) *CartService {
	return &CartService{
		store:   store,
		catalog: catalog,
		cache:   cache,
		log:     log.Named("cart"),
	}
}

// GetCart returns the user's cart, creating an empty one on first access.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get failed", zap.Int64("user_id", userID), zap.Error(err))
		}

		// Read the generation before the cart so an invalidation in between
		// makes the refill below a no-op.
		gen, genErr := s.cache.Generation(ctx, userID)

		cart, err = s.getOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		if genErr != nil {
			s.log.Warn("cache generation failed", zap.Int64("user_id", userID), zap.Error(genErr))
			return cart, nil
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := s.cache.Set(setCtx, userID, gen, cart)
			switch {
			case errors.Is(err, cache.ErrStaleGeneration):
				s.log.Debug("cache refill skipped, cart changed", zap.Int64("user_id", userID))
			case err != nil:
				s.log.Warn("cache set failed", zap.Int64("user_id", userID), zap.Error(err))
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *CartService) getOrCreate(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.store.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart, err = s.store.CreateCart(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return cart, nil
}

// lockCart returns the user's cart row locked until tx ends, creating it first
// when needed.
func lockCart(ctx context.Context, tx repository.Store, userID int64) (*domain.Cart, error) {
	cart, err := tx.GetCartForUpdate(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		if _, err = tx.CreateCart(ctx, userID); err != nil {
			return nil, fmt.Errorf("create cart: %w", err)
		}
		cart, err = tx.GetCartForUpdate(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	return cart, nil
}

// mutate applies fn to the user's locked cart in one transaction, the same
// lock CreateOrder takes, and returns the cart as committed. fn reports
// whether it changed anything; unchanged carts keep their cache entry.
func (s *CartService) mutate(ctx context.Context, userID int64, op string, fn func(tx repository.Store, cart *domain.Cart) (bool, error)) (*domain.Cart, error) {
	var result *domain.Cart
	var changed bool

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		cart, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		changed, err = fn(tx, cart)
		if err != nil {
			return err
		}
		if !changed {
			result = cart
			return nil
		}

		result, err = tx.GetCart(ctx, userID)
		if err != nil {
			return fmt.Errorf("reload cart: %w", err)
		}
		return nil
	})
	if err != nil {
		if !isCartClientError(err) {
			s.log.Error("cart "+op+" failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, err
	}

	if changed {
		s.invalidateCache(userID)
	}
	return result, nil
}

func isCartClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) || errors.Is(err, repository.ErrItemNotFound)
}

// AddItem adds quantity units of productID, merging with an existing line.
// A zero quantity means one unit.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*domain.Cart, error) {
	if quantity < 0 || quantity > MaxItemQuantity {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		quantity = 1
	}

	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, "add item", func(tx repository.Store, cart *domain.Cart) (bool, error) {
		if line, ok := cart.Item(productID); ok && line.Quantity > MaxItemQuantity-quantity {
			return false, fmt.Errorf("%w: line would exceed %d units", ErrInvalidQuantity, MaxItemQuantity)
		}
		return true, tx.AddItem(ctx, cart.ID, productID, quantity)
	})
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) (*domain.Cart, error) {
	if quantity <= 0 || quantity > MaxItemQuantity {
		return nil, ErrInvalidQuantity
	}

	return s.mutate(ctx, userID, "update quantity", func(tx repository.Store, cart *domain.Cart) (bool, error) {
		return true, tx.UpdateItemQuantity(ctx, cart.ID, productID, quantity)
	})
}

// RemoveItem drops the line for productID; removing an absent line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*domain.Cart, error) {
	return s.mutate(ctx, userID, "remove item", func(tx repository.Store, cart *domain.Cart) (bool, error) {
		if _, ok := cart.Item(productID); !ok {
			return false, nil
		}
		return true, tx.RemoveItem(ctx, cart.ID, productID)
	})
}

func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.mutate(ctx, userID, "clear", func(tx repository.Store, cart *domain.Cart) (bool, error) {
		return true, tx.ClearCart(ctx, cart.ID)
	})
	return err
}

func (s *CartService) invalidateCache(userID int64) {
	invalidateCart(s.cache, s.log, userID)
}

func invalidateCart(c cache.CartCache, log *zap.Logger, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Delete(ctx, userID); err != nil {
		log.Warn("cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
