package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService struct {
	store    repository.Store
	catalog  Catalog
	cache    cache.CartCache
	log      *zap.Logger
	now      func() time.Time
	recorder Recorder
	lenient  bool
}

type Option func(*OrderService)

// WithLenientTransitions lets UpdateOrderStatus move an order to any
// recognized status, ignoring the transition table.
func WithLenientTransitions() Option {
	return func(s *OrderService) {
		s.lenient = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) {
		s.now = now
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *OrderService) {
		s.recorder = r
	}
}

func NewOrderService(store repository.Store, catalog Catalog, cache cache.CartCache, log *zap.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		store:    store,
		catalog:  catalog,
		cache:    cache,
		log:      log.Named("orders"),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder converts the user's cart into a pending order priced from the
// catalog and empties the cart, all in one transaction. Lines whose product
// is gone from the catalog are left out. ErrEmptyCart is returned when no
// line survives; in that case the dead lines are removed from the cart.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64) (*domain.Order, error) {
	var order *domain.Order
	var purged bool

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		cart, err := tx.GetCartForUpdate(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if cart.IsEmpty() {
			return ErrEmptyCart
		}

		items, err := s.snapshotItems(ctx, cart)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			// Every line points at a vanished product; drop them so the
			// cart stops advertising items that can never be ordered.
			purged = true
			if err := tx.ClearCart(ctx, cart.ID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
			return nil
		}

		order = domain.NewOrder(userID, items, s.now())
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}

		event := OrderCreatedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount.StringFixed(domain.MoneyScale),
			Items:       order.Items,
			CreatedAt:   order.CreatedAt,
		}
		if err := enqueue(ctx, tx, order.ID, EventOrderCreated, event); err != nil {
			return err
		}

		if err := tx.ClearCart(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidateCart(s.cache, s.log, userID)
	if purged {
		s.log.Warn("cart held only missing products, cleared", zap.Int64("user_id", userID))
		return nil, ErrEmptyCart
	}

	s.recorder.OrderCreated()
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("user_id", userID),
		zap.String("total_amount", order.TotalAmount.StringFixed(domain.MoneyScale)),
		zap.Int("items", len(order.Items)))

	return order, nil
}

// snapshotItems freezes the current catalog price of every cart line.
func (s *OrderService) snapshotItems(ctx context.Context, cart *domain.Cart) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			s.log.Warn("skipping cart line for missing product",
				zap.Int64("user_id", cart.UserID),
				zap.Int64("product_id", line.ProductID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup product %d: %w", line.ProductID, err)
		}

		items = append(items, domain.OrderItem{
			ProductID:       product.ID,
			ProductName:     product.Name,
			Quantity:        line.Quantity,
			PriceAtPurchase: product.Price,
		})
	}
	return items, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return s.store.ListOrdersByUserID(ctx, userID)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// GetUserOrder is GetOrder with an ownership check.
func (s *OrderService) GetUserOrder(ctx context.Context, orderID uuid.UUID, userID int64) (*domain.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

// GetOrderHistory returns the status changes of an order, oldest first.
func (s *OrderService) GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	if _, err := s.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListStatusHistory(ctx, orderID)
}

func (s *OrderService) ListOrdersByStatus(ctx context.Context, status string) ([]*domain.Order, error) {
	st, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.store.ListOrdersByStatus(ctx, st)
}

// CancelOrder cancels a pending order owned by userID.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, userID int64) (*domain.Order, error) {
	var order *domain.Order

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrOrderAccessDenied
		}
		if !order.Status.IsCancellable() {
			return fmt.Errorf("%w: status is %s", ErrOrderNotCancellable, order.Status)
		}
		return s.transition(ctx, tx, order, domain.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.StatusChanged(string(domain.OrderStatusCancelled))
	s.log.Info("order cancelled",
		zap.String("order_id", orderID.String()),
		zap.Int64("user_id", userID))
	return order, nil
}

// UpdateOrderStatus is the administrative status change. An unrecognized
// status is rejected before the order is read.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var order *domain.Order
	var from domain.OrderStatus

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if !s.lenient && !from.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, next)
		}
		return s.transition(ctx, tx, order, next)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.StatusChanged(string(next))
	s.log.Info("order status updated",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(next)))
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, tx repository.Store, order *domain.Order, next domain.OrderStatus) error {
	from := order.Status
	order.ApplyStatus(next, s.now())

	if err := tx.UpdateOrderStatus(ctx, order, from); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	event := OrderStatusChangedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		From:      from,
		To:        next,
		ChangedAt: order.UpdatedAt,
	}
	return enqueue(ctx, tx, order.ID, EventOrderStatusChanged, event)
}
