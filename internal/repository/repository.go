package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrItemNotFound  = errors.New("item not found in cart")
	ErrOrderNotFound = errors.New("order not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type CartRepository interface {
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	// GetCartForUpdate locks the cart row until the surrounding transaction ends.
	GetCartForUpdate(ctx context.Context, userID int64) (*domain.Cart, error)
	CreateCart(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID, productID int64, quantity int) error
	UpdateItemQuantity(ctx context.Context, cartID, productID int64, quantity int) error
	RemoveItem(ctx context.Context, cartID, productID int64) error
	ClearCart(ctx context.Context, cartID int64) error
}

type OrderRepository interface {
	// CreateOrder stores the order, its items and the initial history entry.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	// UpdateOrderStatus persists status and timestamps and appends from -> order.Status to the history.
	UpdateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error)
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

// Store is everything the services persist. InTx runs fn against a
// transaction-bound Store; nested calls reuse the outer transaction.
type Store interface {
	CartRepository
	OrderRepository
	OutboxRepository
	UserRepository
	InTx(ctx context.Context, fn func(tx Store) error) error
}
