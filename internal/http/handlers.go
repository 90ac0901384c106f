package http

import (
	"context"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

type Authenticator interface {
	Register(ctx context.Context, email, fullName, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*auth.Token, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type CartService interface {
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID int64) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID int64) error
}

type OrderService interface {
	CreateOrder(ctx context.Context, userID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]*domain.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetUserOrder(ctx context.Context, orderID uuid.UUID, userID int64) (*domain.Order, error)
	GetOrderHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error)
	ListOrdersByStatus(ctx context.Context, status string) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, userID int64) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error)
}
