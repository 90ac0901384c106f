package http

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
)

var (
	customer = &domain.User{ID: 1, Email: "user@example.com", IsActive: true, Role: domain.RoleCustomer}
	admin    = &domain.User{ID: 2, Email: "admin@example.com", IsActive: true, Role: domain.RoleAdmin}
)

// MockAuth accepts the tokens "customer" and "admin".
type MockAuth struct {
	RegisterErr error
	LoginErr    error
	LastEmail   string
}

func (m *MockAuth) Register(_ context.Context, email, fullName, _ string) (*domain.User, error) {
	if m.RegisterErr != nil {
		return nil, m.RegisterErr
	}
	return &domain.User{ID: 10, Email: email, FullName: fullName, IsActive: true, Role: domain.RoleCustomer}, nil
}

func (m *MockAuth) Login(_ context.Context, email, _ string) (*auth.Token, error) {
	m.LastEmail = email
	if m.LoginErr != nil {
		return nil, m.LoginErr
	}
	return &auth.Token{AccessToken: "customer", TokenType: auth.TokenType}, nil
}

func (m *MockAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	switch token {
	case "customer":
		return customer, nil
	case "admin":
		return admin, nil
	}
	return nil, auth.ErrInvalidToken
}

type MockCatalog struct {
	mu       sync.RWMutex
	products map[int64]*domain.Product
	Err      error
}

func (m *MockCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *MockCatalog) ListProducts(_ context.Context, skip, limit int) ([]*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]*domain.Product, 0)
	for id := int64(1); id <= int64(len(m.products)); id++ {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockCatalog) CreateProduct(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Name == "" {
		return catalog.ErrInvalidProduct
	}
	p.ID = int64(len(m.products) + 1)
	m.products[p.ID] = p
	return nil
}

func (m *MockCatalog) DeleteProduct(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

type MockCartService struct {
	Cart *domain.Cart
	Err  error

	LastUserID    int64
	LastProductID int64
	LastQuantity  int
	Cleared       bool
}

func (m *MockCartService) GetCart(_ context.Context, userID int64) (*domain.Cart, error) {
	m.LastUserID = userID
	return m.Cart, m.Err
}

func (m *MockCartService) AddItem(_ context.Context, userID, productID int64, quantity int) (*domain.Cart, error) {
	m.LastUserID, m.LastProductID, m.LastQuantity = userID, productID, quantity
	return m.Cart, m.Err
}

func (m *MockCartService) UpdateQuantity(_ context.Context, userID, productID int64, quantity int) (*domain.Cart, error) {
	m.LastUserID, m.LastProductID, m.LastQuantity = userID, productID, quantity
	return m.Cart, m.Err
}

func (m *MockCartService) RemoveItem(_ context.Context, userID, productID int64) (*domain.Cart, error) {
	m.LastUserID, m.LastProductID = userID, productID
	return m.Cart, m.Err
}

func (m *MockCartService) ClearCart(_ context.Context, userID int64) error {
	m.LastUserID = userID
	m.Cleared = m.Err == nil
	return m.Err
}

type MockOrderService struct {
	Order   *domain.Order
	Orders  []*domain.Order
	History []domain.StatusChange
	Err     error

	LastStatus string
}

func (m *MockOrderService) CreateOrder(_ context.Context, _ int64) (*domain.Order, error) {
	return m.Order, m.Err
}

func (m *MockOrderService) ListOrders(_ context.Context, _ int64) ([]*domain.Order, error) {
	return m.Orders, m.Err
}

func (m *MockOrderService) find(orderID uuid.UUID) (*domain.Order, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Order == nil || m.Order.ID != orderID {
		return nil, repository.ErrOrderNotFound
	}
	return m.Order, nil
}

func (m *MockOrderService) GetOrder(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return m.find(orderID)
}

func (m *MockOrderService) GetUserOrder(_ context.Context, orderID uuid.UUID, userID int64) (*domain.Order, error) {
	o, err := m.find(orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, errAccessDenied
	}
	return o, nil
}

func (m *MockOrderService) GetOrderHistory(_ context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	if _, err := m.find(orderID); err != nil {
		return nil, err
	}
	return m.History, nil
}

func (m *MockOrderService) ListOrdersByStatus(_ context.Context, status string) ([]*domain.Order, error) {
	m.LastStatus = status
	return m.Orders, m.Err
}

func (m *MockOrderService) CancelOrder(_ context.Context, orderID uuid.UUID, _ int64) (*domain.Order, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.find(orderID)
}

func (m *MockOrderService) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, status string) (*domain.Order, error) {
	m.LastStatus = status
	if m.Err != nil {
		return nil, m.Err
	}
	return m.find(orderID)
}
