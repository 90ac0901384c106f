package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore implements repository.Store in memory. InTx snapshots the state
// and restores it when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	carts      map[int64]*domain.Cart
	nextCartID int64
	orders     map[uuid.UUID]*domain.Order
	nextItemID int64
	history    map[uuid.UUID][]domain.StatusChange
	outbox     []*repository.OutboxEvent
	users      map[int64]*domain.User

	// cartLocks counts GetCartForUpdate calls.
	cartLocks int

	// ClearCartErr and InsertOutboxErr inject failures inside transactions.
	ClearCartErr    error
	InsertOutboxErr error
}

func newMemStore() *memStore {
	return &memStore{
		carts:   make(map[int64]*domain.Cart),
		orders:  make(map[uuid.UUID]*domain.Order),
		history: make(map[uuid.UUID][]domain.StatusChange),
		users:   make(map[int64]*domain.User),
	}
}

var _ repository.Store = (*memStore)(nil)

type memTx struct {
	*memStore
}

func (t memTx) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

type memSnapshot struct {
	carts      map[int64]*domain.Cart
	nextCartID int64
	orders     map[uuid.UUID]*domain.Order
	nextItemID int64
	history    map[uuid.UUID][]domain.StatusChange
	outbox     []*repository.OutboxEvent
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memSnapshot{
		carts:      make(map[int64]*domain.Cart, len(m.carts)),
		nextCartID: m.nextCartID,
		orders:     make(map[uuid.UUID]*domain.Order, len(m.orders)),
		nextItemID: m.nextItemID,
		history:    make(map[uuid.UUID][]domain.StatusChange, len(m.history)),
		outbox:     slices.Clone(m.outbox),
	}
	for k, v := range m.carts {
		s.carts[k] = copyCart(v)
	}
	for k, v := range m.orders {
		s.orders[k] = copyOrder(v)
	}
	for k, v := range m.history {
		s.history[k] = slices.Clone(v)
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts = s.carts
	m.nextCartID = s.nextCartID
	m.orders = s.orders
	m.nextItemID = s.nextItemID
	m.history = s.history
	m.outbox = s.outbox
}

func (m *memStore) InTx(_ context.Context, fn func(tx repository.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func copyCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	if cp.Items == nil {
		cp.Items = []domain.CartItem{}
	}
	return &cp
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}

// seedCart puts a cart with the given lines directly into the store.
func (m *memStore) seedCart(userID int64, lines ...domain.CartItem) *domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCartID++
	cart := &domain.Cart{ID: m.nextCartID, UserID: userID, Items: slices.Clone(lines)}
	m.carts[userID] = cart
	return copyCart(cart)
}

func (m *memStore) cartOf(userID int64) *domain.Cart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil
	}
	return copyCart(c)
}

func (m *memStore) orderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

func (m *memStore) outboxEvents() []*repository.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.outbox)
}

func (m *memStore) findCartByID(cartID int64) *domain.Cart {
	for _, c := range m.carts {
		if c.ID == cartID {
			return c
		}
	}
	return nil
}

func (m *memStore) GetCart(_ context.Context, userID int64) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *memStore) GetCartForUpdate(ctx context.Context, userID int64) (*domain.Cart, error) {
	m.mu.Lock()
	m.cartLocks++
	m.mu.Unlock()
	return m.GetCart(ctx, userID)
}

func (m *memStore) cartLockCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cartLocks
}

func (m *memStore) CreateCart(_ context.Context, userID int64) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[userID]; ok {
		return copyCart(c), nil
	}
	m.nextCartID++
	c := &domain.Cart{ID: m.nextCartID, UserID: userID, Items: []domain.CartItem{}}
	m.carts[userID] = c
	return copyCart(c), nil
}

func (m *memStore) AddItem(_ context.Context, cartID, productID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.findCartByID(cartID)
	if c == nil {
		return repository.ErrCartNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return nil
		}
	}
	c.Items = append(c.Items, domain.CartItem{ProductID: productID, Quantity: quantity, AddedAt: time.Now()})
	return nil
}

func (m *memStore) UpdateItemQuantity(_ context.Context, cartID, productID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.findCartByID(cartID)
	if c == nil {
		return repository.ErrCartNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (m *memStore) RemoveItem(_ context.Context, cartID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.findCartByID(cartID)
	if c == nil {
		return repository.ErrCartNotFound
	}
	c.Items = slices.DeleteFunc(c.Items, func(i domain.CartItem) bool { return i.ProductID == productID })
	return nil
}

func (m *memStore) ClearCart(_ context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearCartErr != nil {
		return m.ClearCartErr
	}
	c := m.findCartByID(cartID)
	if c == nil {
		return repository.ErrCartNotFound
	}
	c.Items = []domain.CartItem{}
	return nil
}

func (m *memStore) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range order.Items {
		m.nextItemID++
		order.Items[i].ID = m.nextItemID
	}
	m.orders[order.ID] = copyOrder(order)
	m.history[order.ID] = append(m.history[order.ID], domain.StatusChange{
		OrderID: order.ID, To: order.Status, ChangedAt: order.CreatedAt,
	})
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return m.GetOrderByID(ctx, id)
}

func (m *memStore) listOrders(match func(*domain.Order) bool) []*domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Order, 0)
	for _, o := range m.orders {
		if match(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) ListOrdersByUserID(_ context.Context, userID int64) ([]*domain.Order, error) {
	return m.listOrders(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (m *memStore) ListOrdersByStatus(_ context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	return m.listOrders(func(o *domain.Order) bool { return o.Status == status }), nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, order *domain.Order, from domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	m.orders[order.ID] = copyOrder(order)
	f := from
	m.history[order.ID] = append(m.history[order.ID], domain.StatusChange{
		OrderID: order.ID, From: &f, To: order.Status, ChangedAt: order.UpdatedAt,
	})
	return nil
}

func (m *memStore) ListStatusHistory(_ context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history[orderID]), nil
}

func (m *memStore) InsertOutboxEvent(_ context.Context, event *repository.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertOutboxErr != nil {
		return m.InsertOutboxErr
	}
	event.ID = int64(len(m.outbox) + 1)
	event.CreatedAt = time.Now()
	m.outbox = append(m.outbox, event)
	return nil
}

func (m *memStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*repository.OutboxEvent, 0)
	for _, e := range m.outbox {
		if e.ProcessedAt == nil && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.outbox {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
		}
	}
	return nil
}

func (m *memStore) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.ID = int64(len(m.users) + 1)
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// MockCatalog implements Catalog over a fixed product map.
type MockCatalog struct {
	mu       sync.RWMutex
	Products map[int64]*domain.Product
	Err      error
}

func newMockCatalog(products ...*domain.Product) *MockCatalog {
	m := &MockCatalog{Products: make(map[int64]*domain.Product)}
	for _, p := range products {
		m.Products[p.ID] = p
	}
	return m
}

func (m *MockCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockCatalog) Delete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Products, id)
}

func (m *MockCatalog) SetPrice(id int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Products[id].Price = decimal.RequireFromString(price)
}

// MockCache implements cache.CartCache in memory. When SetGate is non-nil,
// Set parks until it is closed and then reports its result on SetDone.
type MockCache struct {
	mu          sync.RWMutex
	carts       map[int64]*domain.Cart
	deletes     map[int64]int
	generations map[int64]int64
	GetErr      error

	SetStarted chan struct{}
	SetGate    chan struct{}
	SetDone    chan error
}

func newMockCache() *MockCache {
	return &MockCache{
		carts:       make(map[int64]*domain.Cart),
		deletes:     make(map[int64]int),
		generations: make(map[int64]int64),
	}
}

func (m *MockCache) Get(_ context.Context, userID int64) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return copyCart(c), nil
}

func (m *MockCache) Generation(_ context.Context, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations[userID], nil
}

func (m *MockCache) Set(_ context.Context, userID, generation int64, cart *domain.Cart) error {
	if m.SetGate != nil {
		m.SetStarted <- struct{}{}
		<-m.SetGate
	}
	err := m.set(userID, generation, cart)
	if m.SetDone != nil {
		m.SetDone <- err
	}
	return err
}

func (m *MockCache) set(userID, generation int64, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[userID] != generation {
		return cache.ErrStaleGeneration
	}
	m.carts[userID] = copyCart(cart)
	return nil
}

func (m *MockCache) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	m.deletes[userID]++
	m.generations[userID]++
	return nil
}

func (m *MockCache) Has(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.carts[userID]
	return ok
}

func (m *MockCache) Deletes(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deletes[userID]
}

type mockRecorder struct {
	mu       sync.Mutex
	created  int
	statuses []string
}

func (m *mockRecorder) OrderCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *mockRecorder) StatusChanged(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

var errStorage = errors.New("storage unavailable")
