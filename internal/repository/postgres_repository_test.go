package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func createTestUser(t *testing.T, repo *Repository, email string) *domain.User {
	t.Helper()
	user := &domain.User{
		Email:          email,
		FullName:       "Test User",
		HashedPassword: "hash",
		IsActive:       true,
		Role:           domain.RoleCustomer,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func newTestOrder(userID int64) *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.NewOrder(userID, []domain.OrderItem{
		{ProductID: 1, ProductName: "Laptop", Quantity: 1, PriceAtPurchase: decimal.RequireFromString("999.99")},
		{ProductID: 2, ProductName: "Mouse", Quantity: 2, PriceAtPurchase: decimal.RequireFromString("25.50")},
	}, now)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	user := createTestUser(t, repo, "a@example.com")
	assert.NotZero(t, user.ID)

	dup := &domain.User{Email: "a@example.com", HashedPassword: "x", Role: domain.RoleCustomer}
	err := repo.CreateUser(context.Background(), dup)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestGetUser_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetUserByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.GetUserByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCart_Lifecycle(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repo, "cart@example.com")

	_, err := repo.GetCart(ctx, user.ID)
	assert.ErrorIs(t, err, ErrCartNotFound)

	cart, err := repo.CreateCart(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	again, err := repo.CreateCart(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	require.NoError(t, repo.AddItem(ctx, cart.ID, 10, 2))
	require.NoError(t, repo.AddItem(ctx, cart.ID, 10, 3))
	require.NoError(t, repo.AddItem(ctx, cart.ID, 11, 1))

	cart, err = repo.GetCart(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	item, ok := cart.Item(10)
	require.True(t, ok)
	assert.Equal(t, 5, item.Quantity)

	require.NoError(t, repo.UpdateItemQuantity(ctx, cart.ID, 11, 7))
	err = repo.UpdateItemQuantity(ctx, cart.ID, 99, 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, repo.RemoveItem(ctx, cart.ID, 10))
	cart, err = repo.GetCart(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 7, cart.Items[0].Quantity)

	require.NoError(t, repo.ClearCart(ctx, cart.ID))
	cart, err = repo.GetCart(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestCreateOrder_Success(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repo, "order@example.com")
	order := newTestOrder(user.ID)

	require.NoError(t, repo.CreateOrder(ctx, order))
	assert.NotZero(t, order.Items[0].ID)

	fetched, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)
	assert.Equal(t, order.UserID, fetched.UserID)
	assert.True(t, decimal.RequireFromString("1050.99").Equal(fetched.TotalAmount))
	assert.Equal(t, domain.OrderStatusPending, fetched.Status)
	require.Len(t, fetched.Items, 2)
	assert.Equal(t, "Laptop", fetched.Items[0].ProductName)
	assert.True(t, order.Items[1].PriceAtPurchase.Equal(fetched.Items[1].PriceAtPurchase))

	history, err := repo.ListStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].From)
	assert.Equal(t, domain.OrderStatusPending, history[0].To)
}

func TestGetOrderByID_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetOrderByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrders_NewestFirstAndByStatus(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repo, "list@example.com")

	older := newTestOrder(user.ID)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	require.NoError(t, repo.CreateOrder(ctx, older))
	newer := newTestOrder(user.ID)
	require.NoError(t, repo.CreateOrder(ctx, newer))

	orders, err := repo.ListOrdersByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer.ID, orders[0].ID)
	assert.Equal(t, older.ID, orders[1].ID)
	assert.Len(t, orders[1].Items, 2)

	other, err := repo.ListOrdersByUserID(ctx, user.ID+1000)
	require.NoError(t, err)
	assert.Empty(t, other)

	from := newer.Status
	newer.ApplyStatus(domain.OrderStatusShipped, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.UpdateOrderStatus(ctx, newer, from))

	shipped, err := repo.ListOrdersByStatus(ctx, domain.OrderStatusShipped)
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, newer.ID, shipped[0].ID)
	assert.NotNil(t, shipped[0].ShippedAt)
}

func TestUpdateOrderStatus_AppendsHistory(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repo, "status@example.com")
	order := newTestOrder(user.ID)
	require.NoError(t, repo.CreateOrder(ctx, order))

	order.ApplyStatus(domain.OrderStatusCancelled, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.UpdateOrderStatus(ctx, order, domain.OrderStatusPending))

	fetched, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, fetched.Status)
	require.NotNil(t, fetched.CancelledAt)

	history, err := repo.ListStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[1].From)
	assert.Equal(t, domain.OrderStatusPending, *history[1].From)
	assert.Equal(t, domain.OrderStatusCancelled, history[1].To)

	missing := newTestOrder(user.ID)
	err = repo.UpdateOrderStatus(ctx, missing, domain.OrderStatusPending)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repo, "tx@example.com")
	cart, err := repo.CreateCart(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, repo.AddItem(ctx, cart.ID, 1, 1))

	order := newTestOrder(user.ID)
	boom := errors.New("boom")

	err = repo.InTx(ctx, func(tx Store) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, cart.ID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	cart, err = repo.GetCart(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestOutbox_UnprocessedThenMarked(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		event := &OutboxEvent{
			AggregateID: uuid.NewString(),
			EventType:   "order.created",
			Payload:     []byte(`{"status":"pending"}`),
		}
		require.NoError(t, repo.InsertOutboxEvent(ctx, event))
		assert.NotZero(t, event.ID)
	}

	events, err := repo.GetUnprocessedEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Less(t, events[0].ID, events[1].ID)
	assert.JSONEq(t, `{"status":"pending"}`, string(events[0].Payload))

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCartLock_SerializesAddWithCheckout(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, repo, "race@example.com")
	cart, err := repo.CreateCart(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, repo.AddItem(ctx, cart.ID, 10, 1))

	locked := make(chan struct{})
	release := make(chan struct{})
	checkoutDone := make(chan error, 1)

	// Checkout: lock the cart, read its lines, wait, then clear it.
	go func() {
		checkoutDone <- repo.InTx(ctx, func(tx Store) error {
			c, err := tx.GetCartForUpdate(ctx, user.ID)
			if err != nil {
				return err
			}
			if len(c.Items) != 1 || c.Items[0].Quantity != 1 {
				return errors.New("unexpected cart contents")
			}
			close(locked)
			<-release
			return tx.ClearCart(ctx, c.ID)
		})
	}()
	<-locked

	addDone := make(chan error, 1)
	go func() {
		addDone <- repo.InTx(ctx, func(tx Store) error {
			c, err := tx.GetCartForUpdate(ctx, user.ID)
			if err != nil {
				return err
			}
			return tx.AddItem(ctx, c.ID, 10, 1)
		})
	}()

	select {
	case err := <-addDone:
		t.Fatalf("add finished while the cart was locked: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-checkoutDone)
	require.NoError(t, <-addDone)

	after, err := repo.GetCart(ctx, user.ID)
	require.NoError(t, err)
	item, ok := after.Item(10)
	require.True(t, ok, "the add made after checkout must survive the clear")
	assert.Equal(t, 1, item.Quantity)
}
