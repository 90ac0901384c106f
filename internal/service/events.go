package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderCreatedEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	UserID      int64              `json:"user_id"`
	TotalAmount string             `json:"total_amount"`
	Items       []domain.OrderItem `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
}

type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID          `json:"order_id"`
	UserID    int64              `json:"user_id"`
	From      domain.OrderStatus `json:"from"`
	To        domain.OrderStatus `json:"to"`
	ChangedAt time.Time          `json:"changed_at"`
}

// enqueue writes the event to the outbox through tx so it commits together
// with the state change it describes.
func enqueue(ctx context.Context, tx repository.OutboxRepository, orderID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	event := &repository.OutboxEvent{
		AggregateID: orderID.String(),
		EventType:   eventType,
		Payload:     data,
	}
	if err := tx.InsertOutboxEvent(ctx, event); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}
