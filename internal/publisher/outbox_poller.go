package publisher

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize = 100
	DefaultTick      = time.Second
)

// MessageWriter is the part of *kafka.Writer the poller needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays committed outbox rows to Kafka. Rows are marked
// processed only after the broker accepted them, so delivery is at least once.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batchSize int
	repo      repository.OutboxRepository
	writer    MessageWriter
	log       *zap.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, log *zap.Logger, topic string, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return newPoller(repo, w, log)
}

func newPoller(repo repository.OutboxRepository, w MessageWriter, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: DefaultTick,
		batchSize: DefaultBatchSize,
		repo:      repo,
		writer:    w,
		log:       log.Named("outbox"),
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.eventTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch and returns how many events
// were marked processed.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			// Later events of the same order must not overtake this one.
			p.log.Warn("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			return published
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark outbox event processed", zap.Int64("event_id", event.ID), zap.Error(err))
			return published
		}
		published++
	}

	if published > 0 {
		p.log.Debug("outbox events published", zap.Int("count", published))
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
