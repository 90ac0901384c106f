package repository

import (
	"context"
	"fmt"
)

func (r *Repository) InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	query := `INSERT INTO outbox_events (aggregate_id, event_type, payload)
	          VALUES ($1, $2, $3) RETURNING id, created_at`

	err := r.q.QueryRowContext(ctx, query,
		event.AggregateID,
		event.EventType,
		string(event.Payload)).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// GetUnprocessedEvents returns up to limit pending events, oldest first.
func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE processed_at IS NULL
	          ORDER BY id
	          LIMIT $1`

	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()

	events := make([]*OutboxEvent, 0)
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	query := `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`

	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark outbox event %d processed: %w", id, err)
	}
	return nil
}
