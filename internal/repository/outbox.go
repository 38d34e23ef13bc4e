package repository

import (
	"context"
	"fmt"
)

// OutboxEvent is a domain event staged in the same transaction that changed
// the order row, awaiting publication to the broker.
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
}

// UnpublishedEvents returns outbox rows not yet pushed to the broker,
// oldest first.
func (r *Repository) UnpublishedEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox WHERE published = 0
		ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		var payload string
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkEventPublished flags an outbox row as delivered.
func (r *Repository) MarkEventPublished(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET published = 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}
