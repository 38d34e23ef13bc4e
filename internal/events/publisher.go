// Package events publishes order lifecycle events to the broker via the
// transactional outbox: rows staged alongside the order write are polled
// and pushed here, so a crash between the two never loses an event.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ShreyashF130/copit-backend/internal/repository"
)

// OutboxRepo is the repository slice the publisher needs.
type OutboxRepo interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id string) error
}

type Publisher struct {
	repo   OutboxRepo
	writer *kafka.Writer
	tick   time.Duration
	logger *slog.Logger
}

func NewPublisher(repo OutboxRepo, logger *slog.Logger, brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "order-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Publisher{repo: repo, writer: w, tick: 5 * time.Second, logger: logger}
}

// Run polls the outbox until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Publish(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Publish drains one batch. A publish failure leaves the row unpublished
// for the next tick; marking is only attempted after the broker accepted
// the message, so delivery is at-least-once.
func (p *Publisher) Publish(ctx context.Context) {
	events, err := p.repo.UnpublishedEvents(ctx, 100)
	if err != nil {
		p.logger.Error("outbox fetch failed", "error", err)
		return
	}

	for _, ev := range events {
		msg := kafka.Message{
			Key:   []byte(ev.AggregateID), // order id for per-order ordering
			Value: ev.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Error("outbox publish failed", "event", ev.ID, "error", err)
			continue
		}
		if err := p.repo.MarkEventPublished(ctx, ev.ID); err != nil {
			p.logger.Error("outbox mark failed", "event", ev.ID, "error", err)
		}
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
