package targetstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Producer writes an encoded record. *msg.Producer implements it.
type Producer interface {
	Produce(ctx context.Context, topic, key string, value []byte) error
}

// Publisher drains the outbox to Kafka
type Publisher struct {
	store     *Store
	producer  Producer
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewPublisher creates a new outbox publisher
func NewPublisher(store *Store, producer Producer, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		store:     store,
		producer:  producer,
		logger:    logger,
		interval:  250 * time.Millisecond,
		batchSize: 100,
	}
}

// Run publishes pending events on every tick until ctx is done
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				p.logger.Error("failed to publish batch", zap.Error(err))
			}
		}
	}
}

// PublishPending publishes one batch in outbox order. It stops at the first
// produce failure so snapshots of an order are never published out of order.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	events, err := p.store.ListUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unpublished events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for _, event := range events {
		if err := p.producer.Produce(ctx, event.Topic, event.Key, []byte(event.PayloadJSON)); err != nil {
			p.logger.Warn("failed to produce event",
				zap.String("event_id", event.EventID),
				zap.String("order_id", event.OrderID),
				zap.Error(err),
			)
			break
		}

		// worst case the event is published twice; merging a snapshot is idempotent
		if err := p.store.MarkPublished(ctx, event.EventID, time.Now().UnixMilli()); err != nil {
			return published, err
		}

		published++
		p.logger.Debug("published outbox event",
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID),
		)
	}

	if published > 0 {
		p.logger.Info("published outbox batch",
			zap.Int("published", published),
			zap.Int("total", len(events)),
		)
	}
	return published, nil
}
