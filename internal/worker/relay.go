package worker

import (
	"context"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

const (
	defaultBatchSize = 100
	defaultInterval  = 500 * time.Millisecond
	defaultLease     = 5 * time.Second
)

// OutboxStore is the part of the document store the relay drains
type OutboxStore interface {
	ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, ids []int64) error
	MarkOutboxFailed(ctx context.Context, id int64, reason string) error
}

// Publisher delivers one encoded event keyed by its aggregate
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload []byte) error
}

// OutboxRelay moves committed outbox events to the broker. Delivery is at least once;
// consumers dedupe on event_id.
type OutboxRelay struct {
	store     OutboxStore
	publisher Publisher
	batchSize int
	interval  time.Duration
	lease     time.Duration
	logger    *zap.Logger
}

// NewOutboxRelay creates a relay; zero values fall back to defaults
func NewOutboxRelay(store OutboxStore, publisher Publisher, batchSize int, interval time.Duration) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		lease:     defaultLease,
		logger:    util.GetLogger(),
	}
}

// Run polls the outbox until ctx is cancelled
func (r *OutboxRelay) Run(ctx context.Context) error {
	r.logger.Info("Starting outbox relay",
		zap.Int("batch_size", r.batchSize),
		zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce publishes one batch and returns how many events were sent
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.ClaimOutbox(ctx, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	sent := make([]int64, 0, len(events))
	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev.AggregateID, ev.EventType, ev.Payload); err != nil {
			util.OutboxFailedTotal.Inc()
			r.logger.Warn("Failed to publish outbox event",
				zap.Int64("id", ev.ID),
				zap.String("event_type", ev.EventType),
				zap.Int("attempts", ev.Attempts),
				zap.Error(err))
			if markErr := r.store.MarkOutboxFailed(ctx, ev.ID, err.Error()); markErr != nil {
				r.logger.Error("Failed to mark outbox event failed", zap.Int64("id", ev.ID), zap.Error(markErr))
			}
			continue
		}
		sent = append(sent, ev.ID)
	}

	if err := r.store.MarkOutboxSent(ctx, sent); err != nil {
		return 0, err
	}
	util.OutboxPublishedTotal.Add(float64(len(sent)))
	return len(sent), nil
}
