package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderColumns = `id, account_id, created_at, updated_at, status, items, total_value, shipping_method, payment_method, delivery_address`

// maxOutboxAttempts bounds how often a failing event is handed back to the relay
const maxOutboxAttempts = 10

// GetOrder retrieves one order of an account
func (s *Store) GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	return getOrder(ctx, s.db, accountID, orderID)
}

// ListOrders retrieves the orders of an account, newest first
func (s *Store) ListOrders(ctx context.Context, accountID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE account_id = $1 ORDER BY created_at DESC, id", accountID)
	return orders, err
}

// ListAllOrders retrieves every order of every account, newest first
func (s *Store) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id")
	return orders, err
}

// ClaimOutbox leases up to limit unsent events to the caller
func (s *Store) ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]models.OutboxEvent, error) {
	query := `
		UPDATE outbox
		SET status = 'in_progress', locked_until = NOW() + ($2 * INTERVAL '1 millisecond'), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending' OR (status = 'in_progress' AND locked_until < NOW())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate_type, aggregate_id, event_type, payload, status, attempts, last_error, created_at, locked_until`

	var events []models.OutboxEvent
	if err := s.db.SelectContext(ctx, &events, query, limit, lease.Milliseconds()); err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

// MarkOutboxSent marks events as published
func (s *Store) MarkOutboxSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET status = 'sent', locked_until = NULL, last_error = NULL WHERE id = ANY($1)",
		pq.Array(ids))
	return err
}

// MarkOutboxFailed hands an event back for another attempt, or parks it once it has
// failed too often
func (s *Store) MarkOutboxFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = CASE WHEN attempts >= $3 THEN 'failed' ELSE 'pending' END,
		    locked_until = NULL, last_error = $2
		WHERE id = $1`,
		id, reason, maxOutboxAttempts)
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, accountID, orderID string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order,
		"SELECT "+orderColumns+" FROM orders WHERE account_id = $1 AND id = $2", accountID, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("order", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
