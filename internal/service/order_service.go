package service

import (
	"context"
	"fmt"

	"storefront-service/internal/access"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService reads order history and lets staff manage committed orders
type OrderService struct {
	store  store.DocumentStore
	gate   *access.Gate
	policy models.StatusPolicy
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store store.DocumentStore, gate *access.Gate, policy models.StatusPolicy) *OrderService {
	if policy == "" {
		policy = models.StatusPolicyPermissive
	}
	return &OrderService{
		store:  store,
		gate:   gate,
		policy: policy,
		logger: util.GetLogger(),
	}
}

// ListMine returns the caller's orders, newest first
func (s *OrderService) ListMine(ctx context.Context, caller models.Caller) ([]models.Order, error) {
	if err := s.gate.Authorize(caller, access.OpOrderReadOwn); err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, caller.AccountID)
}

// Get returns one order. Customers may only read their own.
func (s *OrderService) Get(ctx context.Context, caller models.Caller, accountID, orderID string) (*models.Order, error) {
	if err := s.gate.AuthorizeOwned(caller, access.OpOrderReadOwn, access.OpOrderReadAny, accountID); err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, accountID, orderID)
}

// ListAll returns every order of every account. The result is not a transactional snapshot.
func (s *OrderService) ListAll(ctx context.Context, caller models.Caller) ([]models.Order, error) {
	if err := s.gate.Authorize(caller, access.OpOrderListAll); err != nil {
		return nil, err
	}
	return s.store.ListAllOrders(ctx)
}

// UpdateStatus moves an order to status, subject to the configured transition policy
func (s *OrderService) UpdateStatus(ctx context.Context, caller models.Caller, accountID, orderID string, status models.OrderStatus) (updated *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order_id", orderID),
		attribute.String("status", string(status)))
	defer func() { util.EndSpan(span, err) }()

	if err := s.gate.Authorize(caller, access.OpOrderUpdateStatus); err != nil {
		return nil, err
	}
	if _, err := models.ParseOrderStatus(string(status)); err != nil {
		return nil, err
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil

		order, err := tx.GetOrder(ctx, accountID, orderID)
		if err != nil {
			return err
		}
		from := order.Status
		if !s.policy.Allows(from, status) {
			return &models.ValidationError{Field: "status", Rule: "transition"}
		}
		if from == status {
			updated = order
			return nil
		}

		if err := tx.UpdateOrderStatus(ctx, accountID, orderID, status); err != nil {
			return err
		}

		event := &models.OrderStatusChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:   orderID,
			AccountID: accountID,
			From:      from,
			To:        status,
		}
		if err := enqueue(ctx, tx, models.AggregateOrder, orderID, models.EventTypeOrderStatusChanged, event); err != nil {
			return err
		}

		order.Status = status
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrderStatusChangesTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("account_id", accountID),
		zap.String("status", string(status)),
		zap.String("by", caller.AccountID))
	return updated, nil
}

// Delete removes an order permanently. Stock is not restored.
func (s *OrderService) Delete(ctx context.Context, caller models.Caller, accountID, orderID string) error {
	if err := s.gate.Authorize(caller, access.OpOrderDelete); err != nil {
		return err
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.DeleteOrder(ctx, accountID, orderID); err != nil {
			return err
		}
		event := &models.OrderDeletedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderDeleted),
			OrderID:   orderID,
			AccountID: accountID,
		}
		return enqueue(ctx, tx, models.AggregateOrder, orderID, models.EventTypeOrderDeleted, event)
	})
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}

	s.logger.Info("Order deleted",
		zap.String("order_id", orderID),
		zap.String("account_id", accountID),
		zap.String("by", caller.AccountID))
	return nil
}
