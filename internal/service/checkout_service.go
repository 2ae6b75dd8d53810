package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/access"
	"storefront-service/internal/inventory"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutGuard deduplicates checkout requests and keeps one checkout per account in flight
type CheckoutGuard interface {
	GetCheckoutResult(ctx context.Context, accountID, key string) (string, bool, error)
	SaveCheckoutResult(ctx context.Context, accountID, key, orderID string, ttl time.Duration) error
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// CheckoutService turns a cart into an order, reserving stock atomically
type CheckoutService struct {
	store          store.DocumentStore
	ledger         *inventory.Ledger
	gate           *access.Gate
	guard          CheckoutGuard
	payment        models.PaymentPolicy
	idempotencyTTL time.Duration
	lockTTL        time.Duration
	logger         *zap.Logger
}

// CheckoutOptions tune a CheckoutService
type CheckoutOptions struct {
	PaymentPolicy  models.PaymentPolicy
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
}

// NewCheckoutService creates a new checkout service. guard may be nil, in which case
// idempotency keys are ignored and concurrent checkouts of one account are left to the
// store's conflict detection.
func NewCheckoutService(
	store store.DocumentStore,
	ledger *inventory.Ledger,
	gate *access.Gate,
	guard CheckoutGuard,
	opts CheckoutOptions,
) *CheckoutService {
	if opts.PaymentPolicy == "" {
		opts.PaymentPolicy = models.PaymentPolicyAny
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &CheckoutService{
		store:          store,
		ledger:         ledger,
		gate:           gate,
		guard:          guard,
		payment:        opts.PaymentPolicy,
		idempotencyTTL: opts.IdempotencyTTL,
		lockTTL:        opts.LockTTL,
		logger:         util.GetLogger(),
	}
}

// CheckoutRequest carries the customer's delivery choice
type CheckoutRequest struct {
	Delivery       models.Delivery
	IdempotencyKey string
}

// previousResult returns the order already placed under an idempotency key, if any
func (s *CheckoutService) previousResult(ctx context.Context, accountID, key string) (*models.Order, bool, error) {
	if key == "" || s.guard == nil {
		return nil, false, nil
	}
	orderID, found, err := s.guard.GetCheckoutResult(ctx, accountID, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", orderID))
	order, err := s.store.GetOrder(ctx, accountID, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// Checkout places an order from the caller's cart. Either stock is decremented for every
// line, the order is created and the cart is cleared, or nothing changes.
func (s *CheckoutService) Checkout(ctx context.Context, caller models.Caller, req CheckoutRequest) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout",
		attribute.String("account_id", caller.AccountID))
	defer func() { util.EndSpan(span, err) }()

	if err := s.gate.Authorize(caller, access.OpCheckout); err != nil {
		return nil, err
	}

	if prior, found, err := s.previousResult(ctx, caller.AccountID, req.IdempotencyKey); err != nil || found {
		return prior, err
	}

	if s.guard != nil {
		lockName := "checkout:" + caller.AccountID
		token, ok, err := s.guard.AcquireLock(ctx, lockName, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
		}
		if !ok {
			util.CheckoutFailedTotal.WithLabelValues("in_progress").Inc()
			return nil, models.ErrCheckoutInProgress
		}
		defer func() {
			if err := s.guard.ReleaseLock(context.Background(), lockName, token); err != nil {
				s.logger.Warn("Failed to release checkout lock",
					zap.String("account_id", caller.AccountID),
					zap.Error(err))
			}
		}()

		// a request holding the same key may have finished while we waited on the lock
		if prior, found, err := s.previousResult(ctx, caller.AccountID, req.IdempotencyKey); err != nil || found {
			return prior, err
		}
	}

	start := time.Now()
	order, err = s.reserve(ctx, caller.AccountID, req.Delivery)
	util.ReservationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("account_id", order.AccountID),
		zap.String("total_value", order.TotalValue.StringFixed(2)))

	if req.IdempotencyKey != "" && s.guard != nil {
		if err := s.guard.SaveCheckoutResult(ctx, caller.AccountID, req.IdempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		}
	}

	return order, nil
}

// reserve runs the reservation transaction. The body may run several times; every value
// it produces is rebuilt on each attempt.
func (s *CheckoutService) reserve(ctx context.Context, accountID string, delivery models.Delivery) (*models.Order, error) {
	var placed *models.Order

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		placed = nil

		cart, err := tx.GetCart(ctx, accountID)
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return models.ErrEmptyCart
		}

		lines := make(models.OrderLines, 0, len(cart.Items))
		for _, item := range cart.Items {
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			available, err := s.ledger.ReadQuantity(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}
			if available < item.Quantity {
				return &models.InsufficientStockError{
					ProductID: item.ProductID,
					Available: available,
					Requested: item.Quantity,
				}
			}
			lines = append(lines, models.OrderLine{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    item.Quantity,
				UnitPrice:   product.Price,
			})
		}

		if err := s.payment.ValidateDelivery(delivery); err != nil {
			return err
		}

		for _, line := range lines {
			if err := s.ledger.Decrement(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		order := &models.Order{
			ID:         uuid.New().String(),
			AccountID:  accountID,
			CreatedAt:  now,
			UpdatedAt:  now,
			Status:     models.OrderStatusPending,
			Items:      lines,
			TotalValue: lines.Total(),
		}
		order.ApplyDelivery(delivery)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		cart.Clear()
		if err := tx.PutCart(ctx, cart); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		if err := enqueue(ctx, tx, models.AggregateOrder, order.ID, models.EventTypeOrderPlaced, orderPlacedEvent(order)); err != nil {
			return err
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func orderPlacedEvent(order *models.Order) *models.OrderPlacedEvent {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
		})
	}
	return &models.OrderPlacedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderPlaced),
		OrderID:        order.ID,
		AccountID:      order.AccountID,
		TotalValue:     order.TotalValue.StringFixed(2),
		ShippingMethod: order.ShippingMethod,
		Items:          items,
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrValidationFailed):
		return "validation"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrTxAborted):
		return "tx_aborted"
	default:
		return "error"
	}
}
