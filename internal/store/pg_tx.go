package store

import (
	"context"
	"errors"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

var errTxFinished = errors.New("transaction already finished")

// pgTx is the Postgres Tx handle
type pgTx struct {
	tx   *sqlx.Tx
	done bool
}

func (t *pgTx) txHandle() {}

func (t *pgTx) Active() bool { return !t.done }

func (t *pgTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if t.done {
		return nil, errTxFinished
	}
	return getAccount(ctx, t.tx, id)
}

func (t *pgTx) UpdateAccountRole(ctx context.Context, id string, role models.Role) error {
	if t.done {
		return errTxFinished
	}
	res, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET role = $1, updated_at = NOW() WHERE id = $2", role, id)
	if err != nil {
		return err
	}
	return expectAffected(res, "account", id)
}

// DeleteAccount removes the account and its cart. Orders are kept.
func (t *pgTx) DeleteAccount(ctx context.Context, id string) error {
	if t.done {
		return errTxFinished
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM carts WHERE account_id = $1", id); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectAffected(res, "account", id)
}

func (t *pgTx) GetCart(ctx context.Context, accountID string) (*models.Cart, error) {
	if t.done {
		return nil, errTxFinished
	}
	return getCart(ctx, t.tx, accountID)
}

func (t *pgTx) PutCart(ctx context.Context, cart *models.Cart) error {
	if t.done {
		return errTxFinished
	}
	return putCart(ctx, t.tx, cart)
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if t.done {
		return nil, errTxFinished
	}
	return getProduct(ctx, t.tx, id)
}

func (t *pgTx) SetStock(ctx context.Context, productID string, quantity int) error {
	if t.done {
		return models.ErrIllegalInventoryAccess
	}
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = $1, updated_at = NOW() WHERE id = $2", quantity, productID)
	if err != nil {
		return err
	}
	return expectAffected(res, "product", productID)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if t.done {
		return errTxFinished
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, account_id, created_at, updated_at, status, items, total_value,
		                    shipping_method, payment_method, delivery_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.AccountID, o.CreatedAt, o.UpdatedAt, o.Status, o.Items, o.TotalValue,
		o.ShippingMethod, o.PaymentMethod, o.DeliveryAddress)
	return err
}

func (t *pgTx) GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	if t.done {
		return nil, errTxFinished
	}
	return getOrder(ctx, t.tx, accountID, orderID)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, accountID, orderID string, status models.OrderStatus) error {
	if t.done {
		return errTxFinished
	}
	res, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE account_id = $2 AND id = $3",
		status, accountID, orderID)
	if err != nil {
		return err
	}
	return expectAffected(res, "order", orderID)
}

func (t *pgTx) DeleteOrder(ctx context.Context, accountID, orderID string) error {
	if t.done {
		return errTxFinished
	}
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM orders WHERE account_id = $1 AND id = $2", accountID, orderID)
	if err != nil {
		return err
	}
	return expectAffected(res, "order", orderID)
}

func (t *pgTx) Enqueue(ctx context.Context, e *models.OutboxEvent) error {
	if t.done {
		return errTxFinished
	}
	query := `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, created_at`

	return t.tx.QueryRowxContext(ctx, query,
		e.AggregateType, e.AggregateID, e.EventType, e.Payload,
	).Scan(&e.ID, &e.CreatedAt)
}
