package inventory

import (
	"context"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

// Ledger reads and writes product stock. Every call needs the live Tx of the transaction
// that also validates the change; stock is never touched outside one.
type Ledger struct{}

// NewLedger creates a new ledger
func NewLedger() *Ledger {
	return &Ledger{}
}

func checkTx(tx store.Tx) error {
	if tx == nil || !tx.Active() {
		return models.ErrIllegalInventoryAccess
	}
	return nil
}

// ReadQuantity returns the stock of productID as seen by tx
func (l *Ledger) ReadQuantity(ctx context.Context, tx store.Tx, productID string) (int, error) {
	if err := checkTx(tx); err != nil {
		return 0, err
	}
	p, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.StockQuantity, nil
}

// Decrement writes old - amount. The caller must already have checked old >= amount inside
// the same transaction; a shortfall here is reported rather than written.
func (l *Ledger) Decrement(ctx context.Context, tx store.Tx, productID string, amount int) error {
	if amount < 1 {
		return &models.ValidationError{Field: "amount", Rule: "min"}
	}
	current, err := l.ReadQuantity(ctx, tx, productID)
	if err != nil {
		return err
	}
	if current < amount {
		return &models.InsufficientStockError{ProductID: productID, Available: current, Requested: amount}
	}
	return tx.SetStock(ctx, productID, current-amount)
}

// Restock adds amount units and returns the new quantity
func (l *Ledger) Restock(ctx context.Context, tx store.Tx, productID string, amount int) (int, error) {
	if amount < 1 {
		return 0, &models.ValidationError{Field: "amount", Rule: "min"}
	}
	current, err := l.ReadQuantity(ctx, tx, productID)
	if err != nil {
		return 0, err
	}
	next := current + amount
	if err := tx.SetStock(ctx, productID, next); err != nil {
		return 0, fmt.Errorf("failed to restock product %s: %w", productID, err)
	}
	return next, nil
}
