package inventory

import (
	"context"
	"testing"

	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, stock int) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(3)
	require.NoError(t, s.CreateProduct(context.Background(), &models.Product{
		ID: "p1", Name: "Lamp", Price: decimal.RequireFromString("10.00"), StockQuantity: stock,
	}))
	return s
}

func TestLedger_DecrementInsideTransaction(t *testing.T) {
	s := newStore(t, 5)
	ledger := NewLedger()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		qty, err := ledger.ReadQuantity(ctx, tx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 5, qty)
		return ledger.Decrement(ctx, tx, "p1", 2)
	})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockQuantity)
}

func TestLedger_DecrementNeverGoesNegative(t *testing.T) {
	s := newStore(t, 1)
	ledger := NewLedger()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return ledger.Decrement(ctx, tx, "p1", 2)
	})
	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.StockQuantity)
}

func TestLedger_RejectsMissingTransaction(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	_, err := ledger.ReadQuantity(ctx, nil, "p1")
	assert.ErrorIs(t, err, models.ErrIllegalInventoryAccess)
	assert.ErrorIs(t, ledger.Decrement(ctx, nil, "p1", 1), models.ErrIllegalInventoryAccess)
}

func TestLedger_RejectsFinishedTransaction(t *testing.T) {
	s := newStore(t, 5)
	ledger := NewLedger()
	ctx := context.Background()

	var leaked store.Tx
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		leaked = tx
		return nil
	}))

	_, err := ledger.ReadQuantity(ctx, leaked, "p1")
	assert.ErrorIs(t, err, models.ErrIllegalInventoryAccess)
	assert.ErrorIs(t, ledger.Decrement(ctx, leaked, "p1", 1), models.ErrIllegalInventoryAccess)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockQuantity)
}

func TestLedger_Restock(t *testing.T) {
	s := newStore(t, 2)
	ledger := NewLedger()
	ctx := context.Background()

	var after int
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		after, err = ledger.Restock(ctx, tx, "p1", 8)
		return err
	}))
	assert.Equal(t, 10, after)

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := ledger.Restock(ctx, tx, "p1", 0)
		return err
	})
	assert.ErrorIs(t, err, models.ErrValidationFailed)
}
