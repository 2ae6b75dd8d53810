package service

import (
	"context"
	"testing"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem_CopiesProductFields(t *testing.T) {
	f := newFixture(t)
	caller := f.addAccount(t, "c1", models.RoleCustomer)
	f.addProduct(t, "A", "12.50", 3)
	svc := NewCartService(f.store, f.gate, 5)

	cart, err := svc.AddItem(context.Background(), caller, "A")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Product A", cart.Items[0].Name)
	assert.True(t, decimal.RequireFromString("12.50").Equal(cart.Items[0].Price))
	assert.Equal(t, 1, cart.Items[0].Quantity)

	// adding to the cart never touches stock
	assert.Equal(t, 3, f.stock(t, "A"))
}

func TestAddItem_SixthUnitFails(t *testing.T) {
	f := newFixture(t)
	caller := f.addAccount(t, "c1", models.RoleCustomer)
	f.addProduct(t, "A", "10.00", 100)
	svc := NewCartService(f.store, f.gate, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AddItem(ctx, caller, "A")
		require.NoError(t, err)
	}

	_, err := svc.AddItem(ctx, caller, "A")
	assert.ErrorIs(t, err, models.ErrQuantityLimitExceeded)

	l, ok := f.cart(t, "c1").Line("A")
	require.True(t, ok)
	assert.Equal(t, 5, l.Quantity)
}

func TestAddItem_StaffForbidden(t *testing.T) {
	f := newFixture(t)
	staff := f.addAccount(t, "s1", models.RoleStaff)
	f.addProduct(t, "A", "10.00", 1)
	svc := NewCartService(f.store, f.gate, 5)

	_, err := svc.AddItem(context.Background(), staff, "A")
	assert.ErrorIs(t, err, models.ErrRoleForbidden)
	assert.True(t, f.cart(t, "s1").IsEmpty())
}

func TestAddItem_StoredRoleWinsOverToken(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "s1", models.RoleStaff)
	f.addProduct(t, "A", "10.00", 1)
	svc := NewCartService(f.store, f.gate, 5)

	// a token minted before promotion still claims customer
	stale := models.Caller{AccountID: "s1", Role: models.RoleCustomer}
	_, err := svc.AddItem(context.Background(), stale, "A")
	assert.ErrorIs(t, err, models.ErrRoleForbidden)
}

func TestAddItem_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	caller := f.addAccount(t, "c1", models.RoleCustomer)
	svc := NewCartService(f.store, f.gate, 5)

	_, err := svc.AddItem(context.Background(), caller, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetQuantity(t *testing.T) {
	f := newFixture(t)
	caller := f.addAccount(t, "c1", models.RoleCustomer)
	f.setCart(t, "c1", line("A", 1, "10.00"))
	svc := NewCartService(f.store, f.gate, 5)
	ctx := context.Background()

	cart, err := svc.SetQuantity(ctx, caller, "A", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, cart.Items[0].Quantity)

	_, err = svc.SetQuantity(ctx, caller, "A", 6)
	assert.ErrorIs(t, err, models.ErrQuantityLimitExceeded)

	_, err = svc.SetQuantity(ctx, caller, "A", 0)
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	l, _ := f.cart(t, "c1").Line("A")
	assert.Equal(t, 4, l.Quantity)
}

func TestRemoveItem_AbsentLineIsNoop(t *testing.T) {
	f := newFixture(t)
	caller := f.addAccount(t, "c1", models.RoleCustomer)
	f.setCart(t, "c1", line("A", 2, "10.00"))
	svc := NewCartService(f.store, f.gate, 5)
	ctx := context.Background()

	cart, err := svc.RemoveItem(ctx, caller, "B")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	cart, err = svc.RemoveItem(ctx, caller, "A")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.True(t, f.cart(t, "c1").IsEmpty())
}

func TestRead_AbsentCartIsEmpty(t *testing.T) {
	f := newFixture(t)
	caller := f.addAccount(t, "c1", models.RoleCustomer)
	svc := NewCartService(f.store, f.gate, 0)

	cart, err := svc.Read(context.Background(), caller)
	require.NoError(t, err)
	assert.NotNil(t, cart.Items)
	assert.Empty(t, cart.Items)
}
