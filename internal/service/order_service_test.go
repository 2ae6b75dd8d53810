package service

import (
	"context"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// placeOrder checks out a single-line cart for caller and returns the order
func placeOrder(t *testing.T, f *fixture, caller models.Caller, productID string) *models.Order {
	t.Helper()
	f.setCart(t, caller.AccountID, line(productID, 1, "10.00"))
	order, err := newCheckout(f, nil, models.PaymentPolicyAny).
		Checkout(context.Background(), caller, CheckoutRequest{Delivery: pickupCash})
	require.NoError(t, err)
	return order
}

func TestOrderService_CustomerReadsOnlyOwnOrders(t *testing.T) {
	f := newFixture(t)
	alice := f.addAccount(t, "alice", models.RoleCustomer)
	bob := f.addAccount(t, "bob", models.RoleCustomer)
	f.addProduct(t, "A", "10.00", 10)
	order := placeOrder(t, f, alice, "A")
	svc := NewOrderService(f.store, f.gate, models.StatusPolicyPermissive)
	ctx := context.Background()

	mine, err := svc.ListMine(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	got, err := svc.Get(ctx, alice, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.Get(ctx, bob, "alice", order.ID)
	assert.ErrorIs(t, err, models.ErrRoleForbidden)

	_, err = svc.ListAll(ctx, alice)
	assert.ErrorIs(t, err, models.ErrRoleForbidden)
}

func TestOrderService_StaffManagesOrders(t *testing.T) {
	f := newFixture(t)
	alice := f.addAccount(t, "alice", models.RoleCustomer)
	staff := f.addAccount(t, "s1", models.RoleStaff)
	f.addProduct(t, "A", "10.00", 10)
	order := placeOrder(t, f, alice, "A")
	svc := NewOrderService(f.store, f.gate, models.StatusPolicyPermissive)
	ctx := context.Background()

	all, err := svc.ListAll(ctx, staff)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	updated, err := svc.UpdateStatus(ctx, staff, "alice", order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, updated.Status)

	// permissive: any status may follow any status
	_, err = svc.UpdateStatus(ctx, staff, "alice", order.ID, models.OrderStatusPending)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, alice, "alice", order.ID, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, models.ErrRoleForbidden)

	_, err = svc.UpdateStatus(ctx, staff, "alice", order.ID, models.OrderStatus("Lost"))
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	require.NoError(t, svc.Delete(ctx, staff, "alice", order.ID))
	_, err = svc.Get(ctx, alice, "alice", order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// deleting an order does not restore stock
	assert.Equal(t, 9, f.stock(t, "A"))

	assert.Equal(t, []string{
		models.EventTypeOrderPlaced,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderDeleted,
	}, f.outboxTypes())
}

func TestOrderService_DirectedPolicy(t *testing.T) {
	f := newFixture(t)
	alice := f.addAccount(t, "alice", models.RoleCustomer)
	staff := f.addAccount(t, "s1", models.RoleStaff)
	f.addProduct(t, "A", "10.00", 10)
	order := placeOrder(t, f, alice, "A")
	svc := NewOrderService(f.store, f.gate, models.StatusPolicyDirected)
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, staff, "alice", order.ID, models.OrderStatusShipped)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, staff, "alice", order.ID, models.OrderStatusPending)
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	_, err = svc.UpdateStatus(ctx, staff, "alice", order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, staff, "alice", order.ID, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	got, err := svc.Get(ctx, staff, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
}

func TestOrderService_MissingOrder(t *testing.T) {
	f := newFixture(t)
	staff := f.addAccount(t, "s1", models.RoleStaff)
	svc := NewOrderService(f.store, f.gate, "")
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, staff, "alice", "nope", models.OrderStatusShipped)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, staff, "alice", "nope"), models.ErrNotFound)
}
