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

// CartService edits the single cart of a customer account. Cart quantities are wishes, not
// reservations; nothing here reads or writes stock.
type CartService struct {
	store  store.DocumentStore
	gate   *access.Gate
	maxQty int
	logger *zap.Logger
}

// NewCartService creates a new cart service. maxQty < 1 selects the default ceiling.
func NewCartService(store store.DocumentStore, gate *access.Gate, maxQty int) *CartService {
	if maxQty < 1 {
		maxQty = models.DefaultMaxLineQuantity
	}
	return &CartService{
		store:  store,
		gate:   gate,
		maxQty: maxQty,
		logger: util.GetLogger(),
	}
}

// authorizeHolder checks both the caller's token role and the stored account role: staff
// and admin accounts never hold a cart
func (s *CartService) authorizeHolder(ctx context.Context, caller models.Caller, op access.Operation) error {
	if err := s.gate.Authorize(caller, op); err != nil {
		return err
	}
	account, err := s.store.GetAccount(ctx, caller.AccountID)
	if err != nil {
		return err
	}
	if account.Role.IsStaff() {
		return fmt.Errorf("%w: %s accounts may not hold a cart", models.ErrRoleForbidden, account.Role)
	}
	return nil
}

func recordCartMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.CartMutationsTotal.WithLabelValues(op, result).Inc()
}

// Read returns the caller's cart; an absent cart reads as empty
func (s *CartService) Read(ctx context.Context, caller models.Caller) (*models.Cart, error) {
	if err := s.gate.Authorize(caller, access.OpCartRead); err != nil {
		return nil, err
	}
	return s.store.GetCart(ctx, caller.AccountID)
}

// AddItem adds one unit of productID, copying the product's display fields into a new line
func (s *CartService) AddItem(ctx context.Context, caller models.Caller, productID string) (cart *models.Cart, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem",
		attribute.String("account_id", caller.AccountID),
		attribute.String("product_id", productID))
	defer func() {
		recordCartMutation("add", err)
		util.EndSpan(span, err)
	}()

	if err := s.authorizeHolder(ctx, caller, access.OpCartWrite); err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err = s.store.GetCart(ctx, caller.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if err := cart.AddOne(product, s.maxQty); err != nil {
		return nil, err
	}

	if err := s.store.PutCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}

	s.logger.Debug("Cart item added",
		zap.String("account_id", caller.AccountID),
		zap.String("product_id", productID))
	return cart, nil
}

// SetQuantity replaces the quantity of an existing line; qty must be within [1, max]
func (s *CartService) SetQuantity(ctx context.Context, caller models.Caller, productID string, qty int) (cart *models.Cart, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.SetQuantity",
		attribute.String("account_id", caller.AccountID),
		attribute.String("product_id", productID),
		attribute.Int("quantity", qty))
	defer func() {
		recordCartMutation("set_quantity", err)
		util.EndSpan(span, err)
	}()

	if err := s.authorizeHolder(ctx, caller, access.OpCartWrite); err != nil {
		return nil, err
	}

	cart, err = s.store.GetCart(ctx, caller.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if err := cart.SetQuantity(productID, qty, s.maxQty); err != nil {
		return nil, err
	}

	if err := s.store.PutCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}
	return cart, nil
}

// RemoveItem drops the line for productID. Removing an absent line is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, caller models.Caller, productID string) (cart *models.Cart, err error) {
	defer func() { recordCartMutation("remove", err) }()

	if err := s.authorizeHolder(ctx, caller, access.OpCartWrite); err != nil {
		return nil, err
	}

	cart, err = s.store.GetCart(ctx, caller.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if !cart.Remove(productID) {
		return cart, nil
	}

	if err := s.store.PutCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}
	return cart, nil
}
