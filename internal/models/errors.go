package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrQuantityLimitExceeded  = errors.New("quantity limit exceeded")
	ErrRoleForbidden          = errors.New("role forbidden")
	ErrIllegalInventoryAccess = errors.New("inventory accessed outside a transaction")
	ErrNotFound               = errors.New("not found")
	ErrValidationFailed       = errors.New("validation failed")
	ErrTxAborted              = errors.New("transaction aborted after repeated conflicts")
	ErrCheckoutInProgress     = errors.New("checkout already in progress")
)

// InsufficientStockError names the product whose stock could not cover the request
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ValidationError names the field and the rule it broke
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: field=%s, rule=%s", e.Field, e.Rule)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// NotFoundError names the missing record
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// QuantityLimitError reports the ceiling a cart line would have crossed
type QuantityLimitError struct {
	ProductID string
	Limit     int
}

func (e *QuantityLimitError) Error() string {
	return fmt.Sprintf("quantity limit of %d exceeded for product %s", e.Limit, e.ProductID)
}

func (e *QuantityLimitError) Unwrap() error { return ErrQuantityLimitExceeded }

// NotFound builds a NotFoundError
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
