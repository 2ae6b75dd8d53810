package models

import "time"

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderDeleted       = "ORDER_DELETED"
	EventTypeAccountRoleChanged = "ACCOUNT_ROLE_CHANGED"
	EventTypeAccountDeleted     = "ACCOUNT_DELETED"
)

// Aggregate types used as outbox partition keys
const (
	AggregateOrder   = "order"
	AggregateAccount = "account"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent is enqueued when a reservation commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID        string          `json:"order_id"`
	AccountID      string          `json:"account_id"`
	TotalValue     string          `json:"total_value"`
	ShippingMethod ShippingMethod  `json:"shipping_method"`
	Items          []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent is enqueued when staff move an order to a new status
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   string      `json:"order_id"`
	AccountID string      `json:"account_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
}

// OrderDeletedEvent is enqueued when staff delete an order
type OrderDeletedEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	AccountID string `json:"account_id"`
}

// AccountRoleChangedEvent is enqueued when staff change an account's role
type AccountRoleChangedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	From      Role   `json:"from"`
	To        Role   `json:"to"`
}

// AccountDeletedEvent is enqueued when an account record is removed
type AccountDeletedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// Outbox statuses
const (
	OutboxStatusPending    = "pending"
	OutboxStatusInProgress = "in_progress"
	OutboxStatusSent       = "sent"
	OutboxStatusFailed     = "failed"
)

// OutboxEvent is an event row written in the same transaction as the change it describes
type OutboxEvent struct {
	ID            int64      `db:"id" json:"id"`
	AggregateType string     `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   string     `db:"aggregate_id" json:"aggregate_id"`
	EventType     string     `db:"event_type" json:"event_type"`
	Payload       []byte     `db:"payload" json:"payload"`
	Status        string     `db:"status" json:"status"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastError     *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LockedUntil   *time.Time `db:"locked_until" json:"locked_until,omitempty"`
}
