package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the staff-managed lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// OrderStatuses lists every member of the status enumeration
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus parses a status label, case-insensitively
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range OrderStatuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Rule: "oneof"}
}

// StatusPolicy decides which status transitions staff may perform
type StatusPolicy string

const (
	// StatusPolicyPermissive allows any status to follow any status
	StatusPolicyPermissive StatusPolicy = "permissive"
	// StatusPolicyDirected only allows forward moves; Delivered and Cancelled are terminal
	StatusPolicyDirected StatusPolicy = "directed"
)

// ParseStatusPolicy parses a configured status policy label
func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch StatusPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPolicyPermissive, "":
		return StatusPolicyPermissive, nil
	case StatusPolicyDirected:
		return StatusPolicyDirected, nil
	}
	return "", &ValidationError{Field: "orderStatusPolicy", Rule: "oneof"}
}

var directedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered, OrderStatusCancelled},
}

// Allows reports whether from -> to is a legal transition under the policy
func (p StatusPolicy) Allows(from, to OrderStatus) bool {
	switch p {
	case StatusPolicyDirected:
		if from == to {
			return true
		}
		for _, next := range directedTransitions[from] {
			if next == to {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// OrderLine is a frozen snapshot of one purchased product
type OrderLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Subtotal is quantity * unit price
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderLines is stored as a single JSON document
type OrderLines []OrderLine

func (l OrderLines) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *OrderLines) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Total sums every line subtotal
func (l OrderLines) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range l {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Order is an immutable purchase record; only Status changes after creation
type Order struct {
	ID              string          `db:"id" json:"id"`
	AccountID       string          `db:"account_id" json:"accountId"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
	Status          OrderStatus     `db:"status" json:"status"`
	Items           OrderLines      `db:"items" json:"items"`
	TotalValue      decimal.Decimal `db:"total_value" json:"totalValue"`
	ShippingMethod  ShippingMethod  `db:"shipping_method" json:"shippingMethod"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"paymentMethod"`
	DeliveryAddress *Address        `db:"delivery_address" json:"deliveryAddress"`
}

// ApplyDelivery copies the shipping, payment and address choice onto the order
func (o *Order) ApplyDelivery(d Delivery) {
	o.ShippingMethod = d.Method()
	o.PaymentMethod = d.Payment()
	o.DeliveryAddress = nil
	if addr := d.Address(); addr != nil {
		snapshot := *addr
		o.DeliveryAddress = &snapshot
	}
}

// Clone returns a deep copy
func (o *Order) Clone() *Order {
	out := *o
	out.Items = make(OrderLines, len(o.Items))
	copy(out.Items, o.Items)
	if o.DeliveryAddress != nil {
		addr := *o.DeliveryAddress
		out.DeliveryAddress = &addr
	}
	return &out
}
