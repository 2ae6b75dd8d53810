package models

import "strings"

// ShippingMethod is how an order reaches the customer
type ShippingMethod string

const (
	ShippingPickup  ShippingMethod = "pickup"
	ShippingCourier ShippingMethod = "courier"
)

// PaymentMethod is a label for how the customer pays; no payment is processed
type PaymentMethod string

const (
	PaymentNone PaymentMethod = ""
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// ParseShippingMethod accepts the canonical labels and the legacy "odbior"/"kurier" ones
func ParseShippingMethod(s string) (ShippingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pickup", "odbior":
		return ShippingPickup, nil
	case "courier", "kurier":
		return ShippingCourier, nil
	}
	return "", &ValidationError{Field: "shippingMethod", Rule: "oneof"}
}

// ParsePaymentMethod accepts the canonical labels, the legacy "gotowka"/"karta" ones and
// the empty string for no selection
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PaymentNone, nil
	case "cash", "gotowka":
		return PaymentCash, nil
	case "card", "karta":
		return PaymentCard, nil
	}
	return "", &ValidationError{Field: "paymentMethod", Rule: "oneof"}
}

// Delivery is the tagged union of fulfilment choices: Pickup or Courier
type Delivery interface {
	Method() ShippingMethod
	Payment() PaymentMethod
	Address() *Address
	isDelivery()
}

// Pickup is collection in person; no address is needed
type Pickup struct {
	PaymentMethod PaymentMethod
}

func (Pickup) Method() ShippingMethod   { return ShippingPickup }
func (p Pickup) Payment() PaymentMethod { return p.PaymentMethod }
func (Pickup) Address() *Address        { return nil }
func (Pickup) isDelivery()              {}

// Courier is delivery to DeliveryAddress
type Courier struct {
	PaymentMethod   PaymentMethod
	DeliveryAddress Address
}

func (Courier) Method() ShippingMethod   { return ShippingCourier }
func (c Courier) Payment() PaymentMethod { return c.PaymentMethod }
func (c Courier) Address() *Address      { return &c.DeliveryAddress }
func (Courier) isDelivery()              {}

// NewDelivery builds the union member for method. Courier requires an address.
func NewDelivery(method ShippingMethod, payment PaymentMethod, addr *Address) (Delivery, error) {
	switch method {
	case ShippingPickup:
		return Pickup{PaymentMethod: payment}, nil
	case ShippingCourier:
		if addr == nil {
			return nil, &ValidationError{Field: "deliveryAddress", Rule: "required"}
		}
		return Courier{PaymentMethod: payment, DeliveryAddress: *addr}, nil
	}
	return nil, &ValidationError{Field: "shippingMethod", Rule: "oneof"}
}

// PaymentPolicy couples payment methods to shipping methods
type PaymentPolicy string

const (
	// PaymentPolicyAny requires cash or card for every shipping method
	PaymentPolicyAny PaymentPolicy = "any"
	// PaymentPolicyPickupOnly requires cash or card for pickup and forbids a payment
	// method for courier delivery
	PaymentPolicyPickupOnly PaymentPolicy = "pickup_only"
)

// ParsePaymentPolicy parses a configured payment policy label
func ParsePaymentPolicy(s string) (PaymentPolicy, error) {
	switch PaymentPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentPolicyAny, "":
		return PaymentPolicyAny, nil
	case PaymentPolicyPickupOnly:
		return PaymentPolicyPickupOnly, nil
	}
	return "", &ValidationError{Field: "paymentPolicy", Rule: "oneof"}
}

// ValidateDelivery checks the delivery choice against the policy and, for courier
// delivery, the address field rules
func (p PaymentPolicy) ValidateDelivery(d Delivery) error {
	switch v := d.(type) {
	case Pickup:
		if !isSelected(v.PaymentMethod) {
			return &ValidationError{Field: "paymentMethod", Rule: "required"}
		}
		return nil
	case Courier:
		switch p {
		case PaymentPolicyPickupOnly:
			if v.PaymentMethod != PaymentNone {
				return &ValidationError{Field: "paymentMethod", Rule: "pickup_only"}
			}
		default:
			if !isSelected(v.PaymentMethod) {
				return &ValidationError{Field: "paymentMethod", Rule: "required"}
			}
		}
		return v.DeliveryAddress.Validate()
	}
	return &ValidationError{Field: "shippingMethod", Rule: "oneof"}
}

func isSelected(m PaymentMethod) bool {
	return m == PaymentCash || m == PaymentCard
}
