package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one product in a cart. Name, Price and MainImageURL are copies taken when the
// line was added and may be stale relative to the product.
type CartLine struct {
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	MainImageURL string          `json:"mainImageUrl"`
	Quantity     int             `json:"quantity"`
}

// CartLines is stored as a single JSON document
type CartLines []CartLine

func (l CartLines) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *CartLines) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Cart is the single cart of an account. An absent cart reads as an empty one.
type Cart struct {
	AccountID string    `db:"account_id" json:"accountId"`
	Items     CartLines `db:"items" json:"items"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// EmptyCart returns the cart an account has before anything was added
func EmptyCart(accountID string) *Cart {
	return &Cart{AccountID: accountID, Items: CartLines{}}
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Line returns the line for productID, if any
func (c *Cart) Line(productID string) (CartLine, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartLine{}, false
}

// AddOne adds a single unit of p. An existing line is incremented; a new line copies the
// product's display fields. Fails once the line already holds maxQty units.
func (c *Cart) AddOne(p *Product, maxQty int) error {
	if i := c.indexOf(p.ID); i >= 0 {
		if c.Items[i].Quantity >= maxQty {
			return &QuantityLimitError{ProductID: p.ID, Limit: maxQty}
		}
		c.Items[i].Quantity++
		return nil
	}
	c.Items = append(c.Items, CartLine{
		ProductID:    p.ID,
		Name:         p.Name,
		Price:        p.Price,
		MainImageURL: p.MainImageURL,
		Quantity:     1,
	})
	return nil
}

// SetQuantity replaces the quantity of an existing line
func (c *Cart) SetQuantity(productID string, qty, maxQty int) error {
	if qty < 1 {
		return &ValidationError{Field: "quantity", Rule: "min"}
	}
	if qty > maxQty {
		return &QuantityLimitError{ProductID: productID, Limit: maxQty}
	}
	i := c.indexOf(productID)
	if i < 0 {
		return NotFound("cart line", productID)
	}
	c.Items[i].Quantity = qty
	return nil
}

// Remove drops the line for productID and reports whether one existed
func (c *Cart) Remove(productID string) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// Clear empties the line list
func (c *Cart) Clear() {
	c.Items = CartLines{}
}

// Clone returns a deep copy
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = make(CartLines, len(c.Items))
	copy(out.Items, c.Items)
	return &out
}
