package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxLineQuantity is the per-product ceiling for a single cart line
const DefaultMaxLineQuantity = 5

// Role is the capability class of an account
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// ParseRole parses a role label, accepting the legacy "user" and "employee" labels
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer", "user":
		return RoleCustomer, nil
	case "staff", "employee":
		return RoleStaff, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", &ValidationError{Field: "role", Rule: "oneof"}
}

// IsStaff reports whether the role belongs to shop personnel
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Caller identifies who is invoking an operation
type Caller struct {
	AccountID string
	Role      Role
}

// Account represents a registered identity and its profile
type Account struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      Role      `db:"role" json:"role"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Address   *Address  `db:"address" json:"address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Product represents a catalog entry. StockQuantity is the single source of truth for stock.
type Product struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Category       string          `db:"category" json:"category"`
	StockQuantity  int             `db:"stock_quantity" json:"stockQuantity"`
	MainImageURL   string          `db:"main_image_url" json:"mainImageUrl"`
	Description    string          `db:"description" json:"description"`
	Specifications Attributes      `db:"specifications" json:"specifications,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Attributes is a free-form key/value map stored as JSON
type Attributes map[string]string

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Attributes) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// scanJSON decodes a json/jsonb column into dst
func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
