package access

import (
	"fmt"
	"os"

	"storefront-service/internal/models"

	"gopkg.in/yaml.v3"
)

// Operation names a guarded action
type Operation string

const (
	OpCartRead          Operation = "cart:read"
	OpCartWrite         Operation = "cart:write"
	OpCheckout          Operation = "checkout"
	OpOrderReadOwn      Operation = "order:read:own"
	OpOrderReadAny      Operation = "order:read:any"
	OpOrderListAll      Operation = "order:list:all"
	OpOrderUpdateStatus Operation = "order:update_status"
	OpOrderDelete       Operation = "order:delete"
	OpProductWrite      Operation = "product:write"
	OpProductRestock    Operation = "product:restock"
	OpAccountReadOwn    Operation = "account:read:own"
	OpAccountUpdateOwn  Operation = "account:update:own"
	OpAccountChangeRole Operation = "account:change_role"
	OpAccountGrantAdmin Operation = "account:grant_admin"
	OpAccountDelete     Operation = "account:delete"
)

var knownOperations = map[Operation]bool{
	OpCartRead: true, OpCartWrite: true, OpCheckout: true,
	OpOrderReadOwn: true, OpOrderReadAny: true, OpOrderListAll: true,
	OpOrderUpdateStatus: true, OpOrderDelete: true,
	OpProductWrite: true, OpProductRestock: true,
	OpAccountReadOwn: true, OpAccountUpdateOwn: true,
	OpAccountChangeRole: true, OpAccountGrantAdmin: true, OpAccountDelete: true,
}

// DefaultPermissions is used when no permission file is configured. Staff and admin never
// hold a cart.
func DefaultPermissions() map[models.Role][]Operation {
	staff := []Operation{
		OpOrderReadAny, OpOrderListAll, OpOrderUpdateStatus, OpOrderDelete,
		OpProductWrite, OpProductRestock,
		OpAccountReadOwn, OpAccountUpdateOwn, OpAccountChangeRole, OpAccountDelete,
	}
	return map[models.Role][]Operation{
		models.RoleCustomer: {
			OpCartRead, OpCartWrite, OpCheckout, OpOrderReadOwn,
			OpAccountReadOwn, OpAccountUpdateOwn,
		},
		models.RoleStaff: staff,
		models.RoleAdmin: append(append([]Operation{}, staff...), OpAccountGrantAdmin),
	}
}

// Gate is the role predicate consulted before every guarded operation
type Gate struct {
	allowed map[models.Role]map[Operation]bool
}

// NewGate builds a gate from a role -> operations table
func NewGate(perms map[models.Role][]Operation) *Gate {
	g := &Gate{allowed: make(map[models.Role]map[Operation]bool, len(perms))}
	for role, ops := range perms {
		set := make(map[Operation]bool, len(ops))
		for _, op := range ops {
			set[op] = true
		}
		g.allowed[role] = set
	}
	return g
}

// NewDefaultGate builds a gate from DefaultPermissions
func NewDefaultGate() *Gate {
	return NewGate(DefaultPermissions())
}

type permissionFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadGate reads a permission table from a YAML file of the form
//
//	roles:
//	  customer: [cart:read, cart:write, checkout]
//	  staff: [order:list:all]
//
// Role labels go through models.ParseRole, so legacy labels are accepted.
func LoadGate(path string) (*Gate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission file: %w", err)
	}

	var file permissionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse permission file: %w", err)
	}

	perms := make(map[models.Role][]Operation, len(file.Roles))
	for label, ops := range file.Roles {
		role, err := models.ParseRole(label)
		if err != nil {
			return nil, fmt.Errorf("unknown role %q in permission file", label)
		}
		for _, op := range ops {
			if !knownOperations[Operation(op)] {
				return nil, fmt.Errorf("unknown operation %q for role %s", op, role)
			}
			perms[role] = append(perms[role], Operation(op))
		}
	}
	return NewGate(perms), nil
}

// Allowed reports whether role may perform op
func (g *Gate) Allowed(role models.Role, op Operation) bool {
	return g.allowed[role][op]
}

// Authorize fails with ErrRoleForbidden unless the caller's role may perform op
func (g *Gate) Authorize(caller models.Caller, op Operation) error {
	if g.Allowed(caller.Role, op) {
		return nil
	}
	return fmt.Errorf("%w: role %s may not perform %s", models.ErrRoleForbidden, caller.Role, op)
}

// AuthorizeOwned allows ownOp on records owned by the caller and anyOp on everything else
func (g *Gate) AuthorizeOwned(caller models.Caller, ownOp, anyOp Operation, ownerID string) error {
	if caller.AccountID == ownerID && g.Allowed(caller.Role, ownOp) {
		return nil
	}
	return g.Authorize(caller, anyOp)
}
