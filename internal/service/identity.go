package service

// Roles carried in the JWT role claim. The identity collaborator issues
// tokens; this engine only distinguishes the customer capability (may
// initiate payments) from the admin capability (may configure fees and
// read any order, but must never initiate customer payments).
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Identity is the authenticated caller as extracted from the JWT.
type Identity struct {
	UserID uint64
	Role   string
}

// IsCustomer reports whether the identity carries the customer
// capability. CreateOrder is the single entry point that checks this, so
// the admin/customer guard lives in exactly one place.
func (i Identity) IsCustomer() bool { return i.Role == RoleCustomer }

// IsAdmin reports whether the identity carries the admin capability.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
