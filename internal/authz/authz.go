// Package authz decides whether a principal may read, write or create
// records of a table.
package authz

import (
	"errors"
	"fmt"
	"slices"
)

// Capability is an action a principal may be granted on a table.
type Capability string

const (
	Read   Capability = "read"
	Write  Capability = "write"
	Create Capability = "create"
)

// Principal is the acting user.
type Principal struct {
	ID          string
	Permissions []string
}

// Has reports whether the principal carries the permission string.
func (p Principal) Has(permission string) bool {
	return slices.Contains(p.Permissions, permission)
}

// Checker verifies capabilities. Verify returns nil or a *DeniedError.
type Checker interface {
	Verify(p Principal, table string, c Capability) error
}

// DeniedError reports a missing capability.
type DeniedError struct {
	Principal  string
	Table      string
	Capability Capability
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("principal %q lacks %s on %s", e.Principal, e.Capability, e.Table)
}

// IsDenied reports whether err is a permission denial.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// Permission returns the permission string granting c on table.
func Permission(table string, c Capability) string {
	return table + "-" + string(c)
}

// PermissionList grants a capability when the principal carries the
// matching "<Table>-<capability>" permission string.
type PermissionList struct{}

func (PermissionList) Verify(p Principal, table string, c Capability) error {
	if p.Has(Permission(table, c)) {
		return nil
	}
	return &DeniedError{Principal: p.ID, Table: table, Capability: c}
}

// AllowAll grants everything. It backs system-internal callers and local
// development.
type AllowAll struct{}

func (AllowAll) Verify(Principal, string, Capability) error { return nil }
