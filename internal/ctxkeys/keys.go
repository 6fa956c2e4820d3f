// Package ctxkeys defines typed context keys shared between middleware and handlers.
// This avoids import cycles: both middleware and handlers import this package,
// but neither imports the other for context key types.
package ctxkeys

import "context"

// Key is a typed string used as context key to prevent collisions.
type Key string

const (
	UserID      Key = "userID"
	UserRole    Key = "userRole"
	TenantScope Key = "tenantScope"
)

// GetTenantScope returns the list of tenant IDs the current user has access to.
// Returns nil for admin/super_admin (meaning "all tenants").
func GetTenantScope(ctx context.Context) []string {
	v := ctx.Value(TenantScope)
	if v == nil {
		return nil
	}
	ids, _ := v.([]string)
	return ids
}

// IsGlobalScope returns true if the user has access to all tenants (admin/super_admin).
func IsGlobalScope(ctx context.Context) bool {
	return ctx.Value(TenantScope) == nil
}

// ValidRoles lists all valid role strings.
var ValidRoles = map[string]bool{
	"viewer":      true,
	"operator":    true,
	"admin":       true,
	"super_admin": true,
}

// RoleLevel maps role names to permission levels. Operators run the upload
// and processing workflow; viewers only read.
var RoleLevel = map[string]int{
	"viewer":      1,
	"operator":    2,
	"admin":       3,
	"super_admin": 4,
}
