package handlers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"socialins-backend/internal/ctxkeys"
)

// appendTenantScope adds a tenant_id scope filter to a dynamic WHERE clause.
// colExpr is the SQL column expression to filter on (e.g. "p.tenant_id").
// If the user has global scope (admin/super_admin), nothing is added.
func appendTenantScope(ctx context.Context, where string, args []interface{}, argIdx int, colExpr string) (string, []interface{}, int) {
	scope := ctxkeys.GetTenantScope(ctx)
	if scope == nil {
		return where, args, argIdx
	}
	where += fmt.Sprintf(" AND %s = ANY($%d)", colExpr, argIdx)
	args = append(args, scope)
	argIdx++
	return where, args, argIdx
}

// checkTenantAccess verifies that the given tenantID is within the user's scope.
func checkTenantAccess(ctx context.Context, tenantID string) bool {
	scope := ctxkeys.GetTenantScope(ctx)
	if scope == nil {
		return true
	}
	for _, id := range scope {
		if id == tenantID {
			return true
		}
	}
	return false
}

// checkPeriodAccess looks up the period's tenant and checks scope.
func checkPeriodAccess(ctx context.Context, pool *pgxpool.Pool, periodID string) bool {
	if ctxkeys.IsGlobalScope(ctx) {
		return true
	}
	var tenantID string
	err := pool.QueryRow(ctx, "SELECT tenant_id::text FROM periods WHERE id = $1", periodID).Scan(&tenantID)
	if err != nil {
		return false
	}
	return checkTenantAccess(ctx, tenantID)
}

// checkEmployeeAccess looks up the roster entry's tenant and checks scope.
func checkEmployeeAccess(ctx context.Context, pool *pgxpool.Pool, employeeID string) bool {
	if ctxkeys.IsGlobalScope(ctx) {
		return true
	}
	var tenantID string
	err := pool.QueryRow(ctx, "SELECT tenant_id::text FROM employees WHERE id = $1", employeeID).Scan(&tenantID)
	if err != nil {
		return false
	}
	return checkTenantAccess(ctx, tenantID)
}

// requireTenant resolves the tenant a scoped user may write to. Global-scope
// users must pass tenant_id explicitly; scoped users with exactly one tenant
// default to it.
func requireTenant(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		if !checkTenantAccess(ctx, explicit) {
			return "", fmt.Errorf("access denied to this tenant")
		}
		return explicit, nil
	}
	scope := ctxkeys.GetTenantScope(ctx)
	if len(scope) == 1 {
		return scope[0], nil
	}
	return "", fmt.Errorf("tenant_id is required")
}
