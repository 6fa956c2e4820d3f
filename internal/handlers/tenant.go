package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"socialins-backend/internal/ctxkeys"
	"socialins-backend/internal/database"
	"socialins-backend/internal/models"
)

// TenantHandler handles employer-unit HTTP requests.
type TenantHandler struct {
	db database.Service
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(db database.Service) *TenantHandler {
	return &TenantHandler{db: db}
}

// ── List ───────────────────────────────────────────────────────

// List returns the tenants in the caller's scope, ordered alphabetically,
// with period and roster counts.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	where := "WHERE 1=1"
	args := []interface{}{}
	where, args, _ = appendTenantScope(r.Context(), where, args, 1, "t.id")

	rows, err := pool.Query(ctx, `
		SELECT t.id, t.name, t.tax_number, t.insurance_no, t.contact_name,
			t.created_at::text, t.updated_at::text,
			COUNT(DISTINCT p.id) AS period_count,
			COUNT(DISTINCT e.id) AS employee_count
		FROM tenants t
		LEFT JOIN periods p ON p.tenant_id = t.id
		LEFT JOIN employees e ON e.tenant_id = t.id
		`+where+`
		GROUP BY t.id, t.name, t.tax_number, t.insurance_no, t.contact_name,
			t.created_at, t.updated_at
		ORDER BY t.name ASC
	`, args...)
	if err != nil {
		log.Printf("Error fetching tenants: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch tenants")
		return
	}
	defer rows.Close()

	type TenantWithCounts struct {
		models.Tenant
		PeriodCount   int `json:"periodCount"`
		EmployeeCount int `json:"employeeCount"`
	}

	tenants := []TenantWithCounts{}
	for rows.Next() {
		var t TenantWithCounts
		if err := rows.Scan(
			&t.ID, &t.Name, &t.TaxNumber, &t.InsuranceNo, &t.ContactName,
			&t.CreatedAt, &t.UpdatedAt,
			&t.PeriodCount, &t.EmployeeCount,
		); err != nil {
			log.Printf("Error scanning tenant: %v", err)
			continue
		}
		tenants = append(tenants, t)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": tenants,
	})
}

// ── Create ─────────────────────────────────────────────────────

// tenantRequest defines the accepted fields for tenant creation/update.
type tenantRequest struct {
	Name        string  `json:"name"`
	TaxNumber   *string `json:"taxNumber,omitempty"`
	InsuranceNo *string `json:"insuranceNo,omitempty"`
	ContactName *string `json:"contactName,omitempty"`
}

const tenantReturning = `RETURNING id, name, tax_number, insurance_no, contact_name,
		created_at::text, updated_at::text`

// Create adds a new tenant.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.Name == "" {
		JSONError(w, http.StatusUnprocessableEntity, "Tenant name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var tenant models.Tenant
	err := pool.QueryRow(ctx, `
		INSERT INTO tenants (name, tax_number, insurance_no, contact_name)
		VALUES ($1, $2, $3, $4)
		`+tenantReturning,
		req.Name, req.TaxNumber, req.InsuranceNo, req.ContactName,
	).Scan(
		&tenant.ID, &tenant.Name, &tenant.TaxNumber, &tenant.InsuranceNo,
		&tenant.ContactName, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			JSONError(w, http.StatusConflict, "A tenant with this name already exists")
			return
		}
		log.Printf("Error creating tenant: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create tenant")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "created_tenant", "tenant", tenant.ID, map[string]interface{}{
		"name": tenant.Name,
	})

	JSON(w, http.StatusCreated, map[string]interface{}{
		"data":    tenant,
		"message": "Tenant created successfully",
	})
}

// ── Update ─────────────────────────────────────────────────────

// Update modifies a tenant's details.
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !checkTenantAccess(r.Context(), id) {
		JSONError(w, http.StatusForbidden, "Access denied to this tenant")
		return
	}

	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.Name == "" {
		JSONError(w, http.StatusUnprocessableEntity, "Tenant name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var tenant models.Tenant
	err := pool.QueryRow(ctx, `
		UPDATE tenants SET
			name = $1, tax_number = $2, insurance_no = $3, contact_name = $4,
			updated_at = NOW()
		WHERE id = $5
		`+tenantReturning,
		req.Name, req.TaxNumber, req.InsuranceNo, req.ContactName, id,
	).Scan(
		&tenant.ID, &tenant.Name, &tenant.TaxNumber, &tenant.InsuranceNo,
		&tenant.ContactName, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			JSONError(w, http.StatusConflict, "A tenant with this name already exists")
			return
		}
		JSONError(w, http.StatusNotFound, "Tenant not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    tenant,
		"message": "Tenant updated successfully",
	})
}

// ── Delete ─────────────────────────────────────────────────────

// Delete removes a tenant and cascades to its periods, files, charges
// and roster.
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	result, err := pool.Exec(ctx, "DELETE FROM tenants WHERE id = $1", id)
	if err != nil {
		log.Printf("Error deleting tenant: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to delete tenant")
		return
	}

	if result.RowsAffected() == 0 {
		JSONError(w, http.StatusNotFound, "Tenant not found")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "deleted_tenant", "tenant", id, nil)

	JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Tenant deleted successfully",
	})
}
