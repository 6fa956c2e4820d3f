package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"socialins-backend/internal/ctxkeys"
	"socialins-backend/internal/database"
	"socialins-backend/internal/models"
)

// EmployeeHandler manages the insured roster.
type EmployeeHandler struct {
	db database.Service
}

// NewEmployeeHandler creates a new EmployeeHandler.
func NewEmployeeHandler(db database.Service) *EmployeeHandler {
	return &EmployeeHandler{db: db}
}

const employeeCols = `e.id, e.tenant_id, e.name, e.id_number, e.department,
	e.status, e.created_at, e.updated_at`

func scanEmployee(scanner interface {
	Scan(dest ...interface{}) error
}, e *models.Employee) error {
	return scanner.Scan(
		&e.ID, &e.TenantID, &e.Name, &e.IDNumber, &e.Department,
		&e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
}

// List handles GET /api/employees with ?search=, ?department=, ?status=,
// ?tenant_id= filters and pagination.
func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if search := q.Get("search"); search != "" {
		where += fmt.Sprintf(" AND (e.name ILIKE $%d OR e.id_number ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+search+"%")
		argIdx++
	}
	if department := q.Get("department"); department != "" {
		where += fmt.Sprintf(" AND e.department = $%d", argIdx)
		args = append(args, department)
		argIdx++
	}
	if status := q.Get("status"); status == "active" || status == "left" {
		where += fmt.Sprintf(" AND e.status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}
	if tenantID := q.Get("tenant_id"); tenantID != "" {
		where += fmt.Sprintf(" AND e.tenant_id = $%d", argIdx)
		args = append(args, tenantID)
		argIdx++
	}
	where, args, argIdx = appendTenantScope(r.Context(), where, args, argIdx, "e.tenant_id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var total int
	if err := pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM employees e %s", where), args...).Scan(&total); err != nil {
		log.Printf("Error counting employees: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch employees")
		return
	}

	offset := (page - 1) * limit
	listArgs := append(args, limit, offset)

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM employees e
		%s
		ORDER BY e.name ASC, e.id_number ASC
		LIMIT $%d OFFSET $%d
	`, employeeCols, where, argIdx, argIdx+1), listArgs...)
	if err != nil {
		log.Printf("Error fetching employees: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch employees")
		return
	}
	defer rows.Close()

	employees := []models.Employee{}
	for rows.Next() {
		var e models.Employee
		if err := scanEmployee(rows, &e); err != nil {
			log.Printf("Error scanning employee: %v", err)
			continue
		}
		employees = append(employees, e)
	}

	totalPages := (total + limit - 1) / limit
	JSON(w, http.StatusOK, PaginatedResponse{
		Data: employees,
		Pagination: PaginationMeta{
			Page: page, Limit: limit, Total: total, TotalPages: totalPages,
		},
	})
}

// Departments handles GET /api/employees/departments — the distinct
// department names in scope, for filter dropdowns.
func (h *EmployeeHandler) Departments(w http.ResponseWriter, r *http.Request) {
	where := "WHERE e.department <> ''"
	args := []interface{}{}
	where, args, _ = appendTenantScope(r.Context(), where, args, 1, "e.tenant_id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.db.GetPool().Query(ctx, fmt.Sprintf(`
		SELECT DISTINCT e.department FROM employees e %s ORDER BY e.department ASC
	`, where), args...)
	if err != nil {
		log.Printf("Error fetching departments: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch departments")
		return
	}
	defer rows.Close()

	departments := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			continue
		}
		departments = append(departments, d)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": departments,
	})
}

// Create handles POST /api/employees.
func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		models.CreateEmployeeRequest
		TenantID string `json:"tenantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		JSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "Validation failed",
			"fields": errs,
		})
		return
	}

	tenantID, err := requireTenant(r.Context(), req.TenantID)
	if err != nil {
		JSONError(w, http.StatusForbidden, err.Error())
		return
	}

	status := req.Status
	if status == "" {
		status = "active"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var emp models.Employee
	err = scanEmployee(pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO employees (tenant_id, name, id_number, department, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s
	`, employeeColsBare), tenantID, req.Name, req.IDNumber, req.Department, status), &emp)
	if err != nil {
		if isDuplicateKeyError(err) {
			JSONError(w, http.StatusConflict, "An employee with this ID number already exists")
			return
		}
		log.Printf("Error creating employee: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create employee")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "created_employee", "employee", emp.ID, map[string]interface{}{
		"name": emp.Name,
	})

	JSON(w, http.StatusCreated, emp)
}

// employeeColsBare is employeeCols without the table alias, for RETURNING.
const employeeColsBare = `id, tenant_id, name, id_number, department,
	status, created_at, updated_at`

// Update handles PUT /api/employees/{id} with partial updates.
func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	if employeeID == "" {
		JSONError(w, http.StatusBadRequest, "Employee ID is required")
		return
	}

	pool := h.db.GetPool()

	if !checkEmployeeAccess(r.Context(), pool, employeeID) {
		JSONError(w, http.StatusForbidden, "Access denied to this employee")
		return
	}

	var req models.UpdateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	setParts := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		if len(*req.Name) < 2 || len(*req.Name) > 100 {
			JSONError(w, http.StatusBadRequest, "Name must be between 2 and 100 characters")
			return
		}
		setParts = append(setParts, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.IDNumber != nil {
		if len(*req.IDNumber) < 6 {
			JSONError(w, http.StatusBadRequest, "ID number must be at least 6 characters")
			return
		}
		setParts = append(setParts, fmt.Sprintf("id_number = $%d", argIdx))
		args = append(args, *req.IDNumber)
		argIdx++
	}
	if req.Department != nil {
		setParts = append(setParts, fmt.Sprintf("department = $%d", argIdx))
		args = append(args, *req.Department)
		argIdx++
	}
	if req.Status != nil {
		if *req.Status != "active" && *req.Status != "left" {
			JSONError(w, http.StatusBadRequest, "Status must be 'active' or 'left'")
			return
		}
		setParts = append(setParts, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *req.Status)
		argIdx++
	}

	if len(setParts) == 0 {
		JSONError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	args = append(args, employeeID)

	var emp models.Employee
	err := scanEmployee(pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE employees SET %s, updated_at = NOW()
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(setParts, ", "), argIdx, employeeColsBare), args...), &emp)
	if err != nil {
		if isDuplicateKeyError(err) {
			JSONError(w, http.StatusConflict, "An employee with this ID number already exists")
			return
		}
		log.Printf("Error updating employee %s: %v", employeeID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to update employee")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "updated_employee", "employee", emp.ID, nil)

	JSON(w, http.StatusOK, emp)
}

// Delete handles DELETE /api/employees/{id}.
func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	if employeeID == "" {
		JSONError(w, http.StatusBadRequest, "Employee ID is required")
		return
	}

	pool := h.db.GetPool()

	if !checkEmployeeAccess(r.Context(), pool, employeeID) {
		JSONError(w, http.StatusForbidden, "Access denied to this employee")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	tag, err := pool.Exec(ctx, "DELETE FROM employees WHERE id = $1", employeeID)
	if err != nil {
		log.Printf("Error deleting employee %s: %v", employeeID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to delete employee")
		return
	}
	if tag.RowsAffected() == 0 {
		JSONError(w, http.StatusNotFound, "Employee not found")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "deleted_employee", "employee", employeeID, nil)

	JSON(w, http.StatusOK, map[string]string{"message": "Employee deleted"})
}

// Export handles GET /api/employees/export — the roster as CSV.
func (h *EmployeeHandler) Export(w http.ResponseWriter, r *http.Request) {
	where := "WHERE 1=1"
	args := []interface{}{}
	where, args, _ = appendTenantScope(r.Context(), where, args, 1, "e.tenant_id")

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	rows, err := h.db.GetPool().Query(ctx, fmt.Sprintf(`
		SELECT e.name, e.id_number, e.department, e.status, t.name
		FROM employees e
		JOIN tenants t ON e.tenant_id = t.id
		%s
		ORDER BY e.name ASC
	`, where), args...)
	if err != nil {
		log.Printf("Error exporting employees: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to export")
		return
	}
	defer rows.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=roster.csv")

	fmt.Fprintln(w, "姓名,证件号码,部门,状态,单位")

	for rows.Next() {
		var name, idNumber, department, status, tenant string
		if err := rows.Scan(&name, &idNumber, &department, &status, &tenant); err != nil {
			continue
		}
		fmt.Fprintf(w, "%s,%s,%s,%s,%s\n",
			csvEscape(name), csvEscape(idNumber), csvEscape(department), status, csvEscape(tenant))
	}
}
