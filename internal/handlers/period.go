package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"socialins-backend/internal/ctxkeys"
	"socialins-backend/internal/database"
	"socialins-backend/internal/models"
	"socialins-backend/internal/storage"
)

// PeriodHandler manages accounting periods and their lifecycle. Status is
// computed here, never by clients — they only reflect what these endpoints
// return.
type PeriodHandler struct {
	db    database.Service
	store storage.Store
}

// NewPeriodHandler creates a new PeriodHandler.
func NewPeriodHandler(db database.Service, store storage.Store) *PeriodHandler {
	return &PeriodHandler{db: db, store: store}
}

const periodCols = `p.id, p.tenant_id, p.label, p.status, p.created_at, p.updated_at`

func scanPeriod(scanner interface {
	Scan(dest ...interface{}) error
}, p *models.Period) error {
	return scanner.Scan(&p.ID, &p.TenantID, &p.Label, &p.Status, &p.CreatedAt, &p.UpdatedAt)
}

// ── List ───────────────────────────────────────────────────────

// List handles GET /api/periods — newest label first, with file counts.
func (h *PeriodHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1
	where, args, _ = appendTenantScope(ctx, where, args, argIdx, "p.tenant_id")

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT %s,
			COUNT(f.id) FILTER (WHERE f.kind = 'normal')     AS normal_files,
			COUNT(f.id) FILTER (WHERE f.kind = 'adjustment') AS adjustment_files
		FROM periods p
		LEFT JOIN source_files f ON f.period_id = p.id
		%s
		GROUP BY p.id
		ORDER BY p.label DESC
	`, periodCols, where), args...)
	if err != nil {
		log.Printf("Error fetching periods: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch periods")
		return
	}
	defer rows.Close()

	periods := []models.PeriodWithCounts{}
	for rows.Next() {
		var p models.PeriodWithCounts
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Label, &p.Status, &p.CreatedAt, &p.UpdatedAt,
			&p.NormalFileCount, &p.AdjustmentFileCount,
		); err != nil {
			log.Printf("Error scanning period: %v", err)
			continue
		}
		periods = append(periods, p)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": periods,
	})
}

// ── Create ─────────────────────────────────────────────────────

// Create handles POST /api/periods. New periods start in draft.
func (h *PeriodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		models.CreatePeriodRequest
		TenantID string `json:"tenantId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "Validation failed",
			"details": errs,
		})
		return
	}

	tenantID, err := requireTenant(r.Context(), req.TenantID)
	if err != nil {
		JSONError(w, http.StatusForbidden, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var period models.Period
	err = scanPeriod(pool.QueryRow(ctx, `
		INSERT INTO periods (tenant_id, label, status)
		VALUES ($1, $2, 'draft')
		RETURNING id, tenant_id, label, status, created_at, updated_at
	`, tenantID, req.Label), &period)
	if err != nil {
		if isDuplicateKeyError(err) {
			JSONError(w, http.StatusConflict, "A period with this label already exists")
			return
		}
		log.Printf("Error creating period: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create period")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "created", "period", period.ID, map[string]interface{}{
		"label": period.Label,
	})

	JSON(w, http.StatusCreated, map[string]interface{}{
		"data":    period,
		"message": "Period created successfully",
	})
}

// ── Delete ─────────────────────────────────────────────────────

// Delete handles DELETE /api/periods/{id}. Source files, imported rows,
// summaries and charges cascade in the database; stored workbooks are
// removed best-effort afterwards.
func (h *PeriodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), id) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	tag, err := pool.Exec(ctx, "DELETE FROM periods WHERE id = $1", id)
	if err != nil {
		log.Printf("Error deleting period %s: %v", id, err)
		JSONError(w, http.StatusInternalServerError, "Failed to delete period")
		return
	}
	if tag.RowsAffected() == 0 {
		JSONError(w, http.StatusNotFound, "Period not found")
		return
	}

	if err := h.store.DeletePrefix(ctx, periodStoragePrefix(id)); err != nil {
		log.Printf("Error deleting stored files for period %s: %v", id, err)
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "deleted", "period", id, nil)

	JSON(w, http.StatusOK, map[string]string{
		"message": "Period deleted successfully",
	})
}

// ── Reset ──────────────────────────────────────────────────────

// Reset handles POST /api/periods/{id}/reset — drops all files, imported
// rows and computed data, returning the period to draft.
func (h *PeriodHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), id) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting reset transaction: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to reset period")
		return
	}
	defer tx.Rollback(ctx)

	// file_rows cascade from source_files
	for _, stmt := range []string{
		"DELETE FROM charges WHERE period_id = $1",
		"DELETE FROM period_summaries WHERE period_id = $1",
		"DELETE FROM source_files WHERE period_id = $1",
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			log.Printf("Error resetting period %s: %v", id, err)
			JSONError(w, http.StatusInternalServerError, "Failed to reset period")
			return
		}
	}

	var period models.Period
	err = scanPeriod(tx.QueryRow(ctx, `
		UPDATE periods SET status = 'draft', processed_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING id, tenant_id, label, status, created_at, updated_at
	`, id), &period)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Period not found")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing period reset: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to reset period")
		return
	}

	if err := h.store.DeletePrefix(ctx, periodStoragePrefix(id)); err != nil {
		log.Printf("Error deleting stored files for period %s: %v", id, err)
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "reset", "period", id, nil)

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    period,
		"message": "Period reset to draft",
	})
}

// ── Status Transitions ─────────────────────────────────────────

// Complete handles POST /api/periods/{id}/complete.
func (h *PeriodHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.PeriodProcessed, models.PeriodCompleted, "completed")
}

// Archive handles POST /api/periods/{id}/archive.
func (h *PeriodHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.PeriodCompleted, models.PeriodArchived, "archived")
}

// transition moves a period from one status to the next, rejecting calls
// against a period in any other state.
func (h *PeriodHandler) transition(w http.ResponseWriter, r *http.Request, from, to, action string) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), id) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var period models.Period
	err := scanPeriod(pool.QueryRow(ctx, `
		UPDATE periods SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING id, tenant_id, label, status, created_at, updated_at
	`, to, id, from), &period)
	if err != nil {
		JSONError(w, http.StatusConflict,
			fmt.Sprintf("Period must be in '%s' status to be %s", from, action))
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, action, "period", id, nil)

	JSON(w, http.StatusOK, map[string]interface{}{
		"data":    period,
		"message": "Period " + action,
	})
}

// periodStoragePrefix is where a period's raw workbooks live in the store.
func periodStoragePrefix(periodID string) string {
	return "periods/" + periodID
}
