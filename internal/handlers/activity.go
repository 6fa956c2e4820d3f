package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"socialins-backend/internal/database"
	"socialins-backend/internal/models"
)

// ActivityHandler serves the audit trail.
type ActivityHandler struct {
	db database.Service
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(db database.Service) *ActivityHandler {
	return &ActivityHandler{db: db}
}

// List handles GET /api/activity with optional ?entity_type=, ?entity_id=
// filters and pagination, newest first.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if entityType := q.Get("entity_type"); entityType != "" {
		where += fmt.Sprintf(" AND a.entity_type = $%d", argIdx)
		args = append(args, entityType)
		argIdx++
	}
	if entityID := q.Get("entity_id"); entityID != "" {
		where += fmt.Sprintf(" AND a.entity_id = $%d", argIdx)
		args = append(args, entityID)
		argIdx++
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var total int
	if err := pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM activity_log a %s", where), args...).Scan(&total); err != nil {
		log.Printf("Error counting activity: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch activity")
		return
	}

	offset := (page - 1) * limit
	listArgs := append(args, limit, offset)

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT a.id, COALESCE(a.user_id::text, ''), COALESCE(u.name, ''),
			a.action, a.entity_type, a.entity_id,
			COALESCE(a.details::text, ''), a.created_at::text
		FROM activity_log a
		LEFT JOIN users u ON u.id = a.user_id
		%s
		ORDER BY a.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argIdx, argIdx+1), listArgs...)
	if err != nil {
		log.Printf("Error fetching activity: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch activity")
		return
	}
	defer rows.Close()

	entries := []models.ActivityEntry{}
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.UserName,
			&e.Action, &e.EntityType, &e.EntityID,
			&e.Details, &e.CreatedAt,
		); err != nil {
			log.Printf("Error scanning activity entry: %v", err)
			continue
		}
		entries = append(entries, e)
	}

	totalPages := (total + limit - 1) / limit
	JSON(w, http.StatusOK, PaginatedResponse{
		Data: entries,
		Pagination: PaginationMeta{
			Page: page, Limit: limit, Total: total, TotalPages: totalPages,
		},
	})
}
