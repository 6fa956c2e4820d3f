package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xuri/excelize/v2"

	"socialins-backend/internal/ctxkeys"
	"socialins-backend/internal/database"
	"socialins-backend/internal/models"
	"socialins-backend/internal/sheet"
	"socialins-backend/pkg/insurance"
)

// ProcessHandler turns a period's imported rows into summaries and
// per-person charges, merges adjustment deltas, and serves the computed
// results and their exports.
type ProcessHandler struct {
	db database.Service
}

// NewProcessHandler creates a new ProcessHandler.
func NewProcessHandler(db database.Service) *ProcessHandler {
	return &ProcessHandler{db: db}
}

const chargeCols = `c.id, c.period_id, c.part, c.name, c.id_number,
	c.department, c.scheme, c.base, c.amount, c.is_adjustment`

func scanCharge(scanner interface {
	Scan(dest ...interface{}) error
}, c *models.ChargeRow) error {
	return scanner.Scan(
		&c.ID, &c.PeriodID, &c.Part, &c.Name, &c.IDNumber,
		&c.Department, &c.Scheme, &c.Base, &c.Amount, &c.IsAdjustment,
	)
}

// ── Process ────────────────────────────────────────────────────

// Process handles POST /api/periods/{id}/process. It refuses to run
// until every required (part, scheme) combination has a normal file,
// then recomputes summaries and charges from scratch — previous results,
// including applied adjustments, are discarded. The response carries the
// summary and both charge tables so the caller needs no follow-up reads.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	pool := h.db.GetPool()

	if !checkPeriodAccess(r.Context(), pool, periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	var status string
	if err := pool.QueryRow(ctx, "SELECT status FROM periods WHERE id = $1", periodID).Scan(&status); err != nil {
		JSONError(w, http.StatusNotFound, "Period not found")
		return
	}
	if status == models.PeriodCompleted || status == models.PeriodArchived {
		JSONError(w, http.StatusConflict, "Period is closed")
		return
	}

	coverage, err := loadCoverage(ctx, h.db, periodID)
	if err != nil {
		log.Printf("Error loading coverage for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to check completeness")
		return
	}
	if !insurance.ReadyToProcess(coverage) {
		JSON(w, http.StatusConflict, map[string]interface{}{
			"error":   "Uploads are incomplete; all required files must be present before processing",
			"missing": insurance.MissingUploads(coverage),
		})
		return
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting process transaction: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to process period")
		return
	}
	defer tx.Rollback(ctx)

	// Full replace: wipe every computed row for the period.
	if _, err := tx.Exec(ctx, "DELETE FROM charges WHERE period_id = $1", periodID); err != nil {
		log.Printf("Error clearing charges for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to process period")
		return
	}
	if _, err := tx.Exec(ctx, "DELETE FROM period_summaries WHERE period_id = $1", periodID); err != nil {
		log.Printf("Error clearing summaries for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to process period")
		return
	}

	if err := insertComputed(ctx, tx, periodID, insurance.KindNormal, false); err != nil {
		log.Printf("Error computing charges for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to process period")
		return
	}

	if _, err := tx.Exec(ctx, `
		UPDATE periods SET status = 'processed', processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, periodID); err != nil {
		log.Printf("Error updating period %s status: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to process period")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing process for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to process period")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "processed_period", "period", periodID, nil)

	result, err := h.loadResult(ctx, periodID)
	if err != nil {
		log.Printf("Error loading process result for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Period processed but results could not be loaded")
		return
	}

	JSON(w, http.StatusOK, result)
}

// ProcessAdjustments handles POST /api/periods/{id}/process-adjustments.
// It folds the uploaded adjustment files into separately flagged summary
// and charge rows, replacing any previously applied adjustments. Unlike
// Process, the response is an acknowledgement only — callers re-fetch
// the summary and charge collections to see the merged state.
func (h *ProcessHandler) ProcessAdjustments(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	pool := h.db.GetPool()

	if !checkPeriodAccess(r.Context(), pool, periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	var status string
	if err := pool.QueryRow(ctx, "SELECT status FROM periods WHERE id = $1", periodID).Scan(&status); err != nil {
		JSONError(w, http.StatusNotFound, "Period not found")
		return
	}
	if status != models.PeriodProcessed {
		JSONError(w, http.StatusConflict, "Period must be processed before adjustments can be applied")
		return
	}

	var adjFiles int
	if err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM source_files WHERE period_id = $1 AND kind = 'adjustment'
	`, periodID).Scan(&adjFiles); err != nil {
		log.Printf("Error counting adjustment files for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to apply adjustments")
		return
	}
	if adjFiles == 0 {
		JSONError(w, http.StatusConflict, "No adjustment files have been uploaded for this period")
		return
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting adjustment transaction: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to apply adjustments")
		return
	}
	defer tx.Rollback(ctx)

	// Replace only the adjustment-flagged rows; base results stay put.
	if _, err := tx.Exec(ctx,
		"DELETE FROM charges WHERE period_id = $1 AND is_adjustment = TRUE", periodID); err != nil {
		log.Printf("Error clearing adjustment charges for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to apply adjustments")
		return
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM period_summaries WHERE period_id = $1 AND is_adjustment = TRUE", periodID); err != nil {
		log.Printf("Error clearing adjustment summaries for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to apply adjustments")
		return
	}

	if err := insertComputed(ctx, tx, periodID, insurance.KindAdjustment, true); err != nil {
		log.Printf("Error computing adjustments for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to apply adjustments")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing adjustments for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to apply adjustments")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "processed_adjustments", "period", periodID, map[string]interface{}{
		"files": adjFiles,
	})

	JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Adjustments applied",
	})
}

// insertComputed derives charges and summaries from the imported rows of
// files with the given kind. Charges are one row per imported person-row;
// summaries aggregate per (scheme, part).
func insertComputed(ctx context.Context, tx pgx.Tx, periodID, kind string, isAdjustment bool) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO charges (period_id, part, name, id_number, department, scheme, base, amount, is_adjustment)
		SELECT fr.period_id, sf.part, fr.name, fr.id_number, fr.department, sf.scheme, fr.base, fr.amount, $3
		FROM file_rows fr
		JOIN source_files sf ON sf.id = fr.file_id
		WHERE fr.period_id = $1 AND sf.kind = $2
	`, periodID, kind, isAdjustment)
	if err != nil {
		return fmt.Errorf("insert charges: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO period_summaries (period_id, scheme, part, headcount, base_total, payable_total, is_adjustment)
		SELECT fr.period_id, sf.scheme, sf.part, COUNT(*), COALESCE(SUM(fr.base), 0), COALESCE(SUM(fr.amount), 0), $3
		FROM file_rows fr
		JOIN source_files sf ON sf.id = fr.file_id
		WHERE fr.period_id = $1 AND sf.kind = $2
		GROUP BY fr.period_id, sf.scheme, sf.part
	`, periodID, kind, isAdjustment)
	if err != nil {
		return fmt.Errorf("insert summaries: %w", err)
	}

	return nil
}

// loadResult reads back the full computed state of a period.
func (h *ProcessHandler) loadResult(ctx context.Context, periodID string) (*models.ProcessResult, error) {
	pool := h.db.GetPool()

	summary, err := querySummary(ctx, pool, periodID)
	if err != nil {
		return nil, err
	}
	personal, err := queryCharges(ctx, pool, periodID, insurance.PartPersonal, "", "")
	if err != nil {
		return nil, err
	}
	unit, err := queryCharges(ctx, pool, periodID, insurance.PartUnit, "", "")
	if err != nil {
		return nil, err
	}

	return &models.ProcessResult{
		Summary:         summary,
		PersonalCharges: personal,
		UnitCharges:     unit,
	}, nil
}

func querySummary(ctx context.Context, pool *pgxpool.Pool, periodID string) ([]models.PeriodSummary, error) {
	rows, err := pool.Query(ctx, `
		SELECT scheme, part, headcount, base_total, payable_total, is_adjustment
		FROM period_summaries
		WHERE period_id = $1
		ORDER BY is_adjustment ASC, array_position($2::text[], scheme), part ASC
	`, periodID, insurance.Schemes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := []models.PeriodSummary{}
	for rows.Next() {
		var s models.PeriodSummary
		if err := rows.Scan(&s.Scheme, &s.Part, &s.Headcount, &s.BaseTotal, &s.PayableTotal, &s.IsAdjustment); err != nil {
			return nil, err
		}
		summary = append(summary, s)
	}
	return summary, rows.Err()
}

// queryCharges returns one part's charge rows in a stable display order:
// grouped per person, base rows ahead of adjustment rows. Department and
// search filters are optional.
func queryCharges(ctx context.Context, pool *pgxpool.Pool, periodID, part, department, search string) ([]models.ChargeRow, error) {
	where := "WHERE c.period_id = $1 AND c.part = $2"
	args := []interface{}{periodID, part}
	argIdx := 3

	if department != "" {
		where += fmt.Sprintf(" AND c.department = $%d", argIdx)
		args = append(args, department)
		argIdx++
	}
	if search != "" {
		where += fmt.Sprintf(" AND (c.name ILIKE $%d OR c.id_number ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+search+"%")
		argIdx++
	}

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM charges c
		%s
		ORDER BY c.name ASC, c.id_number ASC, c.is_adjustment ASC,
			array_position($%d::text[], c.scheme)
	`, chargeCols, where, argIdx), append(args, insurance.Schemes)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	charges := []models.ChargeRow{}
	for rows.Next() {
		var c models.ChargeRow
		if err := scanCharge(rows, &c); err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// ── Reads ──────────────────────────────────────────────────────

// GetSummary handles GET /api/periods/{id}/summary.
func (h *ProcessHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	summary, err := querySummary(ctx, h.db.GetPool(), periodID)
	if err != nil {
		log.Printf("Error fetching summary for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch summary")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": summary,
	})
}

// GetCharges handles GET /api/periods/{id}/charges/{part} with optional
// ?department= and ?search= filters.
func (h *ProcessHandler) GetCharges(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	part := chi.URLParam(r, "part")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}
	if !insurance.ValidPart(part) {
		JSONError(w, http.StatusBadRequest, "Part must be 'personal' or 'unit'")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	charges, err := queryCharges(ctx, h.db.GetPool(), periodID, part,
		r.URL.Query().Get("department"), r.URL.Query().Get("search"))
	if err != nil {
		log.Printf("Error fetching %s charges for period %s: %v", part, periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch charges")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": charges,
	})
}

// ── Exports ────────────────────────────────────────────────────

func (h *ProcessHandler) periodLabel(ctx context.Context, periodID string) (string, error) {
	var label string
	err := h.db.GetPool().QueryRow(ctx, "SELECT label FROM periods WHERE id = $1", periodID).Scan(&label)
	return label, err
}

// ExportSummary handles GET /api/periods/{id}/export/summary — the
// per-scheme aggregate workbook.
func (h *ProcessHandler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	label, err := h.periodLabel(ctx, periodID)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Period not found")
		return
	}

	summary, err := querySummary(ctx, h.db.GetPool(), periodID)
	if err != nil {
		log.Printf("Error fetching summary for export, period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}
	if len(summary) == 0 {
		JSONError(w, http.StatusConflict, "Period has not been processed yet")
		return
	}

	f, err := sheet.WriteSummaryWorkbook(label, summary)
	if err != nil {
		log.Printf("Error building summary workbook for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}

	writeWorkbook(w, f, fmt.Sprintf("summary_%s.xlsx", label))
}

// ExportCharges handles GET /api/periods/{id}/export/charges/{part}.
// With ?detail=true each scheme gets its own sheet.
func (h *ProcessHandler) ExportCharges(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	part := chi.URLParam(r, "part")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}
	if !insurance.ValidPart(part) {
		JSONError(w, http.StatusBadRequest, "Part must be 'personal' or 'unit'")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	label, err := h.periodLabel(ctx, periodID)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Period not found")
		return
	}

	charges, err := queryCharges(ctx, h.db.GetPool(), periodID, part, "", "")
	if err != nil {
		log.Printf("Error fetching charges for export, period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to export charges")
		return
	}
	if len(charges) == 0 {
		JSONError(w, http.StatusConflict, "Period has no computed charges")
		return
	}

	var f *excelize.File
	if r.URL.Query().Get("detail") == "true" {
		f, err = sheet.WriteChargesDetailWorkbook(label, charges)
	} else {
		title := insurance.PartDisplayName(part) + "扣缴明细"
		f, err = sheet.WriteChargesWorkbook(label, title, charges)
	}
	if err != nil {
		log.Printf("Error building charges workbook for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to export charges")
		return
	}

	writeWorkbook(w, f, fmt.Sprintf("charges_%s_%s.xlsx", part, label))
}

// ExportChargesCSV handles GET /api/periods/{id}/export/charges/{part}/csv.
func (h *ProcessHandler) ExportChargesCSV(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	part := chi.URLParam(r, "part")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}
	if !insurance.ValidPart(part) {
		JSONError(w, http.StatusBadRequest, "Part must be 'personal' or 'unit'")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	label, err := h.periodLabel(ctx, periodID)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Period not found")
		return
	}

	charges, err := queryCharges(ctx, h.db.GetPool(), periodID, part, "", "")
	if err != nil {
		log.Printf("Error fetching charges for CSV export, period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to export charges")
		return
	}

	filename := fmt.Sprintf("charges_%s_%s.csv", part, label)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	fmt.Fprintln(w, "姓名,证件号码,部门,险种,缴费基数,应缴金额,补差")

	for _, c := range charges {
		adj := ""
		if c.IsAdjustment {
			adj = "是"
		}
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s\n",
			csvEscape(c.Name), csvEscape(c.IDNumber), csvEscape(c.Department),
			insurance.SchemeDisplayName(c.Scheme),
			c.Base.StringFixed(2), c.Amount.StringFixed(2), adj)
	}
}

func writeWorkbook(w http.ResponseWriter, f *excelize.File, filename string) {
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := f.Write(w); err != nil {
		log.Printf("Error streaming workbook %s: %v", filename, err)
	}
}
