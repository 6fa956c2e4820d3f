package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"socialins-backend/internal/ctxkeys"
	"socialins-backend/internal/database"
	"socialins-backend/internal/models"
	"socialins-backend/internal/sheet"
	"socialins-backend/internal/storage"
	"socialins-backend/pkg/insurance"
)

// Per-file size limit for uploaded workbooks.
const maxUploadSize = 20 << 20 // 20 MB

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FileHandler manages source-file intake for periods: listing, batch
// upload with per-file outcomes, clearing, and the completeness check.
type FileHandler struct {
	db    database.Service
	store storage.Store
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(db database.Service, store storage.Store) *FileHandler {
	return &FileHandler{db: db, store: store}
}

const sourceFileCols = `f.id, f.period_id, f.scheme, f.part, f.kind,
	f.row_count, f.filename, f.storage_path, f.uploaded_at`

// ── List ───────────────────────────────────────────────────────

// List handles GET /api/periods/{id}/files.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
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

	pool := h.db.GetPool()

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM source_files f
		WHERE f.period_id = $1
		ORDER BY f.uploaded_at ASC
	`, sourceFileCols), periodID)
	if err != nil {
		log.Printf("Error fetching files for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch files")
		return
	}
	defer rows.Close()

	files := []models.SourceFile{}
	for rows.Next() {
		var f models.SourceFile
		if err := rows.Scan(
			&f.ID, &f.PeriodID, &f.Scheme, &f.Part, &f.Kind,
			&f.RowCount, &f.Filename, &f.StoragePath, &f.UploadedAt,
		); err != nil {
			log.Printf("Error scanning file: %v", err)
			continue
		}
		files = append(files, f)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": files,
	})
}

// ── Completeness ───────────────────────────────────────────────

// Completeness handles GET /api/periods/{id}/completeness — which of the
// nine required (part, scheme) combinations still lack a normal file.
func (h *FileHandler) Completeness(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "id")
	if periodID == "" {
		JSONError(w, http.StatusBadRequest, "Period ID is required")
		return
	}

	if !checkPeriodAccess(r.Context(), h.db.GetPool(), periodID) {
		JSONError(w, http.StatusForbidden, "Access denied to this period")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	coverage, err := loadCoverage(ctx, h.db, periodID)
	if err != nil {
		log.Printf("Error loading coverage for period %s: %v", periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to check completeness")
		return
	}

	JSON(w, http.StatusOK, models.CompletenessResponse{
		Missing: insurance.MissingUploads(coverage),
		Ready:   insurance.ReadyToProcess(coverage),
	})
}

// loadCoverage fetches the (part, scheme, kind) view of a period's files.
func loadCoverage(ctx context.Context, db database.Service, periodID string) ([]insurance.Coverage, error) {
	rows, err := db.GetPool().Query(ctx,
		"SELECT part, scheme, kind FROM source_files WHERE period_id = $1", periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coverage []insurance.Coverage
	for rows.Next() {
		var c insurance.Coverage
		if err := rows.Scan(&c.Part, &c.Scheme, &c.Kind); err != nil {
			return nil, err
		}
		coverage = append(coverage, c)
	}
	return coverage, rows.Err()
}

// ── Batch Upload (normal) ──────────────────────────────────────

// UploadNormal handles POST /api/periods/{id}/files — one multipart
// request carrying N workbooks under "files", each with its confirmed
// classification in part_<i> / scheme_<i> fields. Every file is imported
// independently; the response mixes successes and per-file errors, and a
// partial batch is an expected outcome, not a failure.
func (h *FileHandler) UploadNormal(w http.ResponseWriter, r *http.Request) {
	h.uploadBatch(w, r, insurance.KindNormal)
}

// UploadAdjustments handles POST /api/periods/{id}/adjustments — same
// multipart shape but without classification fields: the (part, scheme)
// tag is inferred from each filename, and a file whose name cannot be
// classified fails individually.
func (h *FileHandler) UploadAdjustments(w http.ResponseWriter, r *http.Request) {
	h.uploadBatch(w, r, insurance.KindAdjustment)
}

func (h *FileHandler) uploadBatch(w http.ResponseWriter, r *http.Request, kind string) {
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
		JSONError(w, http.StatusConflict, "Period is closed for uploads")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid multipart request or file too large (max 20MB per file)")
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		JSONError(w, http.StatusBadRequest, "No files in request")
		return
	}

	results := make([]models.FileUploadResult, 0, len(fileHeaders))
	succeeded := 0

	for i, fh := range fileHeaders {
		res := h.importOne(ctx, periodID, kind, i, fh, r)
		if res.OK() {
			succeeded++
		}
		results = append(results, res)
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "uploaded_files", "period", periodID, map[string]interface{}{
		"kind": kind, "total": len(results), "succeeded": succeeded,
	})

	JSON(w, http.StatusOK, models.BatchUploadResponse{
		Results:   results,
		Succeeded: succeeded,
		Failed:    len(results) - succeeded,
	})
}

// importOne imports a single workbook of the batch. All failure modes —
// bad classification, unparseable sheet, database trouble — end up as the
// file's own error string, never as a batch-level failure.
func (h *FileHandler) importOne(ctx context.Context, periodID, kind string, idx int, fh *multipart.FileHeader, r *http.Request) models.FileUploadResult {
	res := models.FileUploadResult{Filename: fh.Filename}

	var part, scheme string
	if kind == insurance.KindNormal {
		part = r.FormValue(fmt.Sprintf("part_%d", idx))
		scheme = r.FormValue(fmt.Sprintf("scheme_%d", idx))
		if !insurance.ValidPart(part) || !insurance.ValidScheme(scheme) {
			res.Error = "Missing or invalid part/scheme classification"
			return res
		}
	} else {
		part, scheme = insurance.ClassifyFilename(fh.Filename)
		if !insurance.ValidPart(part) || !insurance.ValidScheme(scheme) {
			res.Error = "Could not classify file by its name; rename it to include the scheme and 单位/个人"
			return res
		}
	}
	res.Part = part
	res.Scheme = scheme

	if fh.Size > maxUploadSize {
		res.Error = "File too large (max 20MB)"
		return res
	}

	src, err := fh.Open()
	if err != nil {
		res.Error = "Could not read file"
		return res
	}
	defer src.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(src); err != nil {
		res.Error = "Could not read file"
		return res
	}

	rows, err := sheet.ParseContributionSheet(bytes.NewReader(buf.Bytes()))
	if err != nil {
		res.Error = err.Error()
		return res
	}

	storagePath := fmt.Sprintf("%s/%s/%d_%s",
		periodStoragePrefix(periodID), kind, time.Now().Unix(), sanitizeFilename(fh.Filename))

	if err := h.persistImport(ctx, periodID, kind, part, scheme, fh.Filename, storagePath, rows); err != nil {
		log.Printf("Error importing %s for period %s: %v", fh.Filename, periodID, err)
		res.Error = "Failed to import file"
		return res
	}

	if _, err := h.store.Save(ctx, storagePath, bytes.NewReader(buf.Bytes()), xlsxContentType); err != nil {
		// Imported rows are authoritative; a failed raw-copy save is only logged.
		log.Printf("Error storing raw workbook %s: %v", storagePath, err)
	}

	res.RowCount = len(rows)
	return res
}

// persistImport writes one file's metadata and rows in a transaction.
// For normal files the previous file covering the same (part, scheme)
// pair is replaced — at most one normal file per combination exists.
func (h *FileHandler) persistImport(ctx context.Context, periodID, kind, part, scheme, filename, storagePath string, rows []sheet.PersonRow) error {
	pool := h.db.GetPool()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if kind == insurance.KindNormal {
		// file_rows cascade with the replaced file
		_, err = tx.Exec(ctx, `
			DELETE FROM source_files
			WHERE period_id = $1 AND part = $2 AND scheme = $3 AND kind = 'normal'
		`, periodID, part, scheme)
		if err != nil {
			return fmt.Errorf("replace previous file: %w", err)
		}
	}

	fileID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO source_files (id, period_id, scheme, part, kind, row_count, filename, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, fileID, periodID, scheme, part, kind, len(rows), filename, storagePath)
	if err != nil {
		return fmt.Errorf("insert source file: %w", err)
	}

	copyRows := make([][]interface{}, len(rows))
	for i, row := range rows {
		copyRows[i] = []interface{}{
			fileID, periodID, row.Name, row.IDNumber, row.Department, row.Base, row.Amount,
		}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"file_rows"},
		[]string{"file_id", "period_id", "name", "id_number", "department", "base", "amount"},
		pgx.CopyFromRows(copyRows),
	)
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}

	return tx.Commit(ctx)
}

// ── Clear ──────────────────────────────────────────────────────

// ClearNormal handles DELETE /api/periods/{id}/files.
func (h *FileHandler) ClearNormal(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, insurance.KindNormal)
}

// ClearAdjustments handles DELETE /api/periods/{id}/adjustments.
func (h *FileHandler) ClearAdjustments(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, insurance.KindAdjustment)
}

func (h *FileHandler) clear(w http.ResponseWriter, r *http.Request, kind string) {
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

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	tag, err := pool.Exec(ctx,
		"DELETE FROM source_files WHERE period_id = $1 AND kind = $2", periodID, kind)
	if err != nil {
		log.Printf("Error clearing %s files for period %s: %v", kind, periodID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to clear files")
		return
	}

	prefix := periodStoragePrefix(periodID) + "/" + kind
	if err := h.store.DeletePrefix(ctx, prefix); err != nil {
		log.Printf("Error deleting stored %s files for period %s: %v", kind, periodID, err)
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)
	logActivity(pool, userID, "cleared_files", "period", periodID, map[string]interface{}{
		"kind": kind, "count": tag.RowsAffected(),
	})

	JSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("%d file(s) cleared", tag.RowsAffected()),
		"cleared": tag.RowsAffected(),
	})
}

// sanitizeFilename removes path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
