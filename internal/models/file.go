package models

import (
	"time"

	"socialins-backend/pkg/insurance"
)

// SourceFile represents one uploaded contribution spreadsheet.
type SourceFile struct {
	ID          string    `json:"id"`
	PeriodID    string    `json:"periodId"`
	Scheme      string    `json:"scheme"` // pension | medical | serious_illness | unemployment | injury
	Part        string    `json:"part"`   // personal | unit
	Kind        string    `json:"kind"`   // normal | adjustment
	RowCount    int       `json:"rowCount"`
	Filename    string    `json:"filename"` // original upload name
	StoragePath string    `json:"storagePath"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Coverage converts the file to the insurance package's completeness view.
func (f SourceFile) Coverage() insurance.Coverage {
	return insurance.Coverage{Part: f.Part, Scheme: f.Scheme, Kind: f.Kind}
}

// FileUploadResult is the per-file outcome of a batch upload. Each item
// independently carries either a success (with imported row count) or an
// error string — a mixed batch is an expected outcome, not a failure.
type FileUploadResult struct {
	Filename string `json:"filename"`
	Part     string `json:"part,omitempty"`
	Scheme   string `json:"scheme,omitempty"`
	RowCount int    `json:"rowCount,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether this file was imported successfully.
func (r FileUploadResult) OK() bool {
	return r.Error == ""
}

// BatchUploadResponse is the body returned by both batch-upload endpoints.
type BatchUploadResponse struct {
	Results   []FileUploadResult `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// CompletenessResponse reports the required combinations still missing
// for a period, and whether processing is unlocked.
type CompletenessResponse struct {
	Missing []insurance.Combination `json:"missing"`
	Ready   bool                    `json:"ready"`
}
