package models

import (
	"regexp"
	"time"
)

// ── Period Status Constants ──────────────────────────────────────
// Status transitions are driven exclusively by the backend in response to
// processing/reset/complete/archive calls. Clients only reflect status.

const (
	PeriodDraft      = "draft"
	PeriodProcessing = "processing"
	PeriodProcessed  = "processed"
	PeriodCompleted  = "completed"
	PeriodArchived   = "archived"
)

// Period represents one accounting period (year-month) for a tenant.
type Period struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Label     string    `json:"label"` // "2024-06", unique per tenant
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PeriodWithCounts includes file counts for the period list view.
type PeriodWithCounts struct {
	Period
	NormalFileCount     int `json:"normalFileCount"`
	AdjustmentFileCount int `json:"adjustmentFileCount"`
}

// CreatePeriodRequest holds the fields needed to create a period.
type CreatePeriodRequest struct {
	Label string `json:"label"`
}

var periodLabelRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Validate checks that the label is a well-formed year-month.
func (r *CreatePeriodRequest) Validate() map[string]string {
	errors := map[string]string{}
	if !periodLabelRe.MatchString(r.Label) {
		errors["label"] = "Label must be in YYYY-MM format"
	}
	return errors
}
