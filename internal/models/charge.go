package models

import "github.com/shopspring/decimal"

// ── Period Summary ───────────────────────────────────────────────

// PeriodSummary is the per (scheme, part) aggregate for a period.
// Rows flagged IsAdjustment carry the deltas accumulated from
// adjustment files, kept separate from the base aggregates.
type PeriodSummary struct {
	Scheme       string          `json:"scheme"`
	Part         string          `json:"part"`
	Headcount    int             `json:"headcount"`
	BaseTotal    decimal.Decimal `json:"baseTotal"`    // summed contribution base
	PayableTotal decimal.Decimal `json:"payableTotal"` // summed payable amount
	IsAdjustment bool            `json:"isAdjustment"`
}

// ── Charge Rows ──────────────────────────────────────────────────

// ChargeRow is one per-person charge line for a period: one row per
// (person, scheme) breakdown. Base rows and adjustment deltas for the
// same person coexist, distinguished by IsAdjustment.
type ChargeRow struct {
	ID           string          `json:"id"`
	PeriodID     string          `json:"periodId"`
	Part         string          `json:"part"` // personal | unit
	Name         string          `json:"name"`
	IDNumber     string          `json:"idNumber"`
	Department   string          `json:"department"`
	Scheme       string          `json:"scheme"`
	Base         decimal.Decimal `json:"base"`
	Amount       decimal.Decimal `json:"amount"`
	IsAdjustment bool            `json:"isAdjustment"`
}

// ProcessResult is returned by the process-period endpoint: the freshly
// computed summary and both charge tables in one payload. The
// process-adjustments endpoint deliberately does NOT return this shape —
// callers re-fetch the three collections separately.
type ProcessResult struct {
	Summary         []PeriodSummary `json:"summary"`
	PersonalCharges []ChargeRow     `json:"personalCharges"`
	UnitCharges     []ChargeRow     `json:"unitCharges"`
}
