// Package insurance provides pure functions for social-insurance file
// classification and upload-completeness checks. These functions have ZERO
// dependencies on HTTP, database, or any other infrastructure — making them
// trivially testable and reusable.
package insurance

import "strings"

// ── Scheme Constants ─────────────────────────────────────────────
// The five insurance schemes handled by the reconciliation workflow.

const (
	SchemePension        = "pension"         // 养老
	SchemeMedical        = "medical"         // 医疗
	SchemeSeriousIllness = "serious_illness" // 大额/互助
	SchemeUnemployment   = "unemployment"    // 失业
	SchemeInjury         = "injury"          // 工伤
	SchemeUnknown        = ""
)

// Schemes lists all schemes in display order.
var Schemes = []string{
	SchemePension,
	SchemeMedical,
	SchemeSeriousIllness,
	SchemeUnemployment,
	SchemeInjury,
}

// ── Contribution Part Constants ──────────────────────────────────

const (
	PartPersonal = "personal" // 个人
	PartUnit     = "unit"     // 单位
	PartUnknown  = ""
)

// ── File Kind Constants ──────────────────────────────────────────

const (
	KindNormal     = "normal"
	KindAdjustment = "adjustment"
)

// ValidScheme reports whether s is one of the five known schemes.
func ValidScheme(s string) bool {
	switch s {
	case SchemePension, SchemeMedical, SchemeSeriousIllness, SchemeUnemployment, SchemeInjury:
		return true
	}
	return false
}

// ValidPart reports whether p is a known contribution part.
func ValidPart(p string) bool {
	return p == PartPersonal || p == PartUnit
}

// ── Filename Classification ──────────────────────────────────────

// schemeKeywords is checked in order; the FIRST match wins. The order is
// load-bearing: 大额医疗 sheets contain both 大额 and 医疗 and must resolve
// to serious_illness, so serious-illness keywords are checked before 医疗.
// Likewise 工伤 and 失业 filenames routinely mention 养老/医疗 departments,
// so the narrower schemes come first.
var schemeKeywords = []struct {
	keyword string
	scheme  string
}{
	{"工伤", SchemeInjury},
	{"失业", SchemeUnemployment},
	{"大额", SchemeSeriousIllness},
	{"互助", SchemeSeriousIllness},
	{"养老", SchemePension},
	{"医疗", SchemeMedical},
}

// ClassifyFilename guesses the (part, scheme) tag for an uploaded file from
// its name. Matching is case-insensitive substring search. Either result may
// be the empty unknown value; the guess is a hint only and callers let the
// operator confirm or override it before submission.
func ClassifyFilename(name string) (part, scheme string) {
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "单位"):
		part = PartUnit
	case strings.Contains(lower, "个人"):
		part = PartPersonal
	default:
		part = PartUnknown
	}

	scheme = SchemeUnknown
	for _, kw := range schemeKeywords {
		if strings.Contains(lower, kw.keyword) {
			scheme = kw.scheme
			break
		}
	}

	return part, scheme
}

// ── Required Combinations ────────────────────────────────────────

// Combination is a (contribution part, insurance scheme) pair.
type Combination struct {
	Part   string `json:"part"`
	Scheme string `json:"scheme"`
}

// Key returns the canonical "part-scheme" map key for the combination.
func (c Combination) Key() string {
	return c.Part + "-" + c.Scheme
}

// RequiredCombinations lists the nine (part, scheme) pairs that must all be
// covered by an uploaded normal file before a period can be processed.
// Work-injury insurance is funded by the employer alone, so there is no
// (personal, injury) pair.
var RequiredCombinations = []Combination{
	{PartPersonal, SchemePension},
	{PartUnit, SchemePension},
	{PartPersonal, SchemeMedical},
	{PartUnit, SchemeMedical},
	{PartPersonal, SchemeSeriousIllness},
	{PartUnit, SchemeSeriousIllness},
	{PartPersonal, SchemeUnemployment},
	{PartUnit, SchemeUnemployment},
	{PartUnit, SchemeInjury},
}

// ── Completeness Check ───────────────────────────────────────────

// Coverage is the minimal view of an uploaded file needed for the
// completeness check.
type Coverage struct {
	Part   string
	Scheme string
	Kind   string
}

// MissingUploads returns the required combinations not yet covered by a
// normal (non-adjustment) file. Adjustment files never satisfy a
// combination. The result is recomputed from scratch on every call and
// preserves the RequiredCombinations order.
func MissingUploads(files []Coverage) []Combination {
	covered := make(map[string]bool, len(files))
	for _, f := range files {
		if f.Kind != KindNormal {
			continue
		}
		covered[Combination{Part: f.Part, Scheme: f.Scheme}.Key()] = true
	}

	missing := []Combination{}
	for _, c := range RequiredCombinations {
		if !covered[c.Key()] {
			missing = append(missing, c)
		}
	}
	return missing
}

// ReadyToProcess reports whether a period may be processed: every required
// combination is covered and at least one normal file exists.
func ReadyToProcess(files []Coverage) bool {
	hasNormal := false
	for _, f := range files {
		if f.Kind == KindNormal {
			hasNormal = true
			break
		}
	}
	return hasNormal && len(MissingUploads(files)) == 0
}

// ── Display Names ────────────────────────────────────────────────

var schemeDisplayNames = map[string]string{
	SchemePension:        "养老保险",
	SchemeMedical:        "医疗保险",
	SchemeSeriousIllness: "大额互助",
	SchemeUnemployment:   "失业保险",
	SchemeInjury:         "工伤保险",
}

var partDisplayNames = map[string]string{
	PartPersonal: "个人",
	PartUnit:     "单位",
}

// SchemeDisplayName returns the human-readable Chinese name for a scheme,
// or the raw value if unrecognized.
func SchemeDisplayName(scheme string) string {
	if n, ok := schemeDisplayNames[scheme]; ok {
		return n
	}
	return scheme
}

// PartDisplayName returns the human-readable Chinese name for a part,
// or the raw value if unrecognized.
func PartDisplayName(part string) string {
	if n, ok := partDisplayNames[part]; ok {
		return n
	}
	return part
}
