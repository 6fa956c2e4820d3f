package console

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"socialins-backend/pkg/charges"
	"socialins-backend/pkg/insurance"
)

// Action identifies one workspace operation with its own state.
type Action string

const (
	ActionLoad         Action = "load"
	ActionUpload       Action = "upload"
	ActionUploadAdj    Action = "upload_adjustments"
	ActionProcess      Action = "process"
	ActionProcessAdj   Action = "process_adjustments"
	ActionClearFiles   Action = "clear_files"
	ActionRefreshFiles Action = "refresh_files"
)

// ActionState is the explicit per-action status: exactly one of idle,
// in-flight, or failed, never a pile of independent booleans.
type ActionState struct {
	InFlight bool
	Err      error
}

// View is the workspace's cached picture of the selected period.
type View struct {
	PeriodID     string
	Files        []SourceFile
	Completeness *Completeness
	Summary      []SummaryRow
	Personal     []ChargeRow
	Unit         []ChargeRow
	Roster       []Employee
}

// Workspace coordinates the console's view of one selected period:
// loading, draft-based batch uploads, processing and the adjustment
// merge. It is safe for concurrent use.
//
// Every load is tagged with the period id current at dispatch; a result
// arriving after the selection moved on is discarded rather than
// committed to the view.
type Workspace struct {
	client *Client

	mu        sync.Mutex
	periodID  string
	view      View
	drafts    []*Draft // normal-upload drafts
	adjDrafts []*Draft // adjustment-upload drafts
	states    map[Action]ActionState
}

// NewWorkspace creates a Workspace on top of the given API client.
func NewWorkspace(client *Client) *Workspace {
	return &Workspace{
		client: client,
		states: map[Action]ActionState{},
	}
}

// State returns the current state of one action.
func (w *Workspace) State(a Action) ActionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[a]
}

func (w *Workspace) setInFlight(a Action) {
	w.mu.Lock()
	w.states[a] = ActionState{InFlight: true}
	w.mu.Unlock()
}

func (w *Workspace) settle(a Action, err error) {
	w.mu.Lock()
	w.states[a] = ActionState{Err: err}
	w.mu.Unlock()
}

// View returns a copy of the current view.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// current reports whether periodID is still the selected period.
func (w *Workspace) current(periodID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.periodID == periodID
}

// ── Period Load ────────────────────────────────────────────────

// SelectPeriod switches the workspace to a period and loads its data:
// the file list and completeness must succeed, while summary, charges
// and roster each fall back to empty on failure. The assembled view is
// committed only if this period is still the selected one when all
// loads settle.
func (w *Workspace) SelectPeriod(ctx context.Context, periodID string) error {
	w.mu.Lock()
	w.periodID = periodID
	w.drafts = nil
	w.adjDrafts = nil
	w.states[ActionLoad] = ActionState{InFlight: true}
	w.mu.Unlock()

	next := View{PeriodID: periodID}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		files, err := w.client.ListFiles(gctx, periodID)
		if err != nil {
			return fmt.Errorf("load files: %w", err)
		}
		next.Files = files
		return nil
	})
	g.Go(func() error {
		comp, err := w.client.GetCompleteness(gctx, periodID)
		if err != nil {
			return fmt.Errorf("load completeness: %w", err)
		}
		next.Completeness = comp
		return nil
	})

	// Soft collaborators: a failure yields an empty slice, not a failed load.
	g.Go(func() error {
		if summary, err := w.client.GetSummary(gctx, periodID); err == nil {
			next.Summary = summary
		} else {
			next.Summary = []SummaryRow{}
		}
		return nil
	})
	g.Go(func() error {
		if rows, err := w.client.GetCharges(gctx, periodID, insurance.PartPersonal); err == nil {
			next.Personal = rows
		} else {
			next.Personal = []ChargeRow{}
		}
		return nil
	})
	g.Go(func() error {
		if rows, err := w.client.GetCharges(gctx, periodID, insurance.PartUnit); err == nil {
			next.Unit = rows
		} else {
			next.Unit = []ChargeRow{}
		}
		return nil
	})
	g.Go(func() error {
		if roster, err := w.client.ListEmployees(gctx); err == nil {
			next.Roster = roster
		} else {
			next.Roster = []Employee{}
		}
		return nil
	})

	err := g.Wait()

	if !w.current(periodID) {
		// Selection moved on while this load was in flight; the result
		// belongs to a period nobody is looking at.
		return nil
	}

	if err != nil {
		w.settle(ActionLoad, err)
		return err
	}

	w.mu.Lock()
	w.view = next
	w.states[ActionLoad] = ActionState{}
	w.mu.Unlock()
	return nil
}

// ── Drafts ─────────────────────────────────────────────────────

// AddDraft stages a normal-upload file, guessing its tags from the name.
func (w *Workspace) AddDraft(filename string, content []byte) *Draft {
	d := NewDraft(filename, content)
	w.mu.Lock()
	w.drafts = append(w.drafts, d)
	w.mu.Unlock()
	return d
}

// AddAdjustmentDraft stages an adjustment file. Tags are not required:
// the server classifies adjustment files by name.
func (w *Workspace) AddAdjustmentDraft(filename string, content []byte) *Draft {
	d := NewDraft(filename, content)
	w.mu.Lock()
	w.adjDrafts = append(w.adjDrafts, d)
	w.mu.Unlock()
	return d
}

// Drafts returns the staged normal-upload drafts.
func (w *Workspace) Drafts() []*Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Draft(nil), w.drafts...)
}

// DiscardDrafts drops all staged drafts of both kinds.
func (w *Workspace) DiscardDrafts() {
	w.mu.Lock()
	w.drafts = nil
	w.adjDrafts = nil
	w.mu.Unlock()
}

// ── Batch Upload ───────────────────────────────────────────────

// BatchOutcome is the reconciled result of one submitted batch.
type BatchOutcome struct {
	Succeeded int
	// Errors holds one message per failed file, each naming the file.
	Errors []string
}

// SubmitDrafts uploads all staged normal drafts in one batch.
//
// A transport-level failure aborts the whole batch and keeps every
// draft. Otherwise the batch result is reconciled per file: successes
// and failures are reported together, and after at least one success
// the file list is refreshed unconditionally. Drafts are cleared only
// once that refresh succeeds — until then the user still owns them.
func (w *Workspace) SubmitDrafts(ctx context.Context) (*BatchOutcome, error) {
	w.mu.Lock()
	periodID := w.periodID
	drafts := append([]*Draft(nil), w.drafts...)
	w.mu.Unlock()

	if periodID == "" {
		return nil, fmt.Errorf("no period selected")
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("no files staged for upload")
	}
	if name := firstUnready(drafts); name != "" {
		return nil, fmt.Errorf("file %q is missing its part or scheme tag", name)
	}

	w.setInFlight(ActionUpload)

	items := make([]UploadItem, len(drafts))
	for i, d := range drafts {
		items[i] = d.uploadItem()
	}

	resp, err := w.client.UploadFiles(ctx, periodID, items)
	if err != nil {
		w.settle(ActionUpload, err)
		return nil, err
	}

	outcome := reconcile(resp)

	if resp.Succeeded > 0 {
		if refreshErr := w.refreshFiles(ctx, periodID); refreshErr == nil {
			w.mu.Lock()
			if w.periodID == periodID {
				w.drafts = nil
			}
			w.mu.Unlock()
		}
	}

	w.settle(ActionUpload, nil)
	return outcome, nil
}

// SubmitAdjustmentDrafts uploads all staged adjustment drafts. Unlike
// the normal path it resolves as soon as the batch result is known: the
// file-list refresh runs in the background and the drafts are cleared
// immediately on any success.
func (w *Workspace) SubmitAdjustmentDrafts(ctx context.Context) (*BatchOutcome, error) {
	w.mu.Lock()
	periodID := w.periodID
	drafts := append([]*Draft(nil), w.adjDrafts...)
	w.mu.Unlock()

	if periodID == "" {
		return nil, fmt.Errorf("no period selected")
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("no files staged for upload")
	}

	w.setInFlight(ActionUploadAdj)

	items := make([]UploadItem, len(drafts))
	for i, d := range drafts {
		items[i] = UploadItem{Filename: d.Filename, Content: d.uploadItem().Content}
	}

	resp, err := w.client.UploadAdjustments(ctx, periodID, items)
	if err != nil {
		w.settle(ActionUploadAdj, err)
		return nil, err
	}

	outcome := reconcile(resp)

	if resp.Succeeded > 0 {
		w.mu.Lock()
		if w.periodID == periodID {
			w.adjDrafts = nil
		}
		w.mu.Unlock()

		go w.refreshFiles(context.WithoutCancel(ctx), periodID)
	}

	w.settle(ActionUploadAdj, nil)
	return outcome, nil
}

// reconcile folds a batch response into its display form.
func reconcile(resp *BatchResponse) *BatchOutcome {
	out := &BatchOutcome{Succeeded: resp.Succeeded}
	for _, r := range resp.Results {
		if r.Error != "" {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", r.Filename, r.Error))
		}
	}
	return out
}

// refreshFiles re-fetches the file list and completeness, committing
// them only if the period is still selected.
func (w *Workspace) refreshFiles(ctx context.Context, periodID string) error {
	w.setInFlight(ActionRefreshFiles)

	files, err := w.client.ListFiles(ctx, periodID)
	if err != nil {
		w.settle(ActionRefreshFiles, err)
		return err
	}
	comp, err := w.client.GetCompleteness(ctx, periodID)
	if err != nil {
		w.settle(ActionRefreshFiles, err)
		return err
	}

	w.mu.Lock()
	if w.periodID == periodID {
		w.view.Files = files
		w.view.Completeness = comp
	}
	w.mu.Unlock()

	w.settle(ActionRefreshFiles, nil)
	return nil
}

// ClearFiles removes all normal files of the selected period, then
// refreshes the file list.
func (w *Workspace) ClearFiles(ctx context.Context) error {
	w.mu.Lock()
	periodID := w.periodID
	w.mu.Unlock()
	if periodID == "" {
		return fmt.Errorf("no period selected")
	}

	w.setInFlight(ActionClearFiles)
	if err := w.client.ClearFiles(ctx, periodID); err != nil {
		w.settle(ActionClearFiles, err)
		return err
	}
	w.settle(ActionClearFiles, nil)
	return w.refreshFiles(ctx, periodID)
}

// ── Processing ─────────────────────────────────────────────────

// Process runs the period computation and replaces the cached summary
// and charge tables wholesale from the single combined response.
func (w *Workspace) Process(ctx context.Context) (*ProcessResult, error) {
	w.mu.Lock()
	periodID := w.periodID
	w.mu.Unlock()
	if periodID == "" {
		return nil, fmt.Errorf("no period selected")
	}

	w.setInFlight(ActionProcess)

	result, err := w.client.Process(ctx, periodID)
	if err != nil {
		w.settle(ActionProcess, err)
		return nil, err
	}

	w.mu.Lock()
	if w.periodID == periodID {
		w.view.Summary = result.Summary
		w.view.Personal = result.PersonalCharges
		w.view.Unit = result.UnitCharges
	}
	w.mu.Unlock()

	w.settle(ActionProcess, nil)
	return result, nil
}

// ProcessAdjustments applies the uploaded adjustment files. The server
// only acknowledges, so the merged state is observed through three
// follow-up fetches; the cache is replaced wholesale with whatever
// those fetches return.
func (w *Workspace) ProcessAdjustments(ctx context.Context) error {
	w.mu.Lock()
	periodID := w.periodID
	w.mu.Unlock()
	if periodID == "" {
		return fmt.Errorf("no period selected")
	}

	w.setInFlight(ActionProcessAdj)

	if err := w.client.ProcessAdjustments(ctx, periodID); err != nil {
		w.settle(ActionProcessAdj, err)
		return err
	}

	var (
		summary  []SummaryRow
		personal []ChargeRow
		unit     []ChargeRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = w.client.GetSummary(gctx, periodID)
		return err
	})
	g.Go(func() error {
		var err error
		personal, err = w.client.GetCharges(gctx, periodID, insurance.PartPersonal)
		return err
	})
	g.Go(func() error {
		var err error
		unit, err = w.client.GetCharges(gctx, periodID, insurance.PartUnit)
		return err
	})

	if err := g.Wait(); err != nil {
		w.settle(ActionProcessAdj, err)
		return err
	}

	w.mu.Lock()
	if w.periodID == periodID {
		w.view.Summary = summary
		w.view.Personal = personal
		w.view.Unit = unit
	}
	w.mu.Unlock()

	w.settle(ActionProcessAdj, nil)
	return nil
}

// ── Display ────────────────────────────────────────────────────

// DisplayRow is one table row of the grouped charge display.
type DisplayRow struct {
	ChargeRow
	FirstInGroup bool
	Sequence     int // 1-based group number; 0 on non-first rows
}

// GroupedCharges arranges one part's cached charge rows for display:
// filtered by search text and department, grouped per person with base
// rows before adjustment rows, sequence numbers only on group heads.
func (w *Workspace) GroupedCharges(part, search, department string) []DisplayRow {
	w.mu.Lock()
	var rows []ChargeRow
	if part == insurance.PartUnit {
		rows = w.view.Unit
	} else {
		rows = w.view.Personal
	}
	rows = append([]ChargeRow(nil), rows...)
	w.mu.Unlock()

	entries := make([]charges.Entry, len(rows))
	for i, r := range rows {
		entries[i] = charges.Entry{
			Name:         r.Name,
			IDNumber:     r.IDNumber,
			Department:   r.Department,
			IsAdjustment: r.IsAdjustment,
		}
	}

	placements := charges.ArrangeFiltered(entries, search, department)
	out := make([]DisplayRow, len(placements))
	for i, p := range placements {
		out[i] = DisplayRow{
			ChargeRow:    rows[p.Index],
			FirstInGroup: p.FirstInGroup,
			Sequence:     p.Sequence,
		}
	}
	return out
}
