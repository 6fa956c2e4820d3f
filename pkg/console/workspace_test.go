package console

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// testServer is a scriptable stand-in for the reconciliation API.
type testServer struct {
	mu sync.Mutex

	files        map[string][]SourceFile // periodID -> file list
	summary      []SummaryRow
	personal     []ChargeRow
	unit         []ChargeRow
	uploadResult *BatchResponse

	// blockFiles, when set for a period, holds that period's file-list
	// response until the channel is closed; filesInFlight receives the
	// period id once the blocked request has arrived.
	blockFiles    map[string]chan struct{}
	filesInFlight chan string

	fetches map[string]int // path -> hit count
}

func newTestServer() *testServer {
	return &testServer{
		files:         map[string][]SourceFile{},
		blockFiles:    map[string]chan struct{}{},
		filesInFlight: make(chan string, 8),
		fetches:       map[string]int{},
	}
}

func (s *testServer) count(path string) {
	s.mu.Lock()
	s.fetches[path]++
	s.mu.Unlock()
}

func (s *testServer) hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[path]
}

func (s *testServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/periods/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		s.count("files:" + id)

		s.mu.Lock()
		block := s.blockFiles[id]
		files := s.files[id]
		s.mu.Unlock()

		if block != nil {
			s.filesInFlight <- id
			<-block
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": files})
	})
	mux.HandleFunc("GET /api/periods/{id}/completeness", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Completeness{Missing: nil, Ready: true})
	})
	mux.HandleFunc("GET /api/periods/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		s.count("summary:" + r.PathValue("id"))
		s.mu.Lock()
		defer s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"data": s.summary})
	})
	mux.HandleFunc("GET /api/periods/{id}/charges/{part}", func(w http.ResponseWriter, r *http.Request) {
		s.count("charges:" + r.PathValue("id") + ":" + r.PathValue("part"))
		s.mu.Lock()
		defer s.mu.Unlock()
		rows := s.personal
		if r.PathValue("part") == "unit" {
			rows = s.unit
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": rows})
	})
	mux.HandleFunc("GET /api/employees", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []Employee{}})
	})
	mux.HandleFunc("POST /api/periods/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		s.count("upload:" + r.PathValue("id"))
		s.mu.Lock()
		defer s.mu.Unlock()
		json.NewEncoder(w).Encode(s.uploadResult)
	})
	mux.HandleFunc("POST /api/periods/{id}/adjustments", func(w http.ResponseWriter, r *http.Request) {
		s.count("upload_adj:" + r.PathValue("id"))
		s.mu.Lock()
		defer s.mu.Unlock()
		json.NewEncoder(w).Encode(s.uploadResult)
	})
	mux.HandleFunc("POST /api/periods/{id}/process", func(w http.ResponseWriter, r *http.Request) {
		s.count("process:" + r.PathValue("id"))
		s.mu.Lock()
		defer s.mu.Unlock()
		json.NewEncoder(w).Encode(ProcessResult{
			Summary:         s.summary,
			PersonalCharges: s.personal,
			UnitCharges:     s.unit,
		})
	})
	mux.HandleFunc("POST /api/periods/{id}/process-adjustments", func(w http.ResponseWriter, r *http.Request) {
		s.count("process_adj:" + r.PathValue("id"))
		json.NewEncoder(w).Encode(map[string]string{"message": "Adjustments applied"})
	})

	return mux
}

func newWorkspace(t *testing.T, s *testServer) (*Workspace, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(s.handler())
	t.Cleanup(srv.Close)
	return NewWorkspace(NewClient(srv.URL, "test-token")), srv
}

func stageReadyDrafts(w *Workspace, names ...string) {
	for _, name := range names {
		d := w.AddDraft(name, []byte("workbook-bytes"))
		if !d.Ready() {
			part, scheme := "unit", "pension"
			d.Part, d.Scheme = &part, &scheme
		}
	}
}

// A batch of three with one bad file must come back as two successes plus
// one error naming the failed file, and the file list must be refreshed.
func TestSubmitDraftsPartialFailure(t *testing.T) {
	s := newTestServer()
	s.files["p1"] = []SourceFile{}
	s.uploadResult = &BatchResponse{
		Results: []FileResult{
			{Filename: "单位养老.xlsx", Part: "unit", Scheme: "pension", RowCount: 10},
			{Filename: "单位医疗.xlsx", Part: "unit", Scheme: "medical", RowCount: 12},
			{Filename: "破损文件.xlsx", Error: "contribution sheet has no data rows"},
		},
		Succeeded: 2,
		Failed:    1,
	}

	w, _ := newWorkspace(t, s)
	if err := w.SelectPeriod(context.Background(), "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}

	stageReadyDrafts(w, "单位养老.xlsx", "单位医疗.xlsx", "破损文件.xlsx")

	// The refresh after upload should observe the two imported files.
	s.mu.Lock()
	s.files["p1"] = []SourceFile{
		{ID: "f1", Part: "unit", Scheme: "pension", Kind: "normal"},
		{ID: "f2", Part: "unit", Scheme: "medical", Kind: "normal"},
	}
	s.mu.Unlock()

	outcome, err := w.SubmitDrafts(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if outcome.Succeeded != 2 {
		t.Errorf("succeeded=%d, want 2", outcome.Succeeded)
	}
	if len(outcome.Errors) != 1 {
		t.Fatalf("errors=%d, want 1", len(outcome.Errors))
	}
	if !strings.Contains(outcome.Errors[0], "破损文件.xlsx") {
		t.Errorf("error %q does not name the failed file", outcome.Errors[0])
	}

	view := w.View()
	if len(view.Files) != 2 {
		t.Errorf("file list not refreshed: got %d files, want 2", len(view.Files))
	}
	if len(w.Drafts()) != 0 {
		t.Errorf("drafts not cleared after successful refresh: %d left", len(w.Drafts()))
	}
}

// A transport-level failure aborts the batch and keeps every draft.
func TestSubmitDraftsTransportFailure(t *testing.T) {
	s := newTestServer()
	s.files["p1"] = []SourceFile{}
	w, srv := newWorkspace(t, s)

	if err := w.SelectPeriod(context.Background(), "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	stageReadyDrafts(w, "单位养老.xlsx", "单位医疗.xlsx")

	srv.Close()

	if _, err := w.SubmitDrafts(context.Background()); err == nil {
		t.Fatal("expected transport error")
	}
	if got := len(w.Drafts()); got != 2 {
		t.Errorf("drafts=%d after transport failure, want 2 (preserved)", got)
	}
	if st := w.State(ActionUpload); st.Err == nil || st.InFlight {
		t.Errorf("upload state = %+v, want settled error", st)
	}
}

// Submission is blocked while any draft is missing a tag, and no request
// is sent.
func TestSubmitDraftsBlockedUntilTagged(t *testing.T) {
	s := newTestServer()
	s.files["p1"] = []SourceFile{}
	w, _ := newWorkspace(t, s)

	if err := w.SelectPeriod(context.Background(), "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}

	// "汇总表.xlsx" yields neither a part nor a scheme.
	d := w.AddDraft("汇总表.xlsx", []byte("x"))
	if d.Ready() {
		t.Fatal("unclassifiable draft should not be ready")
	}

	if _, err := w.SubmitDrafts(context.Background()); err == nil {
		t.Fatal("expected submission to be blocked")
	}
	if s.hits("upload:p1") != 0 {
		t.Errorf("upload request sent despite unready draft")
	}

	if err := d.SetScheme("pension"); err != nil {
		t.Fatalf("SetScheme: %v", err)
	}
	if err := d.SetPart("unit"); err != nil {
		t.Fatalf("SetPart: %v", err)
	}
	if !d.Ready() {
		t.Error("draft should be ready once both tags are set")
	}
}

// A load result arriving after the selection moved to another period is
// discarded instead of overwriting the newer period's view.
func TestStaleLoadDiscarded(t *testing.T) {
	s := newTestServer()
	release := make(chan struct{})
	s.files["old"] = []SourceFile{{ID: "old-file"}}
	s.files["new"] = []SourceFile{{ID: "new-file"}}
	s.blockFiles["old"] = release

	w, _ := newWorkspace(t, s)

	done := make(chan error, 1)
	go func() {
		done <- w.SelectPeriod(context.Background(), "old")
	}()

	// Wait for the blocked load to be in flight, then move on.
	<-s.filesInFlight
	if err := w.SelectPeriod(context.Background(), "new"); err != nil {
		t.Fatalf("select new: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("stale select returned error: %v", err)
	}

	view := w.View()
	if view.PeriodID != "new" {
		t.Fatalf("view.PeriodID=%q, want %q", view.PeriodID, "new")
	}
	if len(view.Files) != 1 || view.Files[0].ID != "new-file" {
		t.Errorf("stale load overwrote the current period's files: %+v", view.Files)
	}
}

// Process commits the combined response in one step; running it again
// yields the same cache (idempotent at the cache level).
func TestProcessReplacesCache(t *testing.T) {
	s := newTestServer()
	s.files["p1"] = []SourceFile{}
	s.summary = []SummaryRow{{Scheme: "pension", Part: "unit", Headcount: 3}}
	s.personal = []ChargeRow{{Name: "张三", IDNumber: "110101", Scheme: "pension"}}
	s.unit = []ChargeRow{{Name: "张三", IDNumber: "110101", Scheme: "pension"}}

	w, _ := newWorkspace(t, s)
	if err := w.SelectPeriod(context.Background(), "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := w.Process(context.Background())
		if err != nil {
			t.Fatalf("process #%d: %v", i+1, err)
		}
		if len(result.Summary) != 1 || len(result.PersonalCharges) != 1 {
			t.Fatalf("process #%d returned unexpected payload: %+v", i+1, result)
		}
		view := w.View()
		if len(view.Summary) != 1 || len(view.Personal) != 1 || len(view.Unit) != 1 {
			t.Errorf("process #%d: cache not replaced: %+v", i+1, view)
		}
	}
	// No follow-up fetches: the combined response is the whole exchange.
	if s.hits("summary:p1") != 1 { // the one from SelectPeriod
		t.Errorf("summary fetched %d times, want 1 (initial load only)", s.hits("summary:p1"))
	}
}

// ProcessAdjustments gets only an ack back, so the merged state must be
// observed through three follow-up fetches, and the cache always equals
// whatever the last fetch returned.
func TestProcessAdjustmentsRefetches(t *testing.T) {
	s := newTestServer()
	s.files["p1"] = []SourceFile{}
	w, _ := newWorkspace(t, s)
	if err := w.SelectPeriod(context.Background(), "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}

	s.mu.Lock()
	s.summary = []SummaryRow{
		{Scheme: "pension", Part: "unit", Headcount: 3},
		{Scheme: "pension", Part: "unit", Headcount: 1, IsAdjustment: true},
	}
	s.personal = []ChargeRow{{Name: "张三", IDNumber: "110101", Scheme: "pension"}}
	s.unit = []ChargeRow{
		{Name: "张三", IDNumber: "110101", Scheme: "pension"},
		{Name: "张三", IDNumber: "110101", Scheme: "pension", IsAdjustment: true},
	}
	s.mu.Unlock()

	if err := w.ProcessAdjustments(context.Background()); err != nil {
		t.Fatalf("process adjustments: %v", err)
	}

	if s.hits("process_adj:p1") != 1 {
		t.Fatalf("process-adjustments called %d times, want 1", s.hits("process_adj:p1"))
	}
	for _, path := range []string{"summary:p1", "charges:p1:personal", "charges:p1:unit"} {
		if s.hits(path) != 2 { // initial load + post-adjustment refetch
			t.Errorf("%s fetched %d times, want 2", path, s.hits(path))
		}
	}

	view := w.View()
	if len(view.Summary) != 2 {
		t.Errorf("summary cache=%d rows, want 2 (base + adjustment)", len(view.Summary))
	}
	if len(view.Unit) != 2 {
		t.Errorf("unit cache=%d rows, want 2", len(view.Unit))
	}
}

// GroupedCharges renders adjustment rows after base rows within each
// person's group, with the sequence number only on the group head.
func TestGroupedChargesDisplay(t *testing.T) {
	w := NewWorkspace(NewClient("http://unused", ""))
	w.mu.Lock()
	w.view.Personal = []ChargeRow{
		{Name: "张三", IDNumber: "110101", Scheme: "pension"},
		{Name: "李四", IDNumber: "220202", Scheme: "pension"},
		{Name: "张三", IDNumber: "110101", Scheme: "pension", IsAdjustment: true},
	}
	w.mu.Unlock()

	rows := w.GroupedCharges("personal", "", "")
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
	want := []struct {
		name  string
		adj   bool
		first bool
		seq   int
	}{
		{"张三", false, true, 1},
		{"张三", true, false, 0},
		{"李四", false, true, 2},
	}
	for i, wr := range want {
		r := rows[i]
		if r.Name != wr.name || r.IsAdjustment != wr.adj || r.FirstInGroup != wr.first || r.Sequence != wr.seq {
			t.Errorf("row %d = {%s adj=%v first=%v seq=%d}, want %+v",
				i, r.Name, r.IsAdjustment, r.FirstInGroup, r.Sequence, wr)
		}
	}
}

// The error message of a non-2xx response comes from the {"error"} body,
// falling back to the HTTP status text.
func TestAPIErrorExtraction(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error body", http.StatusConflict, `{"error":"Uploads are incomplete"}`, "Uploads are incomplete"},
		{"empty body", http.StatusInternalServerError, ``, "Internal Server Error"},
		{"non-json body", http.StatusBadGateway, `upstream exploded`, "Bad Gateway"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "")
			_, err := c.ListFiles(context.Background(), "p1")
			if err == nil {
				t.Fatal("expected error")
			}
			apiErr, ok := err.(*APIError)
			if !ok {
				t.Fatalf("error type %T, want *APIError", err)
			}
			if apiErr.Message != tc.want {
				t.Errorf("message=%q, want %q", apiErr.Message, tc.want)
			}
			if apiErr.StatusCode != tc.status {
				t.Errorf("status=%d, want %d", apiErr.StatusCode, tc.status)
			}
		})
	}
}
