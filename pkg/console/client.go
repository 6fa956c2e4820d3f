// Package console is the Go client for the reconciliation API, plus the
// workspace coordinator the admin console is built on: batch upload with
// per-file outcomes, completeness-gated processing, fan-out period loads
// and grouped charge display.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"socialins-backend/pkg/insurance"
)

// APIError is a non-2xx response decoded into its message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

// Client is a thin REST wrapper. All methods return *APIError for non-2xx
// responses, with the message taken from the {"error": ...} body when
// present and the HTTP status text otherwise.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient creates a Client for the given base URL, e.g.
// "http://localhost:8080".
func NewClient(baseURL, token string) *Client {
	return &Client{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, http.MethodPost, path, body, "application/json", out)
}

// decodeAPIError extracts the {"error"} message, falling back to the
// HTTP status text.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}

// ── Wire Types ─────────────────────────────────────────────────

// Period mirrors the server's period resource.
type Period struct {
	ID                  string `json:"id"`
	TenantID            string `json:"tenantId"`
	Label               string `json:"label"`
	Status              string `json:"status"`
	NormalFileCount     int    `json:"normalFileCount"`
	AdjustmentFileCount int    `json:"adjustmentFileCount"`
}

// SourceFile mirrors the server's uploaded-file resource.
type SourceFile struct {
	ID       string `json:"id"`
	PeriodID string `json:"periodId"`
	Scheme   string `json:"scheme"`
	Part     string `json:"part"`
	Kind     string `json:"kind"`
	RowCount int    `json:"rowCount"`
	Filename string `json:"filename"`
}

// FileResult is the per-file outcome of a batch upload.
type FileResult struct {
	Filename string `json:"filename"`
	Part     string `json:"part,omitempty"`
	Scheme   string `json:"scheme,omitempty"`
	RowCount int    `json:"rowCount,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResponse is returned by both batch-upload endpoints.
type BatchResponse struct {
	Results   []FileResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// Completeness reports the missing required combinations for a period.
type Completeness struct {
	Missing []insurance.Combination `json:"missing"`
	Ready   bool                    `json:"ready"`
}

// SummaryRow is one per (scheme, part) aggregate.
type SummaryRow struct {
	Scheme       string          `json:"scheme"`
	Part         string          `json:"part"`
	Headcount    int             `json:"headcount"`
	BaseTotal    decimal.Decimal `json:"baseTotal"`
	PayableTotal decimal.Decimal `json:"payableTotal"`
	IsAdjustment bool            `json:"isAdjustment"`
}

// ChargeRow is one per-person charge line.
type ChargeRow struct {
	ID           string          `json:"id"`
	Part         string          `json:"part"`
	Name         string          `json:"name"`
	IDNumber     string          `json:"idNumber"`
	Department   string          `json:"department"`
	Scheme       string          `json:"scheme"`
	Base         decimal.Decimal `json:"base"`
	Amount       decimal.Decimal `json:"amount"`
	IsAdjustment bool            `json:"isAdjustment"`
}

// ProcessResult is the combined payload returned by Process. The
// adjustment endpoint returns no such payload; see
// Workspace.ProcessAdjustments for the re-fetch sequence.
type ProcessResult struct {
	Summary         []SummaryRow `json:"summary"`
	PersonalCharges []ChargeRow  `json:"personalCharges"`
	UnitCharges     []ChargeRow  `json:"unitCharges"`
}

// Employee is one roster entry.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IDNumber   string `json:"idNumber"`
	Department string `json:"department"`
	Status     string `json:"status"`
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) getData(ctx context.Context, path string, out interface{}) error {
	var env dataEnvelope
	if err := c.getJSON(ctx, path, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

// ── API Methods ────────────────────────────────────────────────

// ListPeriods returns the periods in the caller's scope.
func (c *Client) ListPeriods(ctx context.Context) ([]Period, error) {
	var periods []Period
	if err := c.getData(ctx, "/api/periods", &periods); err != nil {
		return nil, err
	}
	return periods, nil
}

// CreatePeriod creates a draft period with the given year-month label.
func (c *Client) CreatePeriod(ctx context.Context, tenantID, label string) (*Period, error) {
	var resp struct {
		Data Period `json:"data"`
	}
	err := c.postJSON(ctx, "/api/periods", map[string]string{
		"tenantId": tenantID, "label": label,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// DeletePeriod removes a period and everything under it.
func (c *Client) DeletePeriod(ctx context.Context, periodID string) error {
	return c.do(ctx, http.MethodDelete, "/api/periods/"+periodID, nil, "", nil)
}

// ResetPeriod drops a period's files and computed data, back to draft.
func (c *Client) ResetPeriod(ctx context.Context, periodID string) error {
	return c.postJSON(ctx, "/api/periods/"+periodID+"/reset", nil, nil)
}

// ListFiles returns the uploaded files of a period.
func (c *Client) ListFiles(ctx context.Context, periodID string) ([]SourceFile, error) {
	var files []SourceFile
	if err := c.getData(ctx, "/api/periods/"+periodID+"/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetCompleteness returns the missing required combinations of a period.
func (c *Client) GetCompleteness(ctx context.Context, periodID string) (*Completeness, error) {
	var comp Completeness
	if err := c.getJSON(ctx, "/api/periods/"+periodID+"/completeness", &comp); err != nil {
		return nil, err
	}
	return &comp, nil
}

// UploadItem is one file of a multipart batch, already classified.
type UploadItem struct {
	Filename string
	Part     string // empty for adjustment uploads (server infers)
	Scheme   string // empty for adjustment uploads
	Content  io.Reader
}

// UploadFiles submits a normal batch: every item carries its confirmed
// part/scheme. A transport-level error returns (nil, err); per-file
// failures come back inside the BatchResponse.
func (c *Client) UploadFiles(ctx context.Context, periodID string, items []UploadItem) (*BatchResponse, error) {
	return c.uploadBatch(ctx, "/api/periods/"+periodID+"/files", items, true)
}

// UploadAdjustments submits an adjustment batch; classification is
// inferred server-side from the filenames.
func (c *Client) UploadAdjustments(ctx context.Context, periodID string, items []UploadItem) (*BatchResponse, error) {
	return c.uploadBatch(ctx, "/api/periods/"+periodID+"/adjustments", items, false)
}

func (c *Client) uploadBatch(ctx context.Context, path string, items []UploadItem, tagged bool) (*BatchResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for i, item := range items {
		fw, err := mw.CreateFormFile("files", item.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(fw, item.Content); err != nil {
			return nil, err
		}
		if tagged {
			mw.WriteField(fmt.Sprintf("part_%d", i), item.Part)
			mw.WriteField(fmt.Sprintf("scheme_%d", i), item.Scheme)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp BatchResponse
	if err := c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearFiles removes all normal files of a period.
func (c *Client) ClearFiles(ctx context.Context, periodID string) error {
	return c.do(ctx, http.MethodDelete, "/api/periods/"+periodID+"/files", nil, "", nil)
}

// ClearAdjustments removes all adjustment files of a period.
func (c *Client) ClearAdjustments(ctx context.Context, periodID string) error {
	return c.do(ctx, http.MethodDelete, "/api/periods/"+periodID+"/adjustments", nil, "", nil)
}

// Process runs the period computation. The full result comes back in
// this one call.
func (c *Client) Process(ctx context.Context, periodID string) (*ProcessResult, error) {
	var result ProcessResult
	if err := c.postJSON(ctx, "/api/periods/"+periodID+"/process", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProcessAdjustments applies the uploaded adjustment files. The server
// acknowledges without returning data; callers re-fetch the summary and
// charge collections to observe the merged state.
func (c *Client) ProcessAdjustments(ctx context.Context, periodID string) error {
	return c.postJSON(ctx, "/api/periods/"+periodID+"/process-adjustments", nil, nil)
}

// GetSummary returns the per (scheme, part) aggregates of a period.
func (c *Client) GetSummary(ctx context.Context, periodID string) ([]SummaryRow, error) {
	var summary []SummaryRow
	if err := c.getData(ctx, "/api/periods/"+periodID+"/summary", &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// GetCharges returns one part's charge rows.
func (c *Client) GetCharges(ctx context.Context, periodID, part string) ([]ChargeRow, error) {
	var rows []ChargeRow
	if err := c.getData(ctx, "/api/periods/"+periodID+"/charges/"+part, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListEmployees returns the first page of the roster.
func (c *Client) ListEmployees(ctx context.Context) ([]Employee, error) {
	var resp struct {
		Data []Employee `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/employees?limit=100", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
