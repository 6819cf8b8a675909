// Package papers looks up previous-year question papers in a published
// Google Sheet and renders the results for chat delivery.
package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pyqhub/pyqbot/core/logger"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Paper is one sheet row: a downloadable paper for a course and semester.
type Paper struct {
	Course     string
	CourseCode string
	URL        string
	Semester   string
}

// Finder resolves papers for a course and semester.
type Finder interface {
	Find(ctx context.Context, course, semester string) ([]Paper, error)
}

// SheetsClient reads the paper index from the Sheets values API.
type SheetsClient struct {
	httpClient    *http.Client
	baseURL       string
	spreadsheetID string
	apiKey        string
	readRange     string
}

// SheetsOptions configures a SheetsClient.
type SheetsOptions struct {
	SpreadsheetID string
	APIKey        string
	ReadRange     string
	// BaseURL overrides the Sheets API host, used in tests.
	BaseURL    string
	HTTPClient *http.Client
}

func NewSheetsClient(opts SheetsOptions) *SheetsClient {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	readRange := opts.ReadRange
	if readRange == "" {
		readRange = "Sheet1!A:D"
	}
	return &SheetsClient{
		httpClient:    hc,
		baseURL:       base,
		spreadsheetID: opts.SpreadsheetID,
		apiKey:        opts.APIKey,
		readRange:     readRange,
	}
}

type valuesResponse struct {
	Values [][]string `json:"values"`
}

// FetchAll downloads the full paper index. Rows with fewer than four cells
// are skipped.
func (c *SheetsClient) FetchAll(ctx context.Context) ([]Paper, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s",
		c.baseURL,
		url.PathEscape(c.spreadsheetID),
		url.PathEscape(c.readRange),
		url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("papers: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("papers: fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("papers: sheets api status %d: %s",
			resp.StatusCode, logger.Sanitize(string(body)))
	}

	var payload valuesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("papers: decode sheet values: %w", err)
	}

	rows := make([]Paper, 0, len(payload.Values))
	for _, row := range payload.Values {
		if len(row) < 4 {
			continue
		}
		rows = append(rows, Paper{
			Course:     strings.TrimSpace(row[0]),
			CourseCode: strings.TrimSpace(row[1]),
			URL:        strings.TrimSpace(row[2]),
			Semester:   strings.TrimSpace(row[3]),
		})
	}

	logger.Debug(ctx, "service.papers", "sheet.fetched",
		slog.Int("rows", len(rows)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))))
	return rows, nil
}

// Find filters the index down to one course and semester. Course and semester
// comparison ignores case.
func (c *SheetsClient) Find(ctx context.Context, course, semester string) ([]Paper, error) {
	rows, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterPapers(rows, course, semester), nil
}

func filterPapers(rows []Paper, course, semester string) []Paper {
	var out []Paper
	for _, p := range rows {
		if strings.EqualFold(p.Course, course) && strings.EqualFold(p.Semester, semester) {
			out = append(out, p)
		}
	}
	return out
}
