// Package sheets fetches the sign-up list from a published Google Sheet.
//
// The sheet is read through the CSV export endpoint
// (…/gviz/tq?tqx=out:csv&sheet=<tab>), which works for link-shared sheets
// without service-account credentials. Rows are filtered by the
// participation-date column matching the target Sunday.
package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	logx "rosterbot/pkg/logx"
)

type Config struct {
	// SpreadsheetID is the document id from the sheet URL.
	SpreadsheetID string
	// Sheet is the tab name, e.g. "Form Responses".
	Sheet string
	// NameColumn / DateColumn are the header names of the form columns.
	NameColumn string
	DateColumn string
	// BaseURL overrides the Google endpoint (tests).
	BaseURL string

	Timeout    time.Duration
	RetryCount int
}

const (
	defaultBaseURL    = "https://docs.google.com"
	defaultNameColumn = "Name:"
	defaultDateColumn = "PARTICIPATION Date (NOT birthday!)"
	defaultTimeout    = 15 * time.Second
)

type Fetcher struct {
	cfg    Config
	client *resty.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) (*Fetcher, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet_id is required")
	}
	if strings.TrimSpace(cfg.Sheet) == "" {
		cfg.Sheet = "Form Responses"
	}
	if cfg.NameColumn == "" {
		cfg.NameColumn = defaultNameColumn
	}
	if cfg.DateColumn == "" {
		cfg.DateColumn = defaultDateColumn
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	c := resty.New()
	c.SetBaseURL(cfg.BaseURL)
	c.SetTimeout(cfg.Timeout)
	c.SetRetryCount(cfg.RetryCount)
	c.SetRetryWaitTime(500 * time.Millisecond)
	c.SetRetryMaxWaitTime(5 * time.Second)
	c.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		switch resp.StatusCode() {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	})

	return &Fetcher{cfg: cfg, client: c, log: log}, nil
}

// Participants returns names whose participation date matches weekDate, in
// sheet (submission) order.
func (f *Fetcher) Participants(ctx context.Context, weekDate time.Time) ([]string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"tqx":   "out:csv",
			"sheet": f.cfg.Sheet,
		}).
		Get(fmt.Sprintf("/spreadsheets/d/%s/gviz/tq", f.cfg.SpreadsheetID))
	if err != nil {
		return nil, fmt.Errorf("sheets fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("sheets fetch: unexpected status %d", resp.StatusCode())
	}

	names, err := f.parse(resp.String(), weekDate)
	if err != nil {
		return nil, err
	}
	f.log.Debug("participants fetched",
		logx.Int("count", len(names)),
		logx.String("week", weekDate.Format("2006-01-02")))
	return names, nil
}

func (f *Fetcher) parse(body string, weekDate time.Time) ([]string, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheets csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("sheets csv: empty response")
	}

	header := rows[0]
	nameIdx, dateIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case f.cfg.NameColumn:
			nameIdx = i
		case f.cfg.DateColumn:
			dateIdx = i
		}
	}
	if nameIdx < 0 || dateIdx < 0 {
		return nil, fmt.Errorf("sheets csv: missing column (name=%q date=%q, header=%v)",
			f.cfg.NameColumn, f.cfg.DateColumn, header)
	}

	// Form dates have no leading zeros, e.g. "7/27/2025".
	want := fmt.Sprintf("%d/%d/%d", int(weekDate.Month()), weekDate.Day(), weekDate.Year())

	var names []string
	for _, row := range rows[1:] {
		if len(row) <= nameIdx || len(row) <= dateIdx {
			continue
		}
		if !strings.HasPrefix(strings.TrimSpace(row[dateIdx]), want) {
			continue
		}
		name := strings.TrimSpace(row[nameIdx])
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
