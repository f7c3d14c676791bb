// Package nih retrieves awards from the NIH RePORTER project search
// API. The API exposes a total count up front but refuses to page past
// 9 999 records, so retrievals at or above that ceiling are rejected
// before any page is fetched.
package nih

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"awardfinder-backend/lib/dataset"
	"awardfinder-backend/lib/sources/base"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/progress"
	"go.opentelemetry.io/otel/codes"
)

const SourceName = "NIH"

const defaultBaseURL = "https://api.reporter.nih.gov"
const searchPath = "/v2/projects/search"
const defaultChunkSize = 500
const defaultPageDelay = 2 * time.Second

// TotalCeiling is the hard cap on total result count. The RePORTER
// API cannot page past it, so a larger query must be narrowed instead
// of attempted.
const TotalCeiling = 10000

// the metadata fields requested from the search endpoint
var includeFields = []string{
	"Organization",
	"ProjectNum",
	"ProjectSerialNum",
	"FiscalYear",
	"ProjectStartDate",
	"ProjectEndDate",
	"ProjectTitle",
	"AgencyCode",
	"AbstractText",
	"ContactPiName",
	"AwardAmount",
	"AwardNoticeDate",
}

var pageColumns = []string{
	"organization",
	"contact_pi_name",
	"fiscal_year",
	"project_start_date",
	"project_end_date",
	"agency_code",
	"award_amount",
	"project_num",
	"project_title",
	"abstract_text",
}

type ClientOptions struct {
	// overrides the production API host, used by tests
	BaseURL string
	// politeness delay between pages, zero means the default two
	// seconds. the delay is mandatory against the real API.
	PageDelay time.Duration
	// optional progress reporting, purely observational
	Progress progress.Writer
	// when set, every HTTP exchange is dumped into this directory
	DumpDir string
}

type Client struct {
	http      *resty.Client
	pageDelay time.Duration
	progress  progress.Writer
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	delay := opts.PageDelay
	if delay == 0 {
		delay = defaultPageDelay
	}
	return &Client{
		http: base.NewHTTPClient(base.HTTPOptions{
			BaseURL:    baseURL,
			TracerName: "awardfinder.lib.sources.nih.http",
			DumpDir:    opts.DumpDir,
		}),
		pageDelay: delay,
		progress:  opts.Progress,
	}
}

func (c *Client) Name() string {
	return SourceName
}

// request bodies are built fresh per call from literals, nothing
// shared is ever mutated in place
type searchRequest struct {
	Criteria      searchCriteria `json:"criteria"`
	IncludeFields []string       `json:"include_fields"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
}

type searchCriteria struct {
	Award              awardCriteria `json:"award"`
	ExcludeSubprojects bool          `json:"exclude_subprojects"`
	AdvancedTextSearch textSearch    `json:"advanced_text_search"`
}

type awardCriteria struct {
	AwardNoticeDate noticeDateRange `json:"award_notice_date"`
}

type noticeDateRange struct {
	FromDate *string `json:"from_date"`
	ToDate   *string `json:"to_date"`
}

type textSearch struct {
	SearchText string `json:"search_text"`
	Operator   string `json:"operator"`
	SearchField string `json:"search_field"`
}

func newSearchRequest(q base.Query, offset, limit int) (searchRequest, error) {
	var fromDate, toDate *string
	from, err := q.FromTime()
	if err != nil {
		return searchRequest{}, err
	}
	if from != nil {
		iso := from.Format("2006-01-02")
		fromDate = &iso
	}
	to, err := q.ToTime()
	if err != nil {
		return searchRequest{}, err
	}
	if to != nil {
		iso := to.Format("2006-01-02")
		toDate = &iso
	}

	return searchRequest{
		Criteria: searchCriteria{
			Award: awardCriteria{
				AwardNoticeDate: noticeDateRange{
					FromDate: fromDate,
					ToDate:   toDate,
				},
			},
			ExcludeSubprojects: true,
			AdvancedTextSearch: textSearch{
				SearchText:  q.Text,
				Operator:    "advanced",
				SearchField: "abstracttext",
			},
		},
		IncludeFields: includeFields,
		Limit:         limit,
		Offset:        offset,
	}, nil
}

// GetData retrieves all NIH projects matching the query, normalized to
// the canonical schema.
func (c *Client) GetData(ctx context.Context, q base.Query) (*dataset.Table, error) {
	ctx, span := tracer.Start(ctx, "GetData")
	defer span.End()

	// the count phase is always fatal, no paging strategy works
	// without knowing the total
	total, err := c.queryTotalGrants(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch total grants")
		return nil, err
	}
	if total >= TotalCeiling {
		return nil, &base.PolicyViolationError{
			Source:  SourceName,
			Total:   total,
			Ceiling: TotalCeiling,
		}
	}

	npages := (total + defaultChunkSize - 1) / defaultChunkSize
	pages, err := base.CountPages(ctx, total, defaultChunkSize, base.PagerOptions{
		Source:          SourceName,
		SkipFailedPages: q.SkipFailedPages,
		Delay:           c.pageDelay,
		Progress:        base.Tracker(c.progress, "fetching NIH projects", int64(npages)),
	}, func(ctx context.Context, offset int) (*dataset.Table, error) {
		return c.fetchPage(ctx, q, offset)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch pages")
		return nil, err
	}

	return base.Collect(pages, SourceName)
}

func (c *Client) queryTotalGrants(ctx context.Context, q base.Query) (int, error) {
	body, err := newSearchRequest(q, 0, 1)
	if err != nil {
		return 0, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(searchPath)
	if err != nil {
		return 0, &base.TransportError{Source: SourceName, URL: searchPath, Err: err}
	}
	if res.IsError() {
		return 0, &base.TransportError{Source: SourceName, URL: res.Request.URL, Status: res.StatusCode()}
	}

	var parsed searchResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return 0, fmt.Errorf("error while fetching total grants: %w", err)
	}
	return parsed.Meta.Total, nil
}

func (c *Client) fetchPage(ctx context.Context, q base.Query, offset int) (*dataset.Table, error) {
	body, err := newSearchRequest(q, offset, defaultChunkSize)
	if err != nil {
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(searchPath)
	if err != nil {
		return nil, &base.TransportError{Source: SourceName, URL: searchPath, Err: err}
	}
	if res.IsError() {
		return nil, &base.TransportError{Source: SourceName, URL: res.Request.URL, Status: res.StatusCode()}
	}

	var parsed searchResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return nil, &base.SchemaMismatchError{
			Source: SourceName,
			Reason: fmt.Sprintf("cannot parse search response: %v", err),
		}
	}

	rows := make([]dataset.Row, len(parsed.Results))
	for i, p := range parsed.Results {
		var amount any
		if p.AwardAmount != nil {
			amount = *p.AwardAmount
		}
		rows[i] = dataset.Row{
			// the organization name lives in a nested object
			"organization":       p.Organization.OrgName,
			"contact_pi_name":    p.ContactPiName,
			"fiscal_year":        p.FiscalYear,
			"project_start_date": base.NullableDate(p.ProjectStartDate),
			"project_end_date":   base.NullableDate(p.ProjectEndDate),
			"agency_code":        p.AgencyCode,
			"award_amount":       amount,
			"project_num":        p.ProjectNum,
			"project_title":      p.ProjectTitle,
			"abstract_text":      p.AbstractText,
		}
	}

	return formatPage(dataset.FromRows(pageColumns, rows), q)
}

type searchResponse struct {
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
	Results []projectRecord `json:"results"`
}

type projectRecord struct {
	Organization struct {
		OrgName string `json:"org_name"`
	} `json:"organization"`
	ProjectNum       string   `json:"project_num"`
	FiscalYear       int      `json:"fiscal_year"`
	ProjectStartDate string   `json:"project_start_date"`
	ProjectEndDate   string   `json:"project_end_date"`
	ProjectTitle     string   `json:"project_title"`
	AgencyCode       string   `json:"agency_code"`
	AbstractText     string   `json:"abstract_text"`
	ContactPiName    string   `json:"contact_pi_name"`
	AwardAmount      *float64 `json:"award_amount"`
}

func formatPage(t *dataset.Table, q base.Query) (*dataset.Table, error) {
	t, err := t.Apply("project_start_date", func(v any) (any, error) {
		return base.FormatForSchema(v, base.GranularityDate)
	})
	if err != nil {
		return nil, err
	}
	t, err = t.Apply("project_end_date", func(v any) (any, error) {
		return base.FormatForSchema(v, base.GranularityDate)
	})
	if err != nil {
		return nil, err
	}

	t = t.Rename(map[string]string{
		"organization":       base.FieldInstitution,
		"contact_pi_name":    base.FieldPI,
		"fiscal_year":        base.FieldYear,
		"project_start_date": base.FieldStart,
		"project_end_date":   base.FieldEnd,
		"agency_code":        base.FieldProgram,
		"award_amount":       base.FieldAmount,
		"project_num":        base.FieldID,
		"project_title":      base.FieldTitle,
		"abstract_text":      base.FieldAbstract,
	})
	return base.Conform(t, q, SourceName)
}
