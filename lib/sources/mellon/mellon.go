// Package mellon retrieves grants from the Mellon Foundation GraphQL
// API. The bulk search returns grant basics and a total count, the
// funded amount requires one extra query per grant.
package mellon

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

const SourceName = "Mellon Foundation"

const defaultBaseURL = "https://www.mellon.org"
const graphqlPath = "/api/graphql"
const defaultChunkSize = 100
const defaultDelay = 2 * time.Second

var pageColumns = []string{
	"title",
	"grantMakingArea",
	"description",
	"dateAwarded",
	"id",
	"grantee",
	base.FieldAmount,
}

type ClientOptions struct {
	// overrides the production API host, used by tests
	BaseURL string
	// politeness delay applied after every page and after every
	// per-grant amount lookup, zero means the default two seconds
	Delay time.Duration
	// optional progress reporting, purely observational
	Progress progress.Writer
	// when set, every HTTP exchange is dumped into this directory
	DumpDir string
}

type Client struct {
	http     *resty.Client
	delay    time.Duration
	progress progress.Writer
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	delay := opts.Delay
	if delay == 0 {
		delay = defaultDelay
	}
	return &Client{
		http: base.NewHTTPClient(base.HTTPOptions{
			BaseURL:    baseURL,
			TracerName: "awardfinder.lib.sources.mellon.http",
			DumpDir:    opts.DumpDir,
		}),
		delay:    delay,
		progress: opts.Progress,
	}
}

func (c *Client) Name() string {
	return SourceName
}

// newBulkVariables translates the query into GraphQL search variables.
// The API filters by an enumerated year list, so the date range
// becomes every year between the bounds; a lower bound without an
// upper bound runs through the current year.
func newBulkVariables(q base.Query, offset, limit int) (bulkVariables, error) {
	years := []int{}
	from, err := q.FromTime()
	if err != nil {
		return bulkVariables{}, err
	}
	to, err := q.ToTime()
	if err != nil {
		return bulkVariables{}, err
	}
	if from != nil && to == nil {
		now := time.Now().UTC()
		to = &now
	}
	if from != nil && to != nil {
		for year := from.Year(); year <= to.Year(); year++ {
			years = append(years, year)
		}
	}

	return bulkVariables{
		Limit:            limit,
		Offset:           offset,
		Term:             q.Text,
		Sort:             "MOST_RELEVANT",
		Years:            years,
		GrantMakingAreas: []string{},
		Ideas:            []string{},
		PastProgram:      false,
		AmountRanges:     []string{},
		Country:          []string{},
		State:            []string{},
		Features:         []string{},
	}, nil
}

// GetData retrieves all Mellon grants matching the query, normalized
// to the canonical schema.
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

	npages := (total + defaultChunkSize - 1) / defaultChunkSize
	pages, err := base.CountPages(ctx, total, defaultChunkSize, base.PagerOptions{
		Source:          SourceName,
		SkipFailedPages: q.SkipFailedPages,
		Delay:           c.delay,
		Progress:        base.Tracker(c.progress, "fetching Mellon grants", int64(npages)),
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
	variables, err := newBulkVariables(q, 0, 1)
	if err != nil {
		return 0, err
	}

	var parsed bulkResponse
	err = c.graphql(ctx, graphqlRequest{
		OperationName: bulkQueryName,
		Variables:     variables,
		Query:         bulkQuery,
	}, &parsed)
	if err != nil {
		return 0, fmt.Errorf("error while fetching total grants: %w", err)
	}
	return parsed.Data.GrantSearch.TotalCount, nil
}

func (c *Client) fetchPage(ctx context.Context, q base.Query, offset int) (*dataset.Table, error) {
	variables, err := newBulkVariables(q, offset, defaultChunkSize)
	if err != nil {
		return nil, err
	}

	var parsed bulkResponse
	err = c.graphql(ctx, graphqlRequest{
		OperationName: bulkQueryName,
		Variables:     variables,
		Query:         bulkQuery,
	}, &parsed)
	if err != nil {
		return nil, err
	}

	rows := make([]dataset.Row, len(parsed.Data.GrantSearch.Entities))
	for i, entity := range parsed.Data.GrantSearch.Entities {
		grant := entity.Data

		// the funded amount only exists behind a per-grant query
		amount, err := c.grantAmount(ctx, grant.ID)
		if err != nil {
			return nil, err
		}
		base.Sleep(ctx, c.delay)

		rows[i] = dataset.Row{
			"title":           grant.Title,
			"grantMakingArea": grant.GrantMakingArea,
			"description":     grant.Description,
			"dateAwarded":     base.NullableDate(grant.DateAwarded),
			"id":              grant.ID,
			"grantee":         grant.Grantee,
			base.FieldAmount:  amount,
		}
	}

	return formatPage(dataset.FromRows(pageColumns, rows), q)
}

func (c *Client) grantAmount(ctx context.Context, grantID string) (float64, error) {
	var parsed singleGrantResponse
	err := c.graphql(ctx, graphqlRequest{
		Variables: singleGrantVariables{GrantID: grantID},
		Query:     singleGrantQuery,
	}, &parsed)
	if err != nil {
		return 0, fmt.Errorf("error while fetching grant amount: %w", err)
	}
	return parsed.Data.GrantDetails.Grant.Amount, nil
}

func (c *Client) graphql(ctx context.Context, body graphqlRequest, out any) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(graphqlPath)
	if err != nil {
		return &base.TransportError{Source: SourceName, URL: graphqlPath, Err: err}
	}
	if res.IsError() {
		return &base.TransportError{Source: SourceName, URL: res.Request.URL, Status: res.StatusCode()}
	}

	if err := json.Unmarshal(res.Body(), out); err != nil {
		return &base.SchemaMismatchError{
			Source: SourceName,
			Reason: fmt.Sprintf("cannot parse graphql response: %v", err),
		}
	}
	return nil
}

type bulkResponse struct {
	Data struct {
		GrantSearch struct {
			Entities []struct {
				Data grantData `json:"data"`
			} `json:"entities"`
			TotalCount int `json:"totalCount"`
		} `json:"grantSearch"`
	} `json:"data"`
}

type grantData struct {
	Title           string `json:"title"`
	GrantMakingArea string `json:"grantMakingArea"`
	Description     string `json:"description"`
	DateAwarded     string `json:"dateAwarded"`
	ID              string `json:"id"`
	Grantee         string `json:"grantee"`
}

type singleGrantResponse struct {
	Data struct {
		GrantDetails struct {
			Grant struct {
				Amount float64 `json:"amount"`
			} `json:"grant"`
		} `json:"grantDetails"`
	} `json:"data"`
}

func formatPage(t *dataset.Table, q base.Query) (*dataset.Table, error) {
	t, err := t.Apply("dateAwarded", func(v any) (any, error) {
		return base.FormatForSchema(v, base.GranularityYear)
	})
	if err != nil {
		return nil, err
	}

	t = t.Rename(map[string]string{
		"grantee":         base.FieldInstitution,
		"description":     base.FieldAbstract,
		"grantMakingArea": base.FieldProgram,
		"dateAwarded":     base.FieldYear,
	})
	return base.Conform(t, q, SourceName)
}
