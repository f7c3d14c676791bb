// Package templeton retrieves grants from the John Templeton
// Foundation. The site offers no grant search API, so retrieval runs
// in two phases: a keyword search over the public site yielding grant
// page links, and a bulk scrape of the full grant-database table. The
// result is the set of table rows whose grant link appeared in the
// search.
package templeton

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"awardfinder-backend/lib/dataset"
	"awardfinder-backend/lib/htmlutil"
	"awardfinder-backend/lib/sources/base"
	"awardfinder-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/progress"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const SourceName = "Templeton"

const defaultBaseURL = "https://www.templeton.org"
const databasePath = "/grants/grant-database"
const searchLimit = 500

const (
	headerYear        = "Start Year"
	headerID          = "ID"
	headerTitle       = "Title"
	headerPI          = "Project Leader(s)"
	headerInstitution = "Grantee(s)"
	headerAmount      = "Grant Amount"
	headerProgram     = "Funding Area"
)

var requiredHeaders = []string{
	headerYear,
	headerID,
	headerTitle,
	headerPI,
	headerInstitution,
	headerAmount,
	headerProgram,
}

var pageColumns = []string{
	base.FieldInstitution,
	base.FieldAmount,
	base.FieldYear,
	base.FieldTitle,
	base.FieldID,
	base.FieldProgram,
	base.FieldPI,
}

type ClientOptions struct {
	// overrides the production host, used by tests
	BaseURL string
	// optional progress reporting, purely observational
	Progress progress.Writer
	// when set, every HTTP exchange is dumped into this directory
	DumpDir string
}

type Client struct {
	http     *resty.Client
	progress progress.Writer
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http: base.NewHTTPClient(base.HTTPOptions{
			BaseURL:          baseURL,
			TracerName:       "awardfinder.lib.sources.templeton.http",
			CloudflareBypass: true,
			DumpDir:          opts.DumpDir,
		}),
		progress: opts.Progress,
	}
}

func (c *Client) Name() string {
	return SourceName
}

// GetData retrieves all Templeton grants matching the query, normalized
// to the canonical schema. The whole dataset arrives in one fetch, so
// page skipping degenerates to "a failure yields an empty result"
// instead of a partial one. Date bounds are applied client-side by
// award year.
func (c *Client) GetData(ctx context.Context, q base.Query) (*dataset.Table, error) {
	ctx, span := tracer.Start(ctx, "GetData")
	defer span.End()

	from, err := q.FromTime()
	if err != nil {
		return nil, err
	}
	to, err := q.ToTime()
	if err != nil {
		return nil, err
	}

	pt := base.Tracker(c.progress, "fetching Templeton grants", 1)

	var pages []base.Page
	page, err := c.fetchAll(ctx, q)
	if err != nil {
		if !q.SkipFailedPages {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch grants")
			return nil, err
		}
		slog.ErrorContext(
			ctx, "failed to fetch grants, skipping",
			"source", SourceName,
			"err", err,
		)
		pages = append(pages, base.PageSkipped(err))
	} else {
		pages = append(pages, base.PageOk(page))
	}
	if pt != nil {
		pt.Increment(1)
		pt.MarkAsDone()
	}

	out, err := base.Collect(pages, SourceName)
	if err != nil && !errors.Is(err, base.ErrEmptyResult) {
		return nil, err
	}

	out = filterYears(out, from, to)
	if out.Len() == 0 {
		return out, base.ErrEmptyResult
	}
	return out, nil
}

// fetchAll runs the two phases and joins them. With an empty query text
// the search phase is skipped and every table row is kept.
func (c *Client) fetchAll(ctx context.Context, q base.Query) (*dataset.Table, error) {
	var links map[string]struct{}
	if q.Text != "" {
		var err error
		links, err = c.searchGrantLinks(ctx, q.Text)
		if err != nil {
			return nil, err
		}
	}

	rows, err := c.fetchGrantTable(ctx, links)
	if err != nil {
		return nil, err
	}
	return base.Conform(dataset.FromRows(pageColumns, rows), q, SourceName)
}

// searchGrantLinks runs the site search and collects the grant page
// links out of the bookmark anchors on the results page.
func (c *Client) searchGrantLinks(ctx context.Context, text string) (map[string]struct{}, error) {
	ctx, span := tracer.Start(ctx, "searchGrantLinks")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(searchLimit)).
		SetQueryParam("s", text).
		Get("/")
	if err != nil {
		return nil, &base.TransportError{Source: SourceName, URL: "/", Err: err}
	}
	if res.IsError() {
		return nil, &base.TransportError{Source: SourceName, URL: res.Request.URL, Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("error while searching grants: %w", err)
	}

	links := map[string]struct{}{}
	for _, a := range htmlutil.GetAnchors(ctx, doc.Find(`a[rel="bookmark"]`)) {
		links[normalizeLink(a.Href)] = struct{}{}
	}
	return links, nil
}

// fetchGrantTable scrapes the bulk grant-database table. When links is
// non-nil, only rows whose grant link is in the set are kept.
func (c *Client) fetchGrantTable(ctx context.Context, links map[string]struct{}) ([]dataset.Row, error) {
	ctx, span := tracer.Start(ctx, "fetchGrantTable")
	defer span.End()

	res, err := c.http.R().SetContext(ctx).Get(databasePath)
	if err != nil {
		return nil, &base.TransportError{Source: SourceName, URL: databasePath, Err: err}
	}
	if res.IsError() {
		return nil, &base.TransportError{Source: SourceName, URL: res.Request.URL, Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, &base.SchemaMismatchError{
			Source: SourceName,
			Reason: fmt.Sprintf("cannot parse grant database page: %v", err),
		}
	}

	table := doc.Find("table#grants-table").First()
	if table.Length() == 0 {
		return nil, &base.SchemaMismatchError{
			Source: SourceName,
			Reason: "no grants table in page",
		}
	}

	index, err := headerIndex(ctx, table)
	if err != nil {
		return nil, err
	}

	body := table.Find("tbody")
	if body.Length() == 0 {
		body = table
	}

	var rows []dataset.Row
	var parseErr error
	body.Find("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return true
		}
		if links != nil {
			href, ok := tr.Find("a").First().Attr("href")
			if !ok {
				return true
			}
			if _, hit := links[normalizeLink(href)]; !hit {
				return true
			}
		}

		row, err := parseGrantRow(cells, index)
		if err != nil {
			parseErr = &base.SchemaMismatchError{
				Source: SourceName,
				Reason: fmt.Sprintf("grant row %d: %v", i, err),
			}
			return false
		}
		rows = append(rows, row)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

// headerIndex maps the scraped header cells to column positions and
// verifies the grant fields are all present.
func headerIndex(ctx context.Context, table *goquery.Selection) (map[string]int, error) {
	data := htmlutil.GetTable(ctx, table)
	index := map[string]int{}
	for i, h := range data.Header {
		index[h] = i
	}

	var missing []string
	for _, h := range requiredHeaders {
		if _, ok := index[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, &base.SchemaMismatchError{
			Source: SourceName,
			Reason: fmt.Sprintf("grant table is missing columns %v", missing),
		}
	}
	return index, nil
}

func parseGrantRow(cells *goquery.Selection, index map[string]int) (dataset.Row, error) {
	cell := func(header string) string {
		return htmlutil.CleanText(cells.Eq(index[header]).Text())
	}

	year, err := strconv.Atoi(cell(headerYear))
	if err != nil {
		return nil, fmt.Errorf("cannot parse start year: %w", err)
	}
	amount, err := textutil.ParseCurrency(cell(headerAmount))
	if err != nil {
		return nil, err
	}

	return dataset.Row{
		base.FieldInstitution: cell(headerInstitution),
		base.FieldAmount:      amount,
		base.FieldYear:        year,
		base.FieldTitle:       cell(headerTitle),
		base.FieldID:          cell(headerID),
		base.FieldProgram:     cell(headerProgram),
		base.FieldPI:          cell(headerPI),
	}, nil
}

func normalizeLink(href string) string {
	return strings.TrimSuffix(strings.TrimSpace(href), "/")
}

func filterYears(t *dataset.Table, from, to *time.Time) *dataset.Table {
	if from != nil {
		t = t.Filter(func(row dataset.Row) bool {
			year, ok := row[base.FieldYear].(int)
			return ok && year >= from.Year()
		})
	}
	if to != nil {
		t = t.Filter(func(row dataset.Row) bool {
			year, ok := row[base.FieldYear].(int)
			return ok && year <= to.Year()
		})
	}
	return t
}
