// Package sloan retrieves grants from the Sloan Foundation grants
// database, a server-rendered listing. The total count is scraped
// from the results-count widget and the award fields are pulled out of
// nested containers in the listing markup.
package sloan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"awardfinder-backend/lib/dataset"
	"awardfinder-backend/lib/sources/base"
	"awardfinder-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/progress"
	"go.opentelemetry.io/otel/codes"
)

const SourceName = "Sloan"

const defaultBaseURL = "https://sloan.org"
const databasePath = "/grants-database"
const defaultChunkSize = 3000
const defaultPageDelay = 2 * time.Second

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
	// politeness delay between pages, zero means the default two
	// seconds. the delay is mandatory against the real site.
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
			BaseURL:          baseURL,
			TracerName:       "awardfinder.lib.sources.sloan.http",
			CloudflareBypass: true,
			DumpDir:          opts.DumpDir,
		}),
		pageDelay: delay,
		progress:  opts.Progress,
	}
}

func (c *Client) Name() string {
	return SourceName
}

// GetData retrieves all Sloan grants matching the query, normalized to
// the canonical schema. The site only renders award years, so the date
// bounds are applied client-side by year after the full retrieval.
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
		Delay:           c.pageDelay,
		Progress:        base.Tracker(c.progress, "fetching Sloan grants", int64(npages)),
	}, func(ctx context.Context, offset int) (*dataset.Table, error) {
		return c.fetchPage(ctx, q, offset)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch pages")
		return nil, err
	}

	out, err := base.Collect(pages, SourceName)
	if err != nil && !errors.Is(err, base.ErrEmptyResult) {
		return nil, err
	}

	// the keyword search already ran server-side, the year bounds are
	// a second, client-side stage on the fully retrieved set
	out = filterYears(out, from, to)
	if out.Len() == 0 {
		return out, base.ErrEmptyResult
	}
	return out, nil
}

func (c *Client) listRequest(ctx context.Context, q base.Query, limit, page int) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("dynamic", "1").
		SetQueryParam("order_by", "approved_at").
		SetQueryParam("order_by_direction", "desc").
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetQueryParam("page", strconv.Itoa(page))
	if q.Text != "" {
		req.SetQueryParam("keywords", q.Text)
	}
	return req
}

func (c *Client) queryTotalGrants(ctx context.Context, q base.Query) (int, error) {
	res, err := c.listRequest(ctx, q, 1, 1).Get(databasePath)
	if err != nil {
		return 0, &base.TransportError{Source: SourceName, URL: databasePath, Err: err}
	}
	if res.IsError() {
		return 0, &base.TransportError{Source: SourceName, URL: res.Request.URL, Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return 0, fmt.Errorf("error while fetching total grants: %w", err)
	}

	widget := doc.Find("td.results-count").First()
	if widget.Length() == 0 {
		return 0, fmt.Errorf("error while fetching total grants: no results-count widget in page")
	}
	countText := strings.ReplaceAll(widget.Text(), ",", "")
	countText = textutil.StripMarker(countText, "Grants")
	total, err := strconv.Atoi(countText)
	if err != nil {
		return 0, fmt.Errorf("error while fetching total grants: %w", err)
	}
	return total, nil
}

func (c *Client) fetchPage(ctx context.Context, q base.Query, offset int) (*dataset.Table, error) {
	res, err := c.listRequest(ctx, q, defaultChunkSize, offset).Get(databasePath)
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
			Reason: fmt.Sprintf("cannot parse listing page: %v", err),
		}
	}

	list := doc.Find("ul.data-list").First()
	if list.Length() == 0 {
		return nil, &base.SchemaMismatchError{
			Source: SourceName,
			Reason: "no data-list container in page",
		}
	}

	var rows []dataset.Row
	var parseErr error
	list.ChildrenFiltered("li").EachWithBreak(func(i int, li *goquery.Selection) bool {
		row, err := parseAward(li)
		if err != nil {
			parseErr = &base.SchemaMismatchError{
				Source: SourceName,
				Reason: fmt.Sprintf("award entry %d: %v", i, err),
			}
			return false
		}
		rows = append(rows, row)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return base.Conform(dataset.FromRows(pageColumns, rows), q, SourceName)
}

// parseAward digs the award fields out of one listing entry. The
// grantee, amount and year live in labeled header divs, the id hangs
// off the details accordion attribute, and the program and principal
// investigator are buried in the details grid text.
func parseAward(li *goquery.Selection) (dataset.Row, error) {
	header := li.Find("header").First()
	if header.Length() == 0 {
		return nil, fmt.Errorf("entry has no header")
	}

	grantee := textutil.StripMarker(header.Find("div.grantee").Text(), "grantee:")

	amount, err := textutil.ParseCurrency(
		textutil.StripMarker(header.Find("div.amount").Text(), "amount:"),
	)
	if err != nil {
		return nil, err
	}

	year, err := strconv.Atoi(textutil.StripMarker(header.Find("div.year").Text(), "year:"))
	if err != nil {
		return nil, fmt.Errorf("cannot parse award year: %w", err)
	}

	details := li.Find("div.details").First()
	if details.Length() == 0 {
		return nil, fmt.Errorf("entry has no details container")
	}
	description := strings.TrimSpace(details.Find("div.brief-description").Text())

	idText := textutil.StripMarker(details.AttrOr("data-accordian-group", ""), "grant-")
	id, err := strconv.Atoi(idText)
	if err != nil {
		return nil, fmt.Errorf("cannot parse grant id %q: %w", idText, err)
	}

	grid := details.Find("div.grid").First()
	program := textutil.StripMarker(grid.Find("ul").First().Find("li").First().Text(), "Program")

	subProgramAndPi := strings.TrimSpace(grid.Find("ul").Eq(1).Text())
	pi := textutil.AfterMarker(subProgramAndPi, "Investigator")

	return dataset.Row{
		base.FieldInstitution: grantee,
		base.FieldAmount:      amount,
		base.FieldYear:        year,
		base.FieldTitle:       description,
		base.FieldID:          id,
		base.FieldProgram:     program,
		base.FieldPI:          pi,
	}, nil
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
