// Package nsf retrieves awards from the National Science Foundation
// REST API. The API exposes no cheap count query, so pagination runs
// until a page comes back shorter than the requested chunk size.
package nsf

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"awardfinder-backend/lib/dataset"
	"awardfinder-backend/lib/sources/base"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/progress"
	"go.opentelemetry.io/otel/codes"
)

const SourceName = "NSF"

const defaultBaseURL = "https://api.nsf.gov"
const awardsPath = "/services/v1/awards.json"
const defaultChunkSize = 25

// the metadata fields requested from the awards endpoint
var metadataFields = []string{
	"id",
	"date",
	"startDate",
	"expDate",
	"title",
	"awardeeName",
	"piFirstName",
	"piLastName",
	"cfdaNumber",
	"estimatedTotalAmt",
	"abstractText",
	"piEmail",
}

var pageColumns = []string{
	"id",
	"date",
	"startDate",
	"expDate",
	"title",
	"awardeeName",
	"cfdaNumber",
	"estimatedTotalAmt",
	"abstractText",
	"piEmail",
	base.FieldPI,
}

type ClientOptions struct {
	// overrides the production API host, used by tests
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
			BaseURL:    baseURL,
			TracerName: "awardfinder.lib.sources.nsf.http",
			DumpDir:    opts.DumpDir,
		}),
		progress: opts.Progress,
	}
}

func (c *Client) Name() string {
	return SourceName
}

// Filters are the NSF-specific optional query filters.
type Filters struct {
	// CFDA program number, see ProgramToCFDANumber
	CFDANumber string
	// restrict to awards with project outcomes reports filed
	RequireProjectOutcomesReports bool
}

func (c *Client) GetData(ctx context.Context, q base.Query) (*dataset.Table, error) {
	return c.GetDataFiltered(ctx, q, Filters{})
}

// GetDataFiltered retrieves all NSF awards matching the query and
// filters, normalized to the canonical schema.
func (c *Client) GetDataFiltered(ctx context.Context, q base.Query, f Filters) (*dataset.Table, error) {
	ctx, span := tracer.Start(ctx, "GetData")
	defer span.End()

	// reject bad caller dates before the first request goes out
	if _, err := q.FromTime(); err != nil {
		return nil, err
	}
	if _, err := q.ToTime(); err != nil {
		return nil, err
	}

	pages, err := base.OpenPages(ctx, defaultChunkSize, base.PagerOptions{
		Source:          SourceName,
		SkipFailedPages: q.SkipFailedPages,
		Progress:        base.Tracker(c.progress, "fetching NSF awards", 0),
	}, func(ctx context.Context, offset int) (*dataset.Table, error) {
		return c.fetchPage(ctx, q, f, offset)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch pages")
		return nil, err
	}

	return base.Collect(pages, SourceName)
}

func (c *Client) fetchPage(ctx context.Context, q base.Query, f Filters, offset int) (*dataset.Table, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("printFields", strings.Join(metadataFields, ",")).
		SetQueryParam("projectOutcomesOnly", strconv.FormatBool(f.RequireProjectOutcomesReports)).
		SetQueryParam("offset", strconv.Itoa(offset))

	from, err := q.FromTime()
	if err != nil {
		return nil, err
	}
	if from != nil {
		req.SetQueryParam("dateStart", from.Format("01/02/2006"))
	}
	to, err := q.ToTime()
	if err != nil {
		return nil, err
	}
	if to != nil {
		req.SetQueryParam("dateEnd", to.Format("01/02/2006"))
	}
	if f.CFDANumber != "" {
		req.SetQueryParam("cfdaNumber", f.CFDANumber)
	}
	if q.Text != "" {
		req.SetQueryParam("keyword", q.Text)
	}

	res, err := req.Get(awardsPath)
	if err != nil {
		return nil, &base.TransportError{Source: SourceName, URL: awardsPath, Err: err}
	}
	if res.IsError() {
		return nil, &base.TransportError{Source: SourceName, URL: res.Request.URL, Status: res.StatusCode()}
	}

	var body awardsResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, &base.SchemaMismatchError{
			Source: SourceName,
			Reason: fmt.Sprintf("cannot parse awards response: %v", err),
		}
	}

	rows := make([]dataset.Row, len(body.Response.Award))
	for i, a := range body.Response.Award {
		rows[i] = dataset.Row{
			"id":                a.ID,
			"date":              base.NullableDate(a.Date),
			"startDate":         base.NullableDate(a.StartDate),
			"expDate":           base.NullableDate(a.ExpDate),
			"title":             a.Title,
			"awardeeName":       a.AwardeeName,
			"cfdaNumber":        a.CFDANumber,
			"estimatedTotalAmt": a.EstimatedTotalAmt,
			"abstractText":      a.AbstractText,
			"piEmail":           a.PiEmail,
			base.FieldPI:        a.PiFirstName + " " + a.PiLastName,
		}
	}

	return formatPage(dataset.FromRows(pageColumns, rows), q)
}

type awardsResponse struct {
	Response struct {
		Award []awardRecord `json:"award"`
	} `json:"response"`
}

type awardRecord struct {
	ID                string `json:"id"`
	Date              string `json:"date"`
	StartDate         string `json:"startDate"`
	ExpDate           string `json:"expDate"`
	Title             string `json:"title"`
	AwardeeName       string `json:"awardeeName"`
	PiFirstName       string `json:"piFirstName"`
	PiLastName        string `json:"piLastName"`
	CFDANumber        string `json:"cfdaNumber"`
	EstimatedTotalAmt string `json:"estimatedTotalAmt"`
	AbstractText      string `json:"abstractText"`
	PiEmail           string `json:"piEmail"`
}

func formatPage(t *dataset.Table, q base.Query) (*dataset.Table, error) {
	t, err := t.Apply("startDate", func(v any) (any, error) {
		return base.FormatForSchema(v, base.GranularityDate)
	})
	if err != nil {
		return nil, err
	}
	t, err = t.Apply("expDate", func(v any) (any, error) {
		return base.FormatForSchema(v, base.GranularityDate)
	})
	if err != nil {
		return nil, err
	}
	t, err = t.Apply("date", func(v any) (any, error) {
		return base.FormatForSchema(v, base.GranularityYear)
	})
	if err != nil {
		return nil, err
	}
	t, err = t.Apply("estimatedTotalAmt", parseAmount)
	if err != nil {
		return nil, err
	}

	t = t.Rename(map[string]string{
		"awardeeName":       base.FieldInstitution,
		"date":              base.FieldYear,
		"startDate":         base.FieldStart,
		"expDate":           base.FieldEnd,
		"cfdaNumber":        base.FieldProgram,
		"estimatedTotalAmt": base.FieldAmount,
		"abstractText":      base.FieldAbstract,
	})
	return base.Conform(t, q, SourceName)
}

// the API renders award amounts as strings
func parseAmount(v any) (any, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, nil
	}
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("cannot parse award amount %q: %w", s, err)
	}
	return amount, nil
}
