package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("awardfinder.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses inner whitespace and strips non-printable runes
// from scraped text.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

type Anchor struct {
	Name string
	Href string
}

func GetAnchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	ctx, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}

		linkStr := link.String()
		anchors = append(anchors, Anchor{
			Name: CleanText(GetText(n)),
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("url", linkStr),
		))
	}

	return anchors
}

// TableData is a server-rendered html table flattened into header
// cells and body rows.
type TableData struct {
	Header []string
	Rows   [][]string
}

// GetTable extracts a <table> selection into header and row cells.
// The header comes from <th> cells, body rows come from <tbody> (or
// all rows with <td> cells when there is no tbody). Cell text is
// cleaned.
func GetTable(ctx context.Context, table *goquery.Selection) TableData {
	_, span := tracer.Start(ctx, "GetTable")
	defer span.End()

	var out TableData
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		out.Header = append(out.Header, CleanText(th.Text()))
	})

	body := table.Find("tbody")
	if body.Length() == 0 {
		body = table
	}
	body.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := make([]string, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, CleanText(td.Text()))
		})
		out.Rows = append(out.Rows, row)
	})

	span.SetAttributes(
		attribute.Int("columns", len(out.Header)),
		attribute.Int("rows", len(out.Rows)),
	)
	return out
}
