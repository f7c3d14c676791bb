// Package base defines the contract shared by every funding-agency
// source: the canonical award schema, the retrieval query parameters,
// date normalization, the error taxonomy and the pagination drivers.
package base

import (
	"context"
	"fmt"
	"time"

	"awardfinder-backend/lib/dataset"

	"github.com/araddon/dateparse"
)

// Canonical award columns. Every source maps its native records onto
// exactly this set, in this order.
const (
	FieldInstitution = "institution"
	FieldPI          = "pi"
	FieldYear        = "year"
	FieldStart       = "start"
	FieldEnd         = "end"
	FieldProgram     = "program"
	FieldAmount      = "amount"
	FieldID          = "id"
	FieldTitle       = "title"
	FieldAbstract    = "abstract"
	FieldQuery       = "query"
	FieldSource      = "source"
)

// Fields is the canonical column order. Callers must not modify it.
var Fields = []string{
	FieldInstitution,
	FieldPI,
	FieldYear,
	FieldStart,
	FieldEnd,
	FieldProgram,
	FieldAmount,
	FieldID,
	FieldTitle,
	FieldAbstract,
	FieldQuery,
	FieldSource,
}

// Query carries the retrieval parameters. It is immutable once
// constructed, the pagination loop never changes it.
type Query struct {
	// free-text search term, "" means no term
	Text string
	// inclusive calendar date bounds, parsed permissively,
	// "" means unbounded
	From string
	To   string
	// when true, a failed page is logged and skipped instead of
	// aborting the whole retrieval. count-phase failures stay fatal
	// either way.
	SkipFailedPages bool
}

// TextValue returns the search term as a canonical query cell, nil
// when no term was given.
func (q Query) TextValue() any {
	if q.Text == "" {
		return nil
	}
	return q.Text
}

// FromTime parses the lower date bound, nil when unbounded.
func (q Query) FromTime() (*time.Time, error) {
	if q.From == "" {
		return nil, nil
	}
	dt, err := ParseDatetime(q.From)
	if err != nil {
		return nil, err
	}
	return &dt, nil
}

// ToTime parses the upper date bound, nil when unbounded.
func (q Query) ToTime() (*time.Time, error) {
	if q.To == "" {
		return nil, nil
	}
	dt, err := ParseDatetime(q.To)
	if err != nil {
		return nil, err
	}
	return &dt, nil
}

// Source is the capability every funding-agency adapter implements.
// The source set is closed, callers pick the adapter at the call site.
type Source interface {
	Name() string
	GetData(ctx context.Context, q Query) (*dataset.Table, error)
}

// ParseDatetime accepts an already-structured timestamp or a free-text
// date string and returns the parsed time. Free text goes through a
// permissive, locale-tolerant parser.
func ParseDatetime(v any) (time.Time, error) {
	switch dt := v.(type) {
	case time.Time:
		return dt, nil
	case string:
		parsed, err := dateparse.ParseAny(dt)
		if err != nil {
			return time.Time{}, &DateParseError{Value: dt, Err: err}
		}
		return parsed, nil
	}
	return time.Time{}, &DateParseError{Value: fmt.Sprintf("%v", v)}
}

// Granularity selects the canonical representation FormatForSchema
// produces.
type Granularity int

const (
	// GranularityDate formats as an ISO-8601 calendar date string.
	GranularityDate Granularity = iota
	// GranularityYear formats as a 4-digit integer year.
	GranularityYear
)

// FormatForSchema converts a date value to its canonical schema
// representation. nil passes through untouched and the function is
// idempotent: feeding its own output back in is a no-op.
func FormatForSchema(v any, g Granularity) (any, error) {
	if v == nil {
		return nil, nil
	}

	if g == GranularityYear {
		switch year := v.(type) {
		case int:
			return year, nil
		case int64:
			return int(year), nil
		case float64:
			// json numbers decode as float64
			return int(year), nil
		}
		dt, err := ParseDatetime(v)
		if err != nil {
			return nil, err
		}
		return dt.Year(), nil
	}

	dt, err := ParseDatetime(v)
	if err != nil {
		return nil, err
	}
	return dt.Format("2006-01-02"), nil
}

// NullableDate maps an absent native date cell to nil so records with
// missing dates survive formatting.
func NullableDate(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Conform maps a partially renamed page onto the canonical schema: it
// attaches the query and source columns, creates any missing canonical
// column filled with nil, and reorders to exactly the canonical set
// (extra native columns are dropped).
func Conform(t *dataset.Table, q Query, source string) (*dataset.Table, error) {
	t = t.Set(FieldQuery, q.TextValue())
	t = t.Set(FieldSource, source)
	for _, field := range Fields {
		if !t.HasColumn(field) {
			t = t.Set(field, nil)
		}
	}
	out, err := t.Select(Fields...)
	if err != nil {
		return nil, &SchemaMismatchError{Source: source, Reason: err.Error()}
	}
	return out, nil
}

// Validate checks that the table's column set equals the canonical
// field set exactly.
func Validate(t *dataset.Table) error {
	var missing []string
	for _, field := range Fields {
		if !t.HasColumn(field) {
			missing = append(missing, field)
		}
	}
	var extra []string
	for _, col := range t.Columns() {
		if !isCanonical(col) {
			extra = append(extra, col)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return &SchemaMismatchError{Missing: missing, Extra: extra}
	}
	return nil
}

func isCanonical(col string) bool {
	for _, field := range Fields {
		if field == col {
			return true
		}
	}
	return false
}
