package base

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResult flags a retrieval whose result table came back
// schema-valid but with zero rows. Downstream consumers assert
// non-emptiness, so an empty result is surfaced explicitly instead of
// silently.
var ErrEmptyResult = errors.New("retrieval produced an empty result set")

// TransportError is a network or HTTP-level failure: a non-2xx status
// or a failed connection.
type TransportError struct {
	Source string
	URL    string
	// zero when the request never produced a response
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: request to %s failed with status %d", e.Source, e.URL, e.Status)
	}
	return fmt.Sprintf("%s: request to %s failed: %v", e.Source, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError is raised when a parsed native response cannot
// be mapped onto the canonical fields, or a table's column set does
// not equal the canonical set.
type SchemaMismatchError struct {
	Source  string
	Missing []string
	Extra   []string
	Reason  string
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, fmt.Sprintf("extra columns: %s", strings.Join(e.Extra, ", ")))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(parts) == 0 {
		parts = append(parts, "column set does not match the canonical schema")
	}
	if e.Source != "" {
		return fmt.Sprintf("%s: schema mismatch: %s", e.Source, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("schema mismatch: %s", strings.Join(parts, "; "))
}

// PolicyViolationError is raised before any page is fetched when the
// total result count is at or above a source's safety ceiling. It is
// always fatal, including under the skip-failed-pages policy.
type PolicyViolationError struct {
	Source  string
	Total   int
	Ceiling int
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf(
		"%s: total grants is %d, which is too many to fetch, please narrow your search (ceiling %d)",
		e.Source, e.Total, e.Ceiling,
	)
}

// DateParseError is raised for an unparseable date, whether supplied
// by the caller or found in a response.
type DateParseError struct {
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot parse date %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("cannot parse date %q", e.Value)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}
