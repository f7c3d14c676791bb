package base

import (
	"context"
	"log/slog"
	"time"

	"awardfinder-backend/lib/dataset"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// Page is the outcome of one page fetch: either a normalized table or
// a skip with the reason it was dropped. The fold over pages never has
// to guess what a nil table means.
type Page struct {
	table  *dataset.Table
	reason error
}

func PageOk(t *dataset.Table) Page {
	return Page{table: t}
}

func PageSkipped(reason error) Page {
	return Page{reason: reason}
}

func (p Page) Ok() bool {
	return p.table != nil
}

func (p Page) Table() *dataset.Table {
	return p.table
}

func (p Page) Reason() error {
	return p.reason
}

// FetchFunc retrieves and normalizes one page at the given record
// offset.
type FetchFunc func(ctx context.Context, offset int) (*dataset.Table, error)

// PagerOptions control one pagination run.
type PagerOptions struct {
	// source name, used for log attribution
	Source string
	// skip-and-log failed pages instead of aborting
	SkipFailedPages bool
	// politeness delay applied after every page fetch
	Delay time.Duration
	// optional, purely observational
	Progress *progress.Tracker
}

func (o PagerOptions) pageDone(ctx context.Context) {
	if o.Progress != nil {
		o.Progress.Increment(1)
	}
	Sleep(ctx, o.Delay)
}

func (o PagerOptions) finish() {
	if o.Progress != nil {
		o.Progress.MarkAsDone()
	}
}

// Tracker registers a progress tracker on the writer. A nil writer
// gives a nil tracker, which the pagers treat as "no progress
// reporting". Total 0 renders as indeterminate.
func Tracker(w progress.Writer, message string, total int64) *progress.Tracker {
	if w == nil {
		return nil
	}
	t := &progress.Tracker{Message: message, Total: total}
	w.AppendTracker(t)
	return t
}

// Sleep blocks for the politeness delay, returning early only when the
// context is done. A non-positive delay is a no-op.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// CountPages drives an offset loop from 0 to total in steps of size.
// Pages are fetched strictly sequentially in increasing offset order.
func CountPages(ctx context.Context, total, size int, opts PagerOptions, fetch FetchFunc) ([]Page, error) {
	defer opts.finish()

	var pages []Page
	for offset := 0; offset < total; offset += size {
		page, err := fetch(ctx, offset)
		if err != nil {
			if !opts.SkipFailedPages {
				return nil, err
			}
			slog.ErrorContext(
				ctx, "failed to fetch page, skipping",
				"source", opts.Source,
				"offset", offset,
				"err", err,
			)
			pages = append(pages, PageSkipped(err))
			opts.pageDone(ctx)
			continue
		}
		pages = append(pages, PageOk(page))
		opts.pageDone(ctx)
	}
	return pages, nil
}

// OpenPages drives an open-ended offset loop for sources without a
// cheap count query. It terminates the first time a page comes back
// strictly shorter than the requested size; the terminal page may
// legitimately be empty.
func OpenPages(ctx context.Context, size int, opts PagerOptions, fetch FetchFunc) ([]Page, error) {
	defer opts.finish()

	var pages []Page
	offset := 0
	for {
		page, err := fetch(ctx, offset)
		if err != nil {
			if !opts.SkipFailedPages {
				return nil, err
			}
			slog.ErrorContext(
				ctx, "failed to fetch page, skipping",
				"source", opts.Source,
				"offset", offset,
				"err", err,
			)
			pages = append(pages, PageSkipped(err))
			opts.pageDone(ctx)
			offset += size
			continue
		}

		pages = append(pages, PageOk(page))
		opts.pageDone(ctx)
		if page.Len() < size {
			return pages, nil
		}
		offset += size
	}
}

// Collect folds fetched pages into the final result: Ok pages are
// concatenated, rows are deduplicated by canonical id keeping the
// first occurrence, and the column set is validated against the
// canonical schema. An empty result comes back as a schema-valid empty
// table together with ErrEmptyResult.
func Collect(pages []Page, source string) (*dataset.Table, error) {
	var tables []*dataset.Table
	for _, p := range pages {
		if p.Ok() {
			tables = append(tables, p.Table())
		}
	}
	if len(tables) == 0 {
		return dataset.New(Fields...), ErrEmptyResult
	}

	out, err := dataset.Concat(tables...)
	if err != nil {
		return nil, &SchemaMismatchError{Source: source, Reason: err.Error()}
	}
	out = out.DedupBy(FieldID)
	if err := Validate(out); err != nil {
		return nil, err
	}
	if out.Len() == 0 {
		return out, ErrEmptyResult
	}
	return out, nil
}
