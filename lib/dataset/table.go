// Package dataset implements a small column-ordered table used to carry
// scraped award records between the fetch, normalize and output stages.
package dataset

import (
	"fmt"
	"slices"
	"strings"
)

// Row maps column names to cell values. A missing key and an explicit
// nil value are treated the same by the table operations.
type Row = map[string]any

// Table is an ordered set of columns over rows of loosely typed cells.
// Transform methods return a new table, the receiver is never mutated.
type Table struct {
	columns []string
	rows    []Row
}

// New constructs an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{columns: slices.Clone(columns)}
}

// FromRows constructs a table from row maps. The column order is taken
// from the columns argument, cells absent from a row default to nil.
func FromRows(columns []string, rows []Row) *Table {
	t := &Table{columns: slices.Clone(columns), rows: make([]Row, 0, len(rows))}
	for _, in := range rows {
		row := make(Row, len(t.columns))
		for _, col := range t.columns {
			row[col] = in[col]
		}
		t.rows = append(t.rows, row)
	}
	return t
}

// Columns returns the column order. The caller must not modify it.
func (t *Table) Columns() []string {
	return t.columns
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.columns, name)
}

// At returns the cell at row i for the named column, nil when the
// column does not exist.
func (t *Table) At(i int, column string) any {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return t.rows[i][column]
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	out := make(Row, len(t.columns))
	for _, col := range t.columns {
		out[col] = t.rows[i][col]
	}
	return out
}

func (t *Table) clone() *Table {
	out := &Table{
		columns: slices.Clone(t.columns),
		rows:    make([]Row, len(t.rows)),
	}
	for i, row := range t.rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.rows[i] = cp
	}
	return out
}

// Rename returns a table with columns renamed according to mapping.
// Columns absent from the mapping keep their name, mapping entries for
// columns the table does not have are ignored.
func (t *Table) Rename(mapping map[string]string) *Table {
	out := t.clone()
	for i, col := range out.columns {
		to, ok := mapping[col]
		if !ok {
			continue
		}
		out.columns[i] = to
		for _, row := range out.rows {
			row[to] = row[col]
			delete(row, col)
		}
	}
	return out
}

// Drop returns a table without the named columns.
func (t *Table) Drop(columns ...string) *Table {
	out := t.clone()
	out.columns = slices.DeleteFunc(out.columns, func(col string) bool {
		return slices.Contains(columns, col)
	})
	for _, row := range out.rows {
		for _, col := range columns {
			delete(row, col)
		}
	}
	return out
}

// Select returns a table restricted to exactly the given columns, in
// the given order. Requesting a column the table does not have is an
// error.
func (t *Table) Select(columns ...string) (*Table, error) {
	var missing []string
	for _, col := range columns {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("select: no such columns: %s", strings.Join(missing, ", "))
	}

	out := &Table{columns: slices.Clone(columns), rows: make([]Row, len(t.rows))}
	for i, row := range t.rows {
		cp := make(Row, len(columns))
		for _, col := range columns {
			cp[col] = row[col]
		}
		out.rows[i] = cp
	}
	return out, nil
}

// Set returns a table where the named column holds the same value in
// every row, creating the column if it does not exist.
func (t *Table) Set(column string, value any) *Table {
	out := t.clone()
	if !out.HasColumn(column) {
		out.columns = append(out.columns, column)
	}
	for _, row := range out.rows {
		row[column] = value
	}
	return out
}

// Apply returns a table with fn applied to every cell of the named
// column. The first cell error aborts the whole transform.
func (t *Table) Apply(column string, fn func(any) (any, error)) (*Table, error) {
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("apply: no such column: %s", column)
	}
	out := t.clone()
	for i, row := range out.rows {
		v, err := fn(row[column])
		if err != nil {
			return nil, fmt.Errorf("apply %s row %d: %w", column, i, err)
		}
		row[column] = v
	}
	return out, nil
}

// Filter returns a table containing only the rows keep reports true
// for. Row order is preserved.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{columns: slices.Clone(t.columns)}
	for i := range t.rows {
		if keep(t.rows[i]) {
			out.rows = append(out.rows, t.Row(i))
		}
	}
	return out
}

// Concat appends the rows of all tables in order. The column order of
// the first non-nil table wins, every table must carry the same column
// set.
func Concat(tables ...*Table) (*Table, error) {
	var out *Table
	for _, t := range tables {
		if t == nil {
			continue
		}
		if out == nil {
			out = t.clone()
			continue
		}
		if !sameColumnSet(out.columns, t.columns) {
			return nil, fmt.Errorf(
				"concat: column mismatch: [%s] vs [%s]",
				strings.Join(out.columns, ", "),
				strings.Join(t.columns, ", "),
			)
		}
		for i := range t.rows {
			out.rows = append(out.rows, t.Row(i))
		}
	}
	if out == nil {
		out = &Table{}
	}
	return out, nil
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, col := range a {
		if !slices.Contains(b, col) {
			return false
		}
	}
	return true
}

// DedupBy returns a table with rows deduplicated on the named key
// column, keeping the first occurrence of each key.
func (t *Table) DedupBy(column string) *Table {
	seen := make(map[any]bool, len(t.rows))
	return t.Filter(func(row Row) bool {
		key := row[column]
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	})
}

// Dedup returns a table without fully duplicate rows, keeping first
// occurrences.
func (t *Table) Dedup() *Table {
	seen := make(map[string]bool, len(t.rows))
	return t.Filter(func(row Row) bool {
		key := fingerprint(t.columns, row)
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	})
}

func fingerprint(columns []string, row Row) string {
	var b strings.Builder
	for _, col := range columns {
		fmt.Fprintf(&b, "%v\x00", row[col])
	}
	return b.String()
}

// MissingValues counts nil cells across the whole table.
func (t *Table) MissingValues() int {
	n := 0
	for _, row := range t.rows {
		for _, col := range t.columns {
			if row[col] == nil {
				n++
			}
		}
	}
	return n
}
