package dataset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFromRowsFillsMissingCells(t *testing.T) {
	table := FromRows([]string{"a", "b"}, []Row{
		{"a": 1},
		{"a": 2, "b": "x"},
	})

	require.Equal(t, []string{"a", "b"}, table.Columns())
	require.Equal(t, 2, table.Len())
	require.Nil(t, table.At(0, "b"))
	require.Equal(t, "x", table.At(1, "b"))
	require.Equal(t, 1, table.MissingValues())
}

func TestRename(t *testing.T) {
	table := FromRows([]string{"grantee", "amount"}, []Row{
		{"grantee": "MIT", "amount": 100.0},
	})
	renamed := table.Rename(map[string]string{
		"grantee": "institution",
		"nope":    "ignored",
	})

	require.Equal(t, []string{"institution", "amount"}, renamed.Columns())
	diff := cmp.Diff(Row{"institution": "MIT", "amount": 100.0}, renamed.Row(0))
	require.Empty(t, diff)

	// the receiver must be untouched
	require.Equal(t, []string{"grantee", "amount"}, table.Columns())
	require.Equal(t, "MIT", table.At(0, "grantee"))
}

func TestSelect(t *testing.T) {
	table := FromRows([]string{"a", "b", "c"}, []Row{
		{"a": 1, "b": 2, "c": 3},
	})

	out, err := table.Select("c", "a")
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, out.Columns())
	diff := cmp.Diff(Row{"c": 3, "a": 1}, out.Row(0))
	require.Empty(t, diff)

	_, err = table.Select("a", "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestDrop(t *testing.T) {
	table := FromRows([]string{"a", "b", "c"}, []Row{
		{"a": 1, "b": 2, "c": 3},
	})
	out := table.Drop("b")

	require.Equal(t, []string{"a", "c"}, out.Columns())
	require.False(t, out.HasColumn("b"))
	require.True(t, table.HasColumn("b"))
}

func TestSetAndApply(t *testing.T) {
	table := FromRows([]string{"amount"}, []Row{
		{"amount": "100"},
		{"amount": "250"},
	})

	table = table.Set("source", "test")
	require.Equal(t, []string{"amount", "source"}, table.Columns())
	require.Equal(t, "test", table.At(1, "source"))

	doubled, err := table.Apply("amount", func(v any) (any, error) {
		return v.(string) + "0", nil
	})
	require.NoError(t, err)
	require.Equal(t, "1000", doubled.At(0, "amount"))
	require.Equal(t, "100", table.At(0, "amount"))

	_, err = table.Apply("missing", func(v any) (any, error) { return v, nil })
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	table := FromRows([]string{"year"}, []Row{
		{"year": 2020},
		{"year": 2021},
		{"year": 2022},
	})
	out := table.Filter(func(row Row) bool {
		return row["year"].(int) >= 2021
	})

	require.Equal(t, 2, out.Len())
	require.Equal(t, 2021, out.At(0, "year"))
	require.Equal(t, 3, table.Len())
}

func TestConcat(t *testing.T) {
	a := FromRows([]string{"id", "title"}, []Row{{"id": 1, "title": "x"}})
	b := FromRows([]string{"title", "id"}, []Row{{"id": 2, "title": "y"}})

	out, err := Concat(a, nil, b)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title"}, out.Columns())
	require.Equal(t, 2, out.Len())
	require.Equal(t, 2, out.At(1, "id"))

	c := FromRows([]string{"id", "other"}, []Row{{"id": 3}})
	_, err = Concat(a, c)
	require.Error(t, err)
}

func TestDedupBy(t *testing.T) {
	table := FromRows([]string{"id", "n"}, []Row{
		{"id": "a", "n": 1},
		{"id": "b", "n": 2},
		{"id": "a", "n": 3},
	})
	out := table.DedupBy("id")

	require.Equal(t, 2, out.Len())
	// the first occurrence wins
	require.Equal(t, 1, out.At(0, "n"))
}

func TestDedup(t *testing.T) {
	table := FromRows([]string{"id", "n"}, []Row{
		{"id": "a", "n": 1},
		{"id": "a", "n": 1},
		{"id": "a", "n": 2},
	})
	require.Equal(t, 2, table.Dedup().Len())
}
