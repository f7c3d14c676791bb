package base

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"awardfinder-backend/lib/dataset"

	"github.com/stretchr/testify/require"
)

func page(ids ...string) *dataset.Table {
	rows := make([]dataset.Row, len(ids))
	for i, id := range ids {
		rows[i] = dataset.Row{FieldID: id}
	}
	out, err := Conform(dataset.FromRows([]string{FieldID}, rows), Query{}, "TEST")
	if err != nil {
		panic(err)
	}
	return out
}

func TestCountPagesWalksOffsets(t *testing.T) {
	var offsets []int
	pages, err := CountPages(context.Background(), 10, 4, PagerOptions{Source: "TEST"},
		func(ctx context.Context, offset int) (*dataset.Table, error) {
			offsets = append(offsets, offset)
			return page(fmt.Sprint(offset)), nil
		})

	require.NoError(t, err)
	require.Equal(t, []int{0, 4, 8}, offsets)
	require.Len(t, pages, 3)
	for _, p := range pages {
		require.True(t, p.Ok())
	}
}

func TestCountPagesZeroTotal(t *testing.T) {
	pages, err := CountPages(context.Background(), 0, 4, PagerOptions{Source: "TEST"},
		func(ctx context.Context, offset int) (*dataset.Table, error) {
			t.Fatal("no page should be requested for an empty total")
			return nil, nil
		})
	require.NoError(t, err)
	require.Empty(t, pages)
}

func TestCountPagesAbortsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	var offsets []int
	_, err := CountPages(context.Background(), 20, 4, PagerOptions{Source: "TEST"},
		func(ctx context.Context, offset int) (*dataset.Table, error) {
			offsets = append(offsets, offset)
			if offset == 4 {
				return nil, boom
			}
			return page(fmt.Sprint(offset)), nil
		})

	require.ErrorIs(t, err, boom)
	// the failure aborts fetching, later offsets are never requested
	require.Equal(t, []int{0, 4}, offsets)
}

func TestCountPagesSkipsFailures(t *testing.T) {
	boom := errors.New("boom")
	pages, err := CountPages(context.Background(), 20, 4, PagerOptions{Source: "TEST", SkipFailedPages: true},
		func(ctx context.Context, offset int) (*dataset.Table, error) {
			if offset == 4 {
				return nil, boom
			}
			return page(fmt.Sprint(offset)), nil
		})

	require.NoError(t, err)
	require.Len(t, pages, 5)
	require.False(t, pages[1].Ok())
	require.ErrorIs(t, pages[1].Reason(), boom)

	out, err := Collect(pages, "TEST")
	require.NoError(t, err)
	require.Equal(t, 4, out.Len())
}

func TestOpenPagesStopsAtShortPage(t *testing.T) {
	var offsets []int
	pages, err := OpenPages(context.Background(), 4, PagerOptions{Source: "TEST"},
		func(ctx context.Context, offset int) (*dataset.Table, error) {
			offsets = append(offsets, offset)
			switch offset {
			case 0:
				return page("a", "b", "c", "d"), nil
			case 4:
				return page("e", "f"), nil
			}
			t.Fatal("no page should be requested after a short page")
			return nil, nil
		})

	require.NoError(t, err)
	require.Equal(t, []int{0, 4}, offsets)
	require.Len(t, pages, 2)
}

func TestOpenPagesEmptyTerminalPage(t *testing.T) {
	pages, err := OpenPages(context.Background(), 2, PagerOptions{Source: "TEST"},
		func(ctx context.Context, offset int) (*dataset.Table, error) {
			if offset == 0 {
				return page("a", "b"), nil
			}
			return page(), nil
		})

	require.NoError(t, err)
	require.Len(t, pages, 2)

	out, err := Collect(pages, "TEST")
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
}

func TestOpenPagesSkipContinuesAtNextOffset(t *testing.T) {
	boom := errors.New("boom")
	var offsets []int
	pages, err := OpenPages(context.Background(), 2, PagerOptions{Source: "TEST", SkipFailedPages: true},
		func(ctx context.Context, offset int) (*dataset.Table, error) {
			offsets = append(offsets, offset)
			switch offset {
			case 0:
				return nil, boom
			case 2:
				return page("a"), nil
			}
			t.Fatal("unexpected offset")
			return nil, nil
		})

	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, offsets)
	require.Len(t, pages, 2)
}

func TestCollect(t *testing.T) {
	out, err := Collect([]Page{
		PageOk(page("a", "b")),
		PageOk(page("b", "c")),
	}, "TEST")

	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	require.Equal(t, Fields, out.Columns())
}

func TestCollectEmpty(t *testing.T) {
	out, err := Collect(nil, "TEST")
	require.ErrorIs(t, err, ErrEmptyResult)
	require.NotNil(t, out)
	require.Equal(t, Fields, out.Columns())
	require.Equal(t, 0, out.Len())

	out, err = Collect([]Page{PageSkipped(errors.New("boom"))}, "TEST")
	require.ErrorIs(t, err, ErrEmptyResult)
	require.Equal(t, 0, out.Len())
}
