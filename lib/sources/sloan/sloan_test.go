package sloan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"awardfinder-backend/lib/sources/base"
	"awardfinder-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func fakeEntry(id, year int) string {
	return fmt.Sprintf(`<li>
		<header>
			<div class="grantee">grantee: University %d</div>
			<div class="amount">amount: $1,250,000</div>
			<div class="year">year: %d</div>
		</header>
		<div class="details" data-accordian-group="grant-%d">
			<div class="brief-description">To support project %d</div>
			<div class="grid">
				<ul><li>Program Energy and Environment</li></ul>
				<ul><li>Investigator Ada Lovelace</li></ul>
			</div>
		</div>
	</li>`, id, year, id, id)
}

// yearFor spreads fake grants over 2018 through 2022
func yearFor(i int) int {
	return 2018 + i%5
}

func fakeServer(t *testing.T, total int, requests *[]*http.Request) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, databasePath, r.URL.Path)
		if requests != nil {
			*requests = append(*requests, r.Clone(context.Background()))
		}

		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)
		if limit == 1 {
			fmt.Fprintf(w, `<html><body><table><tr>
				<td class="results-count">%s Grants</td>
			</tr></table></body></html>`, formatThousands(total))
			return
		}

		offset, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)

		var entries strings.Builder
		for i := offset; i < offset+limit && i < total; i++ {
			entries.WriteString(fakeEntry(i, yearFor(i)))
		}
		fmt.Fprintf(w, `<html><body><ul class="data-list">%s</ul></body></html>`, entries.String())
	}))
}

func formatThousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	return s[:len(s)-3] + "," + s[len(s)-3:]
}

func TestGetData(t *testing.T) {
	cleanup := testutil.SetupSource(t, "sloan")
	defer cleanup()

	var requests []*http.Request
	server := fakeServer(t, 5, &requests)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, PageDelay: time.Millisecond})
	out, err := client.GetData(context.Background(), base.Query{
		Text: "energy",
		From: "2019-01-01",
		To:   "2021-12-31",
	})
	require.NoError(t, err)

	testutil.RequireDatasetBasics(t, out)
	// years 2018 and 2022 fall outside the bounds
	require.Equal(t, 3, out.Len())

	require.Equal(t, "University 1", out.At(0, base.FieldInstitution))
	require.Equal(t, "Ada Lovelace", out.At(0, base.FieldPI))
	require.Equal(t, 2019, out.At(0, base.FieldYear))
	require.Equal(t, "Energy and Environment", out.At(0, base.FieldProgram))
	require.Equal(t, 1250000.0, out.At(0, base.FieldAmount))
	require.Equal(t, 1, out.At(0, base.FieldID))
	require.Equal(t, "To support project 1", out.At(0, base.FieldTitle))
	require.Equal(t, "energy", out.At(0, base.FieldQuery))
	require.Equal(t, SourceName, out.At(0, base.FieldSource))
	// the listing carries no start or end dates or abstract
	require.Nil(t, out.At(0, base.FieldStart))
	require.Nil(t, out.At(0, base.FieldEnd))
	require.Nil(t, out.At(0, base.FieldAbstract))

	// one count request plus a single page
	require.Len(t, requests, 2)
	q := requests[0].URL.Query()
	require.Equal(t, "1", q.Get("limit"))
	require.Equal(t, "energy", q.Get("keywords"))
	require.Equal(t, "approved_at", q.Get("order_by"))
	q = requests[1].URL.Query()
	require.Equal(t, "3000", q.Get("limit"))
	require.Equal(t, "0", q.Get("page"))
}

func TestGetDataPaging(t *testing.T) {
	var requests []*http.Request
	server := fakeServer(t, 4500, &requests)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, PageDelay: time.Millisecond})
	out, err := client.GetData(context.Background(), base.Query{})
	require.NoError(t, err)

	testutil.RequireDatasetBasics(t, out)
	require.Equal(t, 4500, out.Len())

	require.Len(t, requests, 3)
	require.Equal(t, "0", requests[1].URL.Query().Get("page"))
	require.Equal(t, "3000", requests[2].URL.Query().Get("page"))
}

func TestGetDataCountFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, PageDelay: time.Millisecond})
	_, err := client.GetData(context.Background(), base.Query{SkipFailedPages: true})

	var terr *base.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, http.StatusForbidden, terr.Status)
}

func TestGetDataEmptyAfterYearFilter(t *testing.T) {
	server := fakeServer(t, 5, nil)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, PageDelay: time.Millisecond})
	out, err := client.GetData(context.Background(), base.Query{From: "2030-01-01"})
	require.ErrorIs(t, err, base.ErrEmptyResult)
	require.Equal(t, 0, out.Len())
	require.Equal(t, base.Fields, out.Columns())
}

func TestGetDataMalformedListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") == "1" {
			fmt.Fprint(w, `<table><tr><td class="results-count">3 Grants</td></tr></table>`)
			return
		}
		fmt.Fprint(w, `<html><body><p>maintenance</p></body></html>`)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, PageDelay: time.Millisecond})
	_, err := client.GetData(context.Background(), base.Query{})

	var serr *base.SchemaMismatchError
	require.ErrorAs(t, err, &serr)
}
