package nsf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"awardfinder-backend/lib/sources/base"
	"awardfinder-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

const fakeTotal = 520

func fakeAward(i int) map[string]string {
	return map[string]string{
		"id":                fmt.Sprintf("award-%04d", i),
		"date":              "06/15/2021",
		"startDate":         "07/01/2021",
		"expDate":           "06/30/2024",
		"title":             fmt.Sprintf("Project %d", i),
		"awardeeName":       "Example University",
		"piFirstName":       "Ada",
		"piLastName":        "Lovelace",
		"cfdaNumber":        "47.070",
		"estimatedTotalAmt": "150000",
		"abstractText":      "An abstract.",
		"piEmail":           "ada@example.edu",
	}
}

func fakeServer(t *testing.T, requests *[]*http.Request) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			*requests = append(*requests, r.Clone(context.Background()))
		}
		require.Equal(t, "/services/v1/awards.json", r.URL.Path)

		offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
		require.NoError(t, err)

		awards := []map[string]string{}
		for i := offset; i < offset+defaultChunkSize && i < fakeTotal; i++ {
			awards = append(awards, fakeAward(i))
		}
		err = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{"award": awards},
		})
		require.NoError(t, err)
	}))
}

func TestGetData(t *testing.T) {
	cleanup := testutil.SetupSource(t, "nsf")
	defer cleanup()

	var requests []*http.Request
	server := fakeServer(t, &requests)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	out, err := client.GetData(context.Background(), base.Query{
		Text: "quantum",
		From: "2021-01-01",
		To:   "2021-12-31",
	})
	require.NoError(t, err)

	testutil.RequireDatasetBasics(t, out)
	require.Equal(t, fakeTotal, out.Len())

	require.Equal(t, "Example University", out.At(0, base.FieldInstitution))
	require.Equal(t, "Ada Lovelace", out.At(0, base.FieldPI))
	require.Equal(t, 2021, out.At(0, base.FieldYear))
	require.Equal(t, "2021-07-01", out.At(0, base.FieldStart))
	require.Equal(t, "2024-06-30", out.At(0, base.FieldEnd))
	require.Equal(t, "47.070", out.At(0, base.FieldProgram))
	require.Equal(t, 150000.0, out.At(0, base.FieldAmount))
	require.Equal(t, "quantum", out.At(0, base.FieldQuery))
	require.Equal(t, SourceName, out.At(0, base.FieldSource))

	// 520 records at 25 per page is 20 full pages plus a short one
	require.Len(t, requests, 21)
	q := requests[0].URL.Query()
	require.Equal(t, "quantum", q.Get("keyword"))
	require.Equal(t, "01/01/2021", q.Get("dateStart"))
	require.Equal(t, "12/31/2021", q.Get("dateEnd"))
	require.Equal(t, "false", q.Get("projectOutcomesOnly"))
}

func TestGetDataFiltered(t *testing.T) {
	var requests []*http.Request
	server := fakeServer(t, &requests)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	_, err := client.GetDataFiltered(context.Background(), base.Query{}, Filters{
		CFDANumber:                    ProgramToCFDANumber[ProgramBiologicalSciences],
		RequireProjectOutcomesReports: true,
	})
	require.NoError(t, err)

	q := requests[0].URL.Query()
	require.Equal(t, ProgramToCFDANumber[ProgramBiologicalSciences], q.Get("cfdaNumber"))
	require.Equal(t, "true", q.Get("projectOutcomesOnly"))
}

func TestGetDataEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": {"award": []}}`)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	out, err := client.GetData(context.Background(), base.Query{Text: "nothing matches"})
	require.ErrorIs(t, err, base.ErrEmptyResult)
	require.Equal(t, 0, out.Len())
	require.Equal(t, base.Fields, out.Columns())
}

func TestGetDataServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	_, err := client.GetData(context.Background(), base.Query{})
	var terr *base.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, http.StatusBadGateway, terr.Status)
}

func TestGetDataBadDates(t *testing.T) {
	client := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1"})
	_, err := client.GetData(context.Background(), base.Query{From: "whenever"})
	var derr *base.DateParseError
	require.ErrorAs(t, err, &derr)
}

func TestProgramLookup(t *testing.T) {
	for number, program := range CFDANumberToProgram {
		require.Equal(t, number, ProgramToCFDANumber[program])
	}
}
