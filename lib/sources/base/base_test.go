package base

import (
	"testing"

	"awardfinder-backend/lib/dataset"

	"github.com/stretchr/testify/require"
)

func TestParseDatetime(t *testing.T) {
	cases := []struct {
		in     string
		year   int
		month  int
		day    int
		expErr bool
	}{
		{in: "2021-01-05", year: 2021, month: 1, day: 5},
		{in: "01/05/2021", year: 2021, month: 1, day: 5},
		{in: "January 5, 2021", year: 2021, month: 1, day: 5},
		{in: "not a date", expErr: true},
	}

	for _, test := range cases {
		dt, err := ParseDatetime(test.in)
		if test.expErr {
			require.Error(t, err)
			var perr *DateParseError
			require.ErrorAs(t, err, &perr)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, test.year, dt.Year())
		require.Equal(t, test.month, int(dt.Month()))
		require.Equal(t, test.day, dt.Day())
	}
}

func TestFormatForSchema(t *testing.T) {
	cases := []struct {
		name string
		in   any
		g    Granularity
		out  any
	}{
		{name: "nil passes through", in: nil, g: GranularityDate, out: nil},
		{name: "date string", in: "2021-06-15", g: GranularityDate, out: "2021-06-15"},
		{name: "free text date", in: "June 15, 2021", g: GranularityDate, out: "2021-06-15"},
		{name: "year from date", in: "2021-06-15", g: GranularityYear, out: 2021},
		{name: "int year passes through", in: 2021, g: GranularityYear, out: 2021},
		{name: "json number year", in: float64(2021), g: GranularityYear, out: 2021},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			got, err := FormatForSchema(test.in, test.g)
			require.NoError(t, err)
			require.Equal(t, test.out, got)

			// feeding the output back in must be a no-op
			again, err := FormatForSchema(got, test.g)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestFormatForSchemaBadValue(t *testing.T) {
	_, err := FormatForSchema("garbage", GranularityDate)
	require.Error(t, err)
	_, err = FormatForSchema("garbage", GranularityYear)
	require.Error(t, err)
}

func TestQueryTimes(t *testing.T) {
	q := Query{From: "2020-01-01", To: "2021-12-31"}
	from, err := q.FromTime()
	require.NoError(t, err)
	require.Equal(t, 2020, from.Year())
	to, err := q.ToTime()
	require.NoError(t, err)
	require.Equal(t, 2021, to.Year())

	empty := Query{}
	from, err = empty.FromTime()
	require.NoError(t, err)
	require.Nil(t, from)
	require.Nil(t, empty.TextValue())

	bad := Query{From: "whenever"}
	_, err = bad.FromTime()
	require.Error(t, err)
}

func TestConform(t *testing.T) {
	page := dataset.FromRows([]string{FieldInstitution, FieldID, "native_extra"}, []dataset.Row{
		{FieldInstitution: "MIT", FieldID: "a1", "native_extra": "dropped"},
	})

	out, err := Conform(page, Query{Text: "biology"}, "TEST")
	require.NoError(t, err)
	require.Equal(t, Fields, out.Columns())
	require.Equal(t, "MIT", out.At(0, FieldInstitution))
	require.Equal(t, "biology", out.At(0, FieldQuery))
	require.Equal(t, "TEST", out.At(0, FieldSource))
	require.Nil(t, out.At(0, FieldAmount))
	require.False(t, out.HasColumn("native_extra"))
}

func TestConformEmptyQueryText(t *testing.T) {
	page := dataset.FromRows([]string{FieldID}, []dataset.Row{{FieldID: "a1"}})
	out, err := Conform(page, Query{}, "TEST")
	require.NoError(t, err)
	require.Nil(t, out.At(0, FieldQuery))
}

func TestValidate(t *testing.T) {
	ok := dataset.New(Fields...)
	require.NoError(t, Validate(ok))

	missing := dataset.New(Fields[:len(Fields)-1]...)
	err := Validate(missing)
	var serr *SchemaMismatchError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, []string{FieldSource}, serr.Missing)

	extra := dataset.New(append([]string{"bogus"}, Fields...)...)
	err = Validate(extra)
	require.ErrorAs(t, err, &serr)
	require.Equal(t, []string{"bogus"}, serr.Extra)
}
