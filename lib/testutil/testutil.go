package testutil

import (
	"fmt"
	"testing"

	"awardfinder-backend/lib/dataset"
	"awardfinder-backend/lib/sources/base"
	"awardfinder-backend/lib/telemetry"

	"github.com/mazen160/go-random"
	"github.com/stretchr/testify/require"
)

// SetupSource initializes telemetry for a source adapter test and
// returns the teardown.
func SetupSource(t testing.TB, name string) func() {
	return telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))
}

// RequireDatasetBasics asserts the invariants every retrieved dataset
// must hold: the canonical column set in canonical order, at least one
// row, and no duplicate award ids.
func RequireDatasetBasics(t testing.TB, table *dataset.Table) {
	require.NotNil(t, table)
	require.Equal(t, base.Fields, table.Columns())
	require.Greater(t, table.Len(), 0)

	seen := map[string]int{}
	for i := 0; i < table.Len(); i++ {
		id := fmt.Sprint(table.Row(i)[base.FieldID])
		require.NotEqual(t, "", id)
		if prev, ok := seen[id]; ok {
			t.Fatalf("duplicate award id %q at rows %d and %d", id, prev, i)
		}
		seen[id] = i
	}
}

// RandomID generates an opaque award id for fixture payloads.
func RandomID(t testing.TB) string {
	id, err := random.String(12)
	require.NoError(t, err)
	return id
}

// RandomTitle generates a project title for fixture payloads.
func RandomTitle(t testing.TB) string {
	s, err := random.String(24)
	require.NoError(t, err)
	return "Study of " + s
}
