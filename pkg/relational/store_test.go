package relational_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/relational"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "SR ref no,problem reported,cause\n" +
	"SR-1,leak,seal worn\n" +
	"SR-2,\"leak, heavy\",\n" +
	"SR-3,jam\n"

func openDuckDB(t *testing.T) *relational.Store {
	t.Helper()
	s, err := relational.Open(context.Background(), relational.BackendDuckDB, filepath.Join(t.TempDir(), "stage.duckdb"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndExport(t *testing.T) {
	ctx := context.Background()
	s := openDuckDB(t)
	in := writeFile(t, sample)

	n, err := s.Load(ctx, in, relational.DefaultTable)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out := filepath.Join(t.TempDir(), "export", "records.csv")
	n, err = s.Export(ctx, relational.DefaultTable, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "SR ref no,problem reported,cause\n"+
		"SR-1,leak,seal worn\n"+
		"SR-2,\"leak, heavy\",\n"+
		"SR-3,jam,\n", string(got))
}

func TestLoadReplacesTable(t *testing.T) {
	ctx := context.Background()
	s := openDuckDB(t)

	_, err := s.Load(ctx, writeFile(t, sample), "staging")
	require.NoError(t, err)
	n, err := s.RoundTrip(ctx, writeFile(t, "a,b\n1,2\n"), "staging", filepath.Join(t.TempDir(), "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	s := openDuckDB(t)

	_, err := s.Load(ctx, filepath.Join(t.TempDir(), "missing.csv"), "staging")
	assert.True(t, types.IsKind(err, types.KindIO))

	_, err = s.Load(ctx, writeFile(t, sample), "drop table x;")
	assert.True(t, types.IsKind(err, types.KindConfig))

	_, err = s.Load(ctx, writeFile(t, ""), "staging")
	assert.True(t, types.IsKind(err, types.KindMalformedInput))

	_, err = s.Export(ctx, "nope", filepath.Join(t.TempDir(), "out.csv"))
	assert.True(t, types.IsKind(err, types.KindQuery))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := relational.Open(context.Background(), "oracle", "", nil)
	assert.True(t, types.IsKind(err, types.KindConfig))
}
