package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/flowstore/table"
	"github.com/unkn0wn-root/flowstore/table/sqlite"
	"github.com/unkn0wn-root/flowstore/table/tabletest"
)

func openTemp(t *testing.T) *sqlite.Table {
	t.Helper()
	ctx := context.Background()
	tbl, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close(ctx) })
	return tbl
}

func TestConformance(t *testing.T) {
	tabletest.Run(t, func(t *testing.T) table.Table { return openTemp(t) })
}

func TestInMemoryConformance(t *testing.T) {
	tabletest.Run(t, func(t *testing.T) table.Table {
		ctx := context.Background()
		tbl, err := sqlite.Open(ctx, sqlite.Config{Path: ":memory:"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = tbl.Close(ctx) })
		return tbl
	})
}

func TestSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	tbl, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, tbl.Put(ctx, "prices", table.Row{Key: `"BTC"`, Value: []byte(`{"v":1}`), LastFetched: 1700000000123}))
	require.NoError(t, tbl.Close(ctx))

	reopened, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close(ctx)

	got, ok, err := reopened.Get(ctx, "prices", `"BTC"`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":1}`, string(got.Value))
	assert.Equal(t, int64(1700000000123), got.LastFetched)
}

func TestClosedTable(t *testing.T) {
	ctx := context.Background()
	tbl := openTemp(t)
	require.NoError(t, tbl.Close(ctx))
	require.NoError(t, tbl.Close(ctx))
	_, _, err := tbl.Get(ctx, "s", "k")
	assert.ErrorIs(t, err, table.ErrClosed)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), sqlite.Config{})
	assert.Error(t, err)
}
