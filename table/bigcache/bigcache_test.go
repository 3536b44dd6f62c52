package bigcache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/flowstore/table"
	bctable "github.com/unkn0wn-root/flowstore/table/bigcache"
	"github.com/unkn0wn-root/flowstore/table/tabletest"
)

func TestConformance(t *testing.T) {
	tabletest.Run(t, func(t *testing.T) table.Table {
		ctx := context.Background()
		tbl, err := bctable.New(ctx, bctable.Config{Shards: 8, MaxEntriesInWindow: 1000})
		require.NoError(t, err)
		t.Cleanup(func() { _ = tbl.Close(ctx) })
		return tbl
	})
}

func TestMarkStoreStaleMatchesWholeStoreID(t *testing.T) {
	ctx := context.Background()
	tbl, err := bctable.New(ctx, bctable.Config{Shards: 8, MaxEntriesInWindow: 1000})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close(ctx) })

	for _, id := range []string{"a", "a:b", "ab"} {
		require.NoError(t, tbl.Put(ctx, id, table.Row{Key: "b:k", Value: []byte(id), LastFetched: 1000}))
	}
	require.NoError(t, tbl.MarkStoreStale(ctx, "a"))

	row, ok, err := tbl.Get(ctx, "a", "b:k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, table.StaleMillis, row.LastFetched)
	require.Equal(t, []byte("a"), row.Value)

	for _, id := range []string{"a:b", "ab"} {
		row, ok, err := tbl.Get(ctx, id, "b:k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(1000), row.LastFetched, id)
	}
}
