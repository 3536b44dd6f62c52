// Package tabletest is a conformance suite for table.Table implementations.
package tabletest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/flowstore/table"
)

// Run exercises tbl against the table contract. newTable must return an empty table.
func Run(t *testing.T, newTable func(t *testing.T) table.Table) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		tbl := newTable(t)
		_, ok, err := tbl.Get(ctx, "s", "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put_get_overwrite", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, "s", table.Row{Key: "k", Value: []byte(`{"v":1}`), LastFetched: 100}))
		got, ok, err := tbl.Get(ctx, "s", "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "k", got.Key)
		assert.Equal(t, `{"v":1}`, string(got.Value))
		assert.Equal(t, int64(100), got.LastFetched)

		require.NoError(t, tbl.Put(ctx, "s", table.Row{Key: "k", Value: []byte(`{"v":2}`), LastFetched: 200}))
		got, ok, err = tbl.Get(ctx, "s", "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"v":2}`, string(got.Value))
		assert.Equal(t, int64(200), got.LastFetched)
	})

	t.Run("store_ids_isolate_rows", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, "a", table.Row{Key: "k", Value: []byte("A"), LastFetched: 1}))
		require.NoError(t, tbl.Put(ctx, "b", table.Row{Key: "k", Value: []byte("B"), LastFetched: 2}))

		ra, ok, err := tbl.Get(ctx, "a", "k")
		require.NoError(t, err)
		require.True(t, ok)
		rb, ok, err := tbl.Get(ctx, "b", "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "A", string(ra.Value))
		assert.Equal(t, "B", string(rb.Value))
	})

	t.Run("mark_stale_keeps_value", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, "s", table.Row{Key: "k", Value: []byte("v"), LastFetched: 100}))
		require.NoError(t, tbl.MarkStale(ctx, "s", "k"))
		got, ok, err := tbl.Get(ctx, "s", "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v", string(got.Value))
		assert.Equal(t, table.StaleMillis, got.LastFetched)

		require.NoError(t, tbl.MarkStale(ctx, "s", "absent"))
		_, ok, err = tbl.Get(ctx, "s", "absent")
		require.NoError(t, err)
		assert.False(t, ok, "MarkStale must not create rows")
	})

	t.Run("mark_store_stale_is_scoped", func(t *testing.T) {
		tbl := newTable(t)
		for _, k := range []string{"k1", "k2", "k3"} {
			require.NoError(t, tbl.Put(ctx, "s", table.Row{Key: k, Value: []byte(k), LastFetched: 100}))
		}
		require.NoError(t, tbl.Put(ctx, "other", table.Row{Key: "k1", Value: []byte("o"), LastFetched: 100}))

		require.NoError(t, tbl.MarkStoreStale(ctx, "s"))
		for _, k := range []string{"k1", "k2", "k3"} {
			got, ok, err := tbl.Get(ctx, "s", k)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, table.StaleMillis, got.LastFetched, k)
			assert.Equal(t, k, string(got.Value))
		}
		got, ok, err := tbl.Get(ctx, "other", "k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(100), got.LastFetched, "other store must be untouched")
	})

	t.Run("delete_all_spans_stores", func(t *testing.T) {
		tbl := newTable(t)
		require.NoError(t, tbl.Put(ctx, "a", table.Row{Key: "k", Value: []byte("A"), LastFetched: 1}))
		require.NoError(t, tbl.Put(ctx, "b", table.Row{Key: "k", Value: []byte("B"), LastFetched: 1}))
		require.NoError(t, tbl.DeleteAll(ctx))
		for _, s := range []string{"a", "b"} {
			_, ok, err := tbl.Get(ctx, s, "k")
			require.NoError(t, err)
			assert.False(t, ok, s)
		}
		require.NoError(t, tbl.Put(ctx, "a", table.Row{Key: "k", Value: []byte("again"), LastFetched: 2}))
		_, ok, err := tbl.Get(ctx, "a", "k")
		require.NoError(t, err)
		assert.True(t, ok, "table must stay usable after DeleteAll")
	})

	t.Run("empty_key_and_binary_value", func(t *testing.T) {
		tbl := newTable(t)
		bin := []byte{0xFF, 0x10, 0x01, 0x7F}
		require.NoError(t, tbl.Put(ctx, "unkeyed", table.Row{Key: "", Value: bin, LastFetched: 5}))
		got, ok, err := tbl.Get(ctx, "unkeyed", "")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, bin, got.Value)
	})
}
