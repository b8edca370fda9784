package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubeswap/v3-indexer/internal/store"
)

func TestBackendList(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Commit(ctx, store.Cursor{Block: 1}, []store.Record{
		{Kind: "Pool", ID: "0xa", Data: []byte(`{"id":"0xa","token0":"0x1","totalValueLockedUSD":"10.5"}`)},
		{Kind: "Pool", ID: "0xb", Data: []byte(`{"id":"0xb","token0":"0x2","totalValueLockedUSD":"200"}`)},
		{Kind: "Pool", ID: "0xc", Data: []byte(`{"id":"0xc","token0":"0x1","totalValueLockedUSD":"3"}`)},
	}))

	docs, err := b.List(ctx, "Pool", store.ListOptions{OrderBy: "totalValueLockedUSD", Desc: true})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Contains(t, string(docs[0]), `"0xb"`)
	assert.Contains(t, string(docs[2]), `"0xc"`)

	docs, err = b.List(ctx, "Pool", store.ListOptions{Filter: map[string]string{"token0": "0x1"}, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, string(docs[0]), `"0xc"`)

	n, err := b.Count(ctx, "Pool", map[string]string{"token0": "0x1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err = b.List(ctx, "Pool", store.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestBackendGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Commit(ctx, store.Cursor{}, []store.Record{{Kind: "Token", ID: "x", Data: []byte(`{"id":"x"}`)}}))

	doc, err := b.Get(ctx, "Token", "x")
	require.NoError(t, err)
	doc[0] = '['

	again, err := b.Get(ctx, "Token", "x")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"x"}`, string(again))
}
