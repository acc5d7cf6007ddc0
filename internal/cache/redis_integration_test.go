//go:build integration

package cache

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTierRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	tier := NewRedisTier(client, "md-hub-test")
	t.Cleanup(func() { _ = tier.Clear(ctx) })

	require.NoError(t, tier.Put(ctx, Entry{DocumentID: 11, SourceVersion: 1, Text: "a"}))
	require.NoError(t, tier.Put(ctx, Entry{DocumentID: 11, SourceVersion: 2, Text: "b"}))
	require.NoError(t, tier.Put(ctx, Entry{DocumentID: 12, SourceVersion: 1, Text: "c"}))

	got, err := tier.Get(ctx, Key{DocumentID: 11, Version: 2})
	require.NoError(t, err)
	assert.Equal(t, "b", got.Text)

	require.NoError(t, tier.RemoveDocument(ctx, 11))
	_, err = tier.Get(ctx, Key{DocumentID: 11, Version: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := tier.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
