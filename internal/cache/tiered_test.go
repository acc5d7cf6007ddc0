package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTier struct{ Tier }

func (failingTier) Name() string { return "broken" }

func (failingTier) Get(context.Context, Key) (Entry, error) { return Entry{}, errors.New("down") }

func (failingTier) Put(context.Context, Entry) error { return errors.New("down") }

func (failingTier) RemoveDocument(context.Context, int64) error { return errors.New("down") }

func TestTieredPromotesHitsToFasterTiers(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryTier(10)
	disk := newTestStore(t)
	tiered := NewTiered(mem, disk)

	entry := Entry{DocumentID: 1, SourceVersion: 10, GeneratedAt: time.Now().UTC(), Text: "body"}
	require.NoError(t, disk.Put(ctx, entry))

	got, tier, err := tiered.Get(ctx, entry.Key())
	require.NoError(t, err)
	assert.Equal(t, "disk", tier)
	assert.Equal(t, "body", got.Text)

	_, tier, err = tiered.Get(ctx, entry.Key())
	require.NoError(t, err)
	assert.Equal(t, "memory", tier)
}

func TestTieredRemoveDocumentHitsEveryTier(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryTier(10)
	disk := newTestStore(t)
	tiered := NewTiered(mem, disk)

	require.NoError(t, tiered.Put(ctx, Entry{DocumentID: 2, SourceVersion: 1, Text: "a"}))
	require.NoError(t, tiered.Put(ctx, Entry{DocumentID: 2, SourceVersion: 2, Text: "b"}))
	require.NoError(t, tiered.RemoveDocument(ctx, 2))

	_, _, err := tiered.Get(ctx, Key{DocumentID: 2, Version: 2})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, map[string]int{"memory": 0, "disk": 0}, tiered.Sizes(ctx))
}

func TestTieredSkipsBrokenTier(t *testing.T) {
	ctx := context.Background()
	var reported []string
	disk := newTestStore(t)
	tiered := NewTiered(failingTier{}, disk)
	tiered.OnError = func(tier, op string, err error) { reported = append(reported, tier+":"+op) }

	err := tiered.Put(ctx, Entry{DocumentID: 3, SourceVersion: 1, Text: "ok"})
	assert.Error(t, err)

	got, tier, err := tiered.Get(ctx, Key{DocumentID: 3, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, "disk", tier)
	assert.Equal(t, "ok", got.Text)

	err = tiered.RemoveDocument(ctx, 3)
	assert.Error(t, err)
	_, err = disk.Get(ctx, Key{DocumentID: 3, Version: 1})
	assert.ErrorIs(t, err, ErrNotFound, "healthy tiers are still cleared when one fails")
	assert.Contains(t, reported, "broken:get")
	assert.Contains(t, reported, "broken:remove")
}

func TestMemoryTierEvictsOldest(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryTier(2)
	base := time.Now()
	require.NoError(t, mem.Put(ctx, Entry{DocumentID: 1, SourceVersion: 1, GeneratedAt: base}))
	require.NoError(t, mem.Put(ctx, Entry{DocumentID: 2, SourceVersion: 1, GeneratedAt: base.Add(time.Second)}))
	require.NoError(t, mem.Put(ctx, Entry{DocumentID: 3, SourceVersion: 1, GeneratedAt: base.Add(2 * time.Second)}))

	_, err := mem.Get(ctx, Key{DocumentID: 1, Version: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	n, _ := mem.Len(ctx)
	assert.Equal(t, 2, n)
}
