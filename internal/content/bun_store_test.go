package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestBunStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewBunStore(newTestDB(t))

	modified := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	doc, err := store.Insert(ctx, Document{
		Type:       "post",
		Status:     StatusPublish,
		Path:       "/hello",
		Title:      "Hello",
		Format:     FormatHTML,
		Body:       "<p>hi</p>",
		Tags:       []string{"go", "cache"},
		ModifiedAt: modified,
	})
	require.NoError(t, err)
	require.NotZero(t, doc.ID)

	got, err := store.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, modified.UnixNano(), got.Version(), "nanosecond precision survives storage")
	assert.Equal(t, []string{"go", "cache"}, got.Tags)
	assert.True(t, got.PublishedAt.IsZero())

	byPath, err := store.GetByPath(ctx, "/hello")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byPath.ID)

	got.Title = "Hello again"
	got.ModifiedAt = modified.Add(time.Nanosecond)
	_, err = store.Update(ctx, got)
	require.NoError(t, err)

	reloaded, err := store.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", reloaded.Title)
	assert.Equal(t, modified.UnixNano()+1, reloaded.Version())

	require.NoError(t, store.Delete(ctx, doc.ID))
	_, err = store.GetByID(ctx, doc.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, store.Delete(ctx, doc.ID), ErrNotFound)
	_, err = store.Update(ctx, got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBunStoreUniquePath(t *testing.T) {
	ctx := context.Background()
	store := NewBunStore(newTestDB(t))
	base := Document{Type: "post", Status: StatusPublish, Path: "/same", Format: FormatHTML, ModifiedAt: time.Now()}

	_, err := store.Insert(ctx, base)
	require.NoError(t, err)
	_, err = store.Insert(ctx, base)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestBunStoreListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewBunStore(newTestDB(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []Document{
		{Type: "post", Status: StatusPublish, Path: "/a", ModifiedAt: base},
		{Type: "page", Status: StatusPublish, Path: "/b", ModifiedAt: base.Add(time.Minute)},
		{Type: "post", Status: StatusDraft, Path: "/c", ModifiedAt: base.Add(2 * time.Minute)},
		{Type: "product", Status: StatusPublish, Path: "/d", ModifiedAt: base.Add(3 * time.Minute)},
	}
	for _, doc := range seed {
		doc.Format = FormatHTML
		_, err := store.Insert(ctx, doc)
		require.NoError(t, err)
	}

	docs, err := store.List(ctx, ListOptions{Status: StatusPublish, Types: []string{"post", "page"}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "/b", docs[0].Path, "newest first")
	assert.Equal(t, "/a", docs[1].Path)

	limited, err := store.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "/d", limited[0].Path)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
