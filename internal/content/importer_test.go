package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkdownFile(t *testing.T) {
	source := []byte(`---
title: Hello World
type: page
author: Ada
tags: [go, markdown]
date: 2026-02-01T10:00:00Z
---

Body **text**.
`)
	doc, err := ParseMarkdownFile("guides/hello.md", source)
	require.NoError(t, err)
	assert.Equal(t, "/guides/hello", doc.Path)
	assert.Equal(t, "page", doc.Type)
	assert.Equal(t, "Hello World", doc.Title)
	assert.Equal(t, FormatMarkdown, doc.Format)
	assert.Equal(t, "Body **text**.\n", doc.Body)
	assert.Equal(t, []string{"go", "markdown"}, doc.Tags)
	assert.Equal(t, 2026, doc.PublishedAt.Year())
}

func TestDerivePath(t *testing.T) {
	assert.Equal(t, "/", derivePath("index.md", ""))
	assert.Equal(t, "/docs", derivePath("docs/index.md", ""))
	assert.Equal(t, "/blog/custom", derivePath("blog/post-1.md", "custom"))
}

func TestImportDirCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "blog"), 0o755))
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("index.md", "---\ntitle: Home\ntype: page\n---\nWelcome\n")
	write("blog/first.md", "---\ntitle: First\n---\nHello\n")
	write("notes.txt", "ignored")

	svc := NewService(NewMemoryStore(), "https://example.com")
	var kinds []ChangeKind
	svc.Subscribe(func(_ context.Context, evt ChangeEvent) { kinds = append(kinds, evt.Kind) })

	res, err := ImportDir(ctx, svc, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)

	res, err = ImportDir(ctx, svc, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Updated)
	assert.ElementsMatch(t, []ChangeKind{ChangeSaved, ChangeSaved, ChangeEdited, ChangeEdited}, kinds)

	front, err := svc.FrontPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Home", front.Title)
}
