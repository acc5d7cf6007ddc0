package negotiate

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/dispatch"
)

func TestPrefersMarkdown(t *testing.T) {
	cases := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"text/markdown", true},
		{"text/x-markdown", true},
		{"text/html", false},
		{"*/*", false},
		{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", false},
		{"text/markdown, text/html;q=0.9", true},
		{"text/html, text/markdown;q=0.9", false},
		{"text/markdown, text/html", false},
		{"text/markdown, */*", true},
		{"text/markdown, text/*", true},
		{"text/markdown;q=0, */*", false},
		{"text/*", false},
		{"application/json", false},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			got, err := PrefersMarkdown(tc.header)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPrefersMarkdownMalformed(t *testing.T) {
	for _, header := range []string{
		"text",
		"text/markdown;q=abc",
		"text/markdown;q=2",
		"/markdown",
		"text/markdown, text/markdown;q=0",
	} {
		t.Run(header, func(t *testing.T) {
			got, err := PrefersMarkdown(header)
			assert.ErrorIs(t, err, ErrMalformedAccept)
			assert.False(t, got)
		})
	}
}

func newNegotiator(mutate func(*config.MarkdownConfig)) *Negotiator {
	md := config.DefaultMarkdownConfig()
	if mutate != nil {
		mutate(&md)
	}
	return New(config.Static(config.NewSnapshot("https://example.com", md)), nil)
}

func request(path, accept, query string) dispatch.Request {
	values, _ := url.ParseQuery(query)
	return dispatch.Request{Method: "GET", Path: path, Accept: accept, RawQuery: query, Query: values}
}

func TestHandleRewrites(t *testing.T) {
	n := newNegotiator(nil)
	ctx := context.Background()

	out := n.Handle(ctx, request("/foo", "text/markdown", ""))
	assert.Equal(t, dispatch.Rewrite, out.Kind)
	assert.Equal(t, "/foo.md", out.Target)

	out = n.Handle(ctx, request("/foo/", "text/markdown", ""))
	assert.Equal(t, "/foo.md", out.Target)

	out = n.Handle(ctx, request("/", "text/markdown", ""))
	assert.Equal(t, "/index.md", out.Target)
}

func TestHandlePassesThrough(t *testing.T) {
	ctx := context.Background()
	n := newNegotiator(nil)

	assert.Equal(t, dispatch.Passthrough, n.Handle(ctx, request("/foo", "text/html", "")).Kind)
	assert.Equal(t, dispatch.Passthrough, n.Handle(ctx, request("/foo.md", "text/markdown", "")).Kind, "explicit .md is never negotiated")
	assert.Equal(t, dispatch.Passthrough, n.Handle(ctx, request("/foo", "text/markdown;q=oops", "")).Kind)

	post := request("/foo", "text/markdown", "")
	post.Method = "POST"
	assert.Equal(t, dispatch.Passthrough, n.Handle(ctx, post).Kind)

	rewritten := request("/foo", "text/markdown", "")
	rewritten.Rewritten = true
	assert.Equal(t, dispatch.Passthrough, n.Handle(ctx, rewritten).Kind)

	disabled := newNegotiator(func(md *config.MarkdownConfig) { md.EnableContentNegotiation = false })
	assert.Equal(t, dispatch.Passthrough, disabled.Handle(ctx, request("/foo", "text/markdown", "")).Kind)
	assert.Equal(t, dispatch.Passthrough, disabled.Handle(ctx, request("/foo", "", "format=md")).Kind)
}

func TestHandleQueryOverride(t *testing.T) {
	ctx := context.Background()
	n := newNegotiator(nil)

	out := n.Handle(ctx, request("/foo", "text/html", "format=markdown"))
	assert.Equal(t, dispatch.Rewrite, out.Kind)
	assert.Equal(t, "/foo.md", out.Target)

	out = n.Handle(ctx, request("/foo", "text/markdown", "format=html"))
	assert.Equal(t, dispatch.Passthrough, out.Kind)
}

func TestMarkdownPathCustomHomepage(t *testing.T) {
	md := config.DefaultMarkdownConfig()
	md.HomepagePattern = config.HomepageCustom
	md.HomepagePatternCustom = "about"
	snap := config.NewSnapshot("https://example.com", md)
	assert.Equal(t, "/about.md", MarkdownPath("/", snap))
	assert.Equal(t, "/docs/intro.md", MarkdownPath("/docs/intro", snap))
}
