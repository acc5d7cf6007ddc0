package router

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/md-hub/internal/cache"
	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/dispatch"
	"github.com/any-hub/md-hub/internal/markdown"
	"github.com/any-hub/md-hub/internal/negotiate"
	"github.com/any-hub/md-hub/internal/render"
)

type harness struct {
	svc      *content.Service
	mgr      *markdown.Manager
	router   *Router
	settings *config.Settings
	renders  atomic.Int64
	fail     atomic.Bool
}

func newHarness(t *testing.T, mutate func(*config.MarkdownConfig)) *harness {
	t.Helper()
	md := config.DefaultMarkdownConfig()
	if mutate != nil {
		mutate(&md)
	}
	h := &harness{
		svc:      content.NewService(content.NewMemoryStore(), "https://example.com"),
		settings: config.NewSettings(config.NewSnapshot("https://example.com", md)),
	}
	mgr, err := markdown.NewManager(markdown.Options{
		Documents: h.svc,
		Cache:     cache.NewTiered(cache.NewMemoryTier(0)),
		Renderer: render.Func(func(_ context.Context, doc content.Document, permalink string) (string, error) {
			h.renders.Add(1)
			if h.fail.Load() {
				return "", errors.New("converter down")
			}
			return "# " + doc.Title + "\n\n" + doc.Body + "\n\n" + permalink + "\n", nil
		}),
		Settings: h.settings,
	})
	require.NoError(t, err)
	h.mgr = mgr
	h.svc.Subscribe(mgr.HandleChange)

	r, err := New(Options{Documents: h.svc, Markdown: mgr, Settings: h.settings, MaxAge: 10 * time.Minute})
	require.NoError(t, err)
	h.router = r
	return h
}

func (h *harness) create(t *testing.T, doc content.Document) content.Document {
	t.Helper()
	created, err := h.svc.Create(context.Background(), doc)
	require.NoError(t, err)
	return created
}

func get(path string) dispatch.Request {
	return dispatch.Request{Method: "GET", Path: path}
}

func TestHandleServesMarkdown(t *testing.T) {
	h := newHarness(t, func(md *config.MarkdownConfig) { md.EnablePreGeneration = false })
	h.create(t, content.Document{Type: "post", Path: "/hello", Title: "Hello", Body: "world"})

	out := h.router.Handle(context.Background(), get("/hello.md"))
	require.Equal(t, dispatch.Respond, out.Kind)
	resp := out.Response
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "# Hello\n\nworld\n\nhttps://example.com/hello\n", string(resp.Body))
	assert.Equal(t, ContentType, resp.Headers["Content-Type"])
	assert.Equal(t, "public, max-age=600", resp.Headers["Cache-Control"])
	assert.Equal(t, markdown.StatusMiss, resp.Headers["X-Cache-Status"])
	assert.Equal(t, `<https://example.com/hello>; rel="canonical"`, resp.Headers["Link"])
	assert.Equal(t, ETag(string(resp.Body)), resp.Headers["ETag"])
	assert.NotEmpty(t, resp.Headers["X-Markdown-Tokens"])
	assert.NotContains(t, resp.Headers, "Vary")

	out = h.router.Handle(context.Background(), get("/hello.md"))
	assert.Equal(t, markdown.StatusHit, out.Response.Headers["X-Cache-Status"])
	assert.Equal(t, "memory", out.Response.Headers["X-Cache-Tier"])
	assert.EqualValues(t, 1, h.renders.Load())
}

func TestHandlePassthroughCases(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.create(t, content.Document{Type: "product", Path: "/shoe", Title: "Shoe"})
	h.create(t, content.Document{Type: "post", Path: "/draft", Status: content.StatusDraft})

	for _, path := range []string{"/missing.md", "/shoe.md", "/draft.md", "/hello", "/index.md"} {
		out := h.router.Handle(ctx, get(path))
		assert.Equal(t, dispatch.Passthrough, out.Kind, path)
	}
	assert.Zero(t, h.renders.Load())
	assert.Equal(t, 0, h.mgr.Stats(ctx).Entries["memory"], "disabled types never produce entries")

	post := get("/shoe.md")
	post.Method = "POST"
	assert.Equal(t, dispatch.Passthrough, h.router.Handle(ctx, post).Kind)
}

func TestHandleHomepagePatterns(t *testing.T) {
	h := newHarness(t, func(md *config.MarkdownConfig) {
		md.HomepagePattern = config.HomepageCustom
		md.HomepagePatternCustom = "about"
	})
	h.create(t, content.Document{Type: "page", Path: "/", Title: "Welcome"})

	out := h.router.Handle(context.Background(), get("/about.md"))
	require.Equal(t, dispatch.Respond, out.Kind)
	assert.Contains(t, string(out.Response.Body), "# Welcome")

	assert.Equal(t, dispatch.Passthrough, h.router.Handle(context.Background(), get("/index.md")).Kind)

	_, err := h.settings.Replace(config.MarkdownConfig{
		EnabledTypes:    []string{"page"},
		HomepagePattern: "bogus",
	})
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
	out = h.router.Handle(context.Background(), get("/index.md"))
	require.Equal(t, dispatch.Respond, out.Kind, "invalid pattern falls back to index.md")
}

func TestHandleRenderFailure(t *testing.T) {
	h := newHarness(t, func(md *config.MarkdownConfig) { md.EnablePreGeneration = false })
	h.create(t, content.Document{Type: "post", Path: "/broken", Title: "Broken"})
	h.fail.Store(true)

	out := h.router.Handle(context.Background(), get("/broken.md"))
	require.Equal(t, dispatch.Respond, out.Kind)
	assert.Equal(t, http.StatusInternalServerError, out.Response.Status)
	assert.Equal(t, 0, h.mgr.Stats(context.Background()).Entries["memory"])
}

func TestHandleConditionalAndHead(t *testing.T) {
	h := newHarness(t, nil)
	h.create(t, content.Document{Type: "post", Path: "/c", Title: "C"})

	first := h.router.Handle(context.Background(), get("/c.md"))
	etag := first.Response.Headers["ETag"]
	require.NotEmpty(t, etag)

	cond := get("/c.md")
	cond.IfNoneMatch = `"other", ` + etag
	out := h.router.Handle(context.Background(), cond)
	assert.Equal(t, http.StatusNotModified, out.Response.Status)
	assert.Empty(t, out.Response.Body)

	head := get("/c.md")
	head.Method = "HEAD"
	out = h.router.Handle(context.Background(), head)
	assert.Equal(t, http.StatusOK, out.Response.Status)
	assert.Empty(t, out.Response.Body)
	assert.Equal(t, ContentType, out.Response.Headers["Content-Type"])
}

func TestNegotiatedRequestMatchesSuffixRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.create(t, content.Document{Type: "page", Path: "/foo", Title: "Foo", Body: "bar"})

	chain := dispatch.NewChain(nil)
	require.NoError(t, h.router.RegisterPatterns(chain))
	require.NoError(t, negotiate.New(h.settings, nil).Register(chain))
	chain.MustRegister(dispatch.Registration{Name: "page", Priority: 100, Handler: dispatch.HandlerFunc(func(context.Context, dispatch.Request) dispatch.Outcome {
		return dispatch.Reply(http.StatusOK, map[string]string{"Content-Type": "text/html"}, []byte("<html></html>"))
	})})

	ctx := context.Background()
	direct := chain.Dispatch(ctx, dispatch.Request{Method: "GET", Path: "/foo.md", Accept: "text/html"})
	negotiated := chain.Dispatch(ctx, dispatch.Request{Method: "GET", Path: "/foo", Accept: "text/markdown"})
	plain := chain.Dispatch(ctx, dispatch.Request{Method: "GET", Path: "/foo", Accept: "text/html"})

	assert.Equal(t, ContentType, direct.Response.Headers["Content-Type"], "/foo.md ignores Accept")
	assert.Equal(t, direct.Response.Body, negotiated.Response.Body)
	assert.Equal(t, "Accept", negotiated.Response.Headers["Vary"])
	assert.Equal(t, "/foo.md", negotiated.Response.Headers["Content-Location"])
	assert.Equal(t, "<html></html>", string(plain.Response.Body))

	_, err := h.settings.Replace(config.MarkdownConfig{
		EnabledTypes:             []string{"post", "page"},
		HomepagePattern:          config.HomepageIndex,
		EnableContentNegotiation: false,
	})
	require.NoError(t, err)
	off := chain.Dispatch(ctx, dispatch.Request{Method: "GET", Path: "/foo", Accept: "text/markdown"})
	assert.Equal(t, "<html></html>", string(off.Response.Body))
}

func TestSaveEditScenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	doc := h.create(t, content.Document{Type: "page", Path: "/page-path", Title: "Page", Body: "first"})
	require.EqualValues(t, 1, h.renders.Load(), "save pre-generates")

	out := h.router.Handle(ctx, get("/page-path.md"))
	require.Equal(t, http.StatusOK, out.Response.Status)
	assert.Equal(t, markdown.StatusHit, out.Response.Headers["X-Cache-Status"])
	assert.EqualValues(t, 1, h.renders.Load(), "served from cache")

	_, err := h.settings.Replace(disablePregen(h.settings.Snapshot()))
	require.NoError(t, err)
	_, err = h.svc.Update(ctx, doc.ID, content.Document{Type: "page", Path: "/page-path", Title: "Page", Body: "second"})
	require.NoError(t, err)
	assert.Equal(t, 0, h.mgr.Stats(ctx).Entries["memory"], "edit invalidates")

	out = h.router.Handle(ctx, get("/page-path.md"))
	assert.Equal(t, markdown.StatusMiss, out.Response.Headers["X-Cache-Status"])
	assert.Contains(t, string(out.Response.Body), "second")
	assert.EqualValues(t, 2, h.renders.Load())
}

func disablePregen(snap config.Snapshot) config.MarkdownConfig {
	md := snap.Markdown()
	md.EnablePreGeneration = false
	return md
}
