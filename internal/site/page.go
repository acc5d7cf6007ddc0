// Package site is the plain HTML page pipeline: it resolves a request path
// to a published document, renders its body into a minimal page and injects
// the Markdown discovery link into the head. It is the last handler in the
// dispatch chain and owns the 404 page.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/discovery"
	"github.com/any-hub/md-hub/internal/dispatch"
	"github.com/any-hub/md-hub/internal/logging"
	"github.com/any-hub/md-hub/internal/render"
)

const (
	// HandlerName 是在处理链中的注册名。
	HandlerName = "page"
	// Priority 最后执行。
	Priority = 100

	htmlContentType = "text/html; charset=utf-8"
)

// Documents 是页面渲染所需的文档接口，content.Service 满足该接口。
type Documents interface {
	Resolve(ctx context.Context, path string) (content.Document, error)
	FrontPage(ctx context.Context) (content.Document, error)
	Permalink(doc content.Document) string
}

// Handler 实现 dispatch.Handler。
type Handler struct {
	docs     Documents
	settings config.Source
	logger   *logrus.Logger
	md       goldmark.Markdown
	page     *template.Template
	notFound *template.Template
}

// New 创建页面处理器。
func New(docs Documents, settings config.Source, logger *logrus.Logger) (*Handler, error) {
	if docs == nil || settings == nil {
		return nil, errors.New("site handler requires documents and settings")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	page, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	notFound, err := template.New("not-found").Parse(notFoundTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse 404 template: %w", err)
	}
	return &Handler{
		docs:     docs,
		settings: settings,
		logger:   logger,
		md:       goldmark.New(),
		page:     page,
		notFound: notFound,
	}, nil
}

// Register 将页面处理器加入处理链。
func (h *Handler) Register(chain *dispatch.Chain) error {
	return chain.Register(dispatch.Registration{Name: HandlerName, Priority: Priority, Handler: h})
}

type pageData struct {
	Title     string
	Permalink string
	LinkTag   template.HTML
	Excerpt   string
	Author    string
	Published string
	Body      template.HTML
}

// Handle 渲染 HTML 页面；改写而来的请求一律放行，交回原请求继续处理。
func (h *Handler) Handle(ctx context.Context, req dispatch.Request) dispatch.Outcome {
	if req.Rewritten || !req.IsRead() {
		return dispatch.Pass()
	}
	snap := h.settings.Snapshot()

	doc, err := h.lookup(ctx, req.Path)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			h.logger.WithFields(logging.RequestFields(req.RequestID, req.Path, 0, "", "")).
				WithError(err).Error("page_lookup_failed")
		}
		return h.renderNotFound(req, snap)
	}
	if !doc.Published() {
		return h.renderNotFound(req, snap)
	}

	body, err := h.bodyHTML(doc)
	if err != nil {
		h.logger.WithFields(logging.RequestFields(req.RequestID, req.Path, doc.ID, doc.Type, "")).
			WithError(err).Error("page_render_failed")
		return dispatch.Reply(http.StatusInternalServerError, map[string]string{"Content-Type": "text/plain; charset=utf-8"}, []byte("internal error\n"))
	}

	data := pageData{
		Title:     doc.Title,
		Permalink: h.docs.Permalink(doc),
		Excerpt:   doc.Excerpt,
		Author:    doc.Author,
		Body:      template.HTML(body),
	}
	if !doc.PublishedAt.IsZero() {
		data.Published = doc.PublishedAt.UTC().Format("January 2, 2006")
	}
	if tag, ok := discovery.LinkTagFor(discovery.Target{
		Homepage:  doc.IsFrontPage(),
		Permalink: data.Permalink,
		Type:      doc.Type,
	}, snap); ok {
		data.LinkTag = template.HTML(tag)
	}

	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		h.logger.WithFields(logging.RequestFields(req.RequestID, req.Path, doc.ID, doc.Type, "")).
			WithError(err).Error("page_render_failed")
		return dispatch.Reply(http.StatusInternalServerError, map[string]string{"Content-Type": "text/plain; charset=utf-8"}, []byte("internal error\n"))
	}
	return h.reply(req, snap, http.StatusOK, buf.Bytes())
}

func (h *Handler) lookup(ctx context.Context, path string) (content.Document, error) {
	if strings.TrimRight(path, "/") == "" {
		return h.docs.FrontPage(ctx)
	}
	return h.docs.Resolve(ctx, path)
}

// bodyHTML 将正文转换为安全的 HTML 片段；Markdown 正文先经 goldmark 渲染。
func (h *Handler) bodyHTML(doc content.Document) (string, error) {
	if doc.Format != content.FormatMarkdown {
		return render.SanitizeHTML(doc.Body), nil
	}
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(doc.Body), &buf); err != nil {
		return "", fmt.Errorf("convert markdown body: %w", err)
	}
	return render.SanitizeHTML(buf.String()), nil
}

func (h *Handler) renderNotFound(req dispatch.Request, snap config.Snapshot) dispatch.Outcome {
	var buf bytes.Buffer
	if err := h.notFound.Execute(&buf, struct{ Path string }{Path: req.Path}); err != nil {
		return dispatch.Reply(http.StatusNotFound, map[string]string{"Content-Type": "text/plain; charset=utf-8"}, []byte("not found\n"))
	}
	return h.reply(req, snap, http.StatusNotFound, buf.Bytes())
}

func (h *Handler) reply(req dispatch.Request, snap config.Snapshot, status int, body []byte) dispatch.Outcome {
	headers := map[string]string{"Content-Type": htmlContentType}
	if snap.EnableContentNegotiation {
		headers["Vary"] = "Accept"
	}
	if req.IsHead() {
		body = nil
	}
	return dispatch.Reply(status, headers, body)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="canonical" href="{{.Permalink}}" />
{{- if .LinkTag}}
{{.LinkTag}}
{{- end}}
</head>
<body>
<article>
<h1>{{.Title}}</h1>
{{- if .Published}}
<p class="meta">Published {{.Published}}{{if .Author}} by {{.Author}}{{end}}</p>
{{- end}}
{{- if .Excerpt}}
<p class="excerpt">{{.Excerpt}}</p>
{{- end}}
{{.Body}}
</article>
</body>
</html>
`

const notFoundTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Not Found</title>
</head>
<body>
<h1>Not Found</h1>
<p>No page exists at {{.Path}}.</p>
</body>
</html>
`
