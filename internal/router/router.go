// Package router answers requests whose path ends in ".md" with the
// generated Markdown of the matching document. It is registered ahead of
// every other dispatch handler so a Markdown path never falls through to an
// HTML render attempt.
package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/dispatch"
	"github.com/any-hub/md-hub/internal/logging"
	"github.com/any-hub/md-hub/internal/markdown"
)

const (
	// HandlerName 是在处理链中的注册名。
	HandlerName = "markdown"
	// Priority 最先执行。
	Priority = 1
	// Pattern 标记 Markdown 请求。
	Pattern = `(.+)\.md$`

	ContentType       = "text/markdown; charset=utf-8"
	defaultMaxAge     = time.Hour
	markdownExtension = ".md"
)

// Documents 是路由解析文档所需的接口，content.Service 满足该接口。
type Documents interface {
	Resolve(ctx context.Context, path string) (content.Document, error)
	FrontPage(ctx context.Context) (content.Document, error)
	Permalink(doc content.Document) string
}

// Generator 返回文档当前版本的 Markdown，markdown.Manager 满足该接口。
type Generator interface {
	GetOrRender(ctx context.Context, id int64) (markdown.Result, error)
}

// Options 描述 Router 的依赖。
type Options struct {
	Documents Documents
	Markdown  Generator
	Settings  config.Source
	Logger    *logrus.Logger
	MaxAge    time.Duration
}

// Router 实现 dispatch.Handler。
type Router struct {
	docs     Documents
	markdown Generator
	settings config.Source
	logger   *logrus.Logger
	maxAge   time.Duration
}

// New 创建 Router。
func New(opts Options) (*Router, error) {
	if opts.Documents == nil || opts.Markdown == nil || opts.Settings == nil {
		return nil, errors.New("router requires documents, markdown generator and settings")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Router{
		docs:     opts.Documents,
		markdown: opts.Markdown,
		settings: opts.Settings,
		logger:   logger,
		maxAge:   maxAge,
	}, nil
}

// RegisterPatterns 在处理链中声明 .md 路径模式。
func (r *Router) RegisterPatterns(chain *dispatch.Chain) error {
	return chain.Register(dispatch.Registration{
		Name:     HandlerName,
		Priority: Priority,
		Pattern:  Pattern,
		Handler:  r,
	})
}

// Handle 解析 .md 路径并返回 Markdown；文档不存在或类型未启用时放行给宿主 404。
func (r *Router) Handle(ctx context.Context, req dispatch.Request) dispatch.Outcome {
	if !strings.HasSuffix(req.Path, markdownExtension) || !req.IsRead() {
		return dispatch.Pass()
	}
	snap := r.settings.Snapshot()

	doc, err := r.resolve(ctx, req, snap)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return dispatch.Pass()
		}
		r.logger.WithFields(logging.RequestFields(req.RequestID, req.Path, 0, "", "")).
			WithError(err).Error("document_lookup_failed")
		return textReply(http.StatusInternalServerError, "internal error\n")
	}
	if !doc.Published() || !snap.TypeEnabled(doc.Type) {
		return dispatch.Pass()
	}

	res, err := r.markdown.GetOrRender(ctx, doc.ID)
	if err != nil {
		fields := logging.RequestFields(req.RequestID, req.Path, doc.ID, doc.Type, "")
		fields["error_kind"] = markdown.Kind(err)
		switch {
		case errors.Is(err, content.ErrNotFound), errors.Is(err, markdown.ErrTypeDisabled):
			return dispatch.Pass()
		case errors.Is(err, markdown.ErrRenderFailed):
			r.logger.WithFields(fields).WithError(err).Warn("markdown_render_failed")
			return textReply(http.StatusInternalServerError, "markdown generation failed\n")
		default:
			r.logger.WithFields(fields).WithError(err).Error("markdown_unavailable")
			return textReply(http.StatusInternalServerError, "internal error\n")
		}
	}

	r.logger.WithFields(logging.RequestFields(req.RequestID, req.Path, doc.ID, doc.Type, res.Status)).Debug("markdown served")
	return r.respond(req, doc, res)
}

// resolve 先匹配首页文件名，再按去掉 .md 后的路径查找文档。
func (r *Router) resolve(ctx context.Context, req dispatch.Request, snap config.Snapshot) (content.Document, error) {
	name := strings.TrimPrefix(req.Path, "/")
	if !strings.Contains(name, "/") {
		homepage, err := snap.HomepageFilename()
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"action":     "homepage_pattern",
				"request_id": req.RequestID,
				"error_kind": markdown.Kind(err),
			}).WithError(err).Warn("homepage pattern invalid, using default")
		}
		if strings.EqualFold(name, homepage) {
			doc, err := r.docs.FrontPage(ctx)
			if err == nil || !errors.Is(err, content.ErrNotFound) {
				return doc, err
			}
		}
	}

	target := strings.TrimSuffix(req.Path, markdownExtension)
	if target == "" || target == "/" {
		return content.Document{}, content.ErrNotFound
	}
	return r.docs.Resolve(ctx, target)
}

func (r *Router) respond(req dispatch.Request, doc content.Document, res markdown.Result) dispatch.Outcome {
	etag := ETag(res.Text)
	headers := map[string]string{
		"Content-Type":      ContentType,
		"Cache-Control":     "public, max-age=" + strconv.Itoa(int(r.maxAge/time.Second)),
		"X-Cache-Status":    res.Status,
		"ETag":              etag,
		"Link":              "<" + r.docs.Permalink(doc) + `>; rel="canonical"`,
		"X-Markdown-Tokens": strconv.Itoa(len(res.Text) / 4),
		"Last-Modified":     doc.ModifiedAt.UTC().Format(http.TimeFormat),
	}
	if res.Tier != "" {
		headers["X-Cache-Tier"] = res.Tier
	}
	if req.Rewritten {
		headers["Vary"] = "Accept"
		headers["Content-Location"] = req.Path
	}

	if matchesETag(req.IfNoneMatch, etag) {
		delete(headers, "Content-Type")
		return dispatch.Reply(http.StatusNotModified, headers, nil)
	}
	if req.IsHead() {
		return dispatch.Reply(http.StatusOK, headers, nil)
	}
	return dispatch.Reply(http.StatusOK, headers, []byte(res.Text))
}

// ETag 返回 Markdown 文本的强校验值。
func ETag(text string) string {
	return `"` + strconv.FormatUint(xxhash.Sum64String(text), 16) + `"`
}

func matchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func textReply(status int, body string) dispatch.Outcome {
	return dispatch.Reply(status, map[string]string{"Content-Type": "text/plain; charset=utf-8"}, []byte(body))
}
