// Package negotiate decides whether a plain page request should be answered
// with Markdown instead of HTML. It never answers a request itself: when
// Markdown is preferred it rewrites the request to the matching .md path and
// lets the dispatch chain hand it to the Markdown router.
package negotiate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/munnerz/goautoneg"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/dispatch"
)

// HandlerName 是在处理链中的注册名。
const HandlerName = "negotiate"

// Priority 位于 Markdown 路由之后、页面渲染之前。
const Priority = 5

// FormatParam 是强制指定响应格式的查询参数。
const FormatParam = "format"

var markdownTypes = []string{"text/markdown", "text/x-markdown"}

// ErrMalformedAccept 表示 Accept 头无法可靠解析。
var ErrMalformedAccept = errors.New("malformed accept header")

// Negotiator 实现 dispatch.Handler。
type Negotiator struct {
	settings config.Source
	logger   *logrus.Logger
}

// New 创建 Negotiator。
func New(settings config.Source, logger *logrus.Logger) *Negotiator {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Negotiator{settings: settings, logger: logger}
}

// Register 将协商处理器加入处理链。
func (n *Negotiator) Register(chain *dispatch.Chain) error {
	return chain.Register(dispatch.Registration{Name: HandlerName, Priority: Priority, Handler: n})
}

// Handle 在客户端偏好 Markdown 时返回 Rewrite，否则放行。
func (n *Negotiator) Handle(_ context.Context, req dispatch.Request) dispatch.Outcome {
	if req.Rewritten || !req.IsRead() || strings.HasSuffix(strings.ToLower(req.Path), ".md") {
		return dispatch.Pass()
	}
	snap := n.settings.Snapshot()
	if !snap.EnableContentNegotiation {
		return dispatch.Pass()
	}

	switch strings.ToLower(strings.TrimSpace(req.Query.Get(FormatParam))) {
	case "markdown", "md":
		return n.rewrite(req, snap)
	case "html":
		return dispatch.Pass()
	}

	prefers, err := PrefersMarkdown(req.Accept)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"action":     "negotiate",
			"request_id": req.RequestID,
			"path":       req.Path,
			"accept":     req.Accept,
		}).WithError(err).Debug("accept header ignored")
		return dispatch.Pass()
	}
	if !prefers {
		return dispatch.Pass()
	}
	return n.rewrite(req, snap)
}

func (n *Negotiator) rewrite(req dispatch.Request, snap config.Snapshot) dispatch.Outcome {
	return dispatch.RewriteTo(MarkdownPath(req.Path, snap))
}

// MarkdownPath 返回页面路径对应的 .md 路径，首页按首页文件名配置。
func MarkdownPath(path string, snap config.Snapshot) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		name, _ := snap.HomepageFilename()
		return "/" + name
	}
	return trimmed + ".md"
}

// PrefersMarkdown 判断 Accept 头是否更偏好 Markdown。
// q 值相同时只有 Markdown 为精确匹配且 HTML 仅由通配符匹配才算偏好。
func PrefersMarkdown(header string) (bool, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return false, nil
	}
	if err := validate(header); err != nil {
		return false, err
	}

	ranges := goautoneg.ParseAccept(header)
	if len(ranges) == 0 {
		return false, ErrMalformedAccept
	}

	var md match
	for _, mt := range markdownTypes {
		if m := bestMatch(ranges, mt); m.better(md) {
			md = m
		}
	}
	html := bestMatch(ranges, "text/html")

	if md.q <= 0 {
		return false, nil
	}
	if md.q != html.q {
		return md.q > html.q, nil
	}
	return md.specificity > html.specificity, nil
}

type match struct {
	q           float64
	specificity int
	found       bool
}

func (m match) better(other match) bool {
	if !other.found {
		return m.found
	}
	if m.q != other.q {
		return m.q > other.q
	}
	return m.specificity > other.specificity
}

// bestMatch 按 RFC 9110 取最具体的匹配范围的 q 值。
func bestMatch(ranges []goautoneg.Accept, mediaType string) match {
	typ, sub, _ := strings.Cut(mediaType, "/")
	best := match{specificity: -1}
	for _, r := range ranges {
		spec := -1
		switch {
		case strings.EqualFold(r.Type, typ) && strings.EqualFold(r.SubType, sub):
			spec = 2
		case strings.EqualFold(r.Type, typ) && r.SubType == "*":
			spec = 1
		case r.Type == "*" && r.SubType == "*":
			spec = 0
		}
		if spec > best.specificity {
			best = match{q: r.Q, specificity: spec, found: true}
		}
	}
	if !best.found {
		return match{}
	}
	return best
}

// validate 拒绝 goautoneg 会静默容忍的输入：缺少子类型、非法 q 值、同一类型给出互相矛盾的 q。
func validate(header string) error {
	seen := make(map[string]float64)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		params := strings.Split(part, ";")
		mediaRange := strings.ToLower(strings.TrimSpace(params[0]))
		typ, sub, ok := strings.Cut(mediaRange, "/")
		if mediaRange != "*" && (!ok || strings.TrimSpace(typ) == "" || strings.TrimSpace(sub) == "") {
			return fmt.Errorf("%w: media range %q", ErrMalformedAccept, mediaRange)
		}

		q := 1.0
		for _, param := range params[1:] {
			key, value, _ := strings.Cut(param, "=")
			if strings.TrimSpace(strings.ToLower(key)) != "q" {
				continue
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || parsed < 0 || parsed > 1 {
				return fmt.Errorf("%w: q=%q", ErrMalformedAccept, value)
			}
			q = parsed
		}

		if prev, dup := seen[mediaRange]; dup && prev != q {
			return fmt.Errorf("%w: conflicting q for %s", ErrMalformedAccept, mediaRange)
		}
		seen[mediaRange] = q
	}
	return nil
}
