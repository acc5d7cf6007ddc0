// Package content holds the documents md-hub serves: the Store contract, a
// SQLite-backed store built on bun, an in-memory store, and the Service that
// applies writes and announces every change to registered listeners.
package content

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// 文档状态。
const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
	StatusPrivate = "private"
)

// 正文格式。
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// FrontPagePath 是站点首页文档的规范路径。
const FrontPagePath = "/"

// ErrNotFound 表示文档不存在。
var ErrNotFound = errors.New("document not found")

// ErrInvalidDocument 表示文档字段不合法。
var ErrInvalidDocument = errors.New("invalid document")

// Document 是可编辑的内容单元。ModifiedAt 每次写入都严格递增，作为缓存版本号。
type Document struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Author      string    `json:"author,omitempty"`
	Format      string    `json:"format"`
	Body        string    `json:"body"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Version 返回源版本号（ModifiedAt 纳秒）。
func (d Document) Version() int64 {
	return d.ModifiedAt.UnixNano()
}

// Published 表示文档是否对外可见。
func (d Document) Published() bool {
	return d.Status == StatusPublish
}

// IsFrontPage 表示文档是否为站点首页。
func (d Document) IsFrontPage() bool {
	return d.Path == FrontPagePath
}

// ListOptions 过滤 List 结果；空值表示不过滤。结果按 ModifiedAt 倒序。
type ListOptions struct {
	Status string
	Types  []string
	Limit  int
}

// Store 是文档的持久化接口。
type Store interface {
	GetByID(ctx context.Context, id int64) (Document, error)
	GetByPath(ctx context.Context, path string) (Document, error)
	List(ctx context.Context, opts ListOptions) ([]Document, error)
	Insert(ctx context.Context, doc Document) (Document, error)
	Update(ctx context.Context, doc Document) (Document, error)
	Delete(ctx context.Context, id int64) error
}

// ChangeKind 描述内容变更类型。
type ChangeKind string

const (
	ChangeSaved   ChangeKind = "saved"
	ChangeEdited  ChangeKind = "edited"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent 在写入提交后同步派发；Document 为写入后的状态（删除时为删除前的状态）。
type ChangeEvent struct {
	Kind       ChangeKind
	DocumentID int64
	Document   Document
}

// NormalizePath 统一为以 / 开头、无末尾斜杠的 URL 路径，首页为 "/"。
func NormalizePath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return FrontPagePath
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "." {
		return FrontPagePath
	}
	return cleaned
}

func matchesOptions(doc Document, opts ListOptions) bool {
	if opts.Status != "" && doc.Status != opts.Status {
		return false
	}
	if len(opts.Types) == 0 {
		return true
	}
	for _, t := range opts.Types {
		if strings.EqualFold(t, doc.Type) {
			return true
		}
	}
	return false
}
