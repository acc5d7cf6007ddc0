package content

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Listener 接收内容变更事件。监听器在写入方的调用栈中同步执行，按注册顺序调用。
type Listener func(ctx context.Context, evt ChangeEvent)

// Service 负责文档写入规则（路径规范化、ModifiedAt 单调递增）并派发变更事件。
type Service struct {
	store   Store
	siteURL string
	now     func() time.Time

	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewService 包装 Store；siteURL 用于生成 permalink。
func NewService(store Store, siteURL string) *Service {
	return &Service{
		store:   store,
		siteURL: strings.TrimRight(siteURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe 注册监听器。
func (s *Service) Subscribe(l Listener) {
	if l == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

// Get 按 ID 读取文档。
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.store.GetByID(ctx, id)
}

// Resolve 将请求路径解析为文档，末尾斜杠与重复分隔符不影响结果。
func (s *Service) Resolve(ctx context.Context, rawPath string) (Document, error) {
	return s.store.GetByPath(ctx, NormalizePath(rawPath))
}

// FrontPage 返回首页文档（路径为 "/"）。
func (s *Service) FrontPage(ctx context.Context) (Document, error) {
	return s.store.GetByPath(ctx, FrontPagePath)
}

// List 透传查询。
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Document, error) {
	return s.store.List(ctx, opts)
}

// Permalink 返回文档的规范 URL。
func (s *Service) Permalink(doc Document) string {
	return s.siteURL + doc.Path
}

// SiteURL 返回站点根地址（无末尾斜杠）。
func (s *Service) SiteURL() string {
	return s.siteURL
}

// Create 新建文档并派发 saved 事件。
func (s *Service) Create(ctx context.Context, doc Document) (Document, error) {
	if err := normalizeDocument(&doc); err != nil {
		return Document{}, err
	}

	s.writeMu.Lock()
	now := s.now()
	doc.ModifiedAt = now
	if doc.PublishedAt.IsZero() && doc.Published() {
		doc.PublishedAt = now
	}
	stored, err := s.store.Insert(ctx, doc)
	s.writeMu.Unlock()
	if err != nil {
		return Document{}, err
	}

	s.emit(ctx, ChangeEvent{Kind: ChangeSaved, DocumentID: stored.ID, Document: stored})
	return stored, nil
}

// Update 覆盖文档字段并派发 edited 事件。ModifiedAt 由服务端生成，保证严格递增。
func (s *Service) Update(ctx context.Context, id int64, doc Document) (Document, error) {
	if err := normalizeDocument(&doc); err != nil {
		return Document{}, err
	}

	s.writeMu.Lock()
	previous, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.writeMu.Unlock()
		return Document{}, err
	}
	doc.ID = id
	doc.ModifiedAt = nextModified(s.now(), previous.ModifiedAt)
	if doc.PublishedAt.IsZero() {
		doc.PublishedAt = previous.PublishedAt
	}
	if doc.PublishedAt.IsZero() && doc.Published() {
		doc.PublishedAt = doc.ModifiedAt
	}
	stored, err := s.store.Update(ctx, doc)
	s.writeMu.Unlock()
	if err != nil {
		return Document{}, err
	}

	s.emit(ctx, ChangeEvent{Kind: ChangeEdited, DocumentID: stored.ID, Document: stored})
	return stored, nil
}

// Delete 删除文档并派发 deleted 事件。
func (s *Service) Delete(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	previous, err := s.store.GetByID(ctx, id)
	if err == nil {
		err = s.store.Delete(ctx, id)
	}
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	s.emit(ctx, ChangeEvent{Kind: ChangeDeleted, DocumentID: id, Document: previous})
	return nil
}

func (s *Service) emit(ctx context.Context, evt ChangeEvent) {
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ctx, evt)
	}
}

func nextModified(now, previous time.Time) time.Time {
	if !now.After(previous) {
		return previous.Add(time.Nanosecond)
	}
	return now
}

func normalizeDocument(doc *Document) error {
	doc.Type = strings.ToLower(strings.TrimSpace(doc.Type))
	if doc.Type == "" {
		return fmt.Errorf("%w: type required", ErrInvalidDocument)
	}
	doc.Path = NormalizePath(doc.Path)
	if strings.HasSuffix(strings.ToLower(doc.Path), ".md") {
		return fmt.Errorf("%w: path must not end with .md", ErrInvalidDocument)
	}

	doc.Status = strings.ToLower(strings.TrimSpace(doc.Status))
	switch doc.Status {
	case "":
		doc.Status = StatusPublish
	case StatusPublish, StatusDraft, StatusPrivate:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDocument, doc.Status)
	}

	doc.Format = strings.ToLower(strings.TrimSpace(doc.Format))
	switch doc.Format {
	case "":
		doc.Format = FormatHTML
	case FormatHTML, FormatMarkdown:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidDocument, doc.Format)
	}

	doc.Title = strings.TrimSpace(doc.Title)
	return nil
}
