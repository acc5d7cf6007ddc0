// Package markdown owns the lifecycle of generated Markdown: on-demand
// rendering with a per-version cache, invalidation on content change, and
// background pre-generation. A cached entry is only ever served when its
// source version equals the document's current version.
package markdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/md-hub/internal/cache"
	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/logging"
	"github.com/any-hub/md-hub/internal/render"
)

// 缓存状态，写入 X-Cache-Status 响应头。
const (
	StatusHit  = "HIT"
	StatusMiss = "MISS"
)

const defaultRenderTimeout = 10 * time.Second

// DocumentSource 是 Manager 读取文档所需的最小接口，content.Service 满足该接口。
type DocumentSource interface {
	Get(ctx context.Context, id int64) (content.Document, error)
	List(ctx context.Context, opts content.ListOptions) ([]content.Document, error)
	Permalink(doc content.Document) string
}

// Options 描述 Manager 的依赖。
type Options struct {
	Documents     DocumentSource
	Cache         *cache.Tiered
	Renderer      render.Renderer
	Settings      config.Source
	Logger        *logrus.Logger
	Meter         metric.Meter
	RenderTimeout time.Duration
}

// Result 是一次 GetOrRender 的结果。
type Result struct {
	Text        string
	Status      string
	Tier        string
	Version     int64
	GeneratedAt time.Time
	Document    content.Document
}

// Manager 协调文档、缓存层与渲染器。
type Manager struct {
	docs          DocumentSource
	cache         *cache.Tiered
	renderer      render.Renderer
	settings      config.Source
	logger        *logrus.Logger
	renderTimeout time.Duration
	now           func() time.Time

	flights singleflight.Group
	stats   *counters
	metrics *cacheMetrics
	queue   *Pregenerator
}

// NewManager 校验依赖并创建 Manager。
func NewManager(opts Options) (*Manager, error) {
	if opts.Documents == nil || opts.Cache == nil || opts.Renderer == nil || opts.Settings == nil {
		return nil, errors.New("markdown manager requires documents, cache, renderer and settings")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	timeout := opts.RenderTimeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	metrics, err := newCacheMetrics(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("register cache metrics: %w", err)
	}

	return &Manager{
		docs:          opts.Documents,
		cache:         opts.Cache,
		renderer:      opts.Renderer,
		settings:      opts.Settings,
		logger:        logger,
		renderTimeout: timeout,
		now:           func() time.Time { return time.Now().UTC() },
		stats:         newCounters(),
		metrics:       metrics,
	}, nil
}

// UseQueue 让 HandleChange 把预生成交给后台队列；未设置时在调用方协程内同步执行。
func (m *Manager) UseQueue(q *Pregenerator) {
	m.queue = q
}

// GetOrRender 返回文档当前版本的 Markdown，未命中时渲染并写入缓存。
func (m *Manager) GetOrRender(ctx context.Context, id int64) (Result, error) {
	doc, err := m.visibleDocument(ctx, id)
	if err != nil {
		return Result{}, err
	}

	if res, ok := m.lookup(ctx, doc); ok {
		return res, nil
	}

	m.stats.misses.Add(1)
	m.metrics.misses.Add(ctx, 1)

	entry, err := m.renderShared(ctx, doc, "request")
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text:        entry.Text,
		Status:      StatusMiss,
		Version:     entry.SourceVersion,
		GeneratedAt: entry.GeneratedAt,
		Document:    doc,
	}, nil
}

// Invalidate 删除文档在所有缓存层中的全部版本。重复调用或无缓存时均无副作用。
func (m *Manager) Invalidate(ctx context.Context, id int64) error {
	m.stats.invalidations.Add(1)
	m.metrics.invalidations.Add(ctx, 1)
	if err := m.cache.RemoveDocument(ctx, id); err != nil {
		return fmt.Errorf("invalidate document %d: %w", id, err)
	}
	m.logger.WithFields(logging.DocumentFields("cache_invalidate", id)).Debug("markdown cache invalidated")
	return nil
}

// PreGenerate 在开关允许时为已发布且类型启用的文档生成并缓存当前版本；条件不满足时直接返回 nil。
func (m *Manager) PreGenerate(ctx context.Context, id int64) error {
	_, err := m.preGenerate(ctx, id)
	return err
}

func (m *Manager) preGenerate(ctx context.Context, id int64) (bool, error) {
	snap := m.settings.Snapshot()
	if !snap.EnablePreGeneration {
		return false, nil
	}
	doc, err := m.docs.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !doc.Published() || !snap.TypeEnabled(doc.Type) {
		return false, nil
	}
	if m.hasFresh(ctx, doc) {
		return false, nil
	}
	if _, err := m.renderShared(ctx, doc, "pregenerate"); err != nil {
		return false, err
	}
	m.stats.preGenerated.Add(1)
	return true, nil
}

// HandleChange 处理内容变更：先同步失效，再（非删除事件）安排预生成。
// 预生成失败只记录日志，不影响写入方。
func (m *Manager) HandleChange(ctx context.Context, evt content.ChangeEvent) {
	fields := logging.DocumentFields("content_change", evt.DocumentID)
	fields["kind"] = string(evt.Kind)

	if err := m.Invalidate(ctx, evt.DocumentID); err != nil {
		m.logger.WithFields(fields).WithError(err).Warn("invalidate_failed")
	}
	if evt.Kind == content.ChangeDeleted {
		return
	}
	if !m.settings.Snapshot().EnablePreGeneration {
		return
	}

	if m.queue != nil {
		if !m.queue.Enqueue(evt.DocumentID) {
			m.logger.WithFields(fields).Warn("pregenerate_queue_full")
		}
		return
	}
	if err := m.PreGenerate(context.WithoutCancel(ctx), evt.DocumentID); err != nil {
		fields["error_kind"] = Kind(err)
		m.logger.WithFields(fields).WithError(err).Warn("pregenerate_failed")
	}
}

// Regenerate 丢弃已有缓存并立即重新渲染。
func (m *Manager) Regenerate(ctx context.Context, id int64) (Result, error) {
	if err := m.Invalidate(ctx, id); err != nil {
		return Result{}, err
	}
	return m.GetOrRender(ctx, id)
}

// BatchInvalidate 逐个失效，返回所有失败的合并错误。
func (m *Manager) BatchInvalidate(ctx context.Context, ids []int64) error {
	var errs []error
	for _, id := range ids {
		if err := m.Invalidate(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearAll 清空所有缓存层。
func (m *Manager) ClearAll(ctx context.Context) error {
	if err := m.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear markdown cache: %w", err)
	}
	m.logger.WithField("action", "cache_clear").Info("markdown cache cleared")
	return nil
}

// WarmReport 汇总一次预热。
type WarmReport struct {
	Scanned   int `json:"scanned"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
}

const warmConcurrency = 4

// Warm 为最近更新、尚无新鲜缓存的已发布文档预生成 Markdown，最多生成 limit 篇。
func (m *Manager) Warm(ctx context.Context, limit int) (WarmReport, error) {
	var report WarmReport
	snap := m.settings.Snapshot()
	if limit <= 0 || len(snap.EnabledTypes) == 0 {
		return report, nil
	}

	docs, err := m.docs.List(ctx, content.ListOptions{Status: content.StatusPublish, Types: snap.EnabledTypes})
	if err != nil {
		return report, fmt.Errorf("list documents: %w", err)
	}

	var pending []content.Document
	for _, doc := range docs {
		report.Scanned++
		if !m.hasFresh(ctx, doc) {
			pending = append(pending, doc)
		}
		if len(pending) >= limit {
			break
		}
	}

	results := make([]error, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for i, doc := range pending {
		g.Go(func() error {
			_, results[i] = m.renderShared(gctx, doc, "warm")
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		if err != nil {
			report.Failed++
			m.logger.WithFields(logging.DocumentFields("cache_warm", pending[i].ID)).WithError(err).Warn("warm_failed")
			continue
		}
		report.Generated++
	}
	return report, ctx.Err()
}

// Stats 返回统计快照及各层条目数。
func (m *Manager) Stats(ctx context.Context) Stats {
	s := m.stats.snapshot()
	s.Entries = m.cache.Sizes(ctx)
	return s
}

// visibleDocument 读取文档并应用可见性与类型过滤。
func (m *Manager) visibleDocument(ctx context.Context, id int64) (content.Document, error) {
	doc, err := m.docs.Get(ctx, id)
	if err != nil {
		return content.Document{}, err
	}
	if !doc.Published() {
		return content.Document{}, fmt.Errorf("document %d is %s: %w", id, doc.Status, content.ErrNotFound)
	}
	if !m.settings.Snapshot().TypeEnabled(doc.Type) {
		return content.Document{}, fmt.Errorf("document %d type %s: %w", id, doc.Type, ErrTypeDisabled)
	}
	return doc, nil
}

func (m *Manager) lookup(ctx context.Context, doc content.Document) (Result, bool) {
	entry, tier, err := m.cache.Get(ctx, cache.Key{DocumentID: doc.ID, Version: doc.Version()})
	if err != nil || entry.SourceVersion != doc.Version() {
		return Result{}, false
	}
	m.stats.hit(tier)
	m.metrics.hit(ctx, tier)
	return Result{
		Text:        entry.Text,
		Status:      StatusHit,
		Tier:        tier,
		Version:     entry.SourceVersion,
		GeneratedAt: entry.GeneratedAt,
		Document:    doc,
	}, true
}

func (m *Manager) hasFresh(ctx context.Context, doc content.Document) bool {
	entry, _, err := m.cache.Get(ctx, cache.Key{DocumentID: doc.ID, Version: doc.Version()})
	return err == nil && entry.SourceVersion == doc.Version()
}

// renderShared 以 (文档, 版本) 为键合并并发渲染。
func (m *Manager) renderShared(ctx context.Context, doc content.Document, trigger string) (cache.Entry, error) {
	key := cache.Key{DocumentID: doc.ID, Version: doc.Version()}
	v, err, _ := m.flights.Do(key.String(), func() (interface{}, error) {
		return m.renderAndStore(ctx, doc, trigger)
	})
	if err != nil {
		return cache.Entry{}, err
	}
	return v.(cache.Entry), nil
}

func (m *Manager) renderAndStore(ctx context.Context, doc content.Document, trigger string) (cache.Entry, error) {
	// 合并后的渲染不能因首个调用方断开而中止。
	renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.renderTimeout)
	defer cancel()

	m.stats.renders.Add(1)
	started := time.Now()
	text, err := m.render(renderCtx, doc)
	m.metrics.rendered(renderCtx, trigger, time.Since(started), err)
	if err != nil {
		m.stats.renderFailures.Add(1)
		fields := logging.DocumentFields("render", doc.ID)
		fields["trigger"] = trigger
		m.logger.WithFields(fields).WithError(err).Warn("render_failed")
		return cache.Entry{}, fmt.Errorf("%w: document %d: %v", ErrRenderFailed, doc.ID, err)
	}

	entry := cache.Entry{
		DocumentID:    doc.ID,
		SourceVersion: doc.Version(),
		GeneratedAt:   m.now(),
		Text:          text,
	}

	// 渲染期间文档可能已被修改或删除；旧版本结果仍返回给本次调用方，但不落缓存。
	current, err := m.docs.Get(renderCtx, doc.ID)
	if err != nil || current.Version() != doc.Version() {
		m.logger.WithFields(logging.DocumentFields("render", doc.ID)).Debug("source changed during render, skip cache write")
		return entry, nil
	}

	if err := m.cache.Put(renderCtx, entry); err != nil {
		m.logger.WithFields(logging.DocumentFields("cache_write", doc.ID)).WithError(err).Warn("cache_write_failed")
		return entry, nil
	}
	m.stats.writes.Add(1)
	m.metrics.writes.Add(renderCtx, 1)
	return entry, nil
}

type renderOutcome struct {
	text string
	err  error
}

// render 在超时后立即返回；渲染协程结束后其结果被丢弃。
func (m *Manager) render(ctx context.Context, doc content.Document) (string, error) {
	done := make(chan renderOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- renderOutcome{err: fmt.Errorf("renderer panic: %v", r)}
			}
		}()
		text, err := m.renderer.Render(ctx, doc, m.docs.Permalink(doc))
		done <- renderOutcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && out.text == "" {
			return "", errors.New("renderer returned empty output")
		}
		return out.text, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
