package cache

import (
	"context"
	"errors"
)

// Tiered 按顺序组合多个缓存层：读时由快到慢查找并回填更快的层，写与删除穿透所有层。
type Tiered struct {
	tiers []Tier

	// OnError 接收单层读写失败；读失败的层被视为未命中，不影响其他层。
	OnError func(tier, op string, err error)
}

// NewTiered 创建多层缓存，tiers 的顺序即查找顺序。
func NewTiered(tiers ...Tier) *Tiered {
	filtered := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			filtered = append(filtered, t)
		}
	}
	return &Tiered{tiers: filtered}
}

// Tiers 返回层列表副本，用于诊断输出。
func (t *Tiered) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Get 返回命中的条目及命中层名称；全部未命中时返回 ErrNotFound。
func (t *Tiered) Get(ctx context.Context, key Key) (Entry, string, error) {
	for i, tier := range t.tiers {
		entry, err := tier.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Entry{}, "", ctxErr
				}
				t.report(tier.Name(), "get", err)
			}
			continue
		}
		for _, faster := range t.tiers[:i] {
			if err := faster.Put(ctx, entry); err != nil {
				t.report(faster.Name(), "promote", err)
			}
		}
		return entry, tier.Name(), nil
	}
	return Entry{}, "", ErrNotFound
}

// Put 将条目写入所有层，返回各层错误的合并结果。
func (t *Tiered) Put(ctx context.Context, entry Entry) error {
	var errs []error
	for _, tier := range t.tiers {
		if err := tier.Put(ctx, entry); err != nil {
			t.report(tier.Name(), "put", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveDocument 从所有层删除文档的全部版本；即便某层失败也会继续尝试其余层。
func (t *Tiered) RemoveDocument(ctx context.Context, documentID int64) error {
	var errs []error
	for _, tier := range t.tiers {
		if err := tier.RemoveDocument(ctx, documentID); err != nil {
			t.report(tier.Name(), "remove", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear 清空所有层。
func (t *Tiered) Clear(ctx context.Context) error {
	var errs []error
	for _, tier := range t.tiers {
		if err := tier.Clear(ctx); err != nil {
			t.report(tier.Name(), "clear", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sizes 返回每层条目数；统计失败的层记为 -1。
func (t *Tiered) Sizes(ctx context.Context) map[string]int {
	out := make(map[string]int, len(t.tiers))
	for _, tier := range t.tiers {
		n, err := tier.Len(ctx)
		if err != nil {
			t.report(tier.Name(), "len", err)
			n = -1
		}
		out[tier.Name()] = n
	}
	return out
}

func (t *Tiered) report(tier, op string, err error) {
	if t.OnError != nil {
		t.OnError(tier, op, err)
	}
}
