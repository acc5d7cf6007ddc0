package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Key 唯一定位一个缓存条目：文档 ID + 源版本（ModifiedAt 纳秒）。
type Key struct {
	DocumentID int64
	Version    int64
}

func (k Key) String() string {
	return strconv.FormatInt(k.DocumentID, 10) + "@" + strconv.FormatInt(k.Version, 10)
}

// Entry 是一份已生成的 Markdown 及其来源版本。
type Entry struct {
	DocumentID    int64     `json:"document_id"`
	SourceVersion int64     `json:"source_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Text          string    `json:"text"`
}

// Key 返回条目对应的缓存键。
func (e Entry) Key() Key {
	return Key{DocumentID: e.DocumentID, Version: e.SourceVersion}
}

// Tier 是单个缓存层。实现需保证 Put 原子可见：读者要么看到旧值/不存在，要么看到完整新值。
type Tier interface {
	// Name 用于统计与响应头，例如 memory/redis/disk。
	Name() string

	// Get 返回指定版本的条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key Key) (Entry, error)

	// Put 写入或覆盖条目。
	Put(ctx context.Context, entry Entry) error

	// RemoveDocument 删除文档的所有版本；不存在时不报错。
	RemoveDocument(ctx context.Context, documentID int64) error

	// Clear 清空该层。
	Clear(ctx context.Context) error

	// Len 返回条目数，用于诊断。
	Len(ctx context.Context) (int, error)
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
