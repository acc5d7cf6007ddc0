package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisOptions 描述共享缓存层的连接参数。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// redisTier 将条目以 JSON 形式写入 redis，键为 <prefix>:doc:<id>:<version>。
type redisTier struct {
	client redis.UniversalClient
	prefix string
}

// OpenRedisTier 建立连接并 PING 一次，连接失败直接返回错误。
func OpenRedisTier(ctx context.Context, opts RedisOptions) (Tier, redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisTier(client, opts.Prefix), client, nil
}

// NewRedisTier 复用调用方管理生命周期的 client。
func NewRedisTier(client redis.UniversalClient, prefix string) Tier {
	if prefix == "" {
		prefix = "md-hub"
	}
	return &redisTier{client: client, prefix: prefix}
}

func (r *redisTier) Name() string { return "redis" }

func (r *redisTier) Get(ctx context.Context, key Key) (Entry, error) {
	data, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode redis entry %s: %w", key, err)
	}
	return entry, nil
}

func (r *redisTier) Put(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.entryKey(entry.Key()), data, 0).Err()
}

func (r *redisTier) RemoveDocument(ctx context.Context, documentID int64) error {
	return r.deleteByPattern(ctx, r.documentPrefix(documentID)+"*")
}

func (r *redisTier) Clear(ctx context.Context) error {
	return r.deleteByPattern(ctx, r.prefix+":doc:*")
}

func (r *redisTier) Len(ctx context.Context) (int, error) {
	count := 0
	err := r.scan(ctx, r.prefix+":doc:*", func(keys []string) error {
		count += len(keys)
		return nil
	})
	return count, err
}

func (r *redisTier) entryKey(key Key) string {
	return r.documentPrefix(key.DocumentID) + strconv.FormatInt(key.Version, 10)
}

func (r *redisTier) documentPrefix(documentID int64) string {
	return r.prefix + ":doc:" + strconv.FormatInt(documentID, 10) + ":"
}

func (r *redisTier) deleteByPattern(ctx context.Context, pattern string) error {
	return r.scan(ctx, pattern, func(keys []string) error {
		return r.client.Del(ctx, keys...).Err()
	})
}

// scan 使用 SCAN 遍历，避免 KEYS 阻塞服务端。
func (r *redisTier) scan(ctx context.Context, pattern string, fn func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
