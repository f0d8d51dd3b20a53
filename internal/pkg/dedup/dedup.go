// Package dedup 基于 Redis SETNX 的短期去重，mailer 用它保证同一封邮件只投递一次。
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix mail 消息去重键前缀。
const DefaultPrefix = "datacake:dedup:mail:"

// Deduplicator 在 ttl 窗口内记录已见过的键。
type Deduplicator struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewDeduplicator 创建去重器，prefix 为空时使用 DefaultPrefix。
func NewDeduplicator(rdb *redis.Client, ttl time.Duration, prefix string) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Deduplicator{
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
	}
}

// IsDuplicate 尝试占用 key；已被占用时返回 true。
//
// 未配置 Redis 时总是返回 false。
func (d *Deduplicator) IsDuplicate(ctx context.Context, key string) (bool, error) {
	if d == nil || d.rdb == nil || key == "" {
		return false, nil
	}
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Delete 释放 key，投递失败需要重试时调用。
func (d *Deduplicator) Delete(ctx context.Context, key string) error {
	if d == nil || d.rdb == nil || key == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}
