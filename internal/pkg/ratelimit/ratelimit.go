// Package ratelimit 控制邮件投递速率：一个全局 SMTP 桶加上按收件域划分的桶，状态都放在 Redis 里，
// 多个 mailer 进程共享。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimitTimeout 等待令牌期间 ctx 结束。
var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

// DefaultPrefix 限流键前缀，全局桶就是前缀本身，收件域桶为 <prefix>:domain:<域名>。
const DefaultPrefix = "datacake:ratelimit:smtp"

// 两个桶一起判断，只有都放行时才同时扣减，避免一个桶被白白消耗。
// KEYS[1] 全局桶，KEYS[2] 收件域桶；ARGV: now(ms), 全局 rate, 全局 burst, 域 rate, 域 burst。
// 返回 {allowed, wait_ms, blocked_by}。
const mailBucketsLua = `
local now = tonumber(ARGV[1])

local function current(key, rate, burst)
  if rate <= 0 or burst <= 0 then
    return nil
  end
  local data = redis.call("HMGET", key, "tokens", "ts")
  local tokens = tonumber(data[1]) or burst
  local ts = tonumber(data[2]) or now
  local elapsed = math.max(0, now - ts)
  return math.min(burst, tokens + elapsed * rate / 1000.0)
end

local function wait_for(tokens, rate)
  if tokens == nil or tokens >= 1 then
    return 0
  end
  return math.ceil((1 - tokens) * 1000.0 / rate)
end

local function save(key, tokens, rate, burst)
  if tokens == nil then
    return
  end
  redis.call("HSET", key, "tokens", tokens, "ts", now)
  redis.call("PEXPIRE", key, math.ceil(burst / rate * 2000.0))
end

local g_rate = tonumber(ARGV[2])
local g_burst = tonumber(ARGV[3])
local d_rate = tonumber(ARGV[4])
local d_burst = tonumber(ARGV[5])

local g = current(KEYS[1], g_rate, g_burst)
local d = current(KEYS[2], d_rate, d_burst)
local g_wait = wait_for(g, g_rate)
local d_wait = wait_for(d, d_rate)

local blocked = ""
if g_wait > 0 or d_wait > 0 then
  if g_wait >= d_wait then
    blocked = "global"
  else
    blocked = "domain"
  end
else
  if g ~= nil then g = g - 1 end
  if d ~= nil then d = d - 1 end
end

save(KEYS[1], g, g_rate, g_burst)
save(KEYS[2], d, d_rate, d_burst)

if blocked == "" then
  return {1, 0, blocked}
end
return {0, math.max(g_wait, d_wait), blocked}
`

// Limits 两级限流参数，rate 单位 token/s。rate 或 burst 不大于 0 的那一级不生效。
type Limits struct {
	Rate        float64
	Burst       float64
	DomainRate  float64
	DomainBurst float64
}

func (l Limits) globalOn() bool { return l.Rate > 0 && l.Burst > 0 }
func (l Limits) domainOn() bool { return l.DomainRate > 0 && l.DomainBurst > 0 }

// MailLimiter 邮件投递限流器。
type MailLimiter struct {
	rdb    *redis.Client
	prefix string
	limits Limits
	logger *slog.Logger
	script *redis.Script
}

// NewMailLimiter 创建限流器，prefix 为空时使用 DefaultPrefix。
func NewMailLimiter(rdb *redis.Client, logger *slog.Logger, prefix string, limits Limits) *MailLimiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &MailLimiter{
		rdb:    rdb,
		prefix: prefix,
		limits: limits,
		logger: logger,
		script: redis.NewScript(mailBucketsLua),
	}
}

// RecipientDomain 取收件地址 @ 之后的部分并转小写，取不到时返回 "unknown"。
func RecipientDomain(to string) string {
	at := strings.LastIndex(to, "@")
	if at < 0 || at == len(to)-1 {
		return "unknown"
	}
	return strings.ToLower(strings.TrimSpace(to[at+1:]))
}

func (l *MailLimiter) domainKey(to string) string {
	return l.prefix + ":domain:" + RecipientDomain(to)
}

// Acquire 为发往 to 的一封邮件申请令牌。拿不到时按脚本给出的等待时间加少量抖动休眠后重试，
// ctx 结束则返回 ErrRateLimitTimeout。
func (l *MailLimiter) Acquire(ctx context.Context, to string) error {
	if l == nil || (!l.limits.globalOn() && !l.limits.domainOn()) {
		return nil
	}

	const jitterMax = 10 * time.Millisecond
	start := time.Now()
	for {
		allowed, waitMs, blocked, err := l.try(ctx, to)
		if err != nil {
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}
		metrics.RateLimitThrottledTotal.WithLabelValues(blocked).Inc()

		wait := time.Duration(waitMs)*time.Millisecond + time.Duration(rand.Int63n(int64(jitterMax)))
		if waitMs <= 0 {
			wait = 50 * time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			metrics.RateLimitTimeoutTotal.Inc()
			if l.logger != nil {
				l.logger.Warn("mail rate limit wait aborted",
					slog.String("domain", RecipientDomain(to)),
					slog.String("blocked_by", blocked),
					slog.Duration("waited", time.Since(start)))
			}
			return ErrRateLimitTimeout
		case <-timer.C:
		}
	}
}

func (l *MailLimiter) try(ctx context.Context, to string) (bool, int64, string, error) {
	keys := []string{l.prefix, l.domainKey(to)}
	res, err := l.script.Run(ctx, l.rdb, keys,
		time.Now().UnixMilli(),
		l.limits.Rate, l.limits.Burst,
		l.limits.DomainRate, l.limits.DomainBurst,
	).Result()
	if err != nil {
		return false, 0, "", fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 3 {
		return false, 0, "", fmt.Errorf("ratelimit: unexpected script result %v", res)
	}
	blocked, _ := values[2].(string)
	return toInt64(values[0]) == 1, toInt64(values[1]), blocked, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}
