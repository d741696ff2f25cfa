package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// 端点类别
const (
	EndpointQuery   = "query"
	EndpointExecute = "execute"
	EndpointTrigger = "trigger"
)

// TokenBucket 令牌桶（基于 x/time/rate）
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket 创建令牌桶：capacity 为突发容量，每 window 补充 refill 个令牌
func NewTokenBucket(capacity, refill int, window time.Duration) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	limit := rate.Inf
	if refill > 0 && window > 0 {
		limit = rate.Limit(float64(refill) / window.Seconds())
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, capacity)}
}

// Wait 等待直到允许请求或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Allow 检查是否允许请求（不等待）
func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	n := int(tb.limiter.Tokens())
	if n < 0 {
		return 0
	}
	return n
}

// Limits 各端点类别的每秒请求数（0 表示不限制）
type Limits struct {
	QueryPerSecond   int
	ExecutePerSecond int
	TriggerPerSecond int
}

// DefaultLimits 默认限流
func DefaultLimits() Limits {
	return Limits{QueryPerSecond: 20, ExecutePerSecond: 10, TriggerPerSecond: 5}
}

// RateLimitManager 按端点类别管理限流器
type RateLimitManager struct {
	limiters map[string]RateLimiter
	mu       sync.RWMutex
}

// NewRateLimitManager 创建限流管理器
func NewRateLimitManager(limits Limits) *RateLimitManager {
	rlm := &RateLimitManager{limiters: make(map[string]RateLimiter)}
	rlm.set(EndpointQuery, limits.QueryPerSecond)
	rlm.set(EndpointExecute, limits.ExecutePerSecond)
	rlm.set(EndpointTrigger, limits.TriggerPerSecond)
	return rlm
}

func (rlm *RateLimitManager) set(endpoint string, perSecond int) {
	if perSecond <= 0 {
		return
	}
	rlm.limiters[endpoint] = NewTokenBucket(perSecond, perSecond, time.Second)
}

// GetLimiter 获取端点限流器，未配置返回 nil
func (rlm *RateLimitManager) GetLimiter(endpoint string) RateLimiter {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()
	return rlm.limiters[endpoint]
}

// Wait 等待端点令牌，未配置限流的端点直接放行
func (rlm *RateLimitManager) Wait(ctx context.Context, endpoint string) error {
	if rlm == nil {
		return nil
	}
	l := rlm.GetLimiter(endpoint)
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// Allow 非阻塞检查
func (rlm *RateLimitManager) Allow(endpoint string) bool {
	if rlm == nil {
		return true
	}
	l := rlm.GetLimiter(endpoint)
	if l == nil {
		return true
	}
	return l.Allow()
}

// GetRemaining 剩余令牌，未配置返回 -1
func (rlm *RateLimitManager) GetRemaining(endpoint string) int {
	l := rlm.GetLimiter(endpoint)
	if l == nil {
		return -1
	}
	return l.GetRemaining()
}
