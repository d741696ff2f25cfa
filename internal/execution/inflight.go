package execution

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

// ErrDuplicateInFlight 同一 key 的下单请求仍未返回（或在 TTL 窗口内）
var ErrDuplicateInFlight = fmt.Errorf("duplicate in-flight")

// InFlightGate 短时间窗口内的确定性去重，防止同一产品的变更请求被重复提交。
// 结果未知（unknown）时保持占用直到 TTL 过期，给对账留出时间。
type InFlightGate struct {
	ttl    time.Duration
	now    func() time.Time
	shards []gateShard
}

type gateShard struct {
	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

// NewInFlightGate 创建去重门
func NewInFlightGate(ttl time.Duration, shardCount int) *InFlightGate {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]gateShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &InFlightGate{ttl: ttl, now: time.Now, shards: shards}
}

// Key 产品级别的去重 key
func Key(op string, productID types.ProductID) string {
	return fmt.Sprintf("%s:%d", op, productID)
}

// TryAcquire 获取 key 的占用；已被占用时返回校验错误
func (g *InFlightGate) TryAcquire(key string) error {
	if g == nil || key == "" {
		return nil
	}
	now := g.now()
	sh := g.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// 惰性清理本 shard 的过期项
	for k, exp := range sh.m {
		if !exp.After(now) {
			delete(sh.m, k)
		}
	}
	if exp, ok := sh.m[key]; ok && exp.After(now) {
		return &domain.Error{Kind: domain.KindValidation, Op: key, Err: ErrDuplicateInFlight}
	}
	sh.m[key] = now.Add(g.ttl)
	return nil
}

// Release 释放占用
func (g *InFlightGate) Release(key string) {
	if g == nil || key == "" {
		return
	}
	sh := g.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

// Finish 按结果释放：结果未知时保留到 TTL 过期
func (g *InFlightGate) Finish(key string, outcome domain.Outcome) {
	if outcome == domain.OutcomeUnknown {
		return
	}
	g.Release(key)
}

func (g *InFlightGate) shard(key string) *gateShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &g.shards[int(h.Sum32()%uint32(len(g.shards)))]
}
