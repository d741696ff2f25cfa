package signing

import (
	"sync/atomic"
	"time"
)

// NonceSource 生成单调递增的订单 nonce。
// nonce = (接收截止毫秒时间戳 << 20) | 计数器；同一毫秒内的并发请求依靠 CAS 递增区分。
type NonceSource struct {
	last       atomic.Uint64
	recvWindow time.Duration
	now        func() time.Time
}

// NewNonceSource 创建 nonce 生成器
func NewNonceSource(recvWindow time.Duration) *NonceSource {
	if recvWindow <= 0 {
		recvWindow = DefaultRecvWindow
	}
	return &NonceSource{recvWindow: recvWindow, now: time.Now}
}

// Next 返回下一个 nonce，保证严格大于之前返回的任何值
func (n *NonceSource) Next() uint64 {
	for {
		base := uint64(n.now().Add(n.recvWindow).UnixMilli()) << nonceCounterBits
		prev := n.last.Load()
		next := base
		if next <= prev {
			next = prev + 1
		}
		if n.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// RecvTime 解出 nonce 中编码的接收截止时间
func RecvTime(nonce uint64) time.Time {
	return time.UnixMilli(int64(nonce >> nonceCounterBits))
}

// ExpirationAfter 计算订单过期时间（Unix 秒）
func ExpirationAfter(now time.Time, ttl time.Duration) uint64 {
	return uint64(now.Add(ttl).Unix())
}
