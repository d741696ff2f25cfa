// Package risk 交易熔断：连续失败或当日亏损超限后拒绝新开仓，平仓不受影响。
package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/domain"
)

// ErrCircuitBreakerOpen 断路器已打开
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// Config 断路器配置，<= 0 表示关闭对应限制
type Config struct {
	// MaxConsecutiveErrors 连续的网络或交易所失败上限；本地校验失败不计入
	MaxConsecutiveErrors int64 `yaml:"max_consecutive_errors"`
	// DailyLossLimit 当日已实现亏损上限（报价资产）
	DailyLossLimit decimal.Decimal `yaml:"daily_loss_limit"`
}

// CircuitBreaker 热路径用原子变量，当日盈亏用互斥锁
type CircuitBreaker struct {
	halted            atomic.Bool
	consecutiveErrors atomic.Int64
	maxErrors         atomic.Int64

	mu        sync.Mutex
	dayKey    int
	dailyPnL  decimal.Decimal
	lossLimit decimal.Decimal
	now       func() time.Time
}

// NewCircuitBreaker 创建断路器
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{now: time.Now}
	cb.SetConfig(cfg)
	return cb
}

// SetConfig 更新配置
func (cb *CircuitBreaker) SetConfig(cfg Config) {
	if cb == nil {
		return
	}
	cb.maxErrors.Store(cfg.MaxConsecutiveErrors)
	cb.mu.Lock()
	cb.lossLimit = cfg.DailyLossLimit
	cb.mu.Unlock()
}

// Halt 手动熔断
func (cb *CircuitBreaker) Halt() {
	if cb != nil {
		cb.halted.Store(true)
	}
}

// Resume 手动恢复并清空连续错误计数
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// Halted 是否处于熔断
func (cb *CircuitBreaker) Halted() bool {
	return cb != nil && cb.halted.Load()
}

// AllowOpen 检查是否允许开新仓
func (cb *CircuitBreaker) AllowOpen() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return cb.open("halted")
	}
	if max := cb.maxErrors.Load(); max > 0 && cb.consecutiveErrors.Load() >= max {
		cb.halted.Store(true)
		return cb.open(fmt.Sprintf("%d consecutive order failures", cb.consecutiveErrors.Load()))
	}

	cb.mu.Lock()
	cb.rollDayLocked()
	limit, pnl := cb.lossLimit, cb.dailyPnL
	cb.mu.Unlock()
	if limit.Sign() > 0 && pnl.LessThanOrEqual(limit.Neg()) {
		cb.halted.Store(true)
		return cb.open(fmt.Sprintf("daily loss %s reached limit %s", pnl, limit))
	}
	return nil
}

func (cb *CircuitBreaker) open(reason string) error {
	return &domain.Error{Kind: domain.KindValidation, Op: "risk.allow_open", Msg: reason, Err: ErrCircuitBreakerOpen}
}

// Observe 记录一次变更操作的结果：nil 清零计数，网络、超时和交易所拒绝累加，
// 其余错误（校验、熔断本身）不影响计数
func (cb *CircuitBreaker) Observe(err error) {
	if cb == nil {
		return
	}
	switch {
	case err == nil:
		cb.consecutiveErrors.Store(0)
	case domain.IsRemote(err):
		cb.consecutiveErrors.Add(1)
	}
}

// AddRealizedPnL 平仓后累计当日已实现盈亏
func (cb *CircuitBreaker) AddRealizedPnL(delta decimal.Decimal) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	cb.rollDayLocked()
	cb.dailyPnL = cb.dailyPnL.Add(delta)
	cb.mu.Unlock()
}

// DailyPnL 当日已实现盈亏
func (cb *CircuitBreaker) DailyPnL() decimal.Decimal {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rollDayLocked()
	return cb.dailyPnL
}

func (cb *CircuitBreaker) rollDayLocked() {
	now := cb.now().UTC()
	key := now.Year()*10000 + int(now.Month())*100 + now.Day()
	if key != cb.dayKey {
		cb.dayKey = key
		cb.dailyPnL = decimal.Zero
	}
}
