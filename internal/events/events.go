// Package events 引擎事件：仓位开启、平仓、对账偏差和条件单变更。
package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

var log = logrus.WithField("component", "events")

// Type 事件类型
type Type string

const (
	TypePositionOpened Type = "position_opened"
	TypePositionClosed Type = "position_closed"
	TypeTriggerPlaced  Type = "trigger_placed"
	TypeDrift          Type = "reconciliation_drift"
	TypeTargetCrossed  Type = "target_crossed"
	TypeCriticalError  Type = "critical_error"
)

// Event 所有事件的公共接口
type Event interface {
	EventType() Type
	At() time.Time
}

// PositionOpenedEvent 成交后账本新增或加仓
type PositionOpenedEvent struct {
	Entry     domain.LedgerEntry
	FillPrice decimal.Decimal
	FillSize  decimal.Decimal
	Digest    string
	Timestamp time.Time
}

func (e *PositionOpenedEvent) EventType() Type { return TypePositionOpened }
func (e *PositionOpenedEvent) At() time.Time   { return e.Timestamp }

// PositionClosedEvent 对账确认仓位归零
type PositionClosedEvent struct {
	Trade     domain.ClosedTrade
	Timestamp time.Time
}

func (e *PositionClosedEvent) EventType() Type { return TypePositionClosed }
func (e *PositionClosedEvent) At() time.Time   { return e.Timestamp }

// TriggerPlacedEvent TP/SL 条件单已提交
type TriggerPlacedEvent struct {
	Plan      domain.TriggerPlan
	Digest    string
	Timestamp time.Time
}

func (e *TriggerPlacedEvent) EventType() Type { return TypeTriggerPlaced }
func (e *TriggerPlacedEvent) At() time.Time   { return e.Timestamp }

// DriftEvent 本地账本和交易所状态不一致（已按交易所修正）
type DriftEvent struct {
	ProductID  types.ProductID
	LocalSize  decimal.Decimal
	RemoteSize decimal.Decimal
	Action     string
	Timestamp  time.Time
}

func (e *DriftEvent) EventType() Type { return TypeDrift }
func (e *DriftEvent) At() time.Time   { return e.Timestamp }

// TargetCrossedEvent 标记价已越过本地 TP/SL 但仓位仍在
type TargetCrossedEvent struct {
	ProductID types.ProductID
	Role      domain.TriggerRole
	Target    decimal.Decimal
	Mark      decimal.Decimal
	Timestamp time.Time
}

func (e *TargetCrossedEvent) EventType() Type { return TypeTargetCrossed }
func (e *TargetCrossedEvent) At() time.Time   { return e.Timestamp }

// CriticalErrorEvent 严重错误（熔断等）
type CriticalErrorEvent struct {
	Source    string
	Error     string
	Timestamp time.Time
}

func (e *CriticalErrorEvent) EventType() Type { return TypeCriticalError }
func (e *CriticalErrorEvent) At() time.Time   { return e.Timestamp }

// Handler 事件处理器
type Handler func(ctx context.Context, ev Event) error

// Bus 事件总线。处理器串行执行，单个处理器的错误或 panic 不影响其他处理器。
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// On 订阅指定类型
func (b *Bus) On(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// OnAll 订阅所有事件
func (b *Bus) OnAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// snapshot 无锁遍历用的处理器快照
func (b *Bus) snapshot(t Type) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.handlers[t])+len(b.all))
	out = append(out, b.handlers[t]...)
	out = append(out, b.all...)
	return out
}

// Emit 触发事件；nil 总线直接忽略
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if b == nil || ev == nil {
		return
	}
	for i, h := range b.snapshot(ev.EventType()) {
		if h == nil {
			continue
		}
		func(idx int, h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("事件处理器 %d panic: type=%s %v", idx, ev.EventType(), r)
				}
			}()
			if err := h(ctx, ev); err != nil {
				log.Errorf("事件处理器 %d 执行失败: type=%s %v", idx, ev.EventType(), err)
			}
		}(i, h)
	}
}

// Count 订阅者数量
func (b *Bus) Count(t Type) int {
	return len(b.snapshot(t))
}
