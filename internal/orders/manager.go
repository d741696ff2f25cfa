// Package orders 进程内订单管理：成交后的本地订单记录、TP/SL 目标、部分平仓和历史。
package orders

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/persistence"
)

// NewOrder 新订单参数
type NewOrder struct {
	ProductID  types.ProductID
	Symbol     string
	Side       types.OrderSide
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	TakeProfit *decimal.Decimal
	StopLoss   *decimal.Decimal
	Digest     string
}

// Hits CheckTPSL 的结果（订单 ID）
type Hits struct {
	TakeProfit []string `json:"tp_hit"`
	StopLoss   []string `json:"sl_hit"`
}

// Empty 是否无命中
func (h Hits) Empty() bool {
	return len(h.TakeProfit) == 0 && len(h.StopLoss) == 0
}

// state 需要检查点保存的字段
type state struct {
	Active  map[string]*domain.Order `persistence:"orders"`
	History []*domain.Order          `persistence:"history"`
}

// Manager 订单管理器
type Manager struct {
	mu    sync.RWMutex
	state state
	now   func() time.Time
	log   *logrus.Entry
}

// NewManager 创建订单管理器
func NewManager() *Manager {
	return &Manager{
		state: state{Active: make(map[string]*domain.Order)},
		now:   time.Now,
		log:   logrus.WithField("component", "orders"),
	}
}

// Add 记录一笔已成交订单
func (m *Manager) Add(in NewOrder) (*domain.Order, error) {
	if in.Size.Sign() <= 0 {
		return nil, domain.Validationf("orders.add", "size must be positive, got %s", in.Size)
	}
	if in.EntryPrice.Sign() <= 0 {
		return nil, domain.Validationf("orders.add", "entry price must be positive, got %s", in.EntryPrice)
	}
	now := m.now()
	o := &domain.Order{
		ID:           uuid.NewString(),
		ProductID:    in.ProductID,
		Symbol:       in.Symbol,
		Side:         in.Side,
		Size:         in.Size,
		OriginalSize: in.Size,
		EntryPrice:   in.EntryPrice,
		TakeProfit:   in.TakeProfit,
		StopLoss:     in.StopLoss,
		Status:       domain.OrderStatusOpen,
		Digest:       in.Digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m.mu.Lock()
	m.state.Active[o.ID] = o
	m.mu.Unlock()

	m.log.Infof("订单已记录: %s | %s %s %s @ %s", o.ID, o.Symbol, o.Side, o.Size, o.EntryPrice)
	return o.Clone(), nil
}

// Get 获取活跃订单
func (m *Manager) Get(id string) (*domain.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.state.Active[id]
	return o.Clone(), ok
}

// Active 所有活跃订单（按创建时间排序）
func (m *Manager) Active() []*domain.Order {
	return m.filter(func(*domain.Order) bool { return true })
}

// ByProduct 指定产品的活跃订单
func (m *Manager) ByProduct(id types.ProductID) []*domain.Order {
	return m.filter(func(o *domain.Order) bool { return o.ProductID == id })
}

// BySide 指定方向的活跃订单
func (m *Manager) BySide(side types.OrderSide) []*domain.Order {
	return m.filter(func(o *domain.Order) bool { return o.Side == side })
}

func (m *Manager) filter(keep func(*domain.Order) bool) []*domain.Order {
	m.mu.RLock()
	out := make([]*domain.Order, 0, len(m.state.Active))
	for _, o := range m.state.Active {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpdateTPSL 更新止盈/止损目标，nil 表示不修改
func (m *Manager) UpdateTPSL(id string, tp, sl *decimal.Decimal) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.Active[id]
	if !ok {
		return nil, domain.NotFoundf("orders.update_tpsl", "order %s not found", id)
	}
	if tp != nil {
		v := *tp
		m.log.Infof("TP: %s | %s -> %s", id, fmtPtr(o.TakeProfit), v)
		o.TakeProfit = &v
	}
	if sl != nil {
		v := *sl
		m.log.Infof("SL: %s | %s -> %s", id, fmtPtr(o.StopLoss), v)
		o.StopLoss = &v
	}
	o.UpdatedAt = m.now()
	return o.Clone(), nil
}

// SetProductTPSL 更新某产品所有活跃订单的目标
func (m *Manager) SetProductTPSL(pid types.ProductID, tp, sl *decimal.Decimal) int {
	var n int
	for _, o := range m.ByProduct(pid) {
		if _, err := m.UpdateTPSL(o.ID, tp, sl); err == nil {
			n++
		}
	}
	return n
}

// ClearProductTPSL 清除某产品所有活跃订单的目标（条件单已撤销）
func (m *Manager) ClearProductTPSL(pid types.ProductID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, o := range m.state.Active {
		if o.ProductID != pid || (o.TakeProfit == nil && o.StopLoss == nil) {
			continue
		}
		o.TakeProfit, o.StopLoss = nil, nil
		o.UpdatedAt = m.now()
		n++
	}
	return n
}

// Close 全部平仓，订单移入历史
func (m *Manager) Close(id string, exit decimal.Decimal) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.Active[id]
	if !ok {
		return nil, domain.NotFoundf("orders.close", "order %s not found", id)
	}
	delete(m.state.Active, id)

	now := m.now()
	x := exit
	o.Status = domain.OrderStatusClosed
	o.ExitPrice = &x
	o.RealizedPnL = o.RealizedPnL.Add(o.PnLAt(exit))
	o.ClosedAt = &now
	o.UpdatedAt = now
	m.state.History = append(m.state.History, o)

	m.log.Infof("订单已平仓: %s | PnL %s", id, o.RealizedPnL.StringFixed(4))
	return o.Clone(), nil
}

// CloseProduct 平掉某产品所有活跃订单
func (m *Manager) CloseProduct(pid types.ProductID, exit decimal.Decimal) []*domain.Order {
	var closed []*domain.Order
	for _, o := range m.ByProduct(pid) {
		if c, err := m.Close(o.ID, exit); err == nil {
			closed = append(closed, c)
		}
	}
	return closed
}

// CancelProduct 取消某产品所有活跃订单（开仓单未成交）
func (m *Manager) CancelProduct(pid types.ProductID) []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cancelled []*domain.Order
	for id, o := range m.state.Active {
		if o.ProductID != pid {
			continue
		}
		if c, err := m.cancelLocked(id); err == nil {
			cancelled = append(cancelled, c)
		}
	}
	return cancelled
}

// PartialClose 按比例（0,1) 部分平仓，返回平掉的数量
func (m *Manager) PartialClose(id string, fraction, exit decimal.Decimal) (*domain.Order, decimal.Decimal, error) {
	if fraction.Sign() <= 0 || fraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, decimal.Zero, domain.Validationf("orders.partial_close", "fraction must be in (0,1), got %s", fraction)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.Active[id]
	if !ok {
		return nil, decimal.Zero, domain.NotFoundf("orders.partial_close", "order %s not found", id)
	}
	closeSize := o.Size.Mul(fraction)
	if exit.Sign() > 0 {
		abs, _ := domain.PnL(o.PositionSide(), o.EntryPrice, exit, closeSize)
		o.RealizedPnL = o.RealizedPnL.Add(abs)
	}
	o.Size = o.Size.Sub(closeSize)
	o.PartialClosed = true
	o.UpdatedAt = m.now()

	m.log.Infof("部分平仓: %s | -%s | 剩余 %s", id, closeSize, o.Size)
	return o.Clone(), closeSize, nil
}

// Cancel 取消订单，移入历史
func (m *Manager) Cancel(id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelLocked(id)
}

func (m *Manager) cancelLocked(id string) (*domain.Order, error) {
	o, ok := m.state.Active[id]
	if !ok {
		return nil, domain.NotFoundf("orders.cancel", "order %s not found", id)
	}
	delete(m.state.Active, id)
	now := m.now()
	o.Status = domain.OrderStatusCancelled
	o.ClosedAt = &now
	o.UpdatedAt = now
	m.state.History = append(m.state.History, o)
	m.log.Infof("订单已取消: %s", id)
	return o.Clone(), nil
}

// CancelAll 取消所有活跃订单
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.state.Active))
	for id := range m.state.Active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, _ = m.cancelLocked(id)
	}
	return len(ids)
}

// CheckTPSL 按价格检查本地目标是否被触及；TP 优先
func (m *Manager) CheckTPSL(prices map[types.ProductID]decimal.Decimal) Hits {
	var hits Hits
	for _, o := range m.Active() {
		price, ok := prices[o.ProductID]
		if !ok || price.Sign() <= 0 {
			continue
		}
		long := o.PositionSide() == types.PositionLong
		switch {
		case o.TakeProfit != nil && crossed(long, price, *o.TakeProfit, true):
			hits.TakeProfit = append(hits.TakeProfit, o.ID)
		case o.StopLoss != nil && crossed(long, price, *o.StopLoss, false):
			hits.StopLoss = append(hits.StopLoss, o.ID)
		}
	}
	return hits
}

// crossed 多头 TP 向上、SL 向下触及；空头相反
func crossed(long bool, price, target decimal.Decimal, takeProfit bool) bool {
	if long == takeProfit {
		return price.GreaterThanOrEqual(target)
	}
	return price.LessThanOrEqual(target)
}

// UnrealizedPnL 活跃订单在给定价格下的合计浮动盈亏
func (m *Manager) UnrealizedPnL(prices map[types.ProductID]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, o := range m.Active() {
		if p, ok := prices[o.ProductID]; ok && p.Sign() > 0 {
			total = total.Add(o.PnLAt(p))
		}
	}
	return total
}

// History 历史订单（已平仓和已取消）
func (m *Manager) History() []*domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Order, 0, len(m.state.History))
	for _, o := range m.state.History {
		out = append(out, o.Clone())
	}
	return out
}

// Stats 已平仓订单统计（取消的订单不计入）
func (m *Manager) Stats() domain.TradeStats {
	var trades []domain.ClosedTrade
	for _, o := range m.History() {
		if o.Status != domain.OrderStatusClosed || o.ExitPrice == nil {
			continue
		}
		trades = append(trades, domain.ClosedTrade{
			ProductID:  o.ProductID,
			Symbol:     o.Symbol,
			Side:       o.PositionSide(),
			Size:       o.OriginalSize,
			EntryPrice: o.EntryPrice,
			ExitPrice:  *o.ExitPrice,
			PnL:        o.RealizedPnL,
			Reason:     domain.CloseManual,
			OpenedAt:   o.CreatedAt,
			ClosedAt:   *o.ClosedAt,
		})
	}
	return domain.ComputeStats(trades)
}

// Checkpoint 保存订单状态
func (m *Manager) Checkpoint(svc persistence.Service, id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return persistence.SaveFields(&m.state, id, svc)
}

// Restore 从检查点恢复订单状态
func (m *Manager) Restore(svc persistence.Service, id string) error {
	var st state
	if err := persistence.LoadFields(&st, id, svc); err != nil {
		return err
	}
	if st.Active == nil {
		st.Active = make(map[string]*domain.Order)
	}
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	if n := len(st.Active); n > 0 {
		m.log.Infof("已恢复 %d 个活跃订单, %d 条历史", n, len(st.History))
	}
	return nil
}

func fmtPtr(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return v.String()
}
