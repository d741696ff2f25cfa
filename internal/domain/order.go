package domain

import (
	"time"

	"github.com/betbot/goperp/nado/types"
	"github.com/shopspring/decimal"
)

// OrderStatus 本地订单状态
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order 本地订单记录（成交确认后创建）
type Order struct {
	ID            string           `json:"id"`
	ProductID     types.ProductID  `json:"product_id"`
	Symbol        string           `json:"symbol"`
	Side          types.OrderSide  `json:"side"`
	Size          decimal.Decimal  `json:"size"`          // 当前剩余数量（正数）
	OriginalSize  decimal.Decimal  `json:"original_size"` // 开仓数量
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	Status        OrderStatus      `json:"status"`
	PartialClosed bool             `json:"partial_closed"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty"`
	RealizedPnL   decimal.Decimal  `json:"realized_pnl"`
	Digest        string           `json:"digest,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
}

// PositionSide 订单对应的持仓方向
func (o *Order) PositionSide() types.PositionSide {
	if o.Side == types.SideSell {
		return types.PositionShort
	}
	return types.PositionLong
}

// IsOpen 是否仍在持仓
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// PnLAt 指定价格下剩余数量的盈亏
func (o *Order) PnLAt(price decimal.Decimal) decimal.Decimal {
	abs, _ := PnL(o.PositionSide(), o.EntryPrice, price, o.Size)
	return abs
}

// Clone 深拷贝
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	if o.TakeProfit != nil {
		v := *o.TakeProfit
		out.TakeProfit = &v
	}
	if o.StopLoss != nil {
		v := *o.StopLoss
		out.StopLoss = &v
	}
	if o.ExitPrice != nil {
		v := *o.ExitPrice
		out.ExitPrice = &v
	}
	if o.ClosedAt != nil {
		v := *o.ClosedAt
		out.ClosedAt = &v
	}
	return &out
}
