package domain

import (
	"github.com/betbot/goperp/nado/types"
	"github.com/shopspring/decimal"
)

// TriggerRole 条件单角色
type TriggerRole string

const (
	RoleTakeProfit TriggerRole = "take_profit"
	RoleStopLoss   TriggerRole = "stop_loss"
)

// TriggerPlan 计算好的条件单参数（已量化）
type TriggerPlan struct {
	ProductID    types.ProductID        `json:"product_id"`
	Role         TriggerRole            `json:"role"`
	Position     types.PositionSide     `json:"position"`
	Direction    types.TriggerDirection `json:"direction"`
	ClosingSide  types.OrderSide        `json:"closing_side"`
	TriggerPrice decimal.Decimal        `json:"trigger_price"`
	// ExecPrice 触发后提交的限价；止损在触发价基础上加不利方向滑点
	ExecPrice decimal.Decimal `json:"exec_price"`
	// Amount 有符号平仓数量
	Amount     decimal.Decimal `json:"amount"`
	OrderType  types.OrderType `json:"order_type"`
	ReduceOnly bool            `json:"reduce_only"`
}
