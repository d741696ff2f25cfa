// Package trigger TP/SL 条件单：目标价计算、方向选择、执行价缓冲和提交。
package trigger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Target TP/SL 目标：绝对价格或相对入场价的百分比
type Target struct {
	Price   decimal.Decimal `json:"price,omitempty"`
	Percent decimal.Decimal `json:"percent,omitempty"`
}

// AtPrice 绝对价格目标
func AtPrice(p decimal.Decimal) Target { return Target{Price: p} }

// AtPercent 百分比目标（5 表示 5%），符号忽略，方向由角色决定
func AtPercent(p decimal.Decimal) Target { return Target{Percent: p.Abs()} }

// IsPercent 是否为百分比目标
func (t Target) IsPercent() bool { return t.Price.IsZero() && !t.Percent.IsZero() }

func (t Target) String() string {
	if t.IsPercent() {
		return t.Percent.String() + "%"
	}
	return t.Price.String()
}

// ParseTarget 解析 "189.5"、"5%"、"-2%"
func ParseTarget(s string) (Target, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Target{}, domain.Validationf("trigger.parse_target", "empty target")
	}
	if strings.HasSuffix(raw, "%") {
		v, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(raw, "%")))
		if err != nil || v.IsZero() {
			return Target{}, domain.Validationf("trigger.parse_target", "invalid percent %q", s)
		}
		return AtPercent(v), nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.Sign() <= 0 {
		return Target{}, domain.Validationf("trigger.parse_target", "invalid price %q", s)
	}
	return AtPrice(v), nil
}

// Direction 方向表：
//
//	多头 止盈 上穿 卖出
//	多头 止损 下穿 卖出
//	空头 止盈 下穿 买入
//	空头 止损 上穿 买入
func Direction(side types.PositionSide, role domain.TriggerRole) (types.TriggerDirection, types.OrderSide) {
	long := side == types.PositionLong
	above := long == (role == domain.RoleTakeProfit)
	dir := types.TriggerBelow
	if above {
		dir = types.TriggerAbove
	}
	return dir, side.ClosingSide()
}

// Price 由入场价和目标计算触发价（未量化）。
// 止盈: 多头 entry*(1+pct)，空头 entry*(1-pct)；止损相反。
func Price(side types.PositionSide, role domain.TriggerRole, entry decimal.Decimal, t Target) (decimal.Decimal, error) {
	const op = "trigger.price"
	if !t.IsPercent() {
		if t.Price.Sign() <= 0 {
			return decimal.Zero, domain.Validationf(op, "target price must be positive")
		}
		return t.Price, nil
	}
	if entry.Sign() <= 0 {
		return decimal.Zero, domain.Validationf(op, "entry price unknown")
	}
	pct := t.Percent.Abs().Div(hundred)
	if pct.GreaterThanOrEqual(one) {
		return decimal.Zero, domain.Validationf(op, "percent %s out of range", t.Percent)
	}
	dir, _ := Direction(side, role)
	if dir == types.TriggerAbove {
		return entry.Mul(one.Add(pct)), nil
	}
	return entry.Mul(one.Sub(pct)), nil
}
