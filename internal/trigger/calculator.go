package trigger

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/nado/types"
)

// Preset 预设 TP/SL 百分比
type Preset struct {
	Name          string          `json:"name"`
	TakeProfitPct decimal.Decimal `json:"tp_pct"`
	StopLossPct   decimal.Decimal `json:"sl_pct"`
}

// Presets 剥头皮 / 保守 / 适中 / 激进
var Presets = []Preset{
	{Name: "scalping", TakeProfitPct: decimal.RequireFromString("0.3"), StopLossPct: decimal.RequireFromString("0.15")},
	{Name: "conservative", TakeProfitPct: decimal.RequireFromString("0.5"), StopLossPct: decimal.RequireFromString("0.3")},
	{Name: "moderate", TakeProfitPct: decimal.RequireFromString("1.0"), StopLossPct: decimal.RequireFromString("0.5")},
	{Name: "aggressive", TakeProfitPct: decimal.RequireFromString("2.0"), StopLossPct: decimal.RequireFromString("1.0")},
}

// Scenario 单个预设下的 TP/SL 价格和扣除手续费后的盈亏
type Scenario struct {
	Preset
	TakeProfitPrice decimal.Decimal `json:"tp_price"`
	StopLossPrice   decimal.Decimal `json:"sl_price"`
	TakeProfitPnL   decimal.Decimal `json:"tp_pnl"`
	StopLossPnL     decimal.Decimal `json:"sl_pnl"`
	RiskReward      decimal.Decimal `json:"rr_ratio"`
	PositionSize    decimal.Decimal `json:"position_size"`
	Notional        decimal.Decimal `json:"notional"`
}

// Calculator TP/SL 场景计算
type Calculator struct {
	Leverage decimal.Decimal
	MakerFee decimal.Decimal
}

// Scenarios 计算所有预设
func (c Calculator) Scenarios(side types.PositionSide, entry, baseSize decimal.Decimal) []Scenario {
	out := make([]Scenario, 0, len(Presets))
	for _, p := range Presets {
		out = append(out, c.Scenario(p, side, entry, baseSize))
	}
	return out
}

// Scenario 计算单个预设；baseSize 为未放大杠杆的数量
func (c Calculator) Scenario(p Preset, side types.PositionSide, entry, baseSize decimal.Decimal) Scenario {
	lev := c.Leverage
	if lev.Sign() <= 0 {
		lev = one
	}
	size := baseSize.Abs().Mul(lev)
	s := Scenario{Preset: p, PositionSize: size, Notional: size.Mul(entry)}

	up := one.Add(p.TakeProfitPct.Div(hundred))
	down := one.Sub(p.StopLossPct.Div(hundred))
	if side == types.PositionShort {
		up = one.Add(p.StopLossPct.Div(hundred))
		down = one.Sub(p.TakeProfitPct.Div(hundred))
		s.TakeProfitPrice, s.StopLossPrice = entry.Mul(down), entry.Mul(up)
	} else {
		s.TakeProfitPrice, s.StopLossPrice = entry.Mul(up), entry.Mul(down)
	}
	s.TakeProfitPnL = c.netPnL(side, entry, s.TakeProfitPrice, size)
	s.StopLossPnL = c.netPnL(side, entry, s.StopLossPrice, size)
	if !s.StopLossPnL.IsZero() {
		s.RiskReward = s.TakeProfitPnL.Div(s.StopLossPnL).Abs()
	}
	return s
}

// netPnL 扣除开仓和平仓手续费
func (c Calculator) netPnL(side types.PositionSide, entry, exit, size decimal.Decimal) decimal.Decimal {
	change := exit.Sub(entry)
	if side == types.PositionShort {
		change = entry.Sub(exit)
	}
	fees := entry.Mul(size).Mul(c.MakerFee).Add(exit.Mul(size).Mul(c.MakerFee))
	return change.Mul(size).Sub(fees)
}
