package trigger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
)

// Config 条件单参数
type Config struct {
	// StopLossSlippage 止损执行价相对触发价的不利偏移（0.005 = 0.5%）
	StopLossSlippage decimal.Decimal
	// TakeProfitPostOnly 止盈单只做 maker
	TakeProfitPostOnly bool
	// TTL 条件单有效期
	TTL time.Duration
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		StopLossSlippage:   decimal.RequireFromString("0.005"),
		TakeProfitPostOnly: true,
		TTL:                30 * 24 * time.Hour,
	}
}

// Plan 为账本中的仓位计算条件单。mark 为零时以入场价作为参考价校验目标方向。
func (c Config) Plan(inst types.Instrument, e domain.LedgerEntry, role domain.TriggerRole, t Target, mark decimal.Decimal) (domain.TriggerPlan, error) {
	const op = "trigger.plan"
	if e.Size.IsZero() {
		return domain.TriggerPlan{}, domain.Validationf(op, "no open position for product %d", e.ProductID)
	}
	side := e.Side()
	raw, err := Price(side, role, e.EntryPrice, t)
	if err != nil {
		return domain.TriggerPlan{}, err
	}
	trig, err := x18.Quantize(inst, raw, x18.KindPrice)
	if err != nil || trig.Sign() <= 0 {
		return domain.TriggerPlan{}, domain.Validationf(op, "trigger price %s below price step %s", raw, inst.PriceIncrement)
	}

	dir, closing := Direction(side, role)
	ref := mark
	if ref.Sign() <= 0 {
		ref = e.EntryPrice
	}
	// 目标必须在参考价的有利侧，否则条件单会立即触发
	if dir.Crossed(ref, trig) {
		return domain.TriggerPlan{}, domain.Validationf(op, "%s %s must be %s current price %s for a %s position",
			role, trig, wording(dir), ref, side)
	}

	size := e.Size.Abs()
	qty, err := x18.Quantize(inst, size, x18.KindSize)
	if err != nil {
		return domain.TriggerPlan{}, &domain.Error{Kind: domain.KindValidation, Op: op, Err: err}
	}
	amount := qty
	if closing == types.SideSell {
		amount = qty.Neg()
	}

	plan := domain.TriggerPlan{
		ProductID:    e.ProductID,
		Role:         role,
		Position:     side,
		Direction:    dir,
		ClosingSide:  closing,
		TriggerPrice: trig,
		ExecPrice:    trig,
		Amount:       amount,
		OrderType:    types.OrderTypeDefault,
		ReduceOnly:   true,
	}
	switch role {
	case domain.RoleTakeProfit:
		if c.TakeProfitPostOnly {
			plan.OrderType = types.OrderTypePostOnly
		}
	case domain.RoleStopLoss:
		exec, err := c.stopLossExecPrice(inst, trig, closing)
		if err != nil {
			return domain.TriggerPlan{}, err
		}
		plan.ExecPrice = exec
		plan.OrderType = types.OrderTypeIOC
	}
	return plan, nil
}

// stopLossExecPrice 触发价加不利方向滑点，再向不利方向取整，保证触发后以 taker 成交
func (c Config) stopLossExecPrice(inst types.Instrument, trig decimal.Decimal, closing types.OrderSide) (decimal.Decimal, error) {
	if closing == types.SideSell {
		p, err := x18.Quantize(inst, trig.Mul(one.Sub(c.StopLossSlippage)), x18.KindPrice)
		if err != nil || p.Sign() <= 0 {
			return decimal.Zero, domain.Validationf("trigger.plan", "stop loss execution price below price step")
		}
		return p, nil
	}
	p, err := x18.QuantizeAway(inst, trig.Mul(one.Add(c.StopLossSlippage)), x18.KindPrice)
	if err != nil {
		return decimal.Zero, &domain.Error{Kind: domain.KindValidation, Op: "trigger.plan", Err: err}
	}
	return p, nil
}

// Appendix 条件单的 appendix：价格触发、只减仓
func Appendix(plan domain.TriggerPlan) types.Appendix {
	a := types.NewAppendix(plan.OrderType, plan.ReduceOnly)
	a.Trigger = types.TriggerPrice
	return a
}

func wording(dir types.TriggerDirection) string {
	if dir == types.TriggerAbove {
		return "above"
	}
	return "below"
}
