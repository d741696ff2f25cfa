package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/events"
	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/orders"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
)

var one = decimal.NewFromInt(1)

// OpenRequest 开仓请求。Size 为保证金口径的基础数量，实际下单数量为 Size*Leverage。
type OpenRequest struct {
	ProductID types.ProductID
	Side      types.OrderSide
	Size      decimal.Decimal
	// Leverage 为零时使用默认杠杆
	Leverage decimal.Decimal
}

// OpenPosition 以标记价加滑点提交 IOC 市价单，成功后写入账本
func (e *Engine) OpenPosition(ctx context.Context, req OpenRequest) (domain.Result, error) {
	const op = "engine.open"
	inst, err := e.instrument(op, req.ProductID)
	if err != nil {
		return e.fail(op, "", err)
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return e.fail(op, "", domain.Validationf(op, "invalid side %q", req.Side))
	}
	if req.Size.Sign() <= 0 {
		return e.fail(op, "", domain.Validationf(op, "size must be positive, got %s", req.Size))
	}
	leverage := req.Leverage
	if leverage.Sign() <= 0 {
		leverage = e.cfg.Leverage
	}
	qty, err := x18.Quantize(inst, req.Size.Mul(leverage), x18.KindSize)
	if err != nil {
		return e.fail(op, "", err)
	}
	if err := e.deps.Breaker.AllowOpen(); err != nil {
		return e.fail(op, "", err)
	}

	key := execution.Key("open", inst.ProductID)
	if err := e.gate.TryAcquire(key); err != nil {
		return e.fail(op, "", err)
	}

	mark, err := e.mark(ctx, inst)
	if err != nil {
		return e.fail(op, key, err)
	}
	price, err := e.takerPrice(inst, req.Side, mark)
	if err != nil {
		return e.fail(op, key, err)
	}
	amount := qty
	if req.Side == types.SideSell {
		amount = qty.Neg()
	}

	var (
		digest string
		entry  domain.LedgerEntry
	)
	err = e.deps.Ledger.WithLock(ctx, inst.ProductID, func(tx *ledger.Tx) error {
		signed, err := e.deps.Builder.Sign(execution.OrderSpec{
			Instrument: inst,
			Price:      price,
			Amount:     amount,
			TTL:        e.cfg.OrderTTL,
			Appendix:   types.NewAppendix(types.OrderTypeIOC, false),
		})
		if err != nil {
			return err
		}
		res, err := e.deps.Gateway.PlaceOrder(ctx, signed)
		if err != nil {
			return err
		}
		digest = res.Digest
		// IOC 的实际成交量由对账按交易所数量修正
		prev, had := tx.Get()
		fresh := !had || prev.Size.IsZero() || prev.AwaitingFill
		entry = ledger.ApplyFill(tx, inst.Symbol, mark, amount, leverage)
		entry.LastMark = mark
		entry.AwaitingFill = fresh
		entry.ClosePending, entry.ExitPrice, entry.CloseReason = false, nil, ""
		tx.Put(entry)
		entry, _ = tx.Get()
		return nil
	})
	if err != nil {
		return e.fail(op, key, err)
	}

	e.log.Infof("开仓成功: %s %s size=%s (base %s x%s) price=%s mark=%s digest=%s",
		inst.Symbol, req.Side, qty, req.Size, leverage, price, mark, digest)
	if _, err := e.deps.Orders.Add(orders.NewOrder{
		ProductID:  inst.ProductID,
		Symbol:     inst.Symbol,
		Side:       req.Side,
		Size:       qty,
		EntryPrice: mark,
		Digest:     digest,
	}); err != nil {
		e.log.Warnf("记录本地订单失败: %v", err)
	}
	e.deps.Bus.Emit(ctx, &events.PositionOpenedEvent{
		Entry: entry, FillPrice: mark, FillSize: amount, Digest: digest, Timestamp: e.now(),
	})
	e.nudge()

	res := domain.Succeeded(digest)
	res.Entry = &entry
	res, _ = e.succeed(key, res)

	if e.cfg.AutoTakeProfitPct.Sign() > 0 {
		tp, err := e.SetTakeProfit(ctx, inst.ProductID, trigger.AtPercent(e.cfg.AutoTakeProfitPct))
		if err != nil {
			res.Message = "auto take profit failed: " + err.Error()
		} else {
			res.Trigger = tp.Trigger
			res.Entry = tp.Entry
		}
	}
	return res, nil
}

// takerPrice 买入 mark*(1+slippage) 向上取整，卖出 mark*(1-slippage) 向下取整
func (e *Engine) takerPrice(inst types.Instrument, side types.OrderSide, mark decimal.Decimal) (decimal.Decimal, error) {
	if side == types.SideBuy {
		return x18.QuantizeAway(inst, mark.Mul(one.Add(e.cfg.Slippage)), x18.KindPrice)
	}
	p, err := x18.Quantize(inst, mark.Mul(one.Sub(e.cfg.Slippage)), x18.KindPrice)
	if err != nil {
		return decimal.Zero, err
	}
	if p.Sign() <= 0 {
		return decimal.Zero, domain.Validationf("engine.price", "price %s below price step", mark)
	}
	return p, nil
}

// ClosePosition 提交 reduce-only IOC 全部平仓，撤销该产品的条件单。
// 账本记录保留并标记为待平仓，由对账确认归零后移除并写入历史。
func (e *Engine) ClosePosition(ctx context.Context, id types.ProductID) (domain.Result, error) {
	return e.closeFraction(ctx, "engine.close", id, one)
}

// PartialClose 按比例 (0,1] 平仓
func (e *Engine) PartialClose(ctx context.Context, id types.ProductID, fraction decimal.Decimal) (domain.Result, error) {
	const op = "engine.partial_close"
	if fraction.Sign() <= 0 || fraction.GreaterThan(one) {
		return e.fail(op, "", domain.Validationf(op, "fraction must be in (0,1], got %s", fraction))
	}
	return e.closeFraction(ctx, op, id, fraction)
}

func (e *Engine) closeFraction(ctx context.Context, op string, id types.ProductID, fraction decimal.Decimal) (domain.Result, error) {
	inst, err := e.instrument(op, id)
	if err != nil {
		return e.fail(op, "", err)
	}
	cur, ok := e.deps.Ledger.Get(id)
	if !ok || cur.Size.IsZero() {
		return e.fail(op, "", domain.Validationf(op, "no open position for product %d", id))
	}
	if cur.ClosePending {
		return e.fail(op, "", domain.Validationf(op, "close already pending for product %d", id))
	}

	key := execution.Key("close", id)
	if err := e.gate.TryAcquire(key); err != nil {
		return e.fail(op, "", err)
	}
	mark, err := e.mark(ctx, inst)
	if err != nil {
		return e.fail(op, key, err)
	}

	full := fraction.Equal(one)
	var (
		digest  string
		entry   domain.LedgerEntry
		closed  decimal.Decimal
		realize decimal.Decimal
	)
	err = e.deps.Ledger.WithLock(ctx, id, func(tx *ledger.Tx) error {
		cur, ok := tx.Get()
		if !ok || cur.Size.IsZero() {
			return domain.Validationf(op, "no open position for product %d", id)
		}
		qty, err := x18.Quantize(inst, cur.Size.Abs().Mul(fraction), x18.KindSize)
		if err != nil {
			return err
		}
		closing := cur.Side().ClosingSide()
		amount := qty
		if closing == types.SideSell {
			amount = qty.Neg()
		}
		price, err := e.takerPrice(inst, closing, mark)
		if err != nil {
			return err
		}
		signed, err := e.deps.Builder.Sign(execution.OrderSpec{
			Instrument: inst,
			Price:      price,
			Amount:     amount,
			TTL:        e.cfg.OrderTTL,
			Appendix:   types.NewAppendix(types.OrderTypeIOC, true),
		})
		if err != nil {
			return err
		}
		res, err := e.deps.Gateway.PlaceOrder(ctx, signed)
		if err != nil {
			return err
		}
		digest = res.Digest
		closed = qty
		realize, _ = domain.PnL(cur.Side(), cur.EntryPrice, mark, qty)

		if full || qty.Equal(cur.Size.Abs()) {
			full = true
			x := mark
			cur.ClosePending, cur.ExitPrice, cur.CloseReason = true, &x, domain.CloseManual
			cur.LastMark = mark
			tx.Put(cur)
		} else {
			next := ledger.ApplyFill(tx, cur.Symbol, mark, amount, decimal.Zero)
			next.LastMark = mark
			tx.Put(next)
		}
		entry, _ = tx.Get()
		return nil
	})
	if err != nil {
		return e.fail(op, key, err)
	}

	res := domain.Succeeded(digest)
	res.Entry = &entry
	if full {
		// 仓位已提交平仓，剩余条件单全部撤销
		if n, err := e.triggers.CancelProduct(ctx, id); err != nil {
			e.log.Warnf("撤销条件单失败: product=%d %v", id, err)
			res.Message = "position close submitted; trigger cancel failed: " + err.Error()
		} else {
			res.Cancelled = n
		}
		e.log.Infof("平仓已提交: %s size=%s mark=%s digest=%s", inst.Symbol, closed, mark, digest)
	} else {
		for _, o := range e.deps.Orders.ByProduct(id) {
			if _, _, err := e.deps.Orders.PartialClose(o.ID, fraction, mark); err != nil {
				e.log.Debugf("本地订单部分平仓失败: %s %v", o.ID, err)
			}
		}
		e.deps.Breaker.AddRealizedPnL(realize)
		e.log.Infof("部分平仓: %s -%s 剩余 %s pnl=%s", inst.Symbol, closed, entry.Size, realize)
	}
	e.nudge()
	return e.succeed(key, res)
}
