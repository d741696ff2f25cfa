package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/events"
	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

// SetTakeProfit 设置（或替换）止盈条件单
func (e *Engine) SetTakeProfit(ctx context.Context, id types.ProductID, target trigger.Target) (domain.Result, error) {
	return e.setTrigger(ctx, "engine.set_tp", id, domain.RoleTakeProfit, target)
}

// SetStopLoss 设置（或替换）止损条件单
func (e *Engine) SetStopLoss(ctx context.Context, id types.ProductID, target trigger.Target) (domain.Result, error) {
	return e.setTrigger(ctx, "engine.set_sl", id, domain.RoleStopLoss, target)
}

func (e *Engine) setTrigger(ctx context.Context, op string, id types.ProductID, role domain.TriggerRole, target trigger.Target) (domain.Result, error) {
	inst, err := e.instrument(op, id)
	if err != nil {
		return e.fail(op, "", err)
	}
	// 没有账本记录时在任何网络请求之前失败
	cur, ok := e.deps.Ledger.Get(id)
	if !ok {
		return e.fail(op, "", domain.Validationf(op, "no ledger entry for product %d; open a position first", id))
	}
	if cur.ClosePending {
		return e.fail(op, "", domain.Validationf(op, "position %d is closing", id))
	}
	if _, err := e.cfg.Trigger.Plan(inst, cur, role, target, cur.LastMark); err != nil {
		return e.fail(op, "", err)
	}

	key := execution.Key(string(role), id)
	if err := e.gate.TryAcquire(key); err != nil {
		return e.fail(op, "", err)
	}
	mark, err := e.deps.Prices.Price(ctx, inst)
	if err != nil {
		// 没有标记价时以入场价校验目标方向
		e.log.Debugf("%s 无标记价，使用入场价校验: %v", op, err)
		mark = decimal.Zero
	}

	var (
		plan      domain.TriggerPlan
		digest    string
		entry     domain.LedgerEntry
		cancelErr error
	)
	err = e.deps.Ledger.WithLock(ctx, id, func(tx *ledger.Tx) error {
		cur, ok := tx.Get()
		if !ok {
			return domain.Validationf(op, "no ledger entry for product %d", id)
		}
		plan, err = e.cfg.Trigger.Plan(inst, cur, role, target, mark)
		if err != nil {
			return err
		}
		old := cur.TakeProfitDigest
		if role == domain.RoleStopLoss {
			old = cur.StopLossDigest
		}
		// 新单提交成功后才撤旧单，提交失败时账本保留原条件单
		d, _, err := e.triggers.Submit(ctx, inst, plan)
		if err != nil {
			return err
		}
		digest = d
		if old != "" {
			if _, err := e.triggers.Cancel(ctx, id, old); err != nil {
				// 旧单可能已触发或过期，新单已生效，不回滚
				e.log.Warnf("撤销旧 %s 条件单 %s 失败: %v", role, old, err)
				cancelErr = err
			}
		}
		price := plan.TriggerPrice
		if role == domain.RoleTakeProfit {
			cur.TakeProfit, cur.TakeProfitDigest = &price, digest
		} else {
			cur.StopLoss, cur.StopLossDigest = &price, digest
		}
		if mark.Sign() > 0 {
			cur.LastMark = mark
		}
		tx.Put(cur)
		entry, _ = tx.Get()
		return nil
	})
	if err != nil {
		return e.fail(op, key, err)
	}

	price := plan.TriggerPrice
	if role == domain.RoleTakeProfit {
		e.deps.Orders.SetProductTPSL(id, &price, nil)
	} else {
		e.deps.Orders.SetProductTPSL(id, nil, &price)
	}
	e.deps.Bus.Emit(ctx, &events.TriggerPlacedEvent{Plan: plan, Digest: digest, Timestamp: e.now()})

	res := domain.Succeeded(digest)
	res.Entry = &entry
	res.Trigger = &plan
	if cancelErr != nil {
		res.Message = "previous " + string(role) + " order not cancelled: " + cancelErr.Error()
	}
	return e.succeed(key, res)
}

// ClearTriggers 撤销产品的全部条件单并清除账本中的 TP/SL
func (e *Engine) ClearTriggers(ctx context.Context, id types.ProductID) (domain.Result, error) {
	const op = "engine.clear_triggers"
	if _, err := e.instrument(op, id); err != nil {
		return e.fail(op, "", err)
	}
	var n int
	err := e.deps.Ledger.WithLock(ctx, id, func(tx *ledger.Tx) error {
		var err error
		n, err = e.triggers.CancelProduct(ctx, id)
		if err != nil {
			return err
		}
		cur, ok := tx.Get()
		if !ok {
			return nil
		}
		cur.TakeProfit, cur.StopLoss = nil, nil
		cur.TakeProfitDigest, cur.StopLossDigest = "", ""
		tx.Put(cur)
		return nil
	})
	if err != nil {
		return e.fail(op, "", err)
	}
	e.deps.Orders.ClearProductTPSL(id)
	res := domain.Succeeded("")
	res.Cancelled = n
	return e.succeed("", res)
}
