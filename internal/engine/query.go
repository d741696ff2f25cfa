package engine

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/history"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

// ListPositions 账本中的所有仓位及其标记价和浮动盈亏。
// 标记价获取失败时使用上一次对账记录的价格；都没有时 MarkAvailable=false。
func (e *Engine) ListPositions(ctx context.Context) ([]domain.PositionView, error) {
	entries := e.deps.Ledger.All()
	views := make([]domain.PositionView, len(entries))

	var g errgroup.Group
	g.SetLimit(8)
	for i, entry := range entries {
		g.Go(func() error {
			mark := entry.LastMark
			if inst, ok := e.deps.Instruments.Get(entry.ProductID); ok {
				if p, err := e.deps.Prices.Price(ctx, inst); err == nil && p.Sign() > 0 {
					mark = p
				}
			}
			views[i] = domain.NewPositionView(entry, mark)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, ctx.Err()
}

// Position 单个产品的仓位视图
func (e *Engine) Position(ctx context.Context, id types.ProductID) (domain.PositionView, error) {
	entry, ok := e.deps.Ledger.Get(id)
	if !ok {
		return domain.PositionView{}, domain.NotFoundf("engine.position", "no position for product %d", id)
	}
	mark := entry.LastMark
	if inst, ok := e.deps.Instruments.Get(id); ok {
		if p, err := e.deps.Prices.Price(ctx, inst); err == nil && p.Sign() > 0 {
			mark = p
		}
	}
	return domain.NewPositionView(entry, mark), nil
}

// CancelOrder 按摘要撤销挂单；trigger=true 撤销条件单并清除对应的 TP/SL 记录
func (e *Engine) CancelOrder(ctx context.Context, id types.ProductID, digest string, isTrigger bool) (domain.Result, error) {
	const op = "engine.cancel"
	if digest == "" {
		return e.fail(op, "", domain.Validationf(op, "digest is required"))
	}
	if _, err := e.instrument(op, id); err != nil {
		return e.fail(op, "", err)
	}
	var n int
	err := e.deps.Ledger.WithLock(ctx, id, func(tx *ledger.Tx) error {
		res, err := e.deps.Gateway.CancelOrders(ctx, []types.ProductID{id}, []string{digest}, isTrigger)
		if err != nil {
			return err
		}
		n = len(res.Cancelled)
		if !isTrigger {
			return nil
		}
		cur, ok := tx.Get()
		if !ok {
			return nil
		}
		switch digest {
		case cur.TakeProfitDigest:
			cur.TakeProfit, cur.TakeProfitDigest = nil, ""
		case cur.StopLossDigest:
			cur.StopLoss, cur.StopLossDigest = nil, ""
		default:
			return nil
		}
		tx.Put(cur)
		return nil
	})
	if err != nil {
		return e.fail(op, "", err)
	}
	res := domain.Succeeded(digest)
	res.Cancelled = n
	return e.succeed("", res)
}

// CancelAll 撤销所有已知产品的普通挂单和条件单，并清除账本中的 TP/SL
func (e *Engine) CancelAll(ctx context.Context) (domain.Result, error) {
	const op = "engine.cancel_all"
	ids := e.deps.Instruments.IDs()
	if len(ids) == 0 {
		return e.succeed("", domain.Succeeded(""))
	}
	total := 0
	for _, trig := range []bool{false, true} {
		res, err := e.deps.Gateway.CancelProductOrders(ctx, ids, trig)
		if err != nil {
			r, cerr := e.fail(op, "", err)
			r.Cancelled = total
			return r, cerr
		}
		total += len(res.Cancelled)
	}
	for _, entry := range e.deps.Ledger.All() {
		if entry.TakeProfitDigest == "" && entry.StopLossDigest == "" {
			continue
		}
		_, err := e.deps.Ledger.Update(ctx, entry.ProductID, func(le *domain.LedgerEntry) error {
			le.TakeProfit, le.StopLoss = nil, nil
			le.TakeProfitDigest, le.StopLossDigest = "", ""
			return nil
		})
		if err != nil {
			e.log.Warnf("清除 TP/SL 记录失败: product=%d %v", entry.ProductID, err)
		}
		e.deps.Orders.ClearProductTPSL(entry.ProductID)
	}
	e.log.Infof("已撤销 %d 个挂单", total)
	res := domain.Succeeded("")
	res.Cancelled = total
	return e.succeed("", res)
}

// Balance 子账户余额
func (e *Engine) Balance(ctx context.Context) (types.BalanceSnapshot, error) {
	snap, err := e.deps.Gateway.GetBalance(ctx, e.Sender())
	if err != nil {
		err, _ = execution.Classify("engine.balance", err)
	}
	return snap, err
}

// OpenOrders 交易所上的挂单
func (e *Engine) OpenOrders(ctx context.Context) ([]types.RemoteOrder, error) {
	out, err := e.deps.Gateway.GetOpenOrders(ctx, e.Sender(), e.deps.Instruments.IDs())
	if err != nil {
		err, _ = execution.Classify("engine.open_orders", err)
	}
	return out, err
}

// History 平仓历史
func (e *Engine) History(ctx context.Context, q history.Query) ([]domain.ClosedTrade, error) {
	if e.deps.History == nil {
		return nil, nil
	}
	return e.deps.History.List(ctx, q)
}

// Stats 平仓统计；没有持久化历史时使用本地订单记录
func (e *Engine) Stats(ctx context.Context, q history.Query) (domain.TradeStats, error) {
	if e.deps.History == nil {
		return e.deps.Orders.Stats(), nil
	}
	return e.deps.History.Stats(ctx, q)
}

// Scenarios 以当前标记价为入场价计算各预设的 TP/SL 场景
func (e *Engine) Scenarios(ctx context.Context, id types.ProductID, side types.PositionSide, baseSize decimal.Decimal, leverage decimal.Decimal) ([]trigger.Scenario, error) {
	const op = "engine.scenarios"
	inst, err := e.instrument(op, id)
	if err != nil {
		return nil, err
	}
	if baseSize.Sign() <= 0 {
		return nil, domain.Validationf(op, "size must be positive")
	}
	mark, err := e.mark(ctx, inst)
	if err != nil {
		return nil, err
	}
	if leverage.Sign() <= 0 {
		leverage = e.cfg.Leverage
	}
	calc := trigger.Calculator{Leverage: leverage, MakerFee: e.cfg.MakerFee}
	return calc.Scenarios(side, mark, baseSize), nil
}

// Marks 并发获取多个产品的标记价，失败的产品不出现在结果中
func (e *Engine) Marks(ctx context.Context, ids []types.ProductID) map[types.ProductID]decimal.Decimal {
	out := make(map[types.ProductID]decimal.Decimal, len(ids))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(8)
	for _, id := range ids {
		inst, ok := e.deps.Instruments.Get(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			if p, err := e.deps.Prices.Price(ctx, inst); err == nil && p.Sign() > 0 {
				mu.Lock()
				out[id] = p
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
