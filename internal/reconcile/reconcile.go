// Package reconcile 对账循环：以交易所仓位为准修正本地账本。
//
// 账本记录的删除只在这里发生。定时轮询是兜底，推送流通过 Nudge 触发提前对账。
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/events"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/internal/orders"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

// PositionQuerier 查询交易所仓位
type PositionQuerier interface {
	GetPositions(ctx context.Context, sender types.Sender) ([]types.RemotePosition, error)
}

// PriceSource 标记价来源
type PriceSource interface {
	Price(ctx context.Context, inst types.Instrument) (decimal.Decimal, error)
}

// HistoryWriter 平仓历史
type HistoryWriter interface {
	Append(ctx context.Context, t domain.ClosedTrade) (domain.ClosedTrade, error)
}

// Instruments 产品元数据
type Instruments interface {
	Get(id types.ProductID) (types.Instrument, bool)
}

// Config 对账参数
type Config struct {
	Interval time.Duration
	// MinGap 两次对账的最小间隔，限制推送触发的频率
	MinGap time.Duration
	// DefaultLeverage 反推记录使用的杠杆
	DefaultLeverage decimal.Decimal
	// FetchTimeout 单次对账的网络超时
	FetchTimeout time.Duration
	// SizeTolerance 数量偏差容忍度；为零时取产品步长的一半
	SizeTolerance decimal.Decimal
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.MinGap < 0 {
		c.MinGap = 0
	}
	if c.DefaultLeverage.Sign() <= 0 {
		c.DefaultLeverage = decimal.NewFromInt(1)
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	return c
}

// Report 单次对账结果
type Report struct {
	At            time.Time
	Closed        []domain.ClosedTrade
	Reconstructed []types.ProductID
	Corrected     []types.ProductID
	Crossed       []events.TargetCrossedEvent
	// MissingPrices 未能获取标记价的产品
	MissingPrices []types.ProductID
}

// Deps 对账依赖
type Deps struct {
	Ledger      *ledger.Ledger
	Querier     PositionQuerier
	Prices      PriceSource
	Instruments Instruments
	History     HistoryWriter
	Orders      *orders.Manager
	Bus         *events.Bus
	Sender      types.Sender
}

// Reconciler 对账循环
type Reconciler struct {
	deps Deps
	cfg  Config

	nudge chan struct{}
	gate  *gate
	runMu sync.Mutex
	now   func() time.Time
	log   *logrus.Entry
}

// New 创建对账器
func New(deps Deps, cfg Config) (*Reconciler, error) {
	if deps.Ledger == nil || deps.Querier == nil || deps.Instruments == nil {
		return nil, errors.New("reconcile: ledger, querier and instruments are required")
	}
	cfg = cfg.withDefaults()
	return &Reconciler{
		deps:  deps,
		cfg:   cfg,
		nudge: make(chan struct{}, 1),
		gate:  newGate(cfg.MinGap),
		now:   time.Now,
		log:   logrus.WithField("component", "reconcile"),
	}, nil
}

// Nudge 请求尽快对账（非阻塞，多次调用合并）
func (r *Reconciler) Nudge() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

// Run 阻塞运行直到 ctx 取消
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.log.Infof("对账循环启动: interval=%s", r.cfg.Interval)
	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("对账循环退出")
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.nudge:
			if ok, since := r.gate.ready(r.now()); !ok {
				r.log.Debugf("忽略过于频繁的对账请求: since=%s", since)
				continue
			}
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
		r.log.Warnf("对账失败: %v", err)
	}
}

// Tick 执行一次对账
func (r *Reconciler) Tick(ctx context.Context) (Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	metrics.ReconcileRuns.Add(1)
	rep := Report{At: r.now()}
	r.gate.mark(rep.At)

	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	snapshotAt := r.now()
	remote, err := r.deps.Querier.GetPositions(fctx, r.deps.Sender)
	if err != nil {
		metrics.ReconcileErrors.Add(1)
		return rep, errors.Wrap(err, "fetch remote positions")
	}

	remoteBy := make(map[types.ProductID]types.RemotePosition, len(remote))
	for _, p := range remote {
		if !p.IsFlat() {
			remoteBy[p.ProductID] = p
		}
	}
	local := r.deps.Ledger.All()

	marks := r.fetchMarks(fctx, local, remoteBy, &rep)

	var errs []error
	for _, e := range local {
		rp, ok := remoteBy[e.ProductID]
		if !ok {
			trade, closed, err := r.closeEntry(ctx, e.ProductID, marks[e.ProductID], snapshotAt)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if closed {
				rep.Closed = append(rep.Closed, trade)
			}
			continue
		}
		corrected, err := r.syncEntry(ctx, rp, marks[e.ProductID], snapshotAt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if corrected {
			rep.Corrected = append(rep.Corrected, e.ProductID)
		}
	}

	for id, rp := range remoteBy {
		if _, ok := r.deps.Ledger.Get(id); ok {
			continue
		}
		if err := r.reconstruct(ctx, rp); err != nil {
			errs = append(errs, err)
			continue
		}
		rep.Reconstructed = append(rep.Reconstructed, id)
	}

	rep.Crossed = r.checkTargets(ctx, marks)

	if len(errs) > 0 {
		metrics.ReconcileErrors.Add(1)
		return rep, joinErrors(errs)
	}
	return rep, nil
}

// fetchMarks 并发获取账本和远端所有产品的标记价；失败的产品不出现在结果中
func (r *Reconciler) fetchMarks(ctx context.Context, local []domain.LedgerEntry, remote map[types.ProductID]types.RemotePosition, rep *Report) map[types.ProductID]decimal.Decimal {
	ids := make(map[types.ProductID]struct{}, len(local)+len(remote))
	for _, e := range local {
		ids[e.ProductID] = struct{}{}
	}
	for id := range remote {
		ids[id] = struct{}{}
	}

	out := make(map[types.ProductID]decimal.Decimal, len(ids))
	if r.deps.Prices == nil {
		return out
	}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(8)
	for id := range ids {
		inst, ok := r.deps.Instruments.Get(id)
		if !ok {
			inst = types.Instrument{ProductID: id}
		}
		g.Go(func() error {
			p, err := r.deps.Prices.Price(ctx, inst)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || p.Sign() <= 0 {
				rep.MissingPrices = append(rep.MissingPrices, inst.ProductID)
				return nil
			}
			out[inst.ProductID] = p
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// closeEntry 远端已无仓位：移除账本记录并写入平仓历史。
// 快照之后被更新过的记录（例如刚开仓）留到下一轮。
func (r *Reconciler) closeEntry(ctx context.Context, id types.ProductID, mark decimal.Decimal, snapshotAt time.Time) (domain.ClosedTrade, bool, error) {
	prev, removed, err := r.deps.Ledger.EvictIf(ctx, id, func(e domain.LedgerEntry) bool {
		return !e.UpdatedAt.After(snapshotAt)
	})
	if err != nil {
		return domain.ClosedTrade{}, false, errors.Wrapf(err, "evict product %d", id)
	}
	if !removed {
		return domain.ClosedTrade{}, false, nil
	}
	if prev.AwaitingFill {
		// 开仓 IOC 未成交，交易所从未出现该仓位，不产生平仓记录
		r.log.Warnf("开仓未成交，移除账本记录: product=%d size=%s", id, prev.Size)
		if r.deps.Orders != nil {
			r.deps.Orders.CancelProduct(id)
		}
		return domain.ClosedTrade{}, false, nil
	}

	exit := exitPrice(prev, mark)
	reason := closeReason(prev, exit)
	trade := domain.NewClosedTrade(prev, exit, reason, r.now())
	if r.deps.History != nil {
		saved, err := r.deps.History.Append(ctx, trade)
		if err != nil {
			r.log.Errorf("写入平仓历史失败: product=%d %v", id, err)
		} else {
			trade = saved
		}
	}
	if r.deps.Orders != nil && exit.Sign() > 0 {
		r.deps.Orders.CloseProduct(id, exit)
	}
	metrics.PositionsClosed.Add(1)
	r.log.Infof("仓位已平: product=%d %s entry=%s exit=%s pnl=%s reason=%s",
		id, trade.Side, trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.Reason)
	r.deps.Bus.Emit(ctx, &events.PositionClosedEvent{Trade: trade, Timestamp: trade.ClosedAt})
	return trade, true, nil
}

// exitPrice 优先使用平仓时记录的成交价，其次当前标记价，最后是上一次标记价
func exitPrice(e domain.LedgerEntry, mark decimal.Decimal) decimal.Decimal {
	switch {
	case e.ExitPrice != nil && e.ExitPrice.Sign() > 0:
		return *e.ExitPrice
	case mark.Sign() > 0:
		return mark
	default:
		return e.LastMark
	}
}

// closeReason 未主动平仓时按出场价推断是否为 TP/SL 成交
func closeReason(e domain.LedgerEntry, exit decimal.Decimal) domain.CloseReason {
	if e.CloseReason != "" {
		return e.CloseReason
	}
	if exit.Sign() <= 0 {
		return domain.CloseExternal
	}
	side := e.Side()
	if e.TakeProfit != nil {
		if dir, _ := trigger.Direction(side, domain.RoleTakeProfit); dir.Crossed(exit, *e.TakeProfit) {
			return domain.CloseTakeProfit
		}
	}
	if e.StopLoss != nil {
		if dir, _ := trigger.Direction(side, domain.RoleStopLoss); dir.Crossed(exit, *e.StopLoss) {
			return domain.CloseStopLoss
		}
	}
	return domain.CloseExternal
}

// syncEntry 远端仓位存在：修正数量偏差，刷新标记价，清理未成交的平仓标记
func (r *Reconciler) syncEntry(ctx context.Context, rp types.RemotePosition, mark decimal.Decimal, snapshotAt time.Time) (bool, error) {
	tolerance := r.tolerance(rp.ProductID)
	var drift *events.DriftEvent

	err := r.deps.Ledger.WithLock(ctx, rp.ProductID, func(tx *ledger.Tx) error {
		e, ok := tx.Get()
		if !ok {
			return nil
		}
		if e.UpdatedAt.After(snapshotAt) {
			// 快照之后本地已有新成交，本轮不修正
			return nil
		}
		changed := false
		if mark.Sign() > 0 && !mark.Equal(e.LastMark) {
			e.LastMark = mark
			changed = true
		}
		if e.AwaitingFill {
			e.AwaitingFill = false
			changed = true
		}
		if e.ClosePending {
			// 平仓单未成交（IOC 已过期），仓位仍在
			r.log.Warnf("平仓未成交，仓位仍在: product=%d remote=%s", rp.ProductID, rp.Amount)
			e.ClosePending = false
			e.ExitPrice = nil
			e.CloseReason = ""
			changed = true
		}

		delta := rp.Amount.Sub(e.Size)
		if delta.Abs().GreaterThan(tolerance) {
			drift = &events.DriftEvent{
				ProductID:  rp.ProductID,
				LocalSize:  e.Size,
				RemoteSize: rp.Amount,
				Timestamp:  r.now(),
			}
			if changed {
				tx.Put(e)
			}
			drift.Action = correctSize(tx, e, rp, mark, delta, drift.Timestamp)
			return nil
		}
		if changed {
			tx.Put(e)
		}
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "sync product %d", rp.ProductID)
	}
	if drift == nil {
		return false, nil
	}
	metrics.ReconcileDrift.Add(1)
	r.log.Warnf("仓位偏差已按交易所修正: product=%d local=%s remote=%s action=%s",
		drift.ProductID, drift.LocalSize, drift.RemoteSize, drift.Action)
	r.deps.Bus.Emit(ctx, drift)
	return true, nil
}

// correctSize 按交易所数量修正记录。
// 同向变化视为未记录的成交（加仓按观测价加权平均，减仓保持入场价）；反手按余额重新反推入场价。
func correctSize(tx *ledger.Tx, e domain.LedgerEntry, rp types.RemotePosition, mark, delta decimal.Decimal, now time.Time) string {
	reconstructed, hasRecon := domain.ReconstructEntryPrice(rp.VQuoteBalance, rp.Amount)
	if e.Size.Sign() != rp.Amount.Sign() {
		entry := reconstructed
		if !hasRecon || entry.Sign() <= 0 {
			entry = mark
		}
		if entry.Sign() <= 0 {
			entry = e.EntryPrice
		}
		e.Size = rp.Amount
		e.EntryPrice = entry
		e.TakeProfit, e.StopLoss = nil, nil
		e.TakeProfitDigest, e.StopLossDigest = "", ""
		e.OpenedAt = now
		e.Reconstructed = true
		tx.Put(e)
		return "flip"
	}

	observed := mark
	if observed.Sign() <= 0 && hasRecon {
		observed = reconstructed
	}
	if observed.Sign() <= 0 {
		observed = e.EntryPrice
	}
	tx.Put(e)
	ledger.ApplyFill(tx, e.Symbol, observed, delta, decimal.Zero)
	if delta.Sign() == e.Size.Sign() {
		return "increase"
	}
	return "reduce"
}

// reconstruct 远端有仓位但账本没有：用 |v_quote / amount| 反推入场价
func (r *Reconciler) reconstruct(ctx context.Context, rp types.RemotePosition) error {
	entry, ok := domain.ReconstructEntryPrice(rp.VQuoteBalance, rp.Amount)
	if !ok || entry.Sign() <= 0 {
		return domain.Validationf("reconcile.reconstruct", "product %d: cannot derive entry from v_quote=%s amount=%s",
			rp.ProductID, rp.VQuoteBalance, rp.Amount)
	}
	symbol := ""
	if inst, ok := r.deps.Instruments.Get(rp.ProductID); ok {
		symbol = inst.Symbol
	}
	e, err := r.deps.Ledger.RecordEntry(ctx, domain.LedgerEntry{
		ProductID:     rp.ProductID,
		Symbol:        symbol,
		EntryPrice:    entry,
		Size:          rp.Amount,
		Leverage:      r.cfg.DefaultLeverage,
		Reconstructed: true,
	})
	if err != nil {
		return errors.Wrapf(err, "reconstruct product %d", rp.ProductID)
	}
	r.log.Infof("发现未记录的仓位: product=%d %s size=%s entry=%s", e.ProductID, e.Symbol, e.Size, e.EntryPrice)
	return nil
}

// checkTargets 标记价已越过 TP/SL 但仓位仍在时告警（条件单可能未触发或被撤）
func (r *Reconciler) checkTargets(ctx context.Context, marks map[types.ProductID]decimal.Decimal) []events.TargetCrossedEvent {
	var out []events.TargetCrossedEvent
	emit := func(id types.ProductID, role domain.TriggerRole, target *decimal.Decimal) {
		if target == nil {
			return
		}
		ev := events.TargetCrossedEvent{ProductID: id, Role: role, Target: *target, Mark: marks[id], Timestamp: r.now()}
		out = append(out, ev)
		r.log.Warnf("标记价已越过 %s 但仓位仍在: product=%d target=%s mark=%s", role, id, target, ev.Mark)
		r.deps.Bus.Emit(ctx, &ev)
	}

	if r.deps.Orders != nil {
		hits := r.deps.Orders.CheckTPSL(marks)
		for _, id := range hits.TakeProfit {
			if o, ok := r.deps.Orders.Get(id); ok {
				emit(o.ProductID, domain.RoleTakeProfit, o.TakeProfit)
			}
		}
		for _, id := range hits.StopLoss {
			if o, ok := r.deps.Orders.Get(id); ok {
				emit(o.ProductID, domain.RoleStopLoss, o.StopLoss)
			}
		}
		return out
	}

	for _, e := range r.deps.Ledger.All() {
		mark, ok := marks[e.ProductID]
		if !ok || e.ClosePending {
			continue
		}
		if reason := closeReason(domain.LedgerEntry{Size: e.Size, TakeProfit: e.TakeProfit, StopLoss: e.StopLoss}, mark); reason == domain.CloseTakeProfit {
			emit(e.ProductID, domain.RoleTakeProfit, e.TakeProfit)
		} else if reason == domain.CloseStopLoss {
			emit(e.ProductID, domain.RoleStopLoss, e.StopLoss)
		}
	}
	return out
}

func (r *Reconciler) tolerance(id types.ProductID) decimal.Decimal {
	if r.cfg.SizeTolerance.Sign() > 0 {
		return r.cfg.SizeTolerance
	}
	if inst, ok := r.deps.Instruments.Get(id); ok && inst.SizeIncrement.Sign() > 0 {
		return inst.SizeIncrement.Div(decimal.NewFromInt(2))
	}
	return decimal.New(1, -9)
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := ""
	for i, err := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += err.Error()
	}
	return errors.Errorf("%d reconcile errors: %s", len(errs), msg)
}
