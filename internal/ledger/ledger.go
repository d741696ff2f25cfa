// Package ledger 本地仓位账本：每个产品一条记录，单写者串行，持久化到 persistence.Service。
package ledger

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/persistence"
)

const storePrefix = "ledger"

// Writer 交易引擎可用的账本接口：只能创建和更新，不能删除
type Writer interface {
	Get(id types.ProductID) (domain.LedgerEntry, bool)
	All() []domain.LedgerEntry
	WithLock(ctx context.Context, id types.ProductID, fn func(tx *Tx) error) error
	Update(ctx context.Context, id types.ProductID, fn func(e *domain.LedgerEntry) error) (domain.LedgerEntry, error)
}

// Ledger 仓位账本
type Ledger struct {
	mu      sync.RWMutex
	entries map[types.ProductID]domain.LedgerEntry
	locks   map[types.ProductID]chan struct{}

	svc     persistence.Service
	account string
	now     func() time.Time
	log     *logrus.Entry
}

// Open 打开账本并加载已持久化的记录
func Open(svc persistence.Service, account string) (*Ledger, error) {
	l := &Ledger{
		entries: make(map[types.ProductID]domain.LedgerEntry),
		locks:   make(map[types.ProductID]chan struct{}),
		svc:     svc,
		account: account,
		now:     time.Now,
		log:     logrus.WithField("component", "ledger"),
	}
	tags, err := svc.List(storePrefix, account)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}
	for _, tag := range tags {
		id, err := strconv.ParseUint(tag, 10, 32)
		if err != nil {
			l.log.Warnf("忽略无法识别的账本键: %s", tag)
			continue
		}
		var e domain.LedgerEntry
		if err := l.store(types.ProductID(id)).Load(&e); err != nil {
			if errors.Is(err, persistence.ErrNotExists) {
				continue
			}
			return nil, errors.Wrapf(err, "load ledger entry %s", tag)
		}
		l.entries[e.ProductID] = e
	}
	if len(l.entries) > 0 {
		l.log.Infof("已恢复 %d 条账本记录", len(l.entries))
	}
	return l, nil
}

func (l *Ledger) store(id types.ProductID) persistence.Store {
	return l.svc.NewStore(storePrefix, l.account, id.String())
}

func (l *Ledger) keyLock(id types.ProductID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[id] = ch
	}
	return ch
}

func (l *Ledger) lock(ctx context.Context, id types.ProductID) (func(), error) {
	ch := l.keyLock(id)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get 读取记录（返回副本）
func (l *Ledger) Get(id types.ProductID) (domain.LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return domain.LedgerEntry{}, false
	}
	return e.Clone(), true
}

// All 按产品 ID 排序返回全部记录
func (l *Ledger) All() []domain.LedgerEntry {
	l.mu.RLock()
	out := make([]domain.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Tx 单个产品的写事务，fn 返回 nil 后才提交
type Tx struct {
	id     types.ProductID
	cur    *domain.LedgerEntry
	staged *domain.LedgerEntry
	now    time.Time
}

// Get 当前（含已暂存）记录
func (tx *Tx) Get() (domain.LedgerEntry, bool) {
	if tx.staged != nil {
		return tx.staged.Clone(), true
	}
	if tx.cur != nil {
		return tx.cur.Clone(), true
	}
	return domain.LedgerEntry{}, false
}

// Put 暂存新记录
func (tx *Tx) Put(e domain.LedgerEntry) {
	e.ProductID = tx.id
	if e.OpenedAt.IsZero() {
		if tx.cur != nil && !tx.cur.OpenedAt.IsZero() {
			e.OpenedAt = tx.cur.OpenedAt
		} else {
			e.OpenedAt = tx.now
		}
	}
	e.UpdatedAt = tx.now
	c := e.Clone()
	tx.staged = &c
}

// WithLock 持有产品锁执行 fn（可包含网络请求）。
// fn 返回错误或 ctx 取消时丢弃暂存修改，账本保持原状。
func (l *Ledger) WithLock(ctx context.Context, id types.ProductID, fn func(tx *Tx) error) error {
	unlock, err := l.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &Tx{id: id, now: l.now()}
	if e, ok := l.Get(id); ok {
		tx.cur = &e
	}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.staged == nil {
		return nil
	}
	return l.commit(*tx.staged)
}

func (l *Ledger) commit(e domain.LedgerEntry) error {
	if err := l.store(e.ProductID).Save(e); err != nil {
		return domain.Wrap(domain.KindInternal, "ledger.save", err)
	}
	l.mu.Lock()
	l.entries[e.ProductID] = e
	l.mu.Unlock()
	l.log.Debugf("账本已更新: product=%d entry=%s size=%s", e.ProductID, e.EntryPrice, e.Size)
	return nil
}

// RecordEntry 创建或覆盖产品记录
func (l *Ledger) RecordEntry(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.EntryPrice.Sign() <= 0 {
		return domain.LedgerEntry{}, domain.Validationf("ledger.record", "entry price must be positive, got %s", e.EntryPrice)
	}
	if e.Size.IsZero() {
		return domain.LedgerEntry{}, domain.Validationf("ledger.record", "size must be non-zero")
	}
	var out domain.LedgerEntry
	err := l.WithLock(ctx, e.ProductID, func(tx *Tx) error {
		tx.Put(e)
		out, _ = tx.Get()
		return nil
	})
	return out, err
}

// Update 修改已存在的记录；不存在时返回 ValidationError
func (l *Ledger) Update(ctx context.Context, id types.ProductID, fn func(e *domain.LedgerEntry) error) (domain.LedgerEntry, error) {
	var out domain.LedgerEntry
	err := l.WithLock(ctx, id, func(tx *Tx) error {
		e, ok := tx.Get()
		if !ok {
			return domain.Validationf("ledger.update", "no ledger entry for product %d", id)
		}
		if err := fn(&e); err != nil {
			return err
		}
		tx.Put(e)
		out, _ = tx.Get()
		return nil
	})
	return out, err
}

// ApplyFill 按成交更新记录：无记录时新建，同向加仓加权平均，反手重置入场价
func ApplyFill(tx *Tx, symbol string, price, size, leverage decimal.Decimal) domain.LedgerEntry {
	e, ok := tx.Get()
	if !ok {
		e = domain.LedgerEntry{Symbol: symbol, Leverage: leverage}
	}
	flipped := ok && !e.Size.IsZero() && e.Size.Sign() != e.Size.Add(size).Sign() && !e.Size.Add(size).IsZero()
	e.EntryPrice = domain.AverageEntry(e.EntryPrice, e.Size, price, size)
	e.Size = e.Size.Add(size)
	if flipped {
		// 反手后旧方向的 TP/SL 失效
		e.TakeProfit, e.StopLoss = nil, nil
		e.TakeProfitDigest, e.StopLossDigest = "", ""
		e.OpenedAt = tx.now
	}
	if leverage.Sign() > 0 {
		e.Leverage = leverage
	}
	if e.Symbol == "" {
		e.Symbol = symbol
	}
	tx.Put(e)
	return e
}

// Evict 删除记录并返回删除前的内容。只有对账循环调用。
func (l *Ledger) Evict(ctx context.Context, id types.ProductID) (domain.LedgerEntry, bool, error) {
	return l.EvictIf(ctx, id, nil)
}

// EvictIf 持锁后 cond 返回 true 才删除；cond 为 nil 时无条件删除
func (l *Ledger) EvictIf(ctx context.Context, id types.ProductID, cond func(domain.LedgerEntry) bool) (domain.LedgerEntry, bool, error) {
	unlock, err := l.lock(ctx, id)
	if err != nil {
		return domain.LedgerEntry{}, false, err
	}
	defer unlock()

	prev, ok := l.Get(id)
	if !ok || (cond != nil && !cond(prev)) {
		return domain.LedgerEntry{}, false, nil
	}
	if err := l.store(id).Delete(); err != nil {
		return domain.LedgerEntry{}, false, domain.Wrap(domain.KindInternal, "ledger.evict", err)
	}
	l.mu.Lock()
	delete(l.entries, id)
	l.mu.Unlock()
	l.log.Infof("账本记录已移除: product=%d entry=%s", id, prev.EntryPrice)
	return prev, true, nil
}
