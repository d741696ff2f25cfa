// Package instrument 维护产品步长表，并可从网关刷新。
package instrument

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ProductSource 产品信息来源（网关 all_products）
type ProductSource interface {
	GetAllProducts(ctx context.Context) ([]types.Instrument, error)
}

// Registry 产品注册表，并发安全
type Registry struct {
	mu       sync.RWMutex
	byID     map[types.ProductID]types.Instrument
	bySymbol map[string]types.ProductID
	log      *logrus.Entry
}

// NewRegistry 创建注册表
func NewRegistry(insts ...types.Instrument) (*Registry, error) {
	r := &Registry{
		byID:     make(map[types.ProductID]types.Instrument),
		bySymbol: make(map[string]types.ProductID),
		log:      logrus.WithField("component", "instruments"),
	}
	for _, inst := range insts {
		if err := r.Put(inst); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FromConfig 由配置构建注册表
func FromConfig(cfgs []config.InstrumentConfig) (*Registry, error) {
	insts := make([]types.Instrument, 0, len(cfgs))
	for _, c := range cfgs {
		inst := types.Instrument{
			ProductID:      types.ProductID(c.ProductID),
			Symbol:         c.Symbol,
			FallbackTicker: c.FallbackTicker,
		}
		var err error
		if inst.SizeIncrement, err = decimal.NewFromString(c.SizeIncrement); err != nil {
			return nil, fmt.Errorf("product %d size_increment: %w", c.ProductID, err)
		}
		if inst.PriceIncrement, err = decimal.NewFromString(c.PriceIncrement); err != nil {
			return nil, fmt.Errorf("product %d price_increment: %w", c.ProductID, err)
		}
		if c.MinSize != "" {
			if inst.MinSize, err = decimal.NewFromString(c.MinSize); err != nil {
				return nil, fmt.Errorf("product %d min_size: %w", c.ProductID, err)
			}
		}
		insts = append(insts, inst)
	}
	return NewRegistry(insts...)
}

// Put 新增或替换产品
func (r *Registry) Put(inst types.Instrument) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[inst.ProductID]; ok && old.Symbol != inst.Symbol {
		delete(r.bySymbol, normSymbol(old.Symbol))
	}
	r.byID[inst.ProductID] = inst
	if inst.Symbol != "" {
		r.bySymbol[normSymbol(inst.Symbol)] = inst.ProductID
	}
	return nil
}

// Get 按 ID 查询
func (r *Registry) Get(id types.ProductID) (types.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byID[id]
	return inst, ok
}

// Lookup 按 ID 或符号（SOL、SOL-PERP、8）查询
func (r *Registry) Lookup(key string) (types.Instrument, bool) {
	key = strings.TrimSpace(key)
	var id uint32
	if _, err := fmt.Sscanf(key, "%d", &id); err == nil && fmt.Sprint(id) == key {
		return r.Get(types.ProductID(id))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := normSymbol(key)
	if pid, ok := r.bySymbol[s]; ok {
		return r.byID[pid], true
	}
	if pid, ok := r.bySymbol[s+"-PERP"]; ok {
		return r.byID[pid], true
	}
	return types.Instrument{}, false
}

// All 按 ID 排序返回全部产品
func (r *Registry) All() []types.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Instrument, 0, len(r.byID))
	for _, inst := range r.byID {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// IDs 全部产品 ID
func (r *Registry) IDs() []types.ProductID {
	all := r.All()
	ids := make([]types.ProductID, 0, len(all))
	for _, inst := range all {
		ids = append(ids, inst.ProductID)
	}
	return ids
}

// Refresh 用网关返回的步长更新已知产品；未配置符号的新产品不加入
func (r *Registry) Refresh(ctx context.Context, src ProductSource) (int, error) {
	remote, err := src.GetAllProducts(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, p := range remote {
		cur, ok := r.Get(p.ProductID)
		if !ok {
			continue
		}
		next := cur
		if p.SizeIncrement.Sign() > 0 {
			next.SizeIncrement = p.SizeIncrement
		}
		if p.PriceIncrement.Sign() > 0 {
			next.PriceIncrement = p.PriceIncrement
		}
		if p.MinSize.Sign() > 0 {
			next.MinSize = p.MinSize
		}
		if next.SizeIncrement.Equal(cur.SizeIncrement) && next.PriceIncrement.Equal(cur.PriceIncrement) && next.MinSize.Equal(cur.MinSize) {
			continue
		}
		if err := r.Put(next); err != nil {
			r.log.Warnf("忽略无效的产品步长: product=%d err=%v", p.ProductID, err)
			continue
		}
		r.log.Infof("产品步长已更新: %s size=%s price=%s", next.Symbol, next.SizeIncrement, next.PriceIncrement)
		updated++
	}
	return updated, nil
}

func normSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
