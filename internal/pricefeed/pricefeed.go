// Package pricefeed 标记价来源链：交易所中间价优先，失败时回退到 Binance 合约最新价。
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/nado/types"
)

// ErrPriceUnavailable 所有来源都无法给出价格
var ErrPriceUnavailable = errors.New("price unavailable")

// Source 单个价格来源
type Source interface {
	Name() string
	Price(ctx context.Context, inst types.Instrument) (decimal.Decimal, error)
}

// ExchangeQuerier 交易所价格查询，*client.Client 实现该接口
type ExchangeQuerier interface {
	GetMarketPrice(ctx context.Context, productID types.ProductID) (decimal.Decimal, error)
}

// ExchangeSource 交易所盘口中间价
type ExchangeSource struct {
	q ExchangeQuerier
}

// NewExchangeSource 创建交易所价格源
func NewExchangeSource(q ExchangeQuerier) *ExchangeSource {
	return &ExchangeSource{q: q}
}

func (s *ExchangeSource) Name() string { return "nado" }

func (s *ExchangeSource) Price(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	return s.q.GetMarketPrice(ctx, inst.ProductID)
}

// BinanceSource Binance U 本位合约最新价（无需 API key）
type BinanceSource struct {
	client *futures.Client
}

// NewBinanceSource 创建 Binance 备用源；baseURL 为空时使用默认地址
func NewBinanceSource(baseURL string, timeout time.Duration) *BinanceSource {
	c := futures.NewClient("", "")
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		c.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: c}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) Price(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	symbol := strings.ToUpper(strings.TrimSpace(inst.FallbackTicker))
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("product %d has no fallback ticker", inst.ProductID)
	}
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, symbol) {
			return decimal.NewFromString(p.Price)
		}
	}
	return decimal.Zero, fmt.Errorf("binance ticker %s not found", symbol)
}

type quote struct {
	price  decimal.Decimal
	source string
	at     time.Time
}

// Feed 按顺序尝试各来源，记录最后一次成功的价格
type Feed struct {
	sources []Source

	mu   sync.RWMutex
	last map[types.ProductID]quote
	now  func() time.Time
	log  *logrus.Entry
}

// NewFeed 创建价格链
func NewFeed(sources ...Source) *Feed {
	return &Feed{
		sources: sources,
		last:    make(map[types.ProductID]quote),
		now:     time.Now,
		log:     logrus.WithField("component", "pricefeed"),
	}
}

// Price 返回第一个可用来源的价格。全部失败时返回 ErrPriceUnavailable（网络类错误），调用方应推迟操作。
func (f *Feed) Price(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	var errs []string
	for i, src := range f.sources {
		p, err := src.Price(ctx, inst)
		if err == nil && p.Sign() > 0 {
			if i > 0 {
				metrics.PriceFallbacks.Add(1)
				f.log.Debugf("product %d 使用备用价格源 %s: %s", inst.ProductID, src.Name(), p)
			}
			f.mu.Lock()
			f.last[inst.ProductID] = quote{price: p, source: src.Name(), at: f.now()}
			f.mu.Unlock()
			return p, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %s", p)
		}
		errs = append(errs, src.Name()+": "+err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	return decimal.Zero, &domain.Error{
		Kind: domain.KindNetwork,
		Op:   "pricefeed.price",
		Msg:  fmt.Sprintf("product %d: %s", inst.ProductID, strings.Join(errs, "; ")),
		Err:  ErrPriceUnavailable,
	}
}

// Last 最近一次成功获取的价格
func (f *Feed) Last(id types.ProductID) (decimal.Decimal, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.last[id]
	return q.price, q.at, ok
}

// Remember 记录外部得到的价格（例如推送流）
func (f *Feed) Remember(id types.ProductID, price decimal.Decimal, source string) {
	if price.Sign() <= 0 {
		return
	}
	f.mu.Lock()
	f.last[id] = quote{price: price, source: source, at: f.now()}
	f.mu.Unlock()
}
