// Package engine 单账户交易句柄：开平仓、TP/SL、仓位列表和历史查询。
//
// 每个方法都返回 domain.Result，区分成功、失败和结果未知。
// 账本只在网络请求成功后修改；记录的删除只由对账循环完成。
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/events"
	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/history"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/internal/orders"
	"github.com/betbot/goperp/internal/risk"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

// PriceSource 标记价来源
type PriceSource interface {
	Price(ctx context.Context, inst types.Instrument) (decimal.Decimal, error)
}

// Instruments 产品元数据
type Instruments interface {
	Get(id types.ProductID) (types.Instrument, bool)
	IDs() []types.ProductID
}

// HistoryReader 平仓历史查询
type HistoryReader interface {
	List(ctx context.Context, q history.Query) ([]domain.ClosedTrade, error)
	Stats(ctx context.Context, q history.Query) (domain.TradeStats, error)
}

// Config 交易参数
type Config struct {
	Leverage decimal.Decimal
	// Slippage 市价单（IOC）相对标记价的滑点
	Slippage decimal.Decimal
	OrderTTL time.Duration
	// AutoTakeProfitPct 开仓后自动设置的止盈百分比，0 关闭
	AutoTakeProfitPct decimal.Decimal
	MakerFee          decimal.Decimal
	Trigger           trigger.Config
	// InFlightTTL 结果未知时同一产品拒绝重复提交的时长
	InFlightTTL time.Duration
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		Leverage:    decimal.NewFromInt(1),
		Slippage:    decimal.RequireFromString("0.005"),
		OrderTTL:    time.Minute,
		MakerFee:    decimal.RequireFromString("0.0002"),
		Trigger:     trigger.DefaultConfig(),
		InFlightTTL: 30 * time.Second,
	}
}

// Deps 引擎依赖
type Deps struct {
	Gateway     execution.Gateway
	Builder     *execution.Builder
	Ledger      ledger.Writer
	Instruments Instruments
	Prices      PriceSource
	Orders      *orders.Manager
	History     HistoryReader
	Bus         *events.Bus
	Breaker     *risk.CircuitBreaker
	// Nudge 请求对账循环尽快运行（可选）
	Nudge func()
}

// Engine 交易句柄，由调用方持有；多个账户各自创建实例
type Engine struct {
	deps     Deps
	cfg      Config
	triggers *trigger.Manager
	gate     *execution.InFlightGate
	now      func() time.Time
	log      *logrus.Entry
}

// New 创建引擎
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Gateway == nil || deps.Builder == nil || deps.Ledger == nil || deps.Instruments == nil || deps.Prices == nil {
		return nil, errors.New("engine: gateway, builder, ledger, instruments and prices are required")
	}
	if deps.Orders == nil {
		deps.Orders = orders.NewManager()
	}
	if cfg.Leverage.Sign() <= 0 {
		cfg.Leverage = decimal.NewFromInt(1)
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = time.Minute
	}
	if cfg.Trigger.TTL <= 0 {
		cfg.Trigger = trigger.DefaultConfig()
	}
	return &Engine{
		deps:     deps,
		cfg:      cfg,
		triggers: trigger.NewManager(deps.Gateway, deps.Builder, cfg.Trigger),
		gate:     execution.NewInFlightGate(cfg.InFlightTTL, 16),
		now:      time.Now,
		log:      logrus.WithField("component", "engine"),
	}, nil
}

// Sender 当前子账户
func (e *Engine) Sender() types.Sender {
	return e.deps.Builder.Sender()
}

// Orders 本地订单记录
func (e *Engine) Orders() *orders.Manager {
	return e.deps.Orders
}

func (e *Engine) instrument(op string, id types.ProductID) (types.Instrument, error) {
	inst, ok := e.deps.Instruments.Get(id)
	if !ok {
		return types.Instrument{}, domain.Validationf(op, "unknown product %d", id)
	}
	return inst, nil
}

// fail 统一的失败出口：归类错误、计数、释放去重占用
func (e *Engine) fail(op, key string, err error) (domain.Result, error) {
	res, classified := execution.Result(op, err)
	e.observe(key, res.Outcome, classified)
	switch res.Outcome {
	case domain.OutcomeUnknown:
		e.log.Warnf("%s 结果未知，需对账确认: %v", op, classified)
		e.nudge()
	default:
		if domain.IsKind(classified, domain.KindValidation) {
			e.log.Infof("%s 校验失败: %v", op, classified)
		} else {
			e.log.Errorf("%s 失败: %v", op, classified)
		}
	}
	return res, classified
}

func (e *Engine) succeed(key string, res domain.Result) (domain.Result, error) {
	res.Outcome = domain.OutcomeSucceeded
	e.observe(key, res.Outcome, nil)
	return res, nil
}

// observe 释放去重占用；只有真正发往交易所的请求计入熔断和下单指标
func (e *Engine) observe(key string, outcome domain.Outcome, err error) {
	if key != "" {
		e.gate.Finish(key, outcome)
	}
	if err != nil && !domain.IsRemote(err) {
		return
	}
	if isOrderKey(key) && (err == nil || domain.WasSubmitted(err) || domain.IsKind(err, domain.KindRemoteRejection)) {
		metrics.ObserveOutcome(string(outcome))
	}
	e.deps.Breaker.Observe(err)
}

func isOrderKey(key string) bool {
	return strings.HasPrefix(key, "open:") || strings.HasPrefix(key, "close:")
}

func (e *Engine) nudge() {
	if e.deps.Nudge != nil {
		e.deps.Nudge()
	}
}

// mark 获取标记价；失败时返回网络错误，调用方应推迟操作
func (e *Engine) mark(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	p, err := e.deps.Prices.Price(ctx, inst)
	if err != nil {
		return decimal.Zero, err
	}
	if p.Sign() <= 0 {
		return decimal.Zero, domain.Wrap(domain.KindNetwork, "engine.mark", errors.Errorf("no price for product %d", inst.ProductID))
	}
	return p, nil
}
