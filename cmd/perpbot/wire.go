package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/api"
	"github.com/betbot/goperp/internal/engine"
	"github.com/betbot/goperp/internal/events"
	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/history"
	"github.com/betbot/goperp/internal/instrument"
	"github.com/betbot/goperp/internal/keys"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/internal/orders"
	"github.com/betbot/goperp/internal/pricefeed"
	"github.com/betbot/goperp/internal/reconcile"
	"github.com/betbot/goperp/internal/risk"
	"github.com/betbot/goperp/internal/stream"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/client"
	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/config"
	"github.com/betbot/goperp/pkg/logger"
	"github.com/betbot/goperp/pkg/persistence"
	"github.com/betbot/goperp/pkg/ratelimit"
	"github.com/betbot/goperp/pkg/shutdown"
)

const checkpointInterval = time.Minute

type app struct {
	account    string
	store      *persistence.BadgerService
	ledger     *ledger.Ledger
	breaker    *risk.CircuitBreaker
	registry   *instrument.Registry
	orders     *orders.Manager
	engine     *engine.Engine
	reconciler *reconcile.Reconciler
	stream     *stream.Client
	api        *api.Server
	shutdown   *shutdown.Manager
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	// 之后的 decimalOr 依赖配置已通过校验
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "配置无效")
	}
	a := &app{shutdown: shutdown.NewManager()}

	signer, src, err := keys.Load(keys.FromConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "加载签名私钥")
	}
	logger.Infof("签名私钥来源: %s owner=%s linked=%v", src, signer.Owner().Hex(), signer.IsLinked())

	a.registry, err = instrument.FromConfig(cfg.Instruments)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "创建数据目录")
	}
	a.store, err = persistence.NewBadgerService(persistence.BadgerOptions{Path: cfg.Storage.BadgerDir, SyncWrites: true})
	if err != nil {
		return nil, err
	}
	a.shutdown.OnShutdown("badger", func(context.Context) {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭 badger 失败: %v", err)
		}
	})

	// 网关客户端
	nonces := signing.NewNonceSource(signing.DefaultRecvWindow)
	endpoints := client.EndpointsFor(types.Network(cfg.Network.Name))
	if cfg.Network.GatewayURL != "" {
		endpoints.Gateway = cfg.Network.GatewayURL
	}
	if cfg.Network.TriggerURL != "" {
		endpoints.Trigger = cfg.Network.TriggerURL
	}
	transport := client.NewRestyTransport(client.HTTPOptions{
		Timeout:          cfg.HTTP.Timeout,
		RetryCount:       cfg.HTTP.RetryCount,
		RetryWaitTime:    cfg.HTTP.RetryWait,
		RetryMaxWaitTime: cfg.HTTP.RetryMaxWait,
	})
	limits := ratelimit.NewRateLimitManager(ratelimit.Limits{
		QueryPerSecond:   cfg.HTTP.QueryPerSecond,
		ExecutePerSecond: cfg.HTTP.ExecutePerSecond,
		TriggerPerSecond: cfg.HTTP.TriggerPerSecond,
	})
	gw := client.NewClient(transport, endpoints,
		client.WithRateLimits(limits),
		client.WithSigner(signer, nonces, cfg.Wallet.Subaccount),
	)

	refreshCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.Timeout)
	if n, err := a.registry.Refresh(refreshCtx, gw); err != nil {
		logger.Warnf("刷新产品列表失败，使用配置中的步长: %v", err)
	} else {
		logger.Infof("已从交易所刷新 %d 个产品", n)
	}
	cancel()

	builder := execution.NewBuilder(signer, nonces, cfg.Wallet.Subaccount)
	sender := builder.Sender()
	a.account = sender.Hex()
	logger.Component("perpbot").Infof("子账户 %s", logger.MaskSecret(a.account))

	led, err := ledger.Open(a.store, a.account)
	if err != nil {
		return nil, err
	}
	a.ledger = led
	hist, err := history.Open(cfg.Storage.HistoryPath, a.account)
	if err != nil {
		return nil, err
	}
	a.shutdown.OnShutdown("history", func(context.Context) { _ = hist.Close() })

	a.orders = orders.NewManager()
	if err := a.orders.Restore(a.store, a.account); err != nil && !errors.Is(err, persistence.ErrNotExists) {
		logger.Warnf("恢复订单记录失败: %v", err)
	}
	a.shutdown.OnShutdown("orders", func(context.Context) { a.checkpoint() })

	sources := []pricefeed.Source{pricefeed.NewExchangeSource(gw)}
	if cfg.PriceFeed.BinanceFallback {
		sources = append(sources, pricefeed.NewBinanceSource(cfg.PriceFeed.BinanceBaseURL, cfg.PriceFeed.Timeout))
	}
	feed := pricefeed.NewFeed(sources...)

	breaker := risk.NewCircuitBreaker(risk.Config{
		MaxConsecutiveErrors: cfg.Risk.MaxConsecutiveErrors,
		DailyLossLimit:       decimalOr(cfg.Risk.DailyLossLimit, decimal.Zero),
	})
	a.breaker = breaker

	bus := events.NewBus()
	bus.On(events.TypePositionClosed, func(_ context.Context, ev events.Event) error {
		closed := ev.(*events.PositionClosedEvent)
		breaker.AddRealizedPnL(closed.Trade.PnL)
		a.checkpoint()
		return nil
	})

	a.reconciler, err = reconcile.New(reconcile.Deps{
		Ledger:      led,
		Querier:     gw,
		Prices:      feed,
		Instruments: a.registry,
		History:     hist,
		Orders:      a.orders,
		Bus:         bus,
		Sender:      sender,
	}, reconcile.Config{
		Interval:        cfg.Reconcile.Interval,
		MinGap:          time.Second,
		DefaultLeverage: decimalOr(cfg.Trading.Leverage, decimal.NewFromInt(1)),
		FetchTimeout:    cfg.HTTP.Timeout,
		SizeTolerance:   decimalOr(cfg.Reconcile.SizeTolerance, decimal.Zero),
	})
	if err != nil {
		return nil, err
	}

	ecfg := engine.DefaultConfig()
	ecfg.Leverage = decimalOr(cfg.Trading.Leverage, ecfg.Leverage)
	ecfg.Slippage = decimalOr(cfg.Trading.Slippage, ecfg.Slippage)
	ecfg.OrderTTL = cfg.Trading.OrderTTL
	ecfg.AutoTakeProfitPct = decimalOr(cfg.Trading.AutoTakeProfitPct, decimal.Zero)
	ecfg.MakerFee = decimalOr(cfg.Trading.MakerFee, ecfg.MakerFee)
	ecfg.Trigger = trigger.Config{
		StopLossSlippage:   decimalOr(cfg.Trading.StopLossSlippage, trigger.DefaultConfig().StopLossSlippage),
		TakeProfitPostOnly: cfg.Trading.TakeProfitPostOnly,
		TTL:                cfg.Trading.TriggerTTL,
	}
	a.engine, err = engine.New(engine.Deps{
		Gateway:     gw,
		Builder:     builder,
		Ledger:      led,
		Instruments: a.registry,
		Prices:      feed,
		Orders:      a.orders,
		History:     hist,
		Bus:         bus,
		Breaker:     breaker,
		Nudge:       a.reconciler.Nudge,
	}, ecfg)
	if err != nil {
		return nil, err
	}

	if cfg.Reconcile.StreamEnabled {
		url := cfg.Network.SubscribeURL
		if url == "" {
			url = client.TestnetSubscribeURL
			if types.Network(cfg.Network.Name) == types.NetworkMainnet {
				url = client.MainnetSubscribeURL
			}
		}
		a.stream = stream.New(stream.Config{URL: url, Sender: sender, Products: a.registry.IDs()})
		a.stream.OnUpdate(func(_ context.Context, u stream.Update) {
			if u.Kind == stream.KindFill {
				feed.Remember(u.ProductID, u.Price, "stream")
			}
			a.reconciler.Nudge()
		})
	}

	if cfg.API.Listen != "" {
		if cfg.API.Token == "" {
			logger.Warnf("API_TOKEN 未设置，%s 上的接口不需要鉴权", cfg.API.Listen)
		}
		a.api, err = api.New(api.Config{Listen: cfg.API.Listen, Token: cfg.API.Token}, a.engine, a.registry)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) checkpoint() {
	if err := a.orders.Checkpoint(a.store, a.account); err != nil {
		logger.Warnf("保存订单记录失败: %v", err)
	}
}

func (a *app) gauges() map[string]metrics.Gauge {
	return map[string]metrics.Gauge{
		"ledger_entries": func() any { return len(a.ledger.All()) },
		"breaker_halted": func() any { return a.breaker.Halted() },
		"daily_pnl":      func() any { return a.breaker.DailyPnL().String() },
	}
}

func (a *app) checkpointLoop(ctx context.Context) error {
	t := time.NewTicker(checkpointInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.checkpoint()
		}
	}
}

// decimalOr 空串取默认值。非法数值已被 config.Validate 拒绝
func decimalOr(s string, def decimal.Decimal) decimal.Decimal {
	if s == "" {
		return def
	}
	return decimal.RequireFromString(s)
}
