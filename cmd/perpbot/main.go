// perpbot 常驻进程：交易引擎、对账循环、推送订阅和 HTTP 接口。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/pkg/config"
	"github.com/betbot/goperp/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	noStream := flag.Bool("no-stream", false, "不订阅推送，只做定时对账")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "配置无效:", err)
		os.Exit(1)
	}
	if *noStream {
		cfg.Reconcile.StreamEnabled = false
	}
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Errorf("perpbot 退出: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.shutdown.Shutdown(shutdownCtx)
	}()

	if cfg.API.MetricsListen != "" {
		if _, err := metrics.StartAsync(ctx, cfg.API.MetricsListen, a.gauges()); err != nil {
			logger.Warnf("metrics 服务启动失败: %v", err)
		}
	}

	logger.Infof("perpbot 启动: network=%s sender=%s products=%d", cfg.Network.Name, a.engine.Sender().Hex(), len(a.registry.IDs()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.reconciler.Run(gctx) })
	g.Go(func() error { return a.checkpointLoop(gctx) })
	if a.stream != nil {
		g.Go(func() error { return a.stream.Run(gctx) })
	}
	if a.api != nil {
		g.Go(func() error { return a.api.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("收到退出信号")
		return nil
	}
	return err
}
