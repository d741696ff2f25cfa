package metrics

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/sirupsen/logrus"
)

// Gauge 读取时计算的指标，例如账本中的仓位数
type Gauge func() any

// PublishGauges 注册 expvar.Func；同名指标只注册一次
func PublishGauges(gauges map[string]Gauge) {
	for name, fn := range gauges {
		if expvar.Get(name) != nil {
			continue
		}
		expvar.Publish(name, expvar.Func(fn))
	}
}

func handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	for name, fn := range map[string]http.HandlerFunc{
		"cmdline": pprof.Cmdline,
		"profile": pprof.Profile,
		"symbol":  pprof.Symbol,
		"trace":   pprof.Trace,
	} {
		mux.HandleFunc("/debug/pprof/"+name, fn)
	}
	return mux
}

// StartAsync 在后台提供 /debug/vars 和 pprof，ctx 结束时关闭。只应监听本机地址。
func StartAsync(ctx context.Context, addr string, gauges map[string]Gauge) (*http.Server, error) {
	PublishGauges(gauges)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Addr: ln.Addr().String(), Handler: handler(), ReadHeaderTimeout: 5 * time.Second}
	log := logrus.WithField("component", "metrics")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics 服务退出: %v", err)
		}
	}()
	context.AfterFunc(ctx, func() {
		c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	})
	log.Infof("metrics: http://%s/debug/vars", srv.Addr)
	return srv, nil
}
