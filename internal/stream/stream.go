// Package stream 订阅 Nado 成交和仓位变化推送，用于触发即时对账。
//
// 推送只是加速手段，断线期间由定时对账兜底。
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
)

// Kind 推送类型
type Kind string

const (
	KindFill           Kind = "fill"
	KindPositionChange Kind = "position_change"
)

// Update 一条推送
type Update struct {
	Kind       Kind
	ProductID  types.ProductID
	Subaccount string
	// Price/FilledQty 成交价和有符号成交量（买为正），仅 fill
	Price     decimal.Decimal
	FilledQty decimal.Decimal
	Digest    string
	// Amount/VQuote 变化后的仓位和虚拟报价余额，仅 position_change
	Amount    decimal.Decimal
	VQuote    decimal.Decimal
	Timestamp time.Time
}

// Handler 推送处理器
type Handler func(ctx context.Context, u Update)

// Config 订阅参数
type Config struct {
	URL      string
	Sender   types.Sender
	Products []types.ProductID
	// Kinds 订阅的推送类型，默认 fill 和 position_change
	Kinds          []Kind
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	ReconnectDelay time.Duration
	// MaxReconnects 连续重连上限，0 表示不限
	MaxReconnects int
	Header        http.Header
}

func (c Config) withDefaults() Config {
	if len(c.Kinds) == 0 {
		c.Kinds = []Kind{KindFill, KindPositionChange}
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * c.PingInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	return c
}

// Client 推送订阅客户端
type Client struct {
	cfg    Config
	dialer websocket.Dialer

	mu       sync.RWMutex
	handlers []Handler
	log      *logrus.Entry
}

// New 创建订阅客户端
func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg.withDefaults(),
		dialer: websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:    logrus.WithField("component", "stream"),
	}
}

// OnUpdate 注册处理器
func (c *Client) OnUpdate(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Run 连接并保持订阅，断线后按递增延迟重连，直到 ctx 取消或超过重连上限
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		delivered, err := c.session(ctx)
		if ctx.Err() != nil {
			c.log.Info("推送订阅退出")
			return ctx.Err()
		}
		if delivered {
			attempt = 0
		}
		attempt++
		if c.cfg.MaxReconnects > 0 && attempt > c.cfg.MaxReconnects {
			return errors.Wrapf(err, "stream: giving up after %d reconnects", c.cfg.MaxReconnects)
		}
		metrics.StreamReconnects.Add(1)
		delay := c.cfg.ReconnectDelay * time.Duration(attempt)
		if delay > time.Minute {
			delay = time.Minute
		}
		c.log.Warnf("推送连接断开: %v，%s 后重连 (第 %d 次)", err, delay, attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// session 单次连接的生命周期；delivered 表示本次连接至少收到过一条推送
func (c *Client) session(ctx context.Context) (delivered bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return false, errors.Wrap(err, "dial")
	}
	defer conn.Close()

	if err := c.subscribe(conn); err != nil {
		return false, err
	}
	c.log.Infof("推送已订阅: products=%v kinds=%v", c.cfg.Products, c.cfg.Kinds)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sctx.Done()
		// 关闭连接以唤醒阻塞的读
		_ = conn.Close()
	}()
	go c.pingLoop(sctx, conn)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return delivered, err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return delivered, errors.Wrap(err, "read")
		}
		u, ok := ParseUpdate(msg)
		if !ok {
			continue
		}
		delivered = true
		c.dispatch(ctx, u)
	}
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	id := 0
	for _, kind := range c.cfg.Kinds {
		for _, pid := range c.cfg.Products {
			id++
			req := map[string]interface{}{
				"method": "subscribe",
				"stream": map[string]interface{}{
					"type":       string(kind),
					"product_id": uint32(pid),
					"subaccount": c.cfg.Sender.Hex(),
				},
				"id": id,
			}
			if err := conn.WriteJSON(req); err != nil {
				return errors.Wrapf(err, "subscribe %s product %d", kind, pid)
			}
		}
	}
	return nil
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debugf("发送 ping 失败: %v", err)
				return
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, u Update) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.RUnlock()
	for i, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Errorf("推送处理器 %d panic: %v", i, r)
				}
			}()
			h(ctx, u)
		}()
	}
}

// ParseUpdate 解析推送消息；订阅确认等其他消息返回 false
func ParseUpdate(msg []byte) (Update, bool) {
	if !json.Valid(msg) {
		return Update{}, false
	}
	res := gjson.ParseBytes(msg)
	u := Update{
		Kind:       Kind(res.Get("type").String()),
		ProductID:  types.ProductID(res.Get("product_id").Uint()),
		Subaccount: res.Get("subaccount").String(),
		Timestamp:  parseNanos(res.Get("timestamp").String()),
	}
	switch u.Kind {
	case KindFill:
		u.Price = decimalX18(res.Get("price").String())
		u.FilledQty = decimalX18(res.Get("filled_qty").String())
		if !res.Get("is_bid").Bool() {
			u.FilledQty = u.FilledQty.Abs().Neg()
		}
		u.Digest = res.Get("order_digest").String()
	case KindPositionChange:
		u.Amount = decimalX18(res.Get("amount").String())
		u.VQuote = decimalX18(res.Get("v_quote_amount").String())
	default:
		return Update{}, false
	}
	return u, true
}

func decimalX18(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := x18.ParseDecimal(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func parseNanos(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Now()
	}
	return time.Unix(0, n)
}
