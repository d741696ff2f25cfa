package client

import (
	"context"
	"strings"

	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/ratelimit"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// 默认网关地址
const (
	MainnetGatewayURL   = "https://gateway.prod.nado.xyz/v1"
	MainnetTriggerURL   = "https://trigger.prod.nado.xyz/v1"
	MainnetSubscribeURL = "wss://gateway.prod.nado.xyz/v1/subscribe"
	TestnetGatewayURL   = "https://gateway.test.nado.xyz/v1"
	TestnetTriggerURL   = "https://trigger.test.nado.xyz/v1"
	TestnetSubscribeURL = "wss://gateway.test.nado.xyz/v1/subscribe"
)

// Endpoints 网关地址集合
type Endpoints struct {
	Gateway string
	Trigger string
}

// EndpointsFor 返回网络的默认地址
func EndpointsFor(network types.Network) Endpoints {
	if network == types.NetworkMainnet {
		return Endpoints{Gateway: MainnetGatewayURL, Trigger: MainnetTriggerURL}
	}
	return Endpoints{Gateway: TestnetGatewayURL, Trigger: TestnetTriggerURL}
}

// Client Nado 网关客户端。
// 只负责序列化、提交和解析，不做任何量化或重签名。
type Client struct {
	transport  Transport
	endpoints  Endpoints
	limits     *ratelimit.RateLimitManager
	signer     *signing.Signer
	nonces     *signing.NonceSource
	subaccount string
	log        *logrus.Entry
}

// Option 客户端选项
type Option func(*Client)

// WithRateLimits 设置限流
func WithRateLimits(m *ratelimit.RateLimitManager) Option {
	return func(c *Client) { c.limits = m }
}

// WithSigner 设置撤单签名器（下单请求由调用方预先签名）
func WithSigner(s *signing.Signer, nonces *signing.NonceSource, subaccount string) Option {
	return func(c *Client) {
		c.signer = s
		c.nonces = nonces
		c.subaccount = subaccount
	}
}

// WithLogger 设置日志
func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.log = l }
}

// NewClient 创建网关客户端
func NewClient(transport Transport, endpoints Endpoints, opts ...Option) *Client {
	c := &Client{
		transport:  transport,
		endpoints:  Endpoints{Gateway: strings.TrimSuffix(endpoints.Gateway, "/"), Trigger: strings.TrimSuffix(endpoints.Trigger, "/")},
		subaccount: signing.DefaultSubaccount,
		log:        logrus.WithField("component", "nado-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.nonces == nil {
		c.nonces = signing.NewNonceSource(signing.DefaultRecvWindow)
	}
	return c
}

// Endpoints 当前网关地址
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

func (c *Client) post(ctx context.Context, limiterKey, url, op string, body interface{}, idempotent bool) (gjson.Result, error) {
	if err := c.limits.Wait(ctx, limiterKey); err != nil {
		// 尚未发出请求
		return gjson.Result{}, classifyTransportErr(op, err, false)
	}
	raw, err := c.transport.Post(ctx, url, body, idempotent)
	if err != nil {
		return gjson.Result{}, err
	}
	return parseEnvelope(op, raw)
}

// parseEnvelope 解析 {status, data, error, error_code}
func parseEnvelope(op string, raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &HTTPError{Op: op, Status: 200, Body: string(raw)}
	}
	res := gjson.ParseBytes(raw)
	switch res.Get("status").String() {
	case "success":
		return res.Get("data"), nil
	case "failure":
		msg := res.Get("error").String()
		if msg == "" {
			msg = res.Raw
		}
		return gjson.Result{}, &APIError{Request: op, Code: int(res.Get("error_code").Int()), Message: msg}
	}
	return gjson.Result{}, &APIError{Request: op, Message: "unexpected response: " + truncate(res.Raw, 256)}
}
