package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Transport 与交易所之间的请求通道。
// idempotent=false 的请求不得自动重试。
type Transport interface {
	Post(ctx context.Context, url string, body interface{}, idempotent bool) ([]byte, error)
}

// HTTPOptions resty 传输参数
type HTTPOptions struct {
	Timeout          time.Duration
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	UserAgent        string
	Debug            bool
}

// DefaultHTTPOptions 默认参数：10s 超时，只读请求最多重试 3 次
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		Timeout:          10 * time.Second,
		RetryCount:       3,
		RetryWaitTime:    200 * time.Millisecond,
		RetryMaxWaitTime: 2 * time.Second,
		UserAgent:        "goperp/1.0",
	}
}

// RestyTransport 基于 resty 的 HTTP 传输。
// 查询与执行使用两个独立的客户端：执行客户端重试次数固定为 0。
type RestyTransport struct {
	query   *resty.Client
	execute *resty.Client
}

// NewRestyTransport 创建 HTTP 传输
func NewRestyTransport(opts HTTPOptions) *RestyTransport {
	def := DefaultHTTPOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryWaitTime <= 0 {
		opts.RetryWaitTime = def.RetryWaitTime
	}
	if opts.RetryMaxWaitTime <= 0 {
		opts.RetryMaxWaitTime = def.RetryMaxWaitTime
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	query := newResty(opts).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(opts.RetryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 网络错误和 5xx/429 重试；业务拒绝不重试
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})
	execute := newResty(opts).SetRetryCount(0)

	return &RestyTransport{query: query, execute: execute}
}

func newResty(opts HTTPOptions) *resty.Client {
	return resty.New().
		SetTimeout(opts.Timeout).
		SetDebug(opts.Debug).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)
}

// Post 发送 JSON 请求并返回响应体
func (t *RestyTransport) Post(ctx context.Context, url string, body interface{}, idempotent bool) ([]byte, error) {
	c := t.execute
	if idempotent {
		c = t.query
	}
	op := opName(url)
	resp, err := c.R().SetContext(ctx).SetBody(body).Post(url)
	if err != nil {
		// 执行请求一旦发出就可能已被交易所接收
		return nil, classifyTransportErr(op, err, !idempotent)
	}
	raw := resp.Body()
	if resp.StatusCode() >= 300 && !looksLikeEnvelope(raw) {
		return nil, &HTTPError{Op: op, Status: resp.StatusCode(), Body: string(raw)}
	}
	return raw, nil
}

func opName(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 && i < len(url)-1 {
		return url[i+1:]
	}
	return url
}

func looksLikeEnvelope(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{") && strings.Contains(s, `"status"`)
}
