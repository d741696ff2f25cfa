package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

// Client perpbot HTTP 接口的客户端，供 perpctl 和 perp-tui 使用
type Client struct {
	client *resty.Client
}

// ResponseError 非 2xx 响应
type ResponseError struct {
	Status int
	Kind   domain.Kind    `json:"kind"`
	Msg    string         `json:"error"`
	Result *domain.Result `json:"result,omitempty"`
}

func (e *ResponseError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("http %d [%s]: %s", e.Status, e.Kind, e.Msg)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Msg)
}

// NewClient 创建客户端；只读请求遇到网络错误会重试，变更请求不重试
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil && r != nil && r.Request != nil && r.Request.Method == http.MethodGet
		})
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{client: c}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, query url.Values) error {
	r := c.client.R().SetContext(ctx)
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if query != nil {
		r.SetQueryParamsFromValues(query)
	}
	resp, err := r.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	// 结果未知（202）也返回结果体，由调用方展示
	if resp.IsError() {
		re := &ResponseError{Status: resp.StatusCode()}
		if jerr := json.Unmarshal(resp.Body(), re); jerr != nil || re.Msg == "" {
			re.Msg = strings.TrimSpace(string(resp.Body()))
		}
		return re
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}

// ResultResponse 变更操作的响应
type ResultResponse struct {
	Result domain.Result `json:"result"`
	// Error 仅在结果未知时出现
	Error string `json:"error,omitempty"`
}

func (c *Client) mutate(ctx context.Context, method, path string, body any) (ResultResponse, error) {
	var out ResultResponse
	err := c.do(ctx, method, path, body, &out, nil)
	return out, err
}

// Positions 仓位列表
func (c *Client) Positions(ctx context.Context) ([]domain.PositionView, error) {
	var out struct {
		Positions []domain.PositionView `json:"positions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/positions", nil, &out, nil)
	return out.Positions, err
}

// Open 开仓；side 为 long/short/buy/sell
func (c *Client) Open(ctx context.Context, product, side, size, leverage string) (ResultResponse, error) {
	return c.mutate(ctx, http.MethodPost, "/api/positions", openRequest{
		Product: product, Side: side, Size: size, Leverage: leverage,
	})
}

// Close 全部平仓
func (c *Client) Close(ctx context.Context, product string) (ResultResponse, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/positions/"+url.PathEscape(product), nil)
}

// PartialClose 部分平仓，fraction 为 "0.5" 或 "50%"
func (c *Client) PartialClose(ctx context.Context, product, fraction string) (ResultResponse, error) {
	return c.mutate(ctx, http.MethodPost, "/api/positions/"+url.PathEscape(product)+"/partial", partialRequest{Fraction: fraction})
}

// SetTrigger 设置止盈或止损
func (c *Client) SetTrigger(ctx context.Context, product string, role domain.TriggerRole, target string) (ResultResponse, error) {
	if _, err := trigger.ParseTarget(target); err != nil {
		return ResultResponse{}, err
	}
	seg := "tp"
	if role == domain.RoleStopLoss {
		seg = "sl"
	}
	return c.mutate(ctx, http.MethodPost, "/api/positions/"+url.PathEscape(product)+"/"+seg, targetRequest{Target: target})
}

// ClearTriggers 撤销产品的 TP/SL
func (c *Client) ClearTriggers(ctx context.Context, product string) (ResultResponse, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/positions/"+url.PathEscape(product)+"/triggers", nil)
}

// CancelOrder 按摘要撤单
func (c *Client) CancelOrder(ctx context.Context, product, digest string, isTrigger bool) (ResultResponse, error) {
	path := fmt.Sprintf("/api/orders/%s/%s?trigger=%t", url.PathEscape(product), url.PathEscape(digest), isTrigger)
	return c.mutate(ctx, http.MethodDelete, path, nil)
}

// CancelAll 撤销全部挂单
func (c *Client) CancelAll(ctx context.Context) (ResultResponse, error) {
	return c.mutate(ctx, http.MethodPost, "/api/orders/cancel-all", nil)
}

// OpenOrders 交易所挂单
func (c *Client) OpenOrders(ctx context.Context) ([]types.RemoteOrder, error) {
	var out struct {
		Orders []types.RemoteOrder `json:"orders"`
	}
	err := c.do(ctx, http.MethodGet, "/api/orders", nil, &out, nil)
	return out.Orders, err
}

// Balance 子账户余额
func (c *Client) Balance(ctx context.Context) (types.BalanceSnapshot, error) {
	var out types.BalanceSnapshot
	err := c.do(ctx, http.MethodGet, "/api/balance", nil, &out, nil)
	return out, err
}

// History 平仓历史；product 和 since 可为空
func (c *Client) History(ctx context.Context, product, since string, limit int) ([]domain.ClosedTrade, error) {
	var out struct {
		Trades []domain.ClosedTrade `json:"trades"`
	}
	err := c.do(ctx, http.MethodGet, "/api/history", nil, &out, historyParams(product, since, limit))
	return out.Trades, err
}

// Stats 平仓统计
func (c *Client) Stats(ctx context.Context, product, since string) (domain.TradeStats, error) {
	var out domain.TradeStats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out, historyParams(product, since, 0))
	return out, err
}

// Scenarios TP/SL 场景
func (c *Client) Scenarios(ctx context.Context, product, side, size, leverage string) ([]trigger.Scenario, error) {
	var out struct {
		Scenarios []trigger.Scenario `json:"scenarios"`
	}
	q := url.Values{"product": {product}, "side": {side}, "size": {size}}
	if leverage != "" {
		q.Set("leverage", leverage)
	}
	err := c.do(ctx, http.MethodGet, "/api/scenarios", nil, &out, q)
	return out.Scenarios, err
}

func historyParams(product, since string, limit int) url.Values {
	q := url.Values{}
	if product != "" {
		q.Set("product", product)
	}
	if since != "" {
		q.Set("since", since)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return q
}
