package client

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/ratelimit"
	"github.com/tidwall/gjson"
)

type wireOrder struct {
	Sender     string `json:"sender"`
	PriceX18   string `json:"priceX18"`
	Amount     string `json:"amount"`
	Expiration string `json:"expiration"`
	Nonce      string `json:"nonce"`
	Appendix   string `json:"appendix"`
}

type placeOrderBody struct {
	ProductID uint32       `json:"product_id"`
	Order     wireOrder    `json:"order"`
	Signature string       `json:"signature"`
	Trigger   *wireTrigger `json:"trigger,omitempty"`
}

type wireTrigger struct {
	PriceTrigger struct {
		PriceRequirement map[string]string `json:"price_requirement"`
	} `json:"price_trigger"`
}

type cancelTx struct {
	Sender     string   `json:"sender"`
	ProductIDs []uint32 `json:"productIds"`
	Digests    []string `json:"digests,omitempty"`
	Nonce      string   `json:"nonce"`
}

type cancelBody struct {
	Tx        cancelTx `json:"tx"`
	Signature string   `json:"signature"`
}

func toWireOrder(o types.OrderIntent) wireOrder {
	return wireOrder{
		Sender:     o.Sender.Hex(),
		PriceX18:   bigString(o.PriceX18),
		Amount:     bigString(o.Amount),
		Expiration: strconv.FormatUint(o.Expiration, 10),
		Nonce:      strconv.FormatUint(o.Nonce, 10),
		Appendix:   o.Appendix.Pack().String(),
	}
}

// PlaceOrder 提交已签名订单。不自动重试。
func (c *Client) PlaceOrder(ctx context.Context, order types.SignedOrder) (types.ExecutionResult, error) {
	body := map[string]interface{}{
		"place_order": placeOrderBody{
			ProductID: uint32(order.ProductID),
			Order:     toWireOrder(order.Order),
			Signature: order.Signature,
		},
	}
	data, err := c.post(ctx, ratelimit.EndpointExecute, c.endpoints.Gateway+"/execute", string(types.RequestPlaceOrder), body, false)
	if err != nil {
		c.log.Warnf("下单失败: product=%d amount=%s err=%v", order.ProductID, bigString(order.Order.Amount), err)
		return types.ExecutionResult{}, err
	}
	digest := data.Get("digest").String()
	if digest == "" {
		digest = order.Digest
	}
	c.log.Infof("下单成功: product=%d amount=%s price=%s digest=%s",
		order.ProductID, bigString(order.Order.Amount), bigString(order.Order.PriceX18), digest)
	return types.ExecutionResult{Kind: types.RequestPlaceOrder, ProductID: order.ProductID, Digest: digest, Raw: data.Raw}, nil
}

// PlaceTriggerOrder 提交条件单（TP/SL）到 trigger 服务。不自动重试。
func (c *Client) PlaceTriggerOrder(ctx context.Context, order types.SignedTriggerOrder) (types.ExecutionResult, error) {
	if order.Direction != types.TriggerAbove && order.Direction != types.TriggerBelow {
		return types.ExecutionResult{}, fmt.Errorf("invalid trigger direction %q", order.Direction)
	}
	if order.TriggerPriceX18 == nil || order.TriggerPriceX18.Sign() <= 0 {
		return types.ExecutionResult{}, fmt.Errorf("trigger price must be positive")
	}
	trig := &wireTrigger{}
	trig.PriceTrigger.PriceRequirement = map[string]string{
		"last_" + string(order.Direction): order.TriggerPriceX18.String(),
	}
	body := map[string]interface{}{
		"place_order": placeOrderBody{
			ProductID: uint32(order.ProductID),
			Order:     toWireOrder(order.Order),
			Signature: order.Signature,
			Trigger:   trig,
		},
	}
	data, err := c.post(ctx, ratelimit.EndpointTrigger, c.endpoints.Trigger+"/execute", string(types.RequestPlaceTriggerOrder), body, false)
	if err != nil {
		c.log.Warnf("条件单提交失败: product=%d dir=%s err=%v", order.ProductID, order.Direction, err)
		return types.ExecutionResult{}, err
	}
	digest := data.Get("digest").String()
	if digest == "" {
		digest = order.Digest
	}
	c.log.Infof("条件单已提交: product=%d dir=%s trigger=%s digest=%s",
		order.ProductID, order.Direction, order.TriggerPriceX18.String(), digest)
	return types.ExecutionResult{Kind: types.RequestPlaceTriggerOrder, ProductID: order.ProductID, Digest: digest, Raw: data.Raw}, nil
}

// CancelOrder 按摘要撤销单个挂单，返回是否确实撤销
func (c *Client) CancelOrder(ctx context.Context, productID types.ProductID, digest string) (bool, error) {
	res, err := c.CancelOrders(ctx, []types.ProductID{productID}, []string{digest}, false)
	if err != nil {
		return false, err
	}
	return len(res.Cancelled) > 0, nil
}

// CancelOrders 按摘要撤单；trigger=true 时撤销条件单
func (c *Client) CancelOrders(ctx context.Context, productIDs []types.ProductID, digests []string, trigger bool) (types.ExecutionResult, error) {
	if c.signer == nil {
		return types.ExecutionResult{}, fmt.Errorf("%w: cancel requires a signer", signing.ErrSigning)
	}
	sender := c.signer.Sender(c.subaccount)
	nonce := c.nonces.Next()
	sig, err := c.signer.SignCancelOrders(sender, productIDs, digests, nonce)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	body := map[string]interface{}{
		string(types.RequestCancelOrders): cancelBody{
			Tx:        cancelTx{Sender: sender.Hex(), ProductIDs: productIDsWire(productIDs), Digests: digests, Nonce: strconv.FormatUint(nonce, 10)},
			Signature: sig,
		},
	}
	return c.submitCancel(ctx, types.RequestCancelOrders, body, trigger)
}

// CancelAll 撤销产品的全部挂单；productID 为 nil 时撤销全部产品，返回撤销数量
func (c *Client) CancelAll(ctx context.Context, productID *types.ProductID, trigger bool) (int, error) {
	ids := []types.ProductID{}
	if productID != nil {
		ids = append(ids, *productID)
	}
	res, err := c.CancelProductOrders(ctx, ids, trigger)
	if err != nil {
		return 0, err
	}
	return len(res.Cancelled), nil
}

// CancelProductOrders 撤销指定产品（空表示全部）的挂单
func (c *Client) CancelProductOrders(ctx context.Context, productIDs []types.ProductID, trigger bool) (types.ExecutionResult, error) {
	if c.signer == nil {
		return types.ExecutionResult{}, fmt.Errorf("%w: cancel requires a signer", signing.ErrSigning)
	}
	sender := c.signer.Sender(c.subaccount)
	nonce := c.nonces.Next()
	sig, err := c.signer.SignCancelProductOrders(sender, productIDs, nonce)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	body := map[string]interface{}{
		string(types.RequestCancelProductOrders): cancelBody{
			Tx:        cancelTx{Sender: sender.Hex(), ProductIDs: productIDsWire(productIDs), Nonce: strconv.FormatUint(nonce, 10)},
			Signature: sig,
		},
	}
	return c.submitCancel(ctx, types.RequestCancelProductOrders, body, trigger)
}

func (c *Client) submitCancel(ctx context.Context, kind types.RequestKind, body interface{}, trigger bool) (types.ExecutionResult, error) {
	url, key := c.endpoints.Gateway+"/execute", ratelimit.EndpointExecute
	if trigger {
		url, key = c.endpoints.Trigger+"/execute", ratelimit.EndpointTrigger
	}
	data, err := c.post(ctx, key, url, string(kind), body, false)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	res := types.ExecutionResult{Kind: kind, Raw: data.Raw}
	data.Get("cancelled_orders").ForEach(func(_, v gjson.Result) bool {
		res.Cancelled = append(res.Cancelled, v.Get("digest").String())
		return true
	})
	c.log.Infof("撤单完成: kind=%s trigger=%v cancelled=%d", kind, trigger, len(res.Cancelled))
	return res, nil
}

func productIDsWire(ids []types.ProductID) []uint32 {
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint32(id))
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
