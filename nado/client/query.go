package client

import (
	"context"
	"fmt"
	"time"

	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
	"github.com/betbot/goperp/pkg/ratelimit"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

func (c *Client) query(ctx context.Context, body map[string]interface{}) (gjson.Result, error) {
	op, _ := body["type"].(string)
	return c.post(ctx, ratelimit.EndpointQuery, c.endpoints.Gateway+"/query", op, body, true)
}

// GetSubaccountInfo 查询子账户余额与仓位
func (c *Client) GetSubaccountInfo(ctx context.Context, sender types.Sender) (types.BalanceSnapshot, error) {
	data, err := c.query(ctx, map[string]interface{}{
		"type":       "subaccount_info",
		"subaccount": sender.Hex(),
	})
	if err != nil {
		return types.BalanceSnapshot{}, err
	}
	return parseSubaccountInfo(sender, data)
}

// GetBalance 查询余额快照
func (c *Client) GetBalance(ctx context.Context, sender types.Sender) (types.BalanceSnapshot, error) {
	return c.GetSubaccountInfo(ctx, sender)
}

// GetPositions 查询非零永续仓位
func (c *Client) GetPositions(ctx context.Context, sender types.Sender) ([]types.RemotePosition, error) {
	snap, err := c.GetSubaccountInfo(ctx, sender)
	if err != nil {
		return nil, err
	}
	out := make([]types.RemotePosition, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		if !p.IsFlat() {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetMarketPrice 查询产品中间价
func (c *Client) GetMarketPrice(ctx context.Context, productID types.ProductID) (decimal.Decimal, error) {
	mp, err := c.GetMarketPrices(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	mid := mp.Mid()
	if mid.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("no market price for product %d", productID)
	}
	return mid, nil
}

// GetMarketPrices 查询产品买一/卖一价
func (c *Client) GetMarketPrices(ctx context.Context, productID types.ProductID) (types.MarketPrice, error) {
	data, err := c.query(ctx, map[string]interface{}{
		"type":       "market_price",
		"product_id": uint32(productID),
	})
	if err != nil {
		return types.MarketPrice{}, err
	}
	bid, err := x18.ParseDecimal(data.Get("bid_x18").String())
	if err != nil {
		return types.MarketPrice{}, err
	}
	ask, err := x18.ParseDecimal(data.Get("ask_x18").String())
	if err != nil {
		return types.MarketPrice{}, err
	}
	return types.MarketPrice{ProductID: productID, Bid: bid, Ask: ask}, nil
}

// GetOpenOrders 查询指定产品的挂单
func (c *Client) GetOpenOrders(ctx context.Context, sender types.Sender, productIDs []types.ProductID) ([]types.RemoteOrder, error) {
	data, err := c.query(ctx, map[string]interface{}{
		"type":        "orders",
		"sender":      sender.Hex(),
		"product_ids": productIDsWire(productIDs),
	})
	if err != nil {
		return nil, err
	}
	var (
		out      []types.RemoteOrder
		parseErr error
	)
	data.Get("product_orders").ForEach(func(_, po gjson.Result) bool {
		po.Get("orders").ForEach(func(_, o gjson.Result) bool {
			ro, err := parseRemoteOrder(o)
			if err != nil {
				parseErr = err
				return false
			}
			out = append(out, ro)
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// GetAllProducts 查询永续产品的步长信息，Symbol 留空由调用方补齐
func (c *Client) GetAllProducts(ctx context.Context) ([]types.Instrument, error) {
	data, err := c.query(ctx, map[string]interface{}{"type": "all_products"})
	if err != nil {
		return nil, err
	}
	var (
		out      []types.Instrument
		parseErr error
	)
	data.Get("perp_products").ForEach(func(_, p gjson.Result) bool {
		inst := types.Instrument{ProductID: types.ProductID(p.Get("product_id").Uint())}
		book := p.Get("book_info")
		if inst.SizeIncrement, parseErr = x18.ParseDecimal(book.Get("size_increment").String()); parseErr != nil {
			return false
		}
		if inst.PriceIncrement, parseErr = x18.ParseDecimal(book.Get("price_increment_x18").String()); parseErr != nil {
			return false
		}
		if inst.MinSize, parseErr = x18.ParseDecimal(book.Get("min_size").String()); parseErr != nil {
			return false
		}
		out = append(out, inst)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func parseSubaccountInfo(sender types.Sender, data gjson.Result) (types.BalanceSnapshot, error) {
	snap := types.BalanceSnapshot{
		Sender:    sender,
		Exists:    data.Get("exists").Bool(),
		FetchedAt: time.Now(),
	}
	var err error
	healths := data.Get("healths").Array()
	if len(healths) > 0 {
		if snap.InitialHealth, err = x18.ParseDecimal(healths[0].Get("health").String()); err != nil {
			return snap, err
		}
	}
	if len(healths) > 1 {
		if snap.MaintenanceHealth, err = x18.ParseDecimal(healths[1].Get("health").String()); err != nil {
			return snap, err
		}
	}

	data.Get("spot_balances").ForEach(func(_, b gjson.Result) bool {
		if types.ProductID(b.Get("product_id").Uint()) != types.QuoteProductID {
			return true
		}
		snap.QuoteBalance, err = x18.ParseDecimal(b.Get("balance.amount").String())
		return false
	})
	if err != nil {
		return snap, err
	}

	data.Get("perp_balances").ForEach(func(_, b gjson.Result) bool {
		pos := types.RemotePosition{ProductID: types.ProductID(b.Get("product_id").Uint())}
		if pos.Amount, err = x18.ParseDecimal(b.Get("balance.amount").String()); err != nil {
			return false
		}
		if pos.VQuoteBalance, err = x18.ParseDecimal(b.Get("balance.v_quote_balance").String()); err != nil {
			return false
		}
		snap.Positions = append(snap.Positions, pos)
		return true
	})
	if err != nil {
		return snap, err
	}
	return snap, nil
}

func parseRemoteOrder(o gjson.Result) (types.RemoteOrder, error) {
	ro := types.RemoteOrder{
		ProductID:  types.ProductID(o.Get("product_id").Uint()),
		Sender:     o.Get("sender").String(),
		Digest:     o.Get("digest").String(),
		Expiration: o.Get("expiration").Uint(),
		Nonce:      o.Get("nonce").Uint(),
	}
	var err error
	if ro.Price, err = x18.ParseDecimal(o.Get("price_x18").String()); err != nil {
		return ro, err
	}
	if ro.Amount, err = x18.ParseDecimal(o.Get("amount").String()); err != nil {
		return ro, err
	}
	if ro.Unfilled, err = x18.ParseDecimal(o.Get("unfilled_amount").String()); err != nil {
		return ro, err
	}
	if raw := o.Get("appendix").String(); raw != "" {
		v, err := x18.Parse(raw)
		if err != nil {
			return ro, err
		}
		if ro.Appendix, err = types.ParseAppendix(v); err != nil {
			return ro, err
		}
	}
	if ts := o.Get("placed_at").Int(); ts > 0 {
		ro.PlacedAt = time.Unix(ts, 0)
	}
	return ro, nil
}
