package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductID 交易所产品 ID
type ProductID uint32

// QuoteProductID 报价资产（USDT0）的产品 ID
const QuoteProductID ProductID = 0

func (p ProductID) String() string {
	return fmt.Sprintf("%d", uint32(p))
}

// Network 网络类型
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// OrderSide 订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Opposite 返回反方向
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseOrderSide 解析订单方向（buy/sell/long/short 均可）
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return SideBuy, nil
	case "sell", "short":
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid order side %q", s)
}

// PositionSide 持仓方向
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// PositionSideOf 根据有符号仓位大小判断方向
func PositionSideOf(size decimal.Decimal) PositionSide {
	if size.IsNegative() {
		return PositionShort
	}
	return PositionLong
}

// OpeningSide 开仓方向
func (p PositionSide) OpeningSide() OrderSide {
	if p == PositionShort {
		return SideSell
	}
	return SideBuy
}

// ClosingSide 平仓方向
func (p PositionSide) ClosingSide() OrderSide {
	return p.OpeningSide().Opposite()
}

// Instrument 产品静态元数据
type Instrument struct {
	ProductID      ProductID       `json:"product_id" yaml:"product_id"`
	Symbol         string          `json:"symbol" yaml:"symbol"`
	SizeIncrement  decimal.Decimal `json:"size_increment" yaml:"size_increment"`
	PriceIncrement decimal.Decimal `json:"price_increment" yaml:"price_increment"`
	// MinSize 交易所最小下单量（可选，0 表示只受 SizeIncrement 限制）
	MinSize decimal.Decimal `json:"min_size" yaml:"min_size"`
	// FallbackTicker 外部行情源的交易对，例如 SOLUSDT
	FallbackTicker string `json:"fallback_ticker" yaml:"fallback_ticker"`
}

// Validate 校验步长
func (i Instrument) Validate() error {
	if i.SizeIncrement.Sign() <= 0 {
		return fmt.Errorf("instrument %d: size increment must be positive", i.ProductID)
	}
	if i.PriceIncrement.Sign() <= 0 {
		return fmt.Errorf("instrument %d: price increment must be positive", i.ProductID)
	}
	// x18 表示最多 18 位小数
	if i.SizeIncrement.Exponent() < -18 || i.PriceIncrement.Exponent() < -18 {
		return fmt.Errorf("instrument %d: increments finer than 1e-18", i.ProductID)
	}
	return nil
}

// TriggerDirection 触发方向
type TriggerDirection string

const (
	// TriggerAbove 最新价上穿触发价时触发
	TriggerAbove TriggerDirection = "price_above"
	// TriggerBelow 最新价下穿触发价时触发
	TriggerBelow TriggerDirection = "price_below"
)

// Crossed 判断价格是否已越过触发价
func (d TriggerDirection) Crossed(price, trigger decimal.Decimal) bool {
	switch d {
	case TriggerAbove:
		return price.GreaterThanOrEqual(trigger)
	case TriggerBelow:
		return price.LessThanOrEqual(trigger)
	}
	return false
}
