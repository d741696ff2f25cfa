package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sender 32 字节账户标识：20 字节地址 + 12 字节子账户名
type Sender [32]byte

// Hex 返回 0x 前缀的十六进制表示
func (s Sender) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

func (s Sender) String() string {
	return s.Hex()
}

// Address 返回地址部分
func (s Sender) Address() [20]byte {
	var a [20]byte
	copy(a[:], s[:20])
	return a
}

// Subaccount 返回子账户名（去掉尾部 \x00）
func (s Sender) Subaccount() string {
	return strings.TrimRight(string(s[20:]), "\x00")
}

// ParseSender 解析 0x 前缀的 bytes32
func ParseSender(raw string) (Sender, error) {
	var s Sender
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return s, fmt.Errorf("invalid sender %q: %w", raw, err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("invalid sender length %d", len(b))
	}
	copy(s[:], b)
	return s, nil
}

// OrderIntent 待签名的订单字段（全部为 x18 定点整数）
type OrderIntent struct {
	Sender     Sender
	PriceX18   *big.Int // 0 表示纯市价
	Amount     *big.Int // >0 买入，<0 卖出
	Expiration uint64
	Nonce      uint64
	Appendix   Appendix
}

// Side 由 Amount 符号推导的方向
func (o OrderIntent) Side() OrderSide {
	if o.Amount != nil && o.Amount.Sign() < 0 {
		return SideSell
	}
	return SideBuy
}

// SignedOrder 已签名订单
type SignedOrder struct {
	ProductID ProductID
	Order     OrderIntent
	Signature string // 0x 前缀 65 字节
	Digest    string // EIP712 哈希，撤单时使用
}

// SignedTriggerOrder 已签名的条件单
type SignedTriggerOrder struct {
	SignedOrder
	TriggerPriceX18 *big.Int
	Direction       TriggerDirection
}

// RequestKind 请求类型
type RequestKind string

const (
	RequestPlaceOrder          RequestKind = "place_order"
	RequestPlaceTriggerOrder   RequestKind = "place_trigger_order"
	RequestCancelOrders        RequestKind = "cancel_orders"
	RequestCancelProductOrders RequestKind = "cancel_product_orders"
)

// ExecutionResult 执行结果
type ExecutionResult struct {
	Kind      RequestKind
	ProductID ProductID
	Digest    string
	// Cancelled 撤单请求返回的被撤订单摘要
	Cancelled []string
	Raw       string
}

// RemotePosition 交易所返回的永续仓位余额
type RemotePosition struct {
	ProductID ProductID
	// Amount 有符号基础资产数量（已从 x18 转换）
	Amount decimal.Decimal
	// VQuoteBalance 虚拟报价余额（已从 x18 转换）
	VQuoteBalance decimal.Decimal
}

// IsFlat 是否空仓
func (p RemotePosition) IsFlat() bool {
	return p.Amount.IsZero()
}

// BalanceSnapshot 子账户余额快照
type BalanceSnapshot struct {
	Sender Sender
	Exists bool
	// QuoteBalance 报价资产余额
	QuoteBalance decimal.Decimal
	// InitialHealth/MaintenanceHealth 账户健康度
	InitialHealth     decimal.Decimal
	MaintenanceHealth decimal.Decimal
	Positions         []RemotePosition
	FetchedAt         time.Time
}

// RemoteOrder 交易所挂单
type RemoteOrder struct {
	ProductID  ProductID
	Sender     string
	Digest     string
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Unfilled   decimal.Decimal
	Expiration uint64
	Nonce      uint64
	Appendix   Appendix
	PlacedAt   time.Time
}

// MarketPrice 盘口价格
type MarketPrice struct {
	ProductID ProductID
	Bid       decimal.Decimal
	Ask       decimal.Decimal
}

// Mid 中间价
func (m MarketPrice) Mid() decimal.Decimal {
	if m.Bid.IsZero() {
		return m.Ask
	}
	if m.Ask.IsZero() {
		return m.Bid
	}
	return m.Bid.Add(m.Ask).Div(decimal.NewFromInt(2))
}
