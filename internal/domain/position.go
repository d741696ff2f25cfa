package domain

import (
	"time"

	"github.com/betbot/goperp/nado/types"
	"github.com/shopspring/decimal"
)

// LedgerEntry 本地仓位账本记录（按 product_id 唯一）
//
// 交易所只返回数量和虚拟报价余额，入场价、杠杆、TP/SL 只存在于本地。
type LedgerEntry struct {
	ProductID  types.ProductID  `json:"product_id"`
	Symbol     string           `json:"symbol"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Size       decimal.Decimal  `json:"size"` // 有符号，>0 多头；已按杠杆放大
	Leverage   decimal.Decimal  `json:"leverage"`
	TakeProfit *decimal.Decimal `json:"tp_price,omitempty"`
	StopLoss   *decimal.Decimal `json:"sl_price,omitempty"`
	// TakeProfitDigest/StopLossDigest 当前生效条件单的摘要
	TakeProfitDigest string          `json:"tp_digest,omitempty"`
	StopLossDigest   string          `json:"sl_digest,omitempty"`
	LastMark         decimal.Decimal `json:"last_mark"`
	OpenedAt         time.Time       `json:"opened_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	// Reconstructed 是否由对账根据余额反推创建
	Reconstructed bool `json:"reconstructed,omitempty"`
	// AwaitingFill 开仓单已被接受但交易所尚未出现仓位；IOC 未成交时由对账直接移除
	AwaitingFill bool `json:"awaiting_fill,omitempty"`
	// ClosePending 已提交平仓，等待对账确认仓位归零后移除
	ClosePending bool             `json:"close_pending,omitempty"`
	ExitPrice    *decimal.Decimal `json:"exit_price,omitempty"`
	CloseReason  CloseReason      `json:"close_reason,omitempty"`
}

// Side 持仓方向
func (e LedgerEntry) Side() types.PositionSide {
	return types.PositionSideOf(e.Size)
}

// Clone 深拷贝（指针字段独立）
func (e LedgerEntry) Clone() LedgerEntry {
	out := e
	if e.TakeProfit != nil {
		tp := *e.TakeProfit
		out.TakeProfit = &tp
	}
	if e.StopLoss != nil {
		sl := *e.StopLoss
		out.StopLoss = &sl
	}
	if e.ExitPrice != nil {
		x := *e.ExitPrice
		out.ExitPrice = &x
	}
	return out
}

// PnL 未实现盈亏。
// 多头 (mark-entry)*size，空头 (entry-mark)*|size|；百分比 = 盈亏 / (entry*|size|) * 100。
// size 为杠杆放大后的数量，百分比即保证金口径的杠杆收益率。
func PnL(side types.PositionSide, entry, mark, size decimal.Decimal) (abs, pct decimal.Decimal) {
	qty := size.Abs()
	if side == types.PositionShort {
		abs = entry.Sub(mark).Mul(qty)
	} else {
		abs = mark.Sub(entry).Mul(qty)
	}
	notional := entry.Mul(qty)
	if notional.IsZero() {
		return abs, decimal.Zero
	}
	pct = abs.Div(notional).Mul(decimal.NewFromInt(100))
	return abs, pct
}

// PnL 按给定标记价计算
func (e LedgerEntry) PnL(mark decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return PnL(e.Side(), e.EntryPrice, mark, e.Size)
}

// ReconstructEntryPrice 由虚拟报价余额反推入场价：|v_quote / amount|
func ReconstructEntryPrice(vQuoteBalance, amount decimal.Decimal) (decimal.Decimal, bool) {
	if amount.IsZero() {
		return decimal.Zero, false
	}
	return vQuoteBalance.Div(amount).Abs(), true
}

// AverageEntry 加仓/减仓后的入场价。
// 同向加仓按数量加权平均；减仓保持原入场价；反手则以新成交价作为入场价。
func AverageEntry(oldEntry, oldSize, fillPrice, fillSize decimal.Decimal) decimal.Decimal {
	newSize := oldSize.Add(fillSize)
	switch {
	case oldSize.IsZero():
		return fillPrice
	case newSize.IsZero():
		return oldEntry
	case oldSize.Sign() == fillSize.Sign():
		num := oldEntry.Mul(oldSize.Abs()).Add(fillPrice.Mul(fillSize.Abs()))
		return num.Div(newSize.Abs())
	case oldSize.Sign() == newSize.Sign():
		return oldEntry
	default:
		return fillPrice
	}
}

// PositionView 对外展示的仓位视图
type PositionView struct {
	ProductID     types.ProductID    `json:"product_id"`
	Symbol        string             `json:"symbol"`
	Side          types.PositionSide `json:"side"`
	Size          decimal.Decimal    `json:"size"`
	EntryPrice    decimal.Decimal    `json:"entry_price"`
	MarkPrice     decimal.Decimal    `json:"mark_price"`
	UnrealizedPnL decimal.Decimal    `json:"unrealized_pnl"`
	UnrealizedPct decimal.Decimal    `json:"unrealized_pnl_pct"`
	Leverage      decimal.Decimal    `json:"leverage"`
	TakeProfit    *decimal.Decimal   `json:"tp_price,omitempty"`
	StopLoss      *decimal.Decimal   `json:"sl_price,omitempty"`
	MarkAvailable bool               `json:"mark_available"`
	OpenedAt      time.Time          `json:"opened_at"`
}

// NewPositionView 由账本记录和标记价生成视图；mark 为零表示价格缺失
func NewPositionView(e LedgerEntry, mark decimal.Decimal) PositionView {
	v := PositionView{
		ProductID:  e.ProductID,
		Symbol:     e.Symbol,
		Side:       e.Side(),
		Size:       e.Size,
		EntryPrice: e.EntryPrice,
		MarkPrice:  mark,
		Leverage:   e.Leverage,
		TakeProfit: e.TakeProfit,
		StopLoss:   e.StopLoss,
		OpenedAt:   e.OpenedAt,
	}
	if mark.Sign() > 0 {
		v.MarkAvailable = true
		v.UnrealizedPnL, v.UnrealizedPct = e.PnL(mark)
	}
	return v
}
