package domain

import (
	"time"

	"github.com/betbot/goperp/nado/types"
	"github.com/shopspring/decimal"
)

// CloseReason 平仓原因
type CloseReason string

const (
	CloseManual     CloseReason = "manual"
	CloseTakeProfit CloseReason = "take_profit"
	CloseStopLoss   CloseReason = "stop_loss"
	// CloseExternal 对账发现仓位归零（触发单成交、强平或外部操作）
	CloseExternal CloseReason = "external"
)

// ClosedTrade 平仓历史记录（按平仓时间存储）
type ClosedTrade struct {
	ID         int64              `json:"id"`
	ProductID  types.ProductID    `json:"product_id"`
	Symbol     string             `json:"symbol"`
	Side       types.PositionSide `json:"side"`
	Size       decimal.Decimal    `json:"size"`
	EntryPrice decimal.Decimal    `json:"entry_price"`
	ExitPrice  decimal.Decimal    `json:"exit_price"`
	Leverage   decimal.Decimal    `json:"leverage"`
	PnL        decimal.Decimal    `json:"pnl"`
	PnLPercent decimal.Decimal    `json:"pnl_pct"`
	Reason     CloseReason        `json:"reason"`
	OpenedAt   time.Time          `json:"opened_at"`
	ClosedAt   time.Time          `json:"closed_at"`
}

// NewClosedTrade 由账本记录和出场价生成平仓记录
func NewClosedTrade(e LedgerEntry, exit decimal.Decimal, reason CloseReason, at time.Time) ClosedTrade {
	ct := ClosedTrade{
		ProductID:  e.ProductID,
		Symbol:     e.Symbol,
		Side:       e.Side(),
		Size:       e.Size.Abs(),
		EntryPrice: e.EntryPrice,
		ExitPrice:  exit,
		Leverage:   e.Leverage,
		Reason:     reason,
		OpenedAt:   e.OpenedAt,
		ClosedAt:   at,
	}
	if exit.Sign() > 0 {
		ct.PnL, ct.PnLPercent = e.PnL(exit)
	}
	return ct
}

// TradeStats 平仓统计
type TradeStats struct {
	Total    int             `json:"total"`
	Wins     int             `json:"wins"`
	Losses   int             `json:"losses"`
	WinRate  decimal.Decimal `json:"win_rate"`
	TotalPnL decimal.Decimal `json:"total_pnl"`
	AvgPnL   decimal.Decimal `json:"avg_pnl"`
	BestPnL  decimal.Decimal `json:"best_pnl"`
	WorstPnL decimal.Decimal `json:"worst_pnl"`
}

// ComputeStats 汇总平仓记录
func ComputeStats(trades []ClosedTrade) TradeStats {
	var s TradeStats
	for i, t := range trades {
		s.Total++
		s.TotalPnL = s.TotalPnL.Add(t.PnL)
		switch t.PnL.Sign() {
		case 1:
			s.Wins++
		case -1:
			s.Losses++
		}
		if i == 0 || t.PnL.GreaterThan(s.BestPnL) {
			s.BestPnL = t.PnL
		}
		if i == 0 || t.PnL.LessThan(s.WorstPnL) {
			s.WorstPnL = t.PnL
		}
	}
	if s.Total > 0 {
		n := decimal.NewFromInt(int64(s.Total))
		s.AvgPnL = s.TotalPnL.Div(n)
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(n).Mul(decimal.NewFromInt(100))
	}
	return s
}
