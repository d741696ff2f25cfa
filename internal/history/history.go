// Package history 平仓历史（SQLite），按平仓时间存储，供统计和展示使用。
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

// Store 平仓历史存储
type Store struct {
	db      *sql.DB
	account string
}

// Open 打开（或创建）历史数据库
func Open(path, account string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	s := &Store{db: db, account: account}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS closed_trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  account TEXT NOT NULL,
  product_id INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  size TEXT NOT NULL,
  entry_price TEXT NOT NULL,
  exit_price TEXT NOT NULL,
  leverage TEXT NOT NULL,
  pnl TEXT NOT NULL,
  pnl_pct TEXT NOT NULL,
  reason TEXT NOT NULL,
  opened_at_ms INTEGER NOT NULL,
  closed_at_ms INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_account_ts ON closed_trades(account, closed_at_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Append 追加平仓记录，返回带 ID 的记录
func (s *Store) Append(ctx context.Context, t domain.ClosedTrade) (domain.ClosedTrade, error) {
	if t.ClosedAt.IsZero() {
		t.ClosedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO closed_trades (account, product_id, symbol, side, size, entry_price, exit_price, leverage, pnl, pnl_pct, reason, opened_at_ms, closed_at_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
`, s.account, int64(t.ProductID), t.Symbol, string(t.Side), t.Size.String(), t.EntryPrice.String(), t.ExitPrice.String(),
		t.Leverage.String(), t.PnL.String(), t.PnLPercent.String(), string(t.Reason), unixMs(t.OpenedAt), unixMs(t.ClosedAt))
	if err != nil {
		return t, fmt.Errorf("insert closed trade: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return t, nil
}

// Query 查询条件
type Query struct {
	ProductID *types.ProductID
	Since     time.Time
	Limit     int
}

// List 按平仓时间倒序返回记录
func (s *Store) List(ctx context.Context, q Query) ([]domain.ClosedTrade, error) {
	sqlText := `
SELECT id, product_id, symbol, side, size, entry_price, exit_price, leverage, pnl, pnl_pct, reason, opened_at_ms, closed_at_ms
FROM closed_trades
WHERE account=? AND closed_at_ms>=?`
	args := []interface{}{s.account, unixMs(q.Since)}
	if q.ProductID != nil {
		sqlText += ` AND product_id=?`
		args = append(args, int64(*q.ProductID))
	}
	sqlText += ` ORDER BY closed_at_ms DESC, id DESC`
	if q.Limit > 0 {
		sqlText += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query closed trades: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedTrade
	for rows.Next() {
		var (
			t                                                 domain.ClosedTrade
			pid, openedMs, closedMs                           int64
			side, size, entry, exit, lev, pnl, pnlPct, reason string
		)
		if err := rows.Scan(&t.ID, &pid, &t.Symbol, &side, &size, &entry, &exit, &lev, &pnl, &pnlPct, &reason, &openedMs, &closedMs); err != nil {
			return nil, err
		}
		t.ProductID = types.ProductID(pid)
		t.Side = types.PositionSide(side)
		t.Reason = domain.CloseReason(reason)
		for _, f := range []struct {
			dst *decimal.Decimal
			raw string
		}{{&t.Size, size}, {&t.EntryPrice, entry}, {&t.ExitPrice, exit}, {&t.Leverage, lev}, {&t.PnL, pnl}, {&t.PnLPercent, pnlPct}} {
			v, err := decimal.NewFromString(f.raw)
			if err != nil {
				return nil, fmt.Errorf("closed trade %d: %w", t.ID, err)
			}
			*f.dst = v
		}
		if openedMs > 0 {
			t.OpenedAt = time.UnixMilli(openedMs)
		}
		t.ClosedAt = time.UnixMilli(closedMs)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats 汇总统计
func (s *Store) Stats(ctx context.Context, q Query) (domain.TradeStats, error) {
	q.Limit = 0
	trades, err := s.List(ctx, q)
	if err != nil {
		return domain.TradeStats{}, err
	}
	return domain.ComputeStats(trades), nil
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
