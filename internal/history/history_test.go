package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAppendListStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, "acct")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	entry := domain.LedgerEntry{ProductID: 8, Symbol: "SOL-PERP", EntryPrice: d("180"), Size: d("5"), Leverage: d("10"), OpenedAt: base}
	win := domain.NewClosedTrade(entry, d("189"), domain.CloseTakeProfit, base.Add(time.Hour))
	loss := domain.NewClosedTrade(domain.LedgerEntry{ProductID: 4, Symbol: "ETH-PERP", EntryPrice: d("3000"), Size: d("-1")}, d("3100"), domain.CloseStopLoss, base.Add(2*time.Hour))

	saved, err := s.Append(ctx, win)
	require.NoError(t, err)
	require.NotZero(t, saved.ID)
	_, err = s.Append(ctx, loss)
	require.NoError(t, err)

	all, err := s.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, types.ProductID(4), all[0].ProductID, "newest first")
	require.True(t, all[1].PnL.Equal(d("45")))
	require.True(t, all[1].EntryPrice.Equal(d("180")))
	require.Equal(t, types.PositionLong, all[1].Side)
	require.Equal(t, base.UnixMilli(), all[1].OpenedAt.UnixMilli())

	pid := types.ProductID(8)
	sol, err := s.List(ctx, Query{ProductID: &pid})
	require.NoError(t, err)
	require.Len(t, sol, 1)

	stats, err := s.Stats(ctx, Query{})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Wins)
	require.True(t, stats.TotalPnL.Equal(d("-55")), "total=%s", stats.TotalPnL)

	recent, err := s.List(ctx, Query{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestHistoryIsPerAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	a, err := Open(path, "a")
	require.NoError(t, err)
	_, err = a.Append(context.Background(), domain.ClosedTrade{ProductID: 2, Symbol: "BTC-PERP", Side: types.PositionLong})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(path, "b")
	require.NoError(t, err)
	defer b.Close()
	trades, err := b.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Empty(t, trades)
}
