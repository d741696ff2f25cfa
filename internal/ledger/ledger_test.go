package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/persistence"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newBadger(t *testing.T, dir string) *persistence.BadgerService {
	t.Helper()
	svc, err := persistence.NewBadgerService(persistence.BadgerOptions{Path: dir})
	require.NoError(t, err)
	return svc
}

func TestLedgerLifecycleSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	svc := newBadger(t, dir)
	l, err := Open(svc, "acct")
	require.NoError(t, err)

	tp := d("189")
	_, err = l.RecordEntry(ctx, domain.LedgerEntry{ProductID: 8, Symbol: "SOL-PERP", EntryPrice: d("180"), Size: d("5"), Leverage: d("10"), TakeProfit: &tp})
	require.NoError(t, err)
	require.Len(t, l.All(), 1)

	_, err = l.Update(ctx, 8, func(e *domain.LedgerEntry) error {
		sl := d("176.4")
		e.StopLoss = &sl
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	// 重启后 TP/SL 不丢失
	svc = newBadger(t, dir)
	defer svc.Close()
	l, err = Open(svc, "acct")
	require.NoError(t, err)
	e, ok := l.Get(8)
	require.True(t, ok)
	assert.True(t, e.EntryPrice.Equal(d("180")))
	require.NotNil(t, e.TakeProfit)
	require.NotNil(t, e.StopLoss)
	assert.True(t, e.TakeProfit.Equal(d("189")))
	assert.True(t, e.StopLoss.Equal(d("176.4")))
	assert.False(t, e.OpenedAt.IsZero())

	prev, ok, err := l.Evict(ctx, 8)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, prev.EntryPrice.Equal(d("180")))
	_, ok = l.Get(8)
	assert.False(t, ok)

	_, ok, err = l.Evict(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)

	tags, err := svc.List("ledger", "acct")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestUpdateMissingEntryIsValidationError(t *testing.T) {
	l, err := Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)

	_, err = l.Update(context.Background(), 8, func(e *domain.LedgerEntry) error { return nil })
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestFailedCallbackLeavesLedgerUntouched(t *testing.T) {
	l, err := Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.RecordEntry(ctx, domain.LedgerEntry{ProductID: 4, EntryPrice: d("3000"), Size: d("1")})
	require.NoError(t, err)

	boom := errors.New("remote rejected")
	err = l.WithLock(ctx, 4, func(tx *Tx) error {
		ApplyFill(tx, "ETH-PERP", d("3100"), d("1"), d("5"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, _ := l.Get(4)
	assert.True(t, e.EntryPrice.Equal(d("3000")))
	assert.True(t, e.Size.Equal(d("1")))
}

func TestApplyFillAveragesAndFlips(t *testing.T) {
	l, err := Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)
	ctx := context.Background()

	fill := func(price, size string) domain.LedgerEntry {
		var out domain.LedgerEntry
		require.NoError(t, l.WithLock(ctx, 8, func(tx *Tx) error {
			out = ApplyFill(tx, "SOL-PERP", d(price), d(size), d("10"))
			return nil
		}))
		return out
	}

	e := fill("100", "5")
	assert.True(t, e.EntryPrice.Equal(d("100")))

	e = fill("130", "5")
	assert.True(t, e.EntryPrice.Equal(d("115")), "got %s", e.EntryPrice)
	assert.True(t, e.Size.Equal(d("10")))

	_, err = l.Update(ctx, 8, func(e *domain.LedgerEntry) error {
		tp := d("120")
		e.TakeProfit = &tp
		return nil
	})
	require.NoError(t, err)

	e = fill("110", "-4")
	assert.True(t, e.EntryPrice.Equal(d("115")))
	assert.NotNil(t, e.TakeProfit)

	e = fill("90", "-10")
	assert.True(t, e.EntryPrice.Equal(d("90")))
	assert.True(t, e.Size.Equal(d("-4")))
	assert.Nil(t, e.TakeProfit)
}

func TestPerKeySerialisation(t *testing.T) {
	l, err := Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(ctx, 8, func(tx *Tx) error {
				// 模拟网络往返，持锁期间其他写者必须等待
				time.Sleep(time.Millisecond)
				ApplyFill(tx, "SOL-PERP", d("100"), d("1"), d("1"))
				return nil
			})
		}()
	}
	wg.Wait()

	e, ok := l.Get(8)
	require.True(t, ok)
	assert.True(t, e.Size.Equal(d("20")), "lost update: size=%s", e.Size)
}

func TestLockHonoursContext(t *testing.T) {
	l, err := Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)

	hold := make(chan struct{})
	released := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), 8, func(tx *Tx) error {
			close(hold)
			<-released
			return nil
		})
	}()
	<-hold

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = l.WithLock(ctx, 8, func(tx *Tx) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// 其他产品不受影响
	require.NoError(t, l.WithLock(context.Background(), types.ProductID(4), func(tx *Tx) error { return nil }))
	close(released)
}

func TestRecordEntryValidation(t *testing.T) {
	l, err := Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)
	_, err = l.RecordEntry(context.Background(), domain.LedgerEntry{ProductID: 8, EntryPrice: decimal.Zero, Size: d("1")})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestEvictIfKeepsFreshEntries(t *testing.T) {
	l, err := Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)
	ctx := context.Background()
	_, err = l.RecordEntry(ctx, domain.LedgerEntry{ProductID: 8, EntryPrice: d("180"), Size: d("5")})
	require.NoError(t, err)

	snapshot := time.Now().Add(-time.Minute)
	_, ok, err := l.EvictIf(ctx, 8, func(e domain.LedgerEntry) bool { return !e.UpdatedAt.After(snapshot) })
	require.NoError(t, err)
	assert.False(t, ok)
	_, still := l.Get(8)
	assert.True(t, still)
}
