package domain

import (
	"testing"

	"github.com/betbot/goperp/nado/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPnL(t *testing.T) {
	cases := []struct {
		name    string
		side    types.PositionSide
		size    string
		wantAbs string
		wantPct string
	}{
		{"long", types.PositionLong, "5", "50", "10"},
		{"short", types.PositionShort, "-5", "-50", "-10"},
		{"short positive size", types.PositionShort, "5", "-50", "-10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			abs, pct := PnL(tc.side, d("100"), d("110"), d(tc.size))
			if !abs.Equal(d(tc.wantAbs)) || !pct.Equal(d(tc.wantPct)) {
				t.Fatalf("PnL got=(%s,%s) want=(%s,%s)", abs, pct, tc.wantAbs, tc.wantPct)
			}
		})
	}
}

func TestLedgerEntryPnLUsesSignedSize(t *testing.T) {
	e := LedgerEntry{EntryPrice: d("100"), Size: d("-5")}
	abs, pct := e.PnL(d("90"))
	assert.True(t, abs.Equal(d("50")), "abs=%s", abs)
	assert.True(t, pct.Equal(d("10")), "pct=%s", pct)
}

func TestReconstructEntryPrice(t *testing.T) {
	p, ok := ReconstructEntryPrice(d("-550"), d("5"))
	assert.True(t, ok)
	assert.True(t, p.Equal(d("110")))

	// 空头：v_quote 为正，amount 为负
	p, ok = ReconstructEntryPrice(d("900"), d("-5"))
	assert.True(t, ok)
	assert.True(t, p.Equal(d("180")))

	_, ok = ReconstructEntryPrice(d("10"), decimal.Zero)
	assert.False(t, ok)
}

func TestAverageEntry(t *testing.T) {
	cases := []struct {
		name                        string
		oldEntry, oldSize, px, fill string
		want                        string
	}{
		{"fresh", "0", "0", "180", "5", "180"},
		{"add long", "100", "5", "130", "5", "115"},
		{"add short", "200", "-2", "230", "-1", "210"},
		{"reduce keeps entry", "100", "5", "130", "-2", "100"},
		{"flip takes fill", "100", "5", "130", "-7", "130"},
		{"flat keeps entry", "100", "5", "130", "-5", "100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AverageEntry(d(tc.oldEntry), d(tc.oldSize), d(tc.px), d(tc.fill))
			if !got.Equal(d(tc.want)) {
				t.Fatalf("AverageEntry got=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestPositionViewWithoutMark(t *testing.T) {
	e := LedgerEntry{ProductID: 8, EntryPrice: d("180"), Size: d("5")}
	v := NewPositionView(e, decimal.Zero)
	assert.False(t, v.MarkAvailable)
	assert.True(t, v.UnrealizedPnL.IsZero())

	v = NewPositionView(e, d("189"))
	assert.True(t, v.MarkAvailable)
	assert.True(t, v.UnrealizedPnL.Equal(d("45")))
	assert.Equal(t, types.PositionLong, v.Side)
}

func TestErrorKinds(t *testing.T) {
	err := Validationf("set_tp", "no ledger entry for product %d", 8)
	assert.True(t, IsKind(err, KindValidation))

	wrapped := errors.Wrap(err, "engine")
	assert.Equal(t, KindValidation, KindOf(wrapped))

	rej := Rejection("place_order", "insufficient margin", 2006)
	assert.Equal(t, "insufficient margin", RemoteMessage(errors.Wrap(rej, "open")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	assert.Equal(t, OutcomeUnknown, OutcomeFor(Wrap(KindTimeout, "place_order", errors.New("deadline")), true))
	assert.Equal(t, OutcomeFailed, OutcomeFor(Wrap(KindTimeout, "place_order", errors.New("deadline")), false))
	assert.Equal(t, OutcomeFailed, OutcomeFor(rej, true))
	assert.Equal(t, OutcomeSucceeded, OutcomeFor(nil, true))
}

func TestComputeStats(t *testing.T) {
	trades := []ClosedTrade{{PnL: d("10")}, {PnL: d("-4")}, {PnL: d("6")}, {PnL: decimal.Zero}}
	s := ComputeStats(trades)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.True(t, s.TotalPnL.Equal(d("12")))
	assert.True(t, s.AvgPnL.Equal(d("3")))
	assert.True(t, s.WinRate.Equal(d("50")))
	assert.True(t, s.BestPnL.Equal(d("10")))
	assert.True(t, s.WorstPnL.Equal(d("-4")))
}
