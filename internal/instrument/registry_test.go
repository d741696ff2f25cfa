package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	products []types.Instrument
	err      error
}

func (f fakeSource) GetAllProducts(context.Context) ([]types.Instrument, error) {
	return f.products, f.err
}

func TestFromConfigAndLookup(t *testing.T) {
	r, err := FromConfig(config.DefaultInstruments())
	require.NoError(t, err)
	require.Len(t, r.All(), 5)

	for _, key := range []string{"8", "SOL-PERP", "sol", " sol-perp "} {
		inst, ok := r.Lookup(key)
		require.True(t, ok, key)
		require.Equal(t, types.ProductID(8), inst.ProductID, key)
	}
	_, ok := r.Lookup("DOGE")
	require.False(t, ok)
	require.Equal(t, []types.ProductID{2, 4, 8, 9, 10}, r.IDs())
}

func TestFromConfigRejectsBadIncrement(t *testing.T) {
	_, err := FromConfig([]config.InstrumentConfig{{ProductID: 1, Symbol: "X", SizeIncrement: "0", PriceIncrement: "1"}})
	require.Error(t, err)
	_, err = FromConfig([]config.InstrumentConfig{{ProductID: 1, Symbol: "X", SizeIncrement: "abc", PriceIncrement: "1"}})
	require.Error(t, err)
}

func TestRefresh(t *testing.T) {
	r, err := FromConfig(config.DefaultInstruments())
	require.NoError(t, err)

	n, err := r.Refresh(context.Background(), fakeSource{products: []types.Instrument{
		{ProductID: 8, SizeIncrement: decimal.RequireFromString("0.01"), PriceIncrement: decimal.RequireFromString("0.01")},
		{ProductID: 4, SizeIncrement: decimal.RequireFromString("0.01"), PriceIncrement: decimal.RequireFromString("0.01")},
		{ProductID: 99, SizeIncrement: decimal.RequireFromString("1"), PriceIncrement: decimal.RequireFromString("1")},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	sol, _ := r.Get(8)
	require.Equal(t, "0.01", sol.SizeIncrement.String())
	require.Equal(t, "SOL-PERP", sol.Symbol)
	_, ok := r.Get(99)
	require.False(t, ok)

	_, err = r.Refresh(context.Background(), fakeSource{err: errors.New("down")})
	require.Error(t, err)
}
