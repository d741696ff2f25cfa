package pricefeed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

var sol = types.Instrument{ProductID: 8, Symbol: "SOL-PERP", FallbackTicker: "SOLUSDT"}

type stubQuerier struct {
	price decimal.Decimal
	err   error
}

func (s stubQuerier) GetMarketPrice(ctx context.Context, id types.ProductID) (decimal.Decimal, error) {
	return s.price, s.err
}

func binanceServer(t *testing.T, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/ticker/price"), r.URL.Path)
		assert.Equal(t, "SOLUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExchangeFirst(t *testing.T) {
	feed := NewFeed(NewExchangeSource(stubQuerier{price: decimal.NewFromInt(180)}))
	p, err := feed.Price(context.Background(), sol)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(180)))

	last, _, ok := feed.Last(8)
	require.True(t, ok)
	assert.True(t, last.Equal(p))
}

func TestFallbackToBinance(t *testing.T) {
	srv := binanceServer(t, `{"symbol":"SOLUSDT","price":"180.55","time":1700000000000}`)
	feed := NewFeed(
		NewExchangeSource(stubQuerier{err: errors.New("gateway down")}),
		NewBinanceSource(srv.URL, time.Second),
	)
	p, err := feed.Price(context.Background(), sol)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("180.55")))
}

func TestAllSourcesFail(t *testing.T) {
	feed := NewFeed(
		NewExchangeSource(stubQuerier{err: errors.New("gateway down")}),
		NewBinanceSource("http://127.0.0.1:1", 100*time.Millisecond),
	)
	_, err := feed.Price(context.Background(), types.Instrument{ProductID: 10})
	require.ErrorIs(t, err, ErrPriceUnavailable)
	assert.True(t, domain.IsKind(err, domain.KindNetwork))

	_, _, ok := feed.Last(10)
	assert.False(t, ok)
}

func TestRememberIgnoresNonPositive(t *testing.T) {
	feed := NewFeed()
	feed.Remember(8, decimal.Zero, "stream")
	_, _, ok := feed.Last(8)
	assert.False(t, ok)
	feed.Remember(8, decimal.NewFromInt(5), "stream")
	_, _, ok = feed.Last(8)
	assert.True(t, ok)
}
