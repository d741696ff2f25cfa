package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/betbot/goperp/nado/types"
)

const (
	fillMsg = `{"type":"fill","timestamp":"1700000000000000000","product_id":8,"subaccount":"0xabc","order_digest":"0xdead",` +
		`"filled_qty":"5000000000000000000","remaining_qty":"0","price":"180000000000000000000","is_bid":false}`
	positionMsg = `{"type":"position_change","timestamp":"1700000000000000000","product_id":8,"subaccount":"0xabc",` +
		`"amount":"0","v_quote_amount":"0"}`
)

func TestParseUpdate(t *testing.T) {
	u, ok := ParseUpdate([]byte(fillMsg))
	require.True(t, ok)
	assert.Equal(t, KindFill, u.Kind)
	assert.Equal(t, types.ProductID(8), u.ProductID)
	assert.True(t, u.Price.Equal(decimal.NewFromInt(180)))
	assert.True(t, u.FilledQty.Equal(decimal.NewFromInt(-5)), "sell fill is negative")
	assert.Equal(t, "0xdead", u.Digest)
	assert.Equal(t, int64(1700000000), u.Timestamp.Unix())

	u, ok = ParseUpdate([]byte(positionMsg))
	require.True(t, ok)
	assert.Equal(t, KindPositionChange, u.Kind)
	assert.True(t, u.Amount.IsZero())

	for _, msg := range []string{`{"result":null,"id":1}`, `not json`, `{"type":"book_depth"}`} {
		_, ok := ParseUpdate([]byte(msg))
		assert.False(t, ok, msg)
	}
}

func TestRunSubscribesAndReconnects(t *testing.T) {
	var conns int32
	var subsMu sync.Mutex
	var subs []string

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := atomic.AddInt32(&conns, 1)

		for i := 0; i < 2; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			subsMu.Lock()
			subs = append(subs, gjson.GetBytes(msg, "stream.type").String())
			subsMu.Unlock()
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(fillMsg))
			return // 断开，触发重连
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(positionMsg))
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Products:       []types.ProductID{8},
		ReconnectDelay: 10 * time.Millisecond,
	})

	var mu sync.Mutex
	var got []Kind
	c.OnUpdate(func(ctx context.Context, u Update) {
		mu.Lock()
		got = append(got, u.Kind)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.Equal(t, []Kind{KindFill, KindPositionChange}, got)
	mu.Unlock()
	assert.GreaterOrEqual(t, atomic.LoadInt32(&conns), int32(2))
	subsMu.Lock()
	assert.Contains(t, subs, "fill")
	assert.Contains(t, subs, "position_change")
	subsMu.Unlock()
}
