package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveOutcome(t *testing.T) {
	before := OrdersUnknown.Value()
	ObserveOutcome("unknown")
	require.Equal(t, before+1, OrdersUnknown.Value())
}

func TestStartAsyncServesVars(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := StartAsync(ctx, "127.0.0.1:0", map[string]Gauge{
		"test_open_positions": func() any { return 3 },
	})
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr + "/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "reconcile_runs")
	require.Contains(t, string(body), `"test_open_positions": 3`)
}
