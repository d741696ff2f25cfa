package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betbot/goperp/internal/domain"
)

func TestConsecutiveErrors(t *testing.T) {
	rejected := domain.Rejection("place", "insufficient health", 2004)
	timeout := domain.Wrap(domain.KindTimeout, "place", errors.New("deadline"))

	cb := NewCircuitBreaker(Config{MaxConsecutiveErrors: 2})
	require.NoError(t, cb.AllowOpen())
	cb.Observe(rejected)
	cb.Observe(nil)
	cb.Observe(rejected)
	require.NoError(t, cb.AllowOpen())
	cb.Observe(timeout)

	err := cb.AllowOpen()
	require.ErrorIs(t, err, ErrCircuitBreakerOpen)
	require.True(t, domain.IsKind(err, domain.KindValidation))
	require.True(t, cb.Halted())

	cb.Resume()
	require.NoError(t, cb.AllowOpen())
}

func TestLocalFailuresDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(Config{MaxConsecutiveErrors: 2})
	for range 5 {
		cb.Observe(domain.Validationf("set_tp", "no ledger entry"))
		cb.Observe(domain.NotFoundf("position", "none"))
		cb.Observe(cb.open("halted"))
	}
	require.NoError(t, cb.AllowOpen())
	require.False(t, cb.Halted())
}

func TestDailyLossLimitRollsOver(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Config{DailyLossLimit: decimal.NewFromInt(100)})
	cb.now = func() time.Time { return now }

	cb.AddRealizedPnL(decimal.NewFromInt(-60))
	require.NoError(t, cb.AllowOpen())
	cb.AddRealizedPnL(decimal.NewFromInt(-40))
	require.ErrorIs(t, cb.AllowOpen(), ErrCircuitBreakerOpen)

	cb.Resume()
	now = now.Add(24 * time.Hour)
	require.True(t, cb.DailyPnL().IsZero())
	require.NoError(t, cb.AllowOpen())
}

func TestNilBreaker(t *testing.T) {
	var cb *CircuitBreaker
	require.NoError(t, cb.AllowOpen())
	cb.Observe(domain.Rejection("place", "x", 1))
	cb.AddRealizedPnL(decimal.NewFromInt(-1))
}
