package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/events"
	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/instrument"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/internal/orders"
	"github.com/betbot/goperp/internal/risk"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/client"
	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/pkg/persistence"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bigX18(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) PlaceOrder(ctx context.Context, o types.SignedOrder) (types.ExecutionResult, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(types.ExecutionResult), args.Error(1)
}

func (m *MockGateway) PlaceTriggerOrder(ctx context.Context, o types.SignedTriggerOrder) (types.ExecutionResult, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(types.ExecutionResult), args.Error(1)
}

func (m *MockGateway) CancelOrders(ctx context.Context, ids []types.ProductID, digests []string, trigger bool) (types.ExecutionResult, error) {
	args := m.Called(ctx, ids, digests, trigger)
	return args.Get(0).(types.ExecutionResult), args.Error(1)
}

func (m *MockGateway) CancelProductOrders(ctx context.Context, ids []types.ProductID, trigger bool) (types.ExecutionResult, error) {
	args := m.Called(ctx, ids, trigger)
	return args.Get(0).(types.ExecutionResult), args.Error(1)
}

func (m *MockGateway) GetPositions(ctx context.Context, sender types.Sender) ([]types.RemotePosition, error) {
	args := m.Called(ctx, sender)
	return args.Get(0).([]types.RemotePosition), args.Error(1)
}

func (m *MockGateway) GetBalance(ctx context.Context, sender types.Sender) (types.BalanceSnapshot, error) {
	args := m.Called(ctx, sender)
	return args.Get(0).(types.BalanceSnapshot), args.Error(1)
}

func (m *MockGateway) GetMarketPrice(ctx context.Context, id types.ProductID) (decimal.Decimal, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockGateway) GetOpenOrders(ctx context.Context, sender types.Sender, ids []types.ProductID) ([]types.RemoteOrder, error) {
	args := m.Called(ctx, sender, ids)
	return args.Get(0).([]types.RemoteOrder), args.Error(1)
}

type stubPrices struct {
	mu     sync.Mutex
	prices map[types.ProductID]decimal.Decimal
}

func (s *stubPrices) set(id types.ProductID, p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == "" {
		delete(s.prices, id)
		return
	}
	s.prices[id] = d(p)
}

func (s *stubPrices) Price(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[inst.ProductID]
	if !ok {
		return decimal.Zero, domain.Wrap(domain.KindNetwork, "price", errors.New("unavailable"))
	}
	return p, nil
}

type fixture struct {
	gw      *MockGateway
	prices  *stubPrices
	ledger  *ledger.Ledger
	orders  *orders.Manager
	bus     *events.Bus
	breaker *risk.CircuitBreaker
	engine  *Engine
	nudges  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := signing.PrivateKeyFromHex(testKeyHex)
	require.NoError(t, err)
	signer, err := signing.NewSigner(key, signing.Options{})
	require.NoError(t, err)
	l, err := ledger.Open(persistence.NewJSONFileService(t.TempDir()), "acct")
	require.NoError(t, err)
	reg, err := instrument.NewRegistry(types.Instrument{
		ProductID: 8, Symbol: "SOL-PERP", SizeIncrement: d("0.1"), PriceIncrement: d("0.01"),
	})
	require.NoError(t, err)

	f := &fixture{
		gw:      new(MockGateway),
		prices:  &stubPrices{prices: map[types.ProductID]decimal.Decimal{8: d("180")}},
		ledger:  l,
		orders:  orders.NewManager(),
		bus:     events.NewBus(),
		breaker: risk.NewCircuitBreaker(risk.Config{MaxConsecutiveErrors: 3}),
	}
	cfg := DefaultConfig()
	cfg.Leverage = d("10")
	f.engine, err = New(Deps{
		Gateway:     f.gw,
		Builder:     execution.NewBuilder(signer, signing.NewNonceSource(0), ""),
		Ledger:      l,
		Instruments: reg,
		Prices:      f.prices,
		Orders:      f.orders,
		Bus:         f.bus,
		Breaker:     f.breaker,
		Nudge:       func() { f.nudges++ },
	}, cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) expectPlace(digest string) *mock.Call {
	return f.gw.On("PlaceOrder", mock.Anything, mock.AnythingOfType("types.SignedOrder")).
		Return(types.ExecutionResult{Kind: types.RequestPlaceOrder, ProductID: 8, Digest: digest}, nil)
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	f.expectPlace("0xopen").Once()
	res, err := f.engine.OpenPosition(context.Background(), OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSucceeded, res.Outcome)
}

func placedOrder(t *testing.T, gw *MockGateway, method string, n int) mock.Arguments {
	t.Helper()
	var calls []mock.Call
	for _, c := range gw.Calls {
		if c.Method == method {
			calls = append(calls, c)
		}
	}
	require.Greater(t, len(calls), n)
	return calls[n].Arguments
}

func TestOpenPositionRecordsLeveragedEntry(t *testing.T) {
	f := newFixture(t)
	var opened *events.PositionOpenedEvent
	f.bus.On(events.TypePositionOpened, func(ctx context.Context, ev events.Event) error {
		opened = ev.(*events.PositionOpenedEvent)
		return nil
	})
	f.open(t)

	e, ok := f.ledger.Get(8)
	require.True(t, ok)
	assert.True(t, e.Size.Equal(d("5")))
	assert.True(t, e.EntryPrice.Equal(d("180")))
	assert.True(t, e.Leverage.Equal(d("10")))
	assert.Equal(t, "SOL-PERP", e.Symbol)
	assert.True(t, e.AwaitingFill, "IOC fill is confirmed by reconciliation")

	o := placedOrder(t, f.gw, "PlaceOrder", 0).Get(1).(types.SignedOrder)
	assert.Equal(t, 0, o.Order.Amount.Cmp(bigX18("5000000000000000000")))
	// 180 * 1.005
	assert.Equal(t, 0, o.Order.PriceX18.Cmp(bigX18("180900000000000000000")))
	assert.Equal(t, types.OrderTypeIOC, o.Order.Appendix.OrderType)
	assert.False(t, o.Order.Appendix.ReduceOnly)

	require.Len(t, f.orders.Active(), 1)
	require.NotNil(t, opened)
	assert.Equal(t, "0xopen", opened.Digest)
	assert.Equal(t, 1, f.nudges)
}

func TestSolTakeProfitAndStopLoss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.AnythingOfType("types.SignedTriggerOrder")).
		Return(types.ExecutionResult{Digest: "0xtp"}, nil).Once()
	res, err := f.engine.SetTakeProfit(ctx, 8, trigger.AtPercent(d("5")))
	require.NoError(t, err)
	require.NotNil(t, res.Trigger)
	assert.True(t, res.Trigger.TriggerPrice.Equal(d("189")))
	assert.Equal(t, types.TriggerAbove, res.Trigger.Direction)
	assert.Equal(t, types.SideSell, res.Trigger.ClosingSide)
	assert.Equal(t, types.OrderTypePostOnly, res.Trigger.OrderType)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.AnythingOfType("types.SignedTriggerOrder")).
		Return(types.ExecutionResult{Digest: "0xsl"}, nil).Once()
	res, err = f.engine.SetStopLoss(ctx, 8, trigger.AtPercent(d("2")))
	require.NoError(t, err)
	assert.True(t, res.Trigger.TriggerPrice.Equal(d("176.4")))
	assert.Equal(t, types.TriggerBelow, res.Trigger.Direction)
	assert.True(t, res.Trigger.ExecPrice.Equal(d("175.51")))
	assert.Equal(t, types.OrderTypeIOC, res.Trigger.OrderType)

	sl := placedOrder(t, f.gw, "PlaceTriggerOrder", 1).Get(1).(types.SignedTriggerOrder)
	assert.Equal(t, types.TriggerBelow, sl.Direction)
	assert.True(t, sl.Order.Appendix.ReduceOnly)
	assert.Equal(t, 0, sl.Order.Amount.Cmp(bigX18("-5000000000000000000")))

	e, _ := f.ledger.Get(8)
	require.NotNil(t, e.TakeProfit)
	require.NotNil(t, e.StopLoss)
	assert.True(t, e.TakeProfit.Equal(d("189")))
	assert.True(t, e.StopLoss.Equal(d("176.4")))
	assert.Equal(t, "0xtp", e.TakeProfitDigest)
	assert.Equal(t, "0xsl", e.StopLossDigest)

	o := f.orders.Active()[0]
	require.NotNil(t, o.TakeProfit)
	assert.True(t, o.TakeProfit.Equal(d("189")))
}

func TestReplacingTakeProfitCancelsOldOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).Return(types.ExecutionResult{Digest: "0xtp1"}, nil).Once()
	_, err := f.engine.SetTakeProfit(ctx, 8, trigger.AtPrice(d("189")))
	require.NoError(t, err)

	f.gw.On("CancelOrders", mock.Anything, []types.ProductID{8}, []string{"0xtp1"}, true).
		Return(types.ExecutionResult{Cancelled: []string{"0xtp1"}}, nil).Once()
	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).Return(types.ExecutionResult{Digest: "0xtp2"}, nil).Once()
	_, err = f.engine.SetTakeProfit(ctx, 8, trigger.AtPrice(d("195")))
	require.NoError(t, err)

	f.gw.AssertExpectations(t)
	e, _ := f.ledger.Get(8)
	assert.Equal(t, "0xtp2", e.TakeProfitDigest)
	assert.True(t, e.TakeProfit.Equal(d("195")))
}

func TestFailedReplacementKeepsOldTakeProfit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).Return(types.ExecutionResult{Digest: "0xtp1"}, nil).Once()
	_, err := f.engine.SetTakeProfit(ctx, 8, trigger.AtPrice(d("189")))
	require.NoError(t, err)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).
		Return(types.ExecutionResult{}, &client.APIError{Request: "place_order", Code: 2008, Message: "max trigger orders exceeded"}).Once()
	res, err := f.engine.SetTakeProfit(ctx, 8, trigger.AtPrice(d("195")))
	require.True(t, domain.IsKind(err, domain.KindRemoteRejection))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)

	f.gw.AssertNotCalled(t, "CancelOrders", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	e, _ := f.ledger.Get(8)
	assert.Equal(t, "0xtp1", e.TakeProfitDigest)
	assert.True(t, e.TakeProfit.Equal(d("189")))
}

func TestReplacementSurvivesCancelFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).Return(types.ExecutionResult{Digest: "0xsl1"}, nil).Once()
	_, err := f.engine.SetStopLoss(ctx, 8, trigger.AtPrice(d("176")))
	require.NoError(t, err)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).Return(types.ExecutionResult{Digest: "0xsl2"}, nil).Once()
	f.gw.On("CancelOrders", mock.Anything, []types.ProductID{8}, []string{"0xsl1"}, true).
		Return(types.ExecutionResult{}, &client.APIError{Request: "cancel_orders", Code: 2020, Message: "order not found"}).Once()
	res, err := f.engine.SetStopLoss(ctx, 8, trigger.AtPrice(d("177")))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Contains(t, res.Message, "not cancelled")

	e, _ := f.ledger.Get(8)
	assert.Equal(t, "0xsl2", e.StopLossDigest)
	assert.True(t, e.StopLoss.Equal(d("177")))
}

func TestTakeProfitTimeoutAfterSubmitIsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t)

	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).
		Return(types.ExecutionResult{}, &client.NetworkError{Op: "execute", Timeout: true, Submitted: true, Err: context.DeadlineExceeded}).Once()
	res, err := f.engine.SetTakeProfit(ctx, 8, trigger.AtPercent(d("5")))
	require.Error(t, err)
	assert.Equal(t, domain.OutcomeUnknown, res.Outcome)
	e, _ := f.ledger.Get(8)
	assert.Nil(t, e.TakeProfit)

	_, err = f.engine.SetTakeProfit(ctx, 8, trigger.AtPercent(d("5")))
	require.ErrorIs(t, err, execution.ErrDuplicateInFlight)
	f.gw.AssertNumberOfCalls(t, "PlaceTriggerOrder", 1)
}

func TestValidationFailuresDoNotTripBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rejected := metrics.OrdersRejected.Value()

	for i := 0; i < 3; i++ {
		_, err := f.engine.SetTakeProfit(ctx, 8, trigger.AtPercent(d("5")))
		require.True(t, domain.IsKind(err, domain.KindValidation))
		_, err = f.engine.OpenPosition(ctx, OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.001")})
		require.True(t, domain.IsKind(err, domain.KindValidation))
	}
	assert.False(t, f.breaker.Halted())
	assert.Equal(t, rejected, metrics.OrdersRejected.Value())

	f.open(t)
	assert.False(t, f.breaker.Halted())
}

func TestRemoteRejectionsTripBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(types.ExecutionResult{}, &client.APIError{Request: "place_order", Code: 2006, Message: "insufficient account health"}).Times(3)

	for i := 0; i < 3; i++ {
		_, err := f.engine.OpenPosition(ctx, OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
		require.True(t, domain.IsKind(err, domain.KindRemoteRejection))
	}
	_, err := f.engine.OpenPosition(ctx, OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
	require.ErrorIs(t, err, risk.ErrCircuitBreakerOpen)
	assert.True(t, f.breaker.Halted())
	f.gw.AssertNumberOfCalls(t, "PlaceOrder", 3)
}

func TestSetTriggerWithoutEntryIsValidationError(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.SetTakeProfit(context.Background(), 8, trigger.AtPercent(d("5")))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	f.gw.AssertNotCalled(t, "PlaceTriggerOrder", mock.Anything, mock.Anything)
}

func TestWrongSideTargetRejectedBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.prices.set(8, "185")

	_, err := f.engine.SetTakeProfit(context.Background(), 8, trigger.AtPrice(d("183")))
	require.True(t, domain.IsKind(err, domain.KindValidation))
	f.gw.AssertNotCalled(t, "PlaceTriggerOrder", mock.Anything, mock.Anything)
}

func TestOpenRejectionLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(types.ExecutionResult{}, &client.APIError{Request: "place_order", Code: 2006, Message: "insufficient account health"}).Once()

	res, err := f.engine.OpenPosition(context.Background(), OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindRemoteRejection))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, "insufficient account health", res.Message)
	_, ok := f.ledger.Get(8)
	assert.False(t, ok)
	assert.Empty(t, f.orders.Active())
}

func TestOpenTimeoutAfterSubmitIsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(types.ExecutionResult{}, &client.NetworkError{Op: "execute", Timeout: true, Submitted: true, Err: context.DeadlineExceeded}).Once()

	res, err := f.engine.OpenPosition(ctx, OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
	require.Error(t, err)
	assert.Equal(t, domain.OutcomeUnknown, res.Outcome)
	_, ok := f.ledger.Get(8)
	assert.False(t, ok)

	// 结果未知期间拒绝重复开仓
	_, err = f.engine.OpenPosition(ctx, OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
	require.ErrorIs(t, err, execution.ErrDuplicateInFlight)
	f.gw.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestOpenBelowSizeStep(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.OpenPosition(context.Background(), OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.001")})
	require.True(t, domain.IsKind(err, domain.KindValidation))
	f.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestOpenWithoutPriceDefers(t *testing.T) {
	f := newFixture(t)
	f.prices.set(8, "")
	res, err := f.engine.OpenPosition(context.Background(), OpenRequest{ProductID: 8, Side: types.SideSell, Size: d("1")})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNetwork))
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	f.gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestHaltedBreakerBlocksOpen(t *testing.T) {
	f := newFixture(t)
	f.breaker.Halt()
	_, err := f.engine.OpenPosition(context.Background(), OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
	require.ErrorIs(t, err, risk.ErrCircuitBreakerOpen)
}

func TestClosePositionMarksPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t)
	f.prices.set(8, "185")

	f.expectPlace("0xclose").Once()
	f.gw.On("CancelProductOrders", mock.Anything, []types.ProductID{8}, true).
		Return(types.ExecutionResult{Cancelled: []string{"0xtp"}}, nil).Once()

	res, err := f.engine.ClosePosition(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 1, res.Cancelled)

	o := placedOrder(t, f.gw, "PlaceOrder", 1).Get(1).(types.SignedOrder)
	assert.Equal(t, 0, o.Order.Amount.Cmp(bigX18("-5000000000000000000")))
	// 185 * 0.995 = 184.075 向下取整
	assert.Equal(t, 0, o.Order.PriceX18.Cmp(bigX18("184070000000000000000")))
	assert.True(t, o.Order.Appendix.ReduceOnly)

	e, ok := f.ledger.Get(8)
	require.True(t, ok, "entry stays until reconciliation confirms")
	assert.True(t, e.ClosePending)
	require.NotNil(t, e.ExitPrice)
	assert.True(t, e.ExitPrice.Equal(d("185")))
	assert.Equal(t, domain.CloseManual, e.CloseReason)

	_, err = f.engine.ClosePosition(ctx, 8)
	require.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestPartialCloseKeepsEntry(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.expectPlace("0xpart").Once()

	_, err := f.engine.PartialClose(context.Background(), 8, d("0.4"))
	require.NoError(t, err)
	e, _ := f.ledger.Get(8)
	assert.True(t, e.Size.Equal(d("3")))
	assert.True(t, e.EntryPrice.Equal(d("180")))
	assert.False(t, e.ClosePending)
	assert.True(t, f.orders.Active()[0].Size.Equal(d("3")))

	_, err = f.engine.PartialClose(context.Background(), 8, d("1.5"))
	require.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestListPositions(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.prices.set(8, "190")

	views, err := f.engine.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	v := views[0]
	assert.True(t, v.MarkAvailable)
	assert.True(t, v.UnrealizedPnL.Equal(d("50")))
	assert.Positive(t, v.UnrealizedPct.Sign())

	f.prices.set(8, "")
	views, err = f.engine.ListPositions(context.Background())
	require.NoError(t, err)
	// 回退到开仓时记录的标记价
	assert.True(t, views[0].MarkPrice.Equal(d("180")))
}

func TestCancelAllClearsTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t)
	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).Return(types.ExecutionResult{Digest: "0xtp"}, nil).Once()
	_, err := f.engine.SetTakeProfit(ctx, 8, trigger.AtPercent(d("5")))
	require.NoError(t, err)

	f.gw.On("CancelProductOrders", mock.Anything, []types.ProductID{8}, false).Return(types.ExecutionResult{}, nil).Once()
	f.gw.On("CancelProductOrders", mock.Anything, []types.ProductID{8}, true).Return(types.ExecutionResult{Cancelled: []string{"0xtp"}}, nil).Once()

	res, err := f.engine.CancelAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cancelled)
	e, _ := f.ledger.Get(8)
	assert.Nil(t, e.TakeProfit)
	assert.Empty(t, e.TakeProfitDigest)
	assert.Nil(t, f.orders.Active()[0].TakeProfit)
}

func TestAutoTakeProfit(t *testing.T) {
	f := newFixture(t)
	f.engine.cfg.AutoTakeProfitPct = d("5")
	f.expectPlace("0xopen").Once()
	f.gw.On("PlaceTriggerOrder", mock.Anything, mock.Anything).Return(types.ExecutionResult{Digest: "0xauto"}, nil).Once()

	res, err := f.engine.OpenPosition(context.Background(), OpenRequest{ProductID: 8, Side: types.SideBuy, Size: d("0.5")})
	require.NoError(t, err)
	require.NotNil(t, res.Trigger)
	assert.True(t, res.Trigger.TriggerPrice.Equal(d("189")))
	assert.Equal(t, "0xauto", res.Entry.TakeProfitDigest)
}
