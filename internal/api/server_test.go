package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/engine"
	"github.com/betbot/goperp/internal/history"
	"github.com/betbot/goperp/internal/instrument"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

type MockTrader struct {
	mock.Mock
}

func (m *MockTrader) ListPositions(ctx context.Context) ([]domain.PositionView, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.PositionView), args.Error(1)
}

func (m *MockTrader) Position(ctx context.Context, id types.ProductID) (domain.PositionView, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.PositionView), args.Error(1)
}

func (m *MockTrader) OpenPosition(ctx context.Context, req engine.OpenRequest) (domain.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) ClosePosition(ctx context.Context, id types.ProductID) (domain.Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) PartialClose(ctx context.Context, id types.ProductID, fraction decimal.Decimal) (domain.Result, error) {
	args := m.Called(ctx, id, fraction.String())
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) SetTakeProfit(ctx context.Context, id types.ProductID, target trigger.Target) (domain.Result, error) {
	args := m.Called(ctx, id, target.String())
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) SetStopLoss(ctx context.Context, id types.ProductID, target trigger.Target) (domain.Result, error) {
	args := m.Called(ctx, id, target.String())
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) ClearTriggers(ctx context.Context, id types.ProductID) (domain.Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) CancelOrder(ctx context.Context, id types.ProductID, digest string, isTrigger bool) (domain.Result, error) {
	args := m.Called(ctx, id, digest, isTrigger)
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) CancelAll(ctx context.Context) (domain.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockTrader) OpenOrders(ctx context.Context) ([]types.RemoteOrder, error) {
	args := m.Called(ctx)
	return args.Get(0).([]types.RemoteOrder), args.Error(1)
}

func (m *MockTrader) Balance(ctx context.Context) (types.BalanceSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.BalanceSnapshot), args.Error(1)
}

func (m *MockTrader) History(ctx context.Context, q history.Query) ([]domain.ClosedTrade, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]domain.ClosedTrade), args.Error(1)
}

func (m *MockTrader) Stats(ctx context.Context, q history.Query) (domain.TradeStats, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.TradeStats), args.Error(1)
}

func (m *MockTrader) Scenarios(ctx context.Context, id types.ProductID, side types.PositionSide, baseSize, leverage decimal.Decimal) ([]trigger.Scenario, error) {
	args := m.Called(ctx, id, side, baseSize.String(), leverage.String())
	return args.Get(0).([]trigger.Scenario), args.Error(1)
}

func newTestServer(t *testing.T, token string) (*MockTrader, http.Handler) {
	t.Helper()
	reg, err := instrument.NewRegistry(types.Instrument{
		ProductID: 8, Symbol: "SOL-PERP",
		SizeIncrement: decimal.RequireFromString("0.1"), PriceIncrement: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	tr := new(MockTrader)
	s, err := New(Config{Token: token}, tr, reg)
	require.NoError(t, err)
	return tr, s.Router()
}

func do(h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	tr, h := newTestServer(t, "s3cret")
	tr.On("ListPositions", mock.Anything).Return([]domain.PositionView{}, nil)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/positions", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/positions", "", "Authorization", "Bearer nope").Code)

	w := do(h, http.MethodGet, "/api/positions", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestOpenMapsRequest(t *testing.T) {
	tr, h := newTestServer(t, "")
	tr.On("OpenPosition", mock.Anything, mock.MatchedBy(func(req engine.OpenRequest) bool {
		return req.ProductID == 8 && req.Side == types.SideSell &&
			req.Size.Equal(decimal.RequireFromString("0.5")) && req.Leverage.Equal(decimal.NewFromInt(10))
	})).Return(domain.Succeeded("0xabc"), nil).Once()

	w := do(h, http.MethodPost, "/api/positions", `{"product":"SOL","side":"short","size":"0.5","leverage":"10"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Result domain.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0xabc", body.Result.Digest)
	tr.AssertExpectations(t)
}

func TestResultStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		res  domain.Result
		err  error
		code int
	}{
		{"validation", domain.Result{Outcome: domain.OutcomeFailed}, domain.Validationf("engine.close", "no open position"), http.StatusBadRequest},
		{"rejected", domain.Result{Outcome: domain.OutcomeFailed}, domain.Rejection("engine.close", "insufficient health", 2006), http.StatusUnprocessableEntity},
		{"unknown", domain.Result{Outcome: domain.OutcomeUnknown}, domain.Wrap(domain.KindTimeout, "engine.close", context.DeadlineExceeded), http.StatusAccepted},
		{"ok", domain.Succeeded("0x1"), nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, h := newTestServer(t, "")
			tr.On("ClosePosition", mock.Anything, types.ProductID(8)).Return(tt.res, tt.err)
			w := do(h, http.MethodDelete, "/api/positions/8", "")
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestTriggerTargets(t *testing.T) {
	tr, h := newTestServer(t, "")
	tr.On("SetTakeProfit", mock.Anything, types.ProductID(8), "5%").Return(domain.Succeeded("0xtp"), nil).Once()
	tr.On("SetStopLoss", mock.Anything, types.ProductID(8), "176.4").Return(domain.Succeeded("0xsl"), nil).Once()

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/positions/SOL-PERP/tp", `{"target":"5%"}`).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/positions/sol/sl", `{"target":"176.4"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/positions/8/sl", `{"target":"abc"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/positions/DOGE/tp", `{"target":"5%"}`).Code)
	tr.AssertExpectations(t)
}

func TestPartialCloseAcceptsPercent(t *testing.T) {
	tr, h := newTestServer(t, "")
	tr.On("PartialClose", mock.Anything, types.ProductID(8), "0.25").Return(domain.Succeeded("0xp"), nil).Twice()

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/positions/8/partial", `{"fraction":"25%"}`).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/positions/8/partial", `{"fraction":"0.25"}`).Code)
	tr.AssertExpectations(t)
}

func TestCancelOrderTriggerFlag(t *testing.T) {
	tr, h := newTestServer(t, "")
	tr.On("CancelOrder", mock.Anything, types.ProductID(8), "0xdead", true).Return(domain.Succeeded("0xdead"), nil).Once()

	w := do(h, http.MethodDelete, "/api/orders/8/0xdead?trigger=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	tr.AssertExpectations(t)
}

func TestHistoryQuery(t *testing.T) {
	tr, h := newTestServer(t, "")
	tr.On("History", mock.Anything, mock.MatchedBy(func(q history.Query) bool {
		return q.ProductID != nil && *q.ProductID == 8 && q.Limit == 20 && !q.Since.IsZero()
	})).Return([]domain.ClosedTrade{{ProductID: 8, Symbol: "SOL-PERP"}}, nil).Once()

	w := do(h, http.MethodGet, "/api/history?product=SOL&limit=20&since=24h", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "SOL-PERP")

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/history?limit=-1", "").Code)
	tr.AssertExpectations(t)
}

func TestScenarios(t *testing.T) {
	tr, h := newTestServer(t, "")
	tr.On("Scenarios", mock.Anything, types.ProductID(8), types.PositionShort, "1", "0").
		Return([]trigger.Scenario{{}}, nil).Once()

	w := do(h, http.MethodGet, "/api/scenarios?product=8&side=short&size=1", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/scenarios?product=8&side=up&size=1", "").Code)
	tr.AssertExpectations(t)
}
