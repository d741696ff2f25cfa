package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/types"
)

func TestClientRoundTrip(t *testing.T) {
	tr, h := newTestServer(t, "tok")
	srv := httptest.NewServer(h)
	defer srv.Close()
	ctx := context.Background()

	tr.On("ListPositions", mock.Anything).Return([]domain.PositionView{{
		ProductID: 8, Symbol: "SOL-PERP", Side: types.PositionLong, Size: decimal.NewFromInt(5),
	}}, nil).Once()
	tr.On("ClosePosition", mock.Anything, types.ProductID(8)).
		Return(domain.Result{Outcome: domain.OutcomeUnknown}, domain.Wrap(domain.KindTimeout, "engine.close", context.DeadlineExceeded)).Once()
	tr.On("ClosePosition", mock.Anything, types.ProductID(8)).
		Return(domain.Result{Outcome: domain.OutcomeFailed}, domain.Validationf("engine.close", "close already pending")).Once()

	c := NewClient(srv.URL, "tok", 5*time.Second)
	views, err := c.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "SOL-PERP", views[0].Symbol)

	res, err := c.Close(ctx, "SOL")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnknown, res.Result.Outcome)
	assert.NotEmpty(t, res.Error)

	_, err = c.Close(ctx, "SOL")
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, domain.KindValidation, re.Kind)

	_, err = NewClient(srv.URL, "wrong", time.Second).Positions(ctx)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)

	_, err = c.SetTrigger(ctx, "SOL", domain.RoleTakeProfit, "nope")
	require.Error(t, err)
	tr.AssertExpectations(t)
}
