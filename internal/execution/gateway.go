// Package execution 连接引擎和网关：订单构建签名、网关接口和错误归类。
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/nado/types"
)

// OrderGateway 下单和撤单（均不自动重试）
type OrderGateway interface {
	PlaceOrder(ctx context.Context, order types.SignedOrder) (types.ExecutionResult, error)
	PlaceTriggerOrder(ctx context.Context, order types.SignedTriggerOrder) (types.ExecutionResult, error)
	CancelOrders(ctx context.Context, productIDs []types.ProductID, digests []string, trigger bool) (types.ExecutionResult, error)
	CancelProductOrders(ctx context.Context, productIDs []types.ProductID, trigger bool) (types.ExecutionResult, error)
}

// QueryGateway 只读查询
type QueryGateway interface {
	GetPositions(ctx context.Context, sender types.Sender) ([]types.RemotePosition, error)
	GetBalance(ctx context.Context, sender types.Sender) (types.BalanceSnapshot, error)
	GetMarketPrice(ctx context.Context, productID types.ProductID) (decimal.Decimal, error)
	GetOpenOrders(ctx context.Context, sender types.Sender, productIDs []types.ProductID) ([]types.RemoteOrder, error)
}

// Gateway 完整网关，*client.Client 实现该接口
type Gateway interface {
	OrderGateway
	QueryGateway
}
