package trigger

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/execution"
	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/nado/types"
	"github.com/betbot/goperp/nado/x18"
)

// Manager 签名并提交条件单
type Manager struct {
	gw      execution.OrderGateway
	builder *execution.Builder
	cfg     Config
	log     *logrus.Entry
}

// NewManager 创建条件单管理器
func NewManager(gw execution.OrderGateway, builder *execution.Builder, cfg Config) *Manager {
	return &Manager{
		gw:      gw,
		builder: builder,
		cfg:     cfg,
		log:     logrus.WithField("component", "trigger"),
	}
}

// Config 当前参数
func (m *Manager) Config() Config { return m.cfg }

// Submit 签名并提交条件单，返回摘要。err 已归类为领域错误，submitted 表示结果可能未知。
func (m *Manager) Submit(ctx context.Context, inst types.Instrument, plan domain.TriggerPlan) (digest string, submitted bool, err error) {
	signed, err := m.builder.Sign(execution.OrderSpec{
		Instrument: inst,
		Price:      plan.ExecPrice,
		Amount:     plan.Amount,
		TTL:        m.cfg.TTL,
		Appendix:   Appendix(plan),
	})
	if err != nil {
		err, _ = execution.Classify("trigger.sign", err)
		return "", false, err
	}
	res, err := m.gw.PlaceTriggerOrder(ctx, types.SignedTriggerOrder{
		SignedOrder:     signed,
		TriggerPriceX18: x18.FromDecimal(plan.TriggerPrice),
		Direction:       plan.Direction,
	})
	if err != nil {
		err, submitted = execution.Classify("trigger.submit", err)
		return "", submitted, err
	}
	metrics.TriggersSubmitted.Add(1)
	m.log.Infof("%s 条件单已提交: product=%d %s trigger=%s exec=%s amount=%s",
		plan.Role, plan.ProductID, plan.Direction, plan.TriggerPrice, plan.ExecPrice, plan.Amount)
	return res.Digest, true, nil
}

// Cancel 撤销指定摘要的条件单，返回撤销数量
func (m *Manager) Cancel(ctx context.Context, productID types.ProductID, digests ...string) (int, error) {
	var ids []types.ProductID
	var ds []string
	for _, d := range digests {
		if d == "" {
			continue
		}
		ids = append(ids, productID)
		ds = append(ds, d)
	}
	if len(ds) == 0 {
		return 0, nil
	}
	res, err := m.gw.CancelOrders(ctx, ids, ds, true)
	if err != nil {
		err, _ = execution.Classify("trigger.cancel", err)
		return 0, err
	}
	return len(res.Cancelled), nil
}

// CancelProduct 撤销产品的所有条件单
func (m *Manager) CancelProduct(ctx context.Context, productID types.ProductID) (int, error) {
	res, err := m.gw.CancelProductOrders(ctx, []types.ProductID{productID}, true)
	if err != nil {
		err, _ = execution.Classify("trigger.cancel_product", err)
		return 0, err
	}
	return len(res.Cancelled), nil
}
