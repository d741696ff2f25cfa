// Package metrics 进程内计数器（expvar），通过 /debug/vars 暴露。
package metrics

import "expvar"

var (
	ReconcileRuns     = expvar.NewInt("reconcile_runs")
	ReconcileErrors   = expvar.NewInt("reconcile_errors")
	ReconcileDrift    = expvar.NewInt("reconcile_drift")
	PositionsClosed   = expvar.NewInt("positions_closed")
	OrdersSubmitted   = expvar.NewInt("orders_submitted")
	OrdersRejected    = expvar.NewInt("orders_rejected")
	OrdersUnknown     = expvar.NewInt("orders_outcome_unknown")
	TriggersSubmitted = expvar.NewInt("triggers_submitted")
	StreamReconnects  = expvar.NewInt("stream_reconnects")
	PriceFallbacks    = expvar.NewInt("price_fallbacks")
)

// ObserveOutcome 按开平仓市价单的提交结果计数；条件单记在 TriggersSubmitted
func ObserveOutcome(outcome string) {
	switch outcome {
	case "succeeded":
		OrdersSubmitted.Add(1)
	case "failed":
		OrdersRejected.Add(1)
	case "unknown":
		OrdersUnknown.Add(1)
	}
}
