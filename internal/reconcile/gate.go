package reconcile

import (
	"sync"
	"time"
)

// gate 基于时间的节流：距上次对账不足 interval 时拒绝推送触发的对账
type gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newGate(interval time.Duration) *gate {
	return &gate{interval: interval}
}

// ready 不修改状态
func (g *gate) ready(now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.interval <= 0 || g.last.IsZero() {
		return true, g.interval
	}
	since := now.Sub(g.last)
	return since >= g.interval, since
}

func (g *gate) mark(now time.Time) {
	g.mu.Lock()
	g.last = now
	g.mu.Unlock()
}
