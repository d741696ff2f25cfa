package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/goperp/pkg/logger"
)

// Handler 关闭处理函数，应在 ctx 结束前返回
type Handler func(ctx context.Context)

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器：按注册的逆序分阶段执行，同一阶段内并发
type Manager struct {
	stages [][]namedHandler
	mu     sync.Mutex
	once   sync.Once
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调（新阶段）
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, []namedHandler{{name: name, fn: handler}})
}

// Shutdown 执行所有关闭回调（阻塞调用，只执行一次）。
// 后注册的先关闭：例如先停 API 和对账循环，最后关闭存储。
func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		m.mu.Lock()
		stages := m.stages
		m.mu.Unlock()

		if len(stages) == 0 {
			logger.Info("没有注册的关闭回调")
			return
		}
		logger.Infof("开始优雅关闭，共 %d 个阶段", len(stages))

		for i := len(stages) - 1; i >= 0; i-- {
			if !runStage(ctx, stages[i]) {
				logger.Warnf("关闭超时: %v", ctx.Err())
				return
			}
		}
		logger.Info("所有关闭回调已完成")
	})
}

func runStage(ctx context.Context, handlers []namedHandler) bool {
	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for _, h := range handlers {
		go func(h namedHandler) {
			defer wg.Done()
			logger.Debugf("关闭: %s", h.name)
			h.fn(ctx)
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
