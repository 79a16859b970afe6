package shutdown

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/betbot/ngdist/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
// 回调按注册的逆序依次执行（后打开的先关闭）
type Manager struct {
	callbacks []namedHandler
	mu        sync.Mutex
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用），返回第一个错误
// ctx 应该带超时；超时后剩余回调仍会执行，由各回调自行处理 ctx
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Info("没有注册的关闭回调")
		return nil
	}

	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var first error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := cb.fn(ctx); err != nil {
			logger.Warnf("关闭 %s 失败: %v", cb.name, err)
			if first == nil {
				first = errors.Wrapf(err, "shutdown %s", cb.name)
			}
		}
	}

	if ctx.Err() != nil {
		logger.Warnf("关闭超时: %v", ctx.Err())
	} else {
		logger.Info("所有关闭回调已完成")
	}
	return first
}
