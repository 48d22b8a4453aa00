package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// InlineDispatcher 在调用方协程中同步执行任务，不重试
// 用于 worker.workers=0 的单机部署以及测试
type InlineDispatcher struct {
	logger  *zap.Logger
	timeout time.Duration
	hook    ResultHook
}

func NewInlineDispatcher(logger *zap.Logger, timeout time.Duration, hook ResultHook) *InlineDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineDispatcher{logger: logger, timeout: timeout, hook: hook}
}

func (d *InlineDispatcher) AddTask(task Task) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := runSafely(ctx, task)
	outcome := "success"
	if err != nil {
		outcome = "dropped"
		d.logger.Warn("inline task failed",
			zap.String("task", task.Name),
			zap.String("key", task.Key),
			zap.Error(err),
		)
	}
	if d.hook != nil {
		d.hook(task, outcome, err)
	}
}
