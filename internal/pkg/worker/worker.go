package worker

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"shop_backend/pkg/logger"
)

// Task 异步副作用任务（物流下单/取消、通知发送等）
type Task struct {
	Name  string // 任务类型，用于日志与指标
	Key   string // 业务键，如订单号
	Run   func(ctx context.Context) error
	Retry int // 已重试次数
	// TraceID 投递任务的请求追踪ID，执行时写回 context
	TraceID string
}

// Dispatcher 任务投递接口，订单服务只依赖该接口
type Dispatcher interface {
	AddTask(task Task)
}

// ResultHook 任务执行结果回调 outcome: success|retry|dropped
type ResultHook func(task Task, outcome string, err error)

// permanentError 不可重试的错误（例如物流商 4xx 拒绝）
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记错误不再重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断是否为不可重试错误
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

var errStopped = errors.New("worker pool stopped")

type WorkerPool struct {
	TaskQueue  chan Task
	RetryQueue chan Task // 重试队列
	WorkerNum  int
	MaxRetry   int // 最大重试次数
	Timeout    time.Duration
	BaseDelay  time.Duration

	logger  *zap.Logger
	hook    ResultHook
	wg      sync.WaitGroup
	retryWg sync.WaitGroup
	once    sync.Once
	// mu 保护 TaskQueue 的关闭，closed 之后不再接收任务
	mu     sync.RWMutex
	closed bool
	// ctx 只控制重试协程，任务本身的 context 不受 Stop 影响
	ctx    context.Context
	cancel context.CancelFunc
}

// Option 配置项
type Option func(*WorkerPool)

func WithMaxRetry(n int) Option { return func(p *WorkerPool) { p.MaxRetry = n } }

func WithTimeout(d time.Duration) Option { return func(p *WorkerPool) { p.Timeout = d } }

func WithBaseDelay(d time.Duration) Option { return func(p *WorkerPool) { p.BaseDelay = d } }

func WithResultHook(h ResultHook) Option { return func(p *WorkerPool) { p.hook = h } }

func NewWorkerPool(logger *zap.Logger, workerNum int, bufferSize int, opts ...Option) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		TaskQueue:  make(chan Task, bufferSize),
		RetryQueue: make(chan Task, bufferSize/2+1),
		WorkerNum:  workerNum,
		MaxRetry:   3,
		Timeout:    15 * time.Second,
		BaseDelay:  time.Second,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.retryWg.Add(1)
	go p.retryWorker()
	p.logger.Info("worker pool started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止接收新任务，等待队列中与在途的任务执行完，再停止重试协程
// 等待重试的任务记入死信
func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.TaskQueue)
		p.mu.Unlock()

		p.wg.Wait()
		p.cancel()
		p.retryWg.Wait()

		for {
			select {
			case task := <-p.RetryQueue:
				p.logFailedTask(task, errStopped)
			default:
				p.logger.Info("worker pool stopped")
				return
			}
		}
	})
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.TaskQueue {
		err := p.processTask(task)
		if err == nil {
			p.report(task, "success", nil)
			continue
		}

		log := p.logger.With(
			zap.Int("worker", id),
			zap.String("task", task.Name),
			zap.String("key", task.Key),
			zap.Int("attempt", task.Retry+1),
			zap.Error(err),
		)

		if IsPermanent(err) || task.Retry >= p.MaxRetry {
			log.Error("task failed permanently")
			p.logFailedTask(task, err)
			continue
		}

		task.Retry++
		select {
		case p.RetryQueue <- task:
			log.Warn("task added to retry queue")
			p.report(task, "retry", err)
		default:
			log.Error("retry queue full, task dropped")
			p.logFailedTask(task, err)
		}
	}
}

func (p *WorkerPool) retryWorker() {
	defer p.retryWg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.RetryQueue:
			// 指数退避 + 抖动，避免同时重试
			select {
			case <-p.ctx.Done():
				p.logFailedTask(task, errStopped)
				return
			case <-time.After(p.backoff(task.Retry)):
			}

			if !p.requeue(task) {
				p.logger.Error("main queue full or stopped, retry dropped",
					zap.String("task", task.Name), zap.String("key", task.Key))
				p.logFailedTask(task, nil)
			}
		}
	}
}

// requeue 重新加入主队列；Stop 之后队列已关闭，直接丢弃
func (p *WorkerPool) requeue(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.TaskQueue <- task:
		return true
	default:
		return false
	}
}

func (p *WorkerPool) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 {
		return 0
	}
	return d/2 + rand.N(d/2+1)
}

// processTask 任务 context 只受 Timeout 约束，Stop 排空队列时仍可正常执行
func (p *WorkerPool) processTask(task Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()
	return runSafely(ctx, task)
}

// runSafely panic 视为不可重试错误
func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(errors.Errorf("task panicked: %v", r))
		}
	}()
	if task.TraceID != "" {
		ctx = logger.WithTraceID(ctx, task.TraceID)
	}
	return task.Run(ctx)
}

func (p *WorkerPool) logFailedTask(task Task, err error) {
	// TODO: 持久化到死信表，供运营后台人工补偿
	p.logger.Error("dead letter",
		zap.String("task", task.Name),
		zap.String("trace_id", task.TraceID),
		zap.String("key", task.Key),
		zap.Int("retry", task.Retry),
		zap.Error(err),
	)
	p.report(task, "dropped", err)
}

func (p *WorkerPool) report(task Task, outcome string, err error) {
	if p.hook != nil {
		p.hook(task, outcome, err)
	}
}

func (p *WorkerPool) AddTask(task Task) {
	if ok := p.requeue(task); !ok {
		p.logger.Error("worker pool queue full or stopped, dropping task",
			zap.String("task", task.Name), zap.String("key", task.Key))
		p.logFailedTask(task, nil)
	}
}
