package pool

import (
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// ErrCircuitOpen 熔断器打开，调用被拒绝
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState 熔断器状态
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker 熔断器
// 连续失败达到 maxFailures 后打开，resetTimeout 后放行一次探测请求
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailTime time.Time
	state        CircuitState
	// probing 半开状态下已有探测请求在途
	probing bool
	mu      sync.Mutex
	now     func() time.Time
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Allow 判断是否放行本次调用，放行后必须调用 Record
// 半开状态只放行一个探测请求，结果返回前其余调用直接拒绝
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) <= cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

// Record 记录调用结果，countable 为 false 的失败（如 4xx 业务拒绝）不计入熔断
// 半开状态下收到这类失败说明下游可达，同样关闭熔断
func (cb *CircuitBreaker) Record(err error, countable bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	halfOpen := cb.state == StateHalfOpen
	cb.probing = false
	if err == nil || !countable {
		if err == nil || halfOpen {
			cb.failures = 0
			cb.state = StateClosed
		}
		return
	}

	cb.failures++
	cb.lastFailTime = cb.now()
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Call 执行函数调用，所有错误都计入失败
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err, true)
	return err
}

// State 获取当前状态
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
