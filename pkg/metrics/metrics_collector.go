package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 订单域指标收集器，所有方法对 nil 接收者安全
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 订单指标
	ordersCreatedTotal    prometheus.Counter
	orderTransitionsTotal *prometheus.CounterVec

	// 副作用任务 / 外部调用
	tasksTotal          *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec
}

// NewMetricsCollector 创建指标收集器，reg 为 nil 时使用默认注册表
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &MetricsCollector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ordersCreatedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_created_total",
				Help: "Total number of orders created",
			},
		),

		orderTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_status_transitions_total",
				Help: "Order status transitions by source and target status",
			},
			[]string{"from", "to"},
		),

		tasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "side_effect_tasks_total",
				Help: "Side-effect task executions by task name and outcome",
			},
			[]string{"task", "outcome"},
		),

		gatewayCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipping_gateway_call_duration_seconds",
				Help:    "Shipping gateway call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "status"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordOrderCreated 记录下单
func (m *MetricsCollector) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreatedTotal.Inc()
}

// RecordTransition 记录状态流转
func (m *MetricsCollector) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.orderTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTask 记录副作用任务结果 outcome: success|retry|dropped
func (m *MetricsCollector) RecordTask(task, outcome string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(task, outcome).Inc()
}

// RecordGatewayCall 记录物流接口耗时
func (m *MetricsCollector) RecordGatewayCall(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCallDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}
