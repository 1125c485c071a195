package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)

	// 外部协作方调用延迟（毫秒）: llm / gmail / twilio
	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "External provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		},
		[]string{"provider", "operation", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// 轮询到的邮件
	EmailsPolled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_polled_total",
			Help: "Inbox items seen by the poller",
		},
		[]string{"result"}, // result: stored, duplicate, failed
	)

	// 已发送通知
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Chat notifications delivered",
		},
		[]string{"kind", "status"}, // kind: single, digest
	)

	CategorizedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_categorized_total",
			Help: "Categorization outcomes by source",
		},
		[]string{"source", "category"}, // source: rule, model, fallback
	)

	ConversationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_transitions_total",
			Help: "Conversation phase transitions",
		},
		[]string{"from", "to"},
	)

	// 每分钟一次的摘要批处理耗时
	DigestCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digest_cycle_duration_seconds",
			Help:    "Digest batch cycle duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "0 closed, 1 open, 2 half-open",
		},
		[]string{"name"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordProviderCall 记录外部调用延迟
func RecordProviderCall(provider, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderCallLatency.WithLabelValues(provider, operation, status).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementEmailsPolled(result string) {
	EmailsPolled.WithLabelValues(result).Inc()
}

func IncrementNotificationSent(kind, status string) {
	NotificationsSent.WithLabelValues(kind, status).Inc()
}

func IncrementCategorized(source, category string) {
	CategorizedCount.WithLabelValues(source, category).Inc()
}

func IncrementConversationTransition(from, to string) {
	ConversationTransitions.WithLabelValues(from, to).Inc()
}

// RecordDigestCycle 记录一次摘要批处理，err 非空时 result 为 error
func RecordDigestCycle(err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DigestCycleDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
