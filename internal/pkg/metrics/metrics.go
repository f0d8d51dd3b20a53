package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal HTTP 请求计数（按方法、路由、状态码）。
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacake_http_requests_total",
		Help: "Total HTTP requests handled by the API.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration HTTP 请求耗时分布。
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datacake_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// VerificationCodesIssuedTotal 验证码签发次数（register / resend / reset）。
	VerificationCodesIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacake_verification_codes_issued_total",
		Help: "Verification codes issued, by purpose.",
	}, []string{"purpose"})

	// VerificationAttemptsTotal 验证码校验结果（ok / expired / mismatch / missing）。
	VerificationAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacake_verification_attempts_total",
		Help: "Verification code checks, by result.",
	}, []string{"result"})

	// MailSentTotal 邮件发送结果（按投递方式与状态）。
	MailSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacake_mail_sent_total",
		Help: "Mail deliveries, by delivery mode and status.",
	}, []string{"mode", "status"})

	// MailQueueDLQTotal 进入死信队列的邮件消息数。
	MailQueueDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datacake_mail_queue_dlq_total",
		Help: "Mail messages moved to the dead letter stream.",
	})

	// MailQueueAutoClaimTotal 通过 XAUTOCLAIM 接管的消息数。
	MailQueueAutoClaimTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datacake_mail_queue_autoclaim_total",
		Help: "Pending mail messages reclaimed from idle consumers.",
	})

	// MailDuplicateSkippedTotal 去重跳过的邮件数。
	MailDuplicateSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datacake_mail_duplicate_skipped_total",
		Help: "Mail messages skipped because they were already delivered.",
	})

	// MailWorkerPoolSize 邮件 worker 数。
	MailWorkerPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "datacake_mail_worker_pool_size",
		Help: "Configured mail worker pool size.",
	})

	// RateLimitWaitDuration 限流等待耗时。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datacake_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a mail rate limit token.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	// RateLimitTimeoutTotal 限流等待超时次数。
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datacake_ratelimit_timeout_total",
		Help: "Rate limit waits aborted by context.",
	})

	// RateLimitThrottledTotal 被限流的次数，bucket 为 global 或 domain。
	RateLimitThrottledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacake_ratelimit_throttled_total",
		Help: "Mail send attempts throttled, by the bucket that was empty.",
	}, []string{"bucket"})

	// TaskWritesTotal 任务写操作计数（create / update / delete / toggle）。
	TaskWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacake_task_writes_total",
		Help: "Task write operations, by operation.",
	}, []string{"op"})
)

// InitMetrics 设置启动时已知的指标值，可重复调用。
func InitMetrics(mailWorkers int) {
	MailWorkerPoolSize.Set(float64(mailWorkers))
}

var (
	// WorkerQueueDepth mailer 本地队列中等待的任务数。
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "datacake_worker_queue_depth",
		Help: "Jobs waiting in the mailer worker pool.",
	})

	// WorkerJobsTotal worker 执行结果（ok / error / panic）。
	WorkerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacake_worker_jobs_total",
		Help: "Jobs executed by the mailer worker pool, by result.",
	}, []string{"result"})
)
