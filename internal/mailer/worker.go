// Package mailer 消费邮件 Stream，经过去重与限流后通过 SMTP 投递。
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/mailqueue"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/queue"
)

// Source 邮件消息来源，由 *mailqueue.Consumer 实现。
type Source interface {
	Read(ctx context.Context) ([]*mailqueue.Delivery, error)
	Ack(ctx context.Context, msgID string) error
	HandleFailure(ctx context.Context, d *mailqueue.Delivery, cause error) (mailqueue.FailureAction, error)
}

// Sender 实际发送邮件，由 *notify.EmailNotifier 实现。
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Limiter 投递限流，按收件人所在域分桶，由 *ratelimit.MailLimiter 实现。
type Limiter interface {
	Acquire(ctx context.Context, to string) error
}

// Deduper 按消息 ID 去重，由 *dedup.Deduplicator 实现。
type Deduper interface {
	IsDuplicate(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Worker 从 Source 读取消息并交给本地 worker 池处理。
//
// 本地池满时 Run 阻塞在入队上，不再读取新消息。
type Worker struct {
	source  Source
	sender  Sender
	limiter Limiter
	deduper Deduper
	pool    *queue.Queue
	logger  *slog.Logger

	shutdownTimeout time.Duration
	idleBackoff     time.Duration
}

// NewWorker 创建邮件 worker。
//
// 参数:
//
//	source: 消息来源
//	sender: SMTP 发送器
//	limiter: 限流器（可为 nil）
//	deduper: 去重器（可为 nil）
//	logger: 日志记录器
//	workers: 并发发送数
//	capacity: 本地队列容量
func NewWorker(source Source, sender Sender, limiter Limiter, deduper Deduper, logger *slog.Logger, workers, capacity int) *Worker {
	pool := queue.NewQueue(logger, workers, capacity)
	pool.SetErrorHandler(func(err error, _ queue.Job) {
		logger.Error("mail job failed", slog.String("error", err.Error()))
	})
	metrics.InitMetrics(workers)

	return &Worker{
		source:          source,
		sender:          sender,
		limiter:         limiter,
		deduper:         deduper,
		pool:            pool,
		logger:          logger,
		shutdownTimeout: 30 * time.Second,
		idleBackoff:     200 * time.Millisecond,
	}
}

// Run 持续读取并分发消息，直到 ctx 被取消。
//
// 退出前等待已入队的消息处理完；未确认的消息留在 Pending 中，由其他消费者接管。
func (w *Worker) Run(ctx context.Context) error {
	w.pool.Start(ctx)
	w.logger.Info("mail worker started", slog.Int("queue_capacity", w.pool.Cap()))

	defer func() {
		if err := w.pool.ShutdownWithTimeout(w.shutdownTimeout); err != nil {
			w.logger.Error("mail pool shutdown failed", slog.String("error", err.Error()))
		}
		stats := w.pool.Stats()
		w.logger.Info("mail worker stopped",
			slog.Int64("processed", stats.Processed),
			slog.Int64("failed", stats.Failed))
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		deliveries, err := w.source.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.logger.Error("read mail stream failed", slog.String("error", err.Error()))
			if !sleep(ctx, w.idleBackoff) {
				return nil
			}
			continue
		}

		for _, d := range deliveries {
			d := d
			if err := w.pool.EnqueueBlocking(ctx, func(jobCtx context.Context) error {
				return w.Handle(jobCtx, d)
			}); err != nil {
				return nil
			}
		}
	}
}

// Handle 处理单条消息：去重、限流、发送、确认。发送失败时交给 Source 重试或进入死信。
func (w *Worker) Handle(ctx context.Context, d *mailqueue.Delivery) error {
	msg := d.Message
	log := w.logger.With(slog.String("msg_id", d.ID), slog.String("mail_id", msg.ID))

	if w.deduper != nil {
		dup, err := w.deduper.IsDuplicate(ctx, msg.ID)
		if err != nil {
			log.Warn("dedup check failed", slog.String("error", err.Error()))
		} else if dup {
			metrics.MailDuplicateSkippedTotal.Inc()
			log.Info("duplicate mail skipped")
			return w.source.Ack(ctx, d.ID)
		}
	}

	if err := w.deliver(ctx, msg); err != nil {
		if w.deduper != nil {
			if derr := w.deduper.Delete(ctx, msg.ID); derr != nil {
				log.Warn("dedup release failed", slog.String("error", derr.Error()))
			}
		}
		action, ferr := w.source.HandleFailure(ctx, d, err)
		log.Warn("mail delivery failed",
			slog.String("action", string(action)),
			slog.Int("retry", msg.Retry),
			slog.String("error", err.Error()))
		if ferr != nil {
			return fmt.Errorf("handle failure: %w", ferr)
		}
		return nil
	}

	if err := w.source.Ack(ctx, d.ID); err != nil {
		return err
	}
	log.Info("mail delivered", slog.String("purpose", msg.Purpose))
	return nil
}

func (w *Worker) deliver(ctx context.Context, msg *mailqueue.MailMessage) error {
	if w.limiter != nil {
		if err := w.limiter.Acquire(ctx, msg.To); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return w.sender.Send(ctx, msg.To, msg.Subject, msg.Body)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
