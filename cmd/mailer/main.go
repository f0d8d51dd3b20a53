package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/config"
	"github.com/Doczin0/todo-datacake-backend/internal/mailer"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/dedup"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/logger"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/mailqueue"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/notify"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/ratelimit"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是邮件投递服务的入口函数。
//
// 它负责：
// 1. 加载配置并连接 Redis
// 2. 创建 Stream 消费者、SMTP 发送器、限流器与去重器
// 3. 启动 worker 与 Metrics 服务
// 4. 收到信号后优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewForEnv(cfg.App.Env, cfg.App.LogLevel)
	if !cfg.RedisEnabled() {
		appLogger.Error("mailer requires redis, set REDIS_ADDR")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Error("redis ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	consumer, err := mailqueue.NewConsumer(rdb, appLogger, cfg.App.MailStream, cfg.App.MailGroup, "")
	if err != nil {
		appLogger.Error("init consumer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	maxThroughput := cfg.App.MailRateLimit * 30
	if cfg.App.MailRateLimit > 0 && float64(cfg.App.MailWorkers) > maxThroughput {
		appLogger.Warn("mail workers significantly exceed smtp rate limit capacity",
			slog.Int("mail_workers", cfg.App.MailWorkers),
			slog.Float64("mail_rate_limit", cfg.App.MailRateLimit))
	}

	worker := mailer.NewWorker(
		consumer,
		notify.NewEmailNotifier(&cfg.Email, appLogger),
		ratelimit.NewMailLimiter(rdb, appLogger, "", ratelimit.Limits{
			Rate:        cfg.App.MailRateLimit,
			Burst:       cfg.App.MailRateBurst,
			DomainRate:  cfg.App.MailDomainRate,
			DomainBurst: cfg.App.MailDomainBurst,
		}),
		dedup.NewDeduplicator(rdb, time.Duration(cfg.App.MailDedupWindow)*time.Second, ""),
		appLogger,
		cfg.App.MailWorkers,
		cfg.App.MailQueueCapacity,
	)

	metricsServer := &http.Server{
		Addr:              cfg.App.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("mailer metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			// worker 循环 panic 后直接退出进程，交给编排系统重启
			if r := recover(); r != nil {
				appLogger.Error("PANIC in mail worker loop", slog.Any("panic", r))
				os.Exit(1)
			}
		}()
		if err := worker.Run(ctx); err != nil {
			appLogger.Error("mail worker stopped", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down mailer...")
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}
	appLogger.Info("mailer stopped gracefully")
}
