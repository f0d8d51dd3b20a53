package mailqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Producer 邮件生产者，API 进程用它把验证码邮件写入队列。
type Producer struct {
	queue  *MailQueue
	logger *slog.Logger
}

// NewProducer 创建一个新的邮件生产者。
//
// 参数:
//   - rdb: Redis 客户端
//   - logger: 日志记录器
//   - streamName: Stream 名称（可选，默认为 DefaultStream）
func NewProducer(rdb *redis.Client, logger *slog.Logger, streamName ...string) *Producer {
	stream := DefaultStream
	if len(streamName) > 0 && streamName[0] != "" {
		stream = streamName[0]
	}

	return &Producer{
		queue:  NewMailQueue(rdb, logger, stream),
		logger: logger,
	}
}

// Submit 提交一封邮件等待投递。
func (p *Producer) Submit(ctx context.Context, msg *MailMessage) error {
	if msg == nil || msg.To == "" {
		return fmt.Errorf("invalid mail message")
	}

	if err := p.queue.Publish(ctx, msg); err != nil {
		p.logger.Error("submit mail failed",
			slog.String("msg_id", msg.ID),
			slog.String("purpose", msg.Purpose),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Info("mail submitted",
		slog.String("msg_id", msg.ID),
		slog.String("purpose", msg.Purpose))

	return nil
}

// QueueLength 获取当前队列长度。
func (p *Producer) QueueLength(ctx context.Context) (int64, error) {
	return p.queue.Length(ctx)
}
