package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Doczin0/todo-datacake-backend/internal/config"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/mailqueue"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"
)

// Publisher 把邮件消息写入队列，*mailqueue.Producer 实现了该接口。
type Publisher interface {
	Submit(ctx context.Context, msg *mailqueue.MailMessage) error
}

// QueueNotifier 将验证码邮件交给 Redis Stream，由 cmd/mailer 异步投递。
type QueueNotifier struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewQueueNotifier 创建队列通知器。
func NewQueueNotifier(publisher Publisher, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{publisher: publisher, logger: logger}
}

// SendCode 生成邮件并入队。
func (n *QueueNotifier) SendCode(ctx context.Context, mail CodeMail) error {
	subject, body := Compose(mail)
	msg := mailqueue.NewMailMessage(mail.To, subject, body, string(mail.Purpose))
	if err := n.publisher.Submit(ctx, msg); err != nil {
		metrics.MailSentTotal.WithLabelValues("queue", "error").Inc()
		return fmt.Errorf("enqueue mail: %w", err)
	}
	metrics.MailSentTotal.WithLabelValues("queue", "queued").Inc()
	n.logger.Debug("verification email queued",
		slog.String("to", mail.To),
		slog.String("msg_id", msg.ID))
	return nil
}

// New 按配置的投递方式创建通知器。
//
// queue 模式下 publisher 不能为 nil。
func New(cfg *config.EmailConfig, logger *slog.Logger, publisher Publisher) (Notifier, error) {
	switch cfg.Delivery {
	case "", config.DeliveryConsole:
		return NewConsoleNotifier(logger), nil
	case config.DeliverySMTP:
		return NewEmailNotifier(cfg, logger), nil
	case config.DeliveryQueue:
		if publisher == nil {
			return nil, fmt.Errorf("mail delivery %q requires redis", cfg.Delivery)
		}
		return NewQueueNotifier(publisher, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail delivery %q", cfg.Delivery)
	}
}
