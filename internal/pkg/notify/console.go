package notify

import (
	"context"
	"log/slog"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"
)

// ConsoleNotifier 只把邮件写进日志，本地开发使用。
type ConsoleNotifier struct {
	logger *slog.Logger
}

// NewConsoleNotifier 创建控制台通知器。
func NewConsoleNotifier(logger *slog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger}
}

// SendCode 将验证码输出到日志。
func (n *ConsoleNotifier) SendCode(_ context.Context, mail CodeMail) error {
	subject, body := Compose(mail)
	n.logger.Info("verification code (console delivery)",
		slog.String("to", mail.To),
		slog.String("purpose", string(mail.Purpose)),
		slog.String("subject", subject),
		slog.String("body", body))
	metrics.MailSentTotal.WithLabelValues("console", "ok").Inc()
	return nil
}
