package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Doczin0/todo-datacake-backend/internal/config"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"

	"gopkg.in/gomail.v2"
)

// Dialer 发送邮件的 SMTP 连接，*gomail.Dialer 实现了该接口。
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier 通过 SMTP 直接发送邮件。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	dialer Dialer
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
	}
}

// WithDialer 替换 SMTP 连接，测试中使用。
func (n *EmailNotifier) WithDialer(d Dialer) *EmailNotifier {
	n.dialer = d
	return n
}

// SendCode 发送验证码邮件。
func (n *EmailNotifier) SendCode(ctx context.Context, mail CodeMail) error {
	subject, body := Compose(mail)
	if err := n.Send(ctx, mail.To, subject, body); err != nil {
		return err
	}
	n.logger.Info("verification email sent",
		slog.String("to", mail.To),
		slog.String("purpose", string(mail.Purpose)))
	return nil
}

// Send 发送一封纯文本邮件，mailer worker 也直接使用它。
func (n *EmailNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.cfg.SMTPHost == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := n.cfg.FromEmail
	if from == "" {
		from = DefaultFrom
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		metrics.MailSentTotal.WithLabelValues("smtp", "error").Inc()
		return fmt.Errorf("send email: %w", err)
	}
	metrics.MailSentTotal.WithLabelValues("smtp", "ok").Inc()
	return nil
}
