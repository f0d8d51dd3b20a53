package notify

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"strings"
	"testing"

	"github.com/Doczin0/todo-datacake-backend/internal/config"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/logger"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/mailqueue"

	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

type fakePublisher struct {
	msgs []*mailqueue.MailMessage
	err  error
}

func (p *fakePublisher) Submit(_ context.Context, msg *mailqueue.MailMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestCompose(t *testing.T) {
	cases := []struct {
		purpose Purpose
		subject string
		body    string
	}{
		{PurposeRegister, "Código de verificação - DataCake", "Seu código é 123456 (expira em 2 minutos)."},
		{PurposeResend, "Novo código - DataCake", "Seu novo código é 123456 (expira em 2 minutos)."},
		{PurposeReset, "Redefinição de Senha - DataCake", "Seu código para redefinir senha é 123456 (expira em 2 minutos)."},
	}
	for _, tc := range cases {
		subject, body := Compose(CodeMail{To: "a@x.com", Code: "123456", Purpose: tc.purpose})
		if subject != tc.subject || body != tc.body {
			t.Fatalf("%s: got %q / %q", tc.purpose, subject, body)
		}
	}
}

func TestEmailNotifier_SendCode(t *testing.T) {
	cfg := &config.EmailConfig{SMTPHost: "smtp.test", SMTPPort: 587}
	dialer := &fakeDialer{}
	n := NewEmailNotifier(cfg, logger.Discard()).WithDialer(dialer)

	if err := n.SendCode(context.Background(), CodeMail{To: "ana@x.com", Code: "654321", Purpose: PurposeReset}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(dialer.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(dialer.sent))
	}
	msg := dialer.sent[0]
	if got := msg.GetHeader("From"); len(got) != 1 || got[0] != DefaultFrom {
		t.Fatalf("unexpected from %v", got)
	}
	// gomail 在 SetHeader 时已把非 ASCII 主题编码为 RFC 2047 encoded-word
	got := msg.GetHeader("Subject")
	if len(got) != 1 {
		t.Fatalf("unexpected subject %v", got)
	}
	subject, err := new(mime.WordDecoder).DecodeHeader(got[0])
	if err != nil || subject != "Redefinição de Senha - DataCake" {
		t.Fatalf("unexpected subject %q (raw %q): %v", subject, got[0], err)
	}

	var raw bytes.Buffer
	if _, err := msg.WriteTo(&raw); err != nil {
		t.Fatalf("write message: %v", err)
	}
	if !strings.Contains(raw.String(), "654321") {
		t.Fatalf("code missing from message body:\n%s", raw.String())
	}
}

func TestEmailNotifier_Errors(t *testing.T) {
	n := NewEmailNotifier(&config.EmailConfig{}, logger.Discard()).WithDialer(&fakeDialer{})
	if err := n.SendCode(context.Background(), CodeMail{To: "a@x.com"}); err == nil {
		t.Fatalf("expected error without smtp host")
	}

	n = NewEmailNotifier(&config.EmailConfig{SMTPHost: "smtp.test"}, logger.Discard()).
		WithDialer(&fakeDialer{err: errors.New("refused")})
	err := n.SendCode(context.Background(), CodeMail{To: "a@x.com", Code: "1"})
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("expected dial error, got %v", err)
	}
}

func TestQueueNotifier_SendCode(t *testing.T) {
	pub := &fakePublisher{}
	n := NewQueueNotifier(pub, logger.Discard())

	if err := n.SendCode(context.Background(), CodeMail{To: "ana@x.com", Code: "111222", Purpose: PurposeRegister}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.ID == "" || msg.To != "ana@x.com" || msg.Purpose != "register" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Body, "111222") {
		t.Fatalf("body should carry the code: %q", msg.Body)
	}
}

func TestNew(t *testing.T) {
	log := logger.Discard()

	n, err := New(&config.EmailConfig{Delivery: config.DeliveryConsole}, log, nil)
	if err != nil {
		t.Fatalf("console: %v", err)
	}
	if _, ok := n.(*ConsoleNotifier); !ok {
		t.Fatalf("expected console notifier, got %T", n)
	}

	n, err = New(&config.EmailConfig{Delivery: config.DeliverySMTP, SMTPHost: "h"}, log, nil)
	if err != nil {
		t.Fatalf("smtp: %v", err)
	}
	if _, ok := n.(*EmailNotifier); !ok {
		t.Fatalf("expected email notifier, got %T", n)
	}

	if _, err := New(&config.EmailConfig{Delivery: config.DeliveryQueue}, log, nil); err == nil {
		t.Fatalf("queue delivery without publisher should fail")
	}
	n, err = New(&config.EmailConfig{Delivery: config.DeliveryQueue}, log, &fakePublisher{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if _, ok := n.(*QueueNotifier); !ok {
		t.Fatalf("expected queue notifier, got %T", n)
	}

	if _, err := New(&config.EmailConfig{Delivery: "pigeon"}, log, nil); err == nil {
		t.Fatalf("unknown delivery should fail")
	}
}
