package mailqueue

import (
	"time"

	"github.com/google/uuid"
)

// MailMessage 表示邮件队列中的一封待发送邮件。
//
// ID 在入队时生成，重试重新发布时保持不变，mailer 以它做投递去重。
type MailMessage struct {
	ID        string    `json:"id"`        // 消息 ID（uuid）
	To        string    `json:"to"`        // 收件人
	Subject   string    `json:"subject"`   // 标题
	Body      string    `json:"body"`      // 纯文本正文
	Purpose   string    `json:"purpose"`   // register / resend / reset / test
	Timestamp time.Time `json:"timestamp"` // 消息创建时间
	Retry     int       `json:"retry"`     // 重试次数
}

// NewMailMessage 创建一条新的邮件消息。
func NewMailMessage(to, subject, body, purpose string) *MailMessage {
	return &MailMessage{
		ID:        uuid.NewString(),
		To:        to,
		Subject:   subject,
		Body:      body,
		Purpose:   purpose,
		Timestamp: time.Now().UTC(),
	}
}
