package notify

import (
	"context"
	"fmt"
)

// Purpose 验证码用途，决定邮件标题与正文。
type Purpose string

const (
	PurposeRegister Purpose = "register" // 注册后首次签发
	PurposeResend   Purpose = "resend"   // 重新发送
	PurposeReset    Purpose = "reset"    // 重置密码
)

// DefaultFrom 未配置发件人时使用的地址。
const DefaultFrom = "no-reply@datacake.local"

// CodeMail 一封验证码邮件。
type CodeMail struct {
	To       string
	Username string
	Code     string
	Purpose  Purpose
}

// Notifier 定义验证码投递接口。
type Notifier interface {
	// SendCode 投递验证码。
	//
	// 参数:
	//   ctx: 上下文
	//   mail: 收件人、验证码与用途
	SendCode(ctx context.Context, mail CodeMail) error
}

// Compose 按用途生成邮件标题与正文。
func Compose(mail CodeMail) (subject string, body string) {
	switch mail.Purpose {
	case PurposeResend:
		return "Novo código - DataCake",
			fmt.Sprintf("Seu novo código é %s (expira em 2 minutos).", mail.Code)
	case PurposeReset:
		return "Redefinição de Senha - DataCake",
			fmt.Sprintf("Seu código para redefinir senha é %s (expira em 2 minutos).", mail.Code)
	default:
		return "Código de verificação - DataCake",
			fmt.Sprintf("Seu código é %s (expira em 2 minutos).", mail.Code)
	}
}
