// Package ledger 管理每个用户唯一的邮箱验证码槽位：签发、校验、重发与过期。
package ledger

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/notify"
)

const (
	// CodeTTL 验证码有效期，读取时按当前时间判断。
	CodeTTL = 2 * time.Minute
	// MaxResends 每个槽位最多重发次数。
	MaxResends = 2
)

var (
	ErrNoCode       = apperr.Business("no_code", "Código não encontrado ou expirado.")
	ErrExpiredCode  = apperr.Business("expired_code", "Código expirado.")
	ErrCodeMismatch = apperr.Business("code_mismatch", "Código ou token incorreto.")
	ErrResendLimit  = apperr.Business("resend_limit", "Limite de reenvios atingido.")
)

// Recipient 验证码的接收者。
type Recipient struct {
	UserID   uint
	Email    string
	Username string
}

// Ledger 验证码账本。
type Ledger struct {
	store    Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option Ledger 配置选项。
type Option func(*Ledger)

// WithClock 替换时钟，测试中用来模拟过期。
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New 创建 Ledger。
func New(store Store, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue 生成新验证码覆盖用户槽位（重发计数归零）并投递。
//
// 参数:
//
//	ctx: 上下文
//	r: 接收者
//	purpose: 用途（register / reset）
//
// 返回值:
//
//	string: 新验证码
//	error: 写入或投递失败
func (l *Ledger) Issue(ctx context.Context, r Recipient, purpose notify.Purpose) (string, error) {
	code, err := NewCode()
	if err != nil {
		return "", err
	}

	slot := &model.VerificationCode{
		UserID:      r.UserID,
		Code:        code,
		ResendCount: 0,
		CreatedAt:   l.now(),
	}
	if err := l.store.Upsert(ctx, slot); err != nil {
		return "", err
	}

	if err := l.deliver(ctx, r, code, purpose); err != nil {
		return "", err
	}
	return code, nil
}

// Latest 返回用户当前的槽位，没有时返回 nil。
func (l *Ledger) Latest(ctx context.Context, userID uint) (*model.VerificationCode, error) {
	return l.store.Get(ctx, userID)
}

// Check 校验验证码但不消费。过期的槽位会被删除，错误的验证码保留槽位。
func (l *Ledger) Check(ctx context.Context, userID uint, code string) error {
	slot, err := l.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if slot == nil {
		metrics.VerificationAttemptsTotal.WithLabelValues("missing").Inc()
		return ErrNoCode
	}
	if l.expired(slot) {
		metrics.VerificationAttemptsTotal.WithLabelValues("expired").Inc()
		if err := l.store.Delete(ctx, userID); err != nil {
			return err
		}
		return ErrExpiredCode
	}
	if subtle.ConstantTimeCompare([]byte(slot.Code), []byte(code)) != 1 {
		metrics.VerificationAttemptsTotal.WithLabelValues("mismatch").Inc()
		return ErrCodeMismatch
	}
	metrics.VerificationAttemptsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Consume 删除用户的槽位。
func (l *Ledger) Consume(ctx context.Context, userID uint) error {
	return l.store.Delete(ctx, userID)
}

// Verify 校验并在成功时消费验证码。
func (l *Ledger) Verify(ctx context.Context, userID uint, code string) error {
	if err := l.Check(ctx, userID, code); err != nil {
		return err
	}
	return l.Consume(ctx, userID)
}

// Resend 在原槽位上换一个新验证码并重新计时，重发次数加一。
//
// 不检查旧验证码是否过期；达到 MaxResends 后返回 ErrResendLimit。
func (l *Ledger) Resend(ctx context.Context, r Recipient) (string, error) {
	slot, err := l.store.Get(ctx, r.UserID)
	if err != nil {
		return "", err
	}
	if slot == nil {
		return "", ErrNoCode
	}
	if slot.ResendCount >= MaxResends {
		return "", ErrResendLimit
	}

	code, err := NewCode()
	if err != nil {
		return "", err
	}
	ok, err := l.store.Bump(ctx, r.UserID, code, l.now(), MaxResends)
	if err != nil {
		return "", err
	}
	if !ok {
		// 并发重发已用完次数，或槽位刚被消费
		return "", ErrResendLimit
	}

	if err := l.deliver(ctx, r, code, notify.PurposeResend); err != nil {
		return "", err
	}
	return code, nil
}

// PurgeExpired 清理已过期的槽位，只由管理命令调用。
func (l *Ledger) PurgeExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteIssuedBefore(ctx, l.now().Add(-CodeTTL))
}

func (l *Ledger) expired(slot *model.VerificationCode) bool {
	return !l.now().Before(slot.CreatedAt.Add(CodeTTL))
}

func (l *Ledger) deliver(ctx context.Context, r Recipient, code string, purpose notify.Purpose) error {
	metrics.VerificationCodesIssuedTotal.WithLabelValues(string(purpose)).Inc()

	err := l.notifier.SendCode(ctx, notify.CodeMail{
		To:       r.Email,
		Username: r.Username,
		Code:     code,
		Purpose:  purpose,
	})
	if err != nil {
		l.logger.Error("deliver verification code failed",
			slog.Uint64("user_id", uint64(r.UserID)),
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()))
		return fmt.Errorf("deliver code: %w", err)
	}

	l.logger.Info("verification code issued",
		slog.Uint64("user_id", uint64(r.UserID)),
		slog.String("purpose", string(purpose)))
	return nil
}
