// Package account 实现用户注册、邮箱激活、密码重置与登录认证。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Doczin0/todo-datacake-backend/internal/ledger"
	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/notify"

	"github.com/go-playground/validator/v10"
)

// 各流程返回给客户端的错误。
var (
	ErrVerifyMissingFields = apperr.Business("missing_fields", "E-mail e código são obrigatórios.")
	ErrVerifyUnknownEmail  = apperr.Business("invalid_email_or_code", "E-mail ou código inválido.")

	ErrResendMissingEmail = apperr.Business("missing_email", "E-mail é obrigatório.")
	ErrResendNoCode       = apperr.Business("no_code", "Código não encontrado. Solicite um novo cadastro.")

	ErrEmailNotFound    = apperr.Lookup("email_not_found", "E-mail não encontrado.")
	ErrUsernameNotFound = apperr.Lookup("username_not_found", "Usuário não encontrado.")
	ErrMissingIdentity  = apperr.Business("missing_identifier", "Informe usuário ou e-mail.")

	ErrResetMissingEmail = apperr.Business("missing_email", "E-mail obrigatório.")
	ErrResetUnknownEmail = apperr.Lookup("email_not_registered", "E-mail não cadastrado.")
	ErrResetMissing      = apperr.Business("missing_fields", "Todos os campos são obrigatórios.")
	ErrResetInvalid      = apperr.Business("invalid_email_or_code", "Código ou e-mail inválido.")
	ErrResetNoCode       = apperr.Business("no_code", "Código expirado ou inexistente.")
	ErrWeakPassword      = apperr.Business("weak_password", PasswordPolicyMessage)
	ErrSamePassword      = apperr.Business("same_password", "A nova senha não pode ser igual à anterior.")

	ErrLoginMissing      = apperr.Credentials("missing_credentials", "Informe usuario/email e senha.")
	ErrLoginUnknown      = apperr.Lookup("identifier_not_found", "Usuario ou email nao encontrado.")
	ErrInvalidCredential = apperr.Credentials("invalid_credentials", "Credenciais invalidas.")
	ErrNotVerified       = apperr.Credentials("not_verified", "Conta ainda nao verificada.")

	ErrProfileGone = apperr.Unauthorized("user_not_found", "Usuário não encontrado.")
)

// CodeLedger 账户流程依赖的验证码操作，由 *ledger.Ledger 实现。
type CodeLedger interface {
	Issue(ctx context.Context, r ledger.Recipient, purpose notify.Purpose) (string, error)
	Check(ctx context.Context, userID uint, code string) error
	Consume(ctx context.Context, userID uint) error
	Resend(ctx context.Context, r ledger.Recipient) (string, error)
}

// Service 账户服务。
type Service struct {
	users    UserStore
	codes    CodeLedger
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService 创建账户服务。
func NewService(users UserStore, codes CodeLedger, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		codes:    codes,
		logger:   logger,
		validate: newValidator(),
	}
}

// Register 校验注册信息，创建未激活用户并签发注册验证码。
//
// 参数:
//
//	ctx: 上下文
//	in: 注册请求
//
// 返回值:
//
//	*model.User: 新用户
//	error: apperr.FieldErrors（校验失败）或内部错误
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.normalize()
	if err := s.validateRegister(ctx, &in); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username: in.Username,
		Email:    in.Email,
		Password: hash,
		IsActive: false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			// 并发注册抢占了唯一索引，重新跑一遍校验给出字段错误
			if verr := s.validateRegister(ctx, &in); verr != nil {
				return nil, verr
			}
		}
		return nil, err
	}

	if _, err := s.codes.Issue(ctx, recipient(user), notify.PurposeRegister); err != nil {
		if derr := s.users.Delete(ctx, user.ID); derr != nil {
			s.logger.Error("rollback registration failed",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.String("error", derr.Error()))
		}
		return nil, fmt.Errorf("issue registration code: %w", err)
	}

	s.logger.Info("user registered",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("username", user.Username))
	return user, nil
}

// VerifyEmail 用注册验证码激活账户。
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	email = Key(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrVerifyMissingFields
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrVerifyUnknownEmail
		}
		return err
	}

	if err := s.codes.Check(ctx, user.ID, code); err != nil {
		return err
	}
	if err := s.users.Activate(ctx, user.ID); err != nil {
		return err
	}
	if err := s.codes.Consume(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("email verified", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

// ResendCode 重新发送当前槽位的验证码，不检查旧验证码是否过期。
func (s *Service) ResendCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrResendMissingEmail
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	if _, err := s.codes.Resend(ctx, recipient(user)); err != nil {
		if errors.Is(err, ledger.ErrNoCode) {
			return ErrResendNoCode
		}
		return err
	}
	return nil
}

// ResolveUsername 根据用户名或邮箱返回登录用的用户名。
func (s *Service) ResolveUsername(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", ErrMissingIdentity
	}

	if strings.Contains(identifier, "@") {
		user, err := s.users.FindByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return "", ErrEmailNotFound
			}
			return "", err
		}
		return user.Username, nil
	}

	user, err := s.users.FindByUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUsernameNotFound
		}
		return "", err
	}
	return user.Username, nil
}

// RequestReset 为已注册邮箱签发密码重置验证码，覆盖槽位中原有的验证码。
func (s *Service) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrResetMissingEmail
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetUnknownEmail
		}
		return err
	}

	if _, err := s.codes.Issue(ctx, recipient(user), notify.PurposeReset); err != nil {
		return err
	}
	return nil
}

// ConfirmReset 校验重置验证码并设置新密码。
//
// 检查顺序：必填字段、用户、验证码、密码强度、与旧密码不同。
// 只有新密码被接受后才消费验证码。
func (s *Service) ConfirmReset(ctx context.Context, email, code, password string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	password = strings.TrimSpace(password)
	if email == "" || code == "" || password == "" {
		return ErrResetMissing
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetInvalid
		}
		return err
	}

	if err := s.codes.Check(ctx, user.ID, code); err != nil {
		if errors.Is(err, ledger.ErrNoCode) || errors.Is(err, ledger.ErrExpiredCode) {
			return ErrResetNoCode
		}
		return err
	}

	if !StrongPassword(password) {
		return ErrWeakPassword
	}
	if CheckPassword(user.Password, password) {
		return ErrSamePassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := s.codes.Consume(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("password reset", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

// Authenticate 校验登录凭证。标识中含 @ 按邮箱查找，否则按用户名，均不区分大小写。
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	password = strings.TrimSpace(password)
	if identifier == "" || password == "" {
		return nil, ErrLoginMissing
	}

	var (
		user *model.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.FindByEmail(ctx, identifier)
	} else {
		user, err = s.users.FindByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrLoginUnknown
		}
		return nil, err
	}

	if !CheckPassword(user.Password, password) {
		return nil, ErrInvalidCredential
	}
	if !user.IsActive {
		return nil, ErrNotVerified
	}

	s.logger.Info("login ok", slog.Uint64("user_id", uint64(user.ID)))
	return user, nil
}

// Profile 返回当前用户资料。
func (s *Service) Profile(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrProfileGone
		}
		return nil, err
	}
	return user, nil
}

func recipient(user *model.User) ledger.Recipient {
	return ledger.Recipient{UserID: user.ID, Email: user.Email, Username: user.Username}
}
