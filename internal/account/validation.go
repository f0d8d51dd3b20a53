package account

import (
	"context"
	"regexp"
	"strings"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"

	"github.com/go-playground/validator/v10"
)

const (
	msgRequired        = "Este campo é obrigatório."
	msgInvalidEmail    = "Insira um endereço de email válido."
	msgUsernameTaken   = "Esse usuário já existe, insira um usuário válido."
	msgUsernameInvalid = "Usuário inválido. Use 3-30 caracteres (letras, números, . _ -)."
	msgEmailTaken      = "Esse e-mail já existe, insira um e-mail válido."
	msgPasswordsDiffer = "As senhas não coincidem."
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)

// RegisterInput 注册请求。
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// normalize 去掉用户名与邮箱两端空白，密码保持原样。
func (in *RegisterInput) normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
}

// registerCheck 单个注册校验步骤，返回零或多条字段错误。
type registerCheck func(ctx context.Context, in *RegisterInput) (apperr.FieldErrors, error)

// registerChecks 按固定顺序执行；所有错误汇总后一次性返回。
func (s *Service) registerChecks() []registerCheck {
	return []registerCheck{
		s.checkUsername,
		s.checkEmail,
		checkPassword,
		checkConfirmation,
	}
}

func (s *Service) validateRegister(ctx context.Context, in *RegisterInput) error {
	all := apperr.FieldErrors{}
	for _, check := range s.registerChecks() {
		fe, err := check(ctx, in)
		if err != nil {
			return err
		}
		all.Merge(fe)
	}
	return all.Err()
}

func (s *Service) checkUsername(ctx context.Context, in *RegisterInput) (apperr.FieldErrors, error) {
	fe := apperr.FieldErrors{}
	if in.Username == "" {
		fe.Add("username", msgRequired)
		return fe, nil
	}
	taken, err := s.users.UsernameTaken(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		fe.Add("username", msgUsernameTaken)
		return fe, nil
	}
	if !usernamePattern.MatchString(in.Username) {
		fe.Add("username", msgUsernameInvalid)
	}
	return fe, nil
}

func (s *Service) checkEmail(ctx context.Context, in *RegisterInput) (apperr.FieldErrors, error) {
	fe := apperr.FieldErrors{}
	if in.Email == "" {
		fe.Add("email", msgRequired)
		return fe, nil
	}
	if err := s.validate.Var(in.Email, "email"); err != nil {
		fe.Add("email", msgInvalidEmail)
		return fe, nil
	}
	taken, err := s.users.EmailTaken(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		fe.Add("email", msgEmailTaken)
	}
	return fe, nil
}

func checkPassword(_ context.Context, in *RegisterInput) (apperr.FieldErrors, error) {
	fe := apperr.FieldErrors{}
	if in.Password == "" {
		fe.Add("password", msgRequired)
		return fe, nil
	}
	for _, problem := range PasswordProblems(in.Password) {
		fe.Add("password", problem)
	}
	return fe, nil
}

func checkConfirmation(_ context.Context, in *RegisterInput) (apperr.FieldErrors, error) {
	fe := apperr.FieldErrors{}
	if in.ConfirmPassword == "" {
		fe.Add("confirm_password", msgRequired)
		return fe, nil
	}
	if in.Password != in.ConfirmPassword {
		fe.Add("confirm_password", msgPasswordsDiffer)
	}
	return fe, nil
}

// newValidator 注册流程只用到 validator 的单值校验。
func newValidator() *validator.Validate {
	return validator.New()
}
