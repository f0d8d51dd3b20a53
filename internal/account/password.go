package account

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicyMessage 重置密码时强度不足的统一提示。
const PasswordPolicyMessage = "A senha deve ter 8+ caracteres, com maiúscula, minúscula, número e símbolo."

// maxPasswordBytes bcrypt 的输入上限。
const maxPasswordBytes = 72

// HashPassword 使用 bcrypt 生成密码哈希。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword 比较明文与哈希。
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordProblems 按顺序返回密码不满足的每条规则。
//
// 规则：至少 8 个字符，包含大写、小写、数字与符号（非 ASCII 字母数字的字符）。
// bcrypt 只接受 72 字节以内的输入，超过的直接拒绝。
func PasswordProblems(password string) []string {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}

	var problems []string
	if len([]rune(password)) < 8 {
		problems = append(problems, "A senha deve ter pelo menos 8 caracteres.")
	}
	if len(password) > maxPasswordBytes {
		problems = append(problems, "A senha deve ter no máximo 72 bytes.")
	}
	if !upper {
		problems = append(problems, "A senha deve conter pelo menos uma letra maiúscula.")
	}
	if !lower {
		problems = append(problems, "A senha deve conter pelo menos uma letra minúscula.")
	}
	if !digit {
		problems = append(problems, "A senha deve conter pelo menos um número.")
	}
	if !symbol {
		problems = append(problems, "A senha deve conter pelo menos um símbolo.")
	}
	return problems
}

// StrongPassword 密码是否满足全部规则。
func StrongPassword(password string) bool {
	return len(PasswordProblems(password)) == 0
}
