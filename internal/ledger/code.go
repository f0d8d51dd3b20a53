package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var codeSpan = big.NewInt(900000)

// NewCode 生成 100000-999999 之间均匀分布的 6 位验证码。
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
