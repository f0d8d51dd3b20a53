package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// token 类型，写在 claims 的 token_type 中。
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ErrInvalidToken token 无法解析、签名错误、过期或类型不符。
var ErrInvalidToken = errors.New("invalid token")

type customClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

// TokenIssuer 签发与校验 HS256 JWT。
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer 创建 TokenIssuer。
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Pair 签发一对 access / refresh token。
func (t *TokenIssuer) Pair(userID uint) (access string, refresh string, err error) {
	if access, err = t.sign(userID, TokenAccess, t.accessTTL); err != nil {
		return "", "", err
	}
	if refresh, err = t.sign(userID, TokenRefresh, t.refreshTTL); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Refresh 用 refresh token 换一个新的 access token。
func (t *TokenIssuer) Refresh(refresh string) (string, error) {
	userID, err := t.parse(refresh, TokenRefresh)
	if err != nil {
		return "", err
	}
	return t.sign(userID, TokenAccess, t.accessTTL)
}

// ParseAccess 校验 access token 并返回用户 ID。
func (t *TokenIssuer) ParseAccess(token string) (uint, error) {
	return t.parse(token, TokenAccess)
}

func (t *TokenIssuer) sign(userID uint, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenType: typ,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (t *TokenIssuer) parse(raw, typ string) (uint, error) {
	claims := &customClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid || claims.TokenType != typ {
		return 0, ErrInvalidToken
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return 0, ErrInvalidToken
	}
	return uint(uid), nil
}
