package middleware

import (
	"net/http"
	"strings"

	"github.com/Doczin0/todo-datacake-backend/internal/api/respond"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey = "userID"

	msgNoCredentials = "As credenciais de autenticação não foram fornecidas."
	msgInvalidToken  = "Token inválido ou expirado."
)

// AccessParser 校验 access token，由 *auth.TokenIssuer 实现。
type AccessParser interface {
	ParseAccess(token string) (uint, error)
}

// AuthMiddleware 校验 Bearer access token 并将 userID 写入上下文。
func AuthMiddleware(parser AccessParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respond.Fail(c, http.StatusUnauthorized, msgNoCredentials)
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respond.Fail(c, http.StatusUnauthorized, msgInvalidToken)
			return
		}

		uid, err := parser.ParseAccess(strings.TrimSpace(parts[1]))
		if err != nil {
			respond.Fail(c, http.StatusUnauthorized, msgInvalidToken)
			return
		}

		c.Set(userIDKey, uid)
		c.Next()
	}
}

// UserID 返回 AuthMiddleware 写入的用户 ID，未认证时为 0。
func UserID(c *gin.Context) uint {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// SetUserID 直接写入用户 ID，测试中绕过 token 使用。
func SetUserID(c *gin.Context, id uint) {
	c.Set(userIDKey, id)
}
