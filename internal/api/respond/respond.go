// Package respond 把业务错误映射成统一的 JSON 响应。
package respond

import (
	"log/slog"
	"net/http"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

const (
	// MsgInternal 未预期错误的统一提示。
	MsgInternal = "Erro interno inesperado. Tente novamente mais tarde."
	// MsgFieldProblem 字段校验失败时附带的 detail。
	MsgFieldProblem = "Houve um problema com sua requisição."
	// MsgBadJSON 请求体无法解析。
	MsgBadJSON = "Corpo da requisição inválido."
	// MsgNotFound 对象不存在。
	MsgNotFound = "Não encontrado."
)

// Detail 返回 {"detail": msg}。
func Detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

// Fail 返回错误信息，同时写 detail 与 error 两个键。
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg, "error": msg})
}

// Error 按错误类型输出响应。
//
// apperr.FieldErrors -> 400 字段错误；*apperr.Error -> 对应状态码；
// 其他错误记录日志后返回 500，不向客户端暴露细节。
func Error(c *gin.Context, logger *slog.Logger, err error) {
	if fe, ok := apperr.AsFieldErrors(err); ok {
		body := gin.H{"detail": MsgFieldProblem}
		for field, msgs := range fe {
			body[field] = msgs
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
		return
	}

	if e, ok := apperr.As(err); ok {
		Fail(c, e.Status(), e.Message)
		return
	}

	if logger != nil {
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		}
		if uid, ok := c.Get("userID"); ok {
			attrs = append(attrs, slog.Any("user_id", uid))
		}
		logger.Error("request failed", attrs...)
	}
	Fail(c, http.StatusInternalServerError, MsgInternal)
}

// BadJSON 请求体解析失败。
func BadJSON(c *gin.Context) {
	Fail(c, http.StatusBadRequest, MsgBadJSON)
}
