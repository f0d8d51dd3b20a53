// Package auth 提供注册、激活、登录、token 刷新与密码重置接口。
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Doczin0/todo-datacake-backend/internal/account"
	"github.com/Doczin0/todo-datacake-backend/internal/api/middleware"
	"github.com/Doczin0/todo-datacake-backend/internal/api/respond"
	"github.com/Doczin0/todo-datacake-backend/internal/model"

	"github.com/gin-gonic/gin"
)

// Accounts 账户流程，由 *account.Service 实现。
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) (*model.User, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ResendCode(ctx context.Context, email string) error
	ResolveUsername(ctx context.Context, identifier string) (string, error)
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, email, code, password string) error
	Authenticate(ctx context.Context, identifier, password string) (*model.User, error)
	Profile(ctx context.Context, userID uint) (*model.User, error)
}

// Handler 认证相关接口。
type Handler struct {
	accounts Accounts
	tokens   *TokenIssuer
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(accounts Accounts, tokens *TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
	}
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Token string `json:"token"`
}

// code 兼容旧客户端用 token 字段提交验证码。
func (r codeRequest) code() string {
	if strings.TrimSpace(r.Code) != "" {
		return r.Code
	}
	return r.Token
}

type emailRequest struct {
	Email string `json:"email"`
}

type resolveRequest struct {
	Identifier string `json:"identifier"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type confirmRequest struct {
	codeRequest
	Password string `json:"password"`
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type loginResponse struct {
	Detail  string       `json:"detail"`
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    userResponse `json:"user"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Register 创建未激活用户并签发验证码。
//
// POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req account.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	if _, err := h.accounts.Register(c.Request.Context(), req); err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	respond.Detail(c, http.StatusCreated, "Usuário criado. Código exibido no console.")
}

// Verify 激活账户。
//
// POST /api/auth/verify
func (h *Handler) Verify(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	if err := h.accounts.VerifyEmail(c.Request.Context(), req.Email, req.code()); err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"detail":   "Conta verificada! Faça login para continuar.",
		"redirect": "login",
	})
}

// Resend 重新发送注册验证码。
//
// POST /api/auth/resend
func (h *Handler) Resend(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	if err := h.accounts.ResendCode(c.Request.Context(), req.Email); err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	respond.Detail(c, http.StatusOK, "Novo código exibido no console.")
}

// ResolveUsername 用邮箱查询登录用户名。
//
// POST /api/auth/resolve-username
func (h *Handler) ResolveUsername(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	username, err := h.accounts.ResolveUsername(c.Request.Context(), req.Identifier)
	if err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// Login 校验凭证并返回 token 对。
//
// POST /api/auth/token
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	identifier := req.Identifier
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Username
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), identifier, req.Password)
	if err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	access, refresh, err := h.tokens.Pair(user.ID)
	if err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Detail:  "Autenticado com sucesso.",
		Access:  access,
		Refresh: refresh,
		User:    toUserResponse(user),
	})
}

// Refresh 用 refresh token 换取新的 access token。
//
// POST /api/auth/token/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		respond.Fail(c, http.StatusBadRequest, "Refresh token ausente.")
		return
	}
	access, err := h.tokens.Refresh(strings.TrimSpace(req.Refresh))
	if err != nil {
		respond.Fail(c, http.StatusUnauthorized, "Refresh token invalido ou expirado.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Token atualizado.", "access": access})
}

// Logout 无状态登出，token 由客户端丢弃。
//
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	h.logger.Info("logout", slog.Uint64("user_id", uint64(middleware.UserID(c))))
	respond.Detail(c, http.StatusOK, "Logout efetuado. Tokens revogados apenas no cliente.")
}

// Me 当前用户资料。
//
// GET /api/auth/me
func (h *Handler) Me(c *gin.Context) {
	user, err := h.accounts.Profile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// PasswordReset 发送密码重置验证码。
//
// POST /api/auth/password/reset
func (h *Handler) PasswordReset(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	if err := h.accounts.RequestReset(c.Request.Context(), req.Email); err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	respond.Detail(c, http.StatusOK, "Código de redefinição exibido no console.")
}

// PasswordConfirm 校验验证码并设置新密码。
//
// POST /api/auth/password/confirm
func (h *Handler) PasswordConfirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadJSON(c)
		return
	}
	if err := h.accounts.ConfirmReset(c.Request.Context(), req.Email, req.code(), req.Password); err != nil {
		respond.Error(c, h.logger, err)
		return
	}
	respond.Detail(c, http.StatusOK, "Senha redefinida com sucesso!")
}
