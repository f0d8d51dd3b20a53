// Package api 组装 HTTP 路由与依赖。
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/account"
	"github.com/Doczin0/todo-datacake-backend/internal/api/auth"
	"github.com/Doczin0/todo-datacake-backend/internal/api/middleware"
	"github.com/Doczin0/todo-datacake-backend/internal/config"
	"github.com/Doczin0/todo-datacake-backend/internal/ledger"
	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/database"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/mailqueue"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/notify"
	"github.com/Doczin0/todo-datacake-backend/internal/todo"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	rdb      *redis.Client
	router   *gin.Engine
	accounts *account.Service
	auth     *auth.Handler
	tokens   *auth.TokenIssuer
	tasks    TaskStore
}

// TaskStore 任务存储，由 *todo.Store 实现。
type TaskStore interface {
	Create(ctx context.Context, ownerID uint, ch *todo.Changes) (*model.Task, error)
	Get(ctx context.Context, ownerID, id uint) (*model.Task, error)
	List(ctx context.Context, ownerID uint, f todo.Filter) ([]model.Task, error)
	Update(ctx context.Context, ownerID, id uint, ch *todo.Changes) (*model.Task, error)
	Delete(ctx context.Context, ownerID, id uint) error
	Toggle(ctx context.Context, ownerID, id uint) (*model.Task, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 连接 Redis（配置了地址时）
// 3. 按投递方式创建验证码通知器
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}

	// 未配置 Redis 时保持 nil 接口，queue 模式会在 notify.New 中报错
	var publisher notify.Publisher
	if rdb != nil {
		publisher = mailqueue.NewProducer(rdb, logger, cfg.App.MailStream)
	}
	notifier, err := notify.New(&cfg.Email, logger, publisher)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	return NewServerWithDeps(cfg, logger, db, rdb, notifier), nil
}

// NewServerWithDeps 用已建立的连接组装服务器，测试中注入 SQLite 与自定义通知器。
func NewServerWithDeps(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client, notifier notify.Notifier) *Server {
	codes := ledger.New(ledger.NewGormStore(db), notifier, logger)
	accounts := account.NewService(account.NewGormUserStore(db), codes, logger)
	tokens := auth.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.AccessTokenTTL, cfg.Security.RefreshTokenTTL)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", slog.Any("panic", recovered), slog.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Erro interno inesperado. Tente novamente mais tarde."})
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		rdb:      rdb,
		router:   r,
		accounts: accounts,
		auth:     auth.NewHandler(accounts, tokens, logger),
		tokens:   tokens,
		tasks:    todo.NewStore(db, logger),
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	errs = append(errs, database.Close(s.db))
	return errors.Join(errs...)
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.auth.Register)
	authGroup.POST("/verify", s.auth.Verify)
	authGroup.POST("/resend", s.auth.Resend)
	authGroup.POST("/resolve-username", s.auth.ResolveUsername)
	authGroup.POST("/token", s.auth.Login)
	authGroup.POST("/token/refresh", s.auth.Refresh)
	authGroup.POST("/password/reset", s.auth.PasswordReset)
	authGroup.POST("/password/confirm", s.auth.PasswordConfirm)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(s.tokens))
	authed.POST("/auth/logout", s.auth.Logout)
	authed.GET("/auth/me", s.auth.Me)
	authed.GET("/tasks", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PUT("/tasks/:id", s.handleReplaceTask)
	authed.PATCH("/tasks/:id", s.handlePatchTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
	authed.POST("/tasks/:id/toggle", s.handleToggleTask)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := database.Ping(ctx, s.db); err != nil {
		s.logger.Warn("health check: database unavailable", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "database": "down"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("health check: redis unavailable", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "redis": "down"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
