package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app" yaml:"app"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Email    EmailConfig    `json:"email" yaml:"email"`
	Security SecurityConfig `json:"security" yaml:"security"`
	CORS     CORSConfig     `json:"cors" yaml:"cors"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env      string `json:"env" yaml:"env"`             // 运行环境: local / prod
	LogLevel string `json:"log_level" yaml:"log_level"` // 日志级别: debug / info / warn / error
	HTTPAddr string `json:"http_addr" yaml:"http_addr"` // API 服务监听地址
	SeedDemo bool   `json:"seed_demo" yaml:"seed_demo"` // 启动时写入演示数据

	// 邮件投递 worker（cmd/mailer）
	MailWorkers       int     `json:"mail_workers" yaml:"mail_workers"`               // Worker Pool 大小
	MailQueueCapacity int     `json:"mail_queue_capacity" yaml:"mail_queue_capacity"` // 本地队列容量
	MailRateLimit     float64 `json:"mail_rate_limit" yaml:"mail_rate_limit"`         // SMTP 限流速率（token/s）
	MailRateBurst     float64 `json:"mail_rate_burst" yaml:"mail_rate_burst"`         // 限流桶容量
	MailDomainRate    float64 `json:"mail_domain_rate" yaml:"mail_domain_rate"`       // 单个收件域的发送速率（token/s）
	MailDomainBurst   float64 `json:"mail_domain_burst" yaml:"mail_domain_burst"`     // 单个收件域的桶容量
	MailDedupWindow   int     `json:"mail_dedup_window" yaml:"mail_dedup_window"`     // 消息去重窗口（秒）
	MailStream        string  `json:"mail_stream" yaml:"mail_stream"`                 // Redis Stream 名称
	MailGroup         string  `json:"mail_group" yaml:"mail_group"`                   // Consumer Group 名称
	MetricsAddr       string  `json:"metrics_addr" yaml:"metrics_addr"`               // mailer 指标监听地址
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // sqlite / mysql
	DSN    string `json:"dsn" yaml:"dsn"`       // 数据库连接字符串
}

// RedisConfig Redis 配置，Addr 为空表示不使用 Redis。
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`         // Redis 地址 (host:port)
	Password string `json:"password" yaml:"password"` // Redis 密码
}

// EmailConfig 邮件配置。
type EmailConfig struct {
	Delivery  string `json:"delivery" yaml:"delivery"` // console / smtp / queue
	SMTPHost  string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort  int    `json:"smtp_port" yaml:"smtp_port"`
	SMTPUser  string `json:"smtp_user" yaml:"smtp_user"`
	SMTPPass  string `json:"smtp_pass" yaml:"smtp_pass"`
	FromEmail string `json:"from_email" yaml:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret       string        `json:"jwt_secret" yaml:"jwt_secret"`               // JWT 签名密钥
	AccessTokenTTL  time.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`   // access token 有效期（如 "60m"）
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"` // refresh token 有效期（如 "168h"）
}

// CORSConfig 跨域配置。
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// Delivery 取值。
const (
	DeliveryConsole = "console"
	DeliverySMTP    = "smtp"
	DeliveryQueue   = "queue"
)

// Load 加载配置。
//
// 先读取 .env（不存在则忽略），再读取 JSON 或 YAML 配置文件，
// 文件不存在时使用默认值，最后由环境变量覆盖。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	_ = godotenv.Load()

	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// RedisEnabled 是否配置了 Redis。
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

func defaultOrigins() []string {
	return []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://localhost:19006",
		"http://127.0.0.1:19006",
		"http://localhost:8081",
		"http://127.0.0.1:8081",
		"http://localhost:8082",
	}
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:               "local",
			LogLevel:          "info",
			HTTPAddr:          ":8000",
			SeedDemo:          false,
			MailWorkers:       4,
			MailQueueCapacity: 100,
			MailRateLimit:     2,
			MailRateBurst:     5,
			MailDomainRate:    1,
			MailDomainBurst:   3,
			MailDedupWindow:   3600,
			MailStream:        "datacake:mail:queue",
			MailGroup:         "mailer_group",
			MetricsAddr:       ":9091",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "datacake.db",
		},
		Redis: RedisConfig{},
		Email: EmailConfig{
			Delivery:  DeliveryConsole,
			SMTPHost:  "localhost",
			SMTPPort:  587,
			FromEmail: "no-reply@datacake.local",
		},
		Security: SecurityConfig{
			JWTSecret:       "dev_secret_change_me",
			AccessTokenTTL:  60 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: defaultOrigins(),
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MailWorkers == 0 {
		cfg.App.MailWorkers = defaults.App.MailWorkers
	}
	if cfg.App.MailQueueCapacity == 0 {
		cfg.App.MailQueueCapacity = defaults.App.MailQueueCapacity
	}
	if cfg.App.MailRateLimit == 0 {
		cfg.App.MailRateLimit = defaults.App.MailRateLimit
	}
	if cfg.App.MailRateBurst == 0 {
		cfg.App.MailRateBurst = defaults.App.MailRateBurst
	}
	if cfg.App.MailDomainRate == 0 {
		cfg.App.MailDomainRate = defaults.App.MailDomainRate
	}
	if cfg.App.MailDomainBurst == 0 {
		cfg.App.MailDomainBurst = defaults.App.MailDomainBurst
	}
	if cfg.App.MailDedupWindow == 0 {
		cfg.App.MailDedupWindow = defaults.App.MailDedupWindow
	}
	if cfg.App.MailStream == "" {
		cfg.App.MailStream = defaults.App.MailStream
	}
	if cfg.App.MailGroup == "" {
		cfg.App.MailGroup = defaults.App.MailGroup
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == defaults.Database.Driver {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Email.Delivery == "" {
		cfg.Email.Delivery = defaults.Email.Delivery
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = defaults.Email.SMTPHost
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Email.FromEmail == "" {
		cfg.Email.FromEmail = defaults.Email.FromEmail
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.AccessTokenTTL == 0 {
		cfg.Security.AccessTokenTTL = defaults.Security.AccessTokenTTL
	}
	if cfg.Security.RefreshTokenTTL == 0 {
		cfg.Security.RefreshTokenTTL = defaults.Security.RefreshTokenTTL
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = defaults.CORS.AllowedOrigins
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET", "SECRET_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_SEED_DEMO"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.SeedDemo = b
		}
	}
	if v := os.Getenv("MAILER_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		// 分散的 DB_* 变量只对 MySQL 有意义
		cfg.Database.Driver = "mysql"
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("MAIL_DELIVERY"); v != "" {
		cfg.Email.Delivery = strings.ToLower(v)
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("ACCESS_TOKEN_MINUTES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Security.AccessTokenTTL = time.Duration(i) * time.Minute
		}
	}
	if v := os.Getenv("REFRESH_TOKEN_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Security.RefreshTokenTTL = time.Duration(i) * 24 * time.Hour
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) > 0 {
			cfg.CORS.AllowedOrigins = origins
		}
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func defaultMySQLConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = "root"
	cfg.Net = "tcp"
	cfg.Addr = "localhost:3306"
	cfg.DBName = "datacake"
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

func parseMySQLDSN(dsn string) *mysql.Config {
	if dsn == "" {
		return defaultMySQLConfig()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return defaultMySQLConfig()
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		AccessTokenTTL  string `json:"access_token_ttl"`
		RefreshTokenTTL string `json:"refresh_token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.AccessTokenTTL != "" {
		d, err := time.ParseDuration(aux.AccessTokenTTL)
		if err != nil {
			return fmt.Errorf("invalid access_token_ttl format: %w", err)
		}
		s.AccessTokenTTL = d
	}
	if aux.RefreshTokenTTL != "" {
		d, err := time.ParseDuration(aux.RefreshTokenTTL)
		if err != nil {
			return fmt.Errorf("invalid refresh_token_ttl format: %w", err)
		}
		s.RefreshTokenTTL = d
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SecurityConfig) MarshalJSON() ([]byte, error) {
	type Alias SecurityConfig
	return json.Marshal(&struct {
		AccessTokenTTL  string `json:"access_token_ttl"`
		RefreshTokenTTL string `json:"refresh_token_ttl"`
		*Alias
	}{
		AccessTokenTTL:  s.AccessTokenTTL.String(),
		RefreshTokenTTL: s.RefreshTokenTTL.String(),
		Alias:           (*Alias)(&s),
	})
}
