package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Doczin0/todo-datacake-backend/internal/api"
	"github.com/Doczin0/todo-datacake-backend/internal/config"
	"github.com/Doczin0/todo-datacake-backend/internal/ledger"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/database"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/logger"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/mailqueue"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/notify"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func loadConfig() (*config.Config, *slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(os.Stderr, cfg.App.LogLevel, "text"), nil
}

// withDB 打开数据库并执行迁移后调用 fn。
func withDB(fn func(ctx context.Context, cfg *config.Config, log *slog.Logger, db *gorm.DB) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}
	return fn(context.Background(), cfg, log, db)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(_ context.Context, cfg *config.Config, _ *slog.Logger, _ *gorm.DB) error {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", cfg.Database.Driver)
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo user and its sample tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, _ *config.Config, log *slog.Logger, db *gorm.DB) error {
				if err := api.SeedDemo(ctx, db, log); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "demo user %q ready\n", api.DemoUsername)
				return nil
			})
		},
	}
}

func purgeCodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-codes",
		Short: "Delete verification codes that are already expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, _ *config.Config, log *slog.Logger, db *gorm.DB) error {
				codes := ledger.New(ledger.NewGormStore(db), notify.NewConsoleNotifier(log), log)
				n, err := codes.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired codes\n", n)
				return nil
			})
		},
	}
}

func sendTestMailCmd() *cobra.Command {
	var purpose string
	cmd := &cobra.Command{
		Use:   "send-test-mail <email>",
		Short: "Send a sample verification mail through the configured delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()

			var publisher notify.Publisher
			if cfg.RedisEnabled() {
				rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
				defer rdb.Close()
				publisher = mailqueue.NewProducer(rdb, log, cfg.App.MailStream)
			}
			notifier, err := notify.New(&cfg.Email, log, publisher)
			if err != nil {
				return err
			}

			code, err := ledger.NewCode()
			if err != nil {
				return err
			}
			mail := notify.CodeMail{
				To:       strings.TrimSpace(args[0]),
				Username: "teste",
				Code:     code,
				Purpose:  notify.Purpose(purpose),
			}
			if err := notifier.SendCode(ctx, mail); err != nil {
				return fmt.Errorf("send test mail: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test mail sent to %s via %s\n", mail.To, cfg.Email.Delivery)
			return nil
		},
	}
	cmd.Flags().StringVarP(&purpose, "purpose", "p", string(notify.PurposeRegister), "register, resend or reset")
	return cmd
}
