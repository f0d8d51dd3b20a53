package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Doczin0/todo-datacake-backend/internal/account"
	"github.com/Doczin0/todo-datacake-backend/internal/model"

	"gorm.io/gorm"
)

// 演示账号。
const (
	DemoUsername = "demo"
	DemoEmail    = "demo@datacake.local"
	DemoPassword = "Demo@123!"
)

var demoTasks = []struct {
	title  string
	status string
}{
	{"Estudar Django", model.StatusPending},
	{"Finalizar UI React", model.StatusDone},
}

// SeedDemoData 初始化演示数据。
func (s *Server) SeedDemoData(ctx context.Context) error {
	return SeedDemo(ctx, s.db, s.logger)
}

// SeedDemo 写入演示账号与两条任务，可重复执行。
//
// 账号已存在时重置密码并保持激活；任务按 (owner, title, status) 判重。
func SeedDemo(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	hash, err := account.HashPassword(DemoPassword)
	if err != nil {
		return err
	}

	var user model.User
	err = db.WithContext(ctx).Where("username_key = ?", account.Key(DemoUsername)).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			Username:    DemoUsername,
			UsernameKey: account.Key(DemoUsername),
			Email:       DemoEmail,
			EmailKey:    account.Key(DemoEmail),
			Password:    hash,
			IsActive:    true,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return fmt.Errorf("create demo user: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load demo user: %w", err)
	default:
		updates := map[string]interface{}{
			"password":  hash,
			"is_active": true,
		}
		if err := db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update demo user: %w", err)
		}
	}

	for _, t := range demoTasks {
		attrs := model.Task{
			OwnerID:    user.ID,
			Title:      t.title,
			Status:     t.status,
			Importance: model.ImportanceMedium,
			Category:   model.CategoryPersonal,
			Recurrence: model.RecurrenceNone,
			Tags:       []string{},
		}
		var task model.Task
		err := db.WithContext(ctx).
			Where("owner_id = ? AND title = ? AND status = ?", user.ID, t.title, t.status).
			Attrs(attrs).
			FirstOrCreate(&task).Error
		if err != nil {
			return fmt.Errorf("seed demo task: %w", err)
		}
	}

	if logger != nil {
		logger.Info("demo data seeded", slog.String("username", DemoUsername))
	}
	return nil
}
