package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 验证码槽位的持久化接口。
type Store interface {
	// Upsert 写入或覆盖用户的槽位。
	Upsert(ctx context.Context, slot *model.VerificationCode) error
	// Get 读取槽位，不存在时返回 (nil, nil)。
	Get(ctx context.Context, userID uint) (*model.VerificationCode, error)
	// Bump 在 resend_count < limit 时原地替换验证码并计数加一，返回是否更新。
	Bump(ctx context.Context, userID uint, code string, at time.Time, limit int) (bool, error)
	// Delete 删除槽位。
	Delete(ctx context.Context, userID uint) error
	// DeleteIssuedBefore 删除 created_at 早于 cutoff 的槽位。
	DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GormStore 基于 gorm 的 Store 实现，依赖 user_id 上的唯一索引。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 GormStore。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Upsert(ctx context.Context, slot *model.VerificationCode) error {
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"code", "resend_count", "created_at"}),
		}).
		Create(slot).Error
	if err != nil {
		return fmt.Errorf("upsert verification code: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, userID uint) (*model.VerificationCode, error) {
	var slot model.VerificationCode
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load verification code: %w", err)
	}
	return &slot, nil
}

func (s *GormStore) Bump(ctx context.Context, userID uint, code string, at time.Time, limit int) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.VerificationCode{}).
		Where("user_id = ? AND resend_count < ?", userID, limit).
		Updates(map[string]interface{}{
			"code":         code,
			"created_at":   at,
			"resend_count": gorm.Expr("resend_count + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("bump verification code: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Delete(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.VerificationCode{}).Error; err != nil {
		return fmt.Errorf("delete verification code: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.VerificationCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge verification codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}
