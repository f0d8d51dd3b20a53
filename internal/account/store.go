package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Doczin0/todo-datacake-backend/internal/model"

	"gorm.io/gorm"
)

// ErrUserNotFound 按标识查找用户失败。
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUser 用户名或邮箱已被占用（并发注册时由唯一索引触发）。
var ErrDuplicateUser = errors.New("duplicate user")

// UserStore 用户持久化接口。查找均大小写不敏感。
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	SetPassword(ctx context.Context, id uint, hash string) error
	Activate(ctx context.Context, id uint) error
	Delete(ctx context.Context, id uint) error
}

// Key 返回用于唯一索引与查找的规范形式。
func Key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GormUserStore 基于 gorm 的 UserStore。
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore 创建 GormUserStore。
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) Create(ctx context.Context, user *model.User) error {
	user.UsernameKey = Key(user.Username)
	user.EmailKey = Key(user.Email)
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *GormUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.first(ctx, "email_key = ?", Key(email))
}

func (s *GormUserStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.first(ctx, "username_key = ?", Key(username))
}

func (s *GormUserStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "username_key = ?", Key(username))
}

func (s *GormUserStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "email_key = ?", Key(email))
}

func (s *GormUserStore) SetPassword(ctx context.Context, id uint, hash string) error {
	return s.update(ctx, id, "password", hash)
}

func (s *GormUserStore) Activate(ctx context.Context, id uint) error {
	return s.update(ctx, id, "is_active", true)
}

func (s *GormUserStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&model.VerificationCode{}).Error; err != nil {
			return fmt.Errorf("delete verification codes: %w", err)
		}
		if err := tx.Delete(&model.User{}, id).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (s *GormUserStore) first(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where(query, arg).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

func (s *GormUserStore) exists(ctx context.Context, query string, arg interface{}) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where(query, arg).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

func (s *GormUserStore) update(ctx context.Context, id uint, column string, value interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update user %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
