package model

import "time"

// User 表示系统用户。
//
// UsernameKey / EmailKey 保存小写形式并带唯一索引，
// 大小写不敏感的唯一性与查找都走索引。
type User struct {
	ID          uint      `gorm:"primaryKey"`                             // 用户 ID
	Username    string    `gorm:"type:varchar(30);not null"`              // 用户名（保留原始大小写）
	UsernameKey string    `gorm:"type:varchar(30);uniqueIndex;not null"`  // 小写用户名
	Email       string    `gorm:"type:varchar(191);not null"`             // 邮箱（保留原始大小写）
	EmailKey    string    `gorm:"type:varchar(191);uniqueIndex;not null"` // 小写邮箱
	Password    string    `gorm:"not null"`                               // bcrypt 哈希
	IsActive    bool      `gorm:"default:false"`                          // 邮箱验证后激活
	CreatedAt   time.Time // 创建时间
	UpdatedAt   time.Time // 更新时间
}
