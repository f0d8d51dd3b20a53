package model

import "time"

// VerificationCode 每个用户至多一条的验证码记录。
//
// user_id 上的唯一索引保证单槽位，新签发的验证码覆盖旧记录。
type VerificationCode struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"uniqueIndex;not null"`                          // 所属用户
	User        *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // 删除用户时级联删除
	Code        string    `gorm:"type:varchar(6);not null"`                      // 6 位数字
	ResendCount int       `gorm:"not null"`                                      // 已重发次数
	CreatedAt   time.Time // 签发时间，有效期从此刻起算
}
