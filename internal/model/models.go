package model

import (
	"time"
)

// 任务状态。
const (
	StatusPending = "pendente"
	StatusDone    = "concluida"
)

// 重要程度。
const (
	ImportanceLow    = "baixa"
	ImportanceMedium = "media"
	ImportanceHigh   = "alta"
)

// 分类。
const (
	CategoryWork     = "trabalho"
	CategoryStudy    = "estudos"
	CategoryHome     = "casa"
	CategoryHealth   = "saude"
	CategoryPersonal = "pessoal"
)

// 重复周期。
const (
	RecurrenceNone    = "nenhuma"
	RecurrenceDaily   = "diaria"
	RecurrenceWeekly  = "semanal"
	RecurrenceMonthly = "mensal"
)

// Task 表示一个用户任务。
//
// Tags 以 JSON 文本存储，MySQL 与 SQLite 使用同一套表结构。
// DueDate 为 nil 表示没有截止日期。
type Task struct {
	ID        uint      `gorm:"primaryKey"` // 任务唯一标识
	CreatedAt time.Time `gorm:"index"`      // 创建时间
	UpdatedAt time.Time // 更新时间

	OwnerID     uint       `gorm:"not null;index"`                                 // 所属用户 ID
	Owner       *User      `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"` // 所属用户
	Title       string     `gorm:"type:varchar(120);not null"`                     // 标题（1-60 字符）
	Description string     `gorm:"type:text"`                                      // 描述（最多 500 字符）
	Status      string     `gorm:"type:varchar(10);default:pendente"`              // pendente / concluida
	Importance  string     `gorm:"type:varchar(8);default:media"`                  // baixa / media / alta
	Category    string     `gorm:"type:varchar(12);default:pessoal"`               // 分类
	Tags        []string   `gorm:"type:text;serializer:json"`                      // 标签列表
	DueDate     *time.Time `gorm:"type:date;index"`                                // 截止日期
	Recurrence  string     `gorm:"type:varchar(8);default:nenhuma"`                // 重复周期（写入时总是 nenhuma）

	ChecklistItems []ChecklistItem `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"` // 子项
}

// ChecklistItem 任务下的检查项，默认按 (order, id) 排序。
type ChecklistItem struct {
	ID     uint   `gorm:"primaryKey"`
	TaskID uint   `gorm:"not null;index"`
	Label  string `gorm:"type:varchar(150);not null"`
	Done   bool   `gorm:"default:false"`
	Order  int    `gorm:"column:sort_order;default:0"`
}
