// Package todo 实现任务与检查项的存储、校验、过滤与状态切换。
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/metrics"

	"gorm.io/gorm"
)

// ErrTaskNotFound 任务不存在或不属于当前用户。
var ErrTaskNotFound = apperr.NotFound("task_not_found", "Não encontrado.")

// Store 任务存储，所有操作都限定在 owner 范围内。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore 创建任务存储。
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create 在一个事务中创建任务及其检查项。
//
// 参数:
//
//	ctx: 上下文
//	ownerID: 所属用户
//	ch: 校验后的内容（ModeCreate）
//
// 返回值:
//
//	*model.Task: 带检查项的新任务
//	error: 写入失败
func (s *Store) Create(ctx context.Context, ownerID uint, ch *Changes) (*model.Task, error) {
	task := &model.Task{
		OwnerID:    ownerID,
		Status:     model.StatusPending,
		Importance: model.ImportanceMedium,
		Category:   model.CategoryPersonal,
		Recurrence: model.RecurrenceNone,
		Tags:       []string{},
	}
	applyFields(task, ch)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("ChecklistItems").Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		if ch.ChecklistSet {
			return SyncChecklist(tx, task.ID, ch.Checklist)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TaskWritesTotal.WithLabelValues("create").Inc()
	s.logger.Info("task created",
		slog.Uint64("task_id", uint64(task.ID)),
		slog.Uint64("owner_id", uint64(ownerID)))
	return s.Get(ctx, ownerID, task.ID)
}

// Get 读取单个任务，检查项按 (order, id) 排序。
func (s *Store) Get(ctx context.Context, ownerID, id uint) (*model.Task, error) {
	var task model.Task
	err := withChecklist(s.db.WithContext(ctx)).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return &task, nil
}

// List 按过滤条件列出用户任务，最新创建的在前。
func (s *Store) List(ctx context.Context, ownerID uint, f Filter) ([]model.Task, error) {
	tasks := []model.Task{}
	q := withChecklist(s.db.WithContext(ctx)).Where("owner_id = ?", ownerID)
	err := f.Apply(q).
		Order("created_at DESC").
		Order("id DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Update 写入提交过的字段；提交了 checklist_items 时同步检查项。
// recurrence 总是被重置为 nenhuma。
func (s *Store) Update(ctx context.Context, ownerID, id uint, ch *Changes) (*model.Task, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.Task
		err := tx.Where("id = ? AND owner_id = ?", id, ownerID).Take(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}

		applyFields(&task, ch)
		if err := tx.Model(&task).Select(ch.columns()).Updates(&task).Error; err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if ch.ChecklistSet {
			return SyncChecklist(tx, id, ch.Checklist)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TaskWritesTotal.WithLabelValues("update").Inc()
	return s.Get(ctx, ownerID, id)
}

// Delete 删除任务，检查项随外键级联删除。
func (s *Store) Delete(ctx context.Context, ownerID, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&model.Task{})
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		if err := tx.Where("task_id = ?", id).Delete(&model.ChecklistItem{}).Error; err != nil {
			return fmt.Errorf("delete checklist: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.TaskWritesTotal.WithLabelValues("delete").Inc()
	s.logger.Info("task deleted", slog.Uint64("task_id", uint64(id)))
	return nil
}

// Toggle 在 pendente 与 concluida 之间切换状态；重复周期不是 nenhuma 时改为 nenhuma。
func (s *Store) Toggle(ctx context.Context, ownerID, id uint) (*model.Task, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.Task
		err := tx.Where("id = ? AND owner_id = ?", id, ownerID).Take(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}

		fields := map[string]interface{}{"status": model.StatusDone}
		if task.Status == model.StatusDone {
			fields["status"] = model.StatusPending
		}
		if task.Recurrence != model.RecurrenceNone {
			fields["recurrence"] = model.RecurrenceNone
		}
		if err := tx.Model(&task).Updates(fields).Error; err != nil {
			return fmt.Errorf("toggle task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TaskWritesTotal.WithLabelValues("toggle").Inc()
	return s.Get(ctx, ownerID, id)
}

func withChecklist(db *gorm.DB) *gorm.DB {
	return db.Preload("ChecklistItems", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sort_order ASC").Order("id ASC")
	})
}

// columns 本次需要写入的列，带上 updated_at 以刷新更新时间。
func (ch *Changes) columns() []string {
	cols := make([]string, 0, len(ch.Fields)+2)
	for k := range ch.Fields {
		cols = append(cols, k)
	}
	if ch.TagsSet {
		cols = append(cols, "tags")
	}
	return append(cols, "updated_at")
}

func applyFields(task *model.Task, ch *Changes) {
	for k, v := range ch.Fields {
		switch k {
		case "title":
			task.Title = v.(string)
		case "description":
			task.Description = v.(string)
		case "status":
			task.Status = v.(string)
		case "importance":
			task.Importance = v.(string)
		case "category":
			task.Category = v.(string)
		case "due_date":
			task.DueDate = v.(*time.Time)
		case "recurrence":
			task.Recurrence = v.(string)
		}
	}
	if ch.TagsSet {
		task.Tags = ch.Tags
	}
}
