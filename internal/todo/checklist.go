package todo

import (
	"fmt"

	"github.com/Doczin0/todo-datacake-backend/internal/model"

	"gorm.io/gorm"
)

// SyncChecklist 让任务的检查项与 entries 一致。
//
// 带 id 且属于该任务的项原地更新，其余新建；完成后删除本次未出现的项。
// 空列表删除全部检查项。调用方负责开启事务。
//
// 参数:
//
//	tx: 事务
//	taskID: 任务 ID
//	entries: 校验后的检查项
func SyncChecklist(tx *gorm.DB, taskID uint, entries []ChecklistEntry) error {
	var existing []uint
	if err := tx.Model(&model.ChecklistItem{}).Where("task_id = ?", taskID).Pluck("id", &existing).Error; err != nil {
		return fmt.Errorf("load checklist: %w", err)
	}
	owned := make(map[uint]bool, len(existing))
	for _, id := range existing {
		owned[id] = true
	}

	keep := make([]uint, 0, len(entries))
	for _, e := range entries {
		if e.ID != 0 && owned[e.ID] {
			err := tx.Model(&model.ChecklistItem{}).
				Where("id = ? AND task_id = ?", e.ID, taskID).
				Updates(map[string]interface{}{
					"label":      e.Label,
					"done":       e.Done,
					"sort_order": e.Order,
				}).Error
			if err != nil {
				return fmt.Errorf("update checklist item %d: %w", e.ID, err)
			}
			keep = append(keep, e.ID)
			continue
		}

		item := model.ChecklistItem{TaskID: taskID, Label: e.Label, Done: e.Done, Order: e.Order}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("create checklist item: %w", err)
		}
		keep = append(keep, item.ID)
	}

	del := tx.Where("task_id = ?", taskID)
	if len(keep) > 0 {
		del = del.Where("id NOT IN ?", keep)
	}
	if err := del.Delete(&model.ChecklistItem{}).Error; err != nil {
		return fmt.Errorf("prune checklist: %w", err)
	}
	return nil
}
