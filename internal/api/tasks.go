package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/api/middleware"
	"github.com/Doczin0/todo-datacake-backend/internal/api/respond"
	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/todo"

	"github.com/gin-gonic/gin"
)

type checklistItemResponse struct {
	ID    uint   `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
	Order int    `json:"order"`
}

type taskResponse struct {
	ID             uint                    `json:"id"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Status         string                  `json:"status"`
	Importance     string                  `json:"importance"`
	Category       string                  `json:"category"`
	Tags           []string                `json:"tags"`
	DueDate        *string                 `json:"due_date"`
	Recurrence     string                  `json:"recurrence"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	ChecklistItems []checklistItemResponse `json:"checklist_items"`
}

func toTaskResponse(t *model.Task) taskResponse {
	resp := taskResponse{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Importance:     t.Importance,
		Category:       t.Category,
		Tags:           t.Tags,
		Recurrence:     t.Recurrence,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		ChecklistItems: make([]checklistItemResponse, 0, len(t.ChecklistItems)),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if t.DueDate != nil {
		d := t.DueDate.Format(todo.DateLayout)
		resp.DueDate = &d
	}
	for _, item := range t.ChecklistItems {
		resp.ChecklistItems = append(resp.ChecklistItems, checklistItemResponse{
			ID:    item.ID,
			Label: item.Label,
			Done:  item.Done,
			Order: item.Order,
		})
	}
	return resp
}

// taskID 解析路径中的任务 ID，非法 ID 按不存在处理。
func taskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		respond.Fail(c, http.StatusNotFound, respond.MsgNotFound)
		return 0, false
	}
	return uint(id), true
}

// handleListTasks 返回当前用户的任务列表。
//
// GET /api/tasks?status=&importance=&category=&tag=&date_from=&date_to=&due_from=&due_to=
func (s *Server) handleListTasks(c *gin.Context) {
	filter, err := todo.ParseFilter(c.Request.URL.Query())
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	tasks, err := s.tasks.List(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, toTaskResponse(&tasks[i]))
	}
	c.JSON(http.StatusOK, out)
}

// handleCreateTask 创建任务。
//
// POST /api/tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	ch, ok := s.bindTask(c, todo.ModeCreate)
	if !ok {
		return
	}
	task, err := s.tasks.Create(c.Request.Context(), middleware.UserID(c), ch)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toTaskResponse(task))
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := s.tasks.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

// handleReplaceTask PUT /api/tasks/:id
func (s *Server) handleReplaceTask(c *gin.Context) {
	s.updateTask(c, todo.ModeReplace)
}

// handlePatchTask PATCH /api/tasks/:id
func (s *Server) handlePatchTask(c *gin.Context) {
	s.updateTask(c, todo.ModePatch)
}

func (s *Server) updateTask(c *gin.Context, mode todo.Mode) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	ch, ok := s.bindTask(c, mode)
	if !ok {
		return
	}
	task, err := s.tasks.Update(c.Request.Context(), middleware.UserID(c), id, ch)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

// handleDeleteTask DELETE /api/tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := s.tasks.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleToggleTask 切换完成状态。
//
// POST /api/tasks/:id/toggle
func (s *Server) handleToggleTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := s.tasks.Toggle(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		respond.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

func (s *Server) bindTask(c *gin.Context, mode todo.Mode) (*todo.Changes, bool) {
	var in todo.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadJSON(c)
		return nil, false
	}
	ch, err := in.Validate(mode)
	if err != nil {
		respond.Error(c, s.logger, err)
		return nil, false
	}
	return ch, true
}
