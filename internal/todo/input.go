package todo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"

	"github.com/go-playground/validator/v10"
)

// DateLayout 截止日期与过滤参数使用的日期格式。
const DateLayout = "2006-01-02"

const (
	maxTitleLen       = 60
	maxDescriptionLen = 500
	maxLabelLen       = 150

	msgRequired      = "Este campo é obrigatório."
	msgTitleEmpty    = "O título não pode estar vazio."
	msgTitleTooLong  = "O título deve ter no máximo 60 caracteres."
	msgDescTooLong   = "A descrição deve ter no máximo 500 caracteres."
	msgLabelEmpty    = "O item do checklist não pode ser vazio."
	msgLabelTooLong  = "O item do checklist deve ter até 150 caracteres."
	msgOrderNegative = "Certifique-se de que este valor seja maior ou igual a 0."
	msgDateFormat    = "Formato inválido para data. Use o formato YYYY-MM-DD."
)

// Mode 写入模式。
type Mode int

const (
	// ModeCreate 创建，标题必填。
	ModeCreate Mode = iota
	// ModeReplace 整体更新（PUT），标题必填，未提交的字段保持不变。
	ModeReplace
	// ModePatch 部分更新（PATCH）。
	ModePatch
)

// DateField 区分“未提交”、“null”与具体日期。
type DateField struct {
	Set   bool   // 请求中出现了该字段
	Null  bool   // 显式传 null
	Raw   string // 原始字符串
	Valid bool   // 类型正确（字符串或 null）
}

// UnmarshalJSON 类型错误不在这里报错，统一交给字段校验。
func (d *DateField) UnmarshalJSON(data []byte) error {
	d.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		d.Null, d.Valid = true, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		d.Valid = false
		return nil
	}
	d.Raw, d.Valid = s, true
	return nil
}

// ChecklistInput 请求中的一个检查项。
type ChecklistInput struct {
	ID    *uint  `json:"id"`
	Label string `json:"label"`
	Done  *bool  `json:"done"`
	Order *int   `json:"order"`
}

// TaskInput 创建与更新任务的请求体；指针为 nil 表示未提交。
//
// recurrence 可以提交但会被忽略，写入时总是 nenhuma。
type TaskInput struct {
	Title          *string           `json:"title"`
	Description    *string           `json:"description"`
	Status         *string           `json:"status"`
	Importance     *string           `json:"importance"`
	Category       *string           `json:"category"`
	Tags           *[]string         `json:"tags"`
	DueDate        DateField         `json:"due_date"`
	Recurrence     *string           `json:"recurrence"`
	ChecklistItems *[]ChecklistInput `json:"checklist_items"`
}

// ChecklistEntry 校验后的检查项。
type ChecklistEntry struct {
	ID    uint
	Label string
	Done  bool
	Order int
}

// Changes 校验后的写入内容。Fields 只包含提交过的列。
type Changes struct {
	Fields    map[string]interface{}
	Tags      []string
	TagsSet   bool
	Checklist []ChecklistEntry
	// ChecklistSet 为 true 时按 Checklist 同步子项（空列表表示全部删除）。
	ChecklistSet bool
}

var (
	statusChoices     = []string{model.StatusPending, model.StatusDone}
	importanceChoices = []string{model.ImportanceLow, model.ImportanceMedium, model.ImportanceHigh}
	categoryChoices   = []string{
		model.CategoryWork, model.CategoryStudy, model.CategoryHome,
		model.CategoryHealth, model.CategoryPersonal,
	}
)

// validate 只做单值校验（Var），可并发使用。
var validate = validator.New()

// failedRule 用 rules 校验 value，返回第一条不满足的规则 tag（如 "max"），通过时返回空字符串。
func failedRule(value interface{}, rules string) string {
	err := validate.Var(value, rules)
	if err == nil {
		return ""
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		return ves[0].Tag()
	}
	return "invalid"
}

var (
	titleRules = fmt.Sprintf("required,max=%d", maxTitleLen)
	titleMsgs  = map[string]string{"required": msgTitleEmpty, "max": msgTitleTooLong}
	descRules  = fmt.Sprintf("max=%d", maxDescriptionLen)
	labelRules = fmt.Sprintf("required,max=%d", maxLabelLen)
	labelMsgs  = map[string]string{"required": msgLabelEmpty, "max": msgLabelTooLong}
)

func oneOf(choices []string) string {
	return "oneof=" + strings.Join(choices, " ")
}

// taskCheck 单个字段的校验步骤，合法的值写进 ch，错误写进 fe。
type taskCheck func(in *TaskInput, mode Mode, ch *Changes, fe apperr.FieldErrors)

// taskChecks 按固定顺序执行，所有字段错误汇总后一次性返回。
var taskChecks = []taskCheck{
	checkTitle,
	checkDescription,
	checkStatus,
	checkImportance,
	checkCategory,
	checkTags,
	checkDueDate,
	checkChecklist,
	forceRecurrence,
}

// Validate 校验请求并转换为 Changes，所有字段错误一次性返回。
func (in *TaskInput) Validate(mode Mode) (*Changes, error) {
	fe := apperr.FieldErrors{}
	ch := &Changes{Fields: map[string]interface{}{}}
	for _, c := range taskChecks {
		c(in, mode, ch, fe)
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}
	return ch, nil
}

func checkTitle(in *TaskInput, mode Mode, ch *Changes, fe apperr.FieldErrors) {
	if in.Title == nil {
		if mode != ModePatch {
			fe.Add("title", msgRequired)
		}
		return
	}
	title := strings.TrimSpace(*in.Title)
	if rule := failedRule(title, titleRules); rule != "" {
		fe.Add("title", titleMsgs[rule])
		return
	}
	ch.Fields["title"] = title
}

func checkDescription(in *TaskInput, _ Mode, ch *Changes, fe apperr.FieldErrors) {
	if in.Description == nil {
		return
	}
	if failedRule(*in.Description, descRules) != "" {
		fe.Add("description", msgDescTooLong)
		return
	}
	ch.Fields["description"] = *in.Description
}

func checkStatus(in *TaskInput, _ Mode, ch *Changes, fe apperr.FieldErrors) {
	choice(fe, ch, "status", in.Status, statusChoices)
}

func checkImportance(in *TaskInput, _ Mode, ch *Changes, fe apperr.FieldErrors) {
	choice(fe, ch, "importance", in.Importance, importanceChoices)
}

func checkCategory(in *TaskInput, _ Mode, ch *Changes, fe apperr.FieldErrors) {
	choice(fe, ch, "category", in.Category, categoryChoices)
}

func choice(fe apperr.FieldErrors, ch *Changes, field string, value *string, allowed []string) {
	if value == nil {
		return
	}
	if failedRule(*value, oneOf(allowed)) != "" {
		fe.Add(field, fmt.Sprintf("\"%s\" não é uma escolha válida.", *value))
		return
	}
	ch.Fields[field] = *value
}

func checkTags(in *TaskInput, mode Mode, ch *Changes, fe apperr.FieldErrors) {
	if in.Tags == nil {
		if mode == ModeCreate {
			ch.Tags, ch.TagsSet = []string{}, true
		}
		return
	}
	tags, msg := NormalizeTags(*in.Tags)
	if msg != "" {
		fe.Add("tags", msg)
		return
	}
	ch.Tags, ch.TagsSet = tags, true
}

func checkDueDate(in *TaskInput, _ Mode, ch *Changes, fe apperr.FieldErrors) {
	if !in.DueDate.Set {
		return
	}
	due, err := parseDueDate(in.DueDate)
	if err != nil {
		fe.Add("due_date", msgDateFormat)
		return
	}
	ch.Fields["due_date"] = due
}

func checkChecklist(in *TaskInput, mode Mode, ch *Changes, fe apperr.FieldErrors) {
	if in.ChecklistItems == nil {
		if mode == ModeCreate {
			ch.ChecklistSet = true
		}
		return
	}
	entries, errs := validateChecklist(*in.ChecklistItems)
	if len(errs) > 0 {
		for _, msg := range errs {
			fe.Add("checklist_items", msg)
		}
		return
	}
	ch.Checklist, ch.ChecklistSet = entries, true
}

// forceRecurrence 提交的 recurrence 一律忽略。
func forceRecurrence(_ *TaskInput, _ Mode, ch *Changes, _ apperr.FieldErrors) {
	ch.Fields["recurrence"] = model.RecurrenceNone
}

func parseDueDate(d DateField) (*time.Time, error) {
	if !d.Valid {
		return nil, fmt.Errorf("due_date: not a string")
	}
	if d.Null {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(d.Raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// validateChecklist 校验检查项；order 缺省时取下标。
func validateChecklist(items []ChecklistInput) ([]ChecklistEntry, []string) {
	entries := make([]ChecklistEntry, 0, len(items))
	var errs []string
	for i, item := range items {
		label := strings.TrimSpace(item.Label)
		if rule := failedRule(label, labelRules); rule != "" {
			errs = append(errs, fmt.Sprintf("[%d] %s", i, labelMsgs[rule]))
			continue
		}

		entry := ChecklistEntry{Label: label, Order: i}
		if item.ID != nil {
			entry.ID = *item.ID
		}
		if item.Done != nil {
			entry.Done = *item.Done
		}
		if item.Order != nil {
			if failedRule(*item.Order, "min=0") != "" {
				errs = append(errs, fmt.Sprintf("[%d] %s", i, msgOrderNegative))
				continue
			}
			entry.Order = *item.Order
		}
		entries = append(entries, entry)
	}
	return entries, errs
}
