package todo

import (
	"net/url"
	"strings"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"

	"gorm.io/gorm"
)

// Filter 任务列表的查询条件，零值表示不过滤。
type Filter struct {
	Status      string
	Importance  string
	Category    string
	Tag         string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	DueFrom     *time.Time
	DueTo       *time.Time
}

// ParseFilter 解析查询参数。
//
// status / importance 取值不合法时忽略；日期格式错误返回对应参数的字段错误。
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	fe := apperr.FieldErrors{}

	if v := strings.TrimSpace(q.Get("status")); contains(statusChoices, v) {
		f.Status = v
	}
	if v := strings.TrimSpace(q.Get("importance")); contains(importanceChoices, v) {
		f.Importance = v
	}
	f.Category = strings.TrimSpace(q.Get("category"))
	if v := strings.TrimSpace(q.Get("tag")); v != "" {
		f.Tag = NormalizeTag(v)
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"date_from", &f.CreatedFrom},
		{"date_to", &f.CreatedTo},
		{"due_from", &f.DueFrom},
		{"due_to", &f.DueTo},
	} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			fe.Add(p.name, msgDateFormat)
			continue
		}
		*p.dst = &t
	}

	return f, fe.Err()
}

// Apply 把条件加到查询上。创建日期按 UTC 自然日比较，两端都包含。
func (f Filter) Apply(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Importance != "" {
		db = db.Where("importance = ?", f.Importance)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	if f.Tag != "" {
		db = db.Where(tagClause(db.Dialector.Name()), "%\""+escapeLike(f.Tag)+"\"%")
	}
	if f.CreatedFrom != nil {
		db = db.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		db = db.Where("created_at < ?", f.CreatedTo.AddDate(0, 0, 1))
	}
	if f.DueFrom != nil {
		db = db.Where("due_date >= ?", *f.DueFrom)
	}
	if f.DueTo != nil {
		db = db.Where("due_date <= ?", *f.DueTo)
	}
	return db
}

// tagClause 标签按 JSON 文本做子串匹配。MySQL 默认排序规则忽略重音与大小写，
// 会让 "Saude" 命中 "Saúde"，因此改用二进制排序规则逐字节比较。
func tagClause(dialect string) string {
	if dialect == "mysql" {
		return "tags COLLATE utf8mb4_bin LIKE ? ESCAPE '!'"
	}
	return "tags LIKE ? ESCAPE '!'"
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
