package todo

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TagVocabulary 允许的标签，顺序即提示中的顺序。
var TagVocabulary = []string{"Trabalho", "Estudos", "Casa", "Saúde"}

// NormalizeTag 去掉两端空白后转成首字母大写形式。
//
// cases.Caser 带内部状态，不能跨 goroutine 共享，每次调用新建。
func NormalizeTag(tag string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(tag))
}

// NormalizeTags 规范化标签列表并按首次出现的顺序去重；遇到词表外的标签返回第一条错误信息。
func NormalizeTags(tags []string) ([]string, string) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		normalized := NormalizeTag(tag)
		if !knownTag(normalized) {
			return nil, fmt.Sprintf("Tag '%s' não é válida. Use opções: %s.", tag, strings.Join(TagVocabulary, ", "))
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, ""
}

func knownTag(tag string) bool {
	for _, t := range TagVocabulary {
		if t == tag {
			return true
		}
	}
	return false
}
