package node

import (
	"strings"
	"unicode/utf8"
)

// emptySlot Prompt 中空变量的占位文本
const emptySlot = "(none)"

// TailByRunes 保留末尾 maxRunes 个字符，被截掉时在开头标注省略
func TailByRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	total := utf8.RuneCountInString(s)
	if total <= maxRunes {
		return s
	}
	skip := total - maxRunes
	for i := range s {
		if skip == 0 {
			return "..." + s[i:]
		}
		skip--
	}
	return s
}

// PromptSlot 去除首尾空白，空值替换为占位文本
func PromptSlot(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return emptySlot
	}
	return s
}
