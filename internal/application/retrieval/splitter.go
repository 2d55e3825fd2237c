package retrieval

import (
	"strings"
	"unicode"
)

// breakRanks 断点优先级：段落 > 换行 > 句末 > 分号
var breakRanks = []func(r []rune, i int) bool{
	func(r []rune, i int) bool { return r[i] == '\n' && i > 0 && r[i-1] == '\n' },
	func(r []rune, i int) bool { return r[i] == '\n' },
	func(r []rune, i int) bool {
		return (r[i] == '.' || r[i] == '。' || r[i] == '?' || r[i] == '!') && (i+1 == len(r) || unicode.IsSpace(r[i+1]))
	},
	func(r []rune, i int) bool { return r[i] == ';' || r[i] == '；' },
}

// splitPassages 将条文切成不超过 maxRunes 的段落，优先在段落与句末处断开，相邻段落重叠 overlapRunes
func splitPassages(s string, maxRunes int, overlapRunes int) []string {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if raw == "" {
		return nil
	}
	if maxRunes <= 0 {
		return []string{raw}
	}
	if overlapRunes < 0 || overlapRunes >= maxRunes {
		overlapRunes = 0
	}
	runes := []rune(raw)
	if len(runes) <= maxRunes {
		return []string{raw}
	}

	out := make([]string, 0, len(runes)/(maxRunes-overlapRunes)+1)
	for start := 0; start < len(runes); {
		end := start + maxRunes
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = bestBreak(runes, start, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end - overlapRunes
		if next <= start {
			next = end
		}
		start = alignWord(runes, next, end)
	}
	return out
}

// bestBreak 在窗口后半段寻找最高优先级的断点，找不到时退回空白处或硬切
func bestBreak(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for _, match := range breakRanks {
		for i := end - 1; i >= floor; i-- {
			if match(runes, i) {
				return i + 1
			}
		}
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

// alignWord 将重叠起点推进到下一个词首，不越过 limit
func alignWord(runes []rune, pos, limit int) int {
	if pos == 0 || unicode.IsSpace(runes[pos-1]) {
		return pos
	}
	for i := pos; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return pos
}
