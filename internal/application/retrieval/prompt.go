package retrieval

import (
	"fmt"
	"strings"

	"legal-rag-api/internal/domain/entity"
)

// BuildEvidenceContext 将证据集格式化为可直接注入 Prompt 的块，每条以 document_id 标注。
// 约束：尽量短，避免把 score 等调试信息塞进 Prompt。
func BuildEvidenceContext(set entity.EvidenceSet, maxItems int, maxRunesPerItem int) string {
	if len(set) == 0 {
		return "(no evidence)"
	}
	if maxItems <= 0 {
		maxItems = len(set)
	}
	if maxRunesPerItem <= 0 {
		maxRunesPerItem = 600
	}

	n := len(set)
	if n > maxItems {
		n = maxItems
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		it := set[i]
		txt := truncateRunes(compactOneLine(it.PassageText), maxRunesPerItem)
		if strings.TrimSpace(txt) == "" {
			continue
		}
		ref := it.DocumentID
		if t := strings.TrimSpace(it.Title); t != "" {
			ref = fmt.Sprintf("%s | %s", it.DocumentID, t)
		}
		lines = append(lines, fmt.Sprintf("[%d] (%s) %s", it.Rank, ref, txt))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func compactOneLine(s string) string {
	out := strings.ReplaceAll(s, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.TrimSpace(out)
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
